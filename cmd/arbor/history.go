package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aretw0/arbor/internal/presentation/graph"
	"github.com/aretw0/arbor/internal/presentation/tui"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/spf13/cobra"
)

var logCmd = &cobra.Command{
	Use:   "log <id>",
	Short: "Show the history tree of a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		ctx := cmd.Context()
		info, err := app.Manager.Open(ctx, args[0])
		if err != nil {
			return err
		}
		entries, err := app.Manager.Entries(ctx, args[0])
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(entries)
		}
		title := info.Title
		if title == "" {
			title = info.ID
		}
		return printMarkdown(cmd, tui.HistoryMarkdown(title, entries))
	},
}

var graphCmd = &cobra.Command{
	Use:   "graph <id>",
	Short: "Export the history tree as a Mermaid diagram",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		entries, err := app.Manager.Entries(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(entries))
		return nil
	},
}

var appendCmd = &cobra.Command{
	Use:   "append <id>",
	Short: "Record a new snapshot as a child of the current node",
	Long: `Records a snapshot. It starts from the live document, replaced by --file
when given, with --text applied last.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kindFlag, _ := cmd.Flags().GetString("kind")
		kind, err := domain.ParseChangeKind(kindFlag)
		if err != nil {
			return err
		}
		label, _ := cmd.Flags().GetString("label")

		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		ctx := cmd.Context()
		live, err := app.Manager.Live(ctx, args[0])
		if err != nil {
			return err
		}
		doc, err := documentFromFlags(cmd, live)
		if err != nil {
			return err
		}
		entry, err := app.Manager.Append(ctx, args[0], doc, kind, label)
		if err != nil {
			return err
		}
		if err := app.Manager.Save(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "recorded %s (%s)\n", entry.ID, entry.ChangeKind)
		return nil
	},
}

var jumpCmd = &cobra.Command{
	Use:   "jump <id> <node>",
	Short: "Make an existing snapshot the live document",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		ctx := cmd.Context()
		if _, err := app.Manager.Jump(ctx, args[0], args[1]); err != nil {
			return err
		}
		if err := app.Manager.Save(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "now at %s\n", args[1])
		return nil
	},
}

var undoCmd = &cobra.Command{
	Use:   "undo <id>",
	Short: "Revert the latest change in a domain",
	Long: `Reverts the most recent change of --domain. Scoped domains (text, data,
assistant) record the undo as a new node; "all" rewinds to the parent.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		domainFlag, _ := cmd.Flags().GetString("domain")
		d, err := domain.ParseDomain(domainFlag)
		if err != nil {
			return err
		}

		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		ctx := cmd.Context()
		res, err := app.Manager.Undo(ctx, args[0], d)
		if errors.Is(err, domain.ErrNoUndoTarget) {
			fmt.Fprintf(cmd.OutOrStdout(), "nothing to undo in %s\n", d)
			return nil
		}
		if err != nil {
			return err
		}
		if err := app.Manager.Save(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "undid %q, now at %s\n", res.Label, res.NodeID)
		return nil
	},
}

var redoCmd = &cobra.Command{
	Use:   "redo <id>",
	Short: "List the branches you can move forward to",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		hint, err := app.Manager.Redo(cmd.Context(), args[0])
		if err != nil && !errors.Is(err, domain.ErrRedoRequiresSelection) {
			return err
		}
		out := cmd.OutOrStdout()
		if len(hint.Children) == 0 {
			fmt.Fprintln(out, "nothing to redo")
			return nil
		}
		fmt.Fprintln(out, "pick a branch with `arbor jump`:")
		for _, c := range hint.Children {
			fmt.Fprintf(out, "  %s  %s (%s)\n", c.ID, c.Label, c.ChangeKind)
		}
		return nil
	},
}

var pruneCmd = &cobra.Command{
	Use:   "prune <id>",
	Short: "Discard the oldest branches to fit a node budget",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		maxNodes, _ := cmd.Flags().GetInt("max")

		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		ctx := cmd.Context()
		res, err := app.Manager.Prune(ctx, args[0], maxNodes)
		if err != nil {
			return err
		}
		if err := app.Manager.Save(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d nodes, %d remain\n", res.Removed, res.Remaining)
		if !res.WithinBudget {
			fmt.Fprintln(cmd.OutOrStdout(), "still over budget, the live path is kept; raise --max")
		}
		return nil
	},
}

func init() {
	logCmd.Flags().Bool("json", false, "Print entries as JSON")

	appendCmd.Flags().StringP("kind", "k", string(domain.ChangeEditor), "Change kind")
	appendCmd.Flags().StringP("label", "l", "", "Human readable label")
	appendCmd.Flags().String("text", "", "Replace the document text")
	appendCmd.Flags().StringP("file", "f", "", "JSON document to record (- for stdin)")

	undoCmd.Flags().StringP("domain", "d", string(domain.DomainAll), "Undo domain: all, text, data, assistant")

	pruneCmd.Flags().Int("max", 0, "Node budget (default from configuration)")

	rootCmd.AddCommand(logCmd, graphCmd, appendCmd, jumpCmd, undoCmd, redoCmd, pruneCmd)
}

