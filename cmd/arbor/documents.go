package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/spf13/cobra"
)

var newCmd = &cobra.Command{
	Use:   "new [id]",
	Short: "Create a document with a root snapshot",
	Long:  `Creates a document. Without an id a UUID is generated. The initial snapshot comes from --file (JSON) or --text.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		var id string
		if len(args) > 0 {
			id = args[0]
		}
		title, _ := cmd.Flags().GetString("title")
		initial, err := documentFromFlags(cmd, domain.Document{})
		if err != nil {
			return err
		}

		info, err := app.Manager.Create(cmd.Context(), id, title, initial)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %s (root %s)\n", info.ID, info.RootID)
		return nil
	},
}

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List stored documents",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		ctx := cmd.Context()
		ids, err := app.Manager.List(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tNODES\tUPDATED")
		for _, id := range ids {
			info, err := app.Manager.Open(ctx, id)
			if err != nil {
				app.Logger.Warn("skipping unreadable document", "document_id", id, "error", err)
				continue
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", info.ID, info.Title, info.Nodes, info.UpdatedAt.Local().Format(time.DateTime))
		}
		return w.Flush()
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <id>",
	Short: "Print the live document as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		info, err := app.Manager.Open(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		live, err := app.Manager.Live(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Info any             `json:"info"`
			Live domain.Document `json:"live"`
		}{info, live})
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a document and its history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		if err := app.Manager.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
		return nil
	},
}

// documentFromFlags starts from base, replaces it with --file when given
// ("-" reads stdin) and then applies --text.
func documentFromFlags(cmd *cobra.Command, base domain.Document) (domain.Document, error) {
	doc := base
	if path, _ := cmd.Flags().GetString("file"); path != "" {
		var data []byte
		var err error
		if path == "-" {
			data, err = io.ReadAll(cmd.InOrStdin())
		} else {
			data, err = os.ReadFile(path)
		}
		if err != nil {
			return doc, fmt.Errorf("failed to read document: %w", err)
		}
		doc = domain.Document{}
		if err := json.Unmarshal(data, &doc); err != nil {
			return doc, fmt.Errorf("invalid document JSON: %w", err)
		}
	}
	if cmd.Flags().Changed("text") {
		doc.Text, _ = cmd.Flags().GetString("text")
	}
	return doc, nil
}

func init() {
	newCmd.Flags().String("title", "", "Human readable title")
	newCmd.Flags().String("text", "", "Initial text")
	newCmd.Flags().StringP("file", "f", "", "JSON document for the root snapshot (- for stdin)")

	rootCmd.AddCommand(newCmd, lsCmd, inspectCmd, rmCmd)
}
