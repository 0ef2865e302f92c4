package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aretw0/arbor/internal/cli"
	"github.com/aretw0/arbor/internal/presentation/tui"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var rootCmd = &cobra.Command{
	Use:   "arbor",
	Short: "Arbor keeps a branching history of your documents",
	Long: `Arbor records every change to a document as a full snapshot in a tree.
Going back never loses work: editing an old snapshot grows a new branch.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	sc := cli.NewSignalContext(context.Background())
	defer sc.Cancel()

	if err := rootCmd.ExecuteContext(sc); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("dir", ".", "Project directory holding arbor.yaml and local stores")
	rootCmd.PersistentFlags().String("config", "", "Path to the configuration file (default <dir>/arbor.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
}

// openApp builds the application from the persistent flags. Callers must
// Close the returned App.
func openApp(cmd *cobra.Command, hooks ...domain.LifecycleHooks) (*cli.App, error) {
	dir, _ := cmd.Flags().GetString("dir")
	cfgPath, _ := cmd.Flags().GetString("config")
	level, _ := cmd.Flags().GetString("log-level")
	return cli.NewApp(cmd.Context(), cli.Options{
		Dir:        dir,
		ConfigPath: cfgPath,
		LogLevel:   level,
		Hooks:      hooks,
	})
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// printMarkdown renders md with glamour when stdout is a terminal.
func printMarkdown(cmd *cobra.Command, md string) error {
	out := cmd.OutOrStdout()
	render := tui.NewRenderer(!isTerminal(out))
	text, err := render(md)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(out, text)
	return err
}
