// Package main implements the scorekeep CLI: project workspace commands
// and the HTTP daemon.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var (
	// configPath overrides ~/.config/scorekeep/config.yaml
	configPath string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "scorekeep",
		Short: "Music project workspace",
		Long: `scorekeep manages a workspace of music projects: creating them from
templates, opening and importing files, and keeping their history.

The open projects are remembered between runs, so commands act on the
same workspace the daemon serves.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, gitCommit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/scorekeep/config.yaml)")

	root.AddCommand(
		newNewCmd(),
		newExampleCmd(),
		newOpenCmd(),
		newImportCmd(),
		newCheckoutCmd(),
		newListCmd(),
		newHistoryCmd(),
		newCommitCmd(),
		newCloseCmd(),
		newReopenCmd(),
		newServeCmd(),
	)
	return root
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
