package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/scorekeep/internal/workspace"
)

// summaryCmd builds a command that runs one workspace operation and
// prints the summary of the project it produced.
func summaryCmd(cmd *cobra.Command, op func(ctx context.Context, s *workspace.Session, args []string) (workspace.Summary, error)) *cobra.Command {
	cmd.RunE = func(c *cobra.Command, args []string) error {
		return withApp(c.Context(), func(ctx context.Context, a *app) error {
			sum, err := op(ctx, a.session, args)
			if err != nil {
				return err
			}
			return printJSON(c.OutOrStdout(), sum)
		})
	}
	return cmd
}

func newNewCmd() *cobra.Command {
	var location string
	cmd := summaryCmd(&cobra.Command{
		Use:   "new [name]",
		Short: "Create an empty project",
		Long: `Create an empty project from the empty template.

Examples:
  # Create "Etude" in the documents directory
  scorekeep new Etude

  # Create a project at a given file; it is named after the file
  scorekeep new --at ~/music/sketch.helio`,
		Args: cobra.MaximumNArgs(1),
	}, func(ctx context.Context, s *workspace.Session, args []string) (workspace.Summary, error) {
		if location != "" {
			return s.CreateEmpty(ctx, location)
		}
		if len(args) == 0 {
			return workspace.Summary{}, fmt.Errorf("a project name or --at is required")
		}
		return s.CreateEmptyNamed(ctx, args[0])
	})
	cmd.Flags().StringVar(&location, "at", "", "file to create the project at")
	return cmd
}

func newExampleCmd() *cobra.Command {
	return summaryCmd(&cobra.Command{
		Use:   "example",
		Short: "Create a project from the example template",
		Args:  cobra.NoArgs,
	}, func(ctx context.Context, s *workspace.Session, _ []string) (workspace.Summary, error) {
		return s.CreateExample(ctx)
	})
}

func newOpenCmd() *cobra.Command {
	return summaryCmd(&cobra.Command{
		Use:   "open <file>",
		Short: "Open a project file",
		Args:  cobra.ExactArgs(1),
	}, func(ctx context.Context, s *workspace.Session, args []string) (workspace.Summary, error) {
		return s.OpenFromFile(ctx, args[0])
	})
}

func newImportCmd() *cobra.Command {
	return summaryCmd(&cobra.Command{
		Use:   "import <file.mid>",
		Short: "Create a project from a MIDI file",
		Args:  cobra.ExactArgs(1),
	}, func(ctx context.Context, s *workspace.Session, args []string) (workspace.Summary, error) {
		return s.ImportExternal(ctx, args[0])
	})
}

func newCheckoutCmd() *cobra.Command {
	var name string
	cmd := summaryCmd(&cobra.Command{
		Use:   "checkout <project-id>",
		Short: "Check out a project from its remote history",
		Long: `Check out a project from its remote history.

The project is added to the workspace even when the clone fails, so that
it can be retried once the remote is reachable.`,
		Args: cobra.ExactArgs(1),
	}, func(ctx context.Context, s *workspace.Session, args []string) (workspace.Summary, error) {
		return s.Checkout(ctx, args[0], name)
	})
	cmd.Flags().StringVar(&name, "name", "", "project name (defaults to the id)")
	return cmd
}

func newReopenCmd() *cobra.Command {
	return summaryCmd(&cobra.Command{
		Use:   "reopen <project-id>",
		Short: "Open a recently used project",
		Args:  cobra.ExactArgs(1),
	}, func(ctx context.Context, s *workspace.Session, args []string) (workspace.Summary, error) {
		return s.LoadRecent(ctx, args[0])
	})
}

func newListCmd() *cobra.Command {
	var (
		recent bool
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List open projects",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return withApp(c.Context(), func(ctx context.Context, a *app) error {
				if recent {
					projects, err := a.session.Recent(ctx, limit)
					if err != nil {
						return err
					}
					return printJSON(c.OutOrStdout(), projects)
				}
				return printJSON(c.OutOrStdout(), a.session.Summaries(ctx))
			})
		},
	}
	cmd.Flags().BoolVar(&recent, "recent", false, "list recently used projects instead")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of recent projects")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <project-id>",
		Short: "Show the revisions of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return withApp(c.Context(), func(ctx context.Context, a *app) error {
				revisions, err := a.session.History(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(c.OutOrStdout(), revisions)
			})
		},
	}
}

func newCommitCmd() *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "commit <project-id>",
		Short: "Record every item of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return withApp(c.Context(), func(ctx context.Context, a *app) error {
				hash, err := a.session.CommitAll(ctx, args[0], message)
				if err != nil {
					return err
				}
				return printJSON(c.OutOrStdout(), map[string]string{"project_id": args[0], "hash": hash})
			})
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "commit message")
	return cmd
}

func newCloseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "close <project-id>",
		Short: "Save and close a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return withApp(c.Context(), func(ctx context.Context, a *app) error {
				return a.session.CloseProject(ctx, args[0])
			})
		},
	}
}
