package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/calder/dirtree/internal/history"
)

// NewHistoryCommand creates the history command and its subcommands
func NewHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded build runs",
		Long: `History lists and shows build runs recorded in the history database.

Examples:
  dirtree history list
  dirtree history list --limit 5
  dirtree history show 2f9c1a4e-...
  dirtree history prune --keep 20`,
	}

	cmd.PersistentFlags().String("config", "", "Path to config file (default: .dirtree/config.yaml)")

	cmd.AddCommand(newHistoryListCommand())
	cmd.AddCommand(newHistoryShowCommand())
	cmd.AddCommand(newHistoryPruneCommand())

	return cmd
}

func openStore(cmd *cobra.Command) (*history.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return history.NewStore(cfg.History.DBPath)
}

func newHistoryListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			limit, _ := cmd.Flags().GetInt("limit")
			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no recorded runs")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tWHEN\tROOT\tPOLICY\tCREATED\tFAILED")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\n",
					shortID(r.RunID),
					r.StartedAt.Local().Format("2006-01-02 15:04:05"),
					r.Root,
					r.Policy,
					r.Created,
					r.Failed,
				)
			}
			return w.Flush()
		},
	}
	cmd.Flags().Int("limit", 20, "Maximum runs to list (0 = all)")
	return cmd
}

func newHistoryShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run and its per-node outcomes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			run, nodes, err := store.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run:      %s\n", run.RunID)
			fmt.Fprintf(out, "Root:     %s\n", run.Root)
			fmt.Fprintf(out, "Policy:   %s\n", run.Policy)
			if run.DryRun {
				fmt.Fprintln(out, "Mode:     dry run")
			}
			fmt.Fprintf(out, "Started:  %s\n", run.StartedAt.Local().Format(time.RFC3339))
			fmt.Fprintf(out, "Duration: %s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
			fmt.Fprintf(out, "Outcomes: %d created, %d skipped, %d overwritten, %d unchanged, %d failed\n\n",
				run.Created, run.Skipped, run.Overwritten, run.Unchanged, run.Failed)

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "OUTCOME\tKIND\tPATH\tERROR")
			for _, n := range nodes {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", n.Outcome, n.Kind, n.Path, n.Error)
			}
			return w.Flush()
		},
	}
}

func newHistoryPruneCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the most recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			keep, _ := cmd.Flags().GetInt("keep")
			removed, err := store.PruneRuns(cmd.Context(), keep)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d run(s), kept %d\n", removed, keep)
			return nil
		},
	}
	cmd.Flags().Int("keep", 20, "How many recent runs to keep")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
