package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"terport/internal/config"
	"terport/internal/store"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List generation runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				runs, err := st.ListRuns(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if jsonOut {
					if runs == nil {
						return writeJSON(cmd, []any{})
					}
					return writeJSON(cmd, runs)
				}
				out := cmd.OutOrStdout()
				if len(runs) == 0 {
					fmt.Fprintln(out, "No generation runs yet")
					return nil
				}
				rows := make([][]string, 0, len(runs))
				for _, run := range runs {
					rows = append(rows, []string{
						formatTime(run.StartedAt),
						shortID(run.RunID),
						string(run.Trigger),
						run.PluginVersion,
						string(run.Status),
						fmt.Sprintf("%d/%d", run.TopicsSucceeded, run.TopicsAttempted),
						itoa(run.TopicsFailed),
						formatDuration(run.StartedAt, run.FinishedAt),
					})
				}
				printTable(out,
					[]string{"Started", "Run", "Trigger", "Version", "Status", "Generated", "Failed", "Duration"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight},
				)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to show")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
