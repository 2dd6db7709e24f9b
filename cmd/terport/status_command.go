package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"terport/internal/config"
	"terport/internal/logging"
	"terport/internal/scheduler"
	"terport/internal/store"
	"terport/internal/version"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the version gate, latest run, and job queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				c := cmd.Context()
				tracker := version.NewTracker(st, logging.NewNop())

				status := scheduler.Status{CurrentVersion: cfg.Plugin.Version}
				if last, ok := tracker.LastVersion(c); ok {
					status.LastVersion = last
				}
				latest, err := st.LatestRun(c)
				if err != nil {
					return err
				}
				status.Latest = latest
				if latest != nil {
					if status.Outcomes, err = st.TopicOutcomes(c, latest.RunID); err != nil {
						return err
					}
				}
				if status.PendingJobs, err = st.PendingJobCount(c); err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, status)
				}

				stats, err := st.RunStats(c)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				lines := renderSectionHeader("Version", colorize)
				lines = append(lines, renderStatusLine("Deployed version", statusInfo, cfg.Plugin.Version, colorize))
				switch {
				case status.LastVersion == "":
					lines = append(lines, renderStatusLine("Last generated", statusWarn, "never", colorize))
				case status.LastVersion == cfg.Plugin.Version:
					lines = append(lines, renderStatusLine("Last generated", statusOK, status.LastVersion, colorize))
				default:
					lines = append(lines, renderStatusLine("Last generated", statusWarn, status.LastVersion+" (update pending)", colorize))
				}
				lines = append(lines, renderStatusLine("Pending jobs", statusInfo, itoa(status.PendingJobs), colorize))
				lines = append(lines, renderStatusLine("Runs recorded", statusInfo,
					fmt.Sprintf("%d (%d successful, %d failed)", stats.TotalRuns, stats.SuccessfulRuns, stats.FailedRuns), colorize))
				for _, line := range lines {
					fmt.Fprintln(out, line)
				}
				fmt.Fprintln(out)

				for _, line := range renderSectionHeader("Latest run", colorize) {
					fmt.Fprintln(out, line)
				}
				if latest == nil {
					fmt.Fprintln(out, "  No generation runs yet")
					return nil
				}
				printRunSummary(out, latest, colorize)
				printOutcomes(out, status.Outcomes)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}
