package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"terport/internal/daemonrun"
	"terport/internal/logging"
	"terport/internal/scheduler"
	"terport/internal/terport"
)

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var triggerFlag string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Run the generation pipeline now",
		Long: "Run the generation pipeline in this process. The run holds the same lock as the " +
			"daemon, so it refuses to start while another run is in flight.",
		RunE: func(cmd *cobra.Command, args []string) error {
			trigger, ok := terport.ParseTrigger(triggerFlag)
			if !ok {
				return fmt.Errorf("unknown trigger %q (expected manual, initial, or version-update)", triggerFlag)
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := logging.NewFromConfig(cfg, logging.Options{OutputPaths: []string{"stderr"}})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			rt, err := daemonrun.Build(cfg, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			rec, runErr := rt.Scheduler.RunNow(cmd.Context(), trigger)
			if errors.Is(runErr, scheduler.ErrRunInProgress) {
				return errors.New("a generation run is already in progress; try again when it finishes")
			}
			out := cmd.OutOrStdout()
			if rec == nil {
				if runErr != nil {
					return runErr
				}
				fmt.Fprintf(out, "Nothing to generate: version %s has already been generated\n", cfg.Plugin.Version)
				return nil
			}

			outcomes, err := rt.Store.TopicOutcomes(cmd.Context(), rec.RunID)
			if err != nil {
				return err
			}
			if jsonOut {
				if err := writeJSON(cmd, scheduler.Status{
					Latest:         rec,
					Outcomes:       outcomes,
					CurrentVersion: cfg.Plugin.Version,
				}); err != nil {
					return err
				}
			} else {
				printRunSummary(out, rec, shouldColorize(out))
				printOutcomes(out, outcomes)
			}

			if runErr != nil {
				return runErr
			}
			if rec.Status == terport.RunStatusFailed {
				return fmt.Errorf("generation failed: %s", rec.ErrorMessage)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&triggerFlag, "trigger", string(terport.TriggerManual), "Trigger to run (manual, initial, version-update)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func printRunSummary(out io.Writer, rec *terport.GenerationRecord, colorize bool) {
	fmt.Fprintln(out, renderStatusLine("Run", runStatusKind(rec.Status), fmt.Sprintf("%s (%s)", rec.Status, rec.RunID), colorize))
	fmt.Fprintln(out, renderStatusLine("Trigger", statusInfo, fmt.Sprintf("%s @ %s", rec.Trigger, rec.PluginVersion), colorize))
	topics := fmt.Sprintf("%d/%d generated", rec.TopicsSucceeded, rec.TopicsAttempted)
	if rec.TopicsFailed > 0 {
		topics += fmt.Sprintf(", %d failed", rec.TopicsFailed)
	}
	fmt.Fprintln(out, renderStatusLine("Topics", runStatusKind(rec.Status), topics, colorize))
	fmt.Fprintln(out, renderStatusLine("Duration", statusInfo, formatDuration(rec.StartedAt, rec.FinishedAt), colorize))
	if rec.ErrorMessage != "" {
		fmt.Fprintln(out, renderStatusLine("Error", statusError, rec.ErrorMessage, colorize))
	}
}

func printOutcomes(out io.Writer, outcomes []terport.TopicOutcome) {
	if len(outcomes) == 0 {
		return
	}
	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		detail := o.ErrorMessage
		if detail == "" && len(o.EndpointErrors) > 0 {
			detail = fmt.Sprintf("%d endpoint errors", len(o.EndpointErrors))
		}
		rows = append(rows, []string{
			itoa(o.Position + 1),
			o.Title,
			string(o.Status),
			orDash(o.ModelUsed),
			itoa(len(o.Attempts)),
			itoa(o.FactsConsidered),
			orDash(detail),
		})
	}
	printTable(out,
		[]string{"#", "Topic", "Status", "Model", "Attempts", "Facts", "Detail"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	)
}
