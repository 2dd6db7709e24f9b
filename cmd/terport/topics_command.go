package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"terport/internal/config"
	"terport/internal/logging"
	"terport/internal/store"
	"terport/internal/terport"
	"terport/internal/topics"
	"terport/internal/version"
)

func newTopicsCommand(ctx *commandContext) *cobra.Command {
	var triggerFlag string
	var sinceFlag string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "topics",
		Short: "List the topics a trigger would generate",
		RunE: func(cmd *cobra.Command, args []string) error {
			trigger, ok := terport.ParseTrigger(triggerFlag)
			if !ok {
				return fmt.Errorf("unknown trigger %q (expected manual, initial, or version-update)", triggerFlag)
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			registry, err := topics.New(cfg.Plugin.Version)
			if err != nil {
				return err
			}
			since, err := lastGeneratedVersion(cmd, ctx, trigger, sinceFlag)
			if err != nil {
				return err
			}
			specs := registry.Topics(trigger, since)
			if jsonOut {
				if specs == nil {
					specs = []terport.TopicSpec{}
				}
				return writeJSON(cmd, specs)
			}

			out := cmd.OutOrStdout()
			if len(specs) == 0 {
				fmt.Fprintf(out, "No topics for %s at version %s\n", trigger, cfg.Plugin.Version)
				return nil
			}
			rows := make([][]string, 0, len(specs))
			for i, spec := range specs {
				rows = append(rows, []string{
					itoa(i + 1),
					spec.Title,
					orDash(registry.CategoryLabel(spec.Category)),
					itoa(len(spec.ResearchQuestions)),
				})
			}
			printTable(out,
				[]string{"#", "Topic", "Category", "Questions"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight},
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&triggerFlag, "trigger", string(terport.TriggerManual), "Trigger to list topics for (manual, initial, version-update)")
	cmd.Flags().StringVar(&sinceFlag, "since", "", "Last generated version for version-update (default: read from the database)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

// lastGeneratedVersion resolves the version a version-update listing starts
// after. An explicit flag wins over the recorded version gate.
func lastGeneratedVersion(cmd *cobra.Command, ctx *commandContext, trigger terport.Trigger, since string) (string, error) {
	if trigger != terport.TriggerVersionUpdate {
		return "", nil
	}
	if cmd.Flags().Changed("since") {
		return strings.TrimSpace(since), nil
	}
	var last string
	err := ctx.withStore(func(_ *config.Config, st *store.Store) error {
		last, _ = version.NewTracker(st, logging.NewNop()).LastVersion(cmd.Context())
		return nil
	})
	return last, err
}
