package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "steward",
	Short: "Supervised task orchestration over tiered reasoning backends",
	Long: `Steward decomposes a goal into a dependency-ordered plan and drives
each step through cheap-first execution: attempts start on the lowest
capable tier and escalate only when verification or retries demand it.

Every proposed action passes an assurance gate before it runs, every
step's output is verified before dependents unlock, and the whole run
is bounded by token, wall-clock, and action budgets. The event trail
is append-only and replayable, so interrupted sessions resume where
they stopped.

Start a session:
  steward run "compare the three fastest sorting algorithms"
  steward run --plan release.yaml --watch

Inspect afterwards:
  steward status
  steward events <session-id>`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(versionCmd)
}
