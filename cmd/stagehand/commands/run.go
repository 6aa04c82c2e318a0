package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/stagehand/cmd/stagehand/handlers"
)

// Run returns the command that drives a plan to a terminal state.
//
// Optional flags:
//
//	--from-stage: Stage the run is expected to resume at; a mismatch fails
//
// Environment variables:
//
//	STAGEHAND_STATE_DIR, STAGEHAND_STATE_BACKEND: where checkpoints live
//	STAGEHAND_SSH_KEY: private key for command stages on remote nodes
func Run(opts *handlers.Options) *cobra.Command {
	var fromStage string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the plan until it completes, halts or pauses for a reboot",
		Long: `Run the deployment plan from its persisted checkpoint.

The first invocation starts at the first stage. Later invocations load the
checkpoint, re-run pre-validation of the current stage and continue from
there. Stages already completed are never re-run.

Examples:
  # Start or continue the plan in ./stagehand.yaml
  stagehand run

  # Resume after rebooting, asserting where the plan stopped
  stagehand run --from-stage install-role

  # Continue a second instance of the same plan file
  stagehand run -c hyperv.yaml --plan-id hyperv-lab2`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Run(cmd.Context(), handlers.RunOptions{Options: *opts, FromStage: fromStage})
		},
	}

	cmd.Flags().StringVar(&fromStage, "from-stage", "", "Stage the plan must resume at")

	return cmd
}

// Step returns the command that executes at most one stage.
func Step(opts *handlers.Options) *cobra.Command {
	var fromStage string

	cmd := &cobra.Command{
		Use:   "step",
		Short: "Execute at most one stage of the plan",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Run(cmd.Context(), handlers.RunOptions{Options: *opts, FromStage: fromStage, Once: true})
		},
	}

	cmd.Flags().StringVar(&fromStage, "from-stage", "", "Stage the plan must resume at")

	return cmd
}
