package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/stagehand/cmd/stagehand/handlers"
)

// Status returns the command that prints persisted plan state.
func Status(opts *handlers.Options) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the persisted state of the plan",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Status(cmd.Context(), *opts, output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", handlers.OutputText, "Output format: text, json or yaml")

	return cmd
}

// Validate returns the command that checks the plan without changing state.
func Validate(opts *handlers.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the plan file and pre-validate the next stage",
		Long: `Load and compile the plan file, then run pre-validation of the stage the
plan would resume at. No operation runs and no state is written.

Exits 1 when a blocking check fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Validate(cmd.Context(), *opts)
		},
	}
}

// History returns the command that lists recorded transitions.
func History(opts *handlers.Options) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded state transitions (requires STAGEHAND_JOURNAL)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.History(cmd.Context(), *opts, limit, asJSON)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Number of most recent transitions to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print transitions as JSON")

	return cmd
}
