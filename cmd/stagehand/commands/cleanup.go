package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/stagehand/cmd/stagehand/handlers"
)

// Cleanup returns the command that deletes a plan's state.
func Cleanup(opts *handlers.Options) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete the persisted state and journal entries of the plan",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Cleanup(cmd.Context(), *opts, yes)
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")

	return cmd
}

// Unlock returns the command that removes a leftover plan lock file.
func Unlock(opts *handlers.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "unlock",
		Short: "Remove the plan lock file when no stagehand process holds it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Unlock(cmd.Context(), *opts)
		},
	}
}
