package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/stagehand/cmd/stagehand/handlers"
)

// Nodes returns the parent command for node set maintenance.
func Nodes(opts *handlers.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nodes",
		Short: "Maintain the plan's node set",
	}

	cmd.AddCommand(nodesRemove(opts))
	cmd.AddCommand(nodesResolve(opts))

	return cmd
}

func nodesRemove(opts *handlers.Options) *cobra.Command {
	var (
		reason string
		yes    bool
	)

	cmd := &cobra.Command{
		Use:   "remove <node>",
		Short: "Remove a node from the node set, keeping its results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return handlers.RemoveNode(cmd.Context(), *opts, args[0], reason, yes)
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Why the node is removed (required)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	_ = cmd.MarkFlagRequired("reason")

	return cmd
}

func nodesResolve(opts *handlers.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <node>",
		Short: "Clear a node's remediation mark so later stages include it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return handlers.ResolveNode(cmd.Context(), *opts, args[0])
		},
	}
}
