// Package commands defines the CLI command structure and flag bindings.
//
// This package contains cobra command definitions that handle argument parsing,
// flag binding, and validation. Command execution is delegated to handler
// functions in the handlers package.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/stagehand/cmd/stagehand/handlers"
)

// Root returns the root command for the stagehand CLI.
func Root() *cobra.Command {
	opts := &handlers.Options{}

	cmd := &cobra.Command{
		Use:   "stagehand",
		Short: "Drive staged, reboot-safe rollouts across a fixed set of nodes",
		Long: `stagehand runs a deployment plan stage by stage across a declared set of
nodes. Progress is checkpointed after every stage attempt, so a run that
pauses for a reboot or halts on a failure resumes where it stopped.

Exit codes:
  0  plan completed (or the requested step finished)
  1  plan halted, operator action required
  2  plan paused for reboot, re-invoke after the nodes restart
  3  internal error (unreadable state, invalid plan, lock held)`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.ConfigPath, "config", "c", "", "Path to plan file (default: stagehand.yaml, searched upwards)")
	flags.StringVar(&opts.PlanID, "plan-id", "", "Plan instance to act on (default: id from the plan file)")
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "Enable debug logging")
	flags.StringVar(&opts.LogFormat, "log-format", handlers.LogFormatConsole, "Log format: console or json")

	// Plan commands
	cmd.AddCommand(Run(opts))
	cmd.AddCommand(Step(opts))
	cmd.AddCommand(Status(opts))
	cmd.AddCommand(Validate(opts))
	cmd.AddCommand(History(opts))
	cmd.AddCommand(Nodes(opts))

	// Maintenance commands
	cmd.AddCommand(Cleanup(opts))
	cmd.AddCommand(Unlock(opts))
	cmd.AddCommand(Version())
	cmd.AddCommand(Completion())

	return cmd
}
