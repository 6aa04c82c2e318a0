// Package orchestrator drives a deployment plan to completion.
//
// The orchestrator is a sequential state machine over the plan's stages:
//
//	NotStarted -> Running(s) -> Running(next) | PausedForReboot(s) | Halted(s, reason) | Completed
//
// Every invocation starts from the persisted [state.DeploymentState], never
// from the first stage. For each remaining stage it runs pre-validation on
// the nodes that still need the stage, hands the stage to the fleet
// coordinator, and persists the barrier decision before touching the next
// stage. A stage whose completion could not be saved is never followed by
// another stage.
//
// Run executes until a terminal state; Step executes at most one stage.
// Both return a [Result] whose ExitCode follows the CLI contract:
// 0 Completed, 1 Halted, 2 PausedForReboot. Control failures (corrupt or
// mismatched state, unwritable store) are returned as errors.
package orchestrator
