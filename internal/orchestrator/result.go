package orchestrator

import (
	"github.com/imamik/stagehand/internal/state"
)

// Exit codes returned by the CLI.
const (
	ExitCompleted = 0
	ExitHalted    = 1
	ExitPaused    = 2
	ExitInternal  = 3
)

// Result is where an invocation stopped.
type Result struct {
	Status  state.Status
	StageID string
	Reason  string
	// Nodes lists the nodes the operator has to act on.
	Nodes []string
	// Action tells the operator what to do before re-invoking.
	Action string
	// State is the last persisted state.
	State *state.DeploymentState
}

// ExitCode maps the result to the process exit code.
func (r Result) ExitCode() int {
	switch r.Status {
	case state.StatusCompleted, state.StatusRunning:
		return ExitCompleted
	case state.StatusPausedForReboot:
		return ExitPaused
	case state.StatusHalted:
		return ExitHalted
	default:
		return ExitInternal
	}
}

const (
	actionReboot   = "reboot the listed nodes, then re-invoke to resume"
	actionFix      = "fix the listed nodes, then re-invoke to retry the stage"
	actionReinvoke = "re-invoke to resume"
	actionNodes    = "resolve or remove nodes awaiting remediation, then re-invoke"
)
