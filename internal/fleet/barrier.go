package fleet

import (
	"github.com/imamik/stagehand/internal/plan"
	"github.com/imamik/stagehand/internal/state"
)

// Decision is the barrier verdict over one stage's final node results.
type Decision struct {
	Advance         bool
	PausedForReboot bool
	Succeeded       int
	Total           int
}

// Decide applies policy to results. Any RebootPending node pauses the stage
// regardless of policy.
func Decide(policy plan.BarrierPolicy, results []state.NodeResult) Decision {
	d := Decision{Total: len(results)}
	for _, r := range results {
		if r.Outcome.Succeeded() {
			d.Succeeded++
		}
		if r.Outcome == state.OutcomeRebootPending {
			d.PausedForReboot = true
		}
	}
	if d.PausedForReboot {
		return d
	}

	switch policy {
	case plan.BestEffort:
		d.Advance = true
	case plan.MajorityMustSucceed:
		d.Advance = d.Succeeded*2 > d.Total
	default:
		d.Advance = d.Total > 0 && d.Succeeded == d.Total
	}
	return d
}
