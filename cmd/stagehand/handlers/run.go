package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/imamik/stagehand/internal/orchestrator"
	"github.com/imamik/stagehand/internal/state"
	"github.com/imamik/stagehand/internal/ui"
)

// RunOptions configure run and step.
type RunOptions struct {
	Options
	// FromStage, when set, must equal the stage the persisted state resumes
	// at.
	FromStage string
	// Once executes at most one stage.
	Once bool
}

// Run handles the run and step commands.
//
// It loads the plan, takes the plan lock, and drives the orchestrator until
// the plan completes, halts or pauses for a reboot (or after one stage with
// Once). The outcome is printed and mapped to the exit code.
func Run(ctx context.Context, opts RunOptions) error {
	s, err := openSession(ctx, opts.Options, exclusive, true)
	if err != nil {
		return internal(err)
	}
	defer s.close()

	if opts.PlanID != "" {
		if _, err := s.store.Load(ctx, s.planID()); err != nil {
			if errors.Is(err, state.ErrNotFound) {
				return internal(fmt.Errorf("no persisted state for plan %s; omit --plan-id to start it from the plan file", s.planID()))
			}
			return internal(fmt.Errorf("failed to load state: %w", err))
		}
	}

	o := s.orchestrator(orchestrator.WithResumeHint(opts.FromStage))
	s.logger.Info("starting", "plan", s.planID(), "run", o.RunID(), "stages", len(s.plan.Stages), "nodes", len(s.plan.Nodes))

	var res orchestrator.Result
	if opts.Once {
		res, err = o.Step(ctx)
	} else {
		res, err = o.Run(ctx)
	}
	if err != nil {
		return internal(err)
	}

	fmt.Fprint(stdout, ui.RenderResult(res, theme()))
	return exitWith(res.ExitCode())
}
