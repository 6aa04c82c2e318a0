package handlers

import (
	"context"
	"fmt"

	"github.com/imamik/stagehand/internal/orchestrator"
	"github.com/imamik/stagehand/internal/ui"
)

// Validate handles the validate command.
//
// It compiles the plan, which checks structure and every operation and check
// reference, then runs pre-validation of the stage the plan would resume at.
// Nothing is persisted. A blocking failure exits 1.
func Validate(ctx context.Context, opts Options) error {
	s, err := openSession(ctx, opts, readOnly, true)
	if err != nil {
		return internal(err)
	}
	defer s.close()

	fmt.Fprintf(stdout, "plan %s is valid: %d stages, %d nodes\n", s.plan.ID, len(s.plan.Stages), len(s.plan.Nodes))

	preview, err := s.orchestrator().Validate(ctx)
	if err != nil {
		return internal(err)
	}
	fmt.Fprint(stdout, ui.RenderPreview(preview, theme()))
	if !preview.Verdict.Proceed() {
		return exitWith(orchestrator.ExitHalted)
	}
	return nil
}
