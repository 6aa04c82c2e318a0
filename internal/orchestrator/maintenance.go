package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/imamik/stagehand/internal/state"
	"github.com/imamik/stagehand/internal/validation"
)

// Preview is the outcome of a dry pre-validation.
type Preview struct {
	// StageID is the stage the plan would run next; empty when complete.
	StageID string
	// Nodes are the nodes the stage would run on.
	Nodes   []string
	Verdict validation.Verdict
}

// Validate runs pre-validation for the stage the plan would resume at,
// without executing it or changing persisted state.
func (o *Orchestrator) Validate(ctx context.Context) (Preview, error) {
	st, err := o.store.Load(ctx, o.plan.ID)
	switch {
	case err == nil:
		if err := o.checkConsistency(st); err != nil {
			return Preview{}, err
		}
	case errors.Is(err, state.ErrNotFound):
		st = state.New(o.plan.ID, o.plan.Nodes, o.plan.Config, o.now().UTC())
	default:
		return Preview{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	resume, err := o.resumePoint(st)
	if err != nil || resume == "" {
		return Preview{}, err
	}
	stage, _ := o.plan.Stage(resume)
	_, pending := pendingNodes(st, resume, st.ActiveNodes())
	env := validation.Env{PlanID: st.PlanID, Snapshot: st.ConfigSnapshot}
	reports := o.engine.Run(ctx, stage.Validation, pending, env)
	return Preview{StageID: resume, Nodes: pending, Verdict: validation.Evaluate(reports)}, nil
}

// RemoveNode drops node from the persisted node set. Its results are kept
// for audit. The plan file may already omit the node.
func (o *Orchestrator) RemoveNode(ctx context.Context, node, reason string) (*state.DeploymentState, error) {
	if reason == "" {
		return nil, errors.New("a reason is required to remove a node")
	}
	st, err := o.loadExisting(ctx)
	if err != nil {
		return nil, err
	}
	if st.PlanID != o.plan.ID {
		return nil, fmt.Errorf("%w: state is for plan %q", ErrStateMismatch, st.PlanID)
	}

	next := st.Clone()
	now := o.now().UTC()
	if err := next.RemoveNode(node, reason, now); err != nil {
		return nil, err
	}
	if err := o.checkConsistency(next); err != nil {
		return nil, err
	}
	next.LastUpdatedAt = now
	if err := o.save(ctx, next); err != nil {
		return nil, err
	}
	o.logger.Info("removed node from node set", "node", node, "reason", reason, "remaining", len(next.NodeSet))
	return next, nil
}

// ResolveNode clears a remediation mark so node takes part in later stages.
func (o *Orchestrator) ResolveNode(ctx context.Context, node string) (*state.DeploymentState, error) {
	st, err := o.loadExisting(ctx)
	if err != nil {
		return nil, err
	}
	if err := o.checkConsistency(st); err != nil {
		return nil, err
	}

	next := st.Clone()
	mark := next.Remediation[node]
	if !next.ResolveRemediation(node) {
		return nil, fmt.Errorf("node %q is not awaiting remediation", node)
	}
	next.LastUpdatedAt = o.now().UTC()
	if err := o.save(ctx, next); err != nil {
		return nil, err
	}
	o.logger.Info("resolved remediation", "node", node, "stage", mark.StageID)
	return next, nil
}

func (o *Orchestrator) loadExisting(ctx context.Context) (*state.DeploymentState, error) {
	st, err := o.store.Load(ctx, o.plan.ID)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return nil, fmt.Errorf("no state for plan %q: %w", o.plan.ID, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return st, nil
}
