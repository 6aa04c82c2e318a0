package fleet

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/imamik/stagehand/internal/executor"
	"github.com/imamik/stagehand/internal/plan"
	"github.com/imamik/stagehand/internal/state"
	"github.com/imamik/stagehand/internal/util/async"
	"github.com/imamik/stagehand/internal/validation"
)

// NodeExecutor runs one stage on one node.
type NodeExecutor interface {
	Execute(ctx context.Context, req executor.Request) executor.Execution
}

// StageRequest describes one attempt of a stage across the fleet.
type StageRequest struct {
	Stage plan.Stage
	// Nodes are the eligible nodes, in node set order.
	Nodes []string
	Env   validation.Env
	// History holds previously recorded results for this stage, per node.
	History map[string][]state.NodeResult
}

// StageOutcome is the joined result of one stage attempt.
type StageOutcome struct {
	StageID string
	Policy  plan.BarrierPolicy

	// PerNode holds the final result of every eligible node, in node
	// order. Nodes that already succeeded carry their earlier result.
	PerNode []state.NodeResult
	// Recorded holds every new attempt made in this run, to be appended to
	// the state history.
	Recorded []state.NodeResult
	// Carried lists nodes whose earlier Success or Skipped result was reused.
	Carried []string

	Advance         bool
	PausedForReboot bool
	Succeeded       int
	Total           int

	RebootNodes []string
	FailedNodes []string
}

// Summary maps each node to its final outcome.
func (o StageOutcome) Summary() map[string]state.Outcome {
	m := make(map[string]state.Outcome, len(o.PerNode))
	for _, r := range o.PerNode {
		m[r.Node] = r.Outcome
	}
	return m
}

// FailureDetail describes failed nodes, e.g. "node2 failed: exit 1".
func (o StageOutcome) FailureDetail() string {
	var detail string
	for _, r := range o.PerNode {
		if r.Outcome != state.OutcomeFailed {
			continue
		}
		if detail != "" {
			detail += "; "
		}
		detail += r.Node + " failed"
		if r.ErrorDetail != "" {
			detail += ": " + r.ErrorDetail
		}
	}
	return detail
}

// Coordinator dispatches stages to nodes.
type Coordinator struct {
	exec   NodeExecutor
	logger logr.Logger
	now    func() time.Time
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(exec NodeExecutor, logger logr.Logger) *Coordinator {
	return &Coordinator{exec: exec, logger: logger, now: time.Now}
}

// RunStage executes req.Stage on every eligible node that has not already
// succeeded and applies the barrier policy to the combined results.
func (c *Coordinator) RunStage(ctx context.Context, req StageRequest) StageOutcome {
	out := StageOutcome{StageID: req.Stage.ID, Policy: req.Stage.Barrier}

	type pending struct {
		node     string
		previous *state.NodeResult
		attempt  int
	}
	var toRun []pending
	final := make(map[string]state.NodeResult, len(req.Nodes))
	for _, node := range req.Nodes {
		history := req.History[node]
		if len(history) == 0 {
			toRun = append(toRun, pending{node: node, attempt: 1})
			continue
		}
		last := history[len(history)-1]
		if last.Outcome.Succeeded() {
			final[node] = last
			out.Carried = append(out.Carried, node)
			continue
		}
		toRun = append(toRun, pending{node: node, previous: &last, attempt: last.Attempt + 1})
	}

	c.logger.Info("dispatching stage", "stage", req.Stage.ID, "nodes", len(toRun), "carried", len(out.Carried),
		"barrier", req.Stage.Barrier)

	detached := context.WithoutCancel(ctx)
	tasks := make([]async.Task[executor.Execution], len(toRun))
	for i, p := range toRun {
		execReq := executor.Request{
			Stage:    req.Stage,
			Node:     p.node,
			Env:      req.Env,
			Previous: p.previous,
			Attempt:  p.attempt,
		}
		tasks[i] = async.Task[executor.Execution]{
			Name:    p.node,
			Timeout: req.Stage.NodeTimeout,
			Func: func(ctx context.Context) executor.Execution {
				return c.exec.Execute(ctx, execReq)
			},
			OnTimeout: func(error) executor.Execution {
				return executor.Execution{Attempts: []state.NodeResult{{
					Node:        p.node,
					StageID:     req.Stage.ID,
					Outcome:     state.OutcomeFailed,
					Attempt:     p.attempt,
					Timestamp:   c.now().UTC(),
					ErrorDetail: fmt.Sprintf("no result within %s", req.Stage.NodeTimeout),
					FailureKind: state.FailureTimeout,
				}}}
			},
		}
	}

	for _, exec := range async.Gather(detached, tasks) {
		out.Recorded = append(out.Recorded, exec.Attempts...)
		r := exec.Final()
		final[r.Node] = r
	}

	for _, node := range req.Nodes {
		r := final[node]
		out.PerNode = append(out.PerNode, r)
		switch r.Outcome {
		case state.OutcomeRebootPending:
			out.RebootNodes = append(out.RebootNodes, node)
		case state.OutcomeFailed:
			out.FailedNodes = append(out.FailedNodes, node)
		}
	}

	d := Decide(req.Stage.Barrier, out.PerNode)
	out.Advance = d.Advance
	out.PausedForReboot = d.PausedForReboot
	out.Succeeded = d.Succeeded
	out.Total = d.Total

	c.logger.Info("stage joined", "stage", req.Stage.ID, "advance", out.Advance,
		"pausedForReboot", out.PausedForReboot, "succeeded", out.Succeeded, "total", out.Total,
		"failed", out.FailedNodes, "reboot", out.RebootNodes)
	return out
}
