package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/imamik/stagehand/internal/plan"
	"github.com/imamik/stagehand/internal/state"
	"github.com/imamik/stagehand/internal/util/retry"
	"github.com/imamik/stagehand/internal/validation"
)

// Request describes one stage execution on one node.
type Request struct {
	Stage plan.Stage
	Node  string
	Env   validation.Env

	// Previous is the latest recorded result for this stage and node, if any.
	Previous *state.NodeResult

	// Attempt is the number recorded on the first result of this execution.
	Attempt int
}

// Execution holds every attempt made for a Request, in order.
type Execution struct {
	Attempts []state.NodeResult
}

// Final returns the result that counts for the barrier.
func (e Execution) Final() state.NodeResult {
	if len(e.Attempts) == 0 {
		return state.NodeResult{}
	}
	return e.Attempts[len(e.Attempts)-1]
}

// Executor applies stages to nodes.
type Executor struct {
	engine *validation.Engine
	logger logr.Logger
	now    func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

// WithClock replaces time.Now for result timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		e.now = now
	}
}

// New creates an Executor that evaluates checks with engine.
func New(engine *validation.Engine, logger logr.Logger, opts ...Option) *Executor {
	e := &Executor{engine: engine, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// errAttemptFailed signals a retryable failure to retry.Do.
var errAttemptFailed = errors.New("attempt failed")

// Execute runs req and returns every attempt made.
func (e *Executor) Execute(ctx context.Context, req Request) Execution {
	log := e.logger.WithValues("stage", req.Stage.ID, "node", req.Node)
	if req.Attempt < 1 {
		req.Attempt = 1
	}

	if err := ctx.Err(); err != nil {
		return single(e.interrupted(req, err))
	}

	if len(req.Stage.SkipWhen) > 0 {
		reports := e.engine.RunNode(ctx, req.Stage.SkipWhen, req.Node, req.Env)
		if validation.AllPassed(reports) {
			log.Info("stage already satisfied, skipping")
			return single(e.result(req, state.OutcomeSkipped, "already satisfied"))
		}
	}

	if req.Previous != nil && req.Previous.Outcome == state.OutcomeRebootPending {
		if r, decided := e.resumeAfterReboot(ctx, req); decided {
			log.Info("resumed after reboot", "outcome", r.Outcome)
			return single(r)
		}
	}

	var exec Execution
	attempts := req.Stage.Attempts()
	_, _ = retry.Do(ctx, func(n int) error {
		r := e.apply(ctx, req)
		r.Attempt = req.Attempt + n - 1
		exec.Attempts = append(exec.Attempts, r)
		if r.Outcome != state.OutcomeFailed {
			return nil
		}
		if r.FailureKind == state.FailureTimeout || r.FailureKind == state.FailureCancelled {
			return retry.Fatal(errAttemptFailed)
		}
		if n < attempts {
			log.Info("attempt failed, retrying", "attempt", r.Attempt, "detail", r.ErrorDetail)
		}
		return errAttemptFailed
	},
		retry.WithMaxAttempts(attempts),
		retry.WithInitialDelay(req.Stage.RetryDelay),
		retry.WithMaxDelay(max(req.Stage.RetryDelay*8, req.Stage.RetryDelay)),
	)

	final := exec.Final()
	if final.Outcome == state.OutcomeFailed && final.FailureKind == state.FailureOperation &&
		errors.Is(ctx.Err(), context.DeadlineExceeded) {
		final.FailureKind = state.FailureTimeout
	}
	if final.Outcome == state.OutcomeFailed && len(exec.Attempts) > 1 {
		final.ErrorDetail = fmt.Sprintf("failed after %d attempts: %s", len(exec.Attempts), final.ErrorDetail)
	}
	exec.Attempts[len(exec.Attempts)-1] = final
	if final.Outcome == state.OutcomeFailed {
		log.Info("stage failed on node", "kind", final.FailureKind, "detail", final.ErrorDetail)
	} else {
		log.Info("stage applied", "outcome", final.Outcome)
	}
	return exec
}

// resumeAfterReboot decides the result for a node that was RebootPending.
// It returns false when the operation must be applied again.
func (e *Executor) resumeAfterReboot(ctx context.Context, req Request) (state.NodeResult, bool) {
	if len(req.Stage.PostConditions) > 0 {
		return e.verify(ctx, req, "verified after reboot"), true
	}
	if len(req.Stage.SkipWhen) == 0 {
		return e.result(req, state.OutcomeSuccess, "reboot acknowledged"), true
	}
	return state.NodeResult{}, false
}

// apply runs the operation once and classifies it.
func (e *Executor) apply(ctx context.Context, req Request) state.NodeResult {
	if req.Stage.Operation == nil {
		return e.failed(req, state.FailureOperation, fmt.Sprintf("stage %s has no operation bound", req.Stage.ID))
	}

	res, err := safeApply(ctx, req.Stage.Operation, req.Node, req.Env.Snapshot)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return e.interrupted(req, ctxErr)
	}
	if err != nil {
		return e.failed(req, state.FailureOperation, err.Error())
	}
	if !res.Success {
		detail := res.Detail
		if detail == "" {
			detail = "operation reported failure"
		}
		return e.failed(req, state.FailureOperation, detail)
	}
	if res.RebootRequired || req.Stage.RequiresReboot {
		detail := res.Detail
		if detail == "" {
			detail = "reboot required"
		}
		return e.result(req, state.OutcomeRebootPending, detail)
	}
	if len(req.Stage.PostConditions) == 0 {
		return e.result(req, state.OutcomeSuccess, res.Detail)
	}
	return e.verify(ctx, req, res.Detail)
}

// verify evaluates post-conditions. Blocking failures that all carry the
// reboot flag yield RebootPending; any other blocking failure is Failed.
func (e *Executor) verify(ctx context.Context, req Request, successDetail string) state.NodeResult {
	reports := e.engine.RunNode(ctx, req.Stage.PostConditions, req.Node, req.Env)
	verdict := validation.Evaluate(reports)
	for _, w := range verdict.Warnings {
		e.logger.Info("post-condition warning", "stage", req.Stage.ID, "node", req.Node,
			"check", w.CheckID, "detail", w.Detail)
	}
	if verdict.Proceed() {
		return e.result(req, state.OutcomeSuccess, successDetail)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return e.interrupted(req, ctxErr)
	}
	rebootOnly := true
	for _, r := range verdict.Blocking {
		if !r.RebootRequired {
			rebootOnly = false
			break
		}
	}
	if rebootOnly {
		return e.result(req, state.OutcomeRebootPending, verdict.Summary())
	}
	return e.failed(req, state.FailureValidation, "post-condition "+verdict.Summary())
}

func single(r state.NodeResult) Execution {
	return Execution{Attempts: []state.NodeResult{r}}
}

func (e *Executor) result(req Request, outcome state.Outcome, detail string) state.NodeResult {
	return state.NodeResult{
		Node:      req.Node,
		StageID:   req.Stage.ID,
		Outcome:   outcome,
		Attempt:   req.Attempt,
		Timestamp: e.now().UTC(),
		Detail:    detail,
	}
}

func (e *Executor) failed(req Request, kind state.FailureKind, detail string) state.NodeResult {
	r := e.result(req, state.OutcomeFailed, "")
	r.FailureKind = kind
	r.ErrorDetail = detail
	return r
}

func (e *Executor) interrupted(req Request, err error) state.NodeResult {
	if errors.Is(err, context.DeadlineExceeded) {
		return e.failed(req, state.FailureTimeout, fmt.Sprintf("timed out after %s", req.Stage.NodeTimeout))
	}
	return e.failed(req, state.FailureCancelled, "cancelled: "+err.Error())
}

func safeApply(ctx context.Context, op plan.Operation, node string, snapshot map[string]string) (res plan.Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("operation panicked: %v", p)
		}
	}()
	return op.Apply(ctx, node, snapshot)
}
