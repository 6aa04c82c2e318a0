package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/imamik/stagehand/internal/events"
	"github.com/imamik/stagehand/internal/fleet"
	"github.com/imamik/stagehand/internal/plan"
	"github.com/imamik/stagehand/internal/state"
	"github.com/imamik/stagehand/internal/validation"
)

// StageRunner executes one stage across nodes.
type StageRunner interface {
	RunStage(ctx context.Context, req fleet.StageRequest) fleet.StageOutcome
}

// Orchestrator drives one plan against one state store.
type Orchestrator struct {
	plan   *plan.Plan
	store  state.Store
	engine *validation.Engine
	fleet  StageRunner

	sink      events.Sink
	logger    logr.Logger
	now       func() time.Time
	runID     string
	fromStage string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSink sets the transition event sink.
func WithSink(s events.Sink) Option {
	return func(o *Orchestrator) {
		if s != nil {
			o.sink = s
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logr.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithRunID sets the id stamped on emitted events. A random id is used
// otherwise.
func WithRunID(id string) Option {
	return func(o *Orchestrator) {
		o.runID = id
	}
}

// WithResumeHint requires the invocation to resume at stageID. It is a
// guard, not an override: a mismatch fails with ErrResumeHint.
func WithResumeHint(stageID string) Option {
	return func(o *Orchestrator) {
		o.fromStage = stageID
	}
}

// New creates an Orchestrator.
func New(p *plan.Plan, store state.Store, engine *validation.Engine, runner StageRunner, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		plan:   p,
		store:  store,
		engine: engine,
		fleet:  runner,
		sink:   events.Discard,
		logger: logr.Discard(),
		now:    time.Now,
		runID:  uuid.NewString(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.WithValues("plan", p.ID, "run", o.runID)
	return o
}

// RunID returns the id stamped on this orchestrator's events.
func (o *Orchestrator) RunID() string {
	return o.runID
}

// Run executes stages until the plan completes, pauses, or halts.
func (o *Orchestrator) Run(ctx context.Context) (Result, error) {
	return o.drive(ctx, false)
}

// Step executes at most one stage.
func (o *Orchestrator) Step(ctx context.Context) (Result, error) {
	return o.drive(ctx, true)
}

func (o *Orchestrator) drive(ctx context.Context, once bool) (Result, error) {
	st, err := o.loadOrCreate(ctx)
	if err != nil {
		return Result{}, err
	}

	resume, err := o.resumePoint(st)
	if err != nil {
		return Result{State: st}, err
	}
	if o.fromStage != "" && o.fromStage != resume {
		return Result{State: st}, fmt.Errorf("%w: requested %q, state resumes at %q", ErrResumeHint, o.fromStage, displayStage(resume))
	}
	if resume == "" {
		return o.complete(ctx, st)
	}

	o.logger.Info("resuming plan", "stage", resume, "status", st.Status, "completed", len(st.CompletedStageIDs))
	if !maps.Equal(st.ConfigSnapshot, o.plan.Config) {
		o.logger.Info("plan config differs from the snapshot taken at plan start; using the snapshot")
	}

	entering := true
	for i := o.plan.Index(resume); i < len(o.plan.Stages); i++ {
		stage := o.plan.Stages[i]
		if st.IsCompleted(stage.ID) {
			continue
		}

		if err := ctx.Err(); err != nil {
			return o.abort(ctx, st, stage.ID)
		}

		res, next, err := o.runStage(ctx, st, stage, entering)
		if err != nil {
			return Result{State: st}, err
		}
		st = next
		entering = false

		if res.Status != state.StatusRunning || once {
			res.State = st
			return res, nil
		}
	}
	return o.complete(ctx, st)
}

// runStage performs one stage attempt. It returns the state to continue with,
// which is only different from st if it was saved. entering marks the first
// stage of an invocation, whose start is a transition of its own.
func (o *Orchestrator) runStage(ctx context.Context, st *state.DeploymentState, stage plan.Stage, entering bool) (Result, *state.DeploymentState, error) {
	log := o.logger.WithValues("stage", stage.ID)
	if entering {
		o.emit(ctx, events.Event{From: st.Status, To: state.StatusRunning, StageID: stage.ID})
	}

	nodes := st.ActiveNodes()
	if len(nodes) == 0 {
		res := Result{Status: state.StatusHalted, StageID: stage.ID, Reason: "no eligible nodes", Action: actionNodes}
		if len(st.Remediation) > 0 {
			res.Nodes = slices.Sorted(maps.Keys(st.Remediation))
		}
		next, err := o.persistHalt(ctx, st, stage.ID, res.Reason)
		return res, next, err
	}

	history, pending := pendingNodes(st, stage.ID, nodes)

	env := validation.Env{PlanID: st.PlanID, Snapshot: st.ConfigSnapshot}
	reports := o.engine.Run(ctx, stage.Validation, pending, env)
	if ctx.Err() != nil {
		// Checks cut short by cancellation say nothing about the nodes.
		res, err := o.abort(ctx, st, stage.ID)
		return res, res.State, err
	}
	verdict := validation.Evaluate(reports)
	for _, w := range verdict.Warnings {
		log.Info("pre-validation warning", "check", w.CheckID, "node", w.Node, "detail", w.Detail)
	}
	if !verdict.Proceed() {
		res := Result{
			Status:  state.StatusHalted,
			StageID: stage.ID,
			Reason:  verdict.Summary(),
			Nodes:   verdict.Nodes(),
			Action:  actionFix,
		}
		log.Info("pre-validation blocked stage", "reason", res.Reason)
		o.emit(ctx, events.Event{From: state.StatusRunning, To: state.StatusHalted, StageID: stage.ID, Reason: res.Reason})
		return res, st, nil
	}

	out := o.fleet.RunStage(ctx, fleet.StageRequest{Stage: stage, Nodes: nodes, Env: env, History: history})

	next := st.Clone()
	for _, r := range out.Recorded {
		next.Record(r)
	}
	now := o.now().UTC()
	next.LastUpdatedAt = now

	var res Result
	switch {
	case out.PausedForReboot:
		next.CurrentStageID = stage.ID
		res = Result{
			Status:  state.StatusPausedForReboot,
			StageID: stage.ID,
			Reason:  "waiting for reboot of " + strings.Join(out.RebootNodes, ", "),
			Nodes:   out.RebootNodes,
			Action:  actionReboot,
		}
	case out.Advance:
		next.MarkCompleted(stage.ID)
		if stage.Barrier == plan.MajorityMustSucceed {
			for _, n := range out.FailedNodes {
				next.MarkRemediation(n, state.Remediation{StageID: stage.ID, Detail: failureOf(out, n), MarkedAt: now})
			}
		}
		res = Result{Status: state.StatusRunning, StageID: stage.ID, Nodes: out.FailedNodes}
		if nextStage := o.nextPending(next, stage.ID); nextStage != "" {
			next.CurrentStageID = nextStage
			res.Action = actionReinvoke
		} else {
			next.CurrentStageID = ""
			res.Status = state.StatusCompleted
		}
		if len(out.FailedNodes) > 0 {
			res.Reason = fmt.Sprintf("advanced with %d/%d nodes: %s", out.Succeeded, out.Total, out.FailureDetail())
		}
	default:
		next.CurrentStageID = stage.ID
		res = Result{
			Status:  state.StatusHalted,
			StageID: stage.ID,
			Reason:  haltReason(out),
			Nodes:   out.FailedNodes,
			Action:  actionFix,
		}
	}
	next.Status = res.Status
	next.StatusReason = res.Reason

	if err := o.save(ctx, next); err != nil {
		return Result{}, st, err
	}

	log.Info("stage decided", "status", res.Status, "advance", out.Advance, "reason", res.Reason)
	ev := events.Event{From: state.StatusRunning, To: res.Status, StageID: stage.ID, Reason: res.Reason, Nodes: out.Summary()}
	if res.Status == state.StatusRunning {
		ev.NextStageID = next.CurrentStageID
	}
	o.emit(ctx, ev)
	return res, next, nil
}

// pendingNodes returns the recorded history of stageID per node and the
// nodes whose latest result is not Success or Skipped.
func pendingNodes(st *state.DeploymentState, stageID string, nodes []string) (map[string][]state.NodeResult, []string) {
	history := make(map[string][]state.NodeResult, len(nodes))
	var pending []string
	for _, n := range nodes {
		rs := st.Attempts(stageID, n)
		history[n] = rs
		if len(rs) == 0 || !rs[len(rs)-1].Outcome.Succeeded() {
			pending = append(pending, n)
		}
	}
	return history, pending
}

func haltReason(out fleet.StageOutcome) string {
	detail := out.FailureDetail()
	if out.Policy == plan.MajorityMustSucceed {
		return fmt.Sprintf("majority not reached (%d/%d succeeded): %s", out.Succeeded, out.Total, detail)
	}
	return detail
}

func failureOf(out fleet.StageOutcome, node string) string {
	for _, r := range out.PerNode {
		if r.Node == node {
			return r.ErrorDetail
		}
	}
	return ""
}

// nextPending returns the first stage after stageID that is not completed.
func (o *Orchestrator) nextPending(st *state.DeploymentState, stageID string) string {
	for _, s := range o.plan.Stages[o.plan.Index(stageID)+1:] {
		if !st.IsCompleted(s.ID) {
			return s.ID
		}
	}
	return ""
}

func (o *Orchestrator) complete(ctx context.Context, st *state.DeploymentState) (Result, error) {
	res := Result{Status: state.StatusCompleted, State: st}
	if st.Status == state.StatusCompleted {
		o.logger.Info("plan already completed")
		return res, nil
	}
	next := st.Clone()
	next.Status = state.StatusCompleted
	next.StatusReason = ""
	next.CurrentStageID = ""
	next.LastUpdatedAt = o.now().UTC()
	if err := o.save(ctx, next); err != nil {
		return Result{State: st}, err
	}
	o.emit(ctx, events.Event{From: st.Status, To: state.StatusCompleted})
	res.State = next
	return res, nil
}

func (o *Orchestrator) abort(ctx context.Context, st *state.DeploymentState, stageID string) (Result, error) {
	const reason = "aborted by operator"
	o.logger.Info("cancellation requested, stopping before stage", "stage", stageID)
	res := Result{Status: state.StatusHalted, StageID: stageID, Reason: reason, Action: actionReinvoke}
	next, err := o.persistHalt(ctx, st, stageID, reason)
	res.State = next
	return res, err
}

func (o *Orchestrator) persistHalt(ctx context.Context, st *state.DeploymentState, stageID, reason string) (*state.DeploymentState, error) {
	next := st.Clone()
	next.Status = state.StatusHalted
	next.StatusReason = reason
	next.CurrentStageID = stageID
	next.LastUpdatedAt = o.now().UTC()
	if err := o.save(ctx, next); err != nil {
		return st, err
	}
	o.emit(ctx, events.Event{From: st.Status, To: state.StatusHalted, StageID: stageID, Reason: reason})
	return next, nil
}

// save persists st even after cancellation: recorded results must never be
// dropped on abort.
func (o *Orchestrator) save(ctx context.Context, st *state.DeploymentState) error {
	if err := o.store.Save(context.WithoutCancel(ctx), st); err != nil {
		o.logger.Error(err, "failed to persist state")
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}

func (o *Orchestrator) emit(ctx context.Context, e events.Event) {
	e.Timestamp = o.now().UTC()
	e.PlanID = o.plan.ID
	e.RunID = o.runID
	if err := o.sink.Emit(context.WithoutCancel(ctx), e); err != nil {
		o.logger.Error(err, "event sink failed", "to", e.To, "stage", e.StageID)
	}
}

func displayStage(id string) string {
	if id == "" {
		return "(completed)"
	}
	return id
}

// loadOrCreate loads the plan's state, creating and saving it on first use.
func (o *Orchestrator) loadOrCreate(ctx context.Context) (*state.DeploymentState, error) {
	st, err := o.store.Load(ctx, o.plan.ID)
	switch {
	case err == nil:
		if err := o.checkConsistency(st); err != nil {
			return nil, err
		}
		return st, nil
	case errors.Is(err, state.ErrNotFound):
	default:
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	now := o.now().UTC()
	st = state.New(o.plan.ID, o.plan.Nodes, o.plan.Config, now)
	if err := o.save(ctx, st); err != nil {
		return nil, err
	}
	o.logger.Info("created deployment state", "nodes", len(st.NodeSet), "stages", len(o.plan.Stages))
	return st, nil
}

// checkConsistency verifies a loaded state belongs to the plan.
func (o *Orchestrator) checkConsistency(st *state.DeploymentState) error {
	if st.PlanID != o.plan.ID {
		return fmt.Errorf("%w: state is for plan %q", ErrStateMismatch, st.PlanID)
	}

	expected := make([]string, 0, len(o.plan.Nodes))
	for _, n := range o.plan.Nodes {
		if !st.Removed(n) {
			expected = append(expected, n)
		}
	}
	if !slices.Equal(expected, st.NodeSet) {
		added, missing := diff(expected, st.NodeSet)
		return fmt.Errorf("%w: node set changed (added %v, missing %v); use 'nodes remove' to drop a node",
			ErrStateMismatch, added, missing)
	}

	for _, id := range st.CompletedStageIDs {
		if o.plan.Index(id) < 0 {
			return fmt.Errorf("%w: completed stage %q", ErrUnknownStage, id)
		}
	}
	if st.CurrentStageID != "" && o.plan.Index(st.CurrentStageID) < 0 {
		return fmt.Errorf("%w: current stage %q", ErrUnknownStage, st.CurrentStageID)
	}
	return nil
}

func diff(want, have []string) (added, missing []string) {
	for _, n := range want {
		if !slices.Contains(have, n) {
			added = append(added, n)
		}
	}
	for _, n := range have {
		if !slices.Contains(want, n) {
			missing = append(missing, n)
		}
	}
	return added, missing
}

// resumePoint returns the first stage not yet completed, or "" when every
// stage is. The stage's dependencies must all be complete.
func (o *Orchestrator) resumePoint(st *state.DeploymentState) (string, error) {
	for _, s := range o.plan.Stages {
		if st.IsCompleted(s.ID) {
			continue
		}
		for _, dep := range s.DependsOn {
			if !st.IsCompleted(dep) {
				return "", fmt.Errorf("%w: stage %q depends on %q, which is not completed", ErrStateMismatch, s.ID, dep)
			}
		}
		if st.CurrentStageID != "" && st.CurrentStageID != s.ID {
			o.logger.Info("recorded current stage differs from resume point", "recorded", st.CurrentStageID, "resume", s.ID)
		}
		return s.ID, nil
	}
	return "", nil
}
