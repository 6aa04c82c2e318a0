package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/stagehand/internal/events"
	"github.com/imamik/stagehand/internal/plan"
	"github.com/imamik/stagehand/internal/state"
	"github.com/imamik/stagehand/internal/validation"
)

func TestRunCompletesPlan(t *testing.T) {
	t.Parallel()

	install, configure := succeed(), succeed()
	p := testPlan([]string{"n1", "n2"}, stg("install", install), stg("configure", configure))
	store := newMemStore()
	o, mem := newOrchestrator(p, store)

	res, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, res.Status)
	assert.Equal(t, ExitCompleted, res.ExitCode())

	st := store.current("lab")
	assert.Equal(t, []string{"install", "configure"}, st.CompletedStageIDs)
	assert.Empty(t, st.CurrentStageID)
	assert.Equal(t, state.StatusCompleted, st.Status)
	assert.Equal(t, 3, store.saveCount(), "creation plus one save per stage")
	assert.Equal(t, 2, install.total())
	assert.Equal(t, 2, configure.total())

	evs := mem.Events()
	require.Len(t, evs, 3)
	assert.Equal(t, events.Event{
		Timestamp: clock, PlanID: "lab", RunID: "run-1",
		From: state.StatusNotStarted, To: state.StatusRunning, StageID: "install",
	}, evs[0])
	assert.Equal(t, state.StatusRunning, evs[1].To)
	assert.Equal(t, "install", evs[1].StageID)
	assert.Equal(t, "configure", evs[1].NextStageID)
	assert.Equal(t, map[string]state.Outcome{"n1": state.OutcomeSuccess, "n2": state.OutcomeSuccess}, evs[1].Nodes)
	assert.Equal(t, state.StatusCompleted, evs[2].To)
}

func TestResumeNeverRerunsCompletedStages(t *testing.T) {
	t.Parallel()

	s1, s2, s3 := succeed(), succeed(), succeed()
	p := testPlan([]string{"n1", "n2"}, stg("s1", s1), stg("s2", s2), stg("s3", s3))

	store := newMemStore()
	seed := state.New("lab", p.Nodes, p.Config, clock)
	seed.MarkCompleted("s1")
	seed.MarkCompleted("s2")
	seed.CurrentStageID = "s3"
	seed.Status = state.StatusRunning
	store.seed(seed)

	o, _ := newOrchestrator(p, store)
	res, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, res.Status)
	assert.Zero(t, s1.total())
	assert.Zero(t, s2.total())
	assert.Equal(t, 2, s3.total())
}

func TestRerunOfCompletedPlanDoesNothing(t *testing.T) {
	t.Parallel()

	op := succeed()
	p := testPlan([]string{"n1"}, stg("s1", op))
	store := newMemStore()

	o, _ := newOrchestrator(p, store)
	_, err := o.Run(context.Background())
	require.NoError(t, err)
	saves := store.saveCount()

	o, mem := newOrchestrator(p, store)
	res, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, res.Status)
	assert.Equal(t, 1, op.total())
	assert.Equal(t, saves, store.saveCount())
	assert.Empty(t, mem.Events())
}

func TestAllMustSucceedFailureHalts(t *testing.T) {
	t.Parallel()

	join, after := failOn("b"), succeed()
	p := testPlan([]string{"a", "b", "c"}, stg("join", join), stg("after", after))
	store := newMemStore()
	o, _ := newOrchestrator(p, store)

	res, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, state.StatusHalted, res.Status)
	assert.Equal(t, ExitHalted, res.ExitCode())
	assert.Equal(t, "join", res.StageID)
	assert.Equal(t, []string{"b"}, res.Nodes)
	assert.Contains(t, res.Reason, "b failed")
	assert.NotEmpty(t, res.Action)

	st := store.current("lab")
	assert.NotContains(t, st.CompletedStageIDs, "join")
	assert.Equal(t, "join", st.CurrentStageID)
	assert.Zero(t, after.total())

	latest, ok := st.Latest("join", "b")
	require.True(t, ok)
	assert.Equal(t, state.OutcomeFailed, latest.Outcome)
	assert.Equal(t, "exit status 1", latest.ErrorDetail)
}

func TestHaltedStageRetriesOnlyFailedNodes(t *testing.T) {
	t.Parallel()

	var fixed atomic.Bool
	join := newOp(func(node string, _ int) (plan.Result, error) {
		if node == "b" && !fixed.Load() {
			return plan.Result{}, errors.New("port 6443 in use")
		}
		return plan.Result{Success: true}, nil
	})
	p := testPlan([]string{"a", "b"}, stg("join", join))
	store := newMemStore()

	o, _ := newOrchestrator(p, store)
	res, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, state.StatusHalted, res.Status)

	fixed.Store(true)
	o, mem := newOrchestrator(p, store)
	res, err = o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, res.Status)
	assert.Equal(t, 1, join.count("a"))
	assert.Equal(t, 2, join.count("b"))
	assert.Equal(t, state.StatusHalted, mem.Events()[0].From)

	attempts := store.current("lab").Attempts("join", "b")
	require.Len(t, attempts, 2)
	assert.Equal(t, 1, attempts[0].Attempt)
	assert.Equal(t, 2, attempts[1].Attempt)
}

func TestBestEffortAlwaysAdvances(t *testing.T) {
	t.Parallel()

	report := failOn("a", "b", "c")
	p := testPlan([]string{"a", "b", "c"}, stg("report", report, barrier(plan.BestEffort)), stg("next", succeed()))
	store := newMemStore()
	o, _ := newOrchestrator(p, store)

	res, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, res.Status)
	assert.Contains(t, store.current("lab").CompletedStageIDs, "report")
}

func TestMajorityMarksFailedNodesForRemediation(t *testing.T) {
	t.Parallel()

	next := succeed()
	p := testPlan([]string{"a", "b", "c"},
		stg("storage", failOn("c"), barrier(plan.MajorityMustSucceed)),
		stg("cluster", next))
	store := newMemStore()
	o, _ := newOrchestrator(p, store)

	res, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, res.Status)
	assert.Equal(t, 1, next.count("a"))
	assert.Equal(t, 1, next.count("b"))
	assert.Zero(t, next.count("c"), "nodes awaiting remediation skip later stages")

	st := store.current("lab")
	require.Contains(t, st.Remediation, "c")
	assert.Equal(t, "storage", st.Remediation["c"].StageID)

	st, err = o.ResolveNode(context.Background(), "c")
	require.NoError(t, err)
	assert.NotContains(t, st.Remediation, "c")
	assert.NotContains(t, store.current("lab").Remediation, "c")

	_, err = o.ResolveNode(context.Background(), "c")
	assert.ErrorContains(t, err, "not awaiting remediation")
}

func TestMajorityNotReachedHalts(t *testing.T) {
	t.Parallel()

	p := testPlan([]string{"a", "b"}, stg("storage", failOn("b"), barrier(plan.MajorityMustSucceed)))
	o, _ := newOrchestrator(p, newMemStore())

	res, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, state.StatusHalted, res.Status)
	assert.Contains(t, res.Reason, "majority not reached (1/2 succeeded)")
}

func TestRebootPauseAndResume(t *testing.T) {
	t.Parallel()

	install := newOp(func(node string, _ int) (plan.Result, error) {
		return plan.Result{Success: true, RebootRequired: node == "a"}, nil
	})
	var rebooted atomic.Bool
	// b never needs a reboot, so its role is present right away.
	verified := checkFunc("role-present", validation.SeverityBlocking, func(node string) bool {
		return node == "b" || rebooted.Load()
	})
	p := testPlan([]string{"a", "b"},
		stg("install", install, func(s *plan.Stage) { s.PostConditions = []validation.Bound{verified} }),
		stg("cluster", succeed()))
	store := newMemStore()

	o, _ := newOrchestrator(p, store)
	res, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, state.StatusPausedForReboot, res.Status)
	assert.Equal(t, ExitPaused, res.ExitCode())
	assert.Equal(t, []string{"a"}, res.Nodes)

	st := store.current("lab")
	assert.Equal(t, "install", st.CurrentStageID)
	assert.NotContains(t, st.CompletedStageIDs, "install")

	rebooted.Store(true)
	o, _ = newOrchestrator(p, store)
	res, err = o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, res.Status)
	assert.Equal(t, 1, install.count("a"), "reboot-pending node is verified, not re-applied")
	assert.Equal(t, 1, install.count("b"), "successful node is not re-run")

	latest, _ := store.current("lab").Latest("install", "a")
	assert.Equal(t, state.OutcomeSuccess, latest.Outcome)
	assert.Equal(t, "verified after reboot", latest.Detail)
}

func TestResumeRerunsPreValidationOnPendingNodes(t *testing.T) {
	t.Parallel()

	install := newOp(func(node string, _ int) (plan.Result, error) {
		return plan.Result{Success: true, RebootRequired: node == "a"}, nil
	})
	var (
		mu        sync.Mutex
		checked   []string
		mediaGone atomic.Bool
	)
	media := checkFunc("install-media", validation.SeverityBlocking, func(node string) bool {
		mu.Lock()
		checked = append(checked, node)
		mu.Unlock()
		return !mediaGone.Load()
	})
	p := testPlan([]string{"a", "b"},
		stg("install", install, func(s *plan.Stage) { s.Validation = []validation.Bound{media} }),
		stg("cluster", succeed()))
	store := newMemStore()

	o, _ := newOrchestrator(p, store)
	res, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, state.StatusPausedForReboot, res.Status)
	assert.ElementsMatch(t, []string{"a", "b"}, checked)

	mu.Lock()
	checked = nil
	mu.Unlock()
	mediaGone.Store(true)

	o, _ = newOrchestrator(p, store)
	res, err = o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, state.StatusHalted, res.Status)
	assert.Equal(t, "install", res.StageID)
	assert.Equal(t, []string{"a"}, res.Nodes)
	assert.Contains(t, res.Reason, "install-media on a")
	assert.Equal(t, []string{"a"}, checked, "only the node still pending is re-validated")
	assert.Equal(t, 1, install.count("a"))
	assert.Equal(t, 1, install.count("b"))

	st := store.current("lab")
	assert.Equal(t, "install", st.CurrentStageID)
	assert.NotContains(t, st.CompletedStageIDs, "install")
}

func TestCancellationDuringPreValidationAborts(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	op := succeed()
	gate := checkFunc("disk-space", validation.SeverityBlocking, func(string) bool {
		cancel()
		return false
	})
	p := testPlan([]string{"a"}, stg("install", op, func(s *plan.Stage) {
		s.Validation = []validation.Bound{gate}
	}))
	store := newMemStore()
	o, _ := newOrchestrator(p, store)

	res, err := o.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, state.StatusHalted, res.Status)
	assert.Equal(t, "aborted by operator", res.Reason)
	assert.Equal(t, ExitHalted, res.ExitCode())
	assert.Zero(t, op.total())
	assert.Equal(t, state.StatusHalted, store.current("lab").Status)
}

func TestBlockingValidationPreventsExecution(t *testing.T) {
	t.Parallel()

	op := succeed()
	gate := checkFunc("disk-space", validation.SeverityBlocking, func(node string) bool { return node != "b" })
	warn := checkFunc("ntp", validation.SeverityWarning, func(string) bool { return false })
	p := testPlan([]string{"a", "b"}, stg("install", op, func(s *plan.Stage) {
		s.Validation = []validation.Bound{warn, gate}
	}))
	store := newMemStore()
	o, mem := newOrchestrator(p, store)

	res, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, state.StatusHalted, res.Status)
	assert.Equal(t, []string{"b"}, res.Nodes)
	assert.Contains(t, res.Reason, "disk-space on b")
	assert.Zero(t, op.total())
	assert.Equal(t, 1, store.saveCount(), "only the initial state is saved")
	assert.Equal(t, state.StatusNotStarted, store.current("lab").Status)
	assert.Equal(t, state.StatusHalted, mem.Events()[len(mem.Events())-1].To)
}

func TestWarningValidationDoesNotHalt(t *testing.T) {
	t.Parallel()

	op := succeed()
	warn := checkFunc("ntp", validation.SeverityWarning, func(string) bool { return false })
	info := checkFunc("banner", validation.SeverityInfo, func(string) bool { return false })
	p := testPlan([]string{"a"}, stg("install", op, func(s *plan.Stage) {
		s.Validation = []validation.Bound{warn, info}
	}))
	o, _ := newOrchestrator(p, newMemStore())

	res, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, res.Status)
	assert.Equal(t, 1, op.total())
}

func TestScenarioInstallRoleThenCreateCluster(t *testing.T) {
	t.Parallel()

	var rebooted atomic.Bool
	installRole := succeed()
	createCluster := failOn("node2")
	roleInstalled := checkFunc("role-installed", validation.SeverityBlocking, func(string) bool { return rebooted.Load() })

	p := testPlan([]string{"node1", "node2"},
		stg("InstallRole", installRole, func(s *plan.Stage) {
			s.RequiresReboot = true
			s.SkipWhen = []validation.Bound{roleInstalled}
		}),
		stg("CreateCluster", createCluster, barrier(plan.AllMustSucceed)))
	store := newMemStore()

	o, _ := newOrchestrator(p, store)
	res, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, state.StatusPausedForReboot, res.Status)
	assert.Equal(t, "InstallRole", res.StageID)
	assert.ElementsMatch(t, []string{"node1", "node2"}, res.Nodes)

	rebooted.Store(true)
	o, _ = newOrchestrator(p, store)
	res, err = o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, state.StatusHalted, res.Status)
	assert.Equal(t, "CreateCluster", res.StageID)
	assert.Contains(t, res.Reason, "node2 failed")

	st := store.current("lab")
	assert.Equal(t, []string{"InstallRole"}, st.CompletedStageIDs)
	assert.Equal(t, 1, installRole.count("node1"))
	assert.Equal(t, 1, installRole.count("node2"))

	history := st.Attempts("InstallRole", "node1")
	require.Len(t, history, 2)
	assert.Equal(t, state.OutcomeRebootPending, history[0].Outcome)
	assert.Equal(t, state.OutcomeSkipped, history[1].Outcome)
}

func TestSaveFailureIsFatal(t *testing.T) {
	t.Parallel()

	first, second := succeed(), succeed()
	p := testPlan([]string{"a"}, stg("first", first), stg("second", second))
	store := newMemStore()
	store.seed(state.New("lab", p.Nodes, p.Config, clock))
	store.setFailSave(errors.New("read-only file system"))

	o, _ := newOrchestrator(p, store)
	_, err := o.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Contains(t, err.Error(), "read-only file system")
	assert.Equal(t, 1, first.total())
	assert.Zero(t, second.total(), "no stage runs after an unsaved completion")
	assert.Empty(t, store.current("lab").CompletedStageIDs)
}

func TestInitialSaveFailureIsFatal(t *testing.T) {
	t.Parallel()

	op := succeed()
	store := newMemStore()
	store.setFailSave(errors.New("permission denied"))

	o, _ := newOrchestrator(testPlan([]string{"a"}, stg("s1", op)), store)
	_, err := o.Run(context.Background())
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Zero(t, op.total())
}

func TestUnreadableStateIsInternalError(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.loadErr = fmt.Errorf("%w: unexpected EOF", state.ErrCorrupt)
	o, _ := newOrchestrator(testPlan([]string{"a"}, stg("s1", succeed())), store)

	_, err := o.Run(context.Background())
	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, state.ErrCorrupt)
}

func TestNodeSetDriftIsRejected(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.seed(state.New("lab", []string{"a", "b"}, nil, clock))

	o, _ := newOrchestrator(testPlan([]string{"a", "b", "c"}, stg("s1", succeed())), store)
	_, err := o.Run(context.Background())
	assert.ErrorIs(t, err, ErrStateMismatch)
	assert.Contains(t, err.Error(), "added [c]")
}

func TestRemoveNodeKeepsHistoryAndAllowsShrunkPlan(t *testing.T) {
	t.Parallel()

	p := testPlan([]string{"a", "b"}, stg("s1", failOn("b")))
	store := newMemStore()
	o, _ := newOrchestrator(p, store)
	_, err := o.Run(context.Background())
	require.NoError(t, err)

	_, err = o.RemoveNode(context.Background(), "b", "")
	assert.ErrorContains(t, err, "reason is required")
	_, err = o.RemoveNode(context.Background(), "zz", "typo")
	assert.ErrorContains(t, err, "not in the node set")

	st, err := o.RemoveNode(context.Background(), "b", "hardware fault")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, st.NodeSet)
	assert.Len(t, st.Attempts("s1", "b"), 1)

	// The plan may keep listing b, or drop it.
	for _, nodes := range [][]string{{"a", "b"}, {"a"}} {
		o, _ := newOrchestrator(testPlan(nodes, stg("s1", succeed())), store)
		res, err := o.Step(context.Background())
		require.NoError(t, err)
		assert.Equal(t, state.StatusCompleted, res.Status)
	}
}

func TestUnknownStageInState(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	seed := state.New("lab", []string{"a"}, nil, clock)
	seed.MarkCompleted("ghost")
	store.seed(seed)

	o, _ := newOrchestrator(testPlan([]string{"a"}, stg("s1", succeed())), store)
	_, err := o.Run(context.Background())
	assert.ErrorIs(t, err, ErrUnknownStage)
}

func TestResumeHintMustMatch(t *testing.T) {
	t.Parallel()

	p := testPlan([]string{"a"}, stg("s1", succeed()), stg("s2", succeed()))
	store := newMemStore()
	seed := state.New("lab", p.Nodes, nil, clock)
	seed.MarkCompleted("s1")
	store.seed(seed)

	o, _ := newOrchestrator(p, store, WithResumeHint("s1"))
	_, err := o.Run(context.Background())
	assert.ErrorIs(t, err, ErrResumeHint)

	o, _ = newOrchestrator(p, store, WithResumeHint("s2"))
	res, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, res.Status)
}

func TestCancellationHonoredBetweenStages(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := newOp(func(string, int) (plan.Result, error) {
		cancel()
		return plan.Result{Success: true}, nil
	})
	second := succeed()
	p := testPlan([]string{"a", "b"}, stg("first", first), stg("second", second))
	store := newMemStore()
	o, _ := newOrchestrator(p, store)

	res, err := o.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, state.StatusHalted, res.Status)
	assert.Equal(t, "aborted by operator", res.Reason)
	assert.Equal(t, "second", res.StageID)
	assert.Zero(t, second.total())

	st := store.current("lab")
	assert.Equal(t, []string{"first"}, st.CompletedStageIDs, "the running stage finishes and is recorded")
	assert.Equal(t, state.StatusHalted, st.Status)
}

func TestStepExecutesOneStage(t *testing.T) {
	t.Parallel()

	second := succeed()
	p := testPlan([]string{"a"}, stg("first", succeed()), stg("second", second))
	store := newMemStore()

	o, _ := newOrchestrator(p, store)
	res, err := o.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, state.StatusRunning, res.Status)
	assert.Equal(t, ExitCompleted, res.ExitCode())
	assert.Zero(t, second.total())
	assert.Equal(t, "second", store.current("lab").CurrentStageID)

	res, err = o.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, res.Status)
}

func TestNoEligibleNodesHalts(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	seed := state.New("lab", []string{"a"}, nil, clock)
	seed.MarkRemediation("a", state.Remediation{StageID: "earlier"})
	store.seed(seed)

	o, _ := newOrchestrator(testPlan([]string{"a"}, stg("s1", succeed())), store)
	res, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, state.StatusHalted, res.Status)
	assert.Equal(t, "no eligible nodes", res.Reason)
	assert.Equal(t, []string{"a"}, res.Nodes)
}

func TestSinkFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	sink := events.SinkFunc(func(context.Context, events.Event) error { return errors.New("journal locked") })
	o, _ := newOrchestrator(testPlan([]string{"a"}, stg("s1", succeed())), newMemStore(), WithSink(sink))

	res, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, res.Status)
}

func TestValidateIsDry(t *testing.T) {
	t.Parallel()

	op := succeed()
	gate := checkFunc("disk-space", validation.SeverityBlocking, func(node string) bool { return node == "a" })
	p := testPlan([]string{"a", "b"}, stg("install", op, func(s *plan.Stage) {
		s.Validation = []validation.Bound{gate}
	}))
	store := newMemStore()
	o, _ := newOrchestrator(p, store)

	preview, err := o.Validate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "install", preview.StageID)
	assert.Equal(t, []string{"a", "b"}, preview.Nodes)
	assert.False(t, preview.Verdict.Proceed())
	assert.Zero(t, op.total())
	assert.Zero(t, store.saveCount())
}

func TestResultExitCodes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, Result{Status: state.StatusCompleted}.ExitCode())
	assert.Equal(t, 1, Result{Status: state.StatusHalted}.ExitCode())
	assert.Equal(t, 2, Result{Status: state.StatusPausedForReboot}.ExitCode())
	assert.Equal(t, 3, Result{}.ExitCode())
}
