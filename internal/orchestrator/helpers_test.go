package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/imamik/stagehand/internal/events"
	"github.com/imamik/stagehand/internal/executor"
	"github.com/imamik/stagehand/internal/fleet"
	"github.com/imamik/stagehand/internal/plan"
	"github.com/imamik/stagehand/internal/state"
	"github.com/imamik/stagehand/internal/validation"
)

var clock = time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

// memStore round-trips state through its JSON encoding so callers never
// share memory with the stored copy.
type memStore struct {
	mu       sync.Mutex
	docs     map[string][]byte
	saves    int
	failSave error
	loadErr  error
}

func newMemStore() *memStore {
	return &memStore{docs: make(map[string][]byte)}
}

func (m *memStore) Load(_ context.Context, planID string) (*state.DeploymentState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	data, ok := m.docs[planID]
	if !ok {
		return nil, state.ErrNotFound
	}
	return state.Unmarshal(data)
}

func (m *memStore) Save(_ context.Context, st *state.DeploymentState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave != nil {
		return m.failSave
	}
	data, err := state.Marshal(st)
	if err != nil {
		return err
	}
	m.docs[st.PlanID] = data
	m.saves++
	return nil
}

func (m *memStore) Delete(_ context.Context, planID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, planID)
	return nil
}

func (m *memStore) setFailSave(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failSave = err
}

func (m *memStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// seed stores st directly.
func (m *memStore) seed(st *state.DeploymentState) {
	data, err := state.Marshal(st)
	if err != nil {
		panic(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[st.PlanID] = data
}

func (m *memStore) current(planID string) *state.DeploymentState {
	st, err := m.Load(context.Background(), planID)
	if err != nil {
		panic(err)
	}
	return st
}

// scriptedOp answers each call with fn(node, call) and counts calls per node.
type scriptedOp struct {
	mu    sync.Mutex
	calls map[string]int
	fn    func(node string, call int) (plan.Result, error)
}

func newOp(fn func(node string, call int) (plan.Result, error)) *scriptedOp {
	return &scriptedOp{calls: make(map[string]int), fn: fn}
}

func succeed() *scriptedOp {
	return newOp(func(string, int) (plan.Result, error) { return plan.Result{Success: true}, nil })
}

func failOn(nodes ...string) *scriptedOp {
	return newOp(func(node string, _ int) (plan.Result, error) {
		for _, n := range nodes {
			if n == node {
				return plan.Result{Detail: "exit status 1"}, nil
			}
		}
		return plan.Result{Success: true}, nil
	})
}

func (s *scriptedOp) Apply(_ context.Context, node string, _ map[string]string) (plan.Result, error) {
	s.mu.Lock()
	s.calls[node]++
	call := s.calls[node]
	s.mu.Unlock()
	return s.fn(node, call)
}

func (s *scriptedOp) count(node string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[node]
}

func (s *scriptedOp) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

func stg(id string, op plan.Operation, mods ...func(*plan.Stage)) plan.Stage {
	s := plan.Stage{
		ID:          id,
		Barrier:     plan.AllMustSucceed,
		Operation:   op,
		NodeTimeout: time.Second,
	}
	for _, m := range mods {
		m(&s)
	}
	return s
}

func barrier(b plan.BarrierPolicy) func(*plan.Stage) {
	return func(s *plan.Stage) { s.Barrier = b }
}

func checkFunc(id string, sev validation.Severity, fn func(node string) bool) validation.Bound {
	return validation.Bound{
		ID:       id,
		Severity: sev,
		Check: validation.CheckFunc(func(_ context.Context, node string, _ validation.Env) validation.Report {
			return validation.Report{Passed: fn(node), Detail: id + " on " + node}
		}),
	}
}

func testPlan(nodes []string, stages ...plan.Stage) *plan.Plan {
	deps := []string{}
	for i := range stages {
		if i > 0 && stages[i].DependsOn == nil {
			stages[i].DependsOn = append(deps[:0:0], deps...)
		}
		deps = append(deps, stages[i].ID)
	}
	return &plan.Plan{ID: "lab", Nodes: nodes, Config: map[string]string{"domain": "lab.local"}, Stages: stages}
}

func newOrchestrator(p *plan.Plan, store state.Store, opts ...Option) (*Orchestrator, *events.Memory) {
	engine := validation.NewEngine(logr.Discard())
	exec := executor.New(engine, logr.Discard(), executor.WithClock(func() time.Time { return clock }))
	mem := &events.Memory{}
	base := []Option{WithSink(mem), WithClock(func() time.Time { return clock }), WithRunID("run-1")}
	return New(p, store, engine, fleet.NewCoordinator(exec, logr.Discard()), append(base, opts...)...), mem
}
