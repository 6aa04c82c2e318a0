package validation

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
)

// DefaultParallelism bounds concurrent node evaluations when none is set.
const DefaultParallelism = 8

// Engine evaluates bound checks across nodes.
type Engine struct {
	logger      logr.Logger
	parallelism int
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithParallelism bounds how many nodes are evaluated at once.
func WithParallelism(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.parallelism = n
		}
	}
}

// NewEngine creates a validation engine.
func NewEngine(logger logr.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		logger:      logger,
		parallelism: DefaultParallelism,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run evaluates every check on every node. Checks on one node run in order;
// nodes are evaluated concurrently. Reports are returned grouped by node in
// the order nodes were given, then by check order.
func (e *Engine) Run(ctx context.Context, checks []Bound, nodes []string, env Env) []Report {
	if len(checks) == 0 || len(nodes) == 0 {
		return nil
	}

	perNode := make([][]Report, len(nodes))
	g := new(errgroup.Group)
	g.SetLimit(e.parallelism)
	for i, node := range nodes {
		g.Go(func() error {
			perNode[i] = e.RunNode(ctx, checks, node, env)
			return nil
		})
	}
	_ = g.Wait()

	reports := make([]Report, 0, len(checks)*len(nodes))
	for _, rs := range perNode {
		reports = append(reports, rs...)
	}
	return reports
}

// RunNode evaluates checks on a single node, in order.
func (e *Engine) RunNode(ctx context.Context, checks []Bound, node string, env Env) []Report {
	reports := make([]Report, 0, len(checks))
	for _, b := range checks {
		r := e.runOne(ctx, b, node, env)
		if r.Passed {
			e.logger.V(1).Info("check passed", "check", r.CheckID, "node", node)
		} else {
			e.logger.V(1).Info("check failed", "check", r.CheckID, "node", node,
				"severity", r.Severity, "detail", r.Detail)
		}
		reports = append(reports, r)
	}
	return reports
}

func (e *Engine) runOne(ctx context.Context, b Bound, node string, env Env) (r Report) {
	defer func() {
		if p := recover(); p != nil {
			r = Report{Passed: false, Detail: fmt.Sprintf("check panicked: %v", p)}
			r = normalize(r, b, node)
		}
	}()

	if err := ctx.Err(); err != nil {
		return normalize(Report{Passed: false, Detail: fmt.Sprintf("not evaluated: %v", err)}, b, node)
	}
	return normalize(b.Check.Check(ctx, node, env), b, node)
}

// normalize stamps identity fields and resolves severity. A check that reports
// no severity is treated as Blocking.
func normalize(r Report, b Bound, node string) Report {
	r.CheckID = b.ID
	r.Node = node
	if b.Severity != "" {
		r.Severity = b.Severity
	}
	if r.Severity == "" {
		r.Severity = SeverityBlocking
	}
	return r
}
