package plan

import (
	"context"
	"time"

	"github.com/imamik/stagehand/internal/validation"
)

// BarrierPolicy decides from per-node outcomes whether a stage is complete.
type BarrierPolicy string

const (
	// AllMustSucceed advances only if every node succeeded or was skipped.
	AllMustSucceed BarrierPolicy = "AllMustSucceed"
	// MajorityMustSucceed advances if more than half of the nodes succeeded.
	MajorityMustSucceed BarrierPolicy = "MajorityMustSucceed"
	// BestEffort always advances; failures are only recorded.
	BestEffort BarrierPolicy = "BestEffort"
)

// Valid reports whether b is a known policy.
func (b BarrierPolicy) Valid() bool {
	switch b {
	case AllMustSucceed, MajorityMustSucceed, BestEffort:
		return true
	}
	return false
}

// Result is what an operation reports after applying a stage to a node.
type Result struct {
	Success        bool
	RebootRequired bool
	Detail         string
}

// Operation performs one stage's work on one node. A returned error means the
// operation could not be carried out at all (transport failure, bad input);
// a Result with Success false means it ran and failed.
type Operation interface {
	Apply(ctx context.Context, node string, snapshot map[string]string) (Result, error)
}

// OperationFunc adapts a function to the Operation interface.
type OperationFunc func(ctx context.Context, node string, snapshot map[string]string) (Result, error)

// Apply implements Operation.
func (f OperationFunc) Apply(ctx context.Context, node string, snapshot map[string]string) (Result, error) {
	return f(ctx, node, snapshot)
}

// OperationFactory builds an Operation from its plan parameters.
type OperationFactory func(params map[string]string) (Operation, error)

// Stage is a compiled, immutable stage definition.
type Stage struct {
	ID             string
	Description    string
	RequiresReboot bool
	DependsOn      []string
	Barrier        BarrierPolicy

	// Validation gates stage entry.
	Validation []validation.Bound
	// PostConditions confirm the stage took effect on a node.
	PostConditions []validation.Bound
	// SkipWhen marks a node Skipped when every check passes.
	SkipWhen []validation.Bound

	OperationName string
	Operation     Operation

	// Idempotent stages may be retried automatically.
	Idempotent  bool
	MaxAttempts int
	RetryDelay  time.Duration
	NodeTimeout time.Duration
}

// Attempts returns how many times the executor may try the operation on a
// node within one invocation. Stages that are not idempotent get one try.
func (s Stage) Attempts() int {
	if !s.Idempotent || s.MaxAttempts < 1 {
		return 1
	}
	return s.MaxAttempts
}

// Plan is a compiled deployment plan.
type Plan struct {
	ID          string
	Description string
	Nodes       []string
	Config      map[string]string
	Stages      []Stage
}

// Stage returns the stage with the given id.
func (p *Plan) Stage(id string) (Stage, bool) {
	if i := p.Index(id); i >= 0 {
		return p.Stages[i], true
	}
	return Stage{}, false
}

// Index returns the position of the stage with the given id, or -1.
func (p *Plan) Index(id string) int {
	for i, s := range p.Stages {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// StageIDs returns stage ids in plan order.
func (p *Plan) StageIDs() []string {
	ids := make([]string, len(p.Stages))
	for i, s := range p.Stages {
		ids[i] = s.ID
	}
	return ids
}
