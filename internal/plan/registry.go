package plan

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/imamik/stagehand/internal/validation"
)

var (
	// ErrUnknownOperation is returned when a stage names an unregistered operation.
	ErrUnknownOperation = errors.New("unknown operation")
	// ErrUnknownCheck is returned when a stage names an unregistered check.
	ErrUnknownCheck = errors.New("unknown check")
)

// Defaults fill stage fields a plan file leaves unset.
type Defaults struct {
	NodeTimeout time.Duration
	RetryDelay  time.Duration
}

// DefaultDefaults returns the built-in stage defaults.
func DefaultDefaults() Defaults {
	return Defaults{
		NodeTimeout: 30 * time.Minute,
		RetryDelay:  2 * time.Second,
	}
}

// Registry maps operation and check names to factories.
type Registry struct {
	operations map[string]OperationFactory
	checks     map[string]validation.CheckFactory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		operations: make(map[string]OperationFactory),
		checks:     make(map[string]validation.CheckFactory),
	}
}

// RegisterOperation adds or replaces an operation factory.
func (r *Registry) RegisterOperation(name string, factory OperationFactory) {
	r.operations[name] = factory
}

// RegisterCheck adds or replaces a check factory.
func (r *Registry) RegisterCheck(name string, factory validation.CheckFactory) {
	r.checks[name] = factory
}

// Operations returns registered operation names, sorted.
func (r *Registry) Operations() []string {
	return sortedKeys(r.operations)
}

// Checks returns registered check names, sorted.
func (r *Registry) Checks() []string {
	return sortedKeys(r.checks)
}

// Compile validates f and resolves every operation and check reference.
func (r *Registry) Compile(f *File, defaults Defaults) (*Plan, error) {
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}

	p := &Plan{
		ID:          f.ID,
		Description: f.Description,
		Nodes:       slices.Clone(f.Nodes),
		Config:      make(map[string]string, len(f.Config)),
		Stages:      make([]Stage, 0, len(f.Stages)),
	}
	for k, v := range f.Config {
		p.Config[k] = v
	}

	var errs []error
	for _, spec := range f.Stages {
		stage, err := r.compileStage(spec, defaults)
		if err != nil {
			errs = append(errs, fmt.Errorf("stages[%s]: %w", spec.ID, err))
			continue
		}
		p.Stages = append(p.Stages, stage)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *Registry) compileStage(spec StageSpec, defaults Defaults) (Stage, error) {
	s := Stage{
		ID:             spec.ID,
		Description:    spec.Description,
		RequiresReboot: spec.RequiresReboot,
		DependsOn:      slices.Clone(spec.DependsOn),
		Barrier:        spec.Barrier,
		OperationName:  spec.Operation.Name,
		Idempotent:     spec.Idempotent,
		MaxAttempts:    1,
		RetryDelay:     defaults.RetryDelay,
		NodeTimeout:    spec.Timeout.Std(),
	}
	if s.Barrier == "" {
		s.Barrier = AllMustSucceed
	}
	if s.NodeTimeout == 0 {
		s.NodeTimeout = defaults.NodeTimeout
	}
	if spec.Retry != nil {
		s.MaxAttempts = spec.Retry.MaxAttempts
		if spec.Retry.InitialDelay > 0 {
			s.RetryDelay = spec.Retry.InitialDelay.Std()
		}
	}

	var errs []error

	factory, ok := r.operations[spec.Operation.Name]
	if !ok {
		errs = append(errs, fmt.Errorf("operation %q: %w", spec.Operation.Name, ErrUnknownOperation))
	} else {
		op, err := factory(spec.Operation.Params)
		if err != nil {
			errs = append(errs, fmt.Errorf("operation %q: %w", spec.Operation.Name, err))
		}
		s.Operation = op
	}

	var err error
	if s.Validation, err = r.bindChecks("validation", spec.Validation); err != nil {
		errs = append(errs, err)
	}
	if s.PostConditions, err = r.bindChecks("postConditions", spec.PostConditions); err != nil {
		errs = append(errs, err)
	}
	if s.SkipWhen, err = r.bindChecks("skipWhen", spec.SkipWhen); err != nil {
		errs = append(errs, err)
	}

	return s, errors.Join(errs...)
}

func (r *Registry) bindChecks(group string, refs []CheckRef) ([]validation.Bound, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	bound := make([]validation.Bound, 0, len(refs))
	var errs []error
	for i, ref := range refs {
		factory, ok := r.checks[ref.Check]
		if !ok {
			errs = append(errs, fmt.Errorf("%s[%d] %q: %w", group, i, ref.Check, ErrUnknownCheck))
			continue
		}
		check, err := factory(ref.Params)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s[%d] %q: %w", group, i, ref.Check, err))
			continue
		}
		bound = append(bound, validation.Bound{ID: ref.Check, Severity: ref.Severity, Check: check})
	}
	return bound, errors.Join(errs...)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
