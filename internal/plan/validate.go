package plan

import (
	"errors"
	"fmt"
	"strings"
)

// ValidateID checks that id can name the plan's state and lock files.
func ValidateID(id string) error {
	switch {
	case strings.TrimSpace(id) == "":
		return errors.New("plan id is required")
	case strings.ContainsAny(id, `/\ `):
		return fmt.Errorf("%q must not contain slashes or spaces", id)
	case strings.HasPrefix(id, "."):
		return fmt.Errorf("%q must not start with a dot", id)
	}
	return nil
}

// Validate checks the structure of a plan file: ids, node set, barrier
// policies and dependency ordering. Name resolution against a registry
// happens in Registry.Compile.
func (f *File) Validate() error {
	var errs []error

	if err := ValidateID(f.ID); err != nil {
		errs = append(errs, fmt.Errorf("id: %w", err))
	}

	if len(f.Nodes) == 0 {
		errs = append(errs, errors.New("nodes: at least one node is required"))
	}
	seenNode := make(map[string]bool, len(f.Nodes))
	for i, n := range f.Nodes {
		if strings.TrimSpace(n) == "" {
			errs = append(errs, fmt.Errorf("nodes[%d]: node name is empty", i))
			continue
		}
		if seenNode[n] {
			errs = append(errs, fmt.Errorf("nodes[%d]: duplicate node %q", i, n))
		}
		seenNode[n] = true
	}

	if len(f.Stages) == 0 {
		errs = append(errs, errors.New("stages: at least one stage is required"))
	}
	seenStage := make(map[string]bool, len(f.Stages))
	for i, s := range f.Stages {
		field := fmt.Sprintf("stages[%d]", i)
		if s.ID == "" {
			errs = append(errs, fmt.Errorf("%s.id: stage id is required", field))
		} else {
			field = fmt.Sprintf("stages[%s]", s.ID)
		}
		if s.ID != "" && seenStage[s.ID] {
			errs = append(errs, fmt.Errorf("%s.id: duplicate stage id", field))
		}

		for _, dep := range s.DependsOn {
			switch {
			case dep == s.ID:
				errs = append(errs, fmt.Errorf("%s.dependsOn: stage depends on itself", field))
			case !seenStage[dep]:
				errs = append(errs, fmt.Errorf("%s.dependsOn: %q must name an earlier stage", field, dep))
			}
		}

		if s.Barrier != "" && !s.Barrier.Valid() {
			errs = append(errs, fmt.Errorf("%s.barrier: unknown policy %q (want %s, %s or %s)",
				field, s.Barrier, AllMustSucceed, MajorityMustSucceed, BestEffort))
		}
		if s.Operation.Name == "" {
			errs = append(errs, fmt.Errorf("%s.operation.name: operation is required", field))
		}
		if s.Retry != nil {
			if s.Retry.MaxAttempts < 1 {
				errs = append(errs, fmt.Errorf("%s.retry.maxAttempts: must be at least 1", field))
			}
			if s.Retry.MaxAttempts > 1 && !s.Idempotent {
				errs = append(errs, fmt.Errorf("%s.retry: retries require idempotent: true", field))
			}
		}
		for _, group := range []struct {
			name string
			refs []CheckRef
		}{
			{"validation", s.Validation},
			{"postConditions", s.PostConditions},
			{"skipWhen", s.SkipWhen},
		} {
			for j, ref := range group.refs {
				if ref.Check == "" {
					errs = append(errs, fmt.Errorf("%s.%s[%d].check: check name is required", field, group.name, j))
				}
				if ref.Severity != "" && !ref.Severity.Valid() {
					errs = append(errs, fmt.Errorf("%s.%s[%d].severity: unknown severity %q", field, group.name, j, ref.Severity))
				}
			}
		}

		if s.ID != "" {
			seenStage[s.ID] = true
		}
	}

	return errors.Join(errs...)
}
