package validation

import (
	"context"
	"fmt"
	"strings"
)

// Severity ranks how a failed check affects gating.
type Severity string

const (
	// SeverityInfo failures are informational only.
	SeverityInfo Severity = "Info"
	// SeverityWarning failures are surfaced to the operator but do not halt.
	SeverityWarning Severity = "Warning"
	// SeverityBlocking failures prevent the stage from proceeding.
	SeverityBlocking Severity = "Blocking"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityBlocking:
		return true
	}
	return false
}

// Report is the result of evaluating one check against one node.
type Report struct {
	CheckID  string   `json:"checkId"`
	Node     string   `json:"node"`
	Severity Severity `json:"severity"`
	Passed   bool     `json:"passed"`
	Detail   string   `json:"detail,omitempty"`

	// RebootRequired marks a failure that is expected to clear after the node
	// restarts, such as a feature whose installation is pending a reboot.
	RebootRequired bool `json:"rebootRequired,omitempty"`
}

func (r Report) String() string {
	status := "passed"
	if !r.Passed {
		status = "failed"
	}
	s := fmt.Sprintf("[%s] %s on %s %s", r.Severity, r.CheckID, r.Node, status)
	if r.Detail != "" {
		s += ": " + r.Detail
	}
	return s
}

// Env is the read-only context handed to every check.
type Env struct {
	// PlanID identifies the deployment plan being validated.
	PlanID string
	// Snapshot is the plan's configuration key-value map.
	Snapshot map[string]string
}

// Check evaluates one condition on a node. Implementations must not mutate
// the node or the environment.
type Check interface {
	Check(ctx context.Context, node string, env Env) Report
}

// CheckFunc adapts a function to the Check interface.
type CheckFunc func(ctx context.Context, node string, env Env) Report

// Check implements Check.
func (f CheckFunc) Check(ctx context.Context, node string, env Env) Report {
	return f(ctx, node, env)
}

// CheckFactory builds a Check from its plan parameters.
type CheckFactory func(params map[string]string) (Check, error)

// Bound is a check resolved from a plan reference.
type Bound struct {
	// ID names the check in reports.
	ID string
	// Severity overrides the severity the check reports, if set.
	Severity Severity
	Check    Check
}

// Verdict is the gating decision derived from a set of reports.
type Verdict struct {
	Reports  []Report
	Blocking []Report
	Warnings []Report
}

// Evaluate splits failed reports by severity.
func Evaluate(reports []Report) Verdict {
	v := Verdict{Reports: reports}
	for _, r := range reports {
		if r.Passed {
			continue
		}
		switch r.Severity {
		case SeverityBlocking:
			v.Blocking = append(v.Blocking, r)
		case SeverityWarning:
			v.Warnings = append(v.Warnings, r)
		}
	}
	return v
}

// Proceed reports whether no Blocking check failed.
func (v Verdict) Proceed() bool {
	return len(v.Blocking) == 0
}

// Summary describes the blocking failures in one line.
func (v Verdict) Summary() string {
	if v.Proceed() {
		return "all blocking checks passed"
	}
	parts := make([]string, 0, len(v.Blocking))
	for _, r := range v.Blocking {
		part := r.CheckID + " on " + r.Node
		if r.Detail != "" {
			part += " (" + r.Detail + ")"
		}
		parts = append(parts, part)
	}
	return "blocking checks failed: " + strings.Join(parts, "; ")
}

// Nodes returns the distinct nodes with a blocking failure, in report order.
func (v Verdict) Nodes() []string {
	seen := make(map[string]bool)
	var nodes []string
	for _, r := range v.Blocking {
		if !seen[r.Node] {
			seen[r.Node] = true
			nodes = append(nodes, r.Node)
		}
	}
	return nodes
}

// AllPassed reports whether every report passed, regardless of severity.
// It is false for an empty slice.
func AllPassed(reports []Report) bool {
	if len(reports) == 0 {
		return false
	}
	for _, r := range reports {
		if !r.Passed {
			return false
		}
	}
	return true
}
