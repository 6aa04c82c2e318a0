package state

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"
)

// SchemaVersion is written into every saved state.
const SchemaVersion = 1

// Outcome classifies one attempt of one stage on one node.
type Outcome string

const (
	// OutcomeSuccess means the operation completed and post-conditions passed.
	OutcomeSuccess Outcome = "Success"
	// OutcomeFailed means the operation or its post-conditions failed.
	OutcomeFailed Outcome = "Failed"
	// OutcomeRebootPending means the node must restart before it is consistent.
	OutcomeRebootPending Outcome = "RebootPending"
	// OutcomeSkipped means the stage was already satisfied on the node.
	OutcomeSkipped Outcome = "Skipped"
)

// Succeeded reports whether the outcome counts as success for barriers.
func (o Outcome) Succeeded() bool {
	return o == OutcomeSuccess || o == OutcomeSkipped
}

// FailureKind tags why a node failed.
type FailureKind string

const (
	FailureOperation  FailureKind = "operation"
	FailureValidation FailureKind = "validation"
	FailureTimeout    FailureKind = "timeout"
	FailureCancelled  FailureKind = "cancelled"
)

// Status is the orchestrator's last recorded state for the plan.
type Status string

const (
	StatusNotStarted      Status = "NotStarted"
	StatusRunning         Status = "Running"
	StatusPausedForReboot Status = "PausedForReboot"
	StatusHalted          Status = "Halted"
	StatusCompleted       Status = "Completed"
)

// NodeResult is one recorded attempt. It is never modified after it is written.
type NodeResult struct {
	Node        string      `json:"node"`
	StageID     string      `json:"stageId"`
	Outcome     Outcome     `json:"outcome"`
	Attempt     int         `json:"attempt"`
	Timestamp   time.Time   `json:"timestamp"`
	ErrorDetail string      `json:"errorDetail,omitempty"`
	FailureKind FailureKind `json:"failureKind,omitempty"`
	Detail      string      `json:"detail,omitempty"`
}

// Removal records an explicit removal of a node from the node set.
type Removal struct {
	Node   string    `json:"node"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// Remediation marks a node that failed a stage the plan advanced past.
type Remediation struct {
	StageID  string    `json:"stageId"`
	Detail   string    `json:"detail,omitempty"`
	MarkedAt time.Time `json:"markedAt"`
}

// DeploymentState is the persisted progress of one plan instance.
type DeploymentState struct {
	Version           int       `json:"version"`
	PlanID            string    `json:"planId"`
	CreatedAt         time.Time `json:"createdAt"`
	LastUpdatedAt     time.Time `json:"lastUpdatedAt"`
	CompletedStageIDs []string  `json:"completedStageIds"`
	CurrentStageID    string    `json:"currentStageId,omitempty"`
	NodeSet           []string  `json:"nodeSet"`

	// Results maps stage id to node to attempts, ordered by attempt.
	Results        map[string]map[string][]NodeResult `json:"perNodeStageResults"`
	ConfigSnapshot map[string]string                  `json:"configSnapshot"`

	Status       Status                 `json:"status"`
	StatusReason string                 `json:"statusReason,omitempty"`
	Remediation  map[string]Remediation `json:"remediation,omitempty"`
	RemovedNodes []Removal              `json:"removedNodes,omitempty"`
}

// New creates the initial state for a plan.
func New(planID string, nodes []string, snapshot map[string]string, now time.Time) *DeploymentState {
	return &DeploymentState{
		Version:           SchemaVersion,
		PlanID:            planID,
		CreatedAt:         now,
		LastUpdatedAt:     now,
		CompletedStageIDs: []string{},
		NodeSet:           slices.Clone(nodes),
		Results:           make(map[string]map[string][]NodeResult),
		ConfigSnapshot:    maps.Clone(snapshot),
		Status:            StatusNotStarted,
	}
}

// Clone returns a deep copy.
func (s *DeploymentState) Clone() *DeploymentState {
	c := *s
	c.CompletedStageIDs = slices.Clone(s.CompletedStageIDs)
	c.NodeSet = slices.Clone(s.NodeSet)
	c.ConfigSnapshot = maps.Clone(s.ConfigSnapshot)
	c.RemovedNodes = slices.Clone(s.RemovedNodes)
	c.Remediation = maps.Clone(s.Remediation)
	c.Results = make(map[string]map[string][]NodeResult, len(s.Results))
	for stage, nodes := range s.Results {
		m := make(map[string][]NodeResult, len(nodes))
		for node, rs := range nodes {
			m[node] = slices.Clone(rs)
		}
		c.Results[stage] = m
	}
	return &c
}

// IsCompleted reports whether stageID is in CompletedStageIDs.
func (s *DeploymentState) IsCompleted(stageID string) bool {
	return slices.Contains(s.CompletedStageIDs, stageID)
}

// MarkCompleted appends stageID to CompletedStageIDs if absent.
func (s *DeploymentState) MarkCompleted(stageID string) {
	if !s.IsCompleted(stageID) {
		s.CompletedStageIDs = append(s.CompletedStageIDs, stageID)
	}
}

// HasNode reports whether node is in the node set.
func (s *DeploymentState) HasNode(node string) bool {
	return slices.Contains(s.NodeSet, node)
}

// Record appends a result to the history of its stage and node.
func (s *DeploymentState) Record(r NodeResult) {
	if s.Results == nil {
		s.Results = make(map[string]map[string][]NodeResult)
	}
	nodes, ok := s.Results[r.StageID]
	if !ok {
		nodes = make(map[string][]NodeResult)
		s.Results[r.StageID] = nodes
	}
	nodes[r.Node] = append(nodes[r.Node], r)
}

// Attempts returns all recorded attempts of stageID on node.
func (s *DeploymentState) Attempts(stageID, node string) []NodeResult {
	return s.Results[stageID][node]
}

// Latest returns the most recent result of stageID on node.
func (s *DeploymentState) Latest(stageID, node string) (NodeResult, bool) {
	rs := s.Results[stageID][node]
	if len(rs) == 0 {
		return NodeResult{}, false
	}
	return rs[len(rs)-1], true
}

// ActiveNodes returns nodes in the node set that are not awaiting remediation,
// in node set order.
func (s *DeploymentState) ActiveNodes() []string {
	nodes := make([]string, 0, len(s.NodeSet))
	for _, n := range s.NodeSet {
		if _, marked := s.Remediation[n]; !marked {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

// MarkRemediation excludes node from later stages until it is resolved.
func (s *DeploymentState) MarkRemediation(node string, r Remediation) {
	if s.Remediation == nil {
		s.Remediation = make(map[string]Remediation)
	}
	s.Remediation[node] = r
}

// ResolveRemediation clears a remediation mark. It reports whether one existed.
func (s *DeploymentState) ResolveRemediation(node string) bool {
	if _, ok := s.Remediation[node]; !ok {
		return false
	}
	delete(s.Remediation, node)
	return true
}

// RemoveNode drops node from the node set and records why. Recorded results
// for the node are kept.
func (s *DeploymentState) RemoveNode(node, reason string, now time.Time) error {
	i := slices.Index(s.NodeSet, node)
	if i < 0 {
		return fmt.Errorf("node %q is not in the node set", node)
	}
	s.NodeSet = slices.Delete(s.NodeSet, i, i+1)
	delete(s.Remediation, node)
	s.RemovedNodes = append(s.RemovedNodes, Removal{Node: node, Reason: reason, At: now})
	return nil
}

// Removed reports whether node was explicitly removed.
func (s *DeploymentState) Removed(node string) bool {
	for _, r := range s.RemovedNodes {
		if r.Node == node {
			return true
		}
	}
	return false
}

// Validate checks structural invariants of a loaded state.
func (s *DeploymentState) Validate() error {
	if s.PlanID == "" {
		return fmt.Errorf("%w: missing planId", ErrCorrupt)
	}
	if s.Version != SchemaVersion {
		return fmt.Errorf("%w: unsupported schema version %d", ErrCorrupt, s.Version)
	}
	seen := make(map[string]bool, len(s.CompletedStageIDs))
	for _, id := range s.CompletedStageIDs {
		if seen[id] {
			return fmt.Errorf("%w: stage %q completed twice", ErrCorrupt, id)
		}
		seen[id] = true
	}
	for stage, nodes := range s.Results {
		for node, rs := range nodes {
			for i, r := range rs {
				if r.StageID != stage || r.Node != node {
					return fmt.Errorf("%w: result %d for %s/%s is filed under the wrong key", ErrCorrupt, i, stage, node)
				}
				if i > 0 && r.Attempt < rs[i-1].Attempt {
					return fmt.Errorf("%w: results for %s/%s are not ordered by attempt", ErrCorrupt, stage, node)
				}
			}
		}
	}
	return nil
}

// Marshal encodes the state as indented JSON.
func Marshal(s *DeploymentState) ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode state: %w", err)
	}
	return append(data, '\n'), nil
}

// Unmarshal decodes and validates a state document.
func Unmarshal(data []byte) (*DeploymentState, error) {
	var s DeploymentState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if s.Results == nil {
		s.Results = make(map[string]map[string][]NodeResult)
	}
	if s.CompletedStageIDs == nil {
		s.CompletedStageIDs = []string{}
	}
	return &s, nil
}
