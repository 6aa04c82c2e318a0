// Package events defines the transition events the orchestrator emits and
// the sinks that consume them.
package events

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/imamik/stagehand/internal/state"
)

// Event is one orchestrator state transition.
type Event struct {
	Timestamp time.Time                `json:"timestamp"`
	PlanID    string                   `json:"planId"`
	RunID     string                   `json:"runId"`
	From      state.Status             `json:"fromState"`
	To        state.Status             `json:"toState"`
	StageID   string                   `json:"stageId,omitempty"`
	Reason    string                   `json:"reason,omitempty"`
	Nodes     map[string]state.Outcome `json:"perNodeSummary,omitempty"`

	// NextStageID is set on Running -> Running transitions.
	NextStageID string `json:"nextStageId,omitempty"`
}

// Sink consumes events. Emit errors are reported but never stop a run.
type Sink interface {
	Emit(ctx context.Context, e Event) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, e Event) error

// Emit implements Sink.
func (f SinkFunc) Emit(ctx context.Context, e Event) error {
	return f(ctx, e)
}

// Multi fans an event out to every sink and joins their errors.
type Multi []Sink

// Emit implements Sink.
func (m Multi) Emit(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Emit(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
var Discard Sink = SinkFunc(func(context.Context, Event) error { return nil })

// LogSink writes events as structured log lines.
type LogSink struct {
	Logger logr.Logger
}

// Emit implements Sink.
func (s LogSink) Emit(_ context.Context, e Event) error {
	kv := []any{"plan", e.PlanID, "run", e.RunID, "from", e.From, "to", e.To}
	if e.StageID != "" {
		kv = append(kv, "stage", e.StageID)
	}
	if e.NextStageID != "" {
		kv = append(kv, "next", e.NextStageID)
	}
	if e.Reason != "" {
		kv = append(kv, "reason", e.Reason)
	}
	for _, node := range SortedNodes(e.Nodes) {
		kv = append(kv, "node."+node, string(e.Nodes[node]))
	}
	s.Logger.Info("state transition", kv...)
	return nil
}

// Memory keeps events in order. It is safe for concurrent use.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements Sink.
func (m *Memory) Emit(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

// Events returns a copy of the recorded events.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// SortedNodes returns the node names of a summary in lexical order.
func SortedNodes(summary map[string]state.Outcome) []string {
	nodes := make([]string, 0, len(summary))
	for n := range summary {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)
	return nodes
}
