// Package metrics exports orchestrator activity as Prometheus metrics.
//
// A Recorder is an events.Sink with its own registry. The CLI writes the
// registry in text exposition format after a run so node_exporter's textfile
// collector can pick it up.
package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/imamik/stagehand/internal/events"
	"github.com/imamik/stagehand/internal/state"
)

var statuses = []state.Status{
	state.StatusNotStarted,
	state.StatusRunning,
	state.StatusPausedForReboot,
	state.StatusHalted,
	state.StatusCompleted,
}

// Recorder turns transition events into metrics.
type Recorder struct {
	registry *prometheus.Registry

	transitions   *prometheus.CounterVec
	nodeOutcomes  *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	status        *prometheus.GaugeVec
	lastChange    *prometheus.GaugeVec

	mu       sync.Mutex
	lastSeen map[string]time.Time
}

// NewRecorder creates a Recorder with a fresh registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		lastSeen: make(map[string]time.Time),

		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "stagehand",
				Subsystem: "orchestrator",
				Name:      "transitions_total",
				Help:      "Total number of state transitions by target state",
			},
			[]string{"plan", "to"},
		),
		nodeOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "stagehand",
				Subsystem: "stage",
				Name:      "node_outcomes_total",
				Help:      "Node results per stage attempt by outcome",
			},
			[]string{"plan", "stage", "outcome"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "stagehand",
				Subsystem: "stage",
				Name:      "attempt_duration_seconds",
				Help:      "Duration of a stage attempt in seconds",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~34min
			},
			[]string{"plan", "stage"},
		),
		status: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "stagehand",
				Subsystem: "orchestrator",
				Name:      "status",
				Help:      "1 for the plan's current state, 0 otherwise",
			},
			[]string{"plan", "status"},
		),
		lastChange: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "stagehand",
				Subsystem: "orchestrator",
				Name:      "last_transition_timestamp_seconds",
				Help:      "Unix time of the plan's most recent transition",
			},
			[]string{"plan"},
		),
	}
	r.registry.MustRegister(r.transitions, r.nodeOutcomes, r.stageDuration, r.status, r.lastChange)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Emit implements events.Sink.
func (r *Recorder) Emit(_ context.Context, e events.Event) error {
	r.transitions.WithLabelValues(e.PlanID, string(e.To)).Inc()
	for _, s := range statuses {
		v := 0.0
		if s == e.To {
			v = 1
		}
		r.status.WithLabelValues(e.PlanID, string(s)).Set(v)
	}
	r.lastChange.WithLabelValues(e.PlanID).Set(float64(e.Timestamp.Unix()))

	r.mu.Lock()
	prev, seen := r.lastSeen[e.PlanID]
	r.lastSeen[e.PlanID] = e.Timestamp
	r.mu.Unlock()

	// Decision events carry the per-node summary of the stage just attempted.
	if len(e.Nodes) == 0 {
		return nil
	}
	stage := e.StageID
	for _, node := range events.SortedNodes(e.Nodes) {
		r.nodeOutcomes.WithLabelValues(e.PlanID, stage, string(e.Nodes[node])).Inc()
	}
	if seen && !e.Timestamp.Before(prev) {
		r.stageDuration.WithLabelValues(e.PlanID, stage).Observe(e.Timestamp.Sub(prev).Seconds())
	}
	return nil
}

// WriteTextfile writes all metrics to path in text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
