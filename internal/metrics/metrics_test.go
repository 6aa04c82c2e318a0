package metrics

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/stagehand/internal/events"
	"github.com/imamik/stagehand/internal/state"
)

var t0 = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

func emitAll(t *testing.T, r *Recorder, evs ...events.Event) {
	t.Helper()
	for _, e := range evs {
		require.NoError(t, r.Emit(context.Background(), e))
	}
}

func TestRecorderCountsTransitionsAndOutcomes(t *testing.T) {
	t.Parallel()

	r := NewRecorder()
	emitAll(t, r,
		events.Event{Timestamp: t0, PlanID: "lab", From: state.StatusNotStarted, To: state.StatusRunning, StageID: "install"},
		events.Event{Timestamp: t0.Add(30 * time.Second), PlanID: "lab", From: state.StatusRunning, To: state.StatusRunning,
			StageID: "install", NextStageID: "cluster",
			Nodes: map[string]state.Outcome{"n1": state.OutcomeSuccess, "n2": state.OutcomeSkipped}},
		events.Event{Timestamp: t0.Add(90 * time.Second), PlanID: "lab", From: state.StatusRunning, To: state.StatusHalted,
			StageID: "cluster", Reason: "n2 failed",
			Nodes: map[string]state.Outcome{"n1": state.OutcomeSuccess, "n2": state.OutcomeFailed}},
	)

	assert.Equal(t, float64(2), testutil.ToFloat64(r.transitions.WithLabelValues("lab", "Running")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.transitions.WithLabelValues("lab", "Halted")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.nodeOutcomes.WithLabelValues("lab", "install", "Success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.nodeOutcomes.WithLabelValues("lab", "install", "Skipped")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.nodeOutcomes.WithLabelValues("lab", "cluster", "Failed")))

	assert.Equal(t, float64(1), testutil.ToFloat64(r.status.WithLabelValues("lab", "Halted")))
	assert.Equal(t, float64(0), testutil.ToFloat64(r.status.WithLabelValues("lab", "Running")))
	assert.Equal(t, float64(t0.Add(90*time.Second).Unix()), testutil.ToFloat64(r.lastChange.WithLabelValues("lab")))

	assert.Equal(t, 2, testutil.CollectAndCount(r.stageDuration))
}

func TestWriteTextfile(t *testing.T) {
	t.Parallel()

	r := NewRecorder()
	emitAll(t, r, events.Event{Timestamp: t0, PlanID: "lab", From: state.StatusRunning, To: state.StatusCompleted})

	path := filepath.Join(t.TempDir(), "stagehand.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `stagehand_orchestrator_transitions_total{plan="lab",to="Completed"} 1`)
}
