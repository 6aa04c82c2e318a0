package plan

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/stagehand/internal/validation"
)

const samplePlan = `
id: hyperv-cluster
description: Two node failover cluster
nodes: [hv1, hv2]
config:
  domain: corp.local
stages:
  - id: install-role
    requiresReboot: true
    barrier: AllMustSucceed
    validation:
      - check: tcp-port
        severity: Warning
        params: {port: "22"}
    skipWhen:
      - check: command
        params: {command: "test -f /etc/role"}
    operation:
      name: command
      params: {command: "install-role"}
    timeout: 20m
  - id: create-cluster
    dependsOn: [install-role]
    operation: {name: noop}
    idempotent: true
    retry:
      maxAttempts: 3
      initialDelay: 5s
`

func TestParse_Sample(t *testing.T) {
	t.Parallel()
	f, err := Parse([]byte(samplePlan))
	require.NoError(t, err)

	assert.Equal(t, "hyperv-cluster", f.ID)
	assert.Equal(t, []string{"hv1", "hv2"}, f.Nodes)
	assert.Equal(t, "corp.local", f.Config["domain"])
	require.Len(t, f.Stages, 2)

	install := f.Stages[0]
	assert.True(t, install.RequiresReboot)
	assert.Equal(t, AllMustSucceed, install.Barrier)
	assert.Equal(t, 20*time.Minute, install.Timeout.Std())
	require.Len(t, install.Validation, 1)
	assert.Equal(t, validation.SeverityWarning, install.Validation[0].Severity)
	assert.Equal(t, "22", install.Validation[0].Params["port"])
	assert.Equal(t, "command", install.Operation.Name)

	cluster := f.Stages[1]
	assert.Equal(t, []string{"install-role"}, cluster.DependsOn)
	require.NotNil(t, cluster.Retry)
	assert.Equal(t, 3, cluster.Retry.MaxAttempts)
	assert.Equal(t, 5*time.Second, cluster.Retry.InitialDelay.Std())

	assert.NoError(t, f.Validate())
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"empty", "", "plan file is empty"},
		{"unknown field", "id: x\nbogus: 1\n", "field bogus not found"},
		{"bad duration", "id: x\nstages:\n  - id: a\n    timeout: soon\n", "invalid duration"},
		{"numeric duration", "id: x\nstages:\n  - id: a\n    timeout: 5\n", "duration"},
		{"negative duration", "id: x\nstages:\n  - id: a\n    timeout: -5s\n", "must not be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), DefaultFilename)
	require.NoError(t, os.WriteFile(path, []byte(samplePlan), 0o600))

	f, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hyperv-cluster", f.ID)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read plan file")
}

func TestDuration_MarshalYAML(t *testing.T) {
	t.Parallel()
	v, err := Duration(90 * time.Second).MarshalYAML()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", v)
}
