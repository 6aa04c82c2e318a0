package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validFile() *File {
	return &File{
		ID:    "p",
		Nodes: []string{"a", "b"},
		Stages: []StageSpec{
			{ID: "one", Operation: OperationRef{Name: "noop"}},
			{ID: "two", DependsOn: []string{"one"}, Operation: OperationRef{Name: "noop"}},
		},
	}
}

func TestFile_Validate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(f *File)
		wantErr string
	}{
		{"valid", func(*File) {}, ""},
		{"missing id", func(f *File) { f.ID = "" }, "plan id is required"},
		{"id with slash", func(f *File) { f.ID = "a/b" }, "must not contain slashes"},
		{"no nodes", func(f *File) { f.Nodes = nil }, "at least one node"},
		{"empty node", func(f *File) { f.Nodes = []string{"a", " "} }, "node name is empty"},
		{"duplicate node", func(f *File) { f.Nodes = []string{"a", "a"} }, `duplicate node "a"`},
		{"no stages", func(f *File) { f.Stages = nil }, "at least one stage"},
		{"missing stage id", func(f *File) { f.Stages[0].ID = "" }, "stage id is required"},
		{"duplicate stage", func(f *File) { f.Stages[1].ID = "one"; f.Stages[1].DependsOn = nil }, "duplicate stage id"},
		{"self dependency", func(f *File) { f.Stages[0].DependsOn = []string{"one"} }, "depends on itself"},
		{"forward dependency", func(f *File) { f.Stages[0].DependsOn = []string{"two"} }, `"two" must name an earlier stage`},
		{"unknown barrier", func(f *File) { f.Stages[0].Barrier = "Quorum" }, `unknown policy "Quorum"`},
		{"missing operation", func(f *File) { f.Stages[0].Operation.Name = "" }, "operation is required"},
		{"retry zero", func(f *File) { f.Stages[0].Retry = &RetryPolicy{} }, "maxAttempts: must be at least 1"},
		{"retry not idempotent", func(f *File) { f.Stages[0].Retry = &RetryPolicy{MaxAttempts: 3} }, "retries require idempotent"},
		{"check without name", func(f *File) { f.Stages[0].Validation = []CheckRef{{}} }, "check name is required"},
		{"bad severity", func(f *File) {
			f.Stages[0].PostConditions = []CheckRef{{Check: "x", Severity: "Fatal"}}
		}, `unknown severity "Fatal"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := validFile()
			tt.mutate(f)
			err := f.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateID(t *testing.T) {
	t.Parallel()
	tests := []struct {
		id      string
		wantErr string
	}{
		{"hyperv-lab", ""},
		{"lab_2", ""},
		{"", "plan id is required"},
		{"../x", "must not contain slashes"},
		{`a\b`, "must not contain slashes"},
		{"a b", "must not contain slashes or spaces"},
		{"..", "must not start with a dot"},
		{".hidden", "must not start with a dot"},
	}
	for _, tt := range tests {
		err := ValidateID(tt.id)
		if tt.wantErr == "" {
			assert.NoError(t, err, tt.id)
			continue
		}
		assert.ErrorContains(t, err, tt.wantErr, tt.id)
	}
}

func TestFile_Validate_RetryOnIdempotentStage(t *testing.T) {
	t.Parallel()
	f := validFile()
	f.Stages[0].Idempotent = true
	f.Stages[0].Retry = &RetryPolicy{MaxAttempts: 5}
	assert.NoError(t, f.Validate())
}

func TestFile_Validate_ReportsAllErrors(t *testing.T) {
	t.Parallel()
	f := &File{}
	err := f.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plan id is required")
	assert.Contains(t, err.Error(), "at least one node")
	assert.Contains(t, err.Error(), "at least one stage")
}
