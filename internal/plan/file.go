package plan

import "github.com/imamik/stagehand/internal/validation"

// File is the on-disk form of a plan.
type File struct {
	ID          string            `yaml:"id"`
	Description string            `yaml:"description,omitempty"`
	Nodes       []string          `yaml:"nodes"`
	Config      map[string]string `yaml:"config,omitempty"`
	Stages      []StageSpec       `yaml:"stages"`
}

// StageSpec is the on-disk form of a stage.
type StageSpec struct {
	ID             string        `yaml:"id"`
	Description    string        `yaml:"description,omitempty"`
	RequiresReboot bool          `yaml:"requiresReboot,omitempty"`
	DependsOn      []string      `yaml:"dependsOn,omitempty"`
	Barrier        BarrierPolicy `yaml:"barrier,omitempty"`
	Validation     []CheckRef    `yaml:"validation,omitempty"`
	PostConditions []CheckRef    `yaml:"postConditions,omitempty"`
	SkipWhen       []CheckRef    `yaml:"skipWhen,omitempty"`
	Operation      OperationRef  `yaml:"operation"`
	Idempotent     bool          `yaml:"idempotent,omitempty"`
	Retry          *RetryPolicy  `yaml:"retry,omitempty"`
	Timeout        Duration      `yaml:"timeout,omitempty"`
}

// CheckRef names a registered check and its parameters.
type CheckRef struct {
	Check    string              `yaml:"check"`
	Severity validation.Severity `yaml:"severity,omitempty"`
	Params   map[string]string   `yaml:"params,omitempty"`
}

// OperationRef names a registered operation and its parameters.
type OperationRef struct {
	Name   string            `yaml:"name"`
	Params map[string]string `yaml:"params,omitempty"`
}

// RetryPolicy bounds automatic retries for idempotent stages.
type RetryPolicy struct {
	MaxAttempts  int      `yaml:"maxAttempts"`
	InitialDelay Duration `yaml:"initialDelay,omitempty"`
}
