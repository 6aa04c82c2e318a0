package orchestrator

import "errors"

var (
	// ErrPersistence wraps any failure to load or save state.
	ErrPersistence = errors.New("state persistence failed")

	// ErrStateMismatch means the persisted state does not belong to the
	// loaded plan: a different plan id, a changed node set, or a completed
	// stage whose dependencies are not complete.
	ErrStateMismatch = errors.New("persisted state does not match plan")

	// ErrUnknownStage means the persisted state names a stage the plan does
	// not define.
	ErrUnknownStage = errors.New("unknown stage in persisted state")

	// ErrResumeHint means the requested resume stage is not where the
	// persisted state says the plan resumes.
	ErrResumeHint = errors.New("resume hint does not match persisted state")
)
