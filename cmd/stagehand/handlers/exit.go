package handlers

import (
	"errors"
	"fmt"

	"github.com/imamik/stagehand/internal/orchestrator"
)

// ExitError carries the process exit code for a finished command. Err is
// nil when the outcome has already been printed.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCode returns the exit code for err: 0 for nil, the carried code for an
// ExitError and ExitInternal for anything else.
func ExitCode(err error) int {
	if err == nil {
		return orchestrator.ExitCompleted
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return orchestrator.ExitInternal
}

func internal(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	return &ExitError{Code: orchestrator.ExitInternal, Err: err}
}

func exitWith(code int) error {
	if code == orchestrator.ExitCompleted {
		return nil
	}
	return &ExitError{Code: code}
}
