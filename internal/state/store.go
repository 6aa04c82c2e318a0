package state

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Load when no state exists for the plan.
	ErrNotFound = errors.New("state not found")
	// ErrCorrupt is returned by Load when the stored document cannot be used.
	ErrCorrupt = errors.New("state is corrupt")
	// ErrLocked is returned when another process holds the plan lock.
	ErrLocked = errors.New("state is locked by another process")
)

// Store persists deployment state keyed by plan id.
type Store interface {
	// Load returns the saved state, ErrNotFound, or ErrCorrupt.
	Load(ctx context.Context, planID string) (*DeploymentState, error)

	// Save atomically replaces the saved state for s.PlanID.
	Save(ctx context.Context, s *DeploymentState) error

	// Delete removes the saved state. Deleting a missing state is not an error.
	Delete(ctx context.Context, planID string) error
}
