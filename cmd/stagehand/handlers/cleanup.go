package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/imamik/stagehand/internal/state"
)

// Cleanup handles the cleanup command. It deletes the persisted state of the
// plan and, when the journal is enabled, its recorded transitions.
func Cleanup(ctx context.Context, opts Options, yes bool) error {
	s, err := openSession(ctx, opts, exclusive, false)
	if err != nil {
		return internal(err)
	}
	defer s.close()

	if err := confirmed(yes,
		fmt.Sprintf("Delete all state for plan %s?", s.planID()),
		"The next run starts the plan from its first stage."); err != nil {
		return internal(err)
	}

	if err := s.store.Delete(ctx, s.planID()); err != nil {
		return internal(fmt.Errorf("failed to delete state: %w", err))
	}
	if s.journal != nil {
		if err := s.journal.DeleteByPlan(ctx, s.planID()); err != nil {
			return internal(err)
		}
	}
	s.logger.Info("deleted plan state", "plan", s.planID())
	fmt.Fprintf(stdout, "deleted state for plan %s\n", s.planID())
	return nil
}

// Unlock handles the unlock command. It removes a lock file that no running
// stagehand process holds and fails if one still does.
func Unlock(ctx context.Context, opts Options) error {
	s, err := openSession(ctx, opts, readOnly, false)
	if err != nil {
		return internal(err)
	}
	defer s.close()

	fs, ok := s.store.(*state.FileStore)
	if !ok {
		return internal(errors.New("locks are only used with the file state backend"))
	}
	if err := fs.Unlock(s.planID()); err != nil {
		return internal(err)
	}
	fmt.Fprintf(stdout, "released lock for plan %s\n", s.planID())
	return nil
}
