package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/imamik/stagehand/internal/ui"
)

// History handles the history command by listing the most recent transitions
// recorded in the journal.
func History(ctx context.Context, opts Options, limit int, asJSON bool) error {
	s, err := openSession(ctx, opts, readOnly, false)
	if err != nil {
		return internal(err)
	}
	defer s.close()

	if s.journal == nil {
		return internal(errors.New("the journal is disabled; set STAGEHAND_JOURNAL to a database path"))
	}

	evs, err := s.journal.List(ctx, s.planID(), limit)
	if err != nil {
		return internal(err)
	}

	if asJSON {
		data, err := json.MarshalIndent(evs, "", "  ")
		if err != nil {
			return internal(err)
		}
		fmt.Fprintln(stdout, string(data))
		return nil
	}
	fmt.Fprint(stdout, ui.RenderHistory(evs, theme()))
	return nil
}
