package handlers

import (
	"context"
	"errors"
	"fmt"

	"sigs.k8s.io/yaml"

	"github.com/imamik/stagehand/internal/state"
	"github.com/imamik/stagehand/internal/ui"
)

// Output formats accepted by status.
const (
	OutputText = "text"
	OutputJSON = "json"
	OutputYAML = "yaml"
)

// Status handles the status command by printing the persisted state of the
// plan in the requested format.
func Status(ctx context.Context, opts Options, format string) error {
	switch format {
	case "", OutputText, OutputJSON, OutputYAML:
	default:
		return internal(fmt.Errorf("unknown output format %q (want %s, %s or %s)", format, OutputText, OutputJSON, OutputYAML))
	}

	s, err := openSession(ctx, opts, readOnly, false)
	if err != nil {
		return internal(err)
	}
	defer s.close()

	st, err := s.store.Load(ctx, s.planID())
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			fmt.Fprintf(stdout, "plan %s has not started\n", s.planID())
			return nil
		}
		return internal(fmt.Errorf("failed to load state: %w", err))
	}

	switch format {
	case OutputJSON:
		data, err := state.Marshal(st)
		if err != nil {
			return internal(err)
		}
		fmt.Fprintln(stdout, string(data))
	case OutputYAML:
		data, err := state.Marshal(st)
		if err != nil {
			return internal(err)
		}
		out, err := yaml.JSONToYAML(data)
		if err != nil {
			return internal(fmt.Errorf("failed to convert state to YAML: %w", err))
		}
		fmt.Fprint(stdout, string(out))
	default:
		stageIDs := make([]string, 0, len(s.file.Stages))
		for _, spec := range s.file.Stages {
			stageIDs = append(stageIDs, spec.ID)
		}
		fmt.Fprint(stdout, ui.RenderState(st, stageIDs, theme()))
	}
	return nil
}
