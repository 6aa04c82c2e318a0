package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// RemoveNode handles "nodes remove". It drops node from the persisted node
// set and records why; its results are kept. Later runs skip the node even
// while the plan file still lists it.
func RemoveNode(ctx context.Context, opts Options, node, reason string, yes bool) error {
	if strings.TrimSpace(reason) == "" {
		return internal(errors.New("--reason is required when removing a node"))
	}

	s, err := openSession(ctx, opts, exclusive, true)
	if err != nil {
		return internal(err)
	}
	defer s.close()

	if err := confirmed(yes,
		fmt.Sprintf("Remove %s from plan %s?", node, s.planID()),
		"Its recorded results are kept and later stages skip it."); err != nil {
		return internal(err)
	}

	st, err := s.orchestrator().RemoveNode(ctx, node, reason)
	if err != nil {
		return internal(err)
	}
	fmt.Fprintf(stdout, "removed %s from plan %s (%d nodes remain)\n", node, st.PlanID, len(st.NodeSet))
	return nil
}

// ResolveNode handles "nodes resolve". It clears the remediation mark a node
// received when it failed a stage the plan advanced past, so later stages
// include it again.
func ResolveNode(ctx context.Context, opts Options, node string) error {
	s, err := openSession(ctx, opts, exclusive, true)
	if err != nil {
		return internal(err)
	}
	defer s.close()

	if _, err := s.orchestrator().ResolveNode(ctx, node); err != nil {
		return internal(err)
	}
	fmt.Fprintf(stdout, "%s is no longer awaiting remediation in plan %s\n", node, s.planID())
	return nil
}
