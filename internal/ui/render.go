package ui

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/imamik/stagehand/internal/events"
	"github.com/imamik/stagehand/internal/orchestrator"
	"github.com/imamik/stagehand/internal/state"
	"github.com/imamik/stagehand/internal/validation"
)

const timeLayout = time.RFC3339

// RenderResult describes where an invocation stopped and what the operator
// should do next.
func RenderResult(r orchestrator.Result, t Theme) string {
	var b strings.Builder

	planID := ""
	if r.State != nil {
		planID = r.State.PlanID
	}
	fmt.Fprintf(&b, "%s: %s", t.title.Render(planID), t.status(r.Status))
	if r.StageID != "" {
		fmt.Fprintf(&b, " at stage %s", r.StageID)
	}
	b.WriteString("\n")

	if r.Reason != "" {
		fmt.Fprintf(&b, "  reason: %s\n", r.Reason)
	}
	if len(r.Nodes) > 0 {
		fmt.Fprintf(&b, "  nodes:  %s\n", strings.Join(r.Nodes, ", "))
	}
	if r.Action != "" {
		fmt.Fprintf(&b, "  next:   %s\n", t.warning.Render(r.Action))
	}
	return b.String()
}

// RenderState renders persisted state. stageIDs gives the plan's stage order;
// when empty, the stages recorded in st are shown.
func RenderState(st *state.DeploymentState, stageIDs []string, t Theme) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s\n", t.title.Render("Plan "+st.PlanID), t.status(st.Status))
	if st.StatusReason != "" {
		fmt.Fprintf(&b, "  %s\n", st.StatusReason)
	}
	fmt.Fprintf(&b, "  %s\n", t.dim.Render(fmt.Sprintf("created %s, updated %s",
		st.CreatedAt.UTC().Format(timeLayout), st.LastUpdatedAt.UTC().Format(timeLayout))))
	fmt.Fprintf(&b, "  nodes: %s\n", strings.Join(st.NodeSet, ", "))

	if len(stageIDs) == 0 {
		stageIDs = recordedStages(st)
	}
	b.WriteString("\n" + t.section.Render("Stages") + "\n")
	for _, id := range stageIDs {
		fmt.Fprintf(&b, "  %s %s\n", stageMark(st, id, t), id)
		nodes := st.Results[id]
		for _, node := range sortedKeys(nodes) {
			r, ok := st.Latest(id, node)
			if !ok {
				continue
			}
			line := fmt.Sprintf("      %s %-16s %s (attempt %d)", t.outcome(r.Outcome), node, r.Outcome, r.Attempt)
			if msg := resultMessage(r); msg != "" {
				line += ": " + msg
			}
			b.WriteString(line + "\n")
		}
	}

	if len(st.Remediation) > 0 {
		b.WriteString("\n" + t.section.Render("Awaiting remediation") + "\n")
		for _, node := range sortedKeys(st.Remediation) {
			m := st.Remediation[node]
			line := fmt.Sprintf("  %s %s failed %s", t.failed.Render(crossMark), node, m.StageID)
			if m.Detail != "" {
				line += ": " + m.Detail
			}
			b.WriteString(line + "\n")
		}
	}

	if len(st.RemovedNodes) > 0 {
		b.WriteString("\n" + t.section.Render("Removed nodes") + "\n")
		for _, r := range st.RemovedNodes {
			fmt.Fprintf(&b, "  %s %s: %s\n", t.dim.Render(r.At.UTC().Format(timeLayout)), r.Node, r.Reason)
		}
	}
	return b.String()
}

// RenderPreview renders a dry-run validation of the next stage.
func RenderPreview(p orchestrator.Preview, t Theme) string {
	var b strings.Builder
	if p.StageID == "" {
		b.WriteString(t.ok.Render(checkMark) + " plan is complete, nothing to validate\n")
		return b.String()
	}

	fmt.Fprintf(&b, "%s %s on %s\n", t.title.Render("Stage"), p.StageID, strings.Join(p.Nodes, ", "))
	if len(p.Verdict.Reports) == 0 {
		b.WriteString("  no pre-validation checks\n")
	}
	for _, r := range p.Verdict.Reports {
		b.WriteString("  " + reportLine(r, t) + "\n")
	}
	if p.Verdict.Proceed() {
		fmt.Fprintf(&b, "%s stage can proceed\n", t.ok.Render(checkMark))
	} else {
		fmt.Fprintf(&b, "%s %s\n", t.failed.Render(crossMark), p.Verdict.Summary())
	}
	return b.String()
}

// RenderHistory renders transition events oldest first.
func RenderHistory(evs []events.Event, t Theme) string {
	if len(evs) == 0 {
		return "no transitions recorded\n"
	}
	var b strings.Builder
	for _, e := range evs {
		line := fmt.Sprintf("%s %s -> %s", t.dim.Render(e.Timestamp.UTC().Format(timeLayout)), e.From, t.status(e.To))
		if e.StageID != "" {
			line += " [" + e.StageID + "]"
		}
		if e.Reason != "" {
			line += " " + e.Reason
		}
		b.WriteString(line + "\n")
		for _, node := range events.SortedNodes(e.Nodes) {
			fmt.Fprintf(&b, "    %s %s\n", t.outcome(e.Nodes[node]), node)
		}
	}
	return b.String()
}

func reportLine(r validation.Report, t Theme) string {
	mark := t.ok.Render(checkMark)
	if !r.Passed {
		switch r.Severity {
		case validation.SeverityBlocking:
			mark = t.failed.Render(crossMark)
		default:
			mark = t.warning.Render(warnMark)
		}
	}
	line := fmt.Sprintf("%s %s on %s (%s)", mark, r.CheckID, r.Node, r.Severity)
	if r.Detail != "" {
		line += ": " + r.Detail
	}
	return line
}

func stageMark(st *state.DeploymentState, id string, t Theme) string {
	switch {
	case st.IsCompleted(id):
		return t.ok.Render(checkMark)
	case id != st.CurrentStageID:
		return t.dim.Render(pending)
	case st.Status == state.StatusHalted:
		return t.failed.Render(crossMark)
	case st.Status == state.StatusPausedForReboot:
		return t.warning.Render(rebootMark)
	default:
		return t.title.Render(activeMark)
	}
}

func resultMessage(r state.NodeResult) string {
	if r.ErrorDetail != "" {
		return r.ErrorDetail
	}
	return r.Detail
}

// recordedStages lists completed stages, then the current one, then any
// other stage with results, sorted.
func recordedStages(st *state.DeploymentState) []string {
	ids := slices.Clone(st.CompletedStageIDs)
	if st.CurrentStageID != "" && !slices.Contains(ids, st.CurrentStageID) {
		ids = append(ids, st.CurrentStageID)
	}
	for _, id := range sortedKeys(st.Results) {
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	return ids
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
