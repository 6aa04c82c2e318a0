// Package ui renders orchestrator results, persisted state and history for
// the terminal. Output is styled with lipgloss when stdout is a terminal and
// left plain otherwise, so it stays readable in logs and CI.
package ui
