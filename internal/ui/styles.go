package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/imamik/stagehand/internal/state"
)

var (
	colorGreen  = lipgloss.Color("#22c55e")
	colorRed    = lipgloss.Color("#ef4444")
	colorYellow = lipgloss.Color("#eab308")
	colorBlue   = lipgloss.Color("#3b82f6")
	colorDim    = lipgloss.Color("#6b7280")
	colorWhite  = lipgloss.Color("#f9fafb")
)

const (
	checkMark  = "[OK]"
	skipMark   = "[--]"
	crossMark  = "[!!]"
	rebootMark = "[RB]"
	activeMark = "[..]"
	pending    = "[  ]"
	warnMark   = "[??]"
)

// Theme holds the styles used by the renderers.
type Theme struct {
	title   lipgloss.Style
	section lipgloss.Style
	dim     lipgloss.Style
	ok      lipgloss.Style
	failed  lipgloss.Style
	warning lipgloss.Style
}

// NewTheme returns colored styles when styled is true and pass-through styles
// otherwise.
func NewTheme(styled bool) Theme {
	if !styled {
		plain := lipgloss.NewStyle()
		return Theme{title: plain, section: plain, dim: plain, ok: plain, failed: plain, warning: plain}
	}
	return Theme{
		title:   lipgloss.NewStyle().Bold(true).Foreground(colorWhite),
		section: lipgloss.NewStyle().Bold(true).Foreground(colorBlue),
		dim:     lipgloss.NewStyle().Foreground(colorDim),
		ok:      lipgloss.NewStyle().Foreground(colorGreen),
		failed:  lipgloss.NewStyle().Foreground(colorRed),
		warning: lipgloss.NewStyle().Foreground(colorYellow),
	}
}

// ThemeFor picks a theme for f: styled for terminals, plain otherwise.
func ThemeFor(f *os.File) Theme {
	return NewTheme(IsTerminal(f))
}

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (t Theme) outcome(o state.Outcome) string {
	switch o {
	case state.OutcomeSuccess:
		return t.ok.Render(checkMark)
	case state.OutcomeSkipped:
		return t.ok.Render(skipMark)
	case state.OutcomeRebootPending:
		return t.warning.Render(rebootMark)
	case state.OutcomeFailed:
		return t.failed.Render(crossMark)
	default:
		return t.dim.Render(warnMark)
	}
}

func (t Theme) status(s state.Status) string {
	switch s {
	case state.StatusCompleted:
		return t.ok.Render(string(s))
	case state.StatusPausedForReboot:
		return t.warning.Render(string(s))
	case state.StatusHalted:
		return t.failed.Render(string(s))
	default:
		return t.title.Render(string(s))
	}
}
