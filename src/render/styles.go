package render

import (
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"garnix-insights/src/report"
)

// palette holds the styles of the human format. The zero value renders
// every string unchanged.
type palette struct {
	enabled bool
	title   lipgloss.Style
	passed  lipgloss.Style
	failed  lipgloss.Style
	pending lipgloss.Style
	muted   lipgloss.Style
}

func newPalette(color bool) palette {
	if !color {
		return palette{}
	}
	// Terminal detection is the caller's job; here colour is forced on.
	r := lipgloss.NewRenderer(io.Discard)
	r.SetColorProfile(termenv.ANSI256)

	return palette{
		enabled: true,
		title:   r.NewStyle().Foreground(lipgloss.Color("#8AB4F8")).Bold(true),
		passed:  r.NewStyle().Foreground(lipgloss.Color("#34A853")),
		failed:  r.NewStyle().Foreground(lipgloss.Color("#EA4335")).Bold(true),
		pending: r.NewStyle().Foreground(lipgloss.Color("#FBBC04")),
		muted:   r.NewStyle().Foreground(lipgloss.Color("#9AA0A6")),
	}
}

func (p palette) apply(s lipgloss.Style, text string) string {
	if !p.enabled {
		return text
	}
	return s.Render(text)
}

func (p palette) Title(text string) string { return p.apply(p.title, text) }
func (p palette) Muted(text string) string { return p.apply(p.muted, text) }

// Status styles text with the colour of status.
func (p palette) Status(status report.Status, text string) string {
	switch status {
	case report.Passed:
		return p.apply(p.passed, text)
	case report.Failed:
		return p.apply(p.failed, text)
	default:
		return p.apply(p.pending, text)
	}
}
