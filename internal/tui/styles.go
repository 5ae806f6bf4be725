package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorPrimary = lipgloss.Color("#8BC34A")
	colorAccent  = lipgloss.Color("#2196F3")
	colorMuted   = lipgloss.Color("#6b7280")
	colorError   = lipgloss.Color("#e53935")
	colorBorder  = lipgloss.Color("#2a3850")
)

type Styles struct {
	Header    lipgloss.Style
	UserLabel lipgloss.Style
	BotLabel  lipgloss.Style
	UserText  lipgloss.Style
	Summary   lipgloss.Style
	Selected  lipgloss.Style
	Source    lipgloss.Style
	Score     lipgloss.Style
	Preview   lipgloss.Style
	Muted     lipgloss.Style
	Spinner   lipgloss.Style
	Error     lipgloss.Style
	Input     lipgloss.Style
}

func DefaultStyles() Styles {
	return Styles{
		Header:    lipgloss.NewStyle().Bold(true).Foreground(colorPrimary).Padding(0, 1),
		UserLabel: lipgloss.NewStyle().Bold(true).Foreground(colorPrimary).MarginTop(1),
		BotLabel:  lipgloss.NewStyle().Bold(true).Foreground(colorAccent).MarginTop(1),
		UserText:  lipgloss.NewStyle().PaddingLeft(2),
		Summary:   lipgloss.NewStyle().Foreground(colorAccent).PaddingLeft(2),
		Selected:  lipgloss.NewStyle().Bold(true).Reverse(true).PaddingLeft(2),
		Source:    lipgloss.NewStyle().Bold(true).PaddingLeft(4),
		Score:     lipgloss.NewStyle().Foreground(colorMuted),
		Preview:   lipgloss.NewStyle().Italic(true).Foreground(colorMuted).PaddingLeft(7),
		Muted:     lipgloss.NewStyle().Foreground(colorMuted),
		Spinner:   lipgloss.NewStyle().Foreground(colorPrimary),
		Error:     lipgloss.NewStyle().Foreground(colorError),
		Input: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1),
	}
}
