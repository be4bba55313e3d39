package tui

import "github.com/charmbracelet/lipgloss"

// Theme holds the colors and pre-built styles of the annotation screen
type Theme struct {
	Primary lipgloss.Color
	Accent  lipgloss.Color
	Danger  lipgloss.Color
	Success lipgloss.Color
	Muted   lipgloss.Color
	Border  lipgloss.Color

	TitleStyle    lipgloss.Style
	PanelStyle    lipgloss.Style
	SelectedStyle lipgloss.Style
	MutedStyle    lipgloss.Style
	ErrorStyle    lipgloss.Style
	SuccessStyle  lipgloss.Style
	HelpStyle     lipgloss.Style
}

func DarkTheme() Theme {
	t := Theme{
		Primary: lipgloss.Color("#7C3AED"),
		Accent:  lipgloss.Color("#F59E0B"),
		Danger:  lipgloss.Color("#EF4444"),
		Success: lipgloss.Color("#10B981"),
		Muted:   lipgloss.Color("#6B7280"),
		Border:  lipgloss.Color("#374151"),
	}

	t.TitleStyle = lipgloss.NewStyle().
		Foreground(t.Primary).
		Bold(true)
	t.PanelStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.Border).
		Padding(0, 1)
	t.SelectedStyle = lipgloss.NewStyle().
		Foreground(t.Accent).
		Bold(true)
	t.MutedStyle = lipgloss.NewStyle().
		Foreground(t.Muted)
	t.ErrorStyle = lipgloss.NewStyle().
		Foreground(t.Danger).
		Bold(true)
	t.SuccessStyle = lipgloss.NewStyle().
		Foreground(t.Success)
	t.HelpStyle = lipgloss.NewStyle().
		Foreground(t.Muted)

	return t
}
