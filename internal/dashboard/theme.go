package dashboard

import "github.com/charmbracelet/lipgloss"

// Theme holds the colours and styles used by the terminal dashboard.
type Theme struct {
	Primary lipgloss.Color
	Success lipgloss.Color
	Warning lipgloss.Color
	Danger  lipgloss.Color
	Muted   lipgloss.Color
	Text    lipgloss.Color

	CardStyle   lipgloss.Style
	TitleStyle  lipgloss.Style
	LabelStyle  lipgloss.Style
	MutedStyle  lipgloss.Style
	FailureBox  lipgloss.Style
	ActiveStage lipgloss.Style
	IdleStage   lipgloss.Style
}

// DefaultTheme returns the cyan-on-dark palette of the web dashboard.
func DefaultTheme() *Theme {
	t := &Theme{
		Primary: lipgloss.Color("#22D3EE"),
		Success: lipgloss.Color("#4ADE80"),
		Warning: lipgloss.Color("#FACC15"),
		Danger:  lipgloss.Color("#F87171"),
		Muted:   lipgloss.Color("#6B7280"),
		Text:    lipgloss.Color("#D1D5DB"),
	}
	t.CardStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.Muted).
		Padding(0, 1)
	t.TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(t.Primary)
	t.LabelStyle = lipgloss.NewStyle().Bold(true).Foreground(t.Text)
	t.MutedStyle = lipgloss.NewStyle().Foreground(t.Muted)
	t.FailureBox = lipgloss.NewStyle().
		Border(lipgloss.ThickBorder()).
		BorderForeground(t.Danger).
		Foreground(t.Danger).
		Padding(0, 1)
	t.ActiveStage = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#000000")).Background(t.Primary).Padding(0, 1)
	t.IdleStage = lipgloss.NewStyle().Foreground(t.Muted).Padding(0, 1)
	return t
}

// RiskColor maps a risk level to its colour: High red, Medium yellow and
// anything else green.
func (t *Theme) RiskColor(level string) lipgloss.Color {
	switch level {
	case "High":
		return t.Danger
	case "Medium":
		return t.Warning
	default:
		return t.Success
	}
}
