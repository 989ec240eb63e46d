package tui

import (
	"github.com/charmbracelet/lipgloss"
)

// Palette, ANSI 256 codes.
const (
	colorAccent = lipgloss.Color("62")
	colorMuted  = lipgloss.Color("240")
	colorHelp   = lipgloss.Color("241")
	colorGreen  = lipgloss.Color("green")
	colorYellow = lipgloss.Color("yellow")
	colorOrange = lipgloss.Color("208")
	colorRed    = lipgloss.Color("red")
)

var (
	StyleTitle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	StyleHelp  = lipgloss.NewStyle().Foreground(colorHelp)

	paneBorder = lipgloss.NewStyle().Border(lipgloss.RoundedBorder())
)

// PaneStyle returns the bordered frame for a pane.
func PaneStyle(focused bool) lipgloss.Style {
	if focused {
		return paneBorder.BorderForeground(colorAccent)
	}
	return paneBorder.BorderForeground(colorMuted)
}

// statusStyles covers task statuses and run outcomes.
var statusStyles = map[string]lipgloss.Style{
	"pending":    lipgloss.NewStyle().Foreground(colorMuted),
	"running":    lipgloss.NewStyle().Foreground(colorYellow).Bold(true),
	"recovering": lipgloss.NewStyle().Foreground(colorYellow).Bold(true),
	"completed":  lipgloss.NewStyle().Foreground(colorGreen).Bold(true),
	"succeeded":  lipgloss.NewStyle().Foreground(colorGreen).Bold(true),
	"failed":     lipgloss.NewStyle().Foreground(colorRed).Bold(true),
	"cancelled":  lipgloss.NewStyle().Foreground(colorOrange),
	"aborted":    lipgloss.NewStyle().Foreground(colorOrange),
}

// StatusStyle returns the style for a task status or run outcome. Unknown
// values render unstyled.
func StatusStyle(status string) lipgloss.Style {
	if s, ok := statusStyles[status]; ok {
		return s
	}
	return lipgloss.NewStyle()
}

var riskStyles = map[string]lipgloss.Style{
	"low":      lipgloss.NewStyle().Foreground(colorGreen),
	"medium":   lipgloss.NewStyle().Foreground(colorYellow),
	"high":     lipgloss.NewStyle().Foreground(colorOrange).Bold(true),
	"critical": lipgloss.NewStyle().Foreground(colorRed).Bold(true),
}

// RiskStyle returns the style for a risk level name.
func RiskStyle(level string) lipgloss.Style {
	if s, ok := riskStyles[level]; ok {
		return s
	}
	return lipgloss.NewStyle()
}
