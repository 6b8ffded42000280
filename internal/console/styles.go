package console

import "github.com/charmbracelet/lipgloss"

var (
	Surface0 = lipgloss.Color("#313244")
	Subtext0 = lipgloss.Color("#a6adc8")
	Red      = lipgloss.Color("#f38ba8")
	Peach    = lipgloss.Color("#fab387")
	Green    = lipgloss.Color("#a6e3a1")
	Teal     = lipgloss.Color("#94e2d5")
)

var (
	ProgressBarEmptyStyle = lipgloss.NewStyle().Foreground(Surface0)
	ProgressActiveStyle   = lipgloss.NewStyle().Foreground(Teal)
	ProgressDoneStyle     = lipgloss.NewStyle().Foreground(Green)
	ProgressRetryStyle    = lipgloss.NewStyle().Foreground(Peach)

	DetailStyle = lipgloss.NewStyle().Foreground(Subtext0)

	ErrorStyle = lipgloss.NewStyle().Foreground(Red).Bold(true)
)
