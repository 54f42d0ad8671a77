package style

import (
	"github.com/charmbracelet/lipgloss"
)

var palette = DefaultPalette()

// Preview styles
var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(palette.Accent).
			Bold(true).
			Margin(1, 0, 0, 0)

	PostStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(palette.Border).
			Foreground(palette.Text).
			Padding(0, 1)

	PostLabelStyle = lipgloss.NewStyle().
			Foreground(palette.TextMuted).
			Bold(true)

	MediaStyle = lipgloss.NewStyle().
			Foreground(palette.Accent).
			Italic(true)

	MutedStyle = lipgloss.NewStyle().
			Foreground(palette.TextMuted)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(palette.Positive).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(palette.Negative).
			Bold(true)
)
