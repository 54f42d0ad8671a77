package style

import "github.com/charmbracelet/lipgloss"

// Dark palette shared by the terminal preview and the rendered table images.
var (
	Background = lipgloss.Color("#0d1117")
	HeaderBg   = lipgloss.Color("#161b22")
	Text       = lipgloss.Color("#e6edf3")
	TextMuted  = lipgloss.Color("#8b949e")
	Green      = lipgloss.Color("#3fb950")
	Red        = lipgloss.Color("#f85149")
	Border     = lipgloss.Color("#30363d")
	Accent     = lipgloss.Color("#58a6ff")

	LongColor  = Green
	ShortColor = Red
)

// Palette provides a centralized color management
type Palette struct {
	Background lipgloss.Color
	HeaderBg   lipgloss.Color
	RowEven    lipgloss.Color
	RowOdd     lipgloss.Color
	Text       lipgloss.Color
	TextMuted  lipgloss.Color
	Border     lipgloss.Color
	Accent     lipgloss.Color

	Long     lipgloss.Color
	Short    lipgloss.Color
	Positive lipgloss.Color
	Negative lipgloss.Color
}

// DefaultPalette returns the default color palette
func DefaultPalette() Palette {
	return Palette{
		Background: Background,
		HeaderBg:   HeaderBg,
		RowEven:    Background,
		RowOdd:     HeaderBg,
		Text:       Text,
		TextMuted:  TextMuted,
		Border:     Border,
		Accent:     Accent,

		Long:     LongColor,
		Short:    ShortColor,
		Positive: Green,
		Negative: Red,
	}
}

// Hex returns the color as a "#rrggbb" string.
func Hex(c lipgloss.Color) string {
	return string(c)
}
