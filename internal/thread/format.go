package thread

import (
	"fmt"
	"math"

	"github.com/dustin/go-humanize"
)

// FormatNumber formats a dollar amount with K/M/B suffixes. Negative values
// are prefixed with "-", positive ones with "+" when includeSign is set.
func FormatNumber(n float64, includeSign bool) string {
	prefix := ""
	switch {
	case n < 0:
		prefix = "-"
	case includeSign && n > 0:
		prefix = "+"
	}

	abs := math.Abs(n)
	switch {
	case abs >= 1e9:
		return fmt.Sprintf("%s$%.1fB", prefix, abs/1e9)
	case abs >= 1e6:
		return fmt.Sprintf("%s$%.1fM", prefix, abs/1e6)
	case abs >= 1e3:
		return fmt.Sprintf("%s$%.1fK", prefix, abs/1e3)
	default:
		return fmt.Sprintf("%s$%.0f", prefix, abs)
	}
}

// FormatPrice picks precision by magnitude: whole dollars with thousands
// separators from 1000 up, cents from 1 up, four decimals below.
func FormatPrice(price float64) string {
	switch {
	case price >= 1000:
		return "$" + humanize.Comma(int64(math.RoundToEven(price)))
	case price >= 1:
		return fmt.Sprintf("$%.2f", price)
	default:
		return fmt.Sprintf("$%.4f", price)
	}
}
