package render

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// visualWidth returns the display width of text, counting wide runes twice.
func visualWidth(s string) int {
	return runewidth.StringWidth(s)
}

// truncate cuts s to maxLen display columns, ending in "..." when cut.
func truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if visualWidth(s) <= maxLen {
		return s
	}
	if maxLen > 3 {
		return runewidth.Truncate(s, maxLen-3, "") + "..."
	}
	return runewidth.Truncate(s, maxLen, "")
}

// truncateAndPad truncates s and pads it with spaces to exactly width columns.
func truncateAndPad(s string, width int) string {
	s = truncate(s, width)
	if w := visualWidth(s); w < width {
		return s + strings.Repeat(" ", width-w)
	}
	return s
}
