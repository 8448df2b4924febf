package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Use-Tusk/checkout-conformance/internal/tui/styles"
)

// Column minimums for the side-by-side run view. Narrower terminals stack
// the scenario table above the details panel.
const (
	MinTableWidth   = 45
	MinDetailsWidth = 40
)

// Banner renders a centered heading across width columns.
func Banner(width int, text string) string {
	s := styles.TitleStyle
	if width > 0 {
		s = s.Width(width).Align(lipgloss.Center)
	}
	return s.Render("• " + text + " •")
}

// HelpLine renders key bindings for the bottom of the screen.
func HelpLine(text string) string {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(styles.Palette.Brand)).Render(text)
}

// Stacked reports whether width is too narrow for side-by-side columns.
func Stacked(width int) bool {
	return width < MinTableWidth+MinDetailsWidth
}

// SplitColumns divides width between the scenario table and the details
// panel. The table gets two fifths, but never less than its minimum, and
// the details panel keeps the rest.
func SplitColumns(width int) (table, details int) {
	table = max(width*2/5, MinTableWidth)
	if width-table < MinDetailsWidth {
		table = max(width-MinDetailsWidth, MinTableWidth)
	}
	table = min(table, width)
	return table, width - table
}

// Scrollbar draws a one-column bar for a viewport height rows tall showing
// lines starting at offset out of total. It is blank when everything fits.
func Scrollbar(height, total, offset int) string {
	if height <= 0 {
		return ""
	}
	rows := make([]string, height)
	if total <= height {
		for i := range rows {
			rows[i] = " "
		}
		return strings.Join(rows, "\n")
	}

	thumb := max(height*height/total, 1)
	overflow := total - height
	offset = min(max(offset, 0), overflow)
	start := min(offset*(height-thumb)/overflow, height-thumb)

	for i := range rows {
		if i >= start && i < start+thumb {
			rows[i] = styles.ScrollbarThumbStyle.Render("┃")
		} else {
			rows[i] = styles.ScrollbarTrackStyle.Render("│")
		}
	}
	return strings.Join(rows, "\n")
}
