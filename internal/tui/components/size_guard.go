package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Use-Tusk/checkout-conformance/internal/tui/styles"
	"github.com/Use-Tusk/checkout-conformance/internal/utils"
)

// SizeGuard covers the run view with a resize prompt while the terminal is
// below the usable minimum. The prompt can be dismissed once per shrink.
type SizeGuard struct {
	MinWidth, MinHeight     int
	IdealWidth, IdealHeight int

	dismissed bool
	tooSmall  bool
}

func NewSizeGuard() *SizeGuard {
	return &SizeGuard{MinWidth: 60, MinHeight: 20, IdealWidth: 140, IdealHeight: 30}
}

// Resize records the new terminal size. Shrinking below the minimum
// re-arms a previously dismissed prompt.
func (g *SizeGuard) Resize(width, height int) {
	small := width < g.MinWidth || height < g.MinHeight
	if small && !g.tooSmall {
		g.dismissed = false
	}
	g.tooSmall = small
}

func (g *SizeGuard) Dismiss() { g.dismissed = true }

// Active reports whether the prompt replaces the run view. CONFORM_TUI_CI_MODE
// disables it.
func (g *SizeGuard) Active() bool {
	return g.tooSmall && !g.dismissed && !utils.TUICIMode()
}

func (g *SizeGuard) View(width, height int) string {
	inner := max(width-8, 40)
	line := lipgloss.NewStyle().Width(inner).Align(lipgloss.Center)
	dim := func(s string) string { return line.Render(styles.DimStyle.Render(s)) }

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(styles.Palette.Warning)).
		Padding(1, 2).
		Render(lipgloss.JoinVertical(lipgloss.Left,
			line.Render(styles.WarningStyle.Bold(true).Render("Terminal too small for the run view")),
			"",
			line.Render(fmt.Sprintf("Now %d × %d, works best at %d × %d or more", width, height, g.IdealWidth, g.IdealHeight)),
			"",
			dim("enter: show anyway   q: quit"),
		))

	if pad := (height - lipgloss.Height(box)) / 2; pad > 0 {
		return strings.Repeat("\n", pad) + box
	}
	return box
}
