package components

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"

	"github.com/Use-Tusk/checkout-conformance/internal/tui/styles"
	"github.com/Use-Tusk/checkout-conformance/internal/utils"
)

// DetailsPanel is a scrollable, bordered text panel with a scrollbar.
type DetailsPanel struct {
	viewport viewport.Model
	title    string
	raw      string
	follow   bool
}

func NewDetailsPanel(title string) *DetailsPanel {
	vp := viewport.New(50, 20)
	vp.Style = lipgloss.NewStyle()
	vp.MouseWheelEnabled = false
	return &DetailsPanel{viewport: vp, title: title}
}

// SetContent replaces the panel text. With follow set the view stays
// pinned to the bottom as content grows.
func (dp *DetailsPanel) SetContent(title, content string, follow bool) {
	dp.title = title
	dp.raw = content
	dp.follow = follow
	dp.render()
}

// Raw returns the unwrapped content.
func (dp *DetailsPanel) Raw() string {
	return dp.raw
}

func (dp *DetailsPanel) render() {
	width := max(dp.viewport.Width, 10)
	dp.viewport.SetContent(utils.WrapText(dp.raw, width))
	if dp.follow {
		dp.viewport.GotoBottom()
	}
}

func (dp *DetailsPanel) View(width, height int) string {
	// border (2) + scrollbar (1) + padding (1)
	innerWidth := max(width-4, 10)
	innerHeight := max(height-3, 3)
	if dp.viewport.Width != innerWidth || dp.viewport.Height != innerHeight {
		dp.viewport.Width = innerWidth
		dp.viewport.Height = innerHeight
		dp.render()
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top,
		dp.viewport.View(),
		" ",
		Scrollbar(innerHeight, dp.viewport.TotalLineCount(), dp.viewport.YOffset),
	)

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(styles.Palette.Border)).
		Width(width - 2)

	return lipgloss.JoinVertical(lipgloss.Left,
		styles.BorderDimStyle.Render(strings.ToUpper(dp.title)),
		box.Render(body),
	)
}

func (dp *DetailsPanel) ScrollUp(n int) {
	dp.follow = false
	dp.viewport.ScrollUp(n)
}

func (dp *DetailsPanel) ScrollDown(n int) {
	dp.viewport.ScrollDown(n)
}

func (dp *DetailsPanel) HalfPageUp() {
	dp.follow = false
	dp.viewport.HalfPageUp()
}

func (dp *DetailsPanel) HalfPageDown() {
	dp.viewport.HalfPageDown()
}
