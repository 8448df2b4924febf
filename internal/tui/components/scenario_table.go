package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"

	"github.com/Use-Tusk/checkout-conformance/internal/results"
	"github.com/Use-Tusk/checkout-conformance/internal/tui/styles"
	"github.com/Use-Tusk/checkout-conformance/internal/utils"
)

// ScenarioTableComponent lists every scenario of the run with its status.
// Row 0 is the run log; scenarios start at row 1.
type ScenarioTableComponent struct {
	viewport viewport.Model
	rows     []results.Outcome

	numWidth      int
	nameWidth     int
	statusWidth   int
	durationWidth int

	cursor int
}

func NewScenarioTableComponent() *ScenarioTableComponent {
	vp := viewport.New(50, 10)
	vp.Style = lipgloss.NewStyle()

	return &ScenarioTableComponent{
		viewport:      vp,
		numWidth:      4,
		nameWidth:     35,
		statusWidth:   10,
		durationWidth: 8,
	}
}

func (st *ScenarioTableComponent) View(width, height int) string {
	if width <= 0 {
		width = 50
	}
	if height <= 0 {
		height = 10
	}

	// title (1) + margin (1) + header (1) = 3
	st.viewport.Width = width
	st.viewport.Height = max(height-3, 3)

	fixedWidth := st.numWidth + st.statusWidth + st.durationWidth + 6
	st.nameWidth = max(width-fixedWidth, 10)

	st.updateViewportContent()

	headerLine := fmt.Sprintf(" %-*s %-*s %-*s %-*s",
		st.numWidth, "#",
		st.nameWidth, "Scenario",
		st.statusWidth, "Status",
		st.durationWidth, "Duration",
	)

	return lipgloss.JoinVertical(lipgloss.Left,
		styles.HeadingStyle.MarginBottom(1).Render("Scenarios"),
		styles.TableHeaderStyle.Render(headerLine),
		st.viewport.View(),
	)
}

// SetRows replaces the table contents, keeping the cursor in range.
func (st *ScenarioTableComponent) SetRows(rows []results.Outcome) {
	st.rows = rows
	st.cursor = min(st.cursor, len(rows))
	st.updateViewportContent()
}

func statusLabel(s results.Status) string {
	switch s {
	case results.StatusPass:
		return styles.SuccessStyle.Render("✓ pass")
	case results.StatusFail:
		return styles.ErrorStyle.Render("✗ fail")
	case results.StatusSkip:
		return styles.DimStyle.Render("- skip")
	default:
		return styles.WarningStyle.Render("… running")
	}
}

func (st *ScenarioTableComponent) updateViewportContent() {
	var sb strings.Builder

	for i := 0; i <= len(st.rows); i++ {
		if i > 0 {
			sb.WriteString("\n")
		}

		var line string
		if i == 0 {
			label := "(run log)"
			if styles.NoColor() && st.cursor == 0 {
				label = "▶ " + label
			}
			line = fmt.Sprintf(" %-*s %-*s", st.numWidth, "", st.nameWidth, label)
		} else {
			o := st.rows[i-1]
			duration := "-"
			if o.Status.Terminal() && o.Duration > 0 {
				duration = fmt.Sprintf("%dms", o.Duration.Milliseconds())
			}

			name := o.Name
			if styles.NoColor() && st.cursor == i {
				name = "▶ " + name
			}

			status := statusLabel(o.Status)
			line = fmt.Sprintf(" %-*s %-*s %s%s %-*s",
				st.numWidth, fmt.Sprintf("%d", i),
				st.nameWidth, utils.TruncateWithEllipsis(name, st.nameWidth),
				status, strings.Repeat(" ", max(st.statusWidth-lipgloss.Width(status), 0)),
				st.durationWidth, duration,
			)
		}

		if i == st.cursor {
			sb.WriteString(styles.TableRowSelectedStyle.Render(utils.StripANSI(line)))
		} else {
			sb.WriteString(styles.TableCellStyle.Render(line))
		}
	}

	st.viewport.SetContent(sb.String())
}

// Selected returns the outcome under the cursor, or false for the run log row.
func (st *ScenarioTableComponent) Selected() (results.Outcome, bool) {
	if st.cursor == 0 || st.cursor > len(st.rows) {
		return results.Outcome{}, false
	}
	return st.rows[st.cursor-1], true
}

func (st *ScenarioTableComponent) Cursor() int {
	return st.cursor
}

// SelectUp moves the selection up by n rows
func (st *ScenarioTableComponent) SelectUp(n int) {
	st.cursor = max(st.cursor-n, 0)
	st.ensureCursorVisible()
	st.updateViewportContent()
}

// SelectDown moves the selection down by n rows
func (st *ScenarioTableComponent) SelectDown(n int) {
	st.cursor = min(st.cursor+n, len(st.rows))
	st.ensureCursorVisible()
	st.updateViewportContent()
}

func (st *ScenarioTableComponent) GotoTop() {
	st.cursor = 0
	st.viewport.GotoTop()
	st.updateViewportContent()
}

func (st *ScenarioTableComponent) GotoBottom() {
	st.cursor = len(st.rows)
	st.viewport.GotoBottom()
	st.updateViewportContent()
}

func (st *ScenarioTableComponent) ensureCursorVisible() {
	if st.cursor < st.viewport.YOffset {
		st.viewport.SetYOffset(st.cursor)
	} else if st.cursor >= st.viewport.YOffset+st.viewport.Height {
		st.viewport.SetYOffset(st.cursor - st.viewport.Height + 1)
	}
}
