package components

import (
	"fmt"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/Use-Tusk/checkout-conformance/internal/results"
	"github.com/Use-Tusk/checkout-conformance/internal/tui/styles"
)

// RunHeaderComponent shows the progress bar and live counters of a run.
type RunHeaderComponent struct {
	spinner  spinner.Model
	progress progress.Model
	target   string
	stats    results.Snapshot
	done     bool
}

func NewRunHeaderComponent(target string) *RunHeaderComponent {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(styles.Palette.Accent))

	opts := []progress.Option{}
	if styles.NoColor() {
		opts = append(opts, progress.WithColorProfile(termenv.Ascii))
	} else {
		opts = append(opts, progress.WithDefaultGradient())
	}

	return &RunHeaderComponent{
		spinner:  s,
		progress: progress.New(opts...),
		target:   target,
	}
}

// Init starts the spinner.
func (h *RunHeaderComponent) Init() tea.Cmd {
	return h.spinner.Tick
}

func (h *RunHeaderComponent) Update(msg tea.Msg) tea.Cmd {
	var cmds []tea.Cmd

	var scmd tea.Cmd
	h.spinner, scmd = h.spinner.Update(msg)
	if scmd != nil {
		cmds = append(cmds, scmd)
	}

	pm, pcmd := h.progress.Update(msg)
	if p, ok := pm.(progress.Model); ok {
		h.progress = p
	}
	if pcmd != nil {
		cmds = append(cmds, pcmd)
	}

	if len(cmds) == 0 {
		return nil
	}
	return tea.Batch(cmds...)
}

func (h *RunHeaderComponent) View(width int) string {
	title := Banner(width, "CHECKOUT CONFORMANCE")

	prefix := h.spinner.View()
	if h.done {
		prefix = styles.SuccessStyle.Render("✓")
		if !h.stats.Success() {
			prefix = styles.ErrorStyle.Render("✗")
		}
	}

	s := h.stats
	var statsText string
	if width < 80 {
		statsText = fmt.Sprintf("%d/%d (%d run, %d✓, %d✗, %d-)",
			s.Finished(), s.Total, s.Pending, s.Passed, s.Failed, s.Skipped)
		h.progress.Width = max(width-lipgloss.Width(statsText)-4, 10)
	} else {
		statsText = fmt.Sprintf("%d/%d completed | %d running | %s | %s | %s",
			s.Finished(), s.Total, s.Pending,
			styles.SuccessStyle.Render(fmt.Sprintf("%d passed", s.Passed)),
			styles.ErrorStyle.Render(fmt.Sprintf("%d failed", s.Failed)),
			styles.DimStyle.Render(fmt.Sprintf("%d skipped", s.Skipped)),
		)
		percentLabelWidth := lipgloss.Width(" 100%")
		h.progress.Width = max(width-lipgloss.Width(statsText)-percentLabelWidth-4, 15)
	}

	lines := []string{title}
	if h.target != "" {
		lines = append(lines, styles.DimStyle.Render("Target: "+h.target))
	}
	lines = append(lines,
		fmt.Sprintf("%s %s %s", prefix, h.progress.View(), statsText),
		"",
	)
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// UpdateStats replaces the counters and animates the bar towards the new
// completion ratio.
func (h *RunHeaderComponent) UpdateStats(s results.Snapshot) tea.Cmd {
	h.stats = s
	var percent float64
	if s.Total > 0 {
		percent = float64(s.Finished()) / float64(s.Total)
	}
	return h.progress.SetPercent(percent)
}

func (h *RunHeaderComponent) SetCompleted() {
	h.done = true
}
