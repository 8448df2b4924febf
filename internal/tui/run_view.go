// Package tui renders the interactive live view of a conformance run.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Use-Tusk/checkout-conformance/internal/log"
	"github.com/Use-Tusk/checkout-conformance/internal/results"
	"github.com/Use-Tusk/checkout-conformance/internal/tui/components"
	"github.com/Use-Tusk/checkout-conformance/internal/tui/styles"
	"github.com/Use-Tusk/checkout-conformance/internal/utils"
)

// RunViewOpts configure the live view.
type RunViewOpts struct {
	// Target is shown in the header.
	Target     string
	Aggregator *results.Aggregator
	// Run executes the scenarios. It is started when the view opens and
	// its context is canceled when the user quits early.
	Run func(ctx context.Context) error
	// InitialRunLogs are shown before anything the run logs itself.
	InitialRunLogs []string
}

type runState int

const (
	stateRunning runState = iota
	stateStopping
	stateCompleted
)

type (
	aggregatorEventMsg results.Event
	logsUpdatedMsg     struct{}
	runFinishedMsg     struct{ err error }
	hideCopyNoticeMsg  struct{}
)

// logStore holds run and per-scenario logs. It is written from the log
// queue goroutine and read by the model.
type logStore struct {
	mu   sync.Mutex
	run  []string
	test map[string][]string
}

func (s *logStore) addRun(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.run = append(s.run, line)
}

func (s *logStore) addTest(name, line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.test == nil {
		s.test = make(map[string][]string)
	}
	s.test[name] = append(s.test[name], line)
}

func (s *logStore) runLines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.run...)
}

func (s *logStore) testLines(name string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.test[name]...)
}

type runViewModel struct {
	opts    RunViewOpts
	ctx     context.Context
	cancel  context.CancelFunc
	events  <-chan results.Event
	unsub   func()
	program *tea.Program

	state    runState
	snapshot results.Snapshot

	logs       *logStore
	header     *components.RunHeaderComponent
	table      *components.ScenarioTableComponent
	details    *components.DetailsPanel
	sizeGuard  *components.SizeGuard
	copyNotice bool

	width  int
	height int
}

func newRunViewModel(ctx context.Context, opts RunViewOpts) *runViewModel {
	ctx, cancel := context.WithCancel(ctx)
	events, unsub := opts.Aggregator.Events(64)

	m := &runViewModel{
		opts:      opts,
		ctx:       ctx,
		cancel:    cancel,
		events:    events,
		unsub:     unsub,
		logs:      &logStore{},
		header:    components.NewRunHeaderComponent(opts.Target),
		table:     components.NewScenarioTableComponent(),
		details:   components.NewDetailsPanel("Run log"),
		sizeGuard: components.NewSizeGuard(),
		width:     120,
		height:    30,
	}
	for _, line := range opts.InitialRunLogs {
		m.logs.addRun(line)
	}
	m.refreshDetails()
	return m
}

// LogToRun implements log.TUILogger.
func (m *runViewModel) LogToRun(message string) {
	m.logs.addRun(message)
	m.notifyLogs()
}

// LogToTest implements log.TUILogger.
func (m *runViewModel) LogToTest(name, message string) {
	m.logs.addTest(name, message)
	m.notifyLogs()
}

func (m *runViewModel) notifyLogs() {
	if m.program != nil {
		go m.program.Send(logsUpdatedMsg{})
	}
}

func (m *runViewModel) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return nil
		}
		return aggregatorEventMsg(ev)
	}
}

func (m *runViewModel) Init() tea.Cmd {
	return tea.Batch(m.header.Init(), m.waitForEvent())
}

func (m *runViewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.sizeGuard.Resize(m.width, m.height)
		return m, nil

	case tea.KeyMsg:
		if m.sizeGuard.Active() {
			switch msg.String() {
			case "enter", "d", "D":
				m.sizeGuard.Dismiss()
			case "q", "ctrl+c", "esc":
				return m, m.quit()
			}
			return m, nil
		}
		return m, m.handleKey(msg)

	case aggregatorEventMsg:
		m.snapshot = msg.Snapshot
		m.table.SetRows(m.snapshot.Results)
		m.refreshDetails()
		if msg.Type == results.EventComplete {
			m.header.SetCompleted()
		}
		cmds = append(cmds, m.header.UpdateStats(m.snapshot), m.waitForEvent())

	case logsUpdatedMsg:
		m.refreshDetails()

	case runFinishedMsg:
		m.state = stateCompleted
		m.header.SetCompleted()
		m.logs.addRun("")
		switch {
		case msg.err != nil && !errors.Is(msg.err, context.Canceled):
			m.logs.addRun(fmt.Sprintf("Run failed: %v", msg.err))
		case m.ctx.Err() != nil:
			m.logs.addRun("Run stopped before all scenarios finished")
		default:
			m.logs.addRun("All scenarios completed")
		}
		m.refreshDetails()

	case hideCopyNoticeMsg:
		m.copyNotice = false
	}

	if cmd := m.header.Update(msg); cmd != nil {
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func (m *runViewModel) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "up", "k":
		m.table.SelectUp(1)
		m.refreshDetails()
	case "down", "j":
		m.table.SelectDown(1)
		m.refreshDetails()
	case "g":
		m.table.GotoTop()
		m.refreshDetails()
	case "G":
		m.table.GotoBottom()
		m.refreshDetails()
	case "K":
		m.details.ScrollUp(1)
	case "J":
		m.details.ScrollDown(1)
	case "pgup", "ctrl+u":
		m.details.HalfPageUp()
	case "pgdown", "ctrl+d":
		m.details.HalfPageDown()
	case "y":
		return m.copyDetails()
	case "q", "ctrl+c", "esc":
		if m.state == stateRunning {
			// First press stops the run; the view stays open to show results.
			m.state = stateStopping
			m.logs.addRun("Stopping run...")
			m.refreshDetails()
			m.cancel()
			return nil
		}
		return m.quit()
	}
	return nil
}

func (m *runViewModel) quit() tea.Cmd {
	m.cancel()
	return tea.Quit
}

func (m *runViewModel) copyDetails() tea.Cmd {
	text := utils.StripANSI(m.details.Raw())
	if err := utils.CopyToClipboard(text); err != nil {
		m.logs.addRun(fmt.Sprintf("Failed to copy: %v", err))
		m.refreshDetails()
		return nil
	}
	m.copyNotice = true
	return tea.Tick(2*time.Second, func(time.Time) tea.Msg { return hideCopyNoticeMsg{} })
}

func (m *runViewModel) refreshDetails() {
	o, ok := m.table.Selected()
	if !ok {
		m.details.SetContent("Run log", strings.Join(m.logs.runLines(), "\n"), true)
		return
	}
	m.details.SetContent(o.Name, formatOutcome(o, m.logs.testLines(o.Name)), false)
}

// formatOutcome renders one scenario for the details panel.
func formatOutcome(o results.Outcome, logs []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Category: %s\n", o.Category)
	if o.File != "" {
		fmt.Fprintf(&b, "Suite:    %s\n", o.File)
	}
	fmt.Fprintf(&b, "Status:   %s", o.Status)
	if o.Status.Terminal() {
		fmt.Fprintf(&b, " (%dms)", o.Duration.Milliseconds())
	}
	b.WriteString("\n")
	if o.Error != "" {
		fmt.Fprintf(&b, "\n%s\n", styles.ErrorStyle.Render(o.Error))
	}

	for i, d := range o.Deviations {
		fmt.Fprintf(&b, "\n%d. [%s] %s\n", i+1, d.Rule, d.Description)
		if d.Path != "" {
			fmt.Fprintf(&b, "   at %s\n", d.Path)
		}
		switch {
		case isStructured(d.Expected) || isStructured(d.Actual):
			b.WriteString(utils.FormatJSONDiff(d.Expected, d.Actual))
			b.WriteString("\n")
		case d.Expected != nil || d.Actual != nil:
			fmt.Fprintf(&b, "   expected: %v\n   actual:   %v\n", d.Expected, d.Actual)
		}
		if d.Detail != "" {
			b.WriteString(styles.DimStyle.Render(d.Detail))
			b.WriteString("\n")
		}
	}

	if len(logs) > 0 {
		b.WriteString("\n")
		b.WriteString(styles.HeadingStyle.Render("Requests"))
		b.WriteString("\n")
		b.WriteString(strings.Join(logs, "\n"))
	}
	return b.String()
}

func isStructured(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	}
	return false
}

func (m *runViewModel) footerText() string {
	quit := "q: stop run"
	if m.state != stateRunning {
		quit = "q: quit"
	}
	return "↑/↓: navigate • g/G: top/bottom • J/K, pgup/pgdown: scroll details • y: copy details • " + quit
}

func (m *runViewModel) footer() string {
	if !m.copyNotice {
		return components.HelpLine(utils.TruncateWithEllipsis(m.footerText(), m.width))
	}
	right := styles.SuccessStyle.Render("Copied ✓")
	available := m.width - lipgloss.Width(right) - 1
	left := components.HelpLine(utils.TruncateWithEllipsis(m.footerText(), available))
	space := max(m.width-lipgloss.Width(left)-lipgloss.Width(right), 1)
	return left + strings.Repeat(" ", space) + right
}

func (m *runViewModel) View() string {
	if m.sizeGuard.Active() {
		return m.sizeGuard.View(m.width, m.height)
	}

	header := m.header.View(m.width)
	footer := m.footer()
	contentHeight := max(m.height-lipgloss.Height(header)-lipgloss.Height(footer), 6)

	var body string
	if components.Stacked(m.width) {
		tableHeight := contentHeight / 2
		body = lipgloss.JoinVertical(lipgloss.Left,
			m.table.View(m.width, tableHeight),
			m.details.View(m.width, contentHeight-tableHeight),
		)
	} else {
		tableWidth, detailsWidth := components.SplitColumns(m.width - 1)
		body = lipgloss.JoinHorizontal(lipgloss.Top,
			m.table.View(tableWidth, contentHeight),
			" ",
			m.details.View(detailsWidth, contentHeight),
		)
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}

// RunInteractive runs opts.Run under the live view and returns its error
// once the user closes the view and the run has returned.
func RunInteractive(ctx context.Context, opts RunViewOpts) error {
	if opts.Aggregator == nil || opts.Run == nil {
		return errors.New("run view needs an aggregator and a run function")
	}

	m := newRunViewModel(ctx, opts)
	defer m.unsub()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	m.program = p

	prevMode := log.GetMode()
	log.SetMode(log.ModeTUI)
	log.SetTUILogger(m)
	defer func() {
		log.SetTUILogger(nil)
		log.SetMode(prevMode)
	}()

	done := make(chan error, 1)
	go func() {
		err := opts.Run(m.ctx)
		done <- err
		p.Send(runFinishedMsg{err: err})
	}()

	_, viewErr := p.Run()
	// Nobody reads events once the view is gone. Unsubscribe before waiting
	// so the run can record its remaining outcomes.
	m.unsub()
	// Closing the view early stops the run; wait for it so the aggregator
	// is final when we return.
	m.cancel()
	runErr := <-done

	if viewErr != nil && !errors.Is(viewErr, tea.ErrProgramKilled) {
		return viewErr
	}
	return runErr
}
