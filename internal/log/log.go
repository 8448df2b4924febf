// Package log provides centralized logging for conform.
//
// Developer logs go through slog. User-facing lines are styled and printed
// to stdout in headless mode only; while the live view is up it owns the
// terminal and receives run and per-scenario lines through a buffered queue.
package log

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/lipgloss"

	"github.com/Use-Tusk/checkout-conformance/internal/tui/styles"
)

// OutputMode selects where user-facing output goes.
type OutputMode int32

const (
	ModeTUI OutputMode = iota
	ModeHeadless
)

// TUILogger receives lines for the live view's panels.
type TUILogger interface {
	LogToTest(name, message string)
	LogToRun(message string)
}

// panelLine is a queued line. An empty scenario means the run panel.
type panelLine struct {
	scenario string
	text     string
}

const queueSize = 1000

type logger struct {
	mode  atomic.Int32
	sink  atomic.Pointer[TUILogger]
	queue chan panelLine
	stop  chan struct{}
	done  sync.WaitGroup
}

var (
	std      *logger
	initOnce sync.Once
)

func get() *logger {
	initOnce.Do(func() {
		std = &logger{
			queue: make(chan panelLine, queueSize),
			stop:  make(chan struct{}),
		}
		std.mode.Store(int32(ModeHeadless))
		std.done.Add(1)
		go std.drain()
	})
	return std
}

func (l *logger) drain() {
	defer l.done.Done()
	for {
		select {
		case line := <-l.queue:
			l.deliver(line)
		case <-l.stop:
			for {
				select {
				case line := <-l.queue:
					l.deliver(line)
				default:
					return
				}
			}
		}
	}
}

func (l *logger) deliver(line panelLine) {
	p := l.sink.Load()
	if p == nil {
		return
	}
	if line.scenario == "" {
		(*p).LogToRun(line.text)
	} else {
		(*p).LogToTest(line.scenario, line.text)
	}
}

func (l *logger) enqueue(line panelLine) {
	select {
	case l.queue <- line:
	default:
		slog.Debug("Panel log queue full, dropping line", "scenario", line.scenario, "line", line.text)
	}
}

// Setup installs the slog handler and sets the output mode. Call it once at
// startup.
func Setup(debug bool, mode OutputMode) {
	SetMode(mode)
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(NewHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// SetTUILogger points panel output at tui. Pass nil when the view exits.
func SetTUILogger(tui TUILogger) {
	if tui == nil {
		get().sink.Store(nil)
		return
	}
	get().sink.Store(&tui)
}

func SetMode(mode OutputMode) { get().mode.Store(int32(mode)) }

func GetMode() OutputMode { return OutputMode(get().mode.Load()) }

// Shutdown flushes queued panel lines and stops the queue.
func Shutdown() {
	l := get()
	close(l.stop)
	l.done.Wait()
}

func Debug(msg string, args ...any) { slog.Debug(msg, args...) }

func Warn(msg string, args ...any) { slog.Warn(msg, args...) }

var deviationStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))

func styled(s lipgloss.Style, msg string) string {
	if styles.NoColor() {
		return msg
	}
	return s.Render(msg)
}

func userLine(msg string) {
	if GetMode() == ModeHeadless {
		fmt.Fprintln(os.Stdout, msg)
	}
}

func UserInfo(msg string) { userLine(msg) }
func UserSuccess(msg string) { userLine(styled(styles.SuccessStyle, msg)) }
func UserProgress(msg string) { userLine(styled(styles.DimStyle, msg)) }
func UserDeviation(msg string) { userLine(styled(deviationStyle, msg)) }

// RunLog queues a line for the run panel without blocking.
func RunLog(msg string) { get().enqueue(panelLine{text: msg}) }

// TestLog queues a line for one scenario's log panel without blocking.
func TestLog(scenario, msg string) { get().enqueue(panelLine{scenario: scenario, text: msg}) }

// TestOrRunLog routes to the scenario's panel, or the run panel when
// scenario is empty.
func TestOrRunLog(scenario, msg string) {
	get().enqueue(panelLine{scenario: scenario, text: msg})
}
