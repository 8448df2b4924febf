package utils

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

const progressBarWidth = 40

// ProgressBar draws a single-line progress bar, redrawn in place with \r.
// It is used for headless runs on an interactive stderr.
type ProgressBar struct {
	mu      sync.Mutex
	writer  io.Writer
	message string
	current int
	total   int
	failed  int
	started bool
	width   int
}

func NewProgressBar(w io.Writer, message string) *ProgressBar {
	return &ProgressBar{writer: w, message: message}
}

// Start shows an empty bar
func (p *ProgressBar) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return
	}
	p.started = true
	p.render()
}

// Update sets the finished, total and failed counts and redraws.
func (p *ProgressBar) Update(current, total, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current, p.total, p.failed = current, total, failed
	p.render()
}

func (p *ProgressBar) render() {
	if !p.started {
		return
	}

	var ratio float64
	if p.total > 0 {
		ratio = min(float64(p.current)/float64(p.total), 1.0)
	}
	filled := int(ratio * float64(progressBarWidth))

	var bar strings.Builder
	for i := range progressBarWidth {
		switch {
		case i < filled-1:
			bar.WriteByte('=')
		case i == filled-1:
			bar.WriteByte('>')
		default:
			bar.WriteByte('.')
		}
	}

	line := fmt.Sprintf("%s [%s] %d/%d", p.message, bar.String(), p.current, p.total)
	if p.failed > 0 {
		line += fmt.Sprintf(" (%d failed)", p.failed)
	}
	// pad over a longer previous line
	pad := max(p.width-len(line), 0)
	p.width = len(line)
	_, _ = fmt.Fprintf(p.writer, "\r%s%s", line, strings.Repeat(" ", pad))
}

// Finish clears the bar and prints finalMessage if it is not empty
func (p *ProgressBar) Finish(finalMessage string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}
	p.started = false
	_, _ = fmt.Fprintf(p.writer, "\r%s\r", strings.Repeat(" ", p.width))

	if finalMessage != "" {
		_, _ = fmt.Fprintln(p.writer, finalMessage)
	}
}
