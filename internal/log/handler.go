package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Handler wraps slog.TextHandler. While the live view is active it keeps
// stderr clean: warnings and errors are forwarded to the run panel and
// everything else is dropped.
type Handler struct {
	*slog.TextHandler
	w     io.Writer
	attrs []slog.Attr
}

// NewHandler creates a new mode-aware slog handler
func NewHandler(w io.Writer, opts *slog.HandlerOptions) *Handler {
	return &Handler{
		TextHandler: slog.NewTextHandler(w, opts),
		w:           w,
	}
}

// Handle processes a log record
func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	if GetMode() != ModeTUI {
		return h.TextHandler.Handle(ctx, r)
	}
	if r.Level < slog.LevelWarn {
		return nil
	}
	RunLog(formatForPanel(r, h.attrs))
	return nil
}

// WithAttrs returns a new Handler with the given attributes
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{
		TextHandler: h.TextHandler.WithAttrs(attrs).(*slog.TextHandler),
		w:           h.w,
		attrs:       append(append([]slog.Attr(nil), h.attrs...), attrs...),
	}
}

// WithGroup returns a new Handler with the given group
func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{
		TextHandler: h.TextHandler.WithGroup(name).(*slog.TextHandler),
		w:           h.w,
		attrs:       h.attrs,
	}
}

func formatForPanel(r slog.Record, attrs []slog.Attr) string {
	var b strings.Builder
	b.WriteString(r.Level.String())
	b.WriteString(": ")
	b.WriteString(r.Message)
	write := func(a slog.Attr) bool {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value.Any())
		return true
	}
	for _, a := range attrs {
		write(a)
	}
	r.Attrs(write)
	return b.String()
}
