package logger

import (
	"context"
	"io"
	"log/slog"
	"sync"
)

// ColorTextHandler prints an ANSI-colored level tag followed by a standard
// slog text line. The tag is written outside the line so the escape codes
// are not quoted away by slog.TextHandler. Intended for interactive stderr.
type ColorTextHandler struct {
	mu    *sync.Mutex
	w     io.Writer
	inner slog.Handler
}

// NewColorTextHandler creates a ColorTextHandler writing to w. When showTime
// is false the built-in time attribute is dropped from each record.
func NewColorTextHandler(w io.Writer, opts *slog.HandlerOptions, showTime bool) *ColorTextHandler {
	var o slog.HandlerOptions
	if opts != nil {
		o = *opts
	}
	prev := o.ReplaceAttr
	o.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
		if len(groups) == 0 {
			if a.Key == slog.LevelKey {
				return slog.Attr{} // the colored prefix already carries it
			}
			if a.Key == slog.TimeKey && !showTime {
				return slog.Attr{}
			}
		}
		if prev != nil {
			return prev(groups, a)
		}
		return a
	}
	return &ColorTextHandler{
		mu:    &sync.Mutex{},
		w:     w,
		inner: slog.NewTextHandler(w, &o),
	}
}

// Enabled implements slog.Handler.
func (h *ColorTextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *ColorTextHandler) Handle(ctx context.Context, r slog.Record) error {
	var colorCode string
	switch {
	case r.Level >= slog.LevelError:
		colorCode = "\033[31m" // Red
	case r.Level >= slog.LevelWarn:
		colorCode = "\033[33m" // Yellow
	case r.Level >= slog.LevelInfo:
		colorCode = "\033[32m" // Green
	default:
		colorCode = "\033[36m" // Cyan
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := io.WriteString(h.w, colorCode+r.Level.String()+"\033[0m "); err != nil {
		return err
	}
	return h.inner.Handle(ctx, r)
}

// WithAttrs implements slog.Handler, keeping the color wrapper intact.
func (h *ColorTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ColorTextHandler{mu: h.mu, w: h.w, inner: h.inner.WithAttrs(attrs)}
}

// WithGroup implements slog.Handler, keeping the color wrapper intact.
func (h *ColorTextHandler) WithGroup(name string) slog.Handler {
	return &ColorTextHandler{mu: h.mu, w: h.w, inner: h.inner.WithGroup(name)}
}
