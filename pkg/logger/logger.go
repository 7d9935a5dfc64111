// Package logger provides a colored slog handler for terminal output.
// Warnings render yellow, errors red, and persistence messages green so
// database activity stands out when tailing a session.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
)

// ColorHandler is a slog.Handler that writes human-readable colored lines.
type ColorHandler struct {
	opts   slog.HandlerOptions
	mu     *sync.Mutex
	w      io.Writer
	attrs  []slog.Attr
	groups []string
}

// NewColorHandler creates a handler writing to w. A nil opts uses defaults.
func NewColorHandler(w io.Writer, opts *slog.HandlerOptions) *ColorHandler {
	h := &ColorHandler{
		mu: &sync.Mutex{},
		w:  w,
	}
	if opts != nil {
		h.opts = *opts
	}
	return h
}

// NewDefaultLogger creates a logger writing colored output to stderr at the
// given level.
func NewDefaultLogger(level slog.Level) *slog.Logger {
	return slog.New(NewColorHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func (h *ColorHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

func (h *ColorHandler) Handle(_ context.Context, record slog.Record) error {
	var sb strings.Builder

	color := colorFor(record.Level, record.Message)
	if color != "" {
		sb.WriteString(color)
	}

	sb.WriteString(record.Time.Format(time.RFC3339))
	sb.WriteString(" ")
	sb.WriteString(record.Level.String())
	sb.WriteString(" ")
	sb.WriteString(record.Message)

	prefix := strings.Join(h.groups, ".")
	for _, attr := range h.attrs {
		writeAttr(&sb, prefix, attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		writeAttr(&sb, prefix, attr)
		return true
	})

	if color != "" {
		sb.WriteString(colorReset)
	}
	sb.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, sb.String())
	return err
}

func (h *ColorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &clone
}

func (h *ColorHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string{}, h.groups...), name)
	return &clone
}

func writeAttr(sb *strings.Builder, prefix string, attr slog.Attr) {
	if attr.Equal(slog.Attr{}) {
		return
	}
	key := attr.Key
	if prefix != "" {
		key = prefix + "." + key
	}
	fmt.Fprintf(sb, " %s=%v", key, attr.Value.Resolve().Any())
}

// colorFor picks the line color. Persistence and database messages get green
// at info level so storage activity is easy to spot.
func colorFor(level slog.Level, message string) string {
	switch {
	case level >= slog.LevelError:
		return colorRed
	case level >= slog.LevelWarn:
		return colorYellow
	case level >= slog.LevelInfo:
		lower := strings.ToLower(message)
		if strings.Contains(lower, "persist") || strings.Contains(lower, "database") || strings.Contains(lower, "saved") {
			return colorGreen
		}
	}
	return ""
}
