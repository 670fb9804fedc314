package logging

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/kingrea/lattice-autopilot/internal/logbook"
)

var _ slog.Handler = (*bookHandler)(nil)

// bookHandler renders records as "message key=value ..." lines in the logbook.
// The logbook serializes writes itself.
type bookHandler struct {
	book   *logbook.Logbook
	level  slog.Level
	attrs  []slog.Attr
	prefix string
}

func newBookHandler(book *logbook.Logbook, level slog.Level) *bookHandler {
	return &bookHandler{book: book, level: level}
}

// Enabled implements slog.Handler.
func (h *bookHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

// Handle implements slog.Handler.
func (h *bookHandler) Handle(_ context.Context, record slog.Record) error {
	var b strings.Builder
	b.WriteString(record.Message)
	for _, attr := range h.attrs {
		writeAttr(&b, "", attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		writeAttr(&b, h.prefix, attr)
		return true
	})
	h.book.Append(bookLevel(record.Level), b.String())
	return nil
}

// WithAttrs implements slog.Handler.
func (h *bookHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next.attrs = append(next.attrs, h.attrs...)
	for _, attr := range attrs {
		next.attrs = append(next.attrs, slog.Attr{Key: h.prefix + attr.Key, Value: attr.Value})
	}
	return &next
}

// WithGroup implements slog.Handler.
func (h *bookHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

func writeAttr(b *strings.Builder, prefix string, attr slog.Attr) {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return
	}
	if attr.Value.Kind() == slog.KindGroup {
		for _, child := range attr.Value.Group() {
			writeAttr(b, prefix+attr.Key+".", child)
		}
		return
	}
	fmt.Fprintf(b, " %s%s=%s", prefix, attr.Key, formatValue(attr.Value))
}

func formatValue(v slog.Value) string {
	s := v.String()
	if s == "" || strings.ContainsAny(s, " \t\"=") {
		return strconv.Quote(s)
	}
	return s
}

func bookLevel(level slog.Level) logbook.Level {
	switch {
	case level >= slog.LevelError:
		return logbook.LevelError
	case level >= slog.LevelWarn:
		return logbook.LevelWarn
	case level >= slog.LevelInfo:
		return logbook.LevelInfo
	default:
		return logbook.LevelDebug
	}
}
