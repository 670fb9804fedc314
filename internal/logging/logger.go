// Package logging builds the slog logger shared by every component. Records
// fan out to the console and to the project's logbook so users can inspect
// what happened after the terminal is gone.
package logging

import (
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"

	"github.com/kingrea/lattice-autopilot/internal/logbook"
)

type settings struct {
	debug   bool
	format  string
	quiet   bool
	console io.Writer
	book    *logbook.Logbook
}

// Option configures New.
type Option func(*settings)

// WithDebug lowers the level to debug.
func WithDebug() Option {
	return func(s *settings) {
		s.debug = true
	}
}

// WithFormat selects "text" (default) or "json" console output.
func WithFormat(format string) Option {
	return func(s *settings) {
		s.format = format
	}
}

// WithQuiet suppresses console output.
func WithQuiet() Option {
	return func(s *settings) {
		s.quiet = true
	}
}

// WithConsole redirects console output, stderr by default.
func WithConsole(w io.Writer) Option {
	return func(s *settings) {
		if w != nil {
			s.console = w
		}
	}
}

// WithLogbook also writes every record to book.
func WithLogbook(book *logbook.Logbook) Option {
	return func(s *settings) {
		s.book = book
	}
}

// New returns a logger. With no sinks configured it discards everything.
func New(opts ...Option) *slog.Logger {
	s := &settings{format: "text", console: os.Stderr}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	level := slog.LevelInfo
	if s.debug {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var handlers []slog.Handler
	if !s.quiet {
		if s.format == "json" {
			handlers = append(handlers, slog.NewJSONHandler(s.console, handlerOpts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(s.console, handlerOpts))
		}
	}
	if s.book != nil {
		handlers = append(handlers, newBookHandler(s.book, level))
	}
	if len(handlers) == 0 {
		return slog.New(slog.DiscardHandler)
	}
	return slog.New(slogmulti.Fanout(handlers...))
}
