package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/samber/lo"

	"github.com/kingrea/lattice-autopilot/internal/shell"
)

// Strategy names accepted in configuration.
const (
	NameClipboard  = "clipboard"
	NameOsascript  = "osascript"
	NamePbcopy     = "pbcopy"
	NameTmuxBuffer = "tmux-buffer"
)

// KnownStrategies lists every built-in strategy in default priority order.
var KnownStrategies = []string{NameClipboard, NameOsascript, NamePbcopy, NameTmuxBuffer}

// IsKnown reports whether name is a built-in strategy.
func IsKnown(name string) bool {
	return lo.Contains(KnownStrategies, name)
}

// Deps carries what the built-in strategies need.
type Deps struct {
	Runner     shell.Runner
	TmuxBuffer string
}

// Build returns strategies for names in the given order. Duplicates are
// dropped; unknown names are an error.
func Build(names []string, deps Deps) ([]Strategy, error) {
	if deps.Runner == nil {
		deps.Runner = shell.Exec{}
	}
	names = lo.Uniq(lo.Map(names, func(n string, _ int) string { return strings.TrimSpace(n) }))
	if unknown := lo.Reject(names, func(n string, _ int) bool { return IsKnown(n) }); len(unknown) > 0 {
		return nil, fmt.Errorf("transport: unknown strategies %v", unknown)
	}
	strategies := make([]Strategy, 0, len(names))
	for _, name := range names {
		switch name {
		case NameClipboard:
			strategies = append(strategies, NewClipboard())
		case NameOsascript:
			strategies = append(strategies, &OsascriptStrategy{runner: deps.Runner})
		case NamePbcopy:
			strategies = append(strategies, &PbcopyStrategy{runner: deps.Runner})
		case NameTmuxBuffer:
			strategies = append(strategies, &TmuxBufferStrategy{runner: deps.Runner, buffer: deps.TmuxBuffer})
		}
	}
	return strategies, nil
}

// ErrClipboardUnsupported is returned when no system clipboard utility exists.
var ErrClipboardUnsupported = errors.New("transport: system clipboard unsupported")

// ClipboardStrategy uses the platform clipboard through atotto/clipboard.
type ClipboardStrategy struct {
	write       func(string) error
	read        func() (string, error)
	unsupported func() bool
}

// NewClipboard returns a strategy bound to the system clipboard.
func NewClipboard() *ClipboardStrategy {
	return &ClipboardStrategy{
		write:       clipboard.WriteAll,
		read:        clipboard.ReadAll,
		unsupported: func() bool { return clipboard.Unsupported },
	}
}

// Name implements Strategy.
func (s *ClipboardStrategy) Name() string { return NameClipboard }

// Set implements Strategy.
func (s *ClipboardStrategy) Set(_ context.Context, text string) error {
	if s.unsupported != nil && s.unsupported() {
		return ErrClipboardUnsupported
	}
	return s.write(text)
}

// Get implements Strategy.
func (s *ClipboardStrategy) Get(context.Context) (string, error) {
	if s.unsupported != nil && s.unsupported() {
		return "", ErrClipboardUnsupported
	}
	return s.read()
}

// OsascriptStrategy sets the macOS clipboard through AppleScript.
type OsascriptStrategy struct {
	runner shell.Runner
}

// Name implements Strategy.
func (s *OsascriptStrategy) Name() string { return NameOsascript }

// Set implements Strategy.
func (s *OsascriptStrategy) Set(ctx context.Context, text string) error {
	_, err := s.runner.Run(ctx, shell.Osascript("set the clipboard to "+shell.AppleScriptString(text)))
	return err
}

// Get implements Strategy.
func (s *OsascriptStrategy) Get(ctx context.Context) (string, error) {
	out, err := s.runner.Run(ctx, shell.Osascript("the clipboard as text"))
	if err != nil {
		return "", err
	}
	// osascript terminates its result with a newline.
	return strings.TrimSuffix(out, "\n"), nil
}

var utf8Env = []string{"LANG=en_US.UTF-8", "LC_CTYPE=UTF-8"}

// PbcopyStrategy pipes text to pbcopy and reads it back with pbpaste.
type PbcopyStrategy struct {
	runner shell.Runner
}

// Name implements Strategy.
func (s *PbcopyStrategy) Name() string { return NamePbcopy }

// Set implements Strategy.
func (s *PbcopyStrategy) Set(ctx context.Context, text string) error {
	_, err := s.runner.Run(ctx, shell.Command{Name: "pbcopy", Stdin: text, Env: utf8Env})
	return err
}

// Get implements Strategy.
func (s *PbcopyStrategy) Get(ctx context.Context) (string, error) {
	return s.runner.Run(ctx, shell.Command{Name: "pbpaste", Env: utf8Env})
}

// DefaultTmuxBuffer is the paste buffer name used when none is configured.
const DefaultTmuxBuffer = "autopilot"

// TmuxBufferStrategy stores text in a named tmux paste buffer.
type TmuxBufferStrategy struct {
	runner shell.Runner
	buffer string
}

// Name implements Strategy.
func (s *TmuxBufferStrategy) Name() string { return NameTmuxBuffer }

func (s *TmuxBufferStrategy) bufferName() string {
	if strings.TrimSpace(s.buffer) == "" {
		return DefaultTmuxBuffer
	}
	return s.buffer
}

// Set implements Strategy.
func (s *TmuxBufferStrategy) Set(ctx context.Context, text string) error {
	if text == "" {
		_, err := s.runner.Run(ctx, shell.Command{Name: "tmux", Args: []string{"delete-buffer", "-b", s.bufferName()}})
		if err != nil && strings.Contains(err.Error(), "unknown buffer") {
			return nil
		}
		return err
	}
	_, err := s.runner.Run(ctx, shell.Command{Name: "tmux", Args: []string{"set-buffer", "-b", s.bufferName(), "--", text}})
	return err
}

// Get implements Strategy.
func (s *TmuxBufferStrategy) Get(ctx context.Context) (string, error) {
	return s.runner.Run(ctx, shell.Command{Name: "tmux", Args: []string{"show-buffer", "-b", s.bufferName()}})
}
