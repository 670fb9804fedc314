// Package injector focuses the agent's window and simulates the input that
// submits a prompt. Backends shell out to tmux or osascript.
package injector

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kingrea/lattice-autopilot/internal/shell"
)

// ErrWindowNotFound is returned when no window matches the configured title.
var ErrWindowNotFound = errors.New("injector: window not found")

// ErrPasteUnsupported is returned by Paste when the backend has no paste
// keystroke that reads from the given medium.
var ErrPasteUnsupported = errors.New("injector: cannot paste from medium")

// Injector is the input surface of the agent.
type Injector interface {
	// ActivateWindow brings the first window whose title contains title to
	// the front.
	ActivateWindow(ctx context.Context, title string) error
	// ClickRelative clicks at (x, y) given as fractions of the window size.
	ClickRelative(ctx context.Context, title string, x, y float64) error
	// Paste inserts the content of medium, the transport strategy that holds
	// the text, into the focused window. An empty medium means none verified
	// and the backend's usual paste source is used.
	Paste(ctx context.Context, medium string) error
	// TypeText types text literally.
	TypeText(ctx context.Context, text string) error
	// PressKey presses a single named key such as "enter".
	PressKey(ctx context.Context, key string) error
}

// Backend names accepted in configuration.
const (
	BackendTmux      = "tmux"
	BackendOsascript = "osascript"
)

// Options configures New.
type Options struct {
	Backend string
	Runner  shell.Runner
	// TmuxTarget pins the tmux pane; when empty the window is found by title.
	TmuxTarget string
	TmuxBuffer string
}

// New returns the injector for opts.Backend.
func New(opts Options) (Injector, error) {
	runner := opts.Runner
	if runner == nil {
		runner = shell.Exec{}
	}
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case BackendTmux, "":
		return NewTmux(runner, opts.TmuxTarget, opts.TmuxBuffer), nil
	case BackendOsascript:
		return NewOsascript(runner), nil
	default:
		return nil, fmt.Errorf("injector: unknown backend %q", opts.Backend)
	}
}
