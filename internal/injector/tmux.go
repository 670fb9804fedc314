package injector

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kingrea/lattice-autopilot/internal/shell"
	"github.com/kingrea/lattice-autopilot/internal/transport"
)

// Tmux drives an agent running in a tmux pane.
type Tmux struct {
	runner shell.Runner
	pinned string
	buffer string
	target string
}

// NewTmux returns a tmux injector. A non-empty target skips title lookup.
func NewTmux(runner shell.Runner, target, buffer string) *Tmux {
	if strings.TrimSpace(buffer) == "" {
		buffer = "autopilot"
	}
	return &Tmux{runner: runner, pinned: strings.TrimSpace(target), buffer: buffer}
}

// Target returns the pane the injector last resolved.
func (t *Tmux) Target() string {
	if t.target != "" {
		return t.target
	}
	return t.pinned
}

func (t *Tmux) tmux(ctx context.Context, args ...string) (string, error) {
	return t.runner.Run(ctx, shell.Command{Name: "tmux", Args: args})
}

// ActivateWindow implements Injector.
func (t *Tmux) ActivateWindow(ctx context.Context, title string) error {
	target := t.pinned
	if target == "" {
		found, err := t.findWindow(ctx, title)
		if err != nil {
			return err
		}
		target = found
	}
	if _, err := t.tmux(ctx, "select-window", "-t", target); err != nil {
		return fmt.Errorf("injector: select tmux window %s: %w", target, err)
	}
	t.target = target
	return nil
}

const windowFormat = "#{session_name}:#{window_index}\t#{window_name}\t#{pane_title}"

func (t *Tmux) findWindow(ctx context.Context, title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", errors.New("injector: window title is required")
	}
	out, err := t.tmux(ctx, "list-windows", "-a", "-F", windowFormat)
	if err != nil {
		return "", fmt.Errorf("injector: list tmux windows: %w", err)
	}
	for _, line := range strings.Split(out, "\n") {
		parts := strings.SplitN(line, "\t", 3)
		if len(parts) < 2 {
			continue
		}
		for _, name := range parts[1:] {
			if strings.Contains(name, title) {
				return parts[0], nil
			}
		}
	}
	return "", fmt.Errorf("%w: %q", ErrWindowNotFound, title)
}

// ClickRelative focuses the active pane of the window; tmux has no pointer.
func (t *Tmux) ClickRelative(ctx context.Context, title string, _, _ float64) error {
	if t.Target() == "" {
		if err := t.ActivateWindow(ctx, title); err != nil {
			return err
		}
	}
	_, err := t.tmux(ctx, "select-pane", "-t", t.Target())
	return err
}

// Paste implements Injector by pasting the autopilot buffer into the pane.
// tmux cannot reach the system clipboard, so any medium other than the tmux
// buffer is ErrPasteUnsupported.
func (t *Tmux) Paste(ctx context.Context, medium string) error {
	if t.Target() == "" {
		return errors.New("injector: no tmux target; activate a window first")
	}
	if medium != "" && medium != transport.NameTmuxBuffer {
		return fmt.Errorf("%w %q on tmux", ErrPasteUnsupported, medium)
	}
	_, err := t.tmux(ctx, "paste-buffer", "-b", t.buffer, "-t", t.Target())
	return err
}

// TypeText implements Injector.
func (t *Tmux) TypeText(ctx context.Context, text string) error {
	if t.Target() == "" {
		return errors.New("injector: no tmux target; activate a window first")
	}
	_, err := t.tmux(ctx, "send-keys", "-t", t.Target(), "-l", text)
	return err
}

var tmuxKeys = map[string]string{
	"enter":  "Enter",
	"return": "Enter",
	"tab":    "Tab",
	"escape": "Escape",
	"esc":    "Escape",
	"space":  "Space",
}

// PressKey implements Injector.
func (t *Tmux) PressKey(ctx context.Context, key string) error {
	if t.Target() == "" {
		return errors.New("injector: no tmux target; activate a window first")
	}
	name, ok := tmuxKeys[strings.ToLower(key)]
	if !ok {
		name = key
	}
	_, err := t.tmux(ctx, "send-keys", "-t", t.Target(), name)
	return err
}
