package injector

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/kingrea/lattice-autopilot/internal/shell"
	"github.com/kingrea/lattice-autopilot/internal/transport"
)

// Osascript drives a macOS desktop application through System Events.
type Osascript struct {
	runner  shell.Runner
	process string
}

// NewOsascript returns a macOS injector.
func NewOsascript(runner shell.Runner) *Osascript {
	return &Osascript{runner: runner}
}

// Process returns the name of the process last brought to the front.
func (o *Osascript) Process() string {
	return o.process
}

func (o *Osascript) run(ctx context.Context, script string) (string, error) {
	out, err := o.runner.Run(ctx, shell.Osascript(script))
	return strings.TrimSpace(out), err
}

const activateScript = `tell application "System Events"
	set processList to every process whose background only is false
	repeat with p in processList
		set winList to every window of p
		repeat with w in winList
			try
				if title of w contains %s then
					set frontmost of p to true
					return name of p
				end if
			end try
		end repeat
	end repeat
end tell
return ""`

// ActivateWindow implements Injector.
func (o *Osascript) ActivateWindow(ctx context.Context, title string) error {
	name, err := o.run(ctx, fmt.Sprintf(activateScript, shell.AppleScriptString(title)))
	if err != nil {
		return fmt.Errorf("injector: activate %q: %w", title, err)
	}
	if name == "" {
		return fmt.Errorf("%w: %q", ErrWindowNotFound, title)
	}
	o.process = name
	return nil
}

const locateScript = `tell application "System Events"
	set processList to every process whose background only is false
	repeat with p in processList
		set winList to every window of p
		repeat with w in winList
			try
				if title of w contains %s then
					set pos to position of w
					set sz to size of w
					set targetX to (item 1 of pos) + (item 1 of sz) * %s
					set targetY to (item 2 of pos) + (item 2 of sz) * %s
					return (targetX as string) & "," & (targetY as string)
				end if
			end try
		end repeat
	end repeat
end tell
return ""`

// ClickRelative implements Injector.
func (o *Osascript) ClickRelative(ctx context.Context, title string, x, y float64) error {
	script := fmt.Sprintf(locateScript, shell.AppleScriptString(title), formatRatio(x), formatRatio(y))
	out, err := o.run(ctx, script)
	if err != nil {
		return fmt.Errorf("injector: locate %q: %w", title, err)
	}
	px, py, err := parsePoint(out)
	if err != nil {
		return fmt.Errorf("%w: %q (%v)", ErrWindowNotFound, title, err)
	}
	click := fmt.Sprintf(`tell application "System Events" to click at {%d, %d}`, px, py)
	if _, err := o.run(ctx, click); err != nil {
		return fmt.Errorf("injector: click at %d,%d: %w", px, py, err)
	}
	return nil
}

func formatRatio(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// parsePoint reads the "x,y" pair returned by locateScript.
func parsePoint(out string) (int, int, error) {
	out = strings.TrimSpace(out)
	if out == "" {
		return 0, 0, fmt.Errorf("empty position")
	}
	parts := strings.Split(out, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("unexpected position %q", out)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, err
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, err
	}
	return int(x), int(y), nil
}

func (o *Osascript) systemEvents(body string) string {
	var b strings.Builder
	b.WriteString("tell application \"System Events\"\n")
	if o.process != "" {
		fmt.Fprintf(&b, "\tset frontmost of process %s to true\n\tdelay 0.3\n", shell.AppleScriptString(o.process))
	}
	b.WriteString("\t" + body + "\n")
	b.WriteString("end tell")
	return b.String()
}

// Paste implements Injector with Command-V, which reads the system
// clipboard. A tmux buffer is ErrPasteUnsupported.
func (o *Osascript) Paste(ctx context.Context, medium string) error {
	if medium == transport.NameTmuxBuffer {
		return fmt.Errorf("%w %q with osascript", ErrPasteUnsupported, medium)
	}
	_, err := o.run(ctx, o.systemEvents(`keystroke "v" using {command down}`))
	return err
}

// TypeText implements Injector.
func (o *Osascript) TypeText(ctx context.Context, text string) error {
	_, err := o.run(ctx, o.systemEvents("keystroke "+shell.AppleScriptString(text)))
	return err
}

var keyCodes = map[string]int{
	"enter":  36,
	"return": 36,
	"tab":    48,
	"space":  49,
	"escape": 53,
	"esc":    53,
}

// PressKey implements Injector.
func (o *Osascript) PressKey(ctx context.Context, key string) error {
	if code, ok := keyCodes[strings.ToLower(key)]; ok {
		_, err := o.run(ctx, o.systemEvents(fmt.Sprintf("key code %d", code)))
		return err
	}
	_, err := o.run(ctx, o.systemEvents("keystroke "+shell.AppleScriptString(key)))
	return err
}
