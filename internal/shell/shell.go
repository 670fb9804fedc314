// Package shell runs the external helper commands (tmux, osascript, pbcopy)
// that the injector and transport backends are built on.
package shell

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Command describes one process invocation.
type Command struct {
	Name  string
	Args  []string
	Stdin string
	// Env entries are appended to the current environment.
	Env []string
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Runner executes commands and returns their stdout.
type Runner interface {
	Run(ctx context.Context, cmd Command) (string, error)
}

// Exec runs commands with os/exec.
type Exec struct{}

// Run implements Runner. A non-zero exit is reported with the command's stderr.
func (Exec) Run(ctx context.Context, c Command) (string, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	if c.Stdin != "" {
		cmd.Stdin = strings.NewReader(c.Stdin)
	}
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return stdout.String(), fmt.Errorf("shell: %s: %w", c.Name, err)
		}
		return stdout.String(), fmt.Errorf("shell: %s: %w: %s", c.Name, err, msg)
	}
	return stdout.String(), nil
}

// AppleScriptString quotes s as an AppleScript string literal.
func AppleScriptString(s string) string {
	escaped := strings.ReplaceAll(s, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	return `"` + escaped + `"`
}

// Osascript builds a command running one AppleScript source.
func Osascript(script string) Command {
	return Command{Name: "osascript", Args: []string{"-e", script}}
}
