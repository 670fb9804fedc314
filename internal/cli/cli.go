// Package cli wires the autopilot components into the cobra command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/kingrea/lattice-autopilot/internal/checkpoint"
	"github.com/kingrea/lattice-autopilot/internal/clock"
	"github.com/kingrea/lattice-autopilot/internal/config"
	"github.com/kingrea/lattice-autopilot/internal/logbook"
	"github.com/kingrea/lattice-autopilot/internal/logging"
	"github.com/kingrea/lattice-autopilot/internal/shell"
)

// Env holds the process-level dependencies commands run against.
type Env struct {
	FS     afero.Fs
	Runner shell.Runner
	Clock  clock.Clock
	Out    io.Writer
	Err    io.Writer
}

// Option customizes Env.
type Option func(*Env)

// WithFS replaces the filesystem used for the checkpoint and task list.
func WithFS(fs afero.Fs) Option {
	return func(e *Env) {
		if fs != nil {
			e.FS = fs
		}
	}
}

// WithRunner replaces the helper command runner.
func WithRunner(r shell.Runner) Option {
	return func(e *Env) {
		if r != nil {
			e.Runner = r
		}
	}
}

// WithClock replaces the wall clock.
func WithClock(c clock.Clock) Option {
	return func(e *Env) {
		if c != nil {
			e.Clock = c
		}
	}
}

// WithOutput redirects command output and console logging.
func WithOutput(out, errOut io.Writer) Option {
	return func(e *Env) {
		if out != nil {
			e.Out = out
		}
		if errOut != nil {
			e.Err = errOut
		}
	}
}

type globalFlags struct {
	dir        string
	configPath string
	debug      bool
	logFormat  string
}

// NewRootCommand builds the autopilot command tree.
func NewRootCommand(opts ...Option) *cobra.Command {
	env := &Env{
		FS:     afero.NewOsFs(),
		Runner: shell.Exec{},
		Clock:  clock.Real{},
		Out:    os.Stdout,
		Err:    os.Stderr,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(env)
		}
	}
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:   "autopilot",
		Short: "Keep an AI coding agent moving without a human at the keyboard",
		Long: `autopilot watches the agent's checkpoint.md record.

When the agent stalls waiting for approval it sends a continuation prompt,
and when the agent is COMPLETE with a scheduled next action due it sends
the scheduled mission. Prompts reach the agent through the clipboard or a
tmux buffer and are submitted by synthesized keystrokes.
`,
		SilenceUsage: true,
	}
	root.SetOut(env.Out)
	root.SetErr(env.Err)
	pf := root.PersistentFlags()
	pf.StringVarP(&flags.dir, "dir", "d", ".", "project directory holding checkpoint.md")
	pf.StringVarP(&flags.configPath, "config", "c", "", "config file (default <dir>/.autopilot/config.yaml)")
	pf.BoolVar(&flags.debug, "debug", false, "enable debug logging")
	pf.StringVar(&flags.logFormat, "log-format", "text", "console log format: text or json")

	root.AddCommand(
		runCommand(env, flags),
		missionCommand(env, flags),
		statusCommand(env, flags),
		dashboardCommand(env, flags),
		initCommand(env, flags),
	)
	return root
}

// Execute runs the command tree with ctx.
func Execute(ctx context.Context, args []string, opts ...Option) error {
	root := NewRootCommand(opts...)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// session is the loaded configuration plus the sinks every command shares.
type session struct {
	env    *Env
	cfg    *config.Config
	book   *logbook.Logbook
	logger *slog.Logger
}

type sessionOptions struct {
	mode  string
	quiet bool
}

func openSession(env *Env, flags *globalFlags, so sessionOptions) (*session, error) {
	cfg, err := config.Load(flags.dir, flags.configPath)
	if err != nil {
		return nil, err
	}
	if so.mode != "" {
		if err := cfg.SetMode(so.mode); err != nil {
			return nil, err
		}
	}
	book, err := logbook.New(cfg.Project.LogPath)
	if err != nil {
		return nil, fmt.Errorf("cli: open log %s: %w", cfg.Project.LogPath, err)
	}
	logOpts := []logging.Option{
		logging.WithLogbook(book),
		logging.WithConsole(env.Err),
		logging.WithFormat(flags.logFormat),
	}
	if flags.debug {
		logOpts = append(logOpts, logging.WithDebug())
	}
	if so.quiet {
		logOpts = append(logOpts, logging.WithQuiet())
	}
	return &session{env: env, cfg: cfg, book: book, logger: logging.New(logOpts...)}, nil
}

func (s *session) reader() *checkpoint.Reader {
	return checkpoint.NewReader(s.env.FS, s.cfg.Project.CheckpointPath,
		checkpoint.WithLocation(s.cfg.Location()),
		checkpoint.WithLogger(s.logger),
	)
}
