package cli

import (
	"fmt"

	"github.com/kingrea/lattice-autopilot/internal/command"
	"github.com/kingrea/lattice-autopilot/internal/dispatch"
	"github.com/kingrea/lattice-autopilot/internal/injector"
	"github.com/kingrea/lattice-autopilot/internal/monitor"
	"github.com/kingrea/lattice-autopilot/internal/overview"
	"github.com/kingrea/lattice-autopilot/internal/tasks"
	"github.com/kingrea/lattice-autopilot/internal/transport"
)

func (s *session) builder() (*command.Builder, error) {
	b, err := command.NewBuilder(s.cfg.Templates())
	if err != nil {
		return nil, fmt.Errorf("cli: templates: %w", err)
	}
	return b, nil
}

// dispatcher assembles injector, transport chain and dispatch sequence from
// the config.
func (s *session) dispatcher() (*dispatch.Dispatcher, error) {
	pc := s.cfg.Project
	inj, err := injector.New(injector.Options{
		Backend:    pc.Injector,
		Runner:     s.env.Runner,
		TmuxTarget: pc.Tmux.Target,
		TmuxBuffer: pc.Tmux.Buffer,
	})
	if err != nil {
		return nil, err
	}
	strategies, err := transport.Build(pc.Transport.Strategies, transport.Deps{
		Runner:     s.env.Runner,
		TmuxBuffer: pc.Tmux.Buffer,
	})
	if err != nil {
		return nil, err
	}
	chain := transport.NewChain(strategies,
		transport.WithClock(s.env.Clock),
		transport.WithSettleDelay(pc.SettleDelay.Std()),
		transport.WithClearFirst(pc.Transport.ClearFirstEnabled()),
		transport.WithLogger(s.logger),
	)
	target := dispatch.Target{
		WindowTitle: pc.Target.WindowTitle,
		ClickX:      pc.Target.ClickX,
		ClickY:      pc.Target.ClickY,
	}
	return dispatch.New(inj, chain, target,
		dispatch.WithClock(s.env.Clock),
		dispatch.WithStepDelay(pc.StepDelay.Std()),
		dispatch.WithTypeFallback(pc.Transport.TypeFallback),
		dispatch.WithLogger(s.logger),
	), nil
}

func (s *session) tasks() *tasks.Source {
	return tasks.NewSource(s.env.FS, s.cfg.Project.TaskListPath)
}

// collector reads everything the dashboard and status views show. board may
// be nil when no monitor runs in this process.
func (s *session) collector(board *monitor.Board) *overview.Collector {
	opts := []overview.Option{
		overview.WithTasks(s.tasks()),
		overview.WithLogbook(s.book),
		overview.WithClock(s.env.Clock.Now),
	}
	if board != nil {
		opts = append(opts, overview.WithBoard(board))
	}
	return overview.NewCollector(s.reader(), opts...)
}
