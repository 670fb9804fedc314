package cli

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kingrea/lattice-autopilot/internal/monitor"
	"github.com/kingrea/lattice-autopilot/internal/schedule"
	"github.com/kingrea/lattice-autopilot/internal/statusapi"
	"github.com/kingrea/lattice-autopilot/internal/supervisor"
)

func runCommand(env *Env, flags *globalFlags) *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Watch the checkpoint and keep the agent moving",
		Long: `Poll checkpoint.md and react to the agent's status.

WAITING    send the continuation prompt after the grace delay, then cool down
COMPLETE   send the scheduled mission once when its time is due
RUNNING    nothing to do

With --mode stop-on-complete the run ends once the agent is COMPLETE and no
scheduled mission is pending. run-forever only stops on Ctrl+C.
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(env, flags, sessionOptions{mode: mode})
			if err != nil {
				return err
			}
			_, err = s.run(cmd.Context())
			return err
		},
	}
	cmd.Flags().StringVarP(&mode, "mode", "m", "", "stop-on-complete or run-forever (overrides config)")
	return cmd
}

func (s *session) run(ctx context.Context) (supervisor.Summary, error) {
	builder, err := s.builder()
	if err != nil {
		return supervisor.Summary{}, err
	}
	disp, err := s.dispatcher()
	if err != nil {
		return supervisor.Summary{}, err
	}
	pc := s.cfg.Project
	board := monitor.NewBoard()
	runID := uuid.NewString()
	mon := monitor.New(
		monitor.Timing{Grace: pc.GraceDelay.Std(), Cooldown: pc.Cooldown.Std(), MaxWait: pc.MaxWait.Std()},
		builder, disp,
		monitor.WithClock(s.env.Clock),
		monitor.WithLogger(s.logger.With("run_id", runID)),
		monitor.WithBoard(board),
		monitor.WithEvaluator(schedule.NewEvaluator(pc.ScheduleWindow.Std())),
	)
	loop := supervisor.New(s.reader(), mon,
		supervisor.WithClock(s.env.Clock),
		supervisor.WithInterval(pc.PollInterval.Std()),
		supervisor.WithMode(supervisor.Mode(pc.Mode)),
		supervisor.WithRunID(runID),
		supervisor.WithLogger(s.logger),
	)

	stop, err := s.startStatusServer(ctx, board)
	if err != nil {
		return supervisor.Summary{}, err
	}
	defer stop()

	return loop.Run(ctx), nil
}

// startStatusServer starts the optional HTTP view and returns its shutdown.
func (s *session) startStatusServer(ctx context.Context, board *monitor.Board) (func(), error) {
	settings := statusapi.SettingsFromConfig(s.cfg)
	srv := statusapi.NewServer(settings,
		statusapi.WithCollector(s.collector(board)),
		statusapi.WithLogbook(s.book),
		statusapi.WithLogger(s.logger),
	)
	if err := srv.Start(ctx); err != nil {
		if errors.Is(err, statusapi.ErrDisabled) {
			return func() {}, nil
		}
		return nil, err
	}
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("status server shutdown", "err", err)
		}
	}, nil
}
