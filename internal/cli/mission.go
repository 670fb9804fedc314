package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kingrea/lattice-autopilot/internal/checkpoint"
	"github.com/kingrea/lattice-autopilot/internal/tasks"
)

func missionCommand(env *Env, flags *globalFlags) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "mission [task]",
		Short: "Start the next task from the wish list as a new mission",
		Long: `Pick the first unchecked "- [ ]" item from the task list, reset
checkpoint.md to RUNNING for it and send the autonomous mission prompt.

A task given as an argument is used instead of the task list. With an empty
task list nothing is sent and the command succeeds.
`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(env, flags, sessionOptions{})
			if err != nil {
				return err
			}
			task := ""
			if len(args) == 1 {
				task = tasks.Clean(args[0])
			}
			return s.mission(cmd.Context(), task, dryRun)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the prompt instead of sending it")
	return cmd
}

func (s *session) mission(ctx context.Context, task string, dryRun bool) error {
	if strings.TrimSpace(task) == "" {
		next, err := s.tasks().Next()
		if errors.Is(err, tasks.ErrNoPendingTask) {
			s.logger.Info("No task found. All tasks complete?", "task_list", s.cfg.Project.TaskListPath)
			return nil
		}
		if err != nil {
			return err
		}
		task = next
	}
	builder, err := s.builder()
	if err != nil {
		return err
	}
	prompt := builder.Mission(task)
	if dryRun {
		_, err := fmt.Fprintln(s.env.Out, prompt)
		return err
	}

	s.logger.Info("Starting mission", "task", task)
	if err := checkpoint.Initialize(s.env.FS, s.cfg.Project.CheckpointPath, task, s.env.Clock.Now()); err != nil {
		return err
	}
	disp, err := s.dispatcher()
	if err != nil {
		return err
	}
	report := disp.Dispatch(ctx, prompt)
	if report.Err != nil {
		return fmt.Errorf("cli: send mission: %w", report.Err)
	}
	s.logger.Info("Mission DISPATCHED", "task", task, "transport", report.Delivery.Winner(), "verified", report.Delivery.Succeeded)
	return nil
}
