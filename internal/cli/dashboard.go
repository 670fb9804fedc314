package cli

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/kingrea/lattice-autopilot/internal/tui"
)

func dashboardCommand(env *Env, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "dashboard",
		Aliases: []string{"ui"},
		Short:   "Open the mission control dashboard",
		Long: `Show a live terminal view of the checkpoint, the task list and the
activity log. The view refreshes when any of those files change and every
few seconds otherwise. Press r to refresh and q to quit.
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(env, flags, sessionOptions{quiet: true})
			if err != nil {
				return err
			}
			pc := s.cfg.Project
			var opts []tui.AppOption
			watcher, err := tui.NewWatcher(pc.CheckpointPath, pc.LogPath, pc.TaskListPath)
			if err != nil {
				s.logger.Warn("file watching unavailable; falling back to periodic refresh", "err", err)
			} else {
				defer watcher.Close()
				opts = append(opts, tui.WithWatcher(watcher))
			}
			p := tea.NewProgram(
				tui.NewApp(s.collector(nil), opts...),
				tea.WithAltScreen(),
				tea.WithContext(cmd.Context()),
				tea.WithOutput(env.Out),
			)
			_, err = p.Run()
			return err
		},
	}
}
