package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kingrea/lattice-autopilot/internal/checkpoint"
	"github.com/kingrea/lattice-autopilot/internal/overview"
)

func statusCommand(env *Env, flags *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print what the autopilot currently sees",
		Long: `Parse checkpoint.md once and print the status, mission, next scheduled
action, checklist, next task and the most recent log lines.
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(env, flags, sessionOptions{quiet: true})
			if err != nil {
				return err
			}
			ov := s.collector(nil).Collect()
			if asJSON {
				enc := json.NewEncoder(env.Out)
				enc.SetIndent("", "  ")
				return enc.Encode(ov)
			}
			writeOverview(env.Out, ov)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func writeOverview(w io.Writer, ov overview.Overview) {
	daemon := "stopped"
	if ov.Daemon.Active {
		daemon = "active"
	}
	fmt.Fprintf(w, "Status:       %s\n", ov.Status)
	fmt.Fprintf(w, "Mission:      %s (started %s)\n", ov.Mission.Name, ov.Mission.StartedAt)
	fmt.Fprintf(w, "Next task:    %s\n", ov.NextTask)
	fmt.Fprintf(w, "Next action:  %s  %s  [%s]\n", ov.NextAction.Time, ov.NextAction.Content, ov.NextAction.Trigger)
	if ov.NextAction.Countdown != "" {
		fmt.Fprintf(w, "              %s\n", ov.NextAction.Countdown)
	}
	fmt.Fprintf(w, "Daemon:       %s\n", daemon)
	if len(ov.Checklist) > 0 {
		fmt.Fprintln(w, "Checklist:")
		for _, item := range ov.Checklist {
			fmt.Fprintf(w, "  %s %s\n", checklistMark(item.State), item.Text)
		}
	}
	if len(ov.Logs) > 0 {
		fmt.Fprintln(w, "Recent log:")
		for _, entry := range ov.Logs {
			stamp := overview.Placeholder
			if !entry.Time.IsZero() {
				stamp = entry.Time.Local().Format("15:04:05")
			}
			fmt.Fprintf(w, "  %s %-5s %s\n", stamp, entry.Level, strings.TrimSpace(entry.Message))
		}
	}
}

func checklistMark(state checkpoint.ItemState) string {
	switch state {
	case checkpoint.ItemDone:
		return "[x]"
	case checkpoint.ItemInProgress:
		return "[/]"
	default:
		return "[ ]"
	}
}
