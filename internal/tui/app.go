// internal/tui/app.go
//
// This is the dashboard TUI for the autopilot. It uses bubbletea, which
// follows The Elm Architecture:
//
// 1. Model: the latest overview plus window size and widgets
// 2. Update: refresh messages, file change messages and keys
// 3. View: lipgloss boxes rendered from the overview
//
// The dashboard only reads files; it never talks to the monitor loop.

package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/lattice-autopilot/internal/checkpoint"
	"github.com/kingrea/lattice-autopilot/internal/logbook"
	"github.com/kingrea/lattice-autopilot/internal/overview"
)

const defaultRefreshInterval = 5 * time.Second

var (
	colorAccent  = lipgloss.Color("#5B8DEF")
	colorBorder  = lipgloss.Color("#444444")
	colorMuted   = lipgloss.Color("#AAAAAA")
	colorFooter  = lipgloss.Color("#888888")
	colorHeader  = lipgloss.Color("#FF6B6B")
	colorSuccess = lipgloss.Color("#22C55E")
	colorWarning = lipgloss.Color("#F59E0B")
)

var statusColors = map[checkpoint.Status]lipgloss.Color{
	checkpoint.StatusRunning:  lipgloss.Color("#4A9EFF"),
	checkpoint.StatusWaiting:  colorWarning,
	checkpoint.StatusComplete: colorSuccess,
	checkpoint.StatusIdle:     lipgloss.Color("#8888AA"),
}

// Collector yields overviews.
type Collector interface {
	Collect() overview.Overview
}

// AppOption customizes App construction for tests and alternate runtimes.
type AppOption func(*App)

// WithWatcher refreshes the dashboard whenever a watched file changes.
func WithWatcher(w *Watcher) AppOption {
	return func(a *App) {
		a.watcher = w
	}
}

// WithRefreshInterval sets the periodic refresh.
func WithRefreshInterval(d time.Duration) AppOption {
	return func(a *App) {
		if d > 0 {
			a.refreshInterval = d
		}
	}
}

type statusRefreshMsg struct {
	overview overview.Overview
	// scheduled is set for the periodic refresh so exactly one tick chain runs.
	scheduled bool
}

type fileChangedMsg struct {
	path string
}

// App is the dashboard model.
type App struct {
	collector       Collector
	watcher         *Watcher
	refreshInterval time.Duration

	overview  overview.Overview
	loaded    bool
	statusMsg string

	spinner spinner.Model
	logView viewport.Model

	width  int
	height int
}

// NewApp creates a dashboard reading from collector.
func NewApp(collector Collector, opts ...AppOption) *App {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(colorAccent)
	a := &App{
		collector:       collector,
		refreshInterval: defaultRefreshInterval,
		spinner:         sp,
		logView:         viewport.New(80, overview.DefaultLogLines),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	return tea.Batch(a.fetchOverview(false), a.scheduleRefresh(), a.spinner.Tick, a.waitForChange())
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.logView.Width = max(20, msg.Width-6)
		a.logView.Height = max(3, min(overview.DefaultLogLines, msg.Height/3))
		a.logView.SetContent(a.renderLogLines())
		return a, nil

	case statusRefreshMsg:
		a.overview = msg.overview
		a.loaded = true
		a.logView.SetContent(a.renderLogLines())
		if msg.scheduled {
			return a, a.scheduleRefresh()
		}
		return a, nil

	case fileChangedMsg:
		a.statusMsg = fmt.Sprintf("changed: %s", msg.path)
		return a, tea.Batch(a.fetchOverview(false), a.waitForChange())

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if a.watcher != nil {
				_ = a.watcher.Close()
			}
			return a, tea.Quit
		case "r":
			a.statusMsg = "Refreshing..."
			return a, a.fetchOverview(false)
		}
	}

	var cmd tea.Cmd
	a.logView, cmd = a.logView.Update(msg)
	return a, cmd
}

func (a *App) fetchOverview(scheduled bool) tea.Cmd {
	return func() tea.Msg {
		return statusRefreshMsg{overview: a.collector.Collect(), scheduled: scheduled}
	}
}

func (a *App) scheduleRefresh() tea.Cmd {
	return tea.Tick(a.refreshInterval, func(time.Time) tea.Msg {
		return statusRefreshMsg{overview: a.collector.Collect(), scheduled: true}
	})
}

func (a *App) waitForChange() tea.Cmd {
	if a.watcher == nil {
		return nil
	}
	changes := a.watcher.Changes()
	return func() tea.Msg {
		path, ok := <-changes
		if !ok {
			return nil
		}
		return fileChangedMsg{path: path}
	}
}

// View renders the dashboard.
func (a *App) View() string {
	width := a.width
	if width <= 0 {
		width = 100
	}
	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(colorHeader).
		MarginBottom(1).
		Render("⬡ AUTOPILOT MISSION CONTROL")
	if !a.loaded {
		return header + "\n" + a.spinner.View() + " Loading..."
	}

	rightWidth := max(32, width/3)
	leftWidth := width - rightWidth - 4
	var top string
	if leftWidth < 40 {
		top = lipgloss.JoinVertical(lipgloss.Left, box(a.renderMissionPanel(), width-4), box(a.renderDaemonPanel(), width-4))
	} else {
		top = lipgloss.JoinHorizontal(lipgloss.Top, box(a.renderMissionPanel(), leftWidth), box(a.renderDaemonPanel(), rightWidth))
	}
	sections := []string{header, top}
	if checklist := a.renderChecklist(); checklist != "" {
		sections = append(sections, box(checklist, width-4))
	}
	sections = append(sections, a.renderLogPanel(width-4))
	footer := lipgloss.NewStyle().
		Foreground(colorFooter).
		MarginTop(1).
		Render(a.footerText())
	sections = append(sections, footer)
	return strings.Join(sections, "\n")
}

func box(content string, width int) string {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorBorder).
		Padding(0, 1).
		Width(max(20, width)).
		Render(content)
}

func heading(text string) string {
	return lipgloss.NewStyle().Bold(true).Foreground(colorAccent).Render(text)
}

func muted(text string) string {
	return lipgloss.NewStyle().Foreground(colorMuted).Render(text)
}

func renderStatus(status checkpoint.Status) string {
	color, ok := statusColors[status]
	if !ok {
		color = lipgloss.Color("#FFFFFF")
	}
	return lipgloss.NewStyle().Bold(true).Foreground(color).Render(string(status))
}

func (a *App) renderMissionPanel() string {
	ov := a.overview
	next := ov.NextAction
	lines := []string{
		heading("STATUS"),
		renderStatus(ov.Status),
		"",
		heading("MISSION"),
		ov.Mission.Name,
		muted("開始: " + ov.Mission.StartedAt),
		"",
		heading("NEXT TASK"),
		ov.NextTask,
		"",
		heading("NEXT ACTION"),
		fmt.Sprintf("%s  %s", next.Time, next.Content),
		muted("トリガー: " + next.Trigger),
	}
	if next.Countdown != "" {
		style := lipgloss.NewStyle().Foreground(colorAccent)
		if next.Due {
			style = style.Foreground(colorWarning).Bold(true)
		}
		lines = append(lines, style.Render(next.Countdown))
	}
	return strings.Join(lines, "\n")
}

func (a *App) renderDaemonPanel() string {
	ov := a.overview
	lines := []string{heading("DAEMON")}
	if ov.Daemon.Active {
		lines = append(lines, a.spinner.View()+" 🟢 稼働中")
	} else {
		lines = append(lines, "🔴 停止中")
	}
	last := overview.Placeholder
	if !ov.Daemon.LastActivity.IsZero() {
		last = ov.Daemon.LastActivity.Local().Format("2006-01-02 15:04:05")
	}
	lines = append(lines, muted("最終アクション: "+last))
	if m := ov.Monitor; m != nil {
		lines = append(lines, "", heading("MONITOR"),
			fmt.Sprintf("outcome: %s", m.Outcome),
			fmt.Sprintf("ticks: %d", m.Ticks),
		)
		if m.LastStrategy != "" {
			lines = append(lines, fmt.Sprintf("last transport: %s (verified=%t)", m.LastStrategy, m.LastVerified))
		}
		if m.LastError != "" {
			lines = append(lines, lipgloss.NewStyle().Foreground(colorHeader).Render(m.LastError))
		}
	}
	return strings.Join(lines, "\n")
}

func checklistIcon(state checkpoint.ItemState) string {
	switch state {
	case checkpoint.ItemDone:
		return "✅"
	case checkpoint.ItemInProgress:
		return "🔄"
	default:
		return "⬜"
	}
}

func (a *App) renderChecklist() string {
	if len(a.overview.Checklist) == 0 {
		return ""
	}
	lines := []string{heading("CHECKLIST")}
	for _, item := range a.overview.Checklist {
		lines = append(lines, fmt.Sprintf("%s %s", checklistIcon(item.State), item.Text))
	}
	return strings.Join(lines, "\n")
}

var toneColors = map[logbook.Tone]lipgloss.Color{
	logbook.ToneSuccess: colorSuccess,
	logbook.ToneWarning: colorWarning,
	logbook.ToneError:   colorHeader,
	logbook.ToneInfo:    colorMuted,
}

func (a *App) renderLogLines() string {
	if len(a.overview.Logs) == 0 {
		return muted("No activity yet.")
	}
	lines := make([]string, 0, len(a.overview.Logs))
	for _, entry := range a.overview.Logs {
		stamp := overview.Placeholder
		if !entry.Time.IsZero() {
			stamp = entry.Time.Local().Format("15:04:05")
		}
		msg := lipgloss.NewStyle().Foreground(toneColors[entry.Tone]).Render(entry.Message)
		lines = append(lines, fmt.Sprintf("%s %s", muted(stamp), msg))
	}
	return strings.Join(lines, "\n")
}

func (a *App) renderLogPanel(width int) string {
	return box(heading("LOG")+"\n"+a.logView.View(), width)
}

func (a *App) footerText() string {
	parts := []string{"最終更新: " + a.overview.GeneratedAt.Local().Format("2006-01-02 15:04:05"), "r refresh · q quit · ↑/↓ scroll log"}
	if a.statusMsg != "" {
		parts = append(parts, a.statusMsg)
	}
	return strings.Join(parts, "  ·  ")
}
