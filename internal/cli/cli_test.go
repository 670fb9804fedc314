package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/lattice-autopilot/internal/checkpoint"
	"github.com/kingrea/lattice-autopilot/internal/clock"
	"github.com/kingrea/lattice-autopilot/internal/overview"
	"github.com/kingrea/lattice-autopilot/internal/shell"
)

// fakeTmux answers the tmux commands the injector and buffer strategy issue.
type fakeTmux struct {
	mu     sync.Mutex
	buffer string
	calls  []shell.Command
}

func (f *fakeTmux) Run(_ context.Context, c shell.Command) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	if c.Name != "tmux" || len(c.Args) == 0 {
		return "", nil
	}
	switch c.Args[0] {
	case "set-buffer":
		f.buffer = c.Args[len(c.Args)-1]
	case "delete-buffer":
		f.buffer = ""
	case "show-buffer":
		return f.buffer, nil
	}
	return "", nil
}

func (f *fakeTmux) commands(sub string) []shell.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []shell.Command
	for _, c := range f.calls {
		if len(c.Args) > 0 && c.Args[0] == sub {
			out = append(out, c)
		}
	}
	return out
}

const testConfig = `version: 1
mode: stop-on-complete
poll_interval: 10s
grace_delay: 5s
cooldown: 30s
max_wait: 5m
timezone: UTC
injector: tmux
tmux:
  target: "agent:0"
  buffer: autopilot-test
transport:
  strategies: [tmux-buffer]
`

type fixture struct {
	dir    string
	runner *fakeTmux
	clock  *clock.Fake
	out    *bytes.Buffer
	errOut *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".autopilot"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".autopilot", "config.yaml"), []byte(testConfig), 0o644))
	return &fixture{
		dir:    dir,
		runner: &fakeTmux{},
		clock:  clock.NewFake(time.Date(2026, 1, 18, 9, 0, 0, 0, time.UTC)),
		out:    &bytes.Buffer{},
		errOut: &bytes.Buffer{},
	}
}

func (f *fixture) write(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, name), []byte(content), 0o644))
}

func (f *fixture) exec(ctx context.Context, args ...string) error {
	return Execute(ctx, append(args, "--dir", f.dir),
		WithRunner(f.runner),
		WithClock(f.clock),
		WithOutput(f.out, f.errOut),
	)
}

func TestInitCreatesConfig(t *testing.T) {
	dir := t.TempDir()
	out := &bytes.Buffer{}
	err := Execute(context.Background(), []string{"init", "--dir", dir}, WithOutput(out, &bytes.Buffer{}))
	require.NoError(t, err)

	path := filepath.Join(dir, ".autopilot", "config.yaml")
	assert.FileExists(t, path)
	assert.DirExists(t, filepath.Join(dir, ".autopilot", "logs"))
	assert.Contains(t, out.String(), path)
}

func TestStatusJSON(t *testing.T) {
	f := newFixture(t)
	f.write(t, "checkpoint.md", "## 現在のミッション\n- **タスク名**: タイピングゲーム\n\n## ステータス\n- **状態**: WAITING\n")
	f.write(t, "やりたいリスト.md", "- [ ] 家計簿アプリ（Go）\n")

	require.NoError(t, f.exec(context.Background(), "status", "--json"))

	var ov overview.Overview
	require.NoError(t, json.Unmarshal(f.out.Bytes(), &ov))
	assert.Equal(t, checkpoint.StatusWaiting, ov.Status)
	assert.Equal(t, "タイピングゲーム", ov.Mission.Name)
	assert.Equal(t, "家計簿アプリ", ov.NextTask)
}

func TestStatusTextWithoutCheckpoint(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.exec(context.Background(), "status"))
	assert.Contains(t, f.out.String(), "Status:       IDLE")
}

func TestMissionDryRunPrintsPrompt(t *testing.T) {
	f := newFixture(t)
	f.write(t, "やりたいリスト.md", "# やりたいこと\n- [x] 済んだもの\n- [ ] ブログ執筆 (週末)\n")

	require.NoError(t, f.exec(context.Background(), "mission", "--dry-run"))

	assert.Contains(t, f.out.String(), "本日は「ブログ執筆」を作ります。")
	assert.NoFileExists(t, filepath.Join(f.dir, "checkpoint.md"))
	assert.Empty(t, f.runner.calls)
}

func TestMissionDispatchesNextTask(t *testing.T) {
	f := newFixture(t)
	f.write(t, "やりたいリスト.md", "- [ ] 家計簿アプリ\n")

	require.NoError(t, f.exec(context.Background(), "mission"))

	data, err := os.ReadFile(filepath.Join(f.dir, "checkpoint.md"))
	require.NoError(t, err)
	snap := checkpoint.Parse(string(data), time.UTC)
	assert.Equal(t, checkpoint.StatusRunning, snap.Status)
	assert.Equal(t, "家計簿アプリ", snap.TaskName)

	sets := f.runner.commands("set-buffer")
	require.NotEmpty(t, sets)
	assert.Contains(t, sets[len(sets)-1].Args[len(sets[len(sets)-1].Args)-1], "家計簿アプリ")
	require.Len(t, f.runner.commands("paste-buffer"), 1)
	enter := f.runner.commands("send-keys")
	require.Len(t, enter, 1)
	assert.Equal(t, []string{"send-keys", "-t", "agent:0", "Enter"}, enter[0].Args)
}

func TestMissionWithoutTasksSucceeds(t *testing.T) {
	f := newFixture(t)
	f.write(t, "やりたいリスト.md", "- [x] 全部済み\n")

	require.NoError(t, f.exec(context.Background(), "mission"))
	assert.Empty(t, f.runner.calls)
	assert.NoFileExists(t, filepath.Join(f.dir, "checkpoint.md"))
}

func TestRunStopsOnComplete(t *testing.T) {
	f := newFixture(t)
	f.write(t, "checkpoint.md", "## ステータス\n- **状態**: COMPLETE\n")

	require.NoError(t, f.exec(context.Background(), "run"))

	assert.Empty(t, f.runner.calls)
	logData, err := os.ReadFile(filepath.Join(f.dir, ".autopilot", "logs", "autopilot.log"))
	require.NoError(t, err)
	assert.Contains(t, string(logData), "MONITOR STOPPED")
}

func TestRunNudgesWaitingAgent(t *testing.T) {
	f := newFixture(t)
	f.write(t, "checkpoint.md", "## ステータス\n- **状態**: WAITING\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	start := f.clock.Now()
	f.clock.OnSleep(func(now time.Time) {
		if now.Sub(start) > 20*time.Second {
			cancel()
		}
	})

	require.NoError(t, f.exec(ctx, "run", "--mode", "run-forever"))

	require.Len(t, f.runner.commands("paste-buffer"), 1, "one nudge inside the cooldown window")
	sets := f.runner.commands("set-buffer")
	require.NotEmpty(t, sets)
	assert.True(t, strings.HasPrefix(sets[len(sets)-1].Args[len(sets[len(sets)-1].Args)-1], "続けてください"))
}

func TestRunRejectsUnknownMode(t *testing.T) {
	f := newFixture(t)
	err := f.exec(context.Background(), "run", "--mode", "sometimes")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mode")
}
