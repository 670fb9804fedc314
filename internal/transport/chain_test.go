package transport

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/lattice-autopilot/internal/clock"
	"github.com/kingrea/lattice-autopilot/internal/shell"
)

type fakeStrategy struct {
	name     string
	value    string
	setErr   error
	getErr   error
	stale    string
	panicMsg string
	sets     []string
	gets     int
}

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) Set(_ context.Context, text string) error {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	f.sets = append(f.sets, text)
	if f.setErr != nil {
		return f.setErr
	}
	f.value = text
	return nil
}

func (f *fakeStrategy) Get(context.Context) (string, error) {
	f.gets++
	if f.getErr != nil {
		return "", f.getErr
	}
	if f.stale != "" {
		return f.stale, nil
	}
	return f.value, nil
}

func newTestChain(strategies ...Strategy) (*Chain, *clock.Fake) {
	fake := clock.NewFake(time.Date(2026, 1, 18, 0, 0, 0, 0, time.UTC))
	return NewChain(strategies, WithClock(fake), WithSettleDelay(time.Second)), fake
}

func TestDeliverStopsAtFirstVerified(t *testing.T) {
	first := &fakeStrategy{name: "first"}
	second := &fakeStrategy{name: "second"}
	chain, _ := newTestChain(first, second)

	result := chain.Deliver(context.Background(), "続けてください")

	require.True(t, result.Succeeded)
	require.Len(t, result.Attempts, 1)
	assert.Equal(t, "first", result.Winner())
	assert.Empty(t, second.sets, "second strategy must not run")
}

func TestDeliverFallsBackAfterFailure(t *testing.T) {
	first := &fakeStrategy{name: "first", setErr: errors.New("pbcopy: not found")}
	second := &fakeStrategy{name: "second"}
	third := &fakeStrategy{name: "third"}
	chain, _ := newTestChain(first, second, third)

	result := chain.Deliver(context.Background(), "hello")

	require.True(t, result.Succeeded)
	require.Len(t, result.Attempts, 2)
	assert.Equal(t, "first", result.Attempts[0].Strategy)
	assert.False(t, result.Attempts[0].Verified)
	assert.Error(t, result.Attempts[0].Err)
	assert.Equal(t, "second", result.Attempts[1].Strategy)
	assert.True(t, result.Attempts[1].Verified)
	assert.NoError(t, result.Attempts[1].Err)
	assert.Empty(t, third.sets)
}

func TestDeliverStaleReadBackIsNotVerified(t *testing.T) {
	stale := &fakeStrategy{name: "stale", stale: "previous clipboard"}
	good := &fakeStrategy{name: "good"}
	chain, _ := newTestChain(stale, good)

	result := chain.Deliver(context.Background(), "new text")

	require.Len(t, result.Attempts, 2)
	assert.ErrorIs(t, result.Attempts[0].Err, ErrNotVerified)
	assert.Equal(t, "good", result.Winner())
}

func TestDeliverIsolatesPanics(t *testing.T) {
	bad := &fakeStrategy{name: "bad", panicMsg: "nil window handle"}
	good := &fakeStrategy{name: "good"}
	chain, _ := newTestChain(bad, good)

	result := chain.Deliver(context.Background(), "text")

	require.Len(t, result.Attempts, 2)
	require.Error(t, result.Attempts[0].Err)
	assert.Contains(t, result.Attempts[0].Err.Error(), "panicked")
	assert.True(t, result.Succeeded)
}

func TestDeliverAllFail(t *testing.T) {
	a := &fakeStrategy{name: "a", getErr: errors.New("read failed")}
	b := &fakeStrategy{name: "b", stale: "x"}
	chain, _ := newTestChain(a, b)

	result := chain.Deliver(context.Background(), "text")

	assert.False(t, result.Succeeded)
	assert.Len(t, result.Attempts, 2)
	assert.Equal(t, "", result.Winner())
}

func TestDeliverClearFirstAndSettle(t *testing.T) {
	s := &fakeStrategy{name: "s"}
	fake := clock.NewFake(time.Date(2026, 1, 18, 0, 0, 0, 0, time.UTC))
	chain := NewChain([]Strategy{s}, WithClock(fake), WithSettleDelay(1500*time.Millisecond), WithClearFirst(true))

	result := chain.Deliver(context.Background(), "text")

	require.True(t, result.Succeeded)
	assert.Equal(t, []string{"", "text"}, s.sets)
	assert.Equal(t, []time.Duration{1500 * time.Millisecond}, fake.Slept())
	assert.Equal(t, 1500*time.Millisecond, result.Attempts[0].Elapsed)
}

func TestDeliverStopsOnCancelledContext(t *testing.T) {
	s := &fakeStrategy{name: "s"}
	chain, _ := newTestChain(s)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := chain.Deliver(ctx, "text")

	assert.False(t, result.Succeeded)
	assert.Empty(t, result.Attempts)
}

func TestChainStrategiesOrder(t *testing.T) {
	chain, _ := newTestChain(&fakeStrategy{name: "x"}, &fakeStrategy{name: "y"})
	assert.Equal(t, []string{"x", "y"}, chain.Strategies())
}

type recordingRunner struct {
	calls   []shell.Command
	outputs map[string]string
	errs    map[string]error
}

func (r *recordingRunner) Run(_ context.Context, cmd shell.Command) (string, error) {
	r.calls = append(r.calls, cmd)
	key := cmd.Name
	if len(cmd.Args) > 0 {
		key += " " + cmd.Args[0]
	}
	if err, ok := r.errs[key]; ok {
		return "", err
	}
	return r.outputs[key], nil
}

func TestBuildOrdersAndDedupes(t *testing.T) {
	strategies, err := Build([]string{"tmux-buffer", " pbcopy ", "tmux-buffer", "osascript"}, Deps{Runner: &recordingRunner{}})
	require.NoError(t, err)
	names := make([]string, len(strategies))
	for i, s := range strategies {
		names[i] = s.Name()
	}
	assert.Equal(t, []string{NameTmuxBuffer, NamePbcopy, NameOsascript}, names)
}

func TestBuildRejectsUnknown(t *testing.T) {
	_, err := Build([]string{"clipboard", "carrier-pigeon"}, Deps{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "carrier-pigeon")
}

func TestOsascriptStrategyRoundTrip(t *testing.T) {
	runner := &recordingRunner{outputs: map[string]string{"osascript -e": "続けて\n"}}
	s := &OsascriptStrategy{runner: runner}

	require.NoError(t, s.Set(context.Background(), `say "続けて"`))
	got, err := s.Get(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "続けて", got)
	require.Len(t, runner.calls, 2)
	assert.Equal(t, `set the clipboard to "say \"続けて\""`, runner.calls[0].Args[1])
	assert.Equal(t, "the clipboard as text", runner.calls[1].Args[1])
}

func TestPbcopyStrategyUsesStdin(t *testing.T) {
	runner := &recordingRunner{outputs: map[string]string{"pbpaste": "text"}}
	s := &PbcopyStrategy{runner: runner}

	require.NoError(t, s.Set(context.Background(), "text"))
	got, err := s.Get(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "text", got)
	assert.Equal(t, "pbcopy", runner.calls[0].Name)
	assert.Equal(t, "text", runner.calls[0].Stdin)
	assert.Contains(t, runner.calls[0].Env, "LANG=en_US.UTF-8")
}

func TestTmuxBufferStrategy(t *testing.T) {
	runner := &recordingRunner{
		outputs: map[string]string{"tmux show-buffer": "multi\nline"},
		errs:    map[string]error{"tmux delete-buffer": errors.New("shell: tmux: exit status 1: unknown buffer: autopilot")},
	}
	s := &TmuxBufferStrategy{runner: runner}

	require.NoError(t, s.Set(context.Background(), ""))
	require.NoError(t, s.Set(context.Background(), "multi\nline"))
	got, err := s.Get(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "multi\nline", got)
	assert.Equal(t, []string{"set-buffer", "-b", "autopilot", "--", "multi\nline"}, runner.calls[1].Args)
	assert.True(t, strings.HasPrefix(runner.calls[2].String(), "tmux show-buffer -b autopilot"))
}

func TestClipboardStrategyUnsupported(t *testing.T) {
	s := &ClipboardStrategy{
		write:       func(string) error { return nil },
		read:        func() (string, error) { return "", nil },
		unsupported: func() bool { return true },
	}
	assert.ErrorIs(t, s.Set(context.Background(), "x"), ErrClipboardUnsupported)
	_, err := s.Get(context.Background())
	assert.ErrorIs(t, err, ErrClipboardUnsupported)
}

func TestClipboardStrategyDelegates(t *testing.T) {
	var stored string
	s := &ClipboardStrategy{
		write: func(v string) error { stored = v; return nil },
		read:  func() (string, error) { return stored, nil },
	}
	chain, _ := newTestChain(s)
	result := chain.Deliver(context.Background(), "お任せで")
	assert.True(t, result.Succeeded)
	assert.Equal(t, NameClipboard, result.Winner())
}
