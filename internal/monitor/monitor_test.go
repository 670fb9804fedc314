package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/lattice-autopilot/internal/checkpoint"
	"github.com/kingrea/lattice-autopilot/internal/clock"
	"github.com/kingrea/lattice-autopilot/internal/command"
	"github.com/kingrea/lattice-autopilot/internal/dispatch"
	"github.com/kingrea/lattice-autopilot/internal/transport"
)

type recordingDispatcher struct {
	texts []string
	err   error
}

func (r *recordingDispatcher) Dispatch(_ context.Context, text string) dispatch.Report {
	r.texts = append(r.texts, text)
	return dispatch.Report{
		Delivery: transport.DeliveryResult{Succeeded: r.err == nil, Attempts: []transport.Attempt{{Strategy: "clipboard", Verified: r.err == nil}}},
		Err:      r.err,
	}
}

var start = time.Date(2026, 1, 18, 9, 0, 0, 0, time.UTC)

func newTestMonitor(t *testing.T, opts ...Option) (*Monitor, *recordingDispatcher, *clock.Fake) {
	t.Helper()
	fake := clock.NewFake(start)
	rec := &recordingDispatcher{}
	opts = append([]Option{WithClock(fake)}, opts...)
	return New(DefaultTiming(), command.Default(), rec, opts...), rec, fake
}

func status(s checkpoint.Status) checkpoint.Snapshot {
	snap := checkpoint.Idle()
	snap.Status = s
	return snap
}

func scheduled(at time.Time, content string) checkpoint.Snapshot {
	snap := status(checkpoint.StatusComplete)
	snap.ScheduledTime = &at
	snap.ScheduledContent = content
	return snap
}

func TestWaitingHonorsGraceThenNudgesOnce(t *testing.T) {
	m, rec, fake := newTestMonitor(t)
	ctx := context.Background()

	res := m.Tick(ctx, status(checkpoint.StatusWaiting))
	assert.Equal(t, OutcomeWaitingDetected, res.Outcome)
	assert.Equal(t, 5*time.Second, res.NextDelay)
	assert.Empty(t, rec.texts)

	fake.Advance(2 * time.Second)
	res = m.Tick(ctx, status(checkpoint.StatusWaiting))
	assert.Equal(t, OutcomeGracePending, res.Outcome)
	assert.Equal(t, 3*time.Second, res.NextDelay)
	assert.Empty(t, rec.texts)

	fake.Advance(3 * time.Second)
	res = m.Tick(ctx, status(checkpoint.StatusWaiting))
	assert.Equal(t, OutcomeNudged, res.Outcome)
	assert.Equal(t, []string{command.DefaultContinuation}, rec.texts)
	assert.Nil(t, m.State().WaitingSince)
	assert.Equal(t, start.Add(35*time.Second), m.State().CooldownUntil)
}

func TestCooldownBlocksFurtherNudges(t *testing.T) {
	m, rec, fake := newTestMonitor(t)
	ctx := context.Background()

	m.Tick(ctx, status(checkpoint.StatusWaiting))
	fake.Advance(5 * time.Second)
	m.Tick(ctx, status(checkpoint.StatusWaiting))
	require.Len(t, rec.texts, 1)

	for i := 0; i < 2; i++ {
		fake.Advance(10 * time.Second)
		res := m.Tick(ctx, status(checkpoint.StatusWaiting))
		assert.Equal(t, OutcomeCoolingDown, res.Outcome)
	}
	assert.Len(t, rec.texts, 1)

	// Still WAITING after the cooldown opens a new episode with its own grace.
	fake.Advance(11 * time.Second)
	res := m.Tick(ctx, status(checkpoint.StatusWaiting))
	assert.Equal(t, OutcomeWaitingDetected, res.Outcome)
	fake.Advance(5 * time.Second)
	res = m.Tick(ctx, status(checkpoint.StatusWaiting))
	assert.Equal(t, OutcomeNudged, res.Outcome)
	assert.Len(t, rec.texts, 2)
}

func TestLeavingWaitingClearsEpisode(t *testing.T) {
	m, rec, fake := newTestMonitor(t)
	ctx := context.Background()

	m.Tick(ctx, status(checkpoint.StatusWaiting))
	require.NotNil(t, m.State().WaitingSince)

	fake.Advance(2 * time.Second)
	res := m.Tick(ctx, status(checkpoint.StatusRunning))
	assert.Equal(t, OutcomeRunning, res.Outcome)
	assert.Nil(t, m.State().WaitingSince)

	fake.Advance(10 * time.Second)
	res = m.Tick(ctx, status(checkpoint.StatusWaiting))
	assert.Equal(t, OutcomeWaitingDetected, res.Outcome)
	assert.Empty(t, rec.texts)
}

func TestInjectionFailureKeepsEpisodeUntilMaxWait(t *testing.T) {
	m, rec, fake := newTestMonitor(t)
	rec.err = errors.New("window not found")
	ctx := context.Background()

	m.Tick(ctx, status(checkpoint.StatusWaiting))
	fake.Advance(5 * time.Second)
	res := m.Tick(ctx, status(checkpoint.StatusWaiting))
	assert.Equal(t, OutcomeNudged, res.Outcome)
	require.NotNil(t, res.Report)
	assert.Error(t, res.Report.Err)
	assert.NotNil(t, m.State().WaitingSince, "failed injection keeps the episode open")

	// Retries happen once per cooldown until the episode exceeds MaxWait.
	for fake.Now().Sub(start) <= 5*time.Minute {
		fake.Advance(30 * time.Second)
		m.Tick(ctx, status(checkpoint.StatusWaiting))
	}
	attempts := len(rec.texts)
	assert.Greater(t, attempts, 1)
	assert.True(t, m.State().GaveUp)
	assert.Nil(t, m.State().WaitingSince)

	fake.Advance(time.Minute)
	res = m.Tick(ctx, status(checkpoint.StatusWaiting))
	assert.Equal(t, OutcomeGaveUp, res.Outcome)
	assert.Len(t, rec.texts, attempts, "no dispatch after the cutoff")

	m.Tick(ctx, status(checkpoint.StatusRunning))
	assert.False(t, m.State().GaveUp)
}

func TestTimeoutAfterLongGap(t *testing.T) {
	m, rec, fake := newTestMonitor(t)
	ctx := context.Background()

	m.Tick(ctx, status(checkpoint.StatusWaiting))
	fake.Advance(6 * time.Minute)
	res := m.Tick(ctx, status(checkpoint.StatusWaiting))

	assert.Equal(t, OutcomeTimedOut, res.Outcome)
	assert.Empty(t, rec.texts)
	assert.Nil(t, m.State().WaitingSince)
}

func TestScheduledMissionFiresOnce(t *testing.T) {
	m, rec, fake := newTestMonitor(t)
	ctx := context.Background()
	at := start.Add(time.Minute)
	snap := scheduled(at, "ブログ記事の執筆")

	res := m.Tick(ctx, snap)
	assert.Equal(t, OutcomeComplete, res.Outcome)
	assert.Empty(t, rec.texts)

	fake.Set(at.Add(30 * time.Second))
	res = m.Tick(ctx, snap)
	assert.Equal(t, OutcomeMissionFired, res.Outcome)
	require.Len(t, rec.texts, 1)
	assert.Contains(t, rec.texts[0], "「ブログ記事の執筆」を開始してください")
	require.NotNil(t, m.State().LastScheduleKey)
	assert.True(t, m.State().LastScheduleKey.At.Equal(at))

	for i := 0; i < 5; i++ {
		fake.Advance(10 * time.Second)
		res = m.Tick(ctx, snap)
		assert.Equal(t, OutcomeComplete, res.Outcome)
	}
	assert.Len(t, rec.texts, 1)
}

func TestScheduledMissionUsesFallbackContent(t *testing.T) {
	m, rec, fake := newTestMonitor(t)
	fake.Set(start.Add(time.Minute))

	m.Tick(context.Background(), scheduled(start, ""))

	require.Len(t, rec.texts, 1)
	assert.Contains(t, rec.texts[0], command.FallbackContent)
}

func TestScheduleOutsideWindowDoesNotFire(t *testing.T) {
	m, rec, fake := newTestMonitor(t)
	fake.Set(start.Add(11 * time.Minute))

	res := m.Tick(context.Background(), scheduled(start, "late"))

	assert.Equal(t, OutcomeComplete, res.Outcome)
	assert.Empty(t, rec.texts)
}

func TestScheduleIgnoredUnlessComplete(t *testing.T) {
	m, rec, _ := newTestMonitor(t)
	snap := scheduled(start, "x")
	snap.Status = checkpoint.StatusRunning

	res := m.Tick(context.Background(), snap)

	assert.Equal(t, OutcomeRunning, res.Outcome)
	assert.Empty(t, rec.texts)
}

func TestFailedMissionStillConsumesSchedule(t *testing.T) {
	m, rec, fake := newTestMonitor(t)
	rec.err = errors.New("boom")
	fake.Set(start)

	m.Tick(context.Background(), scheduled(start, "x"))
	fake.Advance(10 * time.Second)
	m.Tick(context.Background(), scheduled(start, "x"))

	assert.Len(t, rec.texts, 1)
}

func TestNewScheduleFiresAfterPreviousConsumed(t *testing.T) {
	m, rec, fake := newTestMonitor(t)
	ctx := context.Background()

	m.Tick(ctx, scheduled(start, "first"))
	next := start.Add(time.Hour)
	fake.Set(next)
	m.Tick(ctx, scheduled(next, "second"))

	require.Len(t, rec.texts, 2)
	assert.Contains(t, rec.texts[1], "second")
}

func TestSettled(t *testing.T) {
	m, _, fake := newTestMonitor(t)
	ctx := context.Background()

	assert.False(t, m.Settled(status(checkpoint.StatusRunning)))
	assert.True(t, m.Settled(status(checkpoint.StatusComplete)))

	future := scheduled(start.Add(time.Hour), "later")
	assert.False(t, m.Settled(future), "a pending schedule keeps the run alive")

	fake.Set(start.Add(time.Hour))
	m.Tick(ctx, future)
	assert.False(t, m.Settled(future), "fired mission has not been picked up yet")

	m.Tick(ctx, status(checkpoint.StatusRunning))
	assert.True(t, m.Settled(future))
}

func TestBoardReflectsTicks(t *testing.T) {
	board := NewBoard()
	m, _, fake := newTestMonitor(t, WithBoard(board))
	ctx := context.Background()

	m.Tick(ctx, status(checkpoint.StatusWaiting))
	got := board.Snapshot()
	assert.Equal(t, checkpoint.StatusWaiting, got.Status)
	assert.Equal(t, OutcomeWaitingDetected, got.Outcome)
	require.NotNil(t, got.WaitingSince)

	fake.Advance(5 * time.Second)
	m.Tick(ctx, status(checkpoint.StatusWaiting))
	got = board.Snapshot()
	assert.Equal(t, OutcomeNudged, got.Outcome)
	assert.Equal(t, "clipboard", got.LastStrategy)
	assert.True(t, got.LastVerified)
	require.NotNil(t, got.LastDispatchAt)
	require.NotNil(t, got.CooldownUntil)
	dispatchedAt := *got.LastDispatchAt

	fake.Advance(time.Second)
	m.Tick(ctx, status(checkpoint.StatusRunning))
	got = board.Snapshot()
	assert.Equal(t, 3, got.Ticks)
	require.NotNil(t, got.LastDispatchAt)
	assert.Equal(t, dispatchedAt, *got.LastDispatchAt, "dispatch details persist across ticks")
}

func TestBoardPublishCarriesDispatchFields(t *testing.T) {
	board := NewBoard()
	at := time.Date(2026, 1, 18, 9, 0, 0, 0, time.UTC)
	board.Publish(BoardState{Outcome: OutcomeNudged, LastDispatchAt: &at, LastStrategy: "tmux-buffer", LastVerified: true, Ticks: 1})

	board.Publish(BoardState{Outcome: OutcomeRunning, LastStrategy: "ignored", LastError: "ignored", Ticks: 2})
	got := board.Snapshot()
	require.NotNil(t, got.LastDispatchAt)
	assert.True(t, got.LastDispatchAt.Equal(at))
	assert.Equal(t, "tmux-buffer", got.LastStrategy)
	assert.True(t, got.LastVerified)
	assert.Empty(t, got.LastError)
	assert.Equal(t, 2, got.Ticks)

	later := at.Add(time.Minute)
	board.Publish(BoardState{Outcome: OutcomeNudged, LastDispatchAt: &later, LastStrategy: "clipboard", LastError: "dispatch: paste: boom", Ticks: 3})
	got = board.Snapshot()
	assert.Equal(t, "clipboard", got.LastStrategy)
	assert.False(t, got.LastVerified)
	assert.Equal(t, "dispatch: paste: boom", got.LastError)
}

func TestBoardStateOmitsUnsetTimes(t *testing.T) {
	data, err := json.Marshal(BoardState{Status: checkpoint.StatusIdle, Outcome: OutcomeIdle})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "cooldownUntil")
	assert.NotContains(t, string(data), "lastDispatchAt")
	assert.NotContains(t, string(data), "0001-01-01")
}
