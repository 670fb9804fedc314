// Package monitor holds the continuation state machine. Each tick consumes a
// checkpoint snapshot and decides whether to nudge a stalled agent or to start
// a scheduled mission.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kingrea/lattice-autopilot/internal/checkpoint"
	"github.com/kingrea/lattice-autopilot/internal/clock"
	"github.com/kingrea/lattice-autopilot/internal/command"
	"github.com/kingrea/lattice-autopilot/internal/dispatch"
	"github.com/kingrea/lattice-autopilot/internal/schedule"
)

// Outcome names what a tick did.
type Outcome string

const (
	OutcomeIdle            Outcome = "idle"
	OutcomeRunning         Outcome = "running"
	OutcomeWaitingDetected Outcome = "waiting-detected"
	OutcomeGracePending    Outcome = "grace-pending"
	OutcomeNudged          Outcome = "nudged"
	OutcomeCoolingDown     Outcome = "cooling-down"
	OutcomeTimedOut        Outcome = "timed-out"
	OutcomeGaveUp          Outcome = "gave-up"
	OutcomeMissionFired    Outcome = "mission-fired"
	OutcomeComplete        Outcome = "complete"
)

// Timing configures the stall policy.
type Timing struct {
	// Grace is the delay between first seeing WAITING and the first nudge.
	Grace time.Duration
	// Cooldown is the minimum gap after a nudge before another is considered.
	Cooldown time.Duration
	// MaxWait bounds a stall episode; past it the monitor gives up.
	MaxWait time.Duration
}

// DefaultTiming matches the values the monitor has always run with.
func DefaultTiming() Timing {
	return Timing{Grace: 5 * time.Second, Cooldown: 30 * time.Second, MaxWait: 5 * time.Minute}
}

// Dispatcher submits text to the agent.
type Dispatcher interface {
	Dispatch(ctx context.Context, text string) dispatch.Report
}

// SessionState is the monitor's memory between ticks. It lives only as long
// as the process.
type SessionState struct {
	// WaitingSince is set while a stall episode is open.
	WaitingSince *time.Time
	// CooldownUntil blocks nudges until it passes.
	CooldownUntil time.Time
	// GaveUp is set once an episode timed out and cleared when the status
	// leaves WAITING.
	GaveUp bool
	// LastScheduleKey is the most recently fired schedule.
	LastScheduleKey *schedule.Key
	// MissionInFlight is set after a scheduled mission fires and cleared when
	// the agent reports anything other than COMPLETE.
	MissionInFlight bool
}

// Result is returned by Tick.
type Result struct {
	Outcome Outcome
	Status  checkpoint.Status
	// NextDelay asks the supervisor to sleep this long instead of its poll
	// interval. Zero means "use the poll interval".
	NextDelay time.Duration
	Report    *dispatch.Report
}

// Monitor is the state machine. It is not safe for concurrent Tick calls;
// the supervisor drives it from a single goroutine.
type Monitor struct {
	timing     Timing
	evaluator  schedule.Evaluator
	builder    *command.Builder
	dispatcher Dispatcher
	clock      clock.Clock
	logger     *slog.Logger
	board      *Board

	state      SessionState
	lastStatus checkpoint.Status
	ticks      int
}

// Option customizes a Monitor.
type Option func(*Monitor)

// WithClock sets the clock.
func WithClock(c clock.Clock) Option {
	return func(m *Monitor) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithBoard publishes state after every tick.
func WithBoard(b *Board) Option {
	return func(m *Monitor) {
		if b != nil {
			m.board = b
		}
	}
}

// WithEvaluator overrides the schedule evaluator.
func WithEvaluator(e schedule.Evaluator) Option {
	return func(m *Monitor) {
		m.evaluator = e
	}
}

// New returns a Monitor.
func New(timing Timing, builder *command.Builder, dispatcher Dispatcher, opts ...Option) *Monitor {
	if builder == nil {
		builder = command.Default()
	}
	m := &Monitor{
		timing:     timing,
		evaluator:  schedule.NewEvaluator(schedule.DefaultWindow),
		builder:    builder,
		dispatcher: dispatcher,
		clock:      clock.Real{},
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// State returns a copy of the session state.
func (m *Monitor) State() SessionState {
	s := m.state
	if s.WaitingSince != nil {
		since := *s.WaitingSince
		s.WaitingSince = &since
	}
	if s.LastScheduleKey != nil {
		key := *s.LastScheduleKey
		s.LastScheduleKey = &key
	}
	return s
}

// Tick processes one snapshot.
func (m *Monitor) Tick(ctx context.Context, snap checkpoint.Snapshot) Result {
	now := m.clock.Now()
	m.ticks++
	if snap.Status != checkpoint.StatusComplete {
		m.state.MissionInFlight = false
	}
	res := m.step(ctx, snap, now)
	res.Status = snap.Status
	m.lastStatus = snap.Status
	m.publish(res)
	return res
}

func (m *Monitor) step(ctx context.Context, snap checkpoint.Snapshot, now time.Time) Result {
	if fire, key := m.evaluator.ShouldFire(snap, now, m.state.LastScheduleKey); fire {
		return m.fireMission(ctx, snap, key)
	}
	switch snap.Status {
	case checkpoint.StatusWaiting:
		return m.handleWaiting(ctx, now)
	case checkpoint.StatusComplete:
		m.resetEpisode()
		if m.lastStatus != checkpoint.StatusComplete {
			m.logger.Info("Mission COMPLETE detected.")
		}
		return Result{Outcome: OutcomeComplete}
	case checkpoint.StatusRunning:
		m.resetEpisode()
		m.logStatus(snap.Status, "Status: RUNNING - AI is working...")
		return Result{Outcome: OutcomeRunning}
	default:
		m.resetEpisode()
		m.logStatus(snap.Status, fmt.Sprintf("Status: %s", snap.Status))
		return Result{Outcome: OutcomeIdle}
	}
}

func (m *Monitor) fireMission(ctx context.Context, snap checkpoint.Snapshot, key schedule.Key) Result {
	m.logger.Info("Scheduled time reached; dispatching mission", "scheduled", key.String(), "content", snap.ScheduledContent)
	text := m.builder.ScheduledMission(snap.ScheduledContent)
	report := m.dispatcher.Dispatch(ctx, text)
	m.state.LastScheduleKey = &key
	m.state.MissionInFlight = true
	m.resetEpisode()
	if report.Err != nil {
		m.logger.Error("Scheduled mission dispatch failed", "scheduled", key.String(), "err", report.Err)
	} else {
		m.logger.Info("=== MISSION DISPATCHED ===", "scheduled", key.String())
	}
	return Result{Outcome: OutcomeMissionFired, Report: &report}
}

func (m *Monitor) handleWaiting(ctx context.Context, now time.Time) Result {
	if now.Before(m.state.CooldownUntil) {
		return Result{Outcome: OutcomeCoolingDown, NextDelay: m.state.CooldownUntil.Sub(now)}
	}
	if m.state.GaveUp {
		return Result{Outcome: OutcomeGaveUp}
	}
	if m.state.WaitingSince == nil {
		since := now
		m.state.WaitingSince = &since
		m.logger.Info("Detected WAITING status. Will send continue command shortly...", "grace", m.timing.Grace)
		return Result{Outcome: OutcomeWaitingDetected, NextDelay: m.timing.Grace}
	}
	elapsed := now.Sub(*m.state.WaitingSince)
	if elapsed > m.timing.MaxWait {
		m.logger.Warn("Max waiting time exceeded. Giving up on this stall.", "elapsed", elapsed.Round(time.Second), "max_wait", m.timing.MaxWait)
		m.state.WaitingSince = nil
		m.state.GaveUp = true
		return Result{Outcome: OutcomeTimedOut}
	}
	if elapsed < m.timing.Grace {
		return Result{Outcome: OutcomeGracePending, NextDelay: m.timing.Grace - elapsed}
	}

	m.logger.Info("Sending continue command...")
	report := m.dispatcher.Dispatch(ctx, m.builder.Continuation())
	m.state.CooldownUntil = m.clock.Now().Add(m.timing.Cooldown)
	if report.Err != nil {
		// The episode stays open so repeated injection failures run into MaxWait.
		m.logger.Error("Continue command could not be injected", "err", report.Err)
	} else {
		m.state.WaitingSince = nil
		m.logger.Info("Continue command sent!", "verified", report.Delivery.Succeeded)
	}
	return Result{Outcome: OutcomeNudged, NextDelay: m.timing.Cooldown, Report: &report}
}

func (m *Monitor) resetEpisode() {
	m.state.WaitingSince = nil
	m.state.GaveUp = false
}

func (m *Monitor) logStatus(status checkpoint.Status, msg string) {
	if status != m.lastStatus {
		m.logger.Info(msg)
		return
	}
	m.logger.Debug(msg)
}

// Settled reports whether a stop-on-complete run may end: the agent is
// COMPLETE, no schedule can still fire, and no fired mission is waiting to be
// picked up.
func (m *Monitor) Settled(snap checkpoint.Snapshot) bool {
	if snap.Status != checkpoint.StatusComplete || m.state.MissionInFlight {
		return false
	}
	return !m.evaluator.Pending(snap, m.clock.Now(), m.state.LastScheduleKey)
}

func (m *Monitor) publish(res Result) {
	if m.board == nil {
		return
	}
	state := BoardState{
		Status:    res.Status,
		Outcome:   res.Outcome,
		Ticks:     m.ticks,
		UpdatedAt: m.clock.Now(),
	}
	if !m.state.CooldownUntil.IsZero() {
		until := m.state.CooldownUntil
		state.CooldownUntil = &until
	}
	if m.state.WaitingSince != nil {
		since := *m.state.WaitingSince
		state.WaitingSince = &since
	}
	if m.state.LastScheduleKey != nil {
		state.LastSchedule = m.state.LastScheduleKey.String()
	}
	if res.Report != nil {
		at := state.UpdatedAt
		state.LastDispatchAt = &at
		state.LastStrategy = res.Report.Delivery.Winner()
		state.LastVerified = res.Report.Delivery.Succeeded
		if res.Report.Err != nil {
			state.LastError = res.Report.Err.Error()
		}
	}
	m.board.Publish(state)
}
