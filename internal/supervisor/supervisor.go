// Package supervisor runs the polling loop: read the checkpoint, tick the
// monitor, sleep, repeat. A failure inside one iteration is logged and the
// loop keeps going; only context cancellation or a settled stop-on-complete
// run ends it.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kingrea/lattice-autopilot/internal/checkpoint"
	"github.com/kingrea/lattice-autopilot/internal/clock"
	"github.com/kingrea/lattice-autopilot/internal/monitor"
)

// DefaultInterval is the poll period.
const DefaultInterval = 10 * time.Second

// Mode selects when the loop ends on its own.
type Mode string

const (
	// ModeStopOnComplete ends the run once the agent is COMPLETE with nothing
	// left to fire.
	ModeStopOnComplete Mode = "stop-on-complete"
	// ModeRunForever only stops on cancellation.
	ModeRunForever Mode = "run-forever"
)

// StopReason explains why Run returned.
type StopReason string

const (
	StopCompleted StopReason = "completed"
	StopCancelled StopReason = "cancelled"
)

// Reader yields the current checkpoint snapshot.
type Reader interface {
	Read() checkpoint.Snapshot
}

// Ticker is the state machine driven by the loop.
type Ticker interface {
	Tick(ctx context.Context, snap checkpoint.Snapshot) monitor.Result
	Settled(snap checkpoint.Snapshot) bool
}

// Summary describes a finished run.
type Summary struct {
	RunID    string
	Reason   StopReason
	Ticks    int
	Nudges   int
	Missions int
	Panics   int
	Started  time.Time
	Finished time.Time
}

// Loop is the supervisor.
type Loop struct {
	reader   Reader
	ticker   Ticker
	clock    clock.Clock
	interval time.Duration
	mode     Mode
	runID    string
	logger   *slog.Logger
}

// Option customizes a Loop.
type Option func(*Loop)

// WithClock sets the clock used for sleeping.
func WithClock(c clock.Clock) Option {
	return func(l *Loop) {
		if c != nil {
			l.clock = c
		}
	}
}

// WithInterval sets the poll period.
func WithInterval(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.interval = d
		}
	}
}

// WithMode sets the run mode.
func WithMode(mode Mode) Option {
	return func(l *Loop) {
		if mode != "" {
			l.mode = mode
		}
	}
}

// WithRunID fixes the run identifier attached to every log line.
func WithRunID(id string) Option {
	return func(l *Loop) {
		if id != "" {
			l.runID = id
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New returns a Loop.
func New(reader Reader, ticker Ticker, opts ...Option) *Loop {
	l := &Loop{
		reader:   reader,
		ticker:   ticker,
		clock:    clock.Real{},
		interval: DefaultInterval,
		mode:     ModeStopOnComplete,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	if l.runID == "" {
		l.runID = uuid.NewString()
	}
	l.logger = l.logger.With("run_id", l.runID)
	return l
}

// RunID returns the identifier of this loop.
func (l *Loop) RunID() string {
	return l.runID
}

// Run polls until ctx is cancelled or, in stop-on-complete mode, the monitor
// settles. Cancellation is a normal shutdown and is not reported as an error.
func (l *Loop) Run(ctx context.Context) Summary {
	summary := Summary{RunID: l.runID, Started: l.clock.Now()}
	l.logger.Info("=== AUTO-CONTINUE MONITOR STARTED ===", "mode", string(l.mode), "interval", l.interval)

	for {
		if ctx.Err() != nil {
			return l.finish(summary, StopCancelled)
		}
		res, settled, ok := l.iterate(ctx)
		summary.Ticks++
		if !ok {
			summary.Panics++
		}
		switch res.Outcome {
		case monitor.OutcomeNudged:
			summary.Nudges++
		case monitor.OutcomeMissionFired:
			summary.Missions++
		}
		if settled {
			l.logger.Info("Mission COMPLETE. Stopping monitor.")
			return l.finish(summary, StopCompleted)
		}

		delay := l.interval
		if res.NextDelay > 0 {
			delay = res.NextDelay
		}
		if err := l.clock.Sleep(ctx, delay); err != nil {
			return l.finish(summary, StopCancelled)
		}
	}
}

// iterate runs one read and tick and, in stop-on-complete mode, asks the
// ticker whether the run may end. A panic anywhere in it is recovered and
// reported as !ok.
func (l *Loop) iterate(ctx context.Context) (res monitor.Result, settled, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("iteration failed", "err", fmt.Errorf("panic: %v", r))
			res, settled, ok = monitor.Result{}, false, false
		}
	}()
	snap := l.reader.Read()
	res = l.ticker.Tick(ctx, snap)
	l.logger.Debug("tick", "status", string(snap.Status), "outcome", string(res.Outcome))
	if l.mode == ModeStopOnComplete {
		settled = l.ticker.Settled(snap)
	}
	return res, settled, true
}

func (l *Loop) finish(summary Summary, reason StopReason) Summary {
	summary.Reason = reason
	summary.Finished = l.clock.Now()
	l.logger.Info("=== MONITOR STOPPED ===",
		"reason", string(reason),
		"ticks", summary.Ticks,
		"nudges", summary.Nudges,
		"missions", summary.Missions,
		"elapsed", summary.Finished.Sub(summary.Started).Round(time.Second),
	)
	return summary
}
