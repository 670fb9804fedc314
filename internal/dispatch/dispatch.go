// Package dispatch submits one prompt to the agent: focus its window, load the
// transfer medium, paste and press enter.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kingrea/lattice-autopilot/internal/clock"
	"github.com/kingrea/lattice-autopilot/internal/injector"
	"github.com/kingrea/lattice-autopilot/internal/transport"
)

// Deliverer is the transfer medium chain.
type Deliverer interface {
	Deliver(ctx context.Context, text string) transport.DeliveryResult
}

// Target locates the input area inside the agent's window.
type Target struct {
	WindowTitle string
	ClickX      float64
	ClickY      float64
}

// Report describes one dispatch. Err holds the first injection failure; the
// delivery result is recorded even when injection failed afterwards.
type Report struct {
	Delivery transport.DeliveryResult
	Typed    bool
	Err      error
}

// Dispatcher performs the focus, load, paste, submit sequence.
type Dispatcher struct {
	injector     injector.Injector
	chain        Deliverer
	target       Target
	clock        clock.Clock
	stepDelay    time.Duration
	typeFallback bool
	logger       *slog.Logger
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithClock sets the clock used between steps.
func WithClock(c clock.Clock) Option {
	return func(d *Dispatcher) {
		if c != nil {
			d.clock = c
		}
	}
}

// WithStepDelay sets the pause between injection steps.
func WithStepDelay(delay time.Duration) Option {
	return func(d *Dispatcher) {
		if delay >= 0 {
			d.stepDelay = delay
		}
	}
}

// WithTypeFallback types the text literally when no transport verified.
func WithTypeFallback(enabled bool) Option {
	return func(d *Dispatcher) {
		d.typeFallback = enabled
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// New returns a Dispatcher.
func New(inj injector.Injector, chain Deliverer, target Target, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		injector:  inj,
		chain:     chain,
		target:    target,
		clock:     clock.Real{},
		stepDelay: 500 * time.Millisecond,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Dispatch submits text. It never panics and never retries; a failed step
// ends the sequence and is reported in Report.Err.
func (d *Dispatcher) Dispatch(ctx context.Context, text string) (report Report) {
	defer func() {
		if r := recover(); r != nil {
			report.Err = fmt.Errorf("dispatch: injector panicked: %v", r)
			d.logger.Error("dispatch: injector panicked", "panic", r)
		}
	}()
	d.logger.Info("dispatch: preparing command", "preview", preview(text, 50), "chars", len([]rune(text)))

	if err := d.injector.ActivateWindow(ctx, d.target.WindowTitle); err != nil {
		return d.fail(report, "activate window", err)
	}
	d.pause(ctx)
	if err := d.injector.ClickRelative(ctx, d.target.WindowTitle, d.target.ClickX, d.target.ClickY); err != nil {
		return d.fail(report, "click input area", err)
	}
	d.pause(ctx)

	report.Delivery = d.chain.Deliver(ctx, text)
	d.pause(ctx)

	typeIt := !report.Delivery.Succeeded && d.typeFallback
	if !typeIt {
		err := d.injector.Paste(ctx, report.Delivery.Winner())
		switch {
		case errors.Is(err, injector.ErrPasteUnsupported):
			d.logger.Warn("dispatch: backend cannot paste from the winning medium; typing instead", "strategy", report.Delivery.Winner())
			typeIt = true
		case err != nil:
			return d.fail(report, "paste", err)
		}
	}
	if typeIt {
		report.Typed = true
		if err := d.injector.TypeText(ctx, text); err != nil {
			return d.fail(report, "type text", err)
		}
	}
	d.pause(ctx)
	if err := d.injector.PressKey(ctx, "enter"); err != nil {
		return d.fail(report, "press enter", err)
	}
	d.logger.Info("dispatch: command sent", "verified", report.Delivery.Succeeded, "strategy", report.Delivery.Winner(), "typed", report.Typed)
	return report
}

func (d *Dispatcher) fail(report Report, step string, err error) Report {
	report.Err = fmt.Errorf("dispatch: %s: %w", step, err)
	if errors.Is(err, injector.ErrWindowNotFound) {
		d.logger.Error("dispatch: target window not found", "title", d.target.WindowTitle, "err", err)
	} else {
		d.logger.Error("dispatch: injection failed", "step", step, "err", err)
	}
	return report
}

func (d *Dispatcher) pause(ctx context.Context) {
	_ = d.clock.Sleep(ctx, d.stepDelay)
}

func preview(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}
