// Package transport moves dispatch text into the shared transfer medium (a
// clipboard or paste buffer) before the injector pastes it into the agent.
// The medium is shared with other processes, so every write is read back and
// compared before it is trusted, and several strategies are tried in order.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kingrea/lattice-autopilot/internal/clock"
)

// ErrNotVerified means the medium did not hold the written text on read-back.
var ErrNotVerified = errors.New("transport: read-back mismatch")

// Strategy is one way of setting and reading the transfer medium.
type Strategy interface {
	Name() string
	Set(ctx context.Context, text string) error
	Get(ctx context.Context) (string, error)
}

// Attempt is the outcome of one strategy.
type Attempt struct {
	Strategy string
	Verified bool
	Err      error
	Elapsed  time.Duration
}

// DeliveryResult lists attempts in the order they ran.
type DeliveryResult struct {
	Attempts  []Attempt
	Succeeded bool
}

// Winner returns the strategy that verified, or "" when none did.
func (r DeliveryResult) Winner() string {
	for _, a := range r.Attempts {
		if a.Verified {
			return a.Strategy
		}
	}
	return ""
}

// Chain tries strategies in priority order until one verifies.
type Chain struct {
	strategies []Strategy
	clock      clock.Clock
	settle     time.Duration
	clearFirst bool
	logger     *slog.Logger
}

// ChainOption customizes a Chain.
type ChainOption func(*Chain)

// WithClock sets the clock used for settle delays.
func WithClock(c clock.Clock) ChainOption {
	return func(ch *Chain) {
		if c != nil {
			ch.clock = c
		}
	}
}

// WithSettleDelay sets the pause between writing and reading back.
func WithSettleDelay(d time.Duration) ChainOption {
	return func(ch *Chain) {
		if d >= 0 {
			ch.settle = d
		}
	}
}

// WithClearFirst empties the medium before each write.
func WithClearFirst(clear bool) ChainOption {
	return func(ch *Chain) {
		ch.clearFirst = clear
	}
}

// WithLogger sets the logger for attempt diagnostics.
func WithLogger(logger *slog.Logger) ChainOption {
	return func(ch *Chain) {
		if logger != nil {
			ch.logger = logger
		}
	}
}

// NewChain builds a chain over strategies, highest priority first.
func NewChain(strategies []Strategy, opts ...ChainOption) *Chain {
	ch := &Chain{
		strategies: append([]Strategy(nil), strategies...),
		clock:      clock.Real{},
		settle:     500 * time.Millisecond,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ch)
		}
	}
	return ch
}

// Strategies returns the strategy names in priority order.
func (c *Chain) Strategies() []string {
	names := make([]string, len(c.strategies))
	for i, s := range c.strategies {
		names[i] = s.Name()
	}
	return names
}

// Deliver writes text with each strategy in turn and stops at the first one
// whose read-back matches exactly. It never fails as a whole; callers inspect
// Succeeded.
func (c *Chain) Deliver(ctx context.Context, text string) DeliveryResult {
	var result DeliveryResult
	for _, strategy := range c.strategies {
		if ctx.Err() != nil {
			c.logger.Warn("transport: delivery cancelled", "err", ctx.Err())
			break
		}
		attempt := c.attempt(ctx, strategy, text)
		result.Attempts = append(result.Attempts, attempt)
		if attempt.Verified {
			c.logger.Info("transport: medium verified", "strategy", attempt.Strategy, "elapsed", attempt.Elapsed)
			result.Succeeded = true
			return result
		}
		c.logger.Warn("transport: strategy failed", "strategy", attempt.Strategy, "err", attempt.Err)
	}
	if !result.Succeeded {
		c.logger.Warn("transport: no strategy verified; continuing with injection", "attempts", len(result.Attempts))
	}
	return result
}

func (c *Chain) attempt(ctx context.Context, strategy Strategy, text string) (attempt Attempt) {
	start := c.clock.Now()
	attempt.Strategy = strategy.Name()
	defer func() {
		if r := recover(); r != nil {
			attempt.Verified = false
			attempt.Err = fmt.Errorf("transport: %s panicked: %v", attempt.Strategy, r)
		}
		attempt.Elapsed = c.clock.Now().Sub(start)
	}()
	if c.clearFirst {
		if err := strategy.Set(ctx, ""); err != nil {
			c.logger.Debug("transport: clear failed", "strategy", attempt.Strategy, "err", err)
		}
	}
	if err := strategy.Set(ctx, text); err != nil {
		attempt.Err = fmt.Errorf("transport: %s set: %w", attempt.Strategy, err)
		return attempt
	}
	if err := c.clock.Sleep(ctx, c.settle); err != nil {
		attempt.Err = err
		return attempt
	}
	got, err := strategy.Get(ctx)
	if err != nil {
		attempt.Err = fmt.Errorf("transport: %s get: %w", attempt.Strategy, err)
		return attempt
	}
	if got != text {
		attempt.Err = fmt.Errorf("%w: %s holds %d bytes, want %d", ErrNotVerified, attempt.Strategy, len(got), len(text))
		return attempt
	}
	attempt.Verified = true
	return attempt
}
