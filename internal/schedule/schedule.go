// Package schedule decides when a scheduled mission written into the
// checkpoint record is due.
package schedule

import (
	"fmt"
	"time"

	"github.com/kingrea/lattice-autopilot/internal/checkpoint"
)

// DefaultWindow is how long after the scheduled instant a mission may still fire.
const DefaultWindow = 10 * time.Minute

// Key identifies a consumed schedule. Two schedules with the same instant share
// a key.
type Key struct {
	At time.Time
}

// KeyFor returns the key of a scheduled instant.
func KeyFor(at time.Time) Key {
	return Key{At: at}
}

// Equal reports whether both keys name the same instant.
func (k Key) Equal(other Key) bool {
	return k.At.Equal(other.At)
}

func (k Key) String() string {
	return k.At.Format(checkpoint.ScheduleLayout)
}

// Evaluator holds the trigger window.
type Evaluator struct {
	Window time.Duration
}

// NewEvaluator returns an Evaluator; a non-positive window selects DefaultWindow.
func NewEvaluator(window time.Duration) Evaluator {
	if window <= 0 {
		window = DefaultWindow
	}
	return Evaluator{Window: window}
}

// ShouldFire reports whether the snapshot's schedule is due at now and has not
// already been consumed. It does not record anything; the caller commits the
// returned key.
func (e Evaluator) ShouldFire(snap checkpoint.Snapshot, now time.Time, last *Key) (bool, Key) {
	if snap.Status != checkpoint.StatusComplete || snap.ScheduledTime == nil {
		return false, Key{}
	}
	key := KeyFor(*snap.ScheduledTime)
	if !e.InWindow(key.At, now) {
		return false, Key{}
	}
	if last != nil && last.Equal(key) {
		return false, Key{}
	}
	return true, key
}

// InWindow reports whether now falls in [at, at+Window].
func (e Evaluator) InWindow(at, now time.Time) bool {
	window := e.Window
	if window <= 0 {
		window = DefaultWindow
	}
	elapsed := now.Sub(at)
	return elapsed >= 0 && elapsed <= window
}

// Pending reports whether the snapshot still carries a schedule that could
// fire at or after now.
func (e Evaluator) Pending(snap checkpoint.Snapshot, now time.Time, last *Key) bool {
	if snap.ScheduledTime == nil {
		return false
	}
	key := KeyFor(*snap.ScheduledTime)
	if last != nil && last.Equal(key) {
		return false
	}
	window := e.Window
	if window <= 0 {
		window = DefaultWindow
	}
	return !now.After(key.At.Add(window))
}

// Countdown renders the time left until at, the way the dashboard shows it.
func Countdown(at, now time.Time) string {
	diff := at.Sub(now)
	if diff <= 0 {
		return "⏰ 予定時刻です！"
	}
	hours := int(diff / time.Hour)
	minutes := int((diff % time.Hour) / time.Minute)
	if hours > 24 {
		return fmt.Sprintf("⏳ あと %d日 %d時間", hours/24, hours%24)
	}
	return fmt.Sprintf("⏳ あと %d時間 %d分", hours, minutes)
}
