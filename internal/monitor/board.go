package monitor

import (
	"sync"
	"time"

	"github.com/kingrea/lattice-autopilot/internal/checkpoint"
)

// BoardState is the externally visible summary of the monitor.
type BoardState struct {
	Status         checkpoint.Status `json:"status"`
	Outcome        Outcome           `json:"outcome"`
	WaitingSince   *time.Time        `json:"waitingSince,omitempty"`
	CooldownUntil  *time.Time        `json:"cooldownUntil,omitempty"`
	LastSchedule   string            `json:"lastSchedule,omitempty"`
	LastDispatchAt *time.Time        `json:"lastDispatchAt,omitempty"`
	LastStrategy   string            `json:"lastStrategy,omitempty"`
	LastVerified   bool              `json:"lastVerified"`
	LastError      string            `json:"lastError,omitempty"`
	Ticks          int               `json:"ticks"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

// Board holds the latest BoardState for readers outside the loop. Dispatch
// fields carry over from earlier ticks until a new dispatch replaces them.
type Board struct {
	mu    sync.RWMutex
	state BoardState
}

// NewBoard returns an empty board.
func NewBoard() *Board {
	return &Board{}
}

// Publish records state. A nil LastDispatchAt means no dispatch happened in
// this tick: LastDispatchAt, LastStrategy, LastVerified and LastError are then
// taken from the previous state and the values passed in are ignored.
func (b *Board) Publish(state BoardState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if state.LastDispatchAt == nil {
		state.LastDispatchAt = b.state.LastDispatchAt
		state.LastStrategy = b.state.LastStrategy
		state.LastVerified = b.state.LastVerified
		state.LastError = b.state.LastError
	}
	b.state = state
}

// Snapshot returns the latest state.
func (b *Board) Snapshot() BoardState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}
