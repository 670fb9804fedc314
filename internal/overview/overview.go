// Package overview assembles what the dashboard, the status server and the
// status command display: the checkpoint record, the next task, the recent
// activity log and the monitor's published state.
package overview

import (
	"errors"
	"time"

	"github.com/kingrea/lattice-autopilot/internal/checkpoint"
	"github.com/kingrea/lattice-autopilot/internal/logbook"
	"github.com/kingrea/lattice-autopilot/internal/monitor"
	"github.com/kingrea/lattice-autopilot/internal/schedule"
	"github.com/kingrea/lattice-autopilot/internal/tasks"
)

// Placeholder fills fields the record does not carry.
const Placeholder = "--"

// DefaultLogLines is how many log entries an overview carries.
const DefaultLogLines = 10

// DefaultActiveWithin is how recent the last log entry must be for the
// daemon to count as running.
const DefaultActiveWithin = time.Minute

// SnapshotReader yields the current checkpoint snapshot.
type SnapshotReader interface {
	Read() checkpoint.Snapshot
}

// TaskSource yields the next task from the wish list.
type TaskSource interface {
	Next() (string, error)
}

// Mission is the work the agent is on.
type Mission struct {
	Name      string `json:"name"`
	StartedAt string `json:"startedAt"`
}

// NextAction is the scheduled follow-up mission, if any.
type NextAction struct {
	Time      string `json:"time"`
	Content   string `json:"content"`
	Trigger   string `json:"trigger"`
	Countdown string `json:"countdown,omitempty"`
	Due       bool   `json:"due"`
}

// Daemon reports whether the autopilot appears to be running.
type Daemon struct {
	Active       bool      `json:"active"`
	LastActivity time.Time `json:"lastActivity"`
}

// Item is one checklist line.
type Item struct {
	State checkpoint.ItemState `json:"state"`
	Text  string               `json:"text"`
}

// Overview is one rendering of the system's state.
type Overview struct {
	Status      checkpoint.Status   `json:"status"`
	Mission     Mission             `json:"mission"`
	NextTask    string              `json:"nextTask"`
	NextAction  NextAction          `json:"nextAction"`
	Checklist   []Item              `json:"checklist"`
	Logs        []logbook.Entry     `json:"logs"`
	Daemon      Daemon              `json:"daemon"`
	Monitor     *monitor.BoardState `json:"monitor,omitempty"`
	GeneratedAt time.Time           `json:"generatedAt"`
}

// Collector gathers overviews. Every source is optional.
type Collector struct {
	reader       SnapshotReader
	tasks        TaskSource
	book         *logbook.Logbook
	board        *monitor.Board
	now          func() time.Time
	logLines     int
	activeWithin time.Duration
}

// Option customizes a Collector.
type Option func(*Collector)

// WithTasks adds the wish list.
func WithTasks(src TaskSource) Option {
	return func(c *Collector) { c.tasks = src }
}

// WithLogbook adds the activity log.
func WithLogbook(book *logbook.Logbook) Option {
	return func(c *Collector) { c.book = book }
}

// WithBoard adds the in-process monitor state.
func WithBoard(board *monitor.Board) Option {
	return func(c *Collector) { c.board = board }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogLines sets how many log entries to include.
func WithLogLines(n int) Option {
	return func(c *Collector) {
		if n > 0 {
			c.logLines = n
		}
	}
}

// WithActiveWithin sets the daemon liveness window.
func WithActiveWithin(d time.Duration) Option {
	return func(c *Collector) {
		if d > 0 {
			c.activeWithin = d
		}
	}
}

// NewCollector returns a Collector reading the checkpoint through reader.
func NewCollector(reader SnapshotReader, opts ...Option) *Collector {
	c := &Collector{
		reader:       reader,
		now:          time.Now,
		logLines:     DefaultLogLines,
		activeWithin: DefaultActiveWithin,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Collect reads every source once.
func (c *Collector) Collect() Overview {
	now := c.now()
	snap := checkpoint.Idle()
	if c.reader != nil {
		snap = c.reader.Read()
	}
	ov := Overview{
		Status:      snap.Status,
		Mission:     Mission{Name: orPlaceholder(snap.TaskName), StartedAt: orPlaceholder(snap.StartedAt)},
		NextTask:    c.nextTask(),
		NextAction:  nextAction(snap, now),
		Checklist:   make([]Item, 0, len(snap.Checklist)),
		GeneratedAt: now,
	}
	for _, item := range snap.Checklist {
		ov.Checklist = append(ov.Checklist, Item{State: item.State, Text: item.Text})
	}
	if c.book != nil {
		ov.Logs = c.book.Entries(c.logLines)
	}
	if ov.Logs == nil {
		ov.Logs = []logbook.Entry{}
	}
	if len(ov.Logs) > 0 {
		last := ov.Logs[0].Time
		ov.Daemon.LastActivity = last
		ov.Daemon.Active = !last.IsZero() && now.Sub(last) <= c.activeWithin
	}
	if c.board != nil {
		state := c.board.Snapshot()
		ov.Monitor = &state
		ov.Daemon.Active = true
	}
	return ov
}

func (c *Collector) nextTask() string {
	if c.tasks == nil {
		return Placeholder
	}
	next, err := c.tasks.Next()
	if errors.Is(err, tasks.ErrNoPendingTask) {
		return tasks.AllDone
	}
	if err != nil {
		return Placeholder
	}
	return next
}

func nextAction(snap checkpoint.Snapshot, now time.Time) NextAction {
	action := NextAction{Time: Placeholder, Content: orPlaceholder(snap.ScheduledContent), Trigger: orPlaceholder(snap.Trigger)}
	if snap.ScheduledTime == nil {
		return action
	}
	at := *snap.ScheduledTime
	action.Time = at.Format(checkpoint.ScheduleLayout)
	action.Countdown = schedule.Countdown(at, now)
	action.Due = !now.Before(at)
	return action
}

func orPlaceholder(s string) string {
	if s == "" {
		return Placeholder
	}
	return s
}
