// Package checkpoint parses the shared status record an agent keeps up to date
// while it works. The record is a markdown file written by another process, so
// every read is treated as possibly torn: parsing is total and falls back to
// IDLE instead of failing.
package checkpoint

import (
	"regexp"
	"strings"
	"time"
)

// Status is the agent's self-reported state.
type Status string

const (
	StatusIdle     Status = "IDLE"
	StatusRunning  Status = "RUNNING"
	StatusWaiting  Status = "WAITING"
	StatusComplete Status = "COMPLETE"
)

// ScheduleLayout is the only accepted format for the scheduled time field.
const ScheduleLayout = "2006-01-02 15:04"

// Field labels as they appear in the record.
const (
	LabelStatus    = "状態"
	LabelSchedule  = "予定時刻"
	LabelContent   = "内容"
	LabelTaskName  = "タスク名"
	LabelStartedAt = "開始時刻"
	LabelTrigger   = "トリガー"
)

// ParseStatus maps a bare word to a Status. Matching is case-sensitive and
// anything unrecognised is IDLE.
func ParseStatus(word string) Status {
	switch Status(word) {
	case StatusRunning, StatusWaiting, StatusComplete, StatusIdle:
		return Status(word)
	default:
		return StatusIdle
	}
}

// ItemState is the marker of a checklist line.
type ItemState string

const (
	ItemPending    ItemState = "pending"
	ItemInProgress ItemState = "in-progress"
	ItemDone       ItemState = "completed"
)

// ChecklistItem is one "- [ ] text" line of the record.
type ChecklistItem struct {
	State ItemState
	Text  string
}

// Schedule is a scheduled mission extracted from a snapshot.
type Schedule struct {
	At      time.Time
	Content string
}

// Snapshot is an immutable view of the record taken at one poll.
type Snapshot struct {
	Status Status
	// ScheduledTime is nil when the record carries no schedule or it does not
	// parse.
	ScheduledTime *time.Time
	// ScheduledContent is empty when absent.
	ScheduledContent string

	TaskName  string
	StartedAt string
	Trigger   string
	Checklist []ChecklistItem

	// Raw is the full record text, kept for diagnostics.
	Raw string
}

// Idle returns the snapshot used whenever the record is missing or unreadable.
func Idle() Snapshot {
	return Snapshot{Status: StatusIdle}
}

// Schedule returns the snapshot's schedule, if any.
func (s Snapshot) Schedule() (Schedule, bool) {
	if s.ScheduledTime == nil {
		return Schedule{}, false
	}
	return Schedule{At: *s.ScheduledTime, Content: s.ScheduledContent}, true
}

var (
	statusPattern    = labelPattern(LabelStatus)
	schedulePattern  = labelPattern(LabelSchedule)
	contentPattern   = labelPattern(LabelContent)
	taskNamePattern  = labelPattern(LabelTaskName)
	startedPattern   = labelPattern(LabelStartedAt)
	triggerPattern   = labelPattern(LabelTrigger)
	statusWord       = regexp.MustCompile(`^(\w+)`)
	checklistPattern = regexp.MustCompile(`(?m)^[ \t]*- \[([ xX/])\] (.+)$`)
)

// labelPattern matches "label: value" lines, tolerating a list bullet, markdown
// bold around the label and a full-width colon.
func labelPattern(label string) *regexp.Regexp {
	return regexp.MustCompile(`(?m)^[ \t]*(?:[-*+][ \t]+)?(?:\*\*)?` + regexp.QuoteMeta(label) + `(?:\*\*)?[ \t]*[:：][ \t]*(.*)$`)
}

// Parse turns record text into a Snapshot. Schedule times are interpreted in
// loc (time.Local when nil). Parse never fails.
func Parse(raw string, loc *time.Location) Snapshot {
	if loc == nil {
		loc = time.Local
	}
	snap := Snapshot{Status: StatusIdle, Raw: raw}
	if value, ok := field(statusPattern, raw); ok {
		if m := statusWord.FindStringSubmatch(value); m != nil {
			snap.Status = ParseStatus(m[1])
		}
	}
	if value, ok := field(schedulePattern, raw); ok {
		if at, err := time.ParseInLocation(ScheduleLayout, value, loc); err == nil {
			snap.ScheduledTime = &at
		}
	}
	if value, ok := field(contentPattern, raw); ok {
		snap.ScheduledContent = value
	}
	snap.TaskName, _ = field(taskNamePattern, raw)
	snap.StartedAt, _ = field(startedPattern, raw)
	snap.Trigger, _ = field(triggerPattern, raw)
	snap.Checklist = parseChecklist(raw)
	return snap
}

func field(pattern *regexp.Regexp, raw string) (string, bool) {
	m := pattern.FindStringSubmatch(raw)
	if m == nil {
		return "", false
	}
	value := strings.TrimSpace(m[1])
	if value == "" {
		return "", false
	}
	return value, true
}

func parseChecklist(raw string) []ChecklistItem {
	matches := checklistPattern.FindAllStringSubmatch(raw, -1)
	if len(matches) == 0 {
		return nil
	}
	items := make([]ChecklistItem, 0, len(matches))
	for _, m := range matches {
		state := ItemPending
		switch m[1] {
		case "x", "X":
			state = ItemDone
		case "/":
			state = ItemInProgress
		}
		items = append(items, ChecklistItem{State: state, Text: strings.TrimSpace(m[2])})
	}
	return items
}
