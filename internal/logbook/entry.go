package logbook

import (
	"strings"
	"time"
)

// Tone groups entries the way the dashboard colours them.
type Tone string

const (
	ToneInfo    Tone = "info"
	ToneSuccess Tone = "success"
	ToneWarning Tone = "warning"
	ToneError   Tone = "error"
)

// Entry is one parsed log line.
type Entry struct {
	Time    time.Time `json:"time"`
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	Tone    Tone      `json:"tone"`
}

// ParseLine splits a line written by Append. Lines in any other shape keep
// their full text as the message.
func ParseLine(line string) Entry {
	entry := Entry{Level: LevelInfo, Message: strings.TrimSpace(line)}
	fields := strings.Fields(line)
	if len(fields) >= 2 {
		if ts, err := time.Parse(time.RFC3339, fields[0]); err == nil {
			entry.Time = ts
			entry.Level = Level(fields[1])
			rest := strings.TrimSpace(strings.TrimPrefix(line, fields[0]))
			entry.Message = strings.TrimSpace(strings.TrimPrefix(rest, fields[1]))
		}
	}
	entry.Tone = classify(entry.Level, entry.Message)
	return entry
}

func classify(level Level, message string) Tone {
	switch {
	case level == LevelError:
		return ToneError
	case strings.Contains(message, "COMPLETE"), strings.Contains(message, "sent!"), strings.Contains(message, "DISPATCHED"):
		return ToneSuccess
	case level == LevelWarn, strings.Contains(message, "WAITING"), strings.Contains(message, "shortly"):
		return ToneWarning
	default:
		return ToneInfo
	}
}
