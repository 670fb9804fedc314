package checkpoint

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

// Reader loads snapshots from the record on disk.
type Reader struct {
	fs       afero.Fs
	path     string
	location *time.Location
	logger   *slog.Logger
}

// ReaderOption customizes a Reader.
type ReaderOption func(*Reader)

// WithLocation sets the zone schedule times are interpreted in.
func WithLocation(loc *time.Location) ReaderOption {
	return func(r *Reader) {
		if loc != nil {
			r.location = loc
		}
	}
}

// WithLogger routes read warnings to logger.
func WithLogger(logger *slog.Logger) ReaderOption {
	return func(r *Reader) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewReader returns a Reader for the record at path on fsys.
func NewReader(fsys afero.Fs, path string, opts ...ReaderOption) *Reader {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	r := &Reader{
		fs:       fsys,
		path:     path,
		location: time.Local,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Path returns the record location.
func (r *Reader) Path() string {
	return r.path
}

// Read returns the current snapshot. A missing record is IDLE; any other read
// failure is logged and also yields IDLE.
func (r *Reader) Read() Snapshot {
	data, err := afero.ReadFile(r.fs, r.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			r.logger.Warn("checkpoint read failed; treating as IDLE", "path", r.path, "err", err)
		}
		return Idle()
	}
	snap := Parse(string(data), r.location)
	if snap.ScheduledTime == nil {
		if _, ok := field(schedulePattern, snap.Raw); ok {
			r.logger.Debug("checkpoint schedule time ignored", "path", r.path, "layout", ScheduleLayout)
		}
	}
	return snap
}

const initialTemplate = `# Checkpoint - 自律開発ステータス

## 現在のミッション
- **タスク名**: %s
- **開始時刻**: %s

## ステータス
- **状態**: RUNNING

## 進捗チェックリスト
(AIが自動で記入)

## 次のアクション
(AIが自動で記入)

## 最終更新
%s
`

// Initialize overwrites the record with a fresh RUNNING template for a new
// mission.
func Initialize(fsys afero.Fs, path, taskName string, now time.Time) error {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("checkpoint: ensure dir: %w", err)
	}
	stamp := now.Format(time.DateTime)
	content := fmt.Sprintf(initialTemplate, taskName, stamp, stamp)
	if err := afero.WriteFile(fsys, path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("checkpoint: write %s: %w", path, err)
	}
	return nil
}
