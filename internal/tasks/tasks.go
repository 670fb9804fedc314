// Package tasks reads the wish list the mission launcher picks work from.
package tasks

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/afero"
)

// ErrNoPendingTask is returned when the list is missing or has no open item.
var ErrNoPendingTask = errors.New("tasks: no pending task")

// AllDone is what the dashboard shows once the list is exhausted.
const AllDone = "全タスク完了！ 🎉"

// doneMarker flags summary lines ("やったこと") that are not real work items.
const doneMarker = "やったこと"

var (
	openItem   = regexp.MustCompile(`^\s*[-*]\s+\[ \]\s*(.*)$`)
	annotation = regexp.MustCompile(`\(.*?\)|（.*?）`)
	spaces     = regexp.MustCompile(`\s{2,}`)
)

// Source reads a markdown task list.
type Source struct {
	fs   afero.Fs
	path string
}

// NewSource returns a Source for path.
func NewSource(fs afero.Fs, path string) *Source {
	return &Source{fs: fs, path: path}
}

// Path returns the list file.
func (s *Source) Path() string {
	return s.path
}

// Next returns the first unchecked task with its annotations removed.
func (s *Source) Next() (string, error) {
	items, err := s.Pending()
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return "", ErrNoPendingTask
	}
	return items[0], nil
}

// Pending returns every unchecked task in file order.
func (s *Source) Pending() ([]string, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoPendingTask
		}
		return nil, fmt.Errorf("tasks: read %s: %w", s.path, err)
	}
	return ParsePending(string(data)), nil
}

// ParsePending extracts unchecked items from a markdown list.
func ParsePending(content string) []string {
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	names := lo.FilterMap(lines, func(line string, _ int) (string, bool) {
		if strings.Contains(line, doneMarker) {
			return "", false
		}
		m := openItem.FindStringSubmatch(line)
		if m == nil {
			return "", false
		}
		return Clean(m[1]), true
	})
	return lo.Compact(names)
}

// Clean strips parenthetical notes such as "(Day 4 予定)" from a task title.
func Clean(title string) string {
	title = annotation.ReplaceAllString(title, "")
	title = spaces.ReplaceAllString(title, " ")
	return strings.TrimSpace(title)
}
