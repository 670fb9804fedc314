package tui

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/samber/lo"
)

// Watcher reports changes to a fixed set of files. It watches their parent
// directories so files replaced by rename are still seen.
type Watcher struct {
	watcher *fsnotify.Watcher
	names   map[string]struct{}
	changes chan string
	done    chan struct{}
	once    sync.Once
}

// NewWatcher starts watching paths. Empty paths are ignored.
func NewWatcher(paths ...string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	paths = lo.Compact(paths)
	w := &Watcher{
		watcher: fw,
		names:   make(map[string]struct{}, len(paths)),
		changes: make(chan string, 1),
		done:    make(chan struct{}),
	}
	for _, p := range paths {
		w.names[filepath.Clean(p)] = struct{}{}
	}
	dirs := lo.Uniq(lo.Map(paths, func(p string, _ int) string { return filepath.Dir(filepath.Clean(p)) }))
	for _, dir := range dirs {
		if err := fw.Add(dir); err != nil {
			_ = fw.Close()
			return nil, err
		}
	}
	go w.loop()
	return w, nil
}

// Changes delivers the path of a changed file. Bursts are coalesced.
func (w *Watcher) Changes() <-chan string {
	return w.changes
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.watcher.Close()
	})
	return err
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if _, watched := w.names[filepath.Clean(event.Name)]; !watched {
				continue
			}
			select {
			case w.changes <- event.Name:
			default:
			}
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}
