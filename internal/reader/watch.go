package reader

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher wakes a Reader's poll loop on writes to its events file (and
// to the containing directory, so a file that doesn't exist yet is
// picked up once created), instead of busy-polling on a tight ticker.
// It also honours a fallback tick, since fsnotify delivery is
// best-effort on some filesystems (notably network mounts).
type Watcher struct {
	watcher      *fsnotify.Watcher
	path         string
	fallbackTick time.Duration
}

// NewWatcher starts watching the directory containing path.
func NewWatcher(path string, fallbackTick time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("reader: creating watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("reader: watching %s: %w", dir, err)
	}
	return &Watcher{watcher: fw, path: path, fallbackTick: fallbackTick}, nil
}

// Close releases the underlying filesystem watch.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

// Wait blocks until path is written to, the fallback tick elapses, or
// ctx is cancelled. It never blocks the caller forever: the fallback
// tick is the ceiling on staleness when fsnotify events are missed.
func (w *Watcher) Wait(ctx context.Context) error {
	timer := time.NewTimer(w.fallbackTick)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) == filepath.Clean(w.path) {
				return nil
			}
			// Other files in the directory (e.g. the current-events
			// marker) also wake the loop up; it will no-op on the next
			// Poll if nothing relevant changed.
			return nil
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("reader: watch error: %w", err)
		}
	}
}
