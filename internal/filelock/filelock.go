// Package filelock implements sidecar advisory file locks shared across
// processes: shared locks for readers, exclusive locks for writers,
// backed by flock(2) on POSIX platforms.
package filelock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrUnsupported is returned on platforms without a flock(2)-equivalent.
var ErrUnsupported = errors.New("filelock: advisory locks are unsupported on this platform")

// Lock is a sidecar advisory lock over {path}.lock. The parent directory
// is created if absent. Lock holds no OS resources itself; each
// operation opens the sidecar file and acquires/releases flock state on
// it, so a Lock value may be copied freely and reused across goroutines
// as long as callers serialize through the returned Guard.
type Lock struct {
	path string
}

// New returns a Lock guarding path's sidecar "{path}.lock" file.
func New(path string) *Lock {
	return &Lock{path: path}
}

// Guard represents a held lock. Releasing it is mandatory on every exit
// path; callers should `defer guard.Release()` immediately after a
// successful acquisition.
type Guard struct {
	file     *os.File
	released bool
}

// Release drops the lock and closes the sidecar file descriptor. It is
// safe to call more than once.
func (g *Guard) Release() error {
	if g == nil || g.released {
		return nil
	}
	g.released = true
	err := unlock(g.file)
	closeErr := g.file.Close()
	if err != nil {
		return err
	}
	return closeErr
}

func (l *Lock) sidecarPath() string {
	return l.path + ".lock"
}

func (l *Lock) open() (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(l.sidecarPath()), 0o755); err != nil {
		return nil, fmt.Errorf("filelock: creating lock directory: %w", err)
	}
	f, err := os.OpenFile(l.sidecarPath(), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("filelock: opening %s: %w", l.sidecarPath(), err)
	}
	return f, nil
}

// Shared blocks until a shared lock is acquired. Multiple shared holders
// may coexist.
func (l *Lock) Shared(ctx context.Context) (*Guard, error) {
	return l.acquire(ctx, false, true)
}

// Exclusive blocks until an exclusive lock is acquired. An exclusive
// holder excludes every other holder, shared or exclusive.
func (l *Lock) Exclusive(ctx context.Context) (*Guard, error) {
	return l.acquire(ctx, true, true)
}

// TrySharedResult reports whether a non-blocking acquisition succeeded.
type TrySharedResult struct {
	Guard    *Guard
	Acquired bool
}

// TryShared attempts a non-blocking shared acquisition. Contention is
// reported via Acquired=false, not an error.
func (l *Lock) TryShared() (TrySharedResult, error) {
	g, err := l.acquire(context.Background(), false, false)
	return toTryResult(g, err)
}

// TryExclusive attempts a non-blocking exclusive acquisition. Contention
// is reported via Acquired=false, not an error.
func (l *Lock) TryExclusive() (TrySharedResult, error) {
	g, err := l.acquire(context.Background(), true, false)
	return toTryResult(g, err)
}

func toTryResult(g *Guard, err error) (TrySharedResult, error) {
	if errors.Is(err, errWouldBlock) {
		return TrySharedResult{Acquired: false}, nil
	}
	if err != nil {
		return TrySharedResult{}, err
	}
	return TrySharedResult{Guard: g, Acquired: true}, nil
}

var errWouldBlock = errors.New("filelock: would block")

// pollInterval is how often a blocking acquisition retries on platforms
// or call paths where we fall back to polling (used to make blocking
// acquisitions honour ctx cancellation, since flock(2) itself has no
// context-aware variant).
const pollInterval = 20 * time.Millisecond

func (l *Lock) acquire(ctx context.Context, exclusive, block bool) (*Guard, error) {
	f, err := l.open()
	if err != nil {
		return nil, err
	}

	if !block {
		if err := tryLock(f, exclusive); err != nil {
			_ = f.Close()
			return nil, err
		}
		return &Guard{file: f}, nil
	}

	for {
		err := tryLock(f, exclusive)
		if err == nil {
			return &Guard{file: f}, nil
		}
		if !errors.Is(err, errWouldBlock) {
			_ = f.Close()
			return nil, err
		}
		select {
		case <-ctx.Done():
			_ = f.Close()
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}
