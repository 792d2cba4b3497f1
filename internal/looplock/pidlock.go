// Package looplock implements the per-workspace exclusive PID lock and
// the cross-process loop registry, both guarded by sidecar flocks so
// that stale entries left behind by a crashed process are recoverable.
package looplock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/steveyegge/ralph/internal/filelock"
)

// LockInfo is the JSON body of a held loop.lock.
type LockInfo struct {
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	Prompt    string    `json:"prompt"`
}

// Lock is a per-workspace exclusive PID lock at the path given to New.
// Invariant: at most one live holder exists for a given workspace.
type Lock struct {
	path string
	fl   *filelock.Lock
}

// NewLock returns a Lock for the file at path (typically
// LoopContext.LoopLockPath()).
func NewLock(path string) *Lock {
	return &Lock{path: path, fl: filelock.New(path)}
}

// Holder describes an acquired lock; Release must be called on every
// exit path.
type Holder struct {
	guard *filelock.Guard
	path  string
}

// Acquire writes {pid, started_at, prompt} and holds the lock until
// Release. In exclusive mode (the default caller behaviour) this blocks
// until any current holder releases. Non-exclusive callers (merge-ralph
// spawns) should instead call TryAcquire and proceed even on contention,
// per §4.11.
func (l *Lock) Acquire(ctx context.Context, prompt string) (*Holder, error) {
	guard, err := l.fl.Exclusive(ctx)
	if err != nil {
		return nil, fmt.Errorf("looplock: acquiring %s: %w", l.path, err)
	}
	info := LockInfo{PID: os.Getpid(), StartedAt: time.Now().UTC(), Prompt: prompt}
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		_ = guard.Release()
		return nil, fmt.Errorf("looplock: marshaling lock info: %w", err)
	}
	if err := os.WriteFile(l.path, data, 0o644); err != nil {
		_ = guard.Release()
		return nil, fmt.Errorf("looplock: writing %s: %w", l.path, err)
	}
	return &Holder{guard: guard, path: l.path}, nil
}

// TryAcquire attempts a non-blocking acquisition, used by non-exclusive
// callers that want to proceed regardless of contention: the boolean is
// false (with a nil Holder) if the lock is currently held.
func (l *Lock) TryAcquire(prompt string) (*Holder, bool, error) {
	res, err := l.fl.TryExclusive()
	if err != nil {
		return nil, false, fmt.Errorf("looplock: acquiring %s: %w", l.path, err)
	}
	if !res.Acquired {
		return nil, false, nil
	}
	info := LockInfo{PID: os.Getpid(), StartedAt: time.Now().UTC(), Prompt: prompt}
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		_ = res.Guard.Release()
		return nil, false, fmt.Errorf("looplock: marshaling lock info: %w", err)
	}
	if err := os.WriteFile(l.path, data, 0o644); err != nil {
		_ = res.Guard.Release()
		return nil, false, fmt.Errorf("looplock: writing %s: %w", l.path, err)
	}
	return &Holder{guard: res.Guard, path: l.path}, true, nil
}

// Release drops the exclusive hold. Safe to call multiple times.
func (h *Holder) Release() error {
	if h == nil {
		return nil
	}
	return h.guard.Release()
}

// Info reads the current lock file's contents without acquiring the
// lock, to let a UI or the merge queue report the primary loop's
// in-progress prompt. Returns (nil, nil) if the file does not exist.
func (l *Lock) Info() (*LockInfo, error) {
	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looplock: reading %s: %w", l.path, err)
	}
	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("looplock: parsing %s: %w", l.path, err)
	}
	return &info, nil
}

// IsHeldByLiveProcess reports whether the lock file names a PID that is
// currently alive. It does not itself acquire the flock: this is a
// best-effort liveness check for read-only callers such as
// merge_button_state.
func (l *Lock) IsHeldByLiveProcess() (bool, error) {
	info, err := l.Info()
	if err != nil {
		return false, err
	}
	if info == nil {
		return false, nil
	}
	return isProcessAlive(info.PID), nil
}

// isProcessAlive checks PID liveness via a signal-0 kill, the same
// POSIX idiom the teacher's beads-exclusion lock uses: EPERM means the
// process exists but we lack permission to signal it, which we treat
// conservatively as "alive".
func isProcessAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	if errors.Is(err, os.ErrProcessDone) {
		return false
	}
	if errors.Is(err, syscall.EPERM) {
		return true
	}
	return false
}
