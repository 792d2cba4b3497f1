package looplock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/steveyegge/ralph/internal/filelock"
)

// ErrNotFound is returned by Deregister/Get when an id is absent after
// stale cleanup.
var ErrNotFound = errors.New("looplock: entry not found")

// Entry is one row of the loop registry.
type Entry struct {
	ID            string    `json:"id"`
	PID           int       `json:"pid"`
	Started       time.Time `json:"started"`
	Prompt        string    `json:"prompt"`
	WorktreePath  string    `json:"worktree_path,omitempty"`
	Workspace     string    `json:"workspace"`
}

// IsAlive reports whether e's process still exists.
func (e Entry) IsAlive() bool {
	return isProcessAlive(e.PID)
}

// Registry is the JSON-backed `.ralph/loops.json` list, guarded by a
// sidecar flock. No two entries ever share a PID: registering supersedes
// any existing entry with the caller's PID (crash recovery), and a read
// always purges entries whose PID has died.
type Registry struct {
	path string
	fl   *filelock.Lock
}

// NewRegistry returns a Registry backed by the file at path.
func NewRegistry(path string) *Registry {
	return &Registry{path: path, fl: filelock.New(path)}
}

// Register removes any existing entry with entry.PID, appends entry,
// and returns entry.ID.
func (r *Registry) Register(ctx context.Context, entry Entry) (string, error) {
	guard, err := r.fl.Exclusive(ctx)
	if err != nil {
		return "", fmt.Errorf("loop registry: acquiring lock: %w", err)
	}
	defer guard.Release()

	entries, err := r.readLocked()
	if err != nil {
		return "", err
	}
	filtered := entries[:0]
	for _, e := range entries {
		if e.PID != entry.PID {
			filtered = append(filtered, e)
		}
	}
	filtered = append(filtered, entry)
	if err := r.writeLocked(filtered); err != nil {
		return "", err
	}
	return entry.ID, nil
}

// Deregister removes the entry with the given id. After purging stale
// entries, an absent id is reported as ErrNotFound rather than treated
// as a silent success.
func (r *Registry) Deregister(ctx context.Context, id string) error {
	guard, err := r.fl.Exclusive(ctx)
	if err != nil {
		return fmt.Errorf("loop registry: acquiring lock: %w", err)
	}
	defer guard.Release()

	entries, err := r.readAndPurgeLocked()
	if err != nil {
		return err
	}
	found := false
	kept := entries[:0]
	for _, e := range entries {
		if e.ID == id {
			found = true
			continue
		}
		kept = append(kept, e)
	}
	if !found {
		return ErrNotFound
	}
	return r.writeLocked(kept)
}

// DeregisterCurrentProcess is an idempotent cleanup for the calling
// process: it removes any entry whose PID matches os.Getpid(), and never
// errors if none exists.
func (r *Registry) DeregisterCurrentProcess(ctx context.Context) error {
	guard, err := r.fl.Exclusive(ctx)
	if err != nil {
		return fmt.Errorf("loop registry: acquiring lock: %w", err)
	}
	defer guard.Release()

	entries, err := r.readAndPurgeLocked()
	if err != nil {
		return err
	}
	pid := os.Getpid()
	kept := entries[:0]
	for _, e := range entries {
		if e.PID != pid {
			kept = append(kept, e)
		}
	}
	return r.writeLocked(kept)
}

// List purges stale entries, then returns every remaining entry.
func (r *Registry) List(ctx context.Context) ([]Entry, error) {
	guard, err := r.fl.Exclusive(ctx)
	if err != nil {
		return nil, fmt.Errorf("loop registry: acquiring lock: %w", err)
	}
	defer guard.Release()
	return r.readAndPurgeLocked()
}

// Get purges stale entries, then returns the entry with the given id.
func (r *Registry) Get(ctx context.Context, id string) (Entry, error) {
	entries, err := r.List(ctx)
	if err != nil {
		return Entry{}, err
	}
	for _, e := range entries {
		if e.ID == id {
			return e, nil
		}
	}
	return Entry{}, ErrNotFound
}

// CleanStale explicitly sweeps dead-PID entries and returns the number removed.
func (r *Registry) CleanStale(ctx context.Context) (int, error) {
	guard, err := r.fl.Exclusive(ctx)
	if err != nil {
		return 0, fmt.Errorf("loop registry: acquiring lock: %w", err)
	}
	defer guard.Release()

	entries, err := r.readLocked()
	if err != nil {
		return 0, err
	}
	var live []Entry
	for _, e := range entries {
		if e.IsAlive() {
			live = append(live, e)
		}
	}
	removed := len(entries) - len(live)
	if removed > 0 {
		if err := r.writeLocked(live); err != nil {
			return 0, err
		}
	}
	return removed, nil
}

func (r *Registry) readAndPurgeLocked() ([]Entry, error) {
	entries, err := r.readLocked()
	if err != nil {
		return nil, err
	}
	var live []Entry
	for _, e := range entries {
		if e.IsAlive() {
			live = append(live, e)
		}
	}
	if len(live) != len(entries) {
		if err := r.writeLocked(live); err != nil {
			return nil, err
		}
	}
	return live, nil
}

func (r *Registry) readLocked() ([]Entry, error) {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		// Shared-state read failures degrade to empty rather than
		// propagating, per the error handling policy.
		return nil, nil
	}
	if len(data) == 0 {
		return nil, nil
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, nil
	}
	return entries, nil
}

func (r *Registry) writeLocked(entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("loop registry: marshaling: %w", err)
	}
	if err := os.WriteFile(r.path, data, 0o644); err != nil {
		return fmt.Errorf("loop registry: writing %s: %w", r.path, err)
	}
	return nil
}
