package store

import (
	"context"
	"fmt"
	"os"

	"github.com/steveyegge/ralph/internal/filelock"
)

// ScratchpadStore gives the orchestrator read access to the agent's
// working notes. Unlike memories and tasks, only the agent writes the
// scratchpad (via the filesystem, outside this process); the loop only
// reads it for prompt context, under a shared lock so a concurrent
// exclusive write is never read half-finished.
type ScratchpadStore struct {
	path string
	lock *filelock.Lock
}

// NewScratchpadStore returns a store for the markdown file at path.
func NewScratchpadStore(path string) *ScratchpadStore {
	return &ScratchpadStore{path: path, lock: filelock.New(path)}
}

// Read returns the scratchpad's current contents, or "" if it does not
// exist yet.
func (s *ScratchpadStore) Read(ctx context.Context) (string, error) {
	guard, err := s.lock.Shared(ctx)
	if err != nil {
		return "", fmt.Errorf("scratchpad: acquiring lock: %w", err)
	}
	defer guard.Release()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", nil
	}
	return string(data), nil
}

// Write overwrites the scratchpad. Only used by tests and by the
// orchestrator when seeding a fresh worktree.
func (s *ScratchpadStore) Write(ctx context.Context, content string) error {
	guard, err := s.lock.Exclusive(ctx)
	if err != nil {
		return fmt.Errorf("scratchpad: acquiring lock: %w", err)
	}
	defer guard.Release()
	return os.WriteFile(s.path, []byte(content), 0o644)
}
