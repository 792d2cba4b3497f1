package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestTaskSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.jsonl")
	s := NewTaskStore(path)

	tasks := []Task{
		{ID: "task-1", Title: "do thing", Status: TaskOpen, Priority: 1, Created: time.Now()},
	}
	require.NoError(t, s.Save(context.Background(), tasks))

	got, err := s.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "task-1", got[0].ID)
}

func TestTaskLoadMissingFileIsEmpty(t *testing.T) {
	s := NewTaskStore(filepath.Join(t.TempDir(), "tasks.jsonl"))
	got, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestTaskLoadSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.jsonl")
	s := NewTaskStore(path)
	raw := `{"id":"task-1","title":"ok","status":"open","priority":1}` + "\n" +
		"not json\n" +
		"\n" +
		`{"id":"task-2","title":"ok2","status":"open","priority":1}` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	got, err := s.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestReady(t *testing.T) {
	tasks := []Task{
		{ID: "a", Status: TaskClosed},
		{ID: "b", Status: TaskOpen, BlockedBy: []string{"a"}},
		{ID: "c", Status: TaskOpen, BlockedBy: []string{"missing"}},
		{ID: "d", Status: TaskOpen},
	}
	ready := Ready(tasks)
	var ids []string
	for _, t := range ready {
		ids = append(ids, t.ID)
	}
	assert.ElementsMatch(t, []string{"b", "d"}, ids)
}

func TestHasPendingTasks(t *testing.T) {
	assert.True(t, HasPendingTasks([]Task{{Status: TaskInProgress}}))
	assert.False(t, HasPendingTasks([]Task{{Status: TaskClosed}, {Status: TaskFailed}}))
}

func TestWithExclusiveLockIsAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.jsonl")
	s := NewTaskStore(path)
	require.NoError(t, s.Save(context.Background(), []Task{{ID: "a", Status: TaskOpen}}))

	var eg errgroup.Group
	for i := 0; i < 10; i++ {
		eg.Go(func() error {
			store := NewTaskStore(path)
			return store.WithExclusiveLock(context.Background(), func(tasks []Task) []Task {
				return append(tasks, Task{ID: "x", Status: TaskOpen})
			})
		})
	}
	require.NoError(t, eg.Wait())

	got, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 11) // original + 10 appended, no lost updates
}
