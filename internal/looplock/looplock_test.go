package looplock

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireWritesInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loop.lock")
	l := NewLock(path)
	h, err := l.Acquire(context.Background(), "build the thing")
	require.NoError(t, err)
	defer h.Release()

	info, err := l.Info()
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, os.Getpid(), info.PID)
	assert.Equal(t, "build the thing", info.Prompt)
}

func TestTryAcquireFailsOnContention(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loop.lock")
	l := NewLock(path)
	h, err := l.Acquire(context.Background(), "p")
	require.NoError(t, err)
	defer h.Release()

	_, ok, err := NewLock(path).TryAcquire("p2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIsHeldByLiveProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loop.lock")
	l := NewLock(path)
	h, err := l.Acquire(context.Background(), "p")
	require.NoError(t, err)

	live, err := l.IsHeldByLiveProcess()
	require.NoError(t, err)
	assert.True(t, live, "our own PID is alive")

	require.NoError(t, h.Release())
}

func TestRegistryRegisterSupersedesSamePID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loops.json")
	r := NewRegistry(path)

	pid := os.Getpid()
	id1, err := r.Register(context.Background(), Entry{ID: "loop-1", PID: pid, Started: time.Now(), Workspace: "/ws"})
	require.NoError(t, err)
	id2, err := r.Register(context.Background(), Entry{ID: "loop-2", PID: pid, Started: time.Now(), Workspace: "/ws"})
	require.NoError(t, err)
	assert.Equal(t, "loop-1", id1)
	assert.Equal(t, "loop-2", id2)

	entries, err := r.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "loop-2", entries[0].ID)
}

func TestRegistryPurgesStaleEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loops.json")
	r := NewRegistry(path)

	_, err := r.Register(context.Background(), Entry{ID: "dead", PID: deadPID(), Started: time.Now(), Workspace: "/ws"})
	require.NoError(t, err)
	_, err = r.Register(context.Background(), Entry{ID: "live", PID: os.Getpid(), Started: time.Now(), Workspace: "/ws"})
	require.NoError(t, err)

	entries, err := r.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "live", entries[0].ID)
}

func TestRegistryDeregisterNotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loops.json")
	r := NewRegistry(path)
	err := r.Deregister(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistryNoDuplicatePIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loops.json")
	r := NewRegistry(path)
	pid := os.Getpid()
	for i := 0; i < 5; i++ {
		_, err := r.Register(context.Background(), Entry{ID: "loop", PID: pid, Started: time.Now(), Workspace: "/ws"})
		require.NoError(t, err)
	}
	entries, err := r.List(context.Background())
	require.NoError(t, err)
	seen := map[int]bool{}
	for _, e := range entries {
		assert.False(t, seen[e.PID], "duplicate PID in registry")
		seen[e.PID] = true
	}
}

func TestDeregisterCurrentProcessIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loops.json")
	r := NewRegistry(path)
	require.NoError(t, r.DeregisterCurrentProcess(context.Background()))
	_, err := r.Register(context.Background(), Entry{ID: "loop", PID: os.Getpid(), Started: time.Now(), Workspace: "/ws"})
	require.NoError(t, err)
	require.NoError(t, r.DeregisterCurrentProcess(context.Background()))
	require.NoError(t, r.DeregisterCurrentProcess(context.Background()))

	entries, err := r.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// deadPID returns a PID extremely unlikely to be alive.
func deadPID() int {
	return 1 << 30
}
