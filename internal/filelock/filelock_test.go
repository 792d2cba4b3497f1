package filelock

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestSharedLocksCoexist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	l := New(path)

	g1, err := l.Shared(context.Background())
	require.NoError(t, err)
	defer g1.Release()

	res, err := New(path).TryShared()
	require.NoError(t, err)
	require.True(t, res.Acquired)
	defer res.Guard.Release()
}

func TestExclusiveExcludesShared(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	l := New(path)

	g, err := l.Exclusive(context.Background())
	require.NoError(t, err)
	defer g.Release()

	res, err := New(path).TryShared()
	require.NoError(t, err)
	assert.False(t, res.Acquired)
}

func TestExclusiveExcludesExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	l := New(path)

	g, err := l.Exclusive(context.Background())
	require.NoError(t, err)
	defer g.Release()

	res, err := New(path).TryExclusive()
	require.NoError(t, err)
	assert.False(t, res.Acquired)
}

func TestReleaseAllowsReacquisition(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	l := New(path)

	g, err := l.Exclusive(context.Background())
	require.NoError(t, err)
	require.NoError(t, g.Release())

	res, err := New(path).TryExclusive()
	require.NoError(t, err)
	require.True(t, res.Acquired)
	res.Guard.Release()
}

func TestBlockingExclusiveWaitsForRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	first := New(path)
	g, err := first.Exclusive(context.Background())
	require.NoError(t, err)

	var acquired atomic.Bool
	var eg errgroup.Group
	eg.Go(func() error {
		second := New(path)
		g2, err := second.Exclusive(context.Background())
		if err != nil {
			return err
		}
		acquired.Store(true)
		return g2.Release()
	})

	time.Sleep(50 * time.Millisecond)
	assert.False(t, acquired.Load())
	require.NoError(t, g.Release())
	require.NoError(t, eg.Wait())
	assert.True(t, acquired.Load())
}

func TestExclusiveHonoursContextCancellation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	g, err := New(path).Exclusive(context.Background())
	require.NoError(t, err)
	defer g.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	_, err = New(path).Exclusive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// TestLinearizability covers testable property 2: at most one exclusive
// guard exists at any instant. That an exclusive guard also excludes
// shared guards is checked by TestExclusiveExcludesShared.
func TestLinearizability(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	var counter int64
	var eg errgroup.Group
	for i := 0; i < 20; i++ {
		eg.Go(func() error {
			l := New(path)
			g, err := l.Exclusive(context.Background())
			if err != nil {
				return err
			}
			defer g.Release()
			v := atomic.AddInt64(&counter, 1)
			if v != 1 {
				t.Errorf("overlapping exclusive holders: counter=%d", v)
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt64(&counter, -1)
			return nil
		})
	}
	require.NoError(t, eg.Wait())
}
