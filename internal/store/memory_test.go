package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryInitCreatesTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memories.md")
	s := NewMemoryStore(path)
	require.NoError(t, s.Init(context.Background(), false))

	err := s.Init(context.Background(), false)
	assert.Error(t, err, "re-init without force should error")

	require.NoError(t, s.Init(context.Background(), true))
}

func TestMemoryAppendAndFilter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memories.md")
	s := NewMemoryStore(path)
	require.NoError(t, s.Init(context.Background(), false))

	m, err := s.Append(context.Background(), Memory{
		Type:    MemoryFix,
		Content: "fixed the flaky test\nby seeding the RNG",
		Tags:    []string{"tests", "flaky"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, m.ID)

	byType, err := s.FilterByType(context.Background(), MemoryFix)
	require.NoError(t, err)
	require.Len(t, byType, 1)
	assert.Equal(t, "fixed the flaky test\nby seeding the RNG", byType[0].Content)

	byTag, err := s.FilterByTags(context.Background(), []string{"FLAKY"})
	require.NoError(t, err)
	require.Len(t, byTag, 1)

	found, err := s.Search(context.Background(), "rng")
	require.NoError(t, err)
	require.Len(t, found, 1)
}

func TestMemoryDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memories.md")
	s := NewMemoryStore(path)
	require.NoError(t, s.Init(context.Background(), false))

	m, err := s.Append(context.Background(), Memory{Type: MemoryPattern, Content: "x"})
	require.NoError(t, err)

	ok, err := s.Delete(context.Background(), m.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Delete(context.Background(), "mem-missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryMultiLineRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memories.md")
	s := NewMemoryStore(path)
	require.NoError(t, s.Init(context.Background(), false))

	content := "line one\nline two\nline three"
	_, err := s.Append(context.Background(), Memory{Type: MemoryDecision, Content: content, Created: time.Now()})
	require.NoError(t, err)

	all, err := s.All(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, content, all[0].Content)
}
