package adapter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandAdapterSuccess(t *testing.T) {
	a := NewCommandAdapter(Config{Command: "echo", Args: []string{"-n"}})
	output, success, usage, err := a.Execute(context.Background(), "hello world", time.Second)
	require.NoError(t, err)
	assert.True(t, success)
	assert.Equal(t, "hello world", string(output))
	assert.Positive(t, usage.InputTokens)
}

func TestCommandAdapterNonZeroExitIsNotError(t *testing.T) {
	a := NewCommandAdapter(Config{Command: "false"})
	_, success, _, err := a.Execute(context.Background(), "prompt", time.Second)
	require.NoError(t, err)
	assert.False(t, success)
}

func TestCommandAdapterTimeout(t *testing.T) {
	a := NewCommandAdapter(Config{Command: "sleep", Args: []string{"5"}})
	_, success, _, err := a.Execute(context.Background(), "2", 20*time.Millisecond)
	require.Error(t, err)
	assert.False(t, success)
	assert.Contains(t, err.Error(), "timed out")
}

func TestCommandAdapterUnknownCommand(t *testing.T) {
	a := NewCommandAdapter(Config{Command: "definitely-not-a-real-binary-xyz"})
	_, success, _, err := a.Execute(context.Background(), "x", time.Second)
	require.Error(t, err)
	assert.False(t, success)
}
