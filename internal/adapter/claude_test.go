package adapter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMessageCreator struct {
	resp *anthropic.Message
	err  error
}

func (f *fakeMessageCreator) New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error) {
	return f.resp, f.err
}

func TestClaudeAdapterExecuteConcatenatesTextBlocks(t *testing.T) {
	fake := &fakeMessageCreator{
		resp: &anthropic.Message{
			Content: []anthropic.ContentBlockUnion{
				{Type: "text", Text: "hello "},
				{Type: "text", Text: "world"},
			},
			Usage: anthropic.Usage{InputTokens: 12, OutputTokens: 3},
		},
	}
	a := &ClaudeAdapter{client: fake, model: "claude-3-5-haiku-20241022", maxTokens: 1024}

	output, success, usage, err := a.Execute(context.Background(), "prompt", time.Second)
	require.NoError(t, err)
	assert.True(t, success)
	assert.Equal(t, "hello world", string(output))
	assert.Equal(t, int64(12), usage.InputTokens)
	assert.Equal(t, int64(3), usage.OutputTokens)
}

func TestClaudeAdapterExecutePropagatesError(t *testing.T) {
	fake := &fakeMessageCreator{err: errors.New("quota exceeded")}
	a := &ClaudeAdapter{client: fake, model: "claude-3-5-haiku-20241022", maxTokens: 1024}

	_, success, _, err := a.Execute(context.Background(), "prompt", time.Second)
	require.Error(t, err)
	assert.False(t, success)
}

func TestNewClaudeAdapterRequiresAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	_, err := NewClaudeAdapter(Config{Model: "claude-3-5-haiku-20241022"})
	require.Error(t, err)
}

func TestNewClaudeAdapterUsesEnvKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-test-key")
	a, err := NewClaudeAdapter(Config{Model: "claude-3-5-haiku-20241022"})
	require.NoError(t, err)
	assert.Equal(t, "claude-3-5-haiku-20241022", a.model)
	assert.EqualValues(t, 8192, a.maxTokens)
}
