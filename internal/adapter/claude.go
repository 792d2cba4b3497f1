package adapter

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/steveyegge/ralph/internal/loop"
)

// messageCreator is the narrow slice of anthropic.MessageService's
// surface ClaudeAdapter needs, so tests can substitute a fake client
// without making real API calls.
type messageCreator interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// ClaudeAdapter drives the hat loop by calling the Anthropic Messages
// API directly, grounded on the teacher's internal/ai.Supervisor.CallAI.
// Unlike the CLI-spawning CommandAdapter, it reports exact token usage
// from the API response rather than an estimate.
type ClaudeAdapter struct {
	client    messageCreator
	model     string
	maxTokens int64
}

// NewClaudeAdapter builds a ClaudeAdapter from cfg. The API key is read
// from cfg.APIKey, falling back to ANTHROPIC_API_KEY, matching the
// teacher's client construction in internal/ai/supervisor.go.
func NewClaudeAdapter(cfg Config) (*ClaudeAdapter, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("adapter: claude-api requires an API key (cfg.api_key or ANTHROPIC_API_KEY)")
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 8192
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &ClaudeAdapter{client: &client.Messages, model: cfg.Model, maxTokens: maxTokens}, nil
}

// Execute satisfies loop.Adapter. It sends the prompt as a single user
// message and concatenates every text content block into the output.
func (a *ClaudeAdapter) Execute(ctx context.Context, prompt string, timeout time.Duration) ([]byte, bool, loop.Usage, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := a.client.New(callCtx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, false, loop.Usage{}, fmt.Errorf("adapter: claude-api call: %w", err)
	}

	var output string
	for _, block := range resp.Content {
		if block.Type == "text" {
			output += block.Text
		}
	}

	usage := loop.Usage{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}
	return []byte(output), true, usage, nil
}
