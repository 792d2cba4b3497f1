// Package adapter provides concrete loop.Adapter implementations: a
// direct Anthropic API client and a subprocess-spawning CLI wrapper,
// grounded on the teacher's executor.AgentConfig / executor.SpawnAgent
// split between API calls (internal/ai) and CLI agent processes
// (internal/executor/agent.go).
package adapter

import (
	"fmt"

	"github.com/steveyegge/ralph/internal/loop"
)

// Kind selects which concrete adapter Config builds.
type Kind string

const (
	KindClaudeAPI Kind = "claude-api"
	KindCommand   Kind = "command"
)

// Config is the ralph.yaml `adapter:` block.
type Config struct {
	Kind Kind `yaml:"kind"`

	// Claude API adapter fields.
	Model     string `yaml:"model"`
	MaxTokens int64  `yaml:"max_tokens"`
	APIKey    string `yaml:"api_key"`

	// Command adapter fields.
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// Validate checks Config for the fields its Kind requires.
func (c Config) Validate() error {
	switch c.Kind {
	case KindClaudeAPI:
		if c.Model == "" {
			return fmt.Errorf("adapter: claude-api kind requires model")
		}
	case KindCommand:
		if c.Command == "" {
			return fmt.Errorf("adapter: command kind requires command")
		}
	default:
		return fmt.Errorf("adapter: unknown kind %q", c.Kind)
	}
	return nil
}

// DefaultConfig returns a Claude API adapter using Haiku, matching the
// teacher's default model choice for lightweight automated calls.
func DefaultConfig() Config {
	return Config{
		Kind:      KindClaudeAPI,
		Model:     "claude-3-5-haiku-20241022",
		MaxTokens: 8192,
	}
}

// New builds the loop.Adapter described by cfg.
func New(cfg Config) (loop.Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Kind {
	case KindClaudeAPI:
		return NewClaudeAdapter(cfg)
	case KindCommand:
		return NewCommandAdapter(cfg), nil
	default:
		return nil, fmt.Errorf("adapter: unknown kind %q", cfg.Kind)
	}
}
