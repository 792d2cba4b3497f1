package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"claude missing model", Config{Kind: KindClaudeAPI}, true},
		{"claude ok", Config{Kind: KindClaudeAPI, Model: "claude-3-5-haiku-20241022"}, false},
		{"command missing command", Config{Kind: KindCommand}, true},
		{"command ok", Config{Kind: KindCommand, Command: "claude"}, false},
		{"unknown kind", Config{Kind: "bogus"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewBuildsCommandAdapter(t *testing.T) {
	a, err := New(Config{Kind: KindCommand, Command: "echo"})
	require.NoError(t, err)
	_, ok := a.(*CommandAdapter)
	assert.True(t, ok)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(Config{Kind: KindClaudeAPI})
	assert.Error(t, err)
}

func TestDefaultConfigIsValid(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
}
