package loop

import (
	"context"
	"time"
)

// Usage reports the token counts an adapter consumed executing one
// prompt, for the cost tracker.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Adapter executes a single hat activation: it hands prompt to the
// underlying coding agent and waits up to timeout for it to finish.
// Implementations live in internal/adapter; Engine only depends on this
// interface so loop tests can fake agent behaviour deterministically.
type Adapter interface {
	Execute(ctx context.Context, prompt string, timeout time.Duration) (output []byte, success bool, usage Usage, err error)
}

// AdapterFunc adapts a plain function to the Adapter interface.
type AdapterFunc func(ctx context.Context, prompt string, timeout time.Duration) ([]byte, bool, Usage, error)

func (f AdapterFunc) Execute(ctx context.Context, prompt string, timeout time.Duration) ([]byte, bool, Usage, error) {
	return f(ctx, prompt, timeout)
}
