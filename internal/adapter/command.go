package adapter

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/steveyegge/ralph/internal/loop"
)

// CommandAdapter spawns an external CLI coding agent as a subprocess
// per call, grounded on the teacher's executor.buildClaudeCodeCommand /
// executor.buildAmpCommand and the timeout/kill handling in
// executor.Agent.Wait. Unlike the teacher's long-lived Agent (one
// process per issue, streamed incrementally), ralph spawns one short
// process per hat activation and waits for it to exit, since each
// activation already has its own prompt and timeout from the event
// loop.
type CommandAdapter struct {
	command string
	args    []string
}

// NewCommandAdapter builds a CommandAdapter invoking cfg.Command with
// cfg.Args, followed by the constructed prompt as a final argument.
func NewCommandAdapter(cfg Config) *CommandAdapter {
	return &CommandAdapter{command: cfg.Command, args: cfg.Args}
}

// Execute satisfies loop.Adapter. success reports whether the process
// exited zero; a non-zero exit is not itself an error, matching the
// teacher's Agent.Wait, which returns a populated (unsuccessful) result
// rather than an error for ordinary process failure.
func (a *CommandAdapter) Execute(ctx context.Context, prompt string, timeout time.Duration) ([]byte, bool, loop.Usage, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append(append([]string{}, a.args...), prompt)
	cmd := exec.CommandContext(callCtx, a.command, args...)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Start(); err != nil {
		return nil, false, loop.Usage{}, fmt.Errorf("adapter: starting %s: %w", a.command, err)
	}

	err := cmd.Wait()
	output := out.Bytes()
	usage := loop.Usage{
		InputTokens:  EstimateTokens(prompt),
		OutputTokens: EstimateTokens(out.String()),
	}

	if callCtx.Err() == context.DeadlineExceeded {
		return output, false, usage, fmt.Errorf("adapter: %s timed out after %v", a.command, timeout)
	}
	if err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			return output, false, usage, nil
		}
		return output, false, usage, fmt.Errorf("adapter: running %s: %w", a.command, err)
	}

	return output, true, usage, nil
}
