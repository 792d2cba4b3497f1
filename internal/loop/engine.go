package loop

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/steveyegge/ralph/internal/bus"
	"github.com/steveyegge/ralph/internal/cost"
	"github.com/steveyegge/ralph/internal/events"
	"github.com/steveyegge/ralph/internal/hats"
	"github.com/steveyegge/ralph/internal/prompt"
	"github.com/steveyegge/ralph/internal/reader"
	"github.com/steveyegge/ralph/internal/topic"
)

const reDispatchAbandonLimit = 2

// maxConsecutiveBlocked is the number of same-task "*.blocked" events
// required before the task is abandoned (§4.8 step 7).
const maxConsecutiveBlocked = 3

// ContextProvider supplies the ambient scratchpad/memories/task-list
// context for the next prompt. It is called fresh every iteration so
// the engine always builds against current state.
type ContextProvider func() prompt.Context

// Logger receives the loop's diagnostic warnings (pending-event
// precheck, backpressure notices). cmd/ralph wires this to the
// internal/diag stderr logger; tests can pass a recording stub.
type Logger interface {
	Warnf(format string, args ...any)
}

// Engine drives one ralph run's event loop: it owns the state machine
// described in §4.8 and delegates prompt construction, agent execution,
// and output routing to its collaborators.
type Engine struct {
	Bus      *bus.Bus
	Registry *hats.Registry
	Reader   *reader.Reader
	Adapter  Adapter
	Cost     *cost.Tracker
	State    *State
	Context  ContextProvider
	Metadata map[string]prompt.EventMetadata
	Logger   Logger

	CompletionPromise string
	Guardrails        []string
	ActivationTimeout time.Duration

	// EventLog appends every routed record to the durable JSONL log
	// (see internal/events); nil disables logging, useful in tests.
	EventLog func(events.EventRecord) error
}

// StepResult summarises one completed iteration.
type StepResult struct {
	Reason    TerminationReason
	HatID     topic.HatId
	Prompt    string
	Output    []byte
	Success   bool
	Records   []events.EventRecord
	Malformed int
}

// Run iterates Step until it reports a termination reason, returning
// that reason.
func (e *Engine) Run(ctx context.Context) (TerminationReason, error) {
	for {
		res, err := e.Step(ctx)
		if err != nil {
			return e.State.Reason, err
		}
		if res.Reason != NotTerminated {
			return res.Reason, nil
		}
	}
}

// Step executes exactly one iteration of the §4.8 state machine.
func (e *Engine) Step(ctx context.Context) (StepResult, error) {
	now := time.Now()

	if reason := e.State.CheckTermination(now); reason != NotTerminated {
		e.State.Reason = reason
		return StepResult{Reason: reason}, nil
	}

	var pend bus.Pending
	var hatID topic.HatId
	var h hats.Hat

	for {
		var ok bool
		var err error
		pend, hatID, ok, err = e.selectHat()
		if err != nil {
			return StepResult{}, err
		}
		if !ok {
			e.State.Reason = Stopped
			return StepResult{Reason: Stopped}, nil
		}

		var found bool
		h, found = e.Registry.Find(hatID)
		if !found {
			return StepResult{}, fmt.Errorf("loop: selected hat %q not in registry", hatID)
		}

		if !e.hatExhausted(h) {
			break
		}
		// exhausted: loop back to step 2 (hat selection) per §4.8 step 3.
	}

	promptText := prompt.Build(h, &pend.Event, e.buildContext(), e.Metadata)

	timeout := e.ActivationTimeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	output, success, usage, err := e.Adapter.Execute(ctx, promptText, timeout)
	if err != nil {
		return StepResult{}, fmt.Errorf("loop: adapter execution: %w", err)
	}

	taskID := extractTaskID(pend.Event)
	result, err := e.processOutput(output, usage, taskID)
	if err != nil {
		return StepResult{}, err
	}
	result.HatID = hatID
	result.Prompt = promptText
	result.Output = output
	result.Success = success

	e.State.Iteration++
	e.State.ActivationCounts[hatID]++
	if success {
		e.State.ConsecutiveFailures = 0
	} else {
		e.State.ConsecutiveFailures++
	}

	e.applyBackpressure(h, result.Records, taskID)
	e.precheckPending(h)

	result.Reason = NotTerminated
	return result, nil
}

func (e *Engine) buildContext() prompt.Context {
	if e.Context == nil {
		return prompt.Context{CompletionPromise: e.CompletionPromise, Guardrails: e.Guardrails}
	}
	ctx := e.Context()
	ctx.CompletionPromise = e.CompletionPromise
	if ctx.Guardrails == nil {
		ctx.Guardrails = e.Guardrails
	}
	return ctx
}

// selectHat implements §4.8 step 2: FIFO dequeue with fallback-event
// injection when the queue is empty.
func (e *Engine) selectHat() (bus.Pending, topic.HatId, bool, error) {
	for {
		pend, ok := e.Bus.NextPending()
		if ok {
			e.State.FallbackCounter = 0
			return pend, pend.Hat, true, nil
		}

		e.State.FallbackCounter++
		if e.State.FallbackCounter > e.State.Limits.FallbackThreshold {
			return bus.Pending{}, "", false, nil
		}

		e.Bus.Publish(events.Event{
			Topic:     topic.New("ralph.fallback"),
			Payload:   "{}",
			Timestamp: time.Now(),
		})
		if !e.Bus.HasPending() {
			return bus.Pending{}, "", false, nil
		}
	}
}

// hatExhausted implements §4.8 step 3: the max-activations guard.
// Returns true if the hat has hit its cap this run, in which case the
// exhausted-topic event has already been published and the caller
// should loop back to hat selection without executing the hat.
func (e *Engine) hatExhausted(h hats.Hat) bool {
	if h.MaxActivations == nil {
		return false
	}
	if e.State.ActivationCounts[h.ID] < *h.MaxActivations {
		return false
	}
	if e.State.ExhaustedHats[h.ID] {
		return true
	}
	e.State.ExhaustedHats[h.ID] = true
	e.Bus.Publish(events.Event{
		Topic:     topic.New(string(h.ID) + ".exhausted"),
		Payload:   "{}",
		Timestamp: time.Now(),
	})
	return true
}

// processOutput implements §4.8 step 6: parse the reader's new lines,
// fan every record out to the bus, check for the completion promise,
// and update the failure/usage counters.
func (e *Engine) processOutput(output []byte, usage Usage, taskID string) (StepResult, error) {
	text := string(output)
	parsed, err := e.Reader.Poll()
	if err != nil {
		return StepResult{}, fmt.Errorf("loop: polling reader: %w", err)
	}

	for _, rec := range parsed.Records {
		e.Bus.Publish(rec.ToEvent())
		if e.EventLog != nil {
			if err := e.EventLog(rec); err != nil {
				return StepResult{}, fmt.Errorf("loop: logging event: %w", err)
			}
		}
	}

	if len(parsed.Malformed) > 0 && len(parsed.Records) == 0 {
		e.State.ConsecutiveMalformed++
	} else {
		e.State.ConsecutiveMalformed = 0
	}

	if e.Cost != nil {
		e.Cost.RecordUsage(taskID, usage.InputTokens, usage.OutputTokens)
		e.State.TokensUsed += usage.InputTokens + usage.OutputTokens
		e.State.CostUSD = e.Cost.State().CostUSD
	}

	promiseSeen := e.CompletionPromise != "" && strings.Contains(text, e.CompletionPromise)

	// Backpressure may still discard this observation below; provisional
	// bookkeeping happens here, final say in applyBackpressure.
	if promiseSeen {
		e.State.PromiseSeenStreak++
	} else {
		e.State.PromiseSeenStreak = 0
	}

	return StepResult{Records: parsed.Records, Malformed: len(parsed.Malformed)}, nil
}

// applyBackpressure implements §4.8 step 7.
func (e *Engine) applyBackpressure(h hats.Hat, records []events.EventRecord, taskID string) {
	if blocked, ok := findBlocked(records); ok {
		blockedTaskID := extractTaskID(blocked.ToEvent())
		if blockedTaskID == "" {
			blockedTaskID = taskID
		}
		if blockedTaskID != "" && blockedTaskID == e.State.LastBlockedTaskID {
			e.State.ConsecutiveBlockedByTask[blockedTaskID]++
		} else {
			e.State.ConsecutiveBlockedByTask[blockedTaskID] = 1
		}
		e.State.LastBlockedTaskID = blockedTaskID

		if e.State.ConsecutiveBlockedByTask[blockedTaskID] >= maxConsecutiveBlocked && blockedTaskID != "" {
			e.State.AbandonedTasks[blockedTaskID] = true
		}
	} else {
		e.State.LastBlockedTaskID = ""
	}

	for abandoned := range e.State.AbandonedTasks {
		for _, r := range records {
			if !isDispatchTopic(r.Topic.String()) {
				continue
			}
			if extractTaskID(r.ToEvent()) != abandoned {
				continue
			}
			e.State.ReDispatchCount[abandoned]++
			if e.State.ReDispatchCount[abandoned] >= reDispatchAbandonLimit {
				e.State.ThrashingDetected = true
			}
		}
	}

	if buildDone, ok := findBuildDone(records); ok && !hasTestEvidence(records) {
		e.Bus.Publish(events.Event{
			Topic:     topic.New("backpressure_triggered"),
			Payload:   buildDone.Payload,
			Timestamp: time.Now(),
		})
		e.State.PromiseSeenStreak = 0
	}
}

// isDispatchTopic reports whether t is a well-known task-dispatch topic
// a planner hat uses to hand a task back out.
func isDispatchTopic(t string) bool {
	return t == "task.start" || t == "build.task"
}

// precheckPending implements §4.8 step 8: a non-fatal diagnostic when a
// hat with declared publications leaves the bus empty.
func (e *Engine) precheckPending(h hats.Hat) {
	if e.Logger == nil {
		return
	}
	if len(h.Publications) == 0 {
		return
	}
	if e.Bus.HasPending() {
		return
	}
	e.Logger.Warnf("loop: hat %q declared publications but left no pending events; it likely failed to publish", h.ID)
}
