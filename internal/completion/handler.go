// Package completion implements Ralph's §4.14 completion handler: what
// happens, at termination, with the loop's changes — land them in
// place, enqueue them for merge, or hand them off for a human to merge
// manually.
package completion

import (
	"context"
	"fmt"
	"time"

	"github.com/steveyegge/ralph/internal/landing"
	"github.com/steveyegge/ralph/internal/loop"
	"github.com/steveyegge/ralph/internal/mergequeue"
)

// startedAt returns state.StartedAt, or now if state is nil, so
// landing's summary writer reports a duration of zero rather than a
// spuriously large one measured from the zero time.
func startedAt(state *loop.State) time.Time {
	if state == nil {
		return time.Now()
	}
	return state.StartedAt
}

// Mode is where a loop ran: the primary checkout, or an isolated
// worktree.
type Mode int

const (
	Primary Mode = iota
	Worktree
)

// Outcome is the tagged result §4.14's decision table returns. Exactly
// one of the embedded payloads is populated; Kind says which.
type Outcome struct {
	Kind OutcomeKind

	Landing      landing.Result
	LoopID       string
	WorktreePath string
}

// OutcomeKind tags which variant an Outcome carries.
type OutcomeKind int

const (
	None OutcomeKind = iota
	Landed
	Enqueued
	ManualMerge
)

func (k OutcomeKind) String() string {
	switch k {
	case None:
		return "None"
	case Landed:
		return "Landed"
	case Enqueued:
		return "Enqueued"
	case ManualMerge:
		return "ManualMerge"
	default:
		return "Unknown"
	}
}

// Handler wires the landing sequence and merge queue together to
// implement the §4.14 decision table.
type Handler struct {
	Landing *landing.Handler
	Queue   *mergequeue.Queue
}

// RunInput bundles what Handle needs beyond mode/autoMerge: the
// arguments landing.Handler.Run requires, plus the original prompt text
// the merge queue records for smart-summary display.
type RunInput struct {
	LoopID         string
	WorktreePath   string
	LoopState      *loop.State
	OriginalPrompt string
	EventCounts    map[string]int
}

// Handle consumes a loop's termination reason and runs the §4.14
// decision table. Only CompletionPromise triggers merge logic; any
// other reason still lands but never enqueues.
func (h *Handler) Handle(ctx context.Context, mode Mode, autoMerge bool, reason loop.TerminationReason, in RunInput) (Outcome, error) {
	if mode == Primary {
		return h.runLanding(ctx, in)
	}

	if reason != loop.CompletionPromise {
		return h.runLanding(ctx, in)
	}

	if !autoMerge {
		res, err := h.Landing.Run(ctx, in.WorktreePath, in.LoopID, in.LoopState, in.OriginalPrompt, in.EventCounts, startedAt(in.LoopState))
		if err != nil {
			return Outcome{}, fmt.Errorf("completion: landing before manual merge: %w", err)
		}
		return Outcome{Kind: ManualMerge, Landing: res, LoopID: in.LoopID, WorktreePath: in.WorktreePath}, nil
	}

	if _, err := h.Landing.Git.AutoCommitChanges(ctx, in.WorktreePath, in.LoopID); err != nil {
		return Outcome{}, fmt.Errorf("completion: auto_commit_changes before enqueue: %w", err)
	}
	if err := h.Queue.Enqueue(ctx, in.LoopID, in.OriginalPrompt); err != nil {
		return Outcome{}, fmt.Errorf("completion: enqueue: %w", err)
	}
	res, err := h.Landing.Run(ctx, in.WorktreePath, in.LoopID, in.LoopState, in.OriginalPrompt, in.EventCounts, startedAt(in.LoopState))
	if err != nil {
		return Outcome{}, fmt.Errorf("completion: landing after enqueue: %w", err)
	}
	return Outcome{Kind: Enqueued, Landing: res, LoopID: in.LoopID, WorktreePath: in.WorktreePath}, nil
}

func (h *Handler) runLanding(ctx context.Context, in RunInput) (Outcome, error) {
	res, err := h.Landing.Run(ctx, in.WorktreePath, in.LoopID, in.LoopState, in.OriginalPrompt, in.EventCounts, startedAt(in.LoopState))
	if err != nil {
		return Outcome{Kind: None}, nil
	}
	if len(res.Errors) > 0 && res.HandoffPath == "" && res.SummaryPath == "" {
		return Outcome{Kind: None}, nil
	}
	return Outcome{Kind: Landed, Landing: res, LoopID: in.LoopID, WorktreePath: in.WorktreePath}, nil
}
