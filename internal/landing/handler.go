package landing

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/steveyegge/ralph/internal/loop"
	"github.com/steveyegge/ralph/internal/store"
	"github.com/steveyegge/ralph/internal/worktree"
)

// Warner receives best-effort step failures; landing never aborts on
// one, it only logs and continues to the next step.
type Warner interface {
	Warnf(format string, args ...any)
}

// Result is what a completed landing run produced, consumed by
// internal/completion to decide Landed vs None.
type Result struct {
	HandoffPath   string
	SummaryPath   string
	AutoCommit    worktree.AutoCommitResult
	Errors        []string
}

// Handler runs the fixed §4.13 sequence: verify task state, auto-commit,
// clean stashes, prune remote refs, then write handoff.md and
// summary.md. Every step is best-effort; a failure is recorded in
// Result.Errors and logged, never aborting the remaining steps.
type Handler struct {
	Git        *worktree.Git
	Tasks      *store.TaskStore
	OutputDir  string
	Warner     Warner
}

// Run executes the landing sequence for one loop in the worktree at
// path, returning the artifacts it produced.
func (h *Handler) Run(ctx context.Context, path, loopID string, loopState *loop.State, originalPrompt string, eventCounts map[string]int, startedAt time.Time) (Result, error) {
	var res Result

	tasks, err := h.loadTasks(ctx)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("verify task state: %v", err))
		h.warn("verify task state: %v", err)
	}

	commitResult, err := h.Git.AutoCommitChanges(ctx, path, loopID)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("auto_commit_changes: %v", err))
		h.warn("auto_commit_changes: %v", err)
	}
	res.AutoCommit = commitResult

	var errMu sync.Mutex
	recordErr := func(msg string) {
		errMu.Lock()
		res.Errors = append(res.Errors, msg)
		errMu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := h.Git.CleanStashes(gctx, path); err != nil {
			recordErr(fmt.Sprintf("clean_stashes: %v", err))
			h.warn("clean_stashes: %v", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := h.Git.PruneRemoteRefs(gctx, path); err != nil {
			recordErr(fmt.Sprintf("prune_remote_refs: %v", err))
			h.warn("prune_remote_refs: %v", err)
		}
		return nil
	})
	_ = g.Wait() // both goroutines record their own errors; never fails the sequence

	branch, err := h.Git.GetCurrentBranch(ctx, path)
	if err != nil {
		h.warn("get_current_branch: %v", err)
	}
	var head string
	if summary, err := h.Git.GetCommitSummary(ctx, path); err == nil {
		head = summary.SHA
	} else {
		h.warn("get_commit_summary: %v", err)
	}
	recentFiles, err := h.Git.GetRecentFiles(ctx, path, 10)
	if err != nil {
		h.warn("get_recent_files: %v", err)
	}

	handoff := BuildHandoff(HandoffInput{
		Git:            GitContext{Branch: branch, HEAD: head, LoopID: loopID},
		Tasks:          tasks,
		RecentFiles:    recentFiles,
		OriginalPrompt: originalPrompt,
	})
	handoffPath := filepath.Join(h.OutputDir, "handoff.md")
	if err := os.WriteFile(handoffPath, []byte(handoff), 0o644); err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("write handoff.md: %v", err))
		h.warn("write handoff.md: %v", err)
	} else {
		res.HandoffPath = handoffPath
	}

	reason := loop.NotTerminated
	iteration := uint32(0)
	if loopState != nil {
		reason = loopState.Reason
		iteration = loopState.Iteration
	}
	summary := BuildSummary(SummaryInput{
		Reason:        reason,
		Iterations:    iteration,
		Duration:      time.Since(startedAt),
		EventCounts:   eventCounts,
		FinalCommit:   commitResult.CommitSHA,
		LandingOK:     len(res.Errors) == 0,
		LandingErrors: res.Errors,
	})
	summaryPath := filepath.Join(h.OutputDir, "summary.md")
	if err := os.WriteFile(summaryPath, []byte(summary), 0o644); err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("write summary.md: %v", err))
		h.warn("write summary.md: %v", err)
	} else {
		res.SummaryPath = summaryPath
	}

	return res, nil
}

func (h *Handler) loadTasks(ctx context.Context) ([]store.Task, error) {
	if h.Tasks == nil {
		return nil, nil
	}
	return h.Tasks.Load(ctx)
}

func (h *Handler) warn(format string, args ...any) {
	if h.Warner == nil {
		return
	}
	h.Warner.Warnf(format, args...)
}
