package mergequeue

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/steveyegge/ralph/internal/filelock"
	"github.com/steveyegge/ralph/internal/looplock"
	"github.com/steveyegge/ralph/internal/worktree"
)

// Queue is the JSONL-backed `.ralph/merge-queue.jsonl` log guarded by a
// sidecar flock. Every mutation is a single atomic append; the current
// state of any loop is always derived by replaying the whole log, never
// stored directly, so two processes appending concurrently can never
// observe a torn state.
type Queue struct {
	path     string
	fl       *filelock.Lock
	loopLock *looplock.Lock
	git      *worktree.Git
}

// New returns a Queue backed by the file at path. loopLockPath is the
// primary loop's lock file, consulted by ButtonState to report whether a
// merge can run right now. git is consulted by SmartMergeSummary,
// NeedsSteering, and ExecutionSummary, which read the loop's branch; it
// may be nil for callers that only need the state-machine operations.
func New(path, loopLockPath string, git *worktree.Git) *Queue {
	return &Queue{path: path, fl: filelock.New(path), loopLock: looplock.NewLock(loopLockPath), git: git}
}

func (q *Queue) append(ctx context.Context, ev MergeEvent) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	guard, err := q.fl.Exclusive(ctx)
	if err != nil {
		return fmt.Errorf("mergequeue: acquiring lock: %w", err)
	}
	defer guard.Release()

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("mergequeue: marshaling event: %w", err)
	}
	f, err := os.OpenFile(q.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("mergequeue: opening %s: %w", q.path, err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("mergequeue: appending to %s: %w", q.path, err)
	}
	return nil
}

// Enqueue transitions loopID into Queued. Legal from absent or NeedsReview.
func (q *Queue) Enqueue(ctx context.Context, loopID, prompt string) error {
	return q.transition(ctx, loopID, MergeEvent{LoopID: loopID, Type: EventQueued, Prompt: prompt})
}

// StartMerging transitions loopID into Merging. Legal from Queued only.
func (q *Queue) StartMerging(ctx context.Context, loopID string, pid int) error {
	return q.transition(ctx, loopID, MergeEvent{LoopID: loopID, Type: EventMerging, PID: pid})
}

// MarkMerged transitions loopID into the terminal Merged state.
func (q *Queue) MarkMerged(ctx context.Context, loopID, commitSHA string) error {
	return q.transition(ctx, loopID, MergeEvent{LoopID: loopID, Type: EventMerged, CommitSHA: commitSHA})
}

// NeedsReview transitions loopID back out of Merging for human attention.
func (q *Queue) NeedsReview(ctx context.Context, loopID, reason string) error {
	return q.transition(ctx, loopID, MergeEvent{LoopID: loopID, Type: EventNeedsReview, Reason: reason})
}

// Discard transitions loopID into the terminal Discarded state from any
// non-terminal state.
func (q *Queue) Discard(ctx context.Context, loopID, reason string) error {
	return q.transition(ctx, loopID, MergeEvent{LoopID: loopID, Type: EventDiscarded, Reason: reason})
}

// transition validates the event against the current replayed state
// before appending it, so an invalid transition never reaches the log.
func (q *Queue) transition(ctx context.Context, loopID string, ev MergeEvent) error {
	entries, err := q.Entries(ctx)
	if err != nil {
		return err
	}
	current := entries[loopID]
	if _, err := apply(current, ev); err != nil {
		return err
	}
	return q.append(ctx, ev)
}

// Entries replays the full log under a shared lock and returns one
// MergeEntry per loop id.
func (q *Queue) Entries(ctx context.Context) (map[string]MergeEntry, error) {
	guard, err := q.fl.Shared(ctx)
	if err != nil {
		return nil, fmt.Errorf("mergequeue: acquiring lock: %w", err)
	}
	defer guard.Release()

	events, err := q.readLocked()
	if err != nil {
		return nil, err
	}
	return Replay(events), nil
}

func (q *Queue) readLocked() ([]MergeEvent, error) {
	f, err := os.Open(q.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, nil
	}
	defer f.Close()

	var events []MergeEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var ev MergeEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// ButtonState is the merge_button_state UI signal: whether a merge
// control should currently be enabled, and why not if disabled.
type ButtonState struct {
	Enabled bool
	Reason  string
}

// ButtonState reports whether loopID may start merging right now: the
// primary loop lock must be free or held by a dead process, loopID
// itself must be in Queued, and no entry in the queue may be Merging —
// only one merge runs against the primary checkout at a time.
func (q *Queue) ButtonState(ctx context.Context, loopID string) (ButtonState, error) {
	entries, err := q.Entries(ctx)
	if err != nil {
		return ButtonState{}, err
	}

	switch entry, ok := entries[loopID]; {
	case !ok:
		return ButtonState{Enabled: false, Reason: "loop is not queued"}, nil
	case entry.State == Merging:
		return ButtonState{Enabled: false, Reason: "a merge is already in progress for this loop"}, nil
	case entry.State != Queued:
		return ButtonState{Enabled: false, Reason: "loop is not queued"}, nil
	}

	for id, entry := range entries {
		if id != loopID && entry.State == Merging {
			return ButtonState{Enabled: false, Reason: "another loop's merge is already in progress"}, nil
		}
	}

	live, err := q.loopLock.IsHeldByLiveProcess()
	if err != nil {
		return ButtonState{}, err
	}
	if live {
		reason := "primary loop is running"
		if info, infoErr := q.loopLock.Info(); infoErr == nil && info != nil && info.Prompt != "" {
			reason = fmt.Sprintf("primary loop is running: %s", info.Prompt)
		}
		return ButtonState{Enabled: false, Reason: reason}, nil
	}
	return ButtonState{Enabled: true}, nil
}

const smartSummaryMaxLen = 72

// mergeEnvelope is the fixed text wrapped around a smart merge summary
// in the final commit subject, per §4.10's commit-subject budget.
func mergeEnvelope(loopID string) string {
	return fmt.Sprintf("merge(ralph): %s (loop %s)", "", loopID)
}

// summarizeSubject cuts subject to at most maxLen characters, including
// any "..." marker, on a word boundary where possible. Guaranteeing the
// marker counts against the budget keeps the final envelope-wrapped
// commit subject within the 72-character limit.
func summarizeSubject(subject string, maxLen int) string {
	summary := strings.TrimSpace(strings.SplitN(subject, "\n", 2)[0])
	if len(summary) <= maxLen {
		return summary
	}
	if maxLen <= 3 {
		if maxLen <= 0 {
			return ""
		}
		return summary[:maxLen]
	}
	budget := maxLen - 3
	cut := summary[:budget]
	if idx := strings.LastIndexByte(cut, ' '); idx > budget/2 {
		cut = cut[:idx]
	}
	return strings.TrimSpace(cut) + "..."
}

// SmartMergeSummary reads the most recent commit on loopID's branch in
// repoRoot and derives a single-line summary sized to fit within the
// 72-character commit-subject budget once wrapped in the
// `merge(ralph): <summary> (loop <loop_id>)` envelope.
func (q *Queue) SmartMergeSummary(ctx context.Context, repoRoot, loopID string) (string, error) {
	if q.git == nil {
		return "", fmt.Errorf("mergequeue: no git configured for %q", q.path)
	}
	branch := worktree.BranchName(loopID)
	commit, err := q.git.GetCommitSummaryOnRef(ctx, repoRoot, branch)
	if err != nil {
		return "", fmt.Errorf("mergequeue: reading commits on %s: %w", branch, err)
	}
	budget := smartSummaryMaxLen - len(mergeEnvelope(loopID))
	return summarizeSubject(commit.Subject, budget), nil
}

// MergeOption is one actionable choice offered to a human when a merge
// needs steering.
type MergeOption struct {
	Label       string
	Description string
}

func steeringOptions() []MergeOption {
	return []MergeOption{
		{Label: "keep ours", Description: "discard the loop's conflicting changes, keep the base branch's version"},
		{Label: "keep theirs", Description: "land the loop's changes, overwriting the base branch's version"},
		{Label: "manual review", Description: "land nothing automatically; a human resolves the overlap by hand"},
	}
}

// SteeringDecision is merge_needs_steering's verdict on whether a human
// must weigh in before loopID's branch can be merged.
type SteeringDecision struct {
	NeedsInput bool
	Reason     string
	Options    []MergeOption
}

// NeedsSteering inspects whether loopID's branch touches files also
// touched on the current base branch since their merge-base, per
// §4.10. A file changed on both sides since diverging is a potential
// conflict a human should weigh in on before the merge proceeds.
func (q *Queue) NeedsSteering(ctx context.Context, repoRoot, loopID string) (SteeringDecision, error) {
	if q.git == nil {
		return SteeringDecision{}, fmt.Errorf("mergequeue: no git configured for %q", q.path)
	}
	branch := worktree.BranchName(loopID)
	baseBranch, err := q.git.GetCurrentBranch(ctx, repoRoot)
	if err != nil {
		return SteeringDecision{}, fmt.Errorf("mergequeue: resolving base branch: %w", err)
	}
	mergeBase, err := q.git.MergeBase(ctx, repoRoot, baseBranch, branch)
	if err != nil {
		return SteeringDecision{}, fmt.Errorf("mergequeue: finding merge base of %s and %s: %w", baseBranch, branch, err)
	}
	loopFiles, err := q.git.FilesChangedSince(ctx, repoRoot, mergeBase, branch)
	if err != nil {
		return SteeringDecision{}, fmt.Errorf("mergequeue: diffing %s since merge base: %w", branch, err)
	}
	baseFiles, err := q.git.FilesChangedSince(ctx, repoRoot, mergeBase, baseBranch)
	if err != nil {
		return SteeringDecision{}, fmt.Errorf("mergequeue: diffing %s since merge base: %w", baseBranch, err)
	}

	touchedOnBase := make(map[string]bool, len(baseFiles))
	for _, f := range baseFiles {
		touchedOnBase[f] = true
	}
	var overlap []string
	for _, f := range loopFiles {
		if touchedOnBase[f] {
			overlap = append(overlap, f)
		}
	}
	if len(overlap) == 0 {
		return SteeringDecision{NeedsInput: false}, nil
	}
	return SteeringDecision{
		NeedsInput: true,
		Reason:     fmt.Sprintf("%s also modified on %s since diverging", strings.Join(overlap, ", "), baseBranch),
		Options:    steeringOptions(),
	}, nil
}

// ExecutionSummary describes the outcome of a completed merge attempt,
// for display alongside the queue entry: the replayed state plus a
// human-readable account of what the branch actually changed.
type ExecutionSummary struct {
	LoopID      string
	State       State
	CommitSHA   string
	Reason      string
	UpdatedAt   time.Time
	Files       []string
	CommitCount int
}

// ExecutionSummary reports the terminal or current outcome for loopID,
// including the files and commit count its branch carries relative to
// the current base branch.
func (q *Queue) ExecutionSummary(ctx context.Context, repoRoot, loopID string) (ExecutionSummary, error) {
	entries, err := q.Entries(ctx)
	if err != nil {
		return ExecutionSummary{}, err
	}
	entry, ok := entries[loopID]
	if !ok {
		return ExecutionSummary{}, fmt.Errorf("mergequeue: no entry for loop %q", loopID)
	}

	summary := ExecutionSummary{
		LoopID:    entry.LoopID,
		State:     entry.State,
		CommitSHA: entry.CommitSHA,
		Reason:    entry.Reason,
		UpdatedAt: entry.UpdatedAt,
	}
	if q.git == nil {
		return summary, nil
	}

	branch := worktree.BranchName(loopID)
	baseBranch, err := q.git.GetCurrentBranch(ctx, repoRoot)
	if err != nil {
		return ExecutionSummary{}, fmt.Errorf("mergequeue: resolving base branch: %w", err)
	}
	mergeBase, err := q.git.MergeBase(ctx, repoRoot, baseBranch, branch)
	if err != nil {
		return ExecutionSummary{}, fmt.Errorf("mergequeue: finding merge base of %s and %s: %w", baseBranch, branch, err)
	}
	files, err := q.git.FilesChangedSince(ctx, repoRoot, mergeBase, branch)
	if err != nil {
		return ExecutionSummary{}, fmt.Errorf("mergequeue: diffing %s since merge base: %w", branch, err)
	}
	count, err := q.git.CommitCountSince(ctx, repoRoot, mergeBase, branch)
	if err != nil {
		return ExecutionSummary{}, fmt.Errorf("mergequeue: counting commits on %s: %w", branch, err)
	}
	summary.Files = files
	summary.CommitCount = count
	return summary, nil
}
