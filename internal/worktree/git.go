// Package worktree manages the git worktree lifecycle for ralph loops:
// creation, removal, loop-id generation, and the git operations contract
// consumed by the landing handler and completion logic.
package worktree

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Git wraps the git CLI for the worktree-lifecycle operations ralph
// needs. It does not attempt to be a general-purpose git library.
type Git struct {
	gitPath string
}

// NewGit resolves the git executable and verifies it runs.
func NewGit(ctx context.Context) (*Git, error) {
	gitPath, err := exec.LookPath("git")
	if err != nil {
		return nil, fmt.Errorf("git not found in PATH: %w", err)
	}
	if err := exec.CommandContext(ctx, gitPath, "version").Run(); err != nil {
		return nil, fmt.Errorf("git command failed: %w", err)
	}
	return &Git{gitPath: gitPath}, nil
}

func (g *Git) run(ctx context.Context, repoPath string, args ...string) ([]byte, error) {
	full := append([]string{"-C", repoPath}, args...)
	cmd := exec.CommandContext(ctx, g.gitPath, full...)
	return cmd.CombinedOutput()
}

// AddWorktree creates a worktree at path on a new branch ralph/{loopID},
// branched from baseBranch in repoRoot.
func (g *Git) AddWorktree(ctx context.Context, repoRoot, path, loopID, baseBranch string) error {
	branch := BranchName(loopID)
	out, err := g.run(ctx, repoRoot, "worktree", "add", "-b", branch, path, baseBranch)
	if err != nil {
		return fmt.Errorf("git worktree add failed: %w (output: %s)", err, string(out))
	}
	return nil
}

// RemoveWorktree removes the worktree at path, falling back to a forced
// removal and prune if the plain remove is rejected (e.g. dirty tree).
func (g *Git) RemoveWorktree(ctx context.Context, repoRoot, path string) error {
	if out, err := g.run(ctx, repoRoot, "worktree", "remove", path); err == nil {
		return nil
	} else if out2, err2 := g.run(ctx, repoRoot, "worktree", "remove", "--force", path); err2 != nil {
		_, _ = g.run(ctx, repoRoot, "worktree", "prune")
		return fmt.Errorf("git worktree remove failed: %w (output: %s; forced output: %s)", err, string(out), string(out2))
	}
	_, _ = g.run(ctx, repoRoot, "worktree", "prune")
	return nil
}

// BranchName derives the ralph branch name from a loop id.
func BranchName(loopID string) string {
	return "ralph/" + loopID
}

// HasUncommittedChanges runs `git status --porcelain` and reports
// whether it produced any output.
func (g *Git) HasUncommittedChanges(ctx context.Context, path string) (bool, error) {
	out, err := g.run(ctx, path, "status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("git status failed in %s: %w (output: %s)", path, err, string(out))
	}
	return strings.TrimSpace(string(out)) != "", nil
}

// IsWorkingTreeClean is the negation of HasUncommittedChanges, spelled
// out separately to match the git-ops contract's own naming.
func (g *Git) IsWorkingTreeClean(ctx context.Context, path string) (bool, error) {
	dirty, err := g.HasUncommittedChanges(ctx, path)
	if err != nil {
		return false, err
	}
	return !dirty, nil
}

// ConfigMissingError reports that git user.name/user.email is not
// configured, distinct from a generic commit failure.
type ConfigMissingError struct {
	Missing []string
}

func (e *ConfigMissingError) Error() string {
	return fmt.Sprintf("git config missing: %s", strings.Join(e.Missing, ", "))
}

// AutoCommitResult is the outcome of AutoCommitChanges.
type AutoCommitResult struct {
	Committed   bool
	CommitSHA   string
	FilesStaged []string
}

// AutoCommitChanges stages all changes in path and commits them with a
// fixed message tagging loopID. If nothing is staged, it returns
// Committed: false without creating an empty commit.
func (g *Git) AutoCommitChanges(ctx context.Context, path, loopID string) (AutoCommitResult, error) {
	var missing []string
	for _, key := range []string{"user.name", "user.email"} {
		if out, err := g.run(ctx, path, "config", "--get", key); err != nil || strings.TrimSpace(string(out)) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return AutoCommitResult{}, &ConfigMissingError{Missing: missing}
	}

	files, err := g.modifiedFiles(ctx, path)
	if err != nil {
		return AutoCommitResult{}, err
	}
	if len(files) == 0 {
		return AutoCommitResult{Committed: false}, nil
	}

	if out, err := g.run(ctx, path, "add", "-A"); err != nil {
		return AutoCommitResult{}, fmt.Errorf("git add failed: %w (output: %s)", err, string(out))
	}

	message := fmt.Sprintf("chore: auto-commit before merge (loop %s)", loopID)
	if out, err := g.run(ctx, path, "commit", "-m", message); err != nil {
		return AutoCommitResult{}, fmt.Errorf("git commit failed: %w (output: %s)", err, string(out))
	}

	out, err := g.run(ctx, path, "rev-parse", "HEAD")
	if err != nil {
		return AutoCommitResult{}, fmt.Errorf("git rev-parse failed: %w (output: %s)", err, string(out))
	}
	return AutoCommitResult{
		Committed:   true,
		CommitSHA:   strings.TrimSpace(string(out)),
		FilesStaged: files,
	}, nil
}

func (g *Git) modifiedFiles(ctx context.Context, path string) ([]string, error) {
	out, err := g.run(ctx, path, "status", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("git status failed in %s: %w (output: %s)", path, err, string(out))
	}
	var files []string
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) < 3 {
			continue
		}
		files = append(files, strings.TrimSpace(line[3:]))
	}
	return files, nil
}

// CleanStashes drops every stash entry in path. Best-effort: an empty
// stash list is not an error.
func (g *Git) CleanStashes(ctx context.Context, path string) error {
	if out, err := g.run(ctx, path, "stash", "clear"); err != nil {
		return fmt.Errorf("git stash clear failed: %w (output: %s)", err, string(out))
	}
	return nil
}

// PruneRemoteRefs prunes stale remote-tracking refs for origin.
func (g *Git) PruneRemoteRefs(ctx context.Context, path string) error {
	if out, err := g.run(ctx, path, "remote", "prune", "origin"); err != nil {
		return fmt.Errorf("git remote prune failed: %w (output: %s)", err, string(out))
	}
	return nil
}

// CommitSummary is a single line of `git log --oneline`-equivalent data.
type CommitSummary struct {
	SHA     string
	Subject string
}

// GetCommitSummary returns the subject and short SHA of HEAD.
func (g *Git) GetCommitSummary(ctx context.Context, path string) (CommitSummary, error) {
	out, err := g.run(ctx, path, "log", "-1", "--format=%h%x09%s")
	if err != nil {
		return CommitSummary{}, fmt.Errorf("git log failed: %w (output: %s)", err, string(out))
	}
	parts := strings.SplitN(strings.TrimSpace(string(out)), "\t", 2)
	if len(parts) != 2 {
		return CommitSummary{}, fmt.Errorf("unexpected git log output: %q", string(out))
	}
	return CommitSummary{SHA: parts[0], Subject: parts[1]}, nil
}

// GetRecentFiles lists files touched by the last n commits.
func (g *Git) GetRecentFiles(ctx context.Context, path string, n int) ([]string, error) {
	out, err := g.run(ctx, path, "log", fmt.Sprintf("-%d", n), "--name-only", "--format=")
	if err != nil {
		return nil, fmt.Errorf("git log failed: %w (output: %s)", err, string(out))
	}
	return parseFileList(string(out)), nil
}

// parseFileList dedupes and trims the newline-separated file list
// produced by `git log --name-only` and `git diff --name-only`.
func parseFileList(out string) []string {
	seen := map[string]bool{}
	var files []string
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || seen[line] {
			continue
		}
		seen[line] = true
		files = append(files, line)
	}
	return files
}

// GetCommitSummaryOnRef returns the subject and short SHA of ref's tip,
// without requiring ref to be checked out in path.
func (g *Git) GetCommitSummaryOnRef(ctx context.Context, path, ref string) (CommitSummary, error) {
	out, err := g.run(ctx, path, "log", "-1", "--format=%h%x09%s", ref)
	if err != nil {
		return CommitSummary{}, fmt.Errorf("git log failed: %w (output: %s)", err, string(out))
	}
	parts := strings.SplitN(strings.TrimSpace(string(out)), "\t", 2)
	if len(parts) != 2 {
		return CommitSummary{}, fmt.Errorf("unexpected git log output: %q", string(out))
	}
	return CommitSummary{SHA: parts[0], Subject: parts[1]}, nil
}

// GetRecentFilesOnRef lists files touched by the last n commits reachable
// from ref, without requiring ref to be checked out in path.
func (g *Git) GetRecentFilesOnRef(ctx context.Context, path, ref string, n int) ([]string, error) {
	out, err := g.run(ctx, path, "log", fmt.Sprintf("-%d", n), "--name-only", "--format=", ref)
	if err != nil {
		return nil, fmt.Errorf("git log failed: %w (output: %s)", err, string(out))
	}
	return parseFileList(string(out)), nil
}

// MergeBase returns the best common ancestor commit of a and b.
func (g *Git) MergeBase(ctx context.Context, path, a, b string) (string, error) {
	out, err := g.run(ctx, path, "merge-base", a, b)
	if err != nil {
		return "", fmt.Errorf("git merge-base failed: %w (output: %s)", err, string(out))
	}
	return strings.TrimSpace(string(out)), nil
}

// FilesChangedSince lists the files that differ between since and ref.
func (g *Git) FilesChangedSince(ctx context.Context, path, since, ref string) ([]string, error) {
	out, err := g.run(ctx, path, "diff", "--name-only", since, ref)
	if err != nil {
		return nil, fmt.Errorf("git diff failed: %w (output: %s)", err, string(out))
	}
	return parseFileList(string(out)), nil
}

// CommitCountSince counts the commits reachable from ref but not from
// since, i.e. `git rev-list --count since..ref`.
func (g *Git) CommitCountSince(ctx context.Context, path, since, ref string) (int, error) {
	out, err := g.run(ctx, path, "rev-list", "--count", since+".."+ref)
	if err != nil {
		return 0, fmt.Errorf("git rev-list failed: %w (output: %s)", err, string(out))
	}
	var n int
	if _, err := fmt.Sscanf(strings.TrimSpace(string(out)), "%d", &n); err != nil {
		return 0, fmt.Errorf("parsing commit count: %w", err)
	}
	return n, nil
}

// GetCurrentBranch returns the checked-out branch name, erroring on a
// detached HEAD rather than returning "HEAD".
func (g *Git) GetCurrentBranch(ctx context.Context, path string) (string, error) {
	out, err := g.run(ctx, path, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("git rev-parse failed: %w (output: %s)", err, string(out))
	}
	branch := strings.TrimSpace(string(out))
	if branch == "HEAD" {
		return "", fmt.Errorf("worktree is in detached HEAD state")
	}
	return branch, nil
}

// GetBranchTimestamp returns the commit timestamp of the tip of branch.
func (g *Git) GetBranchTimestamp(ctx context.Context, path, branch string) (time.Time, error) {
	out, err := g.run(ctx, path, "show", "-s", "--format=%ct", branch)
	if err != nil {
		return time.Time{}, fmt.Errorf("git show failed: %w (output: %s)", err, string(out))
	}
	var unix int64
	if _, err := fmt.Sscanf(strings.TrimSpace(string(out)), "%d", &unix); err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp: %w", err)
	}
	return time.Unix(unix, 0), nil
}
