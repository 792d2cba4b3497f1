package landing

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/steveyegge/ralph/internal/loop"
	"github.com/steveyegge/ralph/internal/store"
	"github.com/steveyegge/ralph/internal/worktree"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, string(out))
	}
	run("init", "--initial-branch=main")
	run("config", "user.name", "Test User")
	run("config", "user.email", "test@example.com")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello"), 0o644))
	run("add", "-A")
	run("commit", "-m", "initial commit")

	bare := t.TempDir()
	bareCmd := exec.Command("git", "init", "--bare", bare)
	require.NoError(t, bareCmd.Run())
	run("remote", "add", "origin", bare)

	return dir
}

type recordingWarner struct {
	messages []string
}

func (r *recordingWarner) Warnf(format string, args ...any) {
	r.messages = append(r.messages, format)
}

func TestHandlerRunWritesHandoffAndSummary(t *testing.T) {
	ctx := context.Background()
	repo := initRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(repo, "new.txt"), []byte("data"), 0o644))

	g, err := worktree.NewGit(ctx)
	require.NoError(t, err)

	outDir := t.TempDir()
	tasksPath := filepath.Join(t.TempDir(), "tasks.jsonl")
	taskStore := store.NewTaskStore(tasksPath)
	require.NoError(t, taskStore.Save(ctx, []store.Task{
		{ID: "task-1", Title: "do the thing", Status: store.TaskOpen},
	}))

	warner := &recordingWarner{}
	h := &Handler{Git: g, Tasks: taskStore, OutputDir: outDir, Warner: warner}

	state := loop.NewState(loop.Limits{}, time.Now())
	state.Iteration = 3
	state.Reason = loop.CompletionPromise

	res, err := h.Run(ctx, repo, "loop-1", state, "please build the widget end to end", map[string]int{"build.done": 1}, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.Empty(t, res.Errors)
	require.True(t, res.AutoCommit.Committed)
	require.NotEmpty(t, res.AutoCommit.CommitSHA)

	handoffBytes, err := os.ReadFile(res.HandoffPath)
	require.NoError(t, err)
	require.Contains(t, string(handoffBytes), "do the thing")
	require.Contains(t, string(handoffBytes), "loop-1")

	summaryBytes, err := os.ReadFile(res.SummaryPath)
	require.NoError(t, err)
	require.Contains(t, string(summaryBytes), "CompletionPromise")
	require.Contains(t, string(summaryBytes), "build.done: 1")
}

func TestHandlerRunSurvivesMissingUserConfig(t *testing.T) {
	ctx := context.Background()
	repo := initRepo(t)
	unsetConfig := exec.Command("git", "config", "--unset", "user.name")
	unsetConfig.Dir = repo
	require.NoError(t, unsetConfig.Run())
	t.Setenv("HOME", t.TempDir())

	require.NoError(t, os.WriteFile(filepath.Join(repo, "new.txt"), []byte("data"), 0o644))

	g, err := worktree.NewGit(ctx)
	require.NoError(t, err)

	outDir := t.TempDir()
	warner := &recordingWarner{}
	h := &Handler{Git: g, OutputDir: outDir, Warner: warner}

	res, err := h.Run(ctx, repo, "loop-2", nil, "prompt", nil, time.Now())
	require.NoError(t, err)
	require.NotEmpty(t, res.Errors)
	require.NotEmpty(t, warner.messages)
	require.FileExists(t, res.HandoffPath)
	require.FileExists(t, res.SummaryPath)
}
