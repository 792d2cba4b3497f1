package main

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/ralph/internal/loopctx"
)

func initTestRepo(t *testing.T) string {
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
	return dir
}

func TestNewLoopSetupPrimaryUsesWorkspacePaths(t *testing.T) {
	dir := initTestRepo(t)
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())

	setup, err := newLoopSetup(cmd, filepath.Join(dir, "ralph.yaml"), "do something", loopctx.NewPrimary(dir), true)
	require.NoError(t, err)
	defer setup.close(context.Background())

	require.NoError(t, setup.ws.tasks.Save(context.Background(), nil))
	require.FileExists(t, filepath.Join(dir, ".ralph", "agent", "tasks.jsonl"))
}

func TestNewLoopSetupWorktreeSharesRepoRootStores(t *testing.T) {
	dir := initTestRepo(t)
	wtPath := filepath.Join(dir, ".ralph", "worktrees", "loop-1")
	require.NoError(t, os.MkdirAll(filepath.Dir(wtPath), 0o755))

	addWorktree := exec.Command("git", "worktree", "add", "-b", "ralph/loop-1", wtPath, "main")
	addWorktree.Dir = dir
	out, err := addWorktree.CombinedOutput()
	require.NoError(t, err, string(out))

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())

	lc := loopctx.NewWorktree("loop-1", wtPath, dir)
	setup, err := newLoopSetup(cmd, filepath.Join(wtPath, "ralph.yaml"), "loop-1", lc, false)
	require.NoError(t, err)
	defer setup.close(context.Background())

	require.Equal(t, filepath.Join(dir, ".ralph", "agent", "tasks.jsonl"), lc.TasksPath())
	require.Equal(t, filepath.Join(dir, ".ralph", "agent", "scratchpad.md"), lc.ScratchpadPath())
	require.Equal(t, filepath.Join(dir, ".ralph", "loop.lock"), lc.LoopLockPath())
}
