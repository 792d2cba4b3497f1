package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"

	"github.com/steveyegge/ralph/internal/looplock"
)

func TestRunStatusNoLockNoQueue(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(cwd)
	if err := os.Mkdir(".ralph", 0o755); err != nil {
		t.Fatal(err)
	}

	if err := runStatus(&cobra.Command{}, nil); err != nil {
		t.Fatalf("runStatus: %v", err)
	}
}

func TestRunStatusWithHeldLock(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(cwd)
	if err := os.Mkdir(".ralph", 0o755); err != nil {
		t.Fatal(err)
	}

	lock := looplock.NewLock(filepath.Join(dir, ".ralph", "loop.lock"))
	holder, err := lock.Acquire(context.Background(), "test prompt")
	if err != nil {
		t.Fatal(err)
	}
	defer holder.Release()

	if err := runStatus(&cobra.Command{}, nil); err != nil {
		t.Fatalf("runStatus: %v", err)
	}
}
