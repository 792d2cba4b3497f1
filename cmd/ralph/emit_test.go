package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func TestRunEmitAppendsEvent(t *testing.T) {
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

	cmd := &cobra.Command{}
	if err := runEmit(cmd, []string{"build.done", "ok"}); err != nil {
		t.Fatalf("runEmit: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, ".ralph", "events.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	line := strings.TrimSpace(string(data))
	if !strings.Contains(line, `"topic":"build.done"`) {
		t.Errorf("expected topic build.done in line, got %q", line)
	}
	if !strings.Contains(line, `"payload":"ok"`) {
		t.Errorf("expected payload ok in line, got %q", line)
	}
}

func TestRunEmitWithoutPayload(t *testing.T) {
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

	cmd := &cobra.Command{}
	if err := runEmit(cmd, []string{"review.security"}); err != nil {
		t.Fatalf("runEmit: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, ".ralph", "events.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"topic":"review.security"`) {
		t.Errorf("expected topic in output, got %q", string(data))
	}
}
