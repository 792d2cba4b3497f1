// Package store implements the file-locked shared state Ralph loops
// coordinate through: the scratchpad, the memory store, and the task
// store. Every operation re-acquires its sidecar lock so the stores
// themselves are safe to share (by value) across concurrent loops in
// separate worktrees.
package store

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/steveyegge/ralph/internal/filelock"
)

// MemoryType is one of the four markdown sections a memory lives in.
type MemoryType string

const (
	MemoryPattern  MemoryType = "pattern"
	MemoryDecision MemoryType = "decision"
	MemoryFix      MemoryType = "fix"
	MemoryContext  MemoryType = "context"
)

var sectionHeaders = map[MemoryType]string{
	MemoryPattern:  "## Patterns",
	MemoryDecision: "## Decisions",
	MemoryFix:      "## Fixes",
	MemoryContext:  "## Context",
}

var sectionOrder = []MemoryType{MemoryPattern, MemoryDecision, MemoryFix, MemoryContext}

// Memory is a single recorded pattern, decision, fix, or piece of
// context, addressable by a generated id.
type Memory struct {
	ID      string
	Type    MemoryType
	Content string
	Tags    []string
	Created time.Time
}

// NewMemoryID returns a new "mem-{unix_ts}-{4hex}" id.
func NewMemoryID(now time.Time) string {
	return fmt.Sprintf("mem-%d-%s", now.Unix(), shortHex())
}

func shortHex() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:4]
}

// MemoryStore is a handle to a memories.md file guarded by a sidecar
// lock at path+".lock". It holds no lock state itself: every method
// re-acquires, so MemoryStore is cheap to copy and share.
type MemoryStore struct {
	path string
	lock *filelock.Lock
}

// NewMemoryStore returns a store for the markdown file at path.
func NewMemoryStore(path string) *MemoryStore {
	return &MemoryStore{path: path, lock: filelock.New(path)}
}

const memoryTemplate = "# Memories\n\n## Patterns\n\n## Decisions\n\n## Fixes\n\n## Context\n"

// Init creates the template file if absent. With force=false, it errors
// if the file already exists.
func (s *MemoryStore) Init(ctx context.Context, force bool) error {
	guard, err := s.lock.Exclusive(ctx)
	if err != nil {
		return fmt.Errorf("memory store: acquiring lock: %w", err)
	}
	defer guard.Release()

	if !force {
		if _, err := os.Stat(s.path); err == nil {
			return fmt.Errorf("memory store: %s already exists", s.path)
		}
	}
	return os.WriteFile(s.path, []byte(memoryTemplate), 0o644)
}

// Append inserts memory into the section matching its type, creating
// the section if missing, and writes a fresh id/created date if unset.
func (s *MemoryStore) Append(ctx context.Context, m Memory) (Memory, error) {
	guard, err := s.lock.Exclusive(ctx)
	if err != nil {
		return Memory{}, fmt.Errorf("memory store: acquiring lock: %w", err)
	}
	defer guard.Release()

	now := time.Now().UTC()
	if m.ID == "" {
		m.ID = NewMemoryID(now)
	}
	if m.Created.IsZero() {
		m.Created = now
	}

	doc, err := s.readLocked()
	if err != nil {
		return Memory{}, err
	}
	doc = insertIntoSection(doc, m)
	if err := os.WriteFile(s.path, []byte(renderDocument(doc)), 0o644); err != nil {
		return Memory{}, fmt.Errorf("memory store: writing %s: %w", s.path, err)
	}
	return m, nil
}

// Delete removes the memory with the given id, returning false if it
// was not found.
func (s *MemoryStore) Delete(ctx context.Context, id string) (bool, error) {
	guard, err := s.lock.Exclusive(ctx)
	if err != nil {
		return false, fmt.Errorf("memory store: acquiring lock: %w", err)
	}
	defer guard.Release()

	doc, err := s.readLocked()
	if err != nil {
		return false, err
	}
	found := false
	for t, entries := range doc {
		kept := entries[:0]
		for _, e := range entries {
			if e.ID == id {
				found = true
				continue
			}
			kept = append(kept, e)
		}
		doc[t] = kept
	}
	if !found {
		return false, nil
	}
	if err := os.WriteFile(s.path, []byte(renderDocument(doc)), 0o644); err != nil {
		return false, fmt.Errorf("memory store: writing %s: %w", s.path, err)
	}
	return true, nil
}

// All returns every memory across all sections, in file order.
func (s *MemoryStore) All(ctx context.Context) ([]Memory, error) {
	guard, err := s.lock.Shared(ctx)
	if err != nil {
		return nil, fmt.Errorf("memory store: acquiring lock: %w", err)
	}
	defer guard.Release()

	doc, err := s.readLocked()
	if err != nil {
		return nil, err
	}
	var out []Memory
	for _, t := range sectionOrder {
		out = append(out, doc[t]...)
	}
	return out, nil
}

// FilterByType returns every memory of the given type.
func (s *MemoryStore) FilterByType(ctx context.Context, t MemoryType) ([]Memory, error) {
	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	var out []Memory
	for _, m := range all {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out, nil
}

// FilterByTags returns every memory that has at least one of tags
// (case-insensitive).
func (s *MemoryStore) FilterByTags(ctx context.Context, tags []string) ([]Memory, error) {
	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(tags))
	for _, t := range tags {
		want[strings.ToLower(t)] = true
	}
	var out []Memory
	for _, m := range all {
		for _, t := range m.Tags {
			if want[strings.ToLower(t)] {
				out = append(out, m)
				break
			}
		}
	}
	return out, nil
}

// Search returns every memory whose content or tags contain query,
// case-insensitively.
func (s *MemoryStore) Search(ctx context.Context, query string) ([]Memory, error) {
	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(query)
	var out []Memory
	for _, m := range all {
		if strings.Contains(strings.ToLower(m.Content), q) {
			out = append(out, m)
			continue
		}
		for _, t := range m.Tags {
			if strings.Contains(strings.ToLower(t), q) {
				out = append(out, m)
				break
			}
		}
	}
	return out, nil
}

// document is the in-memory parse of memories.md, keyed by section.
type document map[MemoryType][]Memory

func (s *MemoryStore) readLocked() (document, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return document{}, nil
	}
	if err != nil {
		// Read-path I/O failures on shared state degrade to empty
		// content rather than propagating, per the error handling
		// policy for shared-state reads.
		return document{}, nil
	}
	return parseDocument(string(data)), nil
}

var entryHeaderRE = regexp.MustCompile(`^### (mem-\S+)\s*$`)
var metaRE = regexp.MustCompile(`^<!--\s*tags:\s*(.*?)\s*\|\s*created:\s*(\d{4}-\d{2}-\d{2})\s*-->\s*$`)

func parseDocument(text string) document {
	doc := document{}
	var currentSection MemoryType
	var current *Memory
	var contentLines []string

	flush := func() {
		if current != nil {
			current.Content = strings.Join(trimBlank(contentLines), "\n")
			doc[currentSection] = append(doc[currentSection], *current)
		}
		current = nil
		contentLines = nil
	}

	for _, line := range strings.Split(text, "\n") {
		switch {
		case strings.HasPrefix(line, "## "):
			flush()
			currentSection = headerToType(line)
		case entryHeaderRE.MatchString(line):
			flush()
			id := entryHeaderRE.FindStringSubmatch(line)[1]
			current = &Memory{ID: id, Type: currentSection}
		case strings.HasPrefix(line, "> "):
			if current != nil {
				contentLines = append(contentLines, strings.TrimPrefix(line, "> "))
			}
		case metaRE.MatchString(line):
			if current != nil {
				m := metaRE.FindStringSubmatch(line)
				if m[1] != "" {
					for _, tag := range strings.Split(m[1], ",") {
						tag = strings.TrimSpace(tag)
						if tag != "" {
							current.Tags = append(current.Tags, tag)
						}
					}
				}
				if created, err := time.Parse("2006-01-02", m[2]); err == nil {
					current.Created = created
				}
			}
		}
	}
	flush()
	return doc
}

func trimBlank(lines []string) []string {
	start, end := 0, len(lines)
	for start < end && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return lines[start:end]
}

func headerToType(header string) MemoryType {
	for t, h := range sectionHeaders {
		if strings.TrimSpace(header) == h {
			return t
		}
	}
	return MemoryContext
}

func insertIntoSection(doc document, m Memory) document {
	if doc == nil {
		doc = document{}
	}
	doc[m.Type] = append(doc[m.Type], m)
	return doc
}

func renderDocument(doc document) string {
	var b strings.Builder
	b.WriteString("# Memories\n")
	for _, t := range sectionOrder {
		b.WriteString("\n")
		b.WriteString(sectionHeaders[t])
		b.WriteString("\n")
		entries := doc[t]
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].Created.Before(entries[j].Created) })
		for _, m := range entries {
			b.WriteString("\n### ")
			b.WriteString(m.ID)
			b.WriteString("\n")
			for _, line := range strings.Split(m.Content, "\n") {
				b.WriteString("> ")
				b.WriteString(line)
				b.WriteString("\n")
			}
			b.WriteString(fmt.Sprintf("<!-- tags: %s | created: %s -->\n",
				strings.Join(m.Tags, ", "), m.Created.Format("2006-01-02")))
		}
	}
	return b.String()
}
