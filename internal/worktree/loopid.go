package worktree

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var nonAlnumRegex = regexp.MustCompile(`[^a-z0-9]+`)

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "to": true, "of": true, "for": true,
	"and": true, "or": true, "in": true, "on": true, "with": true, "is": true,
	"at": true, "by": true, "this": true, "that": true, "it": true, "be": true,
	"please": true, "can": true, "you": true, "i": true,
}

var actionVerbs = map[string]bool{
	"fix": true, "add": true, "remove": true, "refactor": true, "implement": true,
	"update": true, "build": true, "create": true, "write": true, "test": true,
	"debug": true, "investigate": true, "improve": true, "optimize": true,
	"migrate": true, "clean": true, "document": true, "review": true,
}

var adjectives = []string{
	"swift", "quiet", "bold", "clever", "steady", "bright", "calm", "sharp",
	"tidy", "eager", "brisk", "keen", "lucid", "nimble", "plain", "solid",
}

var nouns = []string{
	"otter", "heron", "falcon", "badger", "lynx", "marten", "plover", "wren",
	"kestrel", "osprey", "tern", "finch", "ibis", "egret", "auk", "skua",
}

// slugify lowercases s, collapses runs of non-alphanumerics to a single
// hyphen, and trims leading/trailing hyphens, matching the convention
// used elsewhere in the codebase for branch-safe names.
func slugify(s string) string {
	s = strings.ToLower(s)
	s = nonAlnumRegex.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// keywords extracts up to n meaningful words from prompt: action verbs
// are prioritised, then other non-stop-words, in order of appearance.
func keywords(prompt string, n int) []string {
	words := strings.Fields(strings.ToLower(prompt))
	var verbs, rest []string
	seen := map[string]bool{}
	for _, w := range words {
		w = strings.Trim(w, ".,!?;:'\"()")
		if w == "" || stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		if actionVerbs[w] {
			verbs = append(verbs, w)
		} else {
			rest = append(rest, w)
		}
	}
	combined := append(verbs, rest...)
	if len(combined) > n {
		combined = combined[:n]
	}
	return combined
}

// pseudoIndex derives a small deterministic index from a uuid byte, used
// to pick an adjective/noun pair without reaching for math/rand (whose
// global state would make two near-simultaneous loop ids collide less
// predictably than a uuid already does).
func pseudoIndex(b byte, mod int) int {
	return int(b) % mod
}

// GenerateLoopID builds a human-readable loop id from prompt: extracted
// keywords plus an adjective-noun suffix, sanitised to [a-z0-9-]. exists
// reports whether a candidate id is already taken (e.g. a live worktree
// or registry entry); on repeated collision it falls back to a
// timestamp-plus-random id.
func GenerateLoopID(prompt string, exists func(id string) bool) string {
	words := keywords(prompt, 3)
	base := slugify(strings.Join(words, "-"))

	for attempt := 0; attempt < 5; attempt++ {
		id := uuid.New()
		adj := adjectives[pseudoIndex(id[0], len(adjectives))]
		noun := nouns[pseudoIndex(id[1], len(nouns))]
		var candidate string
		if base != "" {
			candidate = fmt.Sprintf("%s-%s-%s", base, adj, noun)
		} else {
			candidate = fmt.Sprintf("%s-%s", adj, noun)
		}
		candidate = slugify(candidate)
		if !exists(candidate) {
			return candidate
		}
	}

	fallback := fmt.Sprintf("ralph-%s-%s", time.Now().UTC().Format("20060102-150405"), shortSuffix())
	return fallback
}

func shortSuffix() string {
	id := uuid.New()
	return fmt.Sprintf("%02x%02x", id[0], id[1])
}
