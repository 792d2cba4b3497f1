package worktree

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

var loopIDPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

func TestGenerateLoopIDIsSanitised(t *testing.T) {
	id := GenerateLoopID("Fix the OAuth2.0 login bug!!", func(string) bool { return false })
	assert.Regexp(t, loopIDPattern, id)
}

func TestGenerateLoopIDIncludesKeyword(t *testing.T) {
	id := GenerateLoopID("please refactor the payment gateway module", func(string) bool { return false })
	assert.Contains(t, id, "refactor")
}

func TestGenerateLoopIDFallsBackOnRepeatedCollision(t *testing.T) {
	id := GenerateLoopID("fix bug", func(string) bool { return true })
	assert.Regexp(t, `^ralph-\d{8}-\d{6}-[0-9a-f]{4}$`, id)
}

func TestGenerateLoopIDEmptyPrompt(t *testing.T) {
	id := GenerateLoopID("", func(string) bool { return false })
	assert.Regexp(t, loopIDPattern, id)
	assert.NotEmpty(t, id)
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "fix-the-bug", slugify("Fix The Bug!!"))
	assert.Equal(t, "oauth2-0", slugify("OAuth2.0"))
}

func TestKeywordsPrioritisesActionVerbs(t *testing.T) {
	kw := keywords("please update the documentation for the api", 2)
	assert.Equal(t, "update", kw[0])
}

func TestKeywordsFiltersStopWords(t *testing.T) {
	kw := keywords("fix the bug in the login flow", 10)
	for _, w := range kw {
		assert.NotEqual(t, "the", w)
		assert.NotEqual(t, "in", w)
	}
}

func TestBranchName(t *testing.T) {
	assert.Equal(t, "ralph/swift-otter", BranchName("swift-otter"))
}
