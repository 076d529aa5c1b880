package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidSlug(t *testing.T) {
	t.Parallel()

	valid := []string{
		"a",
		"ab",
		"note-taking",
		"crm-2",
		"a1",
		strings.Repeat("x", 64),
	}
	for _, s := range valid {
		assert.True(t, ValidSlug(s), "expected %q to be valid", s)
	}

	invalid := []string{
		"",
		"-leading",
		"Upper-Case",
		"with space",
		"dot.sep",
		"unicode-ü",
		strings.Repeat("x", 65),
	}
	for _, s := range invalid {
		assert.False(t, ValidSlug(s), "expected %q to be invalid", s)
	}
}

func TestNormalizeSentiment(t *testing.T) {
	t.Parallel()

	assert.Equal(t, SentimentNegative, NormalizeSentiment("negative"))
	assert.Equal(t, SentimentMixed, NormalizeSentiment("  Mixed "))
	assert.Equal(t, SentimentNeutral, NormalizeSentiment("angry"))
	assert.Equal(t, SentimentNeutral, NormalizeSentiment(""))
}

func TestNormalizePostType(t *testing.T) {
	t.Parallel()

	assert.Equal(t, PostTypeFeatureRequest, NormalizePostType("FEATURE_REQUEST"))
	assert.Equal(t, PostTypeComplaint, NormalizePostType(" complaint"))
	assert.Equal(t, PostTypeOther, NormalizePostType("rant"))
	assert.Equal(t, PostTypeOther, NormalizePostType(""))
}

func TestPostTypeActionable(t *testing.T) {
	t.Parallel()

	actionable := []PostType{
		PostTypeNeed, PostTypeComplaint, PostTypeFeatureRequest,
		PostTypeAlternativeSeeking, PostTypeComparison,
	}
	for _, p := range actionable {
		assert.True(t, p.Actionable(), "%s should be actionable", p)
	}

	passive := []PostType{
		PostTypeQuestion, PostTypeReview, PostTypeShowcase,
		PostTypeDiscussion, PostTypeOther,
	}
	for _, p := range passive {
		assert.False(t, p.Actionable(), "%s should not be actionable", p)
	}
}
