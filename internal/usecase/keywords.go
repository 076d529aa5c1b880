package usecase

import "strings"

const (
	maxKeywords      = 5
	minKeywordLength = 3
)

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "that": {}, "with": {}, "this": {},
	"from": {}, "have": {}, "has": {}, "are": {}, "was": {}, "were": {},
	"not": {}, "but": {}, "all": {}, "can": {}, "their": {}, "they": {},
	"you": {}, "your": {}, "about": {}, "into": {}, "over": {}, "more": {},
	"when": {}, "what": {}, "how": {}, "why": {}, "who": {}, "which": {},
	"too": {}, "very": {}, "some": {}, "any": {}, "its": {}, "also": {},
	"users": {}, "user": {}, "people": {}, "need": {}, "needs": {},
	"want": {}, "wants": {}, "tool": {}, "tools": {}, "app": {}, "apps": {},
}

// ExtractKeywords derives up to maxKeywords search keywords from a cluster's
// label and summary. Words shorter than minKeywordLength and stopwords are
// dropped. When every candidate is filtered out, the raw label is used
// verbatim as the single keyword.
func ExtractKeywords(label, summary string) []string {
	var keywords []string
	seen := map[string]struct{}{}

	for _, word := range splitWords(label + " " + summary) {
		if len(word) < minKeywordLength {
			continue
		}
		if _, ok := stopwords[word]; ok {
			continue
		}
		if _, ok := seen[word]; ok {
			continue
		}
		seen[word] = struct{}{}
		keywords = append(keywords, word)
		if len(keywords) == maxKeywords {
			break
		}
	}

	if len(keywords) == 0 {
		if fallback := strings.ToLower(strings.TrimSpace(label)); fallback != "" {
			keywords = []string{fallback}
		}
	}

	return keywords
}

func splitWords(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}
