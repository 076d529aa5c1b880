package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"SignalScanner/internal/domain"
)

const (
	maxTagsPerSignal = 5
	maxSlugLength    = 64
	excerptLength    = 300
)

const classifySystemPrompt = `You analyze public posts and app reviews for product research.
For every post you receive, decide its sentiment, its post type, and 2-5 topic tags.
Sentiment is one of: positive, negative, neutral, mixed.
Post type is one of: need, complaint, feature_request, alternative_seeking, comparison, question, review, showcase, discussion, other.
Tags are short lowercase slugs (letters, digits, hyphens).
Reuse the existing tags you are given whenever one fits; only invent a new tag when nothing existing fits.
Respond with a JSON array of objects: {"id": <post id>, "sentiment": "...", "post_type": "...", "tags": ["..."]}.
Respond with JSON only.`

type classifyItem struct {
	ID        json.Number `json:"id"`
	Sentiment string      `json:"sentiment"`
	PostType  string      `json:"post_type"`
	Tags      []string    `json:"tags"`
}

// Classify sends one batch of signals to the model together with the current
// tag vocabulary and returns validated per-signal results. Every field of the
// model response is treated as untrusted: unknown ids are dropped, enum
// values fall back to defaults, and tag slugs are filtered and capped.
func (e *Engine) Classify(ctx context.Context, signals []domain.Signal, existingTags []string) ([]domain.TagResult, error) {
	if len(signals) == 0 {
		return nil, nil
	}

	content, err := e.client.complete(ctx, classifySystemPrompt, classifyUserPrompt(signals, existingTags))
	if err != nil {
		return nil, fmt.Errorf("classify batch: %w", err)
	}

	var items []classifyItem
	if err := json.Unmarshal([]byte(stripFences(content)), &items); err != nil {
		return nil, fmt.Errorf("parse classification response: %w", err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("model returned no classifications for batch of %d", len(signals))
	}

	known := make(map[int64]struct{}, len(signals))
	for _, sig := range signals {
		known[sig.ID] = struct{}{}
	}

	results := make([]domain.TagResult, 0, len(items))
	for _, item := range items {
		id, err := item.ID.Int64()
		if err != nil {
			e.debug("discarding non-integer signal id", "id", item.ID.String())
			continue
		}
		if _, ok := known[id]; !ok {
			e.debug("discarding unknown signal id", "id", id)
			continue
		}

		results = append(results, domain.TagResult{
			SignalID:  id,
			Sentiment: domain.NormalizeSentiment(item.Sentiment),
			PostType:  domain.NormalizePostType(item.PostType),
			Tags:      sanitizeTags(item.Tags),
		})
	}

	return results, nil
}

func classifyUserPrompt(signals []domain.Signal, existingTags []string) string {
	var b strings.Builder

	b.WriteString("Existing tags: ")
	if len(existingTags) == 0 {
		b.WriteString("(none yet)")
	} else {
		b.WriteString(strings.Join(existingTags, ", "))
	}
	b.WriteString("\n\nPosts:\n")

	for _, sig := range signals {
		fmt.Fprintf(&b, "id=%d [%s] %s\n", sig.ID, sig.Source, sig.Title)
		if excerpt := truncateText(sig.Body, excerptLength); excerpt != "" {
			fmt.Fprintf(&b, "  %s\n", excerpt)
		}
	}

	return b.String()
}

// sanitizeTags lowercases, truncates, and pattern-filters model-proposed
// slugs, deduplicates them, and caps the list at maxTagsPerSignal.
func sanitizeTags(raw []string) []string {
	var tags []string
	seen := map[string]struct{}{}

	for _, tag := range raw {
		slug := strings.ToLower(strings.TrimSpace(tag))
		if len(slug) > maxSlugLength {
			slug = slug[:maxSlugLength]
		}
		if !domain.ValidSlug(slug) {
			continue
		}
		if _, ok := seen[slug]; ok {
			continue
		}
		seen[slug] = struct{}{}
		tags = append(tags, slug)
		if len(tags) == maxTagsPerSignal {
			break
		}
	}

	return tags
}

func truncateText(s string, max int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
