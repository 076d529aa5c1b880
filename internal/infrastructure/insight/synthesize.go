package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"SignalScanner/internal/domain"
)

const (
	maxBriefTitle   = 200
	maxBriefField   = 5000
	briefSampleSize = 30
	snapshotExcerpt = 200
)

const synthesizeSystemPrompt = `You write concise opportunity briefs for product builders.
Given one theme of user pain points with supporting posts, optional search-trend figures,
and optionally a list of existing products in the space, write a structured brief.
Respond with a JSON object:
{"title": "...", "slug": "...", "summary": "...", "problem": "...", "opportunity": "...",
 "solutions": ["..."], "competitive_landscape": "...", "source_post_ids": [1, 2]}.
source_post_ids must reference the post ids you drew evidence from. Respond with JSON only.`

type briefResponse struct {
	Title                string        `json:"title"`
	Slug                 string        `json:"slug"`
	Summary              string        `json:"summary"`
	Problem              string        `json:"problem"`
	Opportunity          string        `json:"opportunity"`
	Solutions            []string      `json:"solutions"`
	CompetitiveLandscape string        `json:"competitive_landscape"`
	SourcePostIDs        []json.Number `json:"source_post_ids"`
}

// Synthesize produces a validated brief draft for one cluster. Trend and
// related-product enrichment may be nil; the prompt simply omits them.
// Demand metrics and source snapshots are computed here from the member
// signals rather than trusted from the model.
func (e *Engine) Synthesize(ctx context.Context, label, summary string, members []domain.Signal, trends map[string]int, related []domain.RawProduct) (domain.BriefDraft, error) {
	if len(members) == 0 {
		return domain.BriefDraft{}, fmt.Errorf("cluster %q has no members", label)
	}

	content, err := e.client.complete(ctx, synthesizeSystemPrompt, synthesizeUserPrompt(label, summary, members, trends, related))
	if err != nil {
		return domain.BriefDraft{}, fmt.Errorf("synthesize brief: %w", err)
	}

	var parsed briefResponse
	if err := json.Unmarshal([]byte(stripFences(content)), &parsed); err != nil {
		return domain.BriefDraft{}, fmt.Errorf("parse brief response: %w", err)
	}
	if strings.TrimSpace(parsed.Title) == "" {
		return domain.BriefDraft{}, fmt.Errorf("model returned empty brief")
	}

	draft := domain.BriefDraft{
		Title:       truncateText(parsed.Title, maxBriefTitle),
		Slug:        briefSlug(parsed.Slug, parsed.Title),
		Summary:     truncateText(parsed.Summary, maxBriefField),
		Problem:     truncateText(parsed.Problem, maxBriefField),
		Opportunity: truncateText(parsed.Opportunity, maxBriefField),
		Solutions:   parsed.Solutions,
		Metrics:     demandMetrics(members, trends, parsed.CompetitiveLandscape),
		Snapshots:   snapshots(members),
	}

	for _, raw := range parsed.SourcePostIDs {
		id, err := raw.Int64()
		if err != nil {
			continue
		}
		draft.SourcePostIDs = append(draft.SourcePostIDs, id)
	}

	return draft, nil
}

func synthesizeUserPrompt(label, summary string, members []domain.Signal, trends map[string]int, related []domain.RawProduct) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Theme: %s\n", label)
	if summary != "" {
		fmt.Fprintf(&b, "Theme summary: %s\n", summary)
	}

	b.WriteString("\nSupporting posts:\n")
	for i, sig := range members {
		if i == briefSampleSize {
			break
		}
		fmt.Fprintf(&b, "id=%d (%s, score %d) %s\n", sig.ID, sig.Community, sig.Score, sig.Title)
		if excerpt := truncateText(sig.Body, excerptLength); excerpt != "" {
			fmt.Fprintf(&b, "  %s\n", excerpt)
		}
	}

	if len(trends) > 0 {
		b.WriteString("\nSearch interest (0-100):\n")
		for keyword, score := range trends {
			fmt.Fprintf(&b, "- %s: %d\n", keyword, score)
		}
	}

	if len(related) > 0 {
		b.WriteString("\nExisting products in the space:\n")
		for _, product := range related {
			fmt.Fprintf(&b, "- %s: %s\n", product.Name, product.Tagline)
		}
	}

	return b.String()
}

// briefSlug falls back to a slugified title when the model omits or mangles
// the slug. The caller appends the cluster id before persisting.
func briefSlug(proposed, title string) string {
	slug := strings.ToLower(strings.TrimSpace(proposed))
	if len(slug) > maxSlugLength {
		slug = slug[:maxSlugLength]
	}
	if domain.ValidSlug(slug) {
		return slug
	}
	return slugifyTitle(title)
}

func slugifyTitle(title string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		case !lastHyphen:
			b.WriteByte('-')
			lastHyphen = true
		}
		if b.Len() >= maxSlugLength {
			break
		}
	}
	return strings.Trim(b.String(), "-")
}

func demandMetrics(members []domain.Signal, trends map[string]int, landscape string) domain.DemandMetrics {
	communities := map[string]struct{}{}
	totalScore := 0
	totalComments := 0

	for _, sig := range members {
		if sig.Community != "" {
			communities[sig.Community] = struct{}{}
		}
		totalScore += sig.Score
		totalComments += sig.CommentCount
	}

	return domain.DemandMetrics{
		PostCount:            len(members),
		CommunityCount:       len(communities),
		AvgScore:             float64(totalScore) / float64(len(members)),
		TotalComments:        totalComments,
		TrendInterest:        trends,
		CompetitiveLandscape: truncateText(landscape, maxBriefField),
	}
}

func snapshots(members []domain.Signal) []domain.SourceSnapshot {
	result := make([]domain.SourceSnapshot, 0, len(members))
	for _, sig := range members {
		result = append(result, domain.SourceSnapshot{
			SignalID:  sig.ID,
			Title:     sig.Title,
			Excerpt:   truncateText(sig.Body, snapshotExcerpt),
			URL:       sig.URL,
			Community: sig.Community,
			Score:     sig.Score,
		})
	}
	return result
}
