package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"SignalScanner/internal/domain"
)

const (
	embedBodyLength   = 500
	labelSampleSize   = 10
	labelConcurrency  = 4
	noiseGroupSummary = "Signals that did not fit any clear theme this run."
)

const labelSystemPrompt = `You name themes found in groups of user feedback.
Given a sample of post titles from one group, produce a short theme label (2-6 words)
and a one-sentence summary of the shared pain point.
Respond with a JSON object: {"label": "...", "summary": "..."}. Respond with JSON only.`

// Cluster embeds the signals, groups them by embedding density, and asks the
// model to label every non-noise group. Signals the algorithm cannot place
// are returned as one reserved noise group without a model call.
func (e *Engine) Cluster(ctx context.Context, signals []domain.Signal) ([]domain.ClusterResult, error) {
	if len(signals) == 0 {
		return nil, nil
	}

	vectors, err := e.embedSignals(ctx, signals)
	if err != nil {
		return nil, fmt.Errorf("embed signals: %w", err)
	}

	groups, noise := densityGroups(vectors)
	e.debug("density grouping done", "signals", len(signals), "groups", len(groups), "noise", len(noise))

	results := make([]domain.ClusterResult, len(groups))
	var mu sync.Mutex

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(labelConcurrency)
	for idx, members := range groups {
		idx, members := idx, members
		eg.Go(func() error {
			label, summary, err := e.labelGroup(egCtx, signals, members)
			if err != nil {
				return fmt.Errorf("label group of %d: %w", len(members), err)
			}
			mu.Lock()
			results[idx] = domain.ClusterResult{
				Label:     label,
				Summary:   summary,
				SignalIDs: signalIDs(signals, members),
			}
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	if len(noise) > 0 {
		results = append(results, domain.ClusterResult{
			Label:     domain.NoiseLabel,
			Summary:   noiseGroupSummary,
			SignalIDs: signalIDs(signals, noise),
		})
	}

	return results, nil
}

// embedSignals computes one vector per signal from title plus truncated body,
// respecting the backend's batch limit.
func (e *Engine) embedSignals(ctx context.Context, signals []domain.Signal) ([][]float64, error) {
	texts := make([]string, len(signals))
	for i, sig := range signals {
		text := sig.Title
		if body := truncateText(sig.Body, embedBodyLength); body != "" {
			text += "\n\n" + body
		}
		texts[i] = text
	}

	vectors := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += e.embedBatchLimit {
		end := start + e.embedBatchLimit
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := e.client.embed(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("batch starting at %d: %w", start, err)
		}
		vectors = append(vectors, batch...)
	}

	return vectors, nil
}

type labelResponse struct {
	Label   string `json:"label"`
	Summary string `json:"summary"`
}

func (e *Engine) labelGroup(ctx context.Context, signals []domain.Signal, members []int) (string, string, error) {
	var b strings.Builder
	b.WriteString("Post titles from one group:\n")
	for i, idx := range members {
		if i == labelSampleSize {
			break
		}
		fmt.Fprintf(&b, "- %s\n", signals[idx].Title)
	}

	content, err := e.client.complete(ctx, labelSystemPrompt, b.String())
	if err != nil {
		return "", "", err
	}

	var parsed labelResponse
	if err := json.Unmarshal([]byte(stripFences(content)), &parsed); err != nil {
		return "", "", fmt.Errorf("parse label response: %w", err)
	}

	label := strings.TrimSpace(parsed.Label)
	if label == "" {
		return "", "", fmt.Errorf("model returned empty label")
	}

	return label, strings.TrimSpace(parsed.Summary), nil
}

func signalIDs(signals []domain.Signal, members []int) []int64 {
	ids := make([]int64, len(members))
	for i, idx := range members {
		ids[i] = signals[idx].ID
	}
	return ids
}
