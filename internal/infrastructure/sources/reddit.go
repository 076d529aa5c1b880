package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"SignalScanner/internal/config"
	"SignalScanner/internal/domain"
	"SignalScanner/internal/ports"
)

// RedditSource polls the public listing API of configured communities.
type RedditSource struct {
	baseURL     string
	userAgent   string
	communities []string
	limit       int
	client      *http.Client
	logger      *slog.Logger
}

var _ ports.SignalSource = (*RedditSource)(nil)

// NewRedditSource wires an HTTP client; post limit defaults to 100.
func NewRedditSource(cfg config.RedditConfig, client *http.Client, logger *slog.Logger) *RedditSource {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	limit := cfg.PostLimit
	if limit <= 0 {
		limit = 100
	}
	return &RedditSource{
		baseURL:     cfg.BaseURL,
		userAgent:   cfg.UserAgent,
		communities: cfg.Communities,
		limit:       limit,
		client:      client,
		logger:      logger,
	}
}

// Name identifies the source inside fetch-stage error messages.
func (s *RedditSource) Name() string {
	return "reddit"
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	SelfText    string  `json:"selftext"`
	Permalink   string  `json:"permalink"`
	Subreddit   string  `json:"subreddit"`
	CreatedUTC  float64 `json:"created_utc"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
}

// Fetch walks every configured community and collects its newest posts.
// A failing community aborts the whole source; the orchestrator records the
// error without blocking other sources.
func (s *RedditSource) Fetch(ctx context.Context) (domain.Harvest, error) {
	var harvest domain.Harvest

	for _, community := range s.communities {
		posts, err := s.fetchCommunity(ctx, community)
		if err != nil {
			return domain.Harvest{}, fmt.Errorf("community %s: %w", community, err)
		}
		s.debug("community fetched", "community", community, "posts", len(posts))
		harvest.Signals = append(harvest.Signals, posts...)
	}

	return harvest, nil
}

func (s *RedditSource) fetchCommunity(ctx context.Context, community string) ([]domain.RawSignal, error) {
	endpoint := fmt.Sprintf("%s/r/%s/new.json?limit=%s",
		s.baseURL, url.PathEscape(community), strconv.Itoa(s.limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request listing: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reddit returned %s", resp.Status)
	}

	var listing redditListing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}

	signals := make([]domain.RawSignal, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		post := child.Data
		if post.ID == "" || post.Title == "" {
			continue
		}
		signals = append(signals, domain.RawSignal{
			Source:       domain.SourceReddit,
			ExternalID:   post.ID,
			Title:        post.Title,
			Body:         post.SelfText,
			URL:          s.baseURL + post.Permalink,
			PostedAt:     time.Unix(int64(post.CreatedUTC), 0).UTC(),
			Score:        post.Score,
			CommentCount: post.NumComments,
			Community:    post.Subreddit,
		})
	}

	return signals, nil
}

func (s *RedditSource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
