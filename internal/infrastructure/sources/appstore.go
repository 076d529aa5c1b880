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

const appStoreSearchLimit = 5

// AppStoreSource searches the iTunes catalog by keyword and scrapes recent
// customer reviews of the matched apps.
type AppStoreSource struct {
	baseURL  string
	keywords []string
	country  string
	maxAge   time.Duration
	client   *http.Client
	logger   *slog.Logger
	now      func() time.Time
}

var _ ports.SignalSource = (*AppStoreSource)(nil)

// NewAppStoreSource wires an HTTP client; review age cutoff defaults to 30 days.
func NewAppStoreSource(cfg config.StoreConfig, client *http.Client, logger *slog.Logger) *AppStoreSource {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	maxAgeDays := cfg.MaxAgeDays
	if maxAgeDays <= 0 {
		maxAgeDays = 30
	}
	return &AppStoreSource{
		baseURL:  cfg.BaseURL,
		keywords: cfg.Keywords,
		country:  cfg.Country,
		maxAge:   time.Duration(maxAgeDays) * 24 * time.Hour,
		client:   client,
		logger:   logger,
		now:      time.Now,
	}
}

// Name identifies the source inside fetch-stage error messages.
func (s *AppStoreSource) Name() string {
	return "app-store"
}

type itunesSearchResponse struct {
	Results []struct {
		TrackID      int64  `json:"trackId"`
		TrackName    string `json:"trackName"`
		Description  string `json:"description"`
		TrackViewURL string `json:"trackViewUrl"`
		ArtworkURL   string `json:"artworkUrl100"`
		Genre        string `json:"primaryGenreName"`
		ReleaseDate  string `json:"releaseDate"`
	} `json:"results"`
}

type itunesReviewFeed struct {
	Feed struct {
		Entry []json.RawMessage `json:"entry"`
	} `json:"feed"`
}

type itunesReviewEntry struct {
	ID      labelField `json:"id"`
	Title   labelField `json:"title"`
	Content labelField `json:"content"`
	Rating  labelField `json:"im:rating"`
	Updated labelField `json:"updated"`
	Author  struct {
		Name labelField `json:"name"`
	} `json:"author"`
}

type labelField struct {
	Label string `json:"label"`
}

// Fetch searches apps per keyword and collects their recent reviews within
// the configured age cutoff.
func (s *AppStoreSource) Fetch(ctx context.Context) (domain.Harvest, error) {
	var harvest domain.Harvest
	cutoff := s.now().Add(-s.maxAge)

	for _, keyword := range s.keywords {
		apps, err := s.search(ctx, keyword)
		if err != nil {
			return domain.Harvest{}, fmt.Errorf("keyword %q: %w", keyword, err)
		}

		for _, app := range apps.Results {
			launched, _ := time.Parse(time.RFC3339, app.ReleaseDate)
			harvest.Products = append(harvest.Products, domain.RawProduct{
				Source:      string(domain.SourceAppStore),
				ExternalID:  strconv.FormatInt(app.TrackID, 10),
				Name:        app.TrackName,
				Slug:        slugify(app.TrackName),
				Description: app.Description,
				URL:         app.TrackViewURL,
				ImageURL:    app.ArtworkURL,
				Category:    app.Genre,
				LaunchedAt:  launched,
			})

			reviews, err := s.reviews(ctx, app.TrackID, app.TrackName, cutoff)
			if err != nil {
				return domain.Harvest{}, fmt.Errorf("reviews for %s: %w", app.TrackName, err)
			}
			harvest.Signals = append(harvest.Signals, reviews...)
		}
		s.debug("keyword scanned", "keyword", keyword, "apps", len(apps.Results))
	}

	return harvest, nil
}

func (s *AppStoreSource) search(ctx context.Context, keyword string) (itunesSearchResponse, error) {
	endpoint := fmt.Sprintf("%s/search?term=%s&country=%s&entity=software&limit=%d",
		s.baseURL, url.QueryEscape(keyword), url.QueryEscape(s.country), appStoreSearchLimit)

	var result itunesSearchResponse
	if err := s.getJSON(ctx, endpoint, &result); err != nil {
		return itunesSearchResponse{}, err
	}
	return result, nil
}

func (s *AppStoreSource) reviews(ctx context.Context, appID int64, appName string, cutoff time.Time) ([]domain.RawSignal, error) {
	endpoint := fmt.Sprintf("%s/%s/rss/customerreviews/id=%d/sortBy=mostRecent/json",
		s.baseURL, url.PathEscape(s.country), appID)

	var feed itunesReviewFeed
	if err := s.getJSON(ctx, endpoint, &feed); err != nil {
		return nil, err
	}

	var signals []domain.RawSignal
	for _, raw := range feed.Feed.Entry {
		var entry itunesReviewEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			continue
		}
		// The first feed entry is app metadata, not a review.
		if entry.Rating.Label == "" || entry.ID.Label == "" {
			continue
		}

		updated, err := time.Parse(time.RFC3339, entry.Updated.Label)
		if err != nil || updated.Before(cutoff) {
			continue
		}

		rating, _ := strconv.Atoi(entry.Rating.Label)
		signals = append(signals, domain.RawSignal{
			Source:     domain.SourceAppStore,
			ExternalID: entry.ID.Label,
			Title:      entry.Title.Label,
			Body:       entry.Content.Label,
			URL:        fmt.Sprintf("https://apps.apple.com/%s/app/id%d", s.country, appID),
			PostedAt:   updated.UTC(),
			Score:      rating,
			Community:  appName,
		})
	}

	return signals, nil
}

func (s *AppStoreSource) getJSON(ctx context.Context, endpoint string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "SignalScanner/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("app store returned %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (s *AppStoreSource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
