package sources

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"SignalScanner/internal/config"
	"SignalScanner/internal/domain"
	"SignalScanner/internal/ports"
)

const playStoreAppLimit = 5

// PlayStoreSource scrapes Play-store search and review pages by keyword.
type PlayStoreSource struct {
	baseURL  string
	keywords []string
	country  string
	maxAge   time.Duration
	client   *http.Client
	logger   *slog.Logger
	now      func() time.Time
}

var _ ports.SignalSource = (*PlayStoreSource)(nil)

// NewPlayStoreSource wires an HTTP client; review age cutoff defaults to 30 days.
func NewPlayStoreSource(cfg config.StoreConfig, client *http.Client, logger *slog.Logger) *PlayStoreSource {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	maxAgeDays := cfg.MaxAgeDays
	if maxAgeDays <= 0 {
		maxAgeDays = 30
	}
	return &PlayStoreSource{
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
func (s *PlayStoreSource) Name() string {
	return "play-store"
}

// Fetch searches apps per keyword and scrapes reviews of each hit within
// the configured age cutoff.
func (s *PlayStoreSource) Fetch(ctx context.Context) (domain.Harvest, error) {
	var harvest domain.Harvest
	cutoff := s.now().Add(-s.maxAge)

	for _, keyword := range s.keywords {
		apps, err := s.searchApps(ctx, keyword)
		if err != nil {
			return domain.Harvest{}, fmt.Errorf("keyword %q: %w", keyword, err)
		}

		for _, app := range apps {
			harvest.Products = append(harvest.Products, app)

			reviews, err := s.scrapeReviews(ctx, app, cutoff)
			if err != nil {
				return domain.Harvest{}, fmt.Errorf("reviews for %s: %w", app.Name, err)
			}
			harvest.Signals = append(harvest.Signals, reviews...)
		}
		s.debug("keyword scanned", "keyword", keyword, "apps", len(apps))
	}

	return harvest, nil
}

func (s *PlayStoreSource) searchApps(ctx context.Context, keyword string) ([]domain.RawProduct, error) {
	endpoint := fmt.Sprintf("%s/store/search?q=%s&c=apps&gl=%s",
		s.baseURL, url.QueryEscape(keyword), url.QueryEscape(s.country))

	doc, err := s.fetchDocument(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var apps []domain.RawProduct
	seen := map[string]struct{}{}

	doc.Find(`a[href*="/store/apps/details?id="]`).EachWithBreak(func(i int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		appID := extractPlayAppID(href)
		if appID == "" {
			return true
		}
		if _, ok := seen[appID]; ok {
			return true
		}

		name := strings.TrimSpace(sel.Find(".app-title").First().Text())
		if name == "" {
			name = strings.TrimSpace(sel.Text())
		}
		if name == "" {
			return true
		}
		seen[appID] = struct{}{}

		apps = append(apps, domain.RawProduct{
			Source:     string(domain.SourcePlayStore),
			ExternalID: appID,
			Name:       name,
			Slug:       slugify(name),
			Tagline:    strings.TrimSpace(sel.Find(".app-tagline").First().Text()),
			URL:        s.baseURL + "/store/apps/details?id=" + appID,
		})
		return len(apps) < playStoreAppLimit
	})

	return apps, nil
}

func (s *PlayStoreSource) scrapeReviews(ctx context.Context, app domain.RawProduct, cutoff time.Time) ([]domain.RawSignal, error) {
	endpoint := fmt.Sprintf("%s/store/apps/details?id=%s&showAllReviews=true",
		s.baseURL, url.QueryEscape(app.ExternalID))

	doc, err := s.fetchDocument(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var signals []domain.RawSignal
	doc.Find("div[data-review-id]").Each(func(i int, sel *goquery.Selection) {
		reviewID, _ := sel.Attr("data-review-id")
		if reviewID == "" {
			return
		}

		posted := s.now().UTC()
		if raw, ok := sel.Find("time").First().Attr("datetime"); ok {
			if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
				posted = parsed.UTC()
			}
		}
		if posted.Before(cutoff) {
			return
		}

		rating := 0
		if raw, ok := sel.Attr("data-rating"); ok {
			rating, _ = strconv.Atoi(raw)
		}

		body := strings.TrimSpace(sel.Find(".review-body").First().Text())
		title := strings.TrimSpace(sel.Find(".review-title").First().Text())
		if title == "" {
			title = firstSentence(body)
		}
		if title == "" {
			return
		}

		signals = append(signals, domain.RawSignal{
			Source:     domain.SourcePlayStore,
			ExternalID: reviewID,
			Title:      title,
			Body:       body,
			URL:        app.URL,
			PostedAt:   posted,
			Score:      rating,
			Community:  app.Name,
		})
	})

	return signals, nil
}

func (s *PlayStoreSource) fetchDocument(ctx context.Context, endpoint string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "SignalScanner/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("play store returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	return doc, nil
}

func extractPlayAppID(href string) string {
	idx := strings.Index(href, "id=")
	if idx < 0 {
		return ""
	}
	id := href[idx+3:]
	if amp := strings.IndexByte(id, '&'); amp >= 0 {
		id = id[:amp]
	}
	return id
}

func firstSentence(text string) string {
	for _, sep := range []string{". ", "! ", "? "} {
		if idx := strings.Index(text, sep); idx > 0 {
			return text[:idx+1]
		}
	}
	if len(text) > 80 {
		return text[:80]
	}
	return text
}

var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

// slugify lowercases a name and collapses non-alphanumeric runs to hyphens.
func slugify(name string) string {
	slug := slugStrip.ReplaceAllString(strings.ToLower(name), "-")
	return strings.Trim(slug, "-")
}

func (s *PlayStoreSource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
