package sources

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/mmcdole/gofeed"

	"SignalScanner/internal/config"
	"SignalScanner/internal/domain"
	"SignalScanner/internal/ports"
)

// RSSSource fetches signals from configured RSS/Atom feeds.
type RSSSource struct {
	feeds  []config.FeedConfig
	parser *gofeed.Parser
	logger *slog.Logger
}

var _ ports.SignalSource = (*RSSSource)(nil)

// NewRSSSource builds a source over the configured feed list.
func NewRSSSource(cfg config.RSSConfig, logger *slog.Logger) *RSSSource {
	return &RSSSource{
		feeds:  cfg.Feeds,
		parser: gofeed.NewParser(),
		logger: logger,
	}
}

// Name identifies the source inside fetch-stage error messages.
func (s *RSSSource) Name() string {
	return "rss"
}

// Fetch parses every configured feed and converts entries to raw signals.
func (s *RSSSource) Fetch(ctx context.Context) (domain.Harvest, error) {
	var harvest domain.Harvest

	for _, feedCfg := range s.feeds {
		feed, err := s.parser.ParseURLWithContext(feedCfg.URL, ctx)
		if err != nil {
			return domain.Harvest{}, fmt.Errorf("feed %s: %w", feedCfg.Name, err)
		}

		now := time.Now().UTC()
		for _, entry := range feed.Items {
			published := now
			if entry.PublishedParsed != nil {
				published = entry.PublishedParsed.UTC()
			} else if entry.UpdatedParsed != nil {
				published = entry.UpdatedParsed.UTC()
			}

			harvest.Signals = append(harvest.Signals, domain.RawSignal{
				Source:     domain.SourceRSS,
				ExternalID: feedEntryID(entry),
				Title:      entry.Title,
				Body:       entry.Description,
				URL:        entry.Link,
				PostedAt:   published,
				Community:  feedCfg.Name,
			})
		}
		s.debug("feed fetched", "feed", feedCfg.Name, "entries", len(feed.Items))
	}

	return harvest, nil
}

// feedEntryID derives a stable per-feed identifier: GUID when present,
// otherwise a short hash of the link or title.
func feedEntryID(entry *gofeed.Item) string {
	if entry.GUID != "" {
		return hashString(entry.GUID)
	}
	if entry.Link != "" {
		return hashString(entry.Link)
	}
	return hashString(entry.Title)
}

func hashString(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:8])
}

func (s *RSSSource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
