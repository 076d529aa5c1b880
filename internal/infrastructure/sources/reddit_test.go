package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalScanner/internal/config"
	"SignalScanner/internal/domain"
)

const redditListingBody = `{
	"data": {
		"children": [
			{"data": {
				"id": "abc1",
				"title": "Looking for a simple invoicing tool",
				"selftext": "Everything I tried is bloated.",
				"permalink": "/r/smallbusiness/comments/abc1/",
				"subreddit": "smallbusiness",
				"created_utc": 1756600000,
				"score": 42,
				"num_comments": 17
			}},
			{"data": {"id": "", "title": "no id, skipped"}},
			{"data": {"id": "abc2", "title": ""}}
		]
	}
}`

func TestRedditFetch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/r/smallbusiness/new.json", r.URL.Path)
		assert.Equal(t, "25", r.URL.Query().Get("limit"))
		assert.Equal(t, "signal-scanner/1.0", r.Header.Get("User-Agent"))
		w.Write([]byte(redditListingBody))
	}))
	t.Cleanup(srv.Close)

	source := NewRedditSource(config.RedditConfig{
		BaseURL:     srv.URL,
		UserAgent:   "signal-scanner/1.0",
		Communities: []string{"smallbusiness"},
		PostLimit:   25,
	}, srv.Client(), nil)

	harvest, err := source.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, harvest.Signals, 1, "entries without id or title are skipped")

	sig := harvest.Signals[0]
	assert.Equal(t, domain.SourceReddit, sig.Source)
	assert.Equal(t, "abc1", sig.ExternalID)
	assert.Equal(t, "Looking for a simple invoicing tool", sig.Title)
	assert.Equal(t, "Everything I tried is bloated.", sig.Body)
	assert.Equal(t, srv.URL+"/r/smallbusiness/comments/abc1/", sig.URL)
	assert.Equal(t, time.Unix(1756600000, 0).UTC(), sig.PostedAt)
	assert.Equal(t, 42, sig.Score)
	assert.Equal(t, 17, sig.CommentCount)
	assert.Equal(t, "smallbusiness", sig.Community)
}

func TestRedditFetchFailingCommunity(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	source := NewRedditSource(config.RedditConfig{
		BaseURL:     srv.URL,
		Communities: []string{"golang"},
	}, srv.Client(), nil)

	_, err := source.Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "community golang")
}

func TestRedditName(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "reddit", NewRedditSource(config.RedditConfig{}, nil, nil).Name())
}
