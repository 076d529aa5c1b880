package sources

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalScanner/internal/config"
)

const productHuntBody = `{
	"data": {
		"posts": {
			"edges": [
				{"node": {
					"id": "ph-1",
					"name": "LaunchPad",
					"tagline": "Ship side projects faster",
					"description": "A toolkit for launches.",
					"slug": "launchpad",
					"url": "https://producthunt.example/posts/launchpad",
					"createdAt": "2026-08-30T12:00:00Z",
					"thumbnail": {"url": "https://example.com/t.png"},
					"topics": {"edges": [{"node": {"name": "Productivity"}}]}
				}},
				{"node": {"id": "", "name": "skipped"}}
			]
		}
	}
}`

func TestProductHuntFetch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer ph-token", r.Header.Get("Authorization"))

		var req struct {
			Variables map[string]any `json:"variables"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.EqualValues(t, 50, req.Variables["first"])

		w.Write([]byte(productHuntBody))
	}))
	t.Cleanup(srv.Close)

	source := NewProductHuntSource(config.ProductHuntConfig{
		APIURL: srv.URL,
		Token:  "ph-token",
	}, srv.Client(), nil)

	harvest, err := source.Fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, harvest.Signals, "launches are context only, never signals")

	require.Len(t, harvest.Products, 1)
	product := harvest.Products[0]
	assert.Equal(t, "producthunt", product.Source)
	assert.Equal(t, "ph-1", product.ExternalID)
	assert.Equal(t, "LaunchPad", product.Name)
	assert.Equal(t, "Productivity", product.Category)
	assert.Equal(t, 2026, product.LaunchedAt.Year())
}

func TestProductHuntQueryErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errors": [{"message": "rate limit exceeded"}]}`))
	}))
	t.Cleanup(srv.Close)

	source := NewProductHuntSource(config.ProductHuntConfig{APIURL: srv.URL, Token: "x"}, srv.Client(), nil)

	_, err := source.Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit exceeded")
}

func TestProductHuntMissingToken(t *testing.T) {
	t.Parallel()

	source := NewProductHuntSource(config.ProductHuntConfig{APIURL: "http://unused"}, nil, nil)
	_, err := source.Fetch(context.Background())
	require.Error(t, err)
}
