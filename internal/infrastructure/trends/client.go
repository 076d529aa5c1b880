package trends

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"SignalScanner/internal/config"
	"SignalScanner/internal/ports"
)

// Client talks to an external keyword-interest service. Results feed brief
// synthesis as best-effort enrichment; callers swallow failures.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

var _ ports.TrendProvider = (*Client)(nil)

// NewClient creates a reusable HTTP client.
func NewClient(cfg config.TrendsConfig) *Client {
	return &Client{
		endpoint: cfg.URL,
		apiKey:   cfg.APIKey,
		http:     &http.Client{Timeout: 15 * time.Second},
	}
}

// Interest returns a 0-100 interest score per keyword.
func (c *Client) Interest(ctx context.Context, keywords []string) (map[string]int, error) {
	if len(keywords) == 0 {
		return nil, nil
	}
	if c.endpoint == "" {
		return nil, fmt.Errorf("trend provider not configured")
	}

	payload, err := json.Marshal(map[string]any{"keywords": keywords})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	var parsed struct {
		Interest map[string]int `json:"interest"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return parsed.Interest, nil
}
