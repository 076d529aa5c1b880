package insight

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"SignalScanner/internal/config"
)

// client wraps the chat-completion and embedding endpoints of an
// OpenAI-compatible backend behind a shared rate limiter.
type client struct {
	endpoint       string
	embedEndpoint  string
	model          string
	embeddingModel string
	apiKey         string
	httpClient     *http.Client
	limiter        *rate.Limiter
}

func newClient(cfg config.InsightConfig) *client {
	rpm := cfg.RequestsPerMin
	if rpm <= 0 {
		rpm = 60
	}
	return &client{
		endpoint:       cfg.Endpoint,
		embedEndpoint:  cfg.EmbeddingEndpoint,
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		apiKey:         cfg.APIKey,
		httpClient:     &http.Client{Timeout: 90 * time.Second},
		limiter:        rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1),
	}
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// complete sends one system+user exchange and returns the raw text content.
func (c *client) complete(ctx context.Context, system, user string) (string, error) {
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return "", fmt.Errorf("insight client misconfigured")
	}

	body, err := json.Marshal(map[string]any{
		"model":       c.model,
		"temperature": 0.2,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal completion payload: %w", err)
	}

	raw, err := c.post(ctx, c.endpoint, body)
	if err != nil {
		return "", err
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode completion: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("model returned no choices")
	}

	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("model returned empty content")
	}
	return content, nil
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// embed returns one vector per input text, in input order.
func (c *client) embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if c.apiKey == "" || c.embedEndpoint == "" || c.embeddingModel == "" {
		return nil, fmt.Errorf("embedding client misconfigured")
	}

	body, err := json.Marshal(map[string]any{
		"model": c.embeddingModel,
		"input": texts,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding payload: %w", err)
	}

	raw, err := c.post(ctx, c.embedEndpoint, body)
	if err != nil {
		return nil, err
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode embeddings: %w", err)
	}

	vectors := make([][]float64, len(texts))
	for _, item := range parsed.Data {
		if item.Index < 0 || item.Index >= len(texts) {
			return nil, fmt.Errorf("embedding index %d out of range for %d inputs", item.Index, len(texts))
		}
		vectors[item.Index] = item.Embedding
	}
	for i, vec := range vectors {
		if len(vec) == 0 {
			return nil, fmt.Errorf("missing embedding for input %d", i)
		}
	}

	return vectors, nil
}

func (c *client) post(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("insight backend %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	return payload, nil
}

// stripFences removes a Markdown code fence the model may wrap JSON in.
func stripFences(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}
