package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"SignalScanner/internal/config"
	"SignalScanner/internal/domain"
	"SignalScanner/internal/ports"
)

const productHuntPageSize = 50

// ProductHuntSource pulls recently launched products from the Product Hunt
// GraphQL API. It contributes only products; launches are context for brief
// synthesis, never staged signals.
type ProductHuntSource struct {
	apiURL string
	token  string
	client *http.Client
	logger *slog.Logger
}

var _ ports.SignalSource = (*ProductHuntSource)(nil)

// NewProductHuntSource wires an HTTP client for the catalog API.
func NewProductHuntSource(cfg config.ProductHuntConfig, client *http.Client, logger *slog.Logger) *ProductHuntSource {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &ProductHuntSource{
		apiURL: cfg.APIURL,
		token:  cfg.Token,
		client: client,
		logger: logger,
	}
}

// Name identifies the source inside fetch-stage error messages.
func (s *ProductHuntSource) Name() string {
	return "producthunt"
}

const launchesQuery = `query($first: Int!) {
  posts(first: $first, order: NEWEST) {
    edges {
      node {
        id name tagline description slug url createdAt
        thumbnail { url }
        topics(first: 1) { edges { node { name } } }
      }
    }
  }
}`

type productHuntResponse struct {
	Data struct {
		Posts struct {
			Edges []struct {
				Node struct {
					ID          string `json:"id"`
					Name        string `json:"name"`
					Tagline     string `json:"tagline"`
					Description string `json:"description"`
					Slug        string `json:"slug"`
					URL         string `json:"url"`
					CreatedAt   string `json:"createdAt"`
					Thumbnail   struct {
						URL string `json:"url"`
					} `json:"thumbnail"`
					Topics struct {
						Edges []struct {
							Node struct {
								Name string `json:"name"`
							} `json:"node"`
						} `json:"edges"`
					} `json:"topics"`
				} `json:"node"`
			} `json:"edges"`
		} `json:"posts"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Fetch retrieves the latest launch page and maps it to raw products.
func (s *ProductHuntSource) Fetch(ctx context.Context) (domain.Harvest, error) {
	if s.token == "" {
		return domain.Harvest{}, fmt.Errorf("producthunt token not configured")
	}

	body, err := json.Marshal(map[string]any{
		"query":     launchesQuery,
		"variables": map[string]any{"first": productHuntPageSize},
	})
	if err != nil {
		return domain.Harvest{}, fmt.Errorf("marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL, bytes.NewReader(body))
	if err != nil {
		return domain.Harvest{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return domain.Harvest{}, fmt.Errorf("request launches: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return domain.Harvest{}, fmt.Errorf("producthunt error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var parsed productHuntResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return domain.Harvest{}, fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Errors) > 0 {
		return domain.Harvest{}, fmt.Errorf("producthunt query failed: %s", parsed.Errors[0].Message)
	}

	var harvest domain.Harvest
	for _, edge := range parsed.Data.Posts.Edges {
		node := edge.Node
		if node.ID == "" || node.Name == "" {
			continue
		}

		launched, _ := time.Parse(time.RFC3339, node.CreatedAt)
		category := ""
		if len(node.Topics.Edges) > 0 {
			category = node.Topics.Edges[0].Node.Name
		}

		harvest.Products = append(harvest.Products, domain.RawProduct{
			Source:      "producthunt",
			ExternalID:  node.ID,
			Name:        node.Name,
			Slug:        node.Slug,
			Tagline:     node.Tagline,
			Description: node.Description,
			URL:         node.URL,
			ImageURL:    node.Thumbnail.URL,
			Category:    category,
			LaunchedAt:  launched.UTC(),
		})
	}

	s.debug("launches fetched", "products", len(harvest.Products))
	return harvest, nil
}

func (s *ProductHuntSource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
