package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
)

// RerankClient calls an OpenAI-compatible rerank endpoint.
type RerankClient struct {
	*OpenAIClient
}

// NewRerankClient creates a rerank client for the given model config.
func NewRerankClient(config ModelConfig) (*RerankClient, error) {
	key := os.Getenv(config.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", config.APIKeyEnv)
	}
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &RerankClient{
		OpenAIClient: &OpenAIClient{
			baseURL:    baseURL,
			apiKey:     key,
			model:      config.Model,
			client:     &http.Client{Timeout: defaultTimeout},
			maxRetries: defaultMaxRetries,
		},
	}, nil
}

// Rerank scores every document against the query and returns the results
// ordered by relevance, limited to topN when topN is positive.
func (c *RerankClient) Rerank(ctx context.Context, query string, documents []string, topN int) ([]RerankResult, error) {
	if len(documents) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(struct {
		Model     string   `json:"model"`
		Query     string   `json:"query"`
		Documents []string `json:"documents"`
		TopN      int      `json:"top_n,omitempty"`
	}{Model: c.model, Query: query, Documents: documents, TopN: topN})
	if err != nil {
		return nil, err
	}

	payload, err := c.post(ctx, c.baseURL+"/rerank", body)
	if err != nil {
		return nil, err
	}

	var out struct {
		Results []RerankResult `json:"results"`
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}

	for _, r := range out.Results {
		if r.Index < 0 || r.Index >= len(documents) {
			return nil, fmt.Errorf("rerank result index %d out of range", r.Index)
		}
	}

	return out.Results, nil
}
