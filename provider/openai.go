package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"
)

const (
	defaultBaseURL    = "https://api.openai.com/v1"
	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 3
)

// OpenAIClient is an OpenAI-compatible embeddings client.
type OpenAIClient struct {
	baseURL    string
	apiKey     string
	model      string
	client     *http.Client
	maxRetries int
	dimension  int
}

// NewOpenAIClient creates an embeddings client for the given model config.
// The API key is read from the environment variable named in the config.
func NewOpenAIClient(config ModelConfig) (*OpenAIClient, error) {
	key := os.Getenv(config.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", config.APIKeyEnv)
	}
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &OpenAIClient{
		baseURL:    baseURL,
		apiKey:     key,
		model:      config.Model,
		client:     &http.Client{Timeout: defaultTimeout},
		maxRetries: defaultMaxRetries,
	}, nil
}

// Dimension returns the dimensionality of the produced vectors.
// It is zero until the first successful Embed call.
func (c *OpenAIClient) Dimension() int { return c.dimension }

// Embed returns one embedding vector per input, in input order.
func (c *OpenAIClient) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no inputs to embed")
	}

	body, err := json.Marshal(struct {
		Input []string `json:"input"`
		Model string   `json:"model"`
	}{Input: inputs, Model: c.model})
	if err != nil {
		return nil, err
	}

	payload, err := c.post(ctx, c.baseURL+"/embeddings", body)
	if err != nil {
		return nil, err
	}

	var out struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("decode embeddings response: %w", err)
	}
	if len(out.Data) != len(inputs) {
		return nil, fmt.Errorf("embedding count mismatch: got %d embeddings for %d inputs", len(out.Data), len(inputs))
	}

	embeddings := make([][]float32, len(out.Data))
	for i, d := range out.Data {
		if len(d.Embedding) == 0 {
			return nil, fmt.Errorf("empty embedding at index %d", i)
		}
		embeddings[i] = d.Embedding
	}
	if c.dimension == 0 {
		c.dimension = len(embeddings[0])
	}

	return embeddings, nil
}

// post sends the body with retries on 429 and 5xx, respecting Retry-After.
func (c *OpenAIClient) post(ctx context.Context, url string, body []byte) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			time.Sleep(retryDelay(attempt))
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			delay := retryDelay(attempt)
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if secs, err := strconv.Atoi(ra); err == nil {
					delay = time.Duration(secs) * time.Second
				}
			}
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("provider request failed: %s", resp.Status)
			time.Sleep(delay)
			continue
		}

		payload, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("provider request failed: %s", resp.Status)
		}

		return payload, nil
	}
	return nil, lastErr
}

// retryDelay is an exponential backoff capped at 5s.
func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := 200 * time.Millisecond << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
