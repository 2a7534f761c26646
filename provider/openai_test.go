package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

func embeddingServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func newTestEmbeddingClient(t *testing.T, baseURL string) *OpenAIClient {
	t.Helper()
	t.Setenv("TEST_PROVIDER_KEY", "test-key")
	client, err := NewOpenAIClient(ModelConfig{
		ID:        "embed-test",
		Type:      ModelTypeEmbedding,
		Model:     "test-embedding-model",
		BaseURL:   baseURL,
		APIKeyEnv: "TEST_PROVIDER_KEY",
	})
	require.NoError(t, err, "NewOpenAIClient should not error")
	return client
}

func TestNewOpenAIClient(t *testing.T) {
	t.Run("Missing API key env fails", func(t *testing.T) {
		t.Setenv("TEST_PROVIDER_KEY", "")
		_, err := NewOpenAIClient(ModelConfig{APIKeyEnv: "TEST_PROVIDER_KEY"})
		assert.Error(t, err, "NewOpenAIClient should error without api key")
	})

	t.Run("Empty base url falls back to default", func(t *testing.T) {
		t.Setenv("TEST_PROVIDER_KEY", "test-key")
		client, err := NewOpenAIClient(ModelConfig{APIKeyEnv: "TEST_PROVIDER_KEY"})
		require.NoError(t, err, "NewOpenAIClient should not error")
		assert.Equal(t, defaultBaseURL, client.baseURL, "baseURL should fall back to default")
	})
}

func TestEmbed(t *testing.T) {
	t.Run("Embeds inputs in order", func(t *testing.T) {
		var received embeddingRequest
		server := embeddingServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/embeddings", r.URL.Path, "request path should be /embeddings")
			assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"), "request should carry bearer token")
			require.NoError(t, json.NewDecoder(r.Body).Decode(&received), "request body should decode")

			type item struct {
				Embedding []float32 `json:"embedding"`
			}
			data := make([]item, len(received.Input))
			for i := range received.Input {
				data[i] = item{Embedding: []float32{float32(i), float32(i) + 0.5}}
			}
			require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"data": data}), "response should encode")
		})

		client := newTestEmbeddingClient(t, server.URL)
		embeddings, err := client.Embed(context.Background(), []string{"first", "second", "third"})
		require.NoError(t, err, "Embed should not error")

		assert.Equal(t, "test-embedding-model", received.Model, "request should carry the model name")
		assert.Equal(t, []string{"first", "second", "third"}, received.Input, "request should carry all inputs")
		require.Len(t, embeddings, 3, "should return one embedding per input")
		assert.Equal(t, []float32{1, 1.5}, embeddings[1], "embeddings should keep input order")
		assert.Equal(t, 2, client.Dimension(), "dimension should be set from the first response")
	})

	t.Run("Empty input fails", func(t *testing.T) {
		client := newTestEmbeddingClient(t, "http://unused")
		_, err := client.Embed(context.Background(), nil)
		assert.Error(t, err, "Embed should error on empty input")
	})

	t.Run("Count mismatch fails", func(t *testing.T) {
		server := embeddingServer(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"data":[{"embedding":[0.1]}]}`)
		})

		client := newTestEmbeddingClient(t, server.URL)
		_, err := client.Embed(context.Background(), []string{"one", "two"})
		require.Error(t, err, "Embed should error on count mismatch")
		assert.Contains(t, err.Error(), "mismatch", "error should name the mismatch")
	})

	t.Run("Empty embedding fails", func(t *testing.T) {
		server := embeddingServer(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"data":[{"embedding":[]}]}`)
		})

		client := newTestEmbeddingClient(t, server.URL)
		_, err := client.Embed(context.Background(), []string{"one"})
		assert.Error(t, err, "Embed should error on an empty embedding")
	})

	t.Run("Retries on rate limit", func(t *testing.T) {
		calls := 0
		server := embeddingServer(t, func(w http.ResponseWriter, r *http.Request) {
			calls++
			if calls < 3 {
				w.Header().Set("Retry-After", "0")
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			fmt.Fprint(w, `{"data":[{"embedding":[0.1,0.2]}]}`)
		})

		client := newTestEmbeddingClient(t, server.URL)
		embeddings, err := client.Embed(context.Background(), []string{"one"})
		require.NoError(t, err, "Embed should succeed after retries")
		assert.Equal(t, 3, calls, "server should have been called three times")
		assert.Len(t, embeddings, 1, "should return one embedding")
	})

	t.Run("Retries on server error and gives up", func(t *testing.T) {
		calls := 0
		server := embeddingServer(t, func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.WriteHeader(http.StatusInternalServerError)
		})

		client := newTestEmbeddingClient(t, server.URL)
		client.maxRetries = 1
		_, err := client.Embed(context.Background(), []string{"one"})
		require.Error(t, err, "Embed should error after exhausting retries")
		assert.Equal(t, 2, calls, "server should have been called initial plus retries times")
	})

	t.Run("Client error is not retried", func(t *testing.T) {
		calls := 0
		server := embeddingServer(t, func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.WriteHeader(http.StatusBadRequest)
		})

		client := newTestEmbeddingClient(t, server.URL)
		_, err := client.Embed(context.Background(), []string{"one"})
		require.Error(t, err, "Embed should error on a client error")
		assert.Equal(t, 1, calls, "client errors should not be retried")
	})
}

func TestRerank(t *testing.T) {
	newTestRerankClient := func(t *testing.T, baseURL string) *RerankClient {
		t.Helper()
		t.Setenv("TEST_PROVIDER_KEY", "test-key")
		client, err := NewRerankClient(ModelConfig{
			ID:        "rerank-test",
			Type:      ModelTypeRerank,
			Model:     "test-rerank-model",
			BaseURL:   baseURL,
			APIKeyEnv: "TEST_PROVIDER_KEY",
		})
		require.NoError(t, err, "NewRerankClient should not error")
		return client
	}

	t.Run("Reranks documents", func(t *testing.T) {
		var received struct {
			Model     string   `json:"model"`
			Query     string   `json:"query"`
			Documents []string `json:"documents"`
			TopN      int      `json:"top_n"`
		}
		server := embeddingServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/rerank", r.URL.Path, "request path should be /rerank")
			require.NoError(t, json.NewDecoder(r.Body).Decode(&received), "request body should decode")
			fmt.Fprint(w, `{"results":[{"index":1,"relevance_score":0.92},{"index":0,"relevance_score":0.4}]}`)
		})

		client := newTestRerankClient(t, server.URL)
		results, err := client.Rerank(context.Background(), "test query", []string{"first", "second"}, 2)
		require.NoError(t, err, "Rerank should not error")

		assert.Equal(t, "test-rerank-model", received.Model, "request should carry the model name")
		assert.Equal(t, "test query", received.Query, "request should carry the query")
		assert.Equal(t, []string{"first", "second"}, received.Documents, "request should carry the documents")
		assert.Equal(t, 2, received.TopN, "request should carry top_n")
		require.Len(t, results, 2, "should return all results")
		assert.Equal(t, 1, results[0].Index, "results should keep provider order")
		assert.InDelta(t, 0.92, results[0].RelevanceScore, 0.0001, "relevance score should be carried")
	})

	t.Run("Empty documents return nil without a request", func(t *testing.T) {
		client := newTestRerankClient(t, "http://unused")
		results, err := client.Rerank(context.Background(), "test query", nil, 2)
		require.NoError(t, err, "Rerank should not error on empty documents")
		assert.Nil(t, results, "results should be nil")
	})

	t.Run("Out of range index fails", func(t *testing.T) {
		server := embeddingServer(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"results":[{"index":5,"relevance_score":0.9}]}`)
		})

		client := newTestRerankClient(t, server.URL)
		_, err := client.Rerank(context.Background(), "test query", []string{"only"}, 1)
		require.Error(t, err, "Rerank should error on an out of range index")
		assert.Contains(t, err.Error(), "out of range", "error should name the invalid index")
	})
}

func TestRetryDelay(t *testing.T) {
	assert.Equal(t, retryDelay(0), retryDelay(-1), "negative attempts should behave like the first attempt")
	assert.Less(t, retryDelay(0), retryDelay(2), "delay should grow with attempts")
	assert.LessOrEqual(t, retryDelay(10).Seconds(), 5.0, "delay should be capped")
}
