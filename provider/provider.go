package provider

import (
	"context"
)

// ModelType distinguishes embedding from rerank models.
type ModelType string

const (
	ModelTypeEmbedding ModelType = "embedding"
	ModelTypeRerank    ModelType = "rerank"
)

// ClientKind selects the client implementation for a model.
type ClientKind string

const (
	ClientKindOpenAI ClientKind = "openai"
	ClientKindLocal  ClientKind = "local"
)

// ModelConfig describes one configured model.
type ModelConfig struct {
	ID     string     `mapstructure:"id"`
	Type   ModelType  `mapstructure:"type"`
	Client ClientKind `mapstructure:"client"`
	// Model is the provider-side model name.
	Model     string `mapstructure:"model"`
	BaseURL   string `mapstructure:"base_url"`
	APIKeyEnv string `mapstructure:"api_key_env"`
	// MaxChunks caps the number of inputs per embedding call. Zero means no model-side cap.
	MaxChunks int  `mapstructure:"max_chunks"`
	Active    bool `mapstructure:"active"`
}

// Embedder generates embedding vectors for a batch of inputs.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
	Dimension() int
}

// RerankResult is one re-scored candidate, Index refers to the input documents.
type RerankResult struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

// Reranker scores (query, document) pairs with a secondary model.
type Reranker interface {
	Rerank(ctx context.Context, query string, documents []string, topN int) ([]RerankResult, error)
}
