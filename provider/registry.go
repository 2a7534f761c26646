package provider

import (
	"fmt"

	"github.com/siherrmann/retriever/helper"
	"github.com/spf13/viper"
)

// Registry resolves model ids to provider clients.
type Registry struct {
	models map[string]ModelConfig
}

// NewRegistry creates a registry from a list of model configs.
func NewRegistry(models []ModelConfig) *Registry {
	byID := make(map[string]ModelConfig, len(models))
	for _, m := range models {
		byID[m.ID] = m
	}
	return &Registry{models: byID}
}

// LoadRegistry reads the model registry from a config file (yaml, json or toml).
// Expected layout:
//
//	models:
//	  - id: embed-default
//	    type: embedding
//	    client: openai
//	    model: text-embedding-3-small
//	    api_key_env: OPENAI_API_KEY
//	    max_chunks: 10
//	    active: true
func LoadRegistry(path string) (*Registry, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, helper.NewError("read model registry", err)
	}

	var out struct {
		Models []ModelConfig `mapstructure:"models"`
	}
	if err := v.Unmarshal(&out); err != nil {
		return nil, helper.NewError("unmarshal model registry", err)
	}

	return NewRegistry(out.Models), nil
}

// Model returns the config for id. Missing or inactive models are unavailable.
func (r *Registry) Model(id string) (ModelConfig, error) {
	m, ok := r.models[id]
	if !ok {
		return ModelConfig{}, helper.NewUnavailable("resolve model", fmt.Errorf("model %q is not configured", id))
	}
	if !m.Active {
		return ModelConfig{}, helper.NewUnavailable("resolve model", fmt.Errorf("model %q is not active", id))
	}
	return m, nil
}

// Embedder constructs the embedding client for id.
func (r *Registry) Embedder(id string) (Embedder, ModelConfig, error) {
	m, err := r.Model(id)
	if err != nil {
		return nil, ModelConfig{}, err
	}
	if m.Type != ModelTypeEmbedding {
		return nil, ModelConfig{}, helper.NewUnavailable("resolve embedding model", fmt.Errorf("model %q is not an embedding model", id))
	}

	switch m.Client {
	case ClientKindLocal:
		embedder, err := NewLocalEmbedder(m)
		if err != nil {
			return nil, ModelConfig{}, helper.NewUnavailable("create local embedder", err)
		}
		return embedder, m, nil
	default:
		embedder, err := NewOpenAIClient(m)
		if err != nil {
			return nil, ModelConfig{}, helper.NewUnavailable("create embedding client", err)
		}
		return embedder, m, nil
	}
}

// Reranker constructs the rerank client for id.
func (r *Registry) Reranker(id string) (Reranker, error) {
	m, err := r.Model(id)
	if err != nil {
		return nil, err
	}
	if m.Type != ModelTypeRerank {
		return nil, helper.NewUnavailable("resolve rerank model", fmt.Errorf("model %q is not a rerank model", id))
	}

	reranker, err := NewRerankClient(m)
	if err != nil {
		return nil, helper.NewUnavailable("create rerank client", err)
	}
	return reranker, nil
}
