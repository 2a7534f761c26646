package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/retriever/helper"
)

// RetrievalMode selects how a dataset answers queries.
type RetrievalMode string

const (
	RetrievalModeVector   RetrievalMode = "vector"
	RetrievalModeFullText RetrievalMode = "full_text"
	RetrievalModeHybrid   RetrievalMode = "hybrid"
)

// HybridStrategy selects how hybrid retrieval fuses the two sub-searches.
type HybridStrategy string

const (
	HybridStrategyWeighted HybridStrategy = "weighted_score"
	HybridStrategyRerank   HybridStrategy = "rerank"
)

// weightSumTolerance is the allowed deviation of semantic+keyword from 1.
const weightSumTolerance = 0.01

// WeightConfig holds the fusion weights for weighted hybrid retrieval.
type WeightConfig struct {
	SemanticWeight float64 `json:"semantic_weight"`
	KeywordWeight  float64 `json:"keyword_weight"`
}

// RerankConfig enables re-scoring of results through a rerank model.
type RerankConfig struct {
	Enabled bool   `json:"enabled"`
	ModelID string `json:"model_id,omitempty"`
}

// RetrievalConfig represents the persisted query configuration of a dataset.
type RetrievalConfig struct {
	TopK                  int            `json:"top_k"`
	ScoreThreshold        float64        `json:"score_threshold"`
	ScoreThresholdEnabled bool           `json:"score_threshold_enabled"`
	Weights               WeightConfig   `json:"weights"`
	Rerank                RerankConfig   `json:"rerank"`
	Strategy              HybridStrategy `json:"strategy,omitempty"`
}

// DefaultRetrievalConfig returns a sensible default configuration
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		TopK:                  5,
		ScoreThreshold:        0.0,
		ScoreThresholdEnabled: false,
		Weights: WeightConfig{
			SemanticWeight: 0.7,
			KeywordWeight:  0.3,
		},
		Rerank:   RerankConfig{Enabled: false},
		Strategy: HybridStrategyWeighted,
	}
}

// Validate checks the configuration for the given retrieval mode.
func (c *RetrievalConfig) Validate(mode RetrievalMode) error {
	switch mode {
	case RetrievalModeVector, RetrievalModeFullText:
	case RetrievalModeHybrid:
		switch c.Strategy {
		case HybridStrategyWeighted:
			sum := c.Weights.SemanticWeight + c.Weights.KeywordWeight
			if math.Abs(sum-1.0) > weightSumTolerance {
				return helper.NewBadRequest("validate retrieval config", fmt.Errorf("semantic and keyword weights must sum to 1, got %.3f", sum))
			}
		case HybridStrategyRerank:
			if c.Rerank.ModelID == "" {
				return helper.NewBadRequest("validate retrieval config", fmt.Errorf("rerank strategy requires a rerank model id"))
			}
		default:
			return helper.NewBadRequest("validate retrieval config", fmt.Errorf("unknown hybrid strategy %q", c.Strategy))
		}
	default:
		return helper.NewBadRequest("validate retrieval config", fmt.Errorf("unknown retrieval mode %q", mode))
	}

	if c.Rerank.Enabled && c.Rerank.ModelID == "" {
		return helper.NewBadRequest("validate retrieval config", fmt.Errorf("rerank enabled without a rerank model id"))
	}

	if c.TopK <= 0 {
		return helper.NewBadRequest("validate retrieval config", fmt.Errorf("top_k must be positive, got %d", c.TopK))
	}

	return nil
}

// Value implements the driver.Valuer interface for database storage
func (c RetrievalConfig) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// Scan implements the sql.Scanner interface for database retrieval
func (c *RetrievalConfig) Scan(value interface{}) error {
	if value == nil {
		*c = DefaultRetrievalConfig()
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return helper.NewError("byte assertion", fmt.Errorf("type assertion to []byte failed"))
	}
	return json.Unmarshal(b, c)
}

// DocumentMode selects between flat and hierarchical segmentation.
type DocumentMode string

const (
	DocumentModeNormal       DocumentMode = "normal"
	DocumentModeHierarchical DocumentMode = "hierarchical"
)

// IndexingConfig represents the persisted segmentation configuration of a dataset.
type IndexingConfig struct {
	DocumentMode DocumentMode        `json:"document_mode"`
	Segmentation SegmentationConfig  `json:"segmentation"`
	Hierarchical *HierarchicalConfig `json:"hierarchical,omitempty"`
}

// Value implements the driver.Valuer interface for database storage
func (c IndexingConfig) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// Scan implements the sql.Scanner interface for database retrieval
func (c *IndexingConfig) Scan(value interface{}) error {
	if value == nil {
		*c = IndexingConfig{DocumentMode: DocumentModeNormal, Segmentation: DefaultSegmentationConfig()}
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return helper.NewError("byte assertion", fmt.Errorf("type assertion to []byte failed"))
	}
	return json.Unmarshal(b, c)
}

// Dataset represents a collection of documents sharing one indexing and retrieval setup
type Dataset struct {
	ID               int64           `json:"id"`
	RID              uuid.UUID       `json:"rid"`
	Name             string          `json:"name"`
	RetrievalMode    RetrievalMode   `json:"retrieval_mode"`
	RetrievalConfig  RetrievalConfig `json:"retrieval_config"`
	IndexingConfig   IndexingConfig  `json:"indexing_config"`
	EmbeddingModelID string          `json:"embedding_model_id"`
	DocumentCount    int64           `json:"document_count"`
	ChunkCount       int64           `json:"chunk_count"`
	StorageSize      int64           `json:"storage_size"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}
