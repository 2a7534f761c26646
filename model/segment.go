package model

import (
	"time"

	"github.com/google/uuid"
)

// SegmentStatus is the vectorization state of a single segment.
// Transitions: pending -> processing -> completed|failed, failed -> pending via reset.
type SegmentStatus string

const (
	SegmentStatusPending    SegmentStatus = "pending"
	SegmentStatusProcessing SegmentStatus = "processing"
	SegmentStatusCompleted  SegmentStatus = "completed"
	SegmentStatusFailed     SegmentStatus = "failed"
)

// Segment represents one retrievable unit of document text.
// Embedding is non-nil exactly when Status is completed.
type Segment struct {
	ID               int64         `json:"id"`
	RID              uuid.UUID     `json:"rid"`
	DocumentID       int64         `json:"document_id"`
	DatasetID        int64         `json:"dataset_id"`
	Content          string        `json:"content"`
	ChunkIndex       int           `json:"chunk_index"`
	ContentLength    int           `json:"content_length"`
	Children         []string      `json:"children,omitempty"`
	Embedding        []float32     `json:"embedding,omitempty"`
	VectorDimension  int           `json:"vector_dimension,omitempty"`
	EmbeddingModelID string        `json:"embedding_model_id,omitempty"`
	Status           SegmentStatus `json:"status"`
	Error            string        `json:"error,omitempty"`
	Enabled          bool          `json:"enabled"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
	// Results
	Similarity *float64 `json:"similarity,omitempty"`
	Rank       *float64 `json:"rank,omitempty"`
}
