package model

import (
	"time"

	"github.com/google/uuid"
)

// DocumentStatus is the aggregate vectorization state of a document.
type DocumentStatus string

const (
	DocumentStatusPending    DocumentStatus = "pending"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusCompleted  DocumentStatus = "completed"
	DocumentStatusFailed     DocumentStatus = "failed"
	// DocumentStatusError marks partial failure, some segments completed and some failed.
	DocumentStatusError DocumentStatus = "error"
)

// Document represents one uploaded file inside a dataset
type Document struct {
	ID               int64          `json:"id"`
	RID              uuid.UUID      `json:"rid"`
	DatasetID        int64          `json:"dataset_id"`
	FileID           string         `json:"file_id"`
	Name             string         `json:"name"`
	Status           DocumentStatus `json:"status"`
	Progress         int            `json:"progress"`
	ChunkCount       int            `json:"chunk_count"`
	CharacterCount   int            `json:"character_count"`
	EmbeddingModelID string         `json:"embedding_model_id,omitempty"`
	Error            string         `json:"error,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}
