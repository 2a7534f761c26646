package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/siherrmann/retriever/core/vectorization"
	"github.com/siherrmann/retriever/helper"
	"github.com/siherrmann/retriever/model"
	loadSql "github.com/siherrmann/retriever/sql"
)

// SegmentsDBHandlerFunctions defines the interface for Segments database operations.
type SegmentsDBHandlerFunctions interface {
	InsertSegment(segment *model.Segment) error
	SelectSegment(rid uuid.UUID) (*model.Segment, error)
	SelectSegmentsByDocument(documentID int64) ([]*model.Segment, error)
	SelectPendingSegments(datasetID int64, documentID *int64) ([]*model.Segment, error)
	MarkSegmentsProcessing(ids []int64) error
	CompleteSegments(updates []vectorization.SegmentEmbedding) error
	FailSegments(ids []int64, message string) error
	FailUnfinishedSegments(datasetID int64, documentID *int64, message string) ([]int64, error)
	ResetFailedSegments(datasetID int64, documentID *int64) (int64, error)
	CountSegmentStatuses(documentID int64) (vectorization.StatusCounts, error)
	SelectSegmentsBySimilarity(datasetID int64, embedding []float32, limit int) ([]*model.Segment, error)
	SelectSegmentsByFullText(datasetID int64, query string, textSearchConfig string, limit int) ([]*model.Segment, error)
	SetSegmentEnabled(rid uuid.UUID, enabled bool) error
	DeleteSegment(rid uuid.UUID) error
}

// SegmentsDBHandler handles segment-related database operations
type SegmentsDBHandler struct {
	db *helper.Database
}

// NewSegmentsDBHandler creates a new segments database handler.
// It initializes the database connection and loads segment-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewSegmentsDBHandler(db *helper.Database, embeddingDim int, force bool) (*SegmentsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	segmentsDbHandler := &SegmentsDBHandler{
		db: db,
	}

	err := loadSql.LoadSegmentsSql(segmentsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load segments sql", err)
	}

	err = segmentsDbHandler.CreateTable(embeddingDim)
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized SegmentsDBHandler")

	return segmentsDbHandler, nil
}

// CreateTable creates the 'segments' table in the database.
// If the table already exists, it does not create it again.
// It also creates all necessary indexes and triggers.
func (h *SegmentsDBHandler) CreateTable(embeddingDim int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_segments($1);`, embeddingDim)
	if err != nil {
		log.Panicf("error initializing segments table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table segments")

	return nil
}

// InsertSegment inserts a new pending segment
func (h *SegmentsDBHandler) InsertSegment(segment *model.Segment) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_segment($1, $2, $3, $4, $5, $6)`,
		segment.DocumentID,
		segment.DatasetID,
		segment.Content,
		segment.ChunkIndex,
		segment.ContentLength,
		pq.Array(segment.Children),
	)

	err := scanSegment(row, segment)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// SelectSegment retrieves a segment by RID
func (h *SegmentsDBHandler) SelectSegment(rid uuid.UUID) (*model.Segment, error) {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_segment($1)`,
		rid,
	)

	segment := &model.Segment{}
	err := scanSegment(row, segment)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, helper.NewNotFound("select segment", err)
	} else if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return segment, nil
}

// SelectSegmentsByDocument retrieves all segments of a document in chunk order
func (h *SegmentsDBHandler) SelectSegmentsByDocument(documentID int64) ([]*model.Segment, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_segments_by_document($1)`,
		documentID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var segments []*model.Segment
	for rows.Next() {
		segment := &model.Segment{}
		err := scanSegment(rows, segment)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		segments = append(segments, segment)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return segments, nil
}

// SelectPendingSegments retrieves pending segments of a dataset, or of a
// single document when documentID is not nil
func (h *SegmentsDBHandler) SelectPendingSegments(datasetID int64, documentID *int64) ([]*model.Segment, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_pending_segments($1, $2)`,
		datasetID,
		documentID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var segments []*model.Segment
	for rows.Next() {
		segment := &model.Segment{}
		err := scanSegment(rows, segment)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		segments = append(segments, segment)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return segments, nil
}

// MarkSegmentsProcessing moves pending segments to processing
func (h *SegmentsDBHandler) MarkSegmentsProcessing(ids []int64) error {
	_, err := h.db.Instance.Exec(
		`SELECT mark_segments_processing($1)`,
		pq.Array(ids),
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// CompleteSegments stores embeddings and moves the segments to completed
func (h *SegmentsDBHandler) CompleteSegments(updates []vectorization.SegmentEmbedding) error {
	for _, update := range updates {
		_, err := h.db.Instance.Exec(
			`SELECT complete_segment($1, $2, $3, $4)`,
			update.ID,
			pgvector.NewVector(update.Embedding),
			update.Dimension,
			update.ModelID,
		)
		if err != nil {
			return helper.NewError("exec", err)
		}
	}
	return nil
}

// FailSegments moves segments to failed and records the error message
func (h *SegmentsDBHandler) FailSegments(ids []int64, message string) error {
	_, err := h.db.Instance.Exec(
		`SELECT fail_segments($1, $2)`,
		pq.Array(ids),
		message,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// FailUnfinishedSegments fails everything still pending or processing and
// returns the ids of the documents that were touched
func (h *SegmentsDBHandler) FailUnfinishedSegments(datasetID int64, documentID *int64, message string) ([]int64, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM fail_unfinished_segments($1, $2, $3)`,
		datasetID,
		documentID,
		message,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var documentIDs []int64
	for rows.Next() {
		var id int64
		err := rows.Scan(&id)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		documentIDs = append(documentIDs, id)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return documentIDs, nil
}

// ResetFailedSegments moves failed segments back to pending and returns the
// number of rows reset
func (h *SegmentsDBHandler) ResetFailedSegments(datasetID int64, documentID *int64) (int64, error) {
	var count int64
	err := h.db.Instance.QueryRow(
		`SELECT reset_failed_segments($1, $2)`,
		datasetID,
		documentID,
	).Scan(&count)
	if err != nil {
		return 0, helper.NewError("scan", err)
	}
	return count, nil
}

// CountSegmentStatuses counts the segments of a document per status
func (h *SegmentsDBHandler) CountSegmentStatuses(documentID int64) (vectorization.StatusCounts, error) {
	var counts vectorization.StatusCounts
	err := h.db.Instance.QueryRow(
		`SELECT * FROM count_segment_statuses($1)`,
		documentID,
	).Scan(
		&counts.Pending,
		&counts.Processing,
		&counts.Completed,
		&counts.Failed,
	)
	if err != nil {
		return vectorization.StatusCounts{}, helper.NewError("scan", err)
	}
	return counts, nil
}

// SelectSegmentsBySimilarity performs vector similarity search over the
// completed and enabled segments of a dataset
func (h *SegmentsDBHandler) SelectSegmentsBySimilarity(datasetID int64, embedding []float32, limit int) ([]*model.Segment, error) {
	embeddingVector := pgvector.NewVector(embedding)

	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_segments_by_similarity($1, $2, $3)`,
		datasetID,
		embeddingVector,
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var results []*model.Segment
	for rows.Next() {
		segment := &model.Segment{}
		err := scanSegmentWithScore(rows, segment, &segment.Similarity)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		results = append(results, segment)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return results, nil
}

// SelectSegmentsByFullText performs full text search over the enabled
// segments of a dataset with the given text search configuration
func (h *SegmentsDBHandler) SelectSegmentsByFullText(datasetID int64, query string, textSearchConfig string, limit int) ([]*model.Segment, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_segments_by_full_text($1, $2, $3, $4)`,
		datasetID,
		query,
		textSearchConfig,
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var results []*model.Segment
	for rows.Next() {
		segment := &model.Segment{}
		err := scanSegmentWithScore(rows, segment, &segment.Rank)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		results = append(results, segment)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return results, nil
}

// SetSegmentEnabled toggles a segment in and out of retrieval
func (h *SegmentsDBHandler) SetSegmentEnabled(rid uuid.UUID, enabled bool) error {
	_, err := h.db.Instance.Exec(
		`SELECT set_segment_enabled($1, $2)`,
		rid,
		enabled,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// DeleteSegment deletes a segment by RID and rolls it out of the document
// and dataset counters
func (h *SegmentsDBHandler) DeleteSegment(rid uuid.UUID) error {
	_, err := h.db.Instance.Exec(
		`SELECT delete_segment($1)`,
		rid,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// ChangeIndexType changes the vector index type between HNSW and IVFFlat
// indexType: "hnsw" or "ivfflat"
// params: optional parameters for index creation
//   - For HNSW: "m" (int, default 16), "ef_construction" (int, default 64)
//   - For IVFFlat: "lists" (int, default 100)
func (h *SegmentsDBHandler) ChangeIndexType(ctx context.Context, indexType string, params map[string]interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	// Drop existing index
	_, err := h.db.Instance.ExecContext(ctx, `DROP INDEX IF EXISTS idx_segments_embedding;`)
	if err != nil {
		return helper.NewError("drop index", err)
	}

	h.db.Logger.Info("Dropped existing vector index")

	// Create new index based on type
	var createIndexSQL string

	switch indexType {
	case "hnsw":
		m := 16
		efConstruction := 64

		if mVal, ok := params["m"].(int); ok {
			m = mVal
		}
		if efVal, ok := params["ef_construction"].(int); ok {
			efConstruction = efVal
		}

		createIndexSQL = fmt.Sprintf(
			`CREATE INDEX idx_segments_embedding ON segments USING hnsw (embedding vector_cosine_ops) WITH (m = %d, ef_construction = %d);`,
			m, efConstruction,
		)

	case "ivfflat":
		lists := 100
		if listsVal, ok := params["lists"].(int); ok {
			lists = listsVal
		}

		createIndexSQL = fmt.Sprintf(
			`CREATE INDEX idx_segments_embedding ON segments USING ivfflat (embedding vector_cosine_ops) WITH (lists = %d);`,
			lists,
		)

	default:
		return helper.NewError("change index type", fmt.Errorf("unsupported index type: %s (use 'hnsw' or 'ivfflat')", indexType))
	}

	// Create the new index
	_, err = h.db.Instance.ExecContext(ctx, createIndexSQL)
	if err != nil {
		return helper.NewError("create index", err)
	}

	h.db.Logger.Info(fmt.Sprintf("Created %s index with params: %v", indexType, params))

	return nil
}

func scanSegment(row rowScanner, segment *model.Segment) error {
	return row.Scan(
		&segment.ID,
		&segment.RID,
		&segment.DocumentID,
		&segment.DatasetID,
		&segment.Content,
		&segment.ChunkIndex,
		&segment.ContentLength,
		pq.Array(&segment.Children),
		&segment.VectorDimension,
		&segment.EmbeddingModelID,
		&segment.Status,
		&segment.Error,
		&segment.Enabled,
		&segment.CreatedAt,
		&segment.UpdatedAt,
	)
}

func scanSegmentWithScore(row rowScanner, segment *model.Segment, score **float64) error {
	return row.Scan(
		&segment.ID,
		&segment.RID,
		&segment.DocumentID,
		&segment.DatasetID,
		&segment.Content,
		&segment.ChunkIndex,
		&segment.ContentLength,
		pq.Array(&segment.Children),
		&segment.VectorDimension,
		&segment.EmbeddingModelID,
		&segment.Status,
		&segment.Error,
		&segment.Enabled,
		&segment.CreatedAt,
		&segment.UpdatedAt,
		score,
	)
}
