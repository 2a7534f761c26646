package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/retriever/helper"
	"github.com/siherrmann/retriever/model"
	loadSql "github.com/siherrmann/retriever/sql"
)

// DocumentsDBHandlerFunctions defines the interface for Documents database operations.
type DocumentsDBHandlerFunctions interface {
	InsertDocument(document *model.Document) error
	SelectDocument(rid uuid.UUID) (*model.Document, error)
	SelectDocumentByID(id int64) (*model.Document, error)
	SelectDocumentsByDataset(datasetID int64, lastCreatedAt time.Time, count int) ([]*model.Document, error)
	UpdateDocumentProgress(documentID int64, status model.DocumentStatus, progress int, message string, embeddingModelID string) error
	UpdateDocumentChunkCount(id int64, chunkCount int) error
	DeleteDocument(rid uuid.UUID) error
}

// DocumentsDBHandler handles document-related database operations
type DocumentsDBHandler struct {
	db *helper.Database
}

// NewDocumentsDBHandler creates a new documents database handler.
// It initializes the database connection and loads document-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewDocumentsDBHandler(db *helper.Database, force bool) (*DocumentsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	documentsDbHandler := &DocumentsDBHandler{
		db: db,
	}

	err := loadSql.LoadDocumentsSql(documentsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load documents sql", err)
	}

	err = documentsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized DocumentsDBHandler")

	return documentsDbHandler, nil
}

// CreateTable creates the 'documents' table in the database.
// If the table already exists, it does not create it again.
func (h *DocumentsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_documents();`)
	if err != nil {
		log.Panicf("error initializing documents table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table documents")

	return nil
}

// InsertDocument inserts a new pending document and bumps the dataset
// document counter in the same transaction.
func (h *DocumentsDBHandler) InsertDocument(document *model.Document) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_document($1, $2, $3, $4)`,
		document.DatasetID,
		document.FileID,
		document.Name,
		document.CharacterCount,
	)

	err := scanDocument(row, document)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// SelectDocument retrieves a document by RID
func (h *DocumentsDBHandler) SelectDocument(rid uuid.UUID) (*model.Document, error) {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_document($1)`,
		rid,
	)

	document := &model.Document{}
	err := scanDocument(row, document)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, helper.NewNotFound("select document", err)
	} else if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return document, nil
}

// SelectDocumentByID retrieves a document by internal ID
func (h *DocumentsDBHandler) SelectDocumentByID(id int64) (*model.Document, error) {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_document_by_id($1)`,
		id,
	)

	document := &model.Document{}
	err := scanDocument(row, document)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, helper.NewNotFound("select document", err)
	} else if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return document, nil
}

// SelectDocumentsByDataset retrieves documents of a dataset created after
// lastCreatedAt, oldest first
func (h *DocumentsDBHandler) SelectDocumentsByDataset(datasetID int64, lastCreatedAt time.Time, count int) ([]*model.Document, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_documents_by_dataset($1, $2, $3)`,
		datasetID,
		lastCreatedAt,
		count,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var documents []*model.Document
	for rows.Next() {
		document := &model.Document{}
		err := scanDocument(rows, document)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		documents = append(documents, document)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return documents, nil
}

// UpdateDocumentProgress updates the aggregate vectorization state of a document
func (h *DocumentsDBHandler) UpdateDocumentProgress(documentID int64, status model.DocumentStatus, progress int, message string, embeddingModelID string) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM update_document_progress($1, $2, $3, $4, $5)`,
		documentID,
		status,
		progress,
		message,
		embeddingModelID,
	)

	document := &model.Document{}
	err := scanDocument(row, document)
	if errors.Is(err, sql.ErrNoRows) {
		return helper.NewNotFound("update document progress", err)
	} else if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// UpdateDocumentChunkCount sets the chunk count after segmentation
func (h *DocumentsDBHandler) UpdateDocumentChunkCount(id int64, chunkCount int) error {
	_, err := h.db.Instance.Exec(
		`SELECT update_document_chunk_count($1, $2)`,
		id,
		chunkCount,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// DeleteDocument deletes a document by RID and rolls its contribution out of
// the dataset counters, segments cascade
func (h *DocumentsDBHandler) DeleteDocument(rid uuid.UUID) error {
	_, err := h.db.Instance.Exec(
		`SELECT delete_document($1)`,
		rid,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

func scanDocument(row rowScanner, document *model.Document) error {
	return row.Scan(
		&document.ID,
		&document.RID,
		&document.DatasetID,
		&document.FileID,
		&document.Name,
		&document.Status,
		&document.Progress,
		&document.ChunkCount,
		&document.CharacterCount,
		&document.EmbeddingModelID,
		&document.Error,
		&document.CreatedAt,
		&document.UpdatedAt,
	)
}
