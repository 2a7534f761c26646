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

// DatasetsDBHandlerFunctions defines the interface for Datasets database operations.
type DatasetsDBHandlerFunctions interface {
	InsertDataset(dataset *model.Dataset) error
	SelectDataset(rid uuid.UUID) (*model.Dataset, error)
	SelectDatasetByID(id int64) (*model.Dataset, error)
	SelectAllDatasets(lastCreatedAt time.Time, count int) ([]*model.Dataset, error)
	UpdateDatasetConfig(dataset *model.Dataset) error
	IncrementDatasetCounters(id int64, documents int64, chunks int64, size int64) error
	DeleteDataset(rid uuid.UUID) error
}

// DatasetsDBHandler handles dataset-related database operations
type DatasetsDBHandler struct {
	db *helper.Database
}

// NewDatasetsDBHandler creates a new datasets database handler.
// It initializes the database connection and loads dataset-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewDatasetsDBHandler(db *helper.Database, force bool) (*DatasetsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	datasetsDbHandler := &DatasetsDBHandler{
		db: db,
	}

	err := loadSql.LoadDatasetsSql(datasetsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load datasets sql", err)
	}

	err = datasetsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized DatasetsDBHandler")

	return datasetsDbHandler, nil
}

// CreateTable creates the 'datasets' table in the database.
// If the table already exists, it does not create it again.
func (h *DatasetsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_datasets();`)
	if err != nil {
		log.Panicf("error initializing datasets table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table datasets")

	return nil
}

// InsertDataset inserts a new dataset
func (h *DatasetsDBHandler) InsertDataset(dataset *model.Dataset) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_dataset($1, $2, $3, $4, $5)`,
		dataset.Name,
		dataset.RetrievalMode,
		dataset.RetrievalConfig,
		dataset.IndexingConfig,
		dataset.EmbeddingModelID,
	)

	err := scanDataset(row, dataset)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// SelectDataset retrieves a dataset by RID
func (h *DatasetsDBHandler) SelectDataset(rid uuid.UUID) (*model.Dataset, error) {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_dataset($1)`,
		rid,
	)

	dataset := &model.Dataset{}
	err := scanDataset(row, dataset)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, helper.NewNotFound("select dataset", err)
	} else if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return dataset, nil
}

// SelectDatasetByID retrieves a dataset by internal ID
func (h *DatasetsDBHandler) SelectDatasetByID(id int64) (*model.Dataset, error) {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_dataset_by_id($1)`,
		id,
	)

	dataset := &model.Dataset{}
	err := scanDataset(row, dataset)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, helper.NewNotFound("select dataset", err)
	} else if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return dataset, nil
}

// SelectAllDatasets retrieves datasets created after lastCreatedAt, oldest first
func (h *DatasetsDBHandler) SelectAllDatasets(lastCreatedAt time.Time, count int) ([]*model.Dataset, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_all_datasets($1, $2)`,
		lastCreatedAt,
		count,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var datasets []*model.Dataset
	for rows.Next() {
		dataset := &model.Dataset{}
		err := scanDataset(rows, dataset)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		datasets = append(datasets, dataset)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return datasets, nil
}

// UpdateDatasetConfig updates the retrieval configuration of a dataset
func (h *DatasetsDBHandler) UpdateDatasetConfig(dataset *model.Dataset) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM update_dataset_config($1, $2, $3, $4)`,
		dataset.RID,
		dataset.RetrievalMode,
		dataset.RetrievalConfig,
		dataset.EmbeddingModelID,
	)

	err := scanDataset(row, dataset)
	if errors.Is(err, sql.ErrNoRows) {
		return helper.NewNotFound("update dataset config", err)
	} else if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// IncrementDatasetCounters adjusts the denormalized dataset counters.
// Deltas may be negative.
func (h *DatasetsDBHandler) IncrementDatasetCounters(id int64, documents int64, chunks int64, size int64) error {
	_, err := h.db.Instance.Exec(
		`SELECT increment_dataset_counters($1, $2, $3, $4)`,
		id,
		documents,
		chunks,
		size,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// DeleteDataset deletes a dataset by RID, documents and segments cascade
func (h *DatasetsDBHandler) DeleteDataset(rid uuid.UUID) error {
	_, err := h.db.Instance.Exec(
		`SELECT delete_dataset($1)`,
		rid,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDataset(row rowScanner, dataset *model.Dataset) error {
	return row.Scan(
		&dataset.ID,
		&dataset.RID,
		&dataset.Name,
		&dataset.RetrievalMode,
		&dataset.RetrievalConfig,
		&dataset.IndexingConfig,
		&dataset.EmbeddingModelID,
		&dataset.DocumentCount,
		&dataset.ChunkCount,
		&dataset.StorageSize,
		&dataset.CreatedAt,
		&dataset.UpdatedAt,
	)
}
