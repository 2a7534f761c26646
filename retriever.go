package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/siherrmann/retriever/core/retrieval"
	"github.com/siherrmann/retriever/core/segmentation"
	"github.com/siherrmann/retriever/core/vectorization"
	"github.com/siherrmann/retriever/database"
	"github.com/siherrmann/retriever/helper"
	"github.com/siherrmann/retriever/model"
	"github.com/siherrmann/retriever/provider"
	"github.com/siherrmann/retriever/queue"
	loadSql "github.com/siherrmann/retriever/sql"
)

// Retriever provides a unified interface to all database handlers, the
// segmentation and retrieval engines and the vectorization queue
type Retriever struct {
	DB           *helper.Database
	Datasets     *database.DatasetsDBHandler
	Documents    *database.DocumentsDBHandler
	Segments     *database.SegmentsDBHandler
	Registry     *provider.Registry
	Segmentation *segmentation.Engine
	Engine       *retrieval.Engine
	Worker       *vectorization.Worker
	Queue        *queue.Dispatcher
	// Logging
	log *slog.Logger
}

// NewRetriever creates a new Retriever instance with all handlers initialized.
// files resolves the file ids passed to IndexSegments, embeddingDim must match
// the dimension of the embedding models in the registry.
func NewRetriever(config *helper.DatabaseConfiguration, registry *provider.Registry, files segmentation.FileResolver, embeddingDim int) (*Retriever, error) {
	// Logger
	opts := helper.PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{
			Level: slog.LevelInfo,
		},
	}
	logger := slog.New(helper.NewPrettyHandler(os.Stdout, opts))

	// Initialize database
	db := helper.NewDatabase("retriever", config, logger)
	err := loadSql.Init(db.Instance)
	if err != nil {
		return nil, helper.NewError("initialize database extensions", err)
	}

	// Create all handlers in the correct order (datasets first, then
	// documents, then segments). force=false to not reload if functions
	// already exist.
	datasets, err := database.NewDatasetsDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create datasets handler", err)
	}

	documents, err := database.NewDocumentsDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create documents handler", err)
	}

	segments, err := database.NewSegmentsDBHandler(db, embeddingDim, false)
	if err != nil {
		return nil, helper.NewError("create segments handler", err)
	}

	// Create engines and worker over the database handlers
	engine := retrieval.NewEngine(datasets, segments, registry, logger)
	worker := vectorization.NewWorker(datasets, documents, segments, registry, logger)
	segmenter := segmentation.NewEngine(files, logger)

	// The dispatcher consumes jobs one at a time, which keeps at most one
	// writer per document.
	dispatcher := queue.NewDispatcher(worker.Process, 0, logger)

	return &Retriever{
		DB:           db,
		Datasets:     datasets,
		Documents:    documents,
		Segments:     segments,
		Registry:     registry,
		Segmentation: segmenter,
		Engine:       engine,
		Worker:       worker,
		Queue:        dispatcher,
		log:          logger,
	}, nil
}

// Close drains the vectorization queue and closes the database connection
func (r *Retriever) Close() error {
	if r.Queue != nil {
		r.Queue.Close()
	}
	if r.DB != nil && r.DB.Instance != nil {
		return r.DB.Instance.Close()
	}
	return nil
}

// CreateDataset creates a new dataset. A nil retrievalConfig falls back to
// the defaults, an empty indexingConfig falls back to normal mode with the
// default segmentation rules.
func (r *Retriever) CreateDataset(name string, mode model.RetrievalMode, retrievalConfig *model.RetrievalConfig, indexingConfig *model.IndexingConfig, embeddingModelID string) (*model.Dataset, error) {
	if name == "" {
		return nil, helper.NewBadRequest("create dataset", fmt.Errorf("dataset name is empty"))
	}

	if retrievalConfig == nil {
		defaults := model.DefaultRetrievalConfig()
		retrievalConfig = &defaults
	}
	if err := retrievalConfig.Validate(mode); err != nil {
		return nil, err
	}

	if indexingConfig == nil {
		indexingConfig = &model.IndexingConfig{
			DocumentMode: model.DocumentModeNormal,
			Segmentation: model.DefaultSegmentationConfig(),
		}
	}

	dataset := &model.Dataset{
		Name:             name,
		RetrievalMode:    mode,
		RetrievalConfig:  *retrievalConfig,
		IndexingConfig:   *indexingConfig,
		EmbeddingModelID: embeddingModelID,
	}
	if err := r.Datasets.InsertDataset(dataset); err != nil {
		return nil, helper.NewError("insert dataset", err)
	}

	r.log.Info("Created dataset",
		slog.String("dataset_rid", dataset.RID.String()),
		slog.String("name", dataset.Name),
		slog.String("mode", string(dataset.RetrievalMode)))

	return dataset, nil
}

// UpdateRetrievalConfig replaces the retrieval configuration of a dataset
func (r *Retriever) UpdateRetrievalConfig(rid uuid.UUID, mode model.RetrievalMode, config model.RetrievalConfig, embeddingModelID string) (*model.Dataset, error) {
	if err := config.Validate(mode); err != nil {
		return nil, err
	}

	dataset, err := r.Datasets.SelectDataset(rid)
	if err != nil {
		return nil, err
	}

	dataset.RetrievalMode = mode
	dataset.RetrievalConfig = config
	dataset.EmbeddingModelID = embeddingModelID
	if err := r.Datasets.UpdateDatasetConfig(dataset); err != nil {
		return nil, err
	}

	return dataset, nil
}

// DeleteDataset deletes a dataset with all its documents and segments
func (r *Retriever) DeleteDataset(rid uuid.UUID) error {
	return r.Datasets.DeleteDataset(rid)
}

// IndexSegments segments the given files into a dataset and enqueues one
// vectorization job per created document. Any segmentation failure aborts
// the whole run before anything is written.
func (r *Retriever) IndexSegments(ctx context.Context, datasetRID uuid.UUID, fileIDs []string) (*model.IndexResult, error) {
	if len(fileIDs) == 0 {
		return nil, helper.NewBadRequest("index segments", fmt.Errorf("no file ids given"))
	}

	dataset, err := r.Datasets.SelectDataset(datasetRID)
	if err != nil {
		return nil, err
	}

	result, err := r.Segmentation.IndexSegments(ctx, &segmentation.IndexConfig{
		FileIDs:      fileIDs,
		DocumentMode: dataset.IndexingConfig.DocumentMode,
		Segmentation: dataset.IndexingConfig.Segmentation,
		Hierarchical: dataset.IndexingConfig.Hierarchical,
	})
	if err != nil {
		return nil, err
	}

	for _, fileResult := range result.FileResults {
		characterCount := 0
		for _, segment := range fileResult.Segments {
			characterCount += segment.ContentLength
		}

		document := &model.Document{
			DatasetID:      dataset.ID,
			FileID:         fileResult.FileID,
			Name:           fileResult.FileName,
			CharacterCount: characterCount,
		}
		if err := r.Documents.InsertDocument(document); err != nil {
			return nil, helper.NewError(fmt.Sprintf("insert document %s", fileResult.FileName), err)
		}

		for i, segment := range fileResult.Segments {
			segment.DocumentID = document.ID
			segment.DatasetID = dataset.ID
			if err := r.Segments.InsertSegment(segment); err != nil {
				return nil, helper.NewError(fmt.Sprintf("insert segment %d of document %s", i, fileResult.FileName), err)
			}
		}

		if err := r.Documents.UpdateDocumentChunkCount(document.ID, len(fileResult.Segments)); err != nil {
			return nil, helper.NewError("update document chunk count", err)
		}
		if err := r.Datasets.IncrementDatasetCounters(dataset.ID, 0, int64(len(fileResult.Segments)), int64(characterCount)); err != nil {
			return nil, helper.NewError("increment dataset counters", err)
		}

		documentID := document.ID
		err = r.Queue.AddVectorizationJob(queue.JobTypeDocument, queue.JobParams{
			DatasetID:  dataset.ID,
			DocumentID: &documentID,
		})
		if err != nil {
			return nil, helper.NewError("enqueue vectorization job", err)
		}

		r.log.Info("Indexed document",
			slog.String("dataset_rid", dataset.RID.String()),
			slog.String("file_id", fileResult.FileID),
			slog.Int("segments", fileResult.SegmentCount))
	}

	return result, nil
}

// ProcessVectorization runs one vectorization job synchronously, bypassing
// the queue. documentID scopes the job to a single document when not nil.
func (r *Retriever) ProcessVectorization(ctx context.Context, datasetID int64, documentID *int64) error {
	jobType := queue.JobTypeDataset
	if documentID != nil {
		jobType = queue.JobTypeDocument
	}
	return r.Worker.Process(ctx, jobType, queue.JobParams{DatasetID: datasetID, DocumentID: documentID}, queue.NopJob{})
}

// ResetVectorizationStatus moves failed segments back to pending and returns
// the number of segments reset. The next vectorization run picks them up.
func (r *Retriever) ResetVectorizationStatus(datasetID int64, documentID *int64) (int64, error) {
	return r.Worker.Reset(datasetID, documentID)
}

// Query answers a dataset query with the dataset's retrieval mode. A nil
// config falls back to the dataset's persisted retrieval configuration.
func (r *Retriever) Query(ctx context.Context, datasetRID uuid.UUID, query string, config *model.RetrievalConfig) (*model.QueryResult, error) {
	return r.Engine.Query(ctx, datasetRID, query, config)
}

// ChangeIndexType changes the vector index type between HNSW and IVFFlat
func (r *Retriever) ChangeIndexType(ctx context.Context, indexType string, params map[string]interface{}) error {
	return r.Segments.ChangeIndexType(ctx, indexType, params)
}
