package vectorization

import (
	"context"
	"log/slog"

	"github.com/siherrmann/retriever/model"
	"github.com/siherrmann/retriever/provider"
	"github.com/siherrmann/retriever/queue"
)

// DefaultBatchSize caps the number of segments sent per embedding call.
const DefaultBatchSize = 10

// SegmentEmbedding is one persisted embedding result.
type SegmentEmbedding struct {
	ID        int64
	Embedding []float32
	Dimension int
	ModelID   string
}

// DatasetStore resolves the dataset a job is scoped to.
type DatasetStore interface {
	SelectDatasetByID(id int64) (*model.Dataset, error)
}

// DocumentStore persists the aggregate document state.
type DocumentStore interface {
	UpdateDocumentProgress(documentID int64, status model.DocumentStatus, progress int, message string, embeddingModelID string) error
}

// SegmentStore drives the segment status machine.
type SegmentStore interface {
	SelectPendingSegments(datasetID int64, documentID *int64) ([]*model.Segment, error)
	MarkSegmentsProcessing(ids []int64) error
	CompleteSegments(updates []SegmentEmbedding) error
	FailSegments(ids []int64, message string) error
	FailUnfinishedSegments(datasetID int64, documentID *int64, message string) ([]int64, error)
	ResetFailedSegments(datasetID int64, documentID *int64) (int64, error)
	CountSegmentStatuses(documentID int64) (StatusCounts, error)
}

// ProviderResolver resolves the embedding model of a dataset.
type ProviderResolver interface {
	Embedder(id string) (provider.Embedder, provider.ModelConfig, error)
}

// Worker consumes vectorization jobs and drives segment status transitions.
type Worker struct {
	datasets  DatasetStore
	documents DocumentStore
	segments  SegmentStore
	providers ProviderResolver
	batchSize int
	log       *slog.Logger
}

// NewWorker creates a new vectorization worker.
func NewWorker(datasets DatasetStore, documents DocumentStore, segments SegmentStore, providers ProviderResolver, logger *slog.Logger) *Worker {
	return &Worker{
		datasets:  datasets,
		documents: documents,
		segments:  segments,
		providers: providers,
		batchSize: DefaultBatchSize,
		log:       logger,
	}
}

// Process handles one job scoped to a dataset or a single document.
// Setup errors (unknown dataset, unresolvable model) abort the whole job
// before any segment is touched. A failed embedding batch is recorded on its
// rows and never aborts subsequent batches. Any other failure after segments
// were fetched marks the remaining pending and processing rows failed and is
// re-raised so the queue records the job failure.
func (w *Worker) Process(ctx context.Context, jobType queue.JobType, params queue.JobParams, job queue.Job) error {
	job.Progress(10)

	dataset, err := w.datasets.SelectDatasetByID(params.DatasetID)
	if err != nil {
		return err
	}
	embedder, modelConfig, err := w.providers.Embedder(dataset.EmbeddingModelID)
	if err != nil {
		return err
	}
	job.Progress(20)

	segments, err := w.segments.SelectPendingSegments(params.DatasetID, params.DocumentID)
	if err != nil {
		return err
	}
	job.Progress(30)

	if len(segments) == 0 {
		job.Progress(100)
		return nil
	}

	batchSize := w.batchSize
	if modelConfig.MaxChunks > 0 && modelConfig.MaxChunks < batchSize {
		batchSize = modelConfig.MaxChunks
	}
	job.Progress(40)

	batches := batchSegments(segments, batchSize)
	for i, batch := range batches {
		if err := w.processBatch(ctx, batch, embedder, dataset.EmbeddingModelID); err != nil {
			w.failRemaining(params, err)
			return err
		}
		if err := w.refreshDocuments(batch, dataset.EmbeddingModelID); err != nil {
			w.failRemaining(params, err)
			return err
		}
		job.Progress(40 + (i+1)*50/len(batches))
	}

	w.log.Info("Vectorization job finished",
		slog.String("job_type", string(jobType)),
		slog.Int64("dataset_id", params.DatasetID),
		slog.Int("segments", len(segments)),
		slog.Int("batches", len(batches)))

	job.Progress(100)
	return nil
}

// processBatch runs one embedding call. An embedding error fails the batch
// rows but not the job, storage errors fail the job.
func (w *Worker) processBatch(ctx context.Context, batch []*model.Segment, embedder provider.Embedder, embeddingModelID string) error {
	ids := make([]int64, len(batch))
	contents := make([]string, len(batch))
	for i, segment := range batch {
		ids[i] = segment.ID
		contents[i] = segment.Content
	}

	if err := w.segments.MarkSegmentsProcessing(ids); err != nil {
		return err
	}

	embeddings, err := embedder.Embed(ctx, contents)
	if err != nil {
		w.log.Warn("Embedding batch failed",
			slog.Int("batch_size", len(batch)),
			slog.String("error", err.Error()))
		return w.segments.FailSegments(ids, err.Error())
	}

	updates := make([]SegmentEmbedding, len(batch))
	for i, segment := range batch {
		updates[i] = SegmentEmbedding{
			ID:        segment.ID,
			Embedding: embeddings[i],
			Dimension: len(embeddings[i]),
			ModelID:   embeddingModelID,
		}
	}

	return w.segments.CompleteSegments(updates)
}

// refreshDocuments recomputes the aggregate status of every document touched
// by the batch.
func (w *Worker) refreshDocuments(batch []*model.Segment, embeddingModelID string) error {
	seen := make(map[int64]bool, 1)
	for _, segment := range batch {
		if seen[segment.DocumentID] {
			continue
		}
		seen[segment.DocumentID] = true

		counts, err := w.segments.CountSegmentStatuses(segment.DocumentID)
		if err != nil {
			return err
		}
		status, progress := AggregateStatus(counts)
		if err := w.documents.UpdateDocumentProgress(segment.DocumentID, status, progress, "", embeddingModelID); err != nil {
			return err
		}
	}
	return nil
}

// failRemaining marks every pending or processing segment in scope failed
// with the causing message and refreshes the affected documents.
func (w *Worker) failRemaining(params queue.JobParams, cause error) {
	documentIDs, err := w.segments.FailUnfinishedSegments(params.DatasetID, params.DocumentID, cause.Error())
	if err != nil {
		w.log.Error("Failing remaining segments failed", slog.String("error", err.Error()))
		return
	}

	for _, documentID := range documentIDs {
		counts, err := w.segments.CountSegmentStatuses(documentID)
		if err != nil {
			w.log.Error("Counting segment statuses failed", slog.String("error", err.Error()))
			continue
		}
		status, progress := AggregateStatus(counts)
		if err := w.documents.UpdateDocumentProgress(documentID, status, progress, cause.Error(), ""); err != nil {
			w.log.Error("Updating document after job failure failed", slog.String("error", err.Error()))
		}
	}
}

// Reset flips failed segments in scope back to pending and clears their
// error. Completed segments are untouched, repeated calls are idempotent.
func (w *Worker) Reset(datasetID int64, documentID *int64) (int64, error) {
	return w.segments.ResetFailedSegments(datasetID, documentID)
}

// batchSegments splits segments into batches of at most batchSize.
func batchSegments(segments []*model.Segment, batchSize int) [][]*model.Segment {
	if batchSize < 1 {
		batchSize = 1
	}
	var batches [][]*model.Segment
	for start := 0; start < len(segments); start += batchSize {
		end := start + batchSize
		if end > len(segments) {
			end = len(segments)
		}
		batches = append(batches, segments[start:end])
	}
	return batches
}
