package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/siherrmann/retriever/helper"
)

// JobType scopes a vectorization job to a dataset or a single document.
type JobType string

const (
	JobTypeDataset  JobType = "dataset"
	JobTypeDocument JobType = "document"
)

// JobParams identifies the scope of a vectorization job.
type JobParams struct {
	DatasetID  int64
	DocumentID *int64
}

// Job receives coarse progress reports from the processor.
type Job interface {
	Progress(percent int)
}

// NopJob ignores progress reports, useful for synchronous callers.
type NopJob struct{}

// Progress implements Job.
func (NopJob) Progress(int) {}

// Processor handles one vectorization job.
type Processor func(ctx context.Context, jobType JobType, params JobParams, job Job) error

// Dispatcher is a minimal in-memory vectorization queue. Jobs are consumed
// one at a time, which keeps at most one worker per document.
type Dispatcher struct {
	processor Processor
	jobs      chan queuedJob
	mu        sync.Mutex
	closed    bool
	wg        sync.WaitGroup
	log       *slog.Logger
}

type queuedJob struct {
	jobType JobType
	params  JobParams
}

// NewDispatcher creates a dispatcher with the given queue buffer and starts
// its consumer goroutine.
func NewDispatcher(processor Processor, buffer int, logger *slog.Logger) *Dispatcher {
	if buffer <= 0 {
		buffer = 64
	}
	dispatcher := &Dispatcher{
		processor: processor,
		jobs:      make(chan queuedJob, buffer),
		log:       logger,
	}

	dispatcher.wg.Add(1)
	go dispatcher.run()

	return dispatcher
}

// AddVectorizationJob enqueues a job. It fails instead of blocking when the
// queue is full.
func (d *Dispatcher) AddVectorizationJob(jobType JobType, params JobParams) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return helper.NewError("enqueue vectorization job", fmt.Errorf("queue is closed"))
	}

	select {
	case d.jobs <- queuedJob{jobType: jobType, params: params}:
		return nil
	default:
		return helper.NewError("enqueue vectorization job", fmt.Errorf("queue is full"))
	}
}

// Close stops accepting jobs and waits for already queued jobs to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for job := range d.jobs {
		progress := &logJob{log: d.log, jobType: job.jobType, datasetID: job.params.DatasetID}
		if err := d.processor(context.Background(), job.jobType, job.params, progress); err != nil {
			d.log.Error("Vectorization job failed",
				slog.String("job_type", string(job.jobType)),
				slog.Int64("dataset_id", job.params.DatasetID),
				slog.String("error", err.Error()))
		}
	}
}

// logJob reports progress to the dispatcher log.
type logJob struct {
	log       *slog.Logger
	jobType   JobType
	datasetID int64
}

// Progress implements Job.
func (j *logJob) Progress(percent int) {
	j.log.Debug("Vectorization progress",
		slog.String("job_type", string(j.jobType)),
		slog.Int64("dataset_id", j.datasetID),
		slog.Int("percent", percent))
}
