package vectorization

import "github.com/siherrmann/retriever/model"

// StatusCounts holds the per-status segment counts of one document.
type StatusCounts struct {
	Pending    int
	Processing int
	Completed  int
	Failed     int
}

// Total returns the number of counted segments.
func (c StatusCounts) Total() int {
	return c.Pending + c.Processing + c.Completed + c.Failed
}

// AggregateStatus maps segment counts to the document status and progress.
// Progress is 100 exactly when the status is completed.
func AggregateStatus(counts StatusCounts) (model.DocumentStatus, int) {
	total := counts.Total()
	if total == 0 {
		// A document without segments has nothing left to vectorize.
		return model.DocumentStatusCompleted, 100
	}

	switch {
	case counts.Pending > 0 || counts.Processing > 0:
		return model.DocumentStatusProcessing, counts.Completed * 100 / total
	case counts.Failed == total:
		return model.DocumentStatusFailed, 0
	case counts.Failed > 0:
		// Partial failure, some segments completed and some failed.
		return model.DocumentStatusError, counts.Completed * 100 / total
	default:
		return model.DocumentStatusCompleted, 100
	}
}
