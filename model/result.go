package model

// RankedChunk represents a segment returned by a query. It is never persisted.
type RankedChunk struct {
	ID             string   `json:"id"`
	Content        string   `json:"content"`
	Score          float64  `json:"score"`
	RelevanceScore *float64 `json:"relevance_score,omitempty"` // set when rerank was used
	Metadata       Metadata `json:"metadata,omitempty"`
	ChunkIndex     int      `json:"chunk_index"`
	ContentLength  int      `json:"content_length"`
	Sources        []string `json:"sources,omitempty"` // which sub-searches found the chunk
}

// QueryResult is the answer to a retrieval query.
type QueryResult struct {
	Chunks    []*RankedChunk `json:"chunks"`
	TotalTime float64        `json:"total_time"` // milliseconds
}

// FileIndexResult holds the segments produced for a single file.
type FileIndexResult struct {
	FileID       string     `json:"file_id"`
	FileName     string     `json:"file_name"`
	Segments     []*Segment `json:"segments"`
	SegmentCount int        `json:"segment_count"`
}

// IndexResult is the outcome of an indexing run over one or more files.
type IndexResult struct {
	FileResults    []*FileIndexResult `json:"file_results"`
	TotalSegments  int                `json:"total_segments"`
	ProcessedFiles int                `json:"processed_files"`
	ProcessingTime float64            `json:"processing_time"` // milliseconds
}
