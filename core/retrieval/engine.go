package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/retriever/helper"
	"github.com/siherrmann/retriever/model"
	"github.com/siherrmann/retriever/provider"
)

// defaultTextSearchConfig is the regconfig used for tokenized rank queries.
const defaultTextSearchConfig = "simple"

// DatasetStore resolves datasets for queries.
type DatasetStore interface {
	SelectDataset(rid uuid.UUID) (*model.Dataset, error)
}

// SegmentSearcher is the storage interface for the two sub-searches.
// Similarity search returns only completed and enabled segments ordered by
// similarity descending, full-text search returns only matching rows ordered
// by rank descending.
type SegmentSearcher interface {
	SelectSegmentsBySimilarity(datasetID int64, embedding []float32, limit int) ([]*model.Segment, error)
	SelectSegmentsByFullText(datasetID int64, query string, textSearchConfig string, limit int) ([]*model.Segment, error)
}

// ProviderResolver resolves model ids to provider clients.
type ProviderResolver interface {
	Embedder(id string) (provider.Embedder, provider.ModelConfig, error)
	Reranker(id string) (provider.Reranker, error)
}

// Engine answers dataset queries via vector, full-text or hybrid retrieval.
type Engine struct {
	datasets         DatasetStore
	segments         SegmentSearcher
	providers        ProviderResolver
	strategies       map[strategyKey]Strategy
	textSearchConfig string
	log              *slog.Logger
}

// NewEngine creates a new retrieval engine.
func NewEngine(datasets DatasetStore, segments SegmentSearcher, providers ProviderResolver, logger *slog.Logger) *Engine {
	engine := &Engine{
		datasets:         datasets,
		segments:         segments,
		providers:        providers,
		textSearchConfig: defaultTextSearchConfig,
		log:              logger,
	}
	engine.strategies = map[strategyKey]Strategy{}
	engine.strategies[strategyKey{mode: model.RetrievalModeVector}] = &VectorStrategy{engine: engine}
	engine.strategies[strategyKey{mode: model.RetrievalModeFullText}] = &FullTextStrategy{engine: engine}
	engine.strategies[strategyKey{mode: model.RetrievalModeHybrid, strategy: model.HybridStrategyWeighted}] = &WeightedStrategy{engine: engine}
	engine.strategies[strategyKey{mode: model.RetrievalModeHybrid, strategy: model.HybridStrategyRerank}] = &RerankStrategy{engine: engine}
	return engine
}

// SetTextSearchConfig overrides the Postgres text search configuration
// used for full-text queries (e.g. "english").
func (e *Engine) SetTextSearchConfig(config string) {
	e.textSearchConfig = config
}

// Query answers a dataset query. A nil config falls back to the dataset's
// persisted retrieval configuration.
func (e *Engine) Query(ctx context.Context, datasetRID uuid.UUID, query string, config *model.RetrievalConfig) (*model.QueryResult, error) {
	start := time.Now()

	dataset, err := e.datasets.SelectDataset(datasetRID)
	if err != nil {
		return nil, err
	}

	if config == nil {
		persisted := dataset.RetrievalConfig
		config = &persisted
	}
	if err := config.Validate(dataset.RetrievalMode); err != nil {
		return nil, err
	}

	strategy, err := e.strategyFor(dataset.RetrievalMode, config)
	if err != nil {
		return nil, err
	}

	chunks, err := strategy.Retrieve(ctx, dataset, query, config)
	if err != nil {
		return nil, err
	}

	// Rerank may post-process single-mode results. Failures fall back to the
	// already ranked list instead of failing the query.
	if config.Rerank.Enabled && dataset.RetrievalMode != model.RetrievalModeHybrid {
		if reranked, err := e.rerankChunks(ctx, query, chunks, config); err != nil {
			e.log.Warn("Rerank failed, returning unreranked results",
				slog.String("dataset_rid", dataset.RID.String()),
				slog.String("error", err.Error()))
		} else {
			chunks = reranked
		}
	}

	e.log.Info("Answered query",
		slog.String("dataset_rid", dataset.RID.String()),
		slog.String("mode", string(dataset.RetrievalMode)),
		slog.Int("chunks", len(chunks)))

	return &model.QueryResult{
		Chunks:    chunks,
		TotalTime: float64(time.Since(start).Microseconds()) / 1000.0,
	}, nil
}

// strategyKey is the tagged union of retrieval mode and hybrid strategy.
type strategyKey struct {
	mode     model.RetrievalMode
	strategy model.HybridStrategy
}

// strategyFor looks up the strategy for the resolved mode.
func (e *Engine) strategyFor(mode model.RetrievalMode, config *model.RetrievalConfig) (Strategy, error) {
	key := strategyKey{mode: mode}
	if mode == model.RetrievalModeHybrid {
		key.strategy = config.Strategy
		if key.strategy == "" {
			key.strategy = model.HybridStrategyWeighted
		}
	}

	strategy, ok := e.strategies[key]
	if !ok {
		return nil, helper.NewBadRequest("resolve strategy", fmt.Errorf("unsupported retrieval mode %q with strategy %q", mode, config.Strategy))
	}
	return strategy, nil
}

// vectorSearch embeds the query and runs the similarity search.
func (e *Engine) vectorSearch(ctx context.Context, dataset *model.Dataset, query string, limit int) ([]*model.RankedChunk, error) {
	embedder, _, err := e.providers.Embedder(dataset.EmbeddingModelID)
	if err != nil {
		return nil, err
	}

	embeddings, err := embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, helper.NewError("embed query", err)
	}

	segments, err := e.segments.SelectSegmentsBySimilarity(dataset.ID, embeddings[0], limit)
	if err != nil {
		return nil, helper.NewUnavailable("vector search", err)
	}

	chunks := make([]*model.RankedChunk, len(segments))
	for i, segment := range segments {
		score := 0.0
		if segment.Similarity != nil {
			score = *segment.Similarity
		}
		chunks[i] = rankedChunk(segment, score, sourceVector)
	}

	return chunks, nil
}

// fullTextSearch runs the tokenized rank query. Raw rank scores are rescaled
// by fullTextRankScale so magnitudes are roughly comparable to cosine scores.
func (e *Engine) fullTextSearch(ctx context.Context, dataset *model.Dataset, query string, limit int) ([]*model.RankedChunk, error) {
	segments, err := e.segments.SelectSegmentsByFullText(dataset.ID, query, e.textSearchConfig, limit)
	if err != nil {
		return nil, helper.NewError("full-text search", err)
	}

	chunks := make([]*model.RankedChunk, len(segments))
	for i, segment := range segments {
		score := 0.0
		if segment.Rank != nil {
			score = *segment.Rank * fullTextRankScale
		}
		chunks[i] = rankedChunk(segment, score, sourceFullText)
	}

	return chunks, nil
}

// rerankChunks re-scores an already ranked chunk list through the rerank model.
func (e *Engine) rerankChunks(ctx context.Context, query string, chunks []*model.RankedChunk, config *model.RetrievalConfig) ([]*model.RankedChunk, error) {
	if len(chunks) == 0 {
		return chunks, nil
	}

	reranker, err := e.providers.Reranker(config.Rerank.ModelID)
	if err != nil {
		return nil, err
	}

	contents := make([]string, len(chunks))
	for i, chunk := range chunks {
		contents[i] = chunk.Content
	}

	results, err := reranker.Rerank(ctx, query, contents, len(contents))
	if err != nil {
		return nil, helper.NewError("rerank", err)
	}

	reranked := make([]*model.RankedChunk, 0, len(results))
	for _, result := range results {
		chunk := chunks[result.Index]
		score := result.RelevanceScore
		chunk.Score = score
		chunk.RelevanceScore = &score
		reranked = append(reranked, chunk)
	}

	if config.ScoreThresholdEnabled {
		reranked = applyThreshold(reranked, config.ScoreThreshold)
	}
	sortByScore(reranked)
	return truncate(reranked, config.TopK), nil
}

// rankedChunk converts a segment row into an ephemeral ranked chunk.
func rankedChunk(segment *model.Segment, score float64, source string) *model.RankedChunk {
	return &model.RankedChunk{
		ID:            segment.RID.String(),
		Content:       segment.Content,
		Score:         score,
		Metadata:      model.Metadata{"document_id": segment.DocumentID, "dataset_id": segment.DatasetID},
		ChunkIndex:    segment.ChunkIndex,
		ContentLength: segment.ContentLength,
		Sources:       []string{source},
	}
}
