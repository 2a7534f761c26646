package retrieval

import (
	"context"

	"github.com/siherrmann/retriever/helper"
	"github.com/siherrmann/retriever/model"
	"golang.org/x/sync/errgroup"
)

// Strategy answers a query for one retrieval mode.
type Strategy interface {
	Retrieve(ctx context.Context, dataset *model.Dataset, query string, config *model.RetrievalConfig) ([]*model.RankedChunk, error)
}

// VectorStrategy performs pure vector similarity search.
type VectorStrategy struct {
	engine *Engine
}

// Retrieve embeds the query and ranks segments by cosine similarity.
func (s *VectorStrategy) Retrieve(ctx context.Context, dataset *model.Dataset, query string, config *model.RetrievalConfig) ([]*model.RankedChunk, error) {
	chunks, err := s.engine.vectorSearch(ctx, dataset, query, config.TopK)
	if err != nil {
		return nil, err
	}

	if config.ScoreThresholdEnabled {
		chunks = applyThreshold(chunks, config.ScoreThreshold)
	}
	return truncate(chunks, config.TopK), nil
}

// FullTextStrategy performs tokenized full-text rank search.
type FullTextStrategy struct {
	engine *Engine
}

// Retrieve runs the rank query and keeps only matching rows.
func (s *FullTextStrategy) Retrieve(ctx context.Context, dataset *model.Dataset, query string, config *model.RetrievalConfig) ([]*model.RankedChunk, error) {
	chunks, err := s.engine.fullTextSearch(ctx, dataset, query, config.TopK)
	if err != nil {
		return nil, err
	}

	if config.ScoreThresholdEnabled {
		chunks = applyThreshold(chunks, config.ScoreThreshold)
	}
	return truncate(chunks, config.TopK), nil
}

// WeightedStrategy fuses concurrent vector and full-text searches by weight.
type WeightedStrategy struct {
	engine *Engine
}

// Retrieve runs both sub-searches concurrently at twice the requested size,
// merges candidates by chunk id and ranks by the weighted final score.
func (s *WeightedStrategy) Retrieve(ctx context.Context, dataset *model.Dataset, query string, config *model.RetrievalConfig) ([]*model.RankedChunk, error) {
	vectorChunks, fullTextChunks, err := s.engine.searchBoth(ctx, dataset, query, 2*config.TopK)
	if err != nil {
		return nil, err
	}

	fused := fuseWeighted(vectorChunks, fullTextChunks, config.Weights)
	sortByScore(fused)
	return truncate(fused, config.TopK), nil
}

// RerankStrategy pools concurrent vector and full-text candidates and lets the
// rerank model order them.
type RerankStrategy struct {
	engine *Engine
}

// Retrieve deduplicates the candidate pool and re-scores it with the rerank
// model. Results carry the relevance score instead of the raw search score.
func (s *RerankStrategy) Retrieve(ctx context.Context, dataset *model.Dataset, query string, config *model.RetrievalConfig) ([]*model.RankedChunk, error) {
	if config.Rerank.ModelID == "" {
		return nil, helper.NewBadRequest("rerank retrieval", errMissingRerankModel)
	}

	vectorChunks, fullTextChunks, err := s.engine.searchBoth(ctx, dataset, query, 2*config.TopK)
	if err != nil {
		return nil, err
	}

	pool := dedupeCandidates(vectorChunks, fullTextChunks)
	return s.engine.rerankChunks(ctx, query, pool, config)
}

// searchBoth dispatches the vector and full-text searches concurrently.
// The merge downstream is deterministic by chunk id, independent of which
// sub-search returns first.
func (e *Engine) searchBoth(ctx context.Context, dataset *model.Dataset, query string, limit int) ([]*model.RankedChunk, []*model.RankedChunk, error) {
	var vectorChunks, fullTextChunks []*model.RankedChunk

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		chunks, err := e.vectorSearch(gctx, dataset, query, limit)
		if err != nil {
			return err
		}
		vectorChunks = chunks
		return nil
	})
	g.Go(func() error {
		chunks, err := e.fullTextSearch(gctx, dataset, query, limit)
		if err != nil {
			return err
		}
		fullTextChunks = chunks
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	return vectorChunks, fullTextChunks, nil
}
