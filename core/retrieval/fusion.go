package retrieval

import (
	"errors"
	"sort"

	"github.com/siherrmann/retriever/model"
)

// fullTextRankScale rescales raw ts_rank scores before fusion so their
// magnitude is roughly comparable to cosine similarity scores.
// Empirical calibration, tunable.
const fullTextRankScale = 10.0

const (
	sourceVector   = "vector"
	sourceFullText = "full_text"
)

var errMissingRerankModel = errors.New("rerank retrieval requires a rerank model id")

// fuseWeighted merges the two candidate lists by chunk id. A chunk missing
// from one side contributes a zero score for that side:
// finalScore = vectorScore*semanticWeight + fullTextScore*keywordWeight.
func fuseWeighted(vectorChunks []*model.RankedChunk, fullTextChunks []*model.RankedChunk, weights model.WeightConfig) []*model.RankedChunk {
	type candidate struct {
		chunk         *model.RankedChunk
		vectorScore   float64
		fullTextScore float64
	}

	merged := make(map[string]*candidate, len(vectorChunks)+len(fullTextChunks))
	var order []string

	for _, chunk := range vectorChunks {
		merged[chunk.ID] = &candidate{chunk: chunk, vectorScore: chunk.Score}
		order = append(order, chunk.ID)
	}
	for _, chunk := range fullTextChunks {
		if existing, ok := merged[chunk.ID]; ok {
			existing.fullTextScore = chunk.Score
			existing.chunk.Sources = append(existing.chunk.Sources, sourceFullText)
			continue
		}
		merged[chunk.ID] = &candidate{chunk: chunk, fullTextScore: chunk.Score}
		order = append(order, chunk.ID)
	}

	results := make([]*model.RankedChunk, 0, len(order))
	for _, id := range order {
		c := merged[id]
		c.chunk.Score = c.vectorScore*weights.SemanticWeight + c.fullTextScore*weights.KeywordWeight
		results = append(results, c.chunk)
	}

	return results
}

// dedupeCandidates merges candidate lists into one pool, keeping the first
// occurrence of every chunk id and unioning source tags.
func dedupeCandidates(lists ...[]*model.RankedChunk) []*model.RankedChunk {
	seen := make(map[string]*model.RankedChunk)
	var pool []*model.RankedChunk

	for _, list := range lists {
		for _, chunk := range list {
			if existing, ok := seen[chunk.ID]; ok {
				existing.Sources = unionSources(existing.Sources, chunk.Sources)
				continue
			}
			seen[chunk.ID] = chunk
			pool = append(pool, chunk)
		}
	}

	return pool
}

func unionSources(a []string, b []string) []string {
	seen := make(map[string]bool, len(a))
	for _, s := range a {
		seen[s] = true
	}
	for _, s := range b {
		if !seen[s] {
			a = append(a, s)
			seen[s] = true
		}
	}
	return a
}

// sortByScore orders chunks by score descending, ties broken by id for
// deterministic output.
func sortByScore(chunks []*model.RankedChunk) {
	sort.Slice(chunks, func(i, j int) bool {
		if chunks[i].Score != chunks[j].Score {
			return chunks[i].Score > chunks[j].Score
		}
		return chunks[i].ID < chunks[j].ID
	})
}

// applyThreshold keeps only chunks at or above the threshold.
func applyThreshold(chunks []*model.RankedChunk, threshold float64) []*model.RankedChunk {
	filtered := chunks[:0]
	for _, chunk := range chunks {
		if chunk.Score >= threshold {
			filtered = append(filtered, chunk)
		}
	}
	return filtered
}

// truncate limits chunks to topK.
func truncate(chunks []*model.RankedChunk, topK int) []*model.RankedChunk {
	if topK > 0 && len(chunks) > topK {
		return chunks[:topK]
	}
	return chunks
}
