package provider

import (
	"context"
	"fmt"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
	"github.com/siherrmann/retriever/helper"
)

// LocalEmbedder runs a sentence transformer model in-process through hugot.
type LocalEmbedder struct {
	pipeline  *pipelines.FeatureExtractionPipeline
	session   *hugot.Session
	dimension int
}

// NewLocalEmbedder downloads the model if needed and creates an in-process
// embedder. The default all-MiniLM-L6-v2 model produces 384-dimensional vectors.
func NewLocalEmbedder(config ModelConfig) (*LocalEmbedder, error) {
	modelName := config.Model
	if modelName == "" {
		modelName = "sentence-transformers/all-MiniLM-L6-v2"
	}
	modelPath, err := helper.PrepareModel(modelName)
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	pipelineConfig := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "embedder-pipeline",
	}
	sentencePipeline, err := hugot.NewPipeline(session, pipelineConfig)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create sentence pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create sentence pipeline: %w", err)
	}

	return &LocalEmbedder{
		pipeline: sentencePipeline,
		session:  session,
	}, nil
}

// Dimension returns the dimensionality of the produced vectors.
// It is zero until the first successful Embed call.
func (e *LocalEmbedder) Dimension() int { return e.dimension }

// Embed returns one embedding vector per input, in input order.
func (e *LocalEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no inputs to embed")
	}

	result, err := e.pipeline.RunPipeline(inputs)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(result.Embeddings) != len(inputs) {
		return nil, fmt.Errorf("embedding count mismatch: got %d embeddings for %d inputs", len(result.Embeddings), len(inputs))
	}

	if e.dimension == 0 && len(result.Embeddings[0]) > 0 {
		e.dimension = len(result.Embeddings[0])
	}

	return result.Embeddings, nil
}

// Close releases the hugot session.
func (e *LocalEmbedder) Close() error {
	if e.session != nil {
		return e.session.Destroy()
	}
	return nil
}
