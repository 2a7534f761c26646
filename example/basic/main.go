package main

import (
	"context"
	"fmt"
	"log"

	"github.com/siherrmann/retriever"
	"github.com/siherrmann/retriever/core/segmentation"
	"github.com/siherrmann/retriever/helper"
	"github.com/siherrmann/retriever/model"
	"github.com/siherrmann/retriever/provider"
)

const sampleContent = `This is a sample document about retrieval engines.

Retrieval engines split documents into segments and embed them into vectors.
Queries are answered by comparing the query vector against the stored segments.

PostgreSQL with the pgvector extension can store embeddings next to the text itself.
Full-text search over the same rows enables keyword matching without a second store.

Combining both signals in a hybrid strategy leverages semantic similarity
and exact keyword matches for more robust retrieval.`

// memoryResolver serves file contents from an in-memory map.
type memoryResolver struct {
	files map[string]string
}

func (r *memoryResolver) Resolve(_ context.Context, fileID string) (*segmentation.FileContent, error) {
	content, ok := r.files[fileID]
	if !ok {
		return nil, fmt.Errorf("unknown file %s", fileID)
	}
	return &segmentation.FileContent{
		Data:      []byte(content),
		Name:      fileID + ".txt",
		Size:      int64(len(content)),
		Extension: ".txt",
		MimeType:  "text/plain",
	}, nil
}

func main() {
	// Start a test PostgreSQL container
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	// Create database configuration using the container port
	dbConfig := &helper.DatabaseConfiguration{
		Host:     "localhost",
		Port:     dbPort,
		Database: "retriever_test",
		Username: "postgres",
		Password: "postgres",
		Schema:   "public",
	}

	// An in-process embedding model, no API key needed.
	registry := provider.NewRegistry([]provider.ModelConfig{
		{
			ID:     "embed-local",
			Type:   provider.ModelTypeEmbedding,
			Client: provider.ClientKindLocal,
			Active: true,
		},
	})

	files := &memoryResolver{files: map[string]string{"intro": sampleContent}}

	r, err := retriever.NewRetriever(dbConfig, registry, files, 384)
	if err != nil {
		log.Fatalf("Failed to create retriever: %v", err)
	}
	defer r.Close()

	// Create a hybrid dataset with the default configs
	dataset, err := r.CreateDataset("basic-example", model.RetrievalModeHybrid, nil, nil, "embed-local")
	if err != nil {
		log.Fatalf("Failed to create dataset: %v", err)
	}
	fmt.Printf("Created dataset %s\n", dataset.RID)

	// Split the file into segments and queue them for vectorization
	fmt.Println("Indexing document...")
	indexResult, err := r.IndexSegments(context.Background(), dataset.RID, []string{"intro"})
	if err != nil {
		log.Fatalf("Failed to index segments: %v", err)
	}
	fmt.Printf("Indexed %d files into %d segments\n", indexResult.ProcessedFiles, indexResult.TotalSegments)

	// Embed synchronously so the query below sees completed segments
	if err := r.ProcessVectorization(context.Background(), dataset.ID, nil); err != nil {
		log.Fatalf("Failed to vectorize segments: %v", err)
	}

	queryText := "How does hybrid retrieval work?"
	fmt.Printf("\nQuerying: %s\n", queryText)

	result, err := r.Query(context.Background(), dataset.RID, queryText, nil)
	if err != nil {
		log.Fatalf("Failed to query: %v", err)
	}

	fmt.Printf("\nFound %d results in %.1f ms:\n", len(result.Chunks), result.TotalTime)
	for i, chunk := range result.Chunks {
		fmt.Printf("\n--- Result %d ---\n", i+1)
		fmt.Printf("Score: %.4f\n", chunk.Score)
		fmt.Printf("Sources: %v\n", chunk.Sources)
		fmt.Printf("Content: %s\n", chunk.Content)
	}

	fmt.Println("\nBasic example completed successfully!")
}
