package retriever

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/retriever/core/segmentation"
	"github.com/siherrmann/retriever/helper"
	"github.com/siherrmann/retriever/model"
	"github.com/siherrmann/retriever/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var dbPort string

func TestMain(m *testing.M) {
	teardown, port, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("could not start postgres container: %v", err)
	}
	dbPort = port

	code := m.Run()

	if err := teardown(context.Background()); err != nil {
		log.Fatalf("could not teardown postgres container: %v", err)
	}
	os.Exit(code)
}

// mapResolver resolves file ids from an in-memory map.
type mapResolver struct {
	files map[string]string
}

func (r *mapResolver) Resolve(_ context.Context, fileID string) (*segmentation.FileContent, error) {
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

// startEmbeddingServer serves deterministic 3-dimensional embeddings so
// similarity ordering is predictable: inputs mentioning postgres and redis
// are orthogonal to each other.
func startEmbeddingServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		type item struct {
			Embedding []float32 `json:"embedding"`
		}
		data := make([]item, len(in.Input))
		for i, input := range in.Input {
			lower := strings.ToLower(input)
			switch {
			case strings.Contains(lower, "postgres"):
				data[i] = item{Embedding: []float32{1, 0, 0}}
			case strings.Contains(lower, "redis"):
				data[i] = item{Embedding: []float32{0, 1, 0}}
			default:
				data[i] = item{Embedding: []float32{0, 0, 1}}
			}
		}
		if err := json.NewEncoder(w).Encode(map[string]any{"data": data}); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

const sampleDocument = `Postgres stores the segment embeddings next to the text itself.
The pgvector extension adds the vector column type and similarity operators.

Redis is an in-memory key value store often used as a cache.
It keeps all data in memory and persists snapshots to disk.`

func initRetriever(t *testing.T, baseURL string) *Retriever {
	t.Helper()
	helper.SetTestDatabaseConfigEnvs(t, dbPort)
	t.Setenv("TEST_PROVIDER_KEY", "test-key")

	dbConfig, err := helper.NewDatabaseConfiguration()
	require.NoError(t, err, "failed to create database configuration")

	registry := provider.NewRegistry([]provider.ModelConfig{
		{
			ID:        "embed-test",
			Type:      provider.ModelTypeEmbedding,
			Client:    provider.ClientKindOpenAI,
			Model:     "test-embedding-model",
			BaseURL:   baseURL,
			APIKeyEnv: "TEST_PROVIDER_KEY",
			Active:    true,
		},
	})

	resolver := &mapResolver{files: map[string]string{"sample": sampleDocument}}

	r, err := NewRetriever(dbConfig, registry, resolver, 3)
	require.NoError(t, err, "failed to create retriever")
	require.NotNil(t, r, "expected retriever to be non-nil")

	t.Cleanup(func() {
		r.Close()
	})

	return r
}

func TestNewRetriever(t *testing.T) {
	server := startEmbeddingServer(t)
	r := initRetriever(t, server.URL)

	assert.NotNil(t, r.DB, "expected retriever to have a database instance")
	assert.NotNil(t, r.Datasets, "expected retriever to have a datasets handler")
	assert.NotNil(t, r.Documents, "expected retriever to have a documents handler")
	assert.NotNil(t, r.Segments, "expected retriever to have a segments handler")
	assert.NotNil(t, r.Segmentation, "expected retriever to have a segmentation engine")
	assert.NotNil(t, r.Engine, "expected retriever to have a retrieval engine")
	assert.NotNil(t, r.Worker, "expected retriever to have a vectorization worker")
	assert.NotNil(t, r.Queue, "expected retriever to have a vectorization queue")
}

func TestDatasetLifecycle(t *testing.T) {
	server := startEmbeddingServer(t)
	r := initRetriever(t, server.URL)

	t.Run("Create with default configs", func(t *testing.T) {
		dataset, err := r.CreateDataset("lifecycle-"+uuid.NewString(), model.RetrievalModeVector, nil, nil, "embed-test")
		require.NoError(t, err, "CreateDataset should not error")
		assert.NotZero(t, dataset.ID, "dataset id should be set")
		assert.NotEqual(t, uuid.Nil, dataset.RID, "dataset rid should be set")
		assert.Equal(t, model.DefaultRetrievalConfig().TopK, dataset.RetrievalConfig.TopK, "nil config should fall back to defaults")
		assert.Equal(t, model.DocumentModeNormal, dataset.IndexingConfig.DocumentMode, "nil indexing config should fall back to normal mode")
	})

	t.Run("Empty name fails", func(t *testing.T) {
		_, err := r.CreateDataset("", model.RetrievalModeVector, nil, nil, "embed-test")
		require.Error(t, err, "CreateDataset should reject an empty name")
		assert.True(t, helper.IsBadRequest(err), "error should be bad request")
	})

	t.Run("Invalid config fails", func(t *testing.T) {
		config := model.DefaultRetrievalConfig()
		config.TopK = -1
		_, err := r.CreateDataset("invalid-"+uuid.NewString(), model.RetrievalModeVector, &config, nil, "embed-test")
		require.Error(t, err, "CreateDataset should reject an invalid config")
		assert.True(t, helper.IsBadRequest(err), "error should be bad request")
	})

	t.Run("Update retrieval config", func(t *testing.T) {
		dataset, err := r.CreateDataset("update-"+uuid.NewString(), model.RetrievalModeVector, nil, nil, "embed-test")
		require.NoError(t, err, "CreateDataset should not error")

		config := model.DefaultRetrievalConfig()
		config.TopK = 3
		updated, err := r.UpdateRetrievalConfig(dataset.RID, model.RetrievalModeFullText, config, "embed-test")
		require.NoError(t, err, "UpdateRetrievalConfig should not error")
		assert.Equal(t, model.RetrievalModeFullText, updated.RetrievalMode, "mode should be updated")
		assert.Equal(t, 3, updated.RetrievalConfig.TopK, "config should be updated")

		stored, err := r.Datasets.SelectDataset(dataset.RID)
		require.NoError(t, err, "SelectDataset should not error")
		assert.Equal(t, model.RetrievalModeFullText, stored.RetrievalMode, "update should be persisted")
	})

	t.Run("Delete dataset", func(t *testing.T) {
		dataset, err := r.CreateDataset("delete-"+uuid.NewString(), model.RetrievalModeVector, nil, nil, "embed-test")
		require.NoError(t, err, "CreateDataset should not error")

		require.NoError(t, r.DeleteDataset(dataset.RID), "DeleteDataset should not error")

		_, err = r.Datasets.SelectDataset(dataset.RID)
		require.Error(t, err, "deleted dataset should not be found")
		assert.True(t, helper.IsNotFound(err), "error should be not found")
	})
}

func TestIndexSegmentsValidation(t *testing.T) {
	server := startEmbeddingServer(t)
	r := initRetriever(t, server.URL)

	dataset, err := r.CreateDataset("validation-"+uuid.NewString(), model.RetrievalModeVector, nil, nil, "embed-test")
	require.NoError(t, err, "CreateDataset should not error")

	t.Run("No file ids fails", func(t *testing.T) {
		_, err := r.IndexSegments(context.Background(), dataset.RID, nil)
		require.Error(t, err, "IndexSegments should reject an empty file list")
		assert.True(t, helper.IsBadRequest(err), "error should be bad request")
	})

	t.Run("Unknown dataset fails", func(t *testing.T) {
		_, err := r.IndexSegments(context.Background(), uuid.New(), []string{"sample"})
		require.Error(t, err, "IndexSegments should reject an unknown dataset")
		assert.True(t, helper.IsNotFound(err), "error should be not found")
	})

	t.Run("Unresolvable file aborts the run", func(t *testing.T) {
		_, err := r.IndexSegments(context.Background(), dataset.RID, []string{"missing"})
		require.Error(t, err, "IndexSegments should error on an unresolvable file")

		documents, err := r.Documents.SelectDocumentsByDataset(dataset.ID, time.Now().Add(-time.Minute), 100)
		require.NoError(t, err, "SelectDocumentsByDataset should not error")
		assert.Empty(t, documents, "no documents should be written for a failed run")
	})
}

func TestIndexAndQuery(t *testing.T) {
	server := startEmbeddingServer(t)
	r := initRetriever(t, server.URL)

	dataset, err := r.CreateDataset("query-"+uuid.NewString(), model.RetrievalModeVector, nil, nil, "embed-test")
	require.NoError(t, err, "CreateDataset should not error")

	before := time.Now().Add(-time.Second)
	indexResult, err := r.IndexSegments(context.Background(), dataset.RID, []string{"sample"})
	require.NoError(t, err, "IndexSegments should not error")
	require.Equal(t, 1, indexResult.ProcessedFiles, "one file should be processed")
	require.Equal(t, 2, indexResult.TotalSegments, "sample document should split into two segments")

	// Drain the queued job so the synchronous run below is the only writer.
	r.Queue.Close()
	require.NoError(t, r.ProcessVectorization(context.Background(), dataset.ID, nil), "ProcessVectorization should not error")

	documents, err := r.Documents.SelectDocumentsByDataset(dataset.ID, before, 100)
	require.NoError(t, err, "SelectDocumentsByDataset should not error")
	require.Len(t, documents, 1, "one document should exist")
	assert.Equal(t, model.DocumentStatusCompleted, documents[0].Status, "document should be completed after vectorization")
	assert.Equal(t, 100, documents[0].Progress, "document progress should be 100")
	assert.Equal(t, 2, documents[0].ChunkCount, "document chunk count should match the segments")

	t.Run("Vector query ranks the matching segment first", func(t *testing.T) {
		result, err := r.Query(context.Background(), dataset.RID, "postgres similarity search", nil)
		require.NoError(t, err, "Query should not error")
		require.NotEmpty(t, result.Chunks, "query should return chunks")
		assert.Contains(t, strings.ToLower(result.Chunks[0].Content), "postgres", "top chunk should be the postgres segment")
		assert.InDelta(t, 1.0, result.Chunks[0].Score, 0.0001, "identical embeddings should score 1")
	})

	t.Run("Full text query matches by keyword", func(t *testing.T) {
		config := dataset.RetrievalConfig
		_, err := r.UpdateRetrievalConfig(dataset.RID, model.RetrievalModeFullText, config, "embed-test")
		require.NoError(t, err, "UpdateRetrievalConfig should not error")

		result, err := r.Query(context.Background(), dataset.RID, "redis", nil)
		require.NoError(t, err, "Query should not error")
		require.Len(t, result.Chunks, 1, "only the redis segment should match")
		assert.Contains(t, strings.ToLower(result.Chunks[0].Content), "redis", "matched chunk should contain the keyword")
	})

	t.Run("Hybrid weighted query fuses both signals", func(t *testing.T) {
		config := model.DefaultRetrievalConfig()
		_, err := r.UpdateRetrievalConfig(dataset.RID, model.RetrievalModeHybrid, config, "embed-test")
		require.NoError(t, err, "UpdateRetrievalConfig should not error")

		result, err := r.Query(context.Background(), dataset.RID, "postgres vector", nil)
		require.NoError(t, err, "Query should not error")
		require.NotEmpty(t, result.Chunks, "query should return chunks")
		assert.Contains(t, strings.ToLower(result.Chunks[0].Content), "postgres", "top chunk should be the postgres segment")
		assert.NotEmpty(t, result.Chunks[0].Sources, "fused chunks should carry their sources")
	})
}

func TestResetVectorizationStatus(t *testing.T) {
	// Embedding requests always fail, so every processed segment ends up failed.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	t.Cleanup(server.Close)

	r := initRetriever(t, server.URL)

	dataset, err := r.CreateDataset("reset-"+uuid.NewString(), model.RetrievalModeVector, nil, nil, "embed-test")
	require.NoError(t, err, "CreateDataset should not error")

	before := time.Now().Add(-time.Second)
	_, err = r.IndexSegments(context.Background(), dataset.RID, []string{"sample"})
	require.NoError(t, err, "IndexSegments should not error")

	// Drain the queued job so it cannot fail segments after the reset below.
	r.Queue.Close()
	require.NoError(t, r.ProcessVectorization(context.Background(), dataset.ID, nil), "embedding failures should not fail the job")

	documents, err := r.Documents.SelectDocumentsByDataset(dataset.ID, before, 100)
	require.NoError(t, err, "SelectDocumentsByDataset should not error")
	require.Len(t, documents, 1, "one document should exist")
	assert.Equal(t, model.DocumentStatusFailed, documents[0].Status, "document should be failed when every segment failed")

	count, err := r.ResetVectorizationStatus(dataset.ID, nil)
	require.NoError(t, err, "ResetVectorizationStatus should not error")
	assert.Equal(t, int64(2), count, "both failed segments should be reset")

	pending, err := r.Segments.SelectPendingSegments(dataset.ID, nil)
	require.NoError(t, err, "SelectPendingSegments should not error")
	assert.Len(t, pending, 2, "reset segments should be pending again")
}
