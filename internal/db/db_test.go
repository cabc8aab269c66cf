package db

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"document-intelligence/internal/config"
	"document-intelligence/internal/models"
)

func TestChunkConversion(t *testing.T) {
	docID := uuid.New()
	in := models.DocumentChunk{
		DocumentID:       docID,
		WorkspaceID:      "ws",
		UserID:           "u",
		ChunkText:        "| a |\n| --- |",
		ChunkIndex:       3,
		ChunkType:        models.ChunkTypeTable,
		TokenCount:       3,
		CharacterCount:   13,
		Embedding:        []float32{0.5, 0.25},
		EmbeddingModel:   "m",
		ChunkingStrategy: models.ChunkingStrategyToken,
		EmbeddingFailed:  true,
	}

	row := chunkFromModel(in)
	assert.Equal(t, uuid.Nil, row.ID)
	assert.Equal(t, "table", row.ChunkType)
	assert.Equal(t, []float32{0.5, 0.25}, row.Embedding.Slice())

	out := row.toModel()
	assert.Equal(t, in, out)
}

func TestDocumentFromMetadata(t *testing.T) {
	meta := models.DocumentMetadata{DocumentID: uuid.New(), WorkspaceID: "ws", FileName: "a.pdf", FileSize: 42}
	doc := documentFromMetadata(meta)
	assert.Equal(t, meta.DocumentID, doc.ID)
	assert.Equal(t, "uploaded", doc.ProcessingStatus)
	assert.Nil(t, doc.ProcessedAt)
	assert.EqualValues(t, 42, doc.FileSize)
}

func TestDocumentIDs(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	ids := documentIDs([]models.DocumentChunk{{DocumentID: a}, {DocumentID: a}, {DocumentID: b}})
	assert.Equal(t, []uuid.UUID{a, b}, ids)
}

func TestConnectDB_UnknownDriver(t *testing.T) {
	_, err := ConnectDB(config.DatabaseConfig{Driver: "mysql", DSN: "x"})
	assert.Error(t, err)
}

// TestStore_Postgres runs against a real database with the vector extension.
func TestStore_Postgres(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	store, err := Open(config.DatabaseConfig{Driver: "pgdriver", DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.InitSchema(ctx))

	meta := models.DocumentMetadata{DocumentID: uuid.New(), WorkspaceID: "ws-" + uuid.NewString(), UserID: "u"}
	require.NoError(t, store.RegisterDocument(ctx, meta))
	t.Cleanup(func() { _ = store.DeleteDocument(context.Background(), meta.DocumentID) })

	status, err := store.GetDocumentStatus(ctx, meta.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUploaded, status)

	require.NoError(t, store.UpdateStatus(ctx, meta.DocumentID, models.StatusProcessing))
	assert.ErrorIs(t, store.UpdateStatus(ctx, uuid.New(), models.StatusProcessing), models.ErrDocumentNotFound)

	chunks := []models.DocumentChunk{
		{DocumentID: meta.DocumentID, WorkspaceID: meta.WorkspaceID, ChunkText: "first", ChunkIndex: 0, ChunkType: models.ChunkTypeText, Embedding: []float32{1, 0, 0}},
		{DocumentID: meta.DocumentID, WorkspaceID: meta.WorkspaceID, ChunkText: "second", ChunkIndex: 1, ChunkType: models.ChunkTypeText, Embedding: []float32{0.8, 0.6, 0}},
		{DocumentID: meta.DocumentID, WorkspaceID: meta.WorkspaceID, ChunkText: "failed", ChunkIndex: 2, ChunkType: models.ChunkTypeText, Embedding: []float32{0, 0, 0}, EmbeddingFailed: true},
	}
	n, err := store.InsertChunks(ctx, chunks)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NotEqual(t, uuid.Nil, chunks[0].ID)

	results, err := store.SimilaritySearch(ctx, models.SimilarityQuery{
		Vector: []float32{1, 0, 0}, WorkspaceID: meta.WorkspaceID, Threshold: 0.5, Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "first", results[0].ChunkText)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-6)
	assert.InDelta(t, 0.8, results[1].Similarity, 1e-6)

	got, err := store.GetChunks(ctx, meta.DocumentID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, c := range got {
		assert.Equal(t, i, c.ChunkIndex)
	}

	require.NoError(t, store.UpdateStatus(ctx, meta.DocumentID, models.StatusProcessed))
	status, err = store.GetDocumentStatus(ctx, meta.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessed, status)
}
