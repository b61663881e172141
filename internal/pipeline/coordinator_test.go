package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/study-core/internal/chunk"
	"github.com/bull/study-core/internal/embedding"
	"github.com/bull/study-core/internal/extract"
	"github.com/bull/study-core/internal/storage"
)

// unitProvider embeds every text as a fixed unit vector.
type unitProvider struct{}

func (unitProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

// brokenProvider always fails, simulating an embedding outage.
type brokenProvider struct{}

func (brokenProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("embedding provider down")
}

func fixture(t *testing.T, provider embedding.Provider) (*Coordinator, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	c := NewCoordinator(
		extract.NewExtractor(nil),
		chunk.NewSplitter(100, 20),
		embedding.NewEmbedder(provider, embedding.Options{BatchSize: 2}),
		store, store, store, nil)
	return c, store
}

func newDoc(t *testing.T, store *storage.MemoryStore, id string) {
	t.Helper()
	require.NoError(t, store.Put(context.Background(), &storage.Document{
		ID: id, TopicID: "topic", Filename: id + ".txt", MimeType: "text/plain",
		Status: storage.StatusPending,
	}))
}

func TestProcess_HappyPath(t *testing.T) {
	ctx := context.Background()
	c, store := fixture(t, unitProvider{})
	newDoc(t, store, "doc")

	text := strings.Repeat("Study material sentence number one. ", 12)
	require.NoError(t, c.Process(ctx, "doc", []byte(text), "text/plain"))

	doc, err := store.Get(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, storage.StatusProcessed, doc.Status)
	assert.Empty(t, doc.ErrorMessage)
	assert.Greater(t, doc.ChunkCount, 1)

	count, err := store.CountDocumentChunks(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, doc.ChunkCount, count)

	// Ordinals are contiguous and every chunk carries its vector.
	results, err := store.SearchChunks(ctx, []float32{1, 0}, "topic", 100, 0)
	require.NoError(t, err)
	require.Len(t, results, count)
	for i, r := range results {
		assert.Equal(t, i, r.Chunk.Ordinal)
		assert.NotEmpty(t, r.Chunk.Embedding)
	}
}

func TestProcess_ExtractionFailureSetsError(t *testing.T) {
	ctx := context.Background()
	c, store := fixture(t, unitProvider{})
	newDoc(t, store, "doc")

	err := c.Process(ctx, "doc", []byte{0x50, 0x4B, 0x03, 0x04}, "application/zip")
	require.Error(t, err)

	doc, getErr := store.Get(ctx, "doc")
	require.NoError(t, getErr)
	assert.Equal(t, storage.StatusError, doc.Status)
	assert.Contains(t, doc.ErrorMessage, "unsupported")

	count, countErr := store.CountDocumentChunks(ctx, "doc")
	require.NoError(t, countErr)
	assert.Equal(t, 0, count, "failed extraction must create no chunks")
}

func TestProcess_EmptyDocumentSetsError(t *testing.T) {
	ctx := context.Background()
	c, store := fixture(t, unitProvider{})
	newDoc(t, store, "doc")

	err := c.Process(ctx, "doc", []byte("   \n  "), "text/plain")
	require.Error(t, err)

	doc, getErr := store.Get(ctx, "doc")
	require.NoError(t, getErr)
	assert.Equal(t, storage.StatusError, doc.Status)
}

func TestProcess_EmbeddingFailureLeavesNoChunks(t *testing.T) {
	ctx := context.Background()
	c, store := fixture(t, brokenProvider{})
	newDoc(t, store, "doc")

	err := c.Process(ctx, "doc", []byte(strings.Repeat("Some text here. ", 20)), "text/plain")
	require.Error(t, err)

	doc, getErr := store.Get(ctx, "doc")
	require.NoError(t, getErr)
	assert.Equal(t, storage.StatusError, doc.Status)
	assert.Contains(t, doc.ErrorMessage, "embedding")

	count, countErr := store.CountDocumentChunks(ctx, "doc")
	require.NoError(t, countErr)
	assert.Equal(t, 0, count, "either all chunks persist or none do")
}

func TestProcess_ReprocessAfterError(t *testing.T) {
	ctx := context.Background()
	c, store := fixture(t, unitProvider{})
	newDoc(t, store, "doc")

	require.Error(t, c.Process(ctx, "doc", []byte("  "), "text/plain"))
	doc, _ := store.Get(ctx, "doc")
	require.Equal(t, storage.StatusError, doc.Status)

	// Second attempt with good content recovers.
	require.NoError(t, c.Process(ctx, "doc", []byte("Recovered content for the document."), "text/plain"))
	doc, err := store.Get(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, storage.StatusProcessed, doc.Status)
	assert.Empty(t, doc.ErrorMessage)
}

func TestProcess_ReprocessPurgesOldChunks(t *testing.T) {
	ctx := context.Background()
	c, store := fixture(t, unitProvider{})
	newDoc(t, store, "doc")

	long := strings.Repeat("First version of the material. ", 12)
	require.NoError(t, c.Process(ctx, "doc", []byte(long), "text/plain"))
	firstCount, err := store.CountDocumentChunks(ctx, "doc")
	require.NoError(t, err)
	require.Greater(t, firstCount, 1)

	// Reprocess with a much shorter document.
	require.NoError(t, c.Process(ctx, "doc", []byte("Tiny second version."), "text/plain"))
	secondCount, err := store.CountDocumentChunks(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, 1, secondCount, "old chunks must be purged on reprocess")

	doc, err := store.Get(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, 1, doc.ChunkCount)
}

func TestProcessStored(t *testing.T) {
	ctx := context.Background()
	c, store := fixture(t, unitProvider{})
	newDoc(t, store, "doc")
	require.NoError(t, store.PutBlob(ctx, "doc", []byte("Stored bytes for processing.")))

	require.NoError(t, c.ProcessStored(ctx, "doc"))

	doc, err := store.Get(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, storage.StatusProcessed, doc.Status)
}

func TestProcess_UnknownDocument(t *testing.T) {
	c, _ := fixture(t, unitProvider{})
	err := c.Process(context.Background(), "missing", []byte("text"), "text/plain")
	assert.ErrorIs(t, err, storage.ErrDocumentNotFound)
}
