package storage

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedChunks(t *testing.T, store *MemoryStore, docID, topicID string, vectors [][]float32) {
	t.Helper()
	chunks := make([]*Chunk, len(vectors))
	for i, v := range vectors {
		chunks[i] = &Chunk{
			ID:         fmt.Sprintf("%s-chunk-%d", docID, i),
			DocumentID: docID,
			TopicID:    topicID,
			Ordinal:    i,
			Text:       fmt.Sprintf("chunk %d of %s", i, docID),
			Embedding:  v,
		}
	}
	require.NoError(t, store.UpsertChunks(context.Background(), chunks))
}

func TestMemoryStore_TopicIsolation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	seedChunks(t, store, "doc-a", "topic-1", [][]float32{{1, 0}, {0.9, 0.1}})
	seedChunks(t, store, "doc-b", "topic-2", [][]float32{{1, 0}, {0.95, 0.05}})

	results, err := store.SearchChunks(ctx, []float32{1, 0}, "topic-1", 10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Equal(t, "topic-1", r.Chunk.TopicID)
		assert.Equal(t, "doc-a", r.Chunk.DocumentID)
	}
}

func TestMemoryStore_RankingInvariant(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	seedChunks(t, store, "doc", "topic", [][]float32{
		{0.2, 0.8},
		{1, 0},
		{0.6, 0.4},
		{0.9, 0.1},
		{-1, 0},
	})

	minScore := float32(0.3)
	results, err := store.SearchChunks(ctx, []float32{1, 0}, "topic", 10, minScore)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	for i, r := range results {
		assert.GreaterOrEqual(t, r.Score, float64(minScore), "result %d below minScore", i)
		if i > 0 {
			assert.LessOrEqual(t, r.Score, results[i-1].Score, "scores must be non-increasing")
		}
	}
}

func TestMemoryStore_TieBreakByOrdinal(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	// Identical vectors score identically; order must fall back to ordinal.
	seedChunks(t, store, "doc", "topic", [][]float32{{1, 0}, {1, 0}, {1, 0}})

	results, err := store.SearchChunks(ctx, []float32{1, 0}, "topic", 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, i, r.Chunk.Ordinal)
	}
}

func TestMemoryStore_DocumentFilter(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	seedChunks(t, store, "doc-a", "topic", [][]float32{{1, 0}})
	seedChunks(t, store, "doc-b", "topic", [][]float32{{1, 0}})

	results, err := store.SearchChunks(ctx, []float32{1, 0}, "topic", 10, 0, "doc-b")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc-b", results[0].Chunk.DocumentID)
}

func TestMemoryStore_Limit(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	seedChunks(t, store, "doc", "topic", [][]float32{{1, 0}, {0.9, 0.1}, {0.8, 0.2}, {0.7, 0.3}})

	results, err := store.SearchChunks(ctx, []float32{1, 0}, "topic", 2, 0)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestMemoryStore_DeleteDocumentChunks(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	seedChunks(t, store, "doc", "topic", [][]float32{{1, 0}, {0.5, 0.5}})

	count, err := store.CountDocumentChunks(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, store.DeleteDocumentChunks(ctx, "doc"))

	count, err = store.CountDocumentChunks(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	results, err := store.SearchChunks(ctx, []float32{1, 0}, "topic", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{1, 0, 0}), "length mismatch scores 0")
	assert.Equal(t, 0.0, CosineSimilarity([]float32{0, 0}, []float32{1, 0}), "zero vector scores 0")
}

func TestValidTransition(t *testing.T) {
	cases := []struct {
		from, to DocumentStatus
		ok       bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusProcessing, StatusProcessed, true},
		{StatusProcessing, StatusError, true},
		{StatusError, StatusProcessing, true},
		{StatusProcessed, StatusProcessing, true},
		{StatusPending, StatusProcessed, false},
		{StatusPending, StatusError, false},
		{StatusProcessed, StatusError, false},
		{StatusError, StatusProcessed, false},
		{StatusProcessing, StatusPending, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.ok, ValidTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestMemoryStore_StatusLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Put(ctx, &Document{ID: "doc", TopicID: "topic", Status: StatusPending}))

	require.NoError(t, store.SetStatus(ctx, "doc", StatusProcessing, ""))
	require.NoError(t, store.SetStatus(ctx, "doc", StatusError, "extraction failed"))

	doc, err := store.Get(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, StatusError, doc.Status)
	assert.Equal(t, "extraction failed", doc.ErrorMessage)

	// Reprocess path: error re-enters processing and can complete.
	require.NoError(t, store.SetStatus(ctx, "doc", StatusProcessing, ""))
	require.NoError(t, store.SetStatus(ctx, "doc", StatusProcessed, ""))

	// Invalid jumps are rejected.
	err = store.SetStatus(ctx, "doc", StatusError, "nope")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestMemoryStore_GetMissing(t *testing.T) {
	_, err := NewMemoryStore().Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestChunk_ScoringText(t *testing.T) {
	c := &Chunk{Text: "overlapactual content", OverlapLen: 7}
	assert.Equal(t, "actual content", c.ScoringText())

	c = &Chunk{Text: "no overlap", OverlapLen: 0}
	assert.Equal(t, "no overlap", c.ScoringText())

	c = &Chunk{Text: "short", OverlapLen: 10}
	assert.Equal(t, "short", c.ScoringText(), "overlap past text length returns full text")
}
