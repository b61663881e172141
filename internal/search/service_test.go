package search

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/study-core/internal/embedding"
	"github.com/bull/study-core/internal/storage"
)

// keywordProvider embeds text as a two-dimensional vector: biology-flavored
// text points one way, history-flavored text the other. Deterministic and
// good enough to exercise ranking end to end.
type keywordProvider struct{}

func (keywordProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		lower := strings.ToLower(text)
		var v [2]float32
		v[0] = float32(strings.Count(lower, "cell") + strings.Count(lower, "biology"))
		v[1] = float32(strings.Count(lower, "empire") + strings.Count(lower, "history"))
		if v[0] == 0 && v[1] == 0 {
			v[0], v[1] = 0.1, 0.1
		}
		out[i] = v[:]
	}
	return out, nil
}

func testService(t *testing.T) (*Service, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	embedder := embedding.NewEmbedder(keywordProvider{}, embedding.Options{BatchSize: 4})
	return NewService(embedder, store, store, nil), store
}

func seedTopic(t *testing.T, store *storage.MemoryStore, docID, topicID, filename string, texts []string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, &storage.Document{
		ID: docID, TopicID: topicID, Filename: filename, Status: storage.StatusProcessed,
	}))

	vectors, err := embedding.NewEmbedder(keywordProvider{}, embedding.Options{}).Embed(ctx, texts)
	require.NoError(t, err)

	chunks := make([]*storage.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = &storage.Chunk{
			ID:         fmt.Sprintf("%s-%d", docID, i),
			DocumentID: docID,
			TopicID:    topicID,
			Ordinal:    i,
			Text:       text,
			Embedding:  vectors[i],
		}
	}
	require.NoError(t, store.UpsertChunks(ctx, chunks))
}

func TestSearch_RanksRelevantChunksFirst(t *testing.T) {
	svc, store := testService(t)
	seedTopic(t, store, "doc-bio", "topic", "biology.txt", []string{
		"The cell is the basic unit of biology. Every cell divides.",
		"The Roman empire dominates this history chapter.",
	})

	results, err := svc.Search(context.Background(), "topic", "cell biology", Options{})
	require.NoError(t, err)
	require.NotEmpty(t, results)

	assert.Equal(t, 0, results[0].Ordinal, "the biology chunk should rank first")
	assert.Equal(t, "biology.txt", results[0].DocumentFilename)
	assert.NotEmpty(t, results[0].Snippet)
	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i].Score, results[i-1].Score)
	}
}

func TestSearch_TopicIsolation(t *testing.T) {
	svc, store := testService(t)
	seedTopic(t, store, "doc-a", "topic-bio", "a.txt", []string{"cell biology content"})
	seedTopic(t, store, "doc-b", "topic-hist", "b.txt", []string{"cell biology content"})

	results, err := svc.Search(context.Background(), "topic-bio", "cell biology", Options{})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Equal(t, "doc-a", r.DocumentID)
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	svc, _ := testService(t)
	results, err := svc.Search(context.Background(), "topic", "   ", Options{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRelevantContext_SourceHeadersAndBudget(t *testing.T) {
	svc, store := testService(t)
	seedTopic(t, store, "doc-bio", "topic", "biology.txt", []string{
		"The cell is the basic unit of biology.",
		"Cell division is central to biology and growth.",
	})

	rc, err := svc.RelevantContext(context.Background(), "topic", "cell biology", 5, 8000)
	require.NoError(t, err)
	require.NotEmpty(t, rc.Sources)

	assert.Contains(t, rc.Text, "Source: biology.txt")
	assert.Greater(t, rc.AvgScore, 0.0)

	// A tight budget still includes at least the top result.
	tight, err := svc.RelevantContext(context.Background(), "topic", "cell biology", 5, 10)
	require.NoError(t, err)
	assert.Len(t, tight.Sources, 1)
}

func TestRelevantContext_NoResults(t *testing.T) {
	svc, _ := testService(t)
	rc, err := svc.RelevantContext(context.Background(), "empty-topic", "cell biology", 5, 8000)
	require.NoError(t, err)
	assert.Empty(t, rc.Sources)
	assert.Empty(t, rc.Text)
}
