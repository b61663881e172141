// Package search answers topic-scoped similarity queries over stored chunk
// vectors and assembles retrieved context for generation.
package search

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/bull/study-core/internal/embedding"
	"github.com/bull/study-core/internal/storage"
)

// Defaults applied when a query leaves options unset.
const (
	DefaultLimit    = 10
	DefaultMinScore = 0.1
)

// Options tune one search call.
type Options struct {
	Limit    int
	MinScore float32
	// DocumentIDs restricts results to the given documents within the
	// topic. Empty means the whole topic.
	DocumentIDs []string
}

// Service embeds queries and runs similarity search against the chunk
// store.
type Service struct {
	embedder *embedding.Embedder
	chunks   storage.ChunkStore
	docs     storage.DocumentStore
	logger   *zap.Logger
}

// NewService wires a search service. docs may be nil when filename
// resolution is not needed; logger may be nil.
func NewService(embedder *embedding.Embedder, chunks storage.ChunkStore, docs storage.DocumentStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{embedder: embedder, chunks: chunks, docs: docs, logger: logger}
}

// Search embeds the query and returns ranked results scoped to topicID.
// Results are ordered by descending score with ties broken by ascending
// chunk ordinal, and every score is at least opts.MinScore.
func (s *Service) Search(ctx context.Context, topicID, query string, opts Options) ([]*storage.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.MinScore <= 0 {
		opts.MinScore = DefaultMinScore
	}

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	scored, err := s.chunks.SearchChunks(ctx, vectors[0], topicID, opts.Limit, opts.MinScore, opts.DocumentIDs...)
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}

	filenames := s.resolveFilenames(ctx, scored)
	results := make([]*storage.SearchResult, 0, len(scored))
	for _, sc := range scored {
		results = append(results, &storage.SearchResult{
			ChunkID:          sc.Chunk.ID,
			DocumentID:       sc.Chunk.DocumentID,
			DocumentFilename: filenames[sc.Chunk.DocumentID],
			Ordinal:          sc.Chunk.Ordinal,
			Score:            sc.Score,
			Text:             sc.Chunk.Text,
			Snippet:          makeSnippet(sc.Chunk.ScoringText(), query),
		})
	}

	s.logger.Debug("search complete",
		zap.String("topic_id", topicID),
		zap.Int("results", len(results)))
	return results, nil
}

// Context is assembled retrieval context for a generation request.
type Context struct {
	// Text is the concatenated context with per-document source headers.
	// Full chunk text is used, overlap included.
	Text string
	// Sources are the results the text was built from, in rank order.
	Sources []*storage.SearchResult
	// AvgScore is the mean similarity of the included results.
	AvgScore float64
}

// RelevantContext searches the topic and assembles up to maxChunks results
// into a single context block bounded by maxChars. Each block is prefixed
// with its source filename so generated answers can cite documents.
func (s *Service) RelevantContext(ctx context.Context, topicID, query string, maxChunks, maxChars int) (*Context, error) {
	if maxChunks <= 0 {
		maxChunks = 5
	}
	if maxChars <= 0 {
		maxChars = 8000
	}

	results, err := s.Search(ctx, topicID, query, Options{Limit: maxChunks})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return &Context{}, nil
	}

	var b strings.Builder
	var used []*storage.SearchResult
	var scoreSum float64
	for _, r := range results {
		name := r.DocumentFilename
		if name == "" {
			name = r.DocumentID
		}
		block := fmt.Sprintf("Source: %s\n%s\n\n", name, r.Text)
		if b.Len() > 0 && b.Len()+len(block) > maxChars {
			break
		}
		b.WriteString(block)
		used = append(used, r)
		scoreSum += r.Score
	}

	out := &Context{
		Text:    strings.TrimSpace(b.String()),
		Sources: used,
	}
	if len(used) > 0 {
		out.AvgScore = scoreSum / float64(len(used))
	}
	return out, nil
}

// resolveFilenames maps the distinct document ids in scored to filenames.
// Lookup failures leave entries empty rather than failing the search.
func (s *Service) resolveFilenames(ctx context.Context, scored []*storage.ScoredChunk) map[string]string {
	names := make(map[string]string)
	if s.docs == nil {
		return names
	}
	for _, sc := range scored {
		id := sc.Chunk.DocumentID
		if _, seen := names[id]; seen {
			continue
		}
		doc, err := s.docs.Get(ctx, id)
		if err != nil || doc == nil {
			names[id] = ""
			continue
		}
		names[id] = doc.Filename
	}
	return names
}
