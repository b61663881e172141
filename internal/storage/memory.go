package storage

import (
	"context"
	"math"
	"sync"
	"time"
)

// MemoryStore is an in-memory ChunkStore and DocumentStore. Search is an
// exhaustive cosine scan, which makes it the ranking oracle any indexed
// implementation must agree with.
type MemoryStore struct {
	mu        sync.RWMutex
	docs      map[string]*Document
	chunks    map[string]*Chunk
	docChunks map[string][]string
	blobs     map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:      make(map[string]*Document),
		chunks:    make(map[string]*Chunk),
		docChunks: make(map[string][]string),
		blobs:     make(map[string][]byte),
	}
}

func (s *MemoryStore) UpsertChunks(ctx context.Context, chunks []*Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, chunk := range chunks {
		c := *chunk
		s.chunks[c.ID] = &c
		s.docChunks[c.DocumentID] = append(s.docChunks[c.DocumentID], c.ID)
	}
	return nil
}

func (s *MemoryStore) DeleteDocumentChunks(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.docChunks[documentID] {
		delete(s.chunks, id)
	}
	delete(s.docChunks, documentID)
	return nil
}

func (s *MemoryStore) CountDocumentChunks(ctx context.Context, documentID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docChunks[documentID]), nil
}

// SearchChunks scans every chunk in the topic and ranks by cosine
// similarity. Descending score, ties by ascending ordinal, scores below
// minScore dropped.
func (s *MemoryStore) SearchChunks(ctx context.Context, vector []float32, topicID string, limit int, minScore float32, documentIDs ...string) ([]*ScoredChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	allowed := map[string]bool{}
	for _, id := range documentIDs {
		allowed[id] = true
	}

	var scored []*ScoredChunk
	for _, chunk := range s.chunks {
		if chunk.TopicID != topicID {
			continue
		}
		if len(allowed) > 0 && !allowed[chunk.DocumentID] {
			continue
		}
		score := CosineSimilarity(vector, chunk.Embedding)
		if score < float64(minScore) {
			continue
		}
		scored = append(scored, &ScoredChunk{Chunk: chunk, Score: score})
	}

	sortScored(scored)
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// CosineSimilarity returns the cosine of the angle between two vectors.
// Mismatched lengths or zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// DocumentStore implementation.

func (s *MemoryStore) Put(ctx context.Context, doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := *doc
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	d.UpdatedAt = time.Now().UTC()
	s.docs[d.ID] = &d
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, ErrDocumentNotFound
	}
	d := *doc
	return &d, nil
}

func (s *MemoryStore) SetStatus(ctx context.Context, id string, status DocumentStatus, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return ErrDocumentNotFound
	}
	if !ValidTransition(doc.Status, status) {
		return ErrInvalidTransition
	}
	doc.Status = status
	doc.ErrorMessage = errorMessage
	doc.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, id)
	return nil
}

// BlobStore implementation.

func (s *MemoryStore) PutBlob(ctx context.Context, id string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	s.blobs[id] = buf
	return nil
}

func (s *MemoryStore) GetBlob(ctx context.Context, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[id]
	if !ok {
		return nil, ErrDocumentNotFound
	}
	return data, nil
}

func (s *MemoryStore) DeleteBlob(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, id)
	return nil
}

// ValidTransition reports whether moving a document from one status to
// another respects the monotonic lifecycle. The only re-entry edge is
// ERROR -> PROCESSING on an explicit reprocess.
func ValidTransition(from, to DocumentStatus) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing
	case StatusProcessing:
		return to == StatusProcessed || to == StatusError
	case StatusError:
		return to == StatusProcessing
	case StatusProcessed:
		return to == StatusProcessing // reprocess
	}
	return false
}
