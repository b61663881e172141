package storage

import "context"

// ChunkStore persists chunk vectors and answers topic-scoped similarity
// queries. QdrantStore is the production implementation; MemoryStore backs
// tests and doubles as the exhaustive-scan ranking oracle.
type ChunkStore interface {
	UpsertChunks(ctx context.Context, chunks []*Chunk) error
	DeleteDocumentChunks(ctx context.Context, documentID string) error
	CountDocumentChunks(ctx context.Context, documentID string) (int, error)
	SearchChunks(ctx context.Context, vector []float32, topicID string, limit int, minScore float32, documentIDs ...string) ([]*ScoredChunk, error)
}

// DocumentStore holds document records and their lifecycle status. The rest
// of the application polls this while processing runs.
type DocumentStore interface {
	Put(ctx context.Context, doc *Document) error
	Get(ctx context.Context, id string) (*Document, error)
	SetStatus(ctx context.Context, id string, status DocumentStatus, errorMessage string) error
	Delete(ctx context.Context, id string) error
}

// BlobStore holds the raw uploaded bytes so processing can be re-triggered
// by document id alone.
type BlobStore interface {
	PutBlob(ctx context.Context, id string, data []byte) error
	GetBlob(ctx context.Context, id string) ([]byte, error)
	DeleteBlob(ctx context.Context, id string) error
}
