package storage

import "time"

// DocumentStatus tracks a document through the processing lifecycle.
// Transitions are monotonic: PENDING -> PROCESSING -> PROCESSED or ERROR.
// ERROR may re-enter PROCESSING on an explicit reprocess request.
type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusProcessed  DocumentStatus = "processed"
	StatusError      DocumentStatus = "error"
)

// Document is the record the rest of the application polls while the
// pipeline works through a file. The raw bytes live with the caller;
// the core only tracks identity, lifecycle, and the error message shown
// to the user when processing fails.
type Document struct {
	ID           string
	TopicID      string
	Filename     string
	SizeBytes    int64
	MimeType     string
	Status       DocumentStatus
	ErrorMessage string
	ChunkCount   int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Chunk is a bounded, ordered segment of a document's extracted text paired
// with its embedding vector. Ordinals within one document are contiguous
// starting at 0 and reflect original document order.
type Chunk struct {
	ID         string
	DocumentID string
	TopicID    string
	Ordinal    int
	Text       string
	// OverlapLen is the number of leading characters repeated from the
	// previous chunk. They are context padding: included when the chunk is
	// handed to a provider, excluded from scoring weight.
	OverlapLen int
	Metadata   map[string]any
	Embedding  []float32
}

// ScoringText returns the chunk text without the overlap prefix carried
// over from the previous chunk.
func (c *Chunk) ScoringText() string {
	if c.OverlapLen <= 0 {
		return c.Text
	}
	runes := []rune(c.Text)
	if c.OverlapLen >= len(runes) {
		return c.Text
	}
	return string(runes[c.OverlapLen:])
}

// SearchResult is one ranked hit from a similarity search. Results are
// ordered by descending score; ties break by ascending chunk ordinal.
type SearchResult struct {
	ChunkID          string
	DocumentID       string
	DocumentFilename string
	Ordinal          int
	Score            float64
	Text             string
	Snippet          string
}

// CollectionName is the single Qdrant collection holding all chunk vectors.
const CollectionName = "study_chunks"

// DefaultVectorDimension is the embedding size for text-embedding-3-small.
// The actual dimension is fixed by configuration; every chunk within a topic
// must carry the same dimensionality.
const DefaultVectorDimension = 1536
