// Package pipeline drives a document through extraction, chunking,
// embedding and persistence, maintaining the status record the rest of the
// application polls.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bull/study-core/internal/chunk"
	"github.com/bull/study-core/internal/embedding"
	"github.com/bull/study-core/internal/extract"
	"github.com/bull/study-core/internal/storage"
)

// ErrEmptyDocument means extraction produced no chunkable text.
var ErrEmptyDocument = errors.New("document produced no text chunks")

// Coordinator owns the processing state machine for documents.
type Coordinator struct {
	extractor *extract.Extractor
	splitter  *chunk.Splitter
	embedder  *embedding.Embedder
	chunks    storage.ChunkStore
	docs      storage.DocumentStore
	blobs     storage.BlobStore
	logger    *zap.Logger
}

// NewCoordinator wires a coordinator. blobs may be nil when ProcessStored
// is not used; logger may be nil.
func NewCoordinator(
	extractor *extract.Extractor,
	splitter *chunk.Splitter,
	embedder *embedding.Embedder,
	chunks storage.ChunkStore,
	docs storage.DocumentStore,
	blobs storage.BlobStore,
	logger *zap.Logger,
) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		extractor: extractor,
		splitter:  splitter,
		embedder:  embedder,
		chunks:    chunks,
		docs:      docs,
		blobs:     blobs,
		logger:    logger,
	}
}

// ProcessStored loads the document's stored bytes and runs Process. This is
// the idempotent by-id trigger the worker uses.
func (c *Coordinator) ProcessStored(ctx context.Context, documentID string) error {
	if c.blobs == nil {
		return errors.New("no blob store configured")
	}
	doc, err := c.docs.Get(ctx, documentID)
	if err != nil {
		return fmt.Errorf("loading document %s: %w", documentID, err)
	}
	data, err := c.blobs.GetBlob(ctx, documentID)
	if err != nil {
		return fmt.Errorf("loading document bytes for %s: %w", documentID, err)
	}
	return c.Process(ctx, documentID, data, doc.MimeType)
}

// Process runs the full pipeline for one document. It is safe to call again
// after an ERROR outcome; reprocessing purges the previous chunks before
// persisting new ones. Chunks are persisted only after every embedding
// succeeded, so a document either has its full chunk set or none.
func (c *Coordinator) Process(ctx context.Context, documentID string, data []byte, mimeHint string) error {
	doc, err := c.docs.Get(ctx, documentID)
	if err != nil {
		return fmt.Errorf("loading document %s: %w", documentID, err)
	}

	if err := c.docs.SetStatus(ctx, documentID, storage.StatusProcessing, ""); err != nil {
		return fmt.Errorf("entering processing: %w", err)
	}
	started := time.Now()
	log := c.logger.With(
		zap.String("document_id", documentID),
		zap.String("filename", doc.Filename))
	log.Info("processing document", zap.Int("size_bytes", len(data)))

	text, err := c.extractor.Extract(data, mimeHint)
	if err != nil {
		return c.fail(ctx, documentID, log, fmt.Errorf("extracting text: %w", err))
	}

	pieces := c.splitter.Split(text)
	if len(pieces) == 0 {
		return c.fail(ctx, documentID, log, ErrEmptyDocument)
	}

	texts := make([]string, len(pieces))
	for i, p := range pieces {
		texts[i] = p.Text
	}
	vectors, err := c.embedder.Embed(ctx, texts)
	if err != nil {
		return c.fail(ctx, documentID, log, fmt.Errorf("embedding chunks: %w", err))
	}

	records := make([]*storage.Chunk, len(pieces))
	for i, p := range pieces {
		records[i] = &storage.Chunk{
			ID:         uuid.NewString(),
			DocumentID: documentID,
			TopicID:    doc.TopicID,
			Ordinal:    p.Index,
			Text:       p.Text,
			OverlapLen: p.OverlapLen,
			Metadata:   pieceMetadata(p),
			Embedding:  vectors[i],
		}
	}

	// Purge-then-persist: stale chunks from a previous run must never
	// coexist with the new set.
	if err := c.chunks.DeleteDocumentChunks(ctx, documentID); err != nil {
		return c.fail(ctx, documentID, log, fmt.Errorf("purging previous chunks: %w", err))
	}
	if err := c.chunks.UpsertChunks(ctx, records); err != nil {
		// A partial upsert would leave the document half-indexed. Best
		// effort cleanup before reporting the failure.
		if cleanupErr := c.chunks.DeleteDocumentChunks(ctx, documentID); cleanupErr != nil {
			log.Error("cleanup after failed upsert also failed", zap.Error(cleanupErr))
		}
		return c.fail(ctx, documentID, log, fmt.Errorf("persisting chunks: %w", err))
	}

	doc.ChunkCount = len(records)
	doc.Status = storage.StatusProcessing
	doc.ErrorMessage = ""
	if err := c.docs.Put(ctx, doc); err != nil {
		return c.fail(ctx, documentID, log, fmt.Errorf("updating document record: %w", err))
	}
	if err := c.docs.SetStatus(ctx, documentID, storage.StatusProcessed, ""); err != nil {
		return fmt.Errorf("marking processed: %w", err)
	}

	log.Info("document processed",
		zap.Int("chunks", len(records)),
		zap.Duration("elapsed", time.Since(started)))
	return nil
}

// fail records the error on the document and returns it.
func (c *Coordinator) fail(ctx context.Context, documentID string, log *zap.Logger, cause error) error {
	log.Error("document processing failed", zap.Error(cause))
	if err := c.docs.SetStatus(ctx, documentID, storage.StatusError, cause.Error()); err != nil {
		log.Error("recording error status failed", zap.Error(err))
	}
	return cause
}

func pieceMetadata(p chunk.Piece) map[string]any {
	if p.StartPage == 0 && p.EndPage == 0 {
		return nil
	}
	return map[string]any{
		"page_start": p.StartPage,
		"page_end":   p.EndPage,
	}
}
