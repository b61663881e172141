// Package core wires the ingestion and retrieval components into the
// service surface the rest of the application calls.
package core

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bull/study-core/internal/chunk"
	"github.com/bull/study-core/internal/config"
	"github.com/bull/study-core/internal/embedding"
	"github.com/bull/study-core/internal/extract"
	"github.com/bull/study-core/internal/generate"
	"github.com/bull/study-core/internal/llm"
	"github.com/bull/study-core/internal/pipeline"
	"github.com/bull/study-core/internal/search"
	"github.com/bull/study-core/internal/storage"
	"github.com/bull/study-core/internal/worker"
)

// Service exposes the core operations: document processing, topic search,
// answer and flashcard generation, and provider health.
type Service struct {
	cfg    *config.Config
	logger *zap.Logger

	docs        *storage.RedisDocumentStore
	chunks      *storage.QdrantStore
	coordinator *pipeline.Coordinator
	enqueuer    *worker.Enqueuer
	searchSvc   *search.Service
	answers     *generate.AnswerService
	flashcards  *generate.FlashcardService
	orch        *llm.Orchestrator
}

// New builds the full service from configuration. It connects to Redis and
// Qdrant, ensures the chunk collection exists, and constructs every
// provider named in the fallback order; providers whose credentials are
// missing are skipped with a warning rather than failing startup.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	docs, err := storage.NewRedisDocumentStore(cfg.Redis.Addr, cfg.Redis.DB)
	if err != nil {
		return nil, fmt.Errorf("connecting document store: %w", err)
	}

	chunks, err := storage.NewQdrantStore(cfg.Qdrant.Host, cfg.Qdrant.Port, cfg.Embedding.Dimension)
	if err != nil {
		return nil, fmt.Errorf("connecting vector store: %w", err)
	}
	if err := chunks.EnsureCollection(ctx); err != nil {
		return nil, fmt.Errorf("ensuring chunk collection: %w", err)
	}

	embedClient, err := embedding.NewClient(cfg.Embedding.APIKeyEnv)
	if err != nil {
		return nil, fmt.Errorf("building embedding client: %w", err)
	}
	embedder := embedding.NewEmbedder(
		embedding.NewOpenAIProvider(embedClient, cfg.Embedding.Model),
		embedding.Options{
			BatchSize:     cfg.Embedding.BatchSize,
			MaxInFlight:   cfg.Embedding.MaxInFlight,
			RatePerSecond: cfg.Embedding.RatePerSecond,
		},
	)

	providers := buildProviders(cfg, logger)
	registry := llm.NewRegistry(providers, llm.BreakerConfig{
		FailureThreshold: cfg.Providers.Breaker.FailureThreshold,
		WindowSize:       cfg.Providers.Breaker.WindowSize,
		CooldownBase:     cfg.Providers.Breaker.CooldownBase.Std(),
		CooldownMax:      cfg.Providers.Breaker.CooldownMax.Std(),
	}, nil)
	cache := llm.NewRedisCache(docs.Client(), cfg.Degradation.CacheTTL.Std())
	orch := llm.NewOrchestrator(registry, cache, llm.RetryConfig{
		MaxAttempts: cfg.Providers.Retry.MaxAttempts,
		BaseDelay:   cfg.Providers.Retry.BaseDelay.Std(),
		Multiplier:  cfg.Providers.Retry.Multiplier,
		MaxDelay:    cfg.Providers.Retry.MaxDelay.Std(),
	}, cfg.Providers.MaxInFlight, logger)

	searchSvc := search.NewService(embedder, chunks, docs, logger)
	coordinator := pipeline.NewCoordinator(
		extract.NewExtractor(logger),
		chunk.NewSplitter(cfg.Chunking.TargetSize, cfg.Chunking.Overlap),
		embedder, chunks, docs, docs, logger)

	return &Service{
		cfg:         cfg,
		logger:      logger,
		docs:        docs,
		chunks:      chunks,
		coordinator: coordinator,
		enqueuer:    worker.NewEnqueuer(cfg.Redis.Addr, logger),
		searchSvc:   searchSvc,
		answers:     generate.NewAnswerService(searchSvc, orch, logger),
		flashcards:  generate.NewFlashcardService(orch, logger),
		orch:        orch,
	}, nil
}

// buildProviders constructs the fallback chain from configuration, in
// order. A provider whose API key is unset is left out of the chain.
func buildProviders(cfg *config.Config, logger *zap.Logger) []llm.Provider {
	var providers []llm.Provider
	for _, name := range cfg.Providers.Order {
		pc, _ := cfg.Provider(name)
		p, err := llm.NewProvider(name, pc.APIKeyEnv, pc.Model, pc.Timeout.Std())
		if err != nil {
			logger.Warn("provider unavailable, excluding from fallback chain",
				zap.String("provider", name),
				zap.Error(err))
			continue
		}
		providers = append(providers, p)
	}
	return providers
}

// Coordinator returns the processing pipeline for worker processes.
func (s *Service) Coordinator() *pipeline.Coordinator { return s.coordinator }

// Upload registers a new document under a topic and queues it for
// processing. The call returns as soon as the task is enqueued; callers
// poll DocumentStatus for progress.
func (s *Service) Upload(ctx context.Context, topicID, filename, mimeType string, data []byte) (*storage.Document, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty upload %q", filename)
	}
	doc := &storage.Document{
		ID:        uuid.NewString(),
		TopicID:   topicID,
		Filename:  filename,
		SizeBytes: int64(len(data)),
		MimeType:  mimeType,
		Status:    storage.StatusPending,
	}
	if err := s.docs.Put(ctx, doc); err != nil {
		return nil, fmt.Errorf("registering document: %w", err)
	}
	if err := s.docs.PutBlob(ctx, doc.ID, data); err != nil {
		return nil, fmt.Errorf("storing document bytes: %w", err)
	}
	if err := s.enqueuer.Enqueue(ctx, doc.ID); err != nil {
		return nil, fmt.Errorf("queueing document: %w", err)
	}
	return doc, nil
}

// ProcessDocument re-queues an existing document. Idempotent: safe to call
// after an ERROR outcome or to rebuild a processed document's chunks.
func (s *Service) ProcessDocument(ctx context.Context, documentID string) error {
	if _, err := s.docs.Get(ctx, documentID); err != nil {
		return err
	}
	return s.enqueuer.Enqueue(ctx, documentID)
}

// DocumentStatus returns the current document record.
func (s *Service) DocumentStatus(ctx context.Context, documentID string) (*storage.Document, error) {
	return s.docs.Get(ctx, documentID)
}

// DeleteDocument removes a document's record, stored bytes and chunks.
func (s *Service) DeleteDocument(ctx context.Context, documentID string) error {
	if err := s.chunks.DeleteDocumentChunks(ctx, documentID); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}
	if err := s.docs.DeleteBlob(ctx, documentID); err != nil {
		return fmt.Errorf("deleting document bytes: %w", err)
	}
	return s.docs.Delete(ctx, documentID)
}

// Search runs a topic-scoped similarity search.
func (s *Service) Search(ctx context.Context, topicID, query string, minScore float64, documentIDs ...string) ([]*storage.SearchResult, error) {
	opts := search.Options{
		Limit:       s.cfg.Search.Limit,
		MinScore:    float32(minScore),
		DocumentIDs: documentIDs,
	}
	if opts.MinScore <= 0 {
		opts.MinScore = float32(s.cfg.Search.MinScore)
	}
	return s.searchSvc.Search(ctx, topicID, query, opts)
}

// GenerateAnswer answers a question from the topic's indexed material.
func (s *Service) GenerateAnswer(ctx context.Context, topicID, question string) (*generate.Answer, error) {
	return s.answers.GenerateAnswer(ctx, topicID, question)
}

// GenerateFlashcards builds flashcards from the given content.
func (s *Service) GenerateFlashcards(ctx context.Context, content, style string, count int) (*generate.FlashcardResult, error) {
	return s.flashcards.GenerateFlashcards(ctx, content, style, count)
}

// ProviderHealth reports circuit state per provider plus the aggregate
// degradation counters.
func (s *Service) ProviderHealth() llm.HealthReport {
	return s.orch.Health()
}

// Ping verifies the backing stores are reachable.
func (s *Service) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.chunks.Health(ctx)
}

// Close releases store connections.
func (s *Service) Close() error {
	s.enqueuer.Close()
	s.chunks.Close()
	return s.docs.Close()
}
