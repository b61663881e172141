package embedding

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	// DefaultModel is the embedding model used when none is configured.
	DefaultModel = "text-embedding-3-small"

	// DefaultBatchSize keeps each request small enough that one failed
	// batch wastes little work and stays inside provider token limits.
	DefaultBatchSize = 10

	// DefaultMaxInFlight bounds concurrent embedding requests.
	DefaultMaxInFlight = 10
)

// Provider is the raw batch-embedding call. OpenAIProvider is the
// production implementation; tests substitute a deterministic fake.
type Provider interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Embedder generates embeddings for text batches. It splits work into
// batches, runs a bounded number of requests concurrently, rate-limits the
// calls, retries rate-limited batches with exponential backoff, and returns
// vectors in input order.
type Embedder struct {
	provider    Provider
	batchSize   int
	maxInFlight int
	limiter     *rate.Limiter
}

// Options tunes the embedder. Zero values pick the defaults above.
type Options struct {
	BatchSize     int
	MaxInFlight   int
	RatePerSecond int
}

// NewEmbedder creates an Embedder on top of the given provider.
func NewEmbedder(provider Provider, opts Options) *Embedder {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = DefaultMaxInFlight
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.RatePerSecond)
	}
	return &Embedder{
		provider:    provider,
		batchSize:   opts.BatchSize,
		maxInFlight: opts.MaxInFlight,
		limiter:     limiter,
	}
}

// Embed generates embeddings for the given texts. Batches run concurrently
// up to the in-flight limit, but results are reassembled so that
// result[i] always corresponds to texts[i].
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, len(texts))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxInFlight)

	for start := 0; start < len(texts); start += e.batchSize {
		start := start
		end := min(start+e.batchSize, len(texts))
		g.Go(func() error {
			vectors, err := e.embedBatchWithRetry(ctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("batch %d-%d: %w", start, end, err)
			}
			copy(results[start:end], vectors)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// embedBatchWithRetry embeds a single batch, retrying transient failures
// with exponential backoff. Permanent failures (client errors, bad
// credentials) fail immediately.
func (e *Embedder) embedBatchWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32

	operation := func() error {
		if err := e.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		out, err := e.provider.EmbedBatch(ctx, texts)
		if err != nil {
			if IsTransientError(err) {
				return err // retried with backoff
			}
			return backoff.Permanent(err)
		}
		if len(out) != len(texts) {
			return backoff.Permanent(fmt.Errorf("provider returned %d vectors for %d texts", len(out), len(texts)))
		}
		vectors = out
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	err := backoff.Retry(operation, backoff.WithContext(b, ctx))
	return vectors, err
}

// OpenAIProvider embeds text through the OpenAI embeddings API.
type OpenAIProvider struct {
	client *Client
	model  string
}

// NewOpenAIProvider creates the production embedding provider.
func NewOpenAIProvider(client *Client, model string) *OpenAIProvider {
	if model == "" {
		model = DefaultModel
	}
	return &OpenAIProvider{client: client, model: model}
}

// EmbedBatch embeds one batch of texts.
func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := p.client.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		Model: p.model,
	})
	if err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		vectors[i] = toFloat32(data.Embedding)
	}
	return vectors, nil
}

// IsRateLimitError checks whether the error is an HTTP 429 from the API.
func IsRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

// IsTransientError reports whether the error is worth retrying: an HTTP
// 429 or 5xx from the API, or a timeout or connection failure before any
// status was received. Other API errors (bad request, bad credentials)
// are permanent. Context cancellation is never retried.
func IsTransientError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// toFloat32 converts []float64 to []float32. The API returns float64, but
// storage uses float32 for memory efficiency.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
