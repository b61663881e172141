package llm

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrAllProvidersUnavailable is returned when every provider failed or was
// circuit-broken and no cached response exists. Callers fall back to
// template generation.
var ErrAllProvidersUnavailable = errors.New("llm: all providers unavailable")

// UnavailableError is the concrete error returned on that path. It carries
// a recovery hint suitable for surfacing to users; errors.Is matches it
// against ErrAllProvidersUnavailable.
type UnavailableError struct {
	Hint string
}

func (e *UnavailableError) Error() string {
	return ErrAllProvidersUnavailable.Error() + ": " + e.Hint
}

func (e *UnavailableError) Unwrap() error { return ErrAllProvidersUnavailable }

// RetryConfig tunes the per-provider retry loop for transient failures.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
}

// DefaultRetryConfig mirrors the production tuning.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Multiplier:  2.0,
		MaxDelay:    60 * time.Second,
	}
}

// DegradationStats aggregates degradation activity since startup: how often
// a failed provider chain was served from the cache, how often nothing was
// cached either, and how often callers fell back to template generation.
type DegradationStats struct {
	CacheHits         int64 `json:"cache_hits"`
	CacheMisses       int64 `json:"cache_misses"`
	TemplateFallbacks int64 `json:"template_fallbacks"`
}

type degradationCounters struct {
	cacheHits         atomic.Int64
	cacheMisses       atomic.Int64
	templateFallbacks atomic.Int64
}

func (c *degradationCounters) snapshot() DegradationStats {
	return DegradationStats{
		CacheHits:         c.cacheHits.Load(),
		CacheMisses:       c.cacheMisses.Load(),
		TemplateFallbacks: c.templateFallbacks.Load(),
	}
}

// HealthReport combines per-provider circuit state with the aggregate
// degradation counters.
type HealthReport struct {
	Providers   []ProviderHealth `json:"providers"`
	Degradation DegradationStats `json:"degradation"`
}

// Result is a generation outcome with its provenance.
type Result struct {
	Response *Response
	// Provider that produced the response, or "cache" when served stale.
	Provider string
	// Degraded is true when the response did not come from a live
	// provider call.
	Degraded  bool
	FromCache bool
}

// Orchestrator routes requests across providers in fallback order. Each
// provider sits behind its own circuit breaker; transient and rate-limit
// failures are retried with exponential backoff before falling through to
// the next provider. When the whole chain fails, a cached response for the
// same request is served if one exists.
type Orchestrator struct {
	registry *Registry
	cache    ResponseCache
	retry    RetryConfig
	logger   *zap.Logger
	stats    degradationCounters
	// sem bounds in-flight generation requests across all providers.
	// Requests beyond the limit queue rather than fail.
	sem chan struct{}

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultMaxInFlight caps simultaneous generation requests.
const DefaultMaxInFlight = 10

// NewOrchestrator builds an orchestrator. cache may be nil (no degradation
// cache); logger may be nil; maxInFlight <= 0 uses the default.
func NewOrchestrator(registry *Registry, cache ResponseCache, retry RetryConfig, maxInFlight int, logger *zap.Logger) *Orchestrator {
	if retry.MaxAttempts <= 0 {
		retry = DefaultRetryConfig()
	}
	if maxInFlight <= 0 {
		maxInFlight = DefaultMaxInFlight
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		registry: registry,
		cache:    cache,
		retry:    retry,
		logger:   logger,
		sem:      make(chan struct{}, maxInFlight),
		sleep:    sleepCtx,
	}
}

// Health reports circuit state and counters for every provider along with
// the degradation totals.
func (o *Orchestrator) Health() HealthReport {
	return HealthReport{
		Providers:   o.registry.Health(),
		Degradation: o.stats.snapshot(),
	}
}

// NoteTemplateFallback records that a caller degraded to template
// generation after the provider chain failed.
func (o *Orchestrator) NoteTemplateFallback() {
	o.stats.templateFallbacks.Add(1)
}

// Generate runs the request through the fallback chain.
func (o *Orchestrator) Generate(ctx context.Context, req Request) (*Result, error) {
	select {
	case o.sem <- struct{}{}:
		defer func() { <-o.sem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	key := Fingerprint(req)

	for _, name := range o.registry.Order() {
		e, ok := o.registry.get(name)
		if !ok {
			continue
		}
		if !e.breaker.Allow() {
			o.logger.Debug("provider circuit open, skipping", zap.String("provider", name))
			continue
		}

		resp, err := o.attempt(ctx, e, req)
		if err == nil {
			if o.cache != nil {
				o.cache.Put(ctx, key, resp)
			}
			return &Result{Response: resp, Provider: name}, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		o.logger.Warn("provider failed, falling through",
			zap.String("provider", name),
			zap.Error(err))
	}

	if o.cache != nil {
		if resp, ok := o.cache.Get(ctx, key); ok {
			o.stats.cacheHits.Add(1)
			o.logger.Info("all providers unavailable, serving cached response")
			return &Result{Response: resp, Provider: "cache", Degraded: true, FromCache: true}, nil
		}
	}
	o.stats.cacheMisses.Add(1)
	return nil, &UnavailableError{Hint: o.recoveryHint()}
}

// recoveryHint suggests the next action after a hard failure, based on
// current circuit state.
func (o *Orchestrator) recoveryHint() string {
	var soonest *time.Time
	for _, h := range o.registry.Health() {
		if h.RetryAt == nil {
			continue
		}
		if soonest == nil || h.RetryAt.Before(*soonest) {
			soonest = h.RetryAt
		}
	}
	if soonest != nil {
		wait := time.Until(*soonest).Round(time.Second)
		if wait < time.Second {
			wait = time.Second
		}
		return "circuits are cooling down, retry in " + wait.String()
	}
	return "check provider API keys and network connectivity"
}

// attempt calls one provider with retries. Every failed call is recorded
// against the provider's breaker; a single logical request may therefore
// contribute several breaker failures, one per network attempt.
func (o *Orchestrator) attempt(ctx context.Context, e *entry, req Request) (*Response, error) {
	name := e.provider.Name()
	delay := o.retry.BaseDelay

	var lastErr *ProviderError
	for attempt := 1; attempt <= o.retry.MaxAttempts; attempt++ {
		resp, err := e.provider.Generate(ctx, req)
		if err == nil {
			e.recordSuccess()
			return resp, nil
		}

		perr := AsProviderError(name, err)
		e.recordFailure(perr)
		lastErr = perr

		if !perr.Retryable() || attempt == o.retry.MaxAttempts {
			break
		}
		// Breaker may have tripped mid-retry; stop hammering it.
		if !e.breaker.Allow() {
			break
		}

		wait := delay
		if perr.Kind == FailureRateLimited && perr.RetryAfter > wait {
			wait = perr.RetryAfter
		}
		if wait > o.retry.MaxDelay {
			wait = o.retry.MaxDelay
		}
		if err := o.sleep(ctx, wait); err != nil {
			return nil, err
		}
		delay = time.Duration(float64(delay) * o.retry.Multiplier)
	}
	return nil, lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
