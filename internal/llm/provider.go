// Package llm routes generation requests across multiple providers with
// per-provider circuit breaking, retry with backoff, and a terminal
// degradation path so callers keep getting answers during outages.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Request is a provider-neutral generation request.
type Request struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Response is a provider-neutral generation result.
type Response struct {
	Text        string
	Model       string
	InputTokens int
	OutputTokens int
}

// Provider is one configured LLM backend. Generate returns either a
// response or a *ProviderError classifying the failure.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (*Response, error)
}

// FailureKind classifies a provider failure for the orchestrator's routing
// decisions.
type FailureKind int

const (
	// FailureTransient covers timeouts, connection errors and 5xx
	// responses. Retried with backoff on the same provider.
	FailureTransient FailureKind = iota
	// FailureRateLimited is an HTTP 429. Retried honoring any
	// server-supplied retry-after hint.
	FailureRateLimited
	// FailureAuth is an invalid or missing credential. Permanent for the
	// provider: no retry, fall through to the next candidate.
	FailureAuth
	// FailureInvalidResponse means the provider answered but the payload
	// was unusable. Treated as permanent for the attempt.
	FailureInvalidResponse
)

func (k FailureKind) String() string {
	switch k {
	case FailureTransient:
		return "transient"
	case FailureRateLimited:
		return "rate_limited"
	case FailureAuth:
		return "auth"
	case FailureInvalidResponse:
		return "invalid_response"
	}
	return "unknown"
}

// ProviderError is a classified provider failure.
type ProviderError struct {
	Provider   string
	Kind       FailureKind
	RetryAfter time.Duration // only meaningful for FailureRateLimited
	Err        error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports whether the same provider should be retried.
func (e *ProviderError) Retryable() bool {
	return e.Kind == FailureTransient || e.Kind == FailureRateLimited
}

// Classify wraps err as a ProviderError. Context cancellation and deadline
// expiry count as transient so they feed the circuit breaker instead of
// hanging silently.
func Classify(provider string, kind FailureKind, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

// AsProviderError extracts a *ProviderError, defaulting unclassified errors
// to transient.
func AsProviderError(provider string, err error) *ProviderError {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr
	}
	return &ProviderError{Provider: provider, Kind: FailureTransient, Err: err}
}

// kindFromStatus maps an HTTP status code to a failure kind.
func kindFromStatus(status int) FailureKind {
	switch {
	case status == 401 || status == 403:
		return FailureAuth
	case status == 429:
		return FailureRateLimited
	case status >= 500:
		return FailureTransient
	default:
		return FailureInvalidResponse
	}
}
