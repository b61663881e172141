package llm

import (
	"sync"
	"time"
)

// ProviderHealth is a point-in-time view of one provider's circuit state
// and lifetime counters.
type ProviderHealth struct {
	Name      string     `json:"name"`
	State     string     `json:"state"`
	Successes uint64     `json:"successes"`
	Failures  uint64     `json:"failures"`
	LastError string     `json:"last_error,omitempty"`
	RetryAt   *time.Time `json:"retry_at,omitempty"`
}

type entry struct {
	provider Provider
	breaker  *Breaker

	mu        sync.Mutex
	successes uint64
	failures  uint64
	lastError string
}

// Registry holds the configured providers in fallback order, each with its
// own circuit breaker and counters.
type Registry struct {
	order   []string
	entries map[string]*entry
}

// NewRegistry builds a registry from providers in the given fallback order.
// now may be nil; tests inject a fake clock shared with the breakers.
func NewRegistry(providers []Provider, cfg BreakerConfig, now func() time.Time) *Registry {
	r := &Registry{entries: make(map[string]*entry, len(providers))}
	for _, p := range providers {
		r.order = append(r.order, p.Name())
		r.entries[p.Name()] = &entry{
			provider: p,
			breaker:  NewBreaker(cfg, now),
		}
	}
	return r
}

// Order returns provider names in fallback order.
func (r *Registry) Order() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) get(name string) (*entry, bool) {
	e, ok := r.entries[name]
	return e, ok
}

func (e *entry) recordSuccess() {
	e.breaker.RecordSuccess()
	e.mu.Lock()
	e.successes++
	e.mu.Unlock()
}

func (e *entry) recordFailure(err error) {
	e.breaker.RecordFailure()
	e.mu.Lock()
	e.failures++
	if err != nil {
		e.lastError = err.Error()
	}
	e.mu.Unlock()
}

// Health returns a snapshot for every provider in fallback order.
func (r *Registry) Health() []ProviderHealth {
	out := make([]ProviderHealth, 0, len(r.order))
	for _, name := range r.order {
		e := r.entries[name]
		e.mu.Lock()
		h := ProviderHealth{
			Name:      name,
			State:     e.breaker.State().String(),
			Successes: e.successes,
			Failures:  e.failures,
			LastError: e.lastError,
		}
		e.mu.Unlock()
		if at, ok := e.breaker.RetryAt(); ok {
			h.RetryAt = &at
		}
		out = append(out, h)
	}
	return out
}
