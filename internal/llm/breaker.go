package llm

import (
	"sync"
	"time"
)

// BreakerState is the circuit state of one provider.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	}
	return "unknown"
}

// BreakerConfig tunes one circuit breaker.
type BreakerConfig struct {
	// FailureThreshold trips the breaker after this many consecutive
	// failures.
	FailureThreshold int
	// WindowSize is the size of the sliding outcome window used for the
	// failure-rate trip condition (more than half failures).
	WindowSize int
	// CooldownBase is the first open-state cooldown. Each re-trip from
	// half-open doubles it up to CooldownMax.
	CooldownBase time.Duration
	CooldownMax  time.Duration
}

// DefaultBreakerConfig mirrors the production tuning.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		WindowSize:       10,
		CooldownBase:     30 * time.Second,
		CooldownMax:      5 * time.Minute,
	}
}

// Breaker is a per-provider circuit breaker. Safe for concurrent use.
//
// Closed: all calls pass, outcomes recorded. Trips to open on
// FailureThreshold consecutive failures, or when failures exceed half of a
// full sliding window. Open: calls are rejected until the cooldown elapses,
// then one trial call is admitted (half-open). Half-open: the trial's
// success closes the breaker and resets the cooldown; its failure re-opens
// with a doubled cooldown.
type Breaker struct {
	cfg BreakerConfig
	now func() time.Time

	mu          sync.Mutex
	state       BreakerState
	consecutive int
	window      []bool // true = failure
	cooldown    time.Duration
	openedAt    time.Time
	trialTaken  bool
}

// NewBreaker builds a closed breaker. now may be nil (wall clock); tests
// inject a fake clock.
func NewBreaker(cfg BreakerConfig, now func() time.Time) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 10
	}
	if cfg.CooldownBase <= 0 {
		cfg.CooldownBase = 30 * time.Second
	}
	if cfg.CooldownMax <= 0 {
		cfg.CooldownMax = 5 * time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &Breaker{
		cfg:      cfg,
		now:      now,
		state:    StateClosed,
		cooldown: cfg.CooldownBase,
	}
}

// Allow reports whether a call may proceed right now. In the open state it
// admits exactly one trial call once the cooldown has elapsed; concurrent
// callers during that trial are rejected.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false
		}
		b.state = StateHalfOpen
		b.trialTaken = true
		return true
	case StateHalfOpen:
		if b.trialTaken {
			return false
		}
		b.trialTaken = true
		return true
	}
	return false
}

// RecordSuccess records a successful call outcome.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.reset()
		return
	}
	b.consecutive = 0
	b.push(false)
}

// RecordFailure records a failed call outcome and trips the breaker when a
// trip condition is met.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		// Trial failed: back to open with a doubled cooldown.
		b.cooldown *= 2
		if b.cooldown > b.cfg.CooldownMax {
			b.cooldown = b.cfg.CooldownMax
		}
		b.open()
		return
	}

	b.consecutive++
	b.push(true)
	if b.consecutive >= b.cfg.FailureThreshold || b.windowTripped() {
		b.open()
	}
}

// State returns the current state, promoting open to half-open when the
// cooldown has elapsed so health reports match what Allow would do.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		return StateHalfOpen
	}
	return b.state
}

// RetryAt returns when the breaker will next admit a call, and false when
// calls are admitted already.
func (b *Breaker) RetryAt() (time.Time, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateOpen {
		return time.Time{}, false
	}
	at := b.openedAt.Add(b.cooldown)
	if !b.now().Before(at) {
		return time.Time{}, false
	}
	return at, true
}

func (b *Breaker) open() {
	b.state = StateOpen
	b.openedAt = b.now()
	b.trialTaken = false
	b.consecutive = 0
	b.window = b.window[:0]
}

func (b *Breaker) reset() {
	b.state = StateClosed
	b.consecutive = 0
	b.window = b.window[:0]
	b.cooldown = b.cfg.CooldownBase
	b.trialTaken = false
}

func (b *Breaker) push(failed bool) {
	b.window = append(b.window, failed)
	if len(b.window) > b.cfg.WindowSize {
		b.window = b.window[1:]
	}
}

// windowTripped reports whether a full window holds a strict failure
// majority.
func (b *Breaker) windowTripped() bool {
	if len(b.window) < b.cfg.WindowSize {
		return false
	}
	failures := 0
	for _, f := range b.window {
		if f {
			failures++
		}
	}
	return failures*2 > len(b.window)
}
