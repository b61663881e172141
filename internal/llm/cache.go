package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultCacheTTL bounds how stale a reused response may be.
	DefaultCacheTTL = 24 * time.Hour
	// DefaultCacheMaxSize caps the in-memory cache entry count.
	DefaultCacheMaxSize = 1000
)

// ResponseCache stores successful responses keyed by request fingerprint so
// the orchestrator can serve stale answers when every provider is down.
type ResponseCache interface {
	Get(ctx context.Context, key string) (*Response, bool)
	Put(ctx context.Context, key string, resp *Response)
}

// Fingerprint derives a stable cache key from the request content.
func Fingerprint(req Request) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%.3f\x00%d", req.System, req.Prompt, req.Temperature, req.MaxTokens)
	return hex.EncodeToString(h.Sum(nil))
}

type cacheEntry struct {
	resp     Response
	storedAt time.Time
}

// MemoryCache is a bounded in-memory TTL cache. Safe for concurrent use.
// When full it evicts the oldest entry.
type MemoryCache struct {
	ttl     time.Duration
	maxSize int
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

// NewMemoryCache builds a cache with the given TTL and size cap. Zero
// values fall back to the defaults. now may be nil.
func NewMemoryCache(ttl time.Duration, maxSize int, now func() time.Time) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if maxSize <= 0 {
		maxSize = DefaultCacheMaxSize
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryCache{
		ttl:     ttl,
		maxSize: maxSize,
		now:     now,
		entries: make(map[string]cacheEntry),
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) (*Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.storedAt) > c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	resp := e.resp
	return &resp, true
}

func (c *MemoryCache) Put(_ context.Context, key string, resp *Response) {
	if resp == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictOldest()
	}
	c.entries[key] = cacheEntry{resp: *resp, storedAt: c.now()}
}

// Len returns the current entry count.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *MemoryCache) evictOldest() {
	var oldestKey string
	var oldestAt time.Time
	first := true
	for k, e := range c.entries {
		if first || e.storedAt.Before(oldestAt) {
			oldestKey, oldestAt = k, e.storedAt
			first = false
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// RedisCache stores responses in Redis so cached answers survive restarts
// and are shared across workers.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache wraps an existing Redis client. Zero ttl falls back to the
// default.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) key(k string) string { return "llm:cache:" + k }

func (c *RedisCache) Get(ctx context.Context, key string) (*Response, bool) {
	raw, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		return nil, false
	}
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, false
	}
	return &resp, true
}

func (c *RedisCache) Put(ctx context.Context, key string, resp *Response) {
	if resp == nil {
		return
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return
	}
	// Best effort: a cache write failure must not fail the request.
	c.client.Set(ctx, c.key(key), raw, c.ttl)
}
