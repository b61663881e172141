package llm

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Hour, 10, nil)

	_, ok := c.Get(ctx, "missing")
	assert.False(t, ok)

	c.Put(ctx, "key", &Response{Text: "hello"})
	resp, ok := c.Get(ctx, "key")
	require.True(t, ok)
	assert.Equal(t, "hello", resp.Text)
}

func TestMemoryCache_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := NewMemoryCache(time.Hour, 10, clock.Now)

	c.Put(ctx, "key", &Response{Text: "stale"})

	clock.Advance(59 * time.Minute)
	_, ok := c.Get(ctx, "key")
	assert.True(t, ok, "entry should survive inside the TTL")

	clock.Advance(2 * time.Minute)
	_, ok = c.Get(ctx, "key")
	assert.False(t, ok, "entry should expire past the TTL")
	assert.Equal(t, 0, c.Len(), "expired entry should be dropped on read")
}

func TestMemoryCache_EvictsOldestWhenFull(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := NewMemoryCache(time.Hour, 3, clock.Now)

	for i := 0; i < 3; i++ {
		c.Put(ctx, fmt.Sprintf("key-%d", i), &Response{Text: "v"})
		clock.Advance(time.Second)
	}
	require.Equal(t, 3, c.Len())

	c.Put(ctx, "key-3", &Response{Text: "v"})
	assert.Equal(t, 3, c.Len(), "cache must stay at its size cap")

	_, ok := c.Get(ctx, "key-0")
	assert.False(t, ok, "the oldest entry should have been evicted")
	_, ok = c.Get(ctx, "key-3")
	assert.True(t, ok)
}

func TestMemoryCache_OverwriteDoesNotEvict(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Hour, 2, nil)

	c.Put(ctx, "a", &Response{Text: "1"})
	c.Put(ctx, "b", &Response{Text: "2"})
	c.Put(ctx, "a", &Response{Text: "3"})

	assert.Equal(t, 2, c.Len())
	resp, ok := c.Get(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, "3", resp.Text)
	_, ok = c.Get(ctx, "b")
	assert.True(t, ok, "overwriting an existing key must not evict others")
}
