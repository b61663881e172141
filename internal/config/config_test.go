package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 1000, cfg.Chunking.TargetSize)
	assert.Equal(t, 200, cfg.Chunking.Overlap)
	assert.Equal(t, 10, cfg.Embedding.BatchSize)
	assert.Equal(t, 1536, cfg.Embedding.Dimension)
	assert.Equal(t, []string{"openai", "anthropic", "mistral"}, cfg.Providers.Order)
	assert.Equal(t, 5, cfg.Providers.Breaker.FailureThreshold)
	assert.Equal(t, 30*time.Second, cfg.Providers.Breaker.CooldownBase.Std())
	assert.Equal(t, 5*time.Minute, cfg.Providers.Breaker.CooldownMax.Std())
	assert.Equal(t, 3, cfg.Providers.Retry.MaxAttempts)
	assert.Equal(t, 2.0, cfg.Providers.Retry.Multiplier)
	assert.Equal(t, 24*time.Hour, cfg.Degradation.CacheTTL.Std())
	assert.Equal(t, 0.1, cfg.Search.MinScore)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Chunking, cfg.Chunking)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
chunking:
  target_size: 500
  overlap: 50
providers:
  order: [anthropic, openai]
search:
  limit: 3
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.Chunking.TargetSize)
	assert.Equal(t, 50, cfg.Chunking.Overlap)
	assert.Equal(t, []string{"anthropic", "openai"}, cfg.Providers.Order)
	assert.Equal(t, 3, cfg.Search.Limit)
	// Untouched sections keep their defaults.
	assert.Equal(t, 10, cfg.Embedding.BatchSize)
}

func TestLoad_DurationStrings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
providers:
  breaker:
    cooldown_base: 10s
    cooldown_max: 2m
  retry:
    base_delay: 500ms
degradation:
  cache_ttl: 1h
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.Providers.Breaker.CooldownBase.Std())
	assert.Equal(t, 2*time.Minute, cfg.Providers.Breaker.CooldownMax.Std())
	assert.Equal(t, 500*time.Millisecond, cfg.Providers.Retry.BaseDelay.Std())
	assert.Equal(t, time.Hour, cfg.Degradation.CacheTTL.Std())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("QDRANT_HOST", "qdrant.internal")
	t.Setenv("QDRANT_PORT", "7000")
	t.Setenv("REDIS_ADDR", "redis.internal:6380")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "qdrant.internal", cfg.Qdrant.Host)
	assert.Equal(t, 7000, cfg.Qdrant.Port)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero target size", func(c *Config) { c.Chunking.TargetSize = 0 }},
		{"overlap >= target", func(c *Config) { c.Chunking.Overlap = c.Chunking.TargetSize }},
		{"negative overlap", func(c *Config) { c.Chunking.Overlap = -1 }},
		{"zero dimension", func(c *Config) { c.Embedding.Dimension = 0 }},
		{"zero batch size", func(c *Config) { c.Embedding.BatchSize = 0 }},
		{"empty provider order", func(c *Config) { c.Providers.Order = nil }},
		{"unknown provider", func(c *Config) { c.Providers.Order = []string{"gemini"} }},
		{"zero retry attempts", func(c *Config) { c.Providers.Retry.MaxAttempts = 0 }},
		{"zero failure threshold", func(c *Config) { c.Providers.Breaker.FailureThreshold = 0 }},
		{"min score out of range", func(c *Config) { c.Search.MinScore = 1.5 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestProviderLookup(t *testing.T) {
	cfg := Default()

	pc, ok := cfg.Provider("anthropic")
	require.True(t, ok)
	assert.Equal(t, "ANTHROPIC_API_KEY", pc.APIKeyEnv)

	_, ok = cfg.Provider("unknown")
	assert.False(t, ok)
}
