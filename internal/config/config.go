// Package config loads the core's configuration from a YAML file with
// environment overrides for credentials.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "30s".
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	v, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", node.Value, err)
	}
	*d = Duration(v)
	return nil
}

// Config holds all configuration for the study core.
type Config struct {
	Chunking    ChunkingConfig    `yaml:"chunking"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Search      SearchConfig      `yaml:"search"`
	Providers   ProvidersConfig   `yaml:"providers"`
	Degradation DegradationConfig `yaml:"degradation"`
	Qdrant      QdrantConfig      `yaml:"qdrant"`
	Redis       RedisConfig       `yaml:"redis"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ChunkingConfig controls how extracted text is split.
type ChunkingConfig struct {
	TargetSize int `yaml:"target_size"` // characters per chunk
	Overlap    int `yaml:"overlap"`     // trailing characters repeated into the next chunk
}

// EmbeddingConfig holds embedding provider configuration.
type EmbeddingConfig struct {
	Model         string `yaml:"model"`       // e.g. "text-embedding-3-small"
	Dimension     int    `yaml:"dimension"`   // must match the model
	BatchSize     int    `yaml:"batch_size"`  // texts per request
	MaxInFlight   int    `yaml:"max_in_flight"`
	RatePerSecond int    `yaml:"rate_per_second"`
	APIKeyEnv     string `yaml:"api_key_env"`
}

// SearchConfig holds similarity-search defaults.
type SearchConfig struct {
	Limit    int     `yaml:"limit"`
	MinScore float64 `yaml:"min_score"`
}

// ProvidersConfig defines the generation fallback chain and resilience knobs.
type ProvidersConfig struct {
	// Order is the explicit fallback chain, tried first to last.
	Order []string `yaml:"order"`

	OpenAI    ProviderConfig `yaml:"openai"`
	Anthropic ProviderConfig `yaml:"anthropic"`
	Mistral   ProviderConfig `yaml:"mistral"`

	MaxInFlight int `yaml:"max_in_flight"`

	Retry   RetryConfig   `yaml:"retry"`
	Breaker BreakerConfig `yaml:"breaker"`
}

// ProviderConfig holds per-provider credentials and model selection.
// API keys are read from the named environment variable, never from YAML.
type ProviderConfig struct {
	Model     string   `yaml:"model"`
	APIKeyEnv string   `yaml:"api_key_env"`
	Timeout   Duration `yaml:"timeout"`
}

// RetryConfig controls per-provider retry on transient failures.
type RetryConfig struct {
	MaxAttempts int      `yaml:"max_attempts"`
	BaseDelay   Duration `yaml:"base_delay"`
	Multiplier  float64  `yaml:"multiplier"`
	MaxDelay    Duration `yaml:"max_delay"`
}

// BreakerConfig controls the per-provider circuit breakers.
type BreakerConfig struct {
	FailureThreshold int      `yaml:"failure_threshold"` // consecutive failures before opening
	WindowSize       int      `yaml:"window_size"`       // calls in the failure-rate window
	CooldownBase     Duration `yaml:"cooldown_base"`
	CooldownMax      Duration `yaml:"cooldown_max"`
}

// DegradationConfig controls the cache and template fallback path.
type DegradationConfig struct {
	CacheTTL     Duration `yaml:"cache_ttl"`
	CacheMaxSize int      `yaml:"cache_max_size"`
}

// QdrantConfig locates the vector store.
type QdrantConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// RedisConfig locates Redis for document status and the processing queue.
type RedisConfig struct {
	Addr string `yaml:"addr"`
	DB   int    `yaml:"db"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level    string `yaml:"level"`
	Encoding string `yaml:"encoding"` // "json" or "console"
	FilePath string `yaml:"file_path"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Chunking: ChunkingConfig{
			TargetSize: 1000,
			Overlap:    200,
		},
		Embedding: EmbeddingConfig{
			Model:         "text-embedding-3-small",
			Dimension:     1536,
			BatchSize:     10,
			MaxInFlight:   10,
			RatePerSecond: 10,
			APIKeyEnv:     "OPENAI_API_KEY",
		},
		Search: SearchConfig{
			Limit:    10,
			MinScore: 0.1,
		},
		Providers: ProvidersConfig{
			Order: []string{"openai", "anthropic", "mistral"},
			OpenAI: ProviderConfig{
				Model:     "gpt-4o",
				APIKeyEnv: "OPENAI_API_KEY",
				Timeout:   Duration(60 * time.Second),
			},
			Anthropic: ProviderConfig{
				Model:     "claude-3-5-sonnet-20241022",
				APIKeyEnv: "ANTHROPIC_API_KEY",
				Timeout:   Duration(60 * time.Second),
			},
			Mistral: ProviderConfig{
				Model:     "mistral-small",
				APIKeyEnv: "MISTRAL_API_KEY",
				Timeout:   Duration(60 * time.Second),
			},
			MaxInFlight: 10,
			Retry: RetryConfig{
				MaxAttempts: 3,
				BaseDelay:   Duration(time.Second),
				Multiplier:  2.0,
				MaxDelay:    Duration(60 * time.Second),
			},
			Breaker: BreakerConfig{
				FailureThreshold: 5,
				WindowSize:       10,
				CooldownBase:     Duration(30 * time.Second),
				CooldownMax:      Duration(5 * time.Minute),
			},
		},
		Degradation: DegradationConfig{
			CacheTTL:     Duration(24 * time.Hour),
			CacheMaxSize: 1000,
		},
		Qdrant: QdrantConfig{
			Host: "localhost",
			Port: 6334,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
			DB:   0,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Encoding: "json",
		},
	}
}

// Load reads configuration from the given path, falling back to defaults
// for anything unset. A missing file is not an error: defaults apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, nil
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets a few operational settings come from the
// environment without editing the config file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("QDRANT_HOST"); v != "" {
		cfg.Qdrant.Host = v
	}
	if v := os.Getenv("QDRANT_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Qdrant.Port = port
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Chunking.TargetSize <= 0 {
		return fmt.Errorf("chunking.target_size must be positive")
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.TargetSize {
		return fmt.Errorf("chunking.overlap must be in [0, target_size)")
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding.dimension must be positive")
	}
	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("embedding.batch_size must be positive")
	}
	if len(c.Providers.Order) == 0 {
		return fmt.Errorf("providers.order must name at least one provider")
	}
	for _, name := range c.Providers.Order {
		switch name {
		case "openai", "anthropic", "mistral", "mock":
		default:
			return fmt.Errorf("unknown provider %q in providers.order", name)
		}
	}
	if c.Providers.Retry.MaxAttempts < 1 {
		return fmt.Errorf("providers.retry.max_attempts must be at least 1")
	}
	if c.Providers.Breaker.FailureThreshold < 1 {
		return fmt.Errorf("providers.breaker.failure_threshold must be at least 1")
	}
	if c.Search.MinScore < 0 || c.Search.MinScore > 1 {
		return fmt.Errorf("search.min_score must be in [0, 1]")
	}
	return nil
}

// Provider returns the configuration block for a named provider.
func (c *Config) Provider(name string) (ProviderConfig, bool) {
	switch name {
	case "openai":
		return c.Providers.OpenAI, true
	case "anthropic":
		return c.Providers.Anthropic, true
	case "mistral":
		return c.Providers.Mistral, true
	}
	return ProviderConfig{}, false
}
