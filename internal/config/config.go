// Package config provides unified configuration loading for the
// knowledge core. Supports YAML files, environment variables, and
// programmatic overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the knowledge core.
type Config struct {
	KV            KVConfig            `yaml:"kv"`
	Vector        VectorConfig        `yaml:"vector"`
	Catalog       CatalogConfig       `yaml:"catalog"`
	Cache         CacheConfig         `yaml:"cache"`
	Embedding     EmbeddingConfig     `yaml:"embedding"`
	Hybrid        HybridConfig        `yaml:"hybrid"`
	Parsing       ParsingConfig       `yaml:"parsing"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// KVConfig holds key-value store settings.
type KVConfig struct {
	Driver  string        `yaml:"driver"` // bolt or memory
	Path    string        `yaml:"path"`
	Timeout time.Duration `yaml:"timeout"`
}

// VectorConfig holds vector index settings.
type VectorConfig struct {
	Adapter string       `yaml:"adapter"` // qdrant or memory
	Qdrant  QdrantConfig `yaml:"qdrant"`
}

// QdrantConfig holds Qdrant-specific settings.
type QdrantConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
	UseTLS bool   `yaml:"use_tls"`
}

// CatalogConfig holds the relational catalog settings. An empty driver
// disables the catalog entirely.
type CatalogConfig struct {
	Driver string `yaml:"driver"` // sqlite3, postgres, or empty
	DSN    string `yaml:"dsn"`
}

// CacheConfig holds the byte cache used for embedding results.
type CacheConfig struct {
	Driver string        `yaml:"driver"` // memory or redis
	TTL    time.Duration `yaml:"ttl"`
	Redis  RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"` // mock
	Dimension int    `yaml:"dimension"`
	CacheHits bool   `yaml:"cache_hits"`
}

// HybridConfig holds hybrid store settings.
type HybridConfig struct {
	Collection    string `yaml:"collection"`
	VectorSize    uint64 `yaml:"vector_size"`
	Distance      string `yaml:"distance"` // cosine or dot
	EmbeddingType string `yaml:"embedding_type"`
}

// ParsingConfig holds parser tunables. Zero values keep parser defaults.
type ParsingConfig struct {
	Text TextParsingConfig `yaml:"text"`
	JSON JSONParsingConfig `yaml:"json"`
}

// TextParsingConfig holds plain-text parser settings.
type TextParsingConfig struct {
	MinParagraphLength int `yaml:"min_paragraph_length"`
	MaxParagraphLength int `yaml:"max_paragraph_length"`
}

// JSONParsingConfig holds JSON parser settings.
type JSONParsingConfig struct {
	MaxDepth      int   `yaml:"max_depth"`
	IncludeArrays *bool `yaml:"include_arrays"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // json or console
}

// Load reads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		KV: KVConfig{
			Driver:  "bolt",
			Path:    "/tmp/knowledge-core.db",
			Timeout: 5 * time.Second,
		},
		Vector: VectorConfig{
			Adapter: "memory",
			Qdrant: QdrantConfig{
				Host: "localhost",
				Port: 6334,
			},
		},
		Catalog: CatalogConfig{
			Driver: "sqlite3",
			DSN:    "/tmp/knowledge-core-catalog.db",
		},
		Cache: CacheConfig{
			Driver: "memory",
			TTL:    time.Hour,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "kc:",
			},
		},
		Embedding: EmbeddingConfig{
			Provider:  "mock",
			Dimension: 1536,
			CacheHits: true,
		},
		Hybrid: HybridConfig{
			Collection:    "points",
			VectorSize:    1536,
			Distance:      "cosine",
			EmbeddingType: "fragment",
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "json",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.KV.Driver != "bolt" && c.KV.Driver != "memory" {
		return fmt.Errorf("invalid kv driver: %s", c.KV.Driver)
	}
	if c.KV.Driver == "bolt" && c.KV.Path == "" {
		return fmt.Errorf("kv path is required for the bolt driver")
	}

	if c.Vector.Adapter != "qdrant" && c.Vector.Adapter != "memory" {
		return fmt.Errorf("invalid vector adapter: %s", c.Vector.Adapter)
	}

	if c.Catalog.Driver != "" && c.Catalog.Driver != "sqlite3" && c.Catalog.Driver != "postgres" {
		return fmt.Errorf("invalid catalog driver: %s", c.Catalog.Driver)
	}
	if c.Catalog.Driver != "" && c.Catalog.DSN == "" {
		return fmt.Errorf("catalog dsn is required for driver %s", c.Catalog.Driver)
	}

	if c.Cache.Driver != "memory" && c.Cache.Driver != "redis" {
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}

	if c.Embedding.Provider != "mock" {
		return fmt.Errorf("invalid embedding provider: %s", c.Embedding.Provider)
	}
	if c.Embedding.Dimension < 1 {
		return fmt.Errorf("embedding dimension must be positive")
	}

	if c.Hybrid.Collection == "" {
		return fmt.Errorf("hybrid collection name is required")
	}
	if c.Hybrid.Distance != "cosine" && c.Hybrid.Distance != "dot" {
		return fmt.Errorf("invalid hybrid distance: %s", c.Hybrid.Distance)
	}
	if c.Hybrid.VectorSize != uint64(c.Embedding.Dimension) {
		return fmt.Errorf("hybrid vector size %d does not match embedding dimension %d",
			c.Hybrid.VectorSize, c.Embedding.Dimension)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KC_KV_PATH"); v != "" {
		cfg.KV.Driver = "bolt"
		cfg.KV.Path = v
	}

	if v := os.Getenv("QDRANT_HOST"); v != "" {
		cfg.Vector.Adapter = "qdrant"
		cfg.Vector.Qdrant.Host = v
	}
	if v := os.Getenv("QDRANT_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Vector.Qdrant.Port = port
		}
	}
	if v := os.Getenv("QDRANT_API_KEY"); v != "" {
		cfg.Vector.Qdrant.APIKey = v
		cfg.Vector.Qdrant.UseTLS = true
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		if strings.HasPrefix(v, "sqlite:") {
			cfg.Catalog.Driver = "sqlite3"
			cfg.Catalog.DSN = strings.TrimPrefix(v, "sqlite:")
		} else if strings.HasPrefix(v, "postgres") {
			cfg.Catalog.Driver = "postgres"
			cfg.Catalog.DSN = v
		}
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Driver = "redis"
		cfg.Cache.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}

	if v := os.Getenv("KC_COLLECTION"); v != "" {
		cfg.Hybrid.Collection = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}
