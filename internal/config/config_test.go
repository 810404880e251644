package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "bolt", cfg.KV.Driver)
	assert.Equal(t, "memory", cfg.Vector.Adapter)
	assert.Equal(t, uint64(1536), cfg.Hybrid.VectorSize)
}

func TestLoadFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
kv:
  driver: bolt
  path: /data/kc.db
  timeout: 10s
vector:
  adapter: qdrant
  qdrant:
    host: qdrant.internal
    port: 6334
hybrid:
  collection: knowledge
  vector_size: 768
embedding:
  dimension: 768
parsing:
  text:
    min_paragraph_length: 80
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/kc.db", cfg.KV.Path)
	assert.Equal(t, 10*time.Second, cfg.KV.Timeout)
	assert.Equal(t, "qdrant", cfg.Vector.Adapter)
	assert.Equal(t, "qdrant.internal", cfg.Vector.Qdrant.Host)
	assert.Equal(t, "knowledge", cfg.Hybrid.Collection)
	assert.Equal(t, uint64(768), cfg.Hybrid.VectorSize)
	assert.Equal(t, 80, cfg.Parsing.Text.MinParagraphLength)

	// Untouched sections keep their defaults.
	assert.Equal(t, "memory", cfg.Cache.Driver)
	assert.Equal(t, "cosine", cfg.Hybrid.Distance)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("QDRANT_HOST", "qdrant.example.com")
	t.Setenv("QDRANT_API_KEY", "secret")
	t.Setenv("REDIS_URL", "redis://cache.example.com:6379")
	t.Setenv("DATABASE_URL", "postgres://kc:kc@db/catalog")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "qdrant", cfg.Vector.Adapter)
	assert.Equal(t, "qdrant.example.com", cfg.Vector.Qdrant.Host)
	assert.True(t, cfg.Vector.Qdrant.UseTLS)
	assert.Equal(t, "redis", cfg.Cache.Driver)
	assert.Equal(t, "cache.example.com:6379", cfg.Cache.Redis.Addr)
	assert.Equal(t, "postgres", cfg.Catalog.Driver)
	assert.Equal(t, "warn", cfg.Observability.LogLevel)
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad kv driver", func(c *Config) { c.KV.Driver = "rocksdb" }},
		{"bolt without path", func(c *Config) { c.KV.Path = "" }},
		{"bad vector adapter", func(c *Config) { c.Vector.Adapter = "faiss" }},
		{"bad catalog driver", func(c *Config) { c.Catalog.Driver = "mysql" }},
		{"bad distance", func(c *Config) { c.Hybrid.Distance = "euclid" }},
		{"dimension mismatch", func(c *Config) { c.Hybrid.VectorSize = 768 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
