package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ServerAddress)
	assert.Equal(t, SearchBleve, cfg.SearchBackend)
	assert.Equal(t, CacheMemory, cfg.CacheBackend)
	assert.True(t, cfg.EnableStoreFallback)
	assert.Equal(t, 300*time.Second, cfg.CacheTTL.Search)
	assert.Equal(t, time.Hour, cfg.CacheTTL.Categories)
	assert.Equal(t, 0.1, cfg.EventLogging.SuccessSampleRate)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.IsDevelopment())
	require.NoError(t, Validate(cfg))
}

func TestLoad_RespectsPrefixedOverrides(t *testing.T) {
	t.Setenv("MCP_REGISTRY_SEARCH_BACKEND", "Elasticsearch")
	t.Setenv("MCP_REGISTRY_ELASTICSEARCH_ADDRESSES", "http://es1:9200,http://es2:9200")
	t.Setenv("MCP_REGISTRY_CACHE_TTL_SEARCH", "10s")
	t.Setenv("MCP_REGISTRY_LOG_SUCCESS_SAMPLE_RATE", "1")
	t.Setenv("SEARCH_BACKEND", "ignored")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, SearchElasticsearch, cfg.SearchBackend)
	assert.Equal(t, []string{"http://es1:9200", "http://es2:9200"}, cfg.ElasticAddresses)
	assert.Equal(t, 10*time.Second, cfg.CacheTTL.Search)
	assert.Equal(t, 1.0, cfg.EventLogging.SuccessSampleRate)
	require.NoError(t, Validate(cfg))
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load()
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"unknown search backend", func(c *Config) { c.SearchBackend = "solr" }, "unknown search backend"},
		{"elasticsearch without addresses", func(c *Config) { c.SearchBackend = SearchElasticsearch }, "elasticsearch addresses"},
		{"nats without url", func(c *Config) { c.CacheBackend = CacheNATS }, "nats url"},
		{"unknown cache backend", func(c *Config) { c.CacheBackend = "redis" }, "unknown cache backend"},
		{"zero ttl", func(c *Config) { c.CacheTTL.Stats = 0 }, "cache ttl Stats"},
		{"production without secret", func(c *Config) { c.Environment = "production" }, "jwt secret must be set"},
		{"short secret", func(c *Config) { c.JWTSecret = "short" }, "at least 32 bytes"},
		{"unknown log level", func(c *Config) { c.Log.Level = "loud" }, "invalid log level"},
		{"sample rate out of range", func(c *Config) { c.EventLogging.SuccessSampleRate = 2 }, "sample rate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	assert.Error(t, Validate(nil))
}
