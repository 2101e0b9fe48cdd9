package config

import (
	"log"
	"strings"
	"time"

	env "github.com/caarlos0/env/v11"

	"github.com/agentregistry-dev/mcpindex/internal/registry/cache"
	"github.com/agentregistry-dev/mcpindex/internal/registry/logging"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "MCP_REGISTRY_"

// Search backends.
const (
	SearchBleve         = "bleve"
	SearchElasticsearch = "elasticsearch"
)

// Cache backends.
const (
	CacheMemory = "memory"
	CacheNATS   = "nats"
	CacheNone   = "none"
)

// Config holds the application configuration
type Config struct {
	ServerAddress string `env:"SERVER_ADDRESS" envDefault:":8080"`
	Environment   string `env:"ENVIRONMENT" envDefault:"development"`
	Version       string `env:"VERSION" envDefault:"dev"`

	// DatabaseURL selects PostgreSQL; empty runs on the in-memory store.
	DatabaseURL      string `env:"DATABASE_URL"`
	DatabaseMaxConns int32  `env:"DATABASE_MAX_CONNS" envDefault:"30"`
	MaxRetries       uint64 `env:"MAX_RETRIES" envDefault:"5"`

	SearchBackend       string   `env:"SEARCH_BACKEND" envDefault:"bleve"`
	BleveIndexPath      string   `env:"BLEVE_INDEX_PATH"`
	ElasticAddresses    []string `env:"ELASTICSEARCH_ADDRESSES" envSeparator:","`
	ElasticUsername     string   `env:"ELASTICSEARCH_USERNAME"`
	ElasticPassword     string   `env:"ELASTICSEARCH_PASSWORD"`
	ElasticIndex        string   `env:"ELASTICSEARCH_INDEX" envDefault:"mcp-servers"`
	EnableStoreFallback bool     `env:"ENABLE_STORE_FALLBACK" envDefault:"true"`

	CacheBackend string     `env:"CACHE_BACKEND" envDefault:"memory"`
	CacheSize    int        `env:"CACHE_SIZE" envDefault:"10000"`
	NATSURL      string     `env:"NATS_URL"`
	NATSBucket   string     `env:"NATS_BUCKET" envDefault:"mcp-registry-cache"`
	CacheTTL     cache.TTLs `envPrefix:"CACHE_TTL_"`

	JWTSecret string        `env:"JWT_SECRET"`
	JWTTTL    time.Duration `env:"JWT_TTL" envDefault:"24h"`

	ReindexWorkers   int           `env:"REINDEX_WORKERS" envDefault:"4"`
	ReindexBatchSize int           `env:"REINDEX_BATCH_SIZE" envDefault:"100"`
	JobRetention     time.Duration `env:"JOB_RETENTION" envDefault:"1h"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	EnableMCP          bool     `env:"ENABLE_MCP" envDefault:"true"`
	EnableMetrics      bool     `env:"ENABLE_METRICS" envDefault:"true"`

	Log          logging.Options
	EventLogging logging.EventLoggingConfig
}

// NewConfig creates a new configuration with default values
func NewConfig() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	return cfg
}

// Load parses the environment without exiting on failure.
func Load() (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, err
	}
	cfg.SearchBackend = strings.ToLower(strings.TrimSpace(cfg.SearchBackend))
	cfg.CacheBackend = strings.ToLower(strings.TrimSpace(cfg.CacheBackend))
	return &cfg, nil
}

// IsProduction reports whether error details must be withheld from clients.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// IsDevelopment reports whether insecure defaults are acceptable.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development") || strings.EqualFold(c.Environment, "test")
}
