package config

import (
	"fmt"
	"reflect"
	"time"
)

// Validate performs runtime validations on the loaded configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	switch cfg.SearchBackend {
	case SearchBleve:
	case SearchElasticsearch:
		if len(cfg.ElasticAddresses) == 0 {
			return fmt.Errorf("elasticsearch addresses must be set when the search backend is %s", SearchElasticsearch)
		}
	default:
		return fmt.Errorf("unknown search backend %q (want %s or %s)", cfg.SearchBackend, SearchBleve, SearchElasticsearch)
	}

	switch cfg.CacheBackend {
	case CacheMemory:
		if cfg.CacheSize <= 0 {
			return fmt.Errorf("cache size must be positive (got %d)", cfg.CacheSize)
		}
	case CacheNATS:
		if cfg.NATSURL == "" {
			return fmt.Errorf("nats url must be set when the cache backend is %s", CacheNATS)
		}
	case CacheNone:
	default:
		return fmt.Errorf("unknown cache backend %q (want %s, %s or %s)", cfg.CacheBackend, CacheMemory, CacheNATS, CacheNone)
	}

	ttls := reflect.ValueOf(cfg.CacheTTL)
	for i := range ttls.NumField() {
		if d := ttls.Field(i).Interface().(time.Duration); d <= 0 {
			return fmt.Errorf("cache ttl %s must be positive (got %s)", ttls.Type().Field(i).Name, d)
		}
	}

	if cfg.JWTSecret == "" && !cfg.IsDevelopment() {
		return fmt.Errorf("jwt secret must be set outside development")
	}
	if cfg.JWTSecret != "" && len(cfg.JWTSecret) < 32 {
		return fmt.Errorf("jwt secret must be at least 32 bytes")
	}
	if cfg.JWTTTL <= 0 {
		return fmt.Errorf("jwt ttl must be positive (got %s)", cfg.JWTTTL)
	}
	if cfg.ReindexWorkers <= 0 || cfg.ReindexBatchSize <= 0 {
		return fmt.Errorf("reindex workers and batch size must be positive")
	}
	if err := cfg.Log.Validate(); err != nil {
		return err
	}
	if r := cfg.EventLogging.SuccessSampleRate; r < 0 || r > 1 {
		return fmt.Errorf("log success sample rate must be between 0 and 1 (got %v)", r)
	}
	return nil
}
