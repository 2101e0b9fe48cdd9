package cache

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// Recorder observes cache outcomes. Implementations must be safe for concurrent use.
type Recorder interface {
	CacheHit(ctx context.Context, namespace string)
	CacheMiss(ctx context.Context, namespace string)
	CacheError(ctx context.Context, namespace, op string)
}

type nopRecorder struct{}

func (nopRecorder) CacheHit(context.Context, string)           {}
func (nopRecorder) CacheMiss(context.Context, string)          {}
func (nopRecorder) CacheError(context.Context, string, string) {}

// Advisory wraps a Cache so that failures never reach the caller: they are
// logged, counted and treated as misses.
type Advisory struct {
	cache    Cache
	logger   *zap.Logger
	recorder Recorder
}

// NewAdvisory wraps c. A nil recorder is allowed.
func NewAdvisory(c Cache, logger *zap.Logger, recorder Recorder) *Advisory {
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Advisory{cache: c, logger: logger, recorder: recorder}
}

// GetJSON decodes a hit into dst and reports whether it did.
func (a *Advisory) GetJSON(ctx context.Context, key string, dst any) bool {
	ns := Namespace(key)
	raw, ok, err := a.cache.Get(ctx, key)
	if err != nil {
		a.fail(ctx, ns, "get", key, err)
		return false
	}
	if !ok {
		a.recorder.CacheMiss(ctx, ns)
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		a.fail(ctx, ns, "decode", key, err)
		return false
	}
	a.recorder.CacheHit(ctx, ns)
	return true
}

// SetJSON stores v under key for ttl.
func (a *Advisory) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) {
	raw, err := json.Marshal(v)
	if err != nil {
		a.fail(ctx, Namespace(key), "encode", key, err)
		return
	}
	if err := a.cache.Set(ctx, key, raw, ttl); err != nil {
		a.fail(ctx, Namespace(key), "set", key, err)
	}
}

// Delete drops key.
func (a *Advisory) Delete(ctx context.Context, key string) {
	if err := a.cache.Delete(ctx, key); err != nil {
		a.fail(ctx, Namespace(key), "delete", key, err)
	}
}

// InvalidatePrefix drops every key under prefix.
func (a *Advisory) InvalidatePrefix(ctx context.Context, prefix string) {
	if err := a.cache.InvalidatePrefix(ctx, prefix); err != nil {
		a.fail(ctx, Namespace(prefix), "invalidate", prefix, err)
	}
}

func (a *Advisory) Close() error {
	return a.cache.Close()
}

func (a *Advisory) fail(ctx context.Context, ns, op, key string, err error) {
	a.recorder.CacheError(ctx, ns, op)
	a.logger.Warn("cache operation failed",
		zap.String("op", op), zap.String("cache_key", key), zap.Error(err))
}
