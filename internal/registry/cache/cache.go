// Package cache holds short-lived copies of query results and records.
// Entries are always safe to evict: a miss recomputes the same answer.
package cache

import (
	"context"
	"net/url"
	"slices"
	"sort"
	"strings"
	"time"
)

// Cache is a byte-oriented TTL cache. Implementations are safe for concurrent use.
type Cache interface {
	// Get returns the value and true on a hit.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// InvalidatePrefix drops every key starting with prefix. Backends may
	// widen the prefix to the key's namespace.
	InvalidatePrefix(ctx context.Context, prefix string) error
	Close() error
}

// Namespaces.
const (
	NamespaceSearch     = "search"
	NamespaceSuggest    = "suggest"
	NamespaceServer     = "server"
	NamespaceCategories = "categories"
	NamespaceStats      = "stats"
	NamespacePopular    = "popular"
)

// QueryKey serializes params deterministically as "namespace:" followed by
// sorted k=v pairs joined with "&". Multi-valued params are sorted and
// comma-joined. Empty values are dropped so absent and empty params share a key.
func QueryKey(namespace string, params map[string][]string) string {
	keys := make([]string, 0, len(params))
	for k, vs := range params {
		if len(nonEmpty(vs)) > 0 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		vs := nonEmpty(params[k])
		slices.Sort(vs)
		vs = slices.Compact(vs)
		escaped := make([]string, len(vs))
		for i, v := range vs {
			escaped[i] = url.QueryEscape(v)
		}
		pairs = append(pairs, url.QueryEscape(k)+"="+strings.Join(escaped, ","))
	}
	return namespace + ":" + strings.Join(pairs, "&")
}

func nonEmpty(vs []string) []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// RecordKey is the cache key of a single server record.
func RecordKey(id string) string {
	return NamespaceServer + ":" + id
}

// Namespace returns the namespace part of a key.
func Namespace(key string) string {
	ns, _, _ := strings.Cut(key, ":")
	return ns
}

// TTLs are the per-namespace entry lifetimes.
type TTLs struct {
	Search     time.Duration `env:"SEARCH" envDefault:"300s"`
	Record     time.Duration `env:"RECORD" envDefault:"300s"`
	Suggest    time.Duration `env:"SUGGEST" envDefault:"300s"`
	Categories time.Duration `env:"CATEGORIES" envDefault:"3600s"`
	Stats      time.Duration `env:"STATS" envDefault:"1800s"`
	Popular    time.Duration `env:"POPULAR" envDefault:"1800s"`
}

// DefaultTTLs returns the stock lifetimes.
func DefaultTTLs() TTLs {
	return TTLs{
		Search:     300 * time.Second,
		Record:     300 * time.Second,
		Suggest:    300 * time.Second,
		Categories: time.Hour,
		Stats:      30 * time.Minute,
		Popular:    30 * time.Minute,
	}
}

// Max returns the longest configured TTL.
func (t TTLs) Max() time.Duration {
	return max(t.Search, t.Record, t.Suggest, t.Categories, t.Stats, t.Popular)
}

// Nop never stores anything.
type Nop struct{}

func (Nop) Get(context.Context, string) ([]byte, bool, error)        { return nil, false, nil }
func (Nop) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (Nop) Delete(context.Context, string) error                     { return nil }
func (Nop) InvalidatePrefix(context.Context, string) error           { return nil }
func (Nop) Close() error                                             { return nil }
