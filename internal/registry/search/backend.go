package search

import (
	"context"
	"errors"

	"github.com/agentregistry-dev/mcpindex/internal/registry/models"
)

// ErrUnavailable wraps every backend failure that is not a caller error.
var ErrUnavailable = errors.New("search backend unavailable")

// Hit is one matching document in backend order.
type Hit struct {
	ID    string
	Score float64
}

// Result is the raw backend answer to a QueryPlan.
type Result struct {
	Hits         []Hit
	Total        int64
	Aggregations models.Aggregations
}

// Backend is an inverted-index search engine holding Documents keyed by id.
// Writes are visible to searches by the time they return.
type Backend interface {
	// EnsureIndex creates the index and its mapping when missing.
	EnsureIndex(ctx context.Context) error
	// Upsert writes doc unless the index holds a higher revision of it. A
	// stale write is dropped without an error.
	Upsert(ctx context.Context, doc Document) error
	// Delete removes a document. Deleting a missing document succeeds.
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, plan *QueryPlan) (*Result, error)
	// Suggest returns up to limit distinct names starting with prefix.
	Suggest(ctx context.Context, prefix string, limit int) ([]string, error)
	// IDs returns up to limit document ids greater than after, ascending.
	IDs(ctx context.Context, after string, limit int) ([]string, error)
	// Count returns the number of indexed documents.
	Count(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

func buckets[T any](in []T, key func(T) (string, int64)) []models.Bucket {
	out := make([]models.Bucket, 0, len(in))
	for _, v := range in {
		k, n := key(v)
		out = append(out, models.Bucket{Key: k, Count: n})
	}
	return out
}

func emptyAggregations() models.Aggregations {
	return models.Aggregations{
		Categories: []models.Bucket{},
		Sources:    []models.Bucket{},
		Tags:       []models.Bucket{},
	}
}

func setAggregation(aggs *models.Aggregations, name string, b []models.Bucket) {
	switch name {
	case AggCategories:
		aggs.Categories = b
	case AggSources:
		aggs.Sources = b
	case AggTags:
		aggs.Tags = b
	}
}
