package service

import (
	"context"
	"time"

	"github.com/agentregistry-dev/mcpindex/internal/registry/models"
)

// RegistryService defines the interface for registry operations.
//
// Mutations run through a staged pipeline: the record store is written first,
// then the record is re-scored, projected and upserted into the search
// backend, then its cached copy is invalidated. A failure reports the stage it
// happened in; a projection failure does not undo the committed record write.
type RegistryService interface {
	// Publish registers a new server. The caller must be authenticated.
	Publish(ctx context.Context, req *models.PublishRequest) (*models.ServerResponse, error)
	// GetServer returns a record by id
	GetServer(ctx context.Context, id string) (*models.ServerResponse, error)
	// GetServerByName returns a record by its unique name
	GetServerByName(ctx context.Context, name string) (*models.ServerResponse, error)
	// UpdateServer applies a partial update. Requires ownership.
	UpdateServer(ctx context.Context, id string, in *models.UpdateServerInput) (*models.ServerResponse, error)
	// AddVersion appends a version. Requires ownership.
	AddVersion(ctx context.Context, id string, in *models.VersionInput) (*models.ServerResponse, error)
	// ClaimServer records the caller as the owner of an unclaimed record.
	ClaimServer(ctx context.Context, id string) (*models.ServerResponse, error)
	// UnclaimServer releases a claim held by the caller.
	UnclaimServer(ctx context.Context, id string) (*models.ServerResponse, error)
	// DeleteServer removes a record from both stores. Requires ownership.
	DeleteServer(ctx context.Context, id string) error
	// RecordMetrics ingests scanned popularity signals. Admin only.
	RecordMetrics(ctx context.Context, id string, in *models.MetricsInput) (*models.ServerResponse, error)
	// RateServer folds a 1-5 rating into the running average.
	RateServer(ctx context.Context, id string, rating int) (*models.ServerResponse, error)
	// GetScore returns the ranking breakdown committed with the record.
	GetScore(ctx context.Context, id string) (*models.Score, error)

	// Search runs a full-text and faceted query.
	Search(ctx context.Context, req models.SearchRequest) (*models.SearchResponse, error)
	// Suggest completes a name prefix.
	Suggest(ctx context.Context, prefix string, limit int) (*models.SuggestResponse, error)
	DiscoverCategories(ctx context.Context) (*models.CategoriesResponse, error)
	DiscoverStats(ctx context.Context) (*models.StatsResponse, error)
	DiscoverPopular(ctx context.Context, limit int) (*models.PopularResponse, error)

	// CreatePublisher registers a formal publisher. Admin only.
	CreatePublisher(ctx context.Context, in *models.PublisherInput) (*models.Publisher, error)
	GetPublisher(ctx context.Context, id string) (*models.Publisher, error)

	// Reindex re-scores and re-projects every record from the record store.
	Reindex(ctx context.Context, opts ReindexOptions, onProgress ReindexProgressFunc) (*ReindexResult, error)
	// Health pings the record store and the search backend.
	Health(ctx context.Context) []ComponentHealth
}

// Pipeline stages of a mutation. Failures carry the stage that did not complete.
const (
	StagePending          = "pending"
	StagePersisted        = "persisted"
	StageProjected        = "projected"
	StageCacheInvalidated = "cache_invalidated"
	StageDone             = "done"
)

// Metrics receives service-level measurements. *telemetry.Metrics implements it.
type Metrics interface {
	MutationCompleted(ctx context.Context, op, outcome string)
	ProjectionFailed(ctx context.Context, op string)
	SearchCompleted(ctx context.Context, kind, outcome string, took time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) MutationCompleted(context.Context, string, string)              {}
func (nopMetrics) ProjectionFailed(context.Context, string)                       {}
func (nopMetrics) SearchCompleted(context.Context, string, string, time.Duration) {}

// ComponentHealth is the reachability of one backing store.
type ComponentHealth struct {
	Name   string `json:"name"`
	Status string `json:"status" enum:"ok,unavailable"`
	Error  string `json:"error,omitempty"`
}
