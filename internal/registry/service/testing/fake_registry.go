// Package testing provides test utilities for the registry service.
package testing

import (
	"context"
	"sync"

	"github.com/agentregistry-dev/mcpindex/internal/registry/database"
	"github.com/agentregistry-dev/mcpindex/internal/registry/models"
	"github.com/agentregistry-dev/mcpindex/internal/registry/service"
)

// FakeRegistry is a configurable fake implementation of service.RegistryService for testing.
// It supports both data-driven setup via struct fields and function hooks for custom behavior.
type FakeRegistry struct {
	mu sync.Mutex

	// Data fields for simple data-driven tests
	Servers    []*models.ServerRecord
	Publishers []*models.Publisher
	Healthy    []service.ComponentHealth

	// Function hooks for custom behavior (take precedence over data fields when set)
	PublishFn            func(ctx context.Context, req *models.PublishRequest) (*models.ServerResponse, error)
	GetServerFn          func(ctx context.Context, id string) (*models.ServerResponse, error)
	GetServerByNameFn    func(ctx context.Context, name string) (*models.ServerResponse, error)
	UpdateServerFn       func(ctx context.Context, id string, in *models.UpdateServerInput) (*models.ServerResponse, error)
	AddVersionFn         func(ctx context.Context, id string, in *models.VersionInput) (*models.ServerResponse, error)
	ClaimServerFn        func(ctx context.Context, id string) (*models.ServerResponse, error)
	UnclaimServerFn      func(ctx context.Context, id string) (*models.ServerResponse, error)
	DeleteServerFn       func(ctx context.Context, id string) error
	RecordMetricsFn      func(ctx context.Context, id string, in *models.MetricsInput) (*models.ServerResponse, error)
	RateServerFn         func(ctx context.Context, id string, rating int) (*models.ServerResponse, error)
	GetScoreFn           func(ctx context.Context, id string) (*models.Score, error)
	SearchFn             func(ctx context.Context, req models.SearchRequest) (*models.SearchResponse, error)
	SuggestFn            func(ctx context.Context, prefix string, limit int) (*models.SuggestResponse, error)
	DiscoverCategoriesFn func(ctx context.Context) (*models.CategoriesResponse, error)
	DiscoverStatsFn      func(ctx context.Context) (*models.StatsResponse, error)
	DiscoverPopularFn    func(ctx context.Context, limit int) (*models.PopularResponse, error)
	CreatePublisherFn    func(ctx context.Context, in *models.PublisherInput) (*models.Publisher, error)
	GetPublisherFn       func(ctx context.Context, id string) (*models.Publisher, error)
	ReindexFn            func(ctx context.Context, opts service.ReindexOptions, onProgress service.ReindexProgressFunc) (*service.ReindexResult, error)

	// Call counters for verification
	SearchCalls int
}

var _ service.RegistryService = (*FakeRegistry)(nil)

// NewFakeRegistry creates a new FakeRegistry reporting every component healthy.
func NewFakeRegistry() *FakeRegistry {
	return &FakeRegistry{
		Healthy: []service.ComponentHealth{
			{Name: "database", Status: "ok"},
			{Name: "search", Status: "ok"},
		},
	}
}

func (f *FakeRegistry) findServer(match func(*models.ServerRecord) bool) (*models.ServerResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.Servers {
		if match(s) {
			return models.NewServerResponse(s.Clone()), nil
		}
	}
	return nil, database.ErrNotFound
}

// Server methods

func (f *FakeRegistry) Publish(ctx context.Context, req *models.PublishRequest) (*models.ServerResponse, error) {
	if f.PublishFn != nil {
		return f.PublishFn(ctx, req)
	}
	return nil, database.ErrInvalidInput
}

func (f *FakeRegistry) GetServer(ctx context.Context, id string) (*models.ServerResponse, error) {
	if f.GetServerFn != nil {
		return f.GetServerFn(ctx, id)
	}
	return f.findServer(func(s *models.ServerRecord) bool { return s.ID == id })
}

func (f *FakeRegistry) GetServerByName(ctx context.Context, name string) (*models.ServerResponse, error) {
	if f.GetServerByNameFn != nil {
		return f.GetServerByNameFn(ctx, name)
	}
	return f.findServer(func(s *models.ServerRecord) bool { return s.Name == name })
}

func (f *FakeRegistry) UpdateServer(ctx context.Context, id string, in *models.UpdateServerInput) (*models.ServerResponse, error) {
	if f.UpdateServerFn != nil {
		return f.UpdateServerFn(ctx, id, in)
	}
	return nil, database.ErrNotFound
}

func (f *FakeRegistry) AddVersion(ctx context.Context, id string, in *models.VersionInput) (*models.ServerResponse, error) {
	if f.AddVersionFn != nil {
		return f.AddVersionFn(ctx, id, in)
	}
	return nil, database.ErrNotFound
}

func (f *FakeRegistry) ClaimServer(ctx context.Context, id string) (*models.ServerResponse, error) {
	if f.ClaimServerFn != nil {
		return f.ClaimServerFn(ctx, id)
	}
	return nil, database.ErrNotFound
}

func (f *FakeRegistry) UnclaimServer(ctx context.Context, id string) (*models.ServerResponse, error) {
	if f.UnclaimServerFn != nil {
		return f.UnclaimServerFn(ctx, id)
	}
	return nil, database.ErrNotFound
}

func (f *FakeRegistry) DeleteServer(ctx context.Context, id string) error {
	if f.DeleteServerFn != nil {
		return f.DeleteServerFn(ctx, id)
	}
	return database.ErrNotFound
}

func (f *FakeRegistry) RecordMetrics(ctx context.Context, id string, in *models.MetricsInput) (*models.ServerResponse, error) {
	if f.RecordMetricsFn != nil {
		return f.RecordMetricsFn(ctx, id, in)
	}
	return nil, database.ErrNotFound
}

func (f *FakeRegistry) RateServer(ctx context.Context, id string, rating int) (*models.ServerResponse, error) {
	if f.RateServerFn != nil {
		return f.RateServerFn(ctx, id, rating)
	}
	return nil, database.ErrNotFound
}

func (f *FakeRegistry) GetScore(ctx context.Context, id string) (*models.Score, error) {
	if f.GetScoreFn != nil {
		return f.GetScoreFn(ctx, id)
	}
	resp, err := f.GetServer(ctx, id)
	if err != nil {
		return nil, err
	}
	return &resp.Score, nil
}

// Search methods

func (f *FakeRegistry) Search(ctx context.Context, req models.SearchRequest) (*models.SearchResponse, error) {
	f.mu.Lock()
	f.SearchCalls++
	f.mu.Unlock()
	if f.SearchFn != nil {
		return f.SearchFn(ctx, req)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	resp := &models.SearchResponse{
		Results: []models.SearchResult{},
		Total:   int64(len(f.Servers)),
		Offset:  req.Offset,
		Limit:   req.Limit,
		Aggregations: models.Aggregations{
			Categories: []models.Bucket{},
			Sources:    []models.Bucket{},
			Tags:       []models.Bucket{},
		},
	}
	for i, s := range f.Servers {
		if i < req.Offset || len(resp.Results) == req.Limit {
			continue
		}
		resp.Results = append(resp.Results, models.NewSearchResult(s))
	}
	return resp, nil
}

func (f *FakeRegistry) Suggest(ctx context.Context, prefix string, limit int) (*models.SuggestResponse, error) {
	if f.SuggestFn != nil {
		return f.SuggestFn(ctx, prefix, limit)
	}
	return &models.SuggestResponse{Suggestions: []string{}}, nil
}

func (f *FakeRegistry) DiscoverCategories(ctx context.Context) (*models.CategoriesResponse, error) {
	if f.DiscoverCategoriesFn != nil {
		return f.DiscoverCategoriesFn(ctx)
	}
	return &models.CategoriesResponse{Categories: []models.Bucket{}}, nil
}

func (f *FakeRegistry) DiscoverStats(ctx context.Context) (*models.StatsResponse, error) {
	if f.DiscoverStatsFn != nil {
		return f.DiscoverStatsFn(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return &models.StatsResponse{
		TotalServers: int64(len(f.Servers)),
		Sources:      []models.Bucket{},
		Categories:   []models.Bucket{},
		TopTags:      []models.Bucket{},
	}, nil
}

func (f *FakeRegistry) DiscoverPopular(ctx context.Context, limit int) (*models.PopularResponse, error) {
	if f.DiscoverPopularFn != nil {
		return f.DiscoverPopularFn(ctx, limit)
	}
	return &models.PopularResponse{Servers: []models.SearchResult{}}, nil
}

// Publisher methods

func (f *FakeRegistry) CreatePublisher(ctx context.Context, in *models.PublisherInput) (*models.Publisher, error) {
	if f.CreatePublisherFn != nil {
		return f.CreatePublisherFn(ctx, in)
	}
	return nil, database.ErrInvalidInput
}

func (f *FakeRegistry) GetPublisher(ctx context.Context, id string) (*models.Publisher, error) {
	if f.GetPublisherFn != nil {
		return f.GetPublisherFn(ctx, id)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.Publishers {
		if p.ID == id {
			cp := *p
			return &cp, nil
		}
	}
	return nil, database.ErrNotFound
}

// Maintenance methods

func (f *FakeRegistry) Reindex(ctx context.Context, opts service.ReindexOptions, onProgress service.ReindexProgressFunc) (*service.ReindexResult, error) {
	if f.ReindexFn != nil {
		return f.ReindexFn(ctx, opts, onProgress)
	}
	f.mu.Lock()
	n := len(f.Servers)
	f.mu.Unlock()
	res := service.ReindexResult{Processed: n, Indexed: n}
	if onProgress != nil {
		onProgress(res)
	}
	return &res, nil
}

func (f *FakeRegistry) Health(context.Context) []service.ComponentHealth {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]service.ComponentHealth(nil), f.Healthy...)
}
