package service

import (
	"context"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/agentregistry-dev/mcpindex/internal/registry/cache"
	"github.com/agentregistry-dev/mcpindex/internal/registry/database"
	"github.com/agentregistry-dev/mcpindex/internal/registry/errs"
	"github.com/agentregistry-dev/mcpindex/internal/registry/logging"
	"github.com/agentregistry-dev/mcpindex/internal/registry/models"
	"github.com/agentregistry-dev/mcpindex/internal/registry/search"
)

const (
	maxSuggestLimit     = 50
	defaultPopularLimit = 10
	maxPopularLimit     = 50
	fallbackBatchSize   = 100
)

// searchKey serializes the effective request, after planning defaults.
func searchKey(plan *search.QueryPlan, sort models.SortKey) string {
	params := map[string][]string{
		"q":        {plan.Text},
		"category": {plan.Filters.Category},
		"source":   {plan.Filters.Source},
		"tags":     plan.Filters.Tags,
		"offset":   {strconv.Itoa(plan.From)},
		"limit":    {strconv.Itoa(plan.Size)},
		"sort":     {string(sort)},
	}
	if plan.Filters.Verified != nil {
		params["verified"] = []string{strconv.FormatBool(*plan.Filters.Verified)}
	}
	return cache.QueryKey(cache.NamespaceSearch, params)
}

// Search plans req, consults the cache, queries the backend and hydrates hits
// from the record store in backend order
func (s *registryServiceImpl) Search(ctx context.Context, req models.SearchRequest) (*models.SearchResponse, error) {
	start := time.Now()
	plan, err := search.Plan(req)
	if err != nil {
		return nil, err
	}
	if req.Sort == "" {
		req.Sort = models.SortRelevance
	}

	key := searchKey(plan, req.Sort)
	var cached models.SearchResponse
	if s.cache.GetJSON(ctx, key, &cached) {
		cached.TookMs = time.Since(start).Milliseconds()
		s.metrics.SearchCompleted(ctx, "search", "cached", time.Since(start))
		return &cached, nil
	}

	res, err := s.backend.Search(ctx, plan)
	if err != nil {
		logging.L(ctx, s.logger).Warn("search backend query failed", zap.Error(err))
		// aggregation-only requests cannot be answered from the store
		if !s.storeFallback || plan.Size == 0 {
			s.metrics.SearchCompleted(ctx, "search", "unavailable", time.Since(start))
			return nil, errs.Unavailable("", err, "search backend unavailable")
		}
		resp, ferr := s.fallbackSearch(ctx, req, plan)
		if ferr != nil {
			s.metrics.SearchCompleted(ctx, "search", "unavailable", time.Since(start))
			return nil, ferr
		}
		resp.TookMs = time.Since(start).Milliseconds()
		s.metrics.SearchCompleted(ctx, "search", "degraded", time.Since(start))
		return resp, nil
	}

	results, err := s.hydrate(ctx, res.Hits)
	if err != nil {
		s.metrics.SearchCompleted(ctx, "search", outcome(err), time.Since(start))
		return nil, err
	}

	resp := &models.SearchResponse{
		Results:      results,
		Total:        res.Total,
		Offset:       plan.From,
		Limit:        plan.Size,
		Aggregations: res.Aggregations,
	}
	s.cache.SetJSON(ctx, key, resp, s.ttls.Search)
	resp.TookMs = time.Since(start).Milliseconds()
	s.metrics.SearchCompleted(ctx, "search", "ok", time.Since(start))
	return resp, nil
}

// hydrate re-fetches hit records and keeps backend order. Ids that no longer
// resolve are dropped.
func (s *registryServiceImpl) hydrate(ctx context.Context, hits []search.Hit) ([]models.SearchResult, error) {
	results := make([]models.SearchResult, 0, len(hits))
	if len(hits) == 0 {
		return results, nil
	}
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	recs, err := s.db.GetServersByIDs(ctx, ids)
	if err != nil {
		return nil, stageErr("", err)
	}
	byID := make(map[string]*models.ServerRecord, len(recs))
	for _, r := range recs {
		byID[r.ID] = r
	}
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			results = append(results, models.NewSearchResult(r))
		}
	}
	if dropped := len(ids) - len(results); dropped > 0 {
		logging.L(ctx, s.logger).Debug("dropped unresolved search hits", zap.Int("count", dropped))
	}
	return results, nil
}

// fallbackSearch answers from the record store in store order, with empty
// aggregations.
func (s *registryServiceImpl) fallbackSearch(ctx context.Context, req models.SearchRequest, plan *search.QueryPlan) (*models.SearchResponse, error) {
	filter := &database.ServerFilter{Verified: plan.Filters.Verified, Tags: plan.Filters.Tags}
	if plan.Text != "" {
		filter.Query = &plan.Text
	}
	if plan.Filters.Category != "" {
		filter.Category = &plan.Filters.Category
	}
	if req.Source != "" {
		src := req.Source
		filter.Source = &src
	}

	total, err := s.db.CountServers(ctx, filter)
	if err != nil {
		return nil, stageErr("", err)
	}

	results := make([]models.SearchResult, 0, plan.Size)
	skipped := 0
	cursor := ""
	for len(results) < plan.Size {
		recs, next, err := s.db.ListServers(ctx, filter, cursor, fallbackBatchSize)
		if err != nil {
			return nil, stageErr("", err)
		}
		for _, r := range recs {
			if skipped < plan.From {
				skipped++
				continue
			}
			if len(results) == plan.Size {
				break
			}
			results = append(results, models.NewSearchResult(r))
		}
		if next == "" || len(recs) == 0 {
			break
		}
		cursor = next
	}

	return &models.SearchResponse{
		Results: results,
		Total:   total,
		Offset:  plan.From,
		Limit:   plan.Size,
		Aggregations: models.Aggregations{
			Categories: []models.Bucket{},
			Sources:    []models.Bucket{},
			Tags:       []models.Bucket{},
		},
		Degraded: true,
	}, nil
}

// Suggest completes a name prefix
func (s *registryServiceImpl) Suggest(ctx context.Context, prefix string, limit int) (*models.SuggestResponse, error) {
	start := time.Now()
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if utf8.RuneCountInString(prefix) < models.MinSuggestLength {
		return nil, errs.Validation("q must be at least %d characters", models.MinSuggestLength)
	}
	if utf8.RuneCountInString(prefix) > models.MaxQueryLength {
		return nil, errs.Validation("q must be at most %d characters", models.MaxQueryLength)
	}
	if limit <= 0 {
		limit = models.DefaultSuggestLimit
	}
	if limit > maxSuggestLimit {
		return nil, errs.Validation("limit must be at most %d", maxSuggestLimit)
	}

	key := cache.QueryKey(cache.NamespaceSuggest, map[string][]string{
		"q":     {prefix},
		"limit": {strconv.Itoa(limit)},
	})
	var cached models.SuggestResponse
	if s.cache.GetJSON(ctx, key, &cached) {
		s.metrics.SearchCompleted(ctx, "suggest", "cached", time.Since(start))
		return &cached, nil
	}

	names, err := s.backend.Suggest(ctx, prefix, limit)
	if err != nil {
		s.metrics.SearchCompleted(ctx, "suggest", "unavailable", time.Since(start))
		return nil, errs.Unavailable("", err, "search backend unavailable")
	}
	if names == nil {
		names = []string{}
	}
	resp := &models.SuggestResponse{Suggestions: names}
	s.cache.SetJSON(ctx, key, resp, s.ttls.Suggest)
	s.metrics.SearchCompleted(ctx, "suggest", "ok", time.Since(start))
	return resp, nil
}

// aggregate runs an aggregation-only query.
func (s *registryServiceImpl) aggregate(ctx context.Context, req models.SearchRequest) (*search.Result, error) {
	plan, err := search.Plan(req)
	if err != nil {
		return nil, err
	}
	res, err := s.backend.Search(ctx, plan)
	if err != nil {
		return nil, errs.Unavailable("", err, "search backend unavailable")
	}
	return res, nil
}

// DiscoverCategories lists categories with server counts
func (s *registryServiceImpl) DiscoverCategories(ctx context.Context) (*models.CategoriesResponse, error) {
	key := cache.QueryKey(cache.NamespaceCategories, nil)
	var cached models.CategoriesResponse
	if s.cache.GetJSON(ctx, key, &cached) {
		return &cached, nil
	}

	res, err := s.aggregate(ctx, models.SearchRequest{})
	if err != nil {
		return nil, err
	}
	resp := &models.CategoriesResponse{Categories: res.Aggregations.Categories}
	s.cache.SetJSON(ctx, key, resp, s.ttls.Categories)
	return resp, nil
}

// DiscoverStats summarizes the indexed registry contents
func (s *registryServiceImpl) DiscoverStats(ctx context.Context) (*models.StatsResponse, error) {
	key := cache.QueryKey(cache.NamespaceStats, nil)
	var cached models.StatsResponse
	if s.cache.GetJSON(ctx, key, &cached) {
		return &cached, nil
	}

	all, err := s.aggregate(ctx, models.SearchRequest{})
	if err != nil {
		return nil, err
	}
	verified := true
	onlyVerified, err := s.aggregate(ctx, models.SearchRequest{Verified: &verified})
	if err != nil {
		return nil, err
	}
	resp := &models.StatsResponse{
		TotalServers:    all.Total,
		VerifiedServers: onlyVerified.Total,
		Sources:         all.Aggregations.Sources,
		Categories:      all.Aggregations.Categories,
		TopTags:         all.Aggregations.Tags,
	}
	s.cache.SetJSON(ctx, key, resp, s.ttls.Stats)
	return resp, nil
}

// DiscoverPopular lists the most starred servers
func (s *registryServiceImpl) DiscoverPopular(ctx context.Context, limit int) (*models.PopularResponse, error) {
	if limit <= 0 {
		limit = defaultPopularLimit
	}
	if limit > maxPopularLimit {
		return nil, errs.Validation("limit must be at most %d", maxPopularLimit)
	}

	key := cache.QueryKey(cache.NamespacePopular, map[string][]string{"limit": {strconv.Itoa(limit)}})
	var cached models.PopularResponse
	if s.cache.GetJSON(ctx, key, &cached) {
		return &cached, nil
	}

	res, err := s.aggregate(ctx, models.SearchRequest{Limit: limit, Sort: models.SortStars})
	if err != nil {
		return nil, err
	}
	results, err := s.hydrate(ctx, res.Hits)
	if err != nil {
		return nil, err
	}
	resp := &models.PopularResponse{Servers: results}
	s.cache.SetJSON(ctx, key, resp, s.ttls.Popular)
	return resp, nil
}
