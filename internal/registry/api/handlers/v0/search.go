package v0

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/agentregistry-dev/mcpindex/internal/registry/models"
	"github.com/agentregistry-dev/mcpindex/internal/registry/service"
	"github.com/agentregistry-dev/mcpindex/pkg/types"
)

// SearchInput are the query parameters of a search.
type SearchInput struct {
	Query    string   `query:"q" maxLength:"200" doc:"Free text matched against name, description and tags"`
	Category string   `query:"category" doc:"Exact category"`
	Verified string   `query:"verified" enum:"true,false" doc:"Only verified, or only unverified, servers"`
	Source   string   `query:"source" enum:"first-party,marketplace,package-registry,vcs-hosted,community"`
	Tags     []string `query:"tags" doc:"Match servers carrying any of these tags (comma separated)"`
	Offset   int      `query:"offset" default:"0" minimum:"0"`
	Limit    int      `query:"limit" default:"20" minimum:"0" maximum:"100" doc:"0 returns aggregations only"`
	Sort     string   `query:"sort" default:"relevance" enum:"relevance,stars,downloads,rating,updated"`
}

func (in *SearchInput) request() models.SearchRequest {
	req := models.SearchRequest{
		Query:    in.Query,
		Category: in.Category,
		Source:   models.Source(in.Source),
		Offset:   in.Offset,
		Limit:    in.Limit,
		Sort:     models.SortKey(in.Sort),
	}
	if in.Verified != "" {
		v, _ := strconv.ParseBool(in.Verified)
		req.Verified = &v
	}
	for _, t := range in.Tags {
		if t = strings.TrimSpace(t); t != "" {
			req.Tags = append(req.Tags, t)
		}
	}
	return req
}

// SuggestInput is a name prefix to complete.
type SuggestInput struct {
	Query string `query:"q" required:"true" minLength:"2" maxLength:"200"`
	Limit int    `query:"limit" default:"10" minimum:"1" maximum:"50"`
}

// PopularInput limits the popular listing.
type PopularInput struct {
	Limit int `query:"limit" default:"10" minimum:"1" maximum:"50"`
}

// RegisterSearchEndpoints registers search and suggest endpoints with a custom path prefix
func RegisterSearchEndpoints(api huma.API, pathPrefix string, registry service.RegistryService, ec ErrorConfig) {
	suffix := strings.ReplaceAll(pathPrefix, "/", "-")

	huma.Register(api, huma.Operation{
		OperationID: "search-servers" + suffix,
		Method:      http.MethodGet,
		Path:        pathPrefix + "/search",
		Summary:     "Search servers",
		Description: "Full-text search with filters, facets and ranking. Results are hydrated from the record store.",
		Tags:        []string{"search"},
	}, func(ctx context.Context, input *SearchInput) (*types.Response[models.SearchResponse], error) {
		resp, err := registry.Search(ctx, input.request())
		if err != nil {
			return nil, ec.apiError(err)
		}
		return &types.Response[models.SearchResponse]{Body: *resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "suggest-servers" + suffix,
		Method:      http.MethodGet,
		Path:        pathPrefix + "/search/suggest",
		Summary:     "Suggest server names",
		Description: "Prefix completion over server names",
		Tags:        []string{"search"},
	}, func(ctx context.Context, input *SuggestInput) (*types.Response[models.SuggestResponse], error) {
		resp, err := registry.Suggest(ctx, input.Query, input.Limit)
		if err != nil {
			return nil, ec.apiError(err)
		}
		return &types.Response[models.SuggestResponse]{Body: *resp}, nil
	})
}

// RegisterDiscoverEndpoints registers the discovery endpoints with a custom path prefix
func RegisterDiscoverEndpoints(api huma.API, pathPrefix string, registry service.RegistryService, ec ErrorConfig) {
	suffix := strings.ReplaceAll(pathPrefix, "/", "-")

	huma.Register(api, huma.Operation{
		OperationID: "discover-categories" + suffix,
		Method:      http.MethodGet,
		Path:        pathPrefix + "/discover/categories",
		Summary:     "List categories",
		Tags:        []string{"discover"},
	}, func(ctx context.Context, _ *struct{}) (*types.Response[models.CategoriesResponse], error) {
		resp, err := registry.DiscoverCategories(ctx)
		if err != nil {
			return nil, ec.apiError(err)
		}
		return &types.Response[models.CategoriesResponse]{Body: *resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "discover-stats" + suffix,
		Method:      http.MethodGet,
		Path:        pathPrefix + "/discover/stats",
		Summary:     "Registry statistics",
		Tags:        []string{"discover"},
	}, func(ctx context.Context, _ *struct{}) (*types.Response[models.StatsResponse], error) {
		resp, err := registry.DiscoverStats(ctx)
		if err != nil {
			return nil, ec.apiError(err)
		}
		return &types.Response[models.StatsResponse]{Body: *resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "discover-popular" + suffix,
		Method:      http.MethodGet,
		Path:        pathPrefix + "/discover/popular",
		Summary:     "Most popular servers",
		Tags:        []string{"discover"},
	}, func(ctx context.Context, input *PopularInput) (*types.Response[models.PopularResponse], error) {
		resp, err := registry.DiscoverPopular(ctx, input.Limit)
		if err != nil {
			return nil, ec.apiError(err)
		}
		return &types.Response[models.PopularResponse]{Body: *resp}, nil
	})
}
