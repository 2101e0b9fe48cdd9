package registryserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/agentregistry-dev/mcpindex/internal/registry/errs"
	"github.com/agentregistry-dev/mcpindex/internal/registry/models"
	"github.com/agentregistry-dev/mcpindex/internal/registry/service"
	"github.com/agentregistry-dev/mcpindex/internal/version"
)

const (
	serverName       = "mcp-registry"
	defaultPageLimit = 20
	maxPageLimit     = models.MaxSearchLimit
)

// NewServer constructs an MCP server that exposes read-only discovery tools backed by the registry service.
// No tool mutates either store, so the surface is safe for unauthenticated agents.
func NewServer(registry service.RegistryService) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Version: version.Version,
	}, &mcp.ServerOptions{
		HasTools: true,
	})

	addSearchTools(server, registry)
	addServerTools(server, registry)
	addMetaTools(server, registry)

	return server
}

type searchServersArgs struct {
	Query    string   `json:"query,omitempty" jsonschema:"free text matched against name, description and tags"`
	Category string   `json:"category,omitempty"`
	Verified *bool    `json:"verified,omitempty"`
	Source   string   `json:"source,omitempty" jsonschema:"one of first-party, marketplace, package-registry, vcs-hosted, community"`
	Tags     []string `json:"tags,omitempty" jsonschema:"match servers carrying any of these tags"`
	Offset   int      `json:"offset,omitempty"`
	Limit    int      `json:"limit,omitempty"`
	Sort     string   `json:"sort,omitempty" jsonschema:"relevance, stars, downloads, rating or updated"`
}

type suggestServersArgs struct {
	Prefix string `json:"prefix" jsonschema:"at least two characters of a server name"`
	Limit  int    `json:"limit,omitempty"`
}

func addSearchTools(server *mcp.Server, registry service.RegistryService) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_servers",
		Description: "Search registered MCP servers by text, category, tags, source and verification, ranked by relevance or a popularity signal",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args searchServersArgs) (*mcp.CallToolResult, models.SearchResponse, error) {
		resp, err := registry.Search(ctx, models.SearchRequest{
			Query:    args.Query,
			Category: args.Category,
			Verified: args.Verified,
			Source:   models.Source(args.Source),
			Tags:     args.Tags,
			Offset:   max(args.Offset, 0),
			Limit:    clampLimit(args.Limit),
			Sort:     models.SortKey(args.Sort),
		})
		if err != nil {
			return nil, models.SearchResponse{}, toolError(err)
		}
		return nil, *resp, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "suggest_servers",
		Description: "Complete a server name prefix",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args suggestServersArgs) (*mcp.CallToolResult, models.SuggestResponse, error) {
		resp, err := registry.Suggest(ctx, args.Prefix, args.Limit)
		if err != nil {
			return nil, models.SuggestResponse{}, toolError(err)
		}
		return nil, *resp, nil
	})
}

// ServerPayload is a compact representation of a server record.
type ServerPayload struct {
	models.SearchResult
	IsClaimed    bool     `json:"is_claimed"`
	Capabilities []string `json:"capabilities"`
	Versions     []string `json:"versions"`
	Score        float64  `json:"score"`
}

func newServerPayload(s *models.ServerResponse) ServerPayload {
	out := ServerPayload{
		SearchResult: models.NewSearchResult(&s.ServerRecord),
		IsClaimed:    s.IsClaimed,
		Capabilities: s.Capabilities.Present(),
		Versions:     make([]string, len(s.Versions)),
		Score:        s.Score.Composite,
	}
	if out.Capabilities == nil {
		out.Capabilities = []string{}
	}
	for i, v := range s.Versions {
		out.Versions[i] = v.Version
	}
	return out
}

func addServerTools(server *mcp.Server, registry service.RegistryService) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_server",
		Description: "Fetch a registered MCP server by id or by name",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args struct {
		ID   string `json:"id,omitempty"`
		Name string `json:"name,omitempty"`
	}) (*mcp.CallToolResult, ServerPayload, error) {
		var (
			s   *models.ServerResponse
			err error
		)
		switch {
		case args.ID != "":
			s, err = registry.GetServer(ctx, args.ID)
		case args.Name != "":
			s, err = registry.GetServerByName(ctx, args.Name)
		default:
			return nil, ServerPayload{}, fmt.Errorf("id or name is required")
		}
		if err != nil {
			return nil, ServerPayload{}, toolError(err)
		}
		return nil, newServerPayload(s), nil
	})
}

// HealthPayload reports the state of each backing store.
type HealthPayload struct {
	Status     string                    `json:"status"`
	Components []service.ComponentHealth `json:"components"`
}

func addMetaTools(server *mcp.Server, registry service.RegistryService) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "registry_health",
		Description: "Report whether the record store and the search backend are reachable",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, HealthPayload, error) {
		out := HealthPayload{Status: "ok", Components: registry.Health(ctx)}
		for _, c := range out.Components {
			if c.Status != "ok" {
				out.Status = "degraded"
			}
		}
		return nil, out, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "registry_version",
		Description: "Return registry build metadata",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, map[string]string, error) {
		_ = ctx
		return nil, map[string]string{
			"version":    version.Version,
			"gitCommit":  version.GitCommit,
			"buildDate":  version.BuildDate,
			"serverName": serverName,
		}, nil
	})
}

// toolError keeps the category and message of service failures and hides
// internal ones.
func toolError(err error) error {
	c := errs.CategoryOf(err)
	if c == errs.CategoryInternal {
		return errors.New("internal error")
	}
	var e *errs.Error
	if errors.As(err, &e) && e.Message != "" {
		return fmt.Errorf("%s: %s", c, e.Message)
	}
	return fmt.Errorf("%s: %v", c, err)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultPageLimit
	}
	if limit > maxPageLimit {
		return maxPageLimit
	}
	return limit
}
