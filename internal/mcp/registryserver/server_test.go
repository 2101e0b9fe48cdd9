package registryserver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentregistry-dev/mcpindex/internal/registry/errs"
	"github.com/agentregistry-dev/mcpindex/internal/registry/models"
	"github.com/agentregistry-dev/mcpindex/internal/registry/service"
	servicetesting "github.com/agentregistry-dev/mcpindex/internal/registry/service/testing"
)

func connect(t *testing.T, reg service.RegistryService) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	server := NewServer(reg)
	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	serverSession, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = serverSession.Wait() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	clientSession, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = clientSession.Close() })
	return clientSession
}

func decode(t *testing.T, res *mcp.CallToolResult, out any) {
	t.Helper()
	require.NotNil(t, res.StructuredContent)
	raw, err := json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}

func sampleServers() []*models.ServerRecord {
	return []*models.ServerRecord{
		{
			ID:       "id-1",
			Name:     "filesystem",
			Source:   models.SourceFirstParty,
			Versions: []models.Version{{Version: "1.0.0"}, {Version: "1.1.0", IsLatest: true}},
			Metadata: models.Metadata{Tags: []string{"files"}, Category: "storage"},
			Score:    models.Score{Composite: 0.7},
		},
		{
			ID:        "id-2",
			Name:      "io.acme/tool",
			Source:    models.SourceCommunity,
			ClaimedBy: "u1",
			Versions:  []models.Version{{Version: "0.1.0", IsLatest: true}},
		},
	}
}

func TestListTools(t *testing.T) {
	session := connect(t, servicetesting.NewFakeRegistry())

	res, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"search_servers", "suggest_servers", "get_server", "registry_health", "registry_version"}, names)
}

func TestSearchServersTool(t *testing.T) {
	fake := servicetesting.NewFakeRegistry()
	var got models.SearchRequest
	fake.SearchFn = func(_ context.Context, req models.SearchRequest) (*models.SearchResponse, error) {
		got = req
		return &models.SearchResponse{
			Results: []models.SearchResult{models.NewSearchResult(sampleServers()[0])},
			Total:   1,
			Limit:   req.Limit,
			Aggregations: models.Aggregations{
				Categories: []models.Bucket{{Key: "storage", Count: 1}},
				Sources:    []models.Bucket{},
				Tags:       []models.Bucket{},
			},
		}, nil
	}
	session := connect(t, fake)

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "search_servers",
		Arguments: map[string]any{"query": "files", "tags": []string{"io"}, "limit": 500, "sort": "stars"},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)

	assert.Equal(t, "files", got.Query)
	assert.Equal(t, []string{"io"}, got.Tags)
	assert.Equal(t, models.MaxSearchLimit, got.Limit, "limit is clamped")
	assert.Equal(t, models.SortStars, got.Sort)

	var out models.SearchResponse
	decode(t, res, &out)
	require.Len(t, out.Results, 1)
	assert.Equal(t, "filesystem", out.Results[0].Name)
	assert.Equal(t, "1.1.0", out.Results[0].LatestVersion)
}

func TestSearchServersTool_DefaultLimit(t *testing.T) {
	fake := servicetesting.NewFakeRegistry()
	fake.Servers = sampleServers()
	session := connect(t, fake)

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: "search_servers", Arguments: map[string]any{}})
	require.NoError(t, err)
	var out models.SearchResponse
	decode(t, res, &out)
	assert.Equal(t, defaultPageLimit, out.Limit)
	assert.Len(t, out.Results, 2)
}

func TestSuggestServersTool_ValidationError(t *testing.T) {
	fake := servicetesting.NewFakeRegistry()
	fake.SuggestFn = func(context.Context, string, int) (*models.SuggestResponse, error) {
		return nil, errs.Validation("q must be at least 2 characters")
	}
	session := connect(t, fake)

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "suggest_servers",
		Arguments: map[string]any{"prefix": "f"},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	raw, _ := json.Marshal(res.Content)
	assert.Contains(t, string(raw), "validation_failure")
}

func TestGetServerTool(t *testing.T) {
	fake := servicetesting.NewFakeRegistry()
	fake.Servers = sampleServers()
	session := connect(t, fake)
	ctx := context.Background()

	res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: "get_server", Arguments: map[string]any{"name": "io.acme/tool"}})
	require.NoError(t, err)
	require.False(t, res.IsError)
	var byName ServerPayload
	decode(t, res, &byName)
	assert.Equal(t, "id-2", byName.ID)
	assert.True(t, byName.IsClaimed)
	assert.Equal(t, []string{}, byName.Capabilities)

	res, err = session.CallTool(ctx, &mcp.CallToolParams{Name: "get_server", Arguments: map[string]any{"id": "id-1"}})
	require.NoError(t, err)
	var byID ServerPayload
	decode(t, res, &byID)
	assert.Equal(t, []string{"1.0.0", "1.1.0"}, byID.Versions)
	assert.Equal(t, 0.7, byID.Score)

	res, err = session.CallTool(ctx, &mcp.CallToolParams{Name: "get_server", Arguments: map[string]any{"id": "missing"}})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	raw, _ := json.Marshal(res.Content)
	assert.Contains(t, string(raw), "not_found")

	res, err = session.CallTool(ctx, &mcp.CallToolParams{Name: "get_server", Arguments: map[string]any{}})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestMetaTools(t *testing.T) {
	fake := servicetesting.NewFakeRegistry()
	fake.Healthy[1] = service.ComponentHealth{Name: "search", Status: "unavailable", Error: "connection refused"}
	session := connect(t, fake)
	ctx := context.Background()

	res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: "registry_health", Arguments: map[string]any{}})
	require.NoError(t, err)
	var health HealthPayload
	decode(t, res, &health)
	assert.Equal(t, "degraded", health.Status)
	assert.Len(t, health.Components, 2)

	res, err = session.CallTool(ctx, &mcp.CallToolParams{Name: "registry_version", Arguments: map[string]any{}})
	require.NoError(t, err)
	var info map[string]string
	decode(t, res, &info)
	assert.Equal(t, serverName, info["serverName"])
	assert.NotEmpty(t, info["version"])
}

func TestToolError(t *testing.T) {
	assert.EqualError(t, toolError(errs.Conflict("server x is already claimed")), "conflict: server x is already claimed")
	assert.EqualError(t, toolError(assert.AnError), "internal error")
}
