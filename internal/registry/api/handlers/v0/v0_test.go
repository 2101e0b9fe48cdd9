package v0_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	v0 "github.com/agentregistry-dev/mcpindex/internal/registry/api/handlers/v0"
	"github.com/agentregistry-dev/mcpindex/internal/registry/auth"
	"github.com/agentregistry-dev/mcpindex/internal/registry/database"
	"github.com/agentregistry-dev/mcpindex/internal/registry/errs"
	"github.com/agentregistry-dev/mcpindex/internal/registry/jobs"
	"github.com/agentregistry-dev/mcpindex/internal/registry/models"
	"github.com/agentregistry-dev/mcpindex/internal/registry/service"
	servicetesting "github.com/agentregistry-dev/mcpindex/internal/registry/service/testing"
	"github.com/agentregistry-dev/mcpindex/pkg/types"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type testAPI struct {
	mux  *http.ServeMux
	fake *servicetesting.FakeRegistry
	jobs *jobs.Manager
	jwt  *auth.JWTManager
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	return newTestAPIWithErrors(t, v0.ErrorConfig{ExposeDetail: true})
}

func newTestAPIWithErrors(t *testing.T, ec v0.ErrorConfig) *testAPI {
	t.Helper()
	huma.NewError = ec.NewError

	mux := http.NewServeMux()
	api := humago.New(mux, huma.DefaultConfig("Test API", "1.0.0"))
	ta := &testAPI{
		mux:  mux,
		fake: servicetesting.NewFakeRegistry(),
		jobs: jobs.NewManager(zap.NewNop()),
		jwt:  auth.NewJWTManager(testSecret, time.Hour),
	}
	api.UseMiddleware(auth.Middleware(api, ta.jwt))

	v0.RegisterHealthEndpoints(api, "/v0", ta.fake, &types.VersionBody{Version: "1.2.3", GitCommit: "abc"})
	v0.RegisterSearchEndpoints(api, "/v0", ta.fake, ec)
	v0.RegisterDiscoverEndpoints(api, "/v0", ta.fake, ec)
	v0.RegisterServersEndpoints(api, "/v0", ta.fake, ec)
	v0.RegisterPublishersEndpoints(api, "/v0", ta.fake, ec)
	v0.RegisterAdminEndpoints(api, "/v0", ta.fake, ta.jobs, ec)
	return ta
}

func (ta *testAPI) token(t *testing.T, s auth.Session) string {
	t.Helper()
	tok, err := ta.jwt.GenerateToken(s)
	require.NoError(t, err)
	return tok
}

func (ta *testAPI) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ta.mux.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) v0.APIError {
	t.Helper()
	var out v0.APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestPingAndVersion(t *testing.T) {
	ta := newTestAPI(t)

	w := ta.do(http.MethodGet, "/v0/ping", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"pong":true`)

	w = ta.do(http.MethodGet, "/v0/version", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"version":"1.2.3"`)
	assert.Contains(t, w.Body.String(), `"git_commit":"abc"`)
}

func TestHealth(t *testing.T) {
	ta := newTestAPI(t)

	w := ta.do(http.MethodGet, "/v0/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)

	ta.fake.Healthy[1] = service.ComponentHealth{Name: "search", Status: "unavailable", Error: "dial tcp: refused"}
	w = ta.do(http.MethodGet, "/v0/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"degraded"`)
}

func TestSearch_ParameterMapping(t *testing.T) {
	ta := newTestAPI(t)
	var got models.SearchRequest
	ta.fake.SearchFn = func(_ context.Context, req models.SearchRequest) (*models.SearchResponse, error) {
		got = req
		return &models.SearchResponse{Results: []models.SearchResult{}, Limit: req.Limit}, nil
	}

	w := ta.do(http.MethodGet, "/v0/search?q=files&verified=true&tags=db,io&source=community&sort=stars&offset=5", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "files", got.Query)
	require.NotNil(t, got.Verified)
	assert.True(t, *got.Verified)
	assert.Equal(t, []string{"db", "io"}, got.Tags)
	assert.Equal(t, models.SourceCommunity, got.Source)
	assert.Equal(t, models.SortStars, got.Sort)
	assert.Equal(t, 5, got.Offset)
	assert.Equal(t, models.DefaultSearchLimit, got.Limit)

	w = ta.do(http.MethodGet, "/v0/search?limit=0", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, got.Limit, "an explicit zero limit asks for aggregations only")
	assert.Nil(t, got.Verified)
	assert.Equal(t, models.SortRelevance, got.Sort)
}

func TestSearch_InvalidParametersAre400(t *testing.T) {
	ta := newTestAPI(t)

	for _, query := range []string{
		"limit=101",
		"offset=-1",
		"sort=popularity",
		"source=unknown",
		"q=" + strings.Repeat("x", 201),
	} {
		t.Run(query[:min(len(query), 20)], func(t *testing.T) {
			w := ta.do(http.MethodGet, "/v0/search?"+query, "", nil)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, string(errs.CategoryValidation), decodeError(t, w).Category)
		})
	}
	assert.Zero(t, ta.fake.SearchCalls)
}

func TestSearch_BackendUnavailable(t *testing.T) {
	ta := newTestAPI(t)
	ta.fake.SearchFn = func(context.Context, models.SearchRequest) (*models.SearchResponse, error) {
		return nil, errs.Unavailable("", fmt.Errorf("connection refused"), "search backend unavailable")
	}

	w := ta.do(http.MethodGet, "/v0/search?q=x", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	apiErr := decodeError(t, w)
	assert.Equal(t, string(errs.CategoryBackendUnavailable), apiErr.Category)
	assert.Equal(t, "connection refused", apiErr.Detail)
}

func TestSuggest(t *testing.T) {
	ta := newTestAPI(t)
	ta.fake.SuggestFn = func(_ context.Context, prefix string, limit int) (*models.SuggestResponse, error) {
		return &models.SuggestResponse{Suggestions: []string{prefix + "system"}}, nil
	}

	w := ta.do(http.MethodGet, "/v0/search/suggest?q=file", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"suggestions":["filesystem"]`)

	w = ta.do(http.MethodGet, "/v0/search/suggest?q=f", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDiscover(t *testing.T) {
	ta := newTestAPI(t)
	var gotLimit int
	ta.fake.DiscoverPopularFn = func(_ context.Context, limit int) (*models.PopularResponse, error) {
		gotLimit = limit
		return &models.PopularResponse{Servers: []models.SearchResult{}}, nil
	}

	for _, path := range []string{"/v0/discover/categories", "/v0/discover/stats", "/v0/discover/popular"} {
		w := ta.do(http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
	assert.Equal(t, 10, gotLimit)
}

func TestGetServer(t *testing.T) {
	ta := newTestAPI(t)
	ta.fake.Servers = []*models.ServerRecord{{
		ID:        "id-1",
		Name:      "io.acme/tool",
		ClaimedBy: "u1",
		Versions:  []models.Version{{Version: "1.0.0", IsLatest: true, Packages: []models.Package{}}},
	}}

	w := ta.do(http.MethodGet, "/v0/servers/id-1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"is_claimed":true`)

	w = ta.do(http.MethodGet, "/v0/servers/lookup?name=io.acme%2Ftool", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"id":"id-1"`)

	w = ta.do(http.MethodGet, "/v0/servers/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, string(errs.CategoryNotFound), decodeError(t, w).Category)
}

func TestPublish(t *testing.T) {
	ta := newTestAPI(t)
	ta.fake.PublishFn = func(ctx context.Context, req *models.PublishRequest) (*models.ServerResponse, error) {
		if _, ok := auth.AuthSessionFrom(ctx); !ok {
			return nil, errs.Unauthenticated("authentication required")
		}
		return models.NewServerResponse(&models.ServerRecord{ID: "new", Name: req.Name, Versions: []models.Version{}}), nil
	}
	body := map[string]any{"name": "filesystem", "versions": []map[string]any{{"version": "1.0.0"}}}

	w := ta.do(http.MethodPost, "/v0/servers", "", body)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, string(errs.CategoryUnauthenticated), decodeError(t, w).Category)

	tok := ta.token(t, auth.Session{UserID: "u1"})
	w = ta.do(http.MethodPost, "/v0/servers", tok, body)
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"name":"filesystem"`)

	w = ta.do(http.MethodPost, "/v0/servers", "not-a-token", body)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMutationErrors(t *testing.T) {
	ta := newTestAPI(t)
	tok := ta.token(t, auth.Session{UserID: "u2"})

	ta.fake.ClaimServerFn = func(context.Context, string) (*models.ServerResponse, error) {
		return nil, errs.Conflict("server id-1 is already claimed")
	}
	w := ta.do(http.MethodPost, "/v0/servers/id-1/claim", tok, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "server id-1 is already claimed", decodeError(t, w).Message)

	ta.fake.UnclaimServerFn = func(context.Context, string) (*models.ServerResponse, error) {
		return nil, errs.Forbidden("server id-1 is not claimed by the caller")
	}
	w = ta.do(http.MethodDelete, "/v0/servers/id-1/claim", tok, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	ta.fake.UpdateServerFn = func(context.Context, string, *models.UpdateServerInput) (*models.ServerResponse, error) {
		return nil, database.ErrRevisionMismatch
	}
	w = ta.do(http.MethodPatch, "/v0/servers/id-1", tok, map[string]any{"description": "x", "expected_revision": 1})
	assert.Equal(t, http.StatusConflict, w.Code)

	ta.fake.DeleteServerFn = func(context.Context, string) error {
		return errs.Unavailable(service.StageProjected, fmt.Errorf("index down"), "server id-1 was deleted but its search document could not be removed")
	}
	w = ta.do(http.MethodDelete, "/v0/servers/id-1", tok, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, service.StageProjected, decodeError(t, w).Stage)

	ta.fake.DeleteServerFn = nil
	w = ta.do(http.MethodDelete, "/v0/servers/id-1", tok, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestInternalErrorsHideDetailInProduction(t *testing.T) {
	failing := func(context.Context, string) (*models.Score, error) {
		return nil, fmt.Errorf("pq: relation servers does not exist")
	}

	ta := newTestAPI(t)
	ta.fake.GetScoreFn = failing
	w := ta.do(http.MethodGet, "/v0/servers/id-1/score", "", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, decodeError(t, w).Detail, "relation servers")

	prod := newTestAPIWithErrors(t, v0.ErrorConfig{})
	prod.fake.GetScoreFn = failing
	w = prod.do(http.MethodGet, "/v0/servers/id-1/score", "", nil)
	apiErr := decodeError(t, w)
	assert.Equal(t, "internal error", apiErr.Message)
	assert.Empty(t, apiErr.Detail)
	assert.NotContains(t, w.Body.String(), "relation servers")
}

func TestRateServer(t *testing.T) {
	ta := newTestAPI(t)
	var gotRating int
	ta.fake.RateServerFn = func(_ context.Context, id string, rating int) (*models.ServerResponse, error) {
		gotRating = rating
		return models.NewServerResponse(&models.ServerRecord{ID: id, Versions: []models.Version{}}), nil
	}
	tok := ta.token(t, auth.Session{UserID: "u1"})

	w := ta.do(http.MethodPost, "/v0/servers/id-1/ratings", tok, map[string]any{"rating": 4})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 4, gotRating)

	w = ta.do(http.MethodPost, "/v0/servers/id-1/ratings", tok, map[string]any{"rating": 9})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPublishers(t *testing.T) {
	ta := newTestAPI(t)
	ta.fake.Publishers = []*models.Publisher{{ID: "p1", Name: "Acme", Verified: true}}

	w := ta.do(http.MethodGet, "/v0/publishers/p1", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"verified":true`)

	w = ta.do(http.MethodGet, "/v0/publishers/p2", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReindexJob(t *testing.T) {
	ta := newTestAPI(t)
	ta.fake.Servers = []*models.ServerRecord{{ID: "a"}, {ID: "b"}}

	w := ta.do(http.MethodPost, "/v0/admin/reindex", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ta.do(http.MethodPost, "/v0/admin/reindex", ta.token(t, auth.Session{UserID: "u1"}), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	admin := ta.token(t, auth.Session{UserID: "ops", Admin: true})
	w = ta.do(http.MethodPost, "/v0/admin/reindex", admin, map[string]any{"batch_size": 50})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var started types.JobResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &started))
	require.NotEmpty(t, started.JobID)

	ta.jobs.Wait()
	w = ta.do(http.MethodGet, "/v0/admin/jobs/"+started.JobID, admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var job jobs.Job
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
	assert.Equal(t, jobs.StatusCompleted, job.Status)
	assert.EqualValues(t, 2, job.Result["processed"])

	w = ta.do(http.MethodGet, "/v0/admin/jobs", admin, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), started.JobID)

	w = ta.do(http.MethodGet, "/v0/admin/jobs/unknown", admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRecordMetrics(t *testing.T) {
	ta := newTestAPI(t)
	var got *models.MetricsInput
	ta.fake.RecordMetricsFn = func(_ context.Context, id string, in *models.MetricsInput) (*models.ServerResponse, error) {
		got = in
		return models.NewServerResponse(&models.ServerRecord{ID: id, Versions: []models.Version{}}), nil
	}
	admin := ta.token(t, auth.Session{UserID: "scanner", Admin: true})

	w := ta.do(http.MethodPut, "/v0/admin/servers/id-1/metrics", admin, map[string]any{"github_stars": 120})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NotNil(t, got.GitHubStars)
	assert.Equal(t, int64(120), *got.GitHubStars)

	w = ta.do(http.MethodPut, "/v0/admin/servers/id-1/metrics", admin, map[string]any{"github_stars": -1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
