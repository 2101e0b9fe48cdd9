// Package client is an HTTP client for the registry's /v0 API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cenkalti/backoff/v4"

	"github.com/agentregistry-dev/mcpindex/internal/registry/jobs"
	"github.com/agentregistry-dev/mcpindex/internal/registry/models"
	"github.com/agentregistry-dev/mcpindex/internal/registry/service"
	"github.com/agentregistry-dev/mcpindex/pkg/types"
)

const (
	DefaultBaseURL = "http://localhost:8080"
	apiPrefix      = "/v0"
	pingRetries    = 5
)

// Client talks to a registry server.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Error is a failed API call as reported by the server.
type Error struct {
	Status   int    `json:"status"`
	Category string `json:"category"`
	Message  string `json:"message"`
	Stage    string `json:"stage,omitempty"`
	Detail   string `json:"detail,omitempty"`

	body []byte
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("registry returned %d", e.Status)
	if e.Category != "" {
		msg += " (" + e.Category + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

type envConfig struct {
	URL   string `env:"URL" envDefault:"http://localhost:8080"`
	Token string `env:"TOKEN"`
}

// NewClientFromEnv builds a client from MCP_REGISTRY_URL and MCP_REGISTRY_TOKEN
// and checks that the server answers.
func NewClientFromEnv() (*Client, error) {
	var cfg envConfig
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "MCP_REGISTRY_"}); err != nil {
		return nil, fmt.Errorf("failed to read client environment: %w", err)
	}
	c := NewClient(cfg.URL, cfg.Token)
	if err := pingWithRetry(c); err != nil {
		return nil, fmt.Errorf("registry at %s is not reachable: %w", cfg.URL, err)
	}
	return c, nil
}

// NewClient creates a client for baseURL. token may be empty for anonymous
// calls.
func NewClient(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// BaseURL returns the server address the client was built for.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func pingWithRetry(c *Client) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = time.Second
	return backoff.Retry(func() error {
		return c.Ping(context.Background())
	}, backoff.WithMaxRetries(bo, pingRetries))
}

// Ping checks liveness.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/ping", nil, nil, nil)
}

// GetVersion returns the server's build information.
func (c *Client) GetVersion(ctx context.Context) (*types.VersionBody, error) {
	var out types.VersionBody
	if err := c.do(ctx, http.MethodGet, "/version", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health is the registry's view of its backing stores.
type Health struct {
	Status     string                    `json:"status"`
	Components []service.ComponentHealth `json:"components"`
}

// Health reports store health. A degraded registry answers 503 with the same
// body, which is returned without an error.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var out Health
	err := c.do(ctx, http.MethodGet, "/health", nil, nil, &out)
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusServiceUnavailable && apiErr.body != nil {
		if json.Unmarshal(apiErr.body, &out) == nil && out.Status != "" {
			return &out, nil
		}
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Stats returns registry-wide counts.
func (c *Client) Stats(ctx context.Context) (*models.StatsResponse, error) {
	var out models.StatsResponse
	if err := c.do(ctx, http.MethodGet, "/discover/stats", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Popular returns the most starred servers.
func (c *Client) Popular(ctx context.Context, limit int) (*models.PopularResponse, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out models.PopularResponse
	if err := c.do(ctx, http.MethodGet, "/discover/popular", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Search runs a ranked search.
func (c *Client) Search(ctx context.Context, req models.SearchRequest) (*models.SearchResponse, error) {
	q := url.Values{}
	if req.Query != "" {
		q.Set("q", req.Query)
	}
	if req.Category != "" {
		q.Set("category", req.Category)
	}
	if req.Verified != nil {
		q.Set("verified", strconv.FormatBool(*req.Verified))
	}
	if req.Source != "" {
		q.Set("source", string(req.Source))
	}
	if len(req.Tags) > 0 {
		q.Set("tags", strings.Join(req.Tags, ","))
	}
	if req.Sort != "" {
		q.Set("sort", string(req.Sort))
	}
	q.Set("offset", strconv.Itoa(req.Offset))
	q.Set("limit", strconv.Itoa(req.Limit))

	var out models.SearchResponse
	if err := c.do(ctx, http.MethodGet, "/search", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Suggest completes a server name prefix.
func (c *Client) Suggest(ctx context.Context, prefix string, limit int) (*models.SuggestResponse, error) {
	q := url.Values{"q": {prefix}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out models.SuggestResponse
	if err := c.do(ctx, http.MethodGet, "/search/suggest", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetServer fetches a record by id.
func (c *Client) GetServer(ctx context.Context, id string) (*models.ServerResponse, error) {
	var out models.ServerResponse
	if err := c.do(ctx, http.MethodGet, "/servers/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetServerByName fetches a record by its unique name.
func (c *Client) GetServerByName(ctx context.Context, name string) (*models.ServerResponse, error) {
	var out models.ServerResponse
	if err := c.do(ctx, http.MethodGet, "/servers/lookup", url.Values{"name": {name}}, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Publish registers a new server.
func (c *Client) Publish(ctx context.Context, req *models.PublishRequest) (*models.ServerResponse, error) {
	var out models.ServerResponse
	if err := c.do(ctx, http.MethodPost, "/servers", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Reindex starts an asynchronous reindex job. It requires an admin token.
func (c *Client) Reindex(ctx context.Context, opts service.ReindexOptions) (*types.JobResponse, error) {
	var out types.JobResponse
	if err := c.do(ctx, http.MethodPost, "/admin/reindex", nil, opts, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetJob returns the state of an asynchronous job.
func (c *Client) GetJob(ctx context.Context, id string) (*jobs.Job, error) {
	var out jobs.Job
	if err := c.do(ctx, http.MethodGet, "/admin/jobs/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	target := c.baseURL + apiPrefix + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		apiErr := &Error{Status: resp.StatusCode, body: data}
		if json.Unmarshal(data, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		apiErr.Status = resp.StatusCode
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}
