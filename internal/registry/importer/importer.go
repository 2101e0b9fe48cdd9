// Package importer loads seed data into the registry through the service, so
// imported servers are validated, scored and indexed like published ones.
package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/agentregistry-dev/mcpindex/internal/client"
	"github.com/agentregistry-dev/mcpindex/internal/registry/auth"
	"github.com/agentregistry-dev/mcpindex/internal/registry/errs"
	"github.com/agentregistry-dev/mcpindex/internal/registry/models"
	"github.com/agentregistry-dev/mcpindex/internal/registry/service"
	"github.com/agentregistry-dev/mcpindex/internal/utils"
)

const (
	maxSeedBytes   = 64 << 20
	mirrorPageSize = 100
	fetchRetries   = 3
)

// SeedServer is one entry of a seed file: a publish payload plus the
// popularity signals to record once it is published.
type SeedServer struct {
	models.PublishRequest
	Metrics *models.MetricsInput `json:"metrics,omitempty"`
}

// Result summarizes an import run.
type Result struct {
	Imported int      `json:"imported"`
	Updated  int      `json:"updated"`
	Skipped  int      `json:"skipped"`
	Failed   []string `json:"failed,omitempty"`
}

// Service handles importing seed data into the registry
type Service struct {
	registry       service.RegistryService
	httpClient     *http.Client
	headers        map[string]string
	updateIfExists bool
	logger         *zap.Logger
}

// NewService creates a new importer service with sane defaults
func NewService(registry service.RegistryService, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		registry:   registry,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		headers:    map[string]string{},
		logger:     logger.Named("importer"),
	}
}

// SetRequestHeaders replaces headers used for HTTP fetches
func (s *Service) SetRequestHeaders(headers map[string]string) {
	s.headers = headers
}

// SetHTTPClient overrides the HTTP client used for fetches
func (s *Service) SetHTTPClient(client *http.Client) {
	if client != nil {
		s.httpClient = client
	}
}

// SetUpdateIfExists adds versions missing from servers that already exist
// instead of skipping them.
func (s *Service) SetUpdateIfExists(update bool) {
	s.updateIfExists = update
}

// ImportFromPath imports seed data from one of:
//  1. a local JSON file holding an array of SeedServer
//  2. an http(s) URL serving the same format; github.com blob links are
//     fetched from their raw file
//  3. another registry's API base ending in /v0, mirrored page by page
func (s *Service) ImportFromPath(ctx context.Context, path string) (*Result, error) {
	var (
		servers []*SeedServer
		err     error
	)
	switch {
	case isHTTP(path) && strings.HasSuffix(strings.TrimRight(path, "/"), "/v0"):
		servers, err = s.fetchFromRegistryAPI(ctx, strings.TrimSuffix(strings.TrimRight(path, "/"), "/v0"))
	case isHTTP(path):
		if raw, ok := utils.GitHubRawURL(path); ok {
			path = raw
		}
		servers, err = s.fetchFromHTTP(ctx, path)
	default:
		servers, err = readSeedFile(path)
	}
	if err != nil {
		return nil, err
	}
	return s.Import(ctx, servers), nil
}

// Import publishes every server as the system caller. Entries whose name is
// already registered are skipped, or extended with their missing versions
// when SetUpdateIfExists is on.
func (s *Service) Import(ctx context.Context, servers []*SeedServer) *Result {
	ctx = auth.WithSystemContext(ctx)
	res := &Result{}
	for _, srv := range servers {
		if srv == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			res.Failed = append(res.Failed, fmt.Sprintf("%s: %v", srv.Name, err))
			continue
		}
		s.importServer(ctx, srv, res)
	}
	s.logger.Info("import finished",
		zap.Int("imported", res.Imported),
		zap.Int("updated", res.Updated),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", len(res.Failed)))
	return res
}

func (s *Service) importServer(ctx context.Context, srv *SeedServer, res *Result) {
	log := s.logger.With(zap.String("server_name", srv.Name))

	resp, err := s.registry.Publish(ctx, &srv.PublishRequest)
	switch {
	case err == nil:
		res.Imported++
		log.Debug("imported server", zap.String("id", resp.ID))
	case errs.Is(err, errs.CategoryConflict):
		resp, err = s.existing(ctx, srv, res)
		if err != nil {
			res.Failed = append(res.Failed, fmt.Sprintf("%s: %v", srv.Name, err))
			log.Warn("failed to update existing server", zap.Error(err))
			return
		}
		if resp == nil {
			return
		}
	default:
		res.Failed = append(res.Failed, fmt.Sprintf("%s: %v", srv.Name, err))
		log.Warn("failed to import server", zap.Error(err))
		return
	}

	if srv.Metrics == nil || srv.Metrics.IsEmpty() {
		return
	}
	if _, err := s.registry.RecordMetrics(ctx, resp.ID, srv.Metrics); err != nil {
		log.Warn("failed to record seed metrics", zap.Error(err))
	}
}

// existing handles a server whose name is taken. It returns nil when the
// entry was skipped.
func (s *Service) existing(ctx context.Context, srv *SeedServer, res *Result) (*models.ServerResponse, error) {
	if !s.updateIfExists {
		res.Skipped++
		return nil, nil
	}
	current, err := s.registry.GetServerByName(ctx, srv.Name)
	if err != nil {
		return nil, err
	}
	added := false
	for i := range srv.Versions {
		v := &srv.Versions[i]
		if slices.ContainsFunc(current.Versions, func(have models.Version) bool { return have.Version == v.Version }) {
			continue
		}
		if current, err = s.registry.AddVersion(ctx, current.ID, v); err != nil {
			return nil, fmt.Errorf("add version %s: %w", v.Version, err)
		}
		added = true
	}
	if !added {
		res.Skipped++
		return nil, nil
	}
	res.Updated++
	return current, nil
}

func isHTTP(path string) bool {
	return strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://")
}

func readSeedFile(path string) ([]*SeedServer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file %s: %w", path, err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes a JSON array of SeedServer.
func ParseSeed(data []byte) ([]*SeedServer, error) {
	var servers []*SeedServer
	if err := json.Unmarshal(data, &servers); err != nil {
		return nil, fmt.Errorf("failed to parse seed data: %w", err)
	}
	return servers, nil
}

func (s *Service) fetchFromHTTP(ctx context.Context, url string) ([]*SeedServer, error) {
	var data []byte
	fetch := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		for k, v := range s.headers {
			req.Header.Set(k, v)
		}
		resp, err := s.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("fetch %s: status %d", url, resp.StatusCode))
		}
		data, err = io.ReadAll(io.LimitReader(resp.Body, maxSeedBytes))
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	if err := backoff.Retry(fetch, backoff.WithContext(backoff.WithMaxRetries(bo, fetchRetries), ctx)); err != nil {
		return nil, err
	}
	return ParseSeed(data)
}

// fetchFromRegistryAPI pages through another registry's search results and
// fetches each full record.
func (s *Service) fetchFromRegistryAPI(ctx context.Context, baseURL string) ([]*SeedServer, error) {
	c := client.NewClient(baseURL, "")
	var out []*SeedServer
	for offset := 0; ; offset += mirrorPageSize {
		page, err := c.Search(ctx, models.SearchRequest{Offset: offset, Limit: mirrorPageSize, Sort: models.SortUpdated})
		if err != nil {
			return nil, fmt.Errorf("failed to list servers from %s: %w", baseURL, err)
		}
		for _, hit := range page.Results {
			rec, err := c.GetServer(ctx, hit.ID)
			if err != nil {
				return nil, fmt.Errorf("failed to fetch server %s: %w", hit.Name, err)
			}
			out = append(out, FromRecord(&rec.ServerRecord))
		}
		if len(page.Results) < mirrorPageSize || int64(offset+mirrorPageSize) >= page.Total {
			return out, nil
		}
	}
}

// FromRecord builds the seed entry that recreates rec, including its scanned
// metrics.
func FromRecord(rec *models.ServerRecord) *SeedServer {
	m := rec.Metadata
	metrics := &models.MetricsInput{
		LastUpdated: m.LastUpdated,
	}
	if m.GitHubStars > 0 {
		metrics.GitHubStars = &m.GitHubStars
	}
	if m.DownloadCount > 0 {
		metrics.DownloadCount = &m.DownloadCount
	}
	if m.InstallCount > 0 {
		metrics.InstallCount = &m.InstallCount
	}
	if m.Verified {
		metrics.Verified = &m.Verified
	}
	out := &SeedServer{PublishRequest: *rec.PublishRequest()}
	if !metrics.IsEmpty() {
		out.Metrics = metrics
	}
	return out
}
