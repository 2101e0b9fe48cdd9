// Package app assembles the registry from its configuration and runs it.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/agentregistry-dev/mcpindex/internal/mcp/registryserver"
	"github.com/agentregistry-dev/mcpindex/internal/registry/api/router"
	"github.com/agentregistry-dev/mcpindex/internal/registry/auth"
	"github.com/agentregistry-dev/mcpindex/internal/registry/cache"
	"github.com/agentregistry-dev/mcpindex/internal/registry/config"
	"github.com/agentregistry-dev/mcpindex/internal/registry/database"
	"github.com/agentregistry-dev/mcpindex/internal/registry/jobs"
	"github.com/agentregistry-dev/mcpindex/internal/registry/search"
	"github.com/agentregistry-dev/mcpindex/internal/registry/service"
	"github.com/agentregistry-dev/mcpindex/internal/registry/telemetry"
	"github.com/agentregistry-dev/mcpindex/internal/version"
	"github.com/agentregistry-dev/mcpindex/pkg/types"
)

// devJWTSecret signs tokens in development when no secret is configured.
// config.Validate refuses to start elsewhere without one.
const devJWTSecret = "mcp-registry-development-secret-do-not-use"

const (
	connectTimeout  = 15 * time.Second
	shutdownTimeout = 20 * time.Second
)

// App holds the long-lived collaborators of a registry process.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	DB       database.Database
	Backend  search.Backend
	Cache    cache.Cache
	Metrics  *telemetry.Metrics
	Registry service.RegistryService
	JWT      *auth.JWTManager

	closers []func() error
}

// New validates cfg and connects every backing store. The returned App must
// be closed.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *App, err error) {
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if cfg.EnableMetrics {
		if a.Metrics, err = telemetry.NewMetrics(); err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { return a.Metrics.Shutdown(context.Background()) })
	}

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if a.DB, err = openDatabase(connectCtx, cfg, logger); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.DB.Close)

	if a.Backend, err = openSearch(cfg); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.Backend.Close)
	if err := a.Backend.EnsureIndex(connectCtx); err != nil {
		if !cfg.EnableStoreFallback {
			return nil, fmt.Errorf("failed to prepare search index: %w", err)
		}
		logger.Warn("search backend unavailable at startup; serving degraded searches from the record store", zap.Error(err))
	}

	if a.Cache, err = openCache(connectCtx, cfg); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.Cache.Close)

	if cfg.JWTSecret == "" {
		logger.Warn("no JWT secret configured; using the development secret")
	}
	a.JWT = auth.NewJWTManager(SigningSecret(cfg), cfg.JWTTTL)

	a.Registry = service.NewRegistryService(a.DB, a.Backend, service.Options{
		Cache:          a.Cache,
		TTLs:           cfg.CacheTTL,
		CacheRecorder:  a.Metrics,
		Metrics:        a.Metrics,
		Logger:         logger.Named("service"),
		StoreFallback:  cfg.EnableStoreFallback,
		ReindexWorkers: cfg.ReindexWorkers,
	})
	return a, nil
}

// SigningSecret returns the key tokens are signed with.
func SigningSecret(cfg *config.Config) []byte {
	if cfg.JWTSecret == "" {
		return []byte(devJWTSecret)
	}
	return []byte(cfg.JWTSecret)
}

func openDatabase(ctx context.Context, cfg *config.Config, logger *zap.Logger) (database.Database, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("no database url configured; records are kept in memory")
		return database.NewMemory(), nil
	}
	db, err := database.NewPostgreSQL(ctx, cfg.DatabaseURL, database.PostgresOptions{
		MaxConns:   cfg.DatabaseMaxConns,
		MaxRetries: cfg.MaxRetries,
		Logger:     logger.Named("database"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

func openSearch(cfg *config.Config) (search.Backend, error) {
	switch cfg.SearchBackend {
	case config.SearchElasticsearch:
		return search.NewElastic(search.ElasticConfig{
			Addresses:  cfg.ElasticAddresses,
			Username:   cfg.ElasticUsername,
			Password:   cfg.ElasticPassword,
			Index:      cfg.ElasticIndex,
			MaxRetries: int(cfg.MaxRetries),
		})
	default:
		return search.NewBleve(cfg.BleveIndexPath)
	}
}

func openCache(ctx context.Context, cfg *config.Config) (cache.Cache, error) {
	switch cfg.CacheBackend {
	case config.CacheNATS:
		c, err := cache.NewNATS(ctx, cfg.NATSURL, cfg.NATSBucket, cfg.CacheTTL.Max())
		if err != nil {
			return nil, fmt.Errorf("failed to connect to nats: %w", err)
		}
		return c, nil
	case config.CacheNone:
		return cache.Nop{}, nil
	default:
		return cache.NewMemory(cfg.CacheSize, cfg.CacheTTL.Max()), nil
	}
}

// VersionInfo describes the running build.
func VersionInfo() *types.VersionBody {
	return &types.VersionBody{
		Version:   version.Version,
		GitCommit: version.GitCommit,
		BuildTime: version.BuildDate,
	}
}

// Handler builds the HTTP surface over the registry.
func (a *App) Handler(jobManager *jobs.Manager) http.Handler {
	return router.NewHandler(router.Options{
		Config:      a.Config,
		Registry:    a.Registry,
		JobManager:  jobManager,
		JWT:         a.JWT,
		Metrics:     a.Metrics,
		MCPServer:   registryserver.NewServer(a.Registry),
		VersionInfo: VersionInfo(),
		Logger:      a.Logger.Named("api"),
	})
}

// Serve runs the HTTP server until ctx is cancelled, then drains requests and
// running jobs.
func (a *App) Serve(ctx context.Context) error {
	jobManager := jobs.NewManager(a.Logger.Named("jobs"))
	server := &http.Server{
		Addr:              a.Config.ServerAddress,
		Handler:           a.Handler(jobManager),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go a.cleanupJobs(ctx, jobManager)

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("starting registry server",
			zap.String("address", a.Config.ServerAddress),
			zap.String("search_backend", a.Config.SearchBackend),
			zap.String("cache_backend", a.Config.CacheBackend),
			zap.String("version", version.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.Logger.Info("shutting down registry server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	jobManager.Wait()
	return nil
}

func (a *App) cleanupJobs(ctx context.Context, m *jobs.Manager) {
	retention := a.Config.JobRetention
	if retention <= 0 {
		return
	}
	ticker := time.NewTicker(retention / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Cleanup(retention); n > 0 {
				a.Logger.Debug("removed finished jobs", zap.Int("count", n))
			}
		}
	}
}

// Close releases the backing stores in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
