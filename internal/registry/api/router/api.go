package router

import (
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	v0 "github.com/agentregistry-dev/mcpindex/internal/registry/api/handlers/v0"
	"github.com/agentregistry-dev/mcpindex/internal/registry/auth"
	"github.com/agentregistry-dev/mcpindex/internal/registry/config"
	"github.com/agentregistry-dev/mcpindex/internal/registry/jobs"
	"github.com/agentregistry-dev/mcpindex/internal/registry/logging"
	"github.com/agentregistry-dev/mcpindex/internal/registry/service"
	"github.com/agentregistry-dev/mcpindex/internal/registry/telemetry"
	"github.com/agentregistry-dev/mcpindex/pkg/types"
)

// RequestIDHeader carries the request id in and out.
const RequestIDHeader = "X-Request-ID"

const maxRequestIDLength = 128

// Options contains the services behind the HTTP surface.
type Options struct {
	Config      *config.Config
	Registry    service.RegistryService
	JobManager  *jobs.Manager
	JWT         *auth.JWTManager
	Metrics     *telemetry.Metrics
	MCPServer   *mcp.Server
	VersionInfo *types.VersionBody
	Logger      *zap.Logger
}

// HumaConfig is the API description shared by the server and the OpenAPI generator.
func HumaConfig(apiVersion string) huma.Config {
	humaConfig := huma.DefaultConfig("MCP Server Registry", apiVersion)
	humaConfig.Info.Description = "Registry of MCP servers with ranked full-text search, discovery and ownership claims."
	// Disable $schema property injection in responses
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {Type: "http", Scheme: "bearer", BearerFormat: "JWT"},
	}
	return humaConfig
}

// NewAPI registers every route on mux and returns the huma API.
func NewAPI(mux *http.ServeMux, opts Options) huma.API {
	cfg := opts.Config
	ec := v0.ErrorConfig{ExposeDetail: cfg == nil || !cfg.IsProduction()}
	// huma builds its own validation errors through this package-level hook
	huma.NewError = ec.NewError

	apiVersion := "dev"
	if opts.VersionInfo != nil {
		apiVersion = opts.VersionInfo.Version
	}
	api := humago.New(mux, HumaConfig(apiVersion))

	logger := opts.Logger
	if logger == nil {
		logger = logging.APIEventLog
	}
	eventCfg := logging.DefaultEventLoggingConfig()
	if cfg != nil {
		eventCfg = &cfg.EventLogging
	}
	api.UseMiddleware(eventLog(logging.Configure(eventCfg), logger, opts.Metrics))
	if opts.JWT != nil {
		api.UseMiddleware(auth.Middleware(api, opts.JWT))
	}

	RegisterRoutes(api, opts.Registry, opts.JobManager, opts.VersionInfo, ec)
	return api
}

// NewHandler builds the complete HTTP handler: the /v0 API, /metrics and
// /mcp, wrapped in request id and CORS handling.
func NewHandler(opts Options) http.Handler {
	mux := http.NewServeMux()
	NewAPI(mux, opts)

	cfg := opts.Config
	if opts.Metrics != nil && (cfg == nil || cfg.EnableMetrics) {
		mux.Handle("GET /metrics", opts.Metrics.Handler())
	}
	if opts.MCPServer != nil && (cfg == nil || cfg.EnableMCP) {
		server := opts.MCPServer
		mux.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil))
	}

	origins := []string{"*"}
	if cfg != nil && len(cfg.CORSAllowedOrigins) > 0 {
		origins = cfg.CORSAllowedOrigins
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", RequestIDHeader, "Mcp-Session-Id"},
		ExposedHeaders: []string{RequestIDHeader, "Mcp-Session-Id"},
	})
	return requestID(c.Handler(mux))
}

// requestID propagates a caller-supplied request id or assigns a new one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if id == "" || len(id) > maxRequestIDLength {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logging.SetRequestID(r.Context(), id)))
	})
}

// eventLog records one sampled event and one metric per API request.
func eventLog(cfg *logging.ParsedEventLoggingConfig, logger *zap.Logger, metrics *telemetry.Metrics) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		start := time.Now()
		next(ctx)

		status := ctx.Status()
		if status == 0 {
			status = http.StatusOK
		}
		op := ctx.Operation().OperationID
		metrics.HTTPRequest(ctx.Context(), op, status)

		path := strings.TrimPrefix(ctx.URL().Path, PathPrefix)
		if cfg.ExcludePaths[path] {
			return
		}
		level := logging.EventLevelFromStatusCode(status)
		if cfg.ErrorOnlyPaths[path] && level < zapcore.WarnLevel {
			return
		}
		logging.Log(ctx.Context(), logger, level, "request completed",
			zap.String("method", ctx.Method()),
			zap.String("path", ctx.URL().Path),
			zap.String("operation", op),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)))
	}
}
