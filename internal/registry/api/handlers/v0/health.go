package v0

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/agentregistry-dev/mcpindex/internal/registry/service"
	"github.com/agentregistry-dev/mcpindex/pkg/types"
)

// PingBody represents the ping response body
type PingBody struct {
	Pong bool `json:"pong" example:"true" doc:"Ping response"`
}

// HealthBody reports each backing store.
type HealthBody struct {
	Status     string                    `json:"status" enum:"ok,degraded" example:"ok"`
	Components []service.ComponentHealth `json:"components"`
}

// HealthResponse carries the status code alongside the body so a degraded
// registry answers 503.
type HealthResponse struct {
	Status int
	Body   HealthBody
}

// RegisterHealthEndpoints registers ping, health and version endpoints with a custom path prefix
func RegisterHealthEndpoints(api huma.API, pathPrefix string, registry service.RegistryService, versionInfo *types.VersionBody) {
	suffix := strings.ReplaceAll(pathPrefix, "/", "-")

	huma.Register(api, huma.Operation{
		OperationID: "ping" + suffix,
		Method:      http.MethodGet,
		Path:        pathPrefix + "/ping",
		Summary:     "Ping",
		Description: "Liveness probe that never touches a backing store",
		Tags:        []string{"health"},
	}, func(_ context.Context, _ *struct{}) (*types.Response[PingBody], error) {
		return &types.Response[PingBody]{Body: PingBody{Pong: true}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "health" + suffix,
		Method:      http.MethodGet,
		Path:        pathPrefix + "/health",
		Summary:     "Health",
		Description: "Pings the record store and the search backend",
		Tags:        []string{"health"},
	}, func(ctx context.Context, _ *struct{}) (*HealthResponse, error) {
		resp := &HealthResponse{Status: http.StatusOK, Body: HealthBody{Status: "ok", Components: registry.Health(ctx)}}
		for _, c := range resp.Body.Components {
			if c.Status != "ok" {
				resp.Status = http.StatusServiceUnavailable
				resp.Body.Status = "degraded"
			}
		}
		return resp, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-version" + suffix,
		Method:      http.MethodGet,
		Path:        pathPrefix + "/version",
		Summary:     "Get API version information",
		Description: "Returns version, build time, and git commit information",
		Tags:        []string{"health"},
	}, func(_ context.Context, _ *struct{}) (*types.Response[types.VersionBody], error) {
		var body types.VersionBody
		if versionInfo != nil {
			body = *versionInfo
		}
		return &types.Response[types.VersionBody]{Body: body}, nil
	})
}
