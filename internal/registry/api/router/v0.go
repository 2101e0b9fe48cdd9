// Package router contains API routing logic
package router

import (
	"github.com/danielgtaylor/huma/v2"

	v0 "github.com/agentregistry-dev/mcpindex/internal/registry/api/handlers/v0"
	"github.com/agentregistry-dev/mcpindex/internal/registry/jobs"
	"github.com/agentregistry-dev/mcpindex/internal/registry/service"
	"github.com/agentregistry-dev/mcpindex/pkg/types"
)

// PathPrefix is the mount point of the registry API.
const PathPrefix = "/v0"

// RegisterRoutes registers all API routes under /v0.
func RegisterRoutes(
	api huma.API,
	registry service.RegistryService,
	jobManager *jobs.Manager,
	versionInfo *types.VersionBody,
	ec v0.ErrorConfig,
) {
	v0.RegisterHealthEndpoints(api, PathPrefix, registry, versionInfo)
	v0.RegisterSearchEndpoints(api, PathPrefix, registry, ec)
	v0.RegisterDiscoverEndpoints(api, PathPrefix, registry, ec)
	v0.RegisterServersEndpoints(api, PathPrefix, registry, ec)
	v0.RegisterPublishersEndpoints(api, PathPrefix, registry, ec)
	v0.RegisterAdminEndpoints(api, PathPrefix, registry, jobManager, ec)
}
