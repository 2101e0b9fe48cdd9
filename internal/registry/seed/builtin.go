// Package seed carries the built-in set of well-known MCP servers loaded by
// serve --seed.
package seed

import (
	"context"
	_ "embed"

	"go.uber.org/zap"

	"github.com/agentregistry-dev/mcpindex/internal/registry/importer"
	"github.com/agentregistry-dev/mcpindex/internal/registry/service"
)

//go:embed seed.json
var builtinSeedData []byte

// Servers returns a fresh copy of the built-in seed entries.
func Servers() ([]*importer.SeedServer, error) {
	return importer.ParseSeed(builtinSeedData)
}

// ImportBuiltinSeedData publishes every built-in server that is not yet
// registered.
func ImportBuiltinSeedData(ctx context.Context, registry service.RegistryService, logger *zap.Logger) (*importer.Result, error) {
	servers, err := Servers()
	if err != nil {
		return nil, err
	}
	return importer.NewService(registry, logger).Import(ctx, servers), nil
}
