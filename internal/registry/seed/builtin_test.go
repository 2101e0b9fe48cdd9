package seed_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentregistry-dev/mcpindex/internal/registry/database"
	"github.com/agentregistry-dev/mcpindex/internal/registry/search"
	"github.com/agentregistry-dev/mcpindex/internal/registry/seed"
	"github.com/agentregistry-dev/mcpindex/internal/registry/service"
	"github.com/agentregistry-dev/mcpindex/internal/registry/validators"
)

func TestBuiltinSeedIsValid(t *testing.T) {
	servers, err := seed.Servers()
	require.NoError(t, err)
	require.NotEmpty(t, servers)
	for _, srv := range servers {
		assert.NoError(t, validators.ValidatePublishRequest(&srv.PublishRequest), srv.Name)
	}
}

func TestImportBuiltinSeedData_IsIdempotent(t *testing.T) {
	backend, err := search.NewBleve("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })
	reg := service.NewRegistryService(database.NewMemory(), backend, service.Options{})
	servers, err := seed.Servers()
	require.NoError(t, err)

	res, err := seed.ImportBuiltinSeedData(context.Background(), reg, nil)
	require.NoError(t, err)
	assert.Equal(t, len(servers), res.Imported)
	assert.Empty(t, res.Failed)

	res, err = seed.ImportBuiltinSeedData(context.Background(), reg, nil)
	require.NoError(t, err)
	assert.Zero(t, res.Imported)
	assert.Equal(t, len(servers), res.Skipped)

	stats, err := reg.DiscoverStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(len(servers)), stats.TotalServers)

	popular, err := reg.DiscoverPopular(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, popular.Servers, 1)
	assert.Equal(t, "io.modelcontextprotocol/filesystem", popular.Servers[0].Name)
	assert.True(t, popular.Servers[0].Metadata.Verified)
}
