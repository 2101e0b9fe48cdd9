//go:build integration

package cache_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentregistry-dev/mcpindex/internal/registry/cache"
)

func TestNATS_Lifecycle(t *testing.T) {
	url := os.Getenv("MCP_REGISTRY_TEST_NATS_URL")
	if url == "" {
		t.Skip("MCP_REGISTRY_TEST_NATS_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	bucket := "test-" + uuid.NewString()[:8]
	c, err := cache.NewNATS(ctx, url, bucket, time.Hour)
	require.NoError(t, err)
	defer c.Close()

	_, ok, err := c.Get(ctx, "search:q=a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "search:q=a", []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, "server:abc", []byte("2"), time.Minute))

	v, ok, err := c.Get(ctx, "search:q=a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("1"), v)

	require.NoError(t, c.InvalidatePrefix(ctx, "search:"))
	_, ok, _ = c.Get(ctx, "search:q=a")
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, "server:abc")
	assert.True(t, ok)

	require.NoError(t, c.Delete(ctx, "server:abc"))
	require.NoError(t, c.Delete(ctx, "server:abc"))

	// a second instance attaches to the existing bucket
	c2, err := cache.NewNATS(ctx, url, bucket, time.Hour)
	require.NoError(t, err)
	defer c2.Close()
}
