// Package cli holds the mcp-registry commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/agentregistry-dev/mcpindex/internal/client"
	"github.com/agentregistry-dev/mcpindex/internal/registry/app"
	"github.com/agentregistry-dev/mcpindex/internal/registry/config"
	"github.com/agentregistry-dev/mcpindex/internal/registry/logging"
)

var apiClient *client.Client

// SetAPIClient sets the client used by commands that talk to a running
// registry.
func SetAPIClient(c *client.Client) {
	apiClient = c
}

func registryClient() (*client.Client, error) {
	if apiClient == nil {
		return nil, fmt.Errorf("registry client is not configured")
	}
	return apiClient, nil
}

// openApp connects to the stores named by the environment, for commands that
// work on them directly instead of through a running server.
func openApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	logger, err := logging.New("mcp-registry", cfg.Log)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, logger)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
