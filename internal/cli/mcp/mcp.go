// Package mcp holds the commands that expose the registry over the Model
// Context Protocol.
package mcp

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/agentregistry-dev/mcpindex/internal/mcp/registryserver"
	"github.com/agentregistry-dev/mcpindex/internal/registry/app"
	"github.com/agentregistry-dev/mcpindex/internal/registry/config"
	"github.com/agentregistry-dev/mcpindex/internal/registry/logging"
)

var McpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Expose registry discovery as MCP tools",
}

var stdioCmd = &cobra.Command{
	Use:   "stdio",
	Short: "Run an MCP bridge exposing registry discovery tools on stdio",
	Long: `Connects to the stores named by the MCP_REGISTRY_* environment and serves the
search, lookup and discovery tools over stdin/stdout. Logs go to stderr.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runStdio(ctx, cmd)
	},
}

func runStdio(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	logger, err := logging.New("mcp-bridge", cfg.Log)
	if err != nil {
		return err
	}
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	cmd.PrintErrln("Starting registry MCP bridge on stdio...")
	if err := registryserver.NewServer(a.Registry).Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcp server exited: %w", err)
	}
	return nil
}

func init() {
	McpCmd.AddCommand(stdioCmd)
}
