// Package cli builds the mcp-registry command tree.
package cli

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	icli "github.com/agentregistry-dev/mcpindex/internal/cli"
	"github.com/agentregistry-dev/mcpindex/internal/cli/mcp"
	"github.com/agentregistry-dev/mcpindex/internal/client"
)

var (
	registryURL string
	apiToken    string
	envFile     string
)

// Root returns the root command with every subcommand registered.
func Root() *cobra.Command {
	root := &cobra.Command{
		Use:   "mcp-registry",
		Short: "Search and curate a registry of MCP servers",
		Long: `mcp-registry runs and queries a registry of Model Context Protocol servers.
Server-side commands read MCP_REGISTRY_* settings from the environment or a .env file.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadEnvFile(envFile); err != nil {
				return err
			}
			url := registryURL
			if url == "" {
				url = os.Getenv("MCP_REGISTRY_URL")
			}
			token := apiToken
			if token == "" {
				token = os.Getenv("MCP_REGISTRY_TOKEN")
			}
			icli.SetAPIClient(client.NewClient(url, token))
			return nil
		},
	}

	root.PersistentFlags().StringVar(&registryURL, "registry-url", "", "Registry base URL (defaults to MCP_REGISTRY_URL or "+client.DefaultBaseURL+")")
	root.PersistentFlags().StringVar(&apiToken, "token", "", "Bearer token for write and admin calls (defaults to MCP_REGISTRY_TOKEN)")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file loaded before running a command")

	root.AddCommand(
		icli.ServeCmd,
		icli.ReindexCmd,
		icli.SearchCmd,
		icli.ShowCmd,
		icli.ImportCmd,
		icli.ExportCmd,
		icli.TokenCmd,
		icli.StatusCmd,
		icli.VersionCmd,
		mcp.McpCmd,
	)
	return root
}

// loadEnvFile applies path without overriding variables already set. A
// missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
