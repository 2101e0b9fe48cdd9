package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentregistry-dev/mcpindex/internal/client"
	"github.com/agentregistry-dev/mcpindex/internal/registry/service"
	"github.com/agentregistry-dev/mcpindex/internal/version"
)

var statusOutputFormat string

var StatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of a running registry",
	Long:  `Displays whether the registry answers, its version, the health of its stores and server counts.`,
	RunE:  runStatus,
}

func init() {
	StatusCmd.Flags().StringVarP(&statusOutputFormat, "output", "o", "table", "Output format (table, json)")
}

type statusInfo struct {
	API        string                    `json:"api"`
	Health     string                    `json:"health,omitempty"`
	Components []service.ComponentHealth `json:"components,omitempty"`
	Version    string                    `json:"version,omitempty"`
	GitCommit  string                    `json:"git_commit,omitempty"`
	BuildTime  string                    `json:"build_time,omitempty"`
	Servers    int64                     `json:"servers"`
	Verified   int64                     `json:"verified"`
}

func statusClient() *client.Client {
	if apiClient != nil {
		return apiClient
	}
	return client.NewClient(os.Getenv("MCP_REGISTRY_URL"), os.Getenv("MCP_REGISTRY_TOKEN"))
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	info := statusInfo{
		API:      "unreachable",
		Servers:  -1,
		Verified: -1,
	}

	// No retries: an unreachable registry is a valid answer here.
	c := statusClient()
	if err := c.Ping(ctx); err == nil {
		info.API = "ok"

		if ver, err := c.GetVersion(ctx); err == nil {
			info.Version = ver.Version
			info.GitCommit = ver.GitCommit
			info.BuildTime = ver.BuildTime
		}
		if h, err := c.Health(ctx); err == nil {
			info.Health = h.Status
			info.Components = h.Components
		}
		if stats, err := c.Stats(ctx); err == nil {
			info.Servers = stats.TotalServers
			info.Verified = stats.VerifiedServers
		}
	}

	out := cmd.OutOrStdout()
	if statusOutputFormat == "json" {
		return printJSON(out, info)
	}

	fmt.Fprintf(out, "mcp-registry:    %s\n", version.Version)
	fmt.Fprintf(out, "Registry:        %s\n", c.BaseURL())
	fmt.Fprintf(out, "API:             %s\n", info.API)
	if info.Version != "" {
		fmt.Fprintf(out, "Server version:  %s\n", info.Version)
		fmt.Fprintf(out, "Git commit:      %s\n", info.GitCommit)
		fmt.Fprintf(out, "Build time:      %s\n", info.BuildTime)
	}
	if info.Health != "" {
		fmt.Fprintf(out, "Health:          %s\n", info.Health)
		for _, comp := range info.Components {
			fmt.Fprintf(out, "  %-14s %s\n", comp.Name+":", comp.Status)
		}
	}
	if info.Servers >= 0 {
		fmt.Fprintf(out, "MCP servers:     %d\n", info.Servers)
		fmt.Fprintf(out, "Verified:        %d\n", info.Verified)
	}
	return nil
}
