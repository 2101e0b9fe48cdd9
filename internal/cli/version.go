package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/mod/semver"

	"github.com/agentregistry-dev/mcpindex/internal/version"
	"github.com/agentregistry-dev/mcpindex/pkg/types"
)

type VersionOutput struct {
	CLIVersion           string `json:"cli_version"`
	GitCommit            string `json:"git_commit"`
	BuildDate            string `json:"build_date"`
	ServerVersion        string `json:"server_version,omitempty"`
	ServerGitCommit      string `json:"server_git_commit,omitempty"`
	ServerBuildDate      string `json:"server_build_date,omitempty"`
	UpdateRecommendation string `json:"update_recommendation,omitempty"`
}

var jsonOutput bool

var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long:  `Displays the version of mcp-registry and, when one answers, of the registry server.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		output := VersionOutput{
			CLIVersion: version.Version,
			GitCommit:  version.GitCommit,
			BuildDate:  version.BuildDate,
		}

		c, serverErr := registryClient()
		if serverErr == nil {
			var serverVersion *types.VersionBody
			if serverVersion, serverErr = c.GetVersion(cmd.Context()); serverErr == nil {
				output.ServerVersion = serverVersion.Version
				output.ServerGitCommit = serverVersion.GitCommit
				output.ServerBuildDate = serverVersion.BuildTime
				output.UpdateRecommendation = updateRecommendation(version.Version, serverVersion.Version)
			}
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, output)
		}

		fmt.Fprintf(out, "mcp-registry version %s\n", output.CLIVersion)
		fmt.Fprintf(out, "Git commit: %s\n", output.GitCommit)
		fmt.Fprintf(out, "Build date: %s\n", output.BuildDate)

		if output.ServerVersion != "" {
			fmt.Fprintf(out, "Server version: %s\n", output.ServerVersion)
			fmt.Fprintf(out, "Server git commit: %s\n", output.ServerGitCommit)
			fmt.Fprintf(out, "Server build date: %s\n", output.ServerBuildDate)

			if output.UpdateRecommendation != "" {
				fmt.Fprintln(out, "\n-------------------------------")
				fmt.Fprintln(out, output.UpdateRecommendation)
			}
		} else if serverErr != nil {
			fmt.Fprintf(out, "Error getting server version: %v\n", serverErr)
		}
		return nil
	},
}

func updateRecommendation(cli, server string) string {
	cv, sv := version.EnsureVPrefix(cli), version.EnsureVPrefix(server)
	if !semver.IsValid(cv) || !semver.IsValid(sv) {
		return ""
	}
	switch semver.Compare(cv, sv) {
	case 1:
		return "CLI version is newer than server version. Consider updating the server."
	case -1:
		return "Server version is newer than CLI version. Consider updating the CLI."
	}
	return ""
}

func init() {
	VersionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version information in JSON format")
}
