package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentregistry-dev/mcpindex/internal/registry/exporter"
	"github.com/agentregistry-dev/mcpindex/internal/registry/importer"
)

var (
	importUpdate  bool
	importHeaders map[string]string
)

var ImportCmd = &cobra.Command{
	Use:   "import <file|url|registry-url/v0>",
	Short: "Import servers from a seed file, URL or another registry",
	Long: `Publishes every server of a seed file into the configured stores. The source can be a
local JSON file, an http(s) URL serving one, or another registry's /v0 API base.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		svc := importer.NewService(a.Registry, a.Logger)
		svc.SetUpdateIfExists(importUpdate)
		if len(importHeaders) > 0 {
			svc.SetRequestHeaders(importHeaders)
		}
		res, err := svc.ImportFromPath(ctx, args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Imported: %d\nUpdated:  %d\nSkipped:  %d\nFailed:   %d\n", res.Imported, res.Updated, res.Skipped, len(res.Failed))
		for _, f := range res.Failed {
			fmt.Fprintf(out, "  - %s\n", f)
		}
		return nil
	},
}

var ExportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Export every server to a seed file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		n, err := exporter.NewService(a.DB).ExportToPath(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d servers to %s\n", n, args[0])
		return nil
	},
}

func init() {
	ImportCmd.Flags().BoolVar(&importUpdate, "update", false, "Add missing versions to servers that already exist")
	ImportCmd.Flags().StringToStringVar(&importHeaders, "header", nil, "HTTP header sent when fetching a URL (key=value)")
}
