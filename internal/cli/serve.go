package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentregistry-dev/mcpindex/internal/registry/auth"
	"github.com/agentregistry-dev/mcpindex/internal/registry/importer"
	"github.com/agentregistry-dev/mcpindex/internal/registry/seed"
)

var (
	serveSeedBuiltin bool
	serveSeedFrom    string
)

var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the registry server",
	Long: `Runs the HTTP API, the /mcp endpoint and /metrics. Backends are selected by the
MCP_REGISTRY_* environment, optionally loaded from a .env file.`,
	RunE: runServe,
}

func init() {
	ServeCmd.Flags().BoolVar(&serveSeedBuiltin, "seed", false, "Import the built-in set of well-known MCP servers before serving")
	ServeCmd.Flags().StringVar(&serveSeedFrom, "seed-from", "", "Import a seed file, URL or registry /v0 endpoint before serving")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	seedCtx := auth.WithSystemContext(ctx)
	if serveSeedBuiltin {
		res, err := seed.ImportBuiltinSeedData(seedCtx, a.Registry, a.Logger)
		if err != nil {
			return fmt.Errorf("failed to import built-in seed: %w", err)
		}
		a.Logger.Info("imported built-in seed", zap.Int("imported", res.Imported), zap.Int("skipped", res.Skipped))
	}
	if serveSeedFrom != "" {
		res, err := importer.NewService(a.Registry, a.Logger).ImportFromPath(seedCtx, serveSeedFrom)
		if err != nil {
			return fmt.Errorf("failed to import %s: %w", serveSeedFrom, err)
		}
		a.Logger.Info("imported seed", zap.String("from", serveSeedFrom), zap.Int("imported", res.Imported), zap.Int("failed", len(res.Failed)))
	}

	return a.Serve(ctx)
}
