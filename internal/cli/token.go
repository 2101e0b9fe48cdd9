package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentregistry-dev/mcpindex/internal/registry/app"
	"github.com/agentregistry-dev/mcpindex/internal/registry/auth"
	"github.com/agentregistry-dev/mcpindex/internal/registry/config"
)

var (
	tokenUser      string
	tokenPublisher string
	tokenAdmin     bool
	tokenTTL       time.Duration
)

var TokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token signed with the configured JWT secret",
	Long: `Mints a token for the registry's write endpoints. It must run with the same
MCP_REGISTRY_JWT_SECRET as the server; in development both fall back to a built-in key.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if tokenUser == "" {
			return fmt.Errorf("--user is required")
		}
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to parse config: %w", err)
		}
		if cfg.JWTSecret == "" && !cfg.IsDevelopment() {
			return fmt.Errorf("MCP_REGISTRY_JWT_SECRET must be set outside development")
		}
		ttl := cfg.JWTTTL
		if tokenTTL > 0 {
			ttl = tokenTTL
		}

		token, err := auth.NewJWTManager(app.SigningSecret(cfg), ttl).GenerateToken(auth.Session{
			UserID:      tokenUser,
			PublisherID: tokenPublisher,
			Admin:       tokenAdmin,
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	TokenCmd.Flags().StringVar(&tokenUser, "user", "", "User id the token acts as")
	TokenCmd.Flags().StringVar(&tokenPublisher, "publisher", "", "Publisher the user acts for")
	TokenCmd.Flags().BoolVar(&tokenAdmin, "admin", false, "Grant admin privileges")
	TokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "Token lifetime (defaults to MCP_REGISTRY_JWT_TTL)")
}
