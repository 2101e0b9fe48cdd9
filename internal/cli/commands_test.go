package cli

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/agentregistry-dev/mcpindex/internal/registry/app"
	"github.com/agentregistry-dev/mcpindex/internal/registry/auth"
	"github.com/agentregistry-dev/mcpindex/internal/registry/config"
	"github.com/agentregistry-dev/mcpindex/internal/registry/importer"
	"github.com/agentregistry-dev/mcpindex/internal/registry/models"
)

func TestSearchCmd_Table(t *testing.T) {
	startRegistry(t)
	searchSort = string(models.SortStars)
	defer func() { searchSort = string(models.SortRelevance) }()

	out := run(t, SearchCmd)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) < 2 || !strings.HasPrefix(lines[0], "NAME") {
		t.Fatalf("expected a table header, got: %s", out)
	}
	if !strings.HasPrefix(lines[1], "io.modelcontextprotocol/filesystem") {
		t.Errorf("expected the most starred server first, got: %s", lines[1])
	}
	if strings.Contains(out, "warning:") {
		t.Errorf("unexpected degraded warning: %s", out)
	}
}

func TestSearchCmd_InvalidVerified(t *testing.T) {
	startRegistry(t)
	searchVerified = "maybe"
	defer func() { searchVerified = "" }()

	SearchCmd.SetContext(context.Background())
	if err := SearchCmd.RunE(SearchCmd, []string{"git"}); err == nil {
		t.Fatal("expected an error for an invalid --verified value")
	}
}

func TestShowCmd_ByNameAndID(t *testing.T) {
	a := startRegistry(t)

	out := run(t, ShowCmd, "io.modelcontextprotocol/git")
	if !strings.Contains(out, "io.modelcontextprotocol/git") || !strings.Contains(out, "Score:") {
		t.Errorf("expected server details, got: %s", out)
	}

	rec, err := a.Registry.GetServerByName(context.Background(), "io.modelcontextprotocol/time")
	if err != nil {
		t.Fatal(err)
	}
	out = run(t, ShowCmd, rec.ID)
	if !strings.Contains(out, "io.modelcontextprotocol/time") {
		t.Errorf("expected lookup by id to fall back, got: %s", out)
	}
}

func TestReindexCmd_Remote(t *testing.T) {
	startRegistry(t)
	reindexPollInterval = 10 * time.Millisecond
	defer func() { reindexPollInterval = 2 * time.Second }()

	out := run(t, ReindexCmd)
	if !strings.Contains(out, "reindex job") {
		t.Errorf("expected job id in output, got: %s", out)
	}
	if !strings.Contains(out, "Failed:    0") {
		t.Errorf("expected a clean reindex, got: %s", out)
	}
	if strings.Contains(out, "Processed: 0") {
		t.Errorf("expected records to be processed, got: %s", out)
	}
}

func TestTokenCmd_DevelopmentSecret(t *testing.T) {
	t.Setenv(config.EnvPrefix+"ENVIRONMENT", "development")
	t.Setenv(config.EnvPrefix+"JWT_SECRET", "")
	tokenUser, tokenAdmin = "alice", true
	defer func() { tokenUser, tokenAdmin = "", false }()

	out := strings.TrimSpace(run(t, TokenCmd))

	cfg, err := config.Load()
	if err != nil {
		t.Fatal(err)
	}
	session, err := auth.NewJWTManager(app.SigningSecret(cfg), time.Hour).VerifyToken(out)
	if err != nil {
		t.Fatalf("token does not verify against the server secret: %v", err)
	}
	if session.UserID != "alice" || !session.Admin {
		t.Errorf("unexpected session %+v", session)
	}
}

func TestTokenCmd_RequiresSecretInProduction(t *testing.T) {
	t.Setenv(config.EnvPrefix+"ENVIRONMENT", "production")
	t.Setenv(config.EnvPrefix+"JWT_SECRET", "")
	tokenUser = "alice"
	defer func() { tokenUser = "" }()

	TokenCmd.SetContext(context.Background())
	if err := TokenCmd.RunE(TokenCmd, nil); err == nil {
		t.Fatal("expected an error without a configured secret")
	}
}

func TestImportThenExport(t *testing.T) {
	t.Setenv(config.EnvPrefix+"ENABLE_METRICS", "false")
	dir := t.TempDir()
	seedPath := filepath.Join(dir, "seed.json")
	seedData := `[{"name":"io.acme/widgets","description":"Widget tools","versions":[{"version":"1.0.0"}],"metrics":{"github_stars":12}}]`
	if err := os.WriteFile(seedPath, []byte(seedData), 0o644); err != nil {
		t.Fatal(err)
	}

	out := run(t, ImportCmd, seedPath)
	if !strings.Contains(out, "Imported: 1") {
		t.Errorf("expected one import, got: %s", out)
	}

	// Without a database url every command gets a fresh in-memory store.
	exportPath := filepath.Join(dir, "export.json")
	out = run(t, ExportCmd, exportPath)
	if !strings.Contains(out, "Exported 0 servers") {
		t.Errorf("expected an empty export, got: %s", out)
	}
	data, err := os.ReadFile(exportPath)
	if err != nil {
		t.Fatal(err)
	}
	servers, err := importer.ParseSeed(data)
	if err != nil {
		t.Fatalf("export is not a valid seed file: %v", err)
	}
	if len(servers) != 0 {
		t.Errorf("expected no servers, got %d", len(servers))
	}
}
