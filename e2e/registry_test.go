//go:build e2e

package e2e

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
)

func TestStatusReportsHealthyRegistry(t *testing.T) {
	result := RunCLI(t, "status")
	RequireSuccess(t, result)
	RequireOutputContains(t, result, "API:             ok")
	RequireOutputContains(t, result, "Health:          ok")
}

func TestSearchSeededServers(t *testing.T) {
	result := RunCLI(t, "search", "filesystem")
	RequireSuccess(t, result)
	lines := strings.Split(strings.TrimSpace(result.Stdout), "\n")
	if len(lines) < 2 || !strings.HasPrefix(lines[1], "io.modelcontextprotocol/filesystem") {
		t.Fatalf("Expected the exact match first, got:\n%s", result.Stdout)
	}

	result = RunCLI(t, "search", "--verified", "true", "--sort", "stars", "-o", "json")
	RequireSuccess(t, result)
	var resp struct {
		Results []struct {
			Name     string `json:"name"`
			Metadata struct {
				Verified bool `json:"verified"`
			} `json:"metadata"`
		} `json:"results"`
	}
	if err := json.Unmarshal([]byte(result.Stdout), &resp); err != nil {
		t.Fatalf("Expected JSON output: %v", err)
	}
	if len(resp.Results) == 0 {
		t.Fatal("Expected verified seeded servers")
	}
	for _, r := range resp.Results {
		if !r.Metadata.Verified {
			t.Errorf("Expected only verified servers, got %s", r.Name)
		}
	}
}

func TestSearchRejectsInvalidSort(t *testing.T) {
	result := RunCLI(t, "search", "--sort", "alphabetical")
	RequireFailure(t, result)
	RequireOutputContains(t, result, "400")
}

func TestShowServer(t *testing.T) {
	result := RunCLI(t, "show", "io.modelcontextprotocol/git")
	RequireSuccess(t, result)
	RequireOutputContains(t, result, "Score:")
	RequireOutputContains(t, result, "Claimed:")
}

func TestPublishClaimAndFind(t *testing.T) {
	name := "io.e2e/" + UniqueNameWithPrefix("widgets")
	token := MintToken(t, "e2e-user", false)

	if code := RegistryDo(t, http.MethodPost, "/servers", "", map[string]any{
		"name":     name,
		"versions": []map[string]string{{"version": "1.0.0"}},
	}, nil); code != http.StatusUnauthorized {
		t.Fatalf("Expected anonymous publish to be rejected, got %d", code)
	}

	var created struct {
		ID string `json:"id"`
	}
	code := RegistryDo(t, http.MethodPost, "/servers", token, map[string]any{
		"name":        name,
		"description": "Widget tools for end to end testing",
		"tags":        []string{"e2e"},
		"versions":    []map[string]string{{"version": "1.0.0"}},
	}, &created)
	if code != http.StatusCreated {
		t.Fatalf("Expected 201 from publish, got %d", code)
	}

	if code := RegistryDo(t, http.MethodPost, "/servers/"+created.ID+"/claim", token, nil, nil); code != http.StatusOK {
		t.Fatalf("Expected claim to succeed, got %d", code)
	}
	other := MintToken(t, "someone-else", false)
	if code := RegistryDo(t, http.MethodPost, "/servers/"+created.ID+"/claim", other, nil, nil); code != http.StatusConflict {
		t.Fatalf("Expected a second claim to conflict, got %d", code)
	}

	result := RunCLI(t, "search", "--tag", "e2e")
	RequireSuccess(t, result)
	RequireOutputContains(t, result, name)
}

func TestReindexAsAdmin(t *testing.T) {
	t.Setenv("MCP_REGISTRY_TOKEN", MintToken(t, "e2e-admin", true))

	result := RunCLI(t, "reindex", "--poll-interval", "100ms")
	RequireSuccess(t, result)
	RequireOutputContains(t, result, "Failed:    0")
}

func TestReindexRequiresAdmin(t *testing.T) {
	t.Setenv("MCP_REGISTRY_TOKEN", MintToken(t, "e2e-user", false))

	result := RunCLI(t, "reindex")
	RequireFailure(t, result)
	RequireOutputContains(t, result, "403")
}
