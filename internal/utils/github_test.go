package utils_test

import (
	"testing"

	"github.com/agentregistry-dev/mcpindex/internal/utils"
)

func TestParseGitHubURL(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantOwner  string
		wantRepo   string
		wantBranch string
		wantPath   string
		wantErr    bool
	}{
		{"https basic", "https://github.com/owner/repo", "owner", "repo", "main", "", false},
		{"https with .git", "https://github.com/owner/repo.git", "owner", "repo", "main", "", false},
		{"https trailing slash", "https://github.com/owner/repo/", "owner", "repo", "main", "", false},
		{"ssh basic", "git@github.com:owner/repo", "owner", "repo", "main", "", false},
		{"ssh with .git", "git@github.com:owner/repo.git", "owner", "repo", "main", "", false},
		{"complex owner", "https://github.com/my-org/my-repo", "my-org", "my-repo", "main", "", false},
		{"tree link", "https://github.com/owner/repo/tree/develop", "owner", "repo", "develop", "", false},
		{"blob link", "https://github.com/owner/repo/blob/v1/seeds/servers.json", "owner", "repo", "v1", "seeds/servers.json", false},
		{"invalid not github", "https://gitlab.com/owner/repo", "", "", "", "", true},
		{"invalid no repo", "https://github.com/owner", "", "", "", "", true},
		{"invalid empty", "", "", "", "", "", true},
		{"invalid malformed", "not-a-url", "", "", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := utils.ParseGitHubURL(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseGitHubURL(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if err != nil {
				return
			}
			if got.Owner != tt.wantOwner {
				t.Errorf("ParseGitHubURL(%q).Owner = %q, want %q", tt.input, got.Owner, tt.wantOwner)
			}
			if got.Repo != tt.wantRepo {
				t.Errorf("ParseGitHubURL(%q).Repo = %q, want %q", tt.input, got.Repo, tt.wantRepo)
			}
			if got.Branch != tt.wantBranch {
				t.Errorf("ParseGitHubURL(%q).Branch = %q, want %q", tt.input, got.Branch, tt.wantBranch)
			}
			if got.Path != tt.wantPath {
				t.Errorf("ParseGitHubURL(%q).Path = %q, want %q", tt.input, got.Path, tt.wantPath)
			}
		})
	}
}

func TestGitHubRepoInfo_GetGitHubRepoURL(t *testing.T) {
	tests := []struct {
		name   string
		info   *utils.GitHubRepoInfo
		wanted string
	}{
		{"basic", &utils.GitHubRepoInfo{Owner: "owner", Repo: "repo", Branch: "main"}, "https://github.com/owner/repo"},
		{"with org", &utils.GitHubRepoInfo{Owner: "my-org", Repo: "my-repo", Branch: "develop"}, "https://github.com/my-org/my-repo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.info.GetGitHubRepoURL()
			if got != tt.wanted {
				t.Errorf("GetGitHubRepoURL() = %q, want %q", got, tt.wanted)
			}
		})
	}
}

func TestGitHubRawURL(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		rewrote bool
	}{
		{
			"https://github.com/acme/seeds/blob/main/servers.json",
			"https://raw.githubusercontent.com/acme/seeds/main/servers.json",
			true,
		},
		{"https://github.com/acme/seeds", "https://github.com/acme/seeds", false},
		{"https://github.com/acme/seeds/tree/main/data", "https://github.com/acme/seeds/tree/main/data", false},
		{"https://example.com/servers.json", "https://example.com/servers.json", false},
	}

	for _, tt := range tests {
		got, ok := utils.GitHubRawURL(tt.input)
		if got != tt.want || ok != tt.rewrote {
			t.Errorf("GitHubRawURL(%q) = %q, %v; want %q, %v", tt.input, got, ok, tt.want, tt.rewrote)
		}
	}
}
