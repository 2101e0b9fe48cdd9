// Package utils holds small helpers shared by the registry and its tools.
package utils

import (
	"fmt"
	"net/url"
	"strings"
)

const defaultBranch = "main"

// GitHubRepoInfo identifies a GitHub repository and, for links into it, the
// branch and file path they point at.
type GitHubRepoInfo struct {
	Owner  string
	Repo   string
	Branch string
	Path   string
}

// ParseGitHubURL accepts https and ssh repository URLs as well as
// /blob/<branch>/<path> and /tree/<branch> links.
func ParseGitHubURL(rawURL string) (*GitHubRepoInfo, error) {
	if strings.HasPrefix(rawURL, "git@github.com:") {
		path := strings.TrimPrefix(rawURL, "git@github.com:")
		path = strings.TrimSuffix(path, ".git")
		parts := strings.Split(path, "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid GitHub SSH URL: %s", rawURL)
		}
		return &GitHubRepoInfo{Owner: parts[0], Repo: parts[1], Branch: defaultBranch}, nil
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if !strings.EqualFold(parsed.Host, "github.com") && !strings.EqualFold(parsed.Host, "www.github.com") {
		return nil, fmt.Errorf("not a GitHub URL: %s", rawURL)
	}

	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("invalid GitHub URL path: %s", rawURL)
	}

	info := &GitHubRepoInfo{
		Owner:  parts[0],
		Repo:   strings.TrimSuffix(parts[1], ".git"),
		Branch: defaultBranch,
	}
	if len(parts) >= 4 && (parts[2] == "blob" || parts[2] == "tree") {
		info.Branch = parts[3]
		info.Path = strings.Join(parts[4:], "/")
	}
	return info, nil
}

// GetGitHubRepoURL returns the canonical https URL of the repository.
func (info *GitHubRepoInfo) GetGitHubRepoURL() string {
	return fmt.Sprintf("https://github.com/%s/%s", info.Owner, info.Repo)
}

// FullName is the owner/repo pair GitHub uses as a stable identifier.
func (info *GitHubRepoInfo) FullName() string {
	return info.Owner + "/" + info.Repo
}

// RawFileURL returns the raw.githubusercontent.com address of filePath on
// the info's branch.
func (info *GitHubRepoInfo) RawFileURL(filePath string) string {
	return fmt.Sprintf(
		"https://raw.githubusercontent.com/%s/%s/%s/%s",
		info.Owner, info.Repo, info.Branch, strings.TrimPrefix(filePath, "/"),
	)
}

// GitHubRawURL rewrites a github.com /blob/ link to the raw file it shows.
// Other URLs are returned unchanged with false.
func GitHubRawURL(rawURL string) (string, bool) {
	info, err := ParseGitHubURL(rawURL)
	if err != nil || info.Path == "" || !strings.Contains(rawURL, "/blob/") {
		return rawURL, false
	}
	return info.RawFileURL(info.Path), true
}
