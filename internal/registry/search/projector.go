// Package search projects server records into search documents, plans
// queries and executes them against an inverted-index backend.
package search

import (
	"slices"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/agentregistry-dev/mcpindex/internal/registry/models"
)

// Document is the denormalized, search-optimized projection of a record.
// Every field is always present, optional record fields become zero values.
type Document struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Tags         []string  `json:"tags"`
	TagKeys      []string  `json:"tag_keys"`
	Category     string    `json:"category"`
	Source       string    `json:"source"`
	ClaimedBy    string    `json:"claimed_by"`
	NameSuggest  string    `json:"name_suggest"`
	Verified     bool      `json:"verified"`
	TrustScore   float64   `json:"trust_score"`
	RankingScore float64   `json:"ranking_score"`
	GitHubStars  int64     `json:"github_stars"`
	Downloads    int64     `json:"download_count"`
	Rating       float64   `json:"rating"`
	UpdatedAt    time.Time `json:"updated_at"`
	Revision     int64     `json:"revision"`
}

// Type is the bleve document type.
func (Document) Type() string {
	return "server"
}

// FoldTag returns the canonical form of a tag used for indexing and filtering.
func FoldTag(tag string) string {
	// a Caser is stateful and must not be shared across goroutines
	return cases.Fold().String(strings.TrimSpace(tag))
}

// NormalizeTags case-folds, trims and de-duplicates tags, keeping first-seen order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		f := FoldTag(t)
		if f == "" {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// Project builds the search document for rec. It is total and deterministic.
func Project(rec *models.ServerRecord) Document {
	tags := NormalizeTags(rec.Metadata.Tags)
	return Document{
		ID:           rec.ID,
		Name:         rec.Name,
		Description:  rec.Description,
		Tags:         tags,
		TagKeys:      slices.Clone(tags),
		Category:     rec.Metadata.Category,
		Source:       string(rec.Source),
		ClaimedBy:    rec.ClaimedBy,
		NameSuggest:  strings.ToLower(rec.Name),
		Verified:     rec.Metadata.Verified,
		TrustScore:   rec.Metadata.TrustScore,
		RankingScore: rec.Score.Composite,
		GitHubStars:  rec.Metadata.GitHubStars,
		Downloads:    rec.Metadata.DownloadCount,
		Rating:       rec.Metadata.Rating,
		UpdatedAt:    rec.UpdatedAt.UTC(),
		Revision:     rec.Revision,
	}
}
