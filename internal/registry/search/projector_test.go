package search_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/agentregistry-dev/mcpindex/internal/registry/models"
	"github.com/agentregistry-dev/mcpindex/internal/registry/search"
)

func TestProject_NormalizesOptionalFields(t *testing.T) {
	doc := search.Project(&models.ServerRecord{ID: "abc", Name: "Filesystem"})

	assert.Equal(t, "abc", doc.ID)
	assert.Equal(t, "filesystem", doc.NameSuggest)
	assert.NotNil(t, doc.Tags)
	assert.NotNil(t, doc.TagKeys)
	assert.Empty(t, doc.Tags)
	assert.Empty(t, doc.ClaimedBy)
	assert.Zero(t, doc.TrustScore)
}

func TestProject_IsDeterministic(t *testing.T) {
	updated := time.Date(2026, 3, 1, 0, 0, 0, 0, time.FixedZone("x", 3600))
	rec := &models.ServerRecord{
		ID:        "abc",
		Name:      "fs",
		Source:    models.SourceMarketplace,
		ClaimedBy: "user-1",
		UpdatedAt: updated,
		Score:     models.Score{Composite: 0.42},
		Metadata: models.Metadata{
			Tags:          []string{"Files", " files", "IO", "files "},
			Category:      "storage",
			Verified:      true,
			TrustScore:    0.31,
			GitHubStars:   7,
			DownloadCount: 9,
			InstallCount:  100,
			Rating:        4.5,
		},
	}

	first := search.Project(rec)
	second := search.Project(rec)
	assert.Equal(t, first, second)

	assert.Equal(t, []string{"files", "io"}, first.Tags)
	assert.Equal(t, first.Tags, first.TagKeys)
	assert.Equal(t, "marketplace", first.Source)
	assert.Equal(t, "user-1", first.ClaimedBy)
	assert.Equal(t, 0.42, first.RankingScore)
	assert.Equal(t, int64(9), first.Downloads)
	assert.Equal(t, time.UTC, first.UpdatedAt.Location())
	assert.True(t, first.UpdatedAt.Equal(updated))
}

func TestNormalizeTags_FoldsCase(t *testing.T) {
	got := search.NormalizeTags([]string{"STRASSE", "straße", "DB", ""})
	assert.Equal(t, []string{"strasse", "db"}, got)
}
