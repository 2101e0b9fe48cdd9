package validators_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agentregistry-dev/mcpindex/internal/registry/errs"
	"github.com/agentregistry-dev/mcpindex/internal/registry/models"
	"github.com/agentregistry-dev/mcpindex/internal/registry/validators"
)

func validRequest() *models.PublishRequest {
	return &models.PublishRequest{
		Name:        "filesystem",
		Description: "Read and write local files",
		Repository:  &models.Repository{URL: "https://github.com/acme/filesystem", Source: "github"},
		Capabilities: models.Capabilities{
			Tools: models.Namespace{Present: true, Payload: json.RawMessage(`{"read_file":{}}`)},
		},
		Versions: []models.VersionInput{{Version: "1.0.0"}},
		Tags:     []string{"files"},
	}
}

func TestValidatePublishRequest(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *models.PublishRequest)
		wantErr string
	}{
		{name: "valid", mutate: func(*models.PublishRequest) {}},
		{name: "missing name", mutate: func(r *models.PublishRequest) { r.Name = "" }, wantErr: "name"},
		{name: "name with two slashes", mutate: func(r *models.PublishRequest) { r.Name = "io.acme/tool/x" }, wantErr: "name"},
		{name: "name with namespace", mutate: func(r *models.PublishRequest) { r.Name = "io.acme/tool" }},
		{name: "no versions", mutate: func(r *models.PublishRequest) { r.Versions = nil }, wantErr: "versions"},
		{name: "bad semver", mutate: func(r *models.PublishRequest) { r.Versions[0].Version = "latest" }, wantErr: "semantic version"},
		{name: "short semver", mutate: func(r *models.PublishRequest) { r.Versions[0].Version = "1.2" }, wantErr: "semantic version"},
		{
			name: "duplicate versions",
			mutate: func(r *models.PublishRequest) {
				r.Versions = []models.VersionInput{{Version: "1.0.0"}, {Version: "v1.0.0"}}
			},
			wantErr: "duplicate",
		},
		{name: "unknown source", mutate: func(r *models.PublishRequest) { r.Source = "ftp" }, wantErr: "source"},
		{name: "relative repo url", mutate: func(r *models.PublishRequest) { r.Repository.URL = "acme/fs" }, wantErr: "repository url"},
		{name: "too many tags", mutate: func(r *models.PublishRequest) { r.Tags = make([]string, 51) }, wantErr: "tags"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(req)
			err := validators.ValidatePublishRequest(req)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.Error(t, err)
			assert.True(t, errs.Is(err, errs.CategoryValidation))
			assert.Contains(t, strings.ToLower(err.Error()), tt.wantErr)
		})
	}
}

func TestValidateUpdate(t *testing.T) {
	assert.Error(t, validators.ValidateUpdate(&models.UpdateServerInput{}))

	rev := int64(3)
	assert.Error(t, validators.ValidateUpdate(&models.UpdateServerInput{ExpectedRevision: &rev}),
		"expected_revision alone is not an update")

	desc := "new"
	assert.NoError(t, validators.ValidateUpdate(&models.UpdateServerInput{Description: &desc}))
	assert.Error(t, validators.ValidateUpdate(&models.UpdateServerInput{Tags: []string{" "}}))
}

func TestValidateRatingAndMetrics(t *testing.T) {
	assert.Error(t, validators.ValidateRating(0))
	assert.Error(t, validators.ValidateRating(6))
	assert.NoError(t, validators.ValidateRating(5))

	neg := int64(-1)
	assert.Error(t, validators.ValidateMetrics(&models.MetricsInput{GitHubStars: &neg}))
	assert.Error(t, validators.ValidateMetrics(&models.MetricsInput{}))
	stars := int64(10)
	assert.NoError(t, validators.ValidateMetrics(&models.MetricsInput{GitHubStars: &stars}))
}
