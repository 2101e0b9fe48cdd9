// Package validators checks mutation payloads before any store access.
package validators

import (
	_ "embed"
	"fmt"
	"net/url"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/agentregistry-dev/mcpindex/internal/registry/errs"
	"github.com/agentregistry-dev/mcpindex/internal/registry/models"
	"github.com/agentregistry-dev/mcpindex/internal/version"
)

//go:embed schemas/publish.schema.json
var publishSchemaJSON []byte

var publishSchema = mustSchema(publishSchemaJSON)

func mustSchema(raw []byte) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid embedded schema: %v", err))
	}
	return s
}

// ValidatePublishRequest checks a publish payload against the schema and the
// semantic rules the schema cannot express.
func ValidatePublishRequest(req *models.PublishRequest) error {
	if req == nil {
		return errs.Validation("request body is required")
	}

	result, err := publishSchema.Validate(gojsonschema.NewGoLoader(req))
	if err != nil {
		return errs.Validation("invalid request: %v", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, fmt.Sprintf("%s: %s", e.Field(), e.Description()))
		}
		return errs.Validation("invalid request: %s", strings.Join(msgs, "; "))
	}

	if req.Source != "" && !req.Source.Valid() {
		return errs.Validation("unknown source %q", req.Source)
	}
	if req.Repository != nil {
		if err := ValidateRepositoryURL(req.Repository.URL); err != nil {
			return err
		}
	}
	if req.URL != "" {
		if err := ValidateEndpointURL(req.URL); err != nil {
			return err
		}
	}

	seen := make([]string, 0, len(req.Versions))
	for _, v := range req.Versions {
		if err := ValidateVersion(v.Version); err != nil {
			return err
		}
		for _, prev := range seen {
			if version.Compare(prev, v.Version) == 0 {
				return errs.Validation("duplicate version %q", v.Version)
			}
		}
		seen = append(seen, v.Version)
	}
	return nil
}

// ValidateUpdate checks a partial update.
func ValidateUpdate(in *models.UpdateServerInput) error {
	if in == nil || in.IsEmpty() {
		return errs.Validation("at least one field must be updated")
	}
	if in.Repository != nil {
		if err := ValidateRepositoryURL(in.Repository.URL); err != nil {
			return err
		}
	}
	if in.URL != nil && *in.URL != "" {
		if err := ValidateEndpointURL(*in.URL); err != nil {
			return err
		}
	}
	if in.Description != nil && len(*in.Description) > 5000 {
		return errs.Validation("description exceeds 5000 characters")
	}
	if len(in.Tags) > 50 {
		return errs.Validation("at most 50 tags are allowed")
	}
	for _, tag := range in.Tags {
		if strings.TrimSpace(tag) == "" {
			return errs.Validation("tags must not be empty")
		}
	}
	return nil
}

// ValidateVersion requires a full semantic version.
func ValidateVersion(v string) error {
	if !version.IsSemver(v) {
		return errs.Validation("version %q is not a valid semantic version", v)
	}
	return nil
}

// ValidateRating requires an integer rating in 1..5.
func ValidateRating(rating int) error {
	if rating < 1 || rating > 5 {
		return errs.Validation("rating must be between 1 and 5")
	}
	return nil
}

// ValidateMetrics rejects negative counters.
func ValidateMetrics(in *models.MetricsInput) error {
	if in == nil || in.IsEmpty() {
		return errs.Validation("at least one metric must be set")
	}
	for name, v := range map[string]*int64{
		"github_stars":   in.GitHubStars,
		"download_count": in.DownloadCount,
		"install_count":  in.InstallCount,
	} {
		if v != nil && *v < 0 {
			return errs.Validation("%s must not be negative", name)
		}
	}
	return nil
}

// ValidateRepositoryURL requires an absolute http(s) URL.
func ValidateRepositoryURL(raw string) error {
	if raw == "" {
		return errs.Validation("repository url is required")
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return errs.Validation("repository url %q must be an absolute http(s) url", raw)
	}
	return nil
}

// ValidateEndpointURL requires an absolute URL with a host.
func ValidateEndpointURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errs.Validation("url %q must be absolute", raw)
	}
	return nil
}
