package models

import "time"

// VersionInput is a version supplied by a publisher. IsLatest is derived by
// the registry and cannot be set by callers.
type VersionInput struct {
	Version     string     `json:"version" doc:"Semantic version" example:"1.0.0"`
	ReleaseDate *time.Time `json:"release_date,omitempty" doc:"Defaults to the publish time"`
	Changelog   string     `json:"changelog,omitempty"`
	Packages    []Package  `json:"packages,omitempty"`
}

// PublishRequest registers a new server.
type PublishRequest struct {
	Name         string            `json:"name"`
	Source       Source            `json:"source,omitempty"`
	ExternalID   string            `json:"external_id,omitempty"`
	Description  string            `json:"description,omitempty"`
	Repository   *Repository       `json:"repository,omitempty"`
	Capabilities Capabilities      `json:"capabilities,omitempty"`
	Command      string            `json:"command,omitempty"`
	Args         []string          `json:"args,omitempty"`
	Env          map[string]EnvVar `json:"env,omitempty"`
	URL          string            `json:"url,omitempty"`
	Versions     []VersionInput    `json:"versions"`
	Tags         []string          `json:"tags,omitempty"`
	Category     string            `json:"category,omitempty"`
	PublisherID  string            `json:"publisher_id,omitempty"`
}

// UpdateServerInput is a partial update. Nil fields are left untouched.
type UpdateServerInput struct {
	Description      *string           `json:"description,omitempty"`
	Repository       *Repository       `json:"repository,omitempty"`
	Capabilities     *Capabilities     `json:"capabilities,omitempty"`
	Command          *string           `json:"command,omitempty"`
	Args             []string          `json:"args,omitempty"`
	Env              map[string]EnvVar `json:"env,omitempty"`
	URL              *string           `json:"url,omitempty"`
	Tags             []string          `json:"tags,omitempty"`
	Category         *string           `json:"category,omitempty"`
	ExpectedRevision *int64            `json:"expected_revision,omitempty" doc:"Reject the update unless the record is at this revision"`
}

// IsEmpty reports whether no updatable field is set.
func (u UpdateServerInput) IsEmpty() bool {
	return u.Description == nil &&
		u.Repository == nil &&
		u.Capabilities == nil &&
		u.Command == nil &&
		u.Args == nil &&
		u.Env == nil &&
		u.URL == nil &&
		u.Tags == nil &&
		u.Category == nil
}

// MetricsInput carries externally scanned popularity signals.
type MetricsInput struct {
	GitHubStars   *int64     `json:"github_stars,omitempty" minimum:"0"`
	DownloadCount *int64     `json:"download_count,omitempty" minimum:"0"`
	InstallCount  *int64     `json:"install_count,omitempty" minimum:"0"`
	Verified      *bool      `json:"verified,omitempty"`
	LastUpdated   *time.Time `json:"last_updated,omitempty"`
}

// IsEmpty reports whether no metric is set.
func (m MetricsInput) IsEmpty() bool {
	return m.GitHubStars == nil && m.DownloadCount == nil && m.InstallCount == nil &&
		m.Verified == nil && m.LastUpdated == nil
}

// PublisherInput creates a publisher.
type PublisherInput struct {
	Name     string `json:"name" minLength:"1" maxLength:"200"`
	Verified bool   `json:"verified,omitempty"`
}

// PublishRequest rebuilds the publish payload a record was created from,
// with every stored version.
func (r *ServerRecord) PublishRequest() *PublishRequest {
	out := &PublishRequest{
		Name:         r.Name,
		Source:       r.Source,
		ExternalID:   r.ExternalID,
		Description:  r.Description,
		Capabilities: r.Capabilities,
		Command:      r.Command,
		Args:         r.Args,
		Env:          r.Env,
		URL:          r.URL,
		Tags:         r.Metadata.Tags,
		Category:     r.Metadata.Category,
		PublisherID:  r.PublisherID,
		Versions:     make([]VersionInput, 0, len(r.Versions)),
	}
	if r.Repository != nil {
		repo := *r.Repository
		out.Repository = &repo
	}
	for _, v := range r.Versions {
		released := v.ReleaseDate
		out.Versions = append(out.Versions, VersionInput{
			Version:     v.Version,
			ReleaseDate: &released,
			Changelog:   v.Changelog,
			Packages:    v.Packages,
		})
	}
	return out
}
