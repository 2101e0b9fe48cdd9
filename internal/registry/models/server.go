package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"
)

// Source identifies the channel a server descriptor was discovered through.
type Source string

const (
	SourceFirstParty      Source = "first-party"
	SourceMarketplace     Source = "marketplace"
	SourcePackageRegistry Source = "package-registry"
	SourceVCSHosted       Source = "vcs-hosted"
	SourceCommunity       Source = "community"
)

// Sources lists every valid Source in descending trust order.
var Sources = []Source{
	SourceFirstParty,
	SourceMarketplace,
	SourcePackageRegistry,
	SourceVCSHosted,
	SourceCommunity,
}

// Valid reports whether s is one of the known sources.
func (s Source) Valid() bool {
	return slices.Contains(Sources, s)
}

// Repository describes where the server's source code lives.
type Repository struct {
	URL           string `json:"url"`
	Source        string `json:"source,omitempty" doc:"VCS kind, e.g. github"`
	ID            string `json:"id,omitempty" doc:"Stable repository identifier at the VCS host"`
	DefaultBranch string `json:"default_branch,omitempty"`
}

// Namespace is one capability namespace. A namespace is either absent or
// present with an opaque structured payload.
type Namespace struct {
	Present bool
	Payload json.RawMessage
}

// NonEmpty reports whether the namespace is present and carries something
// other than an empty object, empty array, null or false.
func (n Namespace) NonEmpty() bool {
	if !n.Present {
		return false
	}
	p := bytes.TrimSpace(n.Payload)
	switch string(p) {
	case "", "null", "false", "{}", "[]":
		return false
	}
	return true
}

// Capabilities holds the four independent capability namespaces.
type Capabilities struct {
	Tools     Namespace
	Resources Namespace
	Prompts   Namespace
	Logging   Namespace
}

var capabilityNames = []string{"tools", "resources", "prompts", "logging"}

func (c *Capabilities) namespaces() []*Namespace {
	return []*Namespace{&c.Tools, &c.Resources, &c.Prompts, &c.Logging}
}

// Present returns the names of namespaces that carry a non-empty payload.
func (c Capabilities) Present() []string {
	var out []string
	for i, ns := range c.namespaces() {
		if ns.NonEmpty() {
			out = append(out, capabilityNames[i])
		}
	}
	return out
}

func (c Capabilities) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(capabilityNames))
	for i, ns := range c.namespaces() {
		if !ns.Present {
			continue
		}
		payload := ns.Payload
		if len(bytes.TrimSpace(payload)) == 0 {
			payload = json.RawMessage("{}")
		}
		out[capabilityNames[i]] = payload
	}
	return json.Marshal(out)
}

func (c *Capabilities) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = Capabilities{}
	for key, payload := range raw {
		idx := slices.Index(capabilityNames, key)
		if idx < 0 {
			return fmt.Errorf("unknown capability namespace %q", key)
		}
		if string(bytes.TrimSpace(payload)) == "null" {
			continue
		}
		*c.namespaces()[idx] = Namespace{Present: true, Payload: slices.Clone(payload)}
	}
	return nil
}

// EnvVar documents an environment variable consumed by the server.
type EnvVar struct {
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
	Default     string `json:"default,omitempty"`
}

// Package is a distributable artifact of a version.
type Package struct {
	RegistryType string `json:"registry_type" doc:"Package registry, e.g. npm, pypi, oci"`
	Identifier   string `json:"identifier"`
	Version      string `json:"version,omitempty"`
	Transport    string `json:"transport,omitempty" enum:"stdio,sse,streamable-http"`
}

// Version is one released version of a server.
type Version struct {
	Version     string    `json:"version"`
	ReleaseDate time.Time `json:"release_date"`
	IsLatest    bool      `json:"is_latest"`
	Changelog   string    `json:"changelog,omitempty"`
	Packages    []Package `json:"packages"`
}

// Metadata holds trust and popularity signals.
type Metadata struct {
	TrustScore    float64    `json:"trust_score"`
	Verified      bool       `json:"verified"`
	GitHubStars   int64      `json:"github_stars"`
	DownloadCount int64      `json:"download_count"`
	InstallCount  int64      `json:"install_count"`
	Rating        float64    `json:"rating"`
	RatingCount   int64      `json:"rating_count"`
	Tags          []string   `json:"tags"`
	Category      string     `json:"category"`
	LastUpdated   *time.Time `json:"last_updated,omitempty"`
}

// Score is the ranking breakdown committed with every mutation.
type Score struct {
	Quality     float64 `json:"quality"`
	Popularity  float64 `json:"popularity"`
	Maintenance float64 `json:"maintenance"`
	Trust       float64 `json:"trust"`
	Composite   float64 `json:"composite"`
}

// ServerRecord is the authoritative server descriptor.
type ServerRecord struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Source       Source            `json:"source"`
	ExternalID   string            `json:"external_id"`
	Description  string            `json:"description"`
	Repository   *Repository       `json:"repository,omitempty"`
	Capabilities Capabilities      `json:"capabilities"`
	Command      string            `json:"command,omitempty"`
	Args         []string          `json:"args,omitempty"`
	Env          map[string]EnvVar `json:"env,omitempty"`
	URL          string            `json:"url,omitempty"`
	Versions     []Version         `json:"versions"`
	Metadata     Metadata          `json:"metadata"`
	PublisherID  string            `json:"publisher_id,omitempty"`
	ClaimedBy    string            `json:"claimed_by,omitempty"`
	ClaimedAt    *time.Time        `json:"claimed_at,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	Revision     int64             `json:"revision"`
	Score        Score             `json:"score"`
}

// LatestVersion returns the version flagged latest, or nil when none is.
func (r *ServerRecord) LatestVersion() *Version {
	for i := range r.Versions {
		if r.Versions[i].IsLatest {
			return &r.Versions[i]
		}
	}
	return nil
}

// IsClaimed reports whether an external user owns the record.
func (r *ServerRecord) IsClaimed() bool {
	return r.ClaimedBy != ""
}

// Clone returns a deep copy of r.
func (r *ServerRecord) Clone() *ServerRecord {
	if r == nil {
		return nil
	}
	out := *r
	if r.Repository != nil {
		repo := *r.Repository
		out.Repository = &repo
	}
	for _, ns := range out.Capabilities.namespaces() {
		ns.Payload = slices.Clone(ns.Payload)
	}
	out.Args = slices.Clone(r.Args)
	out.Env = maps.Clone(r.Env)
	out.Versions = make([]Version, len(r.Versions))
	for i, v := range r.Versions {
		v.Packages = slices.Clone(v.Packages)
		out.Versions[i] = v
	}
	out.Metadata.Tags = slices.Clone(r.Metadata.Tags)
	if r.Metadata.LastUpdated != nil {
		t := *r.Metadata.LastUpdated
		out.Metadata.LastUpdated = &t
	}
	if r.ClaimedAt != nil {
		t := *r.ClaimedAt
		out.ClaimedAt = &t
	}
	return &out
}

// ServerResponse is the API representation of a record.
type ServerResponse struct {
	ServerRecord
	IsClaimed bool `json:"is_claimed"`
}

// NewServerResponse wraps a record for display.
func NewServerResponse(r *ServerRecord) *ServerResponse {
	return &ServerResponse{ServerRecord: *r, IsClaimed: r.IsClaimed()}
}

// Publisher is a formal publishing organization.
type Publisher struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Verified  bool      `json:"verified"`
	CreatedAt time.Time `json:"created_at"`
}
