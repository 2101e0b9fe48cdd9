package models

import "slices"

// SortKey orders search results.
type SortKey string

const (
	SortRelevance SortKey = "relevance"
	SortStars     SortKey = "stars"
	SortDownloads SortKey = "downloads"
	SortRating    SortKey = "rating"
	SortUpdated   SortKey = "updated"
)

var SortKeys = []SortKey{SortRelevance, SortStars, SortDownloads, SortRating, SortUpdated}

func (s SortKey) Valid() bool {
	return slices.Contains(SortKeys, s)
}

// Request bounds.
const (
	MaxQueryLength      = 200
	DefaultSearchLimit  = 20
	MaxSearchLimit      = 100
	MinSuggestLength    = 2
	DefaultSuggestLimit = 10
)

// SearchRequest is a validated search query.
type SearchRequest struct {
	Query    string
	Category string
	Verified *bool
	Source   Source
	Tags     []string
	Offset   int
	Limit    int
	Sort     SortKey
}

// HasFilters reports whether any filter constrains the query.
func (r SearchRequest) HasFilters() bool {
	return r.Category != "" || r.Verified != nil || r.Source != "" || len(r.Tags) > 0
}

// ResultMetadata is the metadata subset exposed in search results.
type ResultMetadata struct {
	Verified      bool     `json:"verified"`
	TrustScore    float64  `json:"trust_score"`
	GitHubStars   int64    `json:"github_stars"`
	DownloadCount int64    `json:"download_count"`
	Rating        float64  `json:"rating"`
	RatingCount   int64    `json:"rating_count"`
	Category      string   `json:"category"`
	Tags          []string `json:"tags"`
}

// SearchResult is a hydrated search hit. Display fields come from the record.
type SearchResult struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	Source        Source         `json:"source"`
	ExternalID    string         `json:"external_id"`
	Repository    *Repository    `json:"repository,omitempty"`
	Metadata      ResultMetadata `json:"metadata"`
	LatestVersion string         `json:"latest_version"`
	Command       string         `json:"command,omitempty"`
	URL           string         `json:"url,omitempty"`
}

// NewSearchResult builds a result from an authoritative record.
func NewSearchResult(r *ServerRecord) SearchResult {
	res := SearchResult{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Source:      r.Source,
		ExternalID:  r.ExternalID,
		Repository:  r.Repository,
		Command:     r.Command,
		URL:         r.URL,
		Metadata: ResultMetadata{
			Verified:      r.Metadata.Verified,
			TrustScore:    r.Metadata.TrustScore,
			GitHubStars:   r.Metadata.GitHubStars,
			DownloadCount: r.Metadata.DownloadCount,
			Rating:        r.Metadata.Rating,
			RatingCount:   r.Metadata.RatingCount,
			Category:      r.Metadata.Category,
			Tags:          r.Metadata.Tags,
		},
	}
	if res.Metadata.Tags == nil {
		res.Metadata.Tags = []string{}
	}
	if latest := r.LatestVersion(); latest != nil {
		res.LatestVersion = latest.Version
	}
	return res
}

// Bucket is one facet value and its document count.
type Bucket struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// Aggregations are the facet counts computed over the full match set.
type Aggregations struct {
	Categories []Bucket `json:"categories"`
	Sources    []Bucket `json:"sources"`
	Tags       []Bucket `json:"tags"`
}

// SearchResponse is the paged response for a search.
type SearchResponse struct {
	Results      []SearchResult `json:"results"`
	Total        int64          `json:"total"`
	Offset       int            `json:"offset"`
	Limit        int            `json:"limit"`
	TookMs       int64          `json:"took_ms"`
	Aggregations Aggregations   `json:"aggregations"`
	Degraded     bool           `json:"degraded"`
}

// SuggestResponse lists name completions.
type SuggestResponse struct {
	Suggestions []string `json:"suggestions"`
}

// CategoriesResponse lists categories with server counts.
type CategoriesResponse struct {
	Categories []Bucket `json:"categories"`
}

// StatsResponse summarizes the registry contents.
type StatsResponse struct {
	TotalServers    int64    `json:"total_servers"`
	VerifiedServers int64    `json:"verified_servers"`
	Sources         []Bucket `json:"sources"`
	Categories      []Bucket `json:"categories"`
	TopTags         []Bucket `json:"top_tags"`
}

// PopularResponse lists the most popular servers.
type PopularResponse struct {
	Servers []SearchResult `json:"servers"`
}
