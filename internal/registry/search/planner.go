package search

import (
	"strings"
	"unicode/utf8"

	"github.com/agentregistry-dev/mcpindex/internal/registry/errs"
	"github.com/agentregistry-dev/mcpindex/internal/registry/models"
)

// Document field names shared by every backend.
const (
	FieldID           = "id"
	FieldName         = "name"
	FieldDescription  = "description"
	FieldTags         = "tags"
	FieldTagKeys      = "tag_keys"
	FieldCategory     = "category"
	FieldSource       = "source"
	FieldClaimedBy    = "claimed_by"
	FieldNameSuggest  = "name_suggest"
	FieldVerified     = "verified"
	FieldTrustScore   = "trust_score"
	FieldRankingScore = "ranking_score"
	FieldStars        = "github_stars"
	FieldDownloads    = "download_count"
	FieldRating       = "rating"
	FieldUpdatedAt    = "updated_at"
	FieldRevision     = "revision"

	// FieldScore denotes backend relevance in sort clauses.
	FieldScore = "_score"
)

// Aggregation names.
const (
	AggCategories = "categories"
	AggSources    = "sources"
	AggTags       = "tags"
)

// ExactNameBoost lifts documents whose name equals the query.
const ExactNameBoost = 10

// FieldBoost is one field of the multi-field text match.
type FieldBoost struct {
	Field string
	Boost float64
}

// TextFields are matched for free-text queries.
var TextFields = []FieldBoost{
	{Field: FieldName, Boost: 3},
	{Field: FieldDescription, Boost: 2},
	{Field: FieldTags, Boost: 1},
}

// Filters are exact-match constraints ANDed together. Tags match any-of.
type Filters struct {
	Category string
	Verified *bool
	Source   string
	Tags     []string
}

func (f Filters) empty() bool {
	return f.Category == "" && f.Verified == nil && f.Source == "" && len(f.Tags) == 0
}

// SortClause orders results by one field.
type SortClause struct {
	Field string
	Desc  bool
	Date  bool
}

// Aggregation requests the top Size values of a keyword field.
type Aggregation struct {
	Name  string
	Field string
	Size  int
}

// DefaultAggregations are requested with every search.
var DefaultAggregations = []Aggregation{
	{Name: AggCategories, Field: FieldCategory, Size: 20},
	{Name: AggSources, Field: FieldSource, Size: 10},
	{Name: AggTags, Field: FieldTagKeys, Size: 50},
}

// QueryPlan is a backend-neutral query.
type QueryPlan struct {
	Text           string
	Fuzzy          bool
	Filters        Filters
	Sort           []SortClause
	From           int
	Size           int
	TrackTotalHits bool
	Aggregations   []Aggregation
}

// MatchAll reports whether the plan selects every document.
func (p *QueryPlan) MatchAll() bool {
	return p.Text == "" && p.Filters.empty()
}

var sortFields = map[models.SortKey]SortClause{
	models.SortStars:     {Field: FieldStars, Desc: true},
	models.SortDownloads: {Field: FieldDownloads, Desc: true},
	models.SortRating:    {Field: FieldRating, Desc: true},
	models.SortUpdated:   {Field: FieldUpdatedAt, Desc: true, Date: true},
}

// Plan validates req and turns it into a QueryPlan.
func Plan(req models.SearchRequest) (*QueryPlan, error) {
	text := strings.TrimSpace(req.Query)
	if utf8.RuneCountInString(text) > models.MaxQueryLength {
		return nil, errs.Validation("q must be at most %d characters", models.MaxQueryLength)
	}
	if req.Offset < 0 {
		return nil, errs.Validation("offset must not be negative")
	}
	if req.Limit < 0 || req.Limit > models.MaxSearchLimit {
		return nil, errs.Validation("limit must be between 0 and %d", models.MaxSearchLimit)
	}
	if req.Source != "" && !req.Source.Valid() {
		return nil, errs.Validation("unknown source %q", req.Source)
	}

	sortKey := req.Sort
	if sortKey == "" {
		sortKey = models.SortRelevance
	}
	var sort []SortClause
	switch {
	case sortKey == models.SortRelevance:
		sort = []SortClause{{Field: FieldScore, Desc: true}, {Field: FieldTrustScore, Desc: true}}
	case sortKey.Valid():
		sort = []SortClause{sortFields[sortKey], {Field: FieldScore, Desc: true}}
	default:
		return nil, errs.Validation("unknown sort %q", req.Sort)
	}
	// deterministic order for full ties
	sort = append(sort, SortClause{Field: FieldID})

	return &QueryPlan{
		Text:  text,
		Fuzzy: text != "",
		Filters: Filters{
			Category: req.Category,
			Verified: req.Verified,
			Source:   string(req.Source),
			Tags:     NormalizeTags(req.Tags),
		},
		Sort:           sort,
		From:           req.Offset,
		Size:           req.Limit,
		TrackTotalHits: true,
		Aggregations:   DefaultAggregations,
	}, nil
}
