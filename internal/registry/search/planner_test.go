package search_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentregistry-dev/mcpindex/internal/registry/errs"
	"github.com/agentregistry-dev/mcpindex/internal/registry/models"
	"github.com/agentregistry-dev/mcpindex/internal/registry/search"
)

func TestPlan_EmptyRequestIsMatchAll(t *testing.T) {
	plan, err := search.Plan(models.SearchRequest{Limit: 20})
	require.NoError(t, err)

	assert.True(t, plan.MatchAll())
	assert.True(t, plan.TrackTotalHits)
	assert.Equal(t, 20, plan.Size)
	assert.Equal(t, search.DefaultAggregations, plan.Aggregations)
	assert.Equal(t, search.FieldScore, plan.Sort[0].Field)
	assert.Equal(t, search.FieldTrustScore, plan.Sort[1].Field)
}

func TestPlan_SortKeys(t *testing.T) {
	tests := []struct {
		sort  models.SortKey
		first string
	}{
		{models.SortRelevance, search.FieldScore},
		{"", search.FieldScore},
		{models.SortStars, search.FieldStars},
		{models.SortDownloads, search.FieldDownloads},
		{models.SortRating, search.FieldRating},
		{models.SortUpdated, search.FieldUpdatedAt},
	}
	for _, tt := range tests {
		t.Run(string(tt.sort), func(t *testing.T) {
			plan, err := search.Plan(models.SearchRequest{Sort: tt.sort, Limit: 10})
			require.NoError(t, err)
			assert.Equal(t, tt.first, plan.Sort[0].Field)
			assert.True(t, plan.Sort[0].Desc)
			if tt.first != search.FieldScore {
				assert.Equal(t, search.FieldScore, plan.Sort[1].Field, "ties fall back to relevance")
			}
		})
	}
}

func TestPlan_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  models.SearchRequest
	}{
		{"unknown sort", models.SearchRequest{Sort: "random"}},
		{"query too long", models.SearchRequest{Query: strings.Repeat("q", models.MaxQueryLength+1)}},
		{"negative offset", models.SearchRequest{Offset: -1}},
		{"limit too large", models.SearchRequest{Limit: models.MaxSearchLimit + 1}},
		{"unknown source", models.SearchRequest{Source: "elsewhere"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := search.Plan(tt.req)
			require.Error(t, err)
			assert.True(t, errs.Is(err, errs.CategoryValidation))
		})
	}
}

func TestPlan_LimitZeroIsAggregationOnly(t *testing.T) {
	plan, err := search.Plan(models.SearchRequest{Limit: 0})
	require.NoError(t, err)
	assert.Equal(t, 0, plan.Size)
	assert.NotEmpty(t, plan.Aggregations)
}

func TestPlan_FiltersAndTags(t *testing.T) {
	verified := true
	plan, err := search.Plan(models.SearchRequest{
		Query:    "  files ",
		Category: "storage",
		Verified: &verified,
		Source:   models.SourceMarketplace,
		Tags:     []string{"IO", "io", "Disk"},
		Limit:    5,
		Offset:   10,
	})
	require.NoError(t, err)
	assert.Equal(t, "files", plan.Text)
	assert.True(t, plan.Fuzzy)
	assert.Equal(t, []string{"io", "disk"}, plan.Filters.Tags)
	assert.Equal(t, 10, plan.From)
	assert.False(t, plan.MatchAll())
}

func TestElasticQuery_Rendering(t *testing.T) {
	verified := false
	plan, err := search.Plan(models.SearchRequest{
		Query:    "FileSystem",
		Category: "storage",
		Verified: &verified,
		Tags:     []string{"io", "disk"},
		Sort:     models.SortStars,
		Limit:    0,
	})
	require.NoError(t, err)

	raw, err := json.Marshal(search.ElasticQuery(plan))
	require.NoError(t, err)

	var body struct {
		Size           int  `json:"size"`
		TrackTotalHits bool `json:"track_total_hits"`
		Query          struct {
			Bool struct {
				Must []struct {
					MultiMatch struct {
						Query     string   `json:"query"`
						Fields    []string `json:"fields"`
						Fuzziness string   `json:"fuzziness"`
					} `json:"multi_match"`
				} `json:"must"`
				Should []map[string]map[string]map[string]any `json:"should"`
				Filter []map[string]map[string]any            `json:"filter"`
			} `json:"bool"`
		} `json:"query"`
		Sort []map[string]map[string]string `json:"sort"`
		Aggs map[string]struct {
			Terms struct {
				Field string `json:"field"`
				Size  int    `json:"size"`
			} `json:"terms"`
		} `json:"aggs"`
	}
	require.NoError(t, json.Unmarshal(raw, &body))

	assert.Equal(t, 0, body.Size)
	assert.True(t, body.TrackTotalHits)

	require.Len(t, body.Query.Bool.Must, 1)
	mm := body.Query.Bool.Must[0].MultiMatch
	assert.Equal(t, "FileSystem", mm.Query)
	assert.Equal(t, []string{"name^3", "description^2", "tags^1"}, mm.Fields)
	assert.Equal(t, "AUTO", mm.Fuzziness)

	require.Len(t, body.Query.Bool.Should, 1)
	exact := body.Query.Bool.Should[0]["term"][search.FieldNameSuggest]
	assert.Equal(t, "filesystem", exact["value"])
	assert.EqualValues(t, search.ExactNameBoost, exact["boost"])

	require.Len(t, body.Query.Bool.Filter, 3)
	assert.Equal(t, "storage", body.Query.Bool.Filter[0]["term"][search.FieldCategory])
	assert.Equal(t, false, body.Query.Bool.Filter[1]["term"][search.FieldVerified])
	assert.Equal(t, []any{"io", "disk"}, body.Query.Bool.Filter[2]["terms"][search.FieldTagKeys])

	require.Len(t, body.Sort, 3)
	assert.Equal(t, "desc", body.Sort[0][search.FieldStars]["order"])
	assert.Equal(t, "desc", body.Sort[1][search.FieldScore]["order"])
	assert.Equal(t, "asc", body.Sort[2][search.FieldID]["order"])

	assert.Equal(t, 20, body.Aggs[search.AggCategories].Terms.Size)
	assert.Equal(t, 10, body.Aggs[search.AggSources].Terms.Size)
	assert.Equal(t, search.FieldTagKeys, body.Aggs[search.AggTags].Terms.Field)
	assert.Equal(t, 50, body.Aggs[search.AggTags].Terms.Size)
}

func TestElasticQuery_MatchAll(t *testing.T) {
	plan, err := search.Plan(models.SearchRequest{Limit: 1})
	require.NoError(t, err)
	q := search.ElasticQuery(plan)["query"].(map[string]any)
	assert.Contains(t, q, "match_all")
}
