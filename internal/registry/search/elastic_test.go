package search_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentregistry-dev/mcpindex/internal/registry/models"
	"github.com/agentregistry-dev/mcpindex/internal/registry/search"
)

// fakeElastic serves canned responses and records the last request.
type fakeElastic struct {
	handler  func(w http.ResponseWriter, r *http.Request, body []byte)
	lastPath string
	lastBody []byte
	lastQry  string
	calls    atomic.Int32
}

func (f *fakeElastic) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.calls.Add(1)
	body, _ := io.ReadAll(r.Body)
	f.lastPath = r.Method + " " + r.URL.Path
	f.lastQry = r.URL.RawQuery
	f.lastBody = body
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	f.handler(w, r, body)
}

func newTestElastic(t *testing.T, handler func(w http.ResponseWriter, r *http.Request, body []byte)) (*search.Elastic, *fakeElastic) {
	t.Helper()
	fake := &fakeElastic{handler: handler}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	es, err := search.NewElastic(search.ElasticConfig{Addresses: []string{srv.URL}, Index: "servers", MaxRetries: 2})
	require.NoError(t, err)
	return es, fake
}

func TestElastic_UpsertUsesRefresh(t *testing.T) {
	es, fake := newTestElastic(t, func(w http.ResponseWriter, _ *http.Request, _ []byte) {
		_, _ = io.WriteString(w, `{"result":"created"}`)
	})

	require.NoError(t, es.Upsert(context.Background(), search.Document{ID: "abc", Name: "fs"}))
	assert.Equal(t, "PUT /servers/_doc/abc", fake.lastPath)
	assert.Contains(t, fake.lastQry, "refresh=true")

	var doc map[string]any
	require.NoError(t, json.Unmarshal(fake.lastBody, &doc))
	assert.Equal(t, "fs", doc["name"])
	assert.Contains(t, doc, "claimed_by", "optional fields are never omitted")
}

func TestElastic_UpsertIsVersionedByRevision(t *testing.T) {
	es, fake := newTestElastic(t, func(w http.ResponseWriter, _ *http.Request, _ []byte) {
		w.WriteHeader(http.StatusConflict)
		_, _ = io.WriteString(w, `{"error":{"type":"version_conflict_engine_exception"},"status":409}`)
	})

	err := es.Upsert(context.Background(), search.Document{ID: "abc", Revision: 3})
	assert.NoError(t, err, "a newer document already indexed is not a failure")
	assert.Contains(t, fake.lastQry, "version=3")
	assert.Contains(t, fake.lastQry, "version_type=external_gte")

	var doc map[string]any
	require.NoError(t, json.Unmarshal(fake.lastBody, &doc))
	assert.EqualValues(t, 3, doc["revision"])
}

func TestElastic_IDsUsesSearchAfter(t *testing.T) {
	es, fake := newTestElastic(t, func(w http.ResponseWriter, _ *http.Request, _ []byte) {
		_, _ = io.WriteString(w, `{"hits":{"total":{"value":2},"hits":[{"_id":"c"},{"_id":"d"}]}}`)
	})

	got, err := es.IDs(context.Background(), "b", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d"}, got)

	var body map[string]any
	require.NoError(t, json.Unmarshal(fake.lastBody, &body))
	assert.Equal(t, []any{"b"}, body["search_after"])
	assert.EqualValues(t, 2, body["size"])
}

func TestElastic_DeleteMissingIsSuccess(t *testing.T) {
	es, _ := newTestElastic(t, func(w http.ResponseWriter, _ *http.Request, _ []byte) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"result":"not_found"}`)
	})
	assert.NoError(t, es.Delete(context.Background(), "missing"))
}

func TestElastic_DeleteServerErrorIsUnavailable(t *testing.T) {
	es, _ := newTestElastic(t, func(w http.ResponseWriter, _ *http.Request, _ []byte) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"bad"}`)
	})
	assert.ErrorIs(t, es.Delete(context.Background(), "abc"), search.ErrUnavailable)
}

func TestElastic_RetriesTransientStatus(t *testing.T) {
	var attempts atomic.Int32
	es, _ := newTestElastic(t, func(w http.ResponseWriter, _ *http.Request, _ []byte) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"result":"updated"}`)
	})

	require.NoError(t, es.Upsert(context.Background(), search.Document{ID: "abc"}))
	assert.Equal(t, int32(2), attempts.Load())
}

func TestElastic_SearchParsesHitsAndAggregations(t *testing.T) {
	es, fake := newTestElastic(t, func(w http.ResponseWriter, _ *http.Request, _ []byte) {
		_, _ = io.WriteString(w, `{
			"hits": {
				"total": {"value": 42, "relation": "eq"},
				"hits": [{"_id": "b", "_score": 3.5}, {"_id": "a", "_score": null}]
			},
			"aggregations": {
				"categories": {"buckets": [{"key": "storage", "doc_count": 30}, {"key": "", "doc_count": 12}]},
				"sources": {"buckets": [{"key": "community", "doc_count": 42}]},
				"tags": {"buckets": []}
			}
		}`)
	})

	plan, err := search.Plan(models.SearchRequest{Query: "fs", Limit: 2})
	require.NoError(t, err)
	res, err := es.Search(context.Background(), plan)
	require.NoError(t, err)

	assert.Equal(t, "POST /servers/_search", fake.lastPath)
	assert.Equal(t, int64(42), res.Total)
	assert.Equal(t, []search.Hit{{ID: "b", Score: 3.5}, {ID: "a"}}, res.Hits)
	assert.Equal(t, []models.Bucket{{Key: "storage", Count: 30}}, res.Aggregations.Categories)
	assert.Equal(t, []models.Bucket{{Key: "community", Count: 42}}, res.Aggregations.Sources)
	assert.Empty(t, res.Aggregations.Tags)
}

func TestElastic_Suggest(t *testing.T) {
	es, _ := newTestElastic(t, func(w http.ResponseWriter, _ *http.Request, _ []byte) {
		_, _ = io.WriteString(w, `{"hits": {"total": {"value": 3}, "hits": [
			{"_id": "1", "_source": {"name": "filesystem"}},
			{"_id": "2", "_source": {"name": "filesystem"}},
			{"_id": "3", "_source": {"name": "files-pro"}}
		]}}`)
	})

	names, err := es.Suggest(context.Background(), "fi", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"filesystem", "files-pro"}, names)
}

func TestElastic_EnsureIndexCreatesMissingIndex(t *testing.T) {
	var created atomic.Bool
	es, _ := newTestElastic(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		switch r.Method {
		case http.MethodHead:
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPut:
			created.Store(true)
			assert.Contains(t, string(body), `"strict"`)
			_, _ = io.WriteString(w, `{"acknowledged":true}`)
		}
	})
	require.NoError(t, es.EnsureIndex(context.Background()))
	assert.True(t, created.Load())
}
