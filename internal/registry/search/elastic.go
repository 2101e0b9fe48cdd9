package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// ElasticConfig configures the Elasticsearch backend.
type ElasticConfig struct {
	Addresses  []string
	Username   string
	Password   string
	Index      string
	MaxRetries int
	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// Elastic is a Backend on an external Elasticsearch cluster.
type Elastic struct {
	client *elasticsearch.Client
	index  string
}

var _ Backend = (*Elastic)(nil)

// NewElastic creates a client. Transient 429/502/503/504 responses are
// retried with capped exponential backoff.
func NewElastic(cfg ElasticConfig) (*Elastic, error) {
	if cfg.Index == "" {
		cfg.Index = "mcp-servers"
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	retryBackoff := backoff.NewExponentialBackOff()
	retryBackoff.InitialInterval = 100 * time.Millisecond
	retryBackoff.MaxInterval = 2 * time.Second
	// the transport calls RetryBackoff from concurrent requests
	var retryMu sync.Mutex

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:     cfg.Addresses,
		Username:      cfg.Username,
		Password:      cfg.Password,
		Transport:     cfg.Transport,
		RetryOnStatus: []int{http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout},
		MaxRetries:    cfg.MaxRetries,
		RetryBackoff: func(i int) time.Duration {
			retryMu.Lock()
			defer retryMu.Unlock()
			if i == 1 {
				retryBackoff.Reset()
			}
			return retryBackoff.NextBackOff()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return &Elastic{client: client, index: cfg.Index}, nil
}

var elasticMapping = map[string]any{
	"mappings": map[string]any{
		"dynamic": "strict",
		"properties": map[string]any{
			FieldID:           map[string]any{"type": "keyword"},
			FieldName:         map[string]any{"type": "text"},
			FieldDescription:  map[string]any{"type": "text"},
			FieldTags:         map[string]any{"type": "text"},
			FieldTagKeys:      map[string]any{"type": "keyword"},
			FieldCategory:     map[string]any{"type": "keyword"},
			FieldSource:       map[string]any{"type": "keyword"},
			FieldClaimedBy:    map[string]any{"type": "keyword"},
			FieldNameSuggest:  map[string]any{"type": "keyword"},
			FieldVerified:     map[string]any{"type": "boolean"},
			FieldTrustScore:   map[string]any{"type": "double"},
			FieldRankingScore: map[string]any{"type": "double"},
			FieldStars:        map[string]any{"type": "long"},
			FieldDownloads:    map[string]any{"type": "long"},
			FieldRating:       map[string]any{"type": "double"},
			FieldUpdatedAt:    map[string]any{"type": "date"},
			FieldRevision:     map[string]any{"type": "long"},
		},
	},
}

// responseError turns a failed response into an error and drains its body.
func responseError(op string, res *esapi.Response) error {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	return fmt.Errorf("%w: %s: %s: %s", ErrUnavailable, op, res.Status(), strings.TrimSpace(string(body)))
}

func (e *Elastic) EnsureIndex(ctx context.Context) error {
	res, err := e.client.Indices.Exists([]string{e.index}, e.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return unavailable("check index", err)
	}
	if res.StatusCode == http.StatusOK {
		res.Body.Close()
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		defer res.Body.Close()
		return responseError("check index", res)
	}
	res.Body.Close()

	body, err := json.Marshal(elasticMapping)
	if err != nil {
		return fmt.Errorf("failed to marshal index mapping: %w", err)
	}
	res, err = e.client.Indices.Create(e.index,
		e.client.Indices.Create.WithBody(bytes.NewReader(body)),
		e.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return unavailable("create index", err)
	}
	defer res.Body.Close()
	// another instance may have won the race
	if res.IsError() && !strings.Contains(readBody(res), "resource_already_exists_exception") {
		return fmt.Errorf("%w: create index: %s", ErrUnavailable, res.Status())
	}
	return nil
}

func readBody(res *esapi.Response) string {
	b, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	return string(b)
}

func (e *Elastic) Upsert(ctx context.Context, doc Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	// the record revision is the external version, so Elasticsearch itself
	// refuses to replace a newer document
	res, err := e.client.Index(e.index, bytes.NewReader(body),
		e.client.Index.WithDocumentID(doc.ID),
		e.client.Index.WithVersion(int(doc.Revision)),
		e.client.Index.WithVersionType("external_gte"),
		e.client.Index.WithRefresh("true"),
		e.client.Index.WithContext(ctx),
	)
	if err != nil {
		return unavailable("index document", err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusConflict {
		return nil
	}
	if res.IsError() {
		return responseError("index document", res)
	}
	return nil
}

func (e *Elastic) Delete(ctx context.Context, id string) error {
	res, err := e.client.Delete(e.index, id,
		e.client.Delete.WithRefresh("true"),
		e.client.Delete.WithContext(ctx),
	)
	if err != nil {
		return unavailable("delete document", err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil
	}
	if res.IsError() {
		return responseError("delete document", res)
	}
	return nil
}

// ElasticQuery renders a plan as an Elasticsearch search body.
func ElasticQuery(p *QueryPlan) map[string]any {
	body := map[string]any{
		"from":             p.From,
		"size":             p.Size,
		"track_total_hits": p.TrackTotalHits,
		"_source":          false,
	}

	if p.MatchAll() {
		body["query"] = map[string]any{"match_all": map[string]any{}}
	} else {
		boolQuery := map[string]any{}
		if p.Text != "" {
			fields := make([]string, 0, len(TextFields))
			for _, f := range TextFields {
				fields = append(fields, fmt.Sprintf("%s^%g", f.Field, f.Boost))
			}
			multi := map[string]any{"query": p.Text, "fields": fields}
			if p.Fuzzy {
				multi["fuzziness"] = "AUTO"
			}
			boolQuery["must"] = []any{map[string]any{"multi_match": multi}}
			boolQuery["should"] = []any{map[string]any{
				"term": map[string]any{FieldNameSuggest: map[string]any{
					"value": strings.ToLower(p.Text),
					"boost": ExactNameBoost,
				}},
			}}
		}

		var filters []any
		term := func(field string, v any) {
			filters = append(filters, map[string]any{"term": map[string]any{field: v}})
		}
		if p.Filters.Category != "" {
			term(FieldCategory, p.Filters.Category)
		}
		if p.Filters.Source != "" {
			term(FieldSource, p.Filters.Source)
		}
		if p.Filters.Verified != nil {
			term(FieldVerified, *p.Filters.Verified)
		}
		if len(p.Filters.Tags) > 0 {
			filters = append(filters, map[string]any{"terms": map[string]any{FieldTagKeys: p.Filters.Tags}})
		}
		if len(filters) > 0 {
			boolQuery["filter"] = filters
		}
		body["query"] = map[string]any{"bool": boolQuery}
	}

	sort := make([]any, 0, len(p.Sort))
	for _, c := range p.Sort {
		order := "asc"
		if c.Desc {
			order = "desc"
		}
		if c.Field == FieldScore {
			sort = append(sort, map[string]any{FieldScore: map[string]any{"order": order}})
			continue
		}
		sort = append(sort, map[string]any{c.Field: map[string]any{"order": order, "missing": "_last"}})
	}
	body["sort"] = sort

	aggs := make(map[string]any, len(p.Aggregations))
	for _, a := range p.Aggregations {
		aggs[a.Name] = map[string]any{"terms": map[string]any{"field": a.Field, "size": a.Size}}
	}
	body["aggs"] = aggs
	return body
}

type esSearchResponse struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID     string          `json:"_id"`
			Score  *float64        `json:"_score"`
			Source json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
	Aggregations map[string]struct {
		Buckets []esBucket `json:"buckets"`
	} `json:"aggregations"`
}

type esBucket struct {
	Key      string `json:"key"`
	DocCount int64  `json:"doc_count"`
}

func (e *Elastic) search(ctx context.Context, op string, body map[string]any) (*esSearchResponse, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s query: %w", op, err)
	}
	res, err := e.client.Search(
		e.client.Search.WithContext(ctx),
		e.client.Search.WithIndex(e.index),
		e.client.Search.WithBody(bytes.NewReader(raw)),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, unavailable(op, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, responseError(op, res)
	}

	var parsed esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, unavailable("decode "+op+" response", err)
	}
	return &parsed, nil
}

func (e *Elastic) Search(ctx context.Context, plan *QueryPlan) (*Result, error) {
	parsed, err := e.search(ctx, "search", ElasticQuery(plan))
	if err != nil {
		return nil, err
	}

	out := &Result{
		Hits:         make([]Hit, 0, len(parsed.Hits.Hits)),
		Total:        parsed.Hits.Total.Value,
		Aggregations: emptyAggregations(),
	}
	for _, h := range parsed.Hits.Hits {
		hit := Hit{ID: h.ID}
		if h.Score != nil {
			hit.Score = *h.Score
		}
		out.Hits = append(out.Hits, hit)
	}
	for _, a := range plan.Aggregations {
		agg, ok := parsed.Aggregations[a.Name]
		if !ok {
			continue
		}
		kept := make([]esBucket, 0, len(agg.Buckets))
		for _, b := range agg.Buckets {
			if b.Key != "" {
				kept = append(kept, b)
			}
		}
		setAggregation(&out.Aggregations, a.Name, buckets(kept, func(b esBucket) (string, int64) {
			return b.Key, b.DocCount
		}))
	}
	return out, nil
}

func (e *Elastic) Suggest(ctx context.Context, prefix string, limit int) ([]string, error) {
	parsed, err := e.search(ctx, "suggest", map[string]any{
		"size":    limit,
		"_source": []string{FieldName},
		"query": map[string]any{
			"prefix": map[string]any{FieldNameSuggest: map[string]any{"value": strings.ToLower(prefix)}},
		},
		"sort": []any{
			map[string]any{FieldTrustScore: map[string]any{"order": "desc"}},
			map[string]any{FieldID: map[string]any{"order": "asc"}},
		},
	})
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(parsed.Hits.Hits))
	seen := make(map[string]struct{}, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		var src struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(h.Source, &src); err != nil || src.Name == "" {
			continue
		}
		if _, ok := seen[src.Name]; ok {
			continue
		}
		seen[src.Name] = struct{}{}
		names = append(names, src.Name)
	}
	return names, nil
}

func (e *Elastic) IDs(ctx context.Context, after string, limit int) ([]string, error) {
	body := map[string]any{
		"size":    limit,
		"_source": false,
		"query":   map[string]any{"match_all": map[string]any{}},
		"sort":    []any{map[string]any{FieldID: map[string]any{"order": "asc"}}},
	}
	if after != "" {
		body["search_after"] = []string{after}
	}
	parsed, err := e.search(ctx, "list ids", body)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		ids = append(ids, h.ID)
	}
	return ids, nil
}

func (e *Elastic) Count(ctx context.Context) (int64, error) {
	res, err := e.client.Count(
		e.client.Count.WithContext(ctx),
		e.client.Count.WithIndex(e.index),
	)
	if err != nil {
		return 0, unavailable("count", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, responseError("count", res)
	}
	var parsed struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return 0, unavailable("decode count response", err)
	}
	return parsed.Count, nil
}

func (e *Elastic) Ping(ctx context.Context) error {
	res, err := e.client.Ping(e.client.Ping.WithContext(ctx))
	if err != nil {
		return unavailable("ping", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError("ping", res)
	}
	return nil
}

func (e *Elastic) Close() error {
	return nil
}
