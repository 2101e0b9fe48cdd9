package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevesearch "github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"
)

// Bleve is an embedded Backend. An empty path keeps the index in memory.
type Bleve struct {
	index bleve.Index
	// mu serializes writes so the revision check and the write are atomic.
	mu sync.Mutex
}

var _ Backend = (*Bleve)(nil)

// NewBleve opens the index at path, creating it when it does not exist.
func NewBleve(path string) (*Bleve, error) {
	if path == "" {
		idx, err := bleve.NewMemOnly(indexMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory index: %w", err)
		}
		return &Bleve{index: idx}, nil
	}

	idx, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		idx, err = bleve.New(path, indexMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open index at %s: %w", path, err)
	}
	return &Bleve{index: idx}, nil
}

func indexMapping() mapping.IndexMapping {
	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name

	kw := bleve.NewTextFieldMapping()
	kw.Analyzer = keyword.Name

	numeric := bleve.NewNumericFieldMapping()
	boolean := bleve.NewBooleanFieldMapping()
	date := bleve.NewDateTimeFieldMapping()

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt(FieldID, kw)
	doc.AddFieldMappingsAt(FieldName, text)
	doc.AddFieldMappingsAt(FieldDescription, text)
	doc.AddFieldMappingsAt(FieldTags, text)
	doc.AddFieldMappingsAt(FieldTagKeys, kw)
	doc.AddFieldMappingsAt(FieldCategory, kw)
	doc.AddFieldMappingsAt(FieldSource, kw)
	doc.AddFieldMappingsAt(FieldClaimedBy, kw)
	doc.AddFieldMappingsAt(FieldNameSuggest, kw)
	doc.AddFieldMappingsAt(FieldVerified, boolean)
	doc.AddFieldMappingsAt(FieldTrustScore, numeric)
	doc.AddFieldMappingsAt(FieldRankingScore, numeric)
	doc.AddFieldMappingsAt(FieldStars, numeric)
	doc.AddFieldMappingsAt(FieldDownloads, numeric)
	doc.AddFieldMappingsAt(FieldRating, numeric)
	doc.AddFieldMappingsAt(FieldUpdatedAt, date)
	doc.AddFieldMappingsAt(FieldRevision, numeric)

	im := bleve.NewIndexMapping()
	im.AddDocumentMapping(Document{}.Type(), doc)
	im.DefaultMapping = doc
	im.DefaultAnalyzer = standard.Name
	return im
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}

func (b *Bleve) EnsureIndex(context.Context) error {
	return nil
}

func (b *Bleve) Upsert(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	stored, ok, err := b.revision(ctx, doc.ID)
	if err != nil {
		return err
	}
	if ok && stored > doc.Revision {
		return nil
	}
	if err := b.index.Index(doc.ID, doc); err != nil {
		return unavailable("index document", err)
	}
	return nil
}

// revision returns the revision of the indexed document id.
func (b *Bleve) revision(ctx context.Context, id string) (int64, bool, error) {
	req := bleve.NewSearchRequestOptions(bleve.NewDocIDQuery([]string{id}), 1, 0, false)
	req.Fields = []string{FieldRevision}
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return 0, false, unavailable("read revision", err)
	}
	if len(res.Hits) == 0 {
		return 0, false, nil
	}
	rev, _ := res.Hits[0].Fields[FieldRevision].(float64)
	return int64(rev), true, nil
}

func (b *Bleve) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.index.Delete(id); err != nil {
		return unavailable("delete document", err)
	}
	return nil
}

// bleveQuery renders the plan's text and filter clauses.
func bleveQuery(p *QueryPlan) query.Query {
	if p.MatchAll() {
		return bleve.NewMatchAllQuery()
	}

	var must []query.Query
	if p.Text != "" {
		var should []query.Query
		for _, f := range TextFields {
			m := bleve.NewMatchQuery(p.Text)
			m.SetField(f.Field)
			m.SetBoost(f.Boost)
			if p.Fuzzy {
				m.SetFuzziness(1)
			}
			should = append(should, m)
		}
		exact := bleve.NewTermQuery(strings.ToLower(p.Text))
		exact.SetField(FieldNameSuggest)
		exact.SetBoost(ExactNameBoost)
		should = append(should, exact)
		must = append(must, bleve.NewDisjunctionQuery(should...))
	}

	if p.Filters.Category != "" {
		must = append(must, termQuery(FieldCategory, p.Filters.Category))
	}
	if p.Filters.Source != "" {
		must = append(must, termQuery(FieldSource, p.Filters.Source))
	}
	if p.Filters.Verified != nil {
		v := bleve.NewBoolFieldQuery(*p.Filters.Verified)
		v.SetField(FieldVerified)
		must = append(must, v)
	}
	if len(p.Filters.Tags) > 0 {
		var anyTag []query.Query
		for _, tag := range p.Filters.Tags {
			anyTag = append(anyTag, termQuery(FieldTagKeys, tag))
		}
		must = append(must, bleve.NewDisjunctionQuery(anyTag...))
	}

	if len(must) == 1 {
		return must[0]
	}
	return bleve.NewConjunctionQuery(must...)
}

func termQuery(field, term string) query.Query {
	q := bleve.NewTermQuery(term)
	q.SetField(field)
	return q
}

func bleveSort(clauses []SortClause) blevesearch.SortOrder {
	order := make(blevesearch.SortOrder, 0, len(clauses))
	for _, c := range clauses {
		switch c.Field {
		case FieldScore:
			order = append(order, &blevesearch.SortScore{Desc: c.Desc})
		case FieldID:
			order = append(order, &blevesearch.SortDocID{Desc: c.Desc})
		default:
			typ := blevesearch.SortFieldAsNumber
			if c.Date {
				typ = blevesearch.SortFieldAsDate
			}
			order = append(order, &blevesearch.SortField{
				Field:   c.Field,
				Desc:    c.Desc,
				Type:    typ,
				Missing: blevesearch.SortFieldMissingLast,
			})
		}
	}
	return order
}

func (b *Bleve) Search(ctx context.Context, plan *QueryPlan) (*Result, error) {
	req := bleve.NewSearchRequestOptions(bleveQuery(plan), plan.Size, plan.From, false)
	req.SortByCustom(bleveSort(plan.Sort))
	for _, agg := range plan.Aggregations {
		req.AddFacet(agg.Name, bleve.NewFacetRequest(agg.Field, agg.Size))
	}

	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, unavailable("search", err)
	}

	out := &Result{
		Hits:         make([]Hit, 0, len(res.Hits)),
		Total:        int64(res.Total),
		Aggregations: emptyAggregations(),
	}
	for _, h := range res.Hits {
		out.Hits = append(out.Hits, Hit{ID: h.ID, Score: h.Score})
	}
	for name, facet := range res.Facets {
		if facet == nil || facet.Terms == nil {
			continue
		}
		var terms []*blevesearch.TermFacet
		for _, t := range facet.Terms.Terms() {
			if t.Term != "" {
				terms = append(terms, t)
			}
		}
		setAggregation(&out.Aggregations, name, buckets(terms, func(t *blevesearch.TermFacet) (string, int64) {
			return t.Term, int64(t.Count)
		}))
	}
	return out, nil
}

func (b *Bleve) Suggest(ctx context.Context, prefix string, limit int) ([]string, error) {
	q := bleve.NewPrefixQuery(strings.ToLower(prefix))
	q.SetField(FieldNameSuggest)

	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	req.Fields = []string{FieldName}
	req.SortByCustom(bleveSort([]SortClause{
		{Field: FieldTrustScore, Desc: true},
		{Field: FieldID},
	}))

	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, unavailable("suggest", err)
	}

	names := make([]string, 0, len(res.Hits))
	seen := make(map[string]struct{}, len(res.Hits))
	for _, h := range res.Hits {
		name, _ := h.Fields[FieldName].(string)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names, nil
}

func (b *Bleve) IDs(ctx context.Context, after string, limit int) ([]string, error) {
	req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), limit, 0, false)
	req.SortBy([]string{"_id"})
	if after != "" {
		req.SearchAfter = []string{after}
	}
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, unavailable("list ids", err)
	}
	ids := make([]string, 0, len(res.Hits))
	for _, h := range res.Hits {
		ids = append(ids, h.ID)
	}
	return ids, nil
}

func (b *Bleve) Count(context.Context) (int64, error) {
	n, err := b.index.DocCount()
	if err != nil {
		return 0, unavailable("count", err)
	}
	return int64(n), nil
}

func (b *Bleve) Ping(context.Context) error {
	if _, err := b.index.DocCount(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (b *Bleve) Close() error {
	return b.index.Close()
}
