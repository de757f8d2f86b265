package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/olivere/elastic/v7"
	"github.com/pkg/errors"
	"github.com/spf13/cast"

	query "github.com/krew-solutions/ascetic-query-go/asceticquery/query/domain"
	"github.com/krew-solutions/ascetic-query-go/asceticquery/query/infrastructure/memory"
	"github.com/krew-solutions/ascetic-query-go/asceticquery/query/plan"
	"github.com/krew-solutions/ascetic-query-go/asceticquery/query/schema"
	"github.com/krew-solutions/ascetic-query-go/asceticquery/specification/domain/operators"
)

const defaultMaxResults = 10000

type Option func(*Executor)

// WithIndexPrefix names indices prefix + collection.
func WithIndexPrefix(prefix string) Option {
	return func(e *Executor) {
		e.prefix = prefix
	}
}

// WithMaxResults caps unpaged hit requests and sets the composite page size.
func WithMaxResults(n int) Option {
	return func(e *Executor) {
		e.maxResults = n
	}
}

// Executor runs plans as search requests, one index per root collection.
type Executor struct {
	client     *elastic.Client
	prefix     string
	maxResults int
	post       *memory.Executor
}

func NewExecutor(client *elastic.Client, opts ...Option) *Executor {
	e := &Executor{
		client:     client,
		maxResults: defaultMaxResults,
		post:       memory.NewExecutor(nil, operators.NewDefaultRegistry()),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) Capabilities() operators.Capabilities {
	return Capabilities()
}

func (e *Executor) Index(collection string) string {
	return e.prefix + collection
}

func (e *Executor) Find(ctx context.Context, p *plan.Plan) ([]plan.Row, error) {
	r, err := Render(p)
	if err != nil {
		return nil, err
	}
	if r.Group != nil {
		return e.grouped(ctx, p, r)
	}
	res, err := e.client.Search(e.Index(r.Collection)).SearchSource(r.SearchSource(e.maxResults)).Do(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "search %s", e.Index(r.Collection))
	}
	project, projected := p.Projection()
	rows := make([]plan.Row, 0, len(res.Hits.Hits))
	for _, hit := range res.Hits.Hits {
		row, err := decode(hit.Source)
		if err != nil {
			return nil, err
		}
		if err := typed(p, row); err != nil {
			return nil, err
		}
		if projected {
			row = plan.Project(row, project)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (e *Executor) Count(ctx context.Context, p *plan.Plan) (int64, error) {
	r, err := Render(p)
	if err != nil {
		return 0, err
	}
	if r.Group == nil && p.CountOnly {
		n, err := e.client.Count(e.Index(r.Collection)).Query(r.Query).Do(ctx)
		return n, errors.Wrapf(err, "count %s", e.Index(r.Collection))
	}
	rows, err := e.Find(ctx, p)
	if err != nil {
		return 0, err
	}
	if !p.CountOnly {
		return int64(len(rows)), nil
	}
	if len(rows) != 1 {
		return 0, errors.Errorf("count plan produced %d rows", len(rows))
	}
	return cast.ToInt64E(rows[0][plan.CountField])
}

// grouped reads every bucket, then runs the stages after the group in
// process.
func (e *Executor) grouped(ctx context.Context, p *plan.Plan, r *Request) ([]plan.Row, error) {
	index := e.Index(r.Collection)
	var rows []plan.Row
	if len(r.Group.Keys) == 0 {
		res, err := e.client.Search(index).SearchSource(r.SearchSource(e.maxResults)).Do(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "search %s", index)
		}
		row, err := e.bucket(*r.Group, res.TotalHits(), res.Aggregations, nil)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
		return e.post.Apply(ctx, p, rows, r.Post)
	}

	var after map[string]any
	for {
		source := elastic.NewSearchSource().Query(r.Query).Size(0).
			Aggregation(GroupAggregation, r.Composite(e.maxResults, after))
		res, err := e.client.Search(index).SearchSource(source).Do(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "search %s", index)
		}
		items, ok := res.Aggregations.Composite(GroupAggregation)
		if !ok || len(items.Buckets) == 0 {
			break
		}
		for _, b := range items.Buckets {
			row, err := e.bucket(*r.Group, b.DocCount, b.Aggregations, b.Key)
			if err != nil {
				return nil, err
			}
			rows = append(rows, row)
		}
		if items.AfterKey == nil {
			break
		}
		after = items.AfterKey
	}
	return e.post.Apply(ctx, p, rows, r.Post)
}

func (e *Executor) bucket(g plan.GroupStage, docCount int64, aggs elastic.Aggregations, key map[string]any) (plan.Row, error) {
	row := plan.Row{}
	for i, k := range g.Keys {
		v, err := schema.Convert(k.Path, key[fmt.Sprintf("k%d", i)], k.Type)
		if err != nil {
			return nil, err
		}
		plan.Set(row, k.Path, v)
	}
	for _, acc := range g.Accumulators {
		switch acc.Func {
		case query.AggregateCount:
			row[acc.Name] = docCount
			continue
		case query.AggregateCountDistinct:
			metric, _ := aggs.Cardinality(acc.Name)
			row[acc.Name] = int64(0)
			if metric != nil && metric.Value != nil {
				row[acc.Name] = int64(*metric.Value)
			}
			continue
		}
		var metric *elastic.AggregationValueMetric
		switch acc.Func {
		case query.AggregateSum:
			metric, _ = aggs.Sum(acc.Name)
		case query.AggregateAvg:
			metric, _ = aggs.Avg(acc.Name)
		case query.AggregateMin:
			metric, _ = aggs.Min(acc.Name)
		case query.AggregateMax:
			metric, _ = aggs.Max(acc.Name)
		}
		v, err := metricValue(acc, metric)
		if err != nil {
			return nil, err
		}
		row[acc.Name] = v
	}
	return row, nil
}

func metricValue(acc plan.Accumulator, metric *elastic.AggregationValueMetric) (any, error) {
	if metric == nil || metric.Value == nil {
		if acc.Func == query.AggregateSum {
			return schema.Convert(acc.Name, 0, acc.ResultType)
		}
		return nil, nil
	}
	v := *metric.Value
	if acc.ResultType == schema.TypeTime {
		return time.UnixMilli(int64(v)).UTC(), nil
	}
	return schema.Convert(acc.Name, v, acc.ResultType)
}

func decode(source json.RawMessage) (plan.Row, error) {
	dec := json.NewDecoder(bytes.NewReader(source))
	dec.UseNumber()
	var row map[string]any
	if err := dec.Decode(&row); err != nil {
		return nil, errors.Wrap(err, "decode hit")
	}
	if row == nil {
		row = plan.Row{}
	}
	return row, nil
}

// typed converts the fields of the root record and of every embedded
// reference to their declared types. Values of undeclared fields only have
// their numbers resolved.
func typed(p *plan.Plan, row plan.Row) error {
	if err := convertRecord(row, p.Root); err != nil {
		return err
	}
	for _, l := range p.Lookups() {
		v, ok := plan.Get(row, l.Path)
		if !ok {
			continue
		}
		switch t := v.(type) {
		case map[string]any:
			if err := convertRecord(t, l.Target); err != nil {
				return err
			}
		case []any:
			for _, item := range t {
				if m, ok := item.(map[string]any); ok {
					if err := convertRecord(m, l.Target); err != nil {
						return err
					}
				}
			}
		}
	}
	numbers(row)
	return nil
}

func convertRecord(record map[string]any, entity *schema.Entity) error {
	for _, f := range entity.Fields() {
		v, ok := record[f.Name]
		if !ok || v == nil || f.Type == schema.TypeObject || f.Type == schema.TypeAny {
			continue
		}
		converted, err := schema.Convert(f.Name, v, f.Type)
		if err != nil {
			return err
		}
		record[f.Name] = converted
	}
	return nil
}

func numbers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, item := range t {
			t[k] = numbers(item)
		}
	case []any:
		for i, item := range t {
			t[i] = numbers(item)
		}
	case json.Number:
		if !strings.ContainsAny(t.String(), ".eE") {
			if n, err := t.Int64(); err == nil {
				return n
			}
		}
		f, _ := t.Float64()
		return f
	}
	return v
}
