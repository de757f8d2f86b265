package elastic

import (
	"fmt"

	"github.com/olivere/elastic/v7"
	"github.com/pkg/errors"

	query "github.com/krew-solutions/ascetic-query-go/asceticquery/query/domain"
	"github.com/krew-solutions/ascetic-query-go/asceticquery/query/plan"
	"github.com/krew-solutions/ascetic-query-go/asceticquery/query/schema"
)

// ErrUnsupportedStage is returned for plans the index cannot answer.
var ErrUnsupportedStage = errors.New("stage is not supported by the search backend")

// GroupAggregation names the composite aggregation of grouped requests.
const GroupAggregation = "groups"

// CardinalityPrecision is the distinct count below which CountDistinct is
// exact. Above it the index returns an estimate.
const CardinalityPrecision = 40000

// Request is a rendered plan. The index holds one document per root record
// with its references embedded at their paths, so lookups render to
// nothing. Grouped requests aggregate in the index; the stages after the
// group run in process over the buckets.
type Request struct {
	Collection string
	Query      elastic.Query
	Sorters    []elastic.Sorter
	Includes   []string
	From       int
	Size       int
	HasSize    bool
	CountOnly  bool

	Group *plan.GroupStage
	// Sources are the composite key sources, one per group key.
	Sources []elastic.CompositeAggregationValuesSource
	Metrics map[string]elastic.Aggregation
	Post    []plan.Stage
}

// Render turns a plan into a search request.
func Render(p *plan.Plan) (*Request, error) {
	r := &Request{
		Collection: p.Root.Collection(),
		Query:      elastic.NewMatchAllQuery(),
		CountOnly:  p.CountOnly,
	}
	distinct := false
	for _, stage := range p.Stages {
		if _, ok := stage.(plan.DistinctStage); ok {
			distinct = true
		}
	}
	for i, stage := range p.Stages {
		if r.Group != nil {
			r.Post = p.Stages[i:]
			break
		}
		switch st := stage.(type) {
		case plan.LookupStage:
			if st.Edge.Multiplicity == schema.Many && !distinct {
				return nil, errors.Wrapf(ErrUnsupportedStage, "to-many reference %s needs distinct rows", st.Path)
			}
		case plan.UnwindStage, plan.RenameStage, plan.DistinctStage:
		case plan.MatchStage:
			q, err := Compile(st.Filter, p.Field)
			if err != nil {
				return nil, err
			}
			r.Query = q
		case plan.GroupStage:
			group := st
			r.Group = &group
			if err := r.aggregations(st); err != nil {
				return nil, err
			}
		case plan.SortStage:
			for _, k := range st.Keys {
				sorter := elastic.NewFieldSort(k.Path)
				if k.Direction == query.Descending {
					sorter = sorter.Desc().Missing("_last")
				} else {
					sorter = sorter.Asc().Missing("_first")
				}
				r.Sorters = append(r.Sorters, sorter)
			}
		case plan.ProjectStage:
			for _, f := range st.Fields {
				r.Includes = append(r.Includes, f.Path)
			}
		case plan.SkipStage:
			r.From = int(st.N)
		case plan.LimitStage:
			r.Size = int(st.N)
			r.HasSize = true
		case plan.CountStage:
		default:
			return nil, errors.Wrapf(ErrUnsupportedStage, "%T", stage)
		}
	}
	return r, nil
}

func (r *Request) aggregations(st plan.GroupStage) error {
	r.Metrics = make(map[string]elastic.Aggregation)
	for i, k := range st.Keys {
		r.Sources = append(r.Sources, elastic.NewCompositeAggregationTermsValuesSource(fmt.Sprintf("k%d", i)).
			Field(k.Path).
			MissingBucket(true))
	}
	for _, acc := range st.Accumulators {
		switch acc.Func {
		case query.AggregateCount:
			// bucket doc_count
		case query.AggregateCountDistinct:
			r.Metrics[acc.Name] = elastic.NewCardinalityAggregation().Field(acc.Operand).PrecisionThreshold(CardinalityPrecision)
		case query.AggregateSum:
			r.Metrics[acc.Name] = elastic.NewSumAggregation().Field(acc.Operand)
		case query.AggregateAvg:
			r.Metrics[acc.Name] = elastic.NewAvgAggregation().Field(acc.Operand)
		case query.AggregateMin:
			r.Metrics[acc.Name] = elastic.NewMinAggregation().Field(acc.Operand)
		case query.AggregateMax:
			r.Metrics[acc.Name] = elastic.NewMaxAggregation().Field(acc.Operand)
		default:
			return errors.Errorf("unknown aggregate %s", acc.Func)
		}
	}
	return nil
}

// Composite builds the grouping aggregation resuming after the given key.
func (r *Request) Composite(size int, after map[string]any) *elastic.CompositeAggregation {
	agg := elastic.NewCompositeAggregation().Sources(r.Sources...).Size(size)
	for name, metric := range r.Metrics {
		agg = agg.SubAggregation(name, metric)
	}
	if after != nil {
		agg = agg.AggregateAfter(after)
	}
	return agg
}

// SearchSource is the body of a hits request, or of the first page of a
// grouped one.
func (r *Request) SearchSource(maxResults int) *elastic.SearchSource {
	source := elastic.NewSearchSource().Query(r.Query)
	switch {
	case r.Group != nil && len(r.Group.Keys) == 0:
		source = source.Size(0).TrackTotalHits(true)
		for name, metric := range r.Metrics {
			source = source.Aggregation(name, metric)
		}
		return source
	case r.Group != nil:
		return source.Size(0).Aggregation(GroupAggregation, r.Composite(maxResults, nil))
	}
	if len(r.Sorters) > 0 {
		source = source.SortBy(r.Sorters...)
	}
	if len(r.Includes) > 0 {
		source = source.FetchSourceIncludeExclude(r.Includes, nil)
	}
	if r.From > 0 {
		source = source.From(r.From)
	}
	size := maxResults
	if r.HasSize {
		size = r.Size
	}
	return source.Size(size)
}
