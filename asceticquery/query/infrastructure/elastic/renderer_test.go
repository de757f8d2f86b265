package elastic

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	query "github.com/krew-solutions/ascetic-query-go/asceticquery/query/domain"
	"github.com/krew-solutions/ascetic-query-go/asceticquery/query/plan"
	s "github.com/krew-solutions/ascetic-query-go/asceticquery/specification/domain"
	"github.com/krew-solutions/ascetic-query-go/asceticquery/specification/domain/operators"
	"github.com/krew-solutions/ascetic-query-go/asceticquery/utils/testutils"
)

func compiler() *plan.Compiler {
	return plan.NewCompiler(testutils.EmployeeCatalog(), plan.WithCapabilities(Capabilities()))
}

func render(t *testing.T, spec query.QuerySpec) *Request {
	t.Helper()
	p, err := compiler().Compile("employee", spec)
	require.NoError(t, err)
	r, err := Render(p)
	require.NoError(t, err)
	return r
}

func source(t *testing.T, v interface{ Source() (interface{}, error) }) string {
	t.Helper()
	src, err := v.Source()
	require.NoError(t, err)
	data, err := json.Marshal(src)
	require.NoError(t, err)
	return string(data)
}

func where(t *testing.T, criteria ...s.Criterion) string {
	t.Helper()
	return source(t, render(t, query.QuerySpec{Where: criteria, Select: query.Selection{query.Field("id")}}).Query)
}

func TestCompile_Clauses(t *testing.T) {
	cases := []struct {
		name     string
		where    []s.Criterion
		expected string
	}{
		{
			"equal",
			[]s.Criterion{s.Where("city", operators.OperatorEqual, "Oslo")},
			`{"term":{"city":"Oslo"}}`,
		},
		{
			"equal many",
			[]s.Criterion{s.Where("city", operators.OperatorEqual, "Oslo", "Lisbon")},
			`{"terms":{"city":["Oslo","Lisbon"]}}`,
		},
		{
			"equal null",
			[]s.Criterion{s.Where("nickname", operators.OperatorEqual, nil)},
			`{"bool":{"must_not":{"exists":{"field":"nickname"}}}}`,
		},
		{
			"not equal keeps missing values",
			[]s.Criterion{s.Where("department_id", operators.OperatorNotEqual, 1)},
			`{"bool":{"must_not":{"term":{"department_id":1}}}}`,
		},
		{
			"not equal null",
			[]s.Criterion{s.Where("nickname", operators.OperatorNotEqual, nil)},
			`{"exists":{"field":"nickname"}}`,
		},
		{
			"not equal value or null",
			[]s.Criterion{s.Where("city", operators.OperatorNotEqual, "Oslo", nil)},
			`{"bool":{"filter":{"exists":{"field":"city"}},"must_not":{"term":{"city":"Oslo"}}}}`,
		},
		{
			"specified",
			[]s.Criterion{s.Where("department.head", operators.OperatorSpecified, true)},
			`{"exists":{"field":"department.head"}}`,
		},
		{
			"left join is approximated",
			[]s.Criterion{s.Where("department<head", operators.OperatorSpecified, false)},
			`{"bool":{"must_not":{"exists":{"field":"department.head"}}}}`,
		},
		{
			"groups",
			[]s.Criterion{
				s.Group(s.Where("city", operators.OperatorEqual, "Oslo"), s.Or(), s.Where("city", operators.OperatorEqual, "Lisbon")),
				s.Where("active", operators.OperatorEqual, true),
			},
			`{"bool":{"filter":[
				{"bool":{"minimum_should_match":"1","should":[{"term":{"city":"Oslo"}},{"term":{"city":"Lisbon"}}]}},
				{"term":{"active":true}}
			]}}`,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.JSONEq(t, c.expected, where(t, c.where...))
		})
	}
}

func TestCompile_StringMatching(t *testing.T) {
	var clause map[string]any
	require.NoError(t, json.Unmarshal([]byte(where(t, s.Where("name", operators.OperatorContain, "a*b"))), &clause))
	wildcard := clause["wildcard"].(map[string]any)["name"].(map[string]any)
	assert.Equal(t, `*a\*b*`, wildcard["value"])
	assert.Equal(t, true, wildcard["case_insensitive"])

	require.NoError(t, json.Unmarshal([]byte(where(t, s.Where("name", operators.OperatorDoesNotContain, "x"))), &clause))
	assert.Contains(t, clause["bool"], "must_not")

	require.NoError(t, json.Unmarshal([]byte(where(t, s.Where("name", operators.OperatorStartWith, "Al"))), &clause))
	assert.Contains(t, clause, "prefix")
}

func TestCompile_Ordering(t *testing.T) {
	var clause map[string]any
	require.NoError(t, json.Unmarshal([]byte(where(t, s.Where("salary", operators.OperatorGreaterThan, 10))), &clause))
	rng := clause["range"].(map[string]any)["salary"].(map[string]any)
	assert.Equal(t, float64(10), rng["from"])
	assert.Equal(t, false, rng["include_lower"])
}

func TestRender_HitsRequest(t *testing.T) {
	r := render(t, query.QuerySpec{
		Select:  query.Selection{query.Field("name"), query.FieldAs("department.name", "dept")},
		Where:   s.FilterSpecification{s.Where("department.company.id", operators.OperatorEqual, 2)},
		OrderBy: []query.Order{query.Desc("salary"), query.Asc("name")},
		Page:    query.Paged(2, 10),
	})
	assert.Equal(t, "employees", r.Collection)
	assert.Nil(t, r.Group)
	assert.JSONEq(t, `{
		"query": {"term": {"department.company.id": 2}},
		"sort": [
			{"salary": {"missing": "_last", "order": "desc"}},
			{"name": {"missing": "_first", "order": "asc"}}
		],
		"_source": {"includes": ["name", "department.name"]},
		"from": 20,
		"size": 10
	}`, source(t, r.SearchSource(100)))
}

func TestRender_UnpagedUsesMaxResults(t *testing.T) {
	r := render(t, query.QuerySpec{})
	assert.JSONEq(t, `{"query":{"match_all":{}},"size":50}`, source(t, r.SearchSource(50)))
}

func TestRender_GroupedRunsTailInProcess(t *testing.T) {
	r := render(t, query.QuerySpec{
		Select: query.Selection{
			query.Field("city"),
			query.FieldAs("[Count]id", "n"),
			query.FieldAs("[Sum]salary", "total"),
		},
		GroupBy: []string{"city"},
		Having:  s.FilterSpecification{s.Where("[Count]id", operators.OperatorGreaterThan, 1)},
		OrderBy: []query.Order{query.Desc("n")},
		Page:    query.Paged(0, 5),
	})
	require.NotNil(t, r.Group)
	assert.Equal(t, []plan.StageKind{plan.StageHaving, plan.StageSort, plan.StageProject, plan.StageLimit}, kinds(r.Post))
	assert.Contains(t, r.Metrics, "sum_salary")
	assert.NotContains(t, r.Metrics, "count_id")
	assert.JSONEq(t, `{
		"query": {"match_all": {}},
		"size": 0,
		"aggregations": {"groups": {
			"composite": {
				"size": 100,
				"sources": [{"k0": {"terms": {"field": "city", "missing_bucket": true}}}]
			},
			"aggregations": {"sum_salary": {"sum": {"field": "salary"}}}
		}}
	}`, source(t, r.SearchSource(100)))
}

func TestRender_KeylessGroupAggregatesAtTopLevel(t *testing.T) {
	r := render(t, query.QuerySpec{Select: query.Selection{query.FieldAs("[Avg]salary", "mean")}})
	assert.JSONEq(t, `{
		"query": {"match_all": {}},
		"size": 0,
		"track_total_hits": true,
		"aggregations": {"avg_salary": {"avg": {"field": "salary"}}}
	}`, source(t, r.SearchSource(100)))
}

func TestRender_CountDistinctAtMaximumPrecision(t *testing.T) {
	r := render(t, query.QuerySpec{
		Select:  query.Selection{query.Field("city"), query.FieldAs("[CountDistinct]nickname", "nicks")},
		GroupBy: []string{"city"},
	})
	require.Contains(t, r.Metrics, "countdistinct_nickname")
	assert.JSONEq(t,
		`{"cardinality":{"field":"nickname","precision_threshold":40000}}`,
		source(t, r.Metrics["countdistinct_nickname"]))
}

func TestRender_ToManyNeedsDistinct(t *testing.T) {
	p, err := compiler().Compile("employee", query.QuerySpec{
		Where: s.FilterSpecification{s.Where("projects.budget", operators.OperatorGreaterThan, 10)},
	})
	require.NoError(t, err)
	_, err = Render(p)
	assert.ErrorIs(t, err, ErrUnsupportedStage)

	r := render(t, query.QuerySpec{
		Where:    s.FilterSpecification{s.Where("projects.budget", operators.OperatorGreaterThan, 10)},
		Distinct: true,
	})
	assert.Contains(t, source(t, r.Query), "projects.budget")
}

func TestRender_CountOnly(t *testing.T) {
	p, err := compiler().CompileCount("employee", query.QuerySpec{
		Where: s.FilterSpecification{s.Where("active", operators.OperatorEqual, true)},
	})
	require.NoError(t, err)
	r, err := Render(p)
	require.NoError(t, err)
	assert.True(t, r.CountOnly)
	assert.Equal(t, `{"term":{"active":true}}`, source(t, r.Query))
}

func kinds(stages []plan.Stage) []plan.StageKind {
	result := make([]plan.StageKind, len(stages))
	for i, st := range stages {
		result[i] = st.Kind()
	}
	return result
}
