package elastic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/olivere/elastic/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	query "github.com/krew-solutions/ascetic-query-go/asceticquery/query/domain"
	"github.com/krew-solutions/ascetic-query-go/asceticquery/query/plan"
	s "github.com/krew-solutions/ascetic-query-go/asceticquery/specification/domain"
	"github.com/krew-solutions/ascetic-query-go/asceticquery/specification/domain/operators"
)

// clusterStub answers requests with canned bodies, in order, and records
// what it was sent.
type clusterStub struct {
	mu        sync.Mutex
	responses []string
	paths     []string
	bodies    []map[string]any
}

func (c *clusterStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, _ := io.ReadAll(r.Body)
	var body map[string]any
	_ = json.Unmarshal(data, &body)
	c.paths = append(c.paths, r.URL.Path)
	c.bodies = append(c.bodies, body)
	w.Header().Set("Content-Type", "application/json")
	if len(c.responses) == 0 {
		http.Error(w, `{"error":"unexpected request"}`, http.StatusInternalServerError)
		return
	}
	_, _ = io.WriteString(w, c.responses[0])
	c.responses = c.responses[1:]
}

func newStubExecutor(t *testing.T, responses ...string) (*Executor, *clusterStub) {
	t.Helper()
	stub := &clusterStub{responses: responses}
	server := httptest.NewServer(stub)
	t.Cleanup(server.Close)
	client, err := elastic.NewClient(
		elastic.SetURL(server.URL),
		elastic.SetSniff(false),
		elastic.SetHealthcheck(false),
	)
	require.NoError(t, err)
	return NewExecutor(client, WithIndexPrefix("test_"), WithMaxResults(2)), stub
}

func TestExecutor_FindConvertsHits(t *testing.T) {
	e, stub := newStubExecutor(t, `{
		"hits": {"total": {"value": 2, "relation": "eq"}, "hits": [
			{"_index": "test_employees", "_id": "1", "_source": {"name": "Alice", "salary": 1200, "department": {"id": 2, "name": "R&D"}}},
			{"_index": "test_employees", "_id": "2", "_source": {"name": "Bob", "salary": 900.5}}
		]}
	}`)
	p, err := compiler().Compile("employee", query.QuerySpec{
		Select: query.Selection{query.Field("name"), query.Field("salary"), query.FieldAs("department.id", "dept")},
	})
	require.NoError(t, err)

	rows, err := e.Find(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, []plan.Row{
		{"name": "Alice", "salary": float64(1200), "dept": int64(2)},
		{"name": "Bob", "salary": 900.5, "dept": nil},
	}, rows)
	assert.Equal(t, []string{"/test_employees/_search"}, stub.paths)
	assert.Equal(t, float64(2), stub.bodies[0]["size"])
}

func TestExecutor_GroupedPagesThroughBuckets(t *testing.T) {
	e, stub := newStubExecutor(t,
		`{"hits": {"total": {"value": 3, "relation": "eq"}, "hits": []},
		  "aggregations": {"groups": {"after_key": {"k0": "Oslo"}, "buckets": [
			{"key": {"k0": "Berlin"}, "doc_count": 2, "max_salary": {"value": 1500}},
			{"key": {"k0": "Oslo"}, "doc_count": 1, "max_salary": {"value": 1100}}
		  ]}}}`,
		`{"hits": {"total": {"value": 3, "relation": "eq"}, "hits": []},
		  "aggregations": {"groups": {"after_key": {"k0": null}, "buckets": [
			{"key": {"k0": null}, "doc_count": 4, "max_salary": {"value": null}}
		  ]}}}`,
		`{"hits": {"total": {"value": 3, "relation": "eq"}, "hits": []},
		  "aggregations": {"groups": {"buckets": []}}}`,
	)
	spec := query.QuerySpec{
		Select: query.Selection{
			query.Field("city"),
			query.FieldAs("[Count]id", "n"),
			query.FieldAs("[Max]salary", "top"),
		},
		GroupBy: []string{"city"},
		Having:  s.FilterSpecification{s.Where("[Count]id", operators.OperatorGreaterThan, 1)},
		OrderBy: []query.Order{query.Desc("n")},
	}
	p, err := compiler().Compile("employee", spec)
	require.NoError(t, err)

	rows, err := e.Find(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, []plan.Row{
		{"city": nil, "n": int64(4), "top": nil},
		{"city": "Berlin", "n": int64(2), "top": float64(1500)},
	}, rows)
	require.Len(t, stub.bodies, 3)
	composite := stub.bodies[1]["aggregations"].(map[string]any)["groups"].(map[string]any)["composite"].(map[string]any)
	assert.Equal(t, map[string]any{"k0": "Oslo"}, composite["after"])
}

func TestExecutor_KeylessGroupOnEmptyIndex(t *testing.T) {
	e, _ := newStubExecutor(t, `{"hits": {"total": {"value": 0, "relation": "eq"}, "hits": []},
		"aggregations": {"sum_salary": {"value": 0}, "min_salary": {"value": null}}}`)
	p, err := compiler().Compile("employee", query.QuerySpec{
		Select: query.Selection{
			query.FieldAs("[Count]id", "n"),
			query.FieldAs("[Sum]salary", "total"),
			query.FieldAs("[Min]salary", "low"),
		},
	})
	require.NoError(t, err)

	rows, err := e.Find(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, []plan.Row{{"n": int64(0), "total": float64(0), "low": nil}}, rows)
}

func TestExecutor_CountUsesCountApi(t *testing.T) {
	e, stub := newStubExecutor(t, `{"count": 42}`)
	p, err := compiler().CompileCount("employee", query.QuerySpec{
		Where: s.FilterSpecification{s.Where("city", operators.OperatorEqual, "Oslo")},
	})
	require.NoError(t, err)

	n, err := e.Count(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
	assert.Equal(t, []string{"/test_employees/_count"}, stub.paths)
	assert.Equal(t, map[string]any{"term": map[string]any{"city": "Oslo"}}, stub.bodies[0]["query"])
}

func TestNumbers(t *testing.T) {
	row, err := decode([]byte(`{"a": 1, "b": 1.5, "c": [2, {"d": 3e2}]}`))
	require.NoError(t, err)
	numbers(row)
	assert.Equal(t, plan.Row{"a": int64(1), "b": 1.5, "c": []any{int64(2), map[string]any{"d": float64(300)}}}, row)
}
