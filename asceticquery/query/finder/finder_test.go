package finder

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	query "github.com/krew-solutions/ascetic-query-go/asceticquery/query/domain"
	"github.com/krew-solutions/ascetic-query-go/asceticquery/query/infrastructure/memory"
	"github.com/krew-solutions/ascetic-query-go/asceticquery/query/plan"
	"github.com/krew-solutions/ascetic-query-go/asceticquery/query/projection"
	s "github.com/krew-solutions/ascetic-query-go/asceticquery/specification/domain"
	"github.com/krew-solutions/ascetic-query-go/asceticquery/specification/domain/operators"
	"github.com/krew-solutions/ascetic-query-go/asceticquery/utils/testutils"
)

// recordingExecutor counts calls and can fail the n-th Find.
type recordingExecutor struct {
	Executor
	finds  int
	counts int
	failAt int
}

func (e *recordingExecutor) Find(ctx context.Context, p *plan.Plan) ([]plan.Row, error) {
	e.finds++
	if e.failAt > 0 && e.finds == e.failAt {
		return nil, errors.New("store unavailable")
	}
	return e.Executor.Find(ctx, p)
}

func (e *recordingExecutor) Count(ctx context.Context, p *plan.Plan) (int64, error) {
	e.counts++
	return e.Executor.Count(ctx, p)
}

func newFinder(t *testing.T, employees int, opts ...Option) (*Finder, *recordingExecutor) {
	t.Helper()
	d := testutils.NewDataset(employees)
	store := memory.NewStore()
	store.Insert("companies", d.Companies...)
	store.Insert("departments", d.Departments...)
	store.Insert("employees", d.Employees...)
	store.Insert("projects", d.Projects...)
	executor := &recordingExecutor{Executor: memory.NewExecutor(store, operators.NewDefaultRegistry())}
	return NewFinder(testutils.EmployeeCatalog(), executor, opts...), executor
}

var byID = query.QuerySpec{
	Select:  query.Selection{query.Field("id")},
	OrderBy: []query.Order{query.Asc("id")},
}

func ids(rows []plan.Row) []int64 {
	result := make([]int64, len(rows))
	for i, row := range rows {
		result[i] = row["id"].(int64)
	}
	return result
}

func TestFinder_ConsumeInPages(t *testing.T) {
	f, executor := newFinder(t, 23)
	var pages []query.Page[plan.Row]
	err := f.ConsumeInPages(context.Background(), "employee", byID.WithPage(0, 5), func(page query.Page[plan.Row]) error {
		pages = append(pages, page)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, pages, 5)
	assert.Equal(t, 1, executor.counts)
	assert.Equal(t, 5, executor.finds)
	for i, page := range pages {
		assert.Equal(t, i, page.PageIndex)
		assert.Equal(t, 5, page.PageSize)
		assert.Equal(t, int64(23), page.TotalElements)
	}
	assert.Equal(t, []int64{21, 22, 23}, ids(pages[4].Content))

	var all []int64
	for _, page := range pages {
		all = append(all, ids(page.Content)...)
	}
	assert.Len(t, all, 23)
	assert.Equal(t, int64(1), all[0])
}

func TestFinder_ConsumeInPagesStopsOnCallbackError(t *testing.T) {
	f, executor := newFinder(t, 12)
	delivered := 0
	err := f.ConsumeInPages(context.Background(), "employee", byID.WithPage(0, 5), func(page query.Page[plan.Row]) error {
		delivered++
		if page.PageIndex == 1 {
			return errors.New("sink full")
		}
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink full")
	assert.Equal(t, 2, delivered)
	assert.Equal(t, 2, executor.finds)
}

func TestFinder_ConsumeInPagesStopsOnStoreError(t *testing.T) {
	f, executor := newFinder(t, 12)
	executor.failAt = 2
	delivered := 0
	err := f.ConsumeInPages(context.Background(), "employee", byID.WithPage(0, 5), func(query.Page[plan.Row]) error {
		delivered++
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, 1, delivered)
}

func TestFinder_ConsumeInPagesDefaultSize(t *testing.T) {
	f, _ := newFinder(t, 7, WithDefaultPageSize(3))
	var sizes []int
	err := f.ConsumeInPages(context.Background(), "employee", byID, func(page query.Page[plan.Row]) error {
		sizes = append(sizes, len(page.Content))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 3, 1}, sizes)
}

func TestFinder_ConsumeInPagesEmpty(t *testing.T) {
	f, executor := newFinder(t, 10)
	spec := byID.WithPage(0, 4)
	spec.Where = s.FilterSpecification{s.Where("id", operators.OperatorGreaterThan, 100)}
	err := f.ConsumeInPages(context.Background(), "employee", spec, func(query.Page[plan.Row]) error {
		t.Fatal("no page expected")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, executor.finds)
}

func TestFinder_ConsumeInPagesRejectsNonPositiveSize(t *testing.T) {
	zero, negative := 0, -3
	cases := map[string]struct {
		spec        query.QuerySpec
		defaultSize int
	}{
		"zero":             {query.QuerySpec{Page: query.Pagination{Size: &zero}}, 10},
		"negative":         {query.QuerySpec{Page: query.Pagination{Size: &negative}}, 10},
		"zero default":     {query.QuerySpec{}, 0},
		"negative default": {query.QuerySpec{}, -1},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			f, executor := newFinder(t, 10, WithDefaultPageSize(c.defaultSize))
			err := f.ConsumeInPages(context.Background(), "employee", c.spec, func(query.Page[plan.Row]) error {
				t.Fatal("no page expected")
				return nil
			})
			assert.ErrorIs(t, err, s.ErrMalformedExpression)
			assert.Equal(t, 0, executor.counts)
			assert.Equal(t, 0, executor.finds)
		})
	}
}

func TestFinder_FindPage(t *testing.T) {
	f, _ := newFinder(t, 23)
	page, err := f.FindPage(context.Background(), "employee", byID.WithPage(2, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(23), page.TotalElements)
	assert.Equal(t, 3, page.TotalPages())
	assert.False(t, page.HasNext())
	assert.Equal(t, []int64{21, 22, 23}, ids(page.Content))

	_, err = f.FindPage(context.Background(), "employee", byID)
	assert.Error(t, err)
}

func TestFinder_CountMatchesFindAll(t *testing.T) {
	f, _ := newFinder(t, 30)
	spec := query.QuerySpec{Where: s.FilterSpecification{s.Where("active", operators.OperatorEqual, true)}}
	rows, err := f.FindAll(context.Background(), "employee", spec)
	require.NoError(t, err)
	n, err := f.Count(context.Background(), "employee", spec)
	require.NoError(t, err)
	assert.Equal(t, int64(len(rows)), n)
}

func TestFinder_CompileErrorsAreNotWrapped(t *testing.T) {
	f, executor := newFinder(t, 3)
	_, err := f.FindAll(context.Background(), "employee", query.QuerySpec{
		Where: s.FilterSpecification{s.Where("nope", operators.OperatorEqual, 1)},
	})
	assert.ErrorIs(t, err, s.ErrUnresolvableFieldPath)
	assert.Equal(t, 0, executor.finds)
}

type employeeName struct {
	Name string
	Dept string
}

func TestFinder_FindAs(t *testing.T) {
	f, _ := newFinder(t, 4)
	shape := projection.NewShape("employee").
		Field("name").
		Field("dept").
		Mutable(projection.NewStructTarget[employeeName]).
		MustBuild()
	views, err := FindAs[employeeName](context.Background(), f, "employee", query.QuerySpec{
		Select:  query.Selection{query.Field("name"), query.FieldAs("department.name", "dept")},
		OrderBy: []query.Order{query.Asc("id")},
	}, shape)
	require.NoError(t, err)
	require.Len(t, views, 4)
	for _, v := range views {
		assert.NotEmpty(t, v.Name)
		assert.NotEmpty(t, v.Dept)
	}

	records, err := f.FindProjected(context.Background(), "employee", query.QuerySpec{
		Select: query.Selection{query.Field("name")},
	}, projection.NewShape("employee").Field("name").MustBuild())
	require.NoError(t, err)
	assert.Len(t, records, 4)
}

func TestFinder_LogsPlans(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	f, executor := newFinder(t, 3, WithLogger(zap.New(core)))
	executor.failAt = 1

	_, err := f.FindAll(context.Background(), "employee", byID)
	require.Error(t, err)

	compiled := logs.FilterMessage("plan compiled").All()
	require.Len(t, compiled, 1)
	assert.Equal(t, "employee", compiled[0].ContextMap()["root"])
	assert.NotEmpty(t, compiled[0].ContextMap()["plan_id"])
	assert.Equal(t, 1, logs.FilterMessage("find failed").FilterLevelExact(zapcore.ErrorLevel).Len())
}
