package projection

import (
	"errors"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krew-solutions/ascetic-query-go/asceticquery/query/plan"
	s "github.com/krew-solutions/ascetic-query-go/asceticquery/specification/domain"
)

type address struct {
	City string
	Zip  string
}

type employeeView struct {
	Name       string
	Salary     float64
	Department string `query:"departmentName"`
	Address    address
}

type money struct {
	amount   float64
	currency string
}

type payslip struct {
	name string
	pay  money
}

func addressShape() *Shape {
	return NewShape("address").Field("city").Field("zip").MustBuild()
}

func TestMapper_RecordTarget(t *testing.T) {
	shape := NewShape("employee").
		Field("name").
		FieldFrom("departmentName", "department.name").
		Nested("address", "", addressShape()).
		MustBuild()

	v, err := NewMapper().Map(plan.Row{
		"name":            "Alice",
		"department.name": "R&D",
		"address.city":    "Berlin",
		"address.zip":     "10115",
	}, shape)
	require.NoError(t, err)
	assert.Equal(t, RecordTarget{
		"name":           "Alice",
		"departmentName": "R&D",
		"address":        RecordTarget{"city": "Berlin", "zip": "10115"},
	}, v)
}

func TestMapper_NestedNativeRecord(t *testing.T) {
	shape := NewShape("employee").
		Field("name").
		FieldFrom("departmentName", "department.name").
		Nested("address", "", addressShape()).
		MustBuild()

	v, err := NewMapper().Map(plan.Row{
		"name":       "Alice",
		"department": map[string]any{"name": "R&D"},
		"address":    map[string]any{"city": "Berlin"},
	}, shape)
	require.NoError(t, err)
	assert.Equal(t, RecordTarget{
		"name":           "Alice",
		"departmentName": "R&D",
		"address":        RecordTarget{"city": "Berlin"},
	}, v)
}

func TestMapper_MutableSkipsAbsentFields(t *testing.T) {
	shape := NewShape("employee").Field("name").Field("nickname").Nested("address", "", addressShape()).MustBuild()

	v, err := NewMapper().Map(plan.Row{"name": "Bob"}, shape)
	require.NoError(t, err)
	assert.Equal(t, RecordTarget{"name": "Bob"}, v)
}

func TestMapper_StructTarget(t *testing.T) {
	shape := NewShape("employee").
		Field("name").
		Field("salary").
		FieldFrom("departmentName", "department.name").
		Nested("address", "addr", NewShape("address").Field("city").Field("zip").Mutable(NewStructTarget[address]).MustBuild()).
		Mutable(NewStructTarget[employeeView]).
		MustBuild()

	views, err := MapAs[employeeView](NewMapper(), []plan.Row{{
		"name":            "Alice",
		"salary":          int64(1200),
		"department.name": "R&D",
		"addr.city":       "Berlin",
	}}, shape)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, employeeView{
		Name:       "Alice",
		Salary:     1200,
		Department: "R&D",
		Address:    address{City: "Berlin"},
	}, views[0])
}

func TestMapper_Immutable(t *testing.T) {
	moneyShape := NewShape("money").
		Field("amount").
		Field("currency").
		Immutable(func(args ...any) (any, error) {
			return money{amount: args[0].(float64), currency: args[1].(string)}, nil
		}).
		MustBuild()
	shape := NewShape("payslip").
		Field("name").
		Nested("pay", "salary", moneyShape).
		Immutable(func(args ...any) (any, error) {
			return payslip{name: args[0].(string), pay: args[1].(money)}, nil
		}).
		MustBuild()

	v, err := NewMapper().Map(plan.Row{
		"name":            "Alice",
		"salary.amount":   10.5,
		"salary.currency": "EUR",
	}, shape)
	require.NoError(t, err)
	assert.Equal(t, payslip{name: "Alice", pay: money{10.5, "EUR"}}, v)
}

func TestMapper_ImmutableReportsEveryMissingPiece(t *testing.T) {
	moneyShape := NewShape("money").
		Field("amount").
		Field("currency").
		Immutable(func(args ...any) (any, error) { return nil, nil }).
		MustBuild()
	shape := NewShape("payslip").
		Field("name").
		Field("grade").
		Nested("pay", "salary", moneyShape).
		Nested("bonus", "", moneyShape).
		Immutable(func(args ...any) (any, error) { return nil, nil }).
		MustBuild()

	_, err := NewMapper().Map(plan.Row{"name": "Alice", "salary.amount": 1.0}, shape)
	require.Error(t, err)
	assert.True(t, errors.Is(err, s.ErrProjectionConstruction))

	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	// grade, bonus and the nested currency failure
	assert.Len(t, merr.Errors, 3)
}

func TestMapper_ConstructorFailure(t *testing.T) {
	shape := NewShape("x").Field("a").Immutable(func(args ...any) (any, error) {
		return nil, errors.New("negative")
	}).MustBuild()
	_, err := NewMapper().Map(plan.Row{"a": -1}, shape)
	assert.True(t, errors.Is(err, s.ErrProjectionConstruction))
}

func TestMapper_RoundTrip(t *testing.T) {
	original := plan.Row{"name": "Alice", "salary": 1200.0, "city": "Berlin"}
	project := plan.ProjectStage{Fields: []plan.ProjectField{
		{Alias: "name", Path: "name"},
		{Alias: "salary", Path: "salary"},
	}}
	shape := NewShape("subset").Field("name").Field("salary").MustBuild()

	v, err := NewMapper().Map(plan.Project(original, project), shape)
	require.NoError(t, err)
	assert.Equal(t, RecordTarget{"name": original["name"], "salary": original["salary"]}, v)
}

func TestBuilder_Invalid(t *testing.T) {
	_, err := NewShape("x").Field("a").Field("a").Build()
	assert.True(t, errors.Is(err, s.ErrProjectionConstruction))

	_, err = NewShape("x").Field("a").Nested("a", "", addressShape()).Build()
	assert.True(t, errors.Is(err, s.ErrProjectionConstruction))

	_, err = NewShape("x").Nested("b", "", nil).Build()
	assert.True(t, errors.Is(err, s.ErrProjectionConstruction))

	_, err = NewShape("x").Field("a").Immutable(nil).Build()
	assert.True(t, errors.Is(err, s.ErrProjectionConstruction))
}

func TestPartition_LongestPrefixWins(t *testing.T) {
	inner := NewShape("inner").Field("x").MustBuild()
	shape := NewShape("outer").
		Nested("a", "a", NewShape("a").Field("x").MustBuild()).
		Nested("ab", "a.b", inner).
		MustBuild()

	v, err := NewMapper().Map(plan.Row{"a.x": 1, "a.b.x": 2}, shape)
	require.NoError(t, err)
	assert.Equal(t, RecordTarget{
		"a":  RecordTarget{"x": 1},
		"ab": RecordTarget{"x": 2},
	}, v)
}
