package mongo

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	query "github.com/krew-solutions/ascetic-query-go/asceticquery/query/domain"
	"github.com/krew-solutions/ascetic-query-go/asceticquery/query/plan"
	s "github.com/krew-solutions/ascetic-query-go/asceticquery/specification/domain"
	"github.com/krew-solutions/ascetic-query-go/asceticquery/specification/domain/operators"
	"github.com/krew-solutions/ascetic-query-go/asceticquery/utils/testutils"
)

func compiler() *plan.Compiler {
	return plan.NewCompiler(testutils.EmployeeCatalog(), plan.WithCapabilities(Capabilities()))
}

func render(t *testing.T, spec query.QuerySpec) []bson.D {
	t.Helper()
	p, err := compiler().Compile("employee", spec)
	require.NoError(t, err)
	pipeline, err := Render(p)
	require.NoError(t, err)
	return pipeline
}

func extJSON(t *testing.T, pipeline []bson.D) string {
	t.Helper()
	data, err := bson.MarshalExtJSON(bson.D{{Key: "pipeline", Value: pipeline}}, false, false)
	require.NoError(t, err)
	return string(data)
}

// compact drops the layout whitespace of an expected document.
func compact(text string) string {
	return strings.Join(strings.Fields(text), "")
}

func match(t *testing.T, where s.FilterSpecification) bson.D {
	t.Helper()
	for _, stage := range render(t, query.QuerySpec{Where: where, Select: query.Selection{query.Field("id")}}) {
		if stage[0].Key == "$match" {
			return stage[0].Value.(bson.D)
		}
	}
	t.Fatal("no $match stage")
	return nil
}

func TestRender_LookupsFilterSortAndPage(t *testing.T) {
	pipeline := render(t, query.QuerySpec{
		Select:  query.Selection{query.Field("name"), query.FieldAs("department.name", "dept")},
		Where:   s.FilterSpecification{s.Where("department.company.name", operators.OperatorContain, "acme")},
		OrderBy: []query.Order{query.Desc("salary")},
		Page:    query.Paged(2, 10),
	})
	testutils.AssertTextEqual(t, compact(`{"pipeline":[
		{"$lookup":{"from":"departments","localField":"department_id","foreignField":"id","as":"__department"}},
		{"$unwind":{"path":"$__department","preserveNullAndEmptyArrays":true}},
		{"$set":{"department":{"$ifNull":["$__department",null]}}},
		{"$unset":"__department"},
		{"$lookup":{"from":"companies","localField":"department.company_id","foreignField":"id","as":"__department_company"}},
		{"$unwind":{"path":"$__department_company","preserveNullAndEmptyArrays":true}},
		{"$set":{"department.company":{"$ifNull":["$__department_company",null]}}},
		{"$unset":"__department_company"},
		{"$match":{"department.company.name":{"$regex":"acme","$options":"i"}}},
		{"$sort":{"salary":-1}},
		{"$project":{"_id":0,"name":{"$ifNull":["$name",null]},"dept":{"$ifNull":["$department.name",null]}}},
		{"$skip":20},
		{"$limit":10}
	]}`), extJSON(t, pipeline))
}

func TestRender_GroupHavingProject(t *testing.T) {
	pipeline := render(t, query.QuerySpec{
		Select: query.Selection{
			query.Field("city"),
			query.FieldAs("[Count]id", "n"),
			query.FieldAs("[Avg]salary", "mean"),
		},
		GroupBy: []string{"city"},
		Having:  s.FilterSpecification{s.Where("[Count]id", operators.OperatorGreaterThan, 1)},
	})
	testutils.AssertTextEqual(t, compact(`{"pipeline":[
		{"$group":{"_id":{"k0":"$city"},"count_id":{"$sum":1},"avg_salary":{"$avg":"$salary"}}},
		{"$set":{"city":"$_id.k0"}},
		{"$unset":"_id"},
		{"$match":{"count_id":{"$gt":1}}},
		{"$project":{"_id":0,"city":{"$ifNull":["$city",null]},"n":{"$ifNull":["$count_id",null]},"mean":{"$ifNull":["$avg_salary",null]}}}
	]}`), extJSON(t, pipeline))
}

func TestRender_KeylessGroupKeepsOneRow(t *testing.T) {
	pipeline := render(t, query.QuerySpec{
		Select: query.Selection{query.FieldAs("[CountDistinct]city", "cities")},
	})
	testutils.AssertTextEqual(t, compact(`{"pipeline":[
		{"$facet":{"rows":[{"$group":{"_id":null,"countdistinct_city":{"$addToSet":"$city"}}}]}},
		{"$project":{"rows":{"$cond":[{"$eq":[{"$size":"$rows"},0]},[{"countdistinct_city":0}],"$rows"]}}},
		{"$unwind":"$rows"},
		{"$replaceRoot":{"newRoot":"$rows"}},
		{"$set":{"countdistinct_city":{"$size":{"$filter":{"input":"$countdistinct_city","cond":{"$ne":["$$this",null]}}}}}},
		{"$unset":"_id"},
		{"$project":{"_id":0,"cities":{"$ifNull":["$countdistinct_city",null]}}}
	]}`), extJSON(t, pipeline))
}

func TestRender_DistinctOverToMany(t *testing.T) {
	pipeline := render(t, query.QuerySpec{
		Select:   query.Selection{query.Field("id")},
		Where:    s.FilterSpecification{s.Where("projects.title", operators.OperatorStartWith, "a.b")},
		Distinct: true,
	})
	testutils.AssertTextEqual(t, compact(`{"pipeline":[
		{"$lookup":{"from":"projects","localField":"id","foreignField":"employee_id","as":"projects"}},
		{"$unwind":{"path":"$projects","preserveNullAndEmptyArrays":true}},
		{"$match":{"projects.title":{"$regex":"^a\\.b","$options":"i"}}},
		{"$group":{"_id":"$id","doc":{"$first":"$$ROOT"}}},
		{"$replaceRoot":{"newRoot":"$doc"}},
		{"$project":{"_id":0,"id":{"$ifNull":["$id",null]}}}
	]}`), extJSON(t, pipeline))
}

func TestRender_CountOnly(t *testing.T) {
	p, err := compiler().CompileCount("employee", query.QuerySpec{
		Where: s.FilterSpecification{s.Where("city", operators.OperatorEqual, "Oslo")},
		Page:  query.Paged(3, 5),
	})
	require.NoError(t, err)
	pipeline, err := Render(p)
	require.NoError(t, err)
	testutils.AssertTextEqual(t, compact(`{"pipeline":[
		{"$match":{"city":{"$eq":"Oslo"}}},
		{"$count":"count"}
	]}`), extJSON(t, pipeline))
}

func TestRender_KeylessGroupCount(t *testing.T) {
	p, err := compiler().CompileCount("employee", query.QuerySpec{
		Select: query.Selection{query.FieldAs("[Sum]salary", "total"), query.FieldAs("[Min]hired", "first")},
	})
	require.NoError(t, err)
	pipeline, err := Render(p)
	require.NoError(t, err)
	testutils.AssertTextEqual(t, compact(`{"pipeline":[
		{"$facet":{"rows":[{"$group":{"_id":null,"sum_salary":{"$sum":"$salary"},"min_hired":{"$min":"$hired"}}}]}},
		{"$project":{"rows":{"$cond":[{"$eq":[{"$size":"$rows"},0]},[{"sum_salary":0,"min_hired":null}],"$rows"]}}},
		{"$unwind":"$rows"},
		{"$replaceRoot":{"newRoot":"$rows"}},
		{"$unset":"_id"},
		{"$count":"count"}
	]}`), extJSON(t, pipeline))
}

func TestRender_WithoutProjectionDropsObjectId(t *testing.T) {
	pipeline := render(t, query.QuerySpec{})
	assert.Equal(t, []bson.D{{{Key: "$unset", Value: "_id"}}}, pipeline)
}

func TestCompile_Filters(t *testing.T) {
	cases := []struct {
		name     string
		where    s.FilterSpecification
		expected bson.D
	}{
		{
			"equal",
			s.FilterSpecification{s.Where("city", operators.OperatorEqual, "Oslo")},
			bson.D{{Key: "city", Value: bson.D{{Key: "$eq", Value: "Oslo"}}}},
		},
		{
			"equal many",
			s.FilterSpecification{s.Where("city", operators.OperatorEqual, "Oslo", "Lisbon")},
			bson.D{{Key: "city", Value: bson.D{{Key: "$in", Value: bson.A{"Oslo", "Lisbon"}}}}},
		},
		{
			"not equal null",
			s.FilterSpecification{s.Where("nickname", operators.OperatorNotEqual, nil)},
			bson.D{{Key: "nickname", Value: bson.D{{Key: "$ne", Value: nil}}}},
		},
		{
			"not equal many",
			s.FilterSpecification{s.Where("city", operators.OperatorNotEqual, "Oslo", "Lisbon")},
			bson.D{{Key: "city", Value: bson.D{{Key: "$nin", Value: bson.A{"Oslo", "Lisbon"}}}}},
		},
		{
			"ordering converts to the field type",
			s.FilterSpecification{s.Where("id", operators.OperatorLessThanOrEqual, "7")},
			bson.D{{Key: "id", Value: bson.D{{Key: "$lte", Value: int64(7)}}}},
		},
		{
			"ends with",
			s.FilterSpecification{s.Where("name", operators.OperatorEndWith, "son")},
			bson.D{{Key: "name", Value: bson.D{{Key: "$regex", Value: "son$"}, {Key: "$options", Value: "i"}}}},
		},
		{
			"does not contain",
			s.FilterSpecification{s.Where("name", operators.OperatorDoesNotContain, "x")},
			bson.D{{Key: "name", Value: bson.D{{Key: "$not", Value: bson.D{{Key: "$regex", Value: "x"}, {Key: "$options", Value: "i"}}}}}},
		},
		{
			"specified",
			s.FilterSpecification{s.Where("nickname", operators.OperatorSpecified, true)},
			bson.D{{Key: "nickname", Value: bson.D{{Key: "$ne", Value: nil}}}},
		},
		{
			"not specified through an inner join",
			s.FilterSpecification{s.Where("department.head", operators.OperatorSpecified, false)},
			bson.D{{Key: "department.head", Value: bson.D{{Key: "$eq", Value: nil}}}},
		},
		{
			"not specified through a left join",
			s.FilterSpecification{s.Where("department<head", operators.OperatorSpecified, "no")},
			bson.D{{Key: "$and", Value: bson.A{
				bson.D{{Key: "department", Value: bson.D{{Key: "$ne", Value: nil}}}},
				bson.D{{Key: "department.head", Value: bson.D{{Key: "$eq", Value: nil}}}},
			}}},
		},
		{
			"groups",
			s.FilterSpecification{
				s.Group(s.Where("city", operators.OperatorEqual, "Oslo"), s.Or(), s.Where("city", operators.OperatorEqual, "Lisbon")),
				s.Where("active", operators.OperatorEqual, true),
			},
			bson.D{{Key: "$and", Value: bson.A{
				bson.D{{Key: "$or", Value: bson.A{
					bson.D{{Key: "city", Value: bson.D{{Key: "$eq", Value: "Oslo"}}}},
					bson.D{{Key: "city", Value: bson.D{{Key: "$eq", Value: "Lisbon"}}}},
				}}},
				bson.D{{Key: "active", Value: bson.D{{Key: "$eq", Value: true}}}},
			}}},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.expected, match(t, c.where))
		})
	}
}

func TestCompile_UnresolvedField(t *testing.T) {
	_, err := Compile(s.Predicate("city", operators.OperatorEqual, "Oslo"), func(string) (plan.FieldRef, bool) {
		return plan.FieldRef{}, false
	})
	assert.ErrorIs(t, err, s.ErrUnresolvableFieldPath)
}

func TestConvert(t *testing.T) {
	doc := bson.M{
		"id":   int32(3),
		"tags": bson.A{"a", int32(1)},
		"department": bson.D{
			{Key: "name", Value: "R&D"},
			{Key: "company", Value: bson.D{{Key: "id", Value: int64(9)}}},
		},
	}
	assert.Equal(t, map[string]any{
		"id":   int64(3),
		"tags": []any{"a", int64(1)},
		"department": map[string]any{
			"name":    "R&D",
			"company": map[string]any{"id": int64(9)},
		},
	}, convert(doc))
}
