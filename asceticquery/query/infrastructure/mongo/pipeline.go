package mongo

import (
	"fmt"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/v2/bson"

	query "github.com/krew-solutions/ascetic-query-go/asceticquery/query/domain"
	"github.com/krew-solutions/ascetic-query-go/asceticquery/query/plan"
)

// Render turns a plan into an aggregation pipeline over the root
// collection.
func Render(p *plan.Plan) ([]bson.D, error) {
	var pipeline []bson.D
	projected := false
	for _, stage := range p.Stages {
		switch st := stage.(type) {
		case plan.LookupStage:
			pipeline = append(pipeline, bson.D{{Key: "$lookup", Value: bson.D{
				{Key: "from", Value: st.Target.Collection()},
				{Key: "localField", Value: st.LocalField},
				{Key: "foreignField", Value: st.Edge.ForeignField},
				{Key: "as", Value: st.As},
			}}})
		case plan.UnwindStage:
			pipeline = append(pipeline, bson.D{{Key: "$unwind", Value: bson.D{
				{Key: "path", Value: "$" + st.Path},
				{Key: "preserveNullAndEmptyArrays", Value: st.PreserveNullAndEmpty},
			}}})
		case plan.RenameStage:
			pipeline = append(pipeline,
				bson.D{{Key: "$set", Value: bson.D{{Key: st.To, Value: ifNull(st.From)}}}},
				bson.D{{Key: "$unset", Value: st.From}},
			)
		case plan.MatchStage:
			filter, err := Compile(st.Filter, p.Field)
			if err != nil {
				return nil, err
			}
			pipeline = append(pipeline, bson.D{{Key: "$match", Value: filter}})
		case plan.DistinctStage:
			pipeline = append(pipeline,
				bson.D{{Key: "$group", Value: bson.D{
					{Key: "_id", Value: "$" + st.Identity},
					{Key: "doc", Value: bson.D{{Key: "$first", Value: "$$ROOT"}}},
				}}},
				bson.D{{Key: "$replaceRoot", Value: bson.D{{Key: "newRoot", Value: "$doc"}}}},
			)
		case plan.GroupStage:
			stages, err := group(st)
			if err != nil {
				return nil, err
			}
			pipeline = append(pipeline, stages...)
		case plan.HavingStage:
			filter, err := Compile(st.Filter, p.Field)
			if err != nil {
				return nil, err
			}
			pipeline = append(pipeline, bson.D{{Key: "$match", Value: filter}})
		case plan.SortStage:
			keys := bson.D{}
			for _, k := range st.Keys {
				dir := 1
				if k.Direction == query.Descending {
					dir = -1
				}
				keys = append(keys, bson.E{Key: k.Path, Value: dir})
			}
			pipeline = append(pipeline, bson.D{{Key: "$sort", Value: keys}})
		case plan.ProjectStage:
			fields := bson.D{{Key: "_id", Value: 0}}
			for _, f := range st.Fields {
				fields = append(fields, bson.E{Key: f.Alias, Value: ifNull(f.Path)})
			}
			pipeline = append(pipeline, bson.D{{Key: "$project", Value: fields}})
			projected = true
		case plan.SkipStage:
			pipeline = append(pipeline, bson.D{{Key: "$skip", Value: st.N}})
		case plan.LimitStage:
			pipeline = append(pipeline, bson.D{{Key: "$limit", Value: st.N}})
		case plan.CountStage:
			pipeline = append(pipeline, bson.D{{Key: "$count", Value: st.As}})
			projected = true
		default:
			return nil, errors.Errorf("unknown stage %T", stage)
		}
	}
	if !projected && p.Root.IdentityField() != "_id" {
		pipeline = append(pipeline, bson.D{{Key: "$unset", Value: "_id"}})
	}
	return pipeline, nil
}

func ifNull(path string) bson.D {
	return bson.D{{Key: "$ifNull", Value: bson.A{"$" + path, nil}}}
}

// group emits $group with the keys under _id.kN, then moves the keys back
// to their paths. A group without keys yields one row even when no record
// reaches it.
func group(st plan.GroupStage) ([]bson.D, error) {
	var id any
	if len(st.Keys) > 0 {
		keys := bson.D{}
		for i, k := range st.Keys {
			keys = append(keys, bson.E{Key: fmt.Sprintf("k%d", i), Value: "$" + k.Path})
		}
		id = keys
	}
	spec := bson.D{{Key: "_id", Value: id}}
	var finish bson.D
	empty := bson.D{}
	for _, acc := range st.Accumulators {
		operand := "$" + acc.Operand
		switch acc.Func {
		case query.AggregateCount:
			spec = append(spec, bson.E{Key: acc.Name, Value: bson.D{{Key: "$sum", Value: 1}}})
			empty = append(empty, bson.E{Key: acc.Name, Value: 0})
		case query.AggregateCountDistinct:
			spec = append(spec, bson.E{Key: acc.Name, Value: bson.D{{Key: "$addToSet", Value: operand}}})
			finish = append(finish, bson.E{Key: acc.Name, Value: bson.D{{Key: "$size", Value: bson.D{{Key: "$filter", Value: bson.D{
				{Key: "input", Value: "$" + acc.Name},
				{Key: "cond", Value: bson.D{{Key: "$ne", Value: bson.A{"$$this", nil}}}},
			}}}}}})
			empty = append(empty, bson.E{Key: acc.Name, Value: 0})
		case query.AggregateSum:
			spec = append(spec, bson.E{Key: acc.Name, Value: bson.D{{Key: "$sum", Value: operand}}})
			empty = append(empty, bson.E{Key: acc.Name, Value: 0})
		case query.AggregateAvg, query.AggregateMin, query.AggregateMax:
			spec = append(spec, bson.E{Key: acc.Name, Value: bson.D{{Key: "$" + string(acc.Func), Value: operand}}})
			empty = append(empty, bson.E{Key: acc.Name, Value: nil})
		default:
			return nil, errors.Errorf("unknown aggregate %s", acc.Func)
		}
	}

	stages := []bson.D{{{Key: "$group", Value: spec}}}
	if len(st.Keys) == 0 {
		orEmpty := bson.D{{Key: "$cond", Value: bson.A{
			bson.D{{Key: "$eq", Value: bson.A{bson.D{{Key: "$size", Value: "$rows"}}, 0}}},
			bson.A{empty},
			"$rows",
		}}}
		stages = []bson.D{
			{{Key: "$facet", Value: bson.D{{Key: "rows", Value: bson.A{bson.D{{Key: "$group", Value: spec}}}}}}},
			{{Key: "$project", Value: bson.D{{Key: "rows", Value: orEmpty}}}},
			{{Key: "$unwind", Value: "$rows"}},
			{{Key: "$replaceRoot", Value: bson.D{{Key: "newRoot", Value: "$rows"}}}},
		}
	}
	for i, k := range st.Keys {
		finish = append(finish, bson.E{Key: k.Path, Value: fmt.Sprintf("$_id.k%d", i)})
	}
	if len(finish) > 0 {
		stages = append(stages, bson.D{{Key: "$set", Value: finish}})
	}
	return append(stages, bson.D{{Key: "$unset", Value: "_id"}}), nil
}
