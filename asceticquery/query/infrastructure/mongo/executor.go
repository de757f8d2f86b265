package mongo

import (
	"context"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/krew-solutions/ascetic-query-go/asceticquery/query/plan"
	"github.com/krew-solutions/ascetic-query-go/asceticquery/specification/domain/operators"
)

// Executor runs plans as aggregation pipelines on the root collection.
type Executor struct {
	db *mongodriver.Database
}

func NewExecutor(db *mongodriver.Database) *Executor {
	return &Executor{db: db}
}

func (e *Executor) Capabilities() operators.Capabilities {
	return Capabilities()
}

func (e *Executor) Find(ctx context.Context, p *plan.Plan) ([]plan.Row, error) {
	pipeline, err := Render(p)
	if err != nil {
		return nil, err
	}
	cursor, err := e.db.Collection(p.Root.Collection()).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, errors.Wrapf(err, "aggregate %s", p.Root.Collection())
	}
	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "read cursor")
	}
	project, projected := p.Projection()
	rows := make([]plan.Row, 0, len(docs))
	for _, doc := range docs {
		row := convert(doc).(map[string]any)
		if projected {
			row = plan.Project(row, plan.ProjectStage{Fields: aliases(project)})
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (e *Executor) Count(ctx context.Context, p *plan.Plan) (int64, error) {
	rows, err := e.Find(ctx, p)
	if err != nil {
		return 0, err
	}
	if !p.CountOnly {
		return int64(len(rows)), nil
	}
	// $count emits nothing for an empty input
	if len(rows) == 0 {
		return 0, nil
	}
	return cast.ToInt64E(rows[0][plan.CountField])
}

// aliases reads the projected document back by alias, so that dotted
// aliases nested by $project come out flat.
func aliases(project plan.ProjectStage) []plan.ProjectField {
	fields := make([]plan.ProjectField, len(project.Fields))
	for i, f := range project.Fields {
		fields[i] = plan.ProjectField{Alias: f.Alias, Path: f.Alias}
	}
	return fields
}

// convert turns decoded BSON into plain maps, slices and Go scalars.
func convert(v any) any {
	switch t := v.(type) {
	case bson.M:
		return convertMap(t)
	case map[string]any:
		return convertMap(t)
	case bson.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = convert(e.Value)
		}
		return m
	case bson.A:
		return convertSlice(t)
	case []any:
		return convertSlice(t)
	case bson.DateTime:
		return t.Time().UTC()
	case bson.ObjectID:
		return t.Hex()
	case int32:
		return int64(t)
	case bson.Null:
		return nil
	}
	return v
}

func convertMap(m map[string]any) map[string]any {
	result := make(map[string]any, len(m))
	for k, item := range m {
		result[k] = convert(item)
	}
	return result
}

func convertSlice(items []any) []any {
	result := make([]any, len(items))
	for i, item := range items {
		result[i] = convert(item)
	}
	return result
}
