package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/pkg/errors"
	"github.com/spf13/cast"

	query "github.com/krew-solutions/ascetic-query-go/asceticquery/query/domain"
	"github.com/krew-solutions/ascetic-query-go/asceticquery/query/plan"
	"github.com/krew-solutions/ascetic-query-go/asceticquery/query/schema"
	s "github.com/krew-solutions/ascetic-query-go/asceticquery/specification/domain"
	"github.com/krew-solutions/ascetic-query-go/asceticquery/specification/domain/operators"
)

// Executor runs plans against a Store. It is the reference semantics the
// store-backed executors are compared with.
type Executor struct {
	store    *Store
	registry *operators.OperatorRegistry
}

func NewExecutor(store *Store, registry *operators.OperatorRegistry) *Executor {
	return &Executor{
		store:    store,
		registry: registry,
	}
}

func (e *Executor) Capabilities() operators.Capabilities {
	return operators.AllOperators(operators.BackendMemory)
}

func (e *Executor) Find(ctx context.Context, p *plan.Plan) ([]plan.Row, error) {
	return e.run(ctx, p)
}

func (e *Executor) Count(ctx context.Context, p *plan.Plan) (int64, error) {
	rows, err := e.run(ctx, p)
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

func (e *Executor) run(ctx context.Context, p *plan.Plan) ([]plan.Row, error) {
	return e.Apply(ctx, p, e.store.Collection(p.Root.Collection()), p.Stages)
}

// Apply runs stages of p over rows the caller already holds. Lookup stages
// read their targets from the store.
func (e *Executor) Apply(ctx context.Context, p *plan.Plan, rows []plan.Row, stages []plan.Stage) ([]plan.Row, error) {
	var err error
	for _, stage := range stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		switch st := stage.(type) {
		case plan.LookupStage:
			rows = e.lookup(rows, st)
		case plan.UnwindStage:
			rows = unwind(rows, st)
		case plan.RenameStage:
			rename(rows, st)
		case plan.MatchStage:
			rows, err = e.filter(rows, p, st.Filter)
		case plan.DistinctStage:
			rows = distinct(rows, st)
		case plan.GroupStage:
			rows, err = e.group(rows, st)
		case plan.HavingStage:
			rows, err = e.filter(rows, p, st.Filter)
		case plan.SortStage:
			e.sort(rows, st)
		case plan.ProjectStage:
			for i, row := range rows {
				rows[i] = plan.Project(row, st)
			}
		case plan.SkipStage:
			if st.N >= int64(len(rows)) {
				rows = nil
			} else {
				rows = rows[st.N:]
			}
		case plan.LimitStage:
			if st.N < int64(len(rows)) {
				rows = rows[:st.N]
			}
		case plan.CountStage:
			rows = []plan.Row{{st.As: int64(len(rows))}}
		default:
			return nil, errors.Errorf("unknown stage %T", stage)
		}
		if err != nil {
			return nil, err
		}
	}
	if rows == nil {
		rows = []plan.Row{}
	}
	return rows, nil
}

func (e *Executor) lookup(rows []plan.Row, st plan.LookupStage) []plan.Row {
	var targets []plan.Row
	if e.store != nil {
		targets = e.store.Collection(st.Target.Collection())
	}
	for _, row := range rows {
		local, _ := plan.Get(row, st.LocalField)
		matched := []any{}
		if local != nil {
			for _, target := range targets {
				foreign, _ := plan.Get(target, st.Edge.ForeignField)
				if e.matches(local, foreign) {
					matched = append(matched, plan.Clone(target))
				}
			}
		}
		plan.Set(row, st.As, matched)
	}
	return rows
}

// matches compares a local key (scalar or array of keys) with a foreign key.
func (e *Executor) matches(local, foreign any) bool {
	if foreign == nil {
		return false
	}
	if items, ok := local.([]any); ok {
		for _, item := range items {
			if e.matches(item, foreign) {
				return true
			}
		}
		return false
	}
	eq, err := e.registry.ExecBinary(local, operators.OperatorEqual, foreign)
	return err == nil && eq == true
}

func unwind(rows []plan.Row, st plan.UnwindStage) []plan.Row {
	result := make([]plan.Row, 0, len(rows))
	for _, row := range rows {
		v, ok := plan.Get(row, st.Path)
		items, isArray := v.([]any)
		switch {
		case ok && isArray && len(items) > 0:
			for _, item := range items {
				clone := plan.Clone(row)
				plan.Set(clone, st.Path, item)
				result = append(result, clone)
			}
		case !st.PreserveNullAndEmpty:
		case isArray:
			plan.Unset(row, st.Path)
			result = append(result, row)
		default:
			result = append(result, row)
		}
	}
	return result
}

func rename(rows []plan.Row, st plan.RenameStage) {
	for _, row := range rows {
		v, _ := plan.Get(row, st.From)
		plan.Unset(row, st.From)
		plan.Set(row, st.To, v)
	}
}

func (e *Executor) filter(rows []plan.Row, p *plan.Plan, filter s.Visitable) ([]plan.Row, error) {
	result := rows[:0]
	for _, row := range rows {
		ok, err := s.Evaluate(filter, rowContext{row: row, plan: p}, e.registry)
		if err != nil {
			return nil, err
		}
		if ok {
			result = append(result, row)
		}
	}
	return result, nil
}

// rowContext resolves raw field references through the plan and converts
// stored values to the declared field type.
type rowContext struct {
	row  plan.Row
	plan *plan.Plan
}

func (c rowContext) Get(field string) (any, error) {
	location := field
	ref, known := c.plan.Field(field)
	if known {
		location = ref.Location
	}
	v, ok := plan.Get(c.row, location)
	if !ok {
		return nil, s.ErrKeyNotFound
	}
	if !known || ref.Type == schema.TypeObject {
		return v, nil
	}
	if items, ok := v.([]any); ok {
		converted := make([]any, len(items))
		for i, item := range items {
			cv, err := schema.Convert(field, item, ref.Type)
			if err != nil {
				return nil, err
			}
			converted[i] = cv
		}
		return converted, nil
	}
	return schema.Convert(field, v, ref.Type)
}

func distinct(rows []plan.Row, st plan.DistinctStage) []plan.Row {
	seen := make(map[string]bool)
	result := rows[:0]
	for _, row := range rows {
		id, _ := plan.Get(row, st.Identity)
		key := valueKey(id)
		if seen[key] {
			continue
		}
		seen[key] = true
		result = append(result, row)
	}
	return result
}

func valueKey(v any) string {
	return fmt.Sprintf("%T:%v", v, v)
}

type group struct {
	key  []any
	rows []plan.Row
}

func (e *Executor) group(rows []plan.Row, st plan.GroupStage) ([]plan.Row, error) {
	var groups []*group
	index := make(map[string]*group)
	for _, row := range rows {
		key := make([]any, len(st.Keys))
		id := ""
		for i, k := range st.Keys {
			v, _ := plan.Get(row, k.Path)
			key[i] = v
			id += valueKey(v) + "|"
		}
		g, ok := index[id]
		if !ok {
			g = &group{key: key}
			index[id] = g
			groups = append(groups, g)
		}
		g.rows = append(g.rows, row)
	}
	if len(st.Keys) == 0 && len(groups) == 0 {
		groups = append(groups, &group{})
	}

	result := make([]plan.Row, 0, len(groups))
	for _, g := range groups {
		out := plan.Row{}
		for i, k := range st.Keys {
			plan.Set(out, k.Path, g.key[i])
		}
		for _, acc := range st.Accumulators {
			v, err := e.accumulate(g.rows, acc)
			if err != nil {
				return nil, err
			}
			out[acc.Name] = v
		}
		result = append(result, out)
	}
	return result, nil
}

func (e *Executor) accumulate(rows []plan.Row, acc plan.Accumulator) (any, error) {
	if acc.Func == query.AggregateCount {
		return int64(len(rows)), nil
	}
	var values []any
	for _, row := range rows {
		v, ok := plan.Get(row, acc.Operand)
		if !ok || v == nil {
			continue
		}
		if acc.OperandType != schema.TypeObject {
			cv, err := schema.Convert(acc.Operand, v, acc.OperandType)
			if err != nil {
				return nil, err
			}
			v = cv
		}
		values = append(values, v)
	}

	switch acc.Func {
	case query.AggregateCountDistinct:
		seen := make(map[string]bool)
		for _, v := range values {
			seen[valueKey(v)] = true
		}
		return int64(len(seen)), nil
	case query.AggregateSum:
		if acc.ResultType == schema.TypeInt {
			var sum int64
			for _, v := range values {
				sum += cast.ToInt64(v)
			}
			return sum, nil
		}
		var sum float64
		for _, v := range values {
			sum += cast.ToFloat64(v)
		}
		return sum, nil
	case query.AggregateAvg:
		if len(values) == 0 {
			return nil, nil
		}
		var sum float64
		for _, v := range values {
			sum += cast.ToFloat64(v)
		}
		return sum / float64(len(values)), nil
	case query.AggregateMin, query.AggregateMax:
		var best any
		for _, v := range values {
			if best == nil {
				best = v
				continue
			}
			c, err := e.registry.Compare(v, best)
			if err != nil {
				return nil, s.NewQueryError(s.ErrTypeMismatchForAggregate, acc.Operand, "values are not comparable").WithCause(err)
			}
			if (acc.Func == query.AggregateMin && c < 0) || (acc.Func == query.AggregateMax && c > 0) {
				best = v
			}
		}
		return best, nil
	}
	return nil, errors.Errorf("unknown aggregate %s", acc.Func)
}

// sort orders rows by the keys; null sorts lowest.
func (e *Executor) sort(rows []plan.Row, st plan.SortStage) {
	sort.SliceStable(rows, func(i, j int) bool {
		for _, k := range st.Keys {
			a, _ := plan.Get(rows[i], k.Path)
			b, _ := plan.Get(rows[j], k.Path)
			c := e.compare(a, b)
			if c == 0 {
				continue
			}
			if k.Direction == query.Descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func (e *Executor) compare(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	c, err := e.registry.Compare(a, b)
	if err != nil {
		return compareStrings(fmt.Sprint(a), fmt.Sprint(b))
	}
	return c
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
