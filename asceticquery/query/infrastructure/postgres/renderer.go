package postgres

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	query "github.com/krew-solutions/ascetic-query-go/asceticquery/query/domain"
	"github.com/krew-solutions/ascetic-query-go/asceticquery/query/plan"
	"github.com/krew-solutions/ascetic-query-go/asceticquery/query/schema"
	s "github.com/krew-solutions/ascetic-query-go/asceticquery/specification/domain"
)

// Query is a rendered statement.
type Query struct {
	SQL    string
	Params []any
	// Columns are the output keys in select order.
	Columns []string
	// Nested is set when Columns are paths of a nested record rather than
	// flat projection aliases.
	Nested bool
}

type Renderer struct {
	schema *SchemaRegistry
}

func NewRenderer(schema *SchemaRegistry) *Renderer {
	if schema == nil {
		schema = NewSchemaRegistry()
	}
	return &Renderer{schema: schema}
}

// Render turns a plan into one SELECT. Lookups become LEFT JOINs, so a
// to-many join yields a row per related record.
func (r *Renderer) Render(p *plan.Plan) (Query, error) {
	st := newStatement(r.schema, p)
	if err := st.join(); err != nil {
		return Query{}, err
	}
	if err := st.filter(); err != nil {
		return Query{}, err
	}

	q := Query{}
	var selectList []string
	if p.CountOnly {
		switch {
		case st.group != nil && len(st.group.Keys) == 0:
			// one implicit group, removed when having rejects it
			selectList = []string{"COUNT(*)"}
		case st.group != nil:
			keys, err := st.groupKeys()
			if err != nil {
				return Query{}, err
			}
			selectList = keys
		default:
			selectList = []string{"1"}
		}
	} else {
		columns, nested, err := st.selection()
		if err != nil {
			return Query{}, err
		}
		selectList = columns
		q.Nested = nested
		for _, c := range columns {
			q.Columns = append(q.Columns, st.outputs[c])
		}
	}

	tail, err := st.tail()
	if err != nil {
		return Query{}, err
	}
	sql := "SELECT " + strings.Join(selectList, ", ") + " FROM " + st.source() + tail
	if p.CountOnly {
		sql = fmt.Sprintf("SELECT COUNT(*) AS %s FROM (%s) AS c", quote(st.count), sql)
		q.Columns = []string{st.count}
	}
	q.SQL = sql
	q.Params = st.params
	return q, nil
}

type statement struct {
	registry *SchemaRegistry
	plan     *plan.Plan

	rootAlias string
	aliases   map[string]string
	targets   map[string]*schema.Entity
	joins     []string
	where     string
	params    []any

	distinct bool
	group    *plan.GroupStage
	having   s.Visitable
	sort     *plan.SortStage
	project  *plan.ProjectStage
	skip     int64
	limit    int64
	count    string

	// inner holds the expressions a DISTINCT ON subquery exposes as __cN.
	inner   []string
	outputs map[string]string
}

func newStatement(registry *SchemaRegistry, p *plan.Plan) *statement {
	st := &statement{
		registry:  registry,
		plan:      p,
		rootAlias: registry.AliasBase(p.Root) + "_0",
		aliases:   make(map[string]string),
		targets:   make(map[string]*schema.Entity),
		limit:     -1,
		outputs:   make(map[string]string),
	}
	for _, stage := range p.Stages {
		switch stage := stage.(type) {
		case plan.DistinctStage:
			st.distinct = true
		case plan.GroupStage:
			st.group = &stage
		case plan.HavingStage:
			st.having = stage.Filter
		case plan.SortStage:
			st.sort = &stage
		case plan.ProjectStage:
			st.project = &stage
		case plan.SkipStage:
			st.skip = stage.N
		case plan.LimitStage:
			st.limit = stage.N
		case plan.CountStage:
			st.count = stage.As
		}
	}
	return st
}

func (st *statement) join() error {
	for i, l := range st.plan.Lookups() {
		alias := fmt.Sprintf("%s_%d", st.registry.AliasBase(l.Target), i+1)
		keyType := schema.TypeAny
		if f, ok := l.Target.Field(l.Edge.ForeignField); ok {
			keyType = f.Type
		}
		local, err := st.expr(l.LocalField, keyType)
		if err != nil {
			return err
		}
		foreign := alias + "." + st.registry.Column(l.Target, l.Edge.ForeignField)
		condition := foreign + " = " + local
		if l.Edge.LocalArray {
			condition = foreign + " = ANY(" + local + ")"
		}
		st.joins = append(st.joins, fmt.Sprintf("LEFT JOIN %s AS %s ON %s", st.registry.Table(l.Target), alias, condition))
		st.aliases[l.Path] = alias
		st.targets[l.Path] = l.Target
	}
	return nil
}

func (st *statement) filter() error {
	for _, stage := range st.plan.Stages {
		m, ok := stage.(plan.MatchStage)
		if !ok {
			continue
		}
		sql, params, err := Compile(m.Filter, st.plan.Field, scope{st: st}, PlaceholderIndex(len(st.params)))
		if err != nil {
			return err
		}
		st.where = sql
		st.params = append(st.params, params...)
	}
	return nil
}

func (st *statement) groupKeys() ([]string, error) {
	var keys []string
	for _, k := range st.group.Keys {
		expr, err := st.expr(k.Path, k.Type)
		if err != nil {
			return nil, err
		}
		keys = append(keys, st.out(expr))
	}
	return keys, nil
}

// selection returns the select list. Without a projection the root entity
// columns are selected along with each joined record as JSON.
func (st *statement) selection() ([]string, bool, error) {
	var columns []string
	add := func(expr, name string) {
		column := expr + " AS " + quote(name)
		st.outputs[column] = name
		columns = append(columns, column)
	}
	if st.project != nil {
		for _, f := range st.project.Fields {
			expr, err := st.output(f.Path)
			if err != nil {
				return nil, false, err
			}
			add(expr, f.Alias)
		}
		return columns, false, nil
	}
	for _, f := range st.plan.Root.Fields() {
		add(st.out(st.rootAlias+"."+st.registry.Column(st.plan.Root, f.Name)), f.Name)
	}
	for _, l := range st.plan.Lookups() {
		alias := st.aliases[l.Path]
		identity := alias + "." + st.registry.Column(l.Target, l.Target.IdentityField())
		add(st.out(fmt.Sprintf("CASE WHEN %s IS NULL THEN NULL ELSE to_jsonb(%s) END", identity, alias)), l.Path)
	}
	return columns, true, nil
}

// output resolves a post-grouping path: an accumulator or a field location.
func (st *statement) output(path string) (string, error) {
	if acc, ok := st.plan.Accumulator(path); ok && st.group != nil {
		return st.aggregate(acc)
	}
	expr, err := st.expr(path, st.typeOf(path))
	if err != nil {
		return "", err
	}
	return st.out(expr), nil
}

func (st *statement) aggregate(acc plan.Accumulator) (string, error) {
	if acc.Func == query.AggregateCount {
		return "COUNT(*)", nil
	}
	operand, err := st.expr(acc.Operand, acc.OperandType)
	if err != nil {
		return "", err
	}
	operand = st.out(operand)
	switch acc.Func {
	case query.AggregateCountDistinct:
		return "COUNT(DISTINCT " + operand + ")", nil
	case query.AggregateSum:
		return "COALESCE(SUM(" + operand + "), 0)" + sqlCast(acc.ResultType), nil
	case query.AggregateAvg:
		return "AVG(" + operand + ")" + sqlCast(acc.ResultType), nil
	case query.AggregateMin:
		return "MIN(" + operand + ")", nil
	case query.AggregateMax:
		return "MAX(" + operand + ")", nil
	}
	return "", errors.Errorf("unknown aggregate %s", acc.Func)
}

// tail renders everything after the FROM source.
func (st *statement) tail() (string, error) {
	var sql strings.Builder
	if st.group != nil && len(st.group.Keys) > 0 {
		keys, err := st.groupKeys()
		if err != nil {
			return "", err
		}
		sql.WriteString(" GROUP BY " + strings.Join(keys, ", "))
	}
	if st.having != nil {
		having, params, err := Compile(st.having, st.plan.Field, scope{st: st, after: true}, PlaceholderIndex(len(st.params)))
		if err != nil {
			return "", err
		}
		st.params = append(st.params, params...)
		sql.WriteString(" HAVING " + having)
	}
	if st.sort != nil {
		var keys []string
		for _, k := range st.sort.Keys {
			expr, err := st.output(k.Path)
			if err != nil {
				return "", err
			}
			if k.Direction == query.Descending {
				keys = append(keys, expr+" DESC NULLS LAST")
			} else {
				keys = append(keys, expr+" ASC NULLS FIRST")
			}
		}
		sql.WriteString(" ORDER BY " + strings.Join(keys, ", "))
	}
	if st.limit >= 0 {
		fmt.Fprintf(&sql, " LIMIT %d", st.limit)
	}
	if st.skip > 0 {
		fmt.Fprintf(&sql, " OFFSET %d", st.skip)
	}
	return sql.String(), nil
}

// source renders the FROM target: the joined tables, or the DISTINCT ON
// subquery over them that keeps one row per root record.
func (st *statement) source() string {
	from := st.registry.Table(st.plan.Root) + " AS " + st.rootAlias
	for _, j := range st.joins {
		from += " " + j
	}
	if st.where != "" {
		from += " WHERE " + st.where
	}
	if !st.distinct {
		return from
	}
	identity := st.rootAlias + "." + st.registry.Column(st.plan.Root, st.plan.Root.IdentityField())
	columns := []string{identity + " AS __c0"}
	for i, expr := range st.inner {
		columns = append(columns, fmt.Sprintf("%s AS __c%d", expr, i+1))
	}
	return fmt.Sprintf("(SELECT DISTINCT ON (%s) %s FROM %s ORDER BY %s) AS d", identity, strings.Join(columns, ", "), from, identity)
}

// out maps an expression over the joined tables to the scope the
// post-distinct clauses see.
func (st *statement) out(expr string) string {
	if !st.distinct {
		return expr
	}
	for i, known := range st.inner {
		if known == expr {
			return fmt.Sprintf("d.__c%d", i+1)
		}
	}
	st.inner = append(st.inner, expr)
	return fmt.Sprintf("d.__c%d", len(st.inner))
}

func (st *statement) typeOf(location string) schema.ScalarType {
	if st.group != nil {
		for _, k := range st.group.Keys {
			if k.Path == location {
				return k.Type
			}
		}
	}
	for _, ref := range st.plan.Fields {
		if ref.Kind == plan.FieldPathKind && ref.Location == location {
			return ref.Type
		}
	}
	return schema.TypeAny
}

// expr resolves a location against the joined tables. The part of the path
// below a column reads the JSONB document stored in it.
func (st *statement) expr(location string, t schema.ScalarType) (string, error) {
	alias, entity, rest := st.rootAlias, st.plan.Root, location
	best := ""
	for path := range st.aliases {
		if (location == path || strings.HasPrefix(location, path+s.PathSeparator)) && len(path) > len(best) {
			best = path
		}
	}
	if best != "" {
		alias, entity = st.aliases[best], st.targets[best]
		if location == best {
			return alias + "." + st.registry.Column(entity, entity.IdentityField()), nil
		}
		rest = location[len(best)+1:]
	}
	segments := strings.Split(rest, s.PathSeparator)
	if segments[0] == "" {
		return "", s.Unresolvable(location, "empty column")
	}
	column := alias + "." + st.registry.Column(entity, segments[0])
	if len(segments) == 1 {
		return column, nil
	}
	last := len(segments) - 1
	for _, segment := range segments[1:last] {
		column += "->" + literal(segment)
	}
	if t == schema.TypeObject {
		return column + "->" + literal(segments[last]), nil
	}
	column += "->>" + literal(segments[last])
	if c := sqlCast(t); c != "" {
		return "(" + column + ")" + c, nil
	}
	return "(" + column + ")", nil
}

func sqlCast(t schema.ScalarType) string {
	switch t {
	case schema.TypeInt:
		return "::bigint"
	case schema.TypeFloat:
		return "::double precision"
	case schema.TypeBool:
		return "::boolean"
	case schema.TypeTime:
		return "::timestamptz"
	case schema.TypeUUID:
		return "::uuid"
	}
	return ""
}

func literal(text string) string {
	return "'" + strings.ReplaceAll(text, "'", "''") + "'"
}

func quote(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// scope implements Columns for the clauses before (where) and after
// (having) the distinct subquery.
type scope struct {
	st    *statement
	after bool
}

func (c scope) wrap(expr string) string {
	if c.after {
		return c.st.out(expr)
	}
	return expr
}

func (c scope) Column(ref plan.FieldRef) (string, error) {
	if ref.Kind == plan.FieldAggregateKind {
		acc, ok := c.st.plan.Accumulator(ref.Location)
		if !ok {
			return "", s.Unresolvable(ref.Raw, "unknown accumulator")
		}
		return c.st.aggregate(acc)
	}
	expr, err := c.st.expr(ref.Location, ref.Type)
	if err != nil {
		return "", err
	}
	return c.wrap(expr), nil
}

func (c scope) Parent(ref plan.FieldRef) (string, bool, error) {
	if ref.ParentLocation == "" {
		return "", false, nil
	}
	expr, err := c.st.expr(ref.ParentLocation, schema.TypeObject)
	if err != nil {
		return "", false, err
	}
	return c.wrap(expr), true, nil
}
