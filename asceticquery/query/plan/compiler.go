package plan

import (
	"fmt"

	"github.com/oklog/ulid/v2"

	query "github.com/krew-solutions/ascetic-query-go/asceticquery/query/domain"
	"github.com/krew-solutions/ascetic-query-go/asceticquery/query/schema"
	s "github.com/krew-solutions/ascetic-query-go/asceticquery/specification/domain"
	"github.com/krew-solutions/ascetic-query-go/asceticquery/specification/domain/operators"
)

const CountField = "count"

type CompilerOption func(*Compiler)

// WithCapabilities restricts the operators a plan may use to what the
// target backend implements.
func WithCapabilities(caps operators.Capabilities) CompilerOption {
	return func(c *Compiler) {
		c.caps = caps
	}
}

// Compiler turns a QuerySpec into a Plan. It holds no per-query state and
// is safe for concurrent use.
type Compiler struct {
	catalog *schema.Catalog
	caps    operators.Capabilities
}

func NewCompiler(catalog *schema.Catalog, opts ...CompilerOption) *Compiler {
	c := &Compiler{
		catalog: catalog,
		caps:    operators.AllOperators(operators.BackendMemory),
	}
	for i := range opts {
		opts[i](c)
	}
	return c
}

func (c *Compiler) Capabilities() operators.Capabilities {
	return c.caps
}

// Compile assembles lookups, match, distinct, group, having, sort, project,
// skip and limit, in that order.
func (c *Compiler) Compile(root string, spec query.QuerySpec) (*Plan, error) {
	return c.compile(root, spec, false)
}

// CompileCount keeps the stages up to having and counts their output.
func (c *Compiler) CompileCount(root string, spec query.QuerySpec) (*Plan, error) {
	return c.compile(root, spec, true)
}

func (c *Compiler) compile(root string, spec query.QuerySpec, countOnly bool) (*Plan, error) {
	entity, ok := c.catalog.Entity(root)
	if !ok {
		return nil, s.Unresolvable(root, "unknown root entity")
	}
	if err := spec.Page.Validate(); err != nil {
		return nil, err
	}
	where, err := s.Build(spec.Where)
	if err != nil {
		return nil, err
	}
	having, err := s.Build(spec.Having)
	if err != nil {
		return nil, err
	}

	a := &assembly{
		spec:     spec,
		compiler: c,
		root:     entity,
		where:    where,
		having:   having,
		accs:     newAccumulators(),
		aliases:  make(map[string]Accumulator),
	}
	if err := a.parseSelection(); err != nil {
		return nil, err
	}
	if err := a.resolve(); err != nil {
		return nil, err
	}
	if err := a.aggregate(); err != nil {
		return nil, err
	}
	p := &Plan{
		ID:        ulid.Make(),
		Root:      entity,
		Fields:    a.fields,
		CountOnly: countOnly,
	}
	if err := a.assemble(p); err != nil {
		return nil, err
	}
	return p, nil
}

type selected struct {
	item      query.SelectItem
	path      string
	aggregate *query.AggregateExpression
}

type havingRef struct {
	raw       string
	path      string
	aggregate *query.AggregateExpression
}

// assembly is the per-call working state of Compile.
type assembly struct {
	spec     query.QuerySpec
	compiler *Compiler
	root     *schema.Entity
	where    s.Visitable
	having   s.Visitable

	selection  []selected
	havingRefs []havingRef
	grouped    bool

	resolution *Resolution
	fields     map[string]FieldRef
	accs       *accumulators
	aliases    map[string]Accumulator
	keys       []GroupKey
}

func (a *assembly) parseSelection() error {
	names := make(map[string]bool)
	for _, item := range a.spec.Select {
		name := item.Name()
		if name == "" {
			return s.Malformed("selection item has neither source nor alias")
		}
		if names[name] {
			return s.NewQueryError(s.ErrMalformedExpression, item.Source, fmt.Sprintf("duplicate selection alias %q", name))
		}
		names[name] = true
		expr, ok, err := query.ParseAggregate(item.Source)
		if err != nil {
			return err
		}
		sel := selected{item: item, path: item.Source}
		if ok {
			sel.aggregate = &expr
			sel.path = expr.Operand
			a.grouped = true
		}
		a.selection = append(a.selection, sel)
	}

	for _, n := range s.Predicates(a.having) {
		expr, ok, err := query.ParseAggregate(n.Field())
		if err != nil {
			return err
		}
		ref := havingRef{raw: n.Field(), path: n.Field()}
		if ok {
			ref.aggregate = &expr
			ref.path = expr.Operand
			a.grouped = true
		}
		a.havingRefs = append(a.havingRefs, ref)
	}
	if len(a.spec.GroupBy) > 0 {
		a.grouped = true
	}
	if len(a.havingRefs) > 0 && !a.grouped {
		return s.Malformed("having needs grouping or an aggregate")
	}
	return nil
}

func (a *assembly) noAggregate(raw, position string) error {
	if query.IsAggregate(raw) {
		return s.NewQueryError(s.ErrMalformedExpression, raw, "aggregate expressions are only valid in select and having, not in "+position)
	}
	return nil
}

// sortAlias reports whether an orderBy entry names an aggregate selection.
func (a *assembly) sortAlias(path string) bool {
	if !a.grouped {
		return false
	}
	for _, sel := range a.selection {
		if sel.aggregate != nil && sel.item.Name() == path {
			return true
		}
	}
	return false
}

func (a *assembly) resolve() error {
	var raws []string
	for _, n := range s.Predicates(a.where) {
		if err := a.noAggregate(n.Field(), "where"); err != nil {
			return err
		}
		raws = append(raws, n.Field())
	}
	for _, sel := range a.selection {
		raws = append(raws, sel.path)
	}
	for _, path := range a.spec.GroupBy {
		if err := a.noAggregate(path, "group by"); err != nil {
			return err
		}
		raws = append(raws, path)
	}
	for _, ref := range a.havingRefs {
		raws = append(raws, ref.path)
	}
	for _, o := range a.spec.OrderBy {
		if err := a.noAggregate(o.Path, "order by"); err != nil {
			return err
		}
		if a.sortAlias(o.Path) {
			continue
		}
		raws = append(raws, o.Path)
	}

	resolution, err := NewResolver(a.compiler.catalog, a.root).Resolve(raws)
	if err != nil {
		return err
	}
	a.resolution = resolution
	a.fields = resolution.Fields
	return nil
}

func (a *assembly) aggregate() error {
	if !a.grouped {
		return nil
	}
	for _, path := range a.spec.GroupBy {
		ref := a.fields[path]
		if isKey(a.keys, ref.Location) {
			continue
		}
		a.keys = append(a.keys, GroupKey{Path: ref.Location, Type: ref.Type})
	}
	for _, sel := range a.selection {
		if sel.aggregate == nil {
			if !isKey(a.keys, a.fields[sel.path].Location) {
				return s.Unresolvable(sel.path, "selected field is neither grouped nor aggregated")
			}
			continue
		}
		acc, err := a.accs.add(*sel.aggregate, a.fields[sel.path])
		if err != nil {
			return err
		}
		a.aliases[sel.item.Name()] = acc
	}
	for _, ref := range a.havingRefs {
		if ref.aggregate == nil {
			if !isKey(a.keys, a.fields[ref.path].Location) {
				return s.Unresolvable(ref.raw, "having refers to a field that is not grouped")
			}
			continue
		}
		acc, err := a.accs.add(*ref.aggregate, a.fields[ref.path])
		if err != nil {
			return err
		}
		expr := *ref.aggregate
		a.fields[ref.raw] = FieldRef{
			Raw:       ref.raw,
			Kind:      FieldAggregateKind,
			Location:  acc.Name,
			Type:      acc.ResultType,
			Aggregate: &expr,
		}
	}
	return nil
}

func isKey(keys []GroupKey, path string) bool {
	for _, k := range keys {
		if k.Path == path {
			return true
		}
	}
	return false
}

func (a *assembly) assemble(p *Plan) error {
	for _, l := range a.resolution.Lookups {
		p.Stages = append(p.Stages, l)
		if l.Edge.Multiplicity == schema.One {
			p.Stages = append(p.Stages,
				UnwindStage{Path: l.As, PreserveNullAndEmpty: true},
				RenameStage{From: l.As, To: l.Path},
			)
			continue
		}
		p.Stages = append(p.Stages, UnwindStage{Path: l.Path, PreserveNullAndEmpty: true})
	}

	if _, trivial := a.where.(s.TrueNode); !trivial {
		filter, err := a.typed(a.where)
		if err != nil {
			return err
		}
		p.Stages = append(p.Stages, MatchStage{Filter: filter})
	}

	if a.spec.Distinct {
		p.Stages = append(p.Stages, DistinctStage{Identity: a.root.IdentityField()})
	}

	if a.grouped {
		p.Stages = append(p.Stages, GroupStage{Keys: a.keys, Accumulators: a.accs.items})
	}

	if _, trivial := a.having.(s.TrueNode); !trivial {
		filter, err := a.typed(a.having)
		if err != nil {
			return err
		}
		p.Stages = append(p.Stages, HavingStage{Filter: filter})
	}

	if p.CountOnly {
		p.Stages = append(p.Stages, CountStage{As: CountField})
		return nil
	}

	if len(a.spec.OrderBy) > 0 {
		sortStage := SortStage{}
		for _, o := range a.spec.OrderBy {
			dir := o.Direction
			if dir == "" {
				dir = query.Ascending
			}
			key, err := a.sortPath(o.Path)
			if err != nil {
				return err
			}
			sortStage.Keys = append(sortStage.Keys, SortKey{Path: key, Direction: dir})
		}
		p.Stages = append(p.Stages, sortStage)
	}

	if project, ok := a.projection(); ok {
		p.Stages = append(p.Stages, project)
	}

	if size := a.spec.Page.Size; size != nil {
		if index := a.spec.Page.IndexOr(0); index > 0 {
			p.Stages = append(p.Stages, SkipStage{N: int64(index) * int64(*size)})
		}
		p.Stages = append(p.Stages, LimitStage{N: int64(*size)})
	}
	return nil
}

func (a *assembly) sortPath(path string) (string, error) {
	if acc, ok := a.aliases[path]; ok {
		return acc.Name, nil
	}
	ref := a.fields[path]
	if a.grouped && !isKey(a.keys, ref.Location) {
		return "", s.Unresolvable(path, "cannot order grouped rows by a field that is not grouped")
	}
	return ref.Location, nil
}

func (a *assembly) projection() (ProjectStage, bool) {
	var project ProjectStage
	if len(a.selection) == 0 {
		if !a.grouped {
			return project, false
		}
		for _, k := range a.keys {
			project.Fields = append(project.Fields, ProjectField{Alias: k.Path, Path: k.Path})
		}
		for _, acc := range a.accs.items {
			project.Fields = append(project.Fields, ProjectField{Alias: acc.Name, Path: acc.Name})
		}
		return project, true
	}
	for _, sel := range a.selection {
		path := a.fields[sel.path].Location
		if sel.aggregate != nil {
			path = a.aliases[sel.item.Name()].Name
		}
		project.Fields = append(project.Fields, ProjectField{Alias: sel.item.Name(), Path: path})
	}
	return project, true
}

// typed checks every leaf against the backend and converts its literals to
// the declared type of the field.
func (a *assembly) typed(exp s.Visitable) (s.Visitable, error) {
	caps := a.compiler.caps
	return s.Transform(exp, func(n s.PredicateNode) (s.PredicateNode, error) {
		op := n.Operator()
		ref, ok := a.fields[n.Field()]
		if !ok {
			return n, s.Unresolvable(n.Field(), "field was not resolved")
		}
		if !caps.Supports(op) {
			return n, s.Unsupported(n.Field(), op, fmt.Sprintf("not implemented by the %s backend", caps.Backend()))
		}
		switch {
		case op.IsStringMatch() && !ref.Type.IsString():
			return n, s.Unsupported(n.Field(), op, fmt.Sprintf("needs a string field, got %s", ref.Type))
		case op.IsOrdering() && !ref.Type.IsOrderable():
			return n, s.Unsupported(n.Field(), op, fmt.Sprintf("%s values are not ordered", ref.Type))
		}

		values := make([]any, len(n.Values()))
		for i, v := range n.Values() {
			converted, err := a.convert(ref, op, v)
			if err != nil {
				return n, err
			}
			values[i] = converted
		}
		return n.WithValues(values...), nil
	})
}

func (a *assembly) convert(ref FieldRef, op operators.Operator, v any) (any, error) {
	if op == operators.OperatorSpecified {
		b, err := s.ToBool(v)
		if err != nil {
			return nil, s.NewQueryError(s.ErrValueConversion, ref.Raw, "SPECIFIED takes a boolean").
				WithOperator(op).
				WithValue(v).
				WithCause(err)
		}
		return b, nil
	}
	if v == nil {
		if op.AcceptsMany() {
			return nil, nil
		}
		return nil, s.NewQueryError(s.ErrValueConversion, ref.Raw, "null is only comparable for equality").
			WithOperator(op).
			WithValue(v)
	}
	t := ref.Type
	if op.IsStringMatch() {
		t = schema.TypeString
	}
	converted, err := schema.Convert(ref.Raw, v, t)
	if err != nil {
		if qe, ok := err.(*s.QueryError); ok {
			qe.WithOperator(op)
		}
		return nil, err
	}
	return converted, nil
}
