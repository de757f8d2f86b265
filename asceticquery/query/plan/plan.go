package plan

import (
	"github.com/oklog/ulid/v2"

	query "github.com/krew-solutions/ascetic-query-go/asceticquery/query/domain"
	"github.com/krew-solutions/ascetic-query-go/asceticquery/query/schema"
	s "github.com/krew-solutions/ascetic-query-go/asceticquery/specification/domain"
)

// Row is one raw result record, keyed by field name or projection alias.
type Row = map[string]any

type StageKind string

const (
	StageLookup   StageKind = "lookup"
	StageUnwind   StageKind = "unwind"
	StageRename   StageKind = "rename"
	StageMatch    StageKind = "match"
	StageDistinct StageKind = "distinct"
	StageGroup    StageKind = "group"
	StageHaving   StageKind = "having"
	StageSort     StageKind = "sort"
	StageProject  StageKind = "project"
	StageSkip     StageKind = "skip"
	StageLimit    StageKind = "limit"
	StageCount    StageKind = "count"
)

type Stage interface {
	Kind() StageKind
}

// LookupStage left-outer joins the records referenced from LocalField.
// Unmatched parents are kept.
type LookupStage struct {
	Path       string
	As         string
	ParentPath string
	LocalField string
	Edge       schema.ReferenceEdge
	Target     *schema.Entity
}

func (LookupStage) Kind() StageKind { return StageLookup }

// UnwindStage flattens the array at Path into one row per element.
type UnwindStage struct {
	Path                 string
	PreserveNullAndEmpty bool
}

func (UnwindStage) Kind() StageKind { return StageUnwind }

// RenameStage moves a value to a new location, replacing what was there.
type RenameStage struct {
	From string
	To   string
}

func (RenameStage) Kind() StageKind { return StageRename }

type MatchStage struct {
	Filter s.Visitable
}

func (MatchStage) Kind() StageKind { return StageMatch }

// DistinctStage keeps the first row per root identity.
type DistinctStage struct {
	Identity string
}

func (DistinctStage) Kind() StageKind { return StageDistinct }

type GroupKey struct {
	Path string
	Type schema.ScalarType
}

type Accumulator struct {
	Name        string
	Func        query.AggregateFunc
	Operand     string
	OperandType schema.ScalarType
	ResultType  schema.ScalarType
}

// GroupStage emits one row per distinct key tuple. Keys land back on their
// paths, accumulators on their names. No keys means one group of all rows.
type GroupStage struct {
	Keys         []GroupKey
	Accumulators []Accumulator
}

func (GroupStage) Kind() StageKind { return StageGroup }

func (g GroupStage) IsKey(path string) bool {
	for _, k := range g.Keys {
		if k.Path == path {
			return true
		}
	}
	return false
}

type HavingStage struct {
	Filter s.Visitable
}

func (HavingStage) Kind() StageKind { return StageHaving }

type SortKey struct {
	Path      string
	Direction query.Direction
}

type SortStage struct {
	Keys []SortKey
}

func (SortStage) Kind() StageKind { return StageSort }

type ProjectField struct {
	Alias string
	Path  string
}

// ProjectStage reshapes rows to exactly Fields, in order.
type ProjectStage struct {
	Fields []ProjectField
}

func (ProjectStage) Kind() StageKind { return StageProject }

type SkipStage struct {
	N int64
}

func (SkipStage) Kind() StageKind { return StageSkip }

type LimitStage struct {
	N int64
}

func (LimitStage) Kind() StageKind { return StageLimit }

// CountStage replaces the rows with a single count under As.
type CountStage struct {
	As string
}

func (CountStage) Kind() StageKind { return StageCount }

type FieldKind int

const (
	FieldPathKind FieldKind = iota
	FieldAggregateKind
)

// FieldRef is the resolved form of a raw reference.
type FieldRef struct {
	Raw      string
	Kind     FieldKind
	Location string
	Type     schema.ScalarType
	LeftJoin bool
	// ParentLocation is where the record owning the terminal segment lives.
	ParentLocation    string
	ParentIsReference bool
	// References lists the lookup paths the field is reached through,
	// outermost first.
	References []string
	Aggregate  *query.AggregateExpression
}

// Plan is the ordered, backend-neutral pipeline for one query.
type Plan struct {
	ID        ulid.ULID
	Root      *schema.Entity
	Stages    []Stage
	Fields    map[string]FieldRef
	CountOnly bool
}

func (p *Plan) Field(raw string) (FieldRef, bool) {
	f, ok := p.Fields[raw]
	return f, ok
}

// Kinds lists stage kinds in pipeline order.
func (p *Plan) Kinds() []StageKind {
	result := make([]StageKind, len(p.Stages))
	for i, st := range p.Stages {
		result[i] = st.Kind()
	}
	return result
}

func (p *Plan) Lookups() []LookupStage {
	var result []LookupStage
	for _, st := range p.Stages {
		if l, ok := st.(LookupStage); ok {
			result = append(result, l)
		}
	}
	return result
}

// Lookup returns the lookup landing on path.
func (p *Plan) Lookup(path string) (LookupStage, bool) {
	for _, l := range p.Lookups() {
		if l.Path == path {
			return l, true
		}
	}
	return LookupStage{}, false
}

func (p *Plan) Group() (GroupStage, bool) {
	for _, st := range p.Stages {
		if g, ok := st.(GroupStage); ok {
			return g, true
		}
	}
	return GroupStage{}, false
}

func (p *Plan) Projection() (ProjectStage, bool) {
	for _, st := range p.Stages {
		if pr, ok := st.(ProjectStage); ok {
			return pr, true
		}
	}
	return ProjectStage{}, false
}

// Accumulator looks an accumulator up by name.
func (p *Plan) Accumulator(name string) (Accumulator, bool) {
	g, ok := p.Group()
	if !ok {
		return Accumulator{}, false
	}
	for _, a := range g.Accumulators {
		if a.Name == name {
			return a, true
		}
	}
	return Accumulator{}, false
}
