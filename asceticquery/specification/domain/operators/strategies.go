package operators

import "sort"

type Backend string

const (
	BackendMemory     Backend = "memory"
	BackendDocument   Backend = "document"
	BackendRelational Backend = "relational"
	BackendSearch     Backend = "search"
)

// Capabilities is what a backend declares about itself so that unsupported
// operators are rejected while the plan is built, not at the round trip.
type Capabilities interface {
	Backend() Backend
	Supports(op Operator) bool
}

type strategyKey struct {
	backend Backend
	op      Operator
}

// StrategyTable is keyed by (backend, operator). H is the handler shape a
// renderer needs, e.g. a function emitting a bson filter or an SQL fragment.
type StrategyTable[H any] struct {
	handlers map[strategyKey]H
}

func NewStrategyTable[H any]() *StrategyTable[H] {
	return &StrategyTable[H]{
		handlers: make(map[strategyKey]H),
	}
}

func (t *StrategyTable[H]) Register(backend Backend, op Operator, handler H) *StrategyTable[H] {
	t.handlers[strategyKey{backend, op}] = handler
	return t
}

func (t *StrategyTable[H]) Lookup(backend Backend, op Operator) (H, bool) {
	h, ok := t.handlers[strategyKey{backend, op}]
	return h, ok
}

func (t *StrategyTable[H]) Supports(backend Backend, op Operator) bool {
	_, ok := t.handlers[strategyKey{backend, op}]
	return ok
}

// Operators returns the operators registered for backend, sorted.
func (t *StrategyTable[H]) Operators(backend Backend) []Operator {
	var result []Operator
	for key := range t.handlers {
		if key.backend == backend {
			result = append(result, key.op)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// Capabilities returns a view of the table bound to one backend.
func (t *StrategyTable[H]) Capabilities(backend Backend) Capabilities {
	return tableCapabilities[H]{table: t, backend: backend}
}

type tableCapabilities[H any] struct {
	table   *StrategyTable[H]
	backend Backend
}

func (c tableCapabilities[H]) Backend() Backend {
	return c.backend
}

func (c tableCapabilities[H]) Supports(op Operator) bool {
	return c.table.Supports(c.backend, op)
}

type allCapabilities struct {
	backend Backend
}

// AllOperators declares support for every predicate operator.
func AllOperators(backend Backend) Capabilities {
	return allCapabilities{backend}
}

func (c allCapabilities) Backend() Backend {
	return c.backend
}

func (c allCapabilities) Supports(op Operator) bool {
	for _, known := range predicateOperators {
		if op == known {
			return true
		}
	}
	return false
}
