package plan

import (
	"fmt"

	query "github.com/krew-solutions/ascetic-query-go/asceticquery/query/domain"
	"github.com/krew-solutions/ascetic-query-go/asceticquery/query/schema"
	s "github.com/krew-solutions/ascetic-query-go/asceticquery/specification/domain"
)

// accumulators collects the aggregate expressions of a query, one
// accumulator per distinct (function, operand location). Names derived from
// different operands that flatten to the same text get a numeric suffix.
type accumulators struct {
	items []Accumulator
	byKey map[accumulatorKey]int
	names map[string]bool
}

type accumulatorKey struct {
	fn       query.AggregateFunc
	location string
}

func newAccumulators() *accumulators {
	return &accumulators{
		byKey: make(map[accumulatorKey]int),
		names: make(map[string]bool),
	}
}

func (a *accumulators) add(expr query.AggregateExpression, operand FieldRef) (Accumulator, error) {
	key := accumulatorKey{fn: expr.Func, location: operand.Location}
	if i, ok := a.byKey[key]; ok {
		return a.items[i], nil
	}
	resultType, err := aggregateResultType(expr, operand)
	if err != nil {
		return Accumulator{}, err
	}
	name := expr.Name()
	for n := 2; a.names[name]; n++ {
		name = fmt.Sprintf("%s_%d", expr.Name(), n)
	}
	acc := Accumulator{
		Name:        name,
		Func:        expr.Func,
		Operand:     operand.Location,
		OperandType: operand.Type,
		ResultType:  resultType,
	}
	a.byKey[key] = len(a.items)
	a.names[name] = true
	a.items = append(a.items, acc)
	return acc, nil
}

func aggregateResultType(expr query.AggregateExpression, operand FieldRef) (schema.ScalarType, error) {
	switch expr.Func {
	case query.AggregateCount, query.AggregateCountDistinct:
		return schema.TypeInt, nil
	case query.AggregateSum:
		if !operand.Type.IsNumeric() {
			return "", typeMismatch(expr, operand, "numeric")
		}
		if operand.Type == schema.TypeInt {
			return schema.TypeInt, nil
		}
		return schema.TypeFloat, nil
	case query.AggregateAvg:
		if !operand.Type.IsNumeric() {
			return "", typeMismatch(expr, operand, "numeric")
		}
		return schema.TypeFloat, nil
	case query.AggregateMin, query.AggregateMax:
		if !operand.Type.IsOrderable() {
			return "", typeMismatch(expr, operand, "orderable")
		}
		return operand.Type, nil
	}
	return "", s.NewQueryError(s.ErrMalformedExpression, expr.String(), "unknown aggregate function")
}

func typeMismatch(expr query.AggregateExpression, operand FieldRef, want string) error {
	return s.NewQueryError(s.ErrTypeMismatchForAggregate, expr.String(),
		fmt.Sprintf("%s needs a %s operand, %s is %s", expr.Func, want, operand.Raw, operand.Type))
}
