package specification

import (
	"fmt"

	"github.com/krew-solutions/ascetic-query-go/asceticquery/specification/domain/operators"
)

// Build turns a flat criterion list into an expression tree. Criteria
// between OR markers form AND-groups; the groups are ORed. A group marker
// recurses into its nested list, and an empty nested list yields TRUE.
func Build(filter FilterSpecification) (Visitable, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if len(filter) == 0 {
		return True(), nil
	}

	var alternatives []Visitable
	var conjunction []Visitable
	flush := func() {
		alternatives = append(alternatives, conjoin(conjunction))
		conjunction = nil
	}

	for _, c := range filter {
		switch c.Operator {
		case operators.OperatorOr:
			flush()
		case operators.OperatorGroup:
			inner, err := c.nested()
			if err != nil {
				return nil, err
			}
			node, err := Build(inner)
			if err != nil {
				return nil, err
			}
			conjunction = append(conjunction, node)
		default:
			node, err := leaf(c)
			if err != nil {
				return nil, err
			}
			conjunction = append(conjunction, node)
		}
	}
	flush()

	if len(alternatives) == 1 {
		return alternatives[0], nil
	}
	return OrElse(alternatives...), nil
}

func conjoin(operands []Visitable) Visitable {
	if len(operands) == 1 {
		return operands[0]
	}
	return And(operands...)
}

func leaf(c Criterion) (PredicateNode, error) {
	op, ok := operators.Parse(string(c.Operator))
	if !ok {
		return PredicateNode{}, Unsupported(c.FieldPath, c.Operator, "unknown operator")
	}
	if c.FieldPath == "" {
		return PredicateNode{}, Malformed("criterion has no field path").WithOperator(op)
	}
	switch {
	case len(c.Values) == 0:
		return PredicateNode{}, NewQueryError(ErrMalformedExpression, c.FieldPath, "operator needs a value").
			WithOperator(op)
	case len(c.Values) > 1 && !op.AcceptsMany():
		return PredicateNode{}, NewQueryError(ErrMalformedExpression, c.FieldPath,
			fmt.Sprintf("operator takes one value, got %d", len(c.Values))).
			WithOperator(op).
			WithValue(c.Values)
	}
	values := make([]any, len(c.Values))
	copy(values, c.Values)
	return Predicate(c.FieldPath, op, values...), nil
}
