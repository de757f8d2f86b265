package specification

import (
	"fmt"

	"github.com/krew-solutions/ascetic-query-go/asceticquery/specification/domain/operators"
)

// Criterion is one entry of a flat filter list: either a leaf predicate or
// a control marker (OR, group).
type Criterion struct {
	FieldPath string
	Operator  operators.Operator
	Values    []any
}

// FilterSpecification is an ordered criterion list. Adjacent criteria are
// ANDed; an OR marker splits the list into alternatives.
type FilterSpecification []Criterion

func Where(fieldPath string, op operators.Operator, values ...any) Criterion {
	return Criterion{
		FieldPath: fieldPath,
		Operator:  op,
		Values:    values,
	}
}

func Or() Criterion {
	return Criterion{Operator: operators.OperatorOr}
}

func Group(criteria ...Criterion) Criterion {
	return Criterion{
		Operator: operators.OperatorGroup,
		Values:   []any{FilterSpecification(criteria)},
	}
}

func (c Criterion) String() string {
	switch c.Operator {
	case operators.OperatorOr:
		return "OR"
	case operators.OperatorGroup:
		return fmt.Sprintf("(%v)", c.Values)
	}
	return fmt.Sprintf("%s %s %v", c.FieldPath, c.Operator, c.Values)
}

// nested extracts the inner list of a group criterion.
func (c Criterion) nested() (FilterSpecification, error) {
	switch len(c.Values) {
	case 0:
		return nil, nil
	case 1:
	default:
		return nil, Malformed(fmt.Sprintf("group takes one nested criterion list, got %d values", len(c.Values))).
			WithOperator(c.Operator)
	}
	switch inner := c.Values[0].(type) {
	case FilterSpecification:
		return inner, nil
	case []Criterion:
		return FilterSpecification(inner), nil
	case nil:
		return nil, nil
	}
	return nil, Malformed("group value is not a criterion list").
		WithOperator(c.Operator).
		WithValue(c.Values[0])
}

// Validate checks the OR marker placement.
func (f FilterSpecification) Validate() error {
	if len(f) == 0 {
		return nil
	}
	if f[0].Operator == operators.OperatorOr {
		return Malformed("OR marker cannot open a criterion list").WithOperator(operators.OperatorOr)
	}
	if f[len(f)-1].Operator == operators.OperatorOr {
		return Malformed("OR marker cannot close a criterion list").WithOperator(operators.OperatorOr)
	}
	for i := 1; i < len(f); i++ {
		if f[i].Operator == operators.OperatorOr && f[i-1].Operator == operators.OperatorOr {
			return Malformed("OR markers cannot be adjacent").WithOperator(operators.OperatorOr)
		}
	}
	return nil
}

// Paths returns every field path the list references, nested groups included,
// in order of appearance.
func (f FilterSpecification) Paths() ([]string, error) {
	var result []string
	for _, c := range f {
		switch c.Operator {
		case operators.OperatorOr:
		case operators.OperatorGroup:
			inner, err := c.nested()
			if err != nil {
				return nil, err
			}
			paths, err := inner.Paths()
			if err != nil {
				return nil, err
			}
			result = append(result, paths...)
		default:
			result = append(result, c.FieldPath)
		}
	}
	return result, nil
}
