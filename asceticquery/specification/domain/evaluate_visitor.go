package specification

import (
	"errors"

	"github.com/krew-solutions/ascetic-query-go/asceticquery/specification/domain/operators"
)

var ErrKeyNotFound = errors.New("key not found")

// Context exposes the values of one record. A missing key is reported with
// ErrKeyNotFound and is treated as null.
type Context interface {
	Get(field string) (any, error)
}

func NewEvaluateVisitor(context Context, registry *operators.OperatorRegistry) *EvaluateVisitor {
	return &EvaluateVisitor{
		Context:  context,
		registry: registry,
	}
}

// EvaluateVisitor decides whether the record behind Context satisfies an
// expression. A comparison against null never matches, except for the
// negated operators, which match records that lack the value.
type EvaluateVisitor struct {
	result   bool
	registry *operators.OperatorRegistry
	Context
}

func (v EvaluateVisitor) Result() bool {
	return v.result
}

func (v *EvaluateVisitor) VisitTrue(_ TrueNode) error {
	v.result = true
	return nil
}

func (v *EvaluateVisitor) VisitAnd(n AndNode) error {
	for _, operand := range n.Operands() {
		if err := operand.Accept(v); err != nil {
			return err
		}
		if !v.result {
			return nil
		}
	}
	v.result = true
	return nil
}

func (v *EvaluateVisitor) VisitOr(n OrNode) error {
	for _, operand := range n.Operands() {
		if err := operand.Accept(v); err != nil {
			return err
		}
		if v.result {
			return nil
		}
	}
	v.result = false
	return nil
}

func (v *EvaluateVisitor) VisitPredicate(n PredicateNode) error {
	value, err := v.field(n.Field())
	if err != nil {
		return err
	}

	switch op := n.Operator(); op {
	case operators.OperatorSpecified:
		return v.visitSpecified(n, value)
	case operators.OperatorNotEqual:
		matched, err := v.any(value, operators.OperatorEqual, n.Values())
		if err != nil {
			return err
		}
		v.result = !matched
	case operators.OperatorDoesNotContain:
		if value == nil {
			v.result = true
			return nil
		}
		matched, err := v.any(value, operators.OperatorContain, n.Values())
		if err != nil {
			return err
		}
		v.result = !matched
	default:
		matched, err := v.any(value, op, n.Values())
		if err != nil {
			return err
		}
		v.result = matched
	}
	return nil
}

func (v *EvaluateVisitor) visitSpecified(n PredicateNode, value any) error {
	want, err := ToBool(n.Value())
	if err != nil {
		return NewQueryError(ErrValueConversion, n.Field(), "SPECIFIED takes a boolean").
			WithOperator(n.Operator()).
			WithValue(n.Value()).
			WithCause(err)
	}
	present := value != nil
	if want {
		v.result = present
		return nil
	}
	path, err := ParseFieldPath(n.Field())
	if err == nil && path.LeftJoin() {
		parent, err := v.get(path.Parent().String())
		if err != nil {
			return err
		}
		v.result = parent != nil && !present
		return nil
	}
	v.result = !present
	return nil
}

// any reports whether value satisfies op against at least one operand. An
// array value matches when one of its elements does.
func (v *EvaluateVisitor) any(value any, op operators.Operator, operands []any) (bool, error) {
	if items, ok := value.([]any); ok {
		for _, item := range items {
			matched, err := v.any(item, op, operands)
			if err != nil || matched {
				return matched, err
			}
		}
		return false, nil
	}
	for _, operand := range operands {
		if value == nil || operand == nil {
			if op == operators.OperatorEqual && value == nil && operand == nil {
				return true, nil
			}
			continue
		}
		result, err := v.registry.ExecBinary(value, op, operand)
		if err != nil {
			return false, err
		}
		if result == true {
			return true, nil
		}
	}
	return false, nil
}

// field reads a predicate operand. A context that does not know the
// left-join form of a path is asked for its dotted location.
func (v *EvaluateVisitor) field(raw string) (any, error) {
	value, err := v.Context.Get(raw)
	if !errors.Is(err, ErrKeyNotFound) {
		return value, err
	}
	if path, perr := ParseFieldPath(raw); perr == nil && path.LeftJoin() {
		return v.get(path.String())
	}
	return nil, nil
}

func (v *EvaluateVisitor) get(field string) (any, error) {
	value, err := v.Context.Get(field)
	if errors.Is(err, ErrKeyNotFound) {
		return nil, nil
	}
	return value, err
}

// Evaluate is a shortcut for a single record.
func Evaluate(exp Visitable, context Context, registry *operators.OperatorRegistry) (bool, error) {
	v := NewEvaluateVisitor(context, registry)
	if err := exp.Accept(v); err != nil {
		return false, err
	}
	return v.Result(), nil
}
