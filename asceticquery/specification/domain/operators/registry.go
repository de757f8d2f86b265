package operators

import (
	"fmt"
	"reflect"
)

type BinaryOp func(left, right any) (any, error)

type binaryKey struct {
	left  reflect.Type
	op    Operator
	right reflect.Type
}

// OperatorRegistry maps (left type, operator, right type) to an in-memory
// implementation. It is an explicit value: build one with NewDefaultRegistry
// and pass it to whoever evaluates expressions.
type OperatorRegistry struct {
	binary map[binaryKey]BinaryOp
}

func NewOperatorRegistry() *OperatorRegistry {
	return &OperatorRegistry{
		binary: make(map[binaryKey]BinaryOp),
	}
}

func RegisterBinary[L, R any](reg *OperatorRegistry, op Operator, fn func(L, R) (any, error)) {
	var zeroL L
	var zeroR R
	key := binaryKey{
		left:  reflect.TypeOf(zeroL),
		op:    op,
		right: reflect.TypeOf(zeroR),
	}
	reg.binary[key] = func(left, right any) (any, error) {
		return fn(left.(L), right.(R))
	}
}

// ExecBinary executes a binary operator. A nil operand yields nil (unknown);
// callers decide how unknown folds into a match.
func (r *OperatorRegistry) ExecBinary(left any, op Operator, right any) (any, error) {
	if left == nil || right == nil {
		return nil, nil
	}
	fn, err := r.lookupBinary(left, op, right)
	if err != nil {
		return nil, err
	}
	return fn(left, right)
}

// Compare orders two non-nil values of the same kind: -1, 0 or 1.
func (r *OperatorRegistry) Compare(left, right any) (int, error) {
	lt, err := r.ExecBinary(left, OperatorLessThan, right)
	if err != nil {
		return 0, err
	}
	if lt == true {
		return -1, nil
	}
	eq, err := r.ExecBinary(left, OperatorEqual, right)
	if err != nil {
		return 0, err
	}
	if eq == true {
		return 0, nil
	}
	return 1, nil
}

func (r *OperatorRegistry) Supports(left any, op Operator, right any) bool {
	_, err := r.lookupBinary(left, op, right)
	return err == nil
}

func (r *OperatorRegistry) lookupBinary(left any, op Operator, right any) (BinaryOp, error) {
	key := binaryKey{
		left:  reflect.TypeOf(left),
		op:    op,
		right: reflect.TypeOf(right),
	}
	fn, ok := r.binary[key]
	if ok {
		return fn, nil
	}

	// Fallback: mixed numeric operands compare as float64
	if lf, ok := asFloat(left); ok {
		if rf, ok := asFloat(right); ok {
			if fn, ok := r.binary[binaryKey{floatType, op, floatType}]; ok {
				return func(_, _ any) (any, error) {
					return fn(lf, rf)
				}, nil
			}
		}
	}

	return nil, fmt.Errorf("operator \"%s\" is not supported for %T and %T", op, left, right)
}

var floatType = reflect.TypeOf(float64(0))

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
