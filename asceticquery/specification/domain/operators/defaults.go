package operators

import (
	"bytes"
	"cmp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

func registerComparison[T cmp.Ordered](reg *OperatorRegistry) {
	RegisterBinary[T, T](reg, OperatorEqual, func(a, b T) (any, error) { return a == b, nil })
	RegisterBinary[T, T](reg, OperatorNotEqual, func(a, b T) (any, error) { return a != b, nil })
	RegisterBinary[T, T](reg, OperatorGreaterThan, func(a, b T) (any, error) { return a > b, nil })
	RegisterBinary[T, T](reg, OperatorGreaterThanOrEqual, func(a, b T) (any, error) { return a >= b, nil })
	RegisterBinary[T, T](reg, OperatorLessThan, func(a, b T) (any, error) { return a < b, nil })
	RegisterBinary[T, T](reg, OperatorLessThanOrEqual, func(a, b T) (any, error) { return a <= b, nil })
}

func registerCompareFunc[T any](reg *OperatorRegistry, compare func(a, b T) int) {
	RegisterBinary[T, T](reg, OperatorEqual, func(a, b T) (any, error) { return compare(a, b) == 0, nil })
	RegisterBinary[T, T](reg, OperatorNotEqual, func(a, b T) (any, error) { return compare(a, b) != 0, nil })
	RegisterBinary[T, T](reg, OperatorGreaterThan, func(a, b T) (any, error) { return compare(a, b) > 0, nil })
	RegisterBinary[T, T](reg, OperatorGreaterThanOrEqual, func(a, b T) (any, error) { return compare(a, b) >= 0, nil })
	RegisterBinary[T, T](reg, OperatorLessThan, func(a, b T) (any, error) { return compare(a, b) < 0, nil })
	RegisterBinary[T, T](reg, OperatorLessThanOrEqual, func(a, b T) (any, error) { return compare(a, b) <= 0, nil })
}

func registerStringMatch(reg *OperatorRegistry) {
	match := func(fn func(s, sub string) bool) func(a, b string) (any, error) {
		return func(a, b string) (any, error) {
			return fn(strings.ToLower(a), strings.ToLower(b)), nil
		}
	}
	RegisterBinary[string, string](reg, OperatorContain, match(strings.Contains))
	RegisterBinary[string, string](reg, OperatorDoesNotContain, match(func(s, sub string) bool {
		return !strings.Contains(s, sub)
	}))
	RegisterBinary[string, string](reg, OperatorStartWith, match(strings.HasPrefix))
	RegisterBinary[string, string](reg, OperatorEndWith, match(strings.HasSuffix))
}

// NewDefaultRegistry creates a registry covering the scalar types a catalog
// can declare.
func NewDefaultRegistry() *OperatorRegistry {
	reg := NewOperatorRegistry()

	// bool
	RegisterBinary[bool, bool](reg, OperatorEqual, func(a, b bool) (any, error) { return a == b, nil })
	RegisterBinary[bool, bool](reg, OperatorNotEqual, func(a, b bool) (any, error) { return a != b, nil })

	registerComparison[int](reg)
	registerComparison[int32](reg)
	registerComparison[int64](reg)
	registerComparison[float64](reg)

	registerComparison[string](reg)
	registerStringMatch(reg)

	registerCompareFunc[time.Time](reg, func(a, b time.Time) int { return a.Compare(b) })
	registerCompareFunc[time.Duration](reg, cmp.Compare[time.Duration])
	registerCompareFunc[ulid.ULID](reg, func(a, b ulid.ULID) int { return a.Compare(b) })

	// uuid orders bytewise, which is what the stores do
	registerCompareFunc[uuid.UUID](reg, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })

	return reg
}
