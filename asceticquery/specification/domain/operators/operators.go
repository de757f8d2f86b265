package operators

import "strings"

type Operator string

const (
	// Comparison

	OperatorEqual              Operator = "EQUAL"
	OperatorNotEqual           Operator = "NOT_EQUAL"
	OperatorGreaterThan        Operator = "GREATER_THAN"
	OperatorGreaterThanOrEqual Operator = "GREATER_THAN_OR_EQUAL"
	OperatorLessThan           Operator = "LESS_THAN"
	OperatorLessThanOrEqual    Operator = "LESS_THAN_OR_EQUAL"

	// String matching, case-insensitive

	OperatorContain        Operator = "CONTAIN"
	OperatorDoesNotContain Operator = "DOES_NOT_CONTAIN"
	OperatorStartWith      Operator = "START_WITH"
	OperatorEndWith        Operator = "END_WITH"

	// Existence

	OperatorSpecified Operator = "SPECIFIED"

	// Control markers

	OperatorOr    Operator = "OR"
	OperatorGroup Operator = "PARENTHES"
)

var predicateOperators = []Operator{
	OperatorEqual,
	OperatorNotEqual,
	OperatorContain,
	OperatorDoesNotContain,
	OperatorStartWith,
	OperatorEndWith,
	OperatorGreaterThan,
	OperatorGreaterThanOrEqual,
	OperatorLessThan,
	OperatorLessThanOrEqual,
	OperatorSpecified,
}

// PredicateOperators lists every operator that produces a leaf predicate.
func PredicateOperators() []Operator {
	result := make([]Operator, len(predicateOperators))
	copy(result, predicateOperators)
	return result
}

// Parse accepts a wire token in any letter case.
func Parse(token string) (Operator, bool) {
	op := Operator(strings.ToUpper(strings.TrimSpace(token)))
	if op == OperatorOr || op == OperatorGroup {
		return op, true
	}
	for _, known := range predicateOperators {
		if op == known {
			return op, true
		}
	}
	return "", false
}

func (o Operator) IsControl() bool {
	return o == OperatorOr || o == OperatorGroup
}

func (o Operator) IsStringMatch() bool {
	switch o {
	case OperatorContain, OperatorDoesNotContain, OperatorStartWith, OperatorEndWith:
		return true
	}
	return false
}

func (o Operator) IsOrdering() bool {
	switch o {
	case OperatorGreaterThan, OperatorGreaterThanOrEqual, OperatorLessThan, OperatorLessThanOrEqual:
		return true
	}
	return false
}

// AcceptsMany reports whether the operator takes a set of values.
func (o Operator) AcceptsMany() bool {
	return o == OperatorEqual || o == OperatorNotEqual
}

// Negated reports whether the operator matches records whose value is absent.
func (o Operator) Negated() bool {
	return o == OperatorNotEqual || o == OperatorDoesNotContain
}

func (o Operator) String() string {
	return string(o)
}
