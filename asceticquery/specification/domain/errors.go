package specification

import (
	"errors"
	"fmt"
	"strings"

	"github.com/krew-solutions/ascetic-query-go/asceticquery/specification/domain/operators"
)

var (
	ErrMalformedExpression      = errors.New("malformed expression")
	ErrUnsupportedOperator      = errors.New("unsupported operator")
	ErrValueConversion          = errors.New("value conversion error")
	ErrUnresolvableFieldPath    = errors.New("unresolvable field path")
	ErrTypeMismatchForAggregate = errors.New("type mismatch for aggregate")
	ErrProjectionConstruction   = errors.New("projection construction error")
)

// QueryError carries the offending path, operator and value. Kind is one of
// the sentinels above, so errors.Is(err, ErrUnresolvableFieldPath) works.
type QueryError struct {
	Kind     error
	Path     string
	Operator operators.Operator
	Value    any
	HasValue bool
	Reason   string
	Err      error
}

func (e *QueryError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Path != "" {
		fmt.Fprintf(&b, " at %q", e.Path)
	}
	if e.Operator != "" {
		fmt.Fprintf(&b, " with operator %s", e.Operator)
	}
	if e.HasValue {
		fmt.Fprintf(&b, " and value %#v", e.Value)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *QueryError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func (e *QueryError) WithValue(value any) *QueryError {
	e.Value = value
	e.HasValue = true
	return e
}

func (e *QueryError) WithOperator(op operators.Operator) *QueryError {
	e.Operator = op
	return e
}

func (e *QueryError) WithCause(err error) *QueryError {
	e.Err = err
	return e
}

func NewQueryError(kind error, path string, reason string) *QueryError {
	return &QueryError{Kind: kind, Path: path, Reason: reason}
}

func Malformed(reason string) *QueryError {
	return &QueryError{Kind: ErrMalformedExpression, Reason: reason}
}

func Unresolvable(path string, reason string) *QueryError {
	return &QueryError{Kind: ErrUnresolvableFieldPath, Path: path, Reason: reason}
}

func Unsupported(path string, op operators.Operator, reason string) *QueryError {
	return &QueryError{Kind: ErrUnsupportedOperator, Path: path, Operator: op, Reason: reason}
}
