package postgres

import (
	"strings"

	"github.com/krew-solutions/ascetic-query-go/asceticquery/query/plan"
	s "github.com/krew-solutions/ascetic-query-go/asceticquery/specification/domain"
	"github.com/krew-solutions/ascetic-query-go/asceticquery/specification/domain/operators"
)

type predicateHandler func(v *PostgresqlVisitor, column string, ref plan.FieldRef, n s.PredicateNode) error

// Strategies renders each operator for the relational backend.
var Strategies = operators.NewStrategyTable[predicateHandler]().
	Register(operators.BackendRelational, operators.OperatorEqual, renderEqual).
	Register(operators.BackendRelational, operators.OperatorNotEqual, renderNotEqual).
	Register(operators.BackendRelational, operators.OperatorGreaterThan, comparison(">")).
	Register(operators.BackendRelational, operators.OperatorGreaterThanOrEqual, comparison(">=")).
	Register(operators.BackendRelational, operators.OperatorLessThan, comparison("<")).
	Register(operators.BackendRelational, operators.OperatorLessThanOrEqual, comparison("<=")).
	Register(operators.BackendRelational, operators.OperatorContain, like("%", "%", false)).
	Register(operators.BackendRelational, operators.OperatorStartWith, like("", "%", false)).
	Register(operators.BackendRelational, operators.OperatorEndWith, like("%", "", false)).
	Register(operators.BackendRelational, operators.OperatorDoesNotContain, like("%", "%", true)).
	Register(operators.BackendRelational, operators.OperatorSpecified, renderSpecified)

func Capabilities() operators.Capabilities {
	return Strategies.Capabilities(operators.BackendRelational)
}

func splitNull(values []any) (nonNull []any, hasNull bool) {
	for _, value := range values {
		if value == nil {
			hasNull = true
			continue
		}
		nonNull = append(nonNull, value)
	}
	return nonNull, hasNull
}

func renderEqual(v *PostgresqlVisitor, column string, _ plan.FieldRef, n s.PredicateNode) error {
	values, hasNull := splitNull(n.Values())
	match := func() error {
		if len(values) == 1 {
			return v.infix(column, "=", values[0])
		}
		return v.visit("IN NON", func() error {
			v.sql += column + " IN (" + v.params(values) + ")"
			return nil
		})
	}
	switch {
	case len(values) == 0:
		return v.isNull(column, false)
	case hasNull:
		return v.either(match, func() error { return v.isNull(column, false) })
	}
	return match()
}

// renderNotEqual matches records lacking the value unless null itself is
// among the excluded values.
func renderNotEqual(v *PostgresqlVisitor, column string, _ plan.FieldRef, n s.PredicateNode) error {
	values, hasNull := splitNull(n.Values())
	mismatch := func() error {
		if len(values) == 1 {
			return v.infix(column, "<>", values[0])
		}
		return v.visit("IN NON", func() error {
			v.sql += column + " NOT IN (" + v.params(values) + ")"
			return nil
		})
	}
	switch {
	case len(values) == 0:
		return v.isNull(column, true)
	case hasNull:
		return mismatch()
	}
	return v.either(mismatch, func() error { return v.isNull(column, false) })
}

func comparison(op string) predicateHandler {
	return func(v *PostgresqlVisitor, column string, _ plan.FieldRef, n s.PredicateNode) error {
		return v.infix(column, op, n.Value())
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func like(prefix, suffix string, negate bool) predicateHandler {
	return func(v *PostgresqlVisitor, column string, _ plan.FieldRef, n s.PredicateNode) error {
		pattern := prefix + likeEscaper.Replace(n.Value().(string)) + suffix
		if !negate {
			return v.visit("ILIKE NON", func() error {
				v.sql += column + " ILIKE " + v.param(pattern)
				return nil
			})
		}
		return v.either(func() error {
			return v.visit("ILIKE NON", func() error {
				v.sql += column + " NOT ILIKE " + v.param(pattern)
				return nil
			})
		}, func() error {
			return v.isNull(column, false)
		})
	}
}

// renderSpecified treats a missing parent record as a non-match of the
// left-join form.
func renderSpecified(v *PostgresqlVisitor, column string, ref plan.FieldRef, n s.PredicateNode) error {
	want, err := s.ToBool(n.Value())
	if err != nil {
		return s.NewQueryError(s.ErrValueConversion, n.Field(), "SPECIFIED takes a boolean").WithValue(n.Value()).WithCause(err)
	}
	if want || !ref.LeftJoin {
		return v.isNull(column, want)
	}
	parent, ok, err := v.columns.Parent(ref)
	if err != nil {
		return err
	}
	if !ok {
		return v.isNull(column, false)
	}
	return v.visit("AND LEFT", func() error {
		if err := v.isNull(parent, true); err != nil {
			return err
		}
		v.sql += " AND "
		return v.isNull(column, false)
	})
}
