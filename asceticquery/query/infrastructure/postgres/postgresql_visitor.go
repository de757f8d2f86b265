package postgres

import (
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/krew-solutions/ascetic-query-go/asceticquery/query/plan"
	s "github.com/krew-solutions/ascetic-query-go/asceticquery/specification/domain"
	"github.com/krew-solutions/ascetic-query-go/asceticquery/specification/domain/operators"
)

// Columns turns resolved field references into SQL expressions.
type Columns interface {
	Column(ref plan.FieldRef) (string, error)
	// Parent returns an expression that is NULL when the record owning
	// the field is missing. ok is false when that record always exists.
	Parent(ref plan.FieldRef) (expr string, ok bool, err error)
}

// FieldLookup resolves the raw field name of a predicate.
type FieldLookup func(raw string) (plan.FieldRef, bool)

type PostgresqlVisitorOption func(*PostgresqlVisitor)

// PlaceholderIndex sets the number of parameters already bound, so that
// fragments of one statement number their placeholders consecutively.
func PlaceholderIndex(index int) PostgresqlVisitorOption {
	return func(v *PostgresqlVisitor) {
		v.placeholderIndex = index
	}
}

func NewPostgresqlVisitor(fields FieldLookup, columns Columns, opts ...PostgresqlVisitorOption) *PostgresqlVisitor {
	v := &PostgresqlVisitor{
		fields:            fields,
		columns:           columns,
		precedenceMapping: make(map[string]int),
	}
	// https://www.postgresql.org/docs/14/sql-syntax-lexical.html#SQL-PRECEDENCE-TABLE
	v.setPrecedence(160, ". LEFT")
	v.setPrecedence(160, ":: LEFT")
	// all other native and user-defined operators 👇️
	v.setPrecedence(100, "(any other operator) LEFT")
	v.setPrecedence(90, "BETWEEN NON", "IN NON", "LIKE NON", "ILIKE NON", "SIMILAR NON")
	v.setPrecedence(80, "< NON", "> NON", "= NON", "<= NON", ">= NON", "<> NON")
	v.setPrecedence(70, "IS NON", "ISNULL NON", "NOTNULL NON")
	v.setPrecedence(60, "NOT RIGHT")
	v.setPrecedence(50, "AND LEFT")
	v.setPrecedence(40, "OR LEFT")
	for i := range opts {
		opts[i](v)
	}
	return v
}

// PostgresqlVisitor renders a boolean expression as an SQL condition with
// positional parameters.
type PostgresqlVisitor struct {
	sql               string
	placeholderIndex  int
	parameters        []any
	precedence        int
	precedenceMapping map[string]int
	fields            FieldLookup
	columns           Columns
}

func (v PostgresqlVisitor) setPrecedence(precedence int, operators ...string) {
	for _, op := range operators {
		v.precedenceMapping[op] = precedence
	}
}

func (v *PostgresqlVisitor) visit(precedenceKey string, callable func() error) error {
	outerPrecedence := v.precedence
	innerPrecedence, ok := v.precedenceMapping[precedenceKey]
	if !ok {
		innerPrecedence, ok = v.precedenceMapping["(any other operator) LEFT"]
		if !ok {
			innerPrecedence = outerPrecedence
		}
	}
	v.precedence = innerPrecedence
	if innerPrecedence < outerPrecedence {
		v.sql += "("
	}
	err := callable()
	if err != nil {
		return err
	}
	if innerPrecedence < outerPrecedence {
		v.sql += ")"
	}
	v.precedence = outerPrecedence
	return nil
}

func (v *PostgresqlVisitor) VisitTrue(_ s.TrueNode) error {
	v.sql += "TRUE"
	return nil
}

func (v *PostgresqlVisitor) VisitAnd(n s.AndNode) error {
	return v.visitAll("AND", n.Operands())
}

func (v *PostgresqlVisitor) VisitOr(n s.OrNode) error {
	return v.visitAll("OR", n.Operands())
}

func (v *PostgresqlVisitor) visitAll(op string, operands []s.Visitable) error {
	return v.visit(op+" LEFT", func() error {
		for i, operand := range operands {
			if i > 0 {
				v.sql += " " + op + " "
			}
			if err := operand.Accept(v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (v *PostgresqlVisitor) VisitPredicate(n s.PredicateNode) error {
	ref, ok := v.fields(n.Field())
	if !ok {
		return s.Unresolvable(n.Field(), "field was not resolved")
	}
	handler, ok := Strategies.Lookup(operators.BackendRelational, n.Operator())
	if !ok {
		return s.Unsupported(n.Field(), n.Operator(), "not implemented by the relational backend")
	}
	column, err := v.columns.Column(ref)
	if err != nil {
		return err
	}
	return handler(v, column, ref, n)
}

// param binds a value and returns its placeholder.
func (v *PostgresqlVisitor) param(value any) string {
	if id, ok := value.(ulid.ULID); ok {
		value = id.String()
	}
	v.parameters = append(v.parameters, value)
	return fmt.Sprintf("$%d", v.placeholderIndex+len(v.parameters))
}

func (v *PostgresqlVisitor) params(values []any) string {
	placeholders := make([]string, len(values))
	for i, value := range values {
		placeholders[i] = v.param(value)
	}
	return strings.Join(placeholders, ", ")
}

func (v *PostgresqlVisitor) infix(column, op string, value any) error {
	return v.visit(op+" NON", func() error {
		v.sql += column + " " + op + " " + v.param(value)
		return nil
	})
}

func (v *PostgresqlVisitor) isNull(column string, negate bool) error {
	return v.visit("IS NON", func() error {
		if negate {
			v.sql += column + " IS NOT NULL"
		} else {
			v.sql += column + " IS NULL"
		}
		return nil
	})
}

func (v *PostgresqlVisitor) either(left, right func() error) error {
	return v.visit("OR LEFT", func() error {
		if err := left(); err != nil {
			return err
		}
		v.sql += " OR "
		return right()
	})
}

func (v PostgresqlVisitor) Result() (sql string, params []any, err error) {
	return v.sql, v.parameters, nil
}

// Compile renders exp and returns the condition with its parameters.
func Compile(exp s.Visitable, fields FieldLookup, columns Columns, opts ...PostgresqlVisitorOption) (sql string, params []any, err error) {
	v := NewPostgresqlVisitor(fields, columns, opts...)
	if err := exp.Accept(v); err != nil {
		return "", nil, err
	}
	return v.Result()
}
