package specification

import (
	"fmt"
	"strings"

	"github.com/krew-solutions/ascetic-query-go/asceticquery/specification/domain/operators"
)

type Visitable interface {
	Accept(Visitor) error
}

type Visitor interface {
	VisitTrue(TrueNode) error
	VisitPredicate(PredicateNode) error
	VisitAnd(AndNode) error
	VisitOr(OrNode) error
}

// TrueNode is the identity of AND: it matches every record.
type TrueNode struct{}

func True() TrueNode {
	return TrueNode{}
}

func (n TrueNode) Accept(v Visitor) error {
	return v.VisitTrue(n)
}

func (n TrueNode) String() string {
	return "TRUE"
}

func Predicate(field string, op operators.Operator, values ...any) PredicateNode {
	return PredicateNode{
		field:    field,
		operator: op,
		values:   values,
	}
}

type PredicateNode struct {
	field    string
	operator operators.Operator
	values   []any
}

// Field is the raw reference: a field path, or an aggregate expression
// inside a having clause.
func (n PredicateNode) Field() string {
	return n.field
}

func (n PredicateNode) Operator() operators.Operator {
	return n.operator
}

func (n PredicateNode) Values() []any {
	return n.values
}

// Value is the single operand of non-set operators.
func (n PredicateNode) Value() any {
	if len(n.values) == 0 {
		return nil
	}
	return n.values[0]
}

func (n PredicateNode) WithValues(values ...any) PredicateNode {
	n.values = values
	return n
}

func (n PredicateNode) Accept(v Visitor) error {
	return v.VisitPredicate(n)
}

func (n PredicateNode) String() string {
	return fmt.Sprintf("%s %s %v", n.field, n.operator, n.values)
}

func And(operands ...Visitable) AndNode {
	return AndNode{operands: operands}
}

type AndNode struct {
	operands []Visitable
}

func (n AndNode) Operands() []Visitable {
	return n.operands
}

func (n AndNode) Accept(v Visitor) error {
	return v.VisitAnd(n)
}

func (n AndNode) String() string {
	return joinOperands("AND", n.operands)
}

func OrElse(operands ...Visitable) OrNode {
	return OrNode{operands: operands}
}

type OrNode struct {
	operands []Visitable
}

func (n OrNode) Operands() []Visitable {
	return n.operands
}

func (n OrNode) Accept(v Visitor) error {
	return v.VisitOr(n)
}

func (n OrNode) String() string {
	return joinOperands("OR", n.operands)
}

func joinOperands(op string, operands []Visitable) string {
	parts := make([]string, len(operands))
	for i, o := range operands {
		parts[i] = fmt.Sprint(o)
	}
	return "(" + strings.Join(parts, " "+op+" ") + ")"
}
