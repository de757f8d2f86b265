package mongo

import (
	"regexp"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/krew-solutions/ascetic-query-go/asceticquery/query/plan"
	s "github.com/krew-solutions/ascetic-query-go/asceticquery/specification/domain"
	"github.com/krew-solutions/ascetic-query-go/asceticquery/specification/domain/operators"
)

type filterHandler func(field string, ref plan.FieldRef, n s.PredicateNode) (bson.D, error)

// Strategies renders each operator as a query document for the document
// backend.
var Strategies = operators.NewStrategyTable[filterHandler]().
	Register(operators.BackendDocument, operators.OperatorEqual, renderEqual).
	Register(operators.BackendDocument, operators.OperatorNotEqual, renderNotEqual).
	Register(operators.BackendDocument, operators.OperatorGreaterThan, comparison("$gt")).
	Register(operators.BackendDocument, operators.OperatorGreaterThanOrEqual, comparison("$gte")).
	Register(operators.BackendDocument, operators.OperatorLessThan, comparison("$lt")).
	Register(operators.BackendDocument, operators.OperatorLessThanOrEqual, comparison("$lte")).
	Register(operators.BackendDocument, operators.OperatorContain, regex("", "", false)).
	Register(operators.BackendDocument, operators.OperatorStartWith, regex("^", "", false)).
	Register(operators.BackendDocument, operators.OperatorEndWith, regex("", "$", false)).
	Register(operators.BackendDocument, operators.OperatorDoesNotContain, regex("", "", true)).
	Register(operators.BackendDocument, operators.OperatorSpecified, renderSpecified)

func Capabilities() operators.Capabilities {
	return Strategies.Capabilities(operators.BackendDocument)
}

// MongodbVisitor renders a boolean expression as a $match document.
type MongodbVisitor struct {
	fields func(raw string) (plan.FieldRef, bool)
	result bson.D
}

func NewMongodbVisitor(fields func(raw string) (plan.FieldRef, bool)) *MongodbVisitor {
	return &MongodbVisitor{fields: fields}
}

func (v *MongodbVisitor) VisitTrue(_ s.TrueNode) error {
	v.result = bson.D{}
	return nil
}

func (v *MongodbVisitor) VisitAnd(n s.AndNode) error {
	return v.visitAll("$and", n.Operands())
}

func (v *MongodbVisitor) VisitOr(n s.OrNode) error {
	return v.visitAll("$or", n.Operands())
}

func (v *MongodbVisitor) visitAll(op string, operands []s.Visitable) error {
	items := make(bson.A, 0, len(operands))
	for _, operand := range operands {
		if err := operand.Accept(v); err != nil {
			return err
		}
		items = append(items, v.result)
	}
	v.result = bson.D{{Key: op, Value: items}}
	return nil
}

func (v *MongodbVisitor) VisitPredicate(n s.PredicateNode) error {
	ref, ok := v.fields(n.Field())
	if !ok {
		return s.Unresolvable(n.Field(), "field was not resolved")
	}
	handler, ok := Strategies.Lookup(operators.BackendDocument, n.Operator())
	if !ok {
		return s.Unsupported(n.Field(), n.Operator(), "not implemented by the document backend")
	}
	doc, err := handler(ref.Location, ref, n)
	if err != nil {
		return err
	}
	v.result = doc
	return nil
}

func (v MongodbVisitor) Result() bson.D {
	return v.result
}

// Compile renders exp as a query document.
func Compile(exp s.Visitable, fields func(raw string) (plan.FieldRef, bool)) (bson.D, error) {
	v := NewMongodbVisitor(fields)
	if err := exp.Accept(v); err != nil {
		return nil, err
	}
	return v.Result(), nil
}

// value maps literals to their stored form; identifiers are kept as
// strings.
func value(v any) any {
	switch id := v.(type) {
	case uuid.UUID:
		return id.String()
	case ulid.ULID:
		return id.String()
	}
	return v
}

func values(vs []any) bson.A {
	result := make(bson.A, len(vs))
	for i, v := range vs {
		result[i] = value(v)
	}
	return result
}

func condition(field, op string, operand any) bson.D {
	return bson.D{{Key: field, Value: bson.D{{Key: op, Value: operand}}}}
}

// renderEqual relies on null matching missing fields and on array fields
// matching when one element does.
func renderEqual(field string, _ plan.FieldRef, n s.PredicateNode) (bson.D, error) {
	if len(n.Values()) == 1 {
		return condition(field, "$eq", value(n.Value())), nil
	}
	return condition(field, "$in", values(n.Values())), nil
}

func renderNotEqual(field string, _ plan.FieldRef, n s.PredicateNode) (bson.D, error) {
	if len(n.Values()) == 1 {
		return condition(field, "$ne", value(n.Value())), nil
	}
	return condition(field, "$nin", values(n.Values())), nil
}

func comparison(op string) filterHandler {
	return func(field string, _ plan.FieldRef, n s.PredicateNode) (bson.D, error) {
		return condition(field, op, value(n.Value())), nil
	}
}

func regex(prefix, suffix string, negate bool) filterHandler {
	return func(field string, _ plan.FieldRef, n s.PredicateNode) (bson.D, error) {
		pattern := bson.D{
			{Key: "$regex", Value: prefix + regexp.QuoteMeta(n.Value().(string)) + suffix},
			{Key: "$options", Value: "i"},
		}
		if negate {
			return condition(field, "$not", pattern), nil
		}
		return bson.D{{Key: field, Value: pattern}}, nil
	}
}

func renderSpecified(field string, ref plan.FieldRef, n s.PredicateNode) (bson.D, error) {
	want, err := s.ToBool(n.Value())
	if err != nil {
		return nil, s.NewQueryError(s.ErrValueConversion, n.Field(), "SPECIFIED takes a boolean").WithValue(n.Value()).WithCause(err)
	}
	if want {
		return condition(field, "$ne", nil), nil
	}
	if !ref.LeftJoin || ref.ParentLocation == "" {
		return condition(field, "$eq", nil), nil
	}
	return bson.D{{Key: "$and", Value: bson.A{
		condition(ref.ParentLocation, "$ne", nil),
		condition(field, "$eq", nil),
	}}}, nil
}
