package elastic

import (
	"strings"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/olivere/elastic/v7"

	"github.com/krew-solutions/ascetic-query-go/asceticquery/query/plan"
	s "github.com/krew-solutions/ascetic-query-go/asceticquery/specification/domain"
	"github.com/krew-solutions/ascetic-query-go/asceticquery/specification/domain/operators"
)

type queryHandler func(field string, n s.PredicateNode) (elastic.Query, error)

// Strategies renders each operator as a query clause. String fields are
// expected to be mapped as keywords.
var Strategies = operators.NewStrategyTable[queryHandler]().
	Register(operators.BackendSearch, operators.OperatorEqual, renderEqual).
	Register(operators.BackendSearch, operators.OperatorNotEqual, renderNotEqual).
	Register(operators.BackendSearch, operators.OperatorGreaterThan, comparison(operators.OperatorGreaterThan)).
	Register(operators.BackendSearch, operators.OperatorGreaterThanOrEqual, comparison(operators.OperatorGreaterThanOrEqual)).
	Register(operators.BackendSearch, operators.OperatorLessThan, comparison(operators.OperatorLessThan)).
	Register(operators.BackendSearch, operators.OperatorLessThanOrEqual, comparison(operators.OperatorLessThanOrEqual)).
	Register(operators.BackendSearch, operators.OperatorContain, wildcard("*", "*", false)).
	Register(operators.BackendSearch, operators.OperatorStartWith, renderStartWith).
	Register(operators.BackendSearch, operators.OperatorEndWith, wildcard("*", "", false)).
	Register(operators.BackendSearch, operators.OperatorDoesNotContain, wildcard("*", "*", true)).
	Register(operators.BackendSearch, operators.OperatorSpecified, renderSpecified)

func Capabilities() operators.Capabilities {
	return Strategies.Capabilities(operators.BackendSearch)
}

// ElasticsearchVisitor renders a boolean expression as a bool query.
type ElasticsearchVisitor struct {
	fields func(raw string) (plan.FieldRef, bool)
	result elastic.Query
}

func NewElasticsearchVisitor(fields func(raw string) (plan.FieldRef, bool)) *ElasticsearchVisitor {
	return &ElasticsearchVisitor{fields: fields}
}

func (v *ElasticsearchVisitor) VisitTrue(_ s.TrueNode) error {
	v.result = elastic.NewMatchAllQuery()
	return nil
}

func (v *ElasticsearchVisitor) VisitAnd(n s.AndNode) error {
	clauses, err := v.visitAll(n.Operands())
	if err != nil {
		return err
	}
	v.result = elastic.NewBoolQuery().Filter(clauses...)
	return nil
}

func (v *ElasticsearchVisitor) VisitOr(n s.OrNode) error {
	clauses, err := v.visitAll(n.Operands())
	if err != nil {
		return err
	}
	v.result = elastic.NewBoolQuery().Should(clauses...).MinimumShouldMatch("1")
	return nil
}

func (v *ElasticsearchVisitor) visitAll(operands []s.Visitable) ([]elastic.Query, error) {
	clauses := make([]elastic.Query, 0, len(operands))
	for _, operand := range operands {
		if err := operand.Accept(v); err != nil {
			return nil, err
		}
		clauses = append(clauses, v.result)
	}
	return clauses, nil
}

func (v *ElasticsearchVisitor) VisitPredicate(n s.PredicateNode) error {
	ref, ok := v.fields(n.Field())
	if !ok {
		return s.Unresolvable(n.Field(), "field was not resolved")
	}
	handler, ok := Strategies.Lookup(operators.BackendSearch, n.Operator())
	if !ok {
		return s.Unsupported(n.Field(), n.Operator(), "not implemented by the search backend")
	}
	q, err := handler(ref.Location, n)
	if err != nil {
		return err
	}
	v.result = q
	return nil
}

func (v ElasticsearchVisitor) Result() elastic.Query {
	return v.result
}

// Compile renders exp as a query clause.
func Compile(exp s.Visitable, fields func(raw string) (plan.FieldRef, bool)) (elastic.Query, error) {
	v := NewElasticsearchVisitor(fields)
	if err := exp.Accept(v); err != nil {
		return nil, err
	}
	return v.Result(), nil
}

func value(v any) any {
	switch id := v.(type) {
	case uuid.UUID:
		return id.String()
	case ulid.ULID:
		return id.String()
	}
	return v
}

// split separates null from the concrete operands.
func split(vs []any) (concrete []any, withNull bool) {
	for _, v := range vs {
		if v == nil {
			withNull = true
			continue
		}
		concrete = append(concrete, value(v))
	}
	return concrete, withNull
}

func missing(field string) elastic.Query {
	return elastic.NewBoolQuery().MustNot(elastic.NewExistsQuery(field))
}

func terms(field string, vs []any) elastic.Query {
	if len(vs) == 1 {
		return elastic.NewTermQuery(field, vs[0])
	}
	return elastic.NewTermsQuery(field, vs...)
}

func renderEqual(field string, n s.PredicateNode) (elastic.Query, error) {
	concrete, withNull := split(n.Values())
	switch {
	case !withNull:
		return terms(field, concrete), nil
	case len(concrete) == 0:
		return missing(field), nil
	}
	return elastic.NewBoolQuery().Should(terms(field, concrete), missing(field)).MinimumShouldMatch("1"), nil
}

// renderNotEqual keeps documents without the field unless null is among
// the operands.
func renderNotEqual(field string, n s.PredicateNode) (elastic.Query, error) {
	concrete, withNull := split(n.Values())
	switch {
	case !withNull:
		return elastic.NewBoolQuery().MustNot(terms(field, concrete)), nil
	case len(concrete) == 0:
		return elastic.NewExistsQuery(field), nil
	}
	return elastic.NewBoolQuery().
		Filter(elastic.NewExistsQuery(field)).
		MustNot(terms(field, concrete)), nil
}

func comparison(op operators.Operator) queryHandler {
	return func(field string, n s.PredicateNode) (elastic.Query, error) {
		q := elastic.NewRangeQuery(field)
		v := value(n.Value())
		switch op {
		case operators.OperatorGreaterThan:
			q = q.Gt(v)
		case operators.OperatorGreaterThanOrEqual:
			q = q.Gte(v)
		case operators.OperatorLessThan:
			q = q.Lt(v)
		default:
			q = q.Lte(v)
		}
		return q, nil
	}
}

var wildcardEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`)

func wildcard(prefix, suffix string, negate bool) queryHandler {
	return func(field string, n s.PredicateNode) (elastic.Query, error) {
		pattern := prefix + wildcardEscaper.Replace(n.Value().(string)) + suffix
		q := elastic.NewWildcardQuery(field, pattern).CaseInsensitive(true)
		if negate {
			return elastic.NewBoolQuery().MustNot(q), nil
		}
		return q, nil
	}
}

func renderStartWith(field string, n s.PredicateNode) (elastic.Query, error) {
	return elastic.NewPrefixQuery(field, n.Value().(string)).CaseInsensitive(true), nil
}

// renderSpecified cannot tell a missing parent from a missing value, so the
// left-join form behaves like the inner-join one.
func renderSpecified(field string, n s.PredicateNode) (elastic.Query, error) {
	want, err := s.ToBool(n.Value())
	if err != nil {
		return nil, s.NewQueryError(s.ErrValueConversion, n.Field(), "SPECIFIED takes a boolean").WithValue(n.Value()).WithCause(err)
	}
	if want {
		return elastic.NewExistsQuery(field), nil
	}
	return missing(field), nil
}
