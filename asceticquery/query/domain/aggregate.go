package query

import (
	"regexp"
	"strings"

	s "github.com/krew-solutions/ascetic-query-go/asceticquery/specification/domain"
)

type AggregateFunc string

const (
	AggregateCount         AggregateFunc = "count"
	AggregateCountDistinct AggregateFunc = "countdistinct"
	AggregateSum           AggregateFunc = "sum"
	AggregateAvg           AggregateFunc = "avg"
	AggregateMin           AggregateFunc = "min"
	AggregateMax           AggregateFunc = "max"
)

var aggregateFuncs = map[string]AggregateFunc{
	"count":         AggregateCount,
	"countdistinct": AggregateCountDistinct,
	"sum":           AggregateSum,
	"avg":           AggregateAvg,
	"min":           AggregateMin,
	"max":           AggregateMax,
}

var aggregateTag = regexp.MustCompile(`^\[([^\]]*)\](.*)$`)

// AggregateExpression is a parsed "[Tag]path" reference.
type AggregateExpression struct {
	Func    AggregateFunc
	Operand string
}

func (e AggregateExpression) String() string {
	return "[" + string(e.Func) + "]" + e.Operand
}

// Name is the accumulator the expression is stored under.
func (e AggregateExpression) Name() string {
	return string(e.Func) + "_" + strings.NewReplacer(".", "_", "<", "_").Replace(e.Operand)
}

// ParseAggregate recognizes the "[Tag]path" form. The tag is case-insensitive.
// ok is false for a plain path.
func ParseAggregate(raw string) (expr AggregateExpression, ok bool, err error) {
	m := aggregateTag.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return AggregateExpression{}, false, nil
	}
	fn, known := aggregateFuncs[strings.ToLower(m[1])]
	if !known {
		return AggregateExpression{}, true, s.NewQueryError(s.ErrMalformedExpression, raw, "unknown aggregate function "+m[1])
	}
	if m[2] == "" {
		return AggregateExpression{}, true, s.NewQueryError(s.ErrMalformedExpression, raw, "aggregate needs an operand path")
	}
	return AggregateExpression{Func: fn, Operand: m[2]}, true, nil
}

func IsAggregate(raw string) bool {
	return aggregateTag.MatchString(strings.TrimSpace(raw))
}
