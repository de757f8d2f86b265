package main

import (
	"io"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	query "github.com/krew-solutions/ascetic-query-go/asceticquery/query/domain"
	s "github.com/krew-solutions/ascetic-query-go/asceticquery/specification/domain"
	"github.com/krew-solutions/ascetic-query-go/asceticquery/specification/domain/operators"
)

// specDoc is the YAML form of a query:
//
//	root: employee
//	where:
//	  - {field: city, op: EQUAL, values: [Berlin]}
//	  - {op: OR}
//	  - {op: PARENTHES, group: [...]}
//	select: [name, {source: "[Count]id", alias: n}]
//	orderBy: [{path: salary, direction: desc}]
//	page: {index: 0, size: 10}
type specDoc struct {
	Root     string         `yaml:"root"`
	Where    []criterionDoc `yaml:"where"`
	Select   []selectDoc    `yaml:"select"`
	GroupBy  []string       `yaml:"groupBy"`
	Having   []criterionDoc `yaml:"having"`
	OrderBy  []orderDoc     `yaml:"orderBy"`
	Page     *pageDoc       `yaml:"page"`
	Distinct bool           `yaml:"distinct"`
}

type criterionDoc struct {
	Field  string         `yaml:"field"`
	Op     string         `yaml:"op"`
	Value  any            `yaml:"value"`
	Values []any          `yaml:"values"`
	Group  []criterionDoc `yaml:"group"`
}

type selectDoc struct {
	Source string `yaml:"source"`
	Alias  string `yaml:"alias"`
}

// UnmarshalYAML accepts both "name" and "{source: name, alias: x}".
func (d *selectDoc) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		d.Source = node.Value
		return nil
	}
	type plain selectDoc
	return node.Decode((*plain)(d))
}

type orderDoc struct {
	Path      string `yaml:"path"`
	Direction string `yaml:"direction"`
}

type pageDoc struct {
	Index *int `yaml:"index"`
	Size  *int `yaml:"size"`
}

func loadSpec(r io.Reader) (string, query.QuerySpec, error) {
	var doc specDoc
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return "", query.QuerySpec{}, errors.Wrap(err, "unable to decode query")
	}
	if doc.Root == "" {
		return "", query.QuerySpec{}, errors.New("query has no root entity")
	}
	spec := query.QuerySpec{
		GroupBy:  doc.GroupBy,
		Distinct: doc.Distinct,
	}
	var err error
	if spec.Where, err = criteria(doc.Where); err != nil {
		return "", spec, err
	}
	if spec.Having, err = criteria(doc.Having); err != nil {
		return "", spec, err
	}
	for _, sel := range doc.Select {
		if sel.Alias == "" {
			spec.Select = append(spec.Select, query.Field(sel.Source))
			continue
		}
		spec.Select = append(spec.Select, query.FieldAs(sel.Source, sel.Alias))
	}
	for _, o := range doc.OrderBy {
		dir, ok := query.ParseDirection(o.Direction)
		if !ok {
			return "", spec, errors.Errorf("order by %s: unknown direction %q", o.Path, o.Direction)
		}
		spec.OrderBy = append(spec.OrderBy, query.Order{Path: o.Path, Direction: dir})
	}
	if doc.Page != nil {
		spec.Page = query.Pagination{Index: doc.Page.Index, Size: doc.Page.Size}
	}
	return doc.Root, spec, nil
}

func criteria(docs []criterionDoc) (s.FilterSpecification, error) {
	var result s.FilterSpecification
	for _, d := range docs {
		op, ok := operators.Parse(d.Op)
		if !ok {
			return nil, s.Unsupported(d.Field, operators.Operator(d.Op), "unknown operator")
		}
		switch op {
		case operators.OperatorOr:
			result = append(result, s.Or())
		case operators.OperatorGroup:
			inner, err := criteria(d.Group)
			if err != nil {
				return nil, err
			}
			result = append(result, s.Group(inner...))
		default:
			values := d.Values
			if values == nil {
				values = []any{d.Value}
			}
			result = append(result, s.Where(d.Field, op, values...))
		}
	}
	return result, nil
}
