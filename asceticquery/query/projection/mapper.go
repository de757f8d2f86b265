package projection

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/krew-solutions/ascetic-query-go/asceticquery/query/plan"
	s "github.com/krew-solutions/ascetic-query-go/asceticquery/specification/domain"
)

// Mapper materializes raw rows into declared shapes. It keeps no state.
type Mapper struct{}

func NewMapper() *Mapper {
	return &Mapper{}
}

func (m *Mapper) Map(row plan.Row, shape *Shape) (any, error) {
	part := make(map[string]any, len(row))
	for k, v := range row {
		part[k] = v
	}
	return m.materialize(part, shape)
}

func (m *Mapper) MapAll(rows []plan.Row, shape *Shape) ([]any, error) {
	result := make([]any, 0, len(rows))
	for _, row := range rows {
		v, err := m.Map(row, shape)
		if err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	return result, nil
}

// MapAs maps rows and asserts every result to T.
func MapAs[T any](m *Mapper, rows []plan.Row, shape *Shape) ([]T, error) {
	result := make([]T, 0, len(rows))
	for _, row := range rows {
		v, err := m.Map(row, shape)
		if err != nil {
			return nil, err
		}
		typed, ok := v.(T)
		if !ok {
			return nil, s.NewQueryError(s.ErrProjectionConstruction, shape.Name(), fmt.Sprintf("shape produced %T", v))
		}
		result = append(result, typed)
	}
	return result, nil
}

type materialized struct {
	value   any
	present bool
	err     error
}

func (m *Mapper) materialize(part map[string]any, shape *Shape) (any, error) {
	children := m.partition(part, shape)

	var errs error
	built := make([]materialized, len(shape.children))
	for i, c := range shape.children {
		sub := children[i]
		if len(sub) == 0 {
			continue
		}
		v, err := m.materialize(sub, c.Shape)
		built[i] = materialized{value: v, present: true, err: err}
		if err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	switch shape.mode {
	case Immutable:
		return m.construct(part, shape, built, errs)
	default:
		return m.assign(part, shape, built, errs)
	}
}

// partition moves the keys under each child prefix, longest prefix first,
// into that child's row. What is left belongs to the shape itself.
func (m *Mapper) partition(part map[string]any, shape *Shape) []map[string]any {
	order := make([]int, len(shape.children))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return len(shape.children[order[a]].Prefix) > len(shape.children[order[b]].Prefix)
	})

	result := make([]map[string]any, len(shape.children))
	for _, i := range order {
		prefix := shape.children[i].Prefix
		sub := make(map[string]any)
		if nested, ok := part[prefix].(map[string]any); ok {
			for k, v := range nested {
				sub[k] = v
			}
			delete(part, prefix)
		}
		for k, v := range part {
			if strings.HasPrefix(k, prefix+s.PathSeparator) {
				sub[k[len(prefix)+1:]] = v
				delete(part, k)
			}
		}
		result[i] = sub
	}
	return result
}

func lookup(part map[string]any, path string) (any, bool) {
	v, err := s.Lookup(part, path)
	return v, err == nil
}

func (m *Mapper) assign(part map[string]any, shape *Shape, built []materialized, errs error) (any, error) {
	if errs != nil {
		return nil, wrap(shape, errs)
	}
	target := shape.factory()
	for _, l := range shape.leaves {
		v, ok := lookup(part, l.SourcePath())
		if !ok {
			continue
		}
		if err := target.Set(l.Name, v); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("field %q: %w", l.Name, err))
		}
	}
	for i, c := range shape.children {
		if !built[i].present {
			continue
		}
		if err := target.Set(c.Name, built[i].value); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("field %q: %w", c.Name, err))
		}
	}
	if errs != nil {
		return nil, wrap(shape, errs)
	}
	if f, ok := target.(Finisher); ok {
		v, err := f.Finish()
		if err != nil {
			return nil, wrap(shape, err)
		}
		return v, nil
	}
	return target, nil
}

func (m *Mapper) construct(part map[string]any, shape *Shape, built []materialized, errs error) (any, error) {
	args := make([]any, 0, len(shape.leaves)+len(shape.children))
	for _, l := range shape.leaves {
		v, ok := lookup(part, l.SourcePath())
		if !ok {
			errs = multierror.Append(errs, fmt.Errorf("missing field %q (source %q)", l.Name, l.SourcePath()))
			continue
		}
		args = append(args, v)
	}
	for i, c := range shape.children {
		if !built[i].present {
			errs = multierror.Append(errs, fmt.Errorf("missing child %q (prefix %q)", c.Name, c.Prefix))
			continue
		}
		args = append(args, built[i].value)
	}
	if errs != nil {
		return nil, wrap(shape, errs)
	}
	v, err := shape.constructor(args...)
	if err != nil {
		return nil, wrap(shape, err)
	}
	return v, nil
}

func wrap(shape *Shape, err error) error {
	return s.NewQueryError(s.ErrProjectionConstruction, shape.name, "cannot build "+shape.name).WithCause(err)
}
