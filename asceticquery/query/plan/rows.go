package plan

import (
	"strings"

	s "github.com/krew-solutions/ascetic-query-go/asceticquery/specification/domain"
)

// Get reads a dotted path from a nested row.
func Get(row Row, path string) (any, bool) {
	v, err := s.Lookup(row, path)
	if err != nil {
		return nil, false
	}
	return v, true
}

// Set writes value at a dotted path, creating intermediate maps.
func Set(row Row, path string, value any) {
	segments := strings.Split(path, s.PathSeparator)
	current := row
	for _, segment := range segments[:len(segments)-1] {
		next, ok := current[segment].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[segment] = next
		}
		current = next
	}
	current[segments[len(segments)-1]] = value
}

// Unset removes the value at a dotted path.
func Unset(row Row, path string) {
	segments := strings.Split(path, s.PathSeparator)
	current := row
	for _, segment := range segments[:len(segments)-1] {
		next, ok := current[segment].(map[string]any)
		if !ok {
			return
		}
		current = next
	}
	delete(current, segments[len(segments)-1])
}

// Project builds the flat output row of a projection stage. Missing values
// come out as nil so every alias is present.
func Project(row Row, stage ProjectStage) Row {
	result := make(Row, len(stage.Fields))
	for _, f := range stage.Fields {
		v, _ := Get(row, f.Path)
		result[f.Alias] = v
	}
	return result
}

// Clone deep-copies nested maps and slices of a row.
func Clone(row Row) Row {
	return cloneValue(row).(map[string]any)
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, item := range t {
			m[k] = cloneValue(item)
		}
		return m
	case []any:
		items := make([]any, len(t))
		for i, item := range t {
			items[i] = cloneValue(item)
		}
		return items
	}
	return v
}
