package specification

import "strings"

// MapContext reads dotted paths out of nested maps.
type MapContext map[string]any

func (c MapContext) Get(field string) (any, error) {
	return Lookup(c, field)
}

// Lookup walks a dotted path through nested map[string]any values.
func Lookup(record map[string]any, path string) (any, error) {
	if value, ok := record[path]; ok {
		return value, nil
	}
	var current any = record
	for _, segment := range strings.Split(path, PathSeparator) {
		m, ok := asMap(current)
		if !ok {
			return nil, ErrKeyNotFound
		}
		current, ok = m[segment]
		if !ok {
			return nil, ErrKeyNotFound
		}
	}
	return current, nil
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case MapContext:
		return m, true
	}
	return nil, false
}
