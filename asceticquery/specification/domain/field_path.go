package specification

import "strings"

const (
	PathSeparator     = "."
	LeftJoinSeparator = "<"
)

// FieldPath addresses a value through nested and referenced fields.
// "department.name" requires the department to exist (inner join);
// "department<name" tests the terminal field of a department that may be
// missing (left join).
type FieldPath struct {
	segments []string
	leftJoin bool
}

func ParseFieldPath(raw string) (FieldPath, error) {
	if raw == "" {
		return FieldPath{}, Malformed("empty field path")
	}
	p := FieldPath{}
	head := raw
	terminal := ""
	if i := strings.Index(raw, LeftJoinSeparator); i >= 0 {
		if strings.Count(raw, LeftJoinSeparator) > 1 {
			return FieldPath{}, Unresolvable(raw, "more than one left-join marker")
		}
		head, terminal = raw[:i], raw[i+1:]
		if strings.Contains(terminal, PathSeparator) {
			return FieldPath{}, Unresolvable(raw, "left-join marker must precede the terminal segment")
		}
		if head == "" || terminal == "" {
			return FieldPath{}, Unresolvable(raw, "left-join marker needs a parent and a terminal segment")
		}
		p.leftJoin = true
	}
	p.segments = strings.Split(head, PathSeparator)
	if terminal != "" {
		p.segments = append(p.segments, terminal)
	}
	for _, seg := range p.segments {
		if seg == "" {
			return FieldPath{}, Unresolvable(raw, "empty path segment")
		}
	}
	return p, nil
}

func NewFieldPath(segments ...string) FieldPath {
	return FieldPath{segments: append([]string(nil), segments...)}
}

func (p FieldPath) Segments() []string {
	return append([]string(nil), p.segments...)
}

func (p FieldPath) Len() int {
	return len(p.segments)
}

func (p FieldPath) LeftJoin() bool {
	return p.leftJoin
}

func (p FieldPath) Terminal() string {
	if len(p.segments) == 0 {
		return ""
	}
	return p.segments[len(p.segments)-1]
}

// Parent drops the terminal segment. The result never carries the marker.
func (p FieldPath) Parent() FieldPath {
	if len(p.segments) < 2 {
		return FieldPath{}
	}
	return FieldPath{segments: p.segments[:len(p.segments)-1]}
}

func (p FieldPath) Prefix(n int) FieldPath {
	return FieldPath{segments: p.segments[:n]}
}

func (p FieldPath) IsZero() bool {
	return len(p.segments) == 0
}

// String is the normalized dotted location of the field.
func (p FieldPath) String() string {
	return strings.Join(p.segments, PathSeparator)
}

// Raw reproduces the textual form, marker included.
func (p FieldPath) Raw() string {
	if !p.leftJoin {
		return p.String()
	}
	return p.Parent().String() + LeftJoinSeparator + p.Terminal()
}
