package projection

import (
	"fmt"
	"strings"

	s "github.com/krew-solutions/ascetic-query-go/asceticquery/specification/domain"
)

type Mode int

const (
	Mutable Mode = iota
	Immutable
)

// Target receives field values one by one (mutable construction).
type Target interface {
	Set(field string, value any) error
}

// Finisher lets a Target produce a different value once all fields are set.
type Finisher interface {
	Finish() (any, error)
}

// Constructor builds an immutable value from positional arguments: the
// leaves in declaration order, then the children.
type Constructor func(args ...any) (any, error)

type Leaf struct {
	Name   string
	Source string
}

// SourcePath is the row key the leaf reads, relative to its shape.
func (l Leaf) SourcePath() string {
	if l.Source != "" {
		return l.Source
	}
	return l.Name
}

type Child struct {
	Name   string
	Prefix string
	Shape  *Shape
}

// Shape is the declared structure of a projected result. It is immutable
// once built and may be shared between goroutines.
type Shape struct {
	name        string
	mode        Mode
	leaves      []Leaf
	children    []Child
	factory     func() Target
	constructor Constructor
}

func (sh *Shape) Name() string {
	return sh.name
}

func (sh *Shape) Mode() Mode {
	return sh.mode
}

func (sh *Shape) Leaves() []Leaf {
	return append([]Leaf(nil), sh.leaves...)
}

func (sh *Shape) Children() []Child {
	return append([]Child(nil), sh.children...)
}

// Builder declares a Shape.
type Builder struct {
	shape *Shape
	err   error
}

func NewShape(name string) *Builder {
	return &Builder{shape: &Shape{name: name}}
}

// Field declares a leaf read from the row key of the same name.
func (b *Builder) Field(name string) *Builder {
	return b.FieldFrom(name, "")
}

// FieldFrom declares a leaf read from an explicit source path.
func (b *Builder) FieldFrom(name, source string) *Builder {
	b.shape.leaves = append(b.shape.leaves, Leaf{Name: name, Source: source})
	return b
}

// Nested declares a child shape fed by the row keys under prefix.
func (b *Builder) Nested(name, prefix string, child *Shape) *Builder {
	if child == nil {
		b.fail(fmt.Sprintf("child %q has no shape", name))
		return b
	}
	if prefix == "" {
		prefix = name
	}
	b.shape.children = append(b.shape.children, Child{Name: name, Prefix: prefix, Shape: child})
	return b
}

// Mutable sets the construction mode to field-by-field assignment.
func (b *Builder) Mutable(factory func() Target) *Builder {
	b.shape.mode = Mutable
	b.shape.factory = factory
	return b
}

// Immutable sets the construction mode to a single constructor call.
func (b *Builder) Immutable(constructor Constructor) *Builder {
	b.shape.mode = Immutable
	b.shape.constructor = constructor
	return b
}

func (b *Builder) fail(reason string) {
	if b.err == nil {
		b.err = s.NewQueryError(s.ErrProjectionConstruction, b.shape.name, reason)
	}
}

func (b *Builder) Build() (*Shape, error) {
	if b.err != nil {
		return nil, b.err
	}
	sh := b.shape
	names := make(map[string]bool)
	for _, l := range sh.leaves {
		if l.Name == "" || names[l.Name] {
			return nil, s.NewQueryError(s.ErrProjectionConstruction, sh.name, fmt.Sprintf("invalid or duplicate field %q", l.Name))
		}
		names[l.Name] = true
	}
	prefixes := make(map[string]bool)
	for _, c := range sh.children {
		if names[c.Name] {
			return nil, s.NewQueryError(s.ErrProjectionConstruction, sh.name, fmt.Sprintf("duplicate field %q", c.Name))
		}
		names[c.Name] = true
		if prefixes[c.Prefix] || strings.HasSuffix(c.Prefix, s.PathSeparator) {
			return nil, s.NewQueryError(s.ErrProjectionConstruction, sh.name, fmt.Sprintf("invalid or duplicate prefix %q", c.Prefix))
		}
		prefixes[c.Prefix] = true
	}
	switch sh.mode {
	case Mutable:
		if sh.factory == nil {
			sh.factory = func() Target { return RecordTarget{} }
		}
	case Immutable:
		if sh.constructor == nil {
			return nil, s.NewQueryError(s.ErrProjectionConstruction, sh.name, "immutable shape needs a constructor")
		}
	}
	b.shape = &Shape{name: sh.name}
	return sh, nil
}

// MustBuild panics on an invalid declaration; use it for package-level shapes.
func (b *Builder) MustBuild() *Shape {
	sh, err := b.Build()
	if err != nil {
		panic(err)
	}
	return sh
}
