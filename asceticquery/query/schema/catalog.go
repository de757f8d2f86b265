package schema

import (
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"
)

type Multiplicity string

const (
	One  Multiplicity = "one"
	Many Multiplicity = "many"
)

type Field struct {
	Name string
	Type ScalarType
	// Embedded names the entity describing an object field's inner fields.
	Embedded string
}

type Entity struct {
	name       string
	collection string
	identity   string
	fields     map[string]Field
}

func NewEntity(name string) *Entity {
	return &Entity{
		name:     name,
		identity: "id",
		fields:   make(map[string]Field),
	}
}

func (e *Entity) WithCollection(collection string) *Entity {
	e.collection = collection
	return e
}

func (e *Entity) WithIdentity(field string) *Entity {
	e.identity = field
	return e
}

func (e *Entity) WithField(name string, t ScalarType) *Entity {
	e.fields[name] = Field{Name: name, Type: t}
	return e
}

func (e *Entity) WithEmbedded(name string, entity string) *Entity {
	e.fields[name] = Field{Name: name, Type: TypeObject, Embedded: entity}
	return e
}

func (e *Entity) Name() string {
	return e.name
}

// Collection is the table, collection or index name. Embedded-only
// entities have none.
func (e *Entity) Collection() string {
	return e.collection
}

func (e *Entity) IdentityField() string {
	return e.identity
}

func (e *Entity) Field(name string) (Field, bool) {
	f, ok := e.fields[name]
	return f, ok
}

// Fields are returned sorted by name.
func (e *Entity) Fields() []Field {
	result := make([]Field, 0, len(e.fields))
	for _, f := range e.fields {
		result = append(result, f)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// ReferenceEdge says that FieldName of FromType points at ToType.
// LocalField holds the key on the referencing side (defaults to FieldName);
// ForeignField is the matched key on the referenced side (defaults to the
// target identity).
type ReferenceEdge struct {
	FromType     string
	FieldName    string
	ToType       string
	Multiplicity Multiplicity
	LocalField   string
	ForeignField string
	// LocalArray is set on many edges whose local field holds an array of
	// foreign keys rather than the parent identity.
	LocalArray bool
}

type edgeKey struct {
	entity string
	field  string
}

// Catalog is the read-only entity and reference table. Build one with
// CatalogBuilder; it is safe for concurrent use afterwards.
type Catalog struct {
	entities map[string]*Entity
	edges    map[edgeKey]ReferenceEdge
}

func (c *Catalog) Entity(name string) (*Entity, bool) {
	e, ok := c.entities[name]
	return e, ok
}

func (c *Catalog) Reference(entity, field string) (ReferenceEdge, bool) {
	edge, ok := c.edges[edgeKey{entity, field}]
	return edge, ok
}

func (c *Catalog) References(entity string) []ReferenceEdge {
	var result []ReferenceEdge
	for key, edge := range c.edges {
		if key.entity == entity {
			result = append(result, edge)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].FieldName < result[j].FieldName })
	return result
}

func (c *Catalog) Entities() []*Entity {
	result := make([]*Entity, 0, len(c.entities))
	for _, e := range c.entities {
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].name < result[j].name })
	return result
}

type CatalogBuilder struct {
	entities []*Entity
	edges    []ReferenceEdge
}

func NewCatalogBuilder() *CatalogBuilder {
	return &CatalogBuilder{}
}

func (b *CatalogBuilder) RegisterEntity(e *Entity) *CatalogBuilder {
	b.entities = append(b.entities, e)
	return b
}

func (b *CatalogBuilder) RegisterReference(edge ReferenceEdge) *CatalogBuilder {
	b.edges = append(b.edges, edge)
	return b
}

// RegisterOne is shorthand for a to-one reference stored under fieldName.
func (b *CatalogBuilder) RegisterOne(from, fieldName, to string) *CatalogBuilder {
	return b.RegisterReference(ReferenceEdge{FromType: from, FieldName: fieldName, ToType: to, Multiplicity: One})
}

func (b *CatalogBuilder) RegisterMany(from, fieldName, to, foreignField string) *CatalogBuilder {
	return b.RegisterReference(ReferenceEdge{FromType: from, FieldName: fieldName, ToType: to, Multiplicity: Many, ForeignField: foreignField})
}

// Build validates the registrations and fills edge defaults.
func (b *CatalogBuilder) Build() (*Catalog, error) {
	c := &Catalog{
		entities: make(map[string]*Entity, len(b.entities)),
		edges:    make(map[edgeKey]ReferenceEdge, len(b.edges)),
	}
	var result error
	for _, e := range b.entities {
		if _, dup := c.entities[e.name]; dup {
			result = multierror.Append(result, fmt.Errorf("entity %q registered twice", e.name))
			continue
		}
		c.entities[e.name] = e
	}
	for _, e := range b.entities {
		for _, f := range e.fields {
			if f.Embedded == "" {
				continue
			}
			if _, ok := c.entities[f.Embedded]; !ok {
				result = multierror.Append(result, fmt.Errorf("field %s.%s embeds unknown entity %q", e.name, f.Name, f.Embedded))
			}
		}
	}
	for _, edge := range b.edges {
		if _, ok := c.entities[edge.FromType]; !ok {
			result = multierror.Append(result, fmt.Errorf("reference %s.%s: unknown entity %q", edge.FromType, edge.FieldName, edge.FromType))
			continue
		}
		target, ok := c.entities[edge.ToType]
		if !ok {
			result = multierror.Append(result, fmt.Errorf("reference %s.%s: unknown target %q", edge.FromType, edge.FieldName, edge.ToType))
			continue
		}
		switch edge.Multiplicity {
		case "":
			edge.Multiplicity = One
		case One, Many:
		default:
			result = multierror.Append(result, fmt.Errorf("reference %s.%s: unknown multiplicity %q", edge.FromType, edge.FieldName, edge.Multiplicity))
			continue
		}
		if edge.Multiplicity == Many && edge.ForeignField == "" {
			edge.LocalArray = true
		}
		if edge.LocalField == "" {
			edge.LocalField = edge.FieldName
			// a many edge with an explicit foreign field is a back-reference:
			// the children point at the parent identity
			if edge.Multiplicity == Many && edge.ForeignField != "" {
				edge.LocalField = c.entities[edge.FromType].identity
			}
		}
		if edge.ForeignField == "" {
			edge.ForeignField = target.identity
		}
		key := edgeKey{edge.FromType, edge.FieldName}
		if _, dup := c.edges[key]; dup {
			result = multierror.Append(result, fmt.Errorf("reference %s.%s registered twice", edge.FromType, edge.FieldName))
			continue
		}
		c.edges[key] = edge
	}
	if result != nil {
		return nil, result
	}
	return c, nil
}
