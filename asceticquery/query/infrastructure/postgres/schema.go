package postgres

import (
	"github.com/jinzhu/inflection"

	"github.com/krew-solutions/ascetic-query-go/asceticquery/query/schema"
)

// TableMapping overrides how an entity is stored.
type TableMapping struct {
	// Table defaults to the entity collection.
	Table string

	// Alias is the prefix of the aliases the table gets in queries
	// (defaults to the singularized table name).
	Alias string

	// Columns maps field names to column names; unmapped fields keep
	// their names. Embedded entities and free-form objects live in one
	// JSONB column each.
	Columns map[string]string
}

// SchemaRegistry holds the table mappings of a catalog.
type SchemaRegistry struct {
	tables map[string]TableMapping
}

func NewSchemaRegistry() *SchemaRegistry {
	return &SchemaRegistry{
		tables: make(map[string]TableMapping),
	}
}

// Register sets the full mapping of an entity.
func (r *SchemaRegistry) Register(entity string, mapping TableMapping) *SchemaRegistry {
	r.tables[entity] = mapping
	return r
}

func (r *SchemaRegistry) RegisterTable(entity, table string) *SchemaRegistry {
	m := r.tables[entity]
	m.Table = table
	r.tables[entity] = m
	return r
}

func (r *SchemaRegistry) RegisterColumn(entity, field, column string) *SchemaRegistry {
	m := r.tables[entity]
	if m.Columns == nil {
		m.Columns = make(map[string]string)
	}
	m.Columns[field] = column
	r.tables[entity] = m
	return r
}

func (r *SchemaRegistry) Table(e *schema.Entity) string {
	if m, ok := r.tables[e.Name()]; ok && m.Table != "" {
		return m.Table
	}
	return e.Collection()
}

func (r *SchemaRegistry) Column(e *schema.Entity, field string) string {
	if m, ok := r.tables[e.Name()]; ok {
		if column, ok := m.Columns[field]; ok {
			return column
		}
	}
	return field
}

// AliasBase returns the prefix of the table aliases of an entity,
// e.g. "employees" -> "employee".
func (r *SchemaRegistry) AliasBase(e *schema.Entity) string {
	if m, ok := r.tables[e.Name()]; ok && m.Alias != "" {
		return m.Alias
	}
	return inflection.Singular(r.Table(e))
}
