package query

import (
	"strings"

	s "github.com/krew-solutions/ascetic-query-go/asceticquery/specification/domain"
)

type Direction string

const (
	Ascending  Direction = "ASC"
	Descending Direction = "DESC"
)

func ParseDirection(raw string) (Direction, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "", "ASC", "ASCENDING":
		return Ascending, true
	case "DESC", "DESCENDING":
		return Descending, true
	}
	return "", false
}

type Order struct {
	Path      string
	Direction Direction
}

func Asc(path string) Order {
	return Order{Path: path, Direction: Ascending}
}

func Desc(path string) Order {
	return Order{Path: path, Direction: Descending}
}

// SelectItem maps a source path (optionally "[Tag]path") to an output alias.
type SelectItem struct {
	Source string
	Alias  string
}

func Field(source string) SelectItem {
	return SelectItem{Source: source, Alias: source}
}

func FieldAs(source, alias string) SelectItem {
	return SelectItem{Source: source, Alias: alias}
}

// Name is the output key of the item.
func (i SelectItem) Name() string {
	if i.Alias != "" {
		return i.Alias
	}
	return i.Source
}

type Selection []SelectItem

// Pagination is optional. An index without a size is ignored.
type Pagination struct {
	Index *int
	Size  *int
}

func Paged(index, size int) Pagination {
	return Pagination{Index: &index, Size: &size}
}

func Limited(size int) Pagination {
	return Pagination{Size: &size}
}

func (p Pagination) IsZero() bool {
	return p.Size == nil
}

func (p Pagination) IndexOr(fallback int) int {
	if p.Index == nil {
		return fallback
	}
	return *p.Index
}

func (p Pagination) SizeOr(fallback int) int {
	if p.Size == nil {
		return fallback
	}
	return *p.Size
}

func (p Pagination) Validate() error {
	if p.Index != nil && *p.Index < 0 {
		return s.Malformed("page index must not be negative").WithValue(*p.Index)
	}
	if p.Size != nil && *p.Size <= 0 {
		return s.Malformed("page size must be positive").WithValue(*p.Size)
	}
	return nil
}

// QuerySpec describes one read: filter, projection, grouping, ordering and
// pagination. It is a value and is not retained by the compiler.
type QuerySpec struct {
	Where    s.FilterSpecification
	Select   Selection
	GroupBy  []string
	Having   s.FilterSpecification
	OrderBy  []Order
	Page     Pagination
	Distinct bool
}

// WithPage returns a copy addressing one page.
func (q QuerySpec) WithPage(index, size int) QuerySpec {
	q.Page = Paged(index, size)
	return q
}

func (q QuerySpec) WithoutPage() QuerySpec {
	q.Page = Pagination{}
	return q
}
