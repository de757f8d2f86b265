package plan

import (
	"fmt"
	"sort"
	"strings"

	"github.com/krew-solutions/ascetic-query-go/asceticquery/query/schema"
	s "github.com/krew-solutions/ascetic-query-go/asceticquery/specification/domain"
)

// Resolution is the outcome of resolving a set of field paths: the lookups
// they need, in dependency order, and one FieldRef per raw path.
type Resolution struct {
	Lookups []LookupStage
	Fields  map[string]FieldRef
}

// Resolver walks field paths against the catalog starting from a root
// entity. Each reference prefix is resolved once, however many paths share it.
type Resolver struct {
	catalog *schema.Catalog
	root    *schema.Entity
	lookups map[string]*schema.Entity
	result  *Resolution
}

func NewResolver(catalog *schema.Catalog, root *schema.Entity) *Resolver {
	return &Resolver{
		catalog: catalog,
		root:    root,
	}
}

func (r *Resolver) Resolve(raws []string) (*Resolution, error) {
	r.lookups = make(map[string]*schema.Entity)
	r.result = &Resolution{Fields: make(map[string]FieldRef)}

	paths := make([]s.FieldPath, 0, len(raws))
	seen := make(map[string]bool, len(raws))
	for _, raw := range raws {
		if seen[raw] {
			continue
		}
		seen[raw] = true
		p, err := s.ParseFieldPath(raw)
		if err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	sort.SliceStable(paths, func(i, j int) bool {
		return paths[i].Len() < paths[j].Len()
	})

	for _, p := range paths {
		ref, err := r.resolve(p)
		if err != nil {
			return nil, err
		}
		r.result.Fields[p.Raw()] = ref
	}
	return r.result, nil
}

func (r *Resolver) resolve(p s.FieldPath) (FieldRef, error) {
	segments := p.Segments()
	ref := FieldRef{
		Raw:            p.Raw(),
		Kind:           FieldPathKind,
		Location:       p.String(),
		LeftJoin:       p.LeftJoin(),
		ParentLocation: p.Parent().String(),
	}
	entity := r.root
	for i, segment := range segments {
		prefix := strings.Join(segments[:i+1], s.PathSeparator)
		last := i == len(segments)-1

		if edge, ok := r.catalog.Reference(entity.Name(), segment); ok {
			target, err := r.lookup(edge, prefix, strings.Join(segments[:i], s.PathSeparator))
			if err != nil {
				return FieldRef{}, err
			}
			ref.References = append(ref.References, prefix)
			entity = target
			if last {
				ref.Type = schema.TypeObject
			}
			continue
		}

		field, ok := entity.Field(segment)
		if !ok {
			return FieldRef{}, s.Unresolvable(p.Raw(), fmt.Sprintf("%s has no field %q", entity.Name(), segment))
		}
		if last {
			ref.Type = field.Type
			break
		}
		switch {
		case field.Embedded != "":
			embedded, ok := r.catalog.Entity(field.Embedded)
			if !ok {
				return FieldRef{}, s.Unresolvable(p.Raw(), fmt.Sprintf("unknown embedded entity %q", field.Embedded))
			}
			entity = embedded
		case field.Type == schema.TypeObject || field.Type == schema.TypeAny:
			// free-form object: the rest of the path is not described
			ref.Type = schema.TypeAny
			ref.ParentIsReference = r.isLookup(ref.ParentLocation)
			return ref, nil
		default:
			return FieldRef{}, s.Unresolvable(p.Raw(), fmt.Sprintf("%s.%s is a %s, not an object", entity.Name(), segment, field.Type))
		}
	}
	ref.ParentIsReference = r.isLookup(ref.ParentLocation)
	return ref, nil
}

func (r *Resolver) isLookup(path string) bool {
	_, ok := r.lookups[path]
	return ok
}

func (r *Resolver) lookup(edge schema.ReferenceEdge, path, parent string) (*schema.Entity, error) {
	if target, ok := r.lookups[path]; ok {
		return target, nil
	}
	target, ok := r.catalog.Entity(edge.ToType)
	if !ok {
		return nil, s.Unresolvable(path, fmt.Sprintf("unknown entity %q", edge.ToType))
	}
	local := edge.LocalField
	if parent != "" {
		local = parent + s.PathSeparator + local
	}
	as := path
	if edge.Multiplicity == schema.One {
		as = "__" + strings.ReplaceAll(path, s.PathSeparator, "_")
	}
	r.lookups[path] = target
	r.result.Lookups = append(r.result.Lookups, LookupStage{
		Path:       path,
		As:         as,
		ParentPath: parent,
		LocalField: local,
		Edge:       edge,
		Target:     target,
	})
	return target, nil
}
