package schema

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type catalogDoc struct {
	Entities []entityDoc `yaml:"entities"`
}

type entityDoc struct {
	Name       string              `yaml:"name"`
	Collection string              `yaml:"collection"`
	Identity   string              `yaml:"identity"`
	Fields     map[string]fieldDoc `yaml:"fields"`
	References []referenceDoc      `yaml:"references"`
}

type fieldDoc struct {
	Type   string `yaml:"type"`
	Entity string `yaml:"entity"`
}

// UnmarshalYAML accepts both "name: int" and "name: {type: object, entity: x}".
func (f *fieldDoc) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		f.Type = node.Value
		return nil
	}
	type plain fieldDoc
	return node.Decode((*plain)(f))
}

type referenceDoc struct {
	Field        string `yaml:"field"`
	Target       string `yaml:"target"`
	Multiplicity string `yaml:"multiplicity"`
	Local        string `yaml:"local"`
	Foreign      string `yaml:"foreign"`
}

// LoadCatalog reads a YAML catalog document.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	var doc catalogDoc
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.Wrap(err, "unable to decode catalog")
	}
	b := NewCatalogBuilder()
	for _, ed := range doc.Entities {
		e := NewEntity(ed.Name).WithCollection(ed.Collection)
		if ed.Identity != "" {
			e.WithIdentity(ed.Identity)
		}
		for name, fd := range ed.Fields {
			t, ok := ParseScalarType(fd.Type)
			if !ok {
				return nil, errors.Errorf("entity %s: field %s has unknown type %q", ed.Name, name, fd.Type)
			}
			if t == TypeObject && fd.Entity != "" {
				e.WithEmbedded(name, fd.Entity)
				continue
			}
			e.WithField(name, t)
		}
		b.RegisterEntity(e)
		for _, rd := range ed.References {
			b.RegisterReference(ReferenceEdge{
				FromType:     ed.Name,
				FieldName:    rd.Field,
				ToType:       rd.Target,
				Multiplicity: Multiplicity(rd.Multiplicity),
				LocalField:   rd.Local,
				ForeignField: rd.Foreign,
			})
		}
	}
	c, err := b.Build()
	if err != nil {
		return nil, errors.Wrap(err, "invalid catalog")
	}
	return c, nil
}

func LoadCatalogFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open catalog %s", path)
	}
	defer f.Close()
	return LoadCatalog(f)
}
