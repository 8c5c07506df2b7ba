package ontology

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// document mirrors the on-disk YAML shape: a flat list of classes and
// properties, super-relations expressed by URI rather than by reference.
type document struct {
	Classes    []*Class    `yaml:"classes"`
	Properties []*Property `yaml:"properties"`
}

// Load reads an ontology document and resolves every super-class and
// super-property closure before returning the Schema. Resolution fails
// closed: a super-relation naming a URI not present in the document is an
// error rather than a silently-dropped edge.
func Load(r io.Reader) (*Schema, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("ontology: read: %w", err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("ontology: parse: %w", err)
	}

	s := &Schema{
		Classes:    make(map[string]*Class, len(doc.Classes)),
		Properties: make(map[string]*Property, len(doc.Properties)),
	}
	for _, c := range doc.Classes {
		if _, dup := s.Classes[c.URI]; dup {
			return nil, fmt.Errorf("ontology: duplicate class %q", c.URI)
		}
		s.Classes[c.URI] = c
	}
	for _, p := range doc.Properties {
		if _, dup := s.Properties[p.URI]; dup {
			return nil, fmt.Errorf("ontology: duplicate property %q", p.URI)
		}
		s.Properties[p.URI] = p
	}

	if err := resolveClassClosures(s); err != nil {
		return nil, err
	}
	if err := resolvePropertyClosures(s); err != nil {
		return nil, err
	}
	return s, nil
}
