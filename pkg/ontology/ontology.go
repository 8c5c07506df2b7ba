// Package ontology loads the class/property schema that the update engine
// uses to decompose RDF statements into relational row operations.
package ontology

import "fmt"

// Property describes one predicate: the table or side-table it maps to, its
// declared range, and the super-properties it must also satisfy on insert.
type Property struct {
	URI          string   `yaml:"uri"`
	Column       string   `yaml:"column"`
	Domain       string   `yaml:"domain"`
	Range        string   `yaml:"range"`
	Multivalued  bool     `yaml:"multivalued"`
	FullTextSync bool     `yaml:"fulltext"`
	Embedded     bool     `yaml:"embedded"`
	SuperURIs    []string `yaml:"super_properties"`

	supers []*Property
}

// Supers returns the resolved transitive closure of super-properties, in
// the order Resolve computed them.
func (p *Property) Supers() []*Property { return p.supers }

// Class describes one rdf:type: the table it materializes to and the
// super-classes implied by asserting it.
type Class struct {
	URI       string   `yaml:"uri"`
	Table     string   `yaml:"table"`
	SuperURIs []string `yaml:"super_classes"`

	supers []*Class
}

// Supers returns the resolved transitive closure of super-classes.
func (c *Class) Supers() []*Class { return c.supers }

// Schema is a loaded, closure-resolved ontology: every Class and Property
// keyed by URI, ready for the decomposer to consult.
type Schema struct {
	Classes    map[string]*Class
	Properties map[string]*Property
}

// ClassByURI looks up a class, returning UnknownClassError-shaped nil if
// absent; callers distinguish "absent" from "present" via the second
// return, matching the comma-ok idiom used throughout the engine.
func (s *Schema) ClassByURI(uri string) (*Class, bool) {
	c, ok := s.Classes[uri]
	return c, ok
}

// PropertyByURI looks up a property by its predicate URI.
func (s *Schema) PropertyByURI(uri string) (*Property, bool) {
	p, ok := s.Properties[uri]
	return p, ok
}

func (s *Schema) String() string {
	return fmt.Sprintf("ontology.Schema{classes=%d properties=%d}", len(s.Classes), len(s.Properties))
}
