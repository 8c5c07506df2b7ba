package ontology

import "fmt"

// resolveClassClosures computes, for every Class, the transitive set of
// super-classes reachable from its SuperURIs, detecting cycles with a
// depth-first walk that tracks both a visited set and a recursion stack —
// a URI still on the recursion stack when revisited marks a cycle.
func resolveClassClosures(s *Schema) error {
	visited := make(map[string]bool)
	recursionStack := make(map[string]bool)

	var walk func(uri string) ([]*Class, error)
	walk = func(uri string) ([]*Class, error) {
		c, ok := s.Classes[uri]
		if !ok {
			return nil, fmt.Errorf("ontology: class %q references unknown super_class %q", uri, uri)
		}
		if c.supers != nil {
			return c.supers, nil
		}
		if recursionStack[uri] {
			return nil, fmt.Errorf("ontology: cycle detected in super_classes at %q", uri)
		}
		recursionStack[uri] = true
		defer func() { recursionStack[uri] = false }()

		var closure []*Class
		seen := make(map[string]bool)
		for _, superURI := range c.SuperURIs {
			super, ok := s.Classes[superURI]
			if !ok {
				return nil, fmt.Errorf("ontology: class %q references unknown super_class %q", uri, superURI)
			}
			if !seen[superURI] {
				seen[superURI] = true
				closure = append(closure, super)
			}
			superClosure, err := walk(superURI)
			if err != nil {
				return nil, err
			}
			for _, sc := range superClosure {
				if !seen[sc.URI] {
					seen[sc.URI] = true
					closure = append(closure, sc)
				}
			}
		}
		visited[uri] = true
		c.supers = closure
		return closure, nil
	}

	for uri := range s.Classes {
		if !visited[uri] {
			if _, err := walk(uri); err != nil {
				return err
			}
		}
	}
	return nil
}

// resolvePropertyClosures mirrors resolveClassClosures for super_properties.
func resolvePropertyClosures(s *Schema) error {
	visited := make(map[string]bool)
	recursionStack := make(map[string]bool)

	var walk func(uri string) ([]*Property, error)
	walk = func(uri string) ([]*Property, error) {
		p, ok := s.Properties[uri]
		if !ok {
			return nil, fmt.Errorf("ontology: property %q references unknown super_property %q", uri, uri)
		}
		if p.supers != nil {
			return p.supers, nil
		}
		if recursionStack[uri] {
			return nil, fmt.Errorf("ontology: cycle detected in super_properties at %q", uri)
		}
		recursionStack[uri] = true
		defer func() { recursionStack[uri] = false }()

		var closure []*Property
		seen := make(map[string]bool)
		for _, superURI := range p.SuperURIs {
			super, ok := s.Properties[superURI]
			if !ok {
				return nil, fmt.Errorf("ontology: property %q references unknown super_property %q", uri, superURI)
			}
			if !seen[superURI] {
				seen[superURI] = true
				closure = append(closure, super)
			}
			superClosure, err := walk(superURI)
			if err != nil {
				return nil, err
			}
			for _, sc := range superClosure {
				if !seen[sc.URI] {
					seen[sc.URI] = true
					closure = append(closure, sc)
				}
			}
		}
		visited[uri] = true
		p.supers = closure
		return closure, nil
	}

	for uri := range s.Properties {
		if !visited[uri] {
			if _, err := walk(uri); err != nil {
				return err
			}
		}
	}
	return nil
}
