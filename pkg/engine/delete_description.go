package engine

import (
	"context"
	"fmt"
)

// DeleteResourceDescription clears every embedded property value and
// multi-valued relation the ontology knows about for uri, leaving the
// rdfs:Resource row (and its class memberships) untouched. This is the
// operation a SPARQL `DELETE WHERE { <uri> ?p ?o }` over a resource's own
// properties compiles down to, and the one ResetVolume uses per resource
// under a reset mount path.
func (t *Transaction) DeleteResourceDescription(ctx context.Context, uri string) error {
	id, ok := t.resolver.Resolve(uri)
	if !ok {
		var err error
		id, err = t.resolver.Ensure(ctx, t.tx, uri)
		if err != nil {
			return err
		}
	}
	return t.deleteResourceDescriptionByID(ctx, id)
}

func (t *Transaction) deleteResourceDescriptionByID(ctx context.Context, id int64) error {
	for _, prop := range t.decomposer.schema.Properties {
		if prop.Multivalued {
			if err := t.tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE ID = $1`, prop.Column), id); err != nil {
				return &StorageError{Op: "delete resource description (multivalue)", Err: err}
			}
			continue
		}
		if !prop.Embedded {
			continue
		}
		table := classTableOf(t.decomposer.schema, prop.Domain)
		if err := t.tx.Exec(ctx, fmt.Sprintf(`UPDATE %s SET %s = NULL WHERE ID = $1`, table, prop.Column), id); err != nil {
			return &StorageError{Op: "delete resource description (embedded)", Err: err}
		}
	}
	return nil
}
