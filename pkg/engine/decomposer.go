package engine

import (
	"context"
	"fmt"

	"triplestore.dev/updateengine/pkg/ontology"
	"triplestore.dev/updateengine/pkg/store"
)

// RDFType is the rdf:type predicate URI, handled specially: asserting it
// fans out to an insert into every super-class's table, not a column
// update.
const RDFType = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"

// TrackerURIPredicate is the virtual predicate that renames a resource's
// own URI in place, mirroring the tracker ontology's tracker:uri property.
// Asserting it stages a rename rather than a column update.
const TrackerURIPredicate = "tracker:uri"

// RDFTypeTable is the side table recording every class (including
// super-classes) a resource has been attached to, one (ID, TargetID) row
// per class, TargetID being the class URI's own resource id.
const RDFTypeTable = "rdfs_Resource_rdf_type"

// ClassInstanceCountTable counts, per class URI, how many distinct
// resources have ever been attached to it.
const ClassInstanceCountTable = "rdfs_Class_instance_count"

// RDFSResourceClass is the root class every resource belongs to simply by
// having a row in rdfs_Resource, whether or not rdf:type was ever asserted
// against it. A property whose domain is this class is satisfied by any
// resource id, so checkDomain never requires an explicit rdf:type assertion
// for it.
const RDFSResourceClass = "rdfs:Resource"

// Decomposer translates statements into TableOps against the ontology's
// class and property tables, given a resource already assigned an id by
// the ResourceResolver.
type Decomposer struct {
	schema *ontology.Schema
}

// NewDecomposer builds a Decomposer bound to schema.
func NewDecomposer(schema *ontology.Schema) *Decomposer {
	return &Decomposer{schema: schema}
}

// InsertClass stages the rdf:type row inserts for classURI and every
// super-class in its closure, into resourceID's buffer. Tables already
// touched earlier in the same transaction are skipped via the caller-
// provided seen set so repeated rdf:type assertions against the same
// resource do not double-insert. For every class newly attached to the
// resource it also stages an rdfs_Resource_rdf_type row (keyed by the
// class URI's own resource id) and a class instance counter increment.
func (d *Decomposer) InsertClass(ctx context.Context, tx store.Tx, resolver *ResourceResolver, buf *UpdateBuffer, resourceID int64, classURI string, seen map[string]bool) error {
	class, ok := d.schema.ClassByURI(classURI)
	if !ok {
		return &UnknownClassError{URI: classURI}
	}

	classes := []*ontology.Class{class}
	classes = append(classes, class.Supers()...)

	rb := buf.resourceBuffer(resourceID)
	for _, c := range classes {
		key := tableSeenKey(resourceID, c.Table)
		if !seen[key] {
			seen[key] = true
			buf.Add(TableOp{Kind: OpInsertRow, Table: c.Table, ResourceID: resourceID})
		}

		if rb.hasType(c.URI) {
			continue
		}
		rb.markType(c.URI)

		classID, err := resolver.Ensure(ctx, tx, c.URI)
		if err != nil {
			return err
		}
		buf.Add(TableOp{Kind: OpInsertMultiValue, Table: RDFTypeTable, ResourceID: resourceID, TargetID: classID})
		buf.Add(TableOp{Kind: OpIncrementClassCount, Table: ClassInstanceCountTable, ResourceID: resourceID, Column: c.URI})
	}
	return nil
}

// InsertValue stages the column update (or multi-value side-table insert)
// for propertyURI and every super-property in its closure. Before staging
// it: coerces the asserted literal against the property's declared range
// datatype, checks that the subject already carries a type matching the
// property's domain, enforces single-valued cardinality (discarding the
// first insert's effects if a conflicting second value arrives), and, the
// first time an fts-synced property is touched on this resource, preloads
// and stages retractions of every fts-synced property's currently
// persisted text so stale tokens don't survive alongside the new value.
func (d *Decomposer) InsertValue(ctx context.Context, tx store.Tx, resolver *ResourceResolver, buf *UpdateBuffer, resourceID int64, propertyURI string, value Value, targetID int64) error {
	prop, ok := d.schema.PropertyByURI(propertyURI)
	if !ok {
		return &UnknownPropertyError{URI: propertyURI}
	}

	coerced, err := d.coerceValue(prop, value)
	if err != nil {
		return err
	}
	if err := d.checkRange(prop, coerced); err != nil {
		return err
	}

	rb := buf.resourceBuffer(resourceID)
	if err := d.checkDomain(ctx, tx, rb, prop); err != nil {
		return err
	}

	if prop.FullTextSync {
		if err := d.preloadFullTextRetractions(ctx, tx, buf, resourceID, rb); err != nil {
			return err
		}
	}

	if !prop.Multivalued {
		if prior, ok := rb.singleValueOf(prop.URI); ok && !prior.Equal(coerced) {
			rb.discardSingleValue(prop.URI)
			return &ConstraintError{Reason: fmt.Sprintf("property %q is single-valued; resource %d already has a distinct value", prop.URI, resourceID)}
		}
	}

	opStart := len(rb.Ops)
	props := []*ontology.Property{prop}
	props = append(props, prop.Supers()...)

	var fullTextURIs []string
	for _, p := range props {
		if p.Multivalued {
			buf.Add(TableOp{Kind: OpInsertMultiValue, Table: p.Column, ResourceID: resourceID, Value: coerced, TargetID: targetID})
		} else {
			buf.Add(TableOp{Kind: OpUpdateColumn, Table: classTableOf(d.schema, p.Domain), Column: p.Column, ResourceID: resourceID, Value: coerced})
		}
		if p.FullTextSync && coerced.Kind != KindResource {
			buf.StageFullText(resourceID, p.URI, coerced.LexicalForm())
			fullTextURIs = append(fullTextURIs, p.URI)
		}
	}

	if !prop.Multivalued {
		rb.recordSingleValue(prop.URI, coerced, opStart, fullTextURIs)
	}
	return nil
}

// DeleteValue stages the removal of propertyURI's value (and every super-
// property's, mirroring InsertValue) from resourceID.
func (d *Decomposer) DeleteValue(buf *UpdateBuffer, resourceID int64, propertyURI string, value Value, targetID int64) error {
	prop, ok := d.schema.PropertyByURI(propertyURI)
	if !ok {
		return &UnknownPropertyError{URI: propertyURI}
	}

	props := []*ontology.Property{prop}
	props = append(props, prop.Supers()...)

	rb := buf.resourceBuffer(resourceID)
	for _, p := range props {
		if p.Multivalued {
			buf.Add(TableOp{Kind: OpDeleteMultiValue, Table: p.Column, ResourceID: resourceID, Value: value, TargetID: targetID})
		} else {
			buf.Add(TableOp{Kind: OpUpdateColumn, Table: classTableOf(d.schema, p.Domain), Column: p.Column, ResourceID: resourceID, Value: Value{}})
		}
		if p.FullTextSync {
			delete(rb.FullText, p.URI)
		}
	}
	if !prop.Multivalued {
		delete(rb.singleValued, prop.URI)
	}
	return nil
}

func (d *Decomposer) coerceValue(prop *ontology.Property, value Value) (Value, error) {
	if value.Kind == KindResource {
		return value, nil
	}
	coerced, err := value.Coerce(prop.Range)
	if err != nil {
		if ite, ok := err.(*InvalidTypeError); ok {
			ite.Property = prop.URI
		}
		return Value{}, err
	}
	return coerced, nil
}

func (d *Decomposer) checkRange(prop *ontology.Property, value Value) error {
	_, rangeIsClass := d.schema.ClassByURI(prop.Range)
	if rangeIsClass && value.Kind != KindResource {
		return &InvalidTypeError{Property: prop.URI, Want: "resource", Got: value.Kind.String()}
	}
	if !rangeIsClass && value.Kind == KindResource {
		return &InvalidTypeError{Property: prop.URI, Want: "literal", Got: value.Kind.String()}
	}
	return nil
}

// checkDomain enforces that resourceID already carries a type matching
// prop.Domain, consulting the in-memory buffer first and falling back to
// the persisted rdfs_Resource_rdf_type table (once per resource per
// transaction) for subjects whose types were asserted in an earlier
// transaction rather than this one.
func (d *Decomposer) checkDomain(ctx context.Context, tx store.Tx, rb *ResourceBuffer, prop *ontology.Property) error {
	if prop.Domain == "" || prop.Domain == RDFSResourceClass {
		return nil
	}
	if rb.hasType(prop.Domain) {
		return nil
	}
	if !rb.typesLoaded {
		if err := d.loadPersistedTypes(ctx, tx, rb); err != nil {
			return err
		}
	}
	if rb.hasType(prop.Domain) {
		return nil
	}
	return &ConstraintError{Reason: fmt.Sprintf("resource %d has no asserted type matching domain %q of property %q", rb.ResourceID, prop.Domain, prop.URI)}
}

func (d *Decomposer) loadPersistedTypes(ctx context.Context, tx store.Tx, rb *ResourceBuffer) error {
	rb.typesLoaded = true

	query := fmt.Sprintf(`SELECT r.uri FROM %s t JOIN rdfs_Resource r ON r.id = t.TargetID WHERE t.ID = $1`, RDFTypeTable)
	rows, err := tx.Query(ctx, query, rb.ResourceID)
	if err != nil {
		if isNoRows(err) {
			return nil
		}
		return &StorageError{Op: "load persisted types", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var uri string
		if err := rows.Scan(&uri); err != nil {
			return &StorageError{Op: "scan persisted type", Err: err}
		}
		rb.markType(uri)
	}
	return rows.Err()
}

// preloadFullTextRetractions stages a retraction entry for every fts-synced,
// non-multivalued property whose domain matches a type resourceID already
// carries, reading back its currently persisted text. Guarded so it runs at
// most once per resource per transaction, the first time any fts-synced
// property is staged.
func (d *Decomposer) preloadFullTextRetractions(ctx context.Context, tx store.Tx, buf *UpdateBuffer, resourceID int64, rb *ResourceBuffer) error {
	if rb.ftsPreloaded {
		return nil
	}
	rb.ftsPreloaded = true

	for _, p := range d.schema.Properties {
		if !p.FullTextSync || p.Multivalued {
			continue
		}
		if p.Domain != RDFSResourceClass && !rb.hasType(p.Domain) {
			continue
		}

		table := classTableOf(d.schema, p.Domain)
		query := fmt.Sprintf(`SELECT %s FROM %s WHERE ID = $1`, p.Column, table)
		row := tx.QueryRow(ctx, query, resourceID)

		var existing string
		switch err := row.Scan(&existing); {
		case err == nil:
			if existing != "" {
				buf.StageFullTextRetraction(resourceID, p.URI, existing)
			}
		case isNoRows(err):
			// No row yet (or column NULL): nothing persisted to retract.
		default:
			return &StorageError{Op: "preload fts retraction", Err: err}
		}
	}
	return nil
}

func classTableOf(schema *ontology.Schema, classURI string) string {
	if c, ok := schema.ClassByURI(classURI); ok {
		return c.Table
	}
	return classURI
}

func tableSeenKey(resourceID int64, table string) string {
	return table + "\x00" + itoa(resourceID)
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
