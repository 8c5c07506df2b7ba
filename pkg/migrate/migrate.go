// Package migrate turns a loaded ontology schema into the relational
// DDL the engine's decomposer assumes already exists: one table per
// class keyed by ID, one column per embedded property, and one side
// table per multivalued property. It is the one piece of schema
// management this engine owns itself, since the relational layout is
// entirely derived from the ontology document rather than hand-written.
package migrate

import (
	"context"
	"fmt"
	"sort"

	"triplestore.dev/updateengine/pkg/ontology"
	"triplestore.dev/updateengine/pkg/store"
)

// GenerateDDL returns the CREATE TABLE statements needed to materialize
// schema, in dependency order: the resource table first, then one table
// per class (carrying every embedded property declared with that class
// as its Domain), then one side table per multivalued property.
//
// Statements are idempotent (IF NOT EXISTS) so Apply can run against an
// already-migrated database without error, the same posture the engine's
// own row inserts take (ON CONFLICT DO NOTHING).
func GenerateDDL(schema *ontology.Schema) []string {
	var stmts []string
	stmts = append(stmts, `CREATE TABLE IF NOT EXISTS rdfs_Resource (
		id BIGINT PRIMARY KEY,
		uri TEXT UNIQUE NOT NULL,
		Added BIGINT NOT NULL DEFAULT 0,
		Modified BIGINT NOT NULL DEFAULT 0,
		Available SMALLINT NOT NULL DEFAULT 1
	)`)
	stmts = append(stmts, `CREATE TABLE IF NOT EXISTS rdfs_Resource_rdf_type (
		ID BIGINT NOT NULL REFERENCES rdfs_Resource(id),
		TargetID BIGINT NOT NULL REFERENCES rdfs_Resource(id),
		PRIMARY KEY (ID, TargetID)
	)`)
	stmts = append(stmts, `CREATE TABLE IF NOT EXISTS rdfs_Class_instance_count (
		class_uri TEXT PRIMARY KEY,
		count BIGINT NOT NULL DEFAULT 0
	)`)

	for _, table := range sortedClassTables(schema) {
		stmts = append(stmts, classTableDDL(schema, table))
	}
	for _, prop := range sortedMultivalued(schema) {
		stmts = append(stmts, multivaluedTableDDL(prop))
	}
	return stmts
}

// Apply runs every GenerateDDL statement against tx in order.
func Apply(ctx context.Context, tx store.Tx, schema *ontology.Schema) error {
	for _, stmt := range GenerateDDL(schema) {
		if err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %s: %w", stmt, err)
		}
	}
	return nil
}

func classTableDDL(schema *ontology.Schema, table string) string {
	columns := []string{"ID BIGINT PRIMARY KEY REFERENCES rdfs_Resource(id)"}
	for _, prop := range embeddedPropertiesFor(schema, table) {
		columns = append(columns, fmt.Sprintf("%s %s", prop.Column, sqlColumnType(schema, prop)))
	}

	def := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (", table)
	for i, col := range columns {
		if i > 0 {
			def += ", "
		}
		def += col
	}
	return def + ")"
}

// sqlColumnType maps a property's declared range to the column type the
// engine's columnArg binds into it: resource-ranged properties and
// anything not a recognized xsd numeric/boolean/date datatype store the
// URI or lexical form as TEXT, matching Value's KindString fallback.
func sqlColumnType(schema *ontology.Schema, prop *ontology.Property) string {
	if _, ok := schema.ClassByURI(prop.Range); ok {
		return "BIGINT REFERENCES rdfs_Resource(id)"
	}
	switch prop.Range {
	case "xsd:integer", "xsd:int", "xsd:long", "xsd:short":
		return "BIGINT"
	case "xsd:double", "xsd:float", "xsd:decimal":
		return "DOUBLE PRECISION"
	case "xsd:boolean":
		return "SMALLINT"
	case "xsd:date", "xsd:dateTime":
		return "BIGINT"
	default:
		return "TEXT"
	}
}

func multivaluedTableDDL(prop *ontology.Property) string {
	return fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (ID BIGINT NOT NULL REFERENCES rdfs_Resource(id), TargetID BIGINT NOT NULL REFERENCES rdfs_Resource(id), PRIMARY KEY (ID, TargetID))`,
		prop.Column,
	)
}

// embeddedPropertiesFor returns every non-multivalued property whose
// Domain is the class materializing to table, sorted by column name for
// deterministic DDL output.
func embeddedPropertiesFor(schema *ontology.Schema, table string) []*ontology.Property {
	var props []*ontology.Property
	for _, p := range schema.Properties {
		if p.Multivalued {
			continue
		}
		class, ok := schema.ClassByURI(p.Domain)
		if !ok || class.Table != table {
			continue
		}
		props = append(props, p)
	}
	sort.Slice(props, func(i, j int) bool { return props[i].Column < props[j].Column })
	return props
}

func sortedClassTables(schema *ontology.Schema) []string {
	seen := make(map[string]bool, len(schema.Classes))
	var tables []string
	for _, c := range schema.Classes {
		if seen[c.Table] {
			continue
		}
		seen[c.Table] = true
		tables = append(tables, c.Table)
	}
	sort.Strings(tables)
	return tables
}

func sortedMultivalued(schema *ontology.Schema) []*ontology.Property {
	var props []*ontology.Property
	for _, p := range schema.Properties {
		if p.Multivalued {
			props = append(props, p)
		}
	}
	sort.Slice(props, func(i, j int) bool { return props[i].Column < props[j].Column })
	return props
}
