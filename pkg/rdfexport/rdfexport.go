// Package rdfexport serializes and loads the relational store's content
// as N-Triples, the same streaming-friendly line format an RDF4J
// repository's statements endpoint speaks. Where the store's HTTP
// counterpart shipped whole files over the wire to a remote triple
// store, this package reads and writes directly against the relational
// tables the ontology describes, since the triples here already live
// in Postgres rather than behind a separate server.
package rdfexport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"triplestore.dev/updateengine/pkg/engine"
	"triplestore.dev/updateengine/pkg/ontology"
	"triplestore.dev/updateengine/pkg/store"
)

// Export writes every rdf:type assertion and property value the ontology's
// tables currently hold, one N-Triples line per statement, to w.
func Export(ctx context.Context, tx store.Tx, schema *ontology.Schema, w io.Writer) error {
	bw := bufio.NewWriter(w)

	for _, class := range schema.Classes {
		if err := exportClassRows(ctx, tx, class, bw); err != nil {
			return err
		}
	}
	for _, prop := range schema.Properties {
		if prop.Multivalued {
			if err := exportMultivalued(ctx, tx, prop, bw); err != nil {
				return err
			}
			continue
		}
		if !prop.Embedded {
			continue
		}
		table := classTableOf(schema, prop.Domain)
		rangeIsClass := isClassRange(schema, prop.Range)
		if err := exportColumn(ctx, tx, table, prop, rangeIsClass, bw); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func exportClassRows(ctx context.Context, tx store.Tx, class *ontology.Class, w *bufio.Writer) error {
	rows, err := tx.Query(ctx, fmt.Sprintf(`SELECT r.uri FROM %s c JOIN rdfs_Resource r ON r.id = c.ID`, class.Table))
	if err != nil {
		return fmt.Errorf("rdfexport: export class %s: %w", class.URI, err)
	}
	defer rows.Close()
	for rows.Next() {
		var uri string
		if err := rows.Scan(&uri); err != nil {
			return fmt.Errorf("rdfexport: scan class row: %w", err)
		}
		writeTriple(w, uri, engine.RDFType, resourceTerm(class.URI))
	}
	return rows.Err()
}

func exportMultivalued(ctx context.Context, tx store.Tx, prop *ontology.Property, w *bufio.Writer) error {
	query := fmt.Sprintf(`SELECT s.uri, o.uri FROM %s m
		JOIN rdfs_Resource s ON s.id = m.ID
		JOIN rdfs_Resource o ON o.id = m.TargetID`, prop.Column)
	rows, err := tx.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("rdfexport: export property %s: %w", prop.URI, err)
	}
	defer rows.Close()
	for rows.Next() {
		var subjectURI, objectURI string
		if err := rows.Scan(&subjectURI, &objectURI); err != nil {
			return fmt.Errorf("rdfexport: scan multivalue row: %w", err)
		}
		writeTriple(w, subjectURI, prop.URI, resourceTerm(objectURI))
	}
	return rows.Err()
}

func exportColumn(ctx context.Context, tx store.Tx, table string, prop *ontology.Property, rangeIsClass bool, w *bufio.Writer) error {
	query := fmt.Sprintf(`SELECT r.uri, c.%s FROM %s c JOIN rdfs_Resource r ON r.id = c.ID WHERE c.%s IS NOT NULL`,
		prop.Column, table, prop.Column)
	rows, err := tx.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("rdfexport: export property %s: %w", prop.URI, err)
	}
	defer rows.Close()
	for rows.Next() {
		var subjectURI, value string
		if err := rows.Scan(&subjectURI, &value); err != nil {
			return fmt.Errorf("rdfexport: scan column row: %w", err)
		}
		if rangeIsClass {
			writeTriple(w, subjectURI, prop.URI, resourceTerm(value))
		} else {
			writeTriple(w, subjectURI, prop.URI, literalTerm(value, prop.Range))
		}
	}
	return rows.Err()
}

func writeTriple(w *bufio.Writer, subjectURI, predicateURI, object string) {
	fmt.Fprintf(w, "<%s> <%s> %s .\n", subjectURI, predicateURI, object)
}

func resourceTerm(uri string) string {
	return "<" + uri + ">"
}

func literalTerm(value, datatype string) string {
	escaped := escapeLiteral(value)
	if datatype == "" || datatype == "xsd:string" {
		return `"` + escaped + `"`
	}
	return `"` + escaped + `"^^<` + datatype + ">"
}

// escapeLiteral applies the minimal N-Triples escaping the format
// requires inside a quoted literal: backslash, double quote, and the
// two control characters that cannot appear literally on a single line.
func escapeLiteral(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func classTableOf(schema *ontology.Schema, classURI string) string {
	if c, ok := schema.ClassByURI(classURI); ok {
		return c.Table
	}
	return classURI
}

func isClassRange(schema *ontology.Schema, rangeURI string) bool {
	_, ok := schema.ClassByURI(rangeURI)
	return ok
}

// Import reads N-Triples lines from r and replays each as an insert
// statement against txn, inside its own savepoint so one malformed or
// rejected line does not unwind lines already applied from the same
// stream.
func Import(ctx context.Context, txn *engine.Transaction, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		subject, predicate, object, err := parseNTriplesLine(line)
		if err != nil {
			return fmt.Errorf("rdfexport: line %d: %w", lineNo, err)
		}
		lineErr := txn.ExecuteUpdateText(ctx, func(t *engine.Transaction) error {
			return t.InsertStatement(ctx, subject, predicate, object)
		})
		if lineErr != nil {
			return fmt.Errorf("rdfexport: line %d: %w", lineNo, lineErr)
		}
	}
	return scanner.Err()
}

// parseNTriplesLine parses one "<s> <p> o ." line. It accepts the same
// subject/predicate/object term shapes sparqlshim does for SPARQL
// Update triple blocks, since both are ground N-Triples-family syntax.
func parseNTriplesLine(line string) (subject, predicate string, object engine.Value, err error) {
	line = strings.TrimSuffix(strings.TrimSpace(line), ".")
	line = strings.TrimSpace(line)

	fields, err := splitFields(line)
	if err != nil {
		return "", "", engine.Value{}, err
	}
	if len(fields) != 3 {
		return "", "", engine.Value{}, fmt.Errorf("expected subject predicate object, got %q", line)
	}

	subject, err = parseURIOrBlank(fields[0])
	if err != nil {
		return "", "", engine.Value{}, err
	}
	predicate, err = parseURIOrBlank(fields[1])
	if err != nil {
		return "", "", engine.Value{}, err
	}
	object, err = parseObjectTerm(fields[2])
	if err != nil {
		return "", "", engine.Value{}, err
	}
	return subject, predicate, object, nil
}

func splitFields(line string) ([]string, error) {
	var fields []string
	var cur strings.Builder
	inQuote := false
	flush := func() {
		if cur.Len() > 0 {
			fields = append(fields, cur.String())
			cur.Reset()
		}
	}
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '"':
			inQuote = !inQuote
			cur.WriteByte(c)
		case c == ' ' && !inQuote:
			flush()
		default:
			cur.WriteByte(c)
		}
	}
	flush()
	return fields, nil
}

func parseURIOrBlank(field string) (string, error) {
	if strings.HasPrefix(field, "_:") {
		return field, nil
	}
	if strings.HasPrefix(field, "<") && strings.HasSuffix(field, ">") {
		return field[1 : len(field)-1], nil
	}
	return "", fmt.Errorf("expected <uri> or blank node, got %q", field)
}

func parseObjectTerm(field string) (engine.Value, error) {
	if strings.HasPrefix(field, "<") || strings.HasPrefix(field, "_:") {
		uri, err := parseURIOrBlank(field)
		if err != nil {
			return engine.Value{}, err
		}
		return engine.NewResource(uri), nil
	}
	if !strings.HasPrefix(field, `"`) {
		return engine.Value{}, fmt.Errorf("expected literal or <uri>, got %q", field)
	}

	end := strings.LastIndexByte(field, '"')
	if end <= 0 {
		return engine.Value{}, fmt.Errorf("unterminated literal %q", field)
	}
	lexical := unescapeLiteral(field[1:end])
	suffix := field[end+1:]

	v := engine.NewLiteral(lexical, "")
	switch {
	case strings.HasPrefix(suffix, "^^<") && strings.HasSuffix(suffix, ">"):
		v.Datatype = suffix[3 : len(suffix)-1]
	case strings.HasPrefix(suffix, "@"):
		v.Lang = suffix[1:]
	}
	return v, nil
}

func unescapeLiteral(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i == len(s)-1 {
			b.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case '"':
			b.WriteByte('"')
		case '\\':
			b.WriteByte('\\')
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
