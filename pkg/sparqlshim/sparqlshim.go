// Package sparqlshim extracts the INSERT DATA / DELETE DATA blocks of a
// SPARQL 1.1 Update request and replays them through the engine's
// statement-level API. It is deliberately not a general SPARQL parser:
// the engine only needs the ground triples a block asserts or retracts,
// not variable bindings, filters, or WHERE-clause pattern matching.
package sparqlshim

import (
	"context"
	"fmt"
	"strings"

	"triplestore.dev/updateengine/pkg/engine"
)

// BlockKind distinguishes INSERT DATA from DELETE DATA.
type BlockKind uint8

const (
	BlockInsert BlockKind = iota
	BlockDelete
)

// Triple is one parsed ground triple from an update block.
type Triple struct {
	Subject   string
	Predicate string
	Object    engine.Value
}

// Block is one INSERT DATA or DELETE DATA clause, in source order.
type Block struct {
	Kind    BlockKind
	Triples []Triple
}

// Parse extracts every INSERT DATA / DELETE DATA block from a SPARQL 1.1
// Update request. Blocks are returned in the order they appear in text;
// anything outside a recognized block (prefixes, WITH clauses, comments)
// is ignored.
func Parse(text string) ([]Block, error) {
	var blocks []Block
	rest := text
	for {
		kind, idx, kindLen, ok := nextBlockKeyword(rest)
		if !ok {
			break
		}
		body, after, err := extractBraces(rest[idx+kindLen:])
		if err != nil {
			return nil, fmt.Errorf("sparqlshim: %w", err)
		}
		triples, err := parseTriples(body)
		if err != nil {
			return nil, fmt.Errorf("sparqlshim: %w", err)
		}
		blocks = append(blocks, Block{Kind: kind, Triples: triples})
		rest = after
	}
	return blocks, nil
}

// Apply parses text and replays every block through txn, each inside its
// own ExecuteUpdateText savepoint so one block's failure does not unwind
// the blocks already applied earlier in the same request.
func Apply(ctx context.Context, txn *engine.Transaction, text string) error {
	blocks, err := Parse(text)
	if err != nil {
		return err
	}
	for _, block := range blocks {
		block := block
		err := txn.ExecuteUpdateText(ctx, func(t *engine.Transaction) error {
			for _, tr := range block.Triples {
				var err error
				switch block.Kind {
				case BlockInsert:
					err = t.InsertStatement(ctx, tr.Subject, tr.Predicate, tr.Object)
				case BlockDelete:
					err = t.DeleteStatement(ctx, tr.Subject, tr.Predicate, tr.Object)
				}
				if err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func nextBlockKeyword(text string) (kind BlockKind, idx int, kindLen int, ok bool) {
	upper := strings.ToUpper(text)
	insertIdx := strings.Index(upper, "INSERT DATA")
	deleteIdx := strings.Index(upper, "DELETE DATA")

	switch {
	case insertIdx == -1 && deleteIdx == -1:
		return 0, 0, 0, false
	case insertIdx == -1:
		return BlockDelete, deleteIdx, len("DELETE DATA"), true
	case deleteIdx == -1:
		return BlockInsert, insertIdx, len("INSERT DATA"), true
	case insertIdx < deleteIdx:
		return BlockInsert, insertIdx, len("INSERT DATA"), true
	default:
		return BlockDelete, deleteIdx, len("DELETE DATA"), true
	}
}

// extractBraces finds the first "{", then the matching "}" accounting for
// nesting (GRAPH <uri> { ... } blocks inside INSERT/DELETE DATA), and
// returns the body between them plus whatever text follows the close.
func extractBraces(text string) (body, after string, err error) {
	start := strings.IndexByte(text, '{')
	if start == -1 {
		return "", "", fmt.Errorf("expected '{' after INSERT/DELETE DATA")
	}
	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start+1 : i], text[i+1:], nil
			}
		}
	}
	return "", "", fmt.Errorf("unbalanced '{' in update body")
}

// parseTriples splits body on '.' statement terminators, skipping dots
// inside quoted literals, and parses each resulting line as one triple.
func parseTriples(body string) ([]Triple, error) {
	var triples []Triple
	inQuote := false
	start := 0
	for i := 0; i < len(body); i++ {
		switch body[i] {
		case '"':
			inQuote = !inQuote
		case '.':
			if inQuote {
				continue
			}
			line := strings.TrimSpace(body[start:i])
			start = i + 1
			if line == "" {
				continue
			}
			tr, err := parseTriple(line)
			if err != nil {
				return nil, err
			}
			triples = append(triples, tr)
		}
	}
	return triples, nil
}

func parseTriple(line string) (Triple, error) {
	fields, err := splitTripleFields(line)
	if err != nil {
		return Triple{}, err
	}
	if len(fields) != 3 {
		return Triple{}, fmt.Errorf("expected subject predicate object, got %q", line)
	}

	subject, err := parseSubject(fields[0])
	if err != nil {
		return Triple{}, err
	}
	predicate, err := parseURIOrBlank(fields[1])
	if err != nil {
		return Triple{}, err
	}
	object, err := parseObject(fields[2])
	if err != nil {
		return Triple{}, err
	}
	return Triple{Subject: subject, Predicate: predicate, Object: object}, nil
}

// splitTripleFields splits a triple line into exactly three whitespace-
// separated fields, respecting quoted literals that may themselves
// contain spaces.
func splitTripleFields(line string) ([]string, error) {
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

func parseSubject(field string) (string, error) {
	if strings.HasPrefix(field, "_:") {
		return field, nil
	}
	return parseURIOrBlank(field)
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

func parseObject(field string) (engine.Value, error) {
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

	// Literal, optionally followed by ^^<datatype> or @lang.
	end := strings.LastIndexByte(field, '"')
	if end <= 0 {
		return engine.Value{}, fmt.Errorf("unterminated literal %q", field)
	}
	lexical := field[1:end]
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
