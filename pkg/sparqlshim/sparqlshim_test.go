package sparqlshim_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triplestore.dev/updateengine/pkg/engine"
	"triplestore.dev/updateengine/pkg/sparqlshim"
)

func TestParseInsertDataBlock(t *testing.T) {
	text := `INSERT DATA {
		<urn:doc:1> <http://tracker.api.gnome.org/ontology/v3/nie#title> "hello world" .
		<urn:doc:1> <http://www.w3.org/1999/02/22-rdf-syntax-ns#type> <urn:class:Document> .
	}`

	blocks, err := sparqlshim.Parse(text)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, sparqlshim.BlockInsert, blocks[0].Kind)
	require.Len(t, blocks[0].Triples, 2)

	first := blocks[0].Triples[0]
	assert.Equal(t, "urn:doc:1", first.Subject)
	assert.Equal(t, "http://tracker.api.gnome.org/ontology/v3/nie#title", first.Predicate)
	assert.Equal(t, engine.KindString, first.Object.Kind)
	assert.Equal(t, "hello world", first.Object.Str)
}

func TestParseDeleteDataBlockWithDatatype(t *testing.T) {
	text := `DELETE DATA {
		<urn:doc:1> <urn:prop:count> "3"^^<http://www.w3.org/2001/XMLSchema#integer> .
	}`

	blocks, err := sparqlshim.Parse(text)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, sparqlshim.BlockDelete, blocks[0].Kind)
	assert.Equal(t, "http://www.w3.org/2001/XMLSchema#integer", blocks[0].Triples[0].Object.Datatype)
}

func TestParseBlankNodeSubject(t *testing.T) {
	text := `INSERT DATA { _:b0 <urn:prop:title> "untitled" . }`
	blocks, err := sparqlshim.Parse(text)
	require.NoError(t, err)
	assert.Equal(t, "_:b0", blocks[0].Triples[0].Subject)
}

func TestParseRejectsUnterminatedBlock(t *testing.T) {
	_, err := sparqlshim.Parse(`INSERT DATA { <urn:doc:1> <urn:p> "x" .`)
	assert.Error(t, err)
}
