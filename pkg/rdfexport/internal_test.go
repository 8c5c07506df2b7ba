package rdfexport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triplestore.dev/updateengine/pkg/engine"
)

func TestParseNTriplesLineResourceObject(t *testing.T) {
	s, p, o, err := parseNTriplesLine(`<urn:doc:1> <nie:hasTag> <urn:tag:1> .`)
	require.NoError(t, err)
	assert.Equal(t, "urn:doc:1", s)
	assert.Equal(t, "nie:hasTag", p)
	assert.Equal(t, engine.NewResource("urn:tag:1"), o)
}

func TestParseNTriplesLineTypedLiteral(t *testing.T) {
	_, _, o, err := parseNTriplesLine(`<urn:doc:1> <nie:count> "3"^^<xsd:integer> .`)
	require.NoError(t, err)
	assert.Equal(t, engine.KindString, o.Kind)
	assert.Equal(t, "3", o.Str)
	assert.Equal(t, "xsd:integer", o.Datatype)
}

func TestParseNTriplesLineRejectsUnterminatedLiteral(t *testing.T) {
	_, _, _, err := parseNTriplesLine(`<urn:doc:1> <nie:title> unterminated .`)
	assert.Error(t, err)
}

func TestEscapeLiteralEscapesQuotesAndNewlines(t *testing.T) {
	assert.Equal(t, `say \"hi\"\n`, escapeLiteral("say \"hi\"\n"))
}

func TestUnescapeLiteralRoundTrips(t *testing.T) {
	original := "say \"hi\"\nthere"
	assert.Equal(t, original, unescapeLiteral(escapeLiteral(original)))
}

func TestLiteralTermPlainVsTyped(t *testing.T) {
	assert.Equal(t, `"hello"`, literalTerm("hello", ""))
	assert.Equal(t, `"hello"`, literalTerm("hello", "xsd:string"))
	assert.Equal(t, `"3"^^<xsd:integer>`, literalTerm("3", "xsd:integer"))
}
