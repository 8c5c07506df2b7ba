package rdfexport_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triplestore.dev/updateengine/pkg/engine"
	"triplestore.dev/updateengine/pkg/ftsindex/ftstest"
	"triplestore.dev/updateengine/pkg/ontology"
	"triplestore.dev/updateengine/pkg/rdfexport"
	"triplestore.dev/updateengine/pkg/store/storetest"
)

const testOntology = `
classes:
  - uri: "rdfs:Resource"
    table: "rdfs_Resource"
    super_classes: []
  - uri: "nie:InformationElement"
    table: "nie_InformationElement"
    super_classes: ["rdfs:Resource"]

properties:
  - uri: "nie:title"
    column: "nie_title"
    domain: "nie:InformationElement"
    range: "xsd:string"
    multivalued: false
    fulltext: true
    embedded: true
    super_properties: []
`

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	schema, err := ontology.Load(strings.NewReader(testOntology))
	require.NoError(t, err)
	return engine.New(storetest.New(), ftstest.New(), schema, 0, 0)
}

func TestImportAppliesEachLineAsInsertStatement(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	txn, err := e.Begin(ctx)
	require.NoError(t, err)

	input := strings.NewReader(strings.Join([]string{
		`<urn:doc:1> <` + engine.RDFType + `> <nie:InformationElement> .`,
		`<urn:doc:1> <nie:title> "hello world" .`,
		``,
		`# a comment line is skipped`,
	}, "\n"))

	require.NoError(t, rdfexport.Import(ctx, txn, input))
	require.NoError(t, txn.Commit(ctx))
}

func TestImportRejectsMalformedLine(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	txn, err := e.Begin(ctx)
	require.NoError(t, err)

	input := strings.NewReader(`<urn:doc:1> <nie:title> unterminated`)
	err = rdfexport.Import(ctx, txn, input)
	assert.Error(t, err)
	require.NoError(t, txn.Rollback(ctx))
}
