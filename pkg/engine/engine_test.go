package engine_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triplestore.dev/updateengine/pkg/engine"
	"triplestore.dev/updateengine/pkg/ftsindex/ftstest"
	"triplestore.dev/updateengine/pkg/ontology"
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
  - uri: "nao:Tag"
    table: "nao_Tag"
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
  - uri: "nao:hasTag"
    column: "nao_hasTag"
    domain: "rdfs:Resource"
    range: "nao:Tag"
    multivalued: true
    fulltext: false
    embedded: false
    super_properties: []
`

func newTestEngine(t *testing.T) (*engine.Engine, *storetest.DB, *ftstest.Index) {
	t.Helper()
	schema, err := ontology.Load(strings.NewReader(testOntology))
	require.NoError(t, err)

	db := storetest.New()
	idx := ftstest.New()
	e := engine.New(db, idx, schema, 0, 0)
	return e, db, idx
}

func TestInsertStatementStagesClassAndColumn(t *testing.T) {
	e, db, idx := newTestEngine(t)
	ctx := context.Background()

	txn, err := e.Begin(ctx)
	require.NoError(t, err)

	require.NoError(t, txn.InsertStatement(ctx, "urn:doc:1", engine.RDFType, engine.NewResource("nie:InformationElement")))
	require.NoError(t, txn.InsertStatement(ctx, "urn:doc:1", "nie:title", engine.NewLiteral("hello", "xsd:string")))
	require.NoError(t, txn.Commit(ctx))

	assert.Contains(t, db.Log, "INSERT INTO nie_InformationElement (ID) VALUES ($1) ON CONFLICT DO NOTHING")
	assert.Contains(t, db.Log, "INSERT INTO rdfs_Resource (ID) VALUES ($1) ON CONFLICT DO NOTHING")
	assert.Contains(t, db.Log, "UPDATE nie_InformationElement SET nie_title = $1 WHERE ID = $2")
	assert.Len(t, idx.Committed, 1)
	assert.Equal(t, "hello", idx.Committed[0].Text)
}

func TestInsertStatementRejectsUnknownProperty(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	txn, err := e.Begin(ctx)
	require.NoError(t, err)

	err = txn.InsertStatement(ctx, "urn:doc:1", "unknown:predicate", engine.NewLiteral("x", ""))
	var upErr *engine.UnknownPropertyError
	assert.ErrorAs(t, err, &upErr)
	require.NoError(t, txn.Rollback(ctx))
}

func TestMultivaluedPropertyInsertsSideTableRow(t *testing.T) {
	e, db, _ := newTestEngine(t)
	ctx := context.Background()

	txn, err := e.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, txn.InsertStatement(ctx, "urn:doc:1", "nao:hasTag", engine.NewResource("urn:tag:1")))
	require.NoError(t, txn.Commit(ctx))

	assert.Contains(t, db.Log, "INSERT INTO nao_hasTag (ID, TargetID) VALUES ($1, $2) ON CONFLICT DO NOTHING")
}

func TestBlankNodeMaterializationDeduplicates(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	txn, err := e.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, txn.InsertStatement(ctx, "_:b0", "nie:title", engine.NewLiteral("same", "xsd:string")))
	require.NoError(t, txn.Commit(ctx))

	txn2, err := e.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, txn2.InsertStatement(ctx, "_:b1", "nie:title", engine.NewLiteral("same", "xsd:string")))
	require.NoError(t, txn2.Commit(ctx))
	// Both blank nodes asserted identical content; this only documents
	// that materialization does not error, content-addressing collapse
	// is exercised directly in blanknode_test.go.
}

func TestInsertValueSingleValuedConflictDiscardsFirstInsert(t *testing.T) {
	e, db, idx := newTestEngine(t)
	ctx := context.Background()

	txn, err := e.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, txn.InsertStatement(ctx, "urn:doc:1", engine.RDFType, engine.NewResource("nie:InformationElement")))
	require.NoError(t, txn.InsertStatement(ctx, "urn:doc:1", "nie:title", engine.NewLiteral("hello", "xsd:string")))

	err = txn.InsertStatement(ctx, "urn:doc:1", "nie:title", engine.NewLiteral("world", "xsd:string"))
	var cErr *engine.ConstraintError
	require.ErrorAs(t, err, &cErr)

	require.NoError(t, txn.Commit(ctx))

	for _, line := range db.Log {
		assert.NotContains(t, line, "nie_title")
	}
	assert.Empty(t, idx.Committed)
}

func TestInsertValueSingleValuedAllowsSameValueTwice(t *testing.T) {
	e, db, _ := newTestEngine(t)
	ctx := context.Background()

	txn, err := e.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, txn.InsertStatement(ctx, "urn:doc:1", engine.RDFType, engine.NewResource("nie:InformationElement")))
	require.NoError(t, txn.InsertStatement(ctx, "urn:doc:1", "nie:title", engine.NewLiteral("hello", "xsd:string")))
	require.NoError(t, txn.InsertStatement(ctx, "urn:doc:1", "nie:title", engine.NewLiteral("hello", "xsd:string")))
	require.NoError(t, txn.Commit(ctx))

	docID, ok := db.IDForURI("urn:doc:1")
	require.True(t, ok)
	val, ok := db.ColumnValue("nie_InformationElement", docID, "nie_title")
	require.True(t, ok)
	assert.Equal(t, "hello", val)
}

func TestMultivaluedPropertyDedupesExactRowCount(t *testing.T) {
	e, db, _ := newTestEngine(t)
	ctx := context.Background()

	txn, err := e.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, txn.InsertStatement(ctx, "urn:doc:1", "nao:hasTag", engine.NewResource("urn:tag:1")))
	require.NoError(t, txn.InsertStatement(ctx, "urn:doc:1", "nao:hasTag", engine.NewResource("urn:tag:1")))
	require.NoError(t, txn.Commit(ctx))

	docID, ok := db.IDForURI("urn:doc:1")
	require.True(t, ok)
	assert.Equal(t, 1, db.MultiValueCountForID("nao_hasTag", docID))
}

func TestInsertClassStagesRDFTypeSideTableAndInstanceCounter(t *testing.T) {
	e, db, _ := newTestEngine(t)
	ctx := context.Background()

	txn, err := e.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, txn.InsertStatement(ctx, "urn:doc:1", engine.RDFType, engine.NewResource("nie:InformationElement")))
	require.NoError(t, txn.Commit(ctx))

	docID, ok := db.IDForURI("urn:doc:1")
	require.True(t, ok)
	classID, ok := db.IDForURI("nie:InformationElement")
	require.True(t, ok)
	rootID, ok := db.IDForURI("rdfs:Resource")
	require.True(t, ok)

	// nie:InformationElement and its super-class rdfs:Resource both get
	// attached, each with its own side-table row and instance counter.
	assert.Equal(t, 2, db.MultiValueCountForID("rdfs_Resource_rdf_type", docID))
	assert.True(t, db.HasMultiValue("rdfs_Resource_rdf_type", docID, classID))
	assert.True(t, db.HasMultiValue("rdfs_Resource_rdf_type", docID, rootID))
	assert.Equal(t, int64(1), db.ClassInstanceCount("nie:InformationElement"))
	assert.Equal(t, int64(1), db.ClassInstanceCount("rdfs:Resource"))
}

func TestTrackerURIRenamesResourceInPlace(t *testing.T) {
	e, db, _ := newTestEngine(t)
	ctx := context.Background()

	txn, err := e.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, txn.InsertStatement(ctx, "urn:doc:1", engine.RDFType, engine.NewResource("nie:InformationElement")))

	id1, ok := db.IDForURI("urn:doc:1")
	require.True(t, ok)

	require.NoError(t, txn.InsertStatement(ctx, "urn:doc:1", engine.TrackerURIPredicate, engine.NewLiteral("urn:doc:1-renamed", "")))
	require.NoError(t, txn.Commit(ctx))

	assert.Contains(t, db.Log, "UPDATE rdfs_Resource SET uri = $1 WHERE id = $2")

	newID, ok := db.IDForURI("urn:doc:1-renamed")
	require.True(t, ok)
	assert.Equal(t, id1, newID)

	_, staleLookup := db.IDForURI("urn:doc:1")
	assert.False(t, staleLookup)

	// Subsequent statements against the renamed URI resolve to the same
	// resource row rather than materializing a new one.
	txn2, err := e.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, txn2.InsertStatement(ctx, "urn:doc:1-renamed", "nie:title", engine.NewLiteral("still here", "xsd:string")))
	require.NoError(t, txn2.Commit(ctx))

	val, ok := db.ColumnValue("nie_InformationElement", id1, "nie_title")
	require.True(t, ok)
	assert.Equal(t, "still here", val)
}

func TestInsertThenDeleteRoundTrip(t *testing.T) {
	e, db, _ := newTestEngine(t)
	ctx := context.Background()

	txn, err := e.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, txn.InsertStatement(ctx, "urn:doc:1", engine.RDFType, engine.NewResource("nie:InformationElement")))
	require.NoError(t, txn.InsertStatement(ctx, "urn:doc:1", "nie:title", engine.NewLiteral("hello", "xsd:string")))
	require.NoError(t, txn.Commit(ctx))

	docID, ok := db.IDForURI("urn:doc:1")
	require.True(t, ok)
	val, ok := db.ColumnValue("nie_InformationElement", docID, "nie_title")
	require.True(t, ok)
	assert.Equal(t, "hello", val)

	txn2, err := e.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, txn2.DeleteStatement(ctx, "urn:doc:1", "nie:title", engine.NewLiteral("hello", "xsd:string")))
	require.NoError(t, txn2.Commit(ctx))

	val, ok = db.ColumnValue("nie_InformationElement", docID, "nie_title")
	require.True(t, ok)
	assert.Equal(t, "", val)
}

func TestFullTextStaleValueRetractedBeforeRewrite(t *testing.T) {
	e, _, idx := newTestEngine(t)
	ctx := context.Background()

	txn, err := e.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, txn.InsertStatement(ctx, "urn:doc:1", engine.RDFType, engine.NewResource("nie:InformationElement")))
	require.NoError(t, txn.InsertStatement(ctx, "urn:doc:1", "nie:title", engine.NewLiteral("hello", "xsd:string")))
	require.NoError(t, txn.Commit(ctx))

	txn2, err := e.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, txn2.InsertStatement(ctx, "urn:doc:1", "nie:title", engine.NewLiteral("goodbye", "xsd:string")))
	require.NoError(t, txn2.Commit(ctx))

	require.Len(t, idx.Committed, 3)
	assert.Equal(t, "hello", idx.Committed[0].Text)
	assert.Equal(t, "", idx.Committed[1].Text)
	assert.Equal(t, "goodbye", idx.Committed[2].Text)
}

func TestInsertValueRejectsResourceAgainstLiteralRangedProperty(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	txn, err := e.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, txn.InsertStatement(ctx, "urn:doc:1", engine.RDFType, engine.NewResource("nie:InformationElement")))

	err = txn.InsertStatement(ctx, "urn:doc:1", "nie:title", engine.NewResource("urn:not:a:literal"))
	var ite *engine.InvalidTypeError
	assert.ErrorAs(t, err, &ite)

	require.NoError(t, txn.Rollback(ctx))
}

func TestInsertValueRejectsMissingDomainType(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	txn, err := e.Begin(ctx)
	require.NoError(t, err)

	err = txn.InsertStatement(ctx, "urn:doc:1", "nie:title", engine.NewLiteral("hello", "xsd:string"))
	var cErr *engine.ConstraintError
	require.ErrorAs(t, err, &cErr)

	require.NoError(t, txn.Rollback(ctx))
}

func TestExecuteUpdateTextRollsBackToSavepointOnly(t *testing.T) {
	e, db, _ := newTestEngine(t)
	ctx := context.Background()

	txn, err := e.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, txn.InsertStatement(ctx, "urn:doc:1", engine.RDFType, engine.NewResource("nie:InformationElement")))
	logLenAfterOuter := len(db.Log)

	err = txn.ExecuteUpdateText(ctx, func(inner *engine.Transaction) error {
		return inner.InsertStatement(ctx, "urn:doc:2", "unknown:predicate", engine.NewLiteral("x", ""))
	})
	var upErr *engine.UnknownPropertyError
	assert.ErrorAs(t, err, &upErr)

	// The savepoint and everything staged inside it were rolled back; the
	// log is exactly what it was before ExecuteUpdateText was called.
	assert.Equal(t, logLenAfterOuter, len(db.Log))

	require.NoError(t, txn.InsertStatement(ctx, "urn:doc:1", "nie:title", engine.NewLiteral("after savepoint", "xsd:string")))
	require.NoError(t, txn.Commit(ctx))
}
