package docview

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triplestore.dev/updateengine/pkg/engine"
)

func TestMergeStatementBuildsDocumentOnFirstTouch(t *testing.T) {
	docs := make(map[string]map[string]interface{})
	mergeStatement(docs, "urn:doc:1", engine.RDFType, engine.NewResource("nie:InformationElement"))
	mergeStatement(docs, "urn:doc:1", "nie:title", engine.NewLiteral("hello", "xsd:string"))

	doc := docs["urn:doc:1"]
	require.NotNil(t, doc)
	assert.Equal(t, "urn:doc:1", doc["_id"])
	assert.Equal(t, "urn:doc:1", doc["@id"])
	assert.Equal(t, []string{"nie:InformationElement"}, doc["@type"])
	assert.Equal(t, "hello", doc["nie:title"])
}

func TestMergeStatementPromotesRepeatedPredicateToArray(t *testing.T) {
	docs := make(map[string]map[string]interface{})
	mergeStatement(docs, "urn:doc:1", "nao:hasTag", engine.NewResource("urn:tag:1"))
	mergeStatement(docs, "urn:doc:1", "nao:hasTag", engine.NewResource("urn:tag:2"))

	tags, ok := docs["urn:doc:1"]["nao:hasTag"].([]interface{})
	require.True(t, ok)
	require.Len(t, tags, 2)
	assert.Equal(t, map[string]interface{}{"@id": "urn:tag:1"}, tags[0])
	assert.Equal(t, map[string]interface{}{"@id": "urn:tag:2"}, tags[1])
}

func TestValueJSONEncodesLangAndDatatype(t *testing.T) {
	assert.Equal(t,
		map[string]interface{}{"@value": "bonjour", "@language": "fr"},
		valueJSON(engine.Value{Kind: engine.KindString, Str: "bonjour", Lang: "fr"}),
	)
	assert.Equal(t,
		map[string]interface{}{"@value": "3", "@type": "xsd:integer"},
		valueJSON(engine.NewLiteral("3", "xsd:integer")),
	)
	assert.Equal(t,
		map[string]interface{}{"@id": "urn:tag:1"},
		valueJSON(engine.NewResource("urn:tag:1")),
	)
}
