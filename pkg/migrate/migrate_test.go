package migrate_test

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triplestore.dev/updateengine/pkg/migrate"
	"triplestore.dev/updateengine/pkg/ontology"
)

func loadTestSchema(t *testing.T) *ontology.Schema {
	t.Helper()
	f, err := os.Open("../ontology/testdata/core.yaml")
	require.NoError(t, err)
	defer f.Close()

	schema, err := ontology.Load(f)
	require.NoError(t, err)
	return schema
}

func TestGenerateDDLIncludesResourceTable(t *testing.T) {
	schema := loadTestSchema(t)
	stmts := migrate.GenerateDDL(schema)
	assert.Contains(t, stmts[0], "rdfs_Resource")
}

func TestGenerateDDLCreatesOneTablePerClass(t *testing.T) {
	schema := loadTestSchema(t)
	stmts := migrate.GenerateDDL(schema)

	joined := strings.Join(stmts, "\n")
	for _, table := range []string{"nie_InformationElement", "nie_DataObject", "nfo_Document", "nao_Tag"} {
		assert.Contains(t, joined, table)
	}
}

func TestGenerateDDLEmbedsColumnsOnDomainClass(t *testing.T) {
	schema := loadTestSchema(t)
	stmts := migrate.GenerateDDL(schema)

	var infoElementTable string
	for _, s := range stmts {
		if strings.Contains(s, "CREATE TABLE IF NOT EXISTS nie_InformationElement ") {
			infoElementTable = s
		}
	}
	require.NotEmpty(t, infoElementTable)
	assert.Contains(t, infoElementTable, "nie_title")
	assert.Contains(t, infoElementTable, "nie_plainTextContent")
}

func TestGenerateDDLCreatesSideTableForMultivaluedProperty(t *testing.T) {
	schema := loadTestSchema(t)
	stmts := migrate.GenerateDDL(schema)

	var sideTable string
	for _, s := range stmts {
		if strings.Contains(s, "CREATE TABLE IF NOT EXISTS nao_hasTag ") {
			sideTable = s
		}
	}
	require.NotEmpty(t, sideTable)
	assert.Contains(t, sideTable, "TargetID")
	assert.Contains(t, sideTable, "PRIMARY KEY (ID, TargetID)")
}

func TestGenerateDDLIsDeterministic(t *testing.T) {
	schema := loadTestSchema(t)
	first := migrate.GenerateDDL(schema)
	second := migrate.GenerateDDL(schema)
	assert.Equal(t, first, second)
}
