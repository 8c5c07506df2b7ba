package localstate

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.db")
	db, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestLoadCountersDefaultsToZeroValue(t *testing.T) {
	db := openTestDB(t)

	c, err := db.LoadCounters()
	require.NoError(t, err)
	assert.Equal(t, Counters{}, c)
}

func TestSaveAndLoadCountersRoundTrip(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.SaveCounters(Counters{LastID: 42, LastModseq: 7}))

	c, err := db.LoadCounters()
	require.NoError(t, err)
	assert.Equal(t, int64(42), c.LastID)
	assert.Equal(t, int64(7), c.LastModseq)
}

func TestLoadedOntologyReportsAbsence(t *testing.T) {
	db := openTestDB(t)

	_, ok, err := db.LoadedOntology()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSaveAndLoadOntologyRoundTrip(t *testing.T) {
	db := openTestDB(t)

	want := LoadedOntology{
		Path:      "ontology.yaml",
		LoadedAt:  time.Now().Truncate(time.Second),
		ClassN:    3,
		PropertyN: 9,
	}
	require.NoError(t, db.SaveLoadedOntology(want))

	got, ok, err := db.LoadedOntology()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want.Path, got.Path)
	assert.True(t, want.LoadedAt.Equal(got.LoadedAt))
	assert.Equal(t, want.ClassN, got.ClassN)
	assert.Equal(t, want.PropertyN, got.PropertyN)
}
