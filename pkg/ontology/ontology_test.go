package ontology_test

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triplestore.dev/updateengine/pkg/ontology"
)

func loadCore(t *testing.T) *ontology.Schema {
	t.Helper()
	f, err := os.Open("testdata/core.yaml")
	require.NoError(t, err)
	defer f.Close()
	s, err := ontology.Load(f)
	require.NoError(t, err)
	return s
}

func TestLoadResolvesClassSupers(t *testing.T) {
	s := loadCore(t)

	doc, ok := s.ClassByURI("http://tracker.api.gnome.org/ontology/v3/nfo#Document")
	require.True(t, ok)

	var uris []string
	for _, super := range doc.Supers() {
		uris = append(uris, super.URI)
	}
	assert.ElementsMatch(t, []string{
		"http://tracker.api.gnome.org/ontology/v3/nie#InformationElement",
		"http://tracker.api.gnome.org/ontology/v3/nie#DataObject",
		"http://tracker.api.gnome.org/ontology/v3/rdfs#Resource",
	}, uris)
}

func TestLoadResolvesPropertySupers(t *testing.T) {
	s := loadCore(t)

	fileName, ok := s.PropertyByURI("http://tracker.api.gnome.org/ontology/v3/nfo#fileName")
	require.True(t, ok)
	require.Len(t, fileName.Supers(), 1)
	assert.Equal(t, "http://tracker.api.gnome.org/ontology/v3/nie#title", fileName.Supers()[0].URI)
}

func TestLoadRejectsUnknownSuperClass(t *testing.T) {
	bad := `
classes:
  - uri: "urn:a"
    table: "a"
    super_classes: ["urn:missing"]
`
	_, err := ontology.Load(stringReader(bad))
	assert.Error(t, err)
}

func TestLoadRejectsCycle(t *testing.T) {
	bad := `
classes:
  - uri: "urn:a"
    table: "a"
    super_classes: ["urn:b"]
  - uri: "urn:b"
    table: "b"
    super_classes: ["urn:a"]
`
	_, err := ontology.Load(stringReader(bad))
	assert.Error(t, err)
}

type stringReaderT struct {
	s   string
	pos int
}

func stringReader(s string) *stringReaderT { return &stringReaderT{s: s} }

func (r *stringReaderT) Read(p []byte) (int, error) {
	if r.pos >= len(r.s) {
		return 0, io.EOF
	}
	n := copy(p, r.s[r.pos:])
	r.pos += n
	return n, nil
}
