package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"triplestore.dev/updateengine/pkg/engine"
)

func TestBlankNodeResolveIsDeterministic(t *testing.T) {
	b := engine.NewBlankNodeBuffer()
	b.Buffer("_:b0", "nie:title", engine.NewLiteral("hello", "xsd:string"))

	first := b.Resolve("_:b0")
	second := b.Resolve("_:b0")
	assert.Equal(t, first, second)
	assert.Regexp(t, `^urn:uuid:[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`, first)
}

func TestBlankNodeResolveCollapsesIdenticalContent(t *testing.T) {
	a := engine.NewBlankNodeBuffer()
	a.Buffer("_:x", "nie:title", engine.NewLiteral("same", "xsd:string"))

	b := engine.NewBlankNodeBuffer()
	b.Buffer("_:y", "nie:title", engine.NewLiteral("same", "xsd:string"))

	assert.Equal(t, a.Resolve("_:x"), b.Resolve("_:y"))
}

func TestBlankNodeResolveDistinguishesDifferentContent(t *testing.T) {
	a := engine.NewBlankNodeBuffer()
	a.Buffer("_:x", "nie:title", engine.NewLiteral("one", "xsd:string"))

	b := engine.NewBlankNodeBuffer()
	b.Buffer("_:y", "nie:title", engine.NewLiteral("two", "xsd:string"))

	assert.NotEqual(t, a.Resolve("_:x"), b.Resolve("_:y"))
}
