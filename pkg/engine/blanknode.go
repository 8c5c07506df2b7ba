package engine

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
)

// pendingStatement is one statement buffered against a blank node label
// because its subject or object has not yet been assigned a stable URI.
type pendingStatement struct {
	subject   string // blank label, e.g. "_:b0"
	predicate string
	object    Value
}

// BlankNodeBuffer buffers statements about unlabeled blank nodes until
// flush time, when every blank label touched in the transaction is
// resolved to a urn:uuid URI derived from the SHA-1 hash of the predicates
// and objects asserted against it. Two blank nodes asserting the identical
// set of statements collapse onto the same urn:uuid, matching the
// deduplication behavior a content-addressed blank node scheme requires.
type BlankNodeBuffer struct {
	order   []string
	pending map[string][]pendingStatement
}

// NewBlankNodeBuffer returns an empty buffer.
func NewBlankNodeBuffer() *BlankNodeBuffer {
	return &BlankNodeBuffer{pending: make(map[string][]pendingStatement)}
}

// Buffer stages one statement whose subject is the blank label.
func (b *BlankNodeBuffer) Buffer(label, predicate string, object Value) {
	if _, ok := b.pending[label]; !ok {
		b.order = append(b.order, label)
	}
	b.pending[label] = append(b.pending[label], pendingStatement{subject: label, predicate: predicate, object: object})
}

// Labels returns every blank label buffered, in first-touched order.
func (b *BlankNodeBuffer) Labels() []string { return append([]string(nil), b.order...) }

// Statements returns the statements buffered against label.
func (b *BlankNodeBuffer) Statements(label string) []pendingStatement {
	return b.pending[label]
}

// Resolve computes the urn:uuid URI for label from the SHA-1 digest of its
// buffered predicate/object pairs, in buffering order. The digest's first
// 32 hex characters are grouped 8-4-4-4-12 to form a UUID-shaped URI, the
// same layout the engine's Tracker-derived materialization scheme uses.
func (b *BlankNodeBuffer) Resolve(label string) string {
	h := sha1.New()
	for _, stmt := range b.pending[label] {
		h.Write([]byte(stmt.predicate))
		h.Write([]byte{0})
		if stmt.object.Kind == KindResource {
			h.Write([]byte(stmt.object.Resource))
		} else {
			h.Write([]byte(stmt.object.LexicalForm()))
			h.Write([]byte{0})
			h.Write([]byte(stmt.object.Datatype))
		}
		h.Write([]byte{0})
	}
	sum := hex.EncodeToString(h.Sum(nil))
	return fmt.Sprintf("urn:uuid:%s-%s-%s-%s-%s", sum[0:8], sum[8:12], sum[12:16], sum[16:20], sum[20:32])
}

// Clear drops all buffered statements, used once a transaction's blank
// nodes have all been materialized and replayed.
func (b *BlankNodeBuffer) Clear() {
	b.order = nil
	b.pending = make(map[string][]pendingStatement)
}
