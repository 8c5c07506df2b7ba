// Package ftsindex defines the full-text index contract the engine keeps
// in lockstep with committed property values.
package ftsindex

import "context"

// Index receives full-text updates staged alongside a transaction's
// relational writes. Init starts a staging scope for the transaction;
// UpdateText stages one property's text for one resource; Commit applies
// every staged update atomically from the index's point of view; Rollback
// discards it. The engine calls exactly one of Commit or Rollback per
// Init, and never calls UpdateText outside an Init/Commit-or-Rollback
// bracket.
type Index interface {
	Init(ctx context.Context, txnID string) error
	UpdateText(ctx context.Context, txnID, resourceID, propertyID, text string) error
	Commit(ctx context.Context, txnID string) error
	Rollback(ctx context.Context, txnID string) error
}
