// Package store defines the relational backing contract the engine issues
// its decomposed table operations against.
package store

import "context"

// Store opens transactions. One engine Transaction maps to exactly one
// store Tx for its lifetime.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
	Close() error
}

// Tx is a single relational transaction, nestable via Savepoint the way the
// engine needs for SPARQL Update statements nested inside a larger commit.
type Tx interface {
	Exec(ctx context.Context, sql string, args ...any) error
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) Row

	// Savepoint opens a nested transaction scope identified by name.
	// RollbackTo undoes every Exec/Query issued since the matching
	// Savepoint call without discarding the outer transaction. Release
	// drops the savepoint bookkeeping once the nested scope succeeds.
	Savepoint(ctx context.Context, name string) error
	RollbackTo(ctx context.Context, name string) error
	Release(ctx context.Context, name string) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Rows is the minimal cursor the engine needs to resolve existing resource
// ids and read back column values during decomposition.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Close() error
	Err() error
}

// Row is the single-record counterpart to Rows.
type Row interface {
	Scan(dest ...any) error
}
