// Package postgres adapts pgx's nested-transaction support to the engine's
// store.Store contract, one SQL SAVEPOINT per engine.Savepoint call.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"triplestore.dev/updateengine/pkg/store"
)

// DB wraps a pgx connection pool. Construct once per process; each engine
// transaction calls Begin for its own Tx.
type DB struct {
	pool *pgxpool.Pool
}

// Open creates and pings a pooled connection to connString.
func Open(ctx context.Context, connString string) (*DB, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &DB{pool: pool}, nil
}

func (db *DB) Close() error {
	db.pool.Close()
	return nil
}

// Pool exposes the underlying pool for components that need it directly
// (the commit notifier's LISTEN connection, the audit log writer).
func (db *DB) Pool() *pgxpool.Pool { return db.pool }

func (db *DB) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// Tx wraps a *pgx.Tx. Savepoint/RollbackTo/Release are implemented as plain
// SQL issued over the same connection: pgx.Tx.Begin from within a
// transaction already does this, but the engine needs named savepoints it
// can address out of LIFO order is not required here — nesting follows the
// statement order SPARQL Update produces, so a simple named SAVEPOINT is
// sufficient.
type Tx struct {
	tx pgx.Tx
}

func (t *Tx) Exec(ctx context.Context, sql string, args ...any) error {
	_, err := t.tx.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("postgres: exec: %w", err)
	}
	return nil
}

func (t *Tx) Query(ctx context.Context, sql string, args ...any) (store.Rows, error) {
	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query: %w", err)
	}
	return &Rows{rows: rows}, nil
}

func (t *Tx) QueryRow(ctx context.Context, sql string, args ...any) store.Row {
	return t.tx.QueryRow(ctx, sql, args...)
}

func (t *Tx) Savepoint(ctx context.Context, name string) error {
	return t.Exec(ctx, fmt.Sprintf("SAVEPOINT %s", quoteIdent(name)))
}

func (t *Tx) RollbackTo(ctx context.Context, name string) error {
	return t.Exec(ctx, fmt.Sprintf("ROLLBACK TO SAVEPOINT %s", quoteIdent(name)))
}

func (t *Tx) Release(ctx context.Context, name string) error {
	return t.Exec(ctx, fmt.Sprintf("RELEASE SAVEPOINT %s", quoteIdent(name)))
}

func (t *Tx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

func (t *Tx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil {
		return fmt.Errorf("postgres: rollback: %w", err)
	}
	return nil
}

// Rows adapts pgx.Rows to store.Rows.
type Rows struct {
	rows pgx.Rows
}

func (r *Rows) Next() bool                   { return r.rows.Next() }
func (r *Rows) Scan(dest ...any) error       { return r.rows.Scan(dest...) }
func (r *Rows) Close() error                 { r.rows.Close(); return nil }
func (r *Rows) Err() error                   { return r.rows.Err() }

// quoteIdent double-quotes a savepoint name; savepoint names in this
// package are always engine-generated (txn sequence numbers), never raw
// user input, so this is a correctness measure, not a security boundary.
func quoteIdent(name string) string {
	return `"` + name + `"`
}
