// Package storetest provides an in-memory store.Store double for engine
// tests that need transaction and savepoint semantics, plus enough real
// row-state tracking to exercise the decomposer's persisted-type and
// full-text-preload lookups, without a live Postgres instance.
package storetest

import (
	"context"
	"fmt"
	"regexp"

	"triplestore.dev/updateengine/pkg/store"
)

// resourceRow mirrors one row of rdfs_Resource.
type resourceRow struct {
	uri      string
	added    int64
	modified int64
	available int64
}

// DB is the fake Store. It records every Exec call (in order, including
// ones later undone by RollbackTo) so tests can assert on emitted SQL
// shape, and it parses the fixed set of SQL shapes the engine itself
// emits well enough to answer the resolver's and decomposer's QueryRow/
// Query lookups against real, mutated state.
type DB struct {
	// Log is the Exec call log across all committed and in-flight
	// transactions, useful for asserting dependency ordering of emitted
	// DML.
	Log []string

	resources map[int64]*resourceRow
	uriToID   map[string]int64

	// rowTables tracks "row exists" class/ID-only tables (one bool per
	// resource id).
	rowTables map[string]map[int64]bool
	// multiTables tracks (ID, TargetID) side tables.
	multiTables map[string]map[[2]int64]bool
	// columns tracks per-table, per-resource, per-column scalar values.
	columns map[string]map[int64]map[string]any
	// classCounts tracks rdfs_Class_instance_count rows by class URI.
	classCounts map[string]int64

	closed bool
}

// New returns an empty fake database.
func New() *DB {
	return &DB{
		resources:   make(map[int64]*resourceRow),
		uriToID:     make(map[string]int64),
		rowTables:   make(map[string]map[int64]bool),
		multiTables: make(map[string]map[[2]int64]bool),
		columns:     make(map[string]map[int64]map[string]any),
		classCounts: make(map[string]int64),
	}
}

func (db *DB) Begin(ctx context.Context) (store.Tx, error) {
	if db.closed {
		return nil, fmt.Errorf("storetest: db closed")
	}
	return &tx{db: db}, nil
}

func (db *DB) Close() error {
	db.closed = true
	return nil
}

type savepointMark struct {
	name   string
	logLen int
	// snapshot is a deep-enough copy of mutable state to restore on
	// RollbackTo; the fake only needs to undo what the engine's own
	// emitted statements can mutate.
	snapshot snapshot
}

type snapshot struct {
	resources   map[int64]*resourceRow
	uriToID     map[string]int64
	rowTables   map[string]map[int64]bool
	multiTables map[string]map[[2]int64]bool
	columns     map[string]map[int64]map[string]any
	classCounts map[string]int64
}

func (db *DB) snapshot() snapshot {
	s := snapshot{
		resources:   make(map[int64]*resourceRow, len(db.resources)),
		uriToID:     make(map[string]int64, len(db.uriToID)),
		rowTables:   make(map[string]map[int64]bool, len(db.rowTables)),
		multiTables: make(map[string]map[[2]int64]bool, len(db.multiTables)),
		columns:     make(map[string]map[int64]map[string]any, len(db.columns)),
		classCounts: make(map[string]int64, len(db.classCounts)),
	}
	for id, row := range db.resources {
		cp := *row
		s.resources[id] = &cp
	}
	for uri, id := range db.uriToID {
		s.uriToID[uri] = id
	}
	for table, ids := range db.rowTables {
		cp := make(map[int64]bool, len(ids))
		for id, v := range ids {
			cp[id] = v
		}
		s.rowTables[table] = cp
	}
	for table, pairs := range db.multiTables {
		cp := make(map[[2]int64]bool, len(pairs))
		for k, v := range pairs {
			cp[k] = v
		}
		s.multiTables[table] = cp
	}
	for table, rows := range db.columns {
		cp := make(map[int64]map[string]any, len(rows))
		for id, cols := range rows {
			colCp := make(map[string]any, len(cols))
			for k, v := range cols {
				colCp[k] = v
			}
			cp[id] = colCp
		}
		s.columns[table] = cp
	}
	for uri, n := range db.classCounts {
		s.classCounts[uri] = n
	}
	return s
}

func (db *DB) restore(s snapshot) {
	db.resources = s.resources
	db.uriToID = s.uriToID
	db.rowTables = s.rowTables
	db.multiTables = s.multiTables
	db.columns = s.columns
	db.classCounts = s.classCounts
}

type tx struct {
	db         *DB
	savepoints []savepointMark
	done       bool
}

var (
	reInsertRow = regexp.MustCompile(`^INSERT INTO (\S+) \(ID\) VALUES \(\$1\) ON CONFLICT DO NOTHING$`)
	reDeleteRow = regexp.MustCompile(`^DELETE FROM (\S+) WHERE ID = \$1$`)
	reUpdateCol = regexp.MustCompile(`^UPDATE (\S+) SET (\S+) = \$1 WHERE ID = \$2$`)
	reInsertMul = regexp.MustCompile(`^INSERT INTO (\S+) \(ID, TargetID\) VALUES \(\$1, \$2\) ON CONFLICT DO NOTHING$`)
	reDeleteMul = regexp.MustCompile(`^DELETE FROM (\S+) WHERE ID = \$1 AND TargetID = \$2$`)
	reIncrCount = regexp.MustCompile(`^INSERT INTO (\S+) \(class_uri, count\) VALUES \(\$1, 1\) ON CONFLICT \(class_uri\) DO UPDATE SET count = \S+\.count \+ 1$`)
	reInsertRes = regexp.MustCompile(`^INSERT INTO rdfs_Resource \(id, uri, Added, Modified, Available\) VALUES \(\$1, \$2, \$3, 0, 1\)$`)
	reRename    = regexp.MustCompile(`^UPDATE rdfs_Resource SET uri = \$1 WHERE id = \$2$`)
	reModified  = regexp.MustCompile(`^UPDATE rdfs_Resource SET Modified = \$1 WHERE id = \$2$`)

	reSelectByURI = regexp.MustCompile(`^SELECT id FROM rdfs_Resource WHERE uri = \$1$`)
	reSelectTypes = regexp.MustCompile(`^SELECT r\.uri FROM (\S+) t JOIN rdfs_Resource r ON r\.id = t\.TargetID WHERE t\.ID = \$1$`)
	reSelectCol   = regexp.MustCompile(`^SELECT (\S+) FROM (\S+) WHERE ID = \$1$`)
)

func (t *tx) Exec(ctx context.Context, sql string, args ...any) error {
	if t.done {
		return fmt.Errorf("storetest: exec on finished tx")
	}
	t.db.Log = append(t.db.Log, sql)
	return t.apply(sql, args)
}

func (t *tx) apply(sql string, args []any) error {
	db := t.db
	switch {
	case reInsertRes.MatchString(sql):
		id, uri := args[0].(int64), args[1].(string)
		added := args[2].(int64)
		db.resources[id] = &resourceRow{uri: uri, added: added, available: 1}
		db.uriToID[uri] = id

	case reRename.MatchString(sql):
		newURI, id := args[0].(string), args[1].(int64)
		if row, ok := db.resources[id]; ok {
			delete(db.uriToID, row.uri)
			row.uri = newURI
			db.uriToID[newURI] = id
		}

	case reModified.MatchString(sql):
		modseq, id := args[0].(int64), args[1].(int64)
		if row, ok := db.resources[id]; ok {
			row.modified = modseq
		}

	case reInsertRow.MatchString(sql):
		m := reInsertRow.FindStringSubmatch(sql)
		table := m[1]
		id := args[0].(int64)
		ids := db.rowTables[table]
		if ids == nil {
			ids = make(map[int64]bool)
			db.rowTables[table] = ids
		}
		ids[id] = true

	case reDeleteRow.MatchString(sql):
		m := reDeleteRow.FindStringSubmatch(sql)
		table := m[1]
		id := args[0].(int64)
		delete(db.rowTables[table], id)

	case reUpdateCol.MatchString(sql):
		m := reUpdateCol.FindStringSubmatch(sql)
		table, col := m[1], m[2]
		value, id := args[0], args[1].(int64)
		rows := db.columns[table]
		if rows == nil {
			rows = make(map[int64]map[string]any)
			db.columns[table] = rows
		}
		cols := rows[id]
		if cols == nil {
			cols = make(map[string]any)
			rows[id] = cols
		}
		cols[col] = value

	case reInsertMul.MatchString(sql):
		m := reInsertMul.FindStringSubmatch(sql)
		table := m[1]
		id, target := args[0].(int64), args[1].(int64)
		pairs := db.multiTables[table]
		if pairs == nil {
			pairs = make(map[[2]int64]bool)
			db.multiTables[table] = pairs
		}
		pairs[[2]int64{id, target}] = true

	case reDeleteMul.MatchString(sql):
		m := reDeleteMul.FindStringSubmatch(sql)
		table := m[1]
		id, target := args[0].(int64), args[1].(int64)
		delete(db.multiTables[table], [2]int64{id, target})

	case reIncrCount.MatchString(sql):
		classURI := args[0].(string)
		db.classCounts[classURI]++
	}
	return nil
}

func (t *tx) Query(ctx context.Context, sql string, args ...any) (store.Rows, error) {
	db := t.db
	switch {
	case reSelectTypes.MatchString(sql):
		m := reSelectTypes.FindStringSubmatch(sql)
		table := m[1]
		id := args[0].(int64)
		var uris []string
		for pair := range db.multiTables[table] {
			if pair[0] != id {
				continue
			}
			if row, ok := db.resources[pair[1]]; ok {
				uris = append(uris, row.uri)
			}
		}
		return &stringRows{values: uris}, nil
	}
	return &emptyRows{}, nil
}

func (t *tx) QueryRow(ctx context.Context, sql string, args ...any) store.Row {
	db := t.db
	switch {
	case reSelectByURI.MatchString(sql):
		uri := args[0].(string)
		if id, ok := db.uriToID[uri]; ok {
			return &int64Row{value: id}
		}
		return &emptyRow{}

	case reSelectCol.MatchString(sql):
		m := reSelectCol.FindStringSubmatch(sql)
		col, table := m[1], m[2]
		id := args[0].(int64)
		if rows, ok := db.columns[table]; ok {
			if cols, ok := rows[id]; ok {
				if v, ok := cols[col]; ok {
					if s, ok := v.(string); ok {
						return &stringRow{value: s}
					}
				}
			}
		}
		return &emptyRow{}
	}
	return &emptyRow{}
}

func (t *tx) Savepoint(ctx context.Context, name string) error {
	t.savepoints = append(t.savepoints, savepointMark{name: name, logLen: len(t.db.Log), snapshot: t.db.snapshot()})
	t.db.Log = append(t.db.Log, "SAVEPOINT "+name)
	return nil
}

func (t *tx) RollbackTo(ctx context.Context, name string) error {
	for i := len(t.savepoints) - 1; i >= 0; i-- {
		if t.savepoints[i].name == name {
			t.db.Log = t.db.Log[:t.savepoints[i].logLen]
			t.db.restore(t.savepoints[i].snapshot)
			t.savepoints = t.savepoints[:i+1]
			return nil
		}
	}
	return fmt.Errorf("storetest: unknown savepoint %q", name)
}

func (t *tx) Release(ctx context.Context, name string) error {
	for i := len(t.savepoints) - 1; i >= 0; i-- {
		if t.savepoints[i].name == name {
			t.savepoints = t.savepoints[:i]
			return nil
		}
	}
	return fmt.Errorf("storetest: unknown savepoint %q", name)
}

func (t *tx) Commit(ctx context.Context) error {
	t.done = true
	return nil
}

func (t *tx) Rollback(ctx context.Context) error {
	t.done = true
	return nil
}

type emptyRows struct{}

func (r *emptyRows) Next() bool          { return false }
func (r *emptyRows) Scan(dest ...any) error { return fmt.Errorf("storetest: no rows") }
func (r *emptyRows) Close() error        { return nil }
func (r *emptyRows) Err() error          { return nil }

type emptyRow struct{}

func (r *emptyRow) Scan(dest ...any) error { return fmt.Errorf("storetest: no row") }

type stringRows struct {
	values []string
	idx    int
}

func (r *stringRows) Next() bool {
	if r.idx >= len(r.values) {
		return false
	}
	r.idx++
	return true
}

func (r *stringRows) Scan(dest ...any) error {
	if r.idx == 0 || r.idx > len(r.values) {
		return fmt.Errorf("storetest: Scan called without Next")
	}
	p, ok := dest[0].(*string)
	if !ok {
		return fmt.Errorf("storetest: expected *string scan destination")
	}
	*p = r.values[r.idx-1]
	return nil
}

func (r *stringRows) Close() error { return nil }
func (r *stringRows) Err() error   { return nil }

type stringRow struct{ value string }

func (r *stringRow) Scan(dest ...any) error {
	p, ok := dest[0].(*string)
	if !ok {
		return fmt.Errorf("storetest: expected *string scan destination")
	}
	*p = r.value
	return nil
}

type int64Row struct{ value int64 }

func (r *int64Row) Scan(dest ...any) error {
	p, ok := dest[0].(*int64)
	if !ok {
		return fmt.Errorf("storetest: expected *int64 scan destination")
	}
	*p = r.value
	return nil
}

// IDForURI returns the id rdfs_Resource currently associates with uri, for
// tests asserting resolver/rename behavior against the fake's own state.
func (db *DB) IDForURI(uri string) (int64, bool) {
	id, ok := db.uriToID[uri]
	return id, ok
}

// RowExists reports whether table carries a row for id, for class tables
// whose presence is tracked only by (ID)-shaped inserts.
func (db *DB) RowExists(table string, id int64) bool {
	return db.rowTables[table][id]
}

// HasMultiValue reports whether (id, target) has been inserted into table
// and not since deleted.
func (db *DB) HasMultiValue(table string, id, target int64) bool {
	return db.multiTables[table][[2]int64{id, target}]
}

// MultiValueCountForID counts the distinct TargetID rows table carries for
// id, for asserting dedup: repeated inserts of the same pair collapse to a
// single row, same as the real ON CONFLICT DO NOTHING clause.
func (db *DB) MultiValueCountForID(table string, id int64) int {
	n := 0
	for pair := range db.multiTables[table] {
		if pair[0] == id {
			n++
		}
	}
	return n
}

// ColumnValue returns the value last bound to table's col for id, if any
// column update has landed for it.
func (db *DB) ColumnValue(table string, id int64, col string) (any, bool) {
	rows, ok := db.columns[table]
	if !ok {
		return nil, false
	}
	cols, ok := rows[id]
	if !ok {
		return nil, false
	}
	v, ok := cols[col]
	return v, ok
}

// ClassInstanceCount returns rdfs_Class_instance_count's tracked count for
// classURI.
func (db *DB) ClassInstanceCount(classURI string) int64 {
	return db.classCounts[classURI]
}
