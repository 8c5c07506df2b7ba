package engine

import (
	"context"
	"fmt"
)

// Commit materializes buffered blank nodes, flushes every staged TableOp
// in dependency order, syncs the full-text index, and commits the
// underlying store transaction. On any failure it rolls back instead and
// returns the failing error.
func (t *Transaction) Commit(ctx context.Context) error {
	if t.done {
		panic(&InternalError{Reason: "Commit called on a finished transaction"})
	}

	if err := t.materializeBlankNodes(ctx); err != nil {
		_ = t.rollback(ctx)
		return err
	}

	if err := t.flushTableOps(ctx); err != nil {
		_ = t.rollback(ctx)
		return err
	}

	if err := t.syncFullText(ctx); err != nil {
		_ = t.rollback(ctx)
		return err
	}

	if err := t.tx.Commit(ctx); err != nil {
		_ = t.engine.index.Rollback(ctx, t.txnID)
		t.done = true
		t.engine.setState(stateIdle)
		return &StorageError{Op: "commit", Err: err}
	}

	if err := t.engine.index.Commit(ctx, t.txnID); err != nil {
		// The relational commit already landed; the fts side failing is
		// logged and surfaced, but the transaction itself is not undone.
		t.log.WithError(err).Error("fts index commit failed after relational commit")
	}

	t.done = true
	t.engine.setState(stateIdle)
	t.engine.obs.fireCommit(t.txnID)
	return nil
}

// Rollback discards every staged operation and rolls back the underlying
// store transaction and fts staging scope.
func (t *Transaction) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	err := t.rollback(ctx)
	t.engine.obs.fireRollback(t.txnID)
	return err
}

func (t *Transaction) rollback(ctx context.Context) error {
	t.done = true
	t.engine.setState(stateIdle)

	var firstErr error
	if err := t.tx.Rollback(ctx); err != nil {
		firstErr = &StorageError{Op: "rollback", Err: err}
	}
	if err := t.engine.index.Rollback(ctx, t.txnID); err != nil && firstErr == nil {
		firstErr = &StorageError{Op: "fts rollback", Err: err}
	}
	return firstErr
}

// materializeBlankNodes resolves every blank label buffered during the
// transaction to its content-addressed urn:uuid and replays the buffered
// statements against that URI, skipping replay for urns already known
// (the same blank content was materialized before, in this or a prior
// transaction).
func (t *Transaction) materializeBlankNodes(ctx context.Context) error {
	for _, label := range t.blanks.Labels() {
		uri := t.blanks.Resolve(label)
		_, existed, err := t.resolver.EnsureChecked(ctx, t.tx, uri)
		if err != nil {
			return err
		}
		if existed {
			continue
		}
		for _, stmt := range t.blanks.Statements(label) {
			if err := t.InsertStatement(ctx, uri, stmt.predicate, stmt.object); err != nil {
				return err
			}
		}
	}
	t.blanks.Clear()
	return nil
}

// flushTableOps emits every staged TableOp in dependency order: class
// table row inserts first (a property column update can only target a row
// that exists), then single-valued column updates, then multi-value
// side-table mutations, then class instance counters. After a resource's
// ops are emitted, a pending tracker:uri rename is applied and the row's
// tracker:modified column is stamped with a fresh modseq — every resource
// touched in the transaction gets a new modseq, including ones created in
// it.
func (t *Transaction) flushTableOps(ctx context.Context) error {
	for _, rb := range t.buffer.Resources() {
		var inserts, columns, multi, counters []TableOp
		for _, op := range rb.Ops {
			switch op.Kind {
			case OpInsertRow, OpDeleteRow:
				inserts = append(inserts, op)
			case OpUpdateColumn:
				columns = append(columns, op)
			case OpInsertMultiValue, OpDeleteMultiValue:
				multi = append(multi, op)
			case OpIncrementClassCount:
				counters = append(counters, op)
			}
		}
		for _, op := range inserts {
			if err := t.emit(ctx, op); err != nil {
				return err
			}
		}
		for _, op := range columns {
			if err := t.emit(ctx, op); err != nil {
				return err
			}
		}
		for _, op := range multi {
			if err := t.emit(ctx, op); err != nil {
				return err
			}
		}
		for _, op := range counters {
			if err := t.emit(ctx, op); err != nil {
				return err
			}
		}

		if rb.NewSubject != "" {
			if err := t.emitRename(ctx, rb); err != nil {
				return err
			}
		}
		if err := t.stampModified(ctx, rb); err != nil {
			return err
		}
	}
	return nil
}

func (t *Transaction) emit(ctx context.Context, op TableOp) error {
	var err error
	switch op.Kind {
	case OpInsertRow:
		err = t.tx.Exec(ctx, fmt.Sprintf(`INSERT INTO %s (ID) VALUES ($1) ON CONFLICT DO NOTHING`, op.Table), op.ResourceID)
	case OpDeleteRow:
		err = t.tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE ID = $1`, op.Table), op.ResourceID)
	case OpUpdateColumn:
		err = t.tx.Exec(ctx, fmt.Sprintf(`UPDATE %s SET %s = $1 WHERE ID = $2`, op.Table, op.Column), columnArg(op.Value), op.ResourceID)
	case OpInsertMultiValue:
		err = t.tx.Exec(ctx, fmt.Sprintf(`INSERT INTO %s (ID, TargetID) VALUES ($1, $2) ON CONFLICT DO NOTHING`, op.Table), op.ResourceID, op.TargetID)
	case OpDeleteMultiValue:
		err = t.tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE ID = $1 AND TargetID = $2`, op.Table), op.ResourceID, op.TargetID)
	case OpIncrementClassCount:
		err = t.tx.Exec(ctx, fmt.Sprintf(
			`INSERT INTO %s (class_uri, count) VALUES ($1, 1) ON CONFLICT (class_uri) DO UPDATE SET count = %s.count + 1`,
			op.Table, op.Table), op.Column)
	}
	if err != nil {
		return &StorageError{Op: "flush table op", Err: err}
	}
	return nil
}

// emitRename applies a staged tracker:uri rename: the resource's row keeps
// its id, only its uri column changes, so every table keyed by that id
// stays correct without a cascading rewrite.
func (t *Transaction) emitRename(ctx context.Context, rb *ResourceBuffer) error {
	if err := t.tx.Exec(ctx, `UPDATE rdfs_Resource SET uri = $1 WHERE id = $2`, rb.NewSubject, rb.ResourceID); err != nil {
		return &StorageError{Op: "rename resource", Err: err}
	}
	t.resolver.Rename(rb.ResourceID, rb.NewSubject)
	return nil
}

func (t *Transaction) stampModified(ctx context.Context, rb *ResourceBuffer) error {
	modseq := t.resolver.NextModseq()
	if err := t.tx.Exec(ctx, `UPDATE rdfs_Resource SET Modified = $1 WHERE id = $2`, modseq, rb.ResourceID); err != nil {
		return &StorageError{Op: "stamp modified", Err: err}
	}
	return nil
}

// columnArg picks the native Go value to bind for v's column, matching the
// coercion Value.Coerce already performed: resources bind their URI,
// int64/double/bool/date literals bind their native field, and anything
// still a plain string (including the zero Value a delete clears a column
// to) binds its lexical form.
func columnArg(v Value) any {
	switch v.Kind {
	case KindResource:
		return v.Resource
	case KindInt64:
		return v.Int
	case KindDouble:
		return v.Float
	case KindBool:
		if v.Bool {
			return 1
		}
		return 0
	case KindDate:
		return v.Time.Unix()
	default:
		return v.Str
	}
}

// syncFullText pushes every resource's staged full-text retractions (stale
// text from properties not being reasserted this transaction) ahead of its
// latest FullText values, to the index's per-transaction staging scope.
// The scope itself is committed or rolled back by Commit/rollback, not
// here.
func (t *Transaction) syncFullText(ctx context.Context) error {
	for _, rb := range t.buffer.Resources() {
		resourceURI := t.uriForID(rb.ResourceID)

		for _, retraction := range rb.FTSRetractions {
			if err := t.engine.index.UpdateText(ctx, t.txnID, resourceURI, retraction.PropertyURI, ""); err != nil {
				return &StorageError{Op: "stage fts retraction", Err: err}
			}
		}
		for propertyURI, text := range rb.FullText {
			if err := t.engine.index.UpdateText(ctx, t.txnID, resourceURI, propertyURI, text); err != nil {
				return &StorageError{Op: "stage fts update", Err: err}
			}
		}
	}
	return nil
}

func (t *Transaction) uriForID(id int64) string {
	// The resolver only maps uri -> id in this direction; the reverse
	// lookup is cheap enough at this scale (fts sync happens at most once
	// per touched resource per transaction) that a dedicated id -> uri
	// cache is not warranted.
	return t.resolver.URIForID(id)
}
