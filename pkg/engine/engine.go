// Package engine implements the update engine's write path: decomposing
// RDF statements into relational row operations, buffering them for the
// duration of a transaction, and flushing them to a backing store and
// full-text index in dependency order on commit.
package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"triplestore.dev/updateengine/pkg/ftsindex"
	"triplestore.dev/updateengine/pkg/ontology"
	"triplestore.dev/updateengine/pkg/store"
)

// txnState is the transaction lifecycle the engine enforces: Idle before
// Begin and after Commit/Rollback complete, InTxn while statements are
// being staged, Committing/RollingBack while flush is in flight. Any
// engine call made from the wrong state is a programming error and panics
// via InternalError rather than returning a recoverable error.
type txnState uint8

const (
	stateIdle txnState = iota
	stateInTxn
	stateCommitting
	stateRollingBack
)

// Engine owns the ontology schema, the resource id/modseq counters, and
// the backing Store/Index a Transaction flushes into. One Engine serves
// one single-writer process; concurrent Begin calls are serialized by
// design (spec.md's single-writer model), enforced here with a mutex
// rather than left to caller discipline.
type Engine struct {
	store    store.Store
	index    ftsindex.Index
	schema   *ontology.Schema
	resolver *ResourceResolver
	obs      *ObserverRegistry
	log      *logrus.Entry

	mu    sync.Mutex
	state txnState
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithLogger overrides the default no-op logger.
func WithLogger(log *logrus.Entry) Option {
	return func(e *Engine) { e.log = log }
}

// New builds an Engine. lastID/lastModseq seed the resource resolver's
// counters and must reflect the store's current high-water marks.
func New(st store.Store, idx ftsindex.Index, schema *ontology.Schema, lastID, lastModseq int64, opts ...Option) *Engine {
	e := &Engine{
		store:    st,
		index:    idx,
		schema:   schema,
		resolver: NewResourceResolver(lastID, lastModseq),
		obs:      NewObserverRegistry(),
		log:      logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Observers exposes the engine's ObserverRegistry for registration before
// any transaction begins.
func (e *Engine) Observers() *ObserverRegistry { return e.obs }

// Counters returns the engine's current resource id / modseq high-water
// marks, for a caller to persist and feed back into New on the next
// process start.
func (e *Engine) Counters() (lastID, lastModseq int64) { return e.resolver.Counters() }

// Begin opens a new Transaction. The engine enforces single-writer
// semantics: Begin blocks out (rather than interleaves with) any other
// in-flight transaction on this Engine.
func (e *Engine) Begin(ctx context.Context) (*Transaction, error) {
	e.mu.Lock()
	if e.state != stateIdle {
		e.mu.Unlock()
		panic(&InternalError{Reason: "Begin called while a transaction is already in flight"})
	}
	e.state = stateInTxn
	e.mu.Unlock()

	tx, err := e.store.Begin(ctx)
	if err != nil {
		e.setState(stateIdle)
		return nil, &StorageError{Op: "begin", Err: err}
	}

	txnID := uuid.NewString()
	if err := e.index.Init(ctx, txnID); err != nil {
		_ = tx.Rollback(ctx)
		e.setState(stateIdle)
		return nil, &StorageError{Op: "init fts staging", Err: err}
	}

	return &Transaction{
		engine:     e,
		tx:         tx,
		resolver:   e.resolver,
		decomposer: NewDecomposer(e.schema),
		buffer:     NewUpdateBuffer(),
		blanks:     NewBlankNodeBuffer(),
		txnID:      txnID,
		log:        e.log.WithField("txn", txnID),
	}, nil
}

func (e *Engine) setState(s txnState) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// withAutoTxn runs fn inside a freshly begun transaction, committing on
// success and rolling back on error. Volume management calls use this:
// they are single-statement maintenance operations, not part of a
// caller-managed transaction.
func (e *Engine) withAutoTxn(ctx context.Context, fn func(txn *Transaction) error) error {
	txn, err := e.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(txn); err != nil {
		_ = txn.Rollback(ctx)
		return err
	}
	return txn.Commit(ctx)
}

// Transaction stages statements and flushes them to the store/index when
// committed. Not safe for concurrent use; the single-writer model means
// exactly one goroutine ever drives one Transaction.
type Transaction struct {
	engine     *Engine
	tx         store.Tx
	resolver   *ResourceResolver
	decomposer *Decomposer
	buffer     *UpdateBuffer
	blanks     *BlankNodeBuffer
	txnID      string
	log        *logrus.Entry

	savepointSeq int
	seenTables   map[string]bool
	done         bool
}

// TxnID returns the transaction's identifier, stable for its lifetime.
func (t *Transaction) TxnID() string { return t.txnID }

func (t *Transaction) ensureSeen() map[string]bool {
	if t.seenTables == nil {
		t.seenTables = make(map[string]bool)
	}
	return t.seenTables
}

// InsertStatement stages the insert of (subjectURI, predicate, object)
// into the transaction's buffer. subjectURI may be an absolute URI or a
// blank node label of the form "_:label"; blank subjects are buffered by
// the BlankNodeBuffer and resolved at flush time.
func (t *Transaction) InsertStatement(ctx context.Context, subjectURI, predicate string, object Value) error {
	if t.done {
		panic(&InternalError{Reason: "InsertStatement called on a finished transaction"})
	}

	if isBlankLabel(subjectURI) {
		t.blanks.Buffer(subjectURI, predicate, object)
		return nil
	}

	resourceID, err := t.resolver.Ensure(ctx, t.tx, subjectURI)
	if err != nil {
		return err
	}

	var targetID int64
	if object.Kind == KindResource && !object.IsBlank() {
		targetID, err = t.resolver.Ensure(ctx, t.tx, object.Resource)
		if err != nil {
			return err
		}
	}

	switch predicate {
	case TrackerURIPredicate:
		t.buffer.SetNewSubject(resourceID, object.LexicalForm())
	case RDFType:
		if object.Kind != KindResource {
			return &InvalidTypeError{Property: RDFType, Want: "resource", Got: object.Kind.String()}
		}
		if err := t.decomposer.InsertClass(ctx, t.tx, t.resolver, t.buffer, resourceID, object.Resource, t.ensureSeen()); err != nil {
			return err
		}
	default:
		if err := t.decomposer.InsertValue(ctx, t.tx, t.resolver, t.buffer, resourceID, predicate, object, targetID); err != nil {
			return err
		}
	}

	t.engine.obs.fireInsert(subjectURI, predicate, object)
	return nil
}

// DeleteStatement stages the removal of (subjectURI, predicate, object).
// Blank subjects cannot be deleted by label (spec.md's blank nodes are
// write-once within a transaction); callers must resolve to a concrete
// URI first.
func (t *Transaction) DeleteStatement(ctx context.Context, subjectURI, predicate string, object Value) error {
	if t.done {
		panic(&InternalError{Reason: "DeleteStatement called on a finished transaction"})
	}
	if isBlankLabel(subjectURI) {
		return &ConstraintError{Reason: "cannot delete a statement about an unmaterialized blank node"}
	}

	resourceID, ok := t.resolver.Resolve(subjectURI)
	if !ok {
		var err error
		resourceID, err = t.resolver.Ensure(ctx, t.tx, subjectURI)
		if err != nil {
			return err
		}
	}

	var targetID int64
	if object.Kind == KindResource {
		if id, ok := t.resolver.Resolve(object.Resource); ok {
			targetID = id
		}
	}

	if err := t.decomposer.DeleteValue(t.buffer, resourceID, predicate, object, targetID); err != nil {
		return err
	}

	t.engine.obs.fireDelete(subjectURI, predicate, object)
	return nil
}

// ExecuteUpdateText runs fn inside a SQL SAVEPOINT, rolling back to that
// savepoint (without unwinding the whole transaction) if fn returns an
// error. This backs nested SPARQL Update execution, where one failing
// INSERT/DELETE block inside a larger update must not discard statements
// already staged by earlier blocks.
func (t *Transaction) ExecuteUpdateText(ctx context.Context, fn func(t *Transaction) error) error {
	t.savepointSeq++
	name := fmt.Sprintf("su_%d", t.savepointSeq)

	if err := t.tx.Savepoint(ctx, name); err != nil {
		return &StorageError{Op: "savepoint", Err: err}
	}

	if err := fn(t); err != nil {
		if rbErr := t.tx.RollbackTo(ctx, name); rbErr != nil {
			return &StorageError{Op: "rollback to savepoint", Err: rbErr}
		}
		return err
	}

	if err := t.tx.Release(ctx, name); err != nil {
		return &StorageError{Op: "release savepoint", Err: err}
	}
	return nil
}

func isBlankLabel(uri string) bool {
	return len(uri) >= 2 && uri[:2] == "_:"
}
