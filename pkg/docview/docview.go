// Package docview projects committed resources into CouchDB as JSON-LD
// documents, giving the triple store a read-optimized document view
// alongside its relational tables. Projection is observer-driven: a
// Projector watches the single in-flight transaction's staged insert
// statements and bulk-saves one JSON-LD document per touched resource
// when the transaction commits. Document-store failures never fail a
// commit — the projection is a best-effort secondary index, not a
// write-path dependency, mirroring how the full-text index is staged
// and flushed alongside the relational tables.
package docview

import (
	"context"
	"fmt"
	"sync"
	"time"

	kivik "github.com/go-kivik/kivik/v4"
	_ "github.com/go-kivik/kivik/v4/couchdb" // CouchDB driver

	"github.com/sirupsen/logrus"

	"triplestore.dev/updateengine/pkg/engine"
)

// BulkResult mirrors one row of a CouchDB _bulk_docs response.
type BulkResult struct {
	ID     string
	Rev    string
	OK     bool
	Error  string
	Reason string
}

// Projector maintains a CouchDB connection and the in-flight batch of
// JSON-LD documents touched by the current transaction.
type Projector struct {
	client *kivik.Client
	db     *kivik.DB
	dbName string
	log    *logrus.Logger

	mu      sync.Mutex
	pending map[string]map[string]interface{}
}

// Option configures a Projector at construction time.
type Option func(*Projector)

// WithLogger overrides the Projector's default logger.
func WithLogger(l *logrus.Logger) Option {
	return func(p *Projector) { p.log = l }
}

// Open connects to CouchDB and creates the target database if it does
// not already exist.
func Open(ctx context.Context, url, dbName string, opts ...Option) (*Projector, error) {
	client, err := kivik.New("couch", url)
	if err != nil {
		return nil, fmt.Errorf("docview: connect: %w", err)
	}
	exists, err := client.DBExists(ctx, dbName)
	if err != nil {
		return nil, fmt.Errorf("docview: check database: %w", err)
	}
	if !exists {
		if err := client.CreateDB(ctx, dbName); err != nil {
			return nil, fmt.Errorf("docview: create database: %w", err)
		}
	}
	p := &Projector{
		client:  client,
		db:      client.DB(dbName),
		dbName:  dbName,
		log:     logrus.StandardLogger(),
		pending: make(map[string]map[string]interface{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Close releases the underlying CouchDB client connection.
func (p *Projector) Close() error {
	return p.client.Close()
}

// Attach registers the projector's observer hooks on reg. Call once per
// engine; the projector tracks the currently open transaction's staged
// resources internally rather than keying state by transaction ID,
// since the engine only ever has one transaction in flight at a time.
func (p *Projector) Attach(reg *engine.ObserverRegistry) {
	reg.OnInsert(p.stage)
	reg.OnCommit(p.commit)
	reg.OnRollback(p.discard)
}

func (p *Projector) stage(resourceURI, predicate string, object engine.Value) {
	p.mu.Lock()
	defer p.mu.Unlock()
	mergeStatement(p.pending, resourceURI, predicate, object)
}

// mergeStatement folds one staged statement into docs, creating a new
// JSON-LD document for resourceURI on first touch. Split out from
// Projector.stage so the projection logic can be tested without a live
// CouchDB connection.
func mergeStatement(docs map[string]map[string]interface{}, resourceURI, predicate string, object engine.Value) {
	doc, ok := docs[resourceURI]
	if !ok {
		doc = map[string]interface{}{
			"_id": resourceURI,
			"@id": resourceURI,
		}
		docs[resourceURI] = doc
	}

	if predicate == engine.RDFType {
		types, _ := doc["@type"].([]string)
		if object.Kind == engine.KindResource {
			doc["@type"] = append(types, object.Resource)
		}
		return
	}

	value := valueJSON(object)
	switch existing := doc[predicate].(type) {
	case nil:
		doc[predicate] = value
	case []interface{}:
		doc[predicate] = append(existing, value)
	default:
		doc[predicate] = []interface{}{existing, value}
	}
}

func valueJSON(v engine.Value) interface{} {
	switch v.Kind {
	case engine.KindResource:
		return map[string]interface{}{"@id": v.Resource}
	case engine.KindInt64:
		return v.Int
	case engine.KindDouble:
		return v.Float
	case engine.KindBool:
		return v.Bool
	case engine.KindDate:
		return v.Time.UTC().Format(time.RFC3339)
	}
	if v.Lang != "" {
		return map[string]interface{}{"@value": v.Str, "@language": v.Lang}
	}
	if v.Datatype != "" {
		return map[string]interface{}{"@value": v.Str, "@type": v.Datatype}
	}
	return v.Str
}

// commit bulk-saves every document staged during the finished
// transaction. Failures are logged, not returned: the relational
// commit has already succeeded by the time this observer fires, and
// the document projection is advisory.
func (p *Projector) commit(txnID string) {
	p.mu.Lock()
	docs := p.pending
	p.pending = make(map[string]map[string]interface{})
	p.mu.Unlock()

	if len(docs) == 0 {
		return
	}

	ctx := context.Background()
	results, err := p.bulkUpsert(ctx, docs)
	if err != nil {
		p.log.WithError(err).WithField("txn", txnID).Error("docview: bulk save failed")
		return
	}
	for _, r := range results {
		if !r.OK {
			p.log.WithFields(logrus.Fields{
				"txn":      txnID,
				"document": r.ID,
				"reason":   r.Reason,
			}).Warn("docview: document projection failed")
		}
	}
}

func (p *Projector) discard(string) {
	p.mu.Lock()
	p.pending = make(map[string]map[string]interface{})
	p.mu.Unlock()
}

// bulkUpsert fetches the current revision of every touched document (so
// a resource re-projected across transactions updates in place rather
// than conflicting) and bulk-saves the merged set.
func (p *Projector) bulkUpsert(ctx context.Context, docs map[string]map[string]interface{}) ([]BulkResult, error) {
	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}

	rows := p.db.AllDocs(ctx, kivik.Params(map[string]interface{}{
		"include_docs": true,
		"keys":         ids,
	}))
	defer rows.Close()

	for rows.Next() {
		id, err := rows.ID()
		if err != nil || rows.Err() != nil {
			continue
		}
		var existing map[string]interface{}
		if err := rows.ScanDoc(&existing); err != nil {
			continue
		}
		if rev, ok := existing["_rev"]; ok {
			docs[id]["_rev"] = rev
		}
	}

	batch := make([]interface{}, 0, len(docs))
	for _, doc := range docs {
		batch = append(batch, doc)
	}

	kivikResults, err := p.db.BulkDocs(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("docview: bulk docs: %w", err)
	}

	results := make([]BulkResult, 0, len(kivikResults))
	for _, r := range kivikResults {
		out := BulkResult{ID: r.ID, Rev: r.Rev, OK: r.Error == nil}
		if r.Error != nil {
			out.Error = "operation_failed"
			out.Reason = r.Error.Error()
		}
		results = append(results, out)
	}
	return results, nil
}
