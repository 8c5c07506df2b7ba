package engine

import (
	"context"
	"sync"
	"time"

	"triplestore.dev/updateengine/pkg/store"
)

// ResourceResolver maps resource URIs (and materialized blank nodes) to the
// int64 ids the relational schema keys rows by, and hands out the next
// modseq value on every mutation. It caches resolved ids for the lifetime
// of the process: the single-writer model means no other actor can
// invalidate that cache underneath it.
type ResourceResolver struct {
	mu      sync.Mutex
	cache   map[string]int64
	reverse map[int64]string
	nextID  int64
	modseq  int64
}

// NewResourceResolver seeds the resolver's counters from the store's
// current high-water marks so ids and modseq values never collide with
// rows a prior process run already committed.
func NewResourceResolver(lastID, lastModseq int64) *ResourceResolver {
	return &ResourceResolver{
		cache:   make(map[string]int64),
		reverse: make(map[int64]string),
		nextID:  lastID + 1,
		modseq:  lastModseq,
	}
}

// URIForID returns the URI cached for id, or "" if the resolver has never
// resolved that id in this process.
func (r *ResourceResolver) URIForID(id int64) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reverse[id]
}

// Resolve returns the id for uri if already known to the cache, without
// touching the store.
func (r *ResourceResolver) Resolve(uri string) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.cache[uri]
	return id, ok
}

// Ensure resolves uri to an id, querying the store on a cache miss and
// inserting a new rdfs:Resource row if the store has never seen it either.
func (r *ResourceResolver) Ensure(ctx context.Context, tx store.Tx, uri string) (int64, error) {
	id, _, err := r.EnsureChecked(ctx, tx, uri)
	return id, err
}

// EnsureChecked is Ensure plus a flag telling the caller whether uri was
// already known (to the cache or the store) or was inserted as a brand
// new resource. Blank node materialization needs this distinction: a
// blank node's buffered statements are only replayed the first time its
// computed urn:uuid is seen.
func (r *ResourceResolver) EnsureChecked(ctx context.Context, tx store.Tx, uri string) (int64, bool, error) {
	r.mu.Lock()
	if id, ok := r.cache[uri]; ok {
		r.mu.Unlock()
		return id, true, nil
	}
	r.mu.Unlock()

	row := tx.QueryRow(ctx, `SELECT id FROM rdfs_Resource WHERE uri = $1`, uri)
	var id int64
	switch err := row.Scan(&id); {
	case err == nil:
		r.mu.Lock()
		r.cache[uri] = id
		r.reverse[id] = uri
		r.mu.Unlock()
		return id, true, nil
	case isNoRows(err):
		newID, err := r.insertNew(ctx, tx, uri)
		return newID, false, err
	default:
		return 0, false, &StorageError{Op: "resolve resource", Err: err}
	}
}

func (r *ResourceResolver) insertNew(ctx context.Context, tx store.Tx, uri string) (int64, error) {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.mu.Unlock()

	// Modified starts at 0; flushTableOps stamps every touched resource
	// (newly created ones included) with a real modseq via NextModseq
	// once its other ops have landed.
	added := time.Now().Unix()
	if err := tx.Exec(ctx, `INSERT INTO rdfs_Resource (id, uri, Added, Modified, Available) VALUES ($1, $2, $3, 0, 1)`, id, uri, added); err != nil {
		return 0, &StorageError{Op: "insert resource", Err: err}
	}

	r.mu.Lock()
	r.cache[uri] = id
	r.reverse[id] = uri
	r.mu.Unlock()
	return id, nil
}

// Rename updates the resolver's uri <-> id cache after a tracker:uri
// rename has been applied to the underlying row. The id is unchanged; only
// the uri the cache answers lookups by moves.
func (r *ResourceResolver) Rename(id int64, newURI string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.reverse[id]; ok {
		delete(r.cache, old)
	}
	r.cache[newURI] = id
	r.reverse[id] = newURI
}

// NextModseq returns the next transaction modseq, monotonically increasing
// for the process lifetime.
func (r *ResourceResolver) NextModseq() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modseq++
	return r.modseq
}

// Counters returns the resolver's current high-water marks, for a caller
// to persist across process restarts and hand back to NewResourceResolver
// on the next run.
func (r *ResourceResolver) Counters() (lastID, lastModseq int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nextID - 1, r.modseq
}

// isNoRows is deliberately permissive: different store.Row implementations
// surface "no matching row" differently (pgx.ErrNoRows, storetest's sentinel
// error), and the resolver only needs to tell that case apart from a real
// storage failure.
func isNoRows(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return msg == "no rows in result set" || msg == "storetest: no row" ||
		containsFold(msg, "no rows")
}

func containsFold(s, substr string) bool {
	return len(s) >= len(substr) && indexFold(s, substr) >= 0
}

func indexFold(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if equalFold(s[i:i+len(substr)], substr) {
			return i
		}
	}
	return -1
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
