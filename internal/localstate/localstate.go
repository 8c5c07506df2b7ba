// Package localstate gives the update engine CLI a small persistent
// cache between invocations: the resource id / modseq high-water marks
// the resolver must resume from, and the path of the last ontology
// document successfully loaded. It is bbolt-backed, adapted from the
// teacher framework's generic key/value wrapper down to the specific
// buckets the CLI needs.
package localstate

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	bucketCounters = "counters"
	bucketOntology = "ontology"

	keyCounters     = "resolver"
	keyLastOntology = "last_loaded"
)

// Counters is the resolver's persisted high-water marks, so a new CLI
// process never reuses an id or modseq value a prior run already
// committed.
type Counters struct {
	LastID     int64 `json:"last_id"`
	LastModseq int64 `json:"last_modseq"`
}

// LoadedOntology records which ontology document a process last applied
// successfully, and when.
type LoadedOntology struct {
	Path      string    `json:"path"`
	LoadedAt  time.Time `json:"loaded_at"`
	ClassN    int       `json:"class_count"`
	PropertyN int       `json:"property_count"`
}

// DB wraps a bbolt database with the buckets and JSON helpers
// localstate needs.
type DB struct {
	*bolt.DB
}

// Open opens or creates the cache file at path, creating its buckets if
// this is the first run.
func Open(path string) (*DB, error) {
	boltDB, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("localstate: open %s: %w", path, err)
	}
	db := &DB{boltDB}
	for _, bucket := range []string{bucketCounters, bucketOntology} {
		if err := db.createBucket(bucket); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

func (db *DB) createBucket(name string) error {
	return db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(name))
		if err != nil {
			return fmt.Errorf("localstate: create bucket %s: %w", name, err)
		}
		return nil
	})
}

// SaveCounters persists the resolver's current high-water marks.
func (db *DB) SaveCounters(c Counters) error {
	return db.putJSON(bucketCounters, keyCounters, c)
}

// LoadCounters returns the last persisted counters, or a zero value if
// this is the first run against this cache file.
func (db *DB) LoadCounters() (Counters, error) {
	var c Counters
	err := db.getJSON(bucketCounters, keyCounters, &c)
	if err == errKeyNotFound {
		return Counters{}, nil
	}
	return c, err
}

// SaveLoadedOntology records which ontology document was last applied.
func (db *DB) SaveLoadedOntology(l LoadedOntology) error {
	return db.putJSON(bucketOntology, keyLastOntology, l)
}

// LoadedOntology returns the last recorded ontology load, if any.
func (db *DB) LoadedOntology() (LoadedOntology, bool, error) {
	var l LoadedOntology
	err := db.getJSON(bucketOntology, keyLastOntology, &l)
	if err == errKeyNotFound {
		return LoadedOntology{}, false, nil
	}
	if err != nil {
		return LoadedOntology{}, false, err
	}
	return l, true, nil
}

var errKeyNotFound = fmt.Errorf("localstate: key not found")

func (db *DB) putJSON(bucket, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("localstate: marshal: %w", err)
	}
	return db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucket)).Put([]byte(key), data)
	})
}

func (db *DB) getJSON(bucket, key string, value interface{}) error {
	return db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(bucket)).Get([]byte(key))
		if data == nil {
			return errKeyNotFound
		}
		return json.Unmarshal(data, value)
	})
}
