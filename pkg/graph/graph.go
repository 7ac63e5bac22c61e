// Package graph is the embedded graph database engine. A Database
// stores facts as (subject, predicate, object) triples of interned
// term ids, supports a single writer with any number of snapshot
// readers, and answers a pattern-matching query language through
// prepared statements with a row cursor.
package graph

import (
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/aleksaelezovic/nodus/internal/dict"
	"github.com/aleksaelezovic/nodus/internal/index"
	"github.com/aleksaelezovic/nodus/internal/storage"
	"github.com/aleksaelezovic/nodus/pkg/kv"
)

// Options configures Open.
type Options struct {
	// Path is the database directory, created if absent. Ignored when
	// InMemory is set.
	Path string

	// InMemory keeps everything in memory; nothing survives Close.
	InMemory bool

	// SyncWrites makes every commit fsync before returning.
	SyncWrites bool

	// Logger receives engine and storage logs. When nil a logger at
	// warn level is used.
	Logger *logrus.Logger
}

// Relationship is a stored fact as term ids.
type Relationship struct {
	SubjectID   uint64 `json:"subject_id"`
	PredicateID uint64 `json:"predicate_id"`
	ObjectID    uint64 `json:"object_id"`
}

// Criteria selects triples by any combination of bound fields. A field
// takes part in matching only when its Has flag is set.
type Criteria struct {
	Subject      uint64
	HasSubject   bool
	Predicate    uint64
	HasPredicate bool
	Object       uint64
	HasObject    bool
}

func (c Criteria) internal() index.Criteria {
	return index.Criteria{
		Subject: c.Subject, HasSubject: c.HasSubject,
		Predicate: c.Predicate, HasPredicate: c.HasPredicate,
		Object: c.Object, HasObject: c.HasObject,
	}
}

// Database is an open database handle. Safe for concurrent use: reads
// run against snapshots, writes serialize through Begin.
type Database struct {
	storage kv.Storage
	log     *logrus.Logger

	// writeMu enforces the single-writer policy. Begin blocks here
	// until the current write transaction terminates.
	writeMu sync.Mutex

	mu     sync.Mutex
	closed bool
}

// Open opens or creates a database.
func Open(opts Options) (*Database, error) {
	if opts.Path == "" && !opts.InMemory {
		return nil, errInvalid("a database path is required")
	}

	log := opts.Logger
	if log == nil {
		log = logrus.New()
		log.SetLevel(logrus.WarnLevel)
	}

	s, err := storage.NewBadgerStorage(storage.Options{
		Path:       opts.Path,
		InMemory:   opts.InMemory,
		SyncWrites: opts.SyncWrites,
		Logger:     log,
	})
	if err != nil {
		return nil, errOpen("failed to open database at %q: %v", opts.Path, err)
	}

	log.WithFields(logrus.Fields{
		"path":      opts.Path,
		"in_memory": opts.InMemory,
	}).Info("database opened")

	return &Database{storage: s, log: log}, nil
}

// Close closes the database. Outstanding transactions and statements
// become invalid.
func (db *Database) Close() error {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return nil
	}
	db.closed = true
	db.mu.Unlock()

	if err := db.storage.Close(); err != nil {
		return errInternal("failed to close database: %v", err)
	}
	db.log.Info("database closed")
	return nil
}

func (db *Database) checkOpen() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return errInvalid("database is closed")
	}
	return nil
}

// Intern returns the id for text, allocating and durably committing a
// fresh one if needed. Equivalent to a single-operation write
// transaction.
func (db *Database) Intern(text string) (uint64, error) {
	txn, err := db.Begin()
	if err != nil {
		return 0, err
	}
	id, err := txn.Intern(text)
	if err != nil {
		txn.Abort()
		return 0, err
	}
	if err := txn.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// ResolveID returns the id for text against the latest committed
// snapshot. An unknown term yields (0, false, nil).
func (db *Database) ResolveID(text string) (uint64, bool, error) {
	if err := db.checkOpen(); err != nil {
		return 0, false, err
	}
	txn, err := db.storage.Begin(false)
	if err != nil {
		return 0, false, errInternal("failed to begin read: %v", err)
	}
	defer txn.Rollback()

	id, ok, err := dict.ResolveID(txn, text)
	if err != nil {
		return 0, false, errInternal("resolve failed: %v", err)
	}
	return id, ok, nil
}

// ResolveStr returns the term text for id against the latest committed
// snapshot. An unknown id yields ("", false, nil).
func (db *Database) ResolveStr(id uint64) (string, bool, error) {
	if err := db.checkOpen(); err != nil {
		return "", false, err
	}
	txn, err := db.storage.Begin(false)
	if err != nil {
		return "", false, errInternal("failed to begin read: %v", err)
	}
	defer txn.Rollback()

	text, ok, err := dict.ResolveStr(txn, id)
	if err != nil {
		return "", false, errInternal("resolve failed: %v", err)
	}
	return text, ok, nil
}

// AddTriple stores the fact (s, p, o) in a single-operation write
// transaction. All three ids must already be interned.
func (db *Database) AddTriple(s, p, o uint64) error {
	txn, err := db.Begin()
	if err != nil {
		return err
	}
	if err := txn.AddTriple(s, p, o); err != nil {
		txn.Abort()
		return err
	}
	return txn.Commit()
}

// Has reports whether the fact (s, p, o) is present in the latest
// committed snapshot.
func (db *Database) Has(s, p, o uint64) (bool, error) {
	if err := db.checkOpen(); err != nil {
		return false, err
	}
	txn, err := db.storage.Begin(false)
	if err != nil {
		return false, errInternal("failed to begin read: %v", err)
	}
	defer txn.Rollback()

	ok, err := index.Has(txn, index.Triple{Subject: s, Predicate: p, Object: o})
	if err != nil {
		return false, errInternal("lookup failed: %v", err)
	}
	return ok, nil
}

// CountTriples returns the number of stored facts.
func (db *Database) CountTriples() (uint64, error) {
	if err := db.checkOpen(); err != nil {
		return 0, err
	}
	txn, err := db.storage.Begin(false)
	if err != nil {
		return 0, errInternal("failed to begin read: %v", err)
	}
	defer txn.Rollback()

	n, err := index.Count(txn)
	if err != nil {
		return 0, errInternal("count failed: %v", err)
	}
	return n, nil
}

// QueryTriples streams the facts matching criteria to fn, in the key
// order of the index chosen for the criteria's bound-field shape.
// Returning false from fn stops the scan without error; returning an
// error stops the scan and surfaces as StatusCallbackAbort.
func (db *Database) QueryTriples(c Criteria, fn func(s, p, o uint64) (bool, error)) error {
	if err := db.checkOpen(); err != nil {
		return err
	}
	txn, err := db.storage.Begin(false)
	if err != nil {
		return errInternal("failed to begin read: %v", err)
	}
	defer txn.Rollback()

	scan, err := index.NewScan(txn, c.internal())
	if err != nil {
		return errInternal("scan failed: %v", err)
	}
	defer scan.Close()

	for scan.Next() {
		t := scan.Triple()
		cont, err := fn(t.Subject, t.Predicate, t.Object)
		if err != nil {
			return &Error{Code: StatusCallbackAbort, Message: err.Error()}
		}
		if !cont {
			return nil
		}
	}
	if err := scan.Err(); err != nil {
		return errInternal("scan failed: %v", err)
	}
	return nil
}

// Exec compiles and runs a query in one shot, returning all rows as a
// JSON array of objects. paramsJSON supplies query parameters as a
// JSON object; "" and "null" mean no parameters.
func (db *Database) Exec(query string, paramsJSON string) (string, error) {
	params, err := decodeParams(paramsJSON)
	if err != nil {
		return "", err
	}
	stmt, err := db.Prepare(query, params)
	if err != nil {
		return "", err
	}
	defer stmt.Finalize()

	rows := make([]map[string]interface{}, 0)
	for {
		status, err := stmt.Step()
		if err != nil {
			return "", err
		}
		if status == StatusDone {
			break
		}
		row, err := stmt.rowJSON()
		if err != nil {
			return "", err
		}
		rows = append(rows, row)
	}

	out, err := json.Marshal(rows)
	if err != nil {
		return "", errInternal("failed to encode rows: %v", err)
	}
	return string(out), nil
}

func decodeParams(paramsJSON string) (map[string]interface{}, error) {
	if paramsJSON == "" || paramsJSON == "null" {
		return nil, nil
	}
	var params map[string]interface{}
	if err := json.Unmarshal([]byte(paramsJSON), &params); err != nil {
		return nil, errInvalid("malformed parameters: %v", err)
	}
	return params, nil
}
