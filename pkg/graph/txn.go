package graph

import (
	"github.com/aleksaelezovic/nodus/internal/dict"
	"github.com/aleksaelezovic/nodus/internal/index"
	"github.com/aleksaelezovic/nodus/pkg/kv"
)

type txnState int

const (
	txnActive txnState = iota
	txnCommitted
	txnAborted
)

// Txn is a write transaction. At most one exists at a time; staged
// writes are invisible to readers until Commit and vanish on Abort.
// A Txn is not safe for concurrent use.
type Txn struct {
	db     *Database
	txn    kv.Transaction
	staged []index.Triple
	state  txnState
}

// Begin starts a write transaction. It blocks until any current write
// transaction commits or aborts.
func (db *Database) Begin() (*Txn, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	db.writeMu.Lock()

	txn, err := db.storage.Begin(true)
	if err != nil {
		db.writeMu.Unlock()
		return nil, errInternal("failed to begin write: %v", err)
	}
	db.log.Debug("write transaction started")
	return &Txn{db: db, txn: txn}, nil
}

func (t *Txn) checkActive() error {
	switch t.state {
	case txnCommitted:
		return errInvalid("transaction already committed")
	case txnAborted:
		return errInvalid("transaction already aborted")
	}
	return nil
}

// Intern returns the id for text, allocating a fresh one if the term
// is unknown to this transaction's view. The allocation commits or
// aborts with the transaction.
func (t *Txn) Intern(text string) (uint64, error) {
	if err := t.checkActive(); err != nil {
		return 0, err
	}
	id, err := dict.Intern(t.txn, text)
	if err != nil {
		return 0, errInternal("intern failed: %v", err)
	}
	return id, nil
}

// ResolveID looks up text in this transaction's view, which includes
// its own staged interns.
func (t *Txn) ResolveID(text string) (uint64, bool, error) {
	if err := t.checkActive(); err != nil {
		return 0, false, err
	}
	id, ok, err := dict.ResolveID(t.txn, text)
	if err != nil {
		return 0, false, errInternal("resolve failed: %v", err)
	}
	return id, ok, nil
}

// ResolveStr looks up id in this transaction's view.
func (t *Txn) ResolveStr(id uint64) (string, bool, error) {
	if err := t.checkActive(); err != nil {
		return "", false, err
	}
	text, ok, err := dict.ResolveStr(t.txn, id)
	if err != nil {
		return "", false, errInternal("resolve failed: %v", err)
	}
	return text, ok, nil
}

// AddTriple stages the fact (s, p, o). Whether the ids reference
// interned terms is checked at Commit, so terms may be interned after
// the facts that use them.
func (t *Txn) AddTriple(s, p, o uint64) error {
	if err := t.checkActive(); err != nil {
		return err
	}
	if s == 0 || p == 0 || o == 0 {
		return errInvalid("triple ids must be non-zero")
	}
	triple := index.Triple{Subject: s, Predicate: p, Object: o}
	if err := index.Insert(t.txn, triple); err != nil {
		return errInternal("insert failed: %v", err)
	}
	t.staged = append(t.staged, triple)
	return nil
}

// Commit checks referential integrity of every staged triple, then
// atomically publishes the transaction. On any failure the transaction
// is rolled back and ends aborted; it never partially commits.
func (t *Txn) Commit() error {
	if err := t.checkActive(); err != nil {
		return err
	}

	for _, triple := range t.staged {
		for _, id := range [3]uint64{triple.Subject, triple.Predicate, triple.Object} {
			known, err := dict.Known(t.txn, id)
			if err != nil {
				t.abort()
				return errInternal("integrity check failed: %v", err)
			}
			if !known {
				t.abort()
				return errInternal("triple (%d, %d, %d) references uninterned id %d",
					triple.Subject, triple.Predicate, triple.Object, id)
			}
		}
	}

	if err := t.txn.Commit(); err != nil {
		t.abort()
		return errInternal("commit failed: %v", err)
	}
	t.state = txnCommitted
	t.db.writeMu.Unlock()
	t.db.log.WithField("triples", len(t.staged)).Debug("write transaction committed")
	return nil
}

// Abort discards every staged write. Aborting a terminated transaction
// is an error.
func (t *Txn) Abort() error {
	if err := t.checkActive(); err != nil {
		return err
	}
	t.abort()
	t.db.log.Debug("write transaction aborted")
	return nil
}

func (t *Txn) abort() {
	t.txn.Rollback()
	t.state = txnAborted
	t.db.writeMu.Unlock()
}
