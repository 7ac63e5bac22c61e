package storage

import (
	"bytes"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/aleksaelezovic/nodus/pkg/kv"
)

// Options configures the BadgerDB-backed storage.
type Options struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps all data in memory. Nothing survives Close.
	InMemory bool

	// SyncWrites makes every commit fsync before returning.
	SyncWrites bool

	// Logger receives BadgerDB's internal log output. Nil silences it.
	Logger *logrus.Logger
}

// BadgerStorage implements kv.Storage using BadgerDB
type BadgerStorage struct {
	db *badger.DB
}

// NewBadgerStorage opens a BadgerDB-backed storage.
func NewBadgerStorage(o Options) (*BadgerStorage, error) {
	opts := badger.DefaultOptions(o.Path)
	opts.InMemory = o.InMemory
	opts.SyncWrites = o.SyncWrites
	if o.InMemory {
		opts.Dir = ""
		opts.ValueDir = ""
	}
	if o.Logger != nil {
		opts.Logger = &badgerLogger{log: o.Logger}
	} else {
		opts.Logger = nil
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	return &BadgerStorage{db: db}, nil
}

// Begin starts a new transaction
func (s *BadgerStorage) Begin(writable bool) (kv.Transaction, error) {
	txn := s.db.NewTransaction(writable)
	return &BadgerTransaction{
		txn:      txn,
		writable: writable,
	}, nil
}

// Close closes the storage
func (s *BadgerStorage) Close() error {
	return s.db.Close()
}

// Sync flushes writes to disk
func (s *BadgerStorage) Sync() error {
	return s.db.Sync()
}

// badgerLogger adapts a logrus logger to badger.Logger.
type badgerLogger struct {
	log *logrus.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.WithField("component", "badger").Errorf(format, args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.WithField("component", "badger").Warnf(format, args...)
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.log.WithField("component", "badger").Infof(format, args...)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.WithField("component", "badger").Debugf(format, args...)
}

// BadgerTransaction implements kv.Transaction using BadgerDB
type BadgerTransaction struct {
	txn      *badger.Txn
	writable bool
}

// Get retrieves a value by key
func (t *BadgerTransaction) Get(table kv.Table, key []byte) ([]byte, error) {
	prefixedKey := kv.PrefixKey(table, key)
	item, err := t.txn.Get(prefixedKey)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, kv.ErrNotFound
		}
		return nil, err
	}

	var value []byte
	err = item.Value(func(val []byte) error {
		value = append([]byte{}, val...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return value, nil
}

// Set stores a key-value pair
func (t *BadgerTransaction) Set(table kv.Table, key, value []byte) error {
	if !t.writable {
		return kv.ErrTransactionRO
	}

	prefixedKey := kv.PrefixKey(table, key)
	return t.txn.Set(prefixedKey, value)
}

// Delete removes a key
func (t *BadgerTransaction) Delete(table kv.Table, key []byte) error {
	if !t.writable {
		return kv.ErrTransactionRO
	}

	prefixedKey := kv.PrefixKey(table, key)
	return t.txn.Delete(prefixedKey)
}

// Scan iterates over a key range [start, end)
func (t *BadgerTransaction) Scan(table kv.Table, start, end []byte) (kv.Iterator, error) {
	opts := badger.DefaultIteratorOptions

	var seekKey []byte
	var scanPrefix []byte
	tablePrefix := kv.TablePrefix(table)

	if start != nil {
		seekKey = kv.PrefixKey(table, start)
		// The start key doubles as the scan prefix to narrow iteration
		scanPrefix = seekKey
	} else {
		seekKey = tablePrefix
		scanPrefix = tablePrefix
	}

	opts.Prefix = scanPrefix
	it := t.txn.NewIterator(opts)

	var endKey []byte
	if end != nil {
		endKey = kv.PrefixKey(table, end)
	}

	return &BadgerIterator{
		it:       it,
		prefix:   tablePrefix,
		endKey:   endKey,
		seekKey:  seekKey,
		started:  false,
		hasValue: false,
	}, nil
}

// Commit commits the transaction
func (t *BadgerTransaction) Commit() error {
	return t.txn.Commit()
}

// Rollback rolls back the transaction
func (t *BadgerTransaction) Rollback() error {
	t.txn.Discard()
	return nil
}

// BadgerIterator implements kv.Iterator using BadgerDB
type BadgerIterator struct {
	it       *badger.Iterator
	prefix   []byte // table prefix, stripped from returned keys
	endKey   []byte
	seekKey  []byte
	started  bool
	hasValue bool
}

// Next advances to the next item
func (i *BadgerIterator) Next() bool {
	if !i.started {
		i.it.Seek(i.seekKey)
		i.started = true
	} else {
		i.it.Next()
	}

	if !i.it.Valid() {
		i.hasValue = false
		return false
	}

	if i.endKey != nil {
		if bytes.Compare(i.it.Item().Key(), i.endKey) >= 0 {
			i.hasValue = false
			return false
		}
	}

	i.hasValue = true
	return true
}

// Key returns the current key (without the table prefix)
func (i *BadgerIterator) Key() []byte {
	if !i.hasValue {
		return nil
	}

	key := i.it.Item().Key()
	if len(key) > len(i.prefix) {
		return key[len(i.prefix):]
	}
	return nil
}

// Value returns the current value
func (i *BadgerIterator) Value() ([]byte, error) {
	if !i.hasValue {
		return nil, kv.ErrNotFound
	}

	var value []byte
	err := i.it.Item().Value(func(val []byte) error {
		value = append([]byte{}, val...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return value, nil
}

// Close closes the iterator
func (i *BadgerIterator) Close() error {
	i.it.Close()
	return nil
}
