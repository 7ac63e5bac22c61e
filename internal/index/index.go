// Package index maintains the triple index: five sort orders over the
// same set of (subject, predicate, object) id triples, so that every
// bound/unbound criteria shape has an order whose key prefix covers the
// bound fields.
package index

import (
	"encoding/binary"
	"fmt"

	"github.com/aleksaelezovic/nodus/pkg/kv"
)

// Triple is a fact expressed as dictionary ids.
type Triple struct {
	Subject   uint64
	Predicate uint64
	Object    uint64
}

// Criteria selects triples by any combination of bound fields. A field
// participates only when its Has flag is set, so the zero id remains
// usable as a bound value even though the engine never allocates it.
type Criteria struct {
	Subject      uint64
	HasSubject   bool
	Predicate    uint64
	HasPredicate bool
	Object       uint64
	HasObject    bool
}

// Exact reports whether all three fields are bound.
func (c Criteria) Exact() bool {
	return c.HasSubject && c.HasPredicate && c.HasObject
}

// orders maps each index table to the position (in key order) of the
// subject, predicate and object within its 24-byte key.
var orders = map[kv.Table][3]int{
	kv.TableSPO: {0, 1, 2},
	kv.TableSOP: {0, 2, 1},
	kv.TablePOS: {2, 0, 1},
	kv.TablePSO: {1, 0, 2},
	kv.TableOSP: {1, 2, 0},
}

// allOrders lists the tables Insert writes. Declared once so insert and
// tests agree on the set.
var allOrders = []kv.Table{kv.TableSPO, kv.TableSOP, kv.TablePOS, kv.TablePSO, kv.TableOSP}

// encodeKey lays out t in the given table's sort order.
func encodeKey(table kv.Table, t Triple) []byte {
	pos := orders[table]
	key := make([]byte, 24)
	binary.BigEndian.PutUint64(key[pos[0]*8:], t.Subject)
	binary.BigEndian.PutUint64(key[pos[1]*8:], t.Predicate)
	binary.BigEndian.PutUint64(key[pos[2]*8:], t.Object)
	return key
}

// decodeKey recovers the triple from a key in the given table's order.
func decodeKey(table kv.Table, key []byte) (Triple, error) {
	if len(key) != 24 {
		return Triple{}, fmt.Errorf("malformed index key: %d bytes", len(key))
	}
	pos := orders[table]
	return Triple{
		Subject:   binary.BigEndian.Uint64(key[pos[0]*8:]),
		Predicate: binary.BigEndian.Uint64(key[pos[1]*8:]),
		Object:    binary.BigEndian.Uint64(key[pos[2]*8:]),
	}, nil
}

// Insert stages t in all five orders. Inserting an existing triple is a
// no-op (set semantics). txn must be writable.
func Insert(txn kv.Transaction, t Triple) error {
	for _, table := range allOrders {
		if err := txn.Set(table, encodeKey(table, t), nil); err != nil {
			return fmt.Errorf("failed to write %s entry: %w", table, err)
		}
	}
	return nil
}

// Has reports whether t is present, by exact lookup in the primary
// order.
func Has(txn kv.Transaction, t Triple) (bool, error) {
	_, err := txn.Get(kv.TableSPO, encodeKey(kv.TableSPO, t))
	if err == kv.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("index lookup failed: %w", err)
	}
	return true, nil
}

// Count walks the primary order and returns the number of triples.
func Count(txn kv.Transaction) (uint64, error) {
	iter, err := txn.Scan(kv.TableSPO, nil, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to scan spo: %w", err)
	}
	defer iter.Close()

	var n uint64
	for iter.Next() {
		n++
	}
	return n, nil
}

// selectOrder picks the order whose key layout puts c's bound fields
// first, and returns that table along with the bound fields in key
// order.
func selectOrder(c Criteria) (kv.Table, []uint64) {
	switch {
	case c.HasSubject && c.HasPredicate && c.HasObject:
		return kv.TableSPO, []uint64{c.Subject, c.Predicate, c.Object}
	case c.HasSubject && c.HasPredicate:
		return kv.TableSPO, []uint64{c.Subject, c.Predicate}
	case c.HasSubject && c.HasObject:
		return kv.TableSOP, []uint64{c.Subject, c.Object}
	case c.HasPredicate && c.HasObject:
		return kv.TablePOS, []uint64{c.Predicate, c.Object}
	case c.HasSubject:
		return kv.TableSPO, []uint64{c.Subject}
	case c.HasPredicate:
		return kv.TablePSO, []uint64{c.Predicate}
	case c.HasObject:
		return kv.TableOSP, []uint64{c.Object}
	default:
		return kv.TableSPO, nil
	}
}

// prefixFor renders bound fields as a scan prefix.
func prefixFor(bound []uint64) []byte {
	if len(bound) == 0 {
		return nil
	}
	prefix := make([]byte, len(bound)*8)
	for i, v := range bound {
		binary.BigEndian.PutUint64(prefix[i*8:], v)
	}
	return prefix
}

// Scan is a lazy cursor over the triples matching a criteria. It does
// not own the enclosing transaction; closing it only releases the
// underlying kv iterator.
type Scan struct {
	table kv.Table
	iter  kv.Iterator
	cur   Triple
	err   error
}

// NewScan opens a cursor over the triples matching c, using the order
// selected for c's bound-field shape. Results arrive in that order's
// key order; a fully unbound criteria yields every triple in
// (subject, predicate, object) order.
func NewScan(txn kv.Transaction, c Criteria) (*Scan, error) {
	table, bound := selectOrder(c)
	iter, err := txn.Scan(table, prefixFor(bound), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", table, err)
	}
	return &Scan{table: table, iter: iter}, nil
}

// Next advances to the next matching triple. It returns false at the
// end of the matching range or on a decoding error; check Err after a
// false return.
func (s *Scan) Next() bool {
	if s.err != nil {
		return false
	}
	if !s.iter.Next() {
		return false
	}
	s.cur, s.err = decodeKey(s.table, s.iter.Key())
	return s.err == nil
}

// Triple returns the triple at the cursor position.
func (s *Scan) Triple() Triple {
	return s.cur
}

// Err returns the first error encountered while decoding.
func (s *Scan) Err() error {
	return s.err
}

// Close releases the underlying iterator. Safe to call mid-iteration.
func (s *Scan) Close() error {
	return s.iter.Close()
}
