// Package dict implements the term dictionary: a bidirectional mapping
// between text terms and 64-bit identifiers.
//
// Identifiers are allocated from a persisted monotone counter starting
// at 1. The zero id is reserved as the not-found sentinel and is never
// allocated. Ids are never reused, so a resolved id stays valid for the
// lifetime of the database.
package dict

import (
	"encoding/binary"
	"fmt"

	"github.com/aleksaelezovic/nodus/pkg/kv"
)

// metaNextID is the meta-table key holding the next unallocated id.
var metaNextID = []byte("next_term_id")

// encodeID renders an id as a fixed-width big-endian key so that
// id-ordered scans match numeric order.
func encodeID(id uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, id)
	return buf
}

func decodeID(buf []byte) (uint64, error) {
	if len(buf) != 8 {
		return 0, fmt.Errorf("malformed id entry: %d bytes", len(buf))
	}
	return binary.BigEndian.Uint64(buf), nil
}

// Intern returns the id for text, allocating a fresh one if the term
// has never been seen. The allocation is staged in txn and becomes
// visible to other transactions only when txn commits. txn must be
// writable.
func Intern(txn kv.Transaction, text string) (uint64, error) {
	existing, err := txn.Get(kv.TableStr2ID, []byte(text))
	if err == nil {
		return decodeID(existing)
	}
	if err != kv.ErrNotFound {
		return 0, fmt.Errorf("dictionary lookup failed: %w", err)
	}

	id, err := nextID(txn)
	if err != nil {
		return 0, err
	}

	key := encodeID(id)
	if err := txn.Set(kv.TableID2Str, key, []byte(text)); err != nil {
		return 0, fmt.Errorf("failed to store id mapping: %w", err)
	}
	if err := txn.Set(kv.TableStr2ID, []byte(text), key); err != nil {
		return 0, fmt.Errorf("failed to store term mapping: %w", err)
	}
	return id, nil
}

// ResolveID looks up the id for text without allocating. The second
// return value reports whether the term is known; an unknown term is
// not an error.
func ResolveID(txn kv.Transaction, text string) (uint64, bool, error) {
	buf, err := txn.Get(kv.TableStr2ID, []byte(text))
	if err == kv.ErrNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("dictionary lookup failed: %w", err)
	}
	id, err := decodeID(buf)
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// ResolveStr returns the text for id. The second return value reports
// whether the id is known.
func ResolveStr(txn kv.Transaction, id uint64) (string, bool, error) {
	buf, err := txn.Get(kv.TableID2Str, encodeID(id))
	if err == kv.ErrNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("dictionary lookup failed: %w", err)
	}
	return string(buf), true, nil
}

// Known reports whether id has a dictionary entry. Commit-time
// referential integrity checks use this without materializing the text.
func Known(txn kv.Transaction, id uint64) (bool, error) {
	_, err := txn.Get(kv.TableID2Str, encodeID(id))
	if err == kv.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dictionary lookup failed: %w", err)
	}
	return true, nil
}

// nextID reads, increments and persists the allocation counter inside
// txn. Badger's single-writer discipline upstream makes this safe
// without further coordination.
func nextID(txn kv.Transaction) (uint64, error) {
	next := uint64(1)
	buf, err := txn.Get(kv.TableMeta, metaNextID)
	if err == nil {
		next, err = decodeID(buf)
		if err != nil {
			return 0, err
		}
	} else if err != kv.ErrNotFound {
		return 0, fmt.Errorf("failed to read id counter: %w", err)
	}

	if err := txn.Set(kv.TableMeta, metaNextID, encodeID(next+1)); err != nil {
		return 0, fmt.Errorf("failed to advance id counter: %w", err)
	}
	return next, nil
}
