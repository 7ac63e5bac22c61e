package index

import (
	"testing"

	"github.com/aleksaelezovic/nodus/internal/storage"
	"github.com/aleksaelezovic/nodus/pkg/kv"
)

func newTestStorage(t *testing.T) kv.Storage {
	t.Helper()
	s, err := storage.NewBadgerStorage(storage.Options{Path: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func insertAll(t *testing.T, s kv.Storage, triples []Triple) {
	t.Helper()
	txn, err := s.Begin(true)
	if err != nil {
		t.Fatalf("failed to begin: %v", err)
	}
	for _, tr := range triples {
		if err := Insert(txn, tr); err != nil {
			t.Fatalf("failed to insert %+v: %v", tr, err)
		}
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("failed to commit: %v", err)
	}
}

func collect(t *testing.T, txn kv.Transaction, c Criteria) []Triple {
	t.Helper()
	scan, err := NewScan(txn, c)
	if err != nil {
		t.Fatalf("failed to open scan: %v", err)
	}
	defer scan.Close()

	var out []Triple
	for scan.Next() {
		out = append(out, scan.Triple())
	}
	if err := scan.Err(); err != nil {
		t.Fatalf("scan error: %v", err)
	}
	return out
}

var fixture = []Triple{
	{1, 10, 100},
	{1, 10, 101},
	{1, 11, 100},
	{2, 10, 100},
	{2, 11, 102},
	{3, 12, 101},
}

func TestScanShapes(t *testing.T) {
	s := newTestStorage(t)
	insertAll(t, s, fixture)

	txn, err := s.Begin(false)
	if err != nil {
		t.Fatalf("failed to begin: %v", err)
	}
	defer txn.Rollback()

	tests := []struct {
		name string
		c    Criteria
		want int
	}{
		{"all bound hit", Criteria{Subject: 1, HasSubject: true, Predicate: 10, HasPredicate: true, Object: 100, HasObject: true}, 1},
		{"all bound miss", Criteria{Subject: 1, HasSubject: true, Predicate: 10, HasPredicate: true, Object: 999, HasObject: true}, 0},
		{"subject+predicate", Criteria{Subject: 1, HasSubject: true, Predicate: 10, HasPredicate: true}, 2},
		{"subject+object", Criteria{Subject: 1, HasSubject: true, Object: 100, HasObject: true}, 2},
		{"predicate+object", Criteria{Predicate: 10, HasPredicate: true, Object: 100, HasObject: true}, 2},
		{"subject only", Criteria{Subject: 1, HasSubject: true}, 3},
		{"predicate only", Criteria{Predicate: 10, HasPredicate: true}, 3},
		{"object only", Criteria{Object: 100, HasObject: true}, 3},
		{"unbound", Criteria{}, 6},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := collect(t, txn, tc.c)
			if len(got) != tc.want {
				t.Errorf("expected %d triples, got %d: %+v", tc.want, len(got), got)
			}
			for _, tr := range got {
				if tc.c.HasSubject && tr.Subject != tc.c.Subject {
					t.Errorf("subject mismatch: %+v", tr)
				}
				if tc.c.HasPredicate && tr.Predicate != tc.c.Predicate {
					t.Errorf("predicate mismatch: %+v", tr)
				}
				if tc.c.HasObject && tr.Object != tc.c.Object {
					t.Errorf("object mismatch: %+v", tr)
				}
			}
		})
	}
}

func TestUnboundScanOrder(t *testing.T) {
	s := newTestStorage(t)
	insertAll(t, s, fixture)

	txn, err := s.Begin(false)
	if err != nil {
		t.Fatalf("failed to begin: %v", err)
	}
	defer txn.Rollback()

	got := collect(t, txn, Criteria{})
	if len(got) != len(fixture) {
		t.Fatalf("expected %d triples, got %d", len(fixture), len(got))
	}
	// fixture is already in (s, p, o) order
	for i, tr := range got {
		if tr != fixture[i] {
			t.Errorf("position %d: expected %+v, got %+v", i, fixture[i], tr)
		}
	}
}

func TestInsertIsIdempotent(t *testing.T) {
	s := newTestStorage(t)
	insertAll(t, s, []Triple{{1, 2, 3}, {1, 2, 3}, {1, 2, 3}})

	txn, err := s.Begin(false)
	if err != nil {
		t.Fatalf("failed to begin: %v", err)
	}
	defer txn.Rollback()

	n, err := Count(txn)
	if err != nil {
		t.Fatalf("failed to count: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 triple, got %d", n)
	}
}

func TestHas(t *testing.T) {
	s := newTestStorage(t)
	insertAll(t, s, []Triple{{1, 2, 3}})

	txn, err := s.Begin(false)
	if err != nil {
		t.Fatalf("failed to begin: %v", err)
	}
	defer txn.Rollback()

	ok, err := Has(txn, Triple{1, 2, 3})
	if err != nil {
		t.Fatalf("failed to probe: %v", err)
	}
	if !ok {
		t.Error("expected triple to be present")
	}

	ok, err = Has(txn, Triple{3, 2, 1})
	if err != nil {
		t.Fatalf("failed to probe: %v", err)
	}
	if ok {
		t.Error("expected triple to be absent")
	}
}

func TestEarlyClose(t *testing.T) {
	s := newTestStorage(t)
	insertAll(t, s, fixture)

	txn, err := s.Begin(false)
	if err != nil {
		t.Fatalf("failed to begin: %v", err)
	}
	defer txn.Rollback()

	scan, err := NewScan(txn, Criteria{})
	if err != nil {
		t.Fatalf("failed to open scan: %v", err)
	}
	if !scan.Next() {
		t.Fatal("expected at least one triple")
	}
	if err := scan.Close(); err != nil {
		t.Fatalf("failed to close mid-scan: %v", err)
	}

	// The transaction stays usable after an early close
	n, err := Count(txn)
	if err != nil {
		t.Fatalf("failed to count after early close: %v", err)
	}
	if n != uint64(len(fixture)) {
		t.Errorf("expected %d triples, got %d", len(fixture), n)
	}
}
