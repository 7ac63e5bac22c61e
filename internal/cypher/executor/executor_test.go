package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleksaelezovic/nodus/internal/cypher/parser"
	"github.com/aleksaelezovic/nodus/internal/cypher/planner"
	"github.com/aleksaelezovic/nodus/internal/dict"
	"github.com/aleksaelezovic/nodus/internal/index"
	"github.com/aleksaelezovic/nodus/internal/storage"
	"github.com/aleksaelezovic/nodus/pkg/kv"
)

// txnSnapshot adapts a kv transaction to the executor's Snapshot.
type txnSnapshot struct {
	txn kv.Transaction
}

func (s txnSnapshot) ResolveID(text string) (uint64, bool, error) {
	return dict.ResolveID(s.txn, text)
}

func (s txnSnapshot) ResolveStr(id uint64) (string, bool, error) {
	return dict.ResolveStr(s.txn, id)
}

func (s txnSnapshot) Triples(c index.Criteria) (*index.Scan, error) {
	return index.NewScan(s.txn, c)
}

// newTestSnapshot loads a small social graph and returns a snapshot
// over it.
func newTestSnapshot(t *testing.T) Snapshot {
	t.Helper()
	s, err := storage.NewBadgerStorage(storage.Options{Path: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	facts := [][3]string{
		{"alice", "type", "Person"},
		{"bob", "type", "Person"},
		{"carol", "type", "Person"},
		{"acme", "type", "Company"},
		{"alice", "name", "Alice"},
		{"alice", "age", "30"},
		{"bob", "name", "Bob"},
		{"bob", "age", "25"},
		{"carol", "name", "Carol"},
		{"alice", "knows", "bob"},
		{"bob", "knows", "carol"},
		{"alice", "works_at", "acme"},
	}

	txn, err := s.Begin(true)
	require.NoError(t, err)
	for _, f := range facts {
		sub, err := dict.Intern(txn, f[0])
		require.NoError(t, err)
		pred, err := dict.Intern(txn, f[1])
		require.NoError(t, err)
		obj, err := dict.Intern(txn, f[2])
		require.NoError(t, err)
		require.NoError(t, index.Insert(txn, index.Triple{Subject: sub, Predicate: pred, Object: obj}))
	}
	require.NoError(t, txn.Commit())

	rtxn, err := s.Begin(false)
	require.NoError(t, err)
	t.Cleanup(func() { rtxn.Rollback() })
	return txnSnapshot{txn: rtxn}
}

// run compiles and executes a query, returning all rows.
func run(t *testing.T, snap Snapshot, query string, params map[string]Value) ([]Record, []string) {
	t.Helper()
	q, err := parser.Parse(query)
	require.NoError(t, err)
	plan, err := planner.Build(q)
	require.NoError(t, err)
	iter, err := Build(plan.Root, snap, params)
	require.NoError(t, err)
	defer iter.Close()

	var rows []Record
	for iter.Next() {
		rows = append(rows, iter.Record())
	}
	require.NoError(t, iter.Err())
	return rows, plan.Columns
}

// name resolves a node value back to its term text through the
// snapshot, for readable assertions.
func name(t *testing.T, snap Snapshot, v Value) string {
	t.Helper()
	require.Equal(t, KindNode, v.Kind)
	text, ok, err := snap.ResolveStr(v.Node)
	require.NoError(t, err)
	require.True(t, ok)
	return text
}

func TestExpandOutgoing(t *testing.T) {
	snap := newTestSnapshot(t)
	rows, cols := run(t, snap, `MATCH (a)-[r:knows]->(b) RETURN a, r, b`, nil)

	assert.Equal(t, []string{"a", "r", "b"}, cols)
	require.Len(t, rows, 2)
	assert.Equal(t, "alice", name(t, snap, rows[0]["a"]))
	assert.Equal(t, "bob", name(t, snap, rows[0]["b"]))
	assert.Equal(t, KindRel, rows[0]["r"].Kind)
	assert.Equal(t, "bob", name(t, snap, rows[1]["a"]))
	assert.Equal(t, "carol", name(t, snap, rows[1]["b"]))
}

func TestExpandIncoming(t *testing.T) {
	snap := newTestSnapshot(t)
	rows, _ := run(t, snap, `MATCH (a)<-[:knows]-(b) RETURN a, b`, nil)

	require.Len(t, rows, 2)
	assert.Equal(t, "bob", name(t, snap, rows[0]["a"]))
	assert.Equal(t, "alice", name(t, snap, rows[0]["b"]))
}

func TestExpandUndirected(t *testing.T) {
	snap := newTestSnapshot(t)
	rows, _ := run(t, snap, `MATCH (bob {name: "Bob"})-[:knows]-(x) RETURN x`, nil)

	// bob knows carol, alice knows bob
	require.Len(t, rows, 2)
	assert.Equal(t, "carol", name(t, snap, rows[0]["x"]))
	assert.Equal(t, "alice", name(t, snap, rows[1]["x"]))
}

func TestLabeledScan(t *testing.T) {
	snap := newTestSnapshot(t)
	rows, _ := run(t, snap, `MATCH (p:Person) RETURN p`, nil)

	require.Len(t, rows, 3)
	// triple insertion order interned alice, bob, carol in ascending id order
	assert.Equal(t, "alice", name(t, snap, rows[0]["p"]))
	assert.Equal(t, "bob", name(t, snap, rows[1]["p"]))
	assert.Equal(t, "carol", name(t, snap, rows[2]["p"]))
}

func TestTwoHopPath(t *testing.T) {
	snap := newTestSnapshot(t)
	rows, _ := run(t, snap, `MATCH (a)-[:knows]->(b)-[:knows]->(c) RETURN a, c`, nil)

	require.Len(t, rows, 1)
	assert.Equal(t, "alice", name(t, snap, rows[0]["a"]))
	assert.Equal(t, "carol", name(t, snap, rows[0]["c"]))
}

func TestPropertyFilterWithParameter(t *testing.T) {
	snap := newTestSnapshot(t)
	rows, _ := run(t, snap, `MATCH (p:Person {name: $who}) RETURN p`,
		map[string]Value{"who": Text("Bob")})

	require.Len(t, rows, 1)
	assert.Equal(t, "bob", name(t, snap, rows[0]["p"]))
}

func TestWhereNumericComparison(t *testing.T) {
	snap := newTestSnapshot(t)
	rows, _ := run(t, snap, `MATCH (p:Person) WHERE p.age >= 30 RETURN p.name AS n`, nil)

	require.Len(t, rows, 1)
	assert.Equal(t, Text("Alice"), rows[0]["n"])
}

func TestWhereBooleanLogic(t *testing.T) {
	snap := newTestSnapshot(t)
	rows, _ := run(t, snap,
		`MATCH (p:Person) WHERE p.age = 25 OR NOT p.name <> "Alice" RETURN p.name AS n`, nil)

	require.Len(t, rows, 2)
	assert.Equal(t, Text("Alice"), rows[0]["n"])
	assert.Equal(t, Text("Bob"), rows[1]["n"])
}

func TestWhereMissingPropertyIsNull(t *testing.T) {
	snap := newTestSnapshot(t)
	// carol has no age triple, so the comparison is never true for her
	rows, _ := run(t, snap, `MATCH (p:Person) WHERE p.age < 100 RETURN p`, nil)
	assert.Len(t, rows, 2)
}

func TestFunctions(t *testing.T) {
	snap := newTestSnapshot(t)
	rows, _ := run(t, snap,
		`MATCH (a {name: "Alice"})-[r:works_at]->(c) RETURN id(c) AS cid, type(r) AS rt`, nil)

	require.Len(t, rows, 1)
	assert.Equal(t, KindFloat, rows[0]["cid"].Kind)
	assert.Equal(t, Text("works_at"), rows[0]["rt"])
}

func TestDistinct(t *testing.T) {
	snap := newTestSnapshot(t)
	// Each person produces one type triple, so without DISTINCT the
	// label "Person" repeats.
	plain, _ := run(t, snap, `MATCH (p:Person)-[:knows]->() RETURN "x" AS c`, nil)
	distinct, _ := run(t, snap, `MATCH (p:Person)-[:knows]->() RETURN DISTINCT "x" AS c`, nil)

	assert.Len(t, plain, 2)
	assert.Len(t, distinct, 1)
}

func TestSkipAndLimit(t *testing.T) {
	snap := newTestSnapshot(t)
	rows, _ := run(t, snap, `MATCH (p:Person) RETURN p SKIP 1 LIMIT 1`, nil)

	require.Len(t, rows, 1)
	assert.Equal(t, "bob", name(t, snap, rows[0]["p"]))
}

func TestUnknownTermsYieldEmptyResults(t *testing.T) {
	snap := newTestSnapshot(t)

	queries := []string{
		`MATCH (a)-[r:nonexistent]->(b) RETURN a`,
		`MATCH (n:Ghost) RETURN n`,
		`MATCH (n {name: "Nobody"}) RETURN n`,
	}
	for _, q := range queries {
		rows, _ := run(t, snap, q, nil)
		assert.Empty(t, rows, q)
	}
}

func TestJoinAcrossMatches(t *testing.T) {
	snap := newTestSnapshot(t)
	rows, _ := run(t, snap,
		`MATCH (a)-[:knows]->(b) MATCH (b)-[:knows]->(c) RETURN a, b, c`, nil)

	require.Len(t, rows, 1)
	assert.Equal(t, "alice", name(t, snap, rows[0]["a"]))
	assert.Equal(t, "bob", name(t, snap, rows[0]["b"]))
	assert.Equal(t, "carol", name(t, snap, rows[0]["c"]))
}

func TestProjectionExpressionArithmetic(t *testing.T) {
	snap := newTestSnapshot(t)
	rows, _ := run(t, snap,
		`MATCH (p {name: "Alice"}) RETURN p.age + 1 AS next, p.age * 2 AS twice`, nil)

	require.Len(t, rows, 1)
	assert.Equal(t, Float(31), rows[0]["next"])
	assert.Equal(t, Float(60), rows[0]["twice"])
}
