package graph

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// newGoldenDB loads a fixed fixture graph. Term ids are allocation
// order, so the encoded output is fully deterministic.
func newGoldenDB(t *testing.T) *Database {
	db := newTestDB(t)
	facts := [][3]string{
		{"alice", "knows", "bob"},   // ids 1, 2, 3
		{"bob", "knows", "carol"},   // id 4
		{"alice", "type", "Person"}, // ids 5, 6
		{"bob", "type", "Person"},
		{"alice", "name", "Alice"}, // ids 7, 8
		{"bob", "name", "Bob"},     // id 9
		{"alice", "age", "30"},     // ids 10, 11
	}
	for _, f := range facts {
		addFact(t, db, f[0], f[1], f[2])
	}
	return db
}

func TestExecGolden(t *testing.T) {
	db := newGoldenDB(t)

	tests := []struct {
		name   string
		query  string
		params string
	}{
		{"knows", `MATCH (a)-[r:knows]->(b) RETURN a, r, b`, ""},
		{"names", `MATCH (p:Person) RETURN p.name AS name, p.age AS age`, ""},
		{"params", `MATCH (p {name: $who}) RETURN id(p) AS pid`, `{"who":"Bob"}`},
		{"empty", `MATCH (n:Ghost) RETURN n`, ""},
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, err := db.Exec(tc.query, tc.params)
			if err != nil {
				t.Fatalf("exec failed: %v", err)
			}
			g.Assert(t, tc.name, []byte(out))
		})
	}
}

// TestExecMatchesCursor drives the same statement both ways: the
// one-shot path must be equivalent to stepping the cursor to
// exhaustion.
func TestExecMatchesCursor(t *testing.T) {
	db := newGoldenDB(t)
	query := `MATCH (a)-[:knows]->(b) RETURN id(a) AS aid, id(b) AS bid`

	out, err := db.Exec(query, "")
	if err != nil {
		t.Fatalf("exec failed: %v", err)
	}

	stmt, err := db.Prepare(query, nil)
	if err != nil {
		t.Fatalf("failed to prepare: %v", err)
	}
	defer stmt.Finalize()

	var rows []map[string]interface{}
	for {
		status, err := stmt.Step()
		if err != nil {
			t.Fatalf("step failed: %v", err)
		}
		if status == StatusDone {
			break
		}
		row := make(map[string]interface{}, stmt.ColumnCount())
		for i := 0; i < stmt.ColumnCount(); i++ {
			name, err := stmt.ColumnName(i)
			if err != nil {
				t.Fatalf("failed to read column name: %v", err)
			}
			v, err := stmt.ColumnFloat(i)
			if err != nil {
				t.Fatalf("failed to read column %d: %v", i, err)
			}
			row[name] = v
		}
		rows = append(rows, row)
	}

	manual, err := json.Marshal(rows)
	if err != nil {
		t.Fatalf("failed to encode rows: %v", err)
	}
	if out != string(manual) {
		t.Errorf("one-shot and cursor paths disagree:\n%s\n%s", out, manual)
	}
}

func TestExecRejectsMalformedParams(t *testing.T) {
	db := newGoldenDB(t)

	_, err := db.Exec(`MATCH (n) RETURN n`, `{"broken`)
	if Code(err) != StatusInvalidArgument {
		t.Errorf("expected invalid argument, got %v", err)
	}
}
