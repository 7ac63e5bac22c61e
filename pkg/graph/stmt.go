package graph

import (
	"github.com/aleksaelezovic/nodus/internal/cypher/executor"
	"github.com/aleksaelezovic/nodus/internal/cypher/parser"
	"github.com/aleksaelezovic/nodus/internal/cypher/planner"
	"github.com/aleksaelezovic/nodus/internal/dict"
	"github.com/aleksaelezovic/nodus/internal/index"
	"github.com/aleksaelezovic/nodus/pkg/kv"
)

// ColumnType classifies a result column value.
type ColumnType int32

const (
	ColumnNull ColumnType = iota
	ColumnText
	ColumnFloat
	ColumnBool
	ColumnNode
	ColumnRelationship
)

func (t ColumnType) String() string {
	switch t {
	case ColumnNull:
		return "null"
	case ColumnText:
		return "text"
	case ColumnFloat:
		return "float"
	case ColumnBool:
		return "bool"
	case ColumnNode:
		return "node"
	case ColumnRelationship:
		return "relationship"
	default:
		return "unknown"
	}
}

type stmtState int

const (
	stmtPrepared stmtState = iota
	stmtRowReady
	stmtExhausted
	stmtFinalized
)

// snapshot adapts a read transaction to the executor's Snapshot.
type snapshot struct {
	txn kv.Transaction
}

func (s snapshot) ResolveID(text string) (uint64, bool, error) {
	return dict.ResolveID(s.txn, text)
}

func (s snapshot) ResolveStr(id uint64) (string, bool, error) {
	return dict.ResolveStr(s.txn, id)
}

func (s snapshot) Triples(c index.Criteria) (*index.Scan, error) {
	return index.NewScan(s.txn, c)
}

// Statement is a prepared query with a row cursor. It executes against
// the snapshot taken at Prepare, so later commits do not affect its
// results. Not safe for concurrent use.
type Statement struct {
	db      *Database
	txn     kv.Transaction
	iter    executor.RecordIter
	columns []string
	state   stmtState

	// row holds the current row's values in column order. Replaced on
	// every Step; accessor results are only valid until then.
	row []executor.Value
}

// Prepare compiles query into an executable statement. Parameter
// values bind at prepare time; a parameter the query references but
// params does not supply is an error. Term literals resolve against
// the dictionary here, never interning, so preparing a statement does
// not write.
func (db *Database) Prepare(query string, params map[string]interface{}) (*Statement, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}

	q, err := parser.Parse(query)
	if err != nil {
		return nil, errInvalid("%v", err)
	}
	plan, err := planner.Build(q)
	if err != nil {
		return nil, errInvalid("%v", err)
	}

	values, err := convertParams(params)
	if err != nil {
		return nil, err
	}
	for _, name := range plan.Params {
		if _, ok := values[name]; !ok {
			return nil, errInvalid("query references parameter $%s but no value was supplied", name)
		}
	}

	txn, err := db.storage.Begin(false)
	if err != nil {
		return nil, errInternal("failed to begin read: %v", err)
	}
	iter, err := executor.Build(plan.Root, snapshot{txn: txn}, values)
	if err != nil {
		txn.Rollback()
		return nil, errInternal("failed to build execution: %v", err)
	}

	db.log.WithField("columns", plan.Columns).Debug("statement prepared")
	return &Statement{
		db:      db,
		txn:     txn,
		iter:    iter,
		columns: plan.Columns,
	}, nil
}

func convertParams(params map[string]interface{}) (map[string]executor.Value, error) {
	values := make(map[string]executor.Value, len(params))
	for name, raw := range params {
		switch v := raw.(type) {
		case nil:
			values[name] = executor.Null()
		case string:
			values[name] = executor.Text(v)
		case float64:
			values[name] = executor.Float(v)
		case int:
			values[name] = executor.Float(float64(v))
		case int64:
			values[name] = executor.Float(float64(v))
		case bool:
			values[name] = executor.Bool(v)
		default:
			return nil, errInvalid("parameter $%s has unsupported type %T", name, raw)
		}
	}
	return values, nil
}

// Step advances the cursor. It returns StatusRow with the next row
// loaded, or StatusDone when the result set is exhausted. Stepping an
// exhausted statement keeps returning StatusDone.
func (s *Statement) Step() (Status, error) {
	switch s.state {
	case stmtFinalized:
		return StatusInvalidArgument, errInvalid("statement is finalized")
	case stmtExhausted:
		return StatusDone, nil
	}

	if !s.iter.Next() {
		if err := s.iter.Err(); err != nil {
			s.state = stmtExhausted
			return StatusInternal, errInternal("step failed: %v", err)
		}
		s.state = stmtExhausted
		s.row = nil
		return StatusDone, nil
	}

	rec := s.iter.Record()
	row := make([]executor.Value, len(s.columns))
	for i, name := range s.columns {
		row[i] = rec[name]
	}
	s.row = row
	s.state = stmtRowReady
	return StatusRow, nil
}

// Finalize releases the statement and its snapshot. Finalizing twice
// is a no-op.
func (s *Statement) Finalize() error {
	if s.state == stmtFinalized {
		return nil
	}
	s.state = stmtFinalized
	s.row = nil
	s.iter.Close()
	s.txn.Rollback()
	return nil
}

// ColumnCount returns the number of result columns.
func (s *Statement) ColumnCount() int {
	return len(s.columns)
}

// ColumnName returns the name of column i. Valid from Prepare until
// Finalize.
func (s *Statement) ColumnName(i int) (string, error) {
	if s.state == stmtFinalized {
		return "", errInvalid("statement is finalized")
	}
	if i < 0 || i >= len(s.columns) {
		return "", errInvalid("column index %d out of range [0, %d)", i, len(s.columns))
	}
	return s.columns[i], nil
}

func (s *Statement) value(i int) (executor.Value, error) {
	if s.state != stmtRowReady {
		return executor.Null(), errInvalid("no row is ready")
	}
	if i < 0 || i >= len(s.row) {
		return executor.Null(), errInvalid("column index %d out of range [0, %d)", i, len(s.row))
	}
	return s.row[i], nil
}

// ColumnType returns the type of column i in the current row.
func (s *Statement) ColumnType(i int) (ColumnType, error) {
	v, err := s.value(i)
	if err != nil {
		return ColumnNull, err
	}
	switch v.Kind {
	case executor.KindText:
		return ColumnText, nil
	case executor.KindFloat:
		return ColumnFloat, nil
	case executor.KindBool:
		return ColumnBool, nil
	case executor.KindNode:
		return ColumnNode, nil
	case executor.KindRel:
		return ColumnRelationship, nil
	default:
		return ColumnNull, nil
	}
}

// ColumnText returns column i as text. The value must be text.
func (s *Statement) ColumnText(i int) (string, error) {
	v, err := s.value(i)
	if err != nil {
		return "", err
	}
	if v.Kind != executor.KindText {
		return "", errInvalid("column %d is %s, not text", i, v.Kind)
	}
	return v.Text, nil
}

// ColumnBytes returns column i's text as bytes. The returned slice is
// a copy and stays valid after the next Step.
func (s *Statement) ColumnBytes(i int) ([]byte, error) {
	text, err := s.ColumnText(i)
	if err != nil {
		return nil, err
	}
	return []byte(text), nil
}

// ColumnFloat returns column i as a float. The value must be a float.
func (s *Statement) ColumnFloat(i int) (float64, error) {
	v, err := s.value(i)
	if err != nil {
		return 0, err
	}
	if v.Kind != executor.KindFloat {
		return 0, errInvalid("column %d is %s, not float", i, v.Kind)
	}
	return v.Float, nil
}

// ColumnBool returns column i as a boolean. The value must be a
// boolean.
func (s *Statement) ColumnBool(i int) (bool, error) {
	v, err := s.value(i)
	if err != nil {
		return false, err
	}
	if v.Kind != executor.KindBool {
		return false, errInvalid("column %d is %s, not bool", i, v.Kind)
	}
	return v.Bool, nil
}

// ColumnNodeID returns column i as a node id. The value must be a
// node.
func (s *Statement) ColumnNodeID(i int) (uint64, error) {
	v, err := s.value(i)
	if err != nil {
		return 0, err
	}
	if v.Kind != executor.KindNode {
		return 0, errInvalid("column %d is %s, not a node", i, v.Kind)
	}
	return v.Node, nil
}

// ColumnRelationship returns column i as a relationship. The value
// must be a relationship.
func (s *Statement) ColumnRelationship(i int) (Relationship, error) {
	v, err := s.value(i)
	if err != nil {
		return Relationship{}, err
	}
	if v.Kind != executor.KindRel {
		return Relationship{}, errInvalid("column %d is %s, not a relationship", i, v.Kind)
	}
	return Relationship{
		SubjectID:   v.Rel.Subject,
		PredicateID: v.Rel.Predicate,
		ObjectID:    v.Rel.Object,
	}, nil
}

// rowJSON renders the current row as a JSON-encodable object.
func (s *Statement) rowJSON() (map[string]interface{}, error) {
	if s.state != stmtRowReady {
		return nil, errInvalid("no row is ready")
	}
	row := make(map[string]interface{}, len(s.columns))
	for i, name := range s.columns {
		v := s.row[i]
		switch v.Kind {
		case executor.KindText:
			row[name] = v.Text
		case executor.KindFloat:
			row[name] = v.Float
		case executor.KindBool:
			row[name] = v.Bool
		case executor.KindNode:
			row[name] = map[string]interface{}{"id": v.Node}
		case executor.KindRel:
			row[name] = Relationship{
				SubjectID:   v.Rel.Subject,
				PredicateID: v.Rel.Predicate,
				ObjectID:    v.Rel.Object,
			}
		default:
			row[name] = nil
		}
	}
	return row, nil
}
