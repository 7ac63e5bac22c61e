// Package executor runs physical plans with the Volcano iterator
// model: each operator is an iterator pulling records from its input.
package executor

import (
	"fmt"
	"sort"

	"github.com/zeebo/xxh3"

	"github.com/aleksaelezovic/nodus/internal/cypher/parser"
	"github.com/aleksaelezovic/nodus/internal/cypher/planner"
	"github.com/aleksaelezovic/nodus/internal/index"
)

// Snapshot is the executor's read-only view of the database. All scans
// and resolutions during one execution observe the same snapshot.
type Snapshot interface {
	ResolveID(text string) (uint64, bool, error)
	ResolveStr(id uint64) (string, bool, error)
	Triples(c index.Criteria) (*index.Scan, error)
}

// RecordIter iterates over records.
type RecordIter interface {
	Next() bool
	Record() Record
	Err() error
	Close() error
}

// env carries the per-execution context shared by all operators.
type env struct {
	snap   Snapshot
	params map[string]Value
}

// Build compiles a plan into an iterator tree bound to snap and
// params.
func Build(plan planner.Plan, snap Snapshot, params map[string]Value) (RecordIter, error) {
	e := &env{snap: snap, params: params}
	return e.build(plan)
}

func (e *env) build(plan planner.Plan) (RecordIter, error) {
	switch p := plan.(type) {
	case *planner.NodeScan:
		return e.buildNodeScan(p)
	case *planner.Expand:
		return e.buildExpand(p)
	case *planner.TripleExists:
		return e.buildTripleExists(p)
	case *planner.Filter:
		input, err := e.build(p.Input)
		if err != nil {
			return nil, err
		}
		return &filterIterator{env: e, input: input, expr: p.Expr}, nil
	case *planner.Join:
		left, err := e.build(p.Left)
		if err != nil {
			return nil, err
		}
		right, err := e.build(p.Right)
		if err != nil {
			left.Close()
			return nil, err
		}
		return &joinIterator{left: left, right: right}, nil
	case *planner.Project:
		input, err := e.build(p.Input)
		if err != nil {
			return nil, err
		}
		return &projectIterator{env: e, input: input, columns: p.Columns}, nil
	case *planner.Distinct:
		input, err := e.build(p.Input)
		if err != nil {
			return nil, err
		}
		project, ok := p.Input.(*planner.Project)
		if !ok {
			input.Close()
			return nil, fmt.Errorf("distinct requires a projected input, got %T", p.Input)
		}
		names := make([]string, len(project.Columns))
		for i, c := range project.Columns {
			names[i] = c.Name
		}
		return &distinctIterator{input: input, columns: names, seen: make(map[xxh3.Uint128]bool)}, nil
	case *planner.Skip:
		input, err := e.build(p.Input)
		if err != nil {
			return nil, err
		}
		return &skipIterator{input: input, n: p.N}, nil
	case *planner.Limit:
		input, err := e.build(p.Input)
		if err != nil {
			return nil, err
		}
		return &limitIterator{input: input, n: p.N}, nil
	default:
		return nil, fmt.Errorf("unsupported plan type: %T", plan)
	}
}

// nodeScanIterator enumerates node ids in ascending order, binding
// them to a variable. A labeled scan streams subjects of
// (?, type, Label) triples; an unlabeled scan materializes the
// distinct subject and object ids of the whole graph.
type nodeScanIterator struct {
	varName string
	cur     Record
	err     error

	// labeled mode
	scan *index.Scan

	// unlabeled mode
	ids []uint64
	pos int

	empty bool
}

func (e *env) buildNodeScan(p *planner.NodeScan) (RecordIter, error) {
	it := &nodeScanIterator{varName: p.Var}

	if p.Label != "" {
		typeID, ok, err := e.snap.ResolveID("type")
		if err != nil {
			return nil, err
		}
		var labelID uint64
		var okLabel bool
		if ok {
			labelID, okLabel, err = e.snap.ResolveID(p.Label)
			if err != nil {
				return nil, err
			}
		}
		if !ok || !okLabel {
			it.empty = true
			return it, nil
		}
		scan, err := e.snap.Triples(index.Criteria{
			Predicate: typeID, HasPredicate: true,
			Object: labelID, HasObject: true,
		})
		if err != nil {
			return nil, err
		}
		it.scan = scan
		return it, nil
	}

	// Every id that occurs as a subject or object counts as a node.
	scan, err := e.snap.Triples(index.Criteria{})
	if err != nil {
		return nil, err
	}
	defer scan.Close()

	set := make(map[uint64]bool)
	for scan.Next() {
		t := scan.Triple()
		set[t.Subject] = true
		set[t.Object] = true
	}
	if err := scan.Err(); err != nil {
		return nil, err
	}

	ids := make([]uint64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	it.ids = ids
	return it, nil
}

func (i *nodeScanIterator) Next() bool {
	if i.empty || i.err != nil {
		return false
	}
	if i.scan != nil {
		if !i.scan.Next() {
			i.err = i.scan.Err()
			return false
		}
		i.cur = Record{i.varName: Node(i.scan.Triple().Subject)}
		return true
	}
	if i.pos >= len(i.ids) {
		return false
	}
	i.cur = Record{i.varName: Node(i.ids[i.pos])}
	i.pos++
	return true
}

func (i *nodeScanIterator) Record() Record { return i.cur }
func (i *nodeScanIterator) Err() error     { return i.err }

func (i *nodeScanIterator) Close() error {
	if i.scan != nil {
		return i.scan.Close()
	}
	return nil
}

// expandIterator walks relationships from the input's bound FromVar.
// An undirected pattern tries the outgoing scan, then the incoming
// one, for each input record.
type expandIterator struct {
	env   *env
	input RecordIter
	p     *planner.Expand

	typeID  uint64
	typed   bool
	unknown bool // typed but the type term does not exist

	base  Record
	scan  *index.Scan
	out   bool // current scan direction is outgoing
	phase int  // 0 not started, 1 outgoing done (undirected only)

	cur Record
	err error
}

func (e *env) buildExpand(p *planner.Expand) (RecordIter, error) {
	input, err := e.build(p.Input)
	if err != nil {
		return nil, err
	}
	it := &expandIterator{env: e, input: input, p: p}
	if p.RelType != "" {
		it.typed = true
		id, ok, err := e.snap.ResolveID(p.RelType)
		if err != nil {
			input.Close()
			return nil, err
		}
		if !ok {
			it.unknown = true
		}
		it.typeID = id
	}
	return it, nil
}

func (i *expandIterator) openScan(from uint64, outgoing bool) error {
	c := index.Criteria{}
	if outgoing {
		c.Subject, c.HasSubject = from, true
	} else {
		c.Object, c.HasObject = from, true
	}
	if i.typed {
		c.Predicate, c.HasPredicate = i.typeID, true
	}
	scan, err := i.env.snap.Triples(c)
	if err != nil {
		return err
	}
	i.scan = scan
	i.out = outgoing
	return nil
}

func (i *expandIterator) Next() bool {
	if i.err != nil || i.unknown {
		return false
	}
	for {
		if i.scan != nil {
			for i.scan.Next() {
				if rec, ok := i.emit(i.scan.Triple()); ok {
					i.cur = rec
					return true
				}
			}
			if err := i.scan.Err(); err != nil {
				i.err = err
				return false
			}
			i.scan.Close()
			i.scan = nil

			if i.p.Direction == parser.DirectionBoth && i.phase == 0 {
				i.phase = 1
				from := i.base[i.p.FromVar].Node
				if err := i.openScan(from, false); err != nil {
					i.err = err
					return false
				}
				continue
			}
		}

		if !i.input.Next() {
			i.err = i.input.Err()
			return false
		}
		i.base = i.input.Record()
		from, ok := i.base[i.p.FromVar]
		if !ok || from.Kind != KindNode {
			continue
		}
		i.phase = 0
		outgoing := i.p.Direction != parser.DirectionIn
		if err := i.openScan(from.Node, outgoing); err != nil {
			i.err = err
			return false
		}
	}
}

// emit binds the relationship and far node, rejecting the triple when
// it contradicts bindings the record already holds.
func (i *expandIterator) emit(t index.Triple) (Record, bool) {
	other := t.Object
	if !i.out {
		other = t.Subject
	}

	if bound, ok := i.base[i.p.ToVar]; ok {
		if bound.Kind != KindNode || bound.Node != other {
			return nil, false
		}
	}
	if i.p.RelVar != "" {
		if bound, ok := i.base[i.p.RelVar]; ok {
			if bound.Kind != KindRel || bound.Rel != t {
				return nil, false
			}
		}
	}

	rec := i.base.clone()
	rec[i.p.ToVar] = Node(other)
	if i.p.RelVar != "" {
		rec[i.p.RelVar] = Rel(t)
	}
	return rec, true
}

func (i *expandIterator) Record() Record { return i.cur }
func (i *expandIterator) Err() error     { return i.err }

func (i *expandIterator) Close() error {
	if i.scan != nil {
		i.scan.Close()
		i.scan = nil
	}
	return i.input.Close()
}

// tripleExistsIterator keeps records whose bound node has the required
// (node, key, value) triple. Key and value terms resolve once; if
// either is unknown to the dictionary nothing can match.
type tripleExistsIterator struct {
	env   *env
	input RecordIter
	p     *planner.TripleExists

	resolved bool
	missing  bool
	keyID    uint64
	valueID  uint64

	cur Record
	err error
}

func (e *env) buildTripleExists(p *planner.TripleExists) (RecordIter, error) {
	input, err := e.build(p.Input)
	if err != nil {
		return nil, err
	}
	return &tripleExistsIterator{env: e, input: input, p: p}, nil
}

func (i *tripleExistsIterator) resolve() error {
	i.resolved = true

	val, err := evalExpr(i.env, nil, i.p.Value)
	if err != nil {
		return err
	}
	text, ok := val.TermText()
	if !ok {
		i.missing = true
		return nil
	}

	keyID, okKey, err := i.env.snap.ResolveID(i.p.Key)
	if err != nil {
		return err
	}
	valueID, okValue, err := i.env.snap.ResolveID(text)
	if err != nil {
		return err
	}
	if !okKey || !okValue {
		i.missing = true
		return nil
	}
	i.keyID = keyID
	i.valueID = valueID
	return nil
}

func (i *tripleExistsIterator) Next() bool {
	if i.err != nil {
		return false
	}
	if !i.resolved {
		if err := i.resolve(); err != nil {
			i.err = err
			return false
		}
	}
	if i.missing {
		return false
	}
	for i.input.Next() {
		rec := i.input.Record()
		node, ok := rec[i.p.Var]
		if !ok || node.Kind != KindNode {
			continue
		}
		match, err := i.has(index.Triple{Subject: node.Node, Predicate: i.keyID, Object: i.valueID})
		if err != nil {
			i.err = err
			return false
		}
		if match {
			i.cur = rec
			return true
		}
	}
	i.err = i.input.Err()
	return false
}

func (i *tripleExistsIterator) has(t index.Triple) (bool, error) {
	scan, err := i.env.snap.Triples(index.Criteria{
		Subject: t.Subject, HasSubject: true,
		Predicate: t.Predicate, HasPredicate: true,
		Object: t.Object, HasObject: true,
	})
	if err != nil {
		return false, err
	}
	defer scan.Close()
	if scan.Next() {
		return true, nil
	}
	return false, scan.Err()
}

func (i *tripleExistsIterator) Record() Record { return i.cur }
func (i *tripleExistsIterator) Err() error     { return i.err }
func (i *tripleExistsIterator) Close() error   { return i.input.Close() }

// filterIterator keeps records where the expression is true.
type filterIterator struct {
	env   *env
	input RecordIter
	expr  parser.Expression
	cur   Record
	err   error
}

func (i *filterIterator) Next() bool {
	if i.err != nil {
		return false
	}
	for i.input.Next() {
		rec := i.input.Record()
		val, err := evalExpr(i.env, rec, i.expr)
		if err != nil {
			i.err = err
			return false
		}
		if truthy(val) {
			i.cur = rec
			return true
		}
	}
	i.err = i.input.Err()
	return false
}

func (i *filterIterator) Record() Record { return i.cur }
func (i *filterIterator) Err() error     { return i.err }
func (i *filterIterator) Close() error   { return i.input.Close() }

// joinIterator is a nested-loop join. The right side materializes on
// first use; records merge only when shared variables carry identical
// values.
type joinIterator struct {
	left  RecordIter
	right RecordIter

	rightRows    []Record
	materialized bool

	leftRec Record
	pos     int
	cur     Record
	err     error
}

func (i *joinIterator) materialize() error {
	i.materialized = true
	for i.right.Next() {
		i.rightRows = append(i.rightRows, i.right.Record())
	}
	return i.right.Err()
}

func (i *joinIterator) Next() bool {
	if i.err != nil {
		return false
	}
	if !i.materialized {
		if err := i.materialize(); err != nil {
			i.err = err
			return false
		}
	}
	for {
		if i.leftRec == nil {
			if !i.left.Next() {
				i.err = i.left.Err()
				return false
			}
			i.leftRec = i.left.Record()
			i.pos = 0
		}
		for i.pos < len(i.rightRows) {
			row := i.rightRows[i.pos]
			i.pos++
			if merged, ok := merge(i.leftRec, row); ok {
				i.cur = merged
				return true
			}
		}
		i.leftRec = nil
	}
}

// merge combines two records; it fails when a shared variable is bound
// to different values.
func merge(left, right Record) (Record, bool) {
	out := left.clone()
	for k, v := range right {
		if existing, ok := out[k]; ok {
			if existing != v {
				return nil, false
			}
			continue
		}
		out[k] = v
	}
	return out, true
}

func (i *joinIterator) Record() Record { return i.cur }
func (i *joinIterator) Err() error     { return i.err }

func (i *joinIterator) Close() error {
	err := i.left.Close()
	if cerr := i.right.Close(); err == nil {
		err = cerr
	}
	return err
}

// projectIterator evaluates output columns.
type projectIterator struct {
	env     *env
	input   RecordIter
	columns []planner.Column
	cur     Record
	err     error
}

func (i *projectIterator) Next() bool {
	if i.err != nil {
		return false
	}
	if !i.input.Next() {
		i.err = i.input.Err()
		return false
	}
	rec := i.input.Record()
	out := make(Record, len(i.columns))
	for _, col := range i.columns {
		val, err := evalExpr(i.env, rec, col.Expr)
		if err != nil {
			i.err = err
			return false
		}
		out[col.Name] = val
	}
	i.cur = out
	return true
}

func (i *projectIterator) Record() Record { return i.cur }
func (i *projectIterator) Err() error     { return i.err }
func (i *projectIterator) Close() error   { return i.input.Close() }

// distinctIterator suppresses rows whose projected values hash to an
// already-seen key.
type distinctIterator struct {
	input   RecordIter
	columns []string
	seen    map[xxh3.Uint128]bool
	cur     Record
}

func (i *distinctIterator) Next() bool {
	for i.input.Next() {
		rec := i.input.Record()
		var buf []byte
		for _, name := range i.columns {
			buf = rec[name].appendKey(buf)
		}
		key := xxh3.Hash128(buf)
		if i.seen[key] {
			continue
		}
		i.seen[key] = true
		i.cur = rec
		return true
	}
	return false
}

func (i *distinctIterator) Record() Record { return i.cur }
func (i *distinctIterator) Err() error     { return i.input.Err() }
func (i *distinctIterator) Close() error   { return i.input.Close() }

// skipIterator drops the first n rows.
type skipIterator struct {
	input   RecordIter
	n       int
	skipped int
}

func (i *skipIterator) Next() bool {
	for i.skipped < i.n {
		if !i.input.Next() {
			return false
		}
		i.skipped++
	}
	return i.input.Next()
}

func (i *skipIterator) Record() Record { return i.input.Record() }
func (i *skipIterator) Err() error     { return i.input.Err() }
func (i *skipIterator) Close() error   { return i.input.Close() }

// limitIterator stops after n rows.
type limitIterator struct {
	input RecordIter
	n     int
	count int
}

func (i *limitIterator) Next() bool {
	if i.count >= i.n {
		return false
	}
	if !i.input.Next() {
		return false
	}
	i.count++
	return true
}

func (i *limitIterator) Record() Record { return i.input.Record() }
func (i *limitIterator) Err() error     { return i.input.Err() }
func (i *limitIterator) Close() error   { return i.input.Close() }
