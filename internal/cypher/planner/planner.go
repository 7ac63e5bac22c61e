// Package planner lowers a parsed query into a tree of physical plan
// operators. Planning validates variable references, function arities
// and projection names; it never touches storage, so a plan is valid
// against any snapshot.
package planner

import (
	"fmt"
	"sort"

	"github.com/aleksaelezovic/nodus/internal/cypher/parser"
)

// Plan is a node in the physical operator tree.
type Plan interface {
	plan()
}

// NodeScan enumerates nodes, optionally restricted to a label.
type NodeScan struct {
	Var   string
	Label string // "" scans all nodes
}

// Expand walks relationships from the bound FromVar, binding RelVar
// (when named) and ToVar on each match.
type Expand struct {
	Input     Plan
	FromVar   string
	RelVar    string // "" leaves the relationship unbound
	RelType   string // "" matches any type
	ToVar     string
	Direction parser.Direction
}

// TripleExists keeps records where the triple (Var, Key, Value) is
// present. Node property maps and label checks on non-scan nodes
// compile to this.
type TripleExists struct {
	Input Plan
	Var   string
	Key   string
	Value parser.Expression // literal or parameter
}

// Filter keeps records where Expr evaluates to true.
type Filter struct {
	Input Plan
	Expr  parser.Expression
}

// Join combines two inputs; records merge only when their shared
// variables agree.
type Join struct {
	Left  Plan
	Right Plan
}

// Column is one projected output.
type Column struct {
	Name string
	Expr parser.Expression
}

// Project evaluates the output columns.
type Project struct {
	Input   Plan
	Columns []Column
}

// Distinct suppresses duplicate projected rows.
type Distinct struct {
	Input Plan
}

// Skip drops the first N rows.
type Skip struct {
	Input Plan
	N     int
}

// Limit stops after N rows.
type Limit struct {
	Input Plan
	N     int
}

func (*NodeScan) plan()     {}
func (*Expand) plan()       {}
func (*TripleExists) plan() {}
func (*Filter) plan()       {}
func (*Join) plan()         {}
func (*Project) plan()      {}
func (*Distinct) plan()     {}
func (*Skip) plan()         {}
func (*Limit) plan()        {}

// VarKind distinguishes node variables from relationship variables.
type VarKind int

const (
	VarNode VarKind = iota
	VarRel
)

// QueryPlan is the planner's output: the operator tree, the output
// column names in projection order, and the parameter names the query
// references.
type QueryPlan struct {
	Root    Plan
	Columns []string
	Params  []string
	Vars    map[string]VarKind
}

type builder struct {
	vars   map[string]VarKind
	params map[string]bool
	anon   int
}

// Build lowers q into a QueryPlan.
func Build(q *parser.Query) (*QueryPlan, error) {
	b := &builder{
		vars:   make(map[string]VarKind),
		params: make(map[string]bool),
	}

	var root Plan
	for _, m := range q.Matches {
		for _, path := range m.Paths {
			sub, err := b.buildPath(path)
			if err != nil {
				return nil, err
			}
			if root == nil {
				root = sub
			} else {
				root = &Join{Left: root, Right: sub}
			}
		}
	}

	if q.Where != nil {
		if err := b.checkExpr(q.Where); err != nil {
			return nil, err
		}
		root = &Filter{Input: root, Expr: q.Where}
	}

	columns := make([]Column, 0, len(q.Items))
	seen := make(map[string]bool)
	for _, item := range q.Items {
		if err := b.checkExpr(item.Expr); err != nil {
			return nil, err
		}
		name := item.Alias
		if name == "" {
			name = item.Text
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate column name %q", name)
		}
		seen[name] = true
		columns = append(columns, Column{Name: name, Expr: item.Expr})
	}
	root = &Project{Input: root, Columns: columns}

	if q.Distinct {
		root = &Distinct{Input: root}
	}
	if q.Skip != nil {
		root = &Skip{Input: root, N: *q.Skip}
	}
	if q.Limit != nil {
		root = &Limit{Input: root, N: *q.Limit}
	}

	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Name
	}

	params := make([]string, 0, len(b.params))
	for name := range b.params {
		params = append(params, name)
	}
	sort.Strings(params)

	return &QueryPlan{Root: root, Columns: names, Params: params, Vars: b.vars}, nil
}

// freshVar names an anonymous pattern element. The '@' prefix cannot
// appear in a source identifier, so no user variable collides.
func (b *builder) freshVar() string {
	b.anon++
	return fmt.Sprintf("@anon%d", b.anon)
}

func (b *builder) declare(name string, kind VarKind) (string, error) {
	if name == "" {
		name = b.freshVar()
		b.vars[name] = kind
		return name, nil
	}
	if existing, ok := b.vars[name]; ok && existing != kind {
		return "", fmt.Errorf("variable %q is used as both node and relationship", name)
	}
	b.vars[name] = kind
	return name, nil
}

// buildPath compiles one pattern path: a scan over its first node,
// then an expansion per relationship, with label and property checks
// attached where the pattern declares them.
func (b *builder) buildPath(path *parser.PathPattern) (Plan, error) {
	first := path.Nodes[0]
	firstVar, err := b.declare(first.Var, VarNode)
	if err != nil {
		return nil, err
	}

	var plan Plan = &NodeScan{Var: firstVar, Label: first.Label}
	plan, err = b.attachProperties(plan, firstVar, first.Properties)
	if err != nil {
		return nil, err
	}

	prevVar := firstVar
	for i, rel := range path.Rels {
		node := path.Nodes[i+1]

		relVar := rel.Var
		if relVar != "" {
			if relVar, err = b.declare(relVar, VarRel); err != nil {
				return nil, err
			}
		}
		toVar, err := b.declare(node.Var, VarNode)
		if err != nil {
			return nil, err
		}

		plan = &Expand{
			Input:     plan,
			FromVar:   prevVar,
			RelVar:    relVar,
			RelType:   rel.RelType,
			ToVar:     toVar,
			Direction: rel.Direction,
		}
		if node.Label != "" {
			plan = &TripleExists{
				Input: plan,
				Var:   toVar,
				Key:   "type",
				Value: &parser.StringLit{Value: node.Label},
			}
		}
		plan, err = b.attachProperties(plan, toVar, node.Properties)
		if err != nil {
			return nil, err
		}
		prevVar = toVar
	}
	return plan, nil
}

func (b *builder) attachProperties(plan Plan, varName string, props []*parser.PropertyEntry) (Plan, error) {
	for _, prop := range props {
		if param, ok := prop.Value.(*parser.Parameter); ok {
			b.params[param.Name] = true
		}
		plan = &TripleExists{Input: plan, Var: varName, Key: prop.Key, Value: prop.Value}
	}
	return plan, nil
}

// checkExpr validates variable references, function calls and collects
// parameter names.
func (b *builder) checkExpr(e parser.Expression) error {
	switch v := e.(type) {
	case *parser.Ident:
		if _, ok := b.vars[v.Name]; !ok {
			return posErr(v.Tok, "undefined variable %q", v.Name)
		}
	case *parser.PropertyAccess:
		kind, ok := b.vars[v.Var]
		if !ok {
			return posErr(v.Tok, "undefined variable %q", v.Var)
		}
		if kind != VarNode {
			return posErr(v.Tok, "property access requires a node variable, %q is a relationship", v.Var)
		}
	case *parser.Parameter:
		b.params[v.Name] = true
	case *parser.BinaryExpr:
		if err := b.checkExpr(v.Left); err != nil {
			return err
		}
		return b.checkExpr(v.Right)
	case *parser.UnaryExpr:
		return b.checkExpr(v.Operand)
	case *parser.FuncCall:
		return b.checkCall(v)
	case *parser.StringLit, *parser.NumberLit, *parser.BoolLit, *parser.NullLit:
	default:
		return fmt.Errorf("unsupported expression %T", e)
	}
	return nil
}

func (b *builder) checkCall(call *parser.FuncCall) error {
	switch call.Name {
	case "id", "type":
	default:
		return posErr(call.Tok, "unknown function %q", call.Name)
	}
	if len(call.Args) != 1 {
		return posErr(call.Tok, "%s() takes exactly one argument", call.Name)
	}
	arg, ok := call.Args[0].(*parser.Ident)
	if !ok {
		return posErr(call.Tok, "%s() requires a variable argument", call.Name)
	}
	kind, declared := b.vars[arg.Name]
	if !declared {
		return posErr(arg.Tok, "undefined variable %q", arg.Name)
	}
	switch call.Name {
	case "id":
		if kind != VarNode {
			return posErr(call.Tok, "id() requires a node variable")
		}
	case "type":
		if kind != VarRel {
			return posErr(call.Tok, "type() requires a relationship variable")
		}
	}
	return nil
}

func posErr(tok parser.Token, format string, args ...interface{}) error {
	return &parser.Error{Line: tok.Line, Column: tok.Column, Message: fmt.Sprintf(format, args...)}
}
