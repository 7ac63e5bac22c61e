package parser

// Query is a parsed read query:
// MATCH ... [WHERE ...] RETURN [DISTINCT] ... [SKIP n] [LIMIT n].
type Query struct {
	Matches  []*MatchClause
	Where    Expression // nil when absent
	Distinct bool
	Items    []*ReturnItem
	Skip     *int
	Limit    *int
}

// MatchClause is one MATCH keyword with its comma-separated paths.
type MatchClause struct {
	Paths []*PathPattern
}

// PathPattern is a chain of node patterns joined by relationships:
// (a)-[r:T]->(b)-[s]->(c). Rels[i] connects Nodes[i] and Nodes[i+1].
type PathPattern struct {
	Nodes []*NodePattern
	Rels  []*RelPattern
}

// NodePattern is (var[:Label][{key: value, ...}]). All parts optional.
type NodePattern struct {
	Var        string // "" when anonymous
	Label      string // "" when unlabeled
	Properties []*PropertyEntry
}

// PropertyEntry is one key: value pair inside a node property map.
// Value is restricted to literals and parameters.
type PropertyEntry struct {
	Key   string
	Value Expression
}

// Direction of a relationship pattern.
type Direction int

const (
	DirectionOut  Direction = iota // -[...]->
	DirectionIn                    // <-[...]-
	DirectionBoth                  // -[...]-
)

// RelPattern is -[var[:TYPE]]-> (or the other directions).
type RelPattern struct {
	Var       string // "" when anonymous
	RelType   string // "" when untyped
	Direction Direction
}

// ReturnItem is one projection, expression plus optional alias.
type ReturnItem struct {
	Expr  Expression
	Alias string // "" when no AS given
	// Text is the source spelling, used as the column name when no
	// alias is given.
	Text string
}

// Expression is a WHERE/RETURN expression node.
type Expression interface {
	expr()
	// Pos returns the token the expression starts at, for error
	// reporting.
	Pos() Token
}

// Ident references a pattern variable.
type Ident struct {
	Name string
	Tok  Token
}

// PropertyAccess is var.key.
type PropertyAccess struct {
	Var string
	Key string
	Tok Token
}

// Parameter is $name.
type Parameter struct {
	Name string
	Tok  Token
}

// StringLit is a quoted string literal.
type StringLit struct {
	Value string
	Tok   Token
}

// NumberLit is a numeric literal. All numbers are float64.
type NumberLit struct {
	Value float64
	Tok   Token
}

// BoolLit is TRUE or FALSE.
type BoolLit struct {
	Value bool
	Tok   Token
}

// NullLit is NULL.
type NullLit struct {
	Tok Token
}

// BinaryExpr applies Op to two operands. Op is the token literal:
// AND OR = <> < <= > >= + - * / %.
type BinaryExpr struct {
	Op    string
	Left  Expression
	Right Expression
	Tok   Token
}

// UnaryExpr is NOT x or -x.
type UnaryExpr struct {
	Op      string
	Operand Expression
	Tok     Token
}

// FuncCall is a function application: id(n), type(r).
type FuncCall struct {
	Name string
	Args []Expression
	Tok  Token
}

func (*Ident) expr()          {}
func (*PropertyAccess) expr() {}
func (*Parameter) expr()      {}
func (*StringLit) expr()      {}
func (*NumberLit) expr()      {}
func (*BoolLit) expr()        {}
func (*NullLit) expr()        {}
func (*BinaryExpr) expr()     {}
func (*UnaryExpr) expr()      {}
func (*FuncCall) expr()       {}

func (e *Ident) Pos() Token          { return e.Tok }
func (e *PropertyAccess) Pos() Token { return e.Tok }
func (e *Parameter) Pos() Token      { return e.Tok }
func (e *StringLit) Pos() Token      { return e.Tok }
func (e *NumberLit) Pos() Token      { return e.Tok }
func (e *BoolLit) Pos() Token        { return e.Tok }
func (e *NullLit) Pos() Token        { return e.Tok }
func (e *BinaryExpr) Pos() Token     { return e.Tok }
func (e *UnaryExpr) Pos() Token      { return e.Tok }
func (e *FuncCall) Pos() Token       { return e.Tok }
