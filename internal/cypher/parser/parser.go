// Package parser compiles query text into an AST. The language is a
// read-only pattern-matching subset: MATCH, WHERE, RETURN [DISTINCT],
// SKIP and LIMIT. Write clauses and the larger query surface are
// recognized and rejected with a positioned error.
package parser

import (
	"fmt"
	"strconv"
)

// unsupported lists recognized clauses that the engine deliberately
// does not execute.
var unsupported = map[string]bool{
	"CREATE": true, "MERGE": true, "SET": true, "DELETE": true,
	"DETACH": true, "REMOVE": true, "ORDER": true, "UNION": true,
	"WITH": true, "OPTIONAL": true, "UNWIND": true,
}

// Parser is a recursive-descent parser over a pre-lexed token stream.
type Parser struct {
	tokens []Token
	pos    int
}

// Parse compiles input into a Query.
func Parse(input string) (*Query, error) {
	lexer := NewLexer(input)
	var tokens []Token
	for {
		tok, err := lexer.Next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			break
		}
	}
	p := &Parser{tokens: tokens}
	return p.parseQuery()
}

func (p *Parser) cur() Token {
	return p.tokens[p.pos]
}

func (p *Parser) next() Token {
	tok := p.tokens[p.pos]
	if tok.Type != TokenEOF {
		p.pos++
	}
	return tok
}

func (p *Parser) atKeyword(kw string) bool {
	tok := p.cur()
	return tok.Type == TokenKeyword && tok.Literal == kw
}

func (p *Parser) expect(tt TokenType, what string) (Token, error) {
	tok := p.next()
	if tok.Type != tt {
		return tok, errorf(tok, "expected %s, found %q", what, tok.Literal)
	}
	return tok, nil
}

func (p *Parser) parseQuery() (*Query, error) {
	q := &Query{}

	if tok := p.cur(); tok.Type == TokenKeyword && unsupported[tok.Literal] {
		return nil, errorf(tok, "%s is not supported", tok.Literal)
	}

	for p.atKeyword("MATCH") {
		m, err := p.parseMatch()
		if err != nil {
			return nil, err
		}
		q.Matches = append(q.Matches, m)
	}
	if len(q.Matches) == 0 {
		return nil, errorf(p.cur(), "expected MATCH, found %q", p.cur().Literal)
	}

	if p.atKeyword("WHERE") {
		p.next()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		q.Where = expr
	}

	if tok := p.cur(); tok.Type == TokenKeyword && unsupported[tok.Literal] {
		return nil, errorf(tok, "%s is not supported", tok.Literal)
	}
	if _, err := p.expectKeyword("RETURN"); err != nil {
		return nil, err
	}

	if p.atKeyword("DISTINCT") {
		p.next()
		q.Distinct = true
	}

	for {
		item, err := p.parseReturnItem()
		if err != nil {
			return nil, err
		}
		q.Items = append(q.Items, item)
		if p.cur().Type != TokenComma {
			break
		}
		p.next()
	}

	if p.atKeyword("SKIP") {
		p.next()
		n, err := p.parseCount("SKIP")
		if err != nil {
			return nil, err
		}
		q.Skip = &n
	}
	if p.atKeyword("LIMIT") {
		p.next()
		n, err := p.parseCount("LIMIT")
		if err != nil {
			return nil, err
		}
		q.Limit = &n
	}

	tok := p.cur()
	if tok.Type != TokenEOF {
		if tok.Type == TokenKeyword && unsupported[tok.Literal] {
			return nil, errorf(tok, "%s is not supported", tok.Literal)
		}
		return nil, errorf(tok, "unexpected %q after query", tok.Literal)
	}
	return q, nil
}

func (p *Parser) expectKeyword(kw string) (Token, error) {
	tok := p.next()
	if tok.Type != TokenKeyword || tok.Literal != kw {
		return tok, errorf(tok, "expected %s, found %q", kw, tok.Literal)
	}
	return tok, nil
}

func (p *Parser) parseCount(clause string) (int, error) {
	tok, err := p.expect(TokenNumber, "a non-negative integer")
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(tok.Literal)
	if err != nil {
		return 0, errorf(tok, "%s requires an integer, found %q", clause, tok.Literal)
	}
	return n, nil
}

func (p *Parser) parseMatch() (*MatchClause, error) {
	p.next() // MATCH
	m := &MatchClause{}
	for {
		path, err := p.parsePath()
		if err != nil {
			return nil, err
		}
		m.Paths = append(m.Paths, path)
		if p.cur().Type != TokenComma {
			break
		}
		p.next()
	}
	return m, nil
}

func (p *Parser) parsePath() (*PathPattern, error) {
	path := &PathPattern{}

	node, err := p.parseNode()
	if err != nil {
		return nil, err
	}
	path.Nodes = append(path.Nodes, node)

	for {
		tok := p.cur()
		if tok.Type != TokenMinus && tok.Type != TokenLt {
			break
		}
		rel, err := p.parseRel()
		if err != nil {
			return nil, err
		}
		node, err := p.parseNode()
		if err != nil {
			return nil, err
		}
		path.Rels = append(path.Rels, rel)
		path.Nodes = append(path.Nodes, node)
	}
	return path, nil
}

func (p *Parser) parseNode() (*NodePattern, error) {
	if _, err := p.expect(TokenLParen, "'('"); err != nil {
		return nil, err
	}

	node := &NodePattern{}
	if p.cur().Type == TokenIdent {
		node.Var = p.next().Literal
	}
	if p.cur().Type == TokenColon {
		p.next()
		tok, err := p.expect(TokenIdent, "a label name")
		if err != nil {
			return nil, err
		}
		node.Label = tok.Literal
	}
	if p.cur().Type == TokenLBrace {
		props, err := p.parsePropertyMap()
		if err != nil {
			return nil, err
		}
		node.Properties = props
	}

	if _, err := p.expect(TokenRParen, "')'"); err != nil {
		return nil, err
	}
	return node, nil
}

func (p *Parser) parsePropertyMap() ([]*PropertyEntry, error) {
	p.next() // {
	var props []*PropertyEntry
	for {
		keyTok, err := p.expect(TokenIdent, "a property key")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenColon, "':'"); err != nil {
			return nil, err
		}
		value, err := p.parsePropertyValue()
		if err != nil {
			return nil, err
		}
		props = append(props, &PropertyEntry{Key: keyTok.Literal, Value: value})
		if p.cur().Type != TokenComma {
			break
		}
		p.next()
	}
	if _, err := p.expect(TokenRBrace, "'}'"); err != nil {
		return nil, err
	}
	return props, nil
}

// parsePropertyValue restricts property map values to literals and
// parameters.
func (p *Parser) parsePropertyValue() (Expression, error) {
	tok := p.cur()
	switch tok.Type {
	case TokenString:
		p.next()
		return &StringLit{Value: tok.Literal, Tok: tok}, nil
	case TokenNumber:
		v, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			return nil, errorf(tok, "malformed number %q", tok.Literal)
		}
		p.next()
		return &NumberLit{Value: v, Tok: tok}, nil
	case TokenParam:
		p.next()
		return &Parameter{Name: tok.Literal, Tok: tok}, nil
	case TokenKeyword:
		switch tok.Literal {
		case "TRUE", "FALSE":
			p.next()
			return &BoolLit{Value: tok.Literal == "TRUE", Tok: tok}, nil
		}
	}
	return nil, errorf(tok, "expected a literal or parameter, found %q", tok.Literal)
}

// parseRel parses -[v:T]->, <-[v:T]- or -[v:T]-.
func (p *Parser) parseRel() (*RelPattern, error) {
	rel := &RelPattern{Direction: DirectionBoth}

	incoming := false
	if p.cur().Type == TokenLt {
		p.next()
		incoming = true
	}
	if _, err := p.expect(TokenMinus, "'-'"); err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenLBracket, "'['"); err != nil {
		return nil, err
	}

	if p.cur().Type == TokenIdent {
		rel.Var = p.next().Literal
	}
	if p.cur().Type == TokenColon {
		p.next()
		tok, err := p.expect(TokenIdent, "a relationship type")
		if err != nil {
			return nil, err
		}
		rel.RelType = tok.Literal
	}
	if tok := p.cur(); tok.Type == TokenStar {
		return nil, errorf(tok, "variable-length patterns are not supported")
	}

	if _, err := p.expect(TokenRBracket, "']'"); err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenMinus, "'-'"); err != nil {
		return nil, err
	}

	outgoing := false
	if p.cur().Type == TokenGt {
		p.next()
		outgoing = true
	}

	switch {
	case incoming && outgoing:
		return nil, errorf(p.cur(), "relationship cannot point both ways")
	case incoming:
		rel.Direction = DirectionIn
	case outgoing:
		rel.Direction = DirectionOut
	}
	return rel, nil
}

func (p *Parser) parseReturnItem() (*ReturnItem, error) {
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	item := &ReturnItem{Expr: expr, Text: ExprText(expr)}
	if p.atKeyword("AS") {
		p.next()
		tok, err := p.expect(TokenIdent, "an alias name")
		if err != nil {
			return nil, err
		}
		item.Alias = tok.Literal
	}
	return item, nil
}

// Precedence climbing: OR < AND < NOT < comparison < additive <
// multiplicative < unary minus < primary.

func (p *Parser) parseExpression() (Expression, error) {
	return p.parseOr()
}

func (p *Parser) parseOr() (Expression, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.atKeyword("OR") {
		tok := p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: "OR", Left: left, Right: right, Tok: tok}
	}
	return left, nil
}

func (p *Parser) parseAnd() (Expression, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.atKeyword("AND") {
		tok := p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: "AND", Left: left, Right: right, Tok: tok}
	}
	return left, nil
}

func (p *Parser) parseNot() (Expression, error) {
	if p.atKeyword("NOT") {
		tok := p.next()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: "NOT", Operand: operand, Tok: tok}, nil
	}
	return p.parseComparison()
}

var comparisonOps = map[TokenType]string{
	TokenEq:  "=",
	TokenNeq: "<>",
	TokenLt:  "<",
	TokenLte: "<=",
	TokenGt:  ">",
	TokenGte: ">=",
}

func (p *Parser) parseComparison() (Expression, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	if op, ok := comparisonOps[p.cur().Type]; ok {
		tok := p.next()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return &BinaryExpr{Op: op, Left: left, Right: right, Tok: tok}, nil
	}
	return left, nil
}

func (p *Parser) parseAdditive() (Expression, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		var op string
		switch p.cur().Type {
		case TokenPlus:
			op = "+"
		case TokenMinus:
			op = "-"
		default:
			return left, nil
		}
		tok := p.next()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: op, Left: left, Right: right, Tok: tok}
	}
}

func (p *Parser) parseMultiplicative() (Expression, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		var op string
		switch p.cur().Type {
		case TokenStar:
			op = "*"
		case TokenSlash:
			op = "/"
		case TokenPct:
			op = "%"
		default:
			return left, nil
		}
		tok := p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: op, Left: left, Right: right, Tok: tok}
	}
}

func (p *Parser) parseUnary() (Expression, error) {
	if p.cur().Type == TokenMinus {
		tok := p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: "-", Operand: operand, Tok: tok}, nil
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (Expression, error) {
	tok := p.cur()
	switch tok.Type {
	case TokenString:
		p.next()
		return &StringLit{Value: tok.Literal, Tok: tok}, nil
	case TokenNumber:
		v, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			return nil, errorf(tok, "malformed number %q", tok.Literal)
		}
		p.next()
		return &NumberLit{Value: v, Tok: tok}, nil
	case TokenParam:
		p.next()
		return &Parameter{Name: tok.Literal, Tok: tok}, nil
	case TokenLParen:
		p.next()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRParen, "')'"); err != nil {
			return nil, err
		}
		return expr, nil
	case TokenKeyword:
		switch tok.Literal {
		case "TRUE", "FALSE":
			p.next()
			return &BoolLit{Value: tok.Literal == "TRUE", Tok: tok}, nil
		case "NULL":
			p.next()
			return &NullLit{Tok: tok}, nil
		}
		return nil, errorf(tok, "unexpected keyword %q in expression", tok.Literal)
	case TokenIdent:
		p.next()
		switch p.cur().Type {
		case TokenDot:
			p.next()
			keyTok, err := p.expect(TokenIdent, "a property name")
			if err != nil {
				return nil, err
			}
			return &PropertyAccess{Var: tok.Literal, Key: keyTok.Literal, Tok: tok}, nil
		case TokenLParen:
			return p.parseCall(tok)
		}
		return &Ident{Name: tok.Literal, Tok: tok}, nil
	}
	return nil, errorf(tok, "unexpected %q in expression", tok.Literal)
}

func (p *Parser) parseCall(nameTok Token) (Expression, error) {
	p.next() // (
	call := &FuncCall{Name: nameTok.Literal, Tok: nameTok}
	if p.cur().Type != TokenRParen {
		for {
			arg, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, arg)
			if p.cur().Type != TokenComma {
				break
			}
			p.next()
		}
	}
	if _, err := p.expect(TokenRParen, "')'"); err != nil {
		return nil, err
	}
	return call, nil
}

// ExprText renders an expression back to a canonical source form,
// used as the default column name for unaliased projections.
func ExprText(e Expression) string {
	switch v := e.(type) {
	case *Ident:
		return v.Name
	case *PropertyAccess:
		return v.Var + "." + v.Key
	case *Parameter:
		return "$" + v.Name
	case *StringLit:
		return strconv.Quote(v.Value)
	case *NumberLit:
		return strconv.FormatFloat(v.Value, 'g', -1, 64)
	case *BoolLit:
		if v.Value {
			return "true"
		}
		return "false"
	case *NullLit:
		return "null"
	case *BinaryExpr:
		return fmt.Sprintf("%s %s %s", ExprText(v.Left), v.Op, ExprText(v.Right))
	case *UnaryExpr:
		if v.Op == "NOT" {
			return "NOT " + ExprText(v.Operand)
		}
		return v.Op + ExprText(v.Operand)
	case *FuncCall:
		args := ""
		for i, a := range v.Args {
			if i > 0 {
				args += ", "
			}
			args += ExprText(a)
		}
		return v.Name + "(" + args + ")"
	}
	return ""
}
