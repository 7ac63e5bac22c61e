package parser

import (
	"strings"
	"unicode"
)

// keywords are recognized case-insensitively and normalized to upper
// case in the token literal.
var keywords = map[string]bool{
	"MATCH": true, "WHERE": true, "RETURN": true, "DISTINCT": true,
	"SKIP": true, "LIMIT": true, "AS": true,
	"AND": true, "OR": true, "NOT": true,
	"TRUE": true, "FALSE": true, "NULL": true,
	// Recognized so the parser can reject them with a clear message.
	"CREATE": true, "MERGE": true, "SET": true, "DELETE": true,
	"DETACH": true, "REMOVE": true, "ORDER": true, "BY": true,
	"UNION": true, "WITH": true, "OPTIONAL": true, "UNWIND": true,
}

// Lexer turns query text into tokens, tracking line and column.
type Lexer struct {
	input  string
	pos    int
	line   int
	column int
}

// NewLexer creates a lexer over input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input, line: 1, column: 1}
}

func (l *Lexer) peek() byte {
	if l.pos >= len(l.input) {
		return 0
	}
	return l.input[l.pos]
}

func (l *Lexer) peekAt(offset int) byte {
	if l.pos+offset >= len(l.input) {
		return 0
	}
	return l.input[l.pos+offset]
}

func (l *Lexer) advance() byte {
	ch := l.input[l.pos]
	l.pos++
	if ch == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	return ch
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) && unicode.IsSpace(rune(l.peek())) {
		l.advance()
	}
}

// Next returns the next token. At end of input it returns TokenEOF
// forever.
func (l *Lexer) Next() (Token, error) {
	l.skipWhitespace()

	tok := Token{Line: l.line, Column: l.column}
	if l.pos >= len(l.input) {
		tok.Type = TokenEOF
		return tok, nil
	}

	ch := l.peek()
	switch {
	case isIdentStart(ch):
		return l.lexIdent(tok), nil
	case ch >= '0' && ch <= '9':
		return l.lexNumber(tok), nil
	case ch == '\'' || ch == '"':
		return l.lexString(tok)
	case ch == '$':
		return l.lexParam(tok)
	}

	l.advance()
	switch ch {
	case '(':
		tok.Type, tok.Literal = TokenLParen, "("
	case ')':
		tok.Type, tok.Literal = TokenRParen, ")"
	case '[':
		tok.Type, tok.Literal = TokenLBracket, "["
	case ']':
		tok.Type, tok.Literal = TokenRBracket, "]"
	case '{':
		tok.Type, tok.Literal = TokenLBrace, "{"
	case '}':
		tok.Type, tok.Literal = TokenRBrace, "}"
	case ',':
		tok.Type, tok.Literal = TokenComma, ","
	case ':':
		tok.Type, tok.Literal = TokenColon, ":"
	case '.':
		tok.Type, tok.Literal = TokenDot, "."
	case '=':
		tok.Type, tok.Literal = TokenEq, "="
	case '+':
		tok.Type, tok.Literal = TokenPlus, "+"
	case '-':
		tok.Type, tok.Literal = TokenMinus, "-"
	case '*':
		tok.Type, tok.Literal = TokenStar, "*"
	case '/':
		tok.Type, tok.Literal = TokenSlash, "/"
	case '%':
		tok.Type, tok.Literal = TokenPct, "%"
	case '<':
		switch l.peek() {
		case '=':
			l.advance()
			tok.Type, tok.Literal = TokenLte, "<="
		case '>':
			l.advance()
			tok.Type, tok.Literal = TokenNeq, "<>"
		default:
			tok.Type, tok.Literal = TokenLt, "<"
		}
	case '>':
		if l.peek() == '=' {
			l.advance()
			tok.Type, tok.Literal = TokenGte, ">="
		} else {
			tok.Type, tok.Literal = TokenGt, ">"
		}
	default:
		return tok, errorf(tok, "unexpected character %q", string(ch))
	}
	return tok, nil
}

func isIdentStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || (ch >= '0' && ch <= '9')
}

func (l *Lexer) lexIdent(tok Token) Token {
	start := l.pos
	for l.pos < len(l.input) && isIdentPart(l.peek()) {
		l.advance()
	}
	word := l.input[start:l.pos]
	upper := strings.ToUpper(word)
	if keywords[upper] {
		tok.Type = TokenKeyword
		tok.Literal = upper
	} else {
		tok.Type = TokenIdent
		tok.Literal = word
	}
	return tok
}

func (l *Lexer) lexNumber(tok Token) Token {
	start := l.pos
	for l.pos < len(l.input) && l.peek() >= '0' && l.peek() <= '9' {
		l.advance()
	}
	if l.peek() == '.' && l.peekAt(1) >= '0' && l.peekAt(1) <= '9' {
		l.advance()
		for l.pos < len(l.input) && l.peek() >= '0' && l.peek() <= '9' {
			l.advance()
		}
	}
	tok.Type = TokenNumber
	tok.Literal = l.input[start:l.pos]
	return tok
}

func (l *Lexer) lexString(tok Token) (Token, error) {
	quote := l.advance()
	var sb strings.Builder
	for {
		if l.pos >= len(l.input) {
			return tok, errorf(tok, "unterminated string literal")
		}
		ch := l.advance()
		if ch == quote {
			break
		}
		if ch == '\\' {
			if l.pos >= len(l.input) {
				return tok, errorf(tok, "unterminated string literal")
			}
			esc := l.advance()
			switch esc {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case '\\', '\'', '"':
				sb.WriteByte(esc)
			default:
				return tok, errorf(tok, "unknown escape sequence \\%s", string(esc))
			}
			continue
		}
		sb.WriteByte(ch)
	}
	tok.Type = TokenString
	tok.Literal = sb.String()
	return tok, nil
}

func (l *Lexer) lexParam(tok Token) (Token, error) {
	l.advance() // $
	if !isIdentStart(l.peek()) {
		return tok, errorf(tok, "expected parameter name after '$'")
	}
	start := l.pos
	for l.pos < len(l.input) && isIdentPart(l.peek()) {
		l.advance()
	}
	tok.Type = TokenParam
	tok.Literal = l.input[start:l.pos]
	return tok, nil
}
