package parser

import "fmt"

// TokenType classifies a lexical token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenIdent
	TokenKeyword
	TokenString
	TokenNumber
	TokenParam // $name

	TokenLParen   // (
	TokenRParen   // )
	TokenLBracket // [
	TokenRBracket // ]
	TokenLBrace   // {
	TokenRBrace   // }
	TokenComma    // ,
	TokenColon    // :
	TokenDot      // .

	TokenEq    // =
	TokenNeq   // <>
	TokenLt    // <
	TokenLte   // <=
	TokenGt    // >
	TokenGte   // >=
	TokenPlus  // +
	TokenMinus // -
	TokenStar  // *
	TokenSlash // /
	TokenPct   // %
)

// Token is a lexical token with its source position (1-based).
type Token struct {
	Type    TokenType
	Literal string
	Line    int
	Column  int
}

// Error is a compile error carrying the position of the offending
// token.
type Error struct {
	Line    int
	Column  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Message)
}

func errorf(tok Token, format string, args ...interface{}) error {
	return &Error{Line: tok.Line, Column: tok.Column, Message: fmt.Sprintf(format, args...)}
}
