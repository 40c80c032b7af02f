package exprparse

import "fmt"

// Position points to a location in the source text (1-based).
type Position struct {
	Line   int
	Column int
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

type tokenType string

const (
	tokIllegal tokenType = "ILLEGAL"
	tokEOF     tokenType = "EOF"
	tokIdent   tokenType = "IDENT"
	tokInt     tokenType = "INT"
	tokFloat   tokenType = "FLOAT"
	tokDecimal tokenType = "DECIMAL"
	tokString  tokenType = "STRING"
	tokChar    tokenType = "CHAR"

	tokArrow    tokenType = "=>"
	tokLParen   tokenType = "("
	tokRParen   tokenType = ")"
	tokLBrace   tokenType = "{"
	tokRBrace   tokenType = "}"
	tokLBracket tokenType = "["
	tokRBracket tokenType = "]"
	tokComma    tokenType = ","
	tokDot      tokenType = "."
	tokColon    tokenType = ":"
	tokQuestion tokenType = "?"
	tokCoalesce tokenType = "??"
	tokBang     tokenType = "!"

	tokPlus    tokenType = "+"
	tokMinus   tokenType = "-"
	tokStar    tokenType = "*"
	tokSlash   tokenType = "/"
	tokPercent tokenType = "%"
	tokPower   tokenType = "**"
	tokAmp     tokenType = "&"
	tokPipe    tokenType = "|"
	tokCaret   tokenType = "^"
	tokShl     tokenType = "<<"
	tokShr     tokenType = ">>"
	tokAnd     tokenType = "&&"
	tokOr      tokenType = "||"
	tokEq      tokenType = "=="
	tokNe      tokenType = "!="
	tokLt      tokenType = "<"
	tokLe      tokenType = "<="
	tokGt      tokenType = ">"
	tokGe      tokenType = ">="
)

type token struct {
	Type    tokenType
	Literal string
	Pos     Position
}

// operators lists multi-character operators before their prefixes so the
// lexer matches the longest one.
var operators = []tokenType{
	tokArrow, tokCoalesce, tokPower, tokShl, tokShr, tokAnd, tokOr, tokEq, tokNe, tokLe, tokGe,
	tokLParen, tokRParen, tokLBrace, tokRBrace, tokLBracket, tokRBracket, tokComma, tokDot,
	tokColon, tokQuestion, tokBang, tokPlus, tokMinus, tokStar, tokSlash, tokPercent,
	tokAmp, tokPipe, tokCaret, tokLt, tokGt,
}
