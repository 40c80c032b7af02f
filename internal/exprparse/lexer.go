package exprparse

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// lexer converts expression text into tokens.
type lexer struct {
	input  string
	offset int
	line   int
	column int
}

func newLexer(input string) *lexer {
	return &lexer{input: input, line: 1, column: 1}
}

func (l *lexer) peekRune() rune {
	if l.offset >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.offset:])
	return r
}

func (l *lexer) advance() rune {
	r, size := utf8.DecodeRuneInString(l.input[l.offset:])
	l.offset += size
	if r == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	return r
}

func (l *lexer) skipSpaceAndComments() {
	for l.offset < len(l.input) {
		r := l.peekRune()
		switch {
		case unicode.IsSpace(r):
			l.advance()
		case strings.HasPrefix(l.input[l.offset:], "//"):
			for l.offset < len(l.input) && l.peekRune() != '\n' {
				l.advance()
			}
		default:
			return
		}
	}
}

func (l *lexer) next() token {
	l.skipSpaceAndComments()
	pos := Position{Line: l.line, Column: l.column}
	if l.offset >= len(l.input) {
		return token{Type: tokEOF, Pos: pos}
	}

	r := l.peekRune()
	switch {
	case isIdentStart(r):
		return token{Type: tokIdent, Literal: l.readWhile(isIdentPart), Pos: pos}
	case unicode.IsDigit(r):
		return l.readNumber(pos)
	case r == '"':
		return l.readQuoted('"', tokString, pos)
	case r == '\'':
		return l.readQuoted('\'', tokChar, pos)
	}

	rest := l.input[l.offset:]
	for _, op := range operators {
		if strings.HasPrefix(rest, string(op)) {
			for range len(op) {
				l.advance()
			}
			return token{Type: op, Literal: string(op), Pos: pos}
		}
	}

	l.advance()
	return token{Type: tokIllegal, Literal: string(r), Pos: pos}
}

func (l *lexer) readWhile(ok func(rune) bool) string {
	start := l.offset
	for l.offset < len(l.input) && ok(l.peekRune()) {
		l.advance()
	}
	return l.input[start:l.offset]
}

// readNumber reads 12, 1.5, 1e3, 2.5m (decimal) and 2d or 2f (float).
func (l *lexer) readNumber(pos Position) token {
	start := l.offset
	typ := tokInt
	l.readWhile(unicode.IsDigit)

	if l.peekRune() == '.' && l.offset+1 < len(l.input) && isDigit(l.input[l.offset+1]) {
		typ = tokFloat
		l.advance()
		l.readWhile(unicode.IsDigit)
	}
	if r := l.peekRune(); r == 'e' || r == 'E' {
		save, line, col := l.offset, l.line, l.column
		l.advance()
		if r := l.peekRune(); r == '+' || r == '-' {
			l.advance()
		}
		if digits := l.readWhile(unicode.IsDigit); digits == "" {
			l.offset, l.line, l.column = save, line, col
		} else {
			typ = tokFloat
		}
	}
	lit := l.input[start:l.offset]

	switch l.peekRune() {
	case 'm', 'M':
		l.advance()
		typ = tokDecimal
	case 'd', 'D', 'f', 'F':
		l.advance()
		typ = tokFloat
	}
	if isIdentPart(l.peekRune()) {
		l.readWhile(isIdentPart)
		return token{Type: tokIllegal, Literal: l.input[start:l.offset], Pos: pos}
	}
	return token{Type: typ, Literal: lit, Pos: pos}
}

// readQuoted returns the raw quoted text including quotes; the parser
// unquotes it.
func (l *lexer) readQuoted(quote rune, typ tokenType, pos Position) token {
	start := l.offset
	l.advance()
	for l.offset < len(l.input) {
		r := l.advance()
		switch r {
		case '\\':
			if l.offset < len(l.input) {
				l.advance()
			}
		case quote:
			return token{Type: typ, Literal: l.input[start:l.offset], Pos: pos}
		case '\n':
			return token{Type: tokIllegal, Literal: l.input[start:l.offset], Pos: pos}
		}
	}
	return token{Type: tokIllegal, Literal: l.input[start:l.offset], Pos: pos}
}

func isIdentStart(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || unicode.IsDigit(r)
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
