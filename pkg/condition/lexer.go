package condition

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenIdent
	tokenString
	tokenLParen
	tokenRParen
	tokenComma
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// lexer produces tokens over the fixed expression alphabet: identifiers,
// quoted strings, parentheses, and commas. Anything else is a lex error, which
// is what keeps arbitrary syntax out of the evaluator.
type lexer struct {
	input string
	pos   int
}

func (l *lexer) next() (token, error) {
	l.skipSpace()
	if l.pos >= len(l.input) {
		return token{kind: tokenEOF, pos: l.pos}, nil
	}

	start := l.pos
	r, size := utf8.DecodeRuneInString(l.input[l.pos:])

	switch {
	case r == '(':
		l.pos += size
		return token{kind: tokenLParen, text: "(", pos: start}, nil
	case r == ')':
		l.pos += size
		return token{kind: tokenRParen, text: ")", pos: start}, nil
	case r == ',':
		l.pos += size
		return token{kind: tokenComma, text: ",", pos: start}, nil
	case r == '\'' || r == '"':
		return l.scanString(r)
	case r == '_' || unicode.IsLetter(r):
		return l.scanIdent()
	default:
		return token{}, fmt.Errorf("unexpected character %q at position %d", r, start)
	}
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.input) {
		r, size := utf8.DecodeRuneInString(l.input[l.pos:])
		if !unicode.IsSpace(r) {
			return
		}
		l.pos += size
	}
}

func (l *lexer) scanString(quote rune) (token, error) {
	start := l.pos
	l.pos += utf8.RuneLen(quote)
	var out []rune
	for l.pos < len(l.input) {
		r, size := utf8.DecodeRuneInString(l.input[l.pos:])
		l.pos += size
		switch r {
		case quote:
			return token{kind: tokenString, text: string(out), pos: start}, nil
		case '\\':
			if l.pos >= len(l.input) {
				return token{}, fmt.Errorf("unterminated string at position %d", start)
			}
			esc, escSize := utf8.DecodeRuneInString(l.input[l.pos:])
			l.pos += escSize
			out = append(out, esc)
		default:
			out = append(out, r)
		}
	}
	return token{}, fmt.Errorf("unterminated string at position %d", start)
}

func (l *lexer) scanIdent() (token, error) {
	start := l.pos
	for l.pos < len(l.input) {
		r, size := utf8.DecodeRuneInString(l.input[l.pos:])
		if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			break
		}
		l.pos += size
	}
	return token{kind: tokenIdent, text: l.input[start:l.pos], pos: start}, nil
}
