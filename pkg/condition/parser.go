package condition

import (
	"fmt"
	"strings"
)

// node is a parsed expression. The grammar has exactly three forms: literals
// (true, false, null), quoted strings, and predicate calls.
type node interface{}

type literalNode struct {
	value any // true, false, or nil
}

type stringNode struct {
	value string
}

type callNode struct {
	name string
	args []node
	pos  int
}

type parser struct {
	lex *lexer
	tok token
}

// parse turns expression text into a node tree. There is no operator syntax:
// combinators are spelled as calls (and, or, not), so the parser is a single
// recursive production over call argument lists.
func parse(input string) (node, error) {
	p := &parser{lex: &lexer{input: input}}
	if err := p.advance(); err != nil {
		return nil, err
	}
	n, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokenEOF {
		return nil, fmt.Errorf("unexpected %q at position %d", p.tok.text, p.tok.pos)
	}
	return n, nil
}

func (p *parser) advance() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

func (p *parser) parseExpr() (node, error) {
	switch p.tok.kind {
	case tokenString:
		n := stringNode{value: p.tok.text}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return n, nil

	case tokenIdent:
		name := strings.ToLower(p.tok.text)
		pos := p.tok.pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		switch name {
		case "true":
			return literalNode{value: true}, nil
		case "false":
			return literalNode{value: false}, nil
		case "null":
			return literalNode{value: nil}, nil
		}
		if p.tok.kind != tokenLParen {
			return nil, fmt.Errorf("bare identifier %q at position %d: expected true, false, null, a string, or a predicate call", name, pos)
		}
		return p.parseCall(name, pos)

	default:
		return nil, fmt.Errorf("unexpected %q at position %d", p.tok.text, p.tok.pos)
	}
}

func (p *parser) parseCall(name string, pos int) (node, error) {
	// Current token is '('.
	if err := p.advance(); err != nil {
		return nil, err
	}

	call := callNode{name: name, pos: pos}
	if p.tok.kind == tokenRParen {
		return call, p.advance()
	}

	for {
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		call.args = append(call.args, arg)

		switch p.tok.kind {
		case tokenComma:
			if err := p.advance(); err != nil {
				return nil, err
			}
		case tokenRParen:
			return call, p.advance()
		default:
			return nil, fmt.Errorf("expected ',' or ')' at position %d, got %q", p.tok.pos, p.tok.text)
		}
	}
}
