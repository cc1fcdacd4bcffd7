package search

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ParseError describes malformed query input, with the byte offset of the
// offending token.
type ParseError struct {
	Pos int
	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at offset %d: %s", e.Pos, e.Msg)
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokWord
	tokQuoted
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// lex splits the query into words, quoted strings and parentheses.
func lex(input string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(input) {
		r, size := utf8.DecodeRuneInString(input[i:])
		switch {
		case unicode.IsSpace(r):
			i += size
		case r == '(':
			tokens = append(tokens, token{kind: tokLParen, text: "(", pos: i})
			i += size
		case r == ')':
			tokens = append(tokens, token{kind: tokRParen, text: ")", pos: i})
			i += size
		case r == '"':
			end := strings.IndexByte(input[i+1:], '"')
			if end < 0 {
				return nil, &ParseError{Pos: i, Msg: "unterminated quoted string"}
			}
			tokens = append(tokens, token{kind: tokQuoted, text: input[i+1 : i+1+end], pos: i})
			i += end + 2
		default:
			start := i
			for i < len(input) {
				r, size := utf8.DecodeRuneInString(input[i:])
				if unicode.IsSpace(r) || r == '"' || r == '(' || r == ')' {
					break
				}
				i += size
			}
			tokens = append(tokens, token{kind: tokWord, text: input[start:i], pos: start})
		}
	}
	tokens = append(tokens, token{kind: tokEOF, pos: len(input)})
	return tokens, nil
}

type parser struct {
	tokens []token
	i      int
}

func (p *parser) peek() token {
	return p.tokens[p.i]
}

func (p *parser) next() token {
	t := p.tokens[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

// isKeyword reports whether the token is the given unquoted keyword.
// Quoted keywords are plain terms.
func isKeyword(t token, kw string) bool {
	return t.kind == tokWord && strings.EqualFold(t.text, kw)
}

// Parse compiles a query string into an expression tree.
//
// The empty string and malformed input (unbalanced quotes or parentheses,
// dangling operators) fail with a *[ParseError]; callers that want "empty
// query matches everything" must special-case it before calling Parse.
func Parse(input string) (Expr, error) {
	tokens, err := lex(input)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	if p.peek().kind == tokEOF {
		return nil, &ParseError{Pos: 0, Msg: "empty query"}
	}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, &ParseError{Pos: t.pos, Msg: fmt.Sprintf("unexpected %q", t.text)}
	}
	return expr, nil
}

func (p *parser) parseOr() (Expr, error) {
	operand, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	operands := []Expr{operand}
	for isKeyword(p.peek(), "or") {
		p.next()
		operand, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		operands = append(operands, operand)
	}
	if len(operands) == 1 {
		return operands[0], nil
	}
	return Or(operands), nil
}

func (p *parser) parseAnd() (Expr, error) {
	operand, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	operands := []Expr{operand}
	for isKeyword(p.peek(), "and") {
		p.next()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		operands = append(operands, operand)
	}
	if len(operands) == 1 {
		return operands[0], nil
	}
	return And(operands), nil
}

func (p *parser) parseNot() (Expr, error) {
	if isKeyword(p.peek(), "not") {
		p.next()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return Not{X: operand}, nil
	}
	return p.parseTerm()
}

func (p *parser) parseTerm() (Expr, error) {
	t := p.next()
	switch t.kind {
	case tokQuoted:
		return Term(t.text), nil
	case tokWord:
		// Bare keywords cannot stand in for a term; quote them instead.
		for _, kw := range [...]string{"and", "or", "not"} {
			if strings.EqualFold(t.text, kw) {
				return nil, &ParseError{Pos: t.pos, Msg: fmt.Sprintf("operator %q needs an operand", t.text)}
			}
		}
		return Term(t.text), nil
	case tokLParen:
		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, &ParseError{Pos: t.pos, Msg: "unbalanced parenthesis"}
		}
		return expr, nil
	case tokRParen:
		return nil, &ParseError{Pos: t.pos, Msg: `unexpected ")"`}
	default:
		return nil, &ParseError{Pos: t.pos, Msg: "expected search term"}
	}
}
