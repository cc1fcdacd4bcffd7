// Package search compiles boolean query strings and evaluates them against a
// collection's indexes.
//
// The grammar is a tiny boolean language over free-form terms:
//
//	expr     := or_expr
//	or_expr  := and_expr ( "or" and_expr )*
//	and_expr := not_expr ( "and" not_expr )*
//	not_expr := "not" not_expr | term
//	term     := quoted_string | "(" expr ")" | bare_word
//
// Keywords are case-insensitive and bind NOT > AND > OR. A quoted string is
// always a literal term, so `not "not"` negates the term "not".
//
// The expression tree is a closed sum type ([Term], [And], [Or], [Not])
// interpreted by [Evaluate]; the switch there is exhaustive by construction.
package search

import "fmt"

// Expr is a node in a parsed search expression. It is a closed interface:
// the only implementations are [Term], [And], [Or] and [Not].
type Expr interface {
	isExpr()
	fmt.Stringer
}

// Term matches documents by free text, content key, attribute key or id literal.
type Term string

// And matches documents present in every operand's result set.
type And []Expr

// Or matches documents present in any operand's result set.
type Or []Expr

// Not matches every document of the collection not matched by X.
type Not struct {
	X Expr
}

func (Term) isExpr() {}
func (And) isExpr()  {}
func (Or) isExpr()   {}
func (Not) isExpr()  {}

func (t Term) String() string {
	return fmt.Sprintf("%q", string(t))
}

func (a And) String() string {
	return joinOperands("and", a)
}

func (o Or) String() string {
	return joinOperands("or", o)
}

func (n Not) String() string {
	return fmt.Sprintf("not(%s)", n.X)
}

func joinOperands(op string, operands []Expr) string {
	s := op + "("
	for i, operand := range operands {
		if i > 0 {
			s += ", "
		}
		s += operand.String()
	}
	return s + ")"
}
