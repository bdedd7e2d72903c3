// Package parser turns query text into a tree of Term, Phrase, Range, And,
// Or, Required and Excluded nodes.
//
//	query   := or
//	or      := and { ["OR"] and }
//	and     := unary { "AND" unary }
//	unary   := ("+" | "-" | "NOT") unary | primary
//	primary := "(" or ")" | PHRASE | WORD ":" value | WORD
//	value   := "(" or ")" | PHRASE | range | ["-"] WORD
//	range   := ("[" | "{") bound "TO" bound ("]" | "}")
//
// Adjacent clauses without an operator are combined with OR, so "+a b -c"
// requires a, excludes c and scores b. Operators are recognised only in
// upper case; a lower-case "and" is an ordinary term.
package parser

import (
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
)

const maxDepth = 64

type parser struct {
	tokens []token
	pos    int
	depth  int
}

// Parse parses query. Blank input yields a nil node and no error.
// The operators AND, OR and NOT are recognised in upper case only; in any
// other case they are ordinary terms.
func Parse(query string) (Node, error) {
	tokens, err := lex(query)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrQueryParse, err.Error())
	}
	if len(tokens) == 1 {
		return nil, nil
	}
	p := &parser{tokens: tokens}
	n, err := p.parseOr("")
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, p.unexpected(t)
	}
	return n, nil
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) unexpected(t token) error {
	if t.kind == tokEOF {
		return apperrors.New(apperrors.ErrQueryParse, "unexpected end of query")
	}
	if t.kind == tokRParen {
		return apperrors.Newf(apperrors.ErrQueryParse, "unbalanced ')' at offset %d", t.pos)
	}
	return apperrors.Newf(apperrors.ErrQueryParse, "unexpected %s at offset %d", t.describe(), t.pos)
}

func isKeyword(t token, kw string) bool {
	return t.kind == tokWord && !t.escaped && t.text == kw
}

func isOperator(t token) bool {
	return isKeyword(t, "AND") || isKeyword(t, "OR")
}

func endsClause(t token) bool {
	return t.kind == tokEOF || t.kind == tokRParen
}

// enter counts one level of nesting. Callers must call leave when done.
func (p *parser) enter() error {
	p.depth++
	if p.depth > maxDepth {
		return apperrors.Newf(apperrors.ErrQueryParse, "query nested deeper than %d levels", maxDepth)
	}
	return nil
}

func (p *parser) leave() { p.depth-- }

func (p *parser) parseOr(field string) (Node, error) {
	defer p.leave()
	if err := p.enter(); err != nil {
		return nil, err
	}

	first, err := p.parseAnd(field)
	if err != nil {
		return nil, err
	}
	nodes := []Node{first}
	for !endsClause(p.peek()) {
		if isKeyword(p.peek(), "OR") {
			op := p.next()
			if t := p.peek(); endsClause(t) || isOperator(t) {
				return nil, apperrors.Newf(apperrors.ErrQueryParse, "OR at offset %d has no right operand", op.pos)
			}
		}
		n, err := p.parseAnd(field)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	if len(nodes) == 1 {
		return nodes[0], nil
	}
	return Or{Nodes: nodes}, nil
}

func (p *parser) parseAnd(field string) (Node, error) {
	first, err := p.parseUnary(field)
	if err != nil {
		return nil, err
	}
	nodes := []Node{first}
	for isKeyword(p.peek(), "AND") {
		op := p.next()
		if t := p.peek(); endsClause(t) || isOperator(t) {
			return nil, apperrors.Newf(apperrors.ErrQueryParse, "AND at offset %d has no right operand", op.pos)
		}
		n, err := p.parseUnary(field)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	if len(nodes) == 1 {
		return nodes[0], nil
	}
	return And{Nodes: nodes}, nil
}

func (p *parser) parseUnary(field string) (Node, error) {
	t := p.peek()
	if t.kind == tokPlus || t.kind == tokMinus || isKeyword(t, "NOT") {
		defer p.leave()
		if err := p.enter(); err != nil {
			return nil, err
		}
	}
	switch {
	case t.kind == tokPlus:
		p.next()
		n, err := p.parseUnary(field)
		if err != nil {
			return nil, err
		}
		return Required{Node: n}, nil
	case t.kind == tokMinus, isKeyword(t, "NOT"):
		p.next()
		n, err := p.parseUnary(field)
		if err != nil {
			return nil, err
		}
		return Excluded{Node: n}, nil
	}
	return p.parsePrimary(field)
}

func (p *parser) parsePrimary(field string) (Node, error) {
	t := p.next()
	switch t.kind {
	case tokLParen:
		return p.parseGroup(field, t)
	case tokPhrase:
		return Phrase{Field: field, Text: t.text}, nil
	case tokWord:
		if isOperator(t) {
			return nil, p.unexpected(t)
		}
		if p.peek().kind == tokColon {
			p.next()
			return p.parseFieldValue(t.text)
		}
		return Term{Field: field, Value: t.text}, nil
	case tokLBracket, tokLBrace:
		if field == "" {
			return nil, apperrors.Newf(apperrors.ErrQueryParse, "range at offset %d has no field", t.pos)
		}
		return p.parseRange(field, t)
	}
	return nil, p.unexpected(t)
}

func (p *parser) parseGroup(field string, open token) (Node, error) {
	if p.peek().kind == tokRParen {
		return nil, apperrors.Newf(apperrors.ErrQueryParse, "empty group at offset %d", open.pos)
	}
	n, err := p.parseOr(field)
	if err != nil {
		return nil, err
	}
	if p.next().kind != tokRParen {
		return nil, apperrors.Newf(apperrors.ErrQueryParse, "unbalanced '(' at offset %d", open.pos)
	}
	return n, nil
}

func (p *parser) parseFieldValue(name string) (Node, error) {
	if name == "" {
		return nil, apperrors.New(apperrors.ErrQueryParse, "empty field name")
	}
	t := p.next()
	switch t.kind {
	case tokLParen:
		return p.parseGroup(name, t)
	case tokPhrase:
		return Phrase{Field: name, Text: t.text}, nil
	case tokLBracket, tokLBrace:
		return p.parseRange(name, t)
	case tokMinus:
		w := p.next()
		if w.kind != tokWord {
			return nil, p.unexpected(w)
		}
		return Term{Field: name, Value: "-" + w.text}, nil
	case tokWord:
		if isOperator(t) || isKeyword(t, "NOT") {
			return nil, apperrors.Newf(apperrors.ErrQueryParse, "field %q has no value", name)
		}
		return Term{Field: name, Value: t.text}, nil
	case tokEOF:
		return nil, apperrors.Newf(apperrors.ErrQueryParse, "field %q has no value", name)
	}
	return nil, p.unexpected(t)
}

func (p *parser) parseRange(field string, open token) (Node, error) {
	r := Range{Field: field, IncludeLower: open.kind == tokLBracket}
	lower, err := p.parseBound()
	if err != nil {
		return nil, err
	}
	r.Lower = lower
	if t := p.next(); !isKeyword(t, "TO") {
		return nil, apperrors.Newf(apperrors.ErrQueryParse, "range at offset %d: expected TO, found %s", open.pos, t.describe())
	}
	upper, err := p.parseBound()
	if err != nil {
		return nil, err
	}
	r.Upper = upper
	switch t := p.next(); t.kind {
	case tokRBracket:
		r.IncludeUpper = true
	case tokRBrace:
	default:
		return nil, apperrors.Newf(apperrors.ErrQueryParse, "range at offset %d is not closed", open.pos)
	}
	return r, nil
}

func (p *parser) parseBound() (string, error) {
	t := p.next()
	switch t.kind {
	case tokStar:
		return "", nil
	case tokMinus:
		w := p.next()
		if w.kind != tokWord {
			return "", p.unexpected(w)
		}
		return "-" + w.text, nil
	case tokWord:
		if isKeyword(t, "TO") {
			return "", apperrors.Newf(apperrors.ErrQueryParse, "range bound missing at offset %d", t.pos)
		}
		return t.text, nil
	}
	return "", p.unexpected(t)
}
