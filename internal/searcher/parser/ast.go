package parser

import (
	"strconv"
	"strings"
)

// Node is one element of a parsed query tree. Trees are built once by Parse
// and never modified afterwards.
type Node interface {
	String() string
	node()
}

// Term is a bare or field-scoped value. An empty Field means the caller's
// default fields.
type Term struct {
	Field string
	Value string
}

// Phrase is a quoted adjacent-token sequence.
type Phrase struct {
	Field string
	Text  string
}

// Range is a numeric interval on Field. An empty bound is open.
type Range struct {
	Field        string
	Lower        string
	Upper        string
	IncludeLower bool
	IncludeUpper bool
}

type And struct {
	Nodes []Node
}

type Or struct {
	Nodes []Node
}

// Required marks a clause that must match.
type Required struct {
	Node Node
}

// Excluded marks a clause that must not match.
type Excluded struct {
	Node Node
}

func (Term) node()     {}
func (Phrase) node()   {}
func (Range) node()    {}
func (And) node()      {}
func (Or) node()       {}
func (Required) node() {}
func (Excluded) node() {}

func scoped(field, value string) string {
	if field == "" {
		return value
	}
	return field + ":" + value
}

func (t Term) String() string {
	return scoped(t.Field, t.Value)
}

func (p Phrase) String() string {
	return scoped(p.Field, strconv.Quote(p.Text))
}

func (r Range) String() string {
	var b strings.Builder
	if r.IncludeLower {
		b.WriteByte('[')
	} else {
		b.WriteByte('{')
	}
	b.WriteString(bound(r.Lower))
	b.WriteString(" TO ")
	b.WriteString(bound(r.Upper))
	if r.IncludeUpper {
		b.WriteByte(']')
	} else {
		b.WriteByte('}')
	}
	return scoped(r.Field, b.String())
}

func bound(s string) string {
	if s == "" {
		return "*"
	}
	return s
}

func (a And) String() string {
	return join(a.Nodes, " AND ")
}

func (o Or) String() string {
	return join(o.Nodes, " OR ")
}

func (r Required) String() string {
	return "+" + r.Node.String()
}

func (e Excluded) String() string {
	return "-" + e.Node.String()
}

func join(nodes []Node, sep string) string {
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = n.String()
	}
	return "(" + strings.Join(parts, sep) + ")"
}
