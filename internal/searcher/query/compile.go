// Package query builds engine queries: the compiler for parsed query trees
// and the term, range, prefix and fuzzy builders behind the searcher.
package query

import (
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/schema"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
	bquery "github.com/blevesearch/bleve/v2/search/query"
)

// Compiled is an engine query plus the terms its positive clauses match.
type Compiled struct {
	Query      bquery.Query
	Highlights Highlights
}

type compiler struct {
	schema     *schema.Schema
	defaults   []schema.Field
	highlights Highlights
}

// Compile turns a parsed tree into an engine query. Unscoped terms are
// matched against defaultFields. A nil tree matches nothing.
func Compile(s *schema.Schema, n parser.Node, defaultFields []string) (*Compiled, error) {
	c := &compiler{schema: s, highlights: Highlights{}}
	for _, name := range defaultFields {
		f, err := s.Lookup(name)
		if err != nil {
			return nil, err
		}
		c.defaults = append(c.defaults, f)
	}
	if n == nil {
		return &Compiled{Query: bquery.NewMatchNoneQuery(), Highlights: c.highlights}, nil
	}
	q, err := c.compile(n, true)
	if err != nil {
		return nil, err
	}
	return &Compiled{Query: q, Highlights: c.highlights}, nil
}

// Parse parses and compiles text in one step.
func Parse(s *schema.Schema, text string, defaultFields []string) (*Compiled, error) {
	n, err := parser.Parse(text)
	if err != nil {
		return nil, err
	}
	return Compile(s, n, defaultFields)
}

func (c *compiler) compile(n parser.Node, positive bool) (bquery.Query, error) {
	switch n := n.(type) {
	case parser.Term:
		return c.value(n.Field, n.Value, positive)
	case parser.Phrase:
		return c.value(n.Field, n.Text, positive)
	case parser.Range:
		return c.rangeQuery(n)
	case parser.Required:
		return c.compile(n.Node, positive)
	case parser.Excluded:
		q, err := c.compile(n.Node, !positive)
		if err != nil {
			return nil, err
		}
		return bquery.NewBooleanQuery(nil, nil, []bquery.Query{q}), nil
	case parser.And:
		return c.boolean(n.Nodes, positive, true)
	case parser.Or:
		return c.boolean(n.Nodes, positive, false)
	}
	return nil, apperrors.Newf(apperrors.ErrQueryParse, "unsupported clause %s", n)
}

// boolean compiles a conjunction or disjunction. Required children become
// must clauses and excluded children must-not clauses in either form; plain
// children are must clauses under AND and should clauses under OR.
func (c *compiler) boolean(nodes []parser.Node, positive, conjunction bool) (bquery.Query, error) {
	var must, should, mustNot []bquery.Query
	for _, child := range nodes {
		switch child := child.(type) {
		case parser.Required:
			q, err := c.compile(child.Node, positive)
			if err != nil {
				return nil, err
			}
			must = append(must, q)
		case parser.Excluded:
			q, err := c.compile(child.Node, !positive)
			if err != nil {
				return nil, err
			}
			mustNot = append(mustNot, q)
		default:
			q, err := c.compile(child, positive)
			if err != nil {
				return nil, err
			}
			if conjunction {
				must = append(must, q)
			} else {
				should = append(should, q)
			}
		}
	}
	if len(must) == 0 && len(mustNot) == 0 {
		if len(should) == 1 {
			return should[0], nil
		}
		return bquery.NewDisjunctionQuery(should), nil
	}
	return bquery.NewBooleanQuery(must, should, mustNot), nil
}

func (c *compiler) value(field, text string, positive bool) (bquery.Query, error) {
	if field != "" {
		f, err := c.schema.Lookup(field)
		if err != nil {
			return nil, err
		}
		q, err := c.fieldValue(f, text, positive)
		if err != nil {
			return nil, err
		}
		if q == nil {
			return bquery.NewMatchNoneQuery(), nil
		}
		return q, nil
	}

	if len(c.defaults) == 0 {
		return nil, apperrors.Newf(apperrors.ErrQueryParse, "%q has no field and no default fields are set", text)
	}
	var alternatives []bquery.Query
	for _, f := range c.defaults {
		q, err := c.fieldValue(f, text, positive)
		if err != nil {
			// a default field that cannot hold this value is skipped
			continue
		}
		if q != nil {
			alternatives = append(alternatives, q)
		}
	}
	switch len(alternatives) {
	case 0:
		return bquery.NewMatchNoneQuery(), nil
	case 1:
		return alternatives[0], nil
	}
	return bquery.NewDisjunctionQuery(alternatives), nil
}

// fieldValue analyzes text for text fields: one token is a term, several a
// phrase. It returns nil when text analyzes to no tokens.
func (c *compiler) fieldValue(f schema.Field, text string, positive bool) (bquery.Query, error) {
	if f.Type != schema.Text {
		return typedEquals(f, text)
	}
	terms := tokenizer.Terms(text)
	if len(terms) == 0 {
		return nil, nil
	}
	if positive {
		c.highlights.Add(f.Name, terms...)
	}
	if len(terms) == 1 {
		q := bquery.NewTermQuery(terms[0])
		q.SetField(f.Name)
		return q, nil
	}
	return bquery.NewPhraseQuery(terms, f.Name), nil
}

func (c *compiler) rangeQuery(r parser.Range) (bquery.Query, error) {
	f, err := c.schema.Lookup(r.Field)
	if err != nil {
		return nil, err
	}
	if !f.Type.IsNumeric() {
		return nil, apperrors.ForField(apperrors.ErrNotNumericField, f.Name, "field is %s", f.Type)
	}
	var lo, hi *float64
	if r.Lower != "" {
		v, err := parseNumber(f, r.Lower)
		if err != nil {
			return nil, err
		}
		lo = &v
	}
	if r.Upper != "" {
		v, err := parseNumber(f, r.Upper)
		if err != nil {
			return nil, err
		}
		hi = &v
	}
	return numericRange(f.Name, lo, hi, r.IncludeLower, r.IncludeUpper), nil
}
