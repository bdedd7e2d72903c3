package searcher

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/snippet"
	bquery "github.com/blevesearch/bleve/v2/search/query"
)

type (
	SearchResult = executor.SearchResult
	Hit          = executor.Hit
	Inclusive    = query.Inclusive
)

const (
	IncludeNeither = query.IncludeNeither
	IncludeLower   = query.IncludeLower
	IncludeUpper   = query.IncludeUpper
	IncludeBoth    = query.IncludeBoth
)

// Snippets asks for highlighted excerpts of the named stored text fields.
// MaxChars <= 0 selects the default of 150.
type Snippets struct {
	Fields   []string
	MaxChars int
}

// Searcher runs queries against one Reader. Searchers are cheap and any
// number may share a Reader concurrently. A limit <= 0 means 10.
type Searcher struct {
	reader *Reader
	exec   *executor.Executor
	logger *slog.Logger
}

func NewSearcher(r *Reader) *Searcher {
	idx := r.snap.Index()
	return &Searcher{
		reader: r,
		exec:   executor.New(r.snap.Reader, idx.Schema(), idx.Mapping()),
		logger: slog.Default().With("component", "searcher"),
	}
}

func (s *Searcher) Reader() *Reader {
	return s.reader
}

// Term matches value exactly in field.
func (s *Searcher) Term(ctx context.Context, field, value string, limit int) (*SearchResult, error) {
	q, _, err := query.Term(s.reader.Schema(), field, value)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, "term", executor.Request{Query: q, Limit: limit})
}

// Query parses text and runs it. Unscoped terms search defaultFields.
func (s *Searcher) Query(ctx context.Context, text string, defaultFields []string, limit int) (*SearchResult, error) {
	return s.QueryWithSnippets(ctx, text, defaultFields, Snippets{}, limit)
}

// QueryWithSnippets is Query with highlighted excerpts attached to each hit.
func (s *Searcher) QueryWithSnippets(ctx context.Context, text string, defaultFields []string, sn Snippets, limit int) (*SearchResult, error) {
	sch := s.reader.Schema()
	fields, err := snippet.Fields(sch, sn.Fields)
	if err != nil {
		return nil, err
	}
	compiled, err := query.Parse(sch, text, defaultFields)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, "query", executor.Request{
		Query:           compiled.Query,
		Limit:           limit,
		SnippetFields:   fields,
		Highlights:      compiled.Highlights,
		MaxSnippetChars: sn.MaxChars,
	})
}

// Prefix matches tokens of a text field starting with prefix.
func (s *Searcher) Prefix(ctx context.Context, field, prefix string, limit int) (*SearchResult, error) {
	q, err := query.Prefix(s.reader.Schema(), field, prefix)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, "prefix", executor.Request{Query: q, Limit: limit})
}

// Fuzzy matches tokens of a text field within distance edits of term.
// With transposition an adjacent swap counts as one edit.
func (s *Searcher) Fuzzy(ctx context.Context, field, term string, distance int, transposition bool, limit int) (*SearchResult, error) {
	p := query.FuzzyParams{Field: field, Term: term, Distance: distance, Transposition: transposition}
	return s.fuzzy(ctx, "fuzzy", p, Snippets{}, limit)
}

// FuzzyPrefix matches tokens that start with a string within distance
// edits of term.
func (s *Searcher) FuzzyPrefix(ctx context.Context, field, term string, distance int, transposition bool, limit int) (*SearchResult, error) {
	p := query.FuzzyParams{Field: field, Term: term, Distance: distance, Transposition: transposition, Prefix: true}
	return s.fuzzy(ctx, "fuzzy_prefix", p, Snippets{}, limit)
}

// FuzzyWithSnippets is Fuzzy with highlighted excerpts; the expanded terms
// are the ones marked.
func (s *Searcher) FuzzyWithSnippets(ctx context.Context, field, term string, distance int, transposition bool, sn Snippets, limit int) (*SearchResult, error) {
	p := query.FuzzyParams{Field: field, Term: term, Distance: distance, Transposition: transposition}
	return s.fuzzy(ctx, "fuzzy", p, sn, limit)
}

func (s *Searcher) FuzzyPrefixWithSnippets(ctx context.Context, field, term string, distance int, transposition bool, sn Snippets, limit int) (*SearchResult, error) {
	p := query.FuzzyParams{Field: field, Term: term, Distance: distance, Transposition: transposition, Prefix: true}
	return s.fuzzy(ctx, "fuzzy_prefix", p, sn, limit)
}

func (s *Searcher) fuzzy(ctx context.Context, kind string, p query.FuzzyParams, sn Snippets, limit int) (*SearchResult, error) {
	sch := s.reader.Schema()
	p, err := query.CheckFuzzy(sch, p)
	if err != nil {
		return nil, err
	}
	fields, err := snippet.Fields(sch, sn.Fields)
	if err != nil {
		return nil, err
	}
	if err := s.reader.checkOpen(); err != nil {
		return nil, err
	}
	terms, err := s.reader.expand(p)
	if err != nil {
		return nil, err
	}
	hl := query.Highlights{}
	hl.Add(p.Field, terms...)
	return s.run(ctx, kind, executor.Request{
		Query:           query.Fuzzy(p.Field, terms),
		Limit:           limit,
		SnippetFields:   fields,
		Highlights:      hl,
		MaxSnippetChars: sn.MaxChars,
	})
}

// SearchRange matches documents whose numeric field lies between lower and
// upper. T must match the field's declared type.
func SearchRange[T query.Number](ctx context.Context, s *Searcher, field string, lower, upper T, incl Inclusive, limit int) (*SearchResult, error) {
	q, err := query.Range(s.reader.Schema(), field, &lower, &upper, incl)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, "range", executor.Request{Query: q, Limit: limit})
}

// Run executes a prepared engine query.
func (s *Searcher) Run(ctx context.Context, q bquery.Query, limit int) (*SearchResult, error) {
	return s.run(ctx, "raw", executor.Request{Query: q, Limit: limit})
}

func (s *Searcher) run(ctx context.Context, kind string, req executor.Request) (*SearchResult, error) {
	if err := s.reader.checkOpen(); err != nil {
		return nil, err
	}
	start := time.Now()
	res, err := s.exec.Execute(ctx, req)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("search complete",
		"kind", kind,
		"generation", s.reader.Generation(),
		"hits", res.TotalHits,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}
