// Package executor runs compiled engine queries against a snapshot and
// assembles the ranked, projected result.
package executor

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"runtime"
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/schema"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/snippet"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/collector"
	bquery "github.com/blevesearch/bleve/v2/search/query"
	bindex "github.com/blevesearch/bleve_index_api"
	"golang.org/x/sync/errgroup"
)

const DefaultLimit = 10

type Hit struct {
	ID       string            `json:"id"`
	Score    float64           `json:"score"`
	Doc      map[string]any    `json:"doc"`
	Snippets map[string]string `json:"snippets,omitempty"`
}

// SearchResult holds the hits in descending score order. TotalHits is the
// number of hits returned, which never exceeds the request limit.
type SearchResult struct {
	TotalHits int   `json:"total_hits"`
	Hits      []Hit `json:"hits"`
}

// Request is one query execution. Snippets are produced only when
// SnippetFields is non-empty; the fields must already be resolved with
// snippet.Fields.
type Request struct {
	Query           bquery.Query
	Limit           int
	SnippetFields   []string
	Highlights      query.Highlights
	MaxSnippetChars int
}

type Executor struct {
	reader  bindex.IndexReader
	schema  *schema.Schema
	mapping mapping.IndexMapping
	logger  *slog.Logger
}

func New(reader bindex.IndexReader, s *schema.Schema, m mapping.IndexMapping) *Executor {
	return &Executor{
		reader:  reader,
		schema:  s,
		mapping: m,
		logger:  slog.Default().With("component", "query-executor"),
	}
}

func (e *Executor) Execute(ctx context.Context, req Request) (*SearchResult, error) {
	start := time.Now()
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	searcher, err := req.Query.Searcher(ctx, e.reader, e.mapping, search.SearcherOptions{})
	if err != nil {
		return nil, apperrors.Engine("building searcher", err)
	}
	defer searcher.Close()

	coll := collector.NewTopNCollector(limit, 0, search.SortOrder{&search.SortScore{Desc: true}})
	if err := coll.Collect(ctx, searcher, e.reader); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, apperrors.Newf(apperrors.ErrTimeout, "collecting hits: %v", err)
		}
		return nil, apperrors.Engine("collecting hits", err)
	}
	matches := coll.Results()

	var gen *snippet.Generator
	if len(req.SnippetFields) > 0 {
		gen = snippet.New(req.MaxSnippetChars)
	}

	hits := make([]Hit, len(matches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, m := range matches {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return apperrors.Newf(apperrors.ErrTimeout, "loading documents: %v", err)
			}
			doc, err := e.project(m.ID)
			if err != nil {
				return err
			}
			hits[i] = Hit{ID: m.ID, Score: m.Score, Doc: doc}
			if gen != nil {
				hits[i].Snippets = snippets(gen, doc, req.SnippetFields, req.Highlights)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	e.logger.Debug("query executed",
		"limit", limit,
		"hits", len(hits),
		"snippet_fields", len(req.SnippetFields),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return &SearchResult{TotalHits: len(hits), Hits: hits}, nil
}

// project loads the stored fields of a hit and converts them back to the
// schema's types. Only the first value of each field is kept.
func (e *Executor) project(id string) (map[string]any, error) {
	out := make(map[string]any)
	doc, err := e.reader.Document(id)
	if err != nil {
		return nil, apperrors.Engine("loading document", err)
	}
	if doc == nil {
		return out, nil
	}
	doc.VisitFields(func(f bindex.Field) {
		name := f.Name()
		if _, seen := out[name]; seen {
			return
		}
		sf, ok := e.schema.Field(name)
		if !ok || !sf.Stored {
			return
		}
		if v, ok := storedValue(sf, f); ok {
			out[name] = v
		}
	})
	return out, nil
}

func storedValue(sf schema.Field, f bindex.Field) (any, bool) {
	switch sf.Type {
	case schema.Text:
		tf, ok := f.(bindex.TextField)
		if !ok {
			return nil, false
		}
		return tf.Text(), true
	case schema.Bool:
		bf, ok := f.(bindex.BooleanField)
		if !ok {
			return nil, false
		}
		b, err := bf.Boolean()
		return b, err == nil
	}
	nf, ok := f.(bindex.NumericField)
	if !ok {
		return nil, false
	}
	n, err := nf.Number()
	if err != nil {
		return nil, false
	}
	switch sf.Type {
	case schema.U64:
		return toUint64(n), true
	case schema.I64:
		return toInt64(n), true
	default:
		return n, true
	}
}

// Integers are stored as float64, so values near the type bounds round
// past them. They are clamped back into range.
func toUint64(n float64) uint64 {
	switch {
	case n >= 0x1p64:
		return math.MaxUint64
	case n <= 0:
		return 0
	}
	return uint64(n)
}

func toInt64(n float64) int64 {
	switch {
	case n >= 0x1p63:
		return math.MaxInt64
	case n < -0x1p63:
		return math.MinInt64
	}
	return int64(n)
}

// snippets renders one excerpt per requested field. A field without a
// match, or without a stored value in this document, yields "".
func snippets(gen *snippet.Generator, doc map[string]any, fields []string, hl query.Highlights) map[string]string {
	out := make(map[string]string, len(fields))
	for _, field := range fields {
		text, _ := doc[field].(string)
		out[field] = gen.Snippet(text, hl.Set(field))
	}
	return out
}
