package executor

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/schema"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var all = schema.Options{Stored: true, Indexed: true}

func newExecutor(t *testing.T, s *schema.Schema, docs ...document.Document) *Executor {
	t.Helper()
	idx, err := indexer.Create(filepath.Join(t.TempDir(), "idx"), s)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	require.NoError(t, idx.AddDocuments(docs))
	_, err = idx.Commit()
	require.NoError(t, err)

	snap, err := idx.Snapshot()
	require.NoError(t, err)
	t.Cleanup(func() { _ = snap.Close() })
	return New(snap.Reader, s, idx.Mapping())
}

func parse(t *testing.T, s *schema.Schema, text string, fields ...string) *query.Compiled {
	t.Helper()
	c, err := query.Parse(s, text, fields)
	require.NoError(t, err)
	return c
}

func TestExecuteProjectsStoredFields(t *testing.T) {
	s := schema.New().
		AddField("title", schema.Text, all).
		AddField("views", schema.U64, all).
		AddField("delta", schema.I64, all).
		AddField("rating", schema.F64, all).
		AddField("draft", schema.Bool, all).
		AddField("secret", schema.Text, schema.Options{Indexed: true})
	e := newExecutor(t, s, document.Document{
		"title":  "Elixir Guide",
		"views":  42,
		"delta":  -3,
		"rating": 4.5,
		"draft":  true,
		"secret": "hidden",
	})

	res, err := e.Execute(context.Background(), Request{Query: parse(t, s, "elixir", "title").Query})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)

	doc := res.Hits[0].Doc
	assert.Equal(t, "Elixir Guide", doc["title"])
	assert.Equal(t, uint64(42), doc["views"])
	assert.Equal(t, int64(-3), doc["delta"])
	assert.Equal(t, 4.5, doc["rating"])
	assert.Equal(t, true, doc["draft"])
	assert.NotContains(t, doc, "secret")
	assert.Nil(t, res.Hits[0].Snippets)
}

func TestExecuteProjectsIntegerBounds(t *testing.T) {
	s := schema.New().
		AddField("title", schema.Text, all).
		AddField("views", schema.U64, all).
		AddField("delta", schema.I64, all)
	e := newExecutor(t, s,
		document.Document{"title": "max", "views": uint64(math.MaxUint64), "delta": int64(math.MaxInt64)},
		document.Document{"title": "min", "views": uint64(0), "delta": int64(math.MinInt64)},
	)

	tests := []struct {
		title string
		views uint64
		delta int64
	}{
		{"max", math.MaxUint64, math.MaxInt64},
		{"min", 0, math.MinInt64},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			res, err := e.Execute(context.Background(), Request{Query: parse(t, s, "title:"+tt.title).Query})
			require.NoError(t, err)
			require.Len(t, res.Hits, 1)
			assert.Equal(t, tt.views, res.Hits[0].Doc["views"])
			assert.Equal(t, tt.delta, res.Hits[0].Doc["delta"])
		})
	}
}

func TestClampedConversions(t *testing.T) {
	assert.Equal(t, uint64(math.MaxUint64), toUint64(0x1p64))
	assert.Equal(t, uint64(1<<63), toUint64(0x1p63))
	assert.Equal(t, uint64(0), toUint64(-1))
	assert.Equal(t, int64(math.MaxInt64), toInt64(0x1p63))
	assert.Equal(t, int64(math.MinInt64), toInt64(-0x1p63))
	assert.Equal(t, int64(math.MinInt64), toInt64(-0x1p64))
	assert.Equal(t, int64(-3), toInt64(-3))
}

func TestExecuteLimitAndOrder(t *testing.T) {
	s := schema.New().AddField("body", schema.Text, all)
	var docs []document.Document
	for i := 1; i <= 15; i++ {
		docs = append(docs, document.Document{"body": fmt.Sprintf("go %s", strings.Repeat("search ", i))})
	}
	e := newExecutor(t, s, docs...)
	q := parse(t, s, "go", "body").Query

	res, err := e.Execute(context.Background(), Request{Query: q})
	require.NoError(t, err)
	assert.Equal(t, DefaultLimit, res.TotalHits)
	assert.Len(t, res.Hits, DefaultLimit)
	for i := 1; i < len(res.Hits); i++ {
		assert.GreaterOrEqual(t, res.Hits[i-1].Score, res.Hits[i].Score)
	}

	res, err = e.Execute(context.Background(), Request{Query: q, Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, res.TotalHits)
}

func TestExecuteSnippets(t *testing.T) {
	s := schema.New().
		AddField("title", schema.Text, all).
		AddField("body", schema.Text, all)
	e := newExecutor(t, s, document.Document{
		"title": "Phoenix",
		"body":  "Elixir runs on the BEAM & loves <concurrency>",
	})
	c := parse(t, s, "body:elixir")

	res, err := e.Execute(context.Background(), Request{
		Query:         c.Query,
		SnippetFields: []string{"body", "title"},
		Highlights:    c.Highlights,
	})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)

	snips := res.Hits[0].Snippets
	assert.Contains(t, snips["body"], "<b>Elixir</b>")
	assert.Contains(t, snips["body"], "&amp;")
	assert.Contains(t, snips["body"], "&lt;concurrency&gt;")
	assert.Contains(t, snips, "title")
	assert.Equal(t, "", snips["title"])
}

func TestExecuteNoMatches(t *testing.T) {
	s := schema.New().AddField("title", schema.Text, all)
	e := newExecutor(t, s, document.Document{"title": "Elixir"})

	res, err := e.Execute(context.Background(), Request{Query: parse(t, s, "", "title").Query})
	require.NoError(t, err)
	assert.Equal(t, 0, res.TotalHits)
	assert.Empty(t, res.Hits)
}
