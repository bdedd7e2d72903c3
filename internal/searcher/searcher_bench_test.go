package searcher

import (
	"context"
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/schema"
)

var benchWords = []string{
	"elixir", "phoenix", "erlang", "beam", "process", "supervisor", "actor",
	"message", "mailbox", "genserver", "otp", "release", "cluster", "node",
}

func benchSearcher(b *testing.B, docs int) *Searcher {
	b.Helper()
	s := schema.New().
		AddField("title", schema.Text, all).
		AddField("body", schema.Text, all).
		AddField("views", schema.U64, all)
	batch := make([]document.Document, docs)
	for i := range batch {
		batch[i] = document.Document{
			"title": fmt.Sprintf("%s %s", benchWords[i%len(benchWords)], benchWords[(i/3)%len(benchWords)]),
			"body": fmt.Sprintf("%s %s %s %s",
				benchWords[(i*7)%len(benchWords)],
				benchWords[(i*11)%len(benchWords)],
				benchWords[(i*13)%len(benchWords)],
				benchWords[(i*5)%len(benchWords)]),
			"views": uint64(i),
		}
	}
	return newSearcher(b, newIndex(b, s, batch...))
}

func BenchmarkSearch(b *testing.B) {
	ctx := context.Background()
	for _, size := range []int{1000, 10000} {
		s := benchSearcher(b, size)
		fields := []string{"title", "body"}
		cases := []struct {
			name string
			run  func() (*SearchResult, error)
		}{
			{"term", func() (*SearchResult, error) { return s.Term(ctx, "title", "elixir", 10) }},
			{"query", func() (*SearchResult, error) { return s.Query(ctx, "elixir AND (beam OR otp)", fields, 10) }},
			{"snippets", func() (*SearchResult, error) {
				return s.QueryWithSnippets(ctx, "supervisor", fields, Snippets{Fields: fields, MaxChars: 150}, 10)
			}},
			{"range", func() (*SearchResult, error) {
				return SearchRange(ctx, s, "views", uint64(100), uint64(500), IncludeBoth, 10)
			}},
			{"prefix", func() (*SearchResult, error) { return s.Prefix(ctx, "body", "mes", 10) }},
			{"fuzzy", func() (*SearchResult, error) { return s.Fuzzy(ctx, "body", "supervsor", 2, true, 10) }},
		}
		for _, c := range cases {
			b.Run(fmt.Sprintf("%s/docs_%d", c.name, size), func(b *testing.B) {
				b.ReportAllocs()
				for i := 0; i < b.N; i++ {
					if _, err := c.run(); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}
