package tokenizer

import (
	"fmt"
	"strings"
	"testing"
)

var sampleTexts = map[string]string{
	"short": "The quick brown fox jumps over the lazy dog",
	"medium": `Embedded search engines keep an inverted index per field and answer
        term, phrase and range queries against a point-in-time snapshot. Writers
        buffer documents until a commit makes them visible to new readers, while
        readers opened earlier keep serving the generation they were opened on.`,
	"long": strings.Repeat(`Snippets are built by analysing the stored text again,
        locating the densest window of matching tokens and wrapping each match in
        highlight markers. Fuzzy queries expand a term into every indexed term within
        the requested edit distance before scoring. `, 20),
	"unicode": strings.Repeat("Größenordnung naïve café Ελληνικά данные 東京 ", 10),
}

func BenchmarkTokenize(b *testing.B) {
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = Tokenize(text)
			}
		})
	}
}

func BenchmarkTokenizeParallel(b *testing.B) {
	text := sampleTexts["medium"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = Tokenize(text)
		}
	})
}

func BenchmarkTermsVaryingSize(b *testing.B) {
	base := "inverted index snapshot generation commit "
	for _, size := range []int{10, 100, 1000, 10000} {
		text := strings.Repeat(base, size/len(base)+1)[:size]
		b.Run(fmt.Sprintf("bytes_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = Terms(text)
			}
		})
	}
}
