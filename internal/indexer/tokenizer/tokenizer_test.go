package tokenizer

import (
	"strings"
	"testing"

	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenizeLowercasesAndSplits(t *testing.T) {
	tokens := Tokenize("Elixir Guide: the Phoenix-Framework")
	assert.Equal(t, []string{"elixir", "guide", "the", "phoenix", "framework"}, termsOf(tokens))
}

func TestTokenizeKeepsStopWordsAndSuffixes(t *testing.T) {
	assert.Equal(t, []string{"running", "is", "not", "the", "end"}, Terms("Running is NOT the end"))
}

func TestTokenizeOffsets(t *testing.T) {
	text := "Hello, Wörld again"
	tokens := Tokenize(text)
	require.Len(t, tokens, 3)
	for i, tok := range tokens {
		assert.Equal(t, i, tok.Position)
		assert.Equal(t, tok.Term, strings.ToLower(text[tok.Start:tok.End]))
	}
	assert.Equal(t, "wörld", tokens[1].Term)
}

func TestTokenizeEmpty(t *testing.T) {
	assert.Empty(t, Tokenize(""))
	assert.Empty(t, Tokenize("  ,;  "))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "elix", Normalize("ELix"))
	assert.Equal(t, "elix", Normalize("  Elix\t"))
	assert.Empty(t, Normalize("   "))
}

func TestRegisterAddsAnalyzer(t *testing.T) {
	im := mapping.NewIndexMapping()
	require.NoError(t, Register(im))
	im.DefaultAnalyzer = AnalyzerName

	analyzer := im.AnalyzerNamed(AnalyzerName)
	require.NotNil(t, analyzer)
	stream := analyzer.Analyze([]byte("Phoenix Framework"))
	require.Len(t, stream, 2)
	assert.Equal(t, "phoenix", string(stream[0].Term))
}

func termsOf(tokens []Token) []string {
	out := make([]string, len(tokens))
	for i, tok := range tokens {
		out[i] = tok.Term
	}
	return out
}
