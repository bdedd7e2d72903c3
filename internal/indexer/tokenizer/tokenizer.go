// Package tokenizer owns the single text analyzer used for indexing, query
// analysis and snippet highlighting. Text is split on Unicode word
// boundaries and lower-cased; no stop-words are removed and no stemming is
// applied, so every indexed token can be matched by its surface form.
package tokenizer

import (
	"strings"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
)

// AnalyzerName is the name the analyzer is registered under in every index
// mapping.
const AnalyzerName = "searchcore_standard"

// Token represents a single normalised term, its position in the token
// stream and its byte span in the original text.
type Token struct {
	Term     string
	Position int
	Start    int
	End      int
}

var standard analysis.Analyzer = &analysis.DefaultAnalyzer{
	Tokenizer: unicode.NewUnicodeTokenizer(),
	TokenFilters: []analysis.TokenFilter{
		lowercase.NewLowerCaseFilter(),
	},
}

// Register adds the analyzer to an index mapping so the engine produces the
// same tokens Tokenize does.
func Register(im *mapping.IndexMappingImpl) error {
	return im.AddCustomAnalyzer(AnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": unicode.Name,
		"token_filters": []string{
			lowercase.Name,
		},
	})
}

// Tokenize breaks text into lower-cased tokens. Start and End are byte
// offsets into text, so callers can map tokens back onto the original.
func Tokenize(text string) []Token {
	if text == "" {
		return nil
	}
	stream := standard.Analyze([]byte(text))
	tokens := make([]Token, 0, len(stream))
	for i, tok := range stream {
		tokens = append(tokens, Token{
			Term:     string(tok.Term),
			Position: i,
			Start:    tok.Start,
			End:      tok.End,
		})
	}
	return tokens
}

// Terms returns only the normalised terms of text.
func Terms(text string) []string {
	tokens := Tokenize(text)
	terms := make([]string, len(tokens))
	for i, tok := range tokens {
		terms[i] = tok.Term
	}
	return terms
}

// Normalize trims and lower-cases a single term the way the analyzer does,
// without splitting it. Prefix and fuzzy inputs go through here.
func Normalize(term string) string {
	return strings.ToLower(strings.TrimSpace(term))
}
