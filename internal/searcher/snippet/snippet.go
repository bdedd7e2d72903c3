// Package snippet cuts a bounded excerpt out of a stored text value and marks
// the query terms inside it.
package snippet

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/schema"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/tokenizer"
)

const (
	DefaultMaxChars = 150

	openTag  = "<b>"
	closeTag = "</b>"
)

type Generator struct {
	maxChars int
}

// New returns a generator producing excerpts of at most maxChars
// characters, not counting markup. maxChars <= 0 selects the default.
func New(maxChars int) *Generator {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &Generator{maxChars: maxChars}
}

func (g *Generator) MaxChars() int {
	return g.maxChars
}

// Fields resolves the requested snippet fields. Unknown names fail with
// ErrFieldNotFound; fields that are not stored text are dropped.
func Fields(s *schema.Schema, names []string) ([]string, error) {
	out := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		f, err := s.Lookup(name)
		if err != nil {
			return nil, err
		}
		if f.Type != schema.Text || !f.Stored {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out, nil
}

type span struct {
	start, end int // byte offsets
	term       string
}

// Snippet returns the HTML excerpt of text around the densest cluster of
// terms, or "" when none of the terms occur in text.
func (g *Generator) Snippet(text string, terms map[string]struct{}) string {
	if len(terms) == 0 || text == "" {
		return ""
	}
	tokens := tokenizer.Tokenize(text)
	var matches []span
	for _, tok := range tokens {
		if _, ok := terms[tok.Term]; ok {
			matches = append(matches, span{start: tok.Start, end: tok.End, term: tok.Term})
		}
	}
	if len(matches) == 0 {
		return ""
	}

	runeAt := runeOffsets(text)
	first, last := g.bestWindow(matches, runeAt)
	ws, we := matches[first].start, matches[last].end

	if runeAt[we]-runeAt[ws] > g.maxChars {
		// a single match longer than the budget
		cut := byteAtRune(text, ws, g.maxChars)
		return openTag + html.EscapeString(text[ws:cut]) + closeTag
	}

	ws, we = g.widen(text, tokens, ws, we, runeAt)
	return render(text, ws, we, matches)
}

// bestWindow picks the run of matches fitting in maxChars that covers the
// most distinct terms, then the most matches, preferring earlier runs.
func (g *Generator) bestWindow(matches []span, runeAt []int) (int, int) {
	bestFirst, bestLast := 0, 0
	bestDistinct, bestCount := 0, 0
	for i := range matches {
		distinct := make(map[string]struct{})
		for j := i; j < len(matches); j++ {
			if j > i && runeAt[matches[j].end]-runeAt[matches[i].start] > g.maxChars {
				break
			}
			distinct[matches[j].term] = struct{}{}
			d, c := len(distinct), j-i+1
			if d > bestDistinct || (d == bestDistinct && c > bestCount) {
				bestFirst, bestLast = i, j
				bestDistinct, bestCount = d, c
			}
		}
	}
	return bestFirst, bestLast
}

// widen spends the remaining character budget on context: about a quarter
// before the first match and the rest after the last. Bounds snap to token
// edges so no word is cut.
func (g *Generator) widen(text string, tokens []tokenizer.Token, ws, we int, runeAt []int) (int, int) {
	budget := g.maxChars - (runeAt[we] - runeAt[ws])
	before := budget / 4

	start := ws
	for i := len(tokens) - 1; i >= 0; i-- {
		tok := tokens[i]
		if tok.Start >= ws {
			continue
		}
		if runeAt[ws]-runeAt[tok.Start] > before {
			break
		}
		start = tok.Start
	}
	if runeAt[ws] <= before {
		start = 0
	}
	budget -= runeAt[ws] - runeAt[start]

	end := we
	for _, tok := range tokens {
		if tok.End <= we {
			continue
		}
		if runeAt[tok.End]-runeAt[we] > budget {
			break
		}
		end = tok.End
	}
	if runeAt[len(text)]-runeAt[we] <= budget {
		end = len(text)
	}
	return start, end
}

func render(text string, ws, we int, matches []span) string {
	var b strings.Builder
	pos := ws
	for _, m := range matches {
		if m.start < ws || m.end > we {
			continue
		}
		b.WriteString(html.EscapeString(text[pos:m.start]))
		b.WriteString(openTag)
		b.WriteString(html.EscapeString(text[m.start:m.end]))
		b.WriteString(closeTag)
		pos = m.end
	}
	b.WriteString(html.EscapeString(text[pos:we]))
	return strings.TrimSpace(b.String())
}

// runeOffsets maps every byte offset of text, including len(text), to the
// number of runes before it.
func runeOffsets(text string) []int {
	out := make([]int, len(text)+1)
	n := 0
	for i := 0; i < len(text); {
		_, size := utf8.DecodeRuneInString(text[i:])
		for k := 0; k < size; k++ {
			out[i+k] = n
		}
		n++
		i += size
	}
	out[len(text)] = n
	return out
}

func byteAtRune(text string, from, runes int) int {
	i := from
	for n := 0; n < runes && i < len(text); n++ {
		_, size := utf8.DecodeRuneInString(text[i:])
		i += size
	}
	return i
}
