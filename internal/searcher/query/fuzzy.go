package query

import (
	"container/heap"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/schema"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
	bquery "github.com/blevesearch/bleve/v2/search/query"
	bindex "github.com/blevesearch/bleve_index_api"
	"github.com/blevesearch/vellum/levenshtein"
)

const MaxDistance = 2

// FuzzyParams identifies one fuzzy expansion. It is comparable so that
// expansions can be cached per snapshot.
type FuzzyParams struct {
	Field         string
	Term          string
	Distance      int
	Transposition bool
	Prefix        bool
}

// CheckFuzzy validates p against the schema before anything touches the
// engine and returns p with its term normalized.
func CheckFuzzy(s *schema.Schema, p FuzzyParams) (FuzzyParams, error) {
	if _, err := TextField(s, p.Field); err != nil {
		return p, err
	}
	if p.Distance < 0 || p.Distance > MaxDistance {
		return p, apperrors.ForField(apperrors.ErrInvalidDistance, p.Field, "distance must be 0, 1 or 2, got %d", p.Distance)
	}
	p.Term = tokenizer.Normalize(p.Term)
	if p.Term == "" {
		return p, apperrors.ForField(apperrors.ErrInvalidInput, p.Field, "fuzzy term is empty")
	}
	return p, nil
}

type builderKey struct {
	distance      uint8
	transposition bool
}

// Building the parametric tables is the expensive part, so each
// (distance, transposition) builder is made once per process.
var automata = struct {
	mu       sync.Mutex
	builders map[builderKey]*levenshtein.LevenshteinAutomatonBuilder
}{builders: make(map[builderKey]*levenshtein.LevenshteinAutomatonBuilder)}

func builderFor(distance uint8, transposition bool) (*levenshtein.LevenshteinAutomatonBuilder, error) {
	key := builderKey{distance: distance, transposition: transposition}
	automata.mu.Lock()
	defer automata.mu.Unlock()
	if b, ok := automata.builders[key]; ok {
		return b, nil
	}
	b, err := levenshtein.NewLevenshteinAutomatonBuilder(distance, transposition)
	if err != nil {
		return nil, err
	}
	automata.builders[key] = b
	return b, nil
}

// Expand returns the dictionary terms of p.Field within p.Distance edits
// of p.Term, closest first. With p.Prefix a term matches when one of its
// prefixes is within the distance. A max > 0 keeps only the max closest
// terms; otherwise every match is returned. p must have passed CheckFuzzy.
func Expand(r bindex.IndexReader, p FuzzyParams, max int) ([]string, error) {
	if p.Distance == 0 && !p.Prefix {
		return []string{p.Term}, nil
	}

	var (
		dict bindex.FieldDict
		dfa  *levenshtein.DFA
		err  error
	)
	if p.Distance == 0 {
		dict, err = r.FieldDictPrefix(p.Field, []byte(p.Term))
	} else {
		var b *levenshtein.LevenshteinAutomatonBuilder
		b, err = builderFor(uint8(p.Distance), p.Transposition)
		if err != nil {
			return nil, apperrors.Engine("building levenshtein automaton", err)
		}
		dfa, err = b.BuildDfa(p.Term, uint8(p.Distance))
		if err != nil {
			return nil, apperrors.Engine("building levenshtein automaton", err)
		}
		dict, err = r.FieldDict(p.Field)
	}
	if err != nil {
		return nil, apperrors.Engine("reading term dictionary", err)
	}
	defer dict.Close()

	query := []rune(p.Term)
	h := &candidateHeap{}
	for {
		entry, err := dict.Next()
		if err != nil {
			return nil, apperrors.Engine("reading term dictionary", err)
		}
		if entry == nil {
			break
		}
		if dfa != nil && !accepts(dfa, entry.Term, p.Prefix) {
			continue
		}
		full, best := editDistance(query, []rune(entry.Term), p.Transposition)
		d := full
		if p.Prefix {
			d = best
		}
		heap.Push(h, candidate{term: entry.Term, distance: d, count: entry.Count})
		if max > 0 && h.Len() > max {
			heap.Pop(h)
		}
	}

	out := make([]string, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(candidate).term
	}
	return out, nil
}

// Fuzzy matches any of the expanded terms in field. No terms matches
// nothing.
func Fuzzy(field string, terms []string) bquery.Query {
	if len(terms) == 0 {
		return bquery.NewMatchNoneQuery()
	}
	alternatives := make([]bquery.Query, len(terms))
	for i, t := range terms {
		q := bquery.NewTermQuery(t)
		q.SetField(field)
		alternatives[i] = q
	}
	if len(alternatives) == 1 {
		return alternatives[0]
	}
	return bquery.NewDisjunctionQuery(alternatives)
}

func accepts(dfa *levenshtein.DFA, term string, prefix bool) bool {
	s := dfa.Start()
	if prefix && dfa.IsMatch(s) {
		return true
	}
	for i := 0; i < len(term); i++ {
		s = dfa.Accept(s, term[i])
		if !dfa.CanMatch(s) {
			return false
		}
		if prefix && dfa.IsMatch(s) {
			return true
		}
	}
	return dfa.IsMatch(s)
}

// editDistance returns the distance from a to all of b and the smallest
// distance from a to any prefix of b. With transposition an adjacent swap
// costs one edit.
func editDistance(a, b []rune, transposition bool) (full, prefix int) {
	m, n := len(a), len(b)
	d := make([][]int, m+1)
	for i := range d {
		d[i] = make([]int, n+1)
		d[i][0] = i
	}
	for j := 0; j <= n; j++ {
		d[0][j] = j
	}
	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			v := min(d[i-1][j]+1, d[i][j-1]+1, d[i-1][j-1]+cost)
			if transposition && i > 1 && j > 1 && a[i-1] == b[j-2] && a[i-2] == b[j-1] {
				v = min(v, d[i-2][j-2]+1)
			}
			d[i][j] = v
		}
	}
	prefix = d[m][0]
	for j := 1; j <= n; j++ {
		prefix = min(prefix, d[m][j])
	}
	return d[m][n], prefix
}

type candidate struct {
	term     string
	distance int
	count    uint64
}

// candidateHeap keeps the worst candidate on top so that the closest terms
// survive when it is trimmed.
type candidateHeap []candidate

func (h candidateHeap) Len() int { return len(h) }

func (h candidateHeap) Less(i, j int) bool {
	if h[i].distance != h[j].distance {
		return h[i].distance > h[j].distance
	}
	if h[i].count != h[j].count {
		return h[i].count < h[j].count
	}
	return h[i].term > h[j].term
}

func (h candidateHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *candidateHeap) Push(x interface{}) {
	*h = append(*h, x.(candidate))
}

func (h *candidateHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
