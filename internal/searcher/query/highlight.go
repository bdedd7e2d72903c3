package query

import "sort"

// Highlights records, per field, the analyzed terms a query matches
// positively. Terms under an exclusion are never recorded.
type Highlights map[string]map[string]struct{}

func (h Highlights) Add(field string, terms ...string) {
	if len(terms) == 0 {
		return
	}
	set, ok := h[field]
	if !ok {
		set = make(map[string]struct{}, len(terms))
		h[field] = set
	}
	for _, t := range terms {
		set[t] = struct{}{}
	}
}

func (h Highlights) Has(field, term string) bool {
	_, ok := h[field][term]
	return ok
}

// Terms returns the sorted terms recorded for field.
func (h Highlights) Terms(field string) []string {
	set := h[field]
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Set returns the term set for field, or nil.
func (h Highlights) Set(field string) map[string]struct{} {
	return h[field]
}
