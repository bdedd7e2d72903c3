package main

import (
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextSearchCoversEveryKind(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		kind, path, params := nextSearch(rng, "title")
		seen[kind] = true
		assert.Contains(t, path, "/api/v1/search")
		if kind != "query" {
			assert.Equal(t, "title", params.Get("field"))
		}
	}
	assert.Equal(t, map[string]bool{"query": true, "term": true, "prefix": true, "fuzzy": true}, seen)
}

func TestStatsRecord(t *testing.T) {
	s := newStats()
	s.record("query", time.Millisecond, 200, true, nil)
	s.record("query", 2*time.Millisecond, 400, false, nil)
	s.record("query", 0, 0, false, errors.New("refused"))

	k := s.kinds["query"]
	assert.Equal(t, 3, k.requests)
	assert.Equal(t, 2, k.errors)
	assert.Equal(t, 1, k.cacheHits)
	assert.Len(t, k.latencies, 2)
	assert.Equal(t, map[int]int{200: 1, 400: 1}, s.status)
}

func TestPercentile(t *testing.T) {
	lat := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, time.Duration(5), percentile(lat, 50))
	assert.Equal(t, time.Duration(10), percentile(lat, 99))
	assert.Equal(t, time.Duration(0), percentile(nil, 50))
}
