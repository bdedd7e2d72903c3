package analytics

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func search(query string, hits int, latency int64) Event {
	return Event{Type: EventSearch, Kind: "query", Query: query, TotalHits: hits, LatencyMs: latency}
}

func TestAggregatorStats(t *testing.T) {
	agg := NewAggregator()
	start := agg.startTime
	agg.now = func() time.Time { return start.Add(2 * time.Minute) }

	for i := 0; i < 3; i++ {
		agg.Record(search("elixir", 4, 10))
	}
	agg.Record(search("phoenix", 1, 20))
	agg.Record(search("cobol", 0, 30))
	agg.Record(Event{Type: EventSearch, Kind: "term", Query: "views:5", CacheHit: true, TotalHits: 2, LatencyMs: 1})
	agg.Record(Event{Type: EventSearch, Kind: "query", Query: "(bad", Failed: true})
	agg.Record(Event{Type: EventCommit, Documents: 7, Generation: 3})
	agg.Record(Event{Type: EventCommit, Documents: 2, Generation: 2})

	stats := agg.Stats()
	assert.Equal(t, int64(7), stats.TotalSearches)
	assert.Equal(t, int64(1), stats.FailedSearches)
	assert.Equal(t, map[string]int64{"query": 6, "term": 1}, stats.SearchesByKind)
	assert.Equal(t, int64(1), stats.CacheHits)
	assert.Equal(t, int64(1), stats.ZeroResultCount)
	assert.Equal(t, []QueryCount{{"elixir", 3}, {"cobol", 1}, {"phoenix", 1}, {"views:5", 1}}, stats.TopQueries)
	assert.Equal(t, []QueryCount{{"cobol", 1}}, stats.ZeroResultQueries)
	assert.InDelta(t, 3.5, stats.QueriesPerMinute, 0.001)
	assert.Equal(t, int64(2), stats.Commits)
	assert.Equal(t, int64(9), stats.DocsCommitted)
	assert.Equal(t, uint64(3), stats.LastGeneration)

	// latencies 1, 10, 10, 10, 20, 30
	assert.InDelta(t, 81.0/6, stats.AvgLatencyMs, 0.001)
	assert.Equal(t, int64(10), stats.P50LatencyMs)
	assert.Equal(t, int64(30), stats.P99LatencyMs)
}

func TestAggregatorEmpty(t *testing.T) {
	stats := NewAggregator().Stats()
	assert.Zero(t, stats.TotalSearches)
	assert.Zero(t, stats.P95LatencyMs)
	assert.Empty(t, stats.TopQueries)
}

func TestAggregatorLatencyRing(t *testing.T) {
	agg := NewAggregator()
	for i := 0; i < maxLatencySamples; i++ {
		agg.Record(search("", 1, 1000))
	}
	for i := 0; i < maxLatencySamples; i++ {
		agg.Record(search("", 1, 1))
	}
	require.Len(t, agg.latencies, maxLatencySamples)
	stats := agg.Stats()
	assert.Equal(t, int64(1), stats.P99LatencyMs, "old samples are overwritten")
	assert.Empty(t, stats.TopQueries, "empty queries are not ranked")
}

func TestTopNLimit(t *testing.T) {
	counts := make(map[string]int64)
	for i := 0; i < 20; i++ {
		counts[fmt.Sprintf("q%02d", i)] = int64(i)
	}
	top := topN(counts, topQueryCount)
	require.Len(t, top, topQueryCount)
	assert.Equal(t, QueryCount{"q19", 19}, top[0])
	assert.Equal(t, QueryCount{"q10", 10}, top[9])
}

func TestPercentile(t *testing.T) {
	sorted := []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, int64(6), percentile(sorted, 50))
	assert.Equal(t, int64(10), percentile(sorted, 99))
	assert.Equal(t, int64(0), percentile(nil, 50))
}
