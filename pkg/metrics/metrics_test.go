package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveSearch(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveSearch("query", "miss", 0.01, 3, nil)
	m.ObserveSearch("query", "hit", 0.001, 0, nil)
	m.ObserveSearch("fuzzy", "miss", 0.01, 0, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("query", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("query", "zero_result")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("fuzzy", "error")))
}

func TestObserveCommit(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveCommit("http", 0.2, 5, nil)
	m.ObserveCommit("stream", 0.1, 0, errors.New("disk full"))
	m.SetGeneration(7)
	m.SetPending(2)

	assert.Equal(t, 5.0, testutil.ToFloat64(m.DocsIndexedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommitsTotal.WithLabelValues("http", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommitsTotal.WithLabelValues("stream", "error")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.IndexGeneration))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PendingDocuments))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveSearch("query", "miss", 0, 0, nil)
		m.ObserveCommit("http", 0, 1, nil)
		m.CacheHit()
		m.CacheMiss()
		m.SetPending(1)
		m.SetGeneration(1)
		m.IngestMessage("buffered")
		m.SetBreakerState("cache", 1)
	})
}

func TestHandlerExposesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.CacheHit()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cache_hits_total 1")
}
