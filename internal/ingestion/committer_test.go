package ingestion

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/schema"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCommitter(t *testing.T, m *metrics.Metrics) *Committer {
	t.Helper()
	sch := schema.New().
		AddField("title", schema.Text, schema.Options{Stored: true, Indexed: true}).
		AddField("views", schema.U64, schema.Options{Stored: true, Indexed: true})
	idx, err := indexer.Create(filepath.Join(t.TempDir(), "idx"), sch)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	c := NewCommitter(idx, m)
	c.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return c
}

func TestCommitterLifecycle(t *testing.T) {
	var got []IndexCommitted
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	c := newCommitter(t, m)
	c.OnCommit(func(_ context.Context, ev IndexCommitted) { got = append(got, ev) })
	var discarded []int
	c.OnRollback(func(_ context.Context, n int) { discarded = append(discarded, n) })
	ctx := context.Background()

	resp, err := c.Add([]document.Document{{"title": "a"}, {"title": "b"}})
	require.NoError(t, err)
	assert.Equal(t, AddResponse{Accepted: 2, Pending: 2}, resp)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PendingDocuments))

	committed, err := c.Commit(ctx, "stream")
	require.NoError(t, err)
	assert.Equal(t, CommitResponse{Committed: 2, Generation: 1}, committed)
	assert.Equal(t, []IndexCommitted{{
		Generation:  1,
		Documents:   2,
		Source:      "stream",
		CommittedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}}, got)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexGeneration))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DocsIndexedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommitsTotal.WithLabelValues("stream", "ok")))
	assert.Zero(t, testutil.ToFloat64(m.PendingDocuments))

	committed, err = c.Commit(ctx, "stream")
	require.NoError(t, err)
	assert.Equal(t, CommitResponse{Generation: 1}, committed)
	assert.Len(t, got, 1)

	_, err = c.Add([]document.Document{{"title": "c"}})
	require.NoError(t, err)
	assert.Equal(t, RollbackResponse{Discarded: 1}, c.Rollback(ctx))
	assert.Equal(t, RollbackResponse{}, c.Rollback(ctx))
	assert.Equal(t, []int{1}, discarded, "empty rollbacks do not notify")

	stats, err := c.Stats()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stats.DocCount)
	assert.Equal(t, uint64(1), stats.Generation)
	assert.Zero(t, stats.Pending)
}

func TestCommitterAddStopsAtFirstFailure(t *testing.T) {
	c := newCommitter(t, nil)
	resp, err := c.Add([]document.Document{{"title": "ok"}, {"views": "bad"}, {"title": "never"}})
	require.ErrorIs(t, err, apperrors.ErrFieldTypeMismatch)
	assert.Equal(t, "views", apperrors.FieldOf(err))
	assert.Equal(t, AddResponse{Pending: 1}, resp)
}

func TestSealPrecedesHooksAndExcludesLaterAdds(t *testing.T) {
	c := newCommitter(t, nil)
	ctx := context.Background()
	var events []string
	tracked := 0
	c.OnSeal(func() { events = append(events, "seal") })
	c.OnCommit(func(context.Context, IndexCommitted) {
		events = append(events, "commit")
		_, err := c.AddFunc([]document.Document{{"title": "late"}}, func() { tracked++ })
		require.NoError(t, err)
	})
	c.OnRollback(func(context.Context, int) { events = append(events, "rollback") })

	_, err := c.AddFunc([]document.Document{{"title": "a"}}, func() { tracked++ })
	require.NoError(t, err)
	resp, err := c.Commit(ctx, "http")
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Committed)
	assert.Equal(t, 2, tracked)
	assert.Equal(t, 1, c.Index().Pending())

	_, err = c.AddFunc([]document.Document{{"views": "bad"}}, func() { tracked++ })
	require.Error(t, err)
	assert.Equal(t, 2, tracked, "rejected documents are not reported as buffered")

	c.Rollback(ctx)
	_, err = c.Commit(ctx, "http")
	require.NoError(t, err)
	assert.Equal(t, []string{"seal", "commit", "seal", "rollback"}, events)
}

func TestCommitOnClosedIndex(t *testing.T) {
	c := newCommitter(t, nil)
	c.OnCommit(func(context.Context, IndexCommitted) { t.Fatal("hook called") })
	_, err := c.Add([]document.Document{{"title": "a"}})
	require.NoError(t, err)
	require.NoError(t, c.Index().Close())
	_, err = c.Commit(context.Background(), "http")
	assert.ErrorIs(t, err, apperrors.ErrIndexClosed)
}

func TestCommitHooksRunInOrder(t *testing.T) {
	c := newCommitter(t, nil)
	var order []string
	c.OnCommit(func(context.Context, IndexCommitted) { order = append(order, "refresh") })
	c.OnCommit(func(context.Context, IndexCommitted) { order = append(order, "publish") })
	_, err := c.Add([]document.Document{{"title": "a"}})
	require.NoError(t, err)
	_, err = c.Commit(context.Background(), "http")
	require.NoError(t, err)
	assert.Equal(t, []string{"refresh", "publish"}, order)
}

func TestDecodeEvent(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"document_id":"d1","document":{"views":18446744073709551615},"ingested_at":"2026-01-02T03:04:05Z"}`))
	require.NoError(t, err)
	assert.Equal(t, "d1", ev.DocumentID)
	v, err := document.Coerce(schema.Field{Name: "views", Type: schema.U64}, ev.Document["views"])
	require.NoError(t, err)
	assert.Equal(t, uint64(18446744073709551615), v)

	_, err = DecodeEvent([]byte(`{"document_id":"d2"}`))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	_, err = DecodeEvent([]byte(`not json`))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}
