//go:build integration

// Run with:
//
//	go test -v -tags=integration ./internal/ingestion/ledger/...
package ledger

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/postgres"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipIfNoPostgres(t *testing.T) *postgres.Client {
	t.Helper()
	port, _ := strconv.Atoi(envOrDefault("TEST_POSTGRES_PORT", "5432"))
	db, err := postgres.New(config.PostgresConfig{
		Host:         envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:         port,
		Database:     envOrDefault("TEST_POSTGRES_DB", "searchcore_test"),
		User:         envOrDefault("TEST_POSTGRES_USER", "searchcore"),
		Password:     envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:      "disable",
		MaxOpenConns: 2,
		MaxIdleConns: 1,
	})
	if err != nil {
		t.Skipf("skipping integration test: postgres unavailable: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func statusOf(t *testing.T, db *postgres.Client, id string) (Status, int64) {
	t.Helper()
	var s string
	var gen *int64
	require.NoError(t, db.DB.QueryRow(
		`SELECT status, generation FROM ingest_ledger WHERE document_id = $1`, id).Scan(&s, &gen))
	if gen == nil {
		return Status(s), 0
	}
	return Status(s), *gen
}

func TestLedgerLifecycle(t *testing.T) {
	db := skipIfNoPostgres(t)
	ctx := context.Background()
	l := New(db)
	require.NoError(t, l.EnsureSchema(ctx))

	a, b := uuid.NewString(), uuid.NewString()
	for _, id := range []string{a, b} {
		fresh, err := l.Buffered(ctx, Entry{DocumentID: id, IngestedAt: time.Now()})
		require.NoError(t, err)
		assert.True(t, fresh)
	}
	require.NoError(t, l.Committed(ctx, []string{a}, 42))
	s, gen := statusOf(t, db, a)
	assert.Equal(t, StatusCommitted, s)
	assert.Equal(t, int64(42), gen)

	fresh, err := l.Buffered(ctx, Entry{DocumentID: a, IngestedAt: time.Now()})
	require.NoError(t, err)
	assert.False(t, fresh, "committed documents are not buffered again")

	n, err := l.AbandonBuffered(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(1))
	s, _ = statusOf(t, db, b)
	assert.Equal(t, StatusFailed, s)

	c := uuid.NewString()
	require.NoError(t, l.Failed(ctx, []string{c}, "bad document"))
	s, _ = statusOf(t, db, c)
	assert.Equal(t, StatusFailed, s)

	counts, err := l.Counts(ctx)
	require.NoError(t, err)
	assert.Positive(t, counts[StatusCommitted])
}
