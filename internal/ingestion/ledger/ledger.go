// Package ledger records the state of every streamed document in
// PostgreSQL: BUFFERED once it is in the writer, then COMMITTED with the
// generation that made it visible, or FAILED with a reason.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/postgres"
	"github.com/lib/pq"
)

type Status string

const (
	StatusBuffered  Status = "BUFFERED"
	StatusCommitted Status = "COMMITTED"
	StatusFailed    Status = "FAILED"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS ingest_ledger (
	document_id TEXT PRIMARY KEY,
	status      TEXT NOT NULL,
	generation  BIGINT,
	reason      TEXT,
	ingested_at TIMESTAMPTZ,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS ingest_ledger_status_idx ON ingest_ledger (status);
`

// Ledger is backed by a PostgreSQL connection pool.
type Ledger struct {
	db     *postgres.Client
	logger *slog.Logger
}

func New(db *postgres.Client) *Ledger {
	return &Ledger{
		db:     db,
		logger: slog.Default().With("component", "ingest-ledger"),
	}
}

// EnsureSchema creates the ledger table if it does not exist.
func (l *Ledger) EnsureSchema(ctx context.Context) error {
	if _, err := l.db.DB.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("creating ledger schema: %w", err)
	}
	return nil
}

// Buffered records id as buffered. It reports false, without touching the
// row, when id was already committed; the caller should skip the document.
func (l *Ledger) Buffered(ctx context.Context, e Entry) (bool, error) {
	var fresh bool
	err := l.db.InTx(ctx, func(tx *sql.Tx) error {
		var id string
		err := tx.QueryRowContext(ctx,
			`INSERT INTO ingest_ledger (document_id, status, ingested_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (document_id) DO UPDATE
				SET status = EXCLUDED.status, reason = NULL, updated_at = NOW()
				WHERE ingest_ledger.status <> $4
			RETURNING document_id`,
			e.DocumentID, StatusBuffered, e.IngestedAt, StatusCommitted,
		).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		fresh = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("recording buffered document %s: %w", e.DocumentID, err)
	}
	if !fresh {
		l.logger.Info("duplicate document skipped", "document_id", e.DocumentID)
	}
	return fresh, nil
}

// Committed marks ids as visible at generation.
func (l *Ledger) Committed(ctx context.Context, ids []string, generation uint64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := l.db.DB.ExecContext(ctx,
		`UPDATE ingest_ledger
		SET status = $1, generation = $2, reason = NULL, updated_at = NOW()
		WHERE document_id = ANY($3)`,
		StatusCommitted, int64(generation), pq.Array(ids),
	)
	if err != nil {
		return fmt.Errorf("marking %d documents committed: %w", len(ids), err)
	}
	return nil
}

// Failed marks ids as failed, inserting rows that were never buffered.
func (l *Ledger) Failed(ctx context.Context, ids []string, reason string) error {
	if len(ids) == 0 {
		return nil
	}
	return l.db.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO ingest_ledger (document_id, status, reason)
			VALUES ($1, $2, $3)
			ON CONFLICT (document_id) DO UPDATE
				SET status = EXCLUDED.status, reason = EXCLUDED.reason, updated_at = NOW()`)
		if err != nil {
			return fmt.Errorf("preparing failure update: %w", err)
		}
		defer stmt.Close()
		for _, id := range ids {
			if _, err := stmt.ExecContext(ctx, id, StatusFailed, reason); err != nil {
				return fmt.Errorf("marking document %s failed: %w", id, err)
			}
		}
		return nil
	})
}

// AbandonBuffered marks every row still BUFFERED as FAILED. Buffered
// documents do not survive a restart, so this runs once at startup.
func (l *Ledger) AbandonBuffered(ctx context.Context) (int64, error) {
	res, err := l.db.DB.ExecContext(ctx,
		`UPDATE ingest_ledger SET status = $1, reason = $2, updated_at = NOW() WHERE status = $3`,
		StatusFailed, "lost before commit", StatusBuffered,
	)
	if err != nil {
		return 0, fmt.Errorf("abandoning buffered documents: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting abandoned documents: %w", err)
	}
	if n > 0 {
		l.logger.Warn("buffered documents abandoned", "count", n)
	}
	return n, nil
}

// Counts returns the number of rows per status.
func (l *Ledger) Counts(ctx context.Context) (map[Status]int64, error) {
	rows, err := l.db.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM ingest_ledger GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("counting ledger rows: %w", err)
	}
	defer rows.Close()
	out := make(map[Status]int64)
	for rows.Next() {
		var s string
		var n int64
		if err := rows.Scan(&s, &n); err != nil {
			return nil, fmt.Errorf("scanning ledger counts: %w", err)
		}
		out[Status(s)] = n
	}
	return out, rows.Err()
}
