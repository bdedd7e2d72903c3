// Package ingestion defines the request, response and event types of the
// document ingestion paths, and the commit notification shared by them.
package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/document"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
)

// AddResponse is returned after documents are buffered in the writer.
type AddResponse struct {
	Accepted int `json:"accepted"`
	Pending  int `json:"pending"`
}

type CommitResponse struct {
	Committed  int    `json:"committed"`
	Generation uint64 `json:"generation"`
}

type RollbackResponse struct {
	Discarded int `json:"discarded"`
}

type StatsResponse struct {
	Path       string `json:"path"`
	Generation uint64 `json:"generation"`
	DocCount   uint64 `json:"doc_count"`
	Pending    int    `json:"pending"`
}

// IngestEvent is one document on the ingest stream. DocumentID is assigned
// by the producer and only used for ledger bookkeeping.
type IngestEvent struct {
	DocumentID string            `json:"document_id"`
	Document   document.Document `json:"document"`
	IngestedAt time.Time         `json:"ingested_at"`
}

// IndexCommitted is published after every non-empty commit.
type IndexCommitted struct {
	Generation  uint64    `json:"generation"`
	Documents   int       `json:"documents"`
	Source      string    `json:"source"`
	CommittedAt time.Time `json:"committed_at"`
}

// CommitHook is called after every non-empty commit, whichever path made it.
type CommitHook func(ctx context.Context, c IndexCommitted)

// SealHook is called with the writer locked, right after a commit or
// rollback has emptied it. Documents added under AddFunc before the seal
// belong to that commit; anything added later does not.
type SealHook func()

// RollbackHook is called after a rollback that discarded documents.
type RollbackHook func(ctx context.Context, discarded int)

// DecodeEvent reads an IngestEvent keeping document numbers as json.Number.
func DecodeEvent(data []byte) (IngestEvent, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var ev IngestEvent
	if err := dec.Decode(&ev); err != nil {
		return ev, apperrors.Newf(apperrors.ErrInvalidInput, "decoding ingest event: %v", err)
	}
	if ev.Document == nil {
		return ev, apperrors.New(apperrors.ErrInvalidInput, "ingest event has no document")
	}
	return ev, nil
}
