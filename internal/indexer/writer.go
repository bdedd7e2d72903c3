package indexer

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/batch"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/document"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
	"github.com/google/uuid"
)

// Writer buffers converted documents and publishes them to the engine on
// Commit. All mutating calls are serialised by one lock per index; readers
// never take it.
type Writer struct {
	mu      sync.Mutex
	idx     *Index
	pending *batch.Buffer
	logger  *slog.Logger
}

func newWriter(idx *Index) *Writer {
	return &Writer{
		idx:     idx,
		pending: batch.NewBuffer(),
		logger:  slog.Default().With("component", "writer", "path", idx.path),
	}
}

// AddDocument converts doc against the schema and buffers it. The document
// is not visible to any snapshot until Commit.
func (w *Writer) AddDocument(doc document.Document) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.addLocked(doc)
}

// AddDocuments buffers docs in order and stops at the first failure.
// Documents buffered before the failing one stay buffered.
func (w *Writer) AddDocuments(docs []document.Document) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for n, doc := range docs {
		if err := w.addLocked(doc); err != nil {
			return fmt.Errorf("document %d: %w", n, err)
		}
	}
	return nil
}

func (w *Writer) addLocked(doc document.Document) error {
	if err := w.idx.checkOpen(); err != nil {
		return err
	}
	fields, err := document.ToIndexable(w.idx.schema, doc)
	if err != nil {
		return err
	}
	w.pending.Add(fields)
	w.logger.Debug("document buffered",
		"pending", w.pending.DocCount(),
		"pending_bytes", w.pending.Size(),
	)
	return nil
}

// Commit writes every buffered document to the engine in one batch and
// returns how many were committed. Snapshots taken afterwards observe them;
// earlier snapshots do not. An empty buffer makes Commit a no-op. On
// failure the buffer is kept so the caller can retry or roll back.
func (w *Writer) Commit() (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	entries := w.pending.Snapshot()
	if len(entries) == 0 {
		return 0, nil
	}
	if err := w.idx.checkOpen(); err != nil {
		return 0, err
	}

	start := time.Now()
	b := w.idx.engine.NewBatch()
	for _, entry := range entries {
		if err := b.Index(uuid.NewString(), entry.Fields); err != nil {
			return 0, apperrors.Engine("buffering batch", err)
		}
	}
	next := w.idx.generation.Load() + 1
	b.SetInternal([]byte(generationKey), encodeGeneration(next))
	if err := w.idx.engine.Batch(b); err != nil {
		w.logger.Error("commit failed",
			"pending", len(entries),
			"error", err,
		)
		return 0, apperrors.Engine("committing batch", err)
	}
	w.idx.generation.Store(next)
	w.pending.Reset()

	w.logger.Info("commit complete",
		"docs", len(entries),
		"generation", next,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return len(entries), nil
}

// Rollback discards every buffered document and returns how many were
// dropped. Committed data is untouched.
func (w *Writer) Rollback() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := w.pending.DocCount()
	if n == 0 {
		return 0
	}
	w.pending.Reset()
	w.logger.Info("rollback complete", "discarded", n)
	return n
}

// Pending returns the number of buffered documents.
func (w *Writer) Pending() int {
	return w.pending.DocCount()
}
