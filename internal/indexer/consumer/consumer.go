// Package consumer indexes documents from the ingest stream. Documents are
// buffered in the shared writer and committed every batchSize documents or
// every interval, whichever comes first.
package consumer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion/ledger"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/resilience"
	"github.com/google/uuid"
)

const shutdownFlushTimeout = 10 * time.Second

// Ledger tracks streamed documents. *ledger.Ledger implements it.
type Ledger interface {
	Buffered(ctx context.Context, e ledger.Entry) (bool, error)
	Committed(ctx context.Context, ids []string, generation uint64) error
	Failed(ctx context.Context, ids []string, reason string) error
}

type Pipeline struct {
	committer *ingestion.Committer
	ledger    Ledger
	metrics   *metrics.Metrics
	batchSize int
	interval  time.Duration
	logger    *slog.Logger

	mu sync.Mutex
	// ids of streamed documents in the writer, in arrival order
	pending []string
	// ids removed from the writer by the commit or rollback in progress
	sealed []string
}

// New wires a pipeline to committer. l and m may be nil. Commits made
// through any path settle the pipeline's pending documents.
func New(committer *ingestion.Committer, l Ledger, m *metrics.Metrics, cfg config.IngestConfig) *Pipeline {
	p := &Pipeline{
		committer: committer,
		ledger:    l,
		metrics:   m,
		batchSize: cfg.CommitBatchSize,
		interval:  cfg.CommitInterval,
		logger:    slog.Default().With("component", "index-consumer"),
	}
	committer.OnSeal(p.seal)
	committer.OnCommit(p.onCommit)
	committer.OnRollback(p.onRollback)
	return p
}

// HandleMessage is the kafka.MessageHandler for the ingest topic.
// Malformed or unconvertible documents are returned as permanent errors.
func (p *Pipeline) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	ev, err := ingestion.DecodeEvent(value)
	if err != nil {
		p.metrics.IngestMessage("invalid")
		p.logger.Warn("undecodable ingest event", "key", string(key), "error", err)
		return resilience.Permanent(err)
	}
	id := ev.DocumentID
	if id == "" {
		id = string(key)
	}
	if id == "" {
		id = uuid.NewString()
	}
	if err := validator.ValidateEvent(p.committer.Index().Schema(), id, ev.Document); err != nil {
		p.reject(ctx, id, err)
		return resilience.Permanent(err)
	}
	if p.ledger != nil {
		fresh, err := p.ledger.Buffered(ctx, ledger.Entry{DocumentID: id, IngestedAt: ev.IngestedAt})
		if err != nil {
			return err
		}
		if !fresh {
			p.metrics.IngestMessage("duplicate")
			return nil
		}
	}

	var full bool
	_, err = p.committer.AddFunc([]document.Document{ev.Document}, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.pending = append(p.pending, id)
		full = p.batchSize > 0 && len(p.pending) >= p.batchSize
	})
	if err != nil {
		p.reject(ctx, id, err)
		return resilience.Permanent(err)
	}
	p.metrics.IngestMessage("buffered")
	p.logger.Debug("document buffered", "document_id", id)

	if full {
		// A failed commit keeps the buffer; the interval loop retries it.
		if _, err := p.Flush(ctx); err != nil {
			p.logger.Error("batch commit failed", "error", err)
		}
	}
	return nil
}

// Flush commits whatever the writer holds.
func (p *Pipeline) Flush(ctx context.Context) (ingestion.CommitResponse, error) {
	return p.committer.Commit(ctx, "stream")
}

// Run commits on every interval tick until ctx ends, then makes a final
// commit so buffered documents are not lost on shutdown.
func (p *Pipeline) Run(ctx context.Context) error {
	if p.interval <= 0 {
		<-ctx.Done()
		return p.finalFlush()
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	p.logger.Info("commit loop started", "interval", p.interval, "batch_size", p.batchSize)
	for {
		select {
		case <-ctx.Done():
			return p.finalFlush()
		case <-ticker.C:
			if p.committer.Index().Pending() == 0 {
				continue
			}
			if _, err := p.Flush(ctx); err != nil {
				p.logger.Error("interval commit failed", "error", err)
			}
		}
	}
}

func (p *Pipeline) finalFlush() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownFlushTimeout)
	defer cancel()
	resp, err := p.Flush(ctx)
	if err != nil {
		p.logger.Error("final commit failed", "error", err)
		return err
	}
	p.logger.Info("commit loop stopped", "final_commit", resp.Committed)
	return nil
}

// Pending returns the ids of streamed documents awaiting commit.
func (p *Pipeline) Pending() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.pending))
	copy(out, p.pending)
	return out
}

// seal moves the ids the writer just released out of pending. It runs
// under the committer's writer lock, so later adds stay pending.
func (p *Pipeline) seal() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sealed = append(p.sealed, p.pending...)
	p.pending = nil
}

func (p *Pipeline) onCommit(ctx context.Context, ev ingestion.IndexCommitted) {
	ids := p.take()
	if p.ledger == nil || len(ids) == 0 {
		return
	}
	if err := p.ledger.Committed(ctx, ids, ev.Generation); err != nil {
		p.logger.Error("ledger update failed", "status", ledger.StatusCommitted, "count", len(ids), "error", err)
	}
}

func (p *Pipeline) onRollback(ctx context.Context, _ int) {
	ids := p.take()
	if p.ledger == nil || len(ids) == 0 {
		return
	}
	if err := p.ledger.Failed(ctx, ids, "rolled back"); err != nil {
		p.logger.Error("ledger update failed", "status", ledger.StatusFailed, "count", len(ids), "error", err)
	}
}

func (p *Pipeline) take() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := p.sealed
	p.sealed = nil
	return ids
}

func (p *Pipeline) reject(ctx context.Context, id string, err error) {
	p.metrics.IngestMessage("rejected")
	p.logger.Warn("document rejected", "document_id", id, "error", err)
	if p.ledger == nil {
		return
	}
	if lerr := p.ledger.Failed(ctx, []string{id}, err.Error()); lerr != nil {
		p.logger.Error("ledger update failed", "status", ledger.StatusFailed, "document_id", id, "error", lerr)
	}
}
