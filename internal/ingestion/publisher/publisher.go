// Package publisher writes to the Kafka topics around the index: documents
// onto the ingest stream, and commit notifications once a generation is
// visible.
package publisher

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/resilience"
	"github.com/google/uuid"
)

// Producer is the subset of kafka.Producer used here.
type Producer interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

type Publisher struct {
	documents Producer
	commits   Producer
	retry     resilience.RetryConfig
	now       func() time.Time
	logger    *slog.Logger
}

// New builds a Publisher. Either producer may be nil, which disables that
// direction.
func New(documents, commits Producer) *Publisher {
	return &Publisher{
		documents: documents,
		commits:   commits,
		retry: resilience.RetryConfig{
			MaxAttempts:  5,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     5 * time.Second,
		},
		now:    time.Now,
		logger: slog.Default().With("component", "publisher"),
	}
}

// StreamEnabled reports whether documents can be sent to the ingest stream.
func (p *Publisher) StreamEnabled() bool {
	return p != nil && p.documents != nil
}

// PublishDocuments assigns each document an id and sends them to the
// ingest stream in one batch. The ids are returned in input order.
func (p *Publisher) PublishDocuments(ctx context.Context, docs []document.Document) ([]string, error) {
	ids := make([]string, len(docs))
	events := make([]kafka.Event, len(docs))
	ingestedAt := p.now().UTC()
	for i, doc := range docs {
		ids[i] = uuid.NewString()
		events[i] = kafka.Event{
			Key: ids[i],
			Value: ingestion.IngestEvent{
				DocumentID: ids[i],
				Document:   doc,
				IngestedAt: ingestedAt,
			},
		}
	}
	if err := p.documents.PublishBatch(ctx, events); err != nil {
		return nil, err
	}
	p.logger.Info("documents published", "count", len(ids))
	return ids, nil
}

// NotifyCommit publishes an IndexCommitted event, retrying with backoff.
// Failures are logged; the commit itself has already succeeded.
func (p *Publisher) NotifyCommit(ctx context.Context, ev ingestion.IndexCommitted) {
	if p.commits == nil {
		return
	}
	event := kafka.Event{Key: strconv.FormatUint(ev.Generation, 10), Value: ev}
	err := resilience.Retry(ctx, "publish index committed", p.retry, func() error {
		return p.commits.PublishBatch(ctx, []kafka.Event{event})
	})
	if err != nil {
		p.logger.Error("failed to publish commit notification",
			"generation", ev.Generation,
			"documents", ev.Documents,
			"error", err,
		)
		return
	}
	p.logger.Debug("commit notification published", "generation", ev.Generation)
}
