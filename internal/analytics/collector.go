package analytics

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/kafka"
)

const (
	defaultBufferSize = 10000
	exportBatchSize   = 100
	exportFlushEvery  = time.Second
)

// Producer is the subset of kafka.Producer used for event export.
type Producer interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Collector decouples request paths from aggregation. Track never blocks;
// events are dropped when the buffer is full.
type Collector struct {
	aggregator *Aggregator
	producer   Producer
	eventCh    chan Event
	done       chan struct{}
	logger     *slog.Logger
}

// NewCollector feeds agg. producer may be nil to skip export.
func NewCollector(agg *Aggregator, producer Producer, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Collector{
		aggregator: agg,
		producer:   producer,
		eventCh:    make(chan Event, bufferSize),
		done:       make(chan struct{}),
		logger:     slog.Default().With("component", "analytics-collector"),
	}
}

func (c *Collector) Aggregator() *Aggregator {
	return c.aggregator
}

// Start consumes events until ctx ends, then drains what is buffered.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(exportFlushEvery)
		defer ticker.Stop()
		batch := make([]kafka.Event, 0, exportBatchSize)
		for {
			select {
			case ev := <-c.eventCh:
				batch = c.handle(ctx, ev, batch)
			case <-ticker.C:
				batch = c.export(ctx, batch)
			case <-ctx.Done():
				batch = c.drain(batch)
				c.export(context.Background(), batch)
				return
			}
		}
	}()
	c.logger.Info("analytics collector started", "buffer_size", cap(c.eventCh), "export", c.producer != nil)
}

// Track queues ev for aggregation.
func (c *Collector) Track(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	select {
	case c.eventCh <- ev:
	default:
		c.logger.Warn("analytics event dropped (buffer full)", "type", ev.Type)
	}
}

// TrackCommit is an ingestion.CommitHook.
func (c *Collector) TrackCommit(_ context.Context, ev ingestion.IndexCommitted) {
	c.Track(Event{
		Type:       EventCommit,
		Documents:  ev.Documents,
		Generation: ev.Generation,
		Timestamp:  ev.CommittedAt,
	})
}

// Wait blocks until the collector goroutine has exited.
func (c *Collector) Wait() {
	<-c.done
}

func (c *Collector) handle(ctx context.Context, ev Event, batch []kafka.Event) []kafka.Event {
	c.aggregator.Record(ev)
	if c.producer == nil {
		return batch
	}
	batch = append(batch, kafka.Event{Key: string(ev.Type), Value: ev})
	if len(batch) >= exportBatchSize {
		return c.export(ctx, batch)
	}
	return batch
}

func (c *Collector) drain(batch []kafka.Event) []kafka.Event {
	for {
		select {
		case ev := <-c.eventCh:
			batch = c.handle(context.Background(), ev, batch)
		default:
			return batch
		}
	}
}

func (c *Collector) export(ctx context.Context, batch []kafka.Event) []kafka.Event {
	if c.producer == nil || len(batch) == 0 {
		return batch
	}
	if err := c.producer.PublishBatch(ctx, batch); err != nil {
		c.logger.Error("failed to export analytics events", "count", len(batch), "error", err)
	}
	return batch[:0]
}
