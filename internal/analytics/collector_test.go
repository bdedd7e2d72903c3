package analytics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProducer struct {
	mu     sync.Mutex
	events []kafka.Event
	err    error
}

func (p *fakeProducer) PublishBatch(_ context.Context, events []kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, events...)
	return nil
}

func (p *fakeProducer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func TestCollectorAggregatesAndExports(t *testing.T) {
	producer := &fakeProducer{}
	c := NewCollector(NewAggregator(), producer, 16)
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)

	c.Track(search("elixir", 2, 5))
	c.TrackCommit(ctx, ingestion.IndexCommitted{Generation: 4, Documents: 3, CommittedAt: time.Now()})

	require.Eventually(t, func() bool {
		return c.Aggregator().Stats().Commits == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(1), c.Aggregator().Stats().TotalSearches)
	assert.Eventually(t, func() bool { return producer.count() == 2 }, 3*time.Second, 50*time.Millisecond,
		"ticker exports partial batches")

	cancel()
	c.Wait()
	producer.mu.Lock()
	defer producer.mu.Unlock()
	assert.Equal(t, "search", producer.events[0].Key)
	assert.Equal(t, "commit", producer.events[1].Key)
}

func TestCollectorDrainsOnShutdown(t *testing.T) {
	producer := &fakeProducer{}
	c := NewCollector(NewAggregator(), producer, 256)
	for i := 0; i < 150; i++ {
		c.Track(search("q", 1, 1))
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.Start(ctx)
	c.Wait()

	// the select may pick up some events before noticing cancellation
	assert.Equal(t, int64(150), c.Aggregator().Stats().TotalSearches)
	assert.Equal(t, 150, producer.count())
}

func TestCollectorDropsWhenFull(t *testing.T) {
	c := NewCollector(NewAggregator(), nil, 2)
	for i := 0; i < 5; i++ {
		c.Track(search("q", 1, 1))
	}
	assert.Len(t, c.eventCh, 2)
}

func TestCollectorExportFailureKeepsAggregating(t *testing.T) {
	producer := &fakeProducer{err: errors.New("broker down")}
	c := NewCollector(NewAggregator(), producer, 8)
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)
	c.Track(search("q", 0, 1))
	require.Eventually(t, func() bool {
		return c.Aggregator().Stats().ZeroResultCount == 1
	}, time.Second, 10*time.Millisecond)
	cancel()
	c.Wait()
	assert.Zero(t, producer.count())
}
