package ingestion

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/tracing"
)

// Committer is the single entry point to the index writer for both the
// HTTP and the stream paths. Commits and rollbacks are serialised so every
// hook call sees the generation its own commit produced.
type Committer struct {
	idx     *indexer.Index
	metrics *metrics.Metrics
	now     func() time.Time
	logger  *slog.Logger

	mu            sync.Mutex
	commitHooks   []CommitHook
	rollbackHooks []RollbackHook
	sealHooks     []SealHook

	// writeMu orders adds against the commit or rollback that empties the
	// writer. It is never held while hooks other than SealHooks run.
	writeMu sync.Mutex
}

// NewCommitter wraps idx. m may be nil.
func NewCommitter(idx *indexer.Index, m *metrics.Metrics) *Committer {
	return &Committer{
		idx:     idx,
		metrics: m,
		now:     time.Now,
		logger:  slog.Default().With("component", "committer", "path", idx.Path()),
	}
}

// OnCommit registers h to run, in registration order, after every
// non-empty commit.
func (c *Committer) OnCommit(h CommitHook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commitHooks = append(c.commitHooks, h)
}

func (c *Committer) OnRollback(h RollbackHook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollbackHooks = append(c.rollbackHooks, h)
}

// OnSeal registers h to run after every non-empty commit or rollback,
// before the commit or rollback hooks.
func (c *Committer) OnSeal(h SealHook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sealHooks = append(c.sealHooks, h)
}

func (c *Committer) Index() *indexer.Index {
	return c.idx
}

// Add buffers docs in order, stopping at the first one that fails to
// convert. Earlier documents stay buffered.
func (c *Committer) Add(docs []document.Document) (AddResponse, error) {
	return c.AddFunc(docs, nil)
}

// AddFunc is Add with buffered called, under the writer lock, once every
// document has been accepted. A commit cannot empty the writer between the
// add and buffered.
func (c *Committer) AddFunc(docs []document.Document, buffered func()) (AddResponse, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	err := c.idx.AddDocuments(docs)
	pending := c.idx.Pending()
	c.metrics.SetPending(pending)
	if err != nil {
		return AddResponse{Pending: pending}, err
	}
	if buffered != nil {
		buffered()
	}
	return AddResponse{Accepted: len(docs), Pending: pending}, nil
}

// drain runs op with the writer locked and seals when it removed anything.
func (c *Committer) drain(op func() (int, error)) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	n, err := op()
	if err == nil && n > 0 {
		for _, h := range c.sealHooks {
			h()
		}
	}
	c.metrics.SetPending(c.idx.Pending())
	return n, err
}

// Commit publishes the buffered documents. An empty buffer is a no-op that
// skips the hooks.
func (c *Committer) Commit(ctx context.Context, source string) (CommitResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, span := tracing.Start(ctx, "commit."+source)
	defer func() {
		span.End()
		span.Log(ctx, c.logger)
	}()

	start := c.now()
	n, err := c.drain(c.idx.Commit)
	c.metrics.ObserveCommit(source, c.now().Sub(start).Seconds(), n, err)
	if err != nil {
		c.logger.Error("commit failed", "source", source, "error", err)
		return CommitResponse{}, err
	}
	gen := c.idx.Generation()
	if n == 0 {
		return CommitResponse{Generation: gen}, nil
	}
	c.metrics.SetGeneration(gen)
	c.logger.Info("documents committed", "source", source, "docs", n, "generation", gen)
	ev := IndexCommitted{
		Generation:  gen,
		Documents:   n,
		Source:      source,
		CommittedAt: c.now().UTC(),
	}
	span.SetAttr("documents", n)
	span.SetAttr("generation", gen)
	hctx, hooks := tracing.Start(ctx, "hooks")
	for _, h := range c.commitHooks {
		h(hctx, ev)
	}
	hooks.End()
	return CommitResponse{Committed: n, Generation: gen}, nil
}

func (c *Committer) Rollback(ctx context.Context) RollbackResponse {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, _ := c.drain(func() (int, error) { return c.idx.Rollback(), nil })
	if n == 0 {
		return RollbackResponse{}
	}
	c.logger.Info("pending documents discarded", "count", n)
	for _, h := range c.rollbackHooks {
		h(ctx, n)
	}
	return RollbackResponse{Discarded: n}
}

func (c *Committer) Stats() (StatsResponse, error) {
	count, err := c.idx.DocCount()
	if err != nil {
		return StatsResponse{}, err
	}
	return StatsResponse{
		Path:       c.idx.Path(),
		Generation: c.idx.Generation(),
		DocCount:   count,
		Pending:    c.idx.Pending(),
	}, nil
}
