// Package searcher exposes point-in-time readers over an index and the
// searchers that run term, parsed, range, prefix and fuzzy queries against
// them.
package searcher

import (
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/schema"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultExpansionCacheSize = 256

// Reader is an immutable view of the committed index state at the time it
// was created. Later commits are never observed. Close releases it early;
// otherwise it is released once the Reader becomes unreachable.
type Reader struct {
	snap          *indexer.Snapshot
	generation    uint64
	maxExpansions int
	expansions    *lru.Cache[query.FuzzyParams, []string]

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
	cleanup   runtime.Cleanup
	logger    *slog.Logger
}

type Option func(*Reader)

// WithMaxExpansions caps the number of dictionary terms a fuzzy query
// expands to. By default expansion is unbounded.
func WithMaxExpansions(n int) Option {
	return func(r *Reader) {
		if n > 0 {
			r.maxExpansions = n
		}
	}
}

func NewReader(idx *indexer.Index, opts ...Option) (*Reader, error) {
	snap, err := idx.Snapshot()
	if err != nil {
		return nil, err
	}
	gen, err := snap.Generation()
	if err != nil {
		_ = snap.Close()
		return nil, err
	}
	cache, err := lru.New[query.FuzzyParams, []string](defaultExpansionCacheSize)
	if err != nil {
		_ = snap.Close()
		return nil, apperrors.Newf(apperrors.ErrInternal, "creating expansion cache: %v", err)
	}
	r := &Reader{
		snap:       snap,
		generation: gen,
		expansions: cache,
		logger:     slog.Default().With("component", "reader", "path", idx.Path()),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.cleanup = runtime.AddCleanup(r, func(s *indexer.Snapshot) { _ = s.Close() }, snap)
	r.logger.Debug("reader opened", "generation", gen)
	return r, nil
}

// Generation is the commit generation this reader observes.
func (r *Reader) Generation() uint64 {
	return r.generation
}

func (r *Reader) Schema() *schema.Schema {
	return r.snap.Index().Schema()
}

func (r *Reader) Path() string {
	return r.snap.Index().Path()
}

// DocCount returns the number of documents visible to this reader.
func (r *Reader) DocCount() (uint64, error) {
	n, err := r.snap.Reader.DocCount()
	if err != nil {
		return 0, apperrors.Engine("counting documents", err)
	}
	return n, nil
}

// Close releases the snapshot. It is safe to call more than once.
func (r *Reader) Close() error {
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		r.cleanup.Stop()
		r.closeErr = r.snap.Close()
		r.logger.Debug("reader closed", "generation", r.generation)
	})
	return r.closeErr
}

func (r *Reader) checkOpen() error {
	if r.closed.Load() {
		return apperrors.Newf(apperrors.ErrIndexClosed, "reader for %s is closed", r.Path())
	}
	return nil
}

// expand returns the fuzzy expansion of p, computing it at most once per
// reader.
func (r *Reader) expand(p query.FuzzyParams) ([]string, error) {
	if terms, ok := r.expansions.Get(p); ok {
		return terms, nil
	}
	terms, err := query.Expand(r.snap.Reader, p, r.maxExpansions)
	if err != nil {
		return nil, err
	}
	r.expansions.Add(p, terms)
	r.logger.Debug("fuzzy expansion",
		"field", p.Field,
		"term", p.Term,
		"distance", p.Distance,
		"prefix", p.Prefix,
		"expansions", len(terms),
	)
	return terms, nil
}
