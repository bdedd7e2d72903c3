package searcher

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer"
)

// Manager hands out the newest Reader of an index to request handlers.
// Refresh swaps in a reader for the latest commit; a replaced reader is not
// closed explicitly because in-flight searches may still hold it, and is
// released once the last of them drops it.
type Manager struct {
	idx     *indexer.Index
	opts    []Option
	current atomic.Pointer[Reader]
	mu      sync.Mutex
	logger  *slog.Logger
}

func NewManager(idx *indexer.Index, opts ...Option) (*Manager, error) {
	m := &Manager{
		idx:    idx,
		opts:   opts,
		logger: slog.Default().With("component", "reader-manager", "path", idx.Path()),
	}
	if _, err := m.Refresh(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) Index() *indexer.Index {
	return m.idx
}

// Current returns the newest reader. It stays valid for as long as the
// caller holds it.
func (m *Manager) Current() *Reader {
	return m.current.Load()
}

// Searcher returns a searcher over the current reader.
func (m *Manager) Searcher() *Searcher {
	return NewSearcher(m.Current())
}

// Refresh opens a reader on the latest committed state unless the current
// one already observes it, and returns the generation now served.
func (m *Manager) Refresh() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old := m.current.Load()
	if old != nil && old.Generation() == m.idx.Generation() {
		return old.Generation(), nil
	}
	r, err := NewReader(m.idx, m.opts...)
	if err != nil {
		return 0, err
	}
	m.current.Store(r)
	if old != nil {
		m.logger.Info("reader refreshed", "from", old.Generation(), "to", r.Generation())
	}
	return r.Generation(), nil
}

// Close releases the current reader. Readers still held elsewhere are
// unaffected.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r := m.current.Swap(nil); r != nil {
		return r.Close()
	}
	return nil
}
