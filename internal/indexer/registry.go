package indexer

import (
	"log/slog"
	"sort"
	"sync"
)

// registry maps absolute index paths to their open handles so that two
// callers opening the same directory share one engine.
type registry struct {
	mu     sync.Mutex
	open   map[string]*Index
	logger *slog.Logger
}

var handles = &registry{
	open:   make(map[string]*Index),
	logger: slog.Default().With("component", "index-registry"),
}

// add records a freshly opened handle. The caller holds mu.
func (r *registry) add(idx *Index) {
	r.open[idx.path] = idx
	r.logger.Debug("index handle registered",
		"path", idx.path,
		"open_indexes", len(r.open),
	)
}

// remove drops a handle whose last reference was released. The caller
// holds mu.
func (r *registry) remove(idx *Index) {
	if current, ok := r.open[idx.path]; ok && current == idx {
		delete(r.open, idx.path)
	}
	r.logger.Debug("index handle released",
		"path", idx.path,
		"open_indexes", len(r.open),
	)
}

// OpenPaths lists the indexes currently open in this process.
func OpenPaths() []string {
	handles.mu.Lock()
	defer handles.mu.Unlock()
	paths := make([]string, 0, len(handles.open))
	for path := range handles.open {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// RefCount reports how many references are held on the index at path, or
// zero when it is not open.
func RefCount(path string) int {
	handles.mu.Lock()
	idx, ok := handles.open[path]
	handles.mu.Unlock()
	if !ok {
		return 0
	}
	idx.refMu.Lock()
	defer idx.refMu.Unlock()
	return idx.refs
}
