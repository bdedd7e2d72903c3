// Package indexer owns the index resource: a schema-bound engine handle that
// is shared by one transactional writer and any number of reader snapshots.
// Handles are reference counted and deduplicated per path within the
// process, so every caller of Create or Open on the same directory shares
// one engine instance.
package indexer

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/schema"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	bindex "github.com/blevesearch/bleve_index_api"
)

const (
	schemaKey     = "_searchcore_schema"
	generationKey = "_searchcore_generation"
	metaFile      = "index_meta.json"
)

type Index struct {
	path       string
	engine     bleve.Index
	schema     *schema.Schema
	generation atomic.Uint64

	refMu  sync.Mutex
	refs   int
	closed bool

	writerOnce sync.Once
	writer     *Writer

	logger *slog.Logger
}

// Create validates s and creates a new index at path, creating missing
// parent directories. If path already holds an index with an equal schema,
// that index is returned instead; a different schema fails with
// ErrIndexAlreadyExists. Nothing is written to disk when s is invalid.
func Create(path string, s *schema.Schema) (*Index, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrIndexCreateFailed, "resolving %s: %v", path, err)
	}

	handles.mu.Lock()
	defer handles.mu.Unlock()

	if existing, ok := handles.open[abs]; ok {
		if !existing.schema.Equal(s) {
			return nil, apperrors.Newf(apperrors.ErrIndexAlreadyExists, "%s holds an index with a different schema", abs)
		}
		if err := existing.retain(); err != nil {
			return nil, err
		}
		return existing, nil
	}

	if info, err := os.Stat(abs); err == nil {
		if !info.IsDir() {
			return nil, apperrors.Newf(apperrors.ErrIndexCreateFailed, "%s exists and is not a directory", abs)
		}
		if isIndexDir(abs) {
			idx, err := openEngine(abs)
			if err != nil {
				return nil, err
			}
			if !idx.schema.Equal(s) {
				_ = idx.engine.Close()
				return nil, apperrors.Newf(apperrors.ErrIndexAlreadyExists, "%s holds an index with a different schema", abs)
			}
			handles.add(idx)
			return idx, nil
		}
		empty, err := isEmptyDir(abs)
		if err != nil {
			return nil, apperrors.Newf(apperrors.ErrIndexCreateFailed, "reading %s: %v", abs, err)
		}
		if !empty {
			return nil, apperrors.Newf(apperrors.ErrIndexCreateFailed, "%s is not empty and holds no index", abs)
		}
		// the engine creates the directory itself
		if err := os.Remove(abs); err != nil {
			return nil, apperrors.Newf(apperrors.ErrIndexCreateFailed, "preparing %s: %v", abs, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, apperrors.Newf(apperrors.ErrIndexCreateFailed, "stat %s: %v", abs, err)
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, apperrors.Newf(apperrors.ErrIndexCreateFailed, "creating parent directories: %v", err)
	}
	m, err := buildMapping(s)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrIndexCreateFailed, "building mapping: %v", err)
	}
	engine, err := bleve.New(abs, m)
	if err != nil {
		if errors.Is(err, bleve.ErrorIndexPathExists) {
			return nil, apperrors.Newf(apperrors.ErrIndexAlreadyExists, "%s", abs)
		}
		return nil, apperrors.Newf(apperrors.ErrIndexCreateFailed, "%v", err)
	}
	descriptor, err := s.Encode()
	if err == nil {
		err = engine.SetInternal([]byte(schemaKey), descriptor)
	}
	if err != nil {
		_ = engine.Close()
		_ = os.RemoveAll(abs)
		return nil, apperrors.Newf(apperrors.ErrIndexCreateFailed, "persisting schema: %v", err)
	}

	idx := newIndex(abs, engine, schema.FromFields(s.Fields()))
	handles.add(idx)
	idx.logger.Info("index created", "fields", s.Len())
	return idx, nil
}

// Open returns a handle to the index stored at path, loading its schema.
func Open(path string) (*Index, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrIndexNotFound, "resolving %s: %v", path, err)
	}

	handles.mu.Lock()
	defer handles.mu.Unlock()

	if existing, ok := handles.open[abs]; ok {
		if err := existing.retain(); err != nil {
			return nil, err
		}
		return existing, nil
	}
	if !isIndexDir(abs) {
		return nil, apperrors.Newf(apperrors.ErrIndexNotFound, "%s", abs)
	}
	idx, err := openEngine(abs)
	if err != nil {
		return nil, err
	}
	handles.add(idx)
	return idx, nil
}

// openEngine opens the engine at abs and restores schema and generation.
// The caller holds the registry lock.
func openEngine(abs string) (*Index, error) {
	engine, err := bleve.Open(abs)
	if err != nil {
		if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) || errors.Is(err, bleve.ErrorIndexMetaMissing) {
			return nil, apperrors.Newf(apperrors.ErrIndexNotFound, "%s", abs)
		}
		return nil, apperrors.Engine("opening index", err)
	}
	descriptor, err := engine.GetInternal([]byte(schemaKey))
	if err != nil {
		_ = engine.Close()
		return nil, apperrors.Engine("reading schema", err)
	}
	if len(descriptor) == 0 {
		_ = engine.Close()
		return nil, apperrors.Newf(apperrors.ErrIndexNotFound, "%s has no schema descriptor", abs)
	}
	s, err := schema.Decode(descriptor)
	if err != nil {
		_ = engine.Close()
		return nil, apperrors.Engine("loading schema", err)
	}
	idx := newIndex(abs, engine, s)
	raw, err := engine.GetInternal([]byte(generationKey))
	if err != nil {
		_ = engine.Close()
		return nil, apperrors.Engine("reading generation", err)
	}
	idx.generation.Store(decodeGeneration(raw))
	idx.logger.Info("index opened",
		"fields", s.Len(),
		"generation", idx.generation.Load(),
	)
	return idx, nil
}

func newIndex(abs string, engine bleve.Index, s *schema.Schema) *Index {
	return &Index{
		path:   abs,
		engine: engine,
		schema: s,
		refs:   1,
		logger: slog.Default().With("component", "index", "path", abs),
	}
}

// Schema returns the index schema. It must not be modified.
func (i *Index) Schema() *schema.Schema {
	return i.schema
}

func (i *Index) Path() string {
	return i.path
}

// Mapping returns the engine mapping used to compile queries.
func (i *Index) Mapping() mapping.IndexMapping {
	return i.engine.Mapping()
}

// Generation is the number of successful non-empty commits made to this
// index over its lifetime.
func (i *Index) Generation() uint64 {
	return i.generation.Load()
}

// DocCount returns the number of committed documents.
func (i *Index) DocCount() (uint64, error) {
	if err := i.checkOpen(); err != nil {
		return 0, err
	}
	n, err := i.engine.DocCount()
	if err != nil {
		return 0, apperrors.Engine("counting documents", err)
	}
	return n, nil
}

// Writer returns the index writer, creating it on first use.
func (i *Index) Writer() *Writer {
	i.writerOnce.Do(func() {
		i.writer = newWriter(i)
	})
	return i.writer
}

func (i *Index) AddDocument(doc document.Document) error {
	return i.Writer().AddDocument(doc)
}

func (i *Index) AddDocuments(docs []document.Document) error {
	return i.Writer().AddDocuments(docs)
}

func (i *Index) Commit() (int, error) {
	return i.Writer().Commit()
}

func (i *Index) Rollback() int {
	return i.Writer().Rollback()
}

// Pending returns the number of buffered, uncommitted documents.
func (i *Index) Pending() int {
	return i.Writer().Pending()
}

// Snapshot is an engine reader pinned to the committed state at the time it
// was taken. It keeps the index open until closed.
type Snapshot struct {
	Reader bindex.IndexReader
	idx    *Index
	once   sync.Once
	err    error
}

// Snapshot captures the current committed state.
func (i *Index) Snapshot() (*Snapshot, error) {
	if err := i.retain(); err != nil {
		return nil, err
	}
	adv, err := i.engine.Advanced()
	if err != nil {
		_ = i.release()
		return nil, apperrors.Engine("opening reader", err)
	}
	r, err := adv.Reader()
	if err != nil {
		_ = i.release()
		return nil, apperrors.Engine("opening reader", err)
	}
	return &Snapshot{Reader: r, idx: i}, nil
}

// Index returns the index the snapshot was taken from.
func (s *Snapshot) Index() *Index {
	return s.idx
}

// Generation returns the commit generation the snapshot observes.
func (s *Snapshot) Generation() (uint64, error) {
	raw, err := s.Reader.GetInternal([]byte(generationKey))
	if err != nil {
		return 0, apperrors.Engine("reading generation", err)
	}
	return decodeGeneration(raw), nil
}

// Close releases the engine reader and the index reference. It is safe to
// call more than once.
func (s *Snapshot) Close() error {
	s.once.Do(func() {
		if err := s.Reader.Close(); err != nil {
			s.err = apperrors.Engine("closing reader", err)
		}
		if err := s.idx.release(); err != nil && s.err == nil {
			s.err = err
		}
	})
	return s.err
}

// Close drops this caller's reference. The engine is closed once every
// handle and snapshot has been released; uncommitted documents are then
// discarded.
func (i *Index) Close() error {
	return i.release()
}

func (i *Index) retain() error {
	i.refMu.Lock()
	defer i.refMu.Unlock()
	if i.closed {
		return apperrors.Newf(apperrors.ErrIndexClosed, "%s", i.path)
	}
	i.refs++
	return nil
}

func (i *Index) release() error {
	handles.mu.Lock()
	defer handles.mu.Unlock()

	i.refMu.Lock()
	if i.closed {
		i.refMu.Unlock()
		return apperrors.Newf(apperrors.ErrIndexClosed, "%s", i.path)
	}
	i.refs--
	last := i.refs == 0
	if last {
		i.closed = true
	}
	i.refMu.Unlock()
	if !last {
		return nil
	}

	handles.remove(i)
	if i.writer != nil {
		if n := i.writer.Pending(); n > 0 {
			i.logger.Warn("closing index with uncommitted documents", "discarded", n)
		}
	}
	if err := i.engine.Close(); err != nil {
		return apperrors.Engine("closing index", err)
	}
	i.logger.Info("index closed")
	return nil
}

func (i *Index) checkOpen() error {
	i.refMu.Lock()
	defer i.refMu.Unlock()
	if i.closed {
		return apperrors.Newf(apperrors.ErrIndexClosed, "%s", i.path)
	}
	return nil
}

func isIndexDir(path string) bool {
	info, err := os.Stat(filepath.Join(path, metaFile))
	return err == nil && !info.IsDir()
}

func isEmptyDir(path string) (bool, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return false, err
	}
	return len(entries) == 0, nil
}

func encodeGeneration(g uint64) []byte {
	return []byte(strconv.FormatUint(g, 10))
}

func decodeGeneration(raw []byte) uint64 {
	if len(raw) == 0 {
		return 0
	}
	g, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0
	}
	return g
}

func (i *Index) String() string {
	return fmt.Sprintf("Index(%s)", i.path)
}
