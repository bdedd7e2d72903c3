// Package handler serves the search API over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/schema"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/tracing"
)

// Readers supplies the reader each request searches.
type Readers interface {
	Current() *searcher.Reader
}

// Tracker receives one event per finished search. *analytics.Collector
// implements it.
type Tracker interface {
	Track(ev analytics.Event)
}

// Response is a search result tagged with the generation it was computed on.
type Response struct {
	Generation uint64 `json:"generation"`
	CacheHit   bool   `json:"cache_hit"`
	*searcher.SearchResult
}

type Handler struct {
	readers Readers
	cache   *cache.QueryCache
	metrics *metrics.Metrics
	tracker Tracker
	cfg     config.SearchConfig
	logger  *slog.Logger
}

// New builds the handler. queryCache and m may be nil.
func New(readers Readers, queryCache *cache.QueryCache, m *metrics.Metrics, cfg config.SearchConfig) *Handler {
	return &Handler{
		readers: readers,
		cache:   queryCache,
		metrics: m,
		cfg:     cfg,
		logger:  slog.Default().With("component", "search-handler"),
	}
}

// WithTracker reports every search to t.
func (h *Handler) WithTracker(t Tracker) *Handler {
	h.tracker = t
	return h
}

// Register mounts the search routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/search/term", h.Term)
	mux.HandleFunc("GET /api/v1/search/range", h.Range)
	mux.HandleFunc("GET /api/v1/search/prefix", h.Prefix)
	mux.HandleFunc("GET /api/v1/search/fuzzy", h.Fuzzy)
	mux.HandleFunc("GET /api/v1/schema", h.Schema)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

type runFunc func(ctx context.Context, s *searcher.Searcher) (*searcher.SearchResult, error)

// labeled params describe themselves for analytics.
type labeled interface {
	label() string
}

type queryParams struct {
	Q               string   `json:"q"`
	Fields          []string `json:"fields"`
	Snippets        []string `json:"snippets,omitempty"`
	MaxSnippetChars int      `json:"max_snippet_chars,omitempty"`
	Limit           int      `json:"limit"`
}

func (p queryParams) label() string { return p.Q }

// Search runs a parsed query. Without fields, unscoped terms search every
// indexed text field.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := h.limit(q.Get("limit"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	maxChars, err := optionalInt(q.Get("max_snippet_chars"), "max_snippet_chars", h.cfg.MaxSnippetChars)
	if err != nil {
		h.writeError(w, err)
		return
	}
	fields := splitList(q.Get("fields"))
	if len(fields) == 0 {
		fields = textFields(h.readers.Current().Schema())
	}
	p := queryParams{
		Q:               q.Get("q"),
		Fields:          fields,
		Snippets:        splitList(q.Get("snippets")),
		MaxSnippetChars: maxChars,
		Limit:           limit,
	}
	h.serve(w, r, "query", p, func(ctx context.Context, s *searcher.Searcher) (*searcher.SearchResult, error) {
		sn := searcher.Snippets{Fields: p.Snippets, MaxChars: p.MaxSnippetChars}
		return s.QueryWithSnippets(ctx, p.Q, p.Fields, sn, p.Limit)
	})
}

type termParams struct {
	Field string `json:"field"`
	Value string `json:"value"`
	Limit int    `json:"limit"`
}

func (p termParams) label() string { return p.Field + ":" + p.Value }

func (h *Handler) Term(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := h.limit(q.Get("limit"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	p := termParams{Field: q.Get("field"), Value: q.Get("value"), Limit: limit}
	if err := required("field", p.Field); err != nil {
		h.writeError(w, err)
		return
	}
	h.serve(w, r, "term", p, func(ctx context.Context, s *searcher.Searcher) (*searcher.SearchResult, error) {
		return s.Term(ctx, p.Field, p.Value, p.Limit)
	})
}

type rangeParams struct {
	Field     string `json:"field"`
	Lower     string `json:"lower"`
	Upper     string `json:"upper"`
	Inclusive string `json:"inclusive"`
	Limit     int    `json:"limit"`
}

func (p rangeParams) label() string {
	lo, hi := "{", "}"
	if p.Inclusive == "both" || p.Inclusive == "lower" {
		lo = "["
	}
	if p.Inclusive == "both" || p.Inclusive == "upper" {
		hi = "]"
	}
	return fmt.Sprintf("%s:%s%s TO %s%s", p.Field, lo, p.Lower, p.Upper, hi)
}

// Range parses both bounds as the field's declared numeric type.
func (h *Handler) Range(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := h.limit(q.Get("limit"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	incl, err := query.ParseInclusive(q.Get("inclusive"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	p := rangeParams{
		Field:     q.Get("field"),
		Lower:     q.Get("lower"),
		Upper:     q.Get("upper"),
		Inclusive: incl.String(),
		Limit:     limit,
	}
	for _, arg := range [][2]string{{"field", p.Field}, {"lower", p.Lower}, {"upper", p.Upper}} {
		if err := required(arg[0], arg[1]); err != nil {
			h.writeError(w, err)
			return
		}
	}
	f, err := h.readers.Current().Schema().Lookup(p.Field)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var run runFunc
	switch f.Type {
	case schema.U64:
		run, err = rangeRunner(p, incl, func(s string) (uint64, error) { return strconv.ParseUint(s, 10, 64) })
	case schema.I64:
		run, err = rangeRunner(p, incl, func(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) })
	case schema.F64:
		run, err = rangeRunner(p, incl, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
	default:
		err = apperrors.ForField(apperrors.ErrNotNumericField, p.Field, "field is %s", f.Type)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.serve(w, r, "range", p, run)
}

func rangeRunner[T query.Number](p rangeParams, incl query.Inclusive, parse func(string) (T, error)) (runFunc, error) {
	lower, err := parse(p.Lower)
	if err != nil {
		return nil, apperrors.ForField(apperrors.ErrInvalidInput, "lower", "%q is not a valid bound for %s", p.Lower, p.Field)
	}
	upper, err := parse(p.Upper)
	if err != nil {
		return nil, apperrors.ForField(apperrors.ErrInvalidInput, "upper", "%q is not a valid bound for %s", p.Upper, p.Field)
	}
	return func(ctx context.Context, s *searcher.Searcher) (*searcher.SearchResult, error) {
		return searcher.SearchRange(ctx, s, p.Field, lower, upper, incl, p.Limit)
	}, nil
}

type prefixParams struct {
	Field  string `json:"field"`
	Prefix string `json:"prefix"`
	Limit  int    `json:"limit"`
}

func (p prefixParams) label() string { return p.Field + ":" + p.Prefix + "*" }

func (h *Handler) Prefix(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := h.limit(q.Get("limit"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	p := prefixParams{Field: q.Get("field"), Prefix: q.Get("prefix"), Limit: limit}
	if err := required("field", p.Field); err != nil {
		h.writeError(w, err)
		return
	}
	h.serve(w, r, "prefix", p, func(ctx context.Context, s *searcher.Searcher) (*searcher.SearchResult, error) {
		return s.Prefix(ctx, p.Field, p.Prefix, p.Limit)
	})
}

type fuzzyParams struct {
	Field           string   `json:"field"`
	Term            string   `json:"term"`
	Distance        int      `json:"distance"`
	Transposition   bool     `json:"transposition"`
	Prefix          bool     `json:"prefix"`
	Snippets        []string `json:"snippets,omitempty"`
	MaxSnippetChars int      `json:"max_snippet_chars,omitempty"`
	Limit           int      `json:"limit"`
}

func (p fuzzyParams) label() string {
	l := fmt.Sprintf("%s:%s~%d", p.Field, p.Term, p.Distance)
	if p.Prefix {
		l += "*"
	}
	return l
}

// Fuzzy serves fuzzy and, with prefix=true, fuzzy-prefix searches.
// Snippets are only produced for whole-term fuzzy searches.
func (h *Handler) Fuzzy(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := h.limit(q.Get("limit"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	distance, err := optionalInt(q.Get("distance"), "distance", 1)
	if err != nil {
		h.writeError(w, err)
		return
	}
	transposition, err := optionalBool(q.Get("transposition"), "transposition")
	if err != nil {
		h.writeError(w, err)
		return
	}
	prefix, err := optionalBool(q.Get("prefix"), "prefix")
	if err != nil {
		h.writeError(w, err)
		return
	}
	maxChars, err := optionalInt(q.Get("max_snippet_chars"), "max_snippet_chars", h.cfg.MaxSnippetChars)
	if err != nil {
		h.writeError(w, err)
		return
	}
	p := fuzzyParams{
		Field:           q.Get("field"),
		Term:            q.Get("term"),
		Distance:        distance,
		Transposition:   transposition,
		Prefix:          prefix,
		Snippets:        splitList(q.Get("snippets")),
		MaxSnippetChars: maxChars,
		Limit:           limit,
	}
	if err := required("field", p.Field); err != nil {
		h.writeError(w, err)
		return
	}
	kind := "fuzzy"
	if p.Prefix {
		kind = "fuzzy_prefix"
	}
	h.serve(w, r, kind, p, func(ctx context.Context, s *searcher.Searcher) (*searcher.SearchResult, error) {
		sn := searcher.Snippets{Fields: p.Snippets, MaxChars: p.MaxSnippetChars}
		if p.Prefix {
			return s.FuzzyPrefixWithSnippets(ctx, p.Field, p.Term, p.Distance, p.Transposition, sn, p.Limit)
		}
		return s.FuzzyWithSnippets(ctx, p.Field, p.Term, p.Distance, p.Transposition, sn, p.Limit)
	})
}

// Schema returns the fields of the index being served.
func (h *Handler) Schema(w http.ResponseWriter, r *http.Request) {
	reader := h.readers.Current()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"generation": reader.Generation(),
		"fields":     reader.Schema().Fields(),
	})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	h.writeJSON(w, http.StatusOK, h.cache.Stats())
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "caching is disabled"})
		return
	}
	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Error("cache invalidation failed", "error", err)
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "cache invalidation failed"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

// serve runs one search against the current reader, through the cache when
// one is configured, and writes the response.
func (h *Handler) serve(w http.ResponseWriter, r *http.Request, kind string, params any, run runFunc) {
	start := time.Now()
	ctx, span := tracing.Start(r.Context(), "search."+kind)
	log := logger.FromContext(ctx)

	reader := h.readers.Current()
	s := searcher.NewSearcher(reader)
	compute := func() (*searcher.SearchResult, error) {
		ctx, exec := tracing.Start(ctx, "execute")
		defer exec.End()
		var res *searcher.SearchResult
		err := resilience.WithTimeout(ctx, h.cfg.QueryTimeout, kind+" search", func(ctx context.Context) error {
			var err error
			res, err = run(ctx, s)
			return err
		})
		return res, err
	}

	var (
		res      *searcher.SearchResult
		cacheHit bool
		err      error
	)
	if h.cache != nil {
		res, cacheHit, err = h.cache.GetOrCompute(ctx, cache.Key{Generation: reader.Generation(), Kind: kind, Params: params}, compute)
	} else {
		res, err = compute()
	}

	cacheStatus := "miss"
	switch {
	case h.cache == nil:
		cacheStatus = "disabled"
	case cacheHit:
		cacheStatus = "hit"
	}
	elapsed := time.Since(start)
	hits := 0
	if res != nil {
		hits = res.TotalHits
	}
	h.metrics.ObserveSearch(kind, cacheStatus, elapsed.Seconds(), hits, err)
	h.track(ctx, kind, params, reader.Generation(), hits, cacheHit, elapsed, err)
	span.SetAttr("cache", cacheStatus)
	span.SetAttr("total_hits", hits)
	span.End()
	span.Log(ctx, log)

	if err != nil {
		log.Warn("search failed", "kind", kind, "error", err, "error_kind", apperrors.KindOf(err))
		h.writeError(w, err)
		return
	}
	log.Info("search completed",
		"kind", kind,
		"generation", reader.Generation(),
		"total_hits", res.TotalHits,
		"cache", cacheStatus,
		"latency_ms", elapsed.Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, Response{Generation: reader.Generation(), CacheHit: cacheHit, SearchResult: res})
}

func (h *Handler) track(ctx context.Context, kind string, params any, gen uint64, hits int, cacheHit bool, elapsed time.Duration, err error) {
	if h.tracker == nil {
		return
	}
	ev := analytics.Event{
		Type:       analytics.EventSearch,
		Kind:       kind,
		TotalHits:  hits,
		LatencyMs:  elapsed.Milliseconds(),
		CacheHit:   cacheHit,
		Failed:     err != nil,
		Generation: gen,
		Timestamp:  time.Now().UTC(),
		RequestID:  logger.RequestID(ctx),
	}
	if l, ok := params.(labeled); ok {
		ev.Query = l.label()
	}
	h.tracker.Track(ev)
}

func (h *Handler) limit(raw string) (int, error) {
	if raw == "" {
		return h.cfg.DefaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, apperrors.ForField(apperrors.ErrInvalidInput, "limit", "must be a positive integer")
	}
	if h.cfg.MaxResults > 0 && n > h.cfg.MaxResults {
		n = h.cfg.MaxResults
	}
	return n, nil
}

func optionalInt(raw, name string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.ForField(apperrors.ErrInvalidInput, name, "must be an integer")
	}
	return n, nil
}

func optionalBool(raw, name string) (bool, error) {
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, apperrors.ForField(apperrors.ErrInvalidInput, name, "must be true or false")
	}
	return b, nil
}

func required(name, v string) error {
	if strings.TrimSpace(v) == "" {
		return apperrors.ForField(apperrors.ErrInvalidInput, name, "is required")
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func textFields(s *schema.Schema) []string {
	var out []string
	for _, f := range s.Fields() {
		if f.Type == schema.Text && f.Indexed {
			out = append(out, f.Name)
		}
	}
	return out
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	body := map[string]string{"error": err.Error(), "kind": string(apperrors.KindOf(err))}
	if field := apperrors.FieldOf(err); field != "" {
		body["field"] = field
	}
	h.writeJSON(w, apperrors.HTTPStatusCode(err), body)
}
