package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/schema"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStreamer struct {
	enabled bool
	err     error
	docs    []document.Document
}

func (f *fakeStreamer) StreamEnabled() bool { return f.enabled }

func (f *fakeStreamer) PublishDocuments(_ context.Context, docs []document.Document) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.docs = append(f.docs, docs...)
	ids := make([]string, len(docs))
	for i := range docs {
		ids[i] = fmt.Sprintf("doc-%d", len(f.docs)-len(docs)+i)
	}
	return ids, nil
}

type fixture struct {
	mux      *http.ServeMux
	idx      *indexer.Index
	streamer *fakeStreamer
	commits  []ingestion.IndexCommitted
}

func newFixture(t *testing.T, maxDocs int) *fixture {
	t.Helper()
	all := schema.Options{Stored: true, Indexed: true}
	sch := schema.New().
		AddField("title", schema.Text, all).
		AddField("views", schema.U64, all)
	idx, err := indexer.Create(filepath.Join(t.TempDir(), "idx"), sch)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	f := &fixture{mux: http.NewServeMux(), idx: idx, streamer: &fakeStreamer{enabled: true}}
	committer := ingestion.NewCommitter(idx, nil)
	committer.OnCommit(func(_ context.Context, c ingestion.IndexCommitted) {
		f.commits = append(f.commits, c)
	})
	New(committer, f.streamer, maxDocs).Register(f.mux)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec.Code, out
}

func TestDocumentsCommitFlow(t *testing.T) {
	f := newFixture(t, 0)

	code, body := f.do(t, http.MethodPost, "/api/v1/documents",
		`[{"title":"Elixir Guide","views":500},{"title":"Phoenix Framework","views":5000}]`)
	require.Equal(t, http.StatusAccepted, code, body)
	assert.EqualValues(t, 2, body["accepted"])
	assert.EqualValues(t, 2, body["pending"])

	code, body = f.do(t, http.MethodGet, "/api/v1/index/stats", "")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 0, body["doc_count"])
	assert.EqualValues(t, 2, body["pending"])

	code, body = f.do(t, http.MethodPost, "/api/v1/commit", "")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, body["committed"])
	assert.EqualValues(t, 1, body["generation"])
	require.Len(t, f.commits, 1)
	assert.Equal(t, ingestion.IndexCommitted{
		Generation:  1,
		Documents:   2,
		Source:      "http",
		CommittedAt: f.commits[0].CommittedAt,
	}, f.commits[0])

	code, body = f.do(t, http.MethodPost, "/api/v1/commit", "")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 0, body["committed"])
	assert.Len(t, f.commits, 1, "empty commits do not notify")

	code, body = f.do(t, http.MethodGet, "/api/v1/index/stats", "")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, body["doc_count"])
	assert.EqualValues(t, 1, body["generation"])
}

func TestDocumentsWithCommit(t *testing.T) {
	f := newFixture(t, 0)
	code, body := f.do(t, http.MethodPost, "/api/v1/documents?commit=true", `{"title":"single"}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.EqualValues(t, 1, body["accepted"])
	assert.EqualValues(t, 1, body["committed"])
	assert.Equal(t, uint64(1), f.idx.Generation())
}

func TestRollback(t *testing.T) {
	f := newFixture(t, 0)
	code, _ := f.do(t, http.MethodPost, "/api/v1/documents", `{"title":"dropped"}`)
	require.Equal(t, http.StatusAccepted, code)

	code, body := f.do(t, http.MethodPost, "/api/v1/rollback", "")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["discarded"])
	assert.Zero(t, f.idx.Pending())
	assert.Empty(t, f.commits)
}

func TestDocumentsErrors(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		body    string
		status  int
		kind    string
		field   string
		invalid string
	}{
		{name: "malformed json", path: "/api/v1/documents", body: `{"title":`, status: 400, kind: "other"},
		{name: "empty body", path: "/api/v1/documents", body: ``, status: 400, kind: "other"},
		{name: "bad commit flag", path: "/api/v1/documents?commit=maybe", body: `{"title":"x"}`, status: 400, field: "commit", kind: "other"},
		{name: "stream with commit", path: "/api/v1/documents?commit=true&stream=true", body: `{"title":"x"}`, status: 400, field: "commit", kind: "other"},
		{name: "type mismatch", path: "/api/v1/documents", body: `{"title":"x","views":"many"}`, status: 400, kind: "conversion", field: "views"},
		{name: "negative unsigned", path: "/api/v1/documents", body: `{"views":-1}`, status: 400, kind: "conversion", field: "views"},
		{name: "no schema fields", path: "/api/v1/documents", body: `{"other":"x"}`, status: 400, invalid: "documents[0]"},
		{name: "too many documents", path: "/api/v1/documents", body: `[{"title":"a"},{"title":"b"},{"title":"c"}]`, status: 400, invalid: "batch"},
		{name: "empty array", path: "/api/v1/documents", body: `[]`, status: 400, invalid: "batch"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 2)
			code, body := f.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, code, body)
			if tt.invalid != "" {
				assert.Equal(t, "validation failed", body["error"])
				assert.Contains(t, body["fields"], tt.invalid)
				return
			}
			assert.Equal(t, tt.kind, body["kind"])
			if tt.field != "" {
				assert.Equal(t, tt.field, body["field"])
			}
			assert.Zero(t, f.idx.Generation())
		})
	}
}

func TestPartialBatchStaysBuffered(t *testing.T) {
	f := newFixture(t, 0)
	code, _ := f.do(t, http.MethodPost, "/api/v1/documents", `[{"title":"ok"},{"views":"bad"},{"title":"never"}]`)
	require.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, 1, f.idx.Pending())
}

func TestStreamDocuments(t *testing.T) {
	f := newFixture(t, 0)
	code, body := f.do(t, http.MethodPost, "/api/v1/documents?stream=true", `[{"title":"a"},{"title":"b"}]`)
	require.Equal(t, http.StatusAccepted, code, body)
	assert.EqualValues(t, 2, body["accepted"])
	assert.Equal(t, []any{"doc-0", "doc-1"}, body["document_ids"])
	assert.Len(t, f.streamer.docs, 2)
	assert.Zero(t, f.idx.Pending(), "streamed documents bypass the writer")

	f.streamer.err = errors.New("broker down")
	code, _ = f.do(t, http.MethodPost, "/api/v1/documents?stream=true", `{"title":"c"}`)
	assert.Equal(t, http.StatusBadGateway, code)

	f.streamer.enabled = false
	code, body = f.do(t, http.MethodPost, "/api/v1/documents?stream=true", `{"title":"c"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "stream", body["field"])
}
