// Package handler serves the document ingestion API: buffering documents,
// committing or rolling back the writer, and reporting index statistics.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/logger"
)

const maxBodyBytes = 10 << 20

// Streamer sends documents to the ingest stream instead of the writer.
type Streamer interface {
	StreamEnabled() bool
	PublishDocuments(ctx context.Context, docs []document.Document) ([]string, error)
}

type Handler struct {
	committer *ingestion.Committer
	streamer  Streamer
	maxDocs   int
	logger    *slog.Logger
}

// New builds the handler. streamer may be nil; maxDocs <= 0 leaves batch
// size unbounded.
func New(committer *ingestion.Committer, streamer Streamer, maxDocs int) *Handler {
	return &Handler{
		committer: committer,
		streamer:  streamer,
		maxDocs:   maxDocs,
		logger:    slog.Default().With("component", "ingestion-handler"),
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/documents", h.Documents)
	mux.HandleFunc("POST /api/v1/commit", h.Commit)
	mux.HandleFunc("POST /api/v1/rollback", h.Rollback)
	mux.HandleFunc("GET /api/v1/index/stats", h.Stats)
}

// Documents buffers a JSON object or array of objects. With commit=true the
// writer is committed in the same request; with stream=true the documents
// go to the ingest stream and are indexed by the stream consumer.
func (h *Handler) Documents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	commit, err := boolParam(r, "commit")
	if err != nil {
		h.writeError(w, err)
		return
	}
	stream, err := boolParam(r, "stream")
	if err != nil {
		h.writeError(w, err)
		return
	}
	if stream && commit {
		h.writeError(w, apperrors.ForField(apperrors.ErrInvalidInput, "commit", "cannot be combined with stream"))
		return
	}
	if stream && (h.streamer == nil || !h.streamer.StreamEnabled()) {
		h.writeError(w, apperrors.ForField(apperrors.ErrInvalidInput, "stream", "streaming ingestion is not enabled"))
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
				"error": "request body exceeds " + strconv.Itoa(maxBodyBytes) + " bytes",
			})
			return
		}
		h.writeError(w, apperrors.Newf(apperrors.ErrInvalidInput, "reading body: %v", err))
		return
	}
	docs, err := document.DecodeMany(data)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := validator.ValidateBatch(h.committer.Index().Schema(), docs, h.maxDocs); err != nil {
		var validationErr *validator.ValidationError
		if errors.As(err, &validationErr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": validationErr.Fields,
			})
			return
		}
		h.writeError(w, err)
		return
	}

	if stream {
		ids, err := h.streamer.PublishDocuments(ctx, docs)
		if err != nil {
			log.Error("publishing documents failed", "count", len(docs), "error", err)
			h.writeJSON(w, http.StatusBadGateway, map[string]string{"error": "publishing documents failed"})
			return
		}
		h.writeJSON(w, http.StatusAccepted, map[string]any{
			"accepted":     len(ids),
			"document_ids": ids,
		})
		return
	}

	resp, err := h.committer.Add(docs)
	if err != nil {
		log.Warn("documents rejected", "error", err, "pending", resp.Pending)
		h.writeError(w, err)
		return
	}
	log.Info("documents buffered", "accepted", resp.Accepted, "pending", resp.Pending)
	if !commit {
		h.writeJSON(w, http.StatusAccepted, resp)
		return
	}
	committed, err := h.committer.Commit(ctx, "http")
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"accepted":   resp.Accepted,
		"committed":  committed.Committed,
		"generation": committed.Generation,
	})
}

func (h *Handler) Commit(w http.ResponseWriter, r *http.Request) {
	resp, err := h.committer.Commit(r.Context(), "http")
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Rollback(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.committer.Rollback(r.Context()))
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.committer.Stats()
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

func boolParam(r *http.Request, name string) (bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, apperrors.ForField(apperrors.ErrInvalidInput, name, "must be a boolean, got %q", v)
	}
	return b, nil
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
