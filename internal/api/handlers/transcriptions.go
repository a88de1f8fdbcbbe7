package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/voicenote/whisper-api/internal/db"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type TranscriptionHandler struct {
	db *db.Database
}

func NewTranscriptionHandler(database *db.Database) *TranscriptionHandler {
	return &TranscriptionHandler{db: database}
}

// List returns a page of past transcriptions, newest first.
func (h *TranscriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultPageSize)
	if limit == 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	offset := queryInt(r, "offset", 0)

	items, total, err := h.db.ListTranscriptions(limit, offset)
	if err != nil {
		jsonError(w, "failed to list transcriptions", http.StatusInternalServerError)
		return
	}

	jsonResponse(w, map[string]any{
		"items":  items,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	}, http.StatusOK)
}

func (h *TranscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.db.GetTranscription(chi.URLParam(r, "id"))
	if errors.Is(err, db.ErrNotFound) {
		jsonError(w, "transcription not found", http.StatusNotFound)
		return
	}
	if err != nil {
		jsonError(w, "failed to load transcription", http.StatusInternalServerError)
		return
	}
	jsonResponse(w, t, http.StatusOK)
}

func (h *TranscriptionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.db.DeleteTranscription(chi.URLParam(r, "id"))
	if errors.Is(err, db.ErrNotFound) {
		jsonError(w, "transcription not found", http.StatusNotFound)
		return
	}
	if err != nil {
		jsonError(w, "failed to delete transcription", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
