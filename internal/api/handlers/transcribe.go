package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/voicenote/whisper-api/internal/db/models"
	"github.com/voicenote/whisper-api/internal/ffmpeg"
	"github.com/voicenote/whisper-api/internal/storage"
	"github.com/voicenote/whisper-api/internal/transcribe"
)

// HistoryStore records finished transcriptions.
type HistoryStore interface {
	SaveTranscription(t *models.Transcription) error
}

type TranscribeHandler struct {
	svc      *transcribe.Service
	store    *storage.TempStore
	history  HistoryStore // nil without a database
	maxBytes int64
	validate bool
	probe    func(ctx context.Context, path string) (*ffmpeg.AudioInfo, error)
	logger   *log.Logger
}

// NewTranscribeHandler serves POST /transcribe. maxBytes 0 leaves uploads
// unbounded; validate runs ffprobe on the upload before the engine sees it.
func NewTranscribeHandler(svc *transcribe.Service, store *storage.TempStore, history HistoryStore, maxBytes int64, validate bool, logger *log.Logger) *TranscribeHandler {
	return &TranscribeHandler{
		svc:      svc,
		store:    store,
		history:  history,
		maxBytes: maxBytes,
		validate: validate,
		probe:    ffmpeg.ProbeAudio,
		logger:   logger,
	}
}

// Transcribe stores the upload in a temp file, runs the engine on it and
// answers with {language, text, segments}. The temp file is gone before the
// response is written.
func (h *TranscribeHandler) Transcribe(w http.ResponseWriter, r *http.Request) {
	if h.maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	}

	form, err := readUpload(r, h.store)
	if err != nil {
		status, msg := uploadStatus(err)
		h.logFailure(r, status, err)
		jsonError(w, msg, status)
		return
	}

	res, err := h.run(r.Context(), form)
	if err != nil {
		if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
			h.logger.Info("client went away", "request_id", chimw.GetReqID(r.Context()), "file", form.File.Name)
			return
		}
		status, msg := engineStatus(err)
		h.logFailure(r, status, err)
		jsonError(w, msg, status)
		return
	}

	jsonResponse(w, res, http.StatusOK)
}

// run owns the temp file for the rest of the request.
func (h *TranscribeHandler) run(ctx context.Context, form *uploadForm) (*transcribe.Result, error) {
	defer func() {
		if err := form.File.Remove(); err != nil {
			h.logger.Warn("remove temp file", "path", form.File.Path, "err", err)
		}
	}()

	if h.validate {
		if _, err := h.probe(ctx, form.File.Path); err != nil {
			return nil, err
		}
	}

	opts := transcribe.Options{Engine: form.Engine, Language: form.Language}
	start := time.Now()
	res, info, err := h.svc.Transcribe(ctx, form.File.Path, opts)
	if err != nil {
		return nil, err
	}

	recordHistory(h.history, h.logger, form.File.Name, engineName(h.svc, form.Engine), res, info, time.Since(start))
	return res, nil
}

func (h *TranscribeHandler) logFailure(r *http.Request, status int, err error) {
	kv := []any{"status", status, "err", err, "request_id", chimw.GetReqID(r.Context())}
	if status >= 500 {
		h.logger.Error("transcribe failed", kv...)
	} else {
		h.logger.Warn("transcribe rejected", kv...)
	}
}

// engineStatus maps validation and engine errors to an HTTP status and
// client message.
func engineStatus(err error) (int, string) {
	switch {
	case errors.Is(err, transcribe.ErrUnknownEngine):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, ffmpeg.ErrNoAudioStream), errors.Is(err, ffmpeg.ErrUnreadable):
		return http.StatusUnsupportedMediaType, err.Error()
	case errors.Is(err, transcribe.ErrUnsupportedAudio):
		return http.StatusUnsupportedMediaType, "unsupported audio"
	case errors.Is(err, transcribe.ErrEngineUnavailable):
		return http.StatusServiceUnavailable, "transcription engine unavailable"
	default:
		return http.StatusInternalServerError, "transcription failed"
	}
}

func engineName(svc *transcribe.Service, requested string) string {
	if requested != "" {
		return requested
	}
	return svc.DefaultEngine()
}

// recordHistory stores a finished transcription. Failures are logged only.
func recordHistory(history HistoryStore, logger *log.Logger, filename, engine string, res *transcribe.Result, info transcribe.Info, took time.Duration) {
	if history == nil {
		return
	}
	segments, err := json.Marshal(res.Segments)
	if err != nil {
		logger.Warn("encode segments for history", "err", err)
		return
	}
	err = history.SaveTranscription(&models.Transcription{
		Filename:       filename,
		Engine:         engine,
		Language:       res.Language,
		Text:           res.Text,
		Segments:       segments,
		Duration:       info.Duration,
		ProcessingTime: took.Seconds(),
	})
	if err != nil {
		logger.Warn("save transcription history", "err", err)
	}
}
