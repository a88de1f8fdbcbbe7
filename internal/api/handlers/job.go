package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"github.com/voicenote/whisper-api/internal/ffmpeg"
	"github.com/voicenote/whisper-api/internal/job"
	"github.com/voicenote/whisper-api/internal/storage"
	"github.com/voicenote/whisper-api/internal/transcribe"
)

// JobHandler accepts uploads for background transcription and runs them as
// the queue's transcribe handler.
type JobHandler struct {
	queue    *job.JobQueue
	svc      *transcribe.Service
	store    *storage.TempStore
	history  HistoryStore
	maxBytes int64
	validate bool
	probe    func(ctx context.Context, path string) (*ffmpeg.AudioInfo, error)
	logger   *log.Logger
}

// NewJobHandler applies the same upload limit and validation as
// POST /transcribe, so a bad upload is refused before it is queued.
func NewJobHandler(queue *job.JobQueue, svc *transcribe.Service, store *storage.TempStore, history HistoryStore, maxBytes int64, validate bool, logger *log.Logger) *JobHandler {
	return &JobHandler{
		queue:    queue,
		svc:      svc,
		store:    store,
		history:  history,
		maxBytes: maxBytes,
		validate: validate,
		probe:    ffmpeg.ProbeAudio,
		logger:   logger,
	}
}

// CreateJob stores the upload and queues it. The temp file belongs to the
// job from here on and is removed when the job finishes.
func (h *JobHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	if h.maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	}

	form, err := readUpload(r, h.store)
	if err != nil {
		status, msg := uploadStatus(err)
		jsonError(w, msg, status)
		return
	}

	if form.Engine != "" {
		if _, err := h.svc.Engine(form.Engine); err != nil {
			form.File.Remove()
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	if h.validate {
		if _, err := h.probe(r.Context(), form.File.Path); err != nil {
			form.File.Remove()
			if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
				return
			}
			status, msg := engineStatus(err)
			jsonError(w, msg, status)
			return
		}
	}

	j, err := h.queue.Enqueue(job.JobTranscribe, form.File.Path, job.TranscribeParams{
		Engine:   form.Engine,
		Language: form.Language,
		Filename: form.File.Name,
	})
	if err != nil {
		form.File.Remove()
		h.logger.Error("enqueue job", "err", err)
		jsonError(w, "failed to queue job", http.StatusInternalServerError)
		return
	}

	jsonResponse(w, j, http.StatusAccepted)
}

// ListJobs returns all jobs
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.queue.ListJobs()
	if err != nil {
		jsonError(w, "failed to list jobs: "+err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, jobs, http.StatusOK)
}

// GetJob returns a single job by ID
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	j, err := h.queue.GetJob(chi.URLParam(r, "id"))
	if errors.Is(err, job.ErrNotFound) {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	if err != nil {
		jsonError(w, "failed to load job: "+err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, j, http.StatusOK)
}

// CancelJob cancels a pending or running job
func (h *JobHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	err := h.queue.CancelJob(chi.URLParam(r, "id"))
	if errors.Is(err, job.ErrNotFound) {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	if err != nil {
		jsonError(w, "failed to cancel job: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Run is the queue handler for transcribe jobs.
func (h *JobHandler) Run(ctx context.Context, j *job.Job, updateProgress func(float64)) error {
	var params job.TranscribeParams
	if err := json.Unmarshal(j.Params, &params); err != nil {
		return fmt.Errorf("decode params: %w", err)
	}

	updateProgress(0.1)
	start := time.Now()
	res, info, err := h.svc.Transcribe(ctx, j.FilePath, transcribe.Options{
		Engine:   params.Engine,
		Language: params.Language,
	})
	if err != nil {
		return err
	}

	out, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	j.Result = out

	recordHistory(h.history, h.logger, params.Filename, engineName(h.svc, params.Engine), res, info, time.Since(start))
	return nil
}

// Cleanup removes the job's upload once it reaches a terminal state. Paths
// outside the temp store are left alone.
func (h *JobHandler) Cleanup(j *job.Job) {
	if !h.store.Contains(j.FilePath) {
		h.logger.Warn("job file outside temp dir, not removing", "id", j.ID, "path", j.FilePath)
		return
	}
	f := &storage.TempFile{Path: j.FilePath}
	if err := f.Remove(); err != nil {
		h.logger.Warn("remove job file", "id", j.ID, "err", err)
	}
}
