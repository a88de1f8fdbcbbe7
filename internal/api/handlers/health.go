package handlers

import (
	"net/http"

	"github.com/voicenote/whisper-api/internal/ffmpeg"
	"github.com/voicenote/whisper-api/internal/gpu"
	"github.com/voicenote/whisper-api/internal/transcribe"
)

type HealthHandler struct {
	svc   *transcribe.Service
	gpu   *gpu.GPUInfo
	tools *ffmpeg.Tools
}

func NewHealthHandler(svc *transcribe.Service, gpuInfo *gpu.GPUInfo, tools *ffmpeg.Tools) *HealthHandler {
	return &HealthHandler{svc: svc, gpu: gpuInfo, tools: tools}
}

type healthResponse struct {
	Status        string        `json:"status"`
	Engines       []string      `json:"engines"`
	DefaultEngine string        `json:"default_engine"`
	GPU           *gpu.GPUInfo  `json:"gpu,omitempty"`
	FFmpeg        *ffmpeg.Tools `json:"ffmpeg,omitempty"`
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, healthResponse{
		Status:        "ok",
		Engines:       h.svc.EngineNames(),
		DefaultEngine: h.svc.DefaultEngine(),
		GPU:           h.gpu,
		FFmpeg:        h.tools,
	}, http.StatusOK)
}
