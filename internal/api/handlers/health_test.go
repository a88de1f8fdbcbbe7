package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voicenote/whisper-api/internal/ffmpeg"
	"github.com/voicenote/whisper-api/internal/gpu"
)

func TestHealth(t *testing.T) {
	svc := newTestService(helloWorldEngine(), &fakeEngine{name: "another"})
	h := NewHealthHandler(svc, &gpu.GPUInfo{Device: "NVIDIA GPU (10de:2684)", Driver: "nvidia"}, &ffmpeg.Tools{FFmpeg: "/usr/bin/ffmpeg", FFprobe: "/usr/bin/ffprobe"})

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "ok" || resp.DefaultEngine != "fake" {
		t.Errorf("resp = %+v", resp)
	}
	if len(resp.Engines) != 2 || resp.Engines[0] != "another" || resp.Engines[1] != "fake" {
		t.Errorf("engines = %v", resp.Engines)
	}
	if resp.GPU == nil || !resp.GPU.CUDA() || resp.FFmpeg == nil || !resp.FFmpeg.Available() {
		t.Errorf("gpu = %+v ffmpeg = %+v", resp.GPU, resp.FFmpeg)
	}
}
