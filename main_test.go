package main

import (
	"context"
	"errors"
	"testing"

	"github.com/voicenote/whisper-api/internal/config"
	"github.com/voicenote/whisper-api/internal/gpu"
	"github.com/voicenote/whisper-api/internal/logging"
	"github.com/voicenote/whisper-api/internal/transcribe"
)

func TestBuildServiceRemoteEngines(t *testing.T) {
	cfg := &config.Config{
		Engine:         config.EngineOpenAI,
		Engines:        []string{config.EngineWhisperCpp, config.EngineOpenAI},
		WhisperURL:     "http://127.0.0.1:8080",
		WhisperConvert: true,
		OpenAIBaseURL:  "http://127.0.0.1:9000/v1",
		OpenAIModel:    "whisper-1",
	}

	svc, err := buildService(context.Background(), cfg, &gpu.GPUInfo{}, logging.Discard())
	if err != nil {
		t.Fatalf("buildService: %v", err)
	}
	defer svc.Close()

	names := svc.EngineNames()
	if len(names) != 2 || names[0] != config.EngineOpenAI || names[1] != config.EngineWhisperCpp {
		t.Errorf("engines = %v", names)
	}
	if svc.DefaultEngine() != config.EngineOpenAI {
		t.Errorf("default = %q", svc.DefaultEngine())
	}
}

func TestBuildServiceUnknownEngine(t *testing.T) {
	cfg := &config.Config{Engine: "vosk", Engines: []string{"vosk"}}
	_, err := buildService(context.Background(), cfg, &gpu.GPUInfo{}, logging.Discard())
	if !errors.Is(err, transcribe.ErrUnknownEngine) {
		t.Errorf("err = %v, want ErrUnknownEngine", err)
	}
}
