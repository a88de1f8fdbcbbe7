package ffmpeg

import (
	"context"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// Tools describes the ffmpeg binaries found on PATH.
type Tools struct {
	FFmpeg  string `json:"ffmpeg,omitempty"`  // absolute path, "" if missing
	FFprobe string `json:"ffprobe,omitempty"` // absolute path, "" if missing
	Version string `json:"version,omitempty"` // first line of `ffmpeg -version`
}

func (t *Tools) Available() bool {
	return t.FFmpeg != "" && t.FFprobe != ""
}

var (
	serverTools     *Tools
	serverToolsOnce sync.Once
)

// DetectTools looks up ffmpeg and ffprobe once and caches the result.
func DetectTools() *Tools {
	serverToolsOnce.Do(func() {
		serverTools = detectTools()
	})
	return serverTools
}

func detectTools() *Tools {
	tools := &Tools{}
	if p, err := exec.LookPath("ffmpeg"); err == nil {
		tools.FFmpeg = p
	}
	if p, err := exec.LookPath("ffprobe"); err == nil {
		tools.FFprobe = p
	}
	if tools.FFmpeg == "" {
		return tools
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, tools.FFmpeg, "-hide_banner", "-version").Output()
	if err == nil {
		tools.Version = parseVersion(string(out))
	}
	return tools
}

func parseVersion(out string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(out), "\n")
	return strings.TrimSpace(line)
}
