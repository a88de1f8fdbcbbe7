package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// ExtractWAV converts any media file to WAV 16kHz mono (what whisper models
// expect). The returned file is a new temp file owned by the caller.
func ExtractWAV(ctx context.Context, inputPath string) (string, error) {
	return extract(ctx, inputPath, "whisper-audio-*.wav",
		"-vn", // no video
		"-acodec", "pcm_s16le",
		"-ar", "16000", // 16kHz
		"-ac", "1", // mono
	)
}

// ExtractMP3 re-encodes the audio track as VBR MP3, which keeps uploads to
// hosted APIs small.
func ExtractMP3(ctx context.Context, inputPath string) (string, error) {
	return extract(ctx, inputPath, "whisper-audio-*.mp3",
		"-vn",
		"-acodec", "libmp3lame",
		"-q:a", "4", // ~130kbps VBR
	)
}

func extract(ctx context.Context, inputPath, pattern string, codecArgs ...string) (string, error) {
	tmpFile, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", err
	}
	tmpFile.Close()

	args := []string{"-hide_banner", "-loglevel", "error", "-i", inputPath}
	args = append(args, codecArgs...)
	args = append(args, "-y", tmpFile.Name())

	output, err := exec.CommandContext(ctx, "ffmpeg", args...).CombinedOutput()
	if err != nil {
		os.Remove(tmpFile.Name())
		return "", fmt.Errorf("ffmpeg: %s: %w", strings.TrimSpace(string(output)), err)
	}

	return tmpFile.Name(), nil
}

// SplitMP3 cuts an audio file into consecutive MP3 chunks of chunkSeconds
// each, written to dir. Chunks are returned in playback order.
func SplitMP3(ctx context.Context, inputPath, dir string, chunkSeconds int) ([]string, error) {
	pattern := filepath.Join(dir, "chunk_%03d.mp3")
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-hide_banner", "-loglevel", "error",
		"-i", inputPath,
		"-f", "segment",
		"-segment_time", strconv.Itoa(chunkSeconds),
		"-c:a", "libmp3lame",
		"-q:a", "4",
		"-y",
		pattern,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("ffmpeg split: %s: %w", strings.TrimSpace(string(output)), err)
	}

	return listChunks(dir)
}

func listChunks(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var chunks []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "chunk_") && strings.HasSuffix(e.Name(), ".mp3") {
			chunks = append(chunks, filepath.Join(dir, e.Name()))
		}
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no audio chunks generated")
	}
	sort.Strings(chunks)
	return chunks, nil
}
