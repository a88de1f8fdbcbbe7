package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

var (
	// ErrNoAudioStream means ffprobe read the container but found no audio track.
	ErrNoAudioStream = errors.New("no audio stream")
	// ErrUnreadable means ffprobe could not parse the file at all.
	ErrUnreadable = errors.New("unreadable media")
)

type ProbeResult struct {
	Format  ProbeFormat   `json:"format"`
	Streams []ProbeStream `json:"streams"`
}

type ProbeFormat struct {
	Filename   string `json:"filename"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
}

type ProbeStream struct {
	Index      int    `json:"index"`
	CodecName  string `json:"codec_name"`
	CodecType  string `json:"codec_type"` // video, audio, subtitle
	SampleRate string `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
}

// AudioInfo summarizes the first audio stream of a file.
type AudioInfo struct {
	Format     string  `json:"format"`
	Codec      string  `json:"codec"`
	Duration   float64 `json:"duration"` // seconds, 0 if unknown
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
}

var ffprobeBin = "ffprobe"

// ProbeAudio runs ffprobe on filePath and describes its audio track.
func ProbeAudio(ctx context.Context, filePath string) (*AudioInfo, error) {
	cmd := exec.CommandContext(ctx, ffprobeBin,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		filePath,
	)

	output, err := cmd.Output()
	if err != nil {
		// killed because the caller gave up, not because the file is bad
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("ffprobe: %w", ErrUnreadable)
		}
		return nil, fmt.Errorf("ffprobe: %w", err)
	}

	return parseProbe(output)
}

func parseProbe(output []byte) (*AudioInfo, error) {
	var result ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	for _, s := range result.Streams {
		if s.CodecType != "audio" {
			continue
		}
		info := &AudioInfo{
			Format:   result.Format.FormatName,
			Codec:    s.CodecName,
			Channels: s.Channels,
		}
		info.SampleRate, _ = strconv.Atoi(s.SampleRate)
		info.Duration, _ = strconv.ParseFloat(strings.TrimSpace(result.Format.Duration), 64)
		return info, nil
	}

	return nil, ErrNoAudioStream
}
