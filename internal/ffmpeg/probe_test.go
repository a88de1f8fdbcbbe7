package ffmpeg

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseProbe(t *testing.T) {
	out := []byte(`{
		"streams": [
			{"index": 0, "codec_name": "h264", "codec_type": "video"},
			{"index": 1, "codec_name": "aac", "codec_type": "audio", "sample_rate": "44100", "channels": 2}
		],
		"format": {"filename": "a.mp4", "format_name": "mov,mp4,m4a", "duration": "12.480000"}
	}`)

	info, err := parseProbe(out)
	if err != nil {
		t.Fatalf("parseProbe: %v", err)
	}
	if info.Codec != "aac" || info.SampleRate != 44100 || info.Channels != 2 {
		t.Errorf("info = %+v", info)
	}
	if info.Duration != 12.48 {
		t.Errorf("Duration = %v, want 12.48", info.Duration)
	}
	if info.Format != "mov,mp4,m4a" {
		t.Errorf("Format = %q", info.Format)
	}
}

func TestParseProbeNoAudio(t *testing.T) {
	out := []byte(`{"streams":[{"index":0,"codec_name":"png","codec_type":"video"}],"format":{"duration":"N/A"}}`)
	if _, err := parseProbe(out); !errors.Is(err, ErrNoAudioStream) {
		t.Fatalf("err = %v, want ErrNoAudioStream", err)
	}
}

func TestParseProbeGarbage(t *testing.T) {
	if _, err := parseProbe([]byte("not json")); err == nil {
		t.Fatal("expected error")
	}
}

// fakeFFprobe points ProbeAudio at a shell script for the test.
func fakeFFprobe(t *testing.T, script string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffprobe")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0755); err != nil {
		t.Fatal(err)
	}
	old := ffprobeBin
	ffprobeBin = path
	t.Cleanup(func() { ffprobeBin = old })
}

func TestProbeAudioFailedExitIsUnreadable(t *testing.T) {
	fakeFFprobe(t, "exit 1")
	if _, err := ProbeAudio(context.Background(), "x.bin"); !errors.Is(err, ErrUnreadable) {
		t.Fatalf("err = %v, want ErrUnreadable", err)
	}
}

func TestProbeAudioCancelledIsNotUnreadable(t *testing.T) {
	fakeFFprobe(t, "exec sleep 5")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := ProbeAudio(ctx, "x.wav")
	if errors.Is(err, ErrUnreadable) {
		t.Fatalf("cancelled probe reported as unreadable: %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestListChunksOrdered(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"chunk_002.mp3", "chunk_000.mp3", "chunk_001.mp3", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	chunks, err := listChunks(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	for i, want := range []string{"chunk_000.mp3", "chunk_001.mp3", "chunk_002.mp3"} {
		if filepath.Base(chunks[i]) != want {
			t.Errorf("chunks[%d] = %s, want %s", i, filepath.Base(chunks[i]), want)
		}
	}
}

func TestListChunksEmpty(t *testing.T) {
	if _, err := listChunks(t.TempDir()); err == nil {
		t.Fatal("expected error for empty dir")
	}
}

func TestParseVersion(t *testing.T) {
	got := parseVersion("ffmpeg version 6.1.1 Copyright (c) 2000-2023\nbuilt with gcc 13\n")
	if got != "ffmpeg version 6.1.1 Copyright (c) 2000-2023" {
		t.Errorf("parseVersion = %q", got)
	}
}
