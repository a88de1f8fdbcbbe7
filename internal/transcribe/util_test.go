package transcribe

import (
	"errors"
	"testing"
)

func TestLanguageCode(t *testing.T) {
	tests := map[string]string{
		"english":  "en",
		"English":  "en",
		" german ": "de",
		"en":       "en",
		"ja":       "ja",
		"klingon":  "klingon",
		"":         "",
	}
	for in, want := range tests {
		if got := languageCode(in); got != want {
			t.Errorf("languageCode(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		status int
		err    error
		want   bool
	}{
		{502, nil, true},
		{503, nil, true},
		{504, nil, true},
		{500, nil, false},
		{400, nil, false},
		{0, errors.New("dial tcp 127.0.0.1:8080: connect: connection refused"), true},
		{0, errors.New("read: connection reset by peer"), true},
		{0, errors.New("unexpected EOF"), true},
		{0, errors.New("malformed header"), false},
	}
	for _, tt := range tests {
		if got := isRetryableError(tt.status, tt.err); got != tt.want {
			t.Errorf("isRetryableError(%d, %v) = %v, want %v", tt.status, tt.err, got, tt.want)
		}
	}
}

func TestIsOOMError(t *testing.T) {
	if !isOOMError("CUDA failed with error out of memory") {
		t.Error("expected OOM")
	}
	if isOOMError("bad request: missing file") {
		t.Error("unexpected OOM")
	}
}

func TestIsDecodeError(t *testing.T) {
	for _, msg := range []string{
		"[Errno 1094995529] Invalid data found when processing input: '/tmp/upload-x'",
		"error: failed to read audio file",
		"av.error.InvalidDataError: [Errno 1094995529]",
	} {
		if !isDecodeError(msg) {
			t.Errorf("isDecodeError(%q) = false", msg)
		}
	}
	if isDecodeError("model not found") {
		t.Error("model errors are not decode errors")
	}
}
