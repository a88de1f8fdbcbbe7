package transcribe

import (
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
)

// isOOMError checks if an error response indicates GPU out-of-memory
func isOOMError(body string) bool {
	lower := strings.ToLower(body)
	return strings.Contains(lower, "out of memory") ||
		strings.Contains(lower, "oom") ||
		strings.Contains(lower, "memory") && strings.Contains(lower, "failed") ||
		strings.Contains(lower, "cuda") && strings.Contains(lower, "alloc")
}

// isRetryableError checks if an HTTP error is transient and worth retrying
func isRetryableError(statusCode int, err error) bool {
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return true
		}
		errStr := err.Error()
		return strings.Contains(errStr, "connection refused") ||
			strings.Contains(errStr, "connection reset") ||
			strings.Contains(errStr, "EOF") ||
			strings.Contains(errStr, "timeout")
	}
	return statusCode == 502 || statusCode == 503 || statusCode == 504
}

// isDecodeError recognizes the messages ffmpeg, PyAV and whisper.cpp print
// when the input isn't audio they can read.
func isDecodeError(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "invalid data found") ||
		strings.Contains(lower, "failed to read audio") ||
		strings.Contains(lower, "failed to load audio") ||
		strings.Contains(lower, "could not decode") ||
		strings.Contains(lower, "invalid file format") ||
		strings.Contains(lower, "unsupported file") ||
		strings.Contains(lower, "no audio stream") ||
		strings.Contains(lower, "invaliddataerror")
}

// whisperLanguages maps the full names whisper.cpp and the OpenAI API report
// to ISO 639-1 codes.
var whisperLanguages = map[string]string{
	"english": "en", "chinese": "zh", "german": "de", "spanish": "es",
	"russian": "ru", "korean": "ko", "french": "fr", "japanese": "ja",
	"portuguese": "pt", "turkish": "tr", "polish": "pl", "catalan": "ca",
	"dutch": "nl", "arabic": "ar", "swedish": "sv", "italian": "it",
	"indonesian": "id", "hindi": "hi", "finnish": "fi", "vietnamese": "vi",
	"hebrew": "he", "ukrainian": "uk", "greek": "el", "malay": "ms",
	"czech": "cs", "romanian": "ro", "danish": "da", "hungarian": "hu",
	"tamil": "ta", "norwegian": "no", "thai": "th", "urdu": "ur",
	"croatian": "hr", "bulgarian": "bg", "lithuanian": "lt", "latin": "la",
	"welsh": "cy", "slovak": "sk", "persian": "fa", "latvian": "lv",
	"bengali": "bn", "serbian": "sr", "slovenian": "sl", "estonian": "et",
	"swahili": "sw", "afrikaans": "af", "icelandic": "is", "tagalog": "tl",
}

// languageCode normalizes an engine-reported language to an ISO code.
// Unknown names are returned lower-cased.
func languageCode(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if code, ok := whisperLanguages[lang]; ok {
		return code
	}
	return lang
}

// classifyFFmpegError marks conversion failures caused by the input as
// ErrUnsupportedAudio. A missing ffmpeg binary stays a plain error.
func classifyFFmpegError(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("%w: %w", ErrUnsupportedAudio, err)
	}
	return err
}
