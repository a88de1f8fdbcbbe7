package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/voicenote/whisper-api/internal/ffmpeg"
)

// WhisperCppClient talks to the whisper.cpp HTTP server (whisper-server).
// The server owns the model; this client is the shared handle to it.
type WhisperCppClient struct {
	baseURL    string
	convert    bool
	httpClient *http.Client
	logger     *log.Logger

	maxRetries int
	retryBase  time.Duration
}

// NewWhisperCppClient creates a client for the whisper.cpp server. When
// convert is set, uploads are converted to 16kHz mono WAV with ffmpeg before
// sending; otherwise the server must be started with --convert.
func NewWhisperCppClient(baseURL string, convert bool, logger *log.Logger) *WhisperCppClient {
	return &WhisperCppClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		convert: convert,
		httpClient: &http.Client{
			Timeout: 30 * time.Minute, // transcription can be very long
		},
		logger:     logger.WithPrefix("whisper.cpp"),
		maxRetries: 3,
		retryBase:  time.Second,
	}
}

func (c *WhisperCppClient) Name() string {
	return "whisper.cpp"
}

func (c *WhisperCppClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// whisperCppResponse is the verbose_json body of POST /inference.
type whisperCppResponse struct {
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Text     string  `json:"text"`
	Segments []struct {
		ID    int     `json:"id"`
		Text  string  `json:"text"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
	} `json:"segments"`
	Error string `json:"error"`
}

func (c *WhisperCppClient) Transcribe(ctx context.Context, audioPath string, opts Options, onSegment func(Segment)) (Info, error) {
	sendPath := audioPath
	if c.convert {
		wavPath, err := ffmpeg.ExtractWAV(ctx, audioPath)
		if err != nil {
			return Info{}, fmt.Errorf("extract audio: %w", classifyFFmpegError(err))
		}
		defer os.Remove(wavPath)
		sendPath = wavPath
	}

	resp, err := c.sendWithRetry(ctx, sendPath, opts.language())
	if err != nil {
		return Info{}, err
	}

	for _, s := range resp.Segments {
		onSegment(Segment{Start: s.Start, End: s.End, Text: s.Text})
	}

	lang := languageCode(resp.Language)
	if lang == "" {
		lang = opts.language()
	}
	return Info{Language: lang, Duration: resp.Duration}, nil
}

func (c *WhisperCppClient) sendWithRetry(ctx context.Context, audioPath, language string) (*whisperCppResponse, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt)) * c.retryBase
			c.logger.Warn("retrying", "attempt", attempt, "max", c.maxRetries, "backoff", backoff, "err", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		status, result, err := c.doSend(ctx, audioPath, language)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, ErrUnsupportedAudio) || isOOMError(err.Error()) {
			return nil, err
		}
		if !isRetryableError(status, errors.Unwrap(err)) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%w: whisper server failed after %d attempts: %w", ErrEngineUnavailable, c.maxRetries+1, lastErr)
}

// doSend posts one multipart request. The form is streamed from disk so the
// upload never sits in memory.
func (c *WhisperCppClient) doSend(ctx context.Context, audioPath, language string) (int, *whisperCppResponse, error) {
	audioFile, err := os.Open(audioPath)
	if err != nil {
		return 0, nil, fmt.Errorf("open audio: %w", err)
	}
	defer audioFile.Close()

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeInferenceForm(writer, audioFile, language))
	}()

	url := c.baseURL + "/inference"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, pr)
	if err != nil {
		pr.Close()
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	c.logger.Debug("sending request", "url", url, "audio", audioPath)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		pr.Close()
		return 0, nil, fmt.Errorf("whisper server request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		bodyStr := strings.TrimSpace(string(body))
		if isDecodeError(bodyStr) {
			return resp.StatusCode, nil, fmt.Errorf("%w: %s", ErrUnsupportedAudio, bodyStr)
		}
		return resp.StatusCode, nil, fmt.Errorf("whisper server error (status %d): %s", resp.StatusCode, bodyStr)
	}

	var result whisperCppResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return resp.StatusCode, nil, fmt.Errorf("decode response: %w", err)
	}
	// whisper-server reports decode failures with status 200
	if result.Error != "" {
		if isDecodeError(result.Error) {
			return resp.StatusCode, nil, fmt.Errorf("%w: %s", ErrUnsupportedAudio, result.Error)
		}
		return resp.StatusCode, nil, fmt.Errorf("whisper server error: %s", result.Error)
	}

	return resp.StatusCode, &result, nil
}

func writeInferenceForm(writer *multipart.Writer, audio *os.File, language string) error {
	part, err := writer.CreateFormFile("file", filepath.Base(audio.Name()))
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return fmt.Errorf("copy audio data: %w", err)
	}

	writer.WriteField("response_format", "verbose_json")
	writer.WriteField("temperature", "0.0")
	if language != "" {
		writer.WriteField("language", language)
	} else {
		writer.WriteField("language", "auto")
	}

	return writer.Close()
}
