package transcribe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/voicenote/whisper-api/internal/ffmpeg"
)

const (
	maxOpenAIFileSize = 25 * 1024 * 1024 // 25MB limit
	openAIChunkSecs   = 600
)

// OpenAIClient uses an OpenAI-compatible /audio/transcriptions endpoint.
type OpenAIClient struct {
	client *openai.Client
	model  string
	logger *log.Logger

	maxFileSize int64
}

// NewOpenAIClient creates a client. baseURL may point at any
// OpenAI-compatible server (LocalAI, speaches); empty means api.openai.com.
func NewOpenAIClient(apiKey, baseURL, model string, logger *log.Logger) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.Whisper1
	}
	return &OpenAIClient{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		logger:      logger.WithPrefix("openai"),
		maxFileSize: maxOpenAIFileSize,
	}
}

func (c *OpenAIClient) Name() string {
	return "openai"
}

func (c *OpenAIClient) Close() error {
	return nil
}

func (c *OpenAIClient) Transcribe(ctx context.Context, audioPath string, opts Options, onSegment func(Segment)) (Info, error) {
	st, err := os.Stat(audioPath)
	if err != nil {
		return Info{}, err
	}
	if st.Size() <= c.maxFileSize {
		return c.transcribeFile(ctx, audioPath, opts.language(), 0, onSegment)
	}

	// Re-encode as MP3 first; most uploads fit after that
	mp3Path, err := ffmpeg.ExtractMP3(ctx, audioPath)
	if err != nil {
		return Info{}, fmt.Errorf("extract audio: %w", classifyFFmpegError(err))
	}
	defer os.Remove(mp3Path)

	st, err = os.Stat(mp3Path)
	if err != nil {
		return Info{}, err
	}
	if st.Size() <= c.maxFileSize {
		return c.transcribeFile(ctx, mp3Path, opts.language(), 0, onSegment)
	}
	return c.transcribeChunked(ctx, mp3Path, opts.language(), onSegment)
}

// transcribeChunked splits a large audio file into 10-minute chunks and
// shifts each chunk's segments by its start offset.
func (c *OpenAIClient) transcribeChunked(ctx context.Context, audioPath, language string, onSegment func(Segment)) (Info, error) {
	chunkDir, err := os.MkdirTemp("", "whisper-chunks-*")
	if err != nil {
		return Info{}, err
	}
	defer os.RemoveAll(chunkDir)

	chunks, err := ffmpeg.SplitMP3(ctx, audioPath, chunkDir, openAIChunkSecs)
	if err != nil {
		return Info{}, fmt.Errorf("split audio: %w", classifyFFmpegError(err))
	}

	c.logger.Info("transcribing in chunks", "chunks", len(chunks))

	var info Info
	for i, chunk := range chunks {
		offset := float64(i * openAIChunkSecs)
		chunkInfo, err := c.transcribeFile(ctx, chunk, language, offset, onSegment)
		if err != nil {
			return Info{}, fmt.Errorf("chunk %d: %w", i, err)
		}
		if info.Language == "" {
			info.Language = chunkInfo.Language
		}
		info.Duration = offset + chunkInfo.Duration
	}
	return info, nil
}

func (c *OpenAIClient) transcribeFile(ctx context.Context, audioPath, language string, offset float64, onSegment func(Segment)) (Info, error) {
	c.logger.Debug("sending request", "audio", audioPath, "offset", offset)

	resp, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.model,
		FilePath: audioPath,
		Language: language,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return Info{}, classifyOpenAIError(ctx, err)
	}

	for _, s := range resp.Segments {
		onSegment(Segment{Start: s.Start + offset, End: s.End + offset, Text: s.Text})
	}
	// Servers that ignore verbose_json still return the text
	if len(resp.Segments) == 0 && resp.Text != "" {
		onSegment(Segment{Start: offset, End: offset + resp.Duration, Text: resp.Text})
	}

	lang := languageCode(resp.Language)
	if lang == "" {
		lang = language
	}
	return Info{Language: lang, Duration: resp.Duration}, nil
}

func classifyOpenAIError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusBadRequest && isDecodeError(apiErr.Message) {
			return fmt.Errorf("%w: %s", ErrUnsupportedAudio, apiErr.Message)
		}
		if apiErr.HTTPStatusCode >= 500 {
			return fmt.Errorf("%w: openai api: %w", ErrEngineUnavailable, err)
		}
		return fmt.Errorf("openai api: %w", err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if isDecodeError(reqErr.Error()) {
			return fmt.Errorf("%w: %w", ErrUnsupportedAudio, err)
		}
		if reqErr.HTTPStatusCode == 0 || reqErr.HTTPStatusCode >= 500 {
			return fmt.Errorf("%w: openai api: %w", ErrEngineUnavailable, err)
		}
		return fmt.Errorf("openai api: %w", err)
	}

	// transport failures surface unwrapped
	return fmt.Errorf("%w: openai api: %w", ErrEngineUnavailable, err)
}
