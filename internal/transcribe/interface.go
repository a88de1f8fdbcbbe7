package transcribe

import (
	"context"
	"errors"
)

var (
	// ErrUnknownEngine is returned when a request names an engine that isn't registered.
	ErrUnknownEngine = errors.New("unknown engine")
	// ErrUnsupportedAudio means the engine could not decode the input.
	ErrUnsupportedAudio = errors.New("unsupported audio")
	// ErrEngineUnavailable means the engine process or server cannot be reached.
	ErrEngineUnavailable = errors.New("engine unavailable")
)

// Segment is a contiguous span of audio with its transcribed text.
// Times are seconds from the start of the file.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Info is the metadata an engine reports alongside the segments.
type Info struct {
	Language            string  // ISO 639-1 code where known, e.g. "en"
	LanguageProbability float64 // 0 when the engine doesn't report it
	Duration            float64 // audio duration in seconds, 0 if unknown
}

// Options tune a single transcription.
type Options struct {
	Engine   string // registered engine name, "" for the service default
	Language string // "" or "auto" to detect
}

func (o Options) language() string {
	if o.Language == "auto" {
		return ""
	}
	return o.Language
}

// Engine is the speech-to-text backend. Implementations are loaded once and
// shared by all requests.
type Engine interface {
	// Transcribe decodes the file at audioPath. onSegment is called exactly
	// once per segment, in chronological order, before Transcribe returns.
	Transcribe(ctx context.Context, audioPath string, opts Options, onSegment func(Segment)) (Info, error)
	// Name returns the engine name
	Name() string
	// Close releases the model or connection.
	Close() error
}
