package models

import (
	"encoding/json"
	"time"
)

// Transcription is a stored transcription result.
type Transcription struct {
	ID             string          `json:"id"`
	Filename       string          `json:"filename"`
	Engine         string          `json:"engine"`
	Language       string          `json:"language"`
	Text           string          `json:"text"`
	Segments       json.RawMessage `json:"segments,omitempty"`
	Duration       float64         `json:"duration"`        // audio length in seconds
	ProcessingTime float64         `json:"processing_time"` // seconds
	CreatedAt      time.Time       `json:"created_at"`
}
