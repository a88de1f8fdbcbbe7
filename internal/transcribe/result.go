package transcribe

import "strings"

// Result is the response body of a transcription.
type Result struct {
	Language string    `json:"language"`
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
}

// Collector accumulates segments as an engine emits them.
type Collector struct {
	segments []Segment
}

// Add is an onSegment callback.
func (c *Collector) Add(s Segment) {
	c.segments = append(c.segments, s)
}

func (c *Collector) Len() int {
	return len(c.segments)
}

// Result joins the segment texts with single spaces, trims the ends, and
// keeps the segments verbatim in arrival order.
func (c *Collector) Result(language string) *Result {
	texts := make([]string, len(c.segments))
	for i, s := range c.segments {
		texts[i] = s.Text
	}

	segments := c.segments
	if segments == nil {
		segments = []Segment{}
	}

	return &Result{
		Language: language,
		Text:     strings.TrimSpace(strings.Join(texts, " ")),
		Segments: segments,
	}
}
