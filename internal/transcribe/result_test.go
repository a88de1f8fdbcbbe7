package transcribe

import (
	"encoding/json"
	"testing"
)

func TestCollectorResult(t *testing.T) {
	var c Collector
	c.Add(Segment{Start: 0.0, End: 1.2, Text: "hello"})
	c.Add(Segment{Start: 1.2, End: 2.5, Text: "world"})

	got, err := json.Marshal(c.Result("en"))
	if err != nil {
		t.Fatal(err)
	}
	want := `{"language":"en","text":"hello world","segments":[{"start":0,"end":1.2,"text":"hello"},{"start":1.2,"end":2.5,"text":"world"}]}`
	if string(got) != want {
		t.Errorf("result JSON\n got: %s\nwant: %s", got, want)
	}
}

func TestCollectorText(t *testing.T) {
	tests := []struct {
		name  string
		texts []string
		want  string
	}{
		{"none", nil, ""},
		{"single", []string{"hi"}, "hi"},
		{"leading spaces as emitted by whisper", []string{" Hello.", " How are you?"}, "Hello.  How are you?"},
		{"trailing whitespace trimmed", []string{"a", "b "}, "a b"},
		{"empty segment keeps separator", []string{"a", "", "b"}, "a  b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Collector
			for i, text := range tt.texts {
				c.Add(Segment{Start: float64(i), End: float64(i + 1), Text: text})
			}
			r := c.Result("en")
			if r.Text != tt.want {
				t.Errorf("Text = %q, want %q", r.Text, tt.want)
			}
			if len(r.Segments) != len(tt.texts) {
				t.Fatalf("got %d segments, want %d", len(r.Segments), len(tt.texts))
			}
			for i, s := range r.Segments {
				if s.Text != tt.texts[i] {
					t.Errorf("segment %d text = %q, want verbatim %q", i, s.Text, tt.texts[i])
				}
			}
		})
	}
}

func TestCollectorEmptySegmentsMarshalAsArray(t *testing.T) {
	var c Collector
	got, err := json.Marshal(c.Result("de"))
	if err != nil {
		t.Fatal(err)
	}
	want := `{"language":"de","text":"","segments":[]}`
	if string(got) != want {
		t.Errorf("got %s, want %s", got, want)
	}
}
