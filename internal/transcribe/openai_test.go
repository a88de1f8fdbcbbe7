package transcribe

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voicenote/whisper-api/internal/logging"
)

func TestOpenAITranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("model = %q", got)
		}
		if got := r.FormValue("response_format"); got != "verbose_json" {
			t.Errorf("response_format = %q", got)
		}
		if got := r.FormValue("language"); got != "" {
			t.Errorf("language = %q, want empty for auto", got)
		}

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"task":"transcribe","language":"english","duration":2.5,"text":"hello world",
			"segments":[{"id":0,"start":0,"end":1.2,"text":"hello"},{"id":1,"start":1.2,"end":2.5,"text":"world"}]}`)
	}))
	defer srv.Close()

	c := NewOpenAIClient("sk-test", srv.URL+"/v1", "", logging.Discard())
	segs, info, err := collect(t, c, writeAudio(t, "audio"), Options{Language: "auto"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if len(segs) != 2 || segs[0].Text != "hello" || segs[1].End != 2.5 {
		t.Errorf("segments = %+v", segs)
	}
	if info.Language != "en" || info.Duration != 2.5 {
		t.Errorf("info = %+v", info)
	}
}

func TestOpenAISegmentOffset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		io.WriteString(w, `{"language":"fr","duration":3,"segments":[{"start":0.5,"end":3,"text":"bonjour"}]}`)
	}))
	defer srv.Close()

	c := NewOpenAIClient("k", srv.URL, "", logging.Discard())
	var segs []Segment
	info, err := c.transcribeFile(context.Background(), writeAudio(t, "chunk"), "", 600, func(s Segment) {
		segs = append(segs, s)
	})
	if err != nil {
		t.Fatalf("transcribeFile: %v", err)
	}
	if len(segs) != 1 || segs[0].Start != 600.5 || segs[0].End != 603 {
		t.Errorf("segments = %+v", segs)
	}
	if info.Language != "fr" {
		t.Errorf("language = %q", info.Language)
	}
}

func TestOpenAITextOnlyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		io.WriteString(w, `{"text":" just text "}`)
	}))
	defer srv.Close()

	c := NewOpenAIClient("k", srv.URL, "", logging.Discard())
	segs, info, err := collect(t, c, writeAudio(t, "a"), Options{Language: "nl"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if len(segs) != 1 || segs[0].Text != " just text " {
		t.Errorf("segments = %+v", segs)
	}
	if info.Language != "nl" {
		t.Errorf("language = %q, want requested language", info.Language)
	}
}

func TestOpenAIErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"undecodable", http.StatusBadRequest,
			`{"error":{"message":"Invalid file format. Supported formats: flac, mp3","type":"invalid_request_error"}}`,
			ErrUnsupportedAudio},
		{"server error", http.StatusBadGateway, `upstream down`, ErrEngineUnavailable},
		{"api 500", http.StatusInternalServerError, `{"error":{"message":"boom"}}`, ErrEngineUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				io.Copy(io.Discard, r.Body)
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			c := NewOpenAIClient("k", srv.URL, "", logging.Discard())
			_, _, err := collect(t, c, writeAudio(t, "a"), Options{})
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestOpenAIUnauthorizedIsPlainError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"message":"Incorrect API key provided"}}`)
	}))
	defer srv.Close()

	c := NewOpenAIClient("bad", srv.URL, "", logging.Discard())
	_, _, err := collect(t, c, writeAudio(t, "a"), Options{})
	if err == nil || errors.Is(err, ErrEngineUnavailable) || errors.Is(err, ErrUnsupportedAudio) {
		t.Fatalf("err = %v", err)
	}
}
