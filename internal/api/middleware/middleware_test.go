package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/voicenote/whisper-api/internal/auth"
	"github.com/voicenote/whisper-api/internal/logging"
)

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("ok"))
}

func TestLoggerSilentHealth(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(&buf, "info", "logfmt")
	if err != nil {
		t.Fatal(err)
	}
	h := chimw.RequestID(Logger(logger)(http.HandlerFunc(okHandler)))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if buf.Len() != 0 {
		t.Errorf("health request logged: %s", buf.String())
	}

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/transcribe", nil))
	out := buf.String()
	if !strings.Contains(out, "POST /transcribe") || !strings.Contains(out, "status=200") || !strings.Contains(out, "request_id=") {
		t.Errorf("log line = %q", out)
	}
}

func TestLoggerFailingHealthIsLogged(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := logging.New(&buf, "info", "logfmt")
	h := Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if !strings.Contains(buf.String(), "status=503") {
		t.Errorf("log line = %q", buf.String())
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	defer rl.Stop()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	h := rl.Handler(http.HandlerFunc(okHandler))

	do := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/transcribe", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	// same IP, different ports
	if do("10.0.0.1:1000").Code != 200 || do("10.0.0.1:1001").Code != 200 {
		t.Fatal("first two requests should pass")
	}
	rec := do("10.0.0.1:1002")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third request = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "61" {
		t.Errorf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}
	if do("10.0.0.2:1000").Code != 200 {
		t.Error("other IP should pass")
	}

	now = now.Add(time.Minute + time.Second)
	if do("10.0.0.1:1003").Code != 200 {
		t.Error("request after window should pass")
	}
}

func TestAuthMiddleware(t *testing.T) {
	jwtService := auth.NewJWTService("secret")
	token, _ := jwtService.GenerateToken(1, "admin", "admin")
	userToken, _ := jwtService.GenerateToken(2, "bob", "user")

	var gotUser string
	h := AuthMiddleware(jwtService)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = GetClaims(r).Username
	}))
	admin := AuthMiddleware(jwtService)(RequireRole("admin")(http.HandlerFunc(okHandler)))

	tests := []struct {
		name    string
		handler http.Handler
		header  string
		want    int
	}{
		{"missing", h, "", http.StatusUnauthorized},
		{"bad scheme", h, "Basic abc", http.StatusUnauthorized},
		{"bad token", h, "Bearer nope", http.StatusUnauthorized},
		{"valid", h, "Bearer " + token, http.StatusOK},
		{"role ok", admin, "Bearer " + token, http.StatusOK},
		{"role forbidden", admin, "Bearer " + userToken, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			tt.handler.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
			if tt.want != http.StatusOK && rec.Header().Get("Content-Type") != "application/json" {
				t.Errorf("Content-Type = %q", rec.Header().Get("Content-Type"))
			}
			if tt.want == http.StatusUnauthorized && rec.Header().Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate header")
			}
		})
	}
	if gotUser != "admin" {
		t.Errorf("claims user = %q", gotUser)
	}
}

func TestMaxBodySize(t *testing.T) {
	called := false
	var readErr error
	h := MaxBodySize(4)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		_, readErr = io.ReadAll(r.Body)
	}))

	// declared length over the limit never reaches the handler
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("too long body")))
	if rec.Code != http.StatusRequestEntityTooLarge || called {
		t.Errorf("status = %d, handler called = %v", rec.Code, called)
	}

	// unknown length is cut off while reading
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("too long body"))
	req.ContentLength = -1
	h.ServeHTTP(httptest.NewRecorder(), req)
	var maxErr *http.MaxBytesError
	if !called || !errors.As(readErr, &maxErr) {
		t.Errorf("err = %v, want MaxBytesError", readErr)
	}

	// zero disables the limit
	called = false
	MaxBodySize(0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader("anything")))
	if !called {
		t.Error("MaxBodySize(0) blocked the request")
	}
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://app.example"})(http.HandlerFunc(okHandler))

	req := httptest.NewRequest(http.MethodOptions, "/transcribe", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Errorf("allow origin = %q", got)
	}
	if rec.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Error("credentials should be allowed for an explicit origin")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("foreign origin allowed: %q", got)
	}
}
