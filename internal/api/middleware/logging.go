package middleware

import (
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// silentPaths are high-frequency polling endpoints that are only logged on errors (status >= 400).
var silentPaths = map[string]bool{
	"/api/health": true,
}

// Logger logs one line per request with the chi request id.
func Logger(logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if silentPaths[r.URL.Path] && status < 400 {
				return
			}

			kv := []any{
				"status", status,
				"duration", time.Since(start).Round(time.Microsecond),
				"bytes", ww.BytesWritten(),
			}
			if id := chimw.GetReqID(r.Context()); id != "" {
				kv = append(kv, "request_id", id)
			}
			switch {
			case status >= 500:
				logger.Error(r.Method+" "+r.URL.Path, kv...)
			case status >= 400:
				logger.Warn(r.Method+" "+r.URL.Path, kv...)
			default:
				logger.Info(r.Method+" "+r.URL.Path, kv...)
			}
		})
	}
}
