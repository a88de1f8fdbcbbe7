package middleware

import (
	"net/http"
	"strconv"
)

// MaxBodySize caps the request body at maxBytes. Requests that declare a
// larger Content-Length are answered with 413 before the handler runs;
// chunked bodies are cut off by http.MaxBytesReader and the handler sees a
// *http.MaxBytesError. A limit of 0 or less disables the check.
func MaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if maxBytes <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				writeError(w, "request body exceeds "+strconv.FormatInt(maxBytes, 10)+" bytes", http.StatusRequestEntityTooLarge)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
