package middleware

import "net/http"

// DefaultMaxBodySize caps JSON request bodies. The largest accepted field is
// a 20k character text body.
const DefaultMaxBodySize int64 = 256 << 10

// RequestSize wraps the body in http.MaxBytesReader. Handlers report the
// resulting *http.MaxBytesError as 413.
func RequestSize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
