package middleware

import (
	"context"
	"net/http"
	"strings"
)

type idempotencyKey string

const (
	IdempotencyHeader       = "Idempotency-Key"
	idempotencyContextKey   = idempotencyKey("idempotencyKey")
	maxIdempotencyKeyLength = 128
)

// Idempotency stores the Idempotency-Key header of a create request in the
// context. Keys longer than 128 bytes are cut to that length.
func Idempotency(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}
		if len(key) > maxIdempotencyKeyLength {
			key = key[:maxIdempotencyKeyLength]
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), idempotencyContextKey, key)))
	})
}

// IdempotencyKey returns the key Idempotency stored, or "".
func IdempotencyKey(r *http.Request) string {
	if r == nil {
		return ""
	}
	if value, ok := r.Context().Value(idempotencyContextKey).(string); ok {
		return value
	}
	return ""
}
