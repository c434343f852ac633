package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/subjectboard/server/internal/api/middleware"
	"github.com/subjectboard/server/internal/api/pagination"
	"github.com/subjectboard/server/internal/api/problem"
	"github.com/subjectboard/server/internal/domain/content"
	"github.com/subjectboard/server/internal/validation"
)

var errEmptyBody = errors.New("request body is empty")

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type messageResponse struct {
	Message string `json:"message"`
}

// decodeJSON reads one JSON object into dst and writes the problem response
// itself on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, env string) bool {
	dec := json.NewDecoder(r.Body)
	err := dec.Decode(dst)
	if errors.Is(err, io.EOF) {
		err = errEmptyBody
	}
	if err == nil {
		return true
	}

	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		problem.Write(w, r, http.StatusRequestEntityTooLarge, problem.TypeBodyTooLarge, "Payload Too Large", err, env,
			problem.WithDetail("request body must not exceed "+formatBytes(maxErr.Limit)))
		return false
	}
	problem.Write(w, r, http.StatusBadRequest, problem.TypeMalformedBody, "Malformed Request Body", err, env,
		problem.WithDetail("request body must be a JSON object"))
	return false
}

// writeServiceError maps service errors onto problem responses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, env string) {
	var fieldErrs *validation.FieldErrors
	switch {
	case errors.As(err, &fieldErrs):
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Validation Failed", err, env,
			problem.WithDetail(fieldErrs.Message),
			problem.WithErrors(fieldErrs.Fields))
	case errors.Is(err, pagination.ErrInvalidCursor):
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Validation Failed", err, env,
			problem.WithDetail("invalid cursor"))
	case errors.Is(err, content.ErrIdempotencyConflict):
		problem.Write(w, r, http.StatusConflict, problem.TypeConflict, "Conflict", err, env,
			problem.WithDetail("Idempotency-Key was already used for a different request"))
	case errors.Is(err, content.ErrGroupNotFound):
		problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "Not Found", err, env,
			problem.WithDetail("group not found"))
	case errors.Is(err, content.ErrContentNotFound):
		problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "Not Found", err, env,
			problem.WithDetail("content not found"))
	default:
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeInternal, "Internal Server Error", err, env)
	}
}

// fingerprint prefers the client supplied value and falls back to the
// caller's address as resolved by middleware.ClientIP.
func fingerprint(r *http.Request, supplied string) string {
	if supplied != "" {
		return supplied
	}
	return middleware.ClientIPFromRequest(r)
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20 && n%(1<<20) == 0:
		return strconv.FormatInt(n>>20, 10) + " MiB"
	case n >= 1<<10 && n%(1<<10) == 0:
		return strconv.FormatInt(n>>10, 10) + " KiB"
	default:
		return strconv.FormatInt(n, 10) + " bytes"
	}
}
