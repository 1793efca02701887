package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"research-orchestrator/internal/domain"
	"research-orchestrator/internal/infra/logging"
	"research-orchestrator/internal/infra/redis"

	"github.com/rs/zerolog"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type okBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

const maxJSONBody = 1 << 20

var userActionKey = redis.UserActionKey

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body", domain.ErrInvalidArgument)
	}
	return nil
}

// statusFor maps domain errors to HTTP codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrJobDeleted):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrForbidden), errors.Is(err, domain.ErrMissingAPIKey):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrUnsupportedProvider):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrUnsupportedFileType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, domain.ErrQueueFull):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError answers with the mapped status. Internal errors are logged and
// their text is not sent to the client.
func writeError(w http.ResponseWriter, r *http.Request, logger *zerolog.Logger, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error()}
	switch {
	case status == http.StatusInternalServerError:
		l := logging.With(r.Context(), logger)
		l.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		body = errorBody{Error: "internal server error"}
	case errors.Is(err, domain.ErrMissingAPIKey):
		body = errorBody{Error: "API key not configured", Message: err.Error()}
	case errors.Is(err, domain.ErrNotFound):
		body = errorBody{Error: notFoundText(r)}
	}
	writeJSON(w, status, body)
}

func notFoundText(r *http.Request) string {
	if pathHasPrefix(r, "/documents") && !pathHasPrefix(r, "/documents/job/") {
		return "Document not found"
	}
	return "Job not found"
}

func retryAfter(window time.Duration) string {
	secs := int(window.Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
