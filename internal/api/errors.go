package api

import (
	"errors"
	"net/http"

	"github.com/rshade/ecohabit/internal/auth"
	"github.com/rshade/ecohabit/internal/habits"
)

// Error codes returned in the "code" field of error responses.
const (
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeInvalidValue    = "INVALID_VALUE"
	CodeUnauthenticated = "UNAUTHENTICATED"
	CodeNotFound        = "NOT_FOUND"
	CodeAlreadyExists   = "ALREADY_EXISTS"
	CodeChallengeClosed = "CHALLENGE_CLOSED"
	CodeNotJoined       = "NOT_JOINED"
	CodeRateLimited     = "RATE_LIMITED"
	CodeInternal        = "INTERNAL"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}

// errorStatus maps a domain error to an HTTP status and error code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, habits.ErrInvalidValue):
		return http.StatusBadRequest, CodeInvalidValue
	case errors.Is(err, habits.ErrInvalidArgument), errors.Is(err, errBadRequest):
		return http.StatusBadRequest, CodeInvalidArgument
	case errors.Is(err, auth.ErrMissingToken), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, CodeUnauthenticated
	case errors.Is(err, habits.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, habits.ErrAlreadyExists):
		return http.StatusConflict, CodeAlreadyExists
	case errors.Is(err, habits.ErrChallengeClosed):
		return http.StatusConflict, CodeChallengeClosed
	case errors.Is(err, habits.ErrNotJoined):
		return http.StatusConflict, CodeNotJoined
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// writeError writes the JSON error envelope. Internal errors are logged and
// their message is replaced so storage details do not leak to clients.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	traceID := TraceIDFromContext(r.Context())
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error().
			Str("trace_id", traceID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Err(err).
			Msg("request failed")
		message = "internal error"
	}
	s.writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message, TraceID: traceID}})
}
