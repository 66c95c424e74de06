package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/hide-yama/file-share/internal/sharing"
	"github.com/hide-yama/file-share/internal/textroom"
)

type errorBody struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Issues  []sharing.Issue `json:"issues,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// decodeJSON reads a small JSON request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// denialReason names a domain error for logs and metrics. It returns ""
// for errors that are not a client-visible denial.
func denialReason(err error) string {
	var verr *sharing.ValidationError
	switch {
	case errors.As(err, &verr):
		return "invalid"
	case errors.Is(err, sharing.ErrTooManyAttempts):
		return "locked"
	case errors.Is(err, sharing.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, sharing.ErrNotFound):
		return "not_found"
	case errors.Is(err, sharing.ErrGone):
		return "gone"
	}
	return ""
}

// writeDomainError maps a sharing error to its HTTP response. Dependency
// failures are logged with detail and answered generically.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr   *sharing.ValidationError
		locked *sharing.LockedError
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation failed", Issues: verr.Issues})
	case errors.As(err, &locked):
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(time.Until(locked.Until))))
		writeError(w, http.StatusTooManyRequests, "too many failed attempts, try again later")
	case errors.Is(err, sharing.ErrTooManyAttempts):
		writeError(w, http.StatusTooManyRequests, "too many failed attempts, try again later")
	case errors.Is(err, sharing.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "invalid password")
	case errors.Is(err, sharing.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, sharing.ErrGone):
		writeError(w, http.StatusGone, "this share has expired")
	default:
		s.log.Error("request failed",
			zap.String("rid", RequestIDFromContext(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// deny answers a failed read and counts it.
func (s *Server) deny(w http.ResponseWriter, r *http.Request, err error) {
	if reason := denialReason(err); reason != "" {
		s.metrics.RecordDenial(reason)
	}
	s.writeDomainError(w, r, err)
}

func (s *Server) writeRoomError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, textroom.ErrNotFound):
		writeError(w, http.StatusNotFound, "room not found")
	case errors.Is(err, textroom.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "content too large")
	default:
		s.writeDomainError(w, r, err)
	}
}
