package web

// errors.go provides unified error response handling for the web layer.
//
// The error flow:
//  1. Handler encounters an error
//  2. Calls respondError(w, r, err, statusFor(err))
//  3. Error is mapped via core.MapError to get user-friendly message
//  4. Technical error + context is logged with request ID for correlation
//  5. User message is rendered as JSON, or as an HTML fragment for HTMX

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/JonMunkholm/ledgerimport/internal/core"
	"github.com/JonMunkholm/ledgerimport/internal/extraction"
	"github.com/JonMunkholm/ledgerimport/internal/ledger"
	"github.com/JonMunkholm/ledgerimport/internal/mapping"
	"github.com/JonMunkholm/ledgerimport/internal/staging"
	"github.com/JonMunkholm/ledgerimport/internal/web/templates"
	"github.com/go-chi/chi/v5/middleware"
)

var (
	// errInvalidRequest wraps body and parameter validation failures.
	errInvalidRequest = errors.New("invalid request")

	errRateLimited = errors.New("rate limit exceeded")
	errNoFile      = errors.New("no file provided")
	errFileTooBig  = errors.New("file too large")
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

// statusFor picks the HTTP status for an error returned by a collaborator.
func statusFor(err error) int {
	var dispatchErr *extraction.DispatchError

	switch {
	case errors.Is(err, errInvalidRequest),
		errors.Is(err, errNoFile),
		errors.Is(err, staging.ErrInvalidKey),
		errors.Is(err, extraction.ErrInvalidLink),
		errors.Is(err, core.ErrEmptyUpload),
		errors.Is(err, mapping.ErrEmptyFile),
		errors.Is(err, core.ErrRowIndex),
		errors.Is(err, core.ErrTooManyRows):
		return http.StatusBadRequest

	case errors.Is(err, errFileTooBig),
		strings.Contains(err.Error(), "file too large"):
		return http.StatusRequestEntityTooLarge

	case errors.Is(err, core.ErrUnsupportedFileType):
		return http.StatusUnsupportedMediaType

	case errors.Is(err, core.ErrSessionNotFound),
		errors.Is(err, ledger.ErrPresetNotFound):
		return http.StatusNotFound

	case errors.Is(err, core.ErrInvalidTransition),
		errors.Is(err, core.ErrSessionBusy),
		errors.Is(err, core.ErrSessionActive),
		errors.Is(err, ledger.ErrPresetExists):
		return http.StatusConflict

	case errors.Is(err, mapping.ErrInvalidMapping),
		errors.Is(err, mapping.ErrInvalidRows),
		errors.Is(err, core.ErrRowsInvalid),
		errors.Is(err, core.ErrNothingToCommit):
		return http.StatusUnprocessableEntity

	case errors.Is(err, core.ErrDocumentsDisabled),
		errors.Is(err, extraction.ErrNotConfigured):
		return http.StatusNotImplemented

	case errors.As(err, &dispatchErr),
		strings.HasPrefix(err.Error(), "fetch link"):
		return http.StatusBadGateway

	case errors.Is(err, core.ErrTooManyUploads),
		errors.Is(err, staging.ErrUnavailable):
		return http.StatusServiceUnavailable
	}

	for _, prefix := range []string{"invalid csv", "encoding error", "invalid json"} {
		if strings.HasPrefix(err.Error(), prefix) {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

// fail responds to err with the status statusFor picks.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	s.respondError(w, r, err, statusFor(err))
}

// respondError handles error responses with user-friendly messages.
// It logs the technical error server-side and returns an appropriate response
// based on the request type.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	s.respondErrorDetails(w, r, err, statusCode, nil)
}

// respondErrorDetails is respondError with machine-readable details, such as
// form or row errors, attached to the JSON body.
func (s *Server) respondErrorDetails(w http.ResponseWriter, r *http.Request, err error, statusCode int, details any) {
	userMsg := core.MapError(err)

	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
		"request_id", middleware.GetReqID(r.Context()),
	}
	if statusCode >= http.StatusInternalServerError {
		slog.Error("request error", attrs...)
	} else {
		slog.Warn("request error", attrs...)
	}

	if isHTMX(r) {
		s.renderErrorPartial(w, r, userMsg, statusCode)
		return
	}
	respondErrorJSON(w, userMsg, statusCode, details)
}

// respondErrorJSON writes a JSON error response.
func respondErrorJSON(w http.ResponseWriter, msg core.UserMessage, statusCode int, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
		Details: details,
	}); err != nil {
		slog.Error("json encode error", "error", err)
	}
}

// renderErrorPartial renders an HTMX-compatible error fragment.
func (s *Server) renderErrorPartial(w http.ResponseWriter, r *http.Request, msg core.UserMessage, statusCode int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(statusCode)

	if err := templates.ErrorAlert(msg.Message, msg.Action, msg.Code).Render(r.Context(), w); err != nil {
		slog.Error("render error partial", "error", err)
	}
}

// isHTMX checks if the request is an HTMX request.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}
