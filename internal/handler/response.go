package handler

// Every response from the API, success or failure, is one Envelope:
//
//	{"success": true,  "statusCode": 200, "message": "...", "data": {...}}
//	{"success": false, "statusCode": 400, "message": "...", "data": null,
//	 "errors": [{"field": "email", "message": "email is required"}]}
//
// Handlers are APIFunc values that return an error instead of writing one.
// Handle turns that error into the envelope, so status mapping lives in one
// place (statusFor) and handlers never call WriteHeader on the error path.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/eventhub/internal/apperror"
)

// Envelope is the JSON wrapper around every response body.
type Envelope struct {
	Success    bool         `json:"success"`
	StatusCode int          `json:"statusCode"`
	Message    string       `json:"message"`
	Data       any          `json:"data"`
	Errors     []FieldError `json:"errors,omitempty"`
}

// FieldError points at the request field that failed validation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// APIFunc is an http.HandlerFunc that reports failure by returning an error.
type APIFunc func(w http.ResponseWriter, r *http.Request) error

// Handle adapts an APIFunc for the router.
func Handle(fn APIFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			WriteError(w, r, err)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		// Headers are already out; all that is left is to log it.
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// respond writes a success envelope.
func respond(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, Envelope{
		Success:    true,
		StatusCode: status,
		Message:    message,
		Data:       data,
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, apperror.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// WriteError maps err onto a failure envelope. Anything that is not an
// *apperror.AppError is logged and reported as a generic 500 so driver
// messages and file paths never reach the client.
//
// Its signature matches auth.ErrorWriter so the session middleware shares it.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperror.AppError
	status := statusFor(err)

	if !errors.As(err, &appErr) || status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed",
			slog.String("requestID", chimiddleware.GetReqID(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusInternalServerError, Envelope{
			StatusCode: http.StatusInternalServerError,
			Message:    "An internal error occurred",
		})
		return
	}

	env := Envelope{
		StatusCode: status,
		Message:    appErr.Message,
	}
	if appErr.Field != "" {
		env.Errors = []FieldError{{Field: appErr.Field, Message: appErr.Message}}
	}
	writeJSON(w, status, env)
}

// HandleNotFound answers unmatched routes with the usual envelope.
func HandleNotFound(w http.ResponseWriter, r *http.Request) {
	WriteError(w, r, apperror.NotFoundMsg("Route "+r.Method+" "+r.URL.Path+" not found"))
}
