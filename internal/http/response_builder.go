// Package http provides the versioned JSON API.
//
// This file implements the builder used by every handler to write JSON
// bodies and the error envelope.

package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"ikpa/internal/apperr"
	"ikpa/internal/auth"
	"ikpa/internal/core"
	"ikpa/internal/shark"
	"ikpa/internal/simulation"
)

// JSONResponse provides a fluent API for building JSON responses.
type JSONResponse struct {
	statusCode int
	body       any
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse(body any) *JSONResponse {
	return &JSONResponse{
		statusCode: http.StatusOK,
		body:       body,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponse) Status(code int) *JSONResponse {
	b.statusCode = code
	return b
}

// Header sets a custom header on the response.
func (b *JSONResponse) Header(key, value string) *JSONResponse {
	b.headers[key] = value
	return b
}

// Write sends the response. A nil body writes only the status.
func (b *JSONResponse) Write(w http.ResponseWriter) {
	for k, v := range b.headers {
		w.Header().Set(k, v)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}

	data, err := json.Marshal(b.body)
	if err != nil {
		slog.Error("Failed to encode response", "component", "http", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"code":"INTERNAL_ERROR","message":"An unexpected error occurred"}}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(data)
	_, _ = w.Write([]byte("\n"))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	NewJSONResponse(body).Status(status).Write(w)
}

type errorEnvelope struct {
	Error *apperr.Error `json:"error"`
}

// toAppError maps domain errors onto the public error codes.
func toAppError(err error) *apperr.Error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae
	}
	switch {
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrEmptyName),
		errors.Is(err, core.ErrNameTooLong),
		errors.Is(err, core.ErrInvalidFrequency),
		errors.Is(err, core.ErrInvalidCategory),
		errors.Is(err, core.ErrInvalidEmail),
		errors.Is(err, core.ErrInvalidCurrency),
		errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrNegativeBalance),
		errors.Is(err, simulation.ErrInvalidInput),
		errors.Is(err, shark.ErrInvalidDecision):
		return apperr.Validation(err.Error())
	case errors.Is(err, auth.ErrInvalidToken):
		return apperr.Unauthorized("missing or invalid access token")
	case errors.Is(err, core.ErrNotFound):
		return apperr.NotFound("resource")
	case errors.Is(err, core.ErrConflict):
		return apperr.Conflict("resource already exists")
	}
	return apperr.From(err)
}

// writeError writes the error envelope. Internal errors are logged with their
// cause and reach the client without it.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	ae := toAppError(err)
	if ae.Status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "Request failed",
			"component", "http",
			"method", r.Method,
			"path", r.URL.Path,
			"code", ae.Code,
			"error", err)
	} else {
		slog.DebugContext(r.Context(), "Request rejected",
			"component", "http",
			"path", r.URL.Path,
			"code", ae.Code,
			"error", err)
	}
	writeJSON(w, ae.Status, errorEnvelope{Error: ae})
}
