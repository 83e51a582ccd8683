// Package handlers wires the HTTP surface: request parsing, response
// envelopes, auth, and route registration over the read/uploadsvc/tiles
// packages.
package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/redgrouse/backend/internal/apperror"
)

// errorBody is the JSON shape every error response carries, matching the
// taxonomy's client-visible codes.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	return dec.Decode(dst)
}

// respondError maps an apperror.Code to its HTTP status and writes the
// curated client-visible message; unexpected error types are never leaked,
// they fall back to a generic internal error.
func respondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	appErr, ok := apperror.As(err)
	if !ok {
		logger.Error("unclassified error", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error", Code: string(apperror.CodeInternal)})
		return
	}

	status := statusFor(appErr.Code)
	if status >= 500 {
		logger.Error("request failed", "code", appErr.Code, "error", err)
	}
	writeJSON(w, status, errorBody{Error: appErr.Message, Code: string(appErr.Code)})
}

func statusFor(code apperror.Code) int {
	switch code {
	case apperror.CodeBadRequest:
		return http.StatusBadRequest
	case apperror.CodeUnauthorised:
		return http.StatusUnauthorized
	case apperror.CodeForbidden:
		return http.StatusForbidden
	case apperror.CodeNotFound:
		return http.StatusNotFound
	case apperror.CodeTimeout:
		return http.StatusGatewayTimeout
	case apperror.CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
