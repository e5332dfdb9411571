package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/bdougie/relife/internal/apperrors"
)

// errorResponse is the body of every non-2xx JSON response.
type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// respondJSON writes data as the JSON response body.
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

func respondError(w http.ResponseWriter, statusCode int, msg string) {
	respondJSON(w, statusCode, errorResponse{Error: msg})
}

// respondErr maps the error taxonomy onto HTTP status codes.
func respondErr(w http.ResponseWriter, err error) {
	var pe *apperrors.ProviderError
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, apperrors.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &pe):
		status := http.StatusBadGateway
		if pe.Kind == apperrors.KindConfig {
			status = http.StatusBadRequest
		}
		respondJSON(w, status, errorResponse{Error: pe.Error(), Details: pe.Body})
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// flexInt accepts a JSON number or a numeric string.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		return apperrors.NewValidationError("body", "Invalid JSON body")
	}
	return nil
}
