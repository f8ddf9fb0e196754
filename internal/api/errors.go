package api

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/wallet-aggregator/internal/errors"
	"github.com/wallet-aggregator/internal/logging"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error   string      `json:"error"`
	Code    string      `json:"code,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details interface{}) {
	respondJSON(w, statusCode, ErrorResponse{Error: message, Code: code, Details: details})
}

// respondServiceError maps a service error to its status and sends it.
// Server errors carry the underlying cause in details.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	catErr := apperrors.Categorize(err)
	if catErr.StatusCode >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).WithError(err).WithField("path", r.URL.Path).Error("Request failed")
		details := map[string]interface{}{"cause": err.Error()}
		for k, v := range catErr.Details {
			details[k] = v
		}
		respondError(w, catErr.StatusCode, catErr.Code, catErr.Message, details)
		return
	}
	respondError(w, catErr.StatusCode, catErr.Code, catErr.Message, catErr.Details)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// parseJSONBody parses JSON request body.
func parseJSONBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// Common error codes
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeRefetchFailed = "REFETCH_FAILED"
)
