package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/kfreiman/feishuingest/internal/feishu"
)

// ValidationError represents input validation failure
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field != "" && e.Value != "" {
		return fmt.Sprintf("validation failed for %s '%s': %s", e.Field, e.Value, e.Reason)
	}
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("validation failed: %s", e.Reason)
}

// ErrorResponse is the JSON body of every failed API call
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// errorStatus maps an ingestion error to the HTTP status and the response body
func errorStatus(err error) (int, ErrorResponse) {
	var (
		validationErr *ValidationError
		linkErr       *feishu.InvalidLinkError
		kindErr       *feishu.UnsupportedKindError
		permissionErr *feishu.PermissionError
	)

	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, ErrorResponse{Error: err.Error()}
	case errors.As(err, &linkErr):
		return http.StatusBadRequest, ErrorResponse{Error: "invalid document link", Details: err.Error()}
	case errors.As(err, &kindErr):
		return http.StatusBadRequest, ErrorResponse{Error: "unsupported document type", Details: err.Error()}
	case errors.As(err, &permissionErr):
		return http.StatusForbidden, ErrorResponse{Error: err.Error(), Details: permissionErr.Guidance()}
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: err.Error()}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status, body := errorStatus(err)
	writeJSON(w, status, body)
}
