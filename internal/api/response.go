package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coursebench/workspaced/internal/core"
)

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes an error response.
func WriteError(w http.ResponseWriter, err *core.AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Code.HTTPStatus())
	json.NewEncoder(w).Encode(ErrorResponse{
		Code:    string(err.Code),
		Message: err.Message,
	})
}

// WriteAppError maps any error onto the uniform error body, wrapping
// plain errors as internal.
func WriteAppError(w http.ResponseWriter, err error) {
	var ae *core.AppError
	if !errors.As(err, &ae) {
		ae = core.NewAppError(core.ErrInternal, "internal server error")
	}
	WriteError(w, ae)
}

// WriteJSON writes a JSON response.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteAccepted writes a 202 Accepted response pointing at the resource
// to poll for progress.
func WriteAccepted(w http.ResponseWriter, statusHref string) {
	WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":      "PENDING",
		"status_href": statusHref,
	})
}
