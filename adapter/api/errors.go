package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	accessDomain "github.com/maximegiguere1one/chiroflow/internal/access/domain"
	schedulingDomain "github.com/maximegiguere1one/chiroflow/internal/scheduling/domain"
	sharedDomain "github.com/maximegiguere1one/chiroflow/internal/shared/domain"
)

// APIError is the JSON error body.
type APIError struct {
	Status  int      `json:"-"`
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Reasons []string `json:"reasons,omitempty"`
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

func badRequest(message string) *APIError {
	return &APIError{Status: http.StatusBadRequest, Code: "validation_error", Message: message}
}

// toAPIError maps domain error classes to HTTP statuses.
func toAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var policy *schedulingDomain.PolicyViolationError
	switch {
	case errors.As(err, &policy):
		return &APIError{Status: http.StatusUnprocessableEntity, Code: "policy_violation", Message: err.Error(), Reasons: policy.Reasons}
	case errors.Is(err, accessDomain.ErrTokenExpired):
		return &APIError{Status: http.StatusGone, Code: "token_expired", Message: err.Error()}
	case errors.Is(err, sharedDomain.ErrValidation):
		return &APIError{Status: http.StatusBadRequest, Code: "validation_error", Message: err.Error()}
	case errors.Is(err, sharedDomain.ErrNotFound):
		return &APIError{Status: http.StatusNotFound, Code: "not_found", Message: err.Error()}
	case errors.Is(err, sharedDomain.ErrConflict),
		errors.Is(err, sharedDomain.ErrConcurrentUpdate),
		errors.Is(err, sharedDomain.ErrInvalidTransition):
		return &APIError{Status: http.StatusConflict, Code: "conflict", Message: err.Error()}
	case errors.Is(err, sharedDomain.ErrPolicyViolation):
		return &APIError{Status: http.StatusUnprocessableEntity, Code: "policy_violation", Message: err.Error()}
	default:
		return &APIError{Status: http.StatusInternalServerError, Code: "internal_error", Message: "Internal server error"}
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", "error", err)
		}
	}
}

// writeError writes the mapped error. Unexpected errors are logged.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	apiErr := toAPIError(err)
	if apiErr.Status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeJSON(w, apiErr.Status, apiErr)
}

// decodeJSON reads a request body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid JSON body: " + err.Error())
	}
	return nil
}
