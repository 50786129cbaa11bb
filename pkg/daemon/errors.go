package daemon

import (
	"encoding/json"
	"net/http"

	"github.com/hack-dance/hackd/pkg/apierrors"
)

// errorBody is the uniform `{code, message, details?}` shape of §4.H
// "Request/response contract".
type errorBody struct {
	Code    apierrors.Code `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, err *apierrors.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{
		Code:    err.Code,
		Message: err.Message,
		Details: err.Details,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusForCode maps the §7 taxonomy to an HTTP status for handler
// responses.
func statusForCode(code apierrors.Code) int {
	switch code {
	case apierrors.CodeNotReady, apierrors.CodeRuntimeUnavailable:
		return http.StatusServiceUnavailable
	case apierrors.CodeAlreadyRunning, apierrors.CodeStaleState, apierrors.CodeProjectConflict, apierrors.CodeConcurrentModification:
		return http.StatusConflict
	case apierrors.CodeUnknownProject, apierrors.CodeUnknownToken:
		return http.StatusNotFound
	case apierrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case apierrors.CodePermissionDenied:
		return http.StatusForbidden
	case apierrors.CodeInvalidRequest, apierrors.CodeInvalidScope:
		return http.StatusBadRequest
	case apierrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
