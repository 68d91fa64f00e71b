package main

import (
	"encoding/json"
	"net/http"

	"github.com/tapfederation/tap/taperrors"
)

// errorBody is the wire shape of a rejected command's `err` payload.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

func statusForCode(code taperrors.Code) int {
	switch code {
	case taperrors.BadRequest:
		return http.StatusBadRequest
	case taperrors.Unauthorized:
		return http.StatusUnauthorized
	case taperrors.Forbidden:
		return http.StatusForbidden
	case taperrors.NotFound:
		return http.StatusNotFound
	case taperrors.Conflict, taperrors.CapacityViolation, taperrors.ExpiredHold:
		return http.StatusConflict
	case taperrors.RateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := taperrors.CodeOf(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusForCode(code))
	_ = json.NewEncoder(w).Encode(errorBody{Code: string(code), Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
