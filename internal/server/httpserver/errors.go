package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/freighter-go/registry/internal/errs"
)

// statusFor maps a sentinel error to its HTTP status code, the Go analogue
// of original_source's IntoResponse impls for IndexError/AuthError — one
// mapping table instead of scattered per-handler status checks.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, errs.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, errs.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrVersionExists), errors.Is(err, errs.ErrConflict), errors.Is(err, errs.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, errs.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errs.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, errs.ErrShuttingDown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes a JSON error body cargo clients understand
// (`{"errors":[{"detail":"..."}]}`) with the status statusFor(err) maps to.
func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		detail = "internal error"
	}
	_ = json.NewEncoder(w).Encode(struct {
		Errors []struct {
			Detail string `json:"detail"`
		} `json:"errors"`
	}{Errors: []struct {
		Detail string `json:"detail"`
	}{{Detail: detail}}})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
