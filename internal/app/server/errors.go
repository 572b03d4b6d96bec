package server

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"townsquare/internal/database"
	"townsquare/internal/guard"
)

const (
	codePolicyViolation = "GUEST_POLICY_VIOLATION"
	codeTooManyImages   = "TOO_MANY_IMAGES"
)

type errorResponse struct {
	Error             string     `json:"error"`
	Code              string     `json:"code,omitempty"`
	Category          string     `json:"category,omitempty"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	RetryAfterSeconds int        `json:"retry_after_seconds,omitempty"`
	Window            string     `json:"window,omitempty"`
	RequestID         string     `json:"request_id,omitempty"`
}

// writeGuardError maps guard and store errors onto a status code and body.
func writeGuardError(w http.ResponseWriter, r *http.Request, err error) {
	resp := errorResponse{Error: err.Error(), RequestID: requestIDFrom(r.Context())}
	status := http.StatusInternalServerError

	var gerr *guard.Error
	var violation *guard.ViolationError
	switch {
	case errors.As(err, &gerr):
		status = gerr.Code.HTTPStatus()
		resp.Code = string(gerr.Code)
		resp.Error = gerr.Error()
		resp.ExpiresAt = gerr.ExpiresAt
		resp.Window = gerr.Window

		retry := gerr.RetryAfter
		if retry == 0 && gerr.ExpiresAt != nil {
			retry = time.Until(*gerr.ExpiresAt)
		}
		if retry > 0 {
			resp.RetryAfterSeconds = int(math.Ceil(retry.Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(resp.RetryAfterSeconds))
		}
	case errors.As(err, &violation):
		status = http.StatusUnprocessableEntity
		resp.Code = codePolicyViolation
		resp.Category = violation.Category
		resp.Error = violation.Reason
	case errors.Is(err, guard.ErrTooManyImages):
		status = http.StatusBadRequest
		resp.Code = codeTooManyImages
	case errors.Is(err, database.ErrNotFound):
		status = http.StatusNotFound
		resp.Error = "not found"
	}

	if status >= http.StatusInternalServerError {
		log.Error("Guest request failed", "method", r.Method, "path", r.URL.Path, "request_id", resp.RequestID, "code", guard.CodeOf(err), "error", err)
		if resp.Code == "" {
			resp.Error = "internal error"
		}
	}
	writeJSON(w, status, resp)
}
