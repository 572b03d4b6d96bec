package guard

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

type Code string

const (
	CodeTempBanned           Code = "GUEST_TEMP_BANNED"
	CodeRateLimited          Code = "RATE_LIMITED"
	CodeInvalidGuestPassword Code = "INVALID_GUEST_PASSWORD"
	CodeCredentialMissing    Code = "GUEST_COMMENT_ONLY"
	CodeSchemaSyncRequired   Code = "SCHEMA_SYNC_REQUIRED"
)

// Sentinels for errors.Is. Matching is by code only.
var (
	ErrTempBanned           = &Error{Code: CodeTempBanned}
	ErrRateLimited          = &Error{Code: CodeRateLimited}
	ErrInvalidGuestPassword = &Error{Code: CodeInvalidGuestPassword}
	ErrCredentialMissing    = &Error{Code: CodeCredentialMissing}
	ErrSchemaSyncRequired   = &Error{Code: CodeSchemaSyncRequired}
)

// ErrTooManyImages is a plain validation failure; it never counts as a violation.
var ErrTooManyImages = errors.New("guard: too many images")

// Error is the typed rejection returned by the guard.
type Error struct {
	Code    Code
	Message string

	// ExpiresAt is set for GUEST_TEMP_BANNED.
	ExpiresAt *time.Time
	// RetryAfter and Window are set for RATE_LIMITED.
	RetryAfter time.Duration
	Window     string

	Err error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = defaultMessage(e.Code)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// CodeOf returns the guard code carried by err, or "" for other errors.
func CodeOf(err error) Code {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	return ""
}

func (c Code) HTTPStatus() int {
	switch c {
	case CodeTempBanned, CodeInvalidGuestPassword:
		return http.StatusForbidden
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeCredentialMissing:
		return http.StatusConflict
	case CodeSchemaSyncRequired:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func defaultMessage(c Code) string {
	switch c {
	case CodeTempBanned:
		return "guest writes are temporarily blocked"
	case CodeRateLimited:
		return "too many guest writes, try again later"
	case CodeInvalidGuestPassword:
		return "guest password does not match"
	case CodeCredentialMissing:
		return "this content has no guest credential and cannot be changed"
	case CodeSchemaSyncRequired:
		return "moderation storage is unavailable"
	default:
		return "guest request rejected"
	}
}

// ViolationError is returned by a write when content breaks the guest
// policy. The write flow records it in the violation ledger.
type ViolationError struct {
	Category string
	Reason   string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("guest policy violation (%s): %s", e.Category, e.Reason)
}
