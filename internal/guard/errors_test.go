package guard

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorMatchesSentinelByCode(t *testing.T) {
	err := fmt.Errorf("create post: %w", &Error{Code: CodeRateLimited, Window: "10m"})

	if !errors.Is(err, ErrRateLimited) {
		t.Fatal("errors.Is(err, ErrRateLimited) = false, want true")
	}
	if errors.Is(err, ErrTempBanned) {
		t.Fatal("errors.Is(err, ErrTempBanned) = true, want false")
	}
	if got := CodeOf(err); got != CodeRateLimited {
		t.Fatalf("CodeOf = %q, want %q", got, CodeRateLimited)
	}
	if got := CodeOf(errors.New("plain")); got != "" {
		t.Fatalf("CodeOf(plain) = %q, want empty", got)
	}
}

func TestErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("relation guest_bans does not exist")
	err := &Error{Code: CodeSchemaSyncRequired, Err: cause}

	if !errors.Is(err, cause) {
		t.Fatal("cause not reachable through Unwrap")
	}
}

func TestCodeHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeTempBanned:           http.StatusForbidden,
		CodeRateLimited:          http.StatusTooManyRequests,
		CodeInvalidGuestPassword: http.StatusForbidden,
		CodeCredentialMissing:    http.StatusConflict,
		CodeSchemaSyncRequired:   http.StatusServiceUnavailable,
	}
	for code, want := range cases {
		if got := code.HTTPStatus(); got != want {
			t.Fatalf("%s.HTTPStatus() = %d, want %d", code, got, want)
		}
	}
}
