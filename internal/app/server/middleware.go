package server

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"townsquare/internal/config"
	"townsquare/internal/guard"
)

const requestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// requestID tags every request with an id, reusing a well-formed inbound one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func fingerprintHeader() string {
	return config.GetConfig().Guest.FingerprintHeaderName()
}

// guestIdentity reads the caller's ip and optional fingerprint.
func guestIdentity(r *http.Request) guard.Identity {
	cfg := config.GetConfig().Guest

	id := guard.Identity{IP: clientIP(r, cfg.TrustForwardedFor)}
	if fp := strings.TrimSpace(r.Header.Get(cfg.FingerprintHeaderName())); fp != "" {
		id.Fingerprint = &fp
	}
	return id
}

func clientIP(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
