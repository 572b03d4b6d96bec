package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

func IsAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := extractClaims(r)
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		if role, _ := claims["role"].(string); role != RoleAdmin {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// SubjectFromRequest returns the token subject, used to attribute manual bans.
func SubjectFromRequest(r *http.Request) string {
	claims, err := extractClaims(r)
	if err != nil {
		return ""
	}
	sub, _ := claims.GetSubject()
	return sub
}

func extractClaims(r *http.Request) (jwt.MapClaims, error) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return nil, errors.New("missing or malformed Authorization header")
	}
	return ValidateJWT(strings.TrimPrefix(authHeader, "Bearer "))
}
