package auth

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"townsquare/internal/support"
)

const (
	RoleAdmin = "admin"

	minSecretLength = 32
	tokenIssuer     = "townsquare"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrSecretTooShort = fmt.Errorf("jwt secret must be at least %d characters", minSecretLength)

	secretMu  sync.RWMutex
	jwtSecret []byte
)

// LoadSecret reads ADMIN_JWT_SECRET from the environment.
func LoadSecret() error {
	return SetSecret(support.GetEnv("ADMIN_JWT_SECRET", ""))
}

func SetSecret(secret string) error {
	secret = strings.TrimSpace(secret)
	if len(secret) < minSecretLength {
		return ErrSecretTooShort
	}
	secretMu.Lock()
	jwtSecret = []byte(secret)
	secretMu.Unlock()
	return nil
}

func currentSecret() []byte {
	secretMu.RLock()
	defer secretMu.RUnlock()
	return jwtSecret
}

// GenerateJWT issues an HS256 token for subject with the given role.
func GenerateJWT(subject, role string, ttl time.Duration) (string, error) {
	secret := currentSecret()
	if len(secret) == 0 {
		return "", ErrSecretTooShort
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  subject,
		"role": role,
		"iss":  tokenIssuer,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func ValidateJWT(tokenString string) (jwt.MapClaims, error) {
	secret := currentSecret()
	if len(secret) == 0 {
		return nil, ErrInvalidToken
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(tokenIssuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
