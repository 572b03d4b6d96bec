package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"townsquare/internal/support"
)

const (
	identityPepperEnv         = "GUEST_IDENTITY_PEPPER"
	identityPreviousPepperEnv = "GUEST_IDENTITY_PEPPER_PREVIOUS"

	// AnonymousIdentity replaces blank identity signals before hashing.
	AnonymousIdentity = "anonymous"
)

// IdentityHasher turns raw identity signals into one-way hashes. Lookups
// accept every candidate; new rows are written with the first one only.
type IdentityHasher struct {
	pepper   []byte
	previous [][]byte
}

// NewIdentityHasher keys hashes with pepper. Previous peppers stay readable
// until every row written under them has aged out.
func NewIdentityHasher(pepper string, previous ...string) *IdentityHasher {
	h := &IdentityHasher{}
	if p := strings.TrimSpace(pepper); p != "" {
		h.pepper = []byte(p)
	}
	for _, raw := range previous {
		p := strings.TrimSpace(raw)
		if p == "" || p == string(h.pepper) {
			continue
		}
		h.previous = append(h.previous, []byte(p))
	}
	return h
}

// LoadIdentityHasher reads the pepper configuration from the environment.
// Call it once at startup.
func LoadIdentityHasher() *IdentityHasher {
	return NewIdentityHasher(
		support.GetEnv(identityPepperEnv, ""),
		support.GetEnvList(identityPreviousPepperEnv)...,
	)
}

// Peppered reports whether a current pepper is configured.
func (h *IdentityHasher) Peppered() bool {
	return h != nil && len(h.pepper) > 0
}

// Candidates returns the ordered hash list for raw: current pepper, previous
// peppers, then the unkeyed legacy digest. Never empty.
func (h *IdentityHasher) Candidates(raw string) []string {
	normalized := NormalizeIdentity(raw)
	legacy := legacyDigest(normalized)

	out := make([]string, 0, 2)
	seen := make(map[string]struct{}, 2)
	add := func(v string) {
		if _, ok := seen[v]; ok {
			return
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}

	if h != nil {
		if len(h.pepper) > 0 {
			add(pepperedDigest(h.pepper, normalized))
		}
		for _, p := range h.previous {
			add(pepperedDigest(p, normalized))
		}
	}
	add(legacy)

	return out
}

// Canonical is the hash new records are written with.
func (h *IdentityHasher) Canonical(raw string) string {
	return h.Candidates(raw)[0]
}

// NormalizeIdentity trims raw and substitutes the anonymous sentinel for
// blank values.
func NormalizeIdentity(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return AnonymousIdentity
	}
	return trimmed
}

func legacyDigest(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

func pepperedDigest(pepper []byte, value string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}
