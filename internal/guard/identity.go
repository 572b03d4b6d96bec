package guard

import (
	"strings"

	"townsquare/internal/domain"
)

// Identity is the raw signal set of a guest request. It is never persisted.
type Identity struct {
	IP          string
	Fingerprint *string
}

// IdentityHashSet carries the canonical hashes written on new rows plus every
// candidate accepted on lookups.
type IdentityHashSet struct {
	IPHash          string
	FingerprintHash *string

	IPCandidates          []string
	FingerprintCandidates []string
}

func (s IdentityHashSet) Match() domain.IdentityMatch {
	return domain.IdentityMatch{
		IPHashes:          s.IPCandidates,
		FingerprintHashes: s.FingerprintCandidates,
	}
}

// Hasher returns the ordered hash candidates for a raw identity value. The
// first candidate is canonical.
type Hasher interface {
	Candidates(raw string) []string
}

func HashGuestIdentityCandidates(h Hasher, id Identity) IdentityHashSet {
	ips := h.Candidates(id.IP)
	set := IdentityHashSet{
		IPHash:       ips[0],
		IPCandidates: ips,
	}

	if fp := fingerprintValue(id.Fingerprint); fp != "" {
		fps := h.Candidates(fp)
		canonical := fps[0]
		set.FingerprintHash = &canonical
		set.FingerprintCandidates = fps
	}
	return set
}

func HashGuestIdentity(h Hasher, id Identity) (ipHash string, fingerprintHash *string) {
	set := HashGuestIdentityCandidates(h, id)
	return set.IPHash, set.FingerprintHash
}

// Blank fingerprints are treated as absent.
func fingerprintValue(fp *string) string {
	if fp == nil {
		return ""
	}
	return strings.TrimSpace(*fp)
}

func containsHash(candidates []string, hash string) bool {
	if hash == "" {
		return false
	}
	for _, c := range candidates {
		if c == hash {
			return true
		}
	}
	return false
}
