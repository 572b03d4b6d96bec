package domain

// IdentityMatch selects ledger rows whose ip hash or fingerprint hash is any
// of the listed candidates.
type IdentityMatch struct {
	IPHashes          []string
	FingerprintHashes []string
}

func (m IdentityMatch) Empty() bool {
	return len(m.IPHashes) == 0 && len(m.FingerprintHashes) == 0
}
