package guard

import (
	"context"
	"errors"
	"fmt"
)

var errNoPasswordVerifier = errors.New("guard: no password verifier configured")

// VerifyOwnership checks password and originating ip against the content's
// credential. Content without a credential yields ErrCredentialMissing. Store
// and hash-format errors are returned as-is; the failure mode never applies.
func (g *Guard) VerifyOwnership(ctx context.Context, content GuestOwned, password string, id Identity) (bool, error) {
	cred, err := g.ResolveCredential(ctx, content)
	if err != nil {
		return false, err
	}
	if cred == nil {
		return false, &Error{Code: CodeCredentialMissing}
	}
	if g.passwords == nil {
		return false, errNoPasswordVerifier
	}

	ok, err := g.passwords.Verify(password, cred.PasswordHash)
	if err != nil {
		return false, fmt.Errorf("verify guest password: %w", err)
	}
	if !ok {
		return false, nil
	}

	return containsHash(g.Hash(id).IPCandidates, cred.IPHash), nil
}

// AuthorizeOwnership is VerifyOwnership with a mismatch turned into
// INVALID_GUEST_PASSWORD. Wrong password and wrong ip are not distinguished.
func (g *Guard) AuthorizeOwnership(ctx context.Context, content GuestOwned, password string, id Identity) error {
	ok, err := g.VerifyOwnership(ctx, content, password, id)
	if err != nil {
		if errors.Is(err, ErrCredentialMissing) {
			g.metrics.RecordOwnershipFailure("no_credential")
		}
		return err
	}
	if !ok {
		g.metrics.RecordOwnershipFailure("mismatch")
		return &Error{Code: CodeInvalidGuestPassword}
	}
	return nil
}
