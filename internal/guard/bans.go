package guard

import (
	"context"
	"fmt"
)

// AssertNotBanned rejects identities with a non-expired ban on any candidate
// ip or fingerprint hash.
func (g *Guard) AssertNotBanned(ctx context.Context, id Identity) error {
	return g.assertNotBanned(ctx, g.Hash(id))
}

func (g *Guard) assertNotBanned(ctx context.Context, set IdentityHashSet) error {
	if !g.moderationReady {
		return nil
	}

	now := g.now()
	ban, err := g.ledger.FindActiveBan(ctx, set.Match(), now)
	if err != nil {
		return g.storeFailure("ban_lookup", err)
	}
	if ban == nil {
		return nil
	}

	g.metrics.RecordBanRejection()
	expiresAt := ban.ExpiresAt
	return &Error{
		Code:       CodeTempBanned,
		Message:    fmt.Sprintf("guest writes are blocked until %s", expiresAt.UTC().Format("2006-01-02 15:04 MST")),
		ExpiresAt:  &expiresAt,
		RetryAfter: expiresAt.Sub(now),
	}
}
