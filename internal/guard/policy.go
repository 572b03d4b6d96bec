package guard

import (
	"context"

	"townsquare/internal/domain"
)

const policyFlightKey = "guest_post_policy"

// LoadPolicy reads the guest post policy from storage. Concurrent callers
// share one read; nothing is cached between reads.
func (g *Guard) LoadPolicy(ctx context.Context) (domain.GuestPostPolicy, error) {
	if g.policies == nil {
		return domain.DefaultGuestPostPolicy(), nil
	}

	v, err, _ := g.policyGroup.Do(policyFlightKey, func() (any, error) {
		return g.policies.GetGuestPostPolicy(ctx)
	})
	if err != nil {
		if ferr := g.storeFailure("policy_load", err); ferr != nil {
			return domain.GuestPostPolicy{}, ferr
		}
		return domain.DefaultGuestPostPolicy(), nil
	}

	return v.(domain.GuestPostPolicy).WithDefaults(), nil
}
