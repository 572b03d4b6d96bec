package guard

import (
	"context"
	"errors"

	"townsquare/internal/domain"

	"github.com/charmbracelet/log"
)

// WriteRequest describes one guarded guest write.
type WriteRequest struct {
	Action   Action
	Identity Identity
	Windows  []Window
	// Related windows are charged alongside, e.g. image uploads on a post.
	Related []ActionWindows

	// Policy is used for ban escalation. Nil loads it when a violation occurs.
	Policy *domain.GuestPostPolicy
}

// MutateFunc performs the write. It receives the identity hashes to persist.
type MutateFunc func(ctx context.Context, set IdentityHashSet) error

// Run checks bans, then every rate-limit window, then calls mutate. A
// *ViolationError from mutate is recorded in the ledger before being
// returned; every other error is returned untouched.
func (g *Guard) Run(ctx context.Context, req WriteRequest, mutate MutateFunc) error {
	set := g.Hash(req.Identity)

	if err := g.assertNotBanned(ctx, set); err != nil {
		return err
	}
	groups := append([]ActionWindows{{Action: req.Action, Windows: req.Windows}}, req.Related...)
	if err := g.enforceWindows(ctx, set, groups); err != nil {
		return err
	}

	err := mutate(ctx, set)

	var violation *ViolationError
	if !errors.As(err, &violation) {
		return err
	}

	policy, perr := g.violationPolicy(ctx, req.Policy)
	if perr != nil {
		log.Error("Guest violation not registered, policy unavailable", "action", req.Action, "category", violation.Category, "error", perr)
		return err
	}
	if _, rerr := g.registerViolation(ctx, req.Identity, set, violation.Category, violation.Reason, policy); rerr != nil {
		log.Error("Guest violation not registered", "action", req.Action, "category", violation.Category, "error", rerr)
	}
	return err
}

func (g *Guard) violationPolicy(ctx context.Context, p *domain.GuestPostPolicy) (domain.GuestPostPolicy, error) {
	if p != nil {
		return p.WithDefaults(), nil
	}
	return g.LoadPolicy(ctx)
}
