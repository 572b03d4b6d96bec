package guard

import (
	"context"
	"fmt"
	"time"

	"townsquare/internal/domain"

	"github.com/charmbracelet/log"
)

type Tier string

const (
	TierNone   Tier = ""
	TierShort  Tier = "short"
	TierMedium Tier = "medium"
	TierLong   Tier = "long"
)

const (
	violationWindowShort = 24 * time.Hour
	violationWindowLong  = 7 * 24 * time.Hour
)

// EscalationFor picks the ban tier for the trailing violation counts. The
// highest tier wins; a threshold <= 0 switches its tier off.
func EscalationFor(p domain.GuestPostPolicy, count24h, count7d int64) (Tier, time.Duration) {
	reached := func(count int64, threshold int) bool {
		return threshold > 0 && count >= int64(threshold)
	}

	switch {
	case reached(count7d, p.BanThreshold7dHigh):
		return TierLong, hours(p.BanDurationHoursLong)
	case reached(count7d, p.BanThreshold7dMedium):
		return TierMedium, hours(p.BanDurationHoursMedium)
	case reached(count24h, p.BanThreshold24h):
		return TierShort, hours(p.BanDurationHoursShort)
	default:
		return TierNone, 0
	}
}

func hours(h int) time.Duration {
	return time.Duration(h) * time.Hour
}

// RegisterViolation appends a violation for id and issues a temporary ban
// when the escalation thresholds are reached. The returned ban is nil when
// none was issued, including when an active ban already exists.
func (g *Guard) RegisterViolation(ctx context.Context, id Identity, category, reason string, policy domain.GuestPostPolicy) (*domain.GuestBan, error) {
	return g.registerViolation(ctx, id, g.Hash(id), category, reason, policy)
}

func (g *Guard) registerViolation(ctx context.Context, id Identity, set IdentityHashSet, category, reason string, policy domain.GuestPostPolicy) (*domain.GuestBan, error) {
	if !g.moderationReady {
		return nil, nil
	}

	now := g.now()
	violation := &domain.GuestViolation{
		IPHash:          set.IPHash,
		FingerprintHash: set.FingerprintHash,
		Category:        category,
		Reason:          truncate(reason, 500),
		CreatedAt:       now,
	}
	if g.countries != nil {
		violation.Country = g.countries.CountryCode(id.IP)
	}

	if err := g.ledger.InsertViolation(ctx, violation); err != nil {
		return nil, g.storeFailure("violation_insert", err)
	}
	g.metrics.RecordViolation(category)

	match := set.Match()
	count24h, err := g.ledger.CountViolations(ctx, match, now.Add(-violationWindowShort))
	if err != nil {
		return nil, g.storeFailure("violation_count", err)
	}
	count7d, err := g.ledger.CountViolations(ctx, match, now.Add(-violationWindowLong))
	if err != nil {
		return nil, g.storeFailure("violation_count", err)
	}

	tier, duration := EscalationFor(policy, count24h, count7d)
	if tier == TierNone || duration <= 0 {
		return nil, nil
	}

	ban := &domain.GuestBan{
		IPHash:          set.IPHash,
		FingerprintHash: set.FingerprintHash,
		Reason:          fmt.Sprintf("%d violations in 24h, %d in 7d (last: %s)", count24h, count7d, category),
		Source:          domain.BanSourceAuto,
		ExpiresAt:       now.Add(duration),
		CreatedAt:       now,
	}
	inserted, err := g.ledger.InsertBanIfNoneActive(ctx, ban, match, now)
	if err != nil {
		return nil, g.storeFailure("ban_insert", err)
	}
	if !inserted {
		return nil, nil
	}

	g.metrics.RecordBanIssued(string(tier))
	log.Info("Issued guest ban", "tier", tier, "expires_at", ban.ExpiresAt, "violations_24h", count24h, "violations_7d", count7d)
	return ban, nil
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
