package guard

import (
	"context"
	"errors"
	"testing"
	"time"

	"townsquare/internal/domain"
	"townsquare/internal/security"
)

func TestEscalationFor(t *testing.T) {
	p := domain.DefaultGuestPostPolicy()

	tests := []struct {
		name     string
		c24, c7d int64
		tier     Tier
		duration time.Duration
	}{
		{name: "below thresholds", c24: 2, c7d: 2, tier: TierNone},
		{name: "short", c24: 3, c7d: 3, tier: TierShort, duration: 24 * time.Hour},
		{name: "medium", c24: 1, c7d: 5, tier: TierMedium, duration: 168 * time.Hour},
		{name: "long beats medium", c24: 8, c7d: 8, tier: TierLong, duration: 720 * time.Hour},
		{name: "long from old strikes", c24: 3, c7d: 8, tier: TierLong, duration: 720 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tier, d := EscalationFor(p, tt.c24, tt.c7d)
			if tier != tt.tier || d != tt.duration {
				t.Fatalf("EscalationFor(%d, %d) = %q %v, want %q %v", tt.c24, tt.c7d, tier, d, tt.tier, tt.duration)
			}
		})
	}
}

func TestEscalationDisabledTier(t *testing.T) {
	p := domain.DefaultGuestPostPolicy()
	p.BanThreshold7dHigh = domain.PolicyDisabled
	p = p.WithDefaults()

	tier, _ := EscalationFor(p, 0, 100)
	if tier != TierMedium {
		t.Fatalf("tier = %q, want %q with the long tier disabled", tier, TierMedium)
	}
}

func TestRegisterViolationSkipsDisabledTiers(t *testing.T) {
	ctx := context.Background()
	ledger := &memoryLedger{}
	clock := newTestClock()
	g := newLedgerGuard(t, ledger, clock)
	id := Identity{IP: "10.0.0.4"}
	policy := domain.GuestPostPolicy{
		BanThreshold24h:      domain.PolicyDisabled,
		BanThreshold7dMedium: domain.PolicyDisabled,
		BanThreshold7dHigh:   domain.PolicyDisabled,
	}.WithDefaults()

	for i := 0; i < 10; i++ {
		ban, err := g.RegisterViolation(ctx, id, domain.ViolationForbiddenKeyword, "spam", policy)
		if err != nil {
			t.Fatalf("RegisterViolation #%d: %v", i+1, err)
		}
		if ban != nil {
			t.Fatalf("RegisterViolation #%d issued a ban with every tier disabled", i+1)
		}
	}
	if len(ledger.violations) != 10 {
		t.Fatalf("violations = %d, want 10", len(ledger.violations))
	}
}

func TestRegisterViolationEscalatesToLongBanFromOlderStrikes(t *testing.T) {
	ctx := context.Background()
	ledger := &memoryLedger{}
	clock := newTestClock()
	g := newLedgerGuard(t, ledger, clock)
	id := Identity{IP: "10.0.0.5"}
	set := g.Hash(id)
	policy := domain.DefaultGuestPostPolicy()

	// Five strikes spread over the past week, two more in the last hour.
	for day := 2; day <= 6; day++ {
		ledger.violations = append(ledger.violations, domain.GuestViolation{
			IPHash:    set.IPHash,
			Category:  domain.ViolationLink,
			CreatedAt: clock.Now().Add(-time.Duration(day) * 24 * time.Hour),
		})
	}
	for i := 1; i <= 2; i++ {
		ledger.violations = append(ledger.violations, domain.GuestViolation{
			IPHash:    set.IPHash,
			Category:  domain.ViolationLink,
			CreatedAt: clock.Now().Add(-time.Duration(i) * 10 * time.Minute),
		})
	}

	ban, err := g.RegisterViolation(ctx, id, domain.ViolationLink, "link", policy)
	if err != nil {
		t.Fatalf("RegisterViolation: %v", err)
	}
	if ban == nil {
		t.Fatal("eighth violation in 7d did not issue a ban")
	}
	if want := clock.Now().Add(720 * time.Hour); !ban.ExpiresAt.Equal(want) {
		t.Fatalf("ExpiresAt = %v, want %v (long tier)", ban.ExpiresAt, want)
	}
}

func TestLegacyUnpepperedBanStillBlocks(t *testing.T) {
	ctx := context.Background()
	ledger := &memoryLedger{}
	clock := newTestClock()
	g := newLedgerGuard(t, ledger, clock)
	id := Identity{IP: "10.0.0.6"}

	legacy := security.NewIdentityHasher("").Canonical(id.IP)
	if legacy == g.Hash(id).IPHash {
		t.Fatal("peppered hash equals the legacy digest")
	}
	ledger.bans = append(ledger.bans, domain.GuestBan{
		IPHash:    legacy,
		Reason:    "issued before the pepper was set",
		Source:    domain.BanSourceManual,
		ExpiresAt: clock.Now().Add(time.Hour),
		CreatedAt: clock.Now().Add(-time.Hour),
	})

	if err := g.AssertNotBanned(ctx, id); !errors.Is(err, ErrTempBanned) {
		t.Fatalf("AssertNotBanned = %v, want ErrTempBanned", err)
	}
	if err := g.AssertNotBanned(ctx, Identity{IP: "10.0.0.7"}); err != nil {
		t.Fatalf("AssertNotBanned(other ip) = %v, want nil", err)
	}
}

func newLedgerGuard(t *testing.T, ledger *memoryLedger, clock *testClock, opts ...Option) *Guard {
	t.Helper()
	base := []Option{
		WithLedger(ledger),
		WithClock(clock.Now),
	}
	return New(security.NewIdentityHasher("pepper"), append(base, opts...)...)
}

func TestRegisterViolationIssuesShortBanOnThirdStrike(t *testing.T) {
	ctx := context.Background()
	ledger := &memoryLedger{}
	clock := newTestClock()
	g := newLedgerGuard(t, ledger, clock, WithCountryResolver(fixedCountry("KR")))
	id := Identity{IP: "10.0.0.1"}
	policy := domain.DefaultGuestPostPolicy()

	for i := 0; i < 2; i++ {
		ban, err := g.RegisterViolation(ctx, id, domain.ViolationLink, "link", policy)
		if err != nil {
			t.Fatalf("RegisterViolation #%d: %v", i+1, err)
		}
		if ban != nil {
			t.Fatalf("RegisterViolation #%d issued a ban", i+1)
		}
		clock.Advance(time.Minute)
	}

	ban, err := g.RegisterViolation(ctx, id, domain.ViolationLink, "link", policy)
	if err != nil {
		t.Fatalf("third RegisterViolation: %v", err)
	}
	if ban == nil {
		t.Fatal("third violation did not issue a ban")
	}
	if ban.Source != domain.BanSourceAuto {
		t.Fatalf("ban source = %q, want %q", ban.Source, domain.BanSourceAuto)
	}
	if want := clock.Now().Add(24 * time.Hour); !ban.ExpiresAt.Equal(want) {
		t.Fatalf("ExpiresAt = %v, want %v", ban.ExpiresAt, want)
	}
	if ledger.violations[0].Country != "KR" {
		t.Fatalf("country = %q, want KR", ledger.violations[0].Country)
	}
	if ledger.violations[0].IPHash != g.Hash(id).IPHash {
		t.Fatal("violation not stored under the canonical ip hash")
	}

	// A fourth strike while banned does not stack a second ban.
	ban, err = g.RegisterViolation(ctx, id, domain.ViolationLink, "link", policy)
	if err != nil {
		t.Fatalf("fourth RegisterViolation: %v", err)
	}
	if ban != nil || ledger.banCount() != 1 {
		t.Fatalf("bans = %d, want 1", ledger.banCount())
	}

	if err := g.AssertNotBanned(ctx, id); !errors.Is(err, ErrTempBanned) {
		t.Fatalf("AssertNotBanned = %v, want ErrTempBanned", err)
	}
}

func TestViolationsUnderPreviousPepperCount(t *testing.T) {
	ctx := context.Background()
	ledger := &memoryLedger{}
	clock := newTestClock()
	id := Identity{IP: "10.0.0.9"}
	policy := domain.DefaultGuestPostPolicy()

	old := New(security.NewIdentityHasher("old"), WithLedger(ledger), WithClock(clock.Now))
	for i := 0; i < 2; i++ {
		if _, err := old.RegisterViolation(ctx, id, domain.ViolationContact, "phone", policy); err != nil {
			t.Fatalf("RegisterViolation under old pepper: %v", err)
		}
	}

	rotated := New(security.NewIdentityHasher("new", "old"), WithLedger(ledger), WithClock(clock.Now))
	ban, err := rotated.RegisterViolation(ctx, id, domain.ViolationContact, "phone", policy)
	if err != nil {
		t.Fatalf("RegisterViolation under new pepper: %v", err)
	}
	if ban == nil {
		t.Fatal("violations written under the previous pepper were not counted")
	}
	if ban.IPHash != rotated.Hash(id).IPHash {
		t.Fatal("ban not written under the current pepper")
	}
}

func TestAssertNotBanned(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	h := security.NewIdentityHasher("pepper")
	fpHash := h.Canonical("device-1")

	ledger := &memoryLedger{bans: []domain.GuestBan{
		{IPHash: h.Canonical("10.0.0.1"), ExpiresAt: clock.Now().Add(-time.Minute)},
		{IPHash: h.Canonical("10.0.0.2"), FingerprintHash: &fpHash, ExpiresAt: clock.Now().Add(time.Hour)},
	}}
	g := New(h, WithLedger(ledger), WithClock(clock.Now))

	if err := g.AssertNotBanned(ctx, Identity{IP: "10.0.0.1"}); err != nil {
		t.Fatalf("expired ban still enforced: %v", err)
	}

	// Same device from a new address is still banned.
	err := g.AssertNotBanned(ctx, Identity{IP: "10.0.0.3", Fingerprint: strPtr("device-1")})
	var gerr *Error
	if !errors.As(err, &gerr) || gerr.Code != CodeTempBanned {
		t.Fatalf("AssertNotBanned = %v, want GUEST_TEMP_BANNED", err)
	}
	if gerr.ExpiresAt == nil || !gerr.ExpiresAt.Equal(clock.Now().Add(time.Hour)) {
		t.Fatalf("ExpiresAt = %v, want ban expiry", gerr.ExpiresAt)
	}
}

func TestStoreFailureModes(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	ledger := &memoryLedger{err: errStoreDown}
	id := Identity{IP: "10.0.0.1"}

	closed := newLedgerGuard(t, ledger, clock)
	if err := closed.AssertNotBanned(ctx, id); !errors.Is(err, ErrSchemaSyncRequired) {
		t.Fatalf("closed AssertNotBanned = %v, want ErrSchemaSyncRequired", err)
	}
	if _, err := closed.RegisterViolation(ctx, id, domain.ViolationLink, "x", domain.DefaultGuestPostPolicy()); !errors.Is(err, ErrSchemaSyncRequired) {
		t.Fatalf("closed RegisterViolation = %v, want ErrSchemaSyncRequired", err)
	}

	open := newLedgerGuard(t, ledger, clock, WithFailureMode(FailOpen))
	if err := open.AssertNotBanned(ctx, id); err != nil {
		t.Fatalf("open AssertNotBanned = %v, want nil", err)
	}
}

func TestModerationTablesMissingDisablesLedger(t *testing.T) {
	ctx := context.Background()
	ledger := &memoryLedger{err: errStoreDown}
	g := New(security.NewIdentityHasher(""), WithLedger(ledger), WithModerationTables(false))

	if g.ModerationReady() {
		t.Fatal("ModerationReady = true, want false")
	}
	if err := g.AssertNotBanned(ctx, Identity{IP: "10.0.0.1"}); err != nil {
		t.Fatalf("AssertNotBanned = %v, want nil", err)
	}
	ban, err := g.RegisterViolation(ctx, Identity{IP: "10.0.0.1"}, domain.ViolationLink, "x", domain.DefaultGuestPostPolicy())
	if err != nil || ban != nil {
		t.Fatalf("RegisterViolation = %v, %v, want nil, nil", ban, err)
	}
}
