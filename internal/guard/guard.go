// Package guard decides whether a guest write may proceed: ban checks,
// rate-limit windows, content screening, violation bookkeeping and the
// ownership check for guest edits and deletes.
package guard

import (
	"context"
	"strings"
	"time"

	"townsquare/internal/domain"
	"townsquare/internal/metrics"
	"townsquare/internal/ratelimit"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"
)

type FailureMode string

const (
	// FailClosed rejects a write with SCHEMA_SYNC_REQUIRED when a moderation
	// store errors.
	FailClosed FailureMode = "closed"
	// FailOpen logs the store error and skips the affected check.
	FailOpen FailureMode = "open"
)

func ParseFailureMode(raw string) FailureMode {
	if strings.EqualFold(strings.TrimSpace(raw), string(FailOpen)) {
		return FailOpen
	}
	return FailClosed
}

// LedgerStore persists violations and bans. Lookups match any candidate hash.
type LedgerStore interface {
	InsertViolation(ctx context.Context, v *domain.GuestViolation) error
	CountViolations(ctx context.Context, match domain.IdentityMatch, since time.Time) (int64, error)
	// FindActiveBan returns the most recent ban expiring after now, or nil.
	FindActiveBan(ctx context.Context, match domain.IdentityMatch, now time.Time) (*domain.GuestBan, error)
	// InsertBanIfNoneActive inserts ban unless an active ban already matches.
	// The check and the insert are atomic.
	InsertBanIfNoneActive(ctx context.Context, ban *domain.GuestBan, match domain.IdentityMatch, now time.Time) (bool, error)
}

type AuthorStore interface {
	// GetGuestAuthor returns nil without error when no row exists.
	GetGuestAuthor(ctx context.Context, id uint64) (*domain.GuestAuthor, error)
}

type PolicyStore interface {
	GetGuestPostPolicy(ctx context.Context) (domain.GuestPostPolicy, error)
}

type PasswordVerifier interface {
	Verify(password, encoded string) (bool, error)
}

type CountryResolver interface {
	CountryCode(ip string) string
}

type Guard struct {
	hasher    Hasher
	ledger    LedgerStore
	authors   AuthorStore
	policies  PolicyStore
	limiter   ratelimit.Limiter
	passwords PasswordVerifier
	countries CountryResolver
	metrics   *metrics.GuardMetrics

	failureMode     func() FailureMode
	moderationReady bool
	now             func() time.Time

	policyGroup singleflight.Group
}

type Option func(*Guard)

func WithLedger(s LedgerStore) Option {
	return func(g *Guard) { g.ledger = s }
}

func WithAuthorStore(s AuthorStore) Option {
	return func(g *Guard) { g.authors = s }
}

func WithPolicyStore(s PolicyStore) Option {
	return func(g *Guard) { g.policies = s }
}

func WithLimiter(l ratelimit.Limiter) Option {
	return func(g *Guard) { g.limiter = l }
}

func WithPasswordVerifier(v PasswordVerifier) Option {
	return func(g *Guard) { g.passwords = v }
}

func WithCountryResolver(r CountryResolver) Option {
	return func(g *Guard) { g.countries = r }
}

func WithMetrics(m *metrics.GuardMetrics) Option {
	return func(g *Guard) { g.metrics = m }
}

func WithFailureMode(m FailureMode) Option {
	return func(g *Guard) { g.failureMode = func() FailureMode { return m } }
}

// WithFailureModeSource reads the mode on every store failure, so runtime
// settings changes apply without a restart.
func WithFailureModeSource(fn func() FailureMode) Option {
	return func(g *Guard) {
		if fn != nil {
			g.failureMode = fn
		}
	}
}

// WithModerationTables passes the boot-time table check. When false the ban
// check and violation registration are switched off for the process.
func WithModerationTables(ready bool) Option {
	return func(g *Guard) { g.moderationReady = ready }
}

func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

func New(hasher Hasher, opts ...Option) *Guard {
	g := &Guard{
		hasher:          hasher,
		failureMode:     func() FailureMode { return FailClosed },
		moderationReady: true,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}

	if g.moderationReady && g.ledger == nil {
		g.moderationReady = false
	}
	if !g.moderationReady {
		log.Warn("Guest moderation tables unavailable; ban checks and violation registration are disabled")
	}
	if g.limiter == nil {
		log.Warn("No rate limiter configured; guest write windows are not enforced")
	}
	return g
}

func (g *Guard) FailureMode() FailureMode { return g.failureMode() }

func (g *Guard) ModerationReady() bool { return g.moderationReady }

func (g *Guard) Hash(id Identity) IdentityHashSet {
	return HashGuestIdentityCandidates(g.hasher, id)
}

// storeFailure applies the failure mode to an error from a moderation store.
// A nil return means the caller skips its check.
func (g *Guard) storeFailure(operation string, err error) error {
	mode := g.FailureMode()
	g.metrics.RecordStoreFailure(operation, string(mode))

	if mode == FailOpen {
		log.Warn("Guard store failure, skipping check", "operation", operation, "error", err)
		return nil
	}

	log.Error("Guard store failure", "operation", operation, "error", err)
	return &Error{Code: CodeSchemaSyncRequired, Err: err}
}
