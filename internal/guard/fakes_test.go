package guard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"townsquare/internal/domain"
	"townsquare/internal/ratelimit"
	"townsquare/internal/security"
)

var errStoreDown = errors.New("store down")

type memoryLedger struct {
	mu         sync.Mutex
	violations []domain.GuestViolation
	bans       []domain.GuestBan
	err        error
}

func matches(m domain.IdentityMatch, ip string, fp *string) bool {
	if containsHash(m.IPHashes, ip) {
		return true
	}
	return fp != nil && containsHash(m.FingerprintHashes, *fp)
}

func (l *memoryLedger) InsertViolation(_ context.Context, v *domain.GuestViolation) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	v.ID = uint64(len(l.violations) + 1)
	l.violations = append(l.violations, *v)
	return nil
}

func (l *memoryLedger) CountViolations(_ context.Context, m domain.IdentityMatch, since time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return 0, l.err
	}
	var n int64
	for _, v := range l.violations {
		if !v.CreatedAt.Before(since) && matches(m, v.IPHash, v.FingerprintHash) {
			n++
		}
	}
	return n, nil
}

func (l *memoryLedger) FindActiveBan(_ context.Context, m domain.IdentityMatch, now time.Time) (*domain.GuestBan, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	return l.activeBan(m, now), nil
}

func (l *memoryLedger) activeBan(m domain.IdentityMatch, now time.Time) *domain.GuestBan {
	var found *domain.GuestBan
	for i := range l.bans {
		b := l.bans[i]
		if !b.ActiveAt(now) || !matches(m, b.IPHash, b.FingerprintHash) {
			continue
		}
		if found == nil || b.CreatedAt.After(found.CreatedAt) {
			found = &b
		}
	}
	return found
}

func (l *memoryLedger) InsertBanIfNoneActive(_ context.Context, ban *domain.GuestBan, m domain.IdentityMatch, now time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	if l.activeBan(m, now) != nil {
		return false, nil
	}
	ban.ID = uint64(len(l.bans) + 1)
	l.bans = append(l.bans, *ban)
	return true, nil
}

func (l *memoryLedger) banCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.bans)
}

type memoryAuthors map[uint64]*domain.GuestAuthor

func (a memoryAuthors) GetGuestAuthor(_ context.Context, id uint64) (*domain.GuestAuthor, error) {
	return a[id], nil
}

type failingAuthors struct{}

func (failingAuthors) GetGuestAuthor(context.Context, uint64) (*domain.GuestAuthor, error) {
	return nil, errStoreDown
}

type staticPolicy struct {
	policy domain.GuestPostPolicy
	err    error
	calls  int
	mu     sync.Mutex
}

func (s *staticPolicy) GetGuestPostPolicy(context.Context) (domain.GuestPostPolicy, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.policy, s.err
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, int, int, time.Duration) (ratelimit.Decision, error) {
	return ratelimit.Decision{}, errStoreDown
}

type fixedCountry string

func (c fixedCountry) CountryCode(string) string { return string(c) }

func testPasswords() *security.PasswordHasher {
	return &security.PasswordHasher{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	encoded, err := testPasswords().Hash(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return encoded
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func strPtr(s string) *string { return &s }

func u64Ptr(v uint64) *uint64 { return &v }
