package database

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"townsquare/internal/domain"

	"gorm.io/gorm"
)

// Serializes the ban compare-and-insert on dialects without advisory locks.
var banInsertMu sync.Mutex

func identityScope(match domain.IdentityMatch) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		switch {
		case match.Empty():
			return db.Where("1 = 0")
		case len(match.FingerprintHashes) == 0:
			return db.Where("ip_hash IN ?", match.IPHashes)
		case len(match.IPHashes) == 0:
			return db.Where("fingerprint_hash IN ?", match.FingerprintHashes)
		default:
			return db.Where("(ip_hash IN ? OR fingerprint_hash IN ?)", match.IPHashes, match.FingerprintHashes)
		}
	}
}

func (s *GuestStore) InsertViolation(ctx context.Context, v *domain.GuestViolation) error {
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now()
	}
	if err := s.db.WithContext(ctx).Create(v).Error; err != nil {
		return fmt.Errorf("insert guest violation: %w", err)
	}
	return nil
}

func (s *GuestStore) CountViolations(ctx context.Context, match domain.IdentityMatch, since time.Time) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&domain.GuestViolation{}).
		Scopes(identityScope(match)).
		Where("created_at >= ?", since).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count guest violations: %w", err)
	}
	return count, nil
}

func (s *GuestStore) FindActiveBan(ctx context.Context, match domain.IdentityMatch, now time.Time) (*domain.GuestBan, error) {
	ban, err := findActiveBan(s.db.WithContext(ctx), match, now)
	if err != nil {
		return nil, fmt.Errorf("find active guest ban: %w", err)
	}
	return ban, nil
}

func findActiveBan(db *gorm.DB, match domain.IdentityMatch, now time.Time) (*domain.GuestBan, error) {
	var bans []domain.GuestBan
	err := db.Scopes(identityScope(match)).
		Where("expires_at > ?", now).
		Order("created_at DESC").
		Order("id DESC").
		Limit(1).
		Find(&bans).Error
	if err != nil {
		return nil, err
	}
	if len(bans) == 0 {
		return nil, nil
	}
	return &bans[0], nil
}

// InsertBanIfNoneActive inserts ban unless a non-expired ban already matches.
// On postgres the check runs under transaction-scoped advisory locks on the
// ban's canonical hashes; elsewhere an in-process mutex serializes it.
func (s *GuestStore) InsertBanIfNoneActive(ctx context.Context, ban *domain.GuestBan, match domain.IdentityMatch, now time.Time) (bool, error) {
	postgres := isPostgresDialect(s.db)
	if !postgres {
		banInsertMu.Lock()
		defer banInsertMu.Unlock()
	}

	inserted := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if postgres {
			for _, key := range banLockKeys(ban) {
				if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", key).Error; err != nil {
					return fmt.Errorf("advisory lock: %w", err)
				}
			}
		}

		existing, err := findActiveBan(tx, match, now)
		if err != nil {
			return err
		}
		if existing != nil {
			return nil
		}

		if ban.CreatedAt.IsZero() {
			ban.CreatedAt = now
		}
		if err := tx.Create(ban).Error; err != nil {
			return err
		}
		inserted = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("insert guest ban: %w", err)
	}
	return inserted, nil
}

// banLockKeys is sorted so concurrent transactions take locks in one order.
func banLockKeys(ban *domain.GuestBan) []string {
	keys := []string{"guest_ban:ip:" + ban.IPHash}
	if ban.FingerprintHash != nil && *ban.FingerprintHash != "" {
		keys = append(keys, "guest_ban:fp:"+*ban.FingerprintHash)
	}
	sort.Strings(keys)
	return keys
}

// CreateManualBan stores an operator-issued ban without the active-ban check.
func (s *GuestStore) CreateManualBan(ctx context.Context, ban *domain.GuestBan) error {
	ban.Source = domain.BanSourceManual
	if err := s.db.WithContext(ctx).Create(ban).Error; err != nil {
		return fmt.Errorf("create manual guest ban: %w", err)
	}
	return nil
}

// ListBansByIPHash returns every ban stored under ipHash, newest first.
func (s *GuestStore) ListBansByIPHash(ctx context.Context, ipHash string) ([]domain.GuestBan, error) {
	var bans []domain.GuestBan
	err := s.db.WithContext(ctx).
		Where("ip_hash = ?", ipHash).
		Order("created_at DESC").
		Find(&bans).Error
	if err != nil {
		return nil, fmt.Errorf("list guest bans: %w", err)
	}
	return bans, nil
}

// PurgeExpiredBans deletes bans that expired before cutoff.
func (s *GuestStore) PurgeExpiredBans(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("expires_at < ?", cutoff).
		Delete(&domain.GuestBan{})
	if res.Error != nil {
		return 0, fmt.Errorf("purge expired guest bans: %w", res.Error)
	}
	return res.RowsAffected, nil
}
