package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"townsquare/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var policySaveMu sync.Mutex

// ErrInvalidPolicy wraps validation failures of an admin-submitted policy.
var ErrInvalidPolicy = errors.New("invalid guest policy")

func encodePolicy(p domain.GuestPostPolicy) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode guest policy: %w", err)
	}
	return string(raw), nil
}

func decodePolicy(value string) (domain.GuestPostPolicy, error) {
	var p domain.GuestPostPolicy
	if err := json.Unmarshal([]byte(value), &p); err != nil {
		return domain.GuestPostPolicy{}, fmt.Errorf("decode guest policy: %w", err)
	}
	return p, nil
}

// GetGuestPostPolicy returns the stored policy as saved. Missing rows yield
// the default policy; callers apply WithDefaults for unset fields.
func (s *GuestStore) GetGuestPostPolicy(ctx context.Context) (domain.GuestPostPolicy, error) {
	var setting domain.Setting
	err := s.db.WithContext(ctx).Where("key = ?", domain.GuestPolicySettingKey).First(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.DefaultGuestPostPolicy(), nil
	}
	if err != nil {
		return domain.GuestPostPolicy{}, fmt.Errorf("load guest policy: %w", err)
	}
	return decodePolicy(setting.Value)
}

// SaveGuestPostPolicy validates p and stores it with the version bumped past
// the stored one. Concurrent saves are serialized so every save gets its own
// version: on postgres through an advisory lock plus a row lock on the
// setting, elsewhere through an in-process mutex.
func (s *GuestStore) SaveGuestPostPolicy(ctx context.Context, p domain.GuestPostPolicy) (domain.GuestPostPolicy, error) {
	if err := p.Validate(); err != nil {
		return domain.GuestPostPolicy{}, fmt.Errorf("%w: %w", ErrInvalidPolicy, err)
	}

	postgres := isPostgresDialect(s.db)
	if !postgres {
		policySaveMu.Lock()
		defer policySaveMu.Unlock()
	}

	var saved domain.GuestPostPolicy
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		read := tx
		if postgres {
			// The advisory lock also covers the first save, when no row exists to lock.
			if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", domain.GuestPolicySettingKey).Error; err != nil {
				return fmt.Errorf("advisory lock: %w", err)
			}
			read = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var current domain.Setting
		version := 0
		err := read.Where("key = ?", domain.GuestPolicySettingKey).First(&current).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
		case err != nil:
			return err
		default:
			stored, derr := decodePolicy(current.Value)
			if derr != nil {
				return derr
			}
			version = stored.Version
		}

		saved = p.WithDefaults()
		saved.Version = version + 1

		value, err := encodePolicy(saved)
		if err != nil {
			return err
		}
		return tx.Save(&domain.Setting{Key: domain.GuestPolicySettingKey, Value: value}).Error
	})
	if err != nil {
		return domain.GuestPostPolicy{}, fmt.Errorf("save guest policy: %w", err)
	}
	return saved, nil
}
