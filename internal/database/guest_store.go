package database

import (
	"errors"

	"gorm.io/gorm"
)

// GuestStore is the gorm-backed persistence for guest content and moderation.
// It satisfies the guard's ledger, author and policy stores.
type GuestStore struct {
	db *gorm.DB
}

// NewGuestStore wraps db, or the package connection when db is nil.
func NewGuestStore(db *gorm.DB) *GuestStore {
	if db == nil {
		db = DB
	}
	return &GuestStore{db: db}
}

func (s *GuestStore) DB() *gorm.DB { return s.db }

func convertNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
