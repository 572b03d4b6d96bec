package database

import (
	"context"
	"errors"
	"fmt"

	"townsquare/internal/domain"

	"gorm.io/gorm"
)

// GetGuestAuthor returns nil without error when the row does not exist, so a
// dangling content link reads as "no linked author".
func (s *GuestStore) GetGuestAuthor(ctx context.Context, id uint64) (*domain.GuestAuthor, error) {
	var author domain.GuestAuthor
	err := s.db.WithContext(ctx).First(&author, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load guest author %d: %w", id, err)
	}
	return &author, nil
}
