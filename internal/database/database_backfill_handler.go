package database

import (
	"context"
	"fmt"

	"townsquare/internal/domain"

	"gorm.io/gorm"
)

const defaultBackfillBatchSize = 500

type legacyCredentialRow struct {
	ID                           uint64
	domain.LegacyGuestCredential `gorm:"embedded"`
}

// BackfillResult counts rows moved from inline credentials to GuestAuthor.
type BackfillResult struct {
	Posts    int
	Comments int
}

func (r BackfillResult) Total() int { return r.Posts + r.Comments }

// BackfillGuestAuthors moves inline guest credentials into GuestAuthor rows
// and clears the inline columns in the same transaction. Rows that already
// have an author link are left alone, so reruns are no-ops.
func (s *GuestStore) BackfillGuestAuthors(ctx context.Context, batchSize int) (BackfillResult, error) {
	if batchSize <= 0 {
		batchSize = defaultBackfillBatchSize
	}

	var result BackfillResult
	posts, err := s.backfillModel(ctx, func() any { return &domain.Post{} }, batchSize)
	result.Posts = posts
	if err != nil {
		return result, fmt.Errorf("backfill posts: %w", err)
	}

	comments, err := s.backfillModel(ctx, func() any { return &domain.Comment{} }, batchSize)
	result.Comments = comments
	if err != nil {
		return result, fmt.Errorf("backfill comments: %w", err)
	}
	return result, nil
}

func (s *GuestStore) backfillModel(ctx context.Context, newModel func() any, batchSize int) (int, error) {
	moved := 0
	for {
		if err := ctx.Err(); err != nil {
			return moved, err
		}

		n, fetched, err := s.backfillBatch(ctx, newModel, batchSize)
		moved += n
		if err != nil {
			return moved, err
		}
		if fetched < batchSize {
			return moved, nil
		}
	}
}

func (s *GuestStore) backfillBatch(ctx context.Context, newModel func() any, batchSize int) (moved, fetched int, err error) {
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []legacyCredentialRow
		err := tx.Unscoped().Model(newModel()).
			Select("id", "guest_password_hash", "guest_ip_hash", "guest_fingerprint_hash").
			Where("guest_author_id IS NULL").
			Where("guest_password_hash IS NOT NULL AND guest_password_hash <> ''").
			Where("guest_ip_hash IS NOT NULL AND guest_ip_hash <> ''").
			Order("id").
			Limit(batchSize).
			Find(&rows).Error
		if err != nil {
			return err
		}

		fetched = len(rows)

		for _, row := range rows {
			linked, err := linkLegacyRow(tx, newModel, row)
			if err != nil {
				return err
			}
			if linked {
				moved++
			}
		}
		return nil
	})
	if err != nil {
		return 0, fetched, err
	}
	return moved, fetched, nil
}

// linkLegacyRow creates the GuestAuthor for row and points the content row at
// it. A row linked by someone else in the meantime keeps its author and the
// new one is removed again.
func linkLegacyRow(tx *gorm.DB, newModel func() any, row legacyCredentialRow) (bool, error) {
	author := domain.GuestAuthor{
		PasswordHash:    *row.GuestPasswordHash,
		IPHash:          *row.GuestIPHash,
		FingerprintHash: row.GuestFingerprintHash,
	}
	if err := tx.Create(&author).Error; err != nil {
		return false, fmt.Errorf("create guest author for row %d: %w", row.ID, err)
	}

	res := tx.Unscoped().Model(newModel()).
		Where("id = ? AND guest_author_id IS NULL", row.ID).
		Updates(map[string]any{
			"guest_author_id":        author.ID,
			"guest_password_hash":    nil,
			"guest_ip_hash":          nil,
			"guest_fingerprint_hash": nil,
		})
	if res.Error != nil {
		return false, fmt.Errorf("link row %d: %w", row.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		if err := tx.Delete(&domain.GuestAuthor{}, author.ID).Error; err != nil {
			return false, fmt.Errorf("drop unlinked guest author for row %d: %w", row.ID, err)
		}
		return false, nil
	}
	return true, nil
}
