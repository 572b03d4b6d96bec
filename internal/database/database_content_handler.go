package database

import (
	"context"
	"fmt"

	"townsquare/internal/domain"

	"gorm.io/gorm"
)

// CreateGuestPost stores author and post together; post is linked to the new
// author row.
func (s *GuestStore) CreateGuestPost(ctx context.Context, post *domain.Post, author *domain.GuestAuthor) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(author).Error; err != nil {
			return fmt.Errorf("create guest author: %w", err)
		}
		post.GuestAuthorID = &author.ID
		post.GuestAuthor = nil
		if err := tx.Omit("GuestAuthor").Create(post).Error; err != nil {
			return fmt.Errorf("create guest post: %w", err)
		}
		post.GuestAuthor = author
		return nil
	})
}

func (s *GuestStore) CreateGuestComment(ctx context.Context, comment *domain.Comment, author *domain.GuestAuthor) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&domain.Post{}).Where("id = ?", comment.PostID).Count(&count).Error; err != nil {
			return fmt.Errorf("lookup post %d: %w", comment.PostID, err)
		}
		if count == 0 {
			return ErrNotFound
		}

		if err := tx.Create(author).Error; err != nil {
			return fmt.Errorf("create guest author: %w", err)
		}
		comment.GuestAuthorID = &author.ID
		comment.GuestAuthor = nil
		if err := tx.Omit("GuestAuthor").Create(comment).Error; err != nil {
			return fmt.Errorf("create guest comment: %w", err)
		}
		comment.GuestAuthor = author
		return nil
	})
}

// GetPost loads a post with its guest author preloaded.
func (s *GuestStore) GetPost(ctx context.Context, id uint64) (*domain.Post, error) {
	var post domain.Post
	if err := s.db.WithContext(ctx).Preload("GuestAuthor").First(&post, id).Error; err != nil {
		return nil, convertNotFound(err)
	}
	return &post, nil
}

func (s *GuestStore) GetComment(ctx context.Context, id uint64) (*domain.Comment, error) {
	var comment domain.Comment
	if err := s.db.WithContext(ctx).Preload("GuestAuthor").First(&comment, id).Error; err != nil {
		return nil, convertNotFound(err)
	}
	return &comment, nil
}

// UpdatePostContent rewrites the editable fields of a post.
func (s *GuestStore) UpdatePostContent(ctx context.Context, id uint64, title, body string, images domain.StringList) error {
	res := s.db.WithContext(ctx).Model(&domain.Post{}).Where("id = ?", id).Updates(map[string]any{
		"title":  title,
		"body":   body,
		"images": images,
	})
	if res.Error != nil {
		return fmt.Errorf("update post %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GuestStore) UpdateCommentBody(ctx context.Context, id uint64, body string) error {
	res := s.db.WithContext(ctx).Model(&domain.Comment{}).Where("id = ?", id).Update("body", body)
	if res.Error != nil {
		return fmt.Errorf("update comment %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GuestStore) DeletePost(ctx context.Context, id uint64) error {
	res := s.db.WithContext(ctx).Delete(&domain.Post{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete post %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GuestStore) DeleteComment(ctx context.Context, id uint64) error {
	res := s.db.WithContext(ctx).Delete(&domain.Comment{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete comment %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
