package database

import (
	"context"
	"errors"
	"testing"

	"townsquare/internal/domain"
)

func TestCreateGuestPostLinksAuthor(t *testing.T) {
	ctx := context.Background()
	store := NewGuestStore(setupGuestTestDB(t))

	post := &domain.Post{Title: "Lost cat", Body: "grey", ScopeKind: domain.ScopeNeighborhood, Images: domain.StringList{"a.jpg"}}
	author := &domain.GuestAuthor{PasswordHash: "hash", IPHash: "ip", DisplayName: "neighbor"}
	if err := store.CreateGuestPost(ctx, post, author); err != nil {
		t.Fatalf("CreateGuestPost: %v", err)
	}

	loaded, err := store.GetPost(ctx, post.ID)
	if err != nil {
		t.Fatalf("GetPost: %v", err)
	}
	if loaded.GuestAuthorID == nil || *loaded.GuestAuthorID != author.ID {
		t.Fatalf("GuestAuthorID = %v, want %d", loaded.GuestAuthorID, author.ID)
	}
	if loaded.GuestAuthor == nil || loaded.GuestAuthor.IPHash != "ip" {
		t.Fatalf("GuestAuthor = %+v, want preloaded author", loaded.GuestAuthor)
	}
	if len(loaded.Images) != 1 || loaded.Images[0] != "a.jpg" {
		t.Fatalf("Images = %v, want [a.jpg]", loaded.Images)
	}

	if err := store.UpdatePostContent(ctx, post.ID, "Found cat", "home", nil); err != nil {
		t.Fatalf("UpdatePostContent: %v", err)
	}
	if err := store.DeletePost(ctx, post.ID); err != nil {
		t.Fatalf("DeletePost: %v", err)
	}
	if _, err := store.GetPost(ctx, post.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetPost after delete = %v, want ErrNotFound", err)
	}
}

func TestCreateGuestCommentRequiresPost(t *testing.T) {
	ctx := context.Background()
	store := NewGuestStore(setupGuestTestDB(t))

	comment := &domain.Comment{PostID: 42, Body: "hi"}
	err := store.CreateGuestComment(ctx, comment, &domain.GuestAuthor{PasswordHash: "h", IPHash: "ip"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("CreateGuestComment = %v, want ErrNotFound", err)
	}
}

func TestGetGuestAuthorMissingIsNil(t *testing.T) {
	author, err := NewGuestStore(setupGuestTestDB(t)).GetGuestAuthor(context.Background(), 404)
	if err != nil || author != nil {
		t.Fatalf("GetGuestAuthor = %+v, %v, want nil, nil", author, err)
	}
}
