package guard

import (
	"context"
	"errors"
	"fmt"

	"townsquare/internal/domain"

	"github.com/charmbracelet/log"
)

type CredentialSource string

const (
	CredentialSourceAuthor CredentialSource = "author"
	CredentialSourceLegacy CredentialSource = "legacy"
)

// Credential is the ownership proof of a piece of guest content, whichever
// schema it was stored under.
type Credential struct {
	PasswordHash    string
	IPHash          string
	FingerprintHash *string
	Source          CredentialSource
	AuthorID        *uint64
}

// GuestOwned is implemented by content rows that may carry a guest credential.
type GuestOwned interface {
	GuestAuthorLink() (*uint64, *domain.GuestAuthor)
	LegacyGuestColumns() domain.LegacyGuestCredential
}

var errNoAuthorStore = errors.New("guard: guest author link present but no author store configured")

// ResolveCredential returns the credential of content, or nil when it has
// none. A linked author always wins over the inline legacy columns.
func (g *Guard) ResolveCredential(ctx context.Context, content GuestOwned) (*Credential, error) {
	if content == nil {
		return nil, nil
	}

	authorID, author := content.GuestAuthorLink()
	if authorID != nil {
		if author == nil || author.ID != *authorID {
			if g.authors == nil {
				return nil, errNoAuthorStore
			}
			var err error
			author, err = g.authors.GetGuestAuthor(ctx, *authorID)
			if err != nil {
				return nil, fmt.Errorf("load guest author %d: %w", *authorID, err)
			}
		}
		if author != nil {
			id := author.ID
			return &Credential{
				PasswordHash:    author.PasswordHash,
				IPHash:          author.IPHash,
				FingerprintHash: author.FingerprintHash,
				Source:          CredentialSourceAuthor,
				AuthorID:        &id,
			}, nil
		}
		log.Warn("Guest author link points to a missing row, using inline credential", "guest_author_id", *authorID)
	}

	legacy := content.LegacyGuestColumns()
	if !legacy.Populated() {
		return nil, nil
	}
	return &Credential{
		PasswordHash:    *legacy.GuestPasswordHash,
		IPHash:          *legacy.GuestIPHash,
		FingerprintHash: legacy.GuestFingerprintHash,
		Source:          CredentialSourceLegacy,
	}, nil
}
