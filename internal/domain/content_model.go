package domain

import (
	"time"

	"gorm.io/gorm"
)

const (
	ScopeNeighborhood = "neighborhood"
	ScopeCity         = "city"
	ScopeGlobal       = "global"
)

type Post struct {
	ID          uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Title       string     `gorm:"size:200;not null" json:"title"`
	Body        string     `gorm:"type:text;not null" json:"body"`
	ContentType string     `gorm:"size:32;not null;default:'general';index" json:"content_type"`
	ScopeKind   string     `gorm:"size:16;not null;default:'neighborhood'" json:"scope_kind"`
	ScopeID     uint64     `gorm:"index" json:"scope_id"`
	Images      StringList `gorm:"type:text" json:"images"`

	// Exactly one of AuthorUserID / guest credential identifies the writer.
	AuthorUserID  *uint64      `gorm:"index" json:"author_user_id,omitempty"`
	GuestAuthorID *uint64      `gorm:"index" json:"-"`
	GuestAuthor   *GuestAuthor `gorm:"foreignKey:GuestAuthorID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL;" json:"guest_author,omitempty"`

	LegacyGuestCredential `gorm:"embedded"`

	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

type Comment struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	PostID uint64 `gorm:"not null;index" json:"post_id"`
	Body   string `gorm:"type:text;not null" json:"body"`

	AuthorUserID  *uint64      `gorm:"index" json:"author_user_id,omitempty"`
	GuestAuthorID *uint64      `gorm:"index" json:"-"`
	GuestAuthor   *GuestAuthor `gorm:"foreignKey:GuestAuthorID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL;" json:"guest_author,omitempty"`

	LegacyGuestCredential `gorm:"embedded"`

	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (p *Post) GuestAuthorLink() (*uint64, *GuestAuthor) { return p.GuestAuthorID, p.GuestAuthor }

func (p *Post) LegacyGuestColumns() LegacyGuestCredential { return p.LegacyGuestCredential }

func (c *Comment) GuestAuthorLink() (*uint64, *GuestAuthor) { return c.GuestAuthorID, c.GuestAuthor }

func (c *Comment) LegacyGuestColumns() LegacyGuestCredential { return c.LegacyGuestCredential }
