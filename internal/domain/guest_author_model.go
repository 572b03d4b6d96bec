package domain

import "time"

// GuestAuthor is the normalized ownership credential for guest-written
// content. Rows created before the migration keep their credential inline on
// the content row instead (see LegacyGuestCredential).
type GuestAuthor struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	// PasswordHash is a PHC-encoded argon2id (or legacy bcrypt) hash.
	PasswordHash    string  `gorm:"size:255;not null" json:"-"`
	IPHash          string  `gorm:"size:64;not null;index" json:"-"`
	FingerprintHash *string `gorm:"size:64;index" json:"-"`

	DisplayName string    `gorm:"size:40;not null;default:''" json:"display_name"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// LegacyGuestCredential holds the pre-migration inline columns. They are only
// read when the row has no linked GuestAuthor.
type LegacyGuestCredential struct {
	GuestPasswordHash    *string `gorm:"column:guest_password_hash;size:255" json:"-"`
	GuestIPHash          *string `gorm:"column:guest_ip_hash;size:64;index" json:"-"`
	GuestFingerprintHash *string `gorm:"column:guest_fingerprint_hash;size:64" json:"-"`
}

// Populated reports whether the inline columns carry a usable credential.
func (c LegacyGuestCredential) Populated() bool {
	return c.GuestPasswordHash != nil && *c.GuestPasswordHash != "" &&
		c.GuestIPHash != nil && *c.GuestIPHash != ""
}
