package domain

import "time"

const (
	BanSourceAuto   = "auto"
	BanSourceManual = "manual"
)

type GuestBan struct {
	ID              uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	IPHash          string    `gorm:"size:64;not null;index" json:"ip_hash"`
	FingerprintHash *string   `gorm:"size:64;index" json:"fingerprint_hash,omitempty"`
	Reason          string    `gorm:"size:500;not null;default:''" json:"reason"`
	Source          string    `gorm:"size:16;not null;default:'auto'" json:"source"`
	ExpiresAt       time.Time `gorm:"not null;index" json:"expires_at"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (b GuestBan) ActiveAt(now time.Time) bool {
	return b.ExpiresAt.After(now)
}
