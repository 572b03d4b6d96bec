package domain

import "time"

const (
	ViolationForbiddenKeyword = "forbidden_keyword"
	ViolationLink             = "link"
	ViolationContact          = "contact"
	ViolationContentType      = "content_type"
	ViolationScope            = "scope"
)

// GuestViolation is an append-only abuse event. Hashes are the canonical
// values at the time of writing.
type GuestViolation struct {
	ID              uint64    `gorm:"primaryKey;autoIncrement"`
	IPHash          string    `gorm:"size:64;not null;index:idx_guest_violations_ip_time,priority:1"`
	FingerprintHash *string   `gorm:"size:64;index"`
	Category        string    `gorm:"size:32;not null"`
	Reason          string    `gorm:"size:500;not null;default:''"`
	Country         string    `gorm:"size:2;not null;default:''"`
	CreatedAt       time.Time `gorm:"not null;index:idx_guest_violations_ip_time,priority:2"`
}
