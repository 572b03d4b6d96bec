package domain

import "time"

// Setting is a key/value row for admin-writable documents such as the guest
// post policy.
type Setting struct {
	Key       string    `gorm:"primaryKey;size:128"`
	Value     string    `gorm:"type:text;not null"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}
