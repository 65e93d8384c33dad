package models

import (
	"time"

	"gorm.io/gorm"
)

// APIKey is a long-lived credential for staff automation (CSV pulls,
// headcount scripts), sent as the X-API-KEY header and accepted wherever
// a session cookie is. Keys may carry an optional expiry.
type APIKey struct {
	gorm.Model
	UserID     uint       `json:"user_id"`
	User       User       `json:"-"`
	Key        string     `json:"key" gorm:"uniqueIndex"`
	Name       string     `json:"name"`
	ExpiresAt  *time.Time `json:"expires_at"`
	LastUsedAt *time.Time `json:"last_used_at"`
}
