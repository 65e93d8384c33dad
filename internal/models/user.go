package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Profile holds the prefill fields for future registrations. Editing a
// profile never touches snapshot fields on past registrations.
type Profile struct {
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	Phone       string     `json:"phone"`
	DateOfBirth *time.Time `json:"date_of_birth"`
}

type User struct {
	gorm.Model
	Username      string `gorm:"uniqueIndex" json:"username"`
	Email         string `gorm:"uniqueIndex" json:"email"`
	PasswordHash  string `json:"-"`
	EmailVerified bool   `json:"email_verified"`
	IsStaff       bool   `json:"is_staff"`
	Profile       `gorm:"embedded" json:"profile"`
}

// NormalizeEmail lower-cases and trims an address. Emails are stored and
// compared in this form only.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (u *User) BeforeSave(tx *gorm.DB) error {
	u.Email = NormalizeEmail(u.Email)
	return nil
}
