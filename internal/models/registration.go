package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	ParkTheme = "theme"
	ParkWater = "water"
)

const (
	StatusPending   = "pending"
	StatusPaid      = "paid"
	StatusCancelled = "cancelled"
)

// AdminFields are the registration fields staff may edit after the fact.
// Snapshot fields (name, phone, dob, park choice, email) are frozen at
// creation and deliberately absent here.
type AdminFields struct {
	Status             string `json:"status"`
	ImagicaTransaction string `json:"imagica_transaction"`
	Price              *uint  `json:"price"`
	GiftCode           string `json:"gift_code"`
	BoardedOutbound    bool   `json:"boarded_outbound"`
	BoardedReturn      bool   `json:"boarded_return"`
}

type Registration struct {
	gorm.Model
	TripID uint `json:"trip_id" gorm:"uniqueIndex:idx_trip_user;index:idx_trip_name"`
	UserID uint `json:"user_id" gorm:"uniqueIndex:idx_trip_user"`
	Trip   Trip `json:"-" gorm:"foreignKey:TripID"`
	User   User `json:"-" gorm:"foreignKey:UserID"`

	// Snapshot fields, copied verbatim at join time.
	FullName   string    `json:"full_name" gorm:"index:idx_trip_name"`
	Phone      string    `json:"phone"`
	DOB        time.Time `json:"dob"`
	ParkChoice string    `json:"park_choice"`
	EmailUsed  string    `json:"email_used"`

	AdminFields `gorm:"embedded"`
}

func ValidParkChoice(p string) bool {
	return p == ParkTheme || p == ParkWater
}

// ParkChoiceDisplay returns the human-readable label used in exports.
func ParkChoiceDisplay(p string) string {
	switch p {
	case ParkTheme:
		return "Theme Park"
	case ParkWater:
		return "Water Park"
	default:
		return p
	}
}

func ValidStatus(s string) bool {
	return s == StatusPending || s == StatusPaid || s == StatusCancelled
}
