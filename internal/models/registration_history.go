package models

import (
	"gorm.io/gorm"
)

// RegistrationHistory records the admin fields as they stood after each
// staff edit, so status/price changes stay auditable.
type RegistrationHistory struct {
	gorm.Model
	RegistrationID uint `json:"registration_id"`
	TripID         uint `json:"trip_id"`
	UserID         uint `json:"user_id"`
	EditedByID     uint `json:"edited_by_id"`
	AdminFields    `gorm:"embedded"`
}
