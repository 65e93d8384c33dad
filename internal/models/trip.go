package models

import (
	"time"

	"gorm.io/gorm"
)

type Trip struct {
	gorm.Model
	Name        string    `json:"name"`
	Date        time.Time `json:"date"`
	MeetupTime  string    `json:"meetup_time"`
	ReturnTime  *string   `json:"return_time"`
	PickupPoint string    `json:"pickup_point"`
	Capacity    uint      `json:"capacity"`
	// Partial unique index: the engine itself refuses a second active trip.
	IsActive bool   `gorm:"uniqueIndex:uniq_active_trip,where:is_active = 1" json:"is_active"`
	Details  string `json:"details"`
}

// SeatsTaken counts every registration row for the trip, cancelled ones
// included, matching how capacity was accounted from day one.
func (t *Trip) SeatsTaken(db *gorm.DB) (int64, error) {
	var count int64
	err := db.Model(&Registration{}).Where("trip_id = ?", t.ID).Count(&count).Error
	return count, err
}

func (t *Trip) SeatsLeft(db *gorm.DB) (int64, error) {
	taken, err := t.SeatsTaken(db)
	if err != nil {
		return 0, err
	}
	left := int64(t.Capacity) - taken
	if left < 0 {
		left = 0
	}
	return left, nil
}

func (t *Trip) IsFull(db *gorm.DB) (bool, error) {
	left, err := t.SeatsLeft(db)
	return left <= 0, err
}

// ActiveTrip returns the single active trip, or gorm.ErrRecordNotFound.
// Orders by date so a historical >1-active inconsistency resolves to the
// latest one.
func ActiveTrip(db *gorm.DB) (*Trip, error) {
	var trip Trip
	if err := db.Where("is_active = ?", true).Order("date desc").First(&trip).Error; err != nil {
		return nil, err
	}
	return &trip, nil
}
