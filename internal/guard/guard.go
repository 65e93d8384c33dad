package guard

import (
	"errors"
	"strings"
	"time"

	"github.com/triptrack/triptrack-api/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Rejection reasons for a registration attempt. Handlers translate these
// into HTTP errors; nothing else may leak out of AttemptRegister besides
// raw storage failures.
var (
	ErrNotVerified       = errors.New("email not verified")
	ErrNoActiveTrip      = errors.New("no active trip")
	ErrAlreadyRegistered = errors.New("already registered for this trip")
	ErrSeatsExhausted    = errors.New("no seats left")
)

// Details carries the user-supplied fields that become the registration
// snapshot. They are copied verbatim on admission and never re-derived
// from the profile afterwards.
type Details struct {
	FirstName  string
	LastName   string
	Phone      string
	DOB        time.Time
	ParkChoice string
}

func (d Details) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(d.FirstName) + " " + strings.TrimSpace(d.LastName))
}

// AttemptRegister joins the user to the active trip. The seat re-count and
// the insert run inside one transaction with the trip row locked, so two
// submissions racing for the last seat cannot both be admitted. A lost
// race on the (trip, user) unique index is reported as ErrAlreadyRegistered.
//
// On admission the user's profile prefill fields are refreshed from the
// submitted details. Past registration snapshots are never touched.
func AttemptRegister(db *gorm.DB, user *models.User, d Details) (*models.Registration, error) {
	if !user.EmailVerified {
		return nil, ErrNotVerified
	}

	trip, err := models.ActiveTrip(db)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoActiveTrip
		}
		return nil, err
	}

	var existing models.Registration
	if err := db.Where("trip_id = ? AND user_id = ?", trip.ID, user.ID).First(&existing).Error; err == nil {
		return &existing, ErrAlreadyRegistered
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// Optimistic pre-check. The authoritative check happens again under
	// the row lock below.
	if full, err := trip.IsFull(db); err != nil {
		return nil, err
	} else if full {
		return nil, ErrSeatsExhausted
	}

	reg := models.Registration{
		TripID:     trip.ID,
		UserID:     user.ID,
		FullName:   d.FullName(),
		Phone:      d.Phone,
		DOB:        d.DOB,
		ParkChoice: d.ParkChoice,
		EmailUsed:  user.Email,
		AdminFields: models.AdminFields{
			Status: models.StatusPending,
		},
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		var locked models.Trip
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&locked, trip.ID).Error; err != nil {
			return err
		}
		// Re-check under the lock: the trip may have been deactivated
		// between the optimistic read and here.
		if !locked.IsActive {
			return ErrNoActiveTrip
		}

		var taken int64
		if err := tx.Model(&models.Registration{}).Where("trip_id = ?", locked.ID).Count(&taken).Error; err != nil {
			return err
		}
		if taken >= int64(locked.Capacity) {
			return ErrSeatsExhausted
		}

		if err := tx.Create(&reg).Error; err != nil {
			return err
		}

		return updatePrefill(tx, user, d)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed") {
			if ferr := db.Where("trip_id = ? AND user_id = ?", trip.ID, user.ID).First(&existing).Error; ferr == nil {
				return &existing, ErrAlreadyRegistered
			}
			return nil, ErrAlreadyRegistered
		}
		return nil, err
	}

	return &reg, nil
}

func updatePrefill(tx *gorm.DB, user *models.User, d Details) error {
	changed := false
	if fn := strings.TrimSpace(d.FirstName); fn != "" && user.FirstName != fn {
		user.FirstName = fn
		changed = true
	}
	if ln := strings.TrimSpace(d.LastName); ln != "" && user.LastName != ln {
		user.LastName = ln
		changed = true
	}
	if d.Phone != "" && user.Phone != d.Phone {
		user.Phone = d.Phone
		changed = true
	}
	if !d.DOB.IsZero() && (user.DateOfBirth == nil || !user.DateOfBirth.Equal(d.DOB)) {
		dob := d.DOB
		user.DateOfBirth = &dob
		changed = true
	}
	if !changed {
		return nil
	}
	return tx.Model(&models.User{}).Where("id = ?", user.ID).Updates(map[string]interface{}{
		"first_name":    user.FirstName,
		"last_name":     user.LastName,
		"phone":         user.Phone,
		"date_of_birth": user.DateOfBirth,
	}).Error
}

// SetActive marks exactly one trip active. Demotion of every other trip
// and the promotion happen in the same transaction; the partial unique
// index on trips(is_active) backs the invariant at the storage level, so
// a racing writer gets a constraint error instead of a second active row.
func SetActive(db *gorm.DB, tripID uint) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var trip models.Trip
		if err := tx.First(&trip, tripID).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Trip{}).Where("id <> ? AND is_active = ?", tripID, true).
			Update("is_active", false).Error; err != nil {
			return err
		}
		return tx.Model(&trip).Update("is_active", true).Error
	})
}

// SaveTrip creates or updates a trip. When the trip is flagged active the
// demotion of the others runs in the same transaction as the save, never
// as a separate follow-up statement.
func SaveTrip(db *gorm.DB, trip *models.Trip) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if trip.IsActive {
			if err := tx.Model(&models.Trip{}).Where("id <> ? AND is_active = ?", trip.ID, true).
				Update("is_active", false).Error; err != nil {
				return err
			}
		}
		return tx.Save(trip).Error
	})
}

type Leg string

const (
	LegOutbound Leg = "out"
	LegReturn   Leg = "ret"
)

// SetBoarded flips one boarding flag and returns its previous value, so
// the caller can notify only on the false-to-true transition. Writing the
// same value twice is a no-op.
func SetBoarded(db *gorm.DB, reg *models.Registration, leg Leg, value bool) (bool, error) {
	var old bool
	var column string
	switch leg {
	case LegOutbound:
		old, column = reg.BoardedOutbound, "boarded_outbound"
		reg.BoardedOutbound = value
	case LegReturn:
		old, column = reg.BoardedReturn, "boarded_return"
		reg.BoardedReturn = value
	default:
		return false, errors.New("unknown boarding leg: " + string(leg))
	}
	if old == value {
		return old, nil
	}
	if err := db.Model(reg).Update(column, value).Error; err != nil {
		return old, err
	}
	return old, nil
}
