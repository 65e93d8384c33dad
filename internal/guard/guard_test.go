package guard

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/triptrack/triptrack-api/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.Trip{}, &models.Registration{}); err != nil {
		t.Fatalf("failed to auto migrate: %v", err)
	}
	return db
}

func createUser(t *testing.T, db *gorm.DB, username string, verified bool) *models.User {
	t.Helper()
	user := models.User{
		Username:      username,
		Email:         username + "@example.com",
		EmailVerified: verified,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return &user
}

func createTrip(t *testing.T, db *gorm.DB, name string, capacity uint, active bool) *models.Trip {
	t.Helper()
	trip := models.Trip{
		Name:        name,
		Date:        time.Now().Add(14 * 24 * time.Hour),
		MeetupTime:  "06:30",
		PickupPoint: "Main Gate",
		Capacity:    capacity,
		IsActive:    active,
	}
	if err := db.Create(&trip).Error; err != nil {
		t.Fatalf("failed to create trip: %v", err)
	}
	return &trip
}

func testDetails(first string) Details {
	dob := time.Date(2000, 5, 12, 0, 0, 0, 0, time.UTC)
	return Details{
		FirstName:  first,
		LastName:   "Sharma",
		Phone:      "9876543210",
		DOB:        dob,
		ParkChoice: models.ParkTheme,
	}
}

func TestAttemptRegister_Admitted(t *testing.T) {
	db := setupDB(t)
	createTrip(t, db, "Imagica Day", 50, true)
	user := createUser(t, db, "rahul", true)

	reg, err := AttemptRegister(db, user, testDetails("Rahul"))
	if err != nil {
		t.Fatalf("AttemptRegister returned error: %v", err)
	}

	if reg.FullName != "Rahul Sharma" {
		t.Errorf("expected snapshot name 'Rahul Sharma', got %q", reg.FullName)
	}
	if reg.EmailUsed != user.Email {
		t.Errorf("expected email snapshot %q, got %q", user.Email, reg.EmailUsed)
	}
	if reg.Status != models.StatusPending {
		t.Errorf("expected status pending, got %q", reg.Status)
	}

	// Profile prefill must have been refreshed.
	var fresh models.User
	db.First(&fresh, user.ID)
	if fresh.FirstName != "Rahul" || fresh.Phone != "9876543210" {
		t.Errorf("profile prefill not updated: %+v", fresh.Profile)
	}
	if fresh.DateOfBirth == nil {
		t.Error("profile date of birth not updated")
	}
}

func TestAttemptRegister_NotVerified(t *testing.T) {
	db := setupDB(t)
	createTrip(t, db, "Imagica Day", 50, true)
	user := createUser(t, db, "unverified", false)

	_, err := AttemptRegister(db, user, testDetails("No"))
	if !errors.Is(err, ErrNotVerified) {
		t.Fatalf("expected ErrNotVerified, got %v", err)
	}

	var count int64
	db.Model(&models.Registration{}).Count(&count)
	if count != 0 {
		t.Errorf("expected no registration row, got %d", count)
	}
}

func TestAttemptRegister_NoActiveTrip(t *testing.T) {
	db := setupDB(t)
	createTrip(t, db, "Closed Trip", 50, false)
	user := createUser(t, db, "rahul", true)

	_, err := AttemptRegister(db, user, testDetails("Rahul"))
	if !errors.Is(err, ErrNoActiveTrip) {
		t.Fatalf("expected ErrNoActiveTrip, got %v", err)
	}
}

func TestAttemptRegister_AlreadyRegistered(t *testing.T) {
	db := setupDB(t)
	createTrip(t, db, "Imagica Day", 50, true)
	user := createUser(t, db, "rahul", true)

	first, err := AttemptRegister(db, user, testDetails("Rahul"))
	if err != nil {
		t.Fatalf("first attempt failed: %v", err)
	}

	existing, err := AttemptRegister(db, user, testDetails("Rahul"))
	if !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
	if existing == nil || existing.ID != first.ID {
		t.Errorf("expected the existing registration back, got %+v", existing)
	}

	var count int64
	db.Model(&models.Registration{}).Count(&count)
	if count != 1 {
		t.Errorf("expected 1 registration, got %d", count)
	}
}

func TestAttemptRegister_SeatsExhausted(t *testing.T) {
	db := setupDB(t)
	createTrip(t, db, "Tiny Trip", 1, true)
	first := createUser(t, db, "first", true)
	second := createUser(t, db, "second", true)

	if _, err := AttemptRegister(db, first, testDetails("First")); err != nil {
		t.Fatalf("first attempt failed: %v", err)
	}

	_, err := AttemptRegister(db, second, testDetails("Second"))
	if !errors.Is(err, ErrSeatsExhausted) {
		t.Fatalf("expected ErrSeatsExhausted, got %v", err)
	}

	var count int64
	db.Model(&models.Registration{}).Count(&count)
	if count != 1 {
		t.Errorf("capacity exceeded: %d registrations for capacity 1", count)
	}
}

func TestAttemptRegister_ZeroCapacity(t *testing.T) {
	db := setupDB(t)
	createTrip(t, db, "No Seats", 0, true)
	user := createUser(t, db, "rahul", true)

	_, err := AttemptRegister(db, user, testDetails("Rahul"))
	if !errors.Is(err, ErrSeatsExhausted) {
		t.Fatalf("expected ErrSeatsExhausted, got %v", err)
	}
}

func TestAttemptRegister_ConcurrentLastSeat(t *testing.T) {
	// File-backed database with immediate transactions so concurrent
	// writers queue instead of deadlocking on a lock upgrade.
	dsn := fmt.Sprintf("file:%s?_busy_timeout=10000&_txlock=immediate",
		filepath.Join(t.TempDir(), "race.db"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.Trip{}, &models.Registration{}); err != nil {
		t.Fatalf("failed to auto migrate: %v", err)
	}

	createTrip(t, db, "Last Seat", 1, true)

	const attempts = 4
	users := make([]*models.User, attempts)
	for i := range users {
		users[i] = createUser(t, db, fmt.Sprintf("racer%d", i), true)
	}

	var wg sync.WaitGroup
	results := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = AttemptRegister(db, users[i], testDetails(fmt.Sprintf("Racer%d", i)))
		}(i)
	}
	wg.Wait()

	admitted := 0
	rejected := 0
	for i, err := range results {
		switch {
		case err == nil:
			admitted++
		case errors.Is(err, ErrSeatsExhausted):
			rejected++
		default:
			t.Errorf("attempt %d: unexpected error: %v", i, err)
		}
	}
	if admitted != 1 {
		t.Errorf("expected exactly 1 admission, got %d", admitted)
	}
	if rejected != attempts-1 {
		t.Errorf("expected %d seat rejections, got %d", attempts-1, rejected)
	}

	var count int64
	db.Model(&models.Registration{}).Count(&count)
	if count != 1 {
		t.Errorf("capacity exceeded: %d registrations for capacity 1", count)
	}
}

func TestAttemptRegister_DeactivatedBeforeLock(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=10000&_txlock=immediate",
		filepath.Join(t.TempDir(), "deactivate.db"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.Trip{}, &models.Registration{}); err != nil {
		t.Fatalf("failed to auto migrate: %v", err)
	}
	admin, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open second connection: %v", err)
	}

	trip := createTrip(t, db, "Imagica Day", 50, true)
	user := createUser(t, db, "rahul", true)

	// A staff deactivation lands between the optimistic active-trip read
	// and the locked re-read inside the transaction. The locked re-check
	// must reject the registration instead of committing it into a trip
	// that is no longer active.
	deactivated := false
	err = db.Callback().Query().After("gorm:query").Register("deactivate_after_first_read", func(tx *gorm.DB) {
		if deactivated || tx.Statement.Table != "trips" {
			return
		}
		deactivated = true
		admin.Model(&models.Trip{}).Where("id = ?", trip.ID).Update("is_active", false)
	})
	if err != nil {
		t.Fatalf("failed to register callback: %v", err)
	}

	_, err = AttemptRegister(db, user, testDetails("Rahul"))
	if !errors.Is(err, ErrNoActiveTrip) {
		t.Fatalf("expected ErrNoActiveTrip, got %v", err)
	}

	var count int64
	db.Model(&models.Registration{}).Count(&count)
	if count != 0 {
		t.Errorf("expected no registration on the deactivated trip, got %d", count)
	}
}

func TestSetActive_DemotesOthers(t *testing.T) {
	db := setupDB(t)
	trip1 := createTrip(t, db, "Trip 1", 50, true)
	trip2 := createTrip(t, db, "Trip 2", 50, false)

	if err := SetActive(db, trip2.ID); err != nil {
		t.Fatalf("SetActive failed: %v", err)
	}

	var t1, t2 models.Trip
	db.First(&t1, trip1.ID)
	db.First(&t2, trip2.ID)
	if t1.IsActive {
		t.Error("trip 1 should have been demoted")
	}
	if !t2.IsActive {
		t.Error("trip 2 should be active")
	}
}

func TestSetActive_InvariantAfterManyCalls(t *testing.T) {
	db := setupDB(t)
	trips := make([]*models.Trip, 5)
	for i := range trips {
		trips[i] = createTrip(t, db, fmt.Sprintf("Trip %d", i), 50, i == 0)
	}

	for i := 0; i < 20; i++ {
		if err := SetActive(db, trips[i%len(trips)].ID); err != nil {
			t.Fatalf("SetActive call %d failed: %v", i, err)
		}
		var active int64
		db.Model(&models.Trip{}).Where("is_active = ?", true).Count(&active)
		if active != 1 {
			t.Fatalf("invariant broken after call %d: %d active trips", i, active)
		}
	}
}

func TestSetActive_ConcurrentCalls(t *testing.T) {
	// File-backed database with immediate transactions so concurrent
	// writers queue instead of deadlocking on a lock upgrade.
	dsn := fmt.Sprintf("file:%s?_busy_timeout=10000&_txlock=immediate",
		filepath.Join(t.TempDir(), "active.db"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.Trip{}, &models.Registration{}); err != nil {
		t.Fatalf("failed to auto migrate: %v", err)
	}

	const racers = 4
	trips := make([]*models.Trip, racers)
	for i := range trips {
		trips[i] = createTrip(t, db, fmt.Sprintf("Trip %d", i), 50, i == 0)
	}

	var wg sync.WaitGroup
	results := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = SetActive(db, trips[i].ID)
		}(i)
	}
	wg.Wait()

	for i, err := range results {
		if err != nil {
			t.Errorf("racer %d: SetActive failed: %v", i, err)
		}
	}

	var active int64
	db.Model(&models.Trip{}).Where("is_active = ?", true).Count(&active)
	if active != 1 {
		t.Errorf("expected exactly 1 active trip after the race, got %d", active)
	}
}

func TestSetActive_UnknownTrip(t *testing.T) {
	db := setupDB(t)
	createTrip(t, db, "Only Trip", 50, true)

	if err := SetActive(db, 999); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}

	// The existing active trip must be untouched by the failed call.
	var active int64
	db.Model(&models.Trip{}).Where("is_active = ?", true).Count(&active)
	if active != 1 {
		t.Errorf("expected 1 active trip, got %d", active)
	}
}

func TestSaveTrip_ActiveCreateDemotesOthers(t *testing.T) {
	db := setupDB(t)
	old := createTrip(t, db, "Old Active", 50, true)

	trip := models.Trip{
		Name:        "New Active",
		Date:        time.Now().Add(30 * 24 * time.Hour),
		MeetupTime:  "07:00",
		PickupPoint: "North Gate",
		Capacity:    40,
		IsActive:    true,
	}
	if err := SaveTrip(db, &trip); err != nil {
		t.Fatalf("SaveTrip failed: %v", err)
	}

	var demoted models.Trip
	db.First(&demoted, old.ID)
	if demoted.IsActive {
		t.Error("previous active trip should have been demoted in the same unit of work")
	}

	var active int64
	db.Model(&models.Trip{}).Where("is_active = ?", true).Count(&active)
	if active != 1 {
		t.Errorf("expected 1 active trip, got %d", active)
	}
}

func TestSaveTrip_EditWithoutActivation(t *testing.T) {
	db := setupDB(t)
	active := createTrip(t, db, "Active", 50, true)
	other := createTrip(t, db, "Other", 50, false)

	other.Capacity = 60
	if err := SaveTrip(db, other); err != nil {
		t.Fatalf("SaveTrip failed: %v", err)
	}

	var still models.Trip
	db.First(&still, active.ID)
	if !still.IsActive {
		t.Error("editing an inactive trip must not demote the active one")
	}
}

func TestSetBoarded_TransitionsAndIdempotency(t *testing.T) {
	db := setupDB(t)
	createTrip(t, db, "Imagica Day", 50, true)
	user := createUser(t, db, "rahul", true)
	reg, err := AttemptRegister(db, user, testDetails("Rahul"))
	if err != nil {
		t.Fatalf("AttemptRegister failed: %v", err)
	}

	old, err := SetBoarded(db, reg, LegOutbound, true)
	if err != nil {
		t.Fatalf("SetBoarded failed: %v", err)
	}
	if old {
		t.Error("expected old value false on first transition")
	}

	// Same value again: no-op, old now true so no notification would fire.
	old, err = SetBoarded(db, reg, LegOutbound, true)
	if err != nil {
		t.Fatalf("SetBoarded failed: %v", err)
	}
	if !old {
		t.Error("expected old value true on repeat")
	}

	// Legs are independent.
	var fresh models.Registration
	db.First(&fresh, reg.ID)
	if fresh.BoardedReturn {
		t.Error("return leg must be untouched by outbound toggle")
	}

	old, err = SetBoarded(db, &fresh, LegReturn, true)
	if err != nil {
		t.Fatalf("SetBoarded failed: %v", err)
	}
	if old {
		t.Error("expected old value false for return leg")
	}

	if _, err := SetBoarded(db, &fresh, Leg("sideways"), true); err == nil {
		t.Error("expected error for unknown leg")
	}
}

func TestSnapshotImmutableAfterProfileEdit(t *testing.T) {
	db := setupDB(t)
	createTrip(t, db, "Imagica Day", 50, true)
	user := createUser(t, db, "rahul", true)

	reg, err := AttemptRegister(db, user, testDetails("Rahul"))
	if err != nil {
		t.Fatalf("AttemptRegister failed: %v", err)
	}

	// Later profile and email edits must not leak into the snapshot.
	db.Model(&models.User{}).Where("id = ?", user.ID).Updates(map[string]interface{}{
		"first_name": "Renamed",
		"phone":      "1112223334",
		"email":      "renamed@example.com",
	})

	var fresh models.Registration
	db.First(&fresh, reg.ID)
	if fresh.FullName != "Rahul Sharma" {
		t.Errorf("snapshot name mutated: %q", fresh.FullName)
	}
	if fresh.Phone != "9876543210" {
		t.Errorf("snapshot phone mutated: %q", fresh.Phone)
	}
	if fresh.EmailUsed != "rahul@example.com" {
		t.Errorf("snapshot email mutated: %q", fresh.EmailUsed)
	}
}
