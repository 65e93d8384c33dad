package handlers

import (
	"context"
	"testing"
	"time"

	"github.com/triptrack/triptrack-api/internal/models"
)

func tripBody(name string, capacity uint, active bool) TripBody {
	return TripBody{
		Name:        name,
		Date:        time.Now().Add(14 * 24 * time.Hour),
		MeetupTime:  "06:30",
		PickupPoint: "Main Gate",
		Capacity:    capacity,
		IsActive:    active,
	}
}

func TestHandleCreateTrip(t *testing.T) {
	env := setupEnv(t)
	staff := env.createUser(t, "organizer", true, true)

	input := &CreateTripInput{AuthInput: env.authInput(t, staff), Body: tripBody("Imagica Day", 50, true)}
	resp, err := env.tripHandler.HandleCreateTrip(context.Background(), input)
	if err != nil {
		t.Fatalf("HandleCreateTrip returned error: %v", err)
	}
	if !resp.Body.IsActive {
		t.Error("expected created trip to be active")
	}
	if resp.Body.SeatsLeft != 50 {
		t.Errorf("expected 50 seats left, got %d", resp.Body.SeatsLeft)
	}

	t.Run("ActiveCreateDemotesPrevious", func(t *testing.T) {
		input := &CreateTripInput{AuthInput: env.authInput(t, staff), Body: tripBody("Next Trip", 40, true)}
		if _, err := env.tripHandler.HandleCreateTrip(context.Background(), input); err != nil {
			t.Fatalf("HandleCreateTrip returned error: %v", err)
		}

		var active int64
		env.db.Model(&models.Trip{}).Where("is_active = ?", true).Count(&active)
		if active != 1 {
			t.Errorf("expected exactly 1 active trip, got %d", active)
		}
		trip, err := models.ActiveTrip(env.db)
		if err != nil {
			t.Fatalf("ActiveTrip failed: %v", err)
		}
		if trip.Name != "Next Trip" {
			t.Errorf("expected 'Next Trip' active, got %q", trip.Name)
		}
	})

	t.Run("NonStaffRejected", func(t *testing.T) {
		member := env.createUser(t, "member", true, false)
		input := &CreateTripInput{AuthInput: env.authInput(t, member), Body: tripBody("Rogue Trip", 10, false)}
		if _, err := env.tripHandler.HandleCreateTrip(context.Background(), input); err == nil {
			t.Fatal("expected non-staff caller to be rejected")
		}
	})

	t.Run("BadMeetupTime", func(t *testing.T) {
		body := tripBody("Bad Time", 10, false)
		body.MeetupTime = "6:3"
		input := &CreateTripInput{AuthInput: env.authInput(t, staff), Body: body}
		if _, err := env.tripHandler.HandleCreateTrip(context.Background(), input); err == nil {
			t.Fatal("expected invalid meetup time to be rejected")
		}
	})
}

func TestHandleActivateTrip(t *testing.T) {
	env := setupEnv(t)
	staff := env.createUser(t, "organizer", true, true)
	trip1 := env.createTrip(t, "Trip 1", 50, true)
	trip2 := env.createTrip(t, "Trip 2", 50, false)

	input := &ActivateTripInput{AuthInput: env.authInput(t, staff), ID: trip2.ID}
	if _, err := env.tripHandler.HandleActivateTrip(context.Background(), input); err != nil {
		t.Fatalf("HandleActivateTrip returned error: %v", err)
	}

	var t1, t2 models.Trip
	env.db.First(&t1, trip1.ID)
	env.db.First(&t2, trip2.ID)
	if t1.IsActive || !t2.IsActive {
		t.Errorf("expected trip 2 active and trip 1 demoted, got %v/%v", t1.IsActive, t2.IsActive)
	}

	t.Run("UnknownTrip", func(t *testing.T) {
		input := &ActivateTripInput{AuthInput: env.authInput(t, staff), ID: 999}
		if _, err := env.tripHandler.HandleActivateTrip(context.Background(), input); err == nil {
			t.Fatal("expected unknown trip to 404")
		}
	})
}

func TestHandleUpdateTrip(t *testing.T) {
	env := setupEnv(t)
	staff := env.createUser(t, "organizer", true, true)
	active := env.createTrip(t, "Active", 50, true)
	other := env.createTrip(t, "Other", 50, false)

	// Editing the inactive trip while flagging it active demotes the
	// current one in the same unit of work.
	body := tripBody("Other", 60, true)
	input := &UpdateTripInput{AuthInput: env.authInput(t, staff), ID: other.ID, Body: body}
	resp, err := env.tripHandler.HandleUpdateTrip(context.Background(), input)
	if err != nil {
		t.Fatalf("HandleUpdateTrip returned error: %v", err)
	}
	if resp.Body.Capacity != 60 {
		t.Errorf("expected capacity 60, got %d", resp.Body.Capacity)
	}

	var prev models.Trip
	env.db.First(&prev, active.ID)
	if prev.IsActive {
		t.Error("expected previously active trip to be demoted")
	}
}

func TestHandleDeleteTrip(t *testing.T) {
	env := setupEnv(t)
	staff := env.createUser(t, "organizer", true, true)
	trip := env.createTrip(t, "Doomed", 50, true)
	env.seedRegistration(t, trip, "alice", "Alice Kumar", "pending")

	input := &DeleteTripInput{AuthInput: env.authInput(t, staff), ID: trip.ID}
	if _, err := env.tripHandler.HandleDeleteTrip(context.Background(), input); err != nil {
		t.Fatalf("HandleDeleteTrip returned error: %v", err)
	}

	var trips, regs int64
	env.db.Model(&models.Trip{}).Count(&trips)
	env.db.Model(&models.Registration{}).Count(&regs)
	if trips != 0 || regs != 0 {
		t.Errorf("expected trip and registrations gone, got %d/%d", trips, regs)
	}
}

func TestHandleActiveTrip_Public(t *testing.T) {
	env := setupEnv(t)

	if _, err := env.tripHandler.HandleActiveTrip(context.Background(), &ActiveTripInput{}); err == nil {
		t.Fatal("expected 404 with no active trip")
	}

	trip := env.createTrip(t, "Imagica Day", 2, true)
	env.seedRegistration(t, trip, "alice", "Alice Kumar", "pending")

	resp, err := env.tripHandler.HandleActiveTrip(context.Background(), &ActiveTripInput{})
	if err != nil {
		t.Fatalf("HandleActiveTrip returned error: %v", err)
	}
	if resp.Body.SeatsTaken != 1 || resp.Body.SeatsLeft != 1 || resp.Body.IsFull {
		t.Errorf("unexpected seat math: %+v", resp.Body)
	}
}

func TestHandleDashboard(t *testing.T) {
	env := setupEnv(t)
	staff := env.createUser(t, "organizer", true, true)
	trip := env.createTrip(t, "Imagica Day", 4, true)

	env.seedRegistration(t, trip, "alice", "Alice Kumar", "pending")
	env.seedRegistration(t, trip, "bob", "Bob Mehta", "paid")
	env.seedRegistration(t, trip, "carol", "Carol Iyer", "paid")

	input := &DashboardInput{AuthInput: env.authInput(t, staff)}
	resp, err := env.tripHandler.HandleDashboard(context.Background(), input)
	if err != nil {
		t.Fatalf("HandleDashboard returned error: %v", err)
	}
	if resp.Body.Total != 3 || resp.Body.Paid != 2 || resp.Body.Pending != 1 {
		t.Errorf("unexpected counts: %+v", resp.Body)
	}
	if resp.Body.SeatsLeft != 1 {
		t.Errorf("expected 1 seat left, got %d", resp.Body.SeatsLeft)
	}
	if resp.Body.FilledPct != 75 {
		t.Errorf("expected 75%% filled, got %d", resp.Body.FilledPct)
	}
	if len(resp.Body.Recent) != 3 {
		t.Errorf("expected 3 recent registrations, got %d", len(resp.Body.Recent))
	}
}
