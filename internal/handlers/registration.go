package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/triptrack/triptrack-api/internal/auth"
	"github.com/triptrack/triptrack-api/internal/config"
	"github.com/triptrack/triptrack-api/internal/guard"
	"github.com/triptrack/triptrack-api/internal/models"
	"github.com/triptrack/triptrack-api/internal/notifier"
	"gorm.io/gorm"
)

type RegistrationHandler struct {
	db          *gorm.DB
	cfg         *config.Config
	mailer      notifier.Notifier
	organizer   notifier.OrganizerNotifier
	authHandler *auth.AuthHandler
}

func NewRegistrationHandler(db *gorm.DB, cfg *config.Config, mailer notifier.Notifier, organizer notifier.OrganizerNotifier, authHandler *auth.AuthHandler) *RegistrationHandler {
	return &RegistrationHandler{db: db, cfg: cfg, mailer: mailer, organizer: organizer, authHandler: authHandler}
}

type RegistrationRequest struct {
	auth.AuthInput
	Body struct {
		FirstName  string    `json:"first_name" doc:"First name" required:"true"`
		LastName   string    `json:"last_name" doc:"Last name" required:"true"`
		Phone      string    `json:"phone" doc:"Phone number, 10 digits minimum" required:"true"`
		DOB        time.Time `json:"dob" doc:"Date of birth" required:"true"`
		ParkChoice string    `json:"park_choice" doc:"theme or water" required:"true"`
	}
}

type RegistrationResponse struct {
	Body struct {
		Message        string `json:"message"`
		RegistrationID uint   `json:"registration_id"`
		Status         string `json:"status"`
		Warning        string `json:"warning,omitempty"`
	}
}

// digitsOnly strips everything but digits from a phone number.
func digitsOnly(raw string) string {
	var b strings.Builder
	for _, ch := range raw {
		if ch >= '0' && ch <= '9' {
			b.WriteRune(ch)
		}
	}
	return b.String()
}

func (h *RegistrationHandler) HandleRegister(ctx context.Context, input *RegistrationRequest) (*RegistrationResponse, error) {
	userID, err := h.authHandler.Authorize(ctx, input.AuthInput)
	if err != nil {
		return nil, err
	}
	user, err := h.authHandler.FindUser(userID)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(input.Body.FirstName) == "" || strings.TrimSpace(input.Body.LastName) == "" {
		return nil, huma.Error422UnprocessableEntity("First and last name are required")
	}
	phone := digitsOnly(input.Body.Phone)
	if len(phone) < 10 {
		return nil, huma.Error422UnprocessableEntity("Enter a valid phone number (10 digits)")
	}
	if input.Body.DOB.IsZero() {
		return nil, huma.Error422UnprocessableEntity("Date of birth is required")
	}
	if !input.Body.DOB.Before(startOfToday()) {
		return nil, huma.Error422UnprocessableEntity("DOB cannot be today or in the future")
	}
	if !models.ValidParkChoice(input.Body.ParkChoice) {
		return nil, huma.Error422UnprocessableEntity("Park choice must be theme or water")
	}

	reg, err := guard.AttemptRegister(h.db, user, guard.Details{
		FirstName:  input.Body.FirstName,
		LastName:   input.Body.LastName,
		Phone:      phone,
		DOB:        input.Body.DOB,
		ParkChoice: input.Body.ParkChoice,
	})
	if err != nil {
		switch {
		case errors.Is(err, guard.ErrNotVerified):
			return nil, huma.Error403Forbidden("Please verify your email to join this trip")
		case errors.Is(err, guard.ErrNoActiveTrip):
			return nil, huma.Error404NotFound("Registrations will open soon. No active trip right now")
		case errors.Is(err, guard.ErrAlreadyRegistered):
			return nil, huma.Error409Conflict("You are already registered for this trip")
		case errors.Is(err, guard.ErrSeatsExhausted):
			return nil, huma.Error409Conflict("Sorry, this trip is full")
		}
		return nil, huma.Error500InternalServerError("Failed to process registration: " + err.Error())
	}

	var trip models.Trip
	if err := h.db.First(&trip, reg.TripID).Error; err != nil {
		return nil, huma.Error500InternalServerError("Failed to load trip")
	}

	res := &RegistrationResponse{}
	res.Body.RegistrationID = reg.ID
	res.Body.Status = reg.Status
	res.Body.Message = fmt.Sprintf("You're in %s! See your trip in My Trips.", trip.Name)

	// Registration is committed; everything below is best-effort.
	if !h.sendConfirmation(reg, &trip) {
		res.Body.Warning = "Registered, but the email could not be sent right now"
	}
	h.notifyOrganizer(reg, &trip)

	return res, nil
}

func (h *RegistrationHandler) sendConfirmation(reg *models.Registration, trip *models.Trip) bool {
	if h.mailer == nil {
		return true
	}
	text := fmt.Sprintf(
		"Hi %s,\n\nYou're registered (status: Pending) for %s on %s.\nMeetup: %s at %s\n\nWe'll email ticket details once booked.\n\n- TripTrack",
		reg.FullName, trip.Name, trip.Date.Format("2006-01-02"), trip.MeetupTime, trip.PickupPoint,
	)
	if err := h.mailer.Send(fmt.Sprintf("You're in: %s", trip.Name), []string{reg.EmailUsed}, text, ""); err != nil {
		log.Printf("Failed to send confirmation email to %s: %v", reg.EmailUsed, err)
		return false
	}
	return true
}

func (h *RegistrationHandler) notifyOrganizer(reg *models.Registration, trip *models.Trip) {
	seatsLeft, err := trip.SeatsLeft(h.db)
	if err != nil {
		seatsLeft = 0
	}

	if h.mailer != nil && h.cfg.OrganizerEmail != "" {
		text := fmt.Sprintf(
			"Name: %s\nEmail: %s\nPhone: %s\nPark: %s\nDOB: %s\nTrip: %s (%s)\nSeats left now: %d",
			reg.FullName, reg.EmailUsed, reg.Phone, models.ParkChoiceDisplay(reg.ParkChoice),
			reg.DOB.Format("2006-01-02"), trip.Name, trip.Date.Format("2006-01-02"), seatsLeft,
		)
		subject := fmt.Sprintf("[TripTrack] New registration: %s → %s", reg.FullName, trip.Name)
		if err := h.mailer.Send(subject, []string{h.cfg.OrganizerEmail}, text, ""); err != nil {
			log.Printf("Failed to send organizer email: %v", err)
		}
	}

	if h.organizer != nil {
		if err := h.organizer.NotifyRegistration(*reg, *trip, seatsLeft); err != nil {
			log.Printf("Failed to notify organizers: %v", err)
		}
	}
}

func startOfToday() time.Time {
	now := time.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

// ---------------------------------------------------------------------
// My trips
// ---------------------------------------------------------------------

type MyTripsInput struct {
	auth.AuthInput
}

type MyTripRow struct {
	RegistrationID  uint      `json:"registration_id"`
	TripID          uint      `json:"trip_id"`
	TripName        string    `json:"trip_name"`
	TripDate        time.Time `json:"trip_date"`
	MeetupTime      string    `json:"meetup_time"`
	PickupPoint     string    `json:"pickup_point"`
	Status          string    `json:"status"`
	ParkChoice      string    `json:"park_choice"`
	BoardedOutbound bool      `json:"boarded_outbound"`
	BoardedReturn   bool      `json:"boarded_return"`
	CreatedAt       time.Time `json:"created_at"`
}

type MyTripsResponse struct {
	Body struct {
		Upcoming []MyTripRow `json:"upcoming"`
		Past     []MyTripRow `json:"past"`
	}
}

func (h *RegistrationHandler) HandleMyTrips(ctx context.Context, input *MyTripsInput) (*MyTripsResponse, error) {
	userID, err := h.authHandler.Authorize(ctx, input.AuthInput)
	if err != nil {
		return nil, err
	}

	var regs []models.Registration
	if err := h.db.Preload("Trip").Where("user_id = ?", userID).
		Order("created_at desc").Find(&regs).Error; err != nil {
		return nil, huma.Error500InternalServerError("Failed to load registrations")
	}

	res := &MyTripsResponse{}
	res.Body.Upcoming = []MyTripRow{}
	res.Body.Past = []MyTripRow{}
	today := startOfToday()
	for _, r := range regs {
		row := MyTripRow{
			RegistrationID:  r.ID,
			TripID:          r.TripID,
			TripName:        r.Trip.Name,
			TripDate:        r.Trip.Date,
			MeetupTime:      r.Trip.MeetupTime,
			PickupPoint:     r.Trip.PickupPoint,
			Status:          r.Status,
			ParkChoice:      r.ParkChoice,
			BoardedOutbound: r.BoardedOutbound,
			BoardedReturn:   r.BoardedReturn,
			CreatedAt:       r.CreatedAt,
		}
		if !r.Trip.Date.Before(today) {
			res.Body.Upcoming = append(res.Body.Upcoming, row)
		} else {
			res.Body.Past = append(res.Body.Past, row)
		}
	}
	return res, nil
}
