package handlers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/triptrack/triptrack-api/internal/auth"
	"github.com/triptrack/triptrack-api/internal/guard"
	"github.com/triptrack/triptrack-api/internal/models"
	"gorm.io/gorm"
)

type TripHandler struct {
	db          *gorm.DB
	authHandler *auth.AuthHandler
}

func NewTripHandler(db *gorm.DB, authHandler *auth.AuthHandler) *TripHandler {
	return &TripHandler{db: db, authHandler: authHandler}
}

type TripBody struct {
	Name        string    `json:"name" doc:"Trip name" required:"true"`
	Date        time.Time `json:"date" doc:"Trip date" required:"true"`
	MeetupTime  string    `json:"meetup_time" doc:"Meetup time, HH:MM" required:"true"`
	ReturnTime  *string   `json:"return_time,omitempty" doc:"Return time, HH:MM"`
	PickupPoint string    `json:"pickup_point" doc:"Pickup point or address" required:"true"`
	Capacity    uint      `json:"capacity" doc:"Seat capacity, zero or greater"`
	IsActive    bool      `json:"is_active" doc:"Open this trip for registration, closing all others"`
	Details     string    `json:"details,omitempty" doc:"Inclusions, notes, pricing"`
}

type TripView struct {
	ID          uint      `json:"id"`
	Name        string    `json:"name"`
	Date        time.Time `json:"date"`
	MeetupTime  string    `json:"meetup_time"`
	ReturnTime  *string   `json:"return_time,omitempty"`
	PickupPoint string    `json:"pickup_point"`
	Capacity    uint      `json:"capacity"`
	IsActive    bool      `json:"is_active"`
	Details     string    `json:"details"`
	SeatsTaken  int64     `json:"seats_taken"`
	SeatsLeft   int64     `json:"seats_left"`
	IsFull      bool      `json:"is_full"`
}

func (h *TripHandler) tripView(trip *models.Trip) (TripView, error) {
	taken, err := trip.SeatsTaken(h.db)
	if err != nil {
		return TripView{}, err
	}
	left := int64(trip.Capacity) - taken
	if left < 0 {
		left = 0
	}
	return TripView{
		ID:          trip.ID,
		Name:        trip.Name,
		Date:        trip.Date,
		MeetupTime:  trip.MeetupTime,
		ReturnTime:  trip.ReturnTime,
		PickupPoint: trip.PickupPoint,
		Capacity:    trip.Capacity,
		IsActive:    trip.IsActive,
		Details:     trip.Details,
		SeatsTaken:  taken,
		SeatsLeft:   left,
		IsFull:      left <= 0,
	}, nil
}

func validateTripBody(body *TripBody) error {
	if strings.TrimSpace(body.Name) == "" {
		return huma.Error422UnprocessableEntity("Trip name is required")
	}
	if body.Date.IsZero() {
		return huma.Error422UnprocessableEntity("Trip date is required")
	}
	if _, err := time.Parse("15:04", body.MeetupTime); err != nil {
		return huma.Error422UnprocessableEntity("Meetup time must be HH:MM")
	}
	if body.ReturnTime != nil {
		if _, err := time.Parse("15:04", *body.ReturnTime); err != nil {
			return huma.Error422UnprocessableEntity("Return time must be HH:MM")
		}
	}
	if strings.TrimSpace(body.PickupPoint) == "" {
		return huma.Error422UnprocessableEntity("Pickup point is required")
	}
	return nil
}

// ---------------------------------------------------------------------
// Public
// ---------------------------------------------------------------------

type ActiveTripInput struct{}

type ActiveTripResponse struct {
	Body TripView
}

func (h *TripHandler) HandleActiveTrip(ctx context.Context, input *ActiveTripInput) (*ActiveTripResponse, error) {
	trip, err := models.ActiveTrip(h.db)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, huma.Error404NotFound("No active trip right now")
		}
		return nil, huma.Error500InternalServerError("Database error")
	}
	view, err := h.tripView(trip)
	if err != nil {
		return nil, huma.Error500InternalServerError("Database error")
	}
	return &ActiveTripResponse{Body: view}, nil
}

// ---------------------------------------------------------------------
// Staff
// ---------------------------------------------------------------------

type ListTripsInput struct {
	auth.AuthInput
}

type ListTripsResponse struct {
	Body []TripView
}

func (h *TripHandler) HandleListTrips(ctx context.Context, input *ListTripsInput) (*ListTripsResponse, error) {
	if _, err := h.authHandler.RequireStaff(ctx, input.AuthInput); err != nil {
		return nil, err
	}

	var trips []models.Trip
	if err := h.db.Order("date desc").Find(&trips).Error; err != nil {
		return nil, huma.Error500InternalServerError("Failed to list trips")
	}

	views := []TripView{}
	for i := range trips {
		view, err := h.tripView(&trips[i])
		if err != nil {
			return nil, huma.Error500InternalServerError("Database error")
		}
		views = append(views, view)
	}
	return &ListTripsResponse{Body: views}, nil
}

type CreateTripInput struct {
	auth.AuthInput
	Body TripBody
}

type TripResponse struct {
	Body TripView
}

func (h *TripHandler) HandleCreateTrip(ctx context.Context, input *CreateTripInput) (*TripResponse, error) {
	if _, err := h.authHandler.RequireStaff(ctx, input.AuthInput); err != nil {
		return nil, err
	}
	if err := validateTripBody(&input.Body); err != nil {
		return nil, err
	}

	trip := models.Trip{
		Name:        input.Body.Name,
		Date:        input.Body.Date,
		MeetupTime:  input.Body.MeetupTime,
		ReturnTime:  input.Body.ReturnTime,
		PickupPoint: input.Body.PickupPoint,
		Capacity:    input.Body.Capacity,
		IsActive:    input.Body.IsActive,
		Details:     input.Body.Details,
	}
	if err := guard.SaveTrip(h.db, &trip); err != nil {
		return nil, huma.Error500InternalServerError("Failed to create trip: " + err.Error())
	}

	view, err := h.tripView(&trip)
	if err != nil {
		return nil, huma.Error500InternalServerError("Database error")
	}
	return &TripResponse{Body: view}, nil
}

type UpdateTripInput struct {
	auth.AuthInput
	ID   uint `path:"id"`
	Body TripBody
}

func (h *TripHandler) HandleUpdateTrip(ctx context.Context, input *UpdateTripInput) (*TripResponse, error) {
	if _, err := h.authHandler.RequireStaff(ctx, input.AuthInput); err != nil {
		return nil, err
	}
	if err := validateTripBody(&input.Body); err != nil {
		return nil, err
	}

	var trip models.Trip
	if err := h.db.First(&trip, input.ID).Error; err != nil {
		return nil, huma.Error404NotFound("Trip not found")
	}

	trip.Name = input.Body.Name
	trip.Date = input.Body.Date
	trip.MeetupTime = input.Body.MeetupTime
	trip.ReturnTime = input.Body.ReturnTime
	trip.PickupPoint = input.Body.PickupPoint
	trip.Capacity = input.Body.Capacity
	trip.IsActive = input.Body.IsActive
	trip.Details = input.Body.Details

	if err := guard.SaveTrip(h.db, &trip); err != nil {
		return nil, huma.Error500InternalServerError("Failed to update trip: " + err.Error())
	}

	view, err := h.tripView(&trip)
	if err != nil {
		return nil, huma.Error500InternalServerError("Database error")
	}
	return &TripResponse{Body: view}, nil
}

type ActivateTripInput struct {
	auth.AuthInput
	ID uint `path:"id"`
}

type ActivateTripResponse struct {
	Body struct {
		Message string `json:"message"`
	}
}

func (h *TripHandler) HandleActivateTrip(ctx context.Context, input *ActivateTripInput) (*ActivateTripResponse, error) {
	if _, err := h.authHandler.RequireStaff(ctx, input.AuthInput); err != nil {
		return nil, err
	}

	if err := guard.SetActive(h.db, input.ID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, huma.Error404NotFound("Trip not found")
		}
		return nil, huma.Error500InternalServerError("Failed to activate trip: " + err.Error())
	}

	var trip models.Trip
	if err := h.db.First(&trip, input.ID).Error; err != nil {
		return nil, huma.Error500InternalServerError("Database error")
	}

	res := &ActivateTripResponse{}
	res.Body.Message = "'" + trip.Name + "' is now active"
	return res, nil
}

type DeleteTripInput struct {
	auth.AuthInput
	ID uint `path:"id"`
}

func (h *TripHandler) HandleDeleteTrip(ctx context.Context, input *DeleteTripInput) (*struct{}, error) {
	if _, err := h.authHandler.RequireStaff(ctx, input.AuthInput); err != nil {
		return nil, err
	}

	// Hard delete trip and its registrations together; a soft-deleted
	// active trip would keep occupying the single-active partial index.
	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("trip_id = ?", input.ID).Delete(&models.Registration{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(&models.Trip{}, input.ID).Error
	})
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to delete trip")
	}
	return nil, nil
}

// ---------------------------------------------------------------------
// Dashboard
// ---------------------------------------------------------------------

type DashboardInput struct {
	auth.AuthInput
}

type RecentRegistration struct {
	ID        uint      `json:"id"`
	FullName  string    `json:"full_name"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type DashboardResponse struct {
	Body struct {
		Trip      *TripView            `json:"trip,omitempty"`
		Total     int64                `json:"total"`
		Paid      int64                `json:"paid"`
		Pending   int64                `json:"pending"`
		SeatsLeft int64                `json:"seats_left"`
		FilledPct int                  `json:"filled_pct"`
		Recent    []RecentRegistration `json:"recent"`
	}
}

func (h *TripHandler) HandleDashboard(ctx context.Context, input *DashboardInput) (*DashboardResponse, error) {
	if _, err := h.authHandler.RequireStaff(ctx, input.AuthInput); err != nil {
		return nil, err
	}

	res := &DashboardResponse{}
	res.Body.Recent = []RecentRegistration{}

	trip, err := models.ActiveTrip(h.db)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return res, nil
		}
		return nil, huma.Error500InternalServerError("Database error")
	}

	view, err := h.tripView(trip)
	if err != nil {
		return nil, huma.Error500InternalServerError("Database error")
	}
	res.Body.Trip = &view

	if err := h.db.Model(&models.Registration{}).Where("trip_id = ?", trip.ID).Count(&res.Body.Total).Error; err != nil {
		return nil, huma.Error500InternalServerError("Database error")
	}
	h.db.Model(&models.Registration{}).Where("trip_id = ? AND status = ?", trip.ID, models.StatusPaid).Count(&res.Body.Paid)
	h.db.Model(&models.Registration{}).Where("trip_id = ? AND status = ?", trip.ID, models.StatusPending).Count(&res.Body.Pending)

	res.Body.SeatsLeft = view.SeatsLeft
	if trip.Capacity > 0 {
		filled := res.Body.Total
		if filled > int64(trip.Capacity) {
			filled = int64(trip.Capacity)
		}
		res.Body.FilledPct = int(filled * 100 / int64(trip.Capacity))
	}

	var recent []models.Registration
	if err := h.db.Where("trip_id = ?", trip.ID).Order("created_at desc").Limit(8).Find(&recent).Error; err != nil {
		return nil, huma.Error500InternalServerError("Database error")
	}
	for _, r := range recent {
		res.Body.Recent = append(res.Body.Recent, RecentRegistration{
			ID:        r.ID,
			FullName:  r.FullName,
			Status:    r.Status,
			CreatedAt: r.CreatedAt,
		})
	}
	return res, nil
}
