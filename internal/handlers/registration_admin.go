package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/triptrack/triptrack-api/internal/auth"
	"github.com/triptrack/triptrack-api/internal/guard"
	"github.com/triptrack/triptrack-api/internal/models"
	"gorm.io/gorm"
)

// ---------------------------------------------------------------------
// List
// ---------------------------------------------------------------------

type ListRegistrationsInput struct {
	auth.AuthInput
}

type RegistrationRow struct {
	ID                 uint      `json:"id"`
	FullName           string    `json:"full_name"`
	EmailUsed          string    `json:"email_used"`
	Phone              string    `json:"phone"`
	DOB                time.Time `json:"dob"`
	ParkChoice         string    `json:"park_choice"`
	Status             string    `json:"status"`
	ImagicaTransaction string    `json:"imagica_transaction"`
	Price              *uint     `json:"price"`
	GiftCode           string    `json:"gift_code"`
	BoardedOutbound    bool      `json:"boarded_outbound"`
	BoardedReturn      bool      `json:"boarded_return"`
	CreatedAt          time.Time `json:"created_at"`
}

type ListRegistrationsResponse struct {
	Body struct {
		Trip      TripView          `json:"trip"`
		Rows      []RegistrationRow `json:"rows"`
		Total     int64             `json:"total"`
		Capacity  uint              `json:"capacity"`
		Delta     int64             `json:"delta" doc:"Positive means overbooked, negative means seats left"`
		Paid      int64             `json:"paid"`
		Pending   int64             `json:"pending"`
		Cancelled int64             `json:"cancelled"`
	}
}

func registrationRow(r *models.Registration) RegistrationRow {
	return RegistrationRow{
		ID:                 r.ID,
		FullName:           r.FullName,
		EmailUsed:          r.EmailUsed,
		Phone:              r.Phone,
		DOB:                r.DOB,
		ParkChoice:         r.ParkChoice,
		Status:             r.Status,
		ImagicaTransaction: r.ImagicaTransaction,
		Price:              r.Price,
		GiftCode:           r.GiftCode,
		BoardedOutbound:    r.BoardedOutbound,
		BoardedReturn:      r.BoardedReturn,
		CreatedAt:          r.CreatedAt,
	}
}

func (h *RegistrationHandler) activeTripOr404(db *gorm.DB) (*models.Trip, error) {
	trip, err := models.ActiveTrip(db)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, huma.Error404NotFound("No active trip")
		}
		return nil, huma.Error500InternalServerError("Database error")
	}
	return trip, nil
}

func (h *RegistrationHandler) HandleListRegistrations(ctx context.Context, input *ListRegistrationsInput) (*ListRegistrationsResponse, error) {
	if _, err := h.authHandler.RequireStaff(ctx, input.AuthInput); err != nil {
		return nil, err
	}

	trip, err := h.activeTripOr404(h.db)
	if err != nil {
		return nil, err
	}

	var regs []models.Registration
	if err := h.db.Where("trip_id = ?", trip.ID).Order("full_name asc").Find(&regs).Error; err != nil {
		return nil, huma.Error500InternalServerError("Failed to load registrations")
	}

	res := &ListRegistrationsResponse{}
	res.Body.Rows = []RegistrationRow{}
	for i := range regs {
		res.Body.Rows = append(res.Body.Rows, registrationRow(&regs[i]))
		switch regs[i].Status {
		case models.StatusPaid:
			res.Body.Paid++
		case models.StatusPending:
			res.Body.Pending++
		case models.StatusCancelled:
			res.Body.Cancelled++
		}
	}
	res.Body.Total = int64(len(regs))
	res.Body.Capacity = trip.Capacity
	res.Body.Delta = res.Body.Total - int64(trip.Capacity)

	taken := res.Body.Total
	left := int64(trip.Capacity) - taken
	if left < 0 {
		left = 0
	}
	res.Body.Trip = TripView{
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
	}
	return res, nil
}

// ---------------------------------------------------------------------
// Update
// ---------------------------------------------------------------------

type UpdateRegistrationInput struct {
	auth.AuthInput
	ID   uint `path:"id"`
	Body struct {
		Status             *string `json:"status,omitempty" doc:"pending, paid or cancelled"`
		ImagicaTransaction *string `json:"imagica_transaction,omitempty"`
		Price              *uint   `json:"price,omitempty"`
		GiftCode           *string `json:"gift_code,omitempty"`
		BoardedOutbound    *bool   `json:"boarded_outbound,omitempty"`
		BoardedReturn      *bool   `json:"boarded_return,omitempty"`
	}
}

type UpdateRegistrationResponse struct {
	Body struct {
		Row     RegistrationRow `json:"row"`
		Emailed int             `json:"emailed" doc:"Boarding emails triggered by this update"`
	}
}

// HandleUpdateRegistration edits staff-owned fields only. Snapshot fields
// stay frozen. Boarding flags go through the transition rule so only a
// false-to-true change emails the registrant.
func (h *RegistrationHandler) HandleUpdateRegistration(ctx context.Context, input *UpdateRegistrationInput) (*UpdateRegistrationResponse, error) {
	staff, err := h.authHandler.RequireStaff(ctx, input.AuthInput)
	if err != nil {
		return nil, err
	}

	var reg models.Registration
	if err := h.db.Preload("Trip").First(&reg, input.ID).Error; err != nil {
		return nil, huma.Error404NotFound("Registration not found")
	}

	updates := map[string]interface{}{}
	if input.Body.Status != nil {
		if !models.ValidStatus(*input.Body.Status) {
			return nil, huma.Error422UnprocessableEntity("Status must be pending, paid or cancelled")
		}
		reg.Status = *input.Body.Status
		updates["status"] = reg.Status
	}
	if input.Body.ImagicaTransaction != nil {
		reg.ImagicaTransaction = *input.Body.ImagicaTransaction
		updates["imagica_transaction"] = reg.ImagicaTransaction
	}
	if input.Body.Price != nil {
		reg.Price = input.Body.Price
		updates["price"] = reg.Price
	}
	if input.Body.GiftCode != nil {
		reg.GiftCode = *input.Body.GiftCode
		updates["gift_code"] = reg.GiftCode
	}
	if len(updates) > 0 {
		if err := h.db.Model(&reg).Updates(updates).Error; err != nil {
			return nil, huma.Error500InternalServerError("Failed to update registration")
		}
	}

	emailed := 0
	if input.Body.BoardedOutbound != nil {
		old, err := guard.SetBoarded(h.db, &reg, guard.LegOutbound, *input.Body.BoardedOutbound)
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to update boarding flag")
		}
		if !old && *input.Body.BoardedOutbound && h.sendBoardingEmail(&reg, &reg.Trip, guard.LegOutbound) {
			emailed++
		}
	}
	if input.Body.BoardedReturn != nil {
		old, err := guard.SetBoarded(h.db, &reg, guard.LegReturn, *input.Body.BoardedReturn)
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to update boarding flag")
		}
		if !old && *input.Body.BoardedReturn && h.sendBoardingEmail(&reg, &reg.Trip, guard.LegReturn) {
			emailed++
		}
	}

	history := models.RegistrationHistory{
		RegistrationID: reg.ID,
		TripID:         reg.TripID,
		UserID:         reg.UserID,
		EditedByID:     staff.ID,
		AdminFields:    reg.AdminFields,
	}
	if err := h.db.Create(&history).Error; err != nil {
		log.Printf("Failed to record registration history: %v", err)
	}

	res := &UpdateRegistrationResponse{}
	res.Body.Row = registrationRow(&reg)
	res.Body.Emailed = emailed
	return res, nil
}

func (h *RegistrationHandler) sendBoardingEmail(reg *models.Registration, trip *models.Trip, leg guard.Leg) bool {
	if h.mailer == nil || reg.EmailUsed == "" {
		return false
	}

	var subject, text string
	if leg == guard.LegOutbound {
		subject = fmt.Sprintf("You're on board — %s", trip.Name)
		text = fmt.Sprintf(
			"Hi %s,\n\nWe have marked you as seated on the bus for the %s trip.\n\nPlease remain in the bus until further instructions from the organizers.\nDo not get down without our permission for safety and coordination reasons.\n\nHave a great journey ahead!\n- TripTrack Organizing Team",
			reg.FullName, trip.Name,
		)
	} else {
		subject = fmt.Sprintf("Return boarding confirmed — %s", trip.Name)
		text = fmt.Sprintf(
			"Hi %s,\n\nYou are now checked in for the return journey of the %s trip.\n\nPlease stay in the bus until we arrive at the designated drop point.\nDo not get down without organizer approval.\n\nWe hope you had a wonderful time!\n- TripTrack Organizing Team",
			reg.FullName, trip.Name,
		)
	}

	if err := h.mailer.Send(subject, []string{reg.EmailUsed}, text, ""); err != nil {
		log.Printf("Failed to send boarding email to %s: %v", reg.EmailUsed, err)
		return false
	}
	return true
}

// ---------------------------------------------------------------------
// Delete
// ---------------------------------------------------------------------

type DeleteRegistrationInput struct {
	auth.AuthInput
	ID uint `path:"id"`
}

type DeleteRegistrationResponse struct {
	Body struct {
		Message string `json:"message"`
	}
}

func (h *RegistrationHandler) HandleDeleteRegistration(ctx context.Context, input *DeleteRegistrationInput) (*DeleteRegistrationResponse, error) {
	if _, err := h.authHandler.RequireStaff(ctx, input.AuthInput); err != nil {
		return nil, err
	}

	trip, err := h.activeTripOr404(h.db)
	if err != nil {
		return nil, err
	}

	var reg models.Registration
	if err := h.db.Where("id = ? AND trip_id = ?", input.ID, trip.ID).First(&reg).Error; err != nil {
		return nil, huma.Error404NotFound("Registration not found")
	}

	// Hard delete: a soft-deleted row would still occupy the (trip, user)
	// unique index and block the user from re-registering.
	if err := h.db.Unscoped().Delete(&reg).Error; err != nil {
		return nil, huma.Error500InternalServerError("Failed to delete registration")
	}

	res := &DeleteRegistrationResponse{}
	res.Body.Message = fmt.Sprintf("Deleted participant: %s <%s>", reg.FullName, reg.EmailUsed)
	return res, nil
}
