package handlers

import (
	"context"
	"fmt"

	"github.com/danielgtaylor/huma/v2"
	"github.com/triptrack/triptrack-api/internal/auth"
	"github.com/triptrack/triptrack-api/internal/guard"
	"github.com/triptrack/triptrack-api/internal/models"
	"gorm.io/gorm"
)

// headcountRows applies the shared headcount filters: only pending/paid
// registrations of the active trip, optional substring search over
// name/email/phone, optional only-unchecked filter for the current leg,
// sorted by full name.
func headcountRows(db *gorm.DB, tripID uint, mode guard.Leg, q, order, only string) ([]models.Registration, error) {
	query := db.Where("trip_id = ? AND status IN ?", tripID, []string{models.StatusPending, models.StatusPaid})

	if q != "" {
		like := "%" + q + "%"
		query = query.Where("full_name LIKE ? OR email_used LIKE ? OR phone LIKE ?", like, like, like)
	}

	if only == "unchecked" {
		if mode == guard.LegOutbound {
			query = query.Where("boarded_outbound = ?", false)
		} else {
			query = query.Where("boarded_return = ?", false)
		}
	}

	if order == "name_desc" {
		query = query.Order("full_name desc")
	} else {
		query = query.Order("full_name asc")
	}

	var regs []models.Registration
	if err := query.Find(&regs).Error; err != nil {
		return nil, err
	}
	return regs, nil
}

func normalizeMode(mode string) guard.Leg {
	if mode == string(guard.LegReturn) {
		return guard.LegReturn
	}
	return guard.LegOutbound
}

type HeadcountTotals struct {
	Total    int64 `json:"total"`
	Outbound int64 `json:"outbound"`
	Return   int64 `json:"return"`
}

func headcountTotals(db *gorm.DB, tripID uint) (HeadcountTotals, error) {
	var t HeadcountTotals
	statuses := []string{models.StatusPending, models.StatusPaid}
	if err := db.Model(&models.Registration{}).
		Where("trip_id = ? AND status IN ?", tripID, statuses).Count(&t.Total).Error; err != nil {
		return t, err
	}
	db.Model(&models.Registration{}).
		Where("trip_id = ? AND status IN ? AND boarded_outbound = ?", tripID, statuses, true).Count(&t.Outbound)
	db.Model(&models.Registration{}).
		Where("trip_id = ? AND status IN ? AND boarded_return = ?", tripID, statuses, true).Count(&t.Return)
	return t, nil
}

// ---------------------------------------------------------------------
// GET
// ---------------------------------------------------------------------

type HeadcountInput struct {
	auth.AuthInput
	Mode  string `query:"mode" doc:"out or ret" required:"false"`
	Q     string `query:"q" doc:"Substring search over name, email and phone" required:"false"`
	Order string `query:"order" doc:"name_asc or name_desc" required:"false"`
	Only  string `query:"only" doc:"Set to unchecked to hide already-boarded rows" required:"false"`
}

type HeadcountRow struct {
	ID              uint   `json:"id"`
	FullName        string `json:"full_name"`
	EmailUsed       string `json:"email_used"`
	Phone           string `json:"phone"`
	Status          string `json:"status"`
	BoardedOutbound bool   `json:"boarded_outbound"`
	BoardedReturn   bool   `json:"boarded_return"`
}

type HeadcountResponse struct {
	Body struct {
		Mode        string          `json:"mode"`
		Rows        []HeadcountRow  `json:"rows"`
		TotalsAll   HeadcountTotals `json:"totals_all"`
		TotalsShown struct {
			Total   int `json:"total"`
			Checked int `json:"checked"`
		} `json:"totals_shown"`
	}
}

func (h *RegistrationHandler) HandleHeadcount(ctx context.Context, input *HeadcountInput) (*HeadcountResponse, error) {
	if _, err := h.authHandler.RequireStaff(ctx, input.AuthInput); err != nil {
		return nil, err
	}

	trip, err := h.activeTripOr404(h.db)
	if err != nil {
		return nil, err
	}

	mode := normalizeMode(input.Mode)
	regs, err := headcountRows(h.db, trip.ID, mode, input.Q, input.Order, input.Only)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to load registrations")
	}

	res := &HeadcountResponse{}
	res.Body.Mode = string(mode)
	res.Body.Rows = []HeadcountRow{}
	for _, r := range regs {
		res.Body.Rows = append(res.Body.Rows, HeadcountRow{
			ID:              r.ID,
			FullName:        r.FullName,
			EmailUsed:       r.EmailUsed,
			Phone:           r.Phone,
			Status:          r.Status,
			BoardedOutbound: r.BoardedOutbound,
			BoardedReturn:   r.BoardedReturn,
		})
		checked := r.BoardedOutbound
		if mode == guard.LegReturn {
			checked = r.BoardedReturn
		}
		if checked {
			res.Body.TotalsShown.Checked++
		}
	}
	res.Body.TotalsShown.Total = len(regs)

	totals, err := headcountTotals(h.db, trip.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to load totals")
	}
	res.Body.TotalsAll = totals
	return res, nil
}

// ---------------------------------------------------------------------
// POST (bulk apply)
// ---------------------------------------------------------------------

type ApplyHeadcountInput struct {
	auth.AuthInput
	Body struct {
		Mode    string `json:"mode" doc:"out or ret"`
		Q       string `json:"q,omitempty" doc:"Same filter the rows were listed with"`
		Order   string `json:"order,omitempty"`
		Only    string `json:"only,omitempty"`
		Checked []uint `json:"checked" doc:"IDs of rows checked in the view; visible rows not listed are unchecked"`
	}
}

type ApplyHeadcountResponse struct {
	Body struct {
		Message string `json:"message"`
		Updated int    `json:"updated"`
		Emailed int    `json:"emailed"`
	}
}

// HandleApplyHeadcount applies boarding checkboxes across the filtered
// view. Per-row transition semantics hold even in bulk: a row already
// boarded stays untouched, and only a false-to-true transition emails the
// registrant.
func (h *RegistrationHandler) HandleApplyHeadcount(ctx context.Context, input *ApplyHeadcountInput) (*ApplyHeadcountResponse, error) {
	if _, err := h.authHandler.RequireStaff(ctx, input.AuthInput); err != nil {
		return nil, err
	}

	trip, err := h.activeTripOr404(h.db)
	if err != nil {
		return nil, err
	}

	mode := normalizeMode(input.Body.Mode)
	regs, err := headcountRows(h.db, trip.ID, mode, input.Body.Q, input.Body.Order, input.Body.Only)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to load registrations")
	}

	checked := make(map[uint]bool, len(input.Body.Checked))
	for _, id := range input.Body.Checked {
		checked[id] = true
	}

	updated := 0
	emailed := 0
	for i := range regs {
		r := &regs[i]
		newVal := checked[r.ID]
		old, err := guard.SetBoarded(h.db, r, mode, newVal)
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to update boarding flag")
		}
		if old == newVal {
			continue
		}
		updated++
		if !old && newVal && h.sendBoardingEmail(r, trip, mode) {
			emailed++
		}
	}

	res := &ApplyHeadcountResponse{}
	res.Body.Updated = updated
	res.Body.Emailed = emailed
	res.Body.Message = fmt.Sprintf("Saved %d record(s). Sent %d email(s).", updated, emailed)
	return res, nil
}
