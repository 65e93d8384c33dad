package handlers

import (
	"encoding/csv"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/triptrack/triptrack-api/internal/auth"
	"github.com/triptrack/triptrack-api/internal/models"
	"gorm.io/gorm"
)

// HandleExportCSV streams the active trip's registrations as a CSV
// attachment, one row per registration, sorted by full name. It is a
// plain chi handler because huma wraps responses in JSON; it sits behind
// AuthMiddleware, which put the user ID on the context.
func (h *RegistrationHandler) HandleExportCSV(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(auth.UserIDKey).(uint)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	var user models.User
	if err := h.db.First(&user, userID).Error; err != nil || !user.IsStaff {
		http.Error(w, "Staff access required", http.StatusForbidden)
		return
	}

	trip, err := models.ActiveTrip(h.db)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			http.Error(w, "No active trip", http.StatusBadRequest)
			return
		}
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	var regs []models.Registration
	if err := h.db.Where("trip_id = ?", trip.ID).Order("full_name asc").Find(&regs).Error; err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	filename := strings.ReplaceAll(trip.Name, " ", "_") + "_registrations.csv"
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	writer := csv.NewWriter(w)
	writer.Write([]string{
		"Full Name", "Email", "Phone", "DOB", "Park Choice", "Status",
		"Imagica Transaction", "Price", "Gift Code", "Outbound", "Return", "Created At",
	})
	for _, reg := range regs {
		price := ""
		if reg.Price != nil {
			price = fmt.Sprintf("%d", *reg.Price)
		}
		writer.Write([]string{
			reg.FullName,
			reg.EmailUsed,
			reg.Phone,
			reg.DOB.Format("2006-01-02"),
			models.ParkChoiceDisplay(reg.ParkChoice),
			reg.Status,
			reg.ImagicaTransaction,
			price,
			reg.GiftCode,
			yesNo(reg.BoardedOutbound),
			yesNo(reg.BoardedReturn),
			reg.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		log.Printf("Failed to write CSV export: %v", err)
	}
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
