package scheduling

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lanternhealth/clinic-concierge/pkg/logging"
)

// Handler exposes the slot ledger over HTTP for non-conversational callers
// (front desk tooling, ops scripts).
type Handler struct {
	ledger Ledger
	logger *logging.Logger
}

// NewHandler creates a scheduling handler.
func NewHandler(ledger Ledger, logger *logging.Logger) *Handler {
	return &Handler{
		ledger: ledger,
		logger: logger,
	}
}

// ListOfferings handles GET /schedules. Filters: doctor, date (2006-01-02),
// band, available=true.
func (h *Handler) ListOfferings(w http.ResponseWriter, r *http.Request) {
	q := OfferingQuery{
		DoctorName:    r.URL.Query().Get("doctor"),
		OnlyAvailable: r.URL.Query().Get("available") == "true",
	}
	if raw := r.URL.Query().Get("date"); raw != "" {
		date, err := time.Parse("2006-01-02", raw)
		if err != nil {
			http.Error(w, "Invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		q.Date = DateOnly(date)
	}
	if raw := r.URL.Query().Get("band"); raw != "" {
		band, ok := ParseTimeBand(raw)
		if !ok {
			http.Error(w, "Invalid band, expected morning, afternoon or evening", http.StatusBadRequest)
			return
		}
		q.TimeBand = band
	}

	offerings, err := h.ledger.FindOfferings(r.Context(), q)
	if err != nil {
		h.logger.Error("failed to list offerings", "error", err)
		http.Error(w, "Failed to list schedules", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"count":     len(offerings),
		"schedules": offerings,
	})
}

// Cancel handles POST /appointments/{id}/cancel. Cancelling releases the
// slot back to its schedule.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid appointment id", http.StatusBadRequest)
		return
	}

	result, err := h.ledger.Cancel(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, ErrAppointmentNotFound):
			http.Error(w, "Appointment not found", http.StatusNotFound)
		case errors.Is(err, ErrAlreadyCancelled):
			http.Error(w, "Appointment is already cancelled", http.StatusConflict)
		default:
			h.logger.Error("failed to cancel appointment", "appointment_id", id, "error", err)
			http.Error(w, "Failed to cancel appointment", http.StatusInternalServerError)
		}
		return
	}

	h.logger.Info("appointment cancelled", "appointment_id", id, "remaining", result.Remaining)
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "cancelled",
		"remaining": result.Remaining,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
