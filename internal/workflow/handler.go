package workflow

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lanternhealth/clinic-concierge/pkg/logging"
)

// Handler wires HTTP requests to the workflow engine.
type Handler struct {
	engine *Engine
	logger *logging.Logger
}

// NewHandler creates a workflow handler.
func NewHandler(engine *Engine, logger *logging.Logger) *Handler {
	return &Handler{
		engine: engine,
		logger: logger,
	}
}

// Process handles POST /workflow/process.
func (h *Handler) Process(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode workflow request", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	resp, err := h.engine.ProcessEvent(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrMissingSessionID) {
			http.Error(w, "session_id is required", http.StatusBadRequest)
			return
		}
		h.logger.Error("failed to process workflow event", "session_id", req.SessionID, "error", err)
		http.Error(w, "Failed to process message", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
