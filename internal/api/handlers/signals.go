package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/tradepilot/backend/internal/contracts"
	"github.com/tradepilot/backend/pkg/logger"
)

// SignalHandler handles signal inspection endpoints
type SignalHandler struct {
	signals contracts.SignalStore
	logger  *logger.Logger
}

// NewSignalHandler creates a new signal handler
func NewSignalHandler(signals contracts.SignalStore, log *logger.Logger) *SignalHandler {
	return &SignalHandler{
		signals: signals,
		logger:  log,
	}
}

// GetActive returns all signals in a live lifecycle state
// GET /api/signals?status=SELECTED
func (h *SignalHandler) GetActive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if status := r.URL.Query().Get("status"); status != "" {
		signals, err := h.signals.SignalsByStatus(ctx, contracts.SignalStatus(status))
		if err != nil {
			h.logger.WithError(err).Error("Failed to list signals by status")
			respondError(w, http.StatusInternalServerError, "Failed to retrieve signals")
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data":    signals,
		})
		return
	}

	signals, err := h.signals.ActiveSignals(ctx)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list active signals")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve signals")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    signals,
	})
}

// GetByID returns a single signal
// GET /api/signals/{id}
func (h *SignalHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	if id == "" {
		respondError(w, http.StatusBadRequest, "signal id is required")
		return
	}

	sig, err := h.signals.GetSignal(ctx, id)
	if err != nil {
		respondError(w, http.StatusNotFound, "signal not found")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    sig,
	})
}
