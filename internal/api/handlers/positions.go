package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/tradepilot/backend/internal/contracts"
	"github.com/tradepilot/backend/pkg/logger"
)

// PositionHandler handles execution record endpoints
type PositionHandler struct {
	records contracts.ExecutionStore
	logger  *logger.Logger
}

// NewPositionHandler creates a new position handler
func NewPositionHandler(records contracts.ExecutionStore, log *logger.Logger) *PositionHandler {
	return &PositionHandler{
		records: records,
		logger:  log,
	}
}

// GetOpen returns execution records with open positions
// GET /api/positions
func (h *PositionHandler) GetOpen(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	open, err := h.records.OpenRecords(ctx)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list open positions")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve positions")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    open,
	})
}

// GetHistory returns closed execution records
// GET /api/positions/history?days=7
func (h *PositionHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	days := 7
	if daysStr := r.URL.Query().Get("days"); daysStr != "" {
		if d, err := strconv.Atoi(daysStr); err == nil && d > 0 {
			days = d
		}
	}

	since := time.Now().AddDate(0, 0, -days)
	closed, err := h.records.ClosedRecordsSince(ctx, since)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list closed positions")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve position history")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    closed,
	})
}
