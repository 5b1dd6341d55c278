package handlers

import (
	"net/http"

	"github.com/tradepilot/backend/internal/feedback"
	"github.com/tradepilot/backend/pkg/logger"
)

// PerformanceHandler handles performance summary endpoints
type PerformanceHandler struct {
	aggregator *feedback.Aggregator
	logger     *logger.Logger
}

// NewPerformanceHandler creates a new performance handler
func NewPerformanceHandler(a *feedback.Aggregator, log *logger.Logger) *PerformanceHandler {
	return &PerformanceHandler{
		aggregator: a,
		logger:     log,
	}
}

// GetSummary returns the rolling performance summary
// GET /api/performance
func (h *PerformanceHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.aggregator.Summary(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to compute performance summary")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve performance summary")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    summary,
	})
}
