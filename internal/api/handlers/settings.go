package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tradepilot/backend/internal/contracts"
	"github.com/tradepilot/backend/internal/feedback"
	"github.com/tradepilot/backend/pkg/logger"
)

// SettingsHandler handles selection policy inspection and hot updates
type SettingsHandler struct {
	aggregator *feedback.Aggregator
	logger     *logger.Logger
}

// NewSettingsHandler creates a new settings handler
func NewSettingsHandler(a *feedback.Aggregator, log *logger.Logger) *SettingsHandler {
	return &SettingsHandler{
		aggregator: a,
		logger:     log,
	}
}

// policyDTO is the wire form of the selection policy. The cooldown is
// expressed in seconds.
type policyDTO struct {
	MinConfidence          float64 `json:"min_confidence"`
	MaxSelections          int     `json:"max_selections"`
	MaxConcurrentPositions int     `json:"max_concurrent_positions"`
	SymbolCooldownSeconds  int     `json:"symbol_cooldown_seconds"`
}

// GetPolicy returns the current selection policy
// GET /api/settings/policy
func (h *SettingsHandler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	p := h.aggregator.Policy()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data": policyDTO{
			MinConfidence:          p.MinConfidence,
			MaxSelections:          p.MaxSelections,
			MaxConcurrentPositions: p.MaxConcurrentPositions,
			SymbolCooldownSeconds:  int(p.SymbolCooldown / time.Second),
		},
	})
}

// UpdatePolicy replaces the selection policy. The update takes effect at
// the next cycle; the cycle in flight keeps its snapshot.
// PUT /api/settings/policy
func (h *SettingsHandler) UpdatePolicy(w http.ResponseWriter, r *http.Request) {
	var dto policyDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if dto.MinConfidence < contracts.ConfidenceFloor || dto.MinConfidence > contracts.ConfidenceCeiling {
		respondError(w, http.StatusBadRequest, fmt.Sprintf(
			"min_confidence must be within [%.0f, %.0f]",
			contracts.ConfidenceFloor, contracts.ConfidenceCeiling))
		return
	}
	if dto.MaxSelections <= 0 || dto.MaxConcurrentPositions <= 0 {
		respondError(w, http.StatusBadRequest, "max_selections and max_concurrent_positions must be positive")
		return
	}
	if dto.SymbolCooldownSeconds < 0 {
		respondError(w, http.StatusBadRequest, "symbol_cooldown_seconds must not be negative")
		return
	}

	policy := contracts.SelectionPolicy{
		MinConfidence:          dto.MinConfidence,
		MaxSelections:          dto.MaxSelections,
		MaxConcurrentPositions: dto.MaxConcurrentPositions,
		SymbolCooldown:         time.Duration(dto.SymbolCooldownSeconds) * time.Second,
	}
	h.aggregator.SetPolicy(policy)

	h.logger.WithFields(map[string]interface{}{
		"min_confidence": policy.MinConfidence,
		"max_selections": policy.MaxSelections,
	}).Info("Selection policy updated")

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    dto,
	})
}
