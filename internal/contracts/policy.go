package contracts

import "time"

// Threshold bounds for the adaptive confidence gate. The feedback
// aggregator may never push the minimum confidence outside this range.
const (
	ConfidenceFloor   = 60.0
	ConfidenceCeiling = 90.0

	// ThresholdStep is the maximum adjustment applied per feedback pass.
	ThresholdStep = 2.0
)

// SelectionPolicy is the mutable parameter set read by the generation
// scheduler at the start of each cycle. Owned by the feedback aggregator;
// updated only between cycles, never mid-cycle.
type SelectionPolicy struct {
	MinConfidence          float64       `json:"min_confidence"`
	MaxSelections          int           `json:"max_selections"`
	MaxConcurrentPositions int           `json:"max_concurrent_positions"`
	SymbolCooldown         time.Duration `json:"symbol_cooldown"`
}

// DefaultSelectionPolicy returns the policy used before any feedback
// adjustment has been applied.
func DefaultSelectionPolicy() SelectionPolicy {
	return SelectionPolicy{
		MinConfidence:          70,
		MaxSelections:          3,
		MaxConcurrentPositions: 5,
		SymbolCooldown:         10 * time.Minute,
	}
}

// ClampThreshold bounds a candidate confidence threshold to the permitted
// floor/ceiling range.
func ClampThreshold(v float64) float64 {
	if v < ConfidenceFloor {
		return ConfidenceFloor
	}
	if v > ConfidenceCeiling {
		return ConfidenceCeiling
	}
	return v
}
