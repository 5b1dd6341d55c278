package strategyconfig

import (
	"fmt"
	"strings"

	"github.com/tradepilot/backend/internal/contracts"
)

// Validate checks the loaded configuration for internal consistency.
func Validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Meta.StrategyID) == "" {
		return fmt.Errorf("meta.strategy_id must not be empty")
	}

	if len(cfg.Universe.Symbols) == 0 {
		return fmt.Errorf("universe.symbols must not be empty")
	}
	seen := make(map[string]bool, len(cfg.Universe.Symbols))
	for _, sym := range cfg.Universe.Symbols {
		if strings.TrimSpace(sym) == "" {
			return fmt.Errorf("universe.symbols contains an empty symbol")
		}
		if seen[sym] {
			return fmt.Errorf("universe.symbols contains duplicate %q", sym)
		}
		seen[sym] = true
	}

	if mc := cfg.Selection.MinConfidence; mc != 0 && (mc < contracts.ConfidenceFloor || mc > contracts.ConfidenceCeiling) {
		return fmt.Errorf("selection.min_confidence %.1f outside [%.0f, %.0f]",
			mc, contracts.ConfidenceFloor, contracts.ConfidenceCeiling)
	}
	if cfg.Selection.MaxSelections < 0 {
		return fmt.Errorf("selection.max_selections must not be negative")
	}
	if cfg.Selection.MaxConcurrentPositions < 0 {
		return fmt.Errorf("selection.max_concurrent_positions must not be negative")
	}

	if cfg.Risk.RiskPerTradePct < 0 || cfg.Risk.RiskPerTradePct > 10 {
		return fmt.Errorf("risk.risk_per_trade_pct %.2f outside [0, 10]", cfg.Risk.RiskPerTradePct)
	}
	if cfg.Risk.MinLot < 0 || cfg.Risk.MaxLot < 0 {
		return fmt.Errorf("risk lot bounds must not be negative")
	}
	if cfg.Risk.MinLot > 0 && cfg.Risk.MaxLot > 0 && cfg.Risk.MinLot > cfg.Risk.MaxLot {
		return fmt.Errorf("risk.min_lot %.2f exceeds risk.max_lot %.2f", cfg.Risk.MinLot, cfg.Risk.MaxLot)
	}

	return nil
}
