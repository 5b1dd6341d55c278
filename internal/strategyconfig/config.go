// Package strategyconfig loads the YAML trading strategy configuration.
// The file is the source of truth for the symbol universe and the
// selection/risk overrides; unknown fields fail loading immediately.
package strategyconfig

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tradepilot/backend/internal/contracts"
)

// Duration decodes YAML durations written as "30m" or "1h30m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Config is the full strategy configuration.
type Config struct {
	Meta      Meta      `yaml:"meta" json:"meta"`
	Universe  Universe  `yaml:"universe" json:"universe"`
	Selection Selection `yaml:"selection" json:"selection"`
	Risk      Risk      `yaml:"risk" json:"risk"`
	Execution Execution `yaml:"execution" json:"execution"`
}

// Meta identifies the strategy file.
type Meta struct {
	StrategyID string `yaml:"strategy_id" json:"strategy_id"`
	Version    string `yaml:"version" json:"version"`
}

// Universe is the tradable symbol pool.
type Universe struct {
	Symbols []string `yaml:"symbols" json:"symbols"`

	// StrategyHint is passed to the scorer; empty lets the scorer choose.
	StrategyHint string `yaml:"strategy_hint" json:"strategy_hint"`
}

// Selection configures the signal selection gate.
type Selection struct {
	MinConfidence          float64  `yaml:"min_confidence" json:"min_confidence"`
	MaxSelections          int      `yaml:"max_selections" json:"max_selections"`
	MaxConcurrentPositions int      `yaml:"max_concurrent_positions" json:"max_concurrent_positions"`
	SymbolCooldown         Duration `yaml:"symbol_cooldown" json:"symbol_cooldown"`
}

// Risk configures position sizing.
type Risk struct {
	RiskPerTradePct float64 `yaml:"risk_per_trade_pct" json:"risk_per_trade_pct"`
	MinLot          float64 `yaml:"min_lot" json:"min_lot"`
	MaxLot          float64 `yaml:"max_lot" json:"max_lot"`
}

// Execution configures order tagging.
type Execution struct {
	Comment string `yaml:"comment" json:"comment"`
	Magic   int    `yaml:"magic" json:"magic"`
}

// SelectionPolicy converts the selection section into the runtime
// policy, clamping the threshold to the permitted range.
func (c *Config) SelectionPolicy() contracts.SelectionPolicy {
	policy := contracts.DefaultSelectionPolicy()
	if c.Selection.MinConfidence > 0 {
		policy.MinConfidence = contracts.ClampThreshold(c.Selection.MinConfidence)
	}
	if c.Selection.MaxSelections > 0 {
		policy.MaxSelections = c.Selection.MaxSelections
	}
	if c.Selection.MaxConcurrentPositions > 0 {
		policy.MaxConcurrentPositions = c.Selection.MaxConcurrentPositions
	}
	if c.Selection.SymbolCooldown > 0 {
		policy.SymbolCooldown = time.Duration(c.Selection.SymbolCooldown)
	}
	return policy
}
