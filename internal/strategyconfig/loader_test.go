package strategyconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradepilot/backend/internal/contracts"
)

const validYAML = `
meta:
  strategy_id: fx-majors
  version: "2026.1"
universe:
  symbols: [EURUSD, GBPUSD, USDJPY]
  strategy_hint: trend_follow
selection:
  min_confidence: 75
  max_selections: 2
  max_concurrent_positions: 4
  symbol_cooldown: 30m
risk:
  risk_per_trade_pct: 1.5
  min_lot: 0.01
  max_lot: 10
execution:
  comment: fx-majors
  magic: 234001
`

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "strategy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadValidFile(t *testing.T) {
	cfg, raw, err := Load(writeTemp(t, validYAML))
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.NotEmpty(t, raw)

	assert.Equal(t, "fx-majors", cfg.Meta.StrategyID)
	assert.Equal(t, []string{"EURUSD", "GBPUSD", "USDJPY"}, cfg.Universe.Symbols)
	assert.Equal(t, "trend_follow", cfg.Universe.StrategyHint)
	assert.Equal(t, Duration(30*time.Minute), cfg.Selection.SymbolCooldown)
	assert.Equal(t, 234001, cfg.Execution.Magic)
}

func TestLoadMissingFile(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsUnknownField(t *testing.T) {
	content := validYAML + "\nunexpected_section:\n  foo: bar\n"
	_, _, err := Load(writeTemp(t, content))
	assert.Error(t, err)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	content := `
meta:
  strategy_id: fx-majors
universe:
  symbols: []
`
	_, _, err := Load(writeTemp(t, content))
	assert.ErrorContains(t, err, "universe.symbols")
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Meta:     Meta{StrategyID: "fx-majors"},
			Universe: Universe{Symbols: []string{"EURUSD"}},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"blank strategy id", func(c *Config) { c.Meta.StrategyID = "  " }, "strategy_id"},
		{"empty symbol", func(c *Config) { c.Universe.Symbols = []string{""} }, "empty symbol"},
		{"duplicate symbol", func(c *Config) { c.Universe.Symbols = []string{"EURUSD", "EURUSD"} }, "duplicate"},
		{"confidence below floor", func(c *Config) { c.Selection.MinConfidence = 40 }, "min_confidence"},
		{"confidence above ceiling", func(c *Config) { c.Selection.MinConfidence = 95 }, "min_confidence"},
		{"negative selections", func(c *Config) { c.Selection.MaxSelections = -1 }, "max_selections"},
		{"risk too high", func(c *Config) { c.Risk.RiskPerTradePct = 25 }, "risk_per_trade_pct"},
		{"inverted lot bounds", func(c *Config) { c.Risk.MinLot = 5; c.Risk.MaxLot = 1 }, "min_lot"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestSelectionPolicyMergesOntoDefaults(t *testing.T) {
	cfg := &Config{Selection: Selection{MinConfidence: 80, MaxSelections: 1}}
	policy := cfg.SelectionPolicy()

	defaults := contracts.DefaultSelectionPolicy()
	assert.Equal(t, 80.0, policy.MinConfidence)
	assert.Equal(t, 1, policy.MaxSelections)
	assert.Equal(t, defaults.MaxConcurrentPositions, policy.MaxConcurrentPositions)
	assert.Equal(t, defaults.SymbolCooldown, policy.SymbolCooldown)
}

func TestHashDeterministic(t *testing.T) {
	cfg, _, err := Load(writeTemp(t, validYAML))
	require.NoError(t, err)

	h1, err := Hash(cfg)
	require.NoError(t, err)
	h2, err := Hash(cfg)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)

	// Any semantic change produces a different hash.
	cfg.Selection.MinConfidence = 76
	h3, err := Hash(cfg)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}
