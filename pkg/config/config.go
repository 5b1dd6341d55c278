package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application. This package is the
// only place that reads environment variables.
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Bridge
	Bridge BridgeConfig

	// Trading loop
	Trading TradingConfig

	// Logging
	LogLevel  string
	LogFormat string

	// Strategy file (optional YAML overrides for the selection policy)
	StrategyFile string
}

// DatabaseConfig holds PostgreSQL configuration. The store backend falls
// back to in-memory when Backend is "memory".
type DatabaseConfig struct {
	Backend string // "memory" or "postgres"
	URL     string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// BridgeConfig holds the local bridge endpoint, credentials and link
// health parameters.
type BridgeConfig struct {
	Host     string
	Port     int
	Login    string
	Password string
	Server   string

	DemoMode bool // synthesize bridge responses when the real bridge is unreachable

	HeartbeatInterval     time.Duration
	HeartbeatFailureLimit int
	ReconnectMaxAttempts  int
	ConnectTimeout        time.Duration
	SubmitTimeout         time.Duration
	PollTimeout           time.Duration
	RequestsPerSecond     float64
}

// TradingConfig holds the automation loop parameters. All of these are
// hot-reloadable between cycles through the settings API.
type TradingConfig struct {
	GenerationInterval time.Duration
	ScoringTimeout     time.Duration
	ScoringWorkers     int
	TrackerInterval    time.Duration
	FeedbackInterval   time.Duration
	FeedbackWindow     time.Duration
	RetentionWindow    time.Duration

	Universe []string

	RiskPerTradePct float64
	MinLot          float64
	MaxLot          float64

	SelectionN             int
	CooldownWindow         time.Duration
	MaxConcurrentPositions int

	// Feedback control loop target band for the recent win rate.
	TargetWinRateLow  float64
	TargetWinRateHigh float64

	// DemoExecution controls whether synthetic-tagged payloads may be
	// submitted to the (demo) bridge. When false, synthetic signals are
	// rejected instead of executed.
	DemoExecution bool

	OrderComment string
	OrderMagic   int
}

// Load reads configuration from environment variables. Only this function
// calls os.Getenv.
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port: getEnv("PORT", "8089"),
		Env:  getEnv("ENV", "development"),

		Database: DatabaseConfig{
			Backend:         getEnv("STORE_BACKEND", "memory"),
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		Bridge: BridgeConfig{
			Host:     getEnv("BRIDGE_HOST", "localhost"),
			Port:     getEnvAsInt("BRIDGE_PORT", 8080),
			Login:    getEnv("BRIDGE_LOGIN", ""),
			Password: getEnv("BRIDGE_PASSWORD", ""),
			Server:   getEnv("BRIDGE_SERVER", ""),
			DemoMode: getEnvAsBool("BRIDGE_DEMO_MODE", true),

			HeartbeatInterval:     getEnvAsDuration("BRIDGE_HEARTBEAT_INTERVAL", "20s"),
			HeartbeatFailureLimit: getEnvAsInt("BRIDGE_HEARTBEAT_FAILURE_LIMIT", 3),
			ReconnectMaxAttempts:  getEnvAsInt("BRIDGE_RECONNECT_MAX_ATTEMPTS", 10),
			ConnectTimeout:        getEnvAsDuration("BRIDGE_CONNECT_TIMEOUT", "10s"),
			SubmitTimeout:         getEnvAsDuration("BRIDGE_SUBMIT_TIMEOUT", "10s"),
			PollTimeout:           getEnvAsDuration("BRIDGE_POLL_TIMEOUT", "10s"),
			RequestsPerSecond:     getEnvAsFloat("BRIDGE_REQUESTS_PER_SECOND", 10),
		},

		Trading: TradingConfig{
			GenerationInterval: getEnvAsDuration("GENERATION_INTERVAL", "120s"),
			ScoringTimeout:     getEnvAsDuration("SCORING_TIMEOUT", "5s"),
			ScoringWorkers:     getEnvAsInt("SCORING_WORKERS", 10),
			TrackerInterval:    getEnvAsDuration("TRACKER_INTERVAL", "15s"),
			FeedbackInterval:   getEnvAsDuration("FEEDBACK_INTERVAL", "1h"),
			FeedbackWindow:     getEnvAsDuration("FEEDBACK_WINDOW", "168h"),
			RetentionWindow:    getEnvAsDuration("RETENTION_WINDOW", "720h"),

			Universe: getEnvAsList("SYMBOL_UNIVERSE", "EURUSD,GBPUSD,USDJPY,XAUUSD,AUDUSD"),

			RiskPerTradePct: getEnvAsFloat("RISK_PER_TRADE_PCT", 2.0),
			MinLot:          getEnvAsFloat("VENUE_MIN_LOT", 0.01),
			MaxLot:          getEnvAsFloat("VENUE_MAX_LOT", 100.0),

			SelectionN:             getEnvAsInt("SELECTION_N", 3),
			CooldownWindow:         getEnvAsDuration("SYMBOL_COOLDOWN", "10m"),
			MaxConcurrentPositions: getEnvAsInt("MAX_CONCURRENT_POSITIONS", 5),

			TargetWinRateLow:  getEnvAsFloat("TARGET_WIN_RATE_LOW", 0.55),
			TargetWinRateHigh: getEnvAsFloat("TARGET_WIN_RATE_HIGH", 0.65),

			DemoExecution: getEnvAsBool("DEMO_EXECUTION", true),

			OrderComment: getEnv("ORDER_COMMENT", "tradepilot"),
			OrderMagic:   getEnvAsInt("ORDER_MAGIC", 234000),
		},

		LogLevel:  getEnv("LOG_LEVEL", "debug"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		StrategyFile: getEnv("STRATEGY_FILE", ""),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks required configuration values. The only process-fatal
// condition is a missing bridge configuration with demo mode disabled.
func (c *Config) validate() error {
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Database.Backend != "memory" && c.Database.Backend != "postgres" {
		return fmt.Errorf("STORE_BACKEND must be one of: memory, postgres")
	}
	if c.Database.Backend == "postgres" && c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required when STORE_BACKEND=postgres")
	}

	if !c.Bridge.DemoMode {
		if c.Bridge.Login == "" || c.Bridge.Password == "" || c.Bridge.Server == "" {
			return fmt.Errorf("BRIDGE_LOGIN, BRIDGE_PASSWORD and BRIDGE_SERVER are required when BRIDGE_DEMO_MODE=false")
		}
	}

	if c.Trading.RiskPerTradePct <= 0 || c.Trading.RiskPerTradePct > 100 {
		return fmt.Errorf("RISK_PER_TRADE_PCT must be in (0, 100]")
	}
	if c.Trading.SelectionN < 1 {
		return fmt.Errorf("SELECTION_N must be at least 1")
	}
	if len(c.Trading.Universe) == 0 {
		return fmt.Errorf("SYMBOL_UNIVERSE must not be empty")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{
		".env",
		"backend/.env",
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
			filepath.Join(exeDir, "..", "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}

func getEnvAsList(key string, defaultValue string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
