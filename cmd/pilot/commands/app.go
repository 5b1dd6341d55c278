package commands

import (
	"context"
	"fmt"

	"github.com/tradepilot/backend/internal/bridge"
	"github.com/tradepilot/backend/internal/contracts"
	"github.com/tradepilot/backend/internal/engine"
	"github.com/tradepilot/backend/internal/events"
	"github.com/tradepilot/backend/internal/feedback"
	"github.com/tradepilot/backend/internal/scorer"
	"github.com/tradepilot/backend/internal/store"
	"github.com/tradepilot/backend/internal/strategyconfig"
	"github.com/tradepilot/backend/internal/tracker"
	"github.com/tradepilot/backend/pkg/config"
	"github.com/tradepilot/backend/pkg/database"
	"github.com/tradepilot/backend/pkg/logger"
	"github.com/tradepilot/backend/pkg/redis"
)

// app bundles the wired components of the automation loop. Shared by
// the run and cycle commands.
type app struct {
	cfg        *config.Config
	logger     *logger.Logger
	bus        *events.Bus
	manager    *bridge.Manager
	signals    contracts.SignalStore
	records    contracts.ExecutionStore
	generator  *engine.Generator
	executor   *engine.Executor
	tracker    *tracker.Tracker
	aggregator *feedback.Aggregator
	params     engine.CycleParams

	db    *database.DB
	redis *redis.Client
}

// buildApp loads configuration and wires the full component graph.
func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg)
	a := &app{cfg: cfg, logger: log, bus: events.NewBus()}

	// Strategy file overrides (universe, selection policy, risk).
	policy := contracts.DefaultSelectionPolicy()
	policy.MaxSelections = cfg.Trading.SelectionN
	policy.MaxConcurrentPositions = cfg.Trading.MaxConcurrentPositions
	policy.SymbolCooldown = cfg.Trading.CooldownWindow

	universe := cfg.Trading.Universe
	strategyHint := ""

	if cfg.StrategyFile != "" {
		strat, _, err := strategyconfig.Load(cfg.StrategyFile)
		if err != nil {
			return nil, fmt.Errorf("load strategy file: %w", err)
		}
		hash, err := strategyconfig.Hash(strat)
		if err != nil {
			return nil, fmt.Errorf("hash strategy config: %w", err)
		}
		log.WithFields(map[string]interface{}{
			"strategy_id": strat.Meta.StrategyID,
			"hash":        hash[:12],
		}).Info("Strategy file loaded")

		policy = strat.SelectionPolicy()
		universe = strat.Universe.Symbols
		strategyHint = strat.Universe.StrategyHint
		if strat.Risk.RiskPerTradePct > 0 {
			cfg.Trading.RiskPerTradePct = strat.Risk.RiskPerTradePct
		}
		if strat.Risk.MinLot > 0 {
			cfg.Trading.MinLot = strat.Risk.MinLot
		}
		if strat.Risk.MaxLot > 0 {
			cfg.Trading.MaxLot = strat.Risk.MaxLot
		}
		if strat.Execution.Comment != "" {
			cfg.Trading.OrderComment = strat.Execution.Comment
		}
		if strat.Execution.Magic != 0 {
			cfg.Trading.OrderMagic = strat.Execution.Magic
		}
	}

	// Stores.
	switch cfg.Database.Backend {
	case "postgres":
		db, err := database.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		a.db = db
		pg := store.NewPostgres(db.Pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		a.signals = pg
		a.records = pg
		log.Info("Connected to database")
	default:
		mem := store.NewMemory()
		a.signals = mem
		a.records = mem
		log.Info("Using in-memory store")
	}

	// Redis is optional; the cache no-ops when disabled.
	redisClient, err := redis.New(cfg)
	if err != nil {
		log.WithError(err).Warn("Redis unavailable, continuing without cache")
	}
	a.redis = redisClient
	var cache *redis.Cache
	if redisClient != nil {
		cache = redis.NewCache(redisClient, "tradepilot")
	}

	// Bridge.
	opts := bridge.DefaultOptions()
	opts.HeartbeatInterval = cfg.Bridge.HeartbeatInterval
	opts.HeartbeatTimeout = cfg.Bridge.PollTimeout
	opts.FailureLimit = cfg.Bridge.HeartbeatFailureLimit
	opts.MaxReconnectAttempts = cfg.Bridge.ReconnectMaxAttempts
	opts.ConnectTimeout = cfg.Bridge.ConnectTimeout
	opts.Demo = cfg.Bridge.DemoMode

	var link contracts.Bridge
	if cfg.Bridge.DemoMode {
		link = bridge.NewDemo()
	} else {
		link = bridge.NewClient(log, cfg.Bridge.ConnectTimeout, cfg.Bridge.RequestsPerSecond)
	}
	a.manager = bridge.NewManager(link, a.bus, log, opts)

	// The bundled scorer is synthetic; every signal it produces is
	// tagged so the execution policy can tell it apart from live model
	// output.
	adapter := scorer.NewAdapter(scorer.NewSynthetic(), true)

	a.aggregator = feedback.New(a.records, cache, log, policy, feedback.Options{
		Window:            cfg.Trading.FeedbackWindow,
		TargetWinRateLow:  cfg.Trading.TargetWinRateLow,
		TargetWinRateHigh: cfg.Trading.TargetWinRateHigh,
	})

	a.generator = engine.NewGenerator(adapter, a.signals, a.records, a.manager, a.aggregator, a.bus, log)
	a.executor = engine.NewExecutor(a.manager, a.signals, a.records, a.bus, log, engine.ExecConfig{
		RiskPerTradePct: cfg.Trading.RiskPerTradePct,
		MinLot:          cfg.Trading.MinLot,
		MaxLot:          cfg.Trading.MaxLot,
		SubmitTimeout:   cfg.Bridge.SubmitTimeout,
		OrderComment:    cfg.Trading.OrderComment,
		OrderMagic:      cfg.Trading.OrderMagic,
		DemoExecution:   cfg.Trading.DemoExecution,
	})
	a.tracker = tracker.New(a.manager, a.signals, a.records, a.bus, log)

	a.params = engine.CycleParams{
		Universe:       universe,
		StrategyHint:   strategyHint,
		ScoringTimeout: cfg.Trading.ScoringTimeout,
		MaxWorkers:     cfg.Trading.ScoringWorkers,
		Grace:          cfg.Trading.GenerationInterval,
	}

	return a, nil
}

// connectBridge configures the manager from the environment and attempts
// the first handshake. A failed handshake is not fatal; the manager
// keeps reconnecting in the background.
func (a *app) connectBridge(ctx context.Context) {
	cfg := a.cfg
	bridgeCfg := contracts.BridgeConfig{
		Host:     cfg.Bridge.Host,
		Port:     cfg.Bridge.Port,
		Login:    cfg.Bridge.Login,
		Password: cfg.Bridge.Password,
		Server:   cfg.Bridge.Server,
	}
	if cfg.Bridge.DemoMode {
		if bridgeCfg.Login == "" {
			bridgeCfg.Login = "demo"
		}
		if bridgeCfg.Password == "" {
			bridgeCfg.Password = "demo"
		}
		if bridgeCfg.Server == "" {
			bridgeCfg.Server = "TradePilot-Demo"
		}
	}

	if err := a.manager.Configure(bridgeCfg); err != nil {
		a.logger.WithError(err).Warn("Bridge not configured at startup, waiting for API configuration")
		return
	}

	if _, err := a.manager.Connect(ctx); err != nil {
		a.logger.WithError(err).Warn("Initial bridge connection failed, reconnecting in background")
		return
	}
	a.logger.Info("Bridge connected")
}

// close releases the app's long-lived resources.
func (a *app) close() {
	if a.manager != nil {
		a.manager.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
