package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/polymarket-updown/internal/alert"
	"github.com/mselser95/polymarket-updown/internal/arbitrage"
	"github.com/mselser95/polymarket-updown/internal/circuitbreaker"
	"github.com/mselser95/polymarket-updown/internal/execution"
	"github.com/mselser95/polymarket-updown/internal/ledger"
	"github.com/mselser95/polymarket-updown/internal/orderbook"
	"github.com/mselser95/polymarket-updown/internal/rotation"
	"github.com/mselser95/polymarket-updown/internal/storage"
	"github.com/mselser95/polymarket-updown/internal/telemetry"
	"github.com/mselser95/polymarket-updown/pkg/cache"
	"github.com/mselser95/polymarket-updown/pkg/config"
	"github.com/mselser95/polymarket-updown/pkg/healthprobe"
	"github.com/mselser95/polymarket-updown/pkg/httpserver"
	"github.com/mselser95/polymarket-updown/pkg/types"
	"github.com/mselser95/polymarket-updown/pkg/wallet"
	"github.com/mselser95/polymarket-updown/pkg/websocket"
	"go.uber.org/zap"
)

const (
	balanceTradeMultiplier = 3.0
	balanceHysteresisRatio = 1.5
)

// New creates a new application instance. Nothing connects until Run.
func New(cfg *config.Config, logger *zap.Logger, opts *Options) (*App, error) {
	if opts == nil {
		opts = &Options{}
	}
	if len(opts.Assets) > 0 {
		cfg.RotationAssets = opts.Assets
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &App{
		cfg:           cfg,
		logger:        logger,
		healthChecker: healthprobe.New(),
		breaker:       circuitbreaker.NewBreaker(logger),
		ctx:           ctx,
		cancel:        cancel,
	}

	err := a.setup(ctx)
	if err != nil {
		cancel()
		a.closeStores()
		return nil, err
	}

	return a, nil
}

func (a *App) setup(ctx context.Context) error {
	store, err := OpenStorage(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("setup storage: %w", err)
	}
	a.store = store
	a.ledger = ledger.New(store, a.logger)

	a.exchange, err = setupExchange(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("setup exchange: %w", err)
	}

	a.balanceGuard, err = setupBalanceGuard(a.cfg, a.logger, a.breaker, a.exchange)
	if err != nil {
		return fmt.Errorf("setup balance guard: %w", err)
	}

	a.setupFeedAndTracker()

	a.engine, err = setupEngine(a.cfg, a.logger, a.exchange, a.ledger, a.tracker, a.detector, a.breaker)
	if err != nil {
		return fmt.Errorf("setup engine: %w", err)
	}

	a.marketCache, err = cache.New[*types.Market](&cache.Config{
		Name:        "markets",
		NumCounters: 10000, // 10x expected max items
		MaxCost:     1000,
		BufferItems: 64,
		Logger:      a.logger,
	})
	if err != nil {
		return fmt.Errorf("setup cache: %w", err)
	}

	a.rotator, err = rotation.New(rotation.Config{
		Logger:     a.logger,
		Lookup:     rotation.NewGammaClient(a.cfg.PolymarketGammaURL, a.logger),
		Tracker:    a.tracker,
		Cache:      a.marketCache,
		Assets:     a.cfg.RotationAssets,
		Period:     a.cfg.RotationPeriod,
		AttachLead: a.cfg.RotationLead,
		Grace:      a.cfg.RotationGrace,
	})
	if err != nil {
		return fmt.Errorf("setup rotation: %w", err)
	}

	err = a.setupTelemetry(ctx)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}

	a.notifier = setupNotifier(a.cfg, a.logger)

	a.scheduler, err = a.setupScheduler()
	if err != nil {
		return fmt.Errorf("setup scheduler: %w", err)
	}

	a.httpServer = httpserver.New(&httpserver.Config{
		Port:          a.cfg.HTTPPort,
		Logger:        a.logger,
		HealthChecker: a.healthChecker,
		Books:         a.tracker,
		Trades:        a.ledger,
		Breaker:       a.breaker,
		Telemetry:     a.hub,
	})

	a.registerChecks()
	a.wireCallbacks()

	return nil
}

// OpenStorage opens the configured trade store. Postgres is migrated on open.
func OpenStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Store, error) {
	if cfg.StorageMode == "postgres" {
		pgStorage, err := storage.NewPostgresStorage(ctx, &storage.PostgresConfig{
			Host:     cfg.PostgresHost,
			Port:     cfg.PostgresPort,
			User:     cfg.PostgresUser,
			Password: cfg.PostgresPass,
			Database: cfg.PostgresDB,
			SSLMode:  cfg.PostgresSSL,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create postgres storage: %w", err)
		}
		return pgStorage, nil
	}

	logger.Warn("memory-storage-selected", zap.String("note", "trades are lost on restart"))
	return storage.NewMemoryStorage(logger), nil
}

func setupExchange(cfg *config.Config, logger *zap.Logger) (execution.Exchange, error) {
	if cfg.ExecutionMode != "live" {
		logger.Info("paper-exchange-selected",
			zap.String("mode", cfg.ExecutionMode),
			zap.String("note", "orders fill immediately at their limit price"))
		return execution.NewPaperExchange(logger), nil
	}

	clob, err := execution.NewClobClient(&execution.ClobConfig{
		BaseURL:       cfg.PolymarketCLOBURL,
		APIKey:        cfg.PolymarketAPIKey,
		Secret:        cfg.PolymarketSecret,
		Passphrase:    cfg.PolymarketPassphrase,
		PrivateKey:    cfg.PolymarketPrivateKey,
		ProxyAddress:  cfg.PolymarketProxyAddr,
		SignatureType: cfg.SignatureType,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create clob client: %w", err)
	}

	logger.Info("live-exchange-selected", zap.String("signer", clob.Address()))
	return clob, nil
}

// setupBalanceGuard returns nil when the guard is disabled or there is no
// wallet to watch (paper mode).
func setupBalanceGuard(
	cfg *config.Config,
	logger *zap.Logger,
	breaker *circuitbreaker.Breaker,
	exchange execution.Exchange,
) (*circuitbreaker.BalanceGuard, error) {
	if !cfg.BalanceGuardEnabled {
		return nil, nil
	}

	clob, ok := exchange.(*execution.ClobClient)
	if !ok {
		logger.Warn("balance-guard-disabled", zap.String("reason", "no wallet in paper mode"))
		return nil, nil
	}

	// Collateral sits in the proxy wallet when one is configured.
	owner := clob.Address()
	if cfg.PolymarketProxyAddr != "" {
		owner = cfg.PolymarketProxyAddr
	}

	walletClient, err := wallet.NewClient(cfg.PolygonRPCURL, logger)
	if err != nil {
		return nil, fmt.Errorf("create wallet client: %w", err)
	}

	guard, err := circuitbreaker.NewBalanceGuard(breaker, &circuitbreaker.BalanceConfig{
		CheckInterval:   cfg.BalanceCheckInterval,
		TradeMultiplier: balanceTradeMultiplier,
		MinAbsolute:     cfg.BalanceMinUSDC,
		HysteresisRatio: balanceHysteresisRatio,
		Fetcher:         walletClient,
		Address:         common.HexToAddress(owner),
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("balance-guard-enabled",
		zap.String("address", owner),
		zap.Duration("check-interval", cfg.BalanceCheckInterval),
		zap.Float64("min-usdc", cfg.BalanceMinUSDC))

	return guard, nil
}

// setupFeedAndTracker builds the feed adapter and the single order book
// tracker. Feed callbacks reach the tracker and engine through the App since
// those are created afterwards.
func (a *App) setupFeedAndTracker() {
	a.feed = websocket.New(websocket.Config{
		URL:                   a.cfg.PolymarketWSURL,
		DialTimeout:           a.cfg.WSDialTimeout,
		PongTimeout:           a.cfg.WSPongTimeout,
		PingInterval:          a.cfg.WSPingInterval,
		ReconnectInitialDelay: a.cfg.WSReconnectInitialDelay,
		ReconnectMaxDelay:     a.cfg.WSReconnectMaxDelay,
		ReconnectBackoffMult:  a.cfg.WSReconnectBackoffMult,
		MessageBufferSize:     a.cfg.WSMessageBufferSize,
		Logger:                a.logger,
		OnDiscontinuity: func(tokenIDs []string) {
			a.tracker.MarkStale(tokenIDs...)
		},
		OnBlocked: func(err error) {
			a.engine.Halt(err)
		},
	})

	a.detector = arbitrage.New(arbitrage.Config{
		SpreadThreshold:      a.cfg.ArbSpreadThreshold,
		Budget:               a.cfg.ArbBudget,
		EntryThreshold:       a.cfg.DirectionalEntryThreshold,
		MinTimeFraction:      a.cfg.DirectionalMinTimeFraction,
		DirectionalFraction:  a.cfg.DirectionalBudgetFraction,
		NearResolutionWindow: a.cfg.NearResolutionWindow,
		BandLow:              a.cfg.NearResolutionBandLow,
		BandHigh:             a.cfg.NearResolutionBandHigh,
		NearResolutionSize:   a.cfg.NearResolutionSize,
	})

	a.tracker = orderbook.New(orderbook.Config{
		Logger:          a.logger,
		Subscriber:      a.feed,
		Evaluator:       a.detector,
		Deltas:          a.feed.DeltaChan(),
		StalenessWindow: a.cfg.BookStalenessWindow,
		Throttle:        a.cfg.TelemetryThrottle,
	})
}

func setupEngine(
	cfg *config.Config,
	logger *zap.Logger,
	exchange execution.Exchange,
	l *ledger.Ledger,
	tracker *orderbook.Tracker,
	detector *arbitrage.Detector,
	breaker *circuitbreaker.Breaker,
) (*execution.Engine, error) {
	return execution.New(execution.Config{
		Logger:          logger,
		Exchange:        exchange,
		Ledger:          l,
		Books:           tracker,
		Repricer:        detector,
		Breaker:         breaker,
		OrderType:       execution.OrderTypeGTC,
		EpsilonTicks:    cfg.ExecEpsilonTicks,
		StalenessWindow: cfg.BookStalenessWindow,
		Retry: execution.RetryConfig{
			MaxAttempts:    cfg.ExecRetryMaxAttempts,
			InitialBackoff: cfg.ExecRetryInitialBackoff,
			MaxBackoff:     cfg.ExecRetryMaxBackoff,
			CallTimeout:    cfg.ExecCallTimeout,
		},
		Fill: execution.FillTrackerConfig{
			InitialBackoff: cfg.ExecFillInitialBackoff,
			MaxBackoff:     cfg.ExecFillMaxBackoff,
			BackoffMult:    2.0,
			FillTimeout:    cfg.ExecFillTimeout,
			CallTimeout:    cfg.ExecCallTimeout,
		},
		MinHedgeRatio:      cfg.MinHedgeRatio,
		CriticalHedgeRatio: cfg.CriticalHedgeRatio,
		TripGlobal:         cfg.BreakerTripGlobal,
		QueueSize:          cfg.ExecOpportunityBuffer,
	})
}

func (a *App) setupTelemetry(ctx context.Context) error {
	a.hub = telemetry.NewHub(a.logger)
	sinks := []telemetry.Sink{a.hub}

	if a.cfg.RedisAddr != "" {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		pub, err := telemetry.NewRedisPublisher(pingCtx, telemetry.RedisConfig{
			Addr:     a.cfg.RedisAddr,
			Password: a.cfg.RedisPassword,
			DB:       a.cfg.RedisDB,
			Channel:  a.cfg.RedisChannel,
		})
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		a.redis = pub
		sinks = append(sinks, pub)
	}

	broadcaster, err := telemetry.New(telemetry.Config{
		Logger: a.logger,
		Sinks:  sinks,
	})
	if err != nil {
		return err
	}
	a.broadcaster = broadcaster
	return nil
}

func setupNotifier(cfg *config.Config, logger *zap.Logger) *alert.Notifier {
	if cfg.AlertWebhookURL == "" {
		return alert.NewNotifier(logger)
	}
	return alert.NewNotifier(logger, alert.NewDiscordSender(cfg.AlertWebhookURL))
}

func (a *App) registerChecks() {
	a.healthChecker.AddCheck("market-feed", func() error {
		if a.feed.Blocked() {
			return errors.New("blocked by upstream")
		}
		if !a.feed.Connected() {
			return errors.New("disconnected")
		}
		return nil
	})
	a.healthChecker.AddCheck("trading", func() error {
		if a.engine.Halted() {
			return errors.New("halted")
		}
		return nil
	})
}

// closeStores releases connections opened during a failed setup.
func (a *App) closeStores() {
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.marketCache != nil {
		a.marketCache.Close()
	}
}
