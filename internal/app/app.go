package app

import (
	"context"
	"sync"

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
	"github.com/mselser95/polymarket-updown/pkg/websocket"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// App is the main application orchestrator.
type App struct {
	cfg           *config.Config
	logger        *zap.Logger
	healthChecker *healthprobe.HealthChecker
	httpServer    *httpserver.Server
	store         storage.Store
	ledger        *ledger.Ledger
	breaker       *circuitbreaker.Breaker
	balanceGuard  *circuitbreaker.BalanceGuard // nil unless enabled
	feed          *websocket.Manager
	tracker       *orderbook.Tracker
	detector      *arbitrage.Detector
	exchange      execution.Exchange
	engine        *execution.Engine
	marketCache   *cache.Cache[*types.Market]
	rotator       *rotation.Rotator
	broadcaster   *telemetry.Broadcaster
	hub           *telemetry.Hub
	redis         *telemetry.RedisPublisher // nil unless configured
	notifier      *alert.Notifier
	scheduler     *cron.Cron
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// Options holds application options.
type Options struct {
	Assets []string // overrides ROTATION_ASSETS, e.g. a single asset for debugging
}
