package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/polymarket-updown/pkg/wallet"
	"go.uber.org/zap"
)

// SourceBalance marks global trips owned by the balance guard.
const SourceBalance = "balance-guard"

const recentTradeWindow = 20

// BalanceFetcher fetches wallet balances.
// Both wallet.Client and test mocks implement it.
type BalanceFetcher interface {
	GetBalances(ctx context.Context, address common.Address) (*wallet.Balances, error)
}

// BalanceGuard trips the global breaker when the wallet's USDC balance drops
// below a floor derived from recent trade sizes. It only resets trips it caused,
// and only once the balance recovers past the hysteresis threshold.
type BalanceGuard struct {
	breaker         *Breaker
	fetcher         BalanceFetcher
	address         common.Address
	logger          *zap.Logger
	checkInterval   time.Duration
	tradeMultiplier float64
	minAbsolute     float64
	hysteresisRatio float64

	mu               sync.RWMutex
	tripped          bool
	lastBalance      float64
	lastCheck        time.Time
	recentTrades     []float64
	disableThreshold float64
	enableThreshold  float64

	wg sync.WaitGroup
}

// BalanceConfig holds balance guard configuration.
type BalanceConfig struct {
	CheckInterval   time.Duration
	TradeMultiplier float64
	MinAbsolute     float64
	HysteresisRatio float64
	Fetcher         BalanceFetcher
	Address         common.Address
	Logger          *zap.Logger
}

// BalanceStatus is the guard's state for HTTP endpoints.
type BalanceStatus struct {
	Tripped          bool      `json:"tripped"`
	LastBalance      float64   `json:"last_balance"`
	LastCheck        time.Time `json:"last_check"`
	DisableThreshold float64   `json:"disable_threshold"`
	EnableThreshold  float64   `json:"enable_threshold"`
	RecentTradeCount int       `json:"recent_trade_count"`
}

// NewBalanceGuard creates a guard that drives the given breaker.
func NewBalanceGuard(breaker *Breaker, cfg *BalanceConfig) (*BalanceGuard, error) {
	switch {
	case breaker == nil:
		return nil, errors.New("breaker cannot be nil")
	case cfg == nil:
		return nil, errors.New("config cannot be nil")
	case cfg.Fetcher == nil:
		return nil, errors.New("balance fetcher cannot be nil")
	case cfg.Logger == nil:
		return nil, errors.New("logger cannot be nil")
	case cfg.CheckInterval <= 0:
		return nil, errors.New("check interval must be positive")
	case cfg.TradeMultiplier <= 0:
		return nil, errors.New("trade multiplier must be positive")
	case cfg.MinAbsolute <= 0:
		return nil, errors.New("min absolute must be positive")
	case cfg.HysteresisRatio < 1.0:
		return nil, errors.New("hysteresis ratio must be >= 1.0")
	}

	g := &BalanceGuard{
		breaker:          breaker,
		fetcher:          cfg.Fetcher,
		address:          cfg.Address,
		logger:           cfg.Logger,
		checkInterval:    cfg.CheckInterval,
		tradeMultiplier:  cfg.TradeMultiplier,
		minAbsolute:      cfg.MinAbsolute,
		hysteresisRatio:  cfg.HysteresisRatio,
		recentTrades:     make([]float64, 0, recentTradeWindow),
		disableThreshold: cfg.MinAbsolute,
		enableThreshold:  cfg.MinAbsolute * cfg.HysteresisRatio,
	}

	BalanceGuardDisableThreshold.Set(g.disableThreshold)

	return g, nil
}

// RecordTrade adds an executed trade cost to the rolling window and recomputes
// the thresholds.
func (g *BalanceGuard) RecordTrade(cost float64) {
	if cost <= 0 {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.recentTrades = append(g.recentTrades, cost)
	if len(g.recentTrades) > recentTradeWindow {
		g.recentTrades = g.recentTrades[1:]
	}

	sum := 0.0
	for _, size := range g.recentTrades {
		sum += size
	}
	avg := sum / float64(len(g.recentTrades))

	g.disableThreshold = math.Max(avg*g.tradeMultiplier, g.minAbsolute)
	g.enableThreshold = g.disableThreshold * g.hysteresisRatio
	BalanceGuardDisableThreshold.Set(g.disableThreshold)
}

// CheckBalance fetches the balance and trips or resets the global breaker.
func (g *BalanceGuard) CheckBalance(ctx context.Context) error {
	start := time.Now()
	defer func() {
		BalanceGuardCheckDuration.Observe(time.Since(start).Seconds())
	}()

	balances, err := g.fetcher.GetBalances(ctx, g.address)
	if err != nil {
		return fmt.Errorf("get balances: %w", err)
	}

	balance := balances.USDCFloat()
	BalanceGuardBalance.Set(balance)

	g.mu.Lock()
	g.lastBalance = balance
	g.lastCheck = time.Now()
	disable, enable := g.disableThreshold, g.enableThreshold
	wasTripped := g.tripped
	shouldTrip := !wasTripped && balance < disable
	shouldReset := wasTripped && balance >= enable
	if shouldTrip {
		g.tripped = true
	} else if shouldReset {
		g.tripped = false
	}
	g.mu.Unlock()

	switch {
	case shouldTrip:
		g.breaker.TripGlobal(SourceBalance,
			fmt.Sprintf("usdc balance %.2f below %.2f", balance, disable))
	case shouldReset:
		g.breaker.ResetGlobal(SourceBalance)
		g.logger.Info("balance-recovered",
			zap.Float64("balance", balance),
			zap.Float64("enable-threshold", enable))
	default:
		g.logger.Debug("balance-checked",
			zap.Float64("balance", balance),
			zap.Bool("tripped", wasTripped),
			zap.Float64("disable-threshold", disable))
	}

	return nil
}

// Start checks the balance once and then on every interval until ctx is done.
func (g *BalanceGuard) Start(ctx context.Context) {
	g.logger.Info("balance-guard-started",
		zap.String("address", g.address.Hex()),
		zap.Duration("check-interval", g.checkInterval),
		zap.Float64("min-absolute", g.minAbsolute))

	err := g.CheckBalance(ctx)
	if err != nil {
		g.logger.Error("initial-balance-check-failed", zap.Error(err))
	}

	g.wg.Add(1)
	go g.monitorLoop(ctx)
}

func (g *BalanceGuard) monitorLoop(ctx context.Context) {
	defer g.wg.Done()

	ticker := time.NewTicker(g.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			g.logger.Info("balance-guard-stopped")
			return
		case <-ticker.C:
			err := g.CheckBalance(ctx)
			if err != nil {
				g.logger.Error("balance-check-error", zap.Error(err))
			}
		}
	}
}

// Wait blocks until the monitor loop exits.
func (g *BalanceGuard) Wait() {
	g.wg.Wait()
}

// Status returns the current guard state.
func (g *BalanceGuard) Status() BalanceStatus {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return BalanceStatus{
		Tripped:          g.tripped,
		LastBalance:      g.lastBalance,
		LastCheck:        g.lastCheck,
		DisableThreshold: g.disableThreshold,
		EnableThreshold:  g.enableThreshold,
		RecentTradeCount: len(g.recentTrades),
	}
}
