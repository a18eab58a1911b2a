package websocket

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/mselser95/polymarket-updown/pkg/types"
	"go.uber.org/zap"
)

// ReconnectConfig holds the backoff schedule for redialing the market feed.
type ReconnectConfig struct {
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	JitterPercent     float64 // 0.2 = up to 20% added, never past MaxDelay
}

// ReconnectManager redials with capped exponential backoff. A 403 from the
// gateway ends the loop: retrying a WAF block only extends it.
type ReconnectManager struct {
	config ReconnectConfig
	logger *zap.Logger

	mu       sync.Mutex
	delay    time.Duration
	attempts int

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() float64
}

// NewReconnectManager creates a reconnection manager.
func NewReconnectManager(cfg ReconnectConfig, logger *zap.Logger) *ReconnectManager {
	if cfg.BackoffMultiplier < 1 {
		cfg.BackoffMultiplier = 1
	}
	if cfg.MaxDelay < cfg.InitialDelay {
		cfg.MaxDelay = cfg.InitialDelay
	}
	return &ReconnectManager{
		config: cfg,
		logger: logger,
		delay:  cfg.InitialDelay,
		sleep:  sleepCtx,
		jitter: rand.Float64,
	}
}

// Reconnect calls dial until it succeeds, ctx ends, or the gateway blocks us.
func (rm *ReconnectManager) Reconnect(ctx context.Context, dial func(context.Context) error) error {
	for {
		delay, attempt := rm.next()

		rm.logger.Info("websocket-reconnecting",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay))
		ReconnectAttemptsTotal.Inc()

		err := rm.sleep(ctx, delay)
		if err != nil {
			return err
		}

		err = dial(ctx)
		if err == nil {
			rm.logger.Info("websocket-reconnected", zap.Int("attempts", attempt))
			rm.Reset()
			return nil
		}

		ReconnectFailuresTotal.Inc()

		if errors.Is(err, types.ErrAuthBlocked) {
			rm.logger.Error("websocket-reconnect-blocked", zap.Int("attempt", attempt), zap.Error(err))
			return err
		}

		rm.logger.Warn("websocket-reconnect-failed", zap.Int("attempt", attempt), zap.Error(err))
	}
}

// Reset restores the initial delay after a healthy connection.
func (rm *ReconnectManager) Reset() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.delay = rm.config.InitialDelay
	rm.attempts = 0
}

// next returns the jittered delay for this attempt and advances the schedule.
func (rm *ReconnectManager) next() (time.Duration, int) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.attempts++
	base := rm.delay

	grown := time.Duration(float64(rm.delay) * rm.config.BackoffMultiplier)
	rm.delay = min(grown, rm.config.MaxDelay)

	withJitter := time.Duration(float64(base) * (1 + rm.jitter()*rm.config.JitterPercent))
	return min(withJitter, rm.config.MaxDelay), rm.attempts
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
