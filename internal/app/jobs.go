package app

import (
	"context"
	"fmt"
	"time"

	"github.com/mselser95/polymarket-updown/internal/storage"
	"github.com/mselser95/polymarket-updown/internal/telemetry"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron-"+msg, zap.Any("details", keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron-"+msg, zap.Error(err), zap.Any("details", keysAndValues))
}

// setupScheduler registers the periodic jobs. A run that is still going when
// its next tick fires is skipped.
func (a *App) setupScheduler() (*cron.Cron, error) {
	clog := cronLogger{logger: a.logger}
	scheduler := cron.New(
		cron.WithSeconds(),
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)

	jobs := []struct {
		name     string
		schedule string
		run      func(ctx context.Context)
	}{
		{name: "rotation", schedule: a.cfg.RotationSchedule, run: a.syncMarkets},
		{name: "liquidity-snapshot", schedule: a.cfg.SnapshotSchedule, run: a.captureSnapshots},
		{name: "stats", schedule: "@every " + a.cfg.TelemetryStatsInterval.String(), run: a.publishStats},
	}

	for _, job := range jobs {
		run := job.run
		_, err := scheduler.AddFunc(job.schedule, func() { run(a.ctx) })
		if err != nil {
			return nil, fmt.Errorf("schedule %s %q: %w", job.name, job.schedule, err)
		}
	}

	return scheduler, nil
}

// syncMarkets attaches and detaches rotation windows.
func (a *App) syncMarkets(ctx context.Context) {
	err := a.rotator.Sync(ctx, time.Now())
	if err != nil {
		a.logger.Warn("rotation-sync-failed", zap.Error(err))
	}
}

// captureSnapshots appends the top of book of every tracked market.
func (a *App) captureSnapshots(ctx context.Context) {
	now := time.Now()
	captured := 0

	for _, market := range a.tracker.Markets() {
		book, ok := a.tracker.Snapshot(market.ID)
		if !ok || book.Stale {
			continue
		}

		err := a.store.InsertSnapshot(ctx, &storage.LiquiditySnapshot{
			MarketID:   market.ID,
			MarketSlug: market.Slug,
			CapturedAt: now,
			YesBid:     book.YesBid,
			YesAsk:     book.YesAsk,
			NoBid:      book.NoBid,
			NoAsk:      book.NoAsk,
		})
		if err != nil {
			a.logger.Warn("liquidity-snapshot-failed",
				zap.String("market-slug", market.Slug),
				zap.Error(err))
			continue
		}
		captured++
	}

	a.logger.Debug("liquidity-snapshots-captured", zap.Int("count", captured))
}

func (a *App) publishStats(_ context.Context) {
	a.broadcaster.Emit(telemetry.StatsEvent(telemetry.Stats{
		Stats:          a.ledger.Stats(),
		TrackedMarkets: len(a.tracker.Markets()),
		Halted:         a.engine.Halted(),
	}, time.Now()))
}
