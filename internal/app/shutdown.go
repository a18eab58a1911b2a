package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Shutdown gracefully shuts down the application. Safe to call after a
// partial start.
func (a *App) Shutdown() error {
	a.logger.Info("application-shutting-down")

	a.healthChecker.SetReady(false)

	// Stop scheduling before cancelling so no job starts against a dead context.
	<-a.scheduler.Stop().Done()

	a.cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	err := a.httpServer.Shutdown(shutdownCtx)
	if err != nil {
		a.logger.Error("http-server-shutdown-error", zap.Error(err))
	}

	// In-flight trades finish their cancellation before the feed goes away.
	err = a.engine.Close()
	if err != nil {
		a.logger.Error("execution-engine-close-error", zap.Error(err))
	}

	err = a.feed.Close()
	if err != nil {
		a.logger.Error("websocket-manager-close-error", zap.Error(err))
	}

	err = a.tracker.Close()
	if err != nil {
		a.logger.Error("orderbook-tracker-close-error", zap.Error(err))
	}

	if a.balanceGuard != nil {
		a.balanceGuard.Wait()
	}

	err = a.broadcaster.Close()
	if err != nil {
		a.logger.Error("telemetry-close-error", zap.Error(err))
	}

	err = a.hub.Close()
	if err != nil {
		a.logger.Error("telemetry-hub-close-error", zap.Error(err))
	}

	// Flushes alerts queued during shutdown.
	err = a.notifier.Close()
	if err != nil {
		a.logger.Error("notifier-close-error", zap.Error(err))
	}

	a.closeStores()

	a.wg.Wait()

	a.logger.Info("application-shutdown-complete")

	return nil
}
