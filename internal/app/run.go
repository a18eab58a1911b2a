package app

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Run starts the application and blocks until shutdown.
func (a *App) Run() error {
	a.logger.Info("application-starting",
		zap.String("mode", a.cfg.ExecutionMode),
		zap.Strings("assets", a.cfg.RotationAssets),
		zap.Duration("period", a.cfg.RotationPeriod),
		zap.Float64("arb-spread-threshold", a.cfg.ArbSpreadThreshold),
		zap.String("storage", a.cfg.StorageMode),
		zap.String("log-level", a.cfg.LogLevel))

	err := a.startComponents()
	if err != nil {
		_ = a.Shutdown()
		return err
	}

	a.healthChecker.SetReady(true)

	a.logger.Info("application-ready",
		zap.String("http-addr", ":"+a.cfg.HTTPPort),
		zap.String("ws-url", a.cfg.PolymarketWSURL))

	return a.waitForShutdown()
}

func (a *App) startComponents() error {
	a.wg.Add(1)
	go a.runHTTPServer()

	// Give HTTP server a moment to start
	time.Sleep(100 * time.Millisecond)

	err := a.notifier.Start(a.ctx)
	if err != nil {
		return fmt.Errorf("start notifier: %w", err)
	}

	err = a.broadcaster.Start(a.ctx)
	if err != nil {
		return fmt.Errorf("start telemetry: %w", err)
	}

	err = a.feed.Start()
	if err != nil {
		return fmt.Errorf("start market feed: %w", err)
	}

	err = a.tracker.Start(a.ctx)
	if err != nil {
		return fmt.Errorf("start order book tracker: %w", err)
	}

	err = a.engine.Start(a.ctx)
	if err != nil {
		return fmt.Errorf("start execution engine: %w", err)
	}

	if a.balanceGuard != nil {
		a.balanceGuard.Start(a.ctx)
	}

	// Attach the current windows before the first scheduled tick.
	a.syncMarkets(a.ctx)
	a.scheduler.Start()

	return nil
}

func (a *App) runHTTPServer() {
	defer a.wg.Done()
	err := a.httpServer.Start()
	if err != nil {
		a.logger.Error("http-server-error", zap.Error(err))
	}
}

func (a *App) waitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		a.logger.Info("shutdown-signal-received", zap.String("signal", sig.String()))
	case <-a.ctx.Done():
		a.logger.Info("context-cancelled")
	}

	return a.Shutdown()
}
