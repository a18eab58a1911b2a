package app

import (
	"context"
	"time"

	"github.com/mselser95/polymarket-updown/internal/alert"
	"github.com/mselser95/polymarket-updown/internal/arbitrage"
	"github.com/mselser95/polymarket-updown/internal/circuitbreaker"
	"github.com/mselser95/polymarket-updown/internal/execution"
	"github.com/mselser95/polymarket-updown/internal/ledger"
	"github.com/mselser95/polymarket-updown/internal/telemetry"
	"github.com/mselser95/polymarket-updown/pkg/types"
	"go.uber.org/zap"
)

// wireCallbacks connects component events. Callbacks run on the emitting
// component's goroutine and must not block.
func (a *App) wireCallbacks() {
	a.tracker.OnOpportunity(a.handleOpportunity)
	a.tracker.OnStateChange(a.handleBookChange)
	a.engine.OnTrade(a.handleTrade)
	a.engine.OnHalt(func(cause error) {
		a.notifier.Notify(alert.TradingHalted(cause))
	})
	a.breaker.OnTrip(func(trip circuitbreaker.Trip) {
		a.notifier.Notify(alert.BreakerTripped(trip))
	})
	a.rotator.OnDetach(a.handleDetach)
}

func (a *App) handleOpportunity(opp *arbitrage.Opportunity) {
	if a.engine.Submit(opp) {
		return
	}
	a.logger.Warn("opportunity-dropped",
		zap.String("market-slug", opp.Market.Slug),
		zap.Stringer("kind", opp.Kind),
		zap.String("reason", "execution queue full"))
}

func (a *App) handleBookChange(market *types.Market, book types.BookState) {
	a.broadcaster.Emit(telemetry.BookEvent(market, book))
}

func (a *App) handleTrade(event execution.TradeEvent) {
	trade := event.Trade

	// Resolution events carry no opportunity and spend nothing.
	if event.Opportunity == nil {
		return
	}

	if a.balanceGuard != nil {
		a.balanceGuard.RecordTrade(trade.Cost())
	}

	for _, e := range telemetry.DecisionEvents(event.Opportunity, trade, time.Now()) {
		a.broadcaster.Emit(e)
	}

	if trade.Status == ledger.StatusUnhedged {
		a.notifier.Notify(alert.UnhedgedTrade(trade))
	}
}

// handleDetach resolves the market's settled trades once it leaves rotation.
func (a *App) handleDetach(ctx context.Context, market *types.Market, winner types.Outcome) {
	resolved, err := a.engine.ResolveMarket(ctx, market.ID, winner)
	if err != nil {
		a.logger.Error("market-resolution-failed",
			zap.String("market-slug", market.Slug),
			zap.Error(err))
	}
	if len(resolved) == 0 {
		return
	}

	a.logger.Info("market-resolved",
		zap.String("market-slug", market.Slug),
		zap.String("winner", string(winner)),
		zap.Int("trades", len(resolved)),
		zap.Float64("safe-profit", ledger.SafeProfit(resolved)))
}
