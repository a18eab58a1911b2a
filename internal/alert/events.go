package alert

import (
	"fmt"

	"github.com/mselser95/polymarket-updown/internal/circuitbreaker"
	"github.com/mselser95/polymarket-updown/internal/ledger"
)

// BreakerTripped describes a circuit breaker trip.
func BreakerTripped(trip circuitbreaker.Trip) Alert {
	target := "all markets"
	if trip.Scope == circuitbreaker.ScopeMarket {
		target = "market " + trip.MarketID
	}
	msg := fmt.Sprintf("Trading stopped for %s by %s: %s", target, trip.Source, trip.Reason)
	if trip.HedgeRatio > 0 || trip.Scope == circuitbreaker.ScopeMarket {
		msg += fmt.Sprintf(" (hedge ratio %.3f)", trip.HedgeRatio)
	}
	return Alert{
		Severity: SeverityCritical,
		Title:    "Circuit breaker tripped",
		Message:  msg + ". Manual reset required.",
	}
}

// UnhedgedTrade describes a trade that settled below the minimum hedge ratio.
func UnhedgedTrade(trade *ledger.Trade) Alert {
	return Alert{
		Severity: SeverityCritical,
		Title:    "Unhedged trade",
		Message: fmt.Sprintf("Trade %s on %s is UNHEDGED (hedge ratio %.3f, cost $%.2f): %s",
			trade.ID, trade.MarketSlug, trade.HedgeRatio(), trade.Cost(), trade.Reason),
	}
}

// TradingHalted describes an exchange-wide halt.
func TradingHalted(err error) Alert {
	return Alert{
		Severity: SeverityCritical,
		Title:    "Trading halted",
		Message:  fmt.Sprintf("New trades are blocked until restart: %v", err),
	}
}
