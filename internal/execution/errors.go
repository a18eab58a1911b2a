package execution

import "errors"

var (
	// ErrTradingHalted is returned after the gateway rejected our credentials.
	ErrTradingHalted = errors.New("trading halted")
	// ErrCircuitOpen is returned when a breaker blocks the market.
	ErrCircuitOpen = errors.New("circuit breaker open")
	// ErrMarketBusy is returned while another trade on the market is in flight.
	ErrMarketBusy = errors.New("market has a trade in flight")
	// ErrStaleBook is returned when the latest book is missing or stale.
	ErrStaleBook = errors.New("book stale or missing")
	// ErrUnprofitable is returned when re-pricing leaves no positive expected profit.
	ErrUnprofitable = errors.New("opportunity no longer profitable")
)
