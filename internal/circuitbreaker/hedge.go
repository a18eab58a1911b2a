package circuitbreaker

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrOpen is the parent of every breaker rejection.
	ErrOpen = errors.New("circuit breaker open")
	// ErrMarketOpen means the breaker for one market tripped.
	ErrMarketOpen = fmt.Errorf("%w: market", ErrOpen)
	// ErrGlobalOpen means the global breaker tripped.
	ErrGlobalOpen = fmt.Errorf("%w: global", ErrOpen)
)

// Scope identifies which breaker tripped.
type Scope string

const (
	ScopeMarket Scope = "market"
	ScopeGlobal Scope = "global"
)

// Trip records why a breaker opened.
type Trip struct {
	Scope      Scope     `json:"scope"`
	MarketID   string    `json:"market_id,omitempty"`
	Source     string    `json:"source"`
	Reason     string    `json:"reason"`
	HedgeRatio float64   `json:"hedge_ratio,omitempty"`
	TrippedAt  time.Time `json:"tripped_at"`
}

// Status is a point-in-time view of every open breaker.
type Status struct {
	Global  *Trip  `json:"global,omitempty"`
	Markets []Trip `json:"markets"`
}

// Breaker halts trade execution per market or globally. Once tripped it stays
// open until reset.
type Breaker struct {
	logger *zap.Logger
	now    func() time.Time

	mu      sync.RWMutex
	markets map[string]Trip
	global  *Trip
	onTrip  []func(Trip)
}

// NewBreaker creates a closed breaker.
func NewBreaker(logger *zap.Logger) *Breaker {
	BreakerOpen.WithLabelValues(string(ScopeGlobal)).Set(0)
	BreakerOpen.WithLabelValues(string(ScopeMarket)).Set(0)

	return &Breaker{
		logger:  logger,
		now:     time.Now,
		markets: make(map[string]Trip),
	}
}

// OnTrip registers a callback run after every trip, outside the breaker lock.
func (b *Breaker) OnTrip(fn func(Trip)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onTrip = append(b.onTrip, fn)
}

// Allow returns nil when trades may be opened on the market.
func (b *Breaker) Allow(marketID string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.global != nil {
		return ErrGlobalOpen
	}
	if _, open := b.markets[marketID]; open {
		return ErrMarketOpen
	}
	return nil
}

// TripMarket opens the breaker for one market.
func (b *Breaker) TripMarket(marketID, source, reason string, hedgeRatio float64) {
	trip := Trip{
		Scope:      ScopeMarket,
		MarketID:   marketID,
		Source:     source,
		Reason:     reason,
		HedgeRatio: hedgeRatio,
		TrippedAt:  b.now(),
	}

	b.mu.Lock()
	if _, open := b.markets[marketID]; open {
		b.mu.Unlock()
		return
	}
	b.markets[marketID] = trip
	BreakerOpen.WithLabelValues(string(ScopeMarket)).Set(float64(len(b.markets)))
	callbacks := b.onTrip
	b.mu.Unlock()

	b.fire(trip, callbacks)
}

// TripGlobal opens the global breaker.
func (b *Breaker) TripGlobal(source, reason string) {
	trip := Trip{
		Scope:     ScopeGlobal,
		Source:    source,
		Reason:    reason,
		TrippedAt: b.now(),
	}

	b.mu.Lock()
	if b.global != nil {
		b.mu.Unlock()
		return
	}
	b.global = &trip
	BreakerOpen.WithLabelValues(string(ScopeGlobal)).Set(1)
	callbacks := b.onTrip
	b.mu.Unlock()

	b.fire(trip, callbacks)
}

func (b *Breaker) fire(trip Trip, callbacks []func(Trip)) {
	TripsTotal.WithLabelValues(string(trip.Scope), trip.Source).Inc()

	b.logger.Error("circuit-breaker-tripped",
		zap.String("scope", string(trip.Scope)),
		zap.String("market-id", trip.MarketID),
		zap.String("source", trip.Source),
		zap.String("reason", trip.Reason),
		zap.Float64("hedge-ratio", trip.HedgeRatio))

	for _, fn := range callbacks {
		fn(trip)
	}
}

// ResetMarket closes the breaker of one market. It reports whether it was open.
func (b *Breaker) ResetMarket(marketID string) bool {
	b.mu.Lock()
	_, open := b.markets[marketID]
	delete(b.markets, marketID)
	BreakerOpen.WithLabelValues(string(ScopeMarket)).Set(float64(len(b.markets)))
	b.mu.Unlock()

	if open {
		ResetsTotal.WithLabelValues(string(ScopeMarket)).Inc()
		b.logger.Warn("circuit-breaker-reset", zap.String("scope", "market"), zap.String("market-id", marketID))
	}
	return open
}

// ResetGlobal closes the global breaker if the given source tripped it.
// An empty source resets regardless of who tripped it.
func (b *Breaker) ResetGlobal(source string) bool {
	b.mu.Lock()
	open := b.global != nil && (source == "" || b.global.Source == source)
	if open {
		b.global = nil
		BreakerOpen.WithLabelValues(string(ScopeGlobal)).Set(0)
	}
	b.mu.Unlock()

	if open {
		ResetsTotal.WithLabelValues(string(ScopeGlobal)).Inc()
		b.logger.Warn("circuit-breaker-reset", zap.String("scope", "global"), zap.String("source", source))
	}
	return open
}

// ResetAll closes every breaker.
func (b *Breaker) ResetAll() {
	b.ResetGlobal("")
	for _, trip := range b.Status().Markets {
		b.ResetMarket(trip.MarketID)
	}
}

// Status returns every open breaker, markets sorted by trip time.
func (b *Breaker) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()

	status := Status{Markets: make([]Trip, 0, len(b.markets))}
	if b.global != nil {
		global := *b.global
		status.Global = &global
	}
	for _, trip := range b.markets {
		status.Markets = append(status.Markets, trip)
	}
	sort.Slice(status.Markets, func(i, j int) bool {
		return status.Markets[i].TrippedAt.Before(status.Markets[j].TrippedAt)
	})
	return status
}
