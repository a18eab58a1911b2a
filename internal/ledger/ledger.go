package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrInvalidTransition is returned for a status change outside the state machine.
	ErrInvalidTransition = errors.New("invalid trade transition")
	// ErrTradeNotFound is returned when a trade id is unknown to the store.
	ErrTradeNotFound = errors.New("trade not found")
)

// Store persists trades, legs and fills. Implementations must make every
// write durable before returning.
type Store interface {
	InsertTrade(ctx context.Context, trade *Trade) error
	UpdateTrade(ctx context.Context, trade *Trade) error
	UpsertLeg(ctx context.Context, leg *OrderLeg) error
	InsertFill(ctx context.Context, fill *FillRecord) error
	GetTrade(ctx context.Context, id string) (*Trade, error)
	ListTrades(ctx context.Context, filter Filter) ([]*Trade, error)
}

// Stats are running counters since process start.
type Stats struct {
	Opened         int     `json:"opened"`
	Hedged         int     `json:"hedged"`
	Unhedged       int     `json:"unhedged"`
	Cancelled      int     `json:"cancelled"`
	Resolved       int     `json:"resolved"`
	RealizedProfit float64 `json:"realized_profit"`
	SafeProfit     float64 `json:"safe_profit"`
}

// Ledger drives trade state and persists every change.
type Ledger struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time

	mu    sync.Mutex
	stats Stats
}

// New creates a ledger over the given store.
func New(store Store, logger *zap.Logger) *Ledger {
	return &Ledger{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Open persists a new PENDING trade.
func (l *Ledger) Open(ctx context.Context, trade *Trade) error {
	if trade.ID == "" {
		trade.ID = uuid.New().String()
	}
	now := l.now()
	trade.Status = StatusPending
	trade.CreatedAt = now
	trade.UpdatedAt = now

	err := l.store.InsertTrade(ctx, trade)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}

	TransitionsTotal.WithLabelValues(string(StatusPending)).Inc()

	l.mu.Lock()
	l.stats.Opened++
	l.mu.Unlock()

	l.logger.Info("trade-opened",
		zap.String("trade-id", trade.ID),
		zap.String("market-slug", trade.MarketSlug),
		zap.String("kind", trade.Kind),
		zap.Float64("expected-profit", trade.ExpectedProfit))

	return nil
}

// Transition moves a trade to a new status and persists it.
func (l *Ledger) Transition(ctx context.Context, trade *Trade, to Status, reason string) error {
	from, wasUnhedged := trade.Status, trade.Unhedged
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	trade.Status = to
	trade.UpdatedAt = l.now()
	if reason != "" {
		trade.Reason = reason
	}
	if to == StatusUnhedged {
		trade.Unhedged = true
	}

	err := l.store.UpdateTrade(ctx, trade)
	if err != nil {
		trade.Status, trade.Unhedged = from, wasUnhedged
		return fmt.Errorf("update trade: %w", err)
	}

	TransitionsTotal.WithLabelValues(string(to)).Inc()
	l.count(to)

	fields := []zap.Field{
		zap.String("trade-id", trade.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("reason", reason),
	}
	if to == StatusUnhedged {
		l.logger.Warn("trade-transition", fields...)
	} else {
		l.logger.Info("trade-transition", fields...)
	}

	return nil
}

func (l *Ledger) count(to Status) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch to {
	case StatusHedged:
		l.stats.Hedged++
	case StatusUnhedged:
		l.stats.Unhedged++
	case StatusCancelled:
		l.stats.Cancelled++
	case StatusResolved:
		l.stats.Resolved++
	default:
	}
}

// RecordLeg persists the current state of a leg.
func (l *Ledger) RecordLeg(ctx context.Context, leg *OrderLeg) error {
	if leg.ID == "" {
		leg.ID = uuid.New().String()
	}
	if leg.CreatedAt.IsZero() {
		leg.CreatedAt = l.now()
	}

	err := l.store.UpsertLeg(ctx, leg)
	if err != nil {
		return fmt.Errorf("upsert leg: %w", err)
	}

	LegUpdatesTotal.WithLabelValues(string(leg.Status)).Inc()
	return nil
}

// RecordFill appends a fill record for newly executed shares of a leg.
func (l *Ledger) RecordFill(ctx context.Context, leg *OrderLeg, fillPrice, fillSize float64) (*FillRecord, error) {
	fill := &FillRecord{
		ID:        uuid.New().String(),
		LegID:     leg.ID,
		TradeID:   leg.TradeID,
		FillPrice: fillPrice,
		FillSize:  fillSize,
		Slippage:  fillPrice - leg.Price,
		FilledAt:  l.now(),
	}

	err := l.store.InsertFill(ctx, fill)
	if err != nil {
		return nil, fmt.Errorf("insert fill: %w", err)
	}

	FillsTotal.Inc()
	FillSlippage.Observe(fill.Slippage)

	l.logger.Info("fill-recorded",
		zap.String("trade-id", leg.TradeID),
		zap.String("leg-id", leg.ID),
		zap.Float64("fill-price", fillPrice),
		zap.Float64("fill-size", fillSize),
		zap.Float64("slippage", fill.Slippage))

	return fill, nil
}

// Resolve settles a HEDGED or UNHEDGED trade with its realized profit.
func (l *Ledger) Resolve(ctx context.Context, trade *Trade, profit float64) error {
	prevProfit, prevResolved := trade.ActualProfit, trade.ResolvedAt

	at := l.now()
	trade.ActualProfit = profit
	trade.ResolvedAt = &at

	err := l.Transition(ctx, trade, StatusResolved, "")
	if err != nil {
		trade.ActualProfit, trade.ResolvedAt = prevProfit, prevResolved
		return err
	}

	TradeProfit.Observe(profit)

	l.mu.Lock()
	l.stats.RealizedProfit += profit
	if !trade.Unhedged {
		l.stats.SafeProfit += profit
	}
	l.mu.Unlock()

	return nil
}

// Get reconstructs a trade and its legs from storage.
func (l *Ledger) Get(ctx context.Context, id string) (*Trade, error) {
	trade, err := l.store.GetTrade(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get trade %s: %w", id, err)
	}
	return trade, nil
}

// List returns trades matching the filter, newest first.
func (l *Ledger) List(ctx context.Context, filter Filter) ([]*Trade, error) {
	trades, err := l.store.ListTrades(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	return trades, nil
}

// Stats returns a copy of the running counters.
func (l *Ledger) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// SafeProfit sums realized profit of resolved trades that were never UNHEDGED.
func SafeProfit(trades []*Trade) float64 {
	total := 0.0
	for _, trade := range trades {
		if trade.Status == StatusResolved && !trade.Unhedged {
			total += trade.ActualProfit
		}
	}
	return total
}
