package execution

import (
	"context"
	"time"

	"github.com/mselser95/polymarket-updown/internal/ledger"
	"go.uber.org/zap"
)

// LegChangeFunc observes a leg after its status or fill changed. executed is the
// number of shares that became executed with this change.
type LegChangeFunc func(leg *ledger.OrderLeg, executed float64)

// FillTracker polls open legs with exponential backoff.
type FillTracker struct {
	exchange       Exchange
	logger         *zap.Logger
	initialBackoff time.Duration
	maxBackoff     time.Duration
	backoffMult    float64
	fillTimeout    time.Duration
	callTimeout    time.Duration
}

// FillTrackerConfig holds configuration for fill polling.
type FillTrackerConfig struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffMult    float64
	FillTimeout    time.Duration
	CallTimeout    time.Duration
}

// NewFillTracker creates a new FillTracker instance.
func NewFillTracker(exchange Exchange, logger *zap.Logger, cfg *FillTrackerConfig) *FillTracker {
	mult := cfg.BackoffMult
	if mult < 1 {
		mult = 2
	}
	return &FillTracker{
		exchange:       exchange,
		logger:         logger,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		backoffMult:    mult,
		fillTimeout:    cfg.FillTimeout,
		callTimeout:    cfg.CallTimeout,
	}
}

// Track polls every open leg until none is open, the fill timeout elapses or
// the deadline passes. Legs still open on return are left for the caller to
// cancel. Only context cancellation is reported as an error.
func (ft *FillTracker) Track(ctx context.Context, legs []*ledger.OrderLeg, deadline time.Time, onChange LegChangeFunc) error {
	start := time.Now()
	stopAt := start.Add(ft.fillTimeout)
	if !deadline.IsZero() && deadline.Before(stopAt) {
		stopAt = deadline
	}

	timeout := time.NewTimer(time.Until(stopAt))
	defer timeout.Stop()

	backoff := ft.initialBackoff
	attempt := 1

	for {
		open := 0
		for _, leg := range legs {
			if leg.OrderID == "" || !leg.Status.Open() {
				continue
			}

			var state *OrderState
			err := callWithTimeout(ctx, ft.callTimeout, func(callCtx context.Context) error {
				var queryErr error
				state, queryErr = ft.exchange.GetOrder(callCtx, leg.OrderID)
				return queryErr
			})
			if err != nil {
				ft.logger.Warn("order-query-failed-retrying",
					zap.String("order-id", leg.OrderID),
					zap.Error(err),
					zap.Int("attempt", attempt))
				open++
				continue
			}

			executed, changed := applyOrderState(leg, state, time.Now())
			if changed && onChange != nil {
				onChange(leg, executed)
			}
			if leg.Status.Open() {
				open++
			}
		}

		if open == 0 {
			FillWaitSeconds.Observe(time.Since(start).Seconds())
			ft.logger.Debug("all-legs-settled",
				zap.Int("leg-count", len(legs)),
				zap.Duration("duration", time.Since(start)),
				zap.Int("attempts", attempt))
			return nil
		}

		select {
		case <-timeout.C:
			FillTimeoutsTotal.Inc()
			ft.logger.Warn("fill-verification-timeout",
				zap.Int("open-legs", open),
				zap.Duration("waited", time.Since(start)),
				zap.Int("attempts", attempt))
			return nil

		case <-ctx.Done():
			return ctx.Err()

		case <-time.After(backoff):
			attempt++
			backoff = time.Duration(float64(backoff) * ft.backoffMult)
			if backoff > ft.maxBackoff {
				backoff = ft.maxBackoff
			}
		}
	}
}

// applyOrderState copies exchange state onto a leg. It returns the shares that
// became executed and whether anything changed.
func applyOrderState(leg *ledger.OrderLeg, state *OrderState, now time.Time) (float64, bool) {
	if state == nil {
		return 0, false
	}
	if state.Status == leg.Status && state.FilledSize == leg.FilledSize {
		return 0, false
	}

	before := leg.ExecutedShares()

	leg.Status = state.Status
	// a cancelled remainder keeps its matched shares
	if leg.Status == ledger.LegCancelled && state.FilledSize > 0 {
		leg.Status = ledger.LegMatched
	}
	if state.FilledSize > leg.FilledSize {
		leg.FilledSize = state.FilledSize
	}
	if leg.Status == ledger.LegFilled && leg.FilledSize == 0 {
		leg.FilledSize = leg.Size
	}
	if leg.FilledSize > 0 {
		if state.Price > 0 {
			leg.FillPrice = state.Price
		} else if leg.FillPrice == 0 {
			leg.FillPrice = leg.Price
		}
		if leg.FilledAt == nil {
			at := now
			leg.FilledAt = &at
		}
	}

	executed := leg.ExecutedShares() - before
	if executed < 0 {
		executed = 0
	}
	return executed, true
}
