package ledger

import (
	"time"

	"github.com/mselser95/polymarket-updown/pkg/types"
)

// Status is the lifecycle state of a trade.
type Status string

const (
	StatusPending         Status = "PENDING"
	StatusSubmitted       Status = "SUBMITTED"
	StatusPartiallyFilled Status = "PARTIALLY_FILLED"
	StatusHedged          Status = "HEDGED"
	StatusUnhedged        Status = "UNHEDGED"
	StatusResolved        Status = "RESOLVED"
	StatusCancelled       Status = "CANCELLED"
)

var transitions = map[Status][]Status{
	StatusPending:         {StatusSubmitted, StatusCancelled},
	StatusSubmitted:       {StatusPartiallyFilled, StatusHedged, StatusUnhedged, StatusCancelled},
	StatusPartiallyFilled: {StatusHedged, StatusUnhedged},
	StatusHedged:          {StatusResolved},
	StatusUnhedged:        {StatusResolved},
}

// CanTransition reports whether from -> to is an edge of the trade state machine.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no execution step follows the status.
// HEDGED and UNHEDGED still move to RESOLVED when the market settles.
func (s Status) Terminal() bool {
	switch s {
	case StatusHedged, StatusUnhedged, StatusResolved, StatusCancelled:
		return true
	default:
		return false
	}
}

// Side is the order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// LegStatus mirrors the exchange order status of one leg.
type LegStatus string

const (
	LegSigned    LegStatus = "SIGNED"
	LegPosted    LegStatus = "POSTED"
	LegLive      LegStatus = "LIVE"
	LegMatched   LegStatus = "MATCHED"
	LegFilled    LegStatus = "FILLED"
	LegRejected  LegStatus = "REJECTED"
	LegCancelled LegStatus = "CANCELLED"
)

// Executed reports whether shares changed hands. A LIVE order is resting, not filled.
func (s LegStatus) Executed() bool {
	return s == LegMatched || s == LegFilled
}

// Open reports whether the leg may still fill.
func (s LegStatus) Open() bool {
	return s == LegPosted || s == LegLive || s == LegMatched
}

// OrderLeg is one order of a trade.
type OrderLeg struct {
	ID         string
	TradeID    string
	Side       Side
	Outcome    types.Outcome
	TokenID    string
	Price      float64 // signed limit price
	Size       float64 // shares
	Status     LegStatus
	OrderID    string
	FilledSize float64
	FillPrice  float64 // average fill price
	FilledAt   *time.Time
	Rebalance  bool
	Error      string
	CreatedAt  time.Time
}

// ExecutedShares returns the shares that count toward the hedge ratio.
func (l *OrderLeg) ExecutedShares() float64 {
	if !l.Status.Executed() {
		return 0
	}
	if l.FilledSize > 0 {
		return l.FilledSize
	}
	if l.Status == LegFilled {
		return l.Size
	}
	return 0
}

// Trade is the unit of execution.
type Trade struct {
	ID             string
	MarketID       string
	MarketSlug     string
	Asset          string
	Kind           string
	Status         Status
	Legs           []*OrderLeg
	ExpectedProfit float64
	ActualProfit   float64
	Unhedged       bool // set once the trade was classified UNHEDGED
	Reason         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ResolvedAt     *time.Time
}

// FilledShares sums executed shares on one outcome.
func (t *Trade) FilledShares(outcome types.Outcome) float64 {
	total := 0.0
	for _, leg := range t.Legs {
		if leg.Outcome == outcome && leg.Side == SideBuy {
			total += leg.ExecutedShares()
		}
	}
	return total
}

// HedgeRatio is min(filled YES, filled NO) / max(filled YES, filled NO), 0 when nothing filled.
func (t *Trade) HedgeRatio() float64 {
	yes := t.FilledShares(types.OutcomeYes)
	no := t.FilledShares(types.OutcomeNo)

	hi, lo := yes, no
	if lo > hi {
		hi, lo = lo, hi
	}
	if hi == 0 {
		return 0
	}
	return lo / hi
}

// Cost is the USDC spent on executed shares.
func (t *Trade) Cost() float64 {
	total := 0.0
	for _, leg := range t.Legs {
		shares := leg.ExecutedShares()
		if shares == 0 {
			continue
		}
		price := leg.FillPrice
		if price == 0 {
			price = leg.Price
		}
		total += shares * price
	}
	return total
}

// Payout is the redemption value if winner resolves true. An empty winner
// values only the matched YES+NO pairs.
func (t *Trade) Payout(winner types.Outcome) float64 {
	switch winner {
	case types.OutcomeYes, types.OutcomeNo:
		return t.FilledShares(winner)
	default:
		yes := t.FilledShares(types.OutcomeYes)
		no := t.FilledShares(types.OutcomeNo)
		if yes < no {
			return yes
		}
		return no
	}
}

// AnyExecuted reports whether at least one leg has executed shares.
func (t *Trade) AnyExecuted() bool {
	for _, leg := range t.Legs {
		if leg.ExecutedShares() > 0 {
			return true
		}
	}
	return false
}

// FullyExecuted reports whether every leg executed its whole size.
func (t *Trade) FullyExecuted() bool {
	if len(t.Legs) == 0 {
		return false
	}
	for _, leg := range t.Legs {
		if leg.Status != LegFilled && leg.ExecutedShares() < leg.Size {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (t *Trade) Clone() *Trade {
	c := *t
	c.Legs = make([]*OrderLeg, len(t.Legs))
	for i, leg := range t.Legs {
		legCopy := *leg
		c.Legs[i] = &legCopy
	}
	if t.ResolvedAt != nil {
		at := *t.ResolvedAt
		c.ResolvedAt = &at
	}
	return &c
}

// FillRecord is an append-only record of an observed fill.
type FillRecord struct {
	ID        string
	LegID     string
	TradeID   string
	FillPrice float64
	FillSize  float64
	Slippage  float64 // fill price minus signed limit price
	FilledAt  time.Time
}

// Filter narrows List results.
type Filter struct {
	MarketID string
	Statuses []Status
	Limit    int
}
