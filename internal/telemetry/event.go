package telemetry

import (
	"time"

	"github.com/mselser95/polymarket-updown/internal/arbitrage"
	"github.com/mselser95/polymarket-updown/internal/ledger"
	"github.com/mselser95/polymarket-updown/pkg/types"
)

// EventType discriminates telemetry events.
type EventType string

const (
	EventDecision EventType = "decision"
	EventStats    EventType = "stats"
	EventBook     EventType = "book"
)

// Event is the envelope every sink receives.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Decision  *Decision `json:"decision,omitempty"`
	Stats     *Stats    `json:"stats,omitempty"`
	Book      *Book     `json:"book,omitempty"`
}

// Decision records one executed action. Consumers link it to a market by slug.
type Decision struct {
	Asset      string  `json:"asset"`
	Action     string  `json:"action"` // ARB_YES, ARB_NO, DIR_YES, DIR_NO, NEAR_RES
	MarketSlug string  `json:"market_slug"`
	Size       float64 `json:"size"`
	Price      float64 `json:"price"`
	TradeID    string  `json:"trade_id"`
	Status     string  `json:"status"`
}

// Stats are aggregate engine counters.
type Stats struct {
	ledger.Stats
	TrackedMarkets int  `json:"tracked_markets"`
	Halted         bool `json:"halted"`
}

// Book is a throttled top-of-book update.
type Book struct {
	MarketSlug string  `json:"market_slug"`
	Asset      string  `json:"asset"`
	YesBid     float64 `json:"yes_bid"`
	YesAsk     float64 `json:"yes_ask"`
	NoBid      float64 `json:"no_bid"`
	NoAsk      float64 `json:"no_ask"`
	Stale      bool    `json:"stale"`
}

// DecisionEvents returns one decision per leg that executed shares.
func DecisionEvents(opp *arbitrage.Opportunity, trade *ledger.Trade, now time.Time) []Event {
	events := make([]Event, 0, len(trade.Legs))
	for _, leg := range trade.Legs {
		shares := leg.ExecutedShares()
		if shares <= 0 {
			continue
		}
		price := leg.FillPrice
		if price <= 0 {
			price = leg.Price
		}
		events = append(events, Event{
			Type:      EventDecision,
			Timestamp: now,
			Decision: &Decision{
				Asset:      trade.Asset,
				Action:     opp.Action(leg.Outcome),
				MarketSlug: trade.MarketSlug,
				Size:       shares,
				Price:      price,
				TradeID:    trade.ID,
				Status:     string(trade.Status),
			},
		})
	}
	return events
}

// StatsEvent wraps aggregate stats.
func StatsEvent(stats Stats, now time.Time) Event {
	return Event{Type: EventStats, Timestamp: now, Stats: &stats}
}

// BookEvent wraps one market's book state.
func BookEvent(market *types.Market, book types.BookState) Event {
	return Event{
		Type:      EventBook,
		Timestamp: book.UpdatedAt,
		Book: &Book{
			MarketSlug: market.Slug,
			Asset:      market.Asset,
			YesBid:     book.YesBid,
			YesAsk:     book.YesAsk,
			NoBid:      book.NoBid,
			NoAsk:      book.NoAsk,
			Stale:      book.Stale,
		},
	}
}
