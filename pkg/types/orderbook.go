package types

import (
	"fmt"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
)

// OrderbookMessage is a full book message from the market WebSocket.
type OrderbookMessage struct {
	EventType string       `json:"event_type"` // "book", "price_change", "last_trade_price"
	AssetID   string       `json:"asset_id"`
	Market    string       `json:"market"`
	Timestamp int64        `json:"-"` // Parsed from string via UnmarshalJSON
	Hash      string       `json:"hash,omitempty"`
	Bids      []PriceLevel `json:"bids,omitempty"`
	Asks      []PriceLevel `json:"asks,omitempty"`
}

// UnmarshalJSON handles the string timestamp.
func (o *OrderbookMessage) UnmarshalJSON(data []byte) error {
	type Alias OrderbookMessage
	aux := &struct {
		TimestampStr string `json:"timestamp"`
		*Alias
	}{
		Alias: (*Alias)(o),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	ts, err := parseTimestamp(aux.TimestampStr)
	if err != nil {
		return err
	}
	o.Timestamp = ts

	return nil
}

// PriceChangeMessage is an incremental update carrying new best levels per asset.
type PriceChangeMessage struct {
	EventType    string        `json:"event_type"`
	Market       string        `json:"market"`
	Timestamp    int64         `json:"-"`
	PriceChanges []PriceChange `json:"price_changes"`
}

// PriceChange is one asset's entry in a price_change message.
type PriceChange struct {
	AssetID string `json:"asset_id"`
	Price   string `json:"price,omitempty"`
	Size    string `json:"size,omitempty"`
	Side    string `json:"side,omitempty"`
	BestBid string `json:"best_bid"`
	BestAsk string `json:"best_ask"`
}

// UnmarshalJSON handles the string timestamp.
func (p *PriceChangeMessage) UnmarshalJSON(data []byte) error {
	type Alias PriceChangeMessage
	aux := &struct {
		TimestampStr string `json:"timestamp"`
		*Alias
	}{
		Alias: (*Alias)(p),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	ts, err := parseTimestamp(aux.TimestampStr)
	if err != nil {
		return err
	}
	p.Timestamp = ts

	return nil
}

func parseTimestamp(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	ts, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return ts, nil
}

// PriceLevel is a single price level in the orderbook.
type PriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// DeltaKind distinguishes full snapshots from incremental changes.
type DeltaKind int

const (
	DeltaSnapshot DeltaKind = iota
	DeltaChange
)

// BookDelta is the normalized, exchange-agnostic update for one token.
type BookDelta struct {
	Kind        DeltaKind
	TokenID     string
	MarketID    string
	BestBid     float64
	BestBidSize float64
	BestAsk     float64
	BestAskSize float64
	HasBid      bool
	HasAsk      bool
	ReceivedAt  time.Time
}

// BookState is the best bid/ask of both outcome tokens of one market.
type BookState struct {
	MarketID   string
	YesBid     float64
	YesBidSize float64
	YesAsk     float64
	YesAskSize float64
	NoBid      float64
	NoBidSize  float64
	NoAsk      float64
	NoAskSize  float64
	UpdatedAt  time.Time
	Stale      bool
}

// Ask returns the best ask for an outcome.
func (b *BookState) Ask(outcome Outcome) float64 {
	if outcome == OutcomeNo {
		return b.NoAsk
	}
	return b.YesAsk
}

// Bid returns the best bid for an outcome.
func (b *BookState) Bid(outcome Outcome) float64 {
	if outcome == OutcomeNo {
		return b.NoBid
	}
	return b.YesBid
}

// Complete reports whether both asks are known.
func (b *BookState) Complete() bool {
	return b.YesAsk > 0 && b.NoAsk > 0
}
