package websocket

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/mselser95/polymarket-updown/pkg/types"
)

var errNoLevels = errors.New("no price levels")

type eventHeader struct {
	EventType string `json:"event_type"`
}

// normalize converts one raw frame into per-token deltas, preserving message order.
// The market channel sends either a single object or an array of objects.
func normalize(frame []byte, now time.Time) ([]*types.BookDelta, error) {
	trimmed := bytes.TrimSpace(frame)
	if len(trimmed) == 0 {
		return nil, nil
	}

	var raws []json.RawMessage
	if trimmed[0] == '[' {
		err := json.Unmarshal(trimmed, &raws)
		if err != nil {
			return nil, fmt.Errorf("unmarshal frame: %w", err)
		}
	} else {
		raws = []json.RawMessage{trimmed}
	}

	deltas := make([]*types.BookDelta, 0, len(raws))
	for _, raw := range raws {
		var header eventHeader
		err := json.Unmarshal(raw, &header)
		if err != nil {
			return deltas, fmt.Errorf("unmarshal event header: %w", err)
		}

		MessagesReceivedTotal.WithLabelValues(header.EventType).Inc()

		switch header.EventType {
		case "book":
			var msg types.OrderbookMessage
			err = json.Unmarshal(raw, &msg)
			if err != nil {
				return deltas, fmt.Errorf("unmarshal book: %w", err)
			}
			deltas = append(deltas, bookDelta(&msg, now))
		case "price_change":
			var msg types.PriceChangeMessage
			err = json.Unmarshal(raw, &msg)
			if err != nil {
				return deltas, fmt.Errorf("unmarshal price change: %w", err)
			}
			deltas = append(deltas, priceChangeDeltas(&msg, now)...)
		default:
			// last_trade_price, tick_size_change and control frames carry no book state
		}
	}

	return deltas, nil
}

func bookDelta(msg *types.OrderbookMessage, now time.Time) *types.BookDelta {
	delta := &types.BookDelta{
		Kind:       types.DeltaSnapshot,
		TokenID:    msg.AssetID,
		MarketID:   msg.Market,
		ReceivedAt: now,
	}

	bidPrice, bidSize, err := bestLevel(msg.Bids, true)
	if err == nil {
		delta.BestBid, delta.BestBidSize, delta.HasBid = bidPrice, bidSize, true
	}

	askPrice, askSize, err := bestLevel(msg.Asks, false)
	if err == nil {
		delta.BestAsk, delta.BestAskSize, delta.HasAsk = askPrice, askSize, true
	}

	return delta
}

func priceChangeDeltas(msg *types.PriceChangeMessage, now time.Time) []*types.BookDelta {
	deltas := make([]*types.BookDelta, 0, len(msg.PriceChanges))
	for _, pc := range msg.PriceChanges {
		delta := &types.BookDelta{
			Kind:       types.DeltaChange,
			TokenID:    pc.AssetID,
			MarketID:   msg.Market,
			ReceivedAt: now,
		}

		if bid, err := strconv.ParseFloat(pc.BestBid, 64); err == nil && bid > 0 {
			delta.BestBid, delta.HasBid = bid, true
		}
		if ask, err := strconv.ParseFloat(pc.BestAsk, 64); err == nil && ask > 0 && ask < 1 {
			delta.BestAsk, delta.HasAsk = ask, true
		}

		deltas = append(deltas, delta)
	}
	return deltas
}

// bestLevel picks the highest bid or lowest ask regardless of level ordering.
func bestLevel(levels []types.PriceLevel, highest bool) (float64, float64, error) {
	found := false
	var bestPrice, bestSize float64

	for _, level := range levels {
		price, err := strconv.ParseFloat(level.Price, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("parse price: %w", err)
		}
		size, err := strconv.ParseFloat(level.Size, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("parse size: %w", err)
		}
		if size <= 0 {
			continue
		}

		better := !found || (highest && price > bestPrice) || (!highest && price < bestPrice)
		if better {
			bestPrice, bestSize, found = price, size, true
		}
	}

	if !found {
		return 0, 0, errNoLevels
	}

	return bestPrice, bestSize, nil
}
