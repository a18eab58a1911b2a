package websocket

import (
	"testing"
	"time"

	"github.com/mselser95/polymarket-updown/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_BookSnapshot(t *testing.T) {
	frame := []byte(`[{
		"event_type": "book",
		"asset_id": "yes-token",
		"market": "0xabc",
		"timestamp": "1757908892351",
		"hash": "h",
		"bids": [{"price": "0.44", "size": "10"}, {"price": "0.47", "size": "25"}, {"price": "0.48", "size": "0"}],
		"asks": [{"price": "0.55", "size": "12"}, {"price": "0.51", "size": "30"}]
	}]`)
	now := time.Unix(1_760_000_000, 0)

	deltas, err := normalize(frame, now)
	require.NoError(t, err)
	require.Len(t, deltas, 1)

	d := deltas[0]
	assert.Equal(t, types.DeltaSnapshot, d.Kind)
	assert.Equal(t, "yes-token", d.TokenID)
	assert.Equal(t, "0xabc", d.MarketID)
	assert.True(t, d.HasBid)
	assert.InDelta(t, 0.47, d.BestBid, 1e-9)
	assert.InDelta(t, 25, d.BestBidSize, 1e-9)
	assert.True(t, d.HasAsk)
	assert.InDelta(t, 0.51, d.BestAsk, 1e-9)
	assert.InDelta(t, 30, d.BestAskSize, 1e-9)
	assert.Equal(t, now, d.ReceivedAt)
}

func TestNormalize_EmptySideLeavesFlagUnset(t *testing.T) {
	frame := []byte(`{"event_type": "book", "asset_id": "t", "market": "m", "timestamp": "1", "bids": [], "asks": [{"price": "0.6", "size": "5"}]}`)

	deltas, err := normalize(frame, time.Now())
	require.NoError(t, err)
	require.Len(t, deltas, 1)
	assert.False(t, deltas[0].HasBid)
	assert.True(t, deltas[0].HasAsk)
}

func TestNormalize_PriceChangePreservesOrder(t *testing.T) {
	frame := []byte(`{
		"event_type": "price_change",
		"market": "0xabc",
		"timestamp": "1757908892351",
		"price_changes": [
			{"asset_id": "yes", "price": "0.5", "size": "200", "side": "BUY", "best_bid": "0.5", "best_ask": "0.52"},
			{"asset_id": "no", "price": "0.5", "size": "200", "side": "SELL", "best_bid": "0.47", "best_ask": "0.5"}
		]
	}`)

	deltas, err := normalize(frame, time.Now())
	require.NoError(t, err)
	require.Len(t, deltas, 2)

	assert.Equal(t, "yes", deltas[0].TokenID)
	assert.Equal(t, types.DeltaChange, deltas[0].Kind)
	assert.InDelta(t, 0.52, deltas[0].BestAsk, 1e-9)
	assert.Equal(t, "no", deltas[1].TokenID)
	assert.InDelta(t, 0.47, deltas[1].BestBid, 1e-9)
}

func TestNormalize_IgnoresOtherEvents(t *testing.T) {
	deltas, err := normalize([]byte(`{"event_type": "last_trade_price", "asset_id": "x"}`), time.Now())
	require.NoError(t, err)
	assert.Empty(t, deltas)

	deltas, err = normalize([]byte("  "), time.Now())
	require.NoError(t, err)
	assert.Empty(t, deltas)
}

func TestNormalize_InvalidFrame(t *testing.T) {
	_, err := normalize([]byte("PONG"), time.Now())
	assert.Error(t, err)
}

func TestBestLevel(t *testing.T) {
	levels := []types.PriceLevel{{Price: "0.30", Size: "1"}, {Price: "0.35", Size: "2"}, {Price: "0.20", Size: "3"}}

	price, size, err := bestLevel(levels, true)
	require.NoError(t, err)
	assert.InDelta(t, 0.35, price, 1e-9)
	assert.InDelta(t, 2, size, 1e-9)

	price, _, err = bestLevel(levels, false)
	require.NoError(t, err)
	assert.InDelta(t, 0.20, price, 1e-9)

	_, _, err = bestLevel(nil, true)
	assert.ErrorIs(t, err, errNoLevels)

	_, _, err = bestLevel([]types.PriceLevel{{Price: "x", Size: "1"}}, true)
	assert.Error(t, err)
}
