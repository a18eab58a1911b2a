package circuitbreaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestBreaker_AllowWhenClosed(t *testing.T) {
	b := NewBreaker(zaptest.NewLogger(t))

	require.NoError(t, b.Allow("m1"))
	status := b.Status()
	assert.Nil(t, status.Global)
	assert.Empty(t, status.Markets)
}

func TestBreaker_TripMarketIsolatesMarket(t *testing.T) {
	b := NewBreaker(zaptest.NewLogger(t))

	b.TripMarket("m1", "hedge", "hedge ratio below critical", 0.5)

	assert.ErrorIs(t, b.Allow("m1"), ErrMarketOpen)
	assert.ErrorIs(t, b.Allow("m1"), ErrOpen)
	assert.NoError(t, b.Allow("m2"))

	status := b.Status()
	require.Len(t, status.Markets, 1)
	assert.Equal(t, "m1", status.Markets[0].MarketID)
	assert.InDelta(t, 0.5, status.Markets[0].HedgeRatio, 1e-9)
}

func TestBreaker_TripGlobalBlocksEveryMarket(t *testing.T) {
	b := NewBreaker(zaptest.NewLogger(t))

	b.TripGlobal("hedge", "critical hedge failure")

	assert.ErrorIs(t, b.Allow("m1"), ErrGlobalOpen)
	assert.ErrorIs(t, b.Allow("m2"), ErrGlobalOpen)
	require.NotNil(t, b.Status().Global)
}

func TestBreaker_StaysOpenUntilReset(t *testing.T) {
	b := NewBreaker(zaptest.NewLogger(t))
	b.TripMarket("m1", "hedge", "low", 0.4)

	time.Sleep(5 * time.Millisecond)
	assert.Error(t, b.Allow("m1"))

	assert.True(t, b.ResetMarket("m1"))
	assert.NoError(t, b.Allow("m1"))
	assert.False(t, b.ResetMarket("m1"))
}

func TestBreaker_ResetGlobalHonoursSource(t *testing.T) {
	b := NewBreaker(zaptest.NewLogger(t))
	b.TripGlobal("hedge", "critical")

	assert.False(t, b.ResetGlobal(SourceBalance))
	assert.ErrorIs(t, b.Allow("m1"), ErrGlobalOpen)

	assert.True(t, b.ResetGlobal(""))
	assert.NoError(t, b.Allow("m1"))
}

func TestBreaker_OnTripFiresOncePerTrip(t *testing.T) {
	b := NewBreaker(zaptest.NewLogger(t))

	var trips []Trip
	b.OnTrip(func(trip Trip) { trips = append(trips, trip) })

	b.TripMarket("m1", "hedge", "low", 0.4)
	b.TripMarket("m1", "hedge", "low again", 0.3)
	b.TripGlobal("hedge", "critical")
	b.TripGlobal("hedge", "critical again")

	require.Len(t, trips, 2)
	assert.Equal(t, ScopeMarket, trips[0].Scope)
	assert.Equal(t, "low", trips[0].Reason)
	assert.Equal(t, ScopeGlobal, trips[1].Scope)
}

func TestBreaker_ResetAll(t *testing.T) {
	b := NewBreaker(zaptest.NewLogger(t))
	b.TripMarket("m1", "hedge", "low", 0.4)
	b.TripMarket("m2", "hedge", "low", 0.4)
	b.TripGlobal("operator", "halt")

	b.ResetAll()

	status := b.Status()
	assert.Nil(t, status.Global)
	assert.Empty(t, status.Markets)
	assert.NoError(t, b.Allow("m1"))
}
