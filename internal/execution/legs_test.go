package execution

import (
	"errors"
	"testing"
	"time"

	"github.com/mselser95/polymarket-updown/internal/arbitrage"
	"github.com/mselser95/polymarket-updown/internal/ledger"
	"github.com/mselser95/polymarket-updown/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimitPrice(t *testing.T) {
	tests := []struct {
		name    string
		ask     float64
		side    ledger.Side
		epsilon int
		tick    float64
		want    float64
	}{
		{"on grid", 0.45, ledger.SideBuy, 0, 0.01, 0.45},
		{"epsilon added", 0.45, ledger.SideBuy, 2, 0.01, 0.47},
		{"off grid buy rounds up", 0.453, ledger.SideBuy, 0, 0.01, 0.46},
		{"off grid sell rounds down", 0.457, ledger.SideSell, 1, 0.01, 0.44},
		{"clamped below one", 0.985, ledger.SideBuy, 3, 0.01, 0.99},
		{"clamped above zero", 0.01, ledger.SideSell, 2, 0.01, 0.01},
		{"fine tick", 0.9612, ledger.SideBuy, 1, 0.001, 0.963},
		{"default tick", 0.30, ledger.SideBuy, 1, 0, 0.31},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, limitPrice(tt.ask, tt.side, tt.epsilon, tt.tick), 1e-9)
		})
	}
}

func TestShares(t *testing.T) {
	assert.InDelta(t, 16.66, shares(3.3333, 0.20), 1e-9)
	assert.InDelta(t, 0, shares(5, 0), 1e-9)
}

func testMarket() *types.Market {
	now := time.Now()
	return &types.Market{
		ID:         "m1",
		YesTokenID: "yes-token",
		NoTokenID:  "no-token",
		OpensAt:    now,
		ResolvesAt: now.Add(15 * time.Minute),
		TickSize:   0.01,
		MinSize:    5,
	}
}

func TestBuildLegs_ArbitrageEqualShares(t *testing.T) {
	opp := &arbitrage.Opportunity{
		Kind:      arbitrage.KindArbitrage,
		Market:    testMarket(),
		YesPrice:  0.40,
		NoPrice:   0.55,
		YesAmount: 4.2105,
		NoAmount:  5.7894,
		Pairs:     10.5263,
	}

	legs, err := buildLegs(opp, 1)
	require.NoError(t, err)
	require.Len(t, legs, 2)

	assert.Equal(t, types.OutcomeYes, legs[0].Outcome)
	assert.Equal(t, "yes-token", legs[0].TokenID)
	assert.InDelta(t, 0.41, legs[0].Price, 1e-9)
	assert.Equal(t, types.OutcomeNo, legs[1].Outcome)
	assert.InDelta(t, 0.56, legs[1].Price, 1e-9)
	assert.InDelta(t, 10.52, legs[0].Size, 1e-9)
	assert.Equal(t, legs[0].Size, legs[1].Size)
	for _, leg := range legs {
		assert.Equal(t, ledger.SideBuy, leg.Side)
	}
}

func TestBuildLegs_OneSided(t *testing.T) {
	opp := &arbitrage.Opportunity{
		Kind:     arbitrage.KindNearResolution,
		Market:   testMarket(),
		Side:     types.OutcomeNo,
		NoPrice:  0.95,
		NoAmount: 5,
	}
	opp.Market.MinSize = 1

	legs, err := buildLegs(opp, 0)
	require.NoError(t, err)
	require.Len(t, legs, 1)
	assert.Equal(t, "no-token", legs[0].TokenID)
	assert.InDelta(t, 5.26, legs[0].Size, 1e-9)
}

func TestBuildLegs_BelowMinimum(t *testing.T) {
	opp := &arbitrage.Opportunity{
		Kind:      arbitrage.KindDirectional,
		Market:    testMarket(),
		Side:      types.OutcomeYes,
		YesPrice:  0.5,
		YesAmount: 1,
	}

	_, err := buildLegs(opp, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errOrderTooSmall))
}

func TestRebalanceLeg(t *testing.T) {
	market := testMarket()
	market.MinSize = 1

	leg, err := rebalanceLeg(market, types.OutcomeNo, 10.52-7.5, 0.5, 1)
	require.NoError(t, err)
	assert.True(t, leg.Rebalance)
	assert.InDelta(t, 3.02, leg.Size, 1e-9)
	assert.InDelta(t, 0.51, leg.Price, 1e-9)

	_, err = rebalanceLeg(market, types.OutcomeNo, 0.3, 0.5, 1)
	assert.ErrorIs(t, err, errOrderTooSmall)
}

func TestCommittedProfit(t *testing.T) {
	arb := &arbitrage.Opportunity{Kind: arbitrage.KindArbitrage}
	legs := []*ledger.OrderLeg{
		{Outcome: types.OutcomeYes, Price: 0.50, Size: 10.2},
		{Outcome: types.OutcomeNo, Price: 0.52, Size: 10.2},
	}
	assert.InDelta(t, 10.2-10.2*1.02, committedProfit(arb, legs), 1e-9)

	legs[0].Price = 0.47
	assert.InDelta(t, 10.2*0.01, committedProfit(arb, legs), 1e-9)

	directional := &arbitrage.Opportunity{Kind: arbitrage.KindDirectional}
	one := []*ledger.OrderLeg{{Outcome: types.OutcomeYes, Price: 0.22, Size: 15}}
	assert.InDelta(t, 15*0.5-15*0.22, committedProfit(directional, one), 1e-9)

	near := &arbitrage.Opportunity{Kind: arbitrage.KindNearResolution}
	one[0].Price = 0.99
	assert.InDelta(t, 15*0.01, committedProfit(near, one), 1e-9)

	assert.Zero(t, committedProfit(arb, nil))
}
