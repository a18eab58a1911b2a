package execution

import (
	"errors"
	"fmt"
	"math"

	"github.com/mselser95/polymarket-updown/internal/arbitrage"
	"github.com/mselser95/polymarket-updown/internal/ledger"
	"github.com/mselser95/polymarket-updown/pkg/types"
	"github.com/shopspring/decimal"
)

const defaultTickSize = 0.01

var errOrderTooSmall = errors.New("order below minimum size")

// limitPrice moves the ask epsilon ticks through the book, rounds onto the tick
// grid away from the touch and clamps into the open interval (0, 1).
func limitPrice(ask float64, side ledger.Side, epsilonTicks int, tickSize float64) float64 {
	if tickSize <= 0 {
		tickSize = defaultTickSize
	}
	tick := decimal.NewFromFloat(tickSize)
	offset := tick.Mul(decimal.NewFromInt(int64(epsilonTicks)))

	price := decimal.NewFromFloat(ask)
	steps := price.Div(tick)
	if side == ledger.SideSell {
		price = steps.Floor().Mul(tick).Sub(offset)
	} else {
		price = steps.Ceil().Mul(tick).Add(offset)
	}

	lo := tick
	hi := decimal.NewFromInt(1).Sub(tick)
	if price.LessThan(lo) {
		price = lo
	}
	if price.GreaterThan(hi) {
		price = hi
	}
	return price.InexactFloat64()
}

// shares converts a USDC amount at a price into a share count truncated to
// two decimals.
func shares(amount, price float64) float64 {
	if price <= 0 {
		return 0
	}
	return decimal.NewFromFloat(amount).Div(decimal.NewFromFloat(price)).Truncate(2).InexactFloat64()
}

// buildLegs creates the unsigned BUY legs an opportunity needs. Paired trades
// buy the same share count on both sides.
func buildLegs(opp *arbitrage.Opportunity, epsilonTicks int) ([]*ledger.OrderLeg, error) {
	market := opp.Market
	minSize := market.MinSize

	var pairs float64
	if opp.Kind.Paired() {
		pairs = decimal.NewFromFloat(opp.Pairs).Truncate(2).InexactFloat64()
	}

	legs := make([]*ledger.OrderLeg, 0, 2)
	for _, l := range opp.Legs() {
		price := limitPrice(l.Price, ledger.SideBuy, epsilonTicks, market.TickSize)
		size := pairs
		if !opp.Kind.Paired() {
			size = shares(l.Amount, price)
		}
		if size <= 0 || size < minSize {
			return nil, fmt.Errorf("%w: %s %.2f < %.2f", errOrderTooSmall, l.Outcome, size, minSize)
		}

		legs = append(legs, &ledger.OrderLeg{
			Side:    ledger.SideBuy,
			Outcome: l.Outcome,
			TokenID: market.TokenID(l.Outcome),
			Price:   price,
			Size:    size,
		})
	}

	if len(legs) == 0 {
		return nil, fmt.Errorf("%w: no legs", errOrderTooSmall)
	}
	return legs, nil
}

// committedProfit values the legs at their signed limit prices. Matched pairs
// redeem at one; a directional share is worth the neutral 0.5 prior.
func committedProfit(opp *arbitrage.Opportunity, legs []*ledger.OrderLeg) float64 {
	cost := 0.0
	size := math.Inf(1)
	for _, leg := range legs {
		cost += leg.Size * leg.Price
		size = math.Min(size, leg.Size)
	}
	if len(legs) == 0 {
		return 0
	}

	payout := size
	if opp.Kind == arbitrage.KindDirectional {
		payout *= 0.5
	}
	return payout - cost
}

// rebalanceLeg builds the BUY that tops up the lagging outcome.
func rebalanceLeg(market *types.Market, outcome types.Outcome, deficit, ask float64, epsilonTicks int) (*ledger.OrderLeg, error) {
	size := decimal.NewFromFloat(deficit).Round(2).InexactFloat64()
	if size <= 0 || size < market.MinSize {
		return nil, fmt.Errorf("%w: rebalance %.2f < %.2f", errOrderTooSmall, size, market.MinSize)
	}

	return &ledger.OrderLeg{
		Side:      ledger.SideBuy,
		Outcome:   outcome,
		TokenID:   market.TokenID(outcome),
		Price:     limitPrice(ask, ledger.SideBuy, epsilonTicks, market.TickSize),
		Size:      size,
		Rebalance: true,
	}, nil
}
