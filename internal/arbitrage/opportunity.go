package arbitrage

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mselser95/polymarket-updown/pkg/types"
)

// Opportunity is a detected, priced trading condition on one market.
// Amounts are in USDC; prices are the asks the legs will pay.
type Opportunity struct {
	ID             string
	Kind           Kind
	Market         *types.Market
	YesPrice       float64
	NoPrice        float64
	YesAmount      float64
	NoAmount       float64
	Pairs          float64 // arbitrage only: matched YES+NO share pairs
	Side           types.Outcome
	ExpectedProfit float64
	DetectedAt     time.Time
}

// Leg is one side an opportunity wants to buy.
type Leg struct {
	Outcome types.Outcome
	Price   float64
	Amount  float64
}

// Legs returns the buys the opportunity needs, YES first.
func (o *Opportunity) Legs() []Leg {
	if o.Kind == KindArbitrage {
		return []Leg{
			{Outcome: types.OutcomeYes, Price: o.YesPrice, Amount: o.YesAmount},
			{Outcome: types.OutcomeNo, Price: o.NoPrice, Amount: o.NoAmount},
		}
	}

	if o.Side == types.OutcomeNo {
		return []Leg{{Outcome: types.OutcomeNo, Price: o.NoPrice, Amount: o.NoAmount}}
	}
	return []Leg{{Outcome: types.OutcomeYes, Price: o.YesPrice, Amount: o.YesAmount}}
}

// Cost is the total USDC the opportunity spends.
func (o *Opportunity) Cost() float64 {
	return o.YesAmount + o.NoAmount
}

// Action returns the telemetry action label for one leg of the opportunity.
func (o *Opportunity) Action(outcome types.Outcome) string {
	switch o.Kind {
	case KindArbitrage:
		return "ARB_" + string(outcome)
	case KindDirectional:
		return "DIR_" + string(outcome)
	case KindNearResolution:
		return "NEAR_RES"
	default:
		return "UNKNOWN"
	}
}

// String returns a human-readable representation of the opportunity.
func (o *Opportunity) String() string {
	id := o.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf(
		"Opportunity[%s] %s Market=%s YES=%.4f/$%.2f NO=%.4f/$%.2f Profit=$%.4f",
		id,
		o.Kind,
		o.Market.Slug,
		o.YesPrice,
		o.YesAmount,
		o.NoPrice,
		o.NoAmount,
		o.ExpectedProfit,
	)
}

func newOpportunity(kind Kind, market *types.Market, now time.Time) *Opportunity {
	return &Opportunity{
		ID:         uuid.New().String(),
		Kind:       kind,
		Market:     market,
		DetectedAt: now,
	}
}
