package arbitrage

import (
	"time"

	"github.com/mselser95/polymarket-updown/pkg/types"
)

// Config holds detector thresholds and sizing.
type Config struct {
	SpreadThreshold      float64       // min 1-(yes_ask+no_ask) for arbitrage
	Budget               float64       // USDC per arbitrage trade
	EntryThreshold       float64       // directional: cheaper ask must be below
	MinTimeFraction      float64       // directional: remaining/window must exceed
	DirectionalFraction  float64       // directional size as a fraction of Budget
	NearResolutionWindow time.Duration // near-resolution: time to resolution upper bound
	BandLow              float64
	BandHigh             float64
	NearResolutionSize   float64 // USDC per near-resolution trade
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		SpreadThreshold:      0.02,
		Budget:               10,
		EntryThreshold:       0.25,
		MinTimeFraction:      0.80,
		DirectionalFraction:  1.0 / 3.0,
		NearResolutionWindow: 60 * time.Second,
		BandLow:              0.94,
		BandHigh:             0.975,
		NearResolutionSize:   5,
	}
}

// Detector evaluates book states against the three opportunity rules.
// It holds no state besides its configuration and is safe for concurrent use.
type Detector struct {
	config Config
}

// New creates a new detector.
func New(cfg Config) *Detector {
	return &Detector{config: cfg}
}

// Config returns the detector configuration.
func (d *Detector) Config() Config {
	return d.config
}

// Evaluate returns at most one opportunity for the book, honouring the fixed
// priority arbitrage, then directional, then near-resolution.
func (d *Detector) Evaluate(book types.BookState, market *types.Market, now time.Time) (*Opportunity, bool) {
	if book.Stale || market == nil {
		return nil, false
	}

	opp, ok := d.arbitrage(book, market, now)
	if !ok {
		opp, ok = d.directional(book, market, now)
	}
	if !ok {
		opp, ok = d.nearResolution(book, market, now)
	}
	if !ok {
		return nil, false
	}

	kind := opp.Kind.String()
	OpportunitiesDetectedTotal.WithLabelValues(kind).Inc()
	OpportunityExpectedProfit.WithLabelValues(kind).Observe(opp.ExpectedProfit)

	return opp, true
}

func (d *Detector) arbitrage(book types.BookState, market *types.Market, now time.Time) (*Opportunity, bool) {
	if !validAsk(book.YesAsk) || !validAsk(book.NoAsk) {
		return nil, false
	}

	sum := book.YesAsk + book.NoAsk
	spread := 1.0 - sum
	OpportunitySpread.Observe(spread)

	// tolerate float noise at the exact threshold
	if spread < d.config.SpreadThreshold-1e-9 {
		return nil, false
	}

	opp := newOpportunity(KindArbitrage, market, now)
	d.priceArbitrage(opp, book)

	return opp, opp.ExpectedProfit > 0
}

// priceArbitrage sizes equal shares on both sides: redemption pays one unit per
// matched pair, so the budget buys budget/(yes+no) pairs.
func (d *Detector) priceArbitrage(opp *Opportunity, book types.BookState) {
	sum := book.YesAsk + book.NoAsk
	pairs := d.config.Budget / sum

	opp.YesPrice = book.YesAsk
	opp.NoPrice = book.NoAsk
	opp.Pairs = pairs
	opp.YesAmount = pairs * book.YesAsk
	opp.NoAmount = pairs * book.NoAsk
	opp.ExpectedProfit = pairs - d.config.Budget
}

func (d *Detector) directional(book types.BookState, market *types.Market, now time.Time) (*Opportunity, bool) {
	side := types.OutcomeYes
	ask := book.YesAsk
	if validAsk(book.NoAsk) && (!validAsk(ask) || book.NoAsk < ask) {
		side = types.OutcomeNo
		ask = book.NoAsk
	}

	if !validAsk(ask) || ask >= d.config.EntryThreshold {
		return nil, false
	}
	if market.RemainingFraction(now) <= d.config.MinTimeFraction {
		return nil, false
	}

	opp := newOpportunity(KindDirectional, market, now)
	opp.Side = side
	d.priceOneSided(opp, ask, d.config.Budget*d.config.DirectionalFraction)

	return opp, opp.ExpectedProfit > 0
}

func (d *Detector) nearResolution(book types.BookState, market *types.Market, now time.Time) (*Opportunity, bool) {
	ttr := market.ResolvesAt.Sub(now)
	if ttr <= 0 || ttr > d.config.NearResolutionWindow {
		return nil, false
	}

	var side types.Outcome
	best := 0.0
	for _, outcome := range []types.Outcome{types.OutcomeYes, types.OutcomeNo} {
		ask := book.Ask(outcome)
		if ask < d.config.BandLow || ask > d.config.BandHigh {
			continue
		}
		if ask > best {
			side, best = outcome, ask
		}
	}

	if best == 0 {
		return nil, false
	}

	opp := newOpportunity(KindNearResolution, market, now)
	opp.Side = side
	d.priceOneSided(opp, best, d.config.NearResolutionSize)

	return opp, opp.ExpectedProfit > 0
}

func (d *Detector) priceOneSided(opp *Opportunity, ask, amount float64) {
	if opp.Side == types.OutcomeNo {
		opp.NoPrice, opp.NoAmount = ask, amount
	} else {
		opp.YesPrice, opp.YesAmount = ask, amount
	}

	switch opp.Kind {
	case KindDirectional:
		// payout at a neutral 50% prior minus cost
		opp.ExpectedProfit = amount * (0.5/ask - 1)
	default:
		opp.ExpectedProfit = amount * (1/ask - 1)
	}
}

// Reprice recomputes an opportunity against a newer book without applying the
// detection thresholds. The result may carry a non-positive expected profit.
func (d *Detector) Reprice(opp *Opportunity, book types.BookState) (*Opportunity, bool) {
	repriced := *opp

	switch opp.Kind {
	case KindArbitrage:
		if !validAsk(book.YesAsk) || !validAsk(book.NoAsk) {
			return nil, false
		}
		d.priceArbitrage(&repriced, book)
	case KindDirectional, KindNearResolution:
		ask := book.Ask(opp.Side)
		if !validAsk(ask) {
			return nil, false
		}
		amount := opp.YesAmount
		if opp.Side == types.OutcomeNo {
			amount = opp.NoAmount
		}
		d.priceOneSided(&repriced, ask, amount)
	default:
		return nil, false
	}

	return &repriced, true
}

func validAsk(ask float64) bool {
	return ask > 0 && ask < 1
}
