package rotation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mselser95/polymarket-updown/pkg/cache"
	"github.com/mselser95/polymarket-updown/pkg/types"
	"go.uber.org/zap"
)

const (
	defaultTickSize = 0.01
	defaultMinSize  = 5
)

// Lookup resolves a slug to its Gamma market.
type Lookup interface {
	MarketBySlug(ctx context.Context, slug string) (*types.GammaMarket, error)
}

// Tracker attaches and detaches markets from the order book.
type Tracker interface {
	Track(ctx context.Context, market *types.Market) error
	Untrack(ctx context.Context, marketID string) error
}

// DetachFunc observes a market leaving rotation. winner is empty when the
// resolution was not yet published.
type DetachFunc func(ctx context.Context, market *types.Market, winner types.Outcome)

// Config holds rotator configuration.
type Config struct {
	Logger     *zap.Logger
	Lookup     Lookup
	Tracker    Tracker
	Cache      *cache.Cache[*types.Market]
	Assets     []string
	Period     time.Duration
	AttachLead time.Duration // attach the next window this long before it opens
	Grace      time.Duration // keep a window this long after it resolves
	CacheTTL   time.Duration
}

// Rotator keeps the current (and, near a boundary, the next) window of every
// asset attached, and detaches windows once they are past resolution plus grace.
type Rotator struct {
	cfg    Config
	logger *zap.Logger

	mu       sync.Mutex
	attached map[string]*types.Market // slug -> market
	onDetach []DetachFunc
}

// New creates a rotator.
func New(cfg Config) (*Rotator, error) {
	switch {
	case cfg.Logger == nil:
		return nil, errors.New("logger cannot be nil")
	case cfg.Lookup == nil:
		return nil, errors.New("lookup cannot be nil")
	case cfg.Tracker == nil:
		return nil, errors.New("tracker cannot be nil")
	case cfg.Cache == nil:
		return nil, errors.New("cache cannot be nil")
	case len(cfg.Assets) == 0:
		return nil, errors.New("at least one asset is required")
	}
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = cfg.Period
	}

	return &Rotator{
		cfg:      cfg,
		logger:   cfg.Logger,
		attached: make(map[string]*types.Market),
	}, nil
}

// OnDetach registers a detach observer.
func (r *Rotator) OnDetach(fn DetachFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onDetach = append(r.onDetach, fn)
}

// Sync attaches due windows and detaches expired ones. Lookup failures for a
// window that is not listed yet are not errors; it is retried on the next run.
func (r *Rotator) Sync(ctx context.Context, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error

	for _, asset := range r.cfg.Assets {
		current := SlotStart(now, r.cfg.Period)
		slots := []time.Time{current}
		next := current.Add(r.cfg.Period)
		if next.Sub(now) <= r.cfg.AttachLead {
			slots = append(slots, next)
		}

		for _, slot := range slots {
			err := r.attach(ctx, asset, slot, now)
			if err != nil && !errors.Is(err, ErrMarketNotFound) {
				errs = append(errs, err)
			}
		}
	}

	for slug, market := range r.attached {
		if !now.After(market.ResolvesAt.Add(r.cfg.Grace)) {
			continue
		}
		err := r.detach(ctx, slug, market)
		if err != nil {
			errs = append(errs, err)
		}
	}

	AttachedMarkets.Set(float64(len(r.attached)))
	return errors.Join(errs...)
}

// attach must be called with r.mu held.
func (r *Rotator) attach(ctx context.Context, asset string, slot, now time.Time) error {
	slug := Slug(asset, slot)
	if _, ok := r.attached[slug]; ok {
		return nil
	}

	market, err := r.market(ctx, asset, slug, slot)
	if err != nil {
		return err
	}
	if now.After(market.ResolvesAt.Add(r.cfg.Grace)) {
		return nil
	}

	err = r.cfg.Tracker.Track(ctx, market)
	if err != nil {
		return fmt.Errorf("track %s: %w", slug, err)
	}

	r.attached[slug] = market
	AttachTotal.WithLabelValues(asset).Inc()

	r.logger.Info("market-attached",
		zap.String("market-slug", slug),
		zap.String("market-id", market.ID),
		zap.Time("opens-at", market.OpensAt),
		zap.Time("resolves-at", market.ResolvesAt))

	return nil
}

// detach must be called with r.mu held. Callbacks run with the lock held, so
// they must not call back into the rotator.
func (r *Rotator) detach(ctx context.Context, slug string, market *types.Market) error {
	err := r.cfg.Tracker.Untrack(ctx, market.ID)
	if err != nil {
		return fmt.Errorf("untrack %s: %w", slug, err)
	}

	delete(r.attached, slug)
	r.cfg.Cache.Delete(slug)
	DetachTotal.WithLabelValues(market.Asset).Inc()

	winner := r.winner(ctx, slug)

	r.logger.Info("market-detached",
		zap.String("market-slug", slug),
		zap.String("market-id", market.ID),
		zap.String("winner", string(winner)))

	for _, fn := range r.onDetach {
		fn(ctx, market, winner)
	}
	return nil
}

// winner fetches the resolved outcome, bypassing the cache.
func (r *Rotator) winner(ctx context.Context, slug string) types.Outcome {
	gm, err := r.cfg.Lookup.MarketBySlug(ctx, slug)
	if err != nil {
		r.logger.Warn("winner-lookup-failed", zap.String("market-slug", slug), zap.Error(err))
		return ""
	}
	return gm.ResolvedOutcome
}

func (r *Rotator) market(ctx context.Context, asset, slug string, slot time.Time) (*types.Market, error) {
	if cached, ok := r.cfg.Cache.Get(slug); ok {
		return cached, nil
	}

	gm, err := r.cfg.Lookup.MarketBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", slug, err)
	}

	market, err := toMarket(asset, slot, r.cfg.Period, gm)
	if err != nil {
		return nil, err
	}

	r.cfg.Cache.Set(slug, market, r.cfg.CacheTTL)
	return market, nil
}

func toMarket(asset string, slot time.Time, period time.Duration, gm *types.GammaMarket) (*types.Market, error) {
	yes := gm.TokenByOutcome(types.OutcomeYes)
	no := gm.TokenByOutcome(types.OutcomeNo)
	if yes == nil || no == nil {
		return nil, fmt.Errorf("market %s: missing up/down tokens", gm.Slug)
	}

	resolvesAt := gm.EndDate
	if resolvesAt.IsZero() {
		resolvesAt = slot.Add(period)
	}
	tick := gm.TickSize
	if tick <= 0 {
		tick = defaultTickSize
	}
	minSize := gm.MinSize
	if minSize <= 0 {
		minSize = defaultMinSize
	}

	return &types.Market{
		ID:         gm.ID,
		Slug:       gm.Slug,
		Asset:      asset,
		YesTokenID: yes.TokenID,
		NoTokenID:  no.TokenID,
		OpensAt:    slot,
		ResolvesAt: resolvesAt,
		TickSize:   tick,
		MinSize:    minSize,
	}, nil
}

// Attached returns the attached markets ordered by resolution time.
func (r *Rotator) Attached() []*types.Market {
	r.mu.Lock()
	defer r.mu.Unlock()

	markets := make([]*types.Market, 0, len(r.attached))
	for _, m := range r.attached {
		markets = append(markets, m)
	}
	sort.Slice(markets, func(i, j int) bool {
		return markets[i].ResolvesAt.Before(markets[j].ResolvesAt)
	})
	return markets
}
