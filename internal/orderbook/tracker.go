package orderbook

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mselser95/polymarket-updown/internal/arbitrage"
	"github.com/mselser95/polymarket-updown/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Subscriber is the part of the feed adapter the tracker drives.
type Subscriber interface {
	Subscribe(ctx context.Context, tokenIDs []string) error
	Unsubscribe(ctx context.Context, tokenIDs []string) error
}

// Evaluator turns a fresh book into at most one opportunity.
type Evaluator interface {
	Evaluate(book types.BookState, market *types.Market, now time.Time) (*arbitrage.Opportunity, bool)
}

// StateFunc observes (throttled) book state changes.
type StateFunc func(market *types.Market, book types.BookState)

// OpportunityFunc observes every detected opportunity.
type OpportunityFunc func(opp *arbitrage.Opportunity)

var (
	// ErrUnknownMarket is returned for operations on a market that is not tracked.
	ErrUnknownMarket = errors.New("market not tracked")
)

// Config holds tracker configuration.
type Config struct {
	Logger          *zap.Logger
	Subscriber      Subscriber
	Evaluator       Evaluator
	Deltas          <-chan *types.BookDelta
	StalenessWindow time.Duration
	Throttle        time.Duration
	Now             func() time.Time
}

type marketEntry struct {
	mu     sync.Mutex
	market *types.Market
	book   types.BookState
}

// Tracker owns the best bid/ask of every tracked market. One instance serves
// all markets so the token to market mapping has a single owner.
type Tracker struct {
	logger          *zap.Logger
	subscriber      Subscriber
	evaluator       Evaluator
	deltas          <-chan *types.BookDelta
	stalenessWindow time.Duration
	now             func() time.Time

	mu      sync.RWMutex
	markets map[string]*marketEntry // key: market id
	tokens  map[string]string       // token id -> market id

	obsMu    sync.RWMutex
	stateObs []StateFunc
	oppObs   []OpportunityFunc
	limiter  *throttle

	ctx context.Context
	wg  sync.WaitGroup
}

// New creates the order book tracker.
func New(cfg Config) *Tracker {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.StalenessWindow <= 0 {
		cfg.StalenessWindow = 10 * time.Second
	}

	t := &Tracker{
		logger:          cfg.Logger,
		subscriber:      cfg.Subscriber,
		evaluator:       cfg.Evaluator,
		deltas:          cfg.Deltas,
		stalenessWindow: cfg.StalenessWindow,
		now:             cfg.Now,
		markets:         make(map[string]*marketEntry),
		tokens:          make(map[string]string),
	}
	t.limiter = newThrottle(cfg.Throttle, t.emitState)

	return t
}

// OnStateChange registers a state observer. Delivery is throttled per market.
func (t *Tracker) OnStateChange(fn StateFunc) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.stateObs = append(t.stateObs, fn)
}

// OnOpportunity registers an opportunity observer. Delivery is never throttled.
func (t *Tracker) OnOpportunity(fn OpportunityFunc) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.oppObs = append(t.oppObs, fn)
}

// Track starts following a market. Tracking an already tracked market is a no-op.
func (t *Tracker) Track(ctx context.Context, market *types.Market) error {
	t.mu.Lock()
	if _, exists := t.markets[market.ID]; exists {
		t.mu.Unlock()
		return nil
	}

	t.markets[market.ID] = &marketEntry{
		market: market,
		book:   types.BookState{MarketID: market.ID, Stale: true},
	}
	t.tokens[market.YesTokenID] = market.ID
	t.tokens[market.NoTokenID] = market.ID
	MarketsTracked.Set(float64(len(t.markets)))
	t.mu.Unlock()

	if t.subscriber != nil {
		err := t.subscriber.Subscribe(ctx, []string{market.YesTokenID, market.NoTokenID})
		if err != nil {
			t.remove(market.ID)
			return fmt.Errorf("subscribe market %s: %w", market.Slug, err)
		}
	}

	t.logger.Info("market-tracked",
		zap.String("market-id", market.ID),
		zap.String("market-slug", market.Slug),
		zap.Time("resolves-at", market.ResolvesAt))

	return nil
}

// Untrack stops following a market and drops its book.
func (t *Tracker) Untrack(ctx context.Context, marketID string) error {
	entry := t.remove(marketID)
	if entry == nil {
		return ErrUnknownMarket
	}

	if t.subscriber != nil {
		err := t.subscriber.Unsubscribe(ctx, []string{entry.market.YesTokenID, entry.market.NoTokenID})
		if err != nil {
			return fmt.Errorf("unsubscribe market %s: %w", entry.market.Slug, err)
		}
	}

	t.logger.Info("market-untracked",
		zap.String("market-id", marketID),
		zap.String("market-slug", entry.market.Slug))

	return nil
}

func (t *Tracker) remove(marketID string) *marketEntry {
	t.mu.Lock()
	entry, ok := t.markets[marketID]
	if !ok {
		t.mu.Unlock()
		return nil
	}
	delete(t.markets, marketID)
	delete(t.tokens, entry.market.YesTokenID)
	delete(t.tokens, entry.market.NoTokenID)
	MarketsTracked.Set(float64(len(t.markets)))
	t.mu.Unlock()

	t.limiter.forget(marketID)
	return entry
}

// Start consumes the delta channel and runs the staleness sweep.
func (t *Tracker) Start(ctx context.Context) error {
	t.ctx = ctx
	t.logger.Info("orderbook-tracker-starting",
		zap.Duration("staleness-window", t.stalenessWindow))

	t.wg.Add(2)
	go t.consume()
	go t.sweepLoop()

	return nil
}

func (t *Tracker) consume() {
	defer t.wg.Done()

	for {
		select {
		case <-t.ctx.Done():
			return
		case delta, ok := <-t.deltas:
			if !ok {
				t.logger.Info("delta-channel-closed")
				return
			}
			t.Apply(delta)
		}
	}
}

// Apply applies one delta synchronously. Opportunity observers run before the
// market lock is released, so they see deltas in receipt order.
func (t *Tracker) Apply(delta *types.BookDelta) {
	timer := prometheus.NewTimer(UpdateProcessingDuration)
	defer timer.ObserveDuration()

	t.mu.RLock()
	marketID, ok := t.tokens[delta.TokenID]
	var entry *marketEntry
	if ok {
		entry = t.markets[marketID]
	}
	t.mu.RUnlock()

	if entry == nil {
		UpdatesIgnoredTotal.Inc()
		return
	}

	outcome, _ := entry.market.OutcomeOf(delta.TokenID)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	applyDelta(&entry.book, outcome, delta)
	entry.book.UpdatedAt = delta.ReceivedAt
	if entry.book.UpdatedAt.IsZero() {
		entry.book.UpdatedAt = t.now()
	}
	entry.book.Stale = false

	if delta.Kind == types.DeltaSnapshot {
		UpdatesTotal.WithLabelValues("book").Inc()
	} else {
		UpdatesTotal.WithLabelValues("price_change").Inc()
	}

	book := entry.book

	if t.evaluator != nil && book.Complete() {
		opp, found := t.evaluator.Evaluate(book, entry.market, t.now())
		if found {
			t.emitOpportunity(opp)
		}
	}

	t.limiter.offer(entry.market, book)
}

func applyDelta(book *types.BookState, outcome types.Outcome, delta *types.BookDelta) {
	bid, bidSize, ask, askSize := &book.YesBid, &book.YesBidSize, &book.YesAsk, &book.YesAskSize
	if outcome == types.OutcomeNo {
		bid, bidSize, ask, askSize = &book.NoBid, &book.NoBidSize, &book.NoAsk, &book.NoAskSize
	}

	if delta.Kind == types.DeltaSnapshot {
		*bid, *bidSize, *ask, *askSize = 0, 0, 0, 0
	}

	if delta.HasBid {
		*bid = delta.BestBid
		// price_change carries no size for the best level; keep the last known one
		if delta.BestBidSize > 0 {
			*bidSize = delta.BestBidSize
		}
	}
	if delta.HasAsk {
		*ask = delta.BestAsk
		if delta.BestAskSize > 0 {
			*askSize = delta.BestAskSize
		}
	}
}

func (t *Tracker) emitOpportunity(opp *arbitrage.Opportunity) {
	t.obsMu.RLock()
	observers := t.oppObs
	t.obsMu.RUnlock()

	for _, fn := range observers {
		fn(opp)
	}
}

func (t *Tracker) emitState(market *types.Market, book types.BookState) {
	t.obsMu.RLock()
	observers := t.stateObs
	t.obsMu.RUnlock()

	for _, fn := range observers {
		fn(market, book)
	}
}

func (t *Tracker) sweepLoop() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.stalenessWindow / 4)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			t.Sweep()
		}
	}
}

// Sweep flags every market whose last delta is older than the staleness window.
func (t *Tracker) Sweep() {
	now := t.now()
	for _, entry := range t.entries() {
		entry.mu.Lock()
		expired := !entry.book.Stale && now.Sub(entry.book.UpdatedAt) > t.stalenessWindow
		if expired {
			entry.book.Stale = true
		}
		book := entry.book
		entry.mu.Unlock()

		if expired {
			StaleMarkingsTotal.WithLabelValues("timeout").Inc()
			t.logger.Debug("market-marked-stale",
				zap.String("market-slug", entry.market.Slug),
				zap.Time("last-update", book.UpdatedAt))
			t.limiter.offer(entry.market, book)
		}
	}
}

// MarkStale flags the markets owning the given tokens, e.g. after a feed
// discontinuity. The next delta for a market clears the flag.
func (t *Tracker) MarkStale(tokenIDs ...string) {
	seen := make(map[string]bool)

	t.mu.RLock()
	entries := make([]*marketEntry, 0, len(tokenIDs))
	for _, tokenID := range tokenIDs {
		marketID, ok := t.tokens[tokenID]
		if !ok || seen[marketID] {
			continue
		}
		seen[marketID] = true
		entries = append(entries, t.markets[marketID])
	}
	t.mu.RUnlock()

	t.markStale(entries)
}

// MarkAllStale flags every tracked market.
func (t *Tracker) MarkAllStale() {
	t.markStale(t.entries())
}

func (t *Tracker) markStale(entries []*marketEntry) {
	for _, entry := range entries {
		entry.mu.Lock()
		wasStale := entry.book.Stale
		entry.book.Stale = true
		book := entry.book
		entry.mu.Unlock()

		if !wasStale {
			StaleMarkingsTotal.WithLabelValues("discontinuity").Inc()
			t.limiter.offer(entry.market, book)
		}
	}
}

func (t *Tracker) entries() []*marketEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entries := make([]*marketEntry, 0, len(t.markets))
	for _, entry := range t.markets {
		entries = append(entries, entry)
	}
	return entries
}

// Snapshot returns a copy of a market's book state.
func (t *Tracker) Snapshot(marketID string) (types.BookState, bool) {
	t.mu.RLock()
	entry, ok := t.markets[marketID]
	t.mu.RUnlock()

	if !ok {
		return types.BookState{}, false
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.book, true
}

// Snapshots returns copies of every tracked book.
func (t *Tracker) Snapshots() []types.BookState {
	entries := t.entries()
	books := make([]types.BookState, 0, len(entries))
	for _, entry := range entries {
		entry.mu.Lock()
		books = append(books, entry.book)
		entry.mu.Unlock()
	}
	return books
}

// Market returns the tracked market with the given id.
func (t *Tracker) Market(marketID string) (*types.Market, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entry, ok := t.markets[marketID]
	if !ok {
		return nil, false
	}
	return entry.market, true
}

// Markets returns every tracked market.
func (t *Tracker) Markets() []*types.Market {
	entries := t.entries()
	markets := make([]*types.Market, 0, len(entries))
	for _, entry := range entries {
		markets = append(markets, entry.market)
	}
	return markets
}

// Close waits for the consumer and sweep loops and stops pending flushes.
func (t *Tracker) Close() error {
	t.logger.Info("closing-orderbook-tracker")
	t.wg.Wait()
	t.limiter.stop()
	t.logger.Info("orderbook-tracker-closed")
	return nil
}
