package execution

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/mselser95/polymarket-updown/internal/arbitrage"
	"github.com/mselser95/polymarket-updown/internal/circuitbreaker"
	"github.com/mselser95/polymarket-updown/internal/ledger"
	"github.com/mselser95/polymarket-updown/internal/storage"
	"github.com/mselser95/polymarket-updown/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type scripted struct {
	err    error
	status ledger.LegStatus
	filled float64
}

// fakeExchange fills every order in full unless a token has scripted outcomes.
type fakeExchange struct {
	mu      sync.Mutex
	signErr map[string]error
	script  map[string][]scripted
	orders  map[string]*OrderState
	seq     int

	signCalls   int
	submitCalls int
	cancelCalls int
}

func newFakeExchange() *fakeExchange {
	return &fakeExchange{
		signErr: make(map[string]error),
		script:  make(map[string][]scripted),
		orders:  make(map[string]*OrderState),
	}
}

func (f *fakeExchange) on(tokenID string, outcomes ...scripted) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script[tokenID] = append(f.script[tokenID], outcomes...)
}

func (f *fakeExchange) Sign(_ context.Context, req OrderRequest) (*SignedOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.signCalls++
	if err := f.signErr[req.TokenID]; err != nil {
		return nil, err
	}
	return &SignedOrder{Request: req}, nil
}

func (f *fakeExchange) Submit(_ context.Context, order *SignedOrder, _ OrderType) (*SubmitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.submitCalls++
	req := order.Request

	next := scripted{status: ledger.LegFilled, filled: req.Size}
	if queue := f.script[req.TokenID]; len(queue) > 0 {
		next, f.script[req.TokenID] = queue[0], queue[1:]
	}
	if next.err != nil {
		return nil, next.err
	}

	f.seq++
	id := fmt.Sprintf("order-%d", f.seq)
	f.orders[id] = &OrderState{
		OrderID:    id,
		Status:     next.status,
		Size:       req.Size,
		FilledSize: next.filled,
		Price:      req.Price,
	}

	return &SubmitResult{OrderID: id, Status: next.status, FilledSize: next.filled, FillPrice: req.Price}, nil
}

func (f *fakeExchange) GetOrder(_ context.Context, orderID string) (*OrderState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	state, ok := f.orders[orderID]
	if !ok {
		return nil, errors.New("unknown order")
	}
	stateCopy := *state
	return &stateCopy, nil
}

func (f *fakeExchange) Cancel(_ context.Context, orderIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cancelCalls++
	for _, id := range orderIDs {
		if state, ok := f.orders[id]; ok && state.FilledSize == 0 {
			state.Status = ledger.LegCancelled
		}
	}
	return nil
}

func (f *fakeExchange) counts() (int, int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signCalls, f.submitCalls, f.cancelCalls
}

type fakeBooks struct {
	mu    sync.Mutex
	books map[string]types.BookState
}

func (b *fakeBooks) set(book types.BookState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.books[book.MarketID] = book
}

func (b *fakeBooks) Snapshot(marketID string) (types.BookState, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	book, ok := b.books[marketID]
	return book, ok
}

// recordingStore keeps the sequence of persisted trade statuses.
type recordingStore struct {
	storage.Store

	mu       sync.Mutex
	statuses []ledger.Status
}

func (r *recordingStore) UpdateTrade(ctx context.Context, trade *ledger.Trade) error {
	r.mu.Lock()
	r.statuses = append(r.statuses, trade.Status)
	r.mu.Unlock()
	return r.Store.UpdateTrade(ctx, trade)
}

func (r *recordingStore) history() []ledger.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ledger.Status(nil), r.statuses...)
}

func withRecorder(t *testing.T, rec *recordingStore) func(*Config) {
	return func(cfg *Config) {
		rec.Store = storage.NewMemoryStorage(zaptest.NewLogger(t))
		cfg.Ledger = ledger.New(rec, cfg.Logger)
	}
}

type harness struct {
	engine   *Engine
	exchange *fakeExchange
	books    *fakeBooks
	breaker  *circuitbreaker.Breaker
	ledger   *ledger.Ledger
	detector *arbitrage.Detector
	market   *types.Market
}

func newHarness(t *testing.T, opts ...func(*Config)) *harness {
	t.Helper()

	logger := zaptest.NewLogger(t)
	now := time.Now()
	market := &types.Market{
		ID:         "m1",
		Slug:       "btc-updown-15m-1700000000",
		Asset:      "btc",
		YesTokenID: "yes-token",
		NoTokenID:  "no-token",
		OpensAt:    now.Add(-time.Minute),
		ResolvesAt: now.Add(14 * time.Minute),
		TickSize:   0.01,
		MinSize:    1,
	}

	h := &harness{
		exchange: newFakeExchange(),
		books:    &fakeBooks{books: make(map[string]types.BookState)},
		breaker:  circuitbreaker.NewBreaker(logger),
		ledger:   ledger.New(storage.NewMemoryStorage(logger), logger),
		detector: arbitrage.New(arbitrage.DefaultConfig()),
		market:   market,
	}
	h.setBook(0.45, 0.50)

	cfg := Config{
		Logger:   logger,
		Exchange: h.exchange,
		Ledger:   h.ledger,
		Books:    h.books,
		Repricer: h.detector,
		Breaker:  h.breaker,
		Retry: RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     5 * time.Millisecond,
			CallTimeout:    time.Second,
		},
		Fill: FillTrackerConfig{
			InitialBackoff: time.Millisecond,
			MaxBackoff:     5 * time.Millisecond,
			FillTimeout:    50 * time.Millisecond,
		},
		MinHedgeRatio:      0.8,
		CriticalHedgeRatio: 0.6,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	engine, err := New(cfg)
	require.NoError(t, err)
	h.engine = engine
	h.ledger = cfg.Ledger

	return h
}

func (h *harness) setBook(yesAsk, noAsk float64) {
	h.books.set(types.BookState{
		MarketID:   h.market.ID,
		YesAsk:     yesAsk,
		YesAskSize: 100,
		NoAsk:      noAsk,
		NoAskSize:  100,
		UpdatedAt:  time.Now(),
	})
}

func (h *harness) opportunity(t *testing.T) *arbitrage.Opportunity {
	t.Helper()
	book, _ := h.books.Snapshot(h.market.ID)
	opp, ok := h.detector.Evaluate(book, h.market, time.Now())
	require.True(t, ok)
	return opp
}

func TestEngine_ArbitrageHedged(t *testing.T) {
	h := newHarness(t)

	var events []TradeEvent
	h.engine.OnTrade(func(ev TradeEvent) { events = append(events, ev) })

	trade, err := h.engine.Execute(context.Background(), h.opportunity(t))
	require.NoError(t, err)

	assert.Equal(t, ledger.StatusHedged, trade.Status)
	require.Len(t, trade.Legs, 2)
	assert.Equal(t, trade.Legs[0].Size, trade.Legs[1].Size, "both sides buy the same share count")
	assert.InDelta(t, 10.52, trade.Legs[0].Size, 1e-9)
	assert.InDelta(t, 1.0, trade.HedgeRatio(), 1e-9)

	stored, err := h.ledger.Get(context.Background(), trade.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusHedged, stored.Status)
	require.Len(t, stored.Legs, 2)
	for _, leg := range stored.Legs {
		assert.Equal(t, ledger.LegFilled, leg.Status)
		assert.NotEmpty(t, leg.OrderID)
	}

	require.Len(t, events, 1)
	assert.Equal(t, trade.ID, events[0].Trade.ID)
	assert.NotNil(t, events[0].Opportunity)
}

func TestEngine_SignFailureSubmitsNothing(t *testing.T) {
	h := newHarness(t)
	h.exchange.signErr["no-token"] = errors.New("bad key")

	trade, err := h.engine.Execute(context.Background(), h.opportunity(t))
	require.NoError(t, err)

	assert.Equal(t, ledger.StatusCancelled, trade.Status)
	_, submits, _ := h.exchange.counts()
	assert.Zero(t, submits)
}

func TestEngine_StaleBookDiscardedWithoutTrade(t *testing.T) {
	h := newHarness(t)
	opp := h.opportunity(t)

	book, _ := h.books.Snapshot(h.market.ID)
	book.Stale = true
	h.books.set(book)

	trade, err := h.engine.Execute(context.Background(), opp)
	require.ErrorIs(t, err, ErrStaleBook)
	assert.Nil(t, trade)

	trades, err := h.ledger.List(context.Background(), ledger.Filter{})
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestEngine_RepricedUnprofitableDiscarded(t *testing.T) {
	h := newHarness(t)
	opp := h.opportunity(t)

	h.setBook(0.55, 0.50)

	_, err := h.engine.Execute(context.Background(), opp)
	require.ErrorIs(t, err, ErrUnprofitable)

	trades, err := h.ledger.List(context.Background(), ledger.Filter{})
	require.NoError(t, err)
	assert.Empty(t, trades)
	signs, _, _ := h.exchange.counts()
	assert.Zero(t, signs)
}

func TestEngine_BreakerBlocksMarket(t *testing.T) {
	h := newHarness(t)
	h.breaker.TripMarket(h.market.ID, "hedge", "test", 0.1)

	_, err := h.engine.Execute(context.Background(), h.opportunity(t))
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.ErrorIs(t, err, circuitbreaker.ErrMarketOpen)
}

func TestEngine_MarketBusy(t *testing.T) {
	h := newHarness(t)
	require.True(t, h.engine.gate.tryAcquire(h.market.ID))

	_, err := h.engine.Execute(context.Background(), h.opportunity(t))
	require.ErrorIs(t, err, ErrMarketBusy)

	h.engine.gate.release(h.market.ID)
	_, err = h.engine.Execute(context.Background(), h.opportunity(t))
	require.NoError(t, err)
}

func TestEngine_CriticalHedgeTripsBreakerWithoutRebalance(t *testing.T) {
	h := newHarness(t)
	h.exchange.on("no-token", scripted{status: ledger.LegLive})

	trade, err := h.engine.Execute(context.Background(), h.opportunity(t))
	require.NoError(t, err)

	assert.Equal(t, ledger.StatusUnhedged, trade.Status)
	assert.Contains(t, trade.Reason, "below critical")
	assert.Len(t, trade.Legs, 2, "no rebalance leg")

	signs, _, cancels := h.exchange.counts()
	assert.Equal(t, 2, signs)
	assert.Equal(t, 1, cancels)
	assert.Equal(t, ledger.LegCancelled, trade.Legs[1].Status)

	assert.ErrorIs(t, h.breaker.Allow(h.market.ID), circuitbreaker.ErrMarketOpen)
	assert.NoError(t, h.breaker.Allow("other"))
}

func TestEngine_RebalancesLaggingSide(t *testing.T) {
	h := newHarness(t)
	h.exchange.on("no-token", scripted{status: ledger.LegMatched, filled: 7.5})

	trade, err := h.engine.Execute(context.Background(), h.opportunity(t))
	require.NoError(t, err)

	assert.Equal(t, ledger.StatusHedged, trade.Status)
	require.Len(t, trade.Legs, 3)

	rebalance := trade.Legs[2]
	assert.True(t, rebalance.Rebalance)
	assert.Equal(t, types.OutcomeNo, rebalance.Outcome)
	assert.InDelta(t, 3.02, rebalance.Size, 1e-9)
	assert.InDelta(t, 1.0, trade.HedgeRatio(), 1e-9)
	assert.NoError(t, h.breaker.Allow(h.market.ID))
}

func TestEngine_RebalanceInsufficientIsUnhedged(t *testing.T) {
	h := newHarness(t)
	h.exchange.on("no-token",
		scripted{status: ledger.LegMatched, filled: 7.5},
		scripted{status: ledger.LegLive},
	)

	trade, err := h.engine.Execute(context.Background(), h.opportunity(t))
	require.NoError(t, err)

	assert.Equal(t, ledger.StatusUnhedged, trade.Status)
	assert.Contains(t, trade.Reason, "after rebalance")
	assert.True(t, trade.Unhedged)
}

func TestEngine_TransientSubmitRetried(t *testing.T) {
	h := newHarness(t)
	h.exchange.on("yes-token", scripted{err: &types.OrderError{Code: "SERVER", Message: "busy", HTTPStatus: http.StatusServiceUnavailable}})

	trade, err := h.engine.Execute(context.Background(), h.opportunity(t))
	require.NoError(t, err)

	assert.Equal(t, ledger.StatusHedged, trade.Status)
	_, submits, _ := h.exchange.counts()
	assert.Equal(t, 3, submits)
}

func TestEngine_NonRetryableRejectsLeg(t *testing.T) {
	h := newHarness(t)
	h.exchange.on("yes-token", scripted{err: &types.OrderError{Code: types.ErrNotEnoughBalance, Message: "no funds", HTTPStatus: http.StatusBadRequest}})
	h.exchange.on("no-token", scripted{err: &types.OrderError{Code: types.ErrNotEnoughBalance, Message: "no funds", HTTPStatus: http.StatusBadRequest}})

	trade, err := h.engine.Execute(context.Background(), h.opportunity(t))
	require.NoError(t, err)

	assert.Equal(t, ledger.StatusCancelled, trade.Status)
	_, submits, _ := h.exchange.counts()
	assert.Equal(t, 2, submits)
	for _, leg := range trade.Legs {
		assert.Equal(t, ledger.LegRejected, leg.Status)
	}
}

func TestEngine_AuthBlockedHaltsTrading(t *testing.T) {
	h := newHarness(t)
	h.exchange.on("yes-token", scripted{err: &types.OrderError{Code: "FORBIDDEN", Message: "waf", HTTPStatus: http.StatusForbidden}})

	var halts []error
	h.engine.OnHalt(func(err error) { halts = append(halts, err) })

	_, err := h.engine.Execute(context.Background(), h.opportunity(t))
	require.NoError(t, err)

	assert.True(t, h.engine.Halted())
	require.Len(t, halts, 1)
	assert.ErrorIs(t, halts[0], types.ErrAuthBlocked)

	_, err = h.engine.Execute(context.Background(), h.opportunity(t))
	assert.ErrorIs(t, err, ErrTradingHalted)
}

func TestEngine_DirectionalSingleLeg(t *testing.T) {
	h := newHarness(t)
	h.setBook(0.20, 0.85)

	opp := h.opportunity(t)
	require.Equal(t, arbitrage.KindDirectional, opp.Kind)

	trade, err := h.engine.Execute(context.Background(), opp)
	require.NoError(t, err)

	assert.Equal(t, ledger.StatusHedged, trade.Status)
	require.Len(t, trade.Legs, 1)
	assert.Equal(t, types.OutcomeYes, trade.Legs[0].Outcome)
}

func TestEngine_ResolveMarket(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	trade, err := h.engine.Execute(ctx, h.opportunity(t))
	require.NoError(t, err)
	require.Equal(t, ledger.StatusHedged, trade.Status)

	resolved, err := h.engine.ResolveMarket(ctx, h.market.ID, types.OutcomeYes)
	require.NoError(t, err)
	require.Len(t, resolved, 1)

	got := resolved[0]
	assert.Equal(t, ledger.StatusResolved, got.Status)
	assert.InDelta(t, 10.52-10.52*0.95, got.ActualProfit, 1e-6)
	assert.NotNil(t, got.ResolvedAt)

	again, err := h.engine.ResolveMarket(ctx, h.market.ID, types.OutcomeYes)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestEngine_SubmitQueueDropsWhenFull(t *testing.T) {
	h := newHarness(t)
	h.engine.queue = make(chan *arbitrage.Opportunity, 1)

	opp := h.opportunity(t)
	assert.True(t, h.engine.Submit(opp))
	assert.False(t, h.engine.Submit(opp))
}

func TestEngine_StartExecutesQueued(t *testing.T) {
	h := newHarness(t)

	done := make(chan TradeEvent, 1)
	h.engine.OnTrade(func(ev TradeEvent) { done <- ev })

	require.NoError(t, h.engine.Start(context.Background()))
	require.True(t, h.engine.Submit(h.opportunity(t)))

	select {
	case ev := <-done:
		assert.Equal(t, ledger.StatusHedged, ev.Trade.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("trade not executed")
	}

	require.NoError(t, h.engine.Close())
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestEngine_LegsFilledTogetherSkipPartial(t *testing.T) {
	rec := &recordingStore{}
	h := newHarness(t, withRecorder(t, rec))

	trade, err := h.engine.Execute(context.Background(), h.opportunity(t))
	require.NoError(t, err)

	assert.Equal(t, ledger.StatusHedged, trade.Status)
	assert.Equal(t, []ledger.Status{ledger.StatusSubmitted, ledger.StatusHedged}, rec.history())
}

func TestEngine_OneLegLaggingRecordsPartial(t *testing.T) {
	rec := &recordingStore{}
	h := newHarness(t, withRecorder(t, rec))
	h.exchange.on("no-token", scripted{status: ledger.LegMatched, filled: 7.5})

	trade, err := h.engine.Execute(context.Background(), h.opportunity(t))
	require.NoError(t, err)

	assert.Equal(t, ledger.StatusHedged, trade.Status)
	assert.Equal(t, []ledger.Status{
		ledger.StatusSubmitted,
		ledger.StatusPartiallyFilled,
		ledger.StatusHedged,
	}, rec.history())
}

func TestEngine_LimitOffsetEatsThresholdSpread(t *testing.T) {
	h := newHarness(t, func(cfg *Config) { cfg.EpsilonTicks = 2 })
	h.setBook(0.48, 0.50)

	opp := h.opportunity(t)
	require.Equal(t, arbitrage.KindArbitrage, opp.Kind)
	require.Positive(t, opp.ExpectedProfit)

	trade, err := h.engine.Execute(context.Background(), opp)
	require.ErrorIs(t, err, ErrUnprofitable)
	assert.Nil(t, trade)

	signs, _, _ := h.exchange.counts()
	assert.Zero(t, signs)
	trades, err := h.ledger.List(context.Background(), ledger.Filter{})
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestEngine_ExpectedProfitAtLimitPrices(t *testing.T) {
	h := newHarness(t, func(cfg *Config) { cfg.EpsilonTicks = 2 })

	trade, err := h.engine.Execute(context.Background(), h.opportunity(t))
	require.NoError(t, err)

	require.Equal(t, ledger.StatusHedged, trade.Status)
	assert.InDelta(t, 0.47, trade.Legs[0].Price, 1e-9)
	assert.InDelta(t, 0.52, trade.Legs[1].Price, 1e-9)
	assert.InDelta(t, 10.52-10.52*0.99, trade.ExpectedProfit, 1e-6)
	assert.Greater(t, trade.Payout(""), trade.Cost())
}

func TestEngine_OldBookDiscardedBeforeSweep(t *testing.T) {
	h := newHarness(t, func(cfg *Config) { cfg.StalenessWindow = 10 * time.Second })
	opp := h.opportunity(t)

	book, _ := h.books.Snapshot(h.market.ID)
	book.UpdatedAt = time.Now().Add(-11 * time.Second)
	h.books.set(book)

	_, err := h.engine.Execute(context.Background(), opp)
	require.ErrorIs(t, err, ErrStaleBook)

	h.setBook(0.45, 0.50)
	_, err = h.engine.Execute(context.Background(), opp)
	require.NoError(t, err)
}

func TestEngine_ResolveMarketInterruptsInFlightTrade(t *testing.T) {
	h := newHarness(t, func(cfg *Config) { cfg.Fill.FillTimeout = time.Minute })
	h.exchange.on("no-token", scripted{status: ledger.LegLive})
	ctx := context.Background()

	opp := h.opportunity(t)
	executed := make(chan *ledger.Trade, 1)
	go func() {
		trade, _ := h.engine.Execute(ctx, opp)
		executed <- trade
	}()

	require.Eventually(t, func() bool {
		trades, err := h.ledger.List(ctx, ledger.Filter{Statuses: []ledger.Status{ledger.StatusPartiallyFilled}})
		return err == nil && len(trades) == 1
	}, 2*time.Second, 5*time.Millisecond)

	resolved, err := h.engine.ResolveMarket(ctx, h.market.ID, types.OutcomeYes)
	require.NoError(t, err)
	require.Len(t, resolved, 1)

	got := resolved[0]
	assert.Equal(t, ledger.StatusResolved, got.Status)
	assert.True(t, got.Unhedged)
	assert.InDelta(t, 10.52-10.52*0.45, got.ActualProfit, 1e-6)

	trade := <-executed
	require.NotNil(t, trade)
	assert.Equal(t, ledger.LegCancelled, trade.Legs[1].Status)
	_, _, cancels := h.exchange.counts()
	assert.Equal(t, 1, cancels)
	assert.ErrorIs(t, h.breaker.Allow(h.market.ID), circuitbreaker.ErrMarketOpen)
}

func TestEngine_SignedLegsAreNotPosted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	opp := h.opportunity(t)
	legs, err := buildLegs(opp, 0)
	require.NoError(t, err)
	trade := &ledger.Trade{MarketID: h.market.ID, Kind: opp.Kind.String()}
	require.NoError(t, h.ledger.Open(ctx, trade))
	for _, leg := range legs {
		leg.TradeID = trade.ID
	}
	trade.Legs = legs

	signed, err := h.engine.signAll(ctx, ctx, trade, h.market)
	require.NoError(t, err)
	require.Len(t, signed, 2)
	assert.NotSame(t, signed[0], signed[1])

	for _, leg := range trade.Legs {
		assert.Equal(t, ledger.LegSigned, leg.Status)
		assert.Empty(t, leg.OrderID)
		assert.Zero(t, leg.FilledSize)
		assert.Nil(t, leg.FilledAt)
	}
	_, submits, _ := h.exchange.counts()
	assert.Zero(t, submits)
}
