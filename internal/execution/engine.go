package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mselser95/polymarket-updown/internal/arbitrage"
	"github.com/mselser95/polymarket-updown/internal/ledger"
	"github.com/mselser95/polymarket-updown/pkg/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// breakerSource marks trips caused by hedge failures.
const breakerSource = "hedge"

// BookSource provides the latest book of a tracked market.
type BookSource interface {
	Snapshot(marketID string) (types.BookState, bool)
}

// Repricer recomputes an opportunity against a newer book.
type Repricer interface {
	Reprice(opp *arbitrage.Opportunity, book types.BookState) (*arbitrage.Opportunity, bool)
}

// Breaker gates execution per market and records hedge failures.
type Breaker interface {
	Allow(marketID string) error
	TripMarket(marketID, source, reason string, hedgeRatio float64)
	TripGlobal(source, reason string)
}

// TradeEvent is emitted when a trade settles and again when it resolves.
// Opportunity is nil for resolution events.
type TradeEvent struct {
	Trade       *ledger.Trade
	Opportunity *arbitrage.Opportunity
}

// TradeFunc observes trade events.
type TradeFunc func(TradeEvent)

// HaltFunc observes the trading halt.
type HaltFunc func(error)

// Config holds engine configuration.
type Config struct {
	Logger             *zap.Logger
	Exchange           Exchange
	Ledger             *ledger.Ledger
	Books              BookSource
	Repricer           Repricer
	Breaker            Breaker
	OrderType          OrderType
	EpsilonTicks       int
	StalenessWindow    time.Duration // books older than this are stale; 0 trusts the tracker flag
	Retry              RetryConfig
	Fill               FillTrackerConfig
	MinHedgeRatio      float64
	CriticalHedgeRatio float64
	TripGlobal         bool // also trip the global breaker on a critical hedge failure
	QueueSize          int
}

type execRun struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Engine turns opportunities into hedged trades.
type Engine struct {
	cfg      Config
	logger   *zap.Logger
	exchange Exchange
	ledger   *ledger.Ledger
	books    BookSource
	repricer Repricer
	breaker  Breaker
	fills    *FillTracker
	gate     *gate
	queue    chan *arbitrage.Opportunity
	halted   atomic.Bool

	mu       sync.Mutex
	inflight map[string]map[string]*execRun // market id -> opportunity id
	onTrade  []TradeFunc
	onHalt   []HaltFunc

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an execution engine.
func New(cfg Config) (*Engine, error) {
	switch {
	case cfg.Logger == nil:
		return nil, errors.New("logger cannot be nil")
	case cfg.Exchange == nil:
		return nil, errors.New("exchange cannot be nil")
	case cfg.Ledger == nil:
		return nil, errors.New("ledger cannot be nil")
	case cfg.Books == nil:
		return nil, errors.New("book source cannot be nil")
	case cfg.Repricer == nil:
		return nil, errors.New("repricer cannot be nil")
	case cfg.Breaker == nil:
		return nil, errors.New("breaker cannot be nil")
	case cfg.CriticalHedgeRatio > cfg.MinHedgeRatio:
		return nil, fmt.Errorf("critical hedge ratio %.2f above minimum %.2f", cfg.CriticalHedgeRatio, cfg.MinHedgeRatio)
	}

	if cfg.OrderType == "" {
		cfg.OrderType = OrderTypeGTC
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.Fill.CallTimeout == 0 {
		cfg.Fill.CallTimeout = cfg.Retry.CallTimeout
	}

	Halted.Set(0)

	return &Engine{
		cfg:      cfg,
		logger:   cfg.Logger,
		exchange: cfg.Exchange,
		ledger:   cfg.Ledger,
		books:    cfg.Books,
		repricer: cfg.Repricer,
		breaker:  cfg.Breaker,
		fills:    NewFillTracker(cfg.Exchange, cfg.Logger, &cfg.Fill),
		gate:     newGate(),
		queue:    make(chan *arbitrage.Opportunity, cfg.QueueSize),
		inflight: make(map[string]map[string]*execRun),
	}, nil
}

// OnTrade registers an observer for settled and resolved trades.
func (e *Engine) OnTrade(fn TradeFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onTrade = append(e.onTrade, fn)
}

// OnHalt registers an observer for the trading halt.
func (e *Engine) OnHalt(fn HaltFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onHalt = append(e.onHalt, fn)
}

// Halt stops all new trades until restart. Only the first call has an effect.
func (e *Engine) Halt(cause error) {
	if !e.halted.CompareAndSwap(false, true) {
		return
	}
	Halted.Set(1)

	e.logger.Error("trading-halted", zap.Error(cause))

	e.mu.Lock()
	callbacks := e.onHalt
	e.mu.Unlock()
	for _, fn := range callbacks {
		fn(cause)
	}
}

// Halted reports whether trading is halted.
func (e *Engine) Halted() bool {
	return e.halted.Load()
}

// Submit enqueues an opportunity without blocking. It reports false when the
// queue is full.
func (e *Engine) Submit(opp *arbitrage.Opportunity) bool {
	select {
	case e.queue <- opp:
		return true
	default:
		QueueDroppedTotal.Inc()
		return false
	}
}

// Start consumes queued opportunities. Each one executes in its own goroutine;
// the market gate serializes trades per market.
func (e *Engine) Start(ctx context.Context) error {
	ctx, e.cancel = context.WithCancel(ctx)

	e.logger.Info("execution-engine-starting",
		zap.String("order-type", string(e.cfg.OrderType)),
		zap.Float64("min-hedge-ratio", e.cfg.MinHedgeRatio),
		zap.Float64("critical-hedge-ratio", e.cfg.CriticalHedgeRatio))

	e.wg.Add(1)
	go e.dispatch(ctx)

	return nil
}

func (e *Engine) dispatch(ctx context.Context) {
	defer e.wg.Done()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("execution-engine-stopping")
			return
		case opp := <-e.queue:
			e.wg.Add(1)
			go func() {
				defer e.wg.Done()
				_, err := e.Execute(ctx, opp)
				e.logResult(opp, err)
			}()
		}
	}
}

func (e *Engine) logResult(opp *arbitrage.Opportunity, err error) {
	switch {
	case err == nil:
	case errors.Is(err, ErrMarketBusy), errors.Is(err, ErrStaleBook), errors.Is(err, ErrUnprofitable),
		errors.Is(err, ErrCircuitOpen), errors.Is(err, ErrTradingHalted), errors.Is(err, errOrderTooSmall):
		e.logger.Debug("opportunity-skipped",
			zap.String("opportunity-id", opp.ID),
			zap.String("market-slug", opp.Market.Slug),
			zap.String("reason", err.Error()))
	default:
		e.logger.Error("execution-failed",
			zap.String("opportunity-id", opp.ID),
			zap.String("market-slug", opp.Market.Slug),
			zap.Error(err))
	}
}

// Close stops the dispatcher and waits for in-flight trades to settle.
func (e *Engine) Close() error {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	return nil
}

func (e *Engine) stale(book types.BookState, now time.Time) bool {
	if book.Stale {
		return true
	}
	return e.cfg.StalenessWindow > 0 && now.Sub(book.UpdatedAt) > e.cfg.StalenessWindow
}

func (e *Engine) discard(reason string) {
	DiscardedTotal.WithLabelValues(reason).Inc()
}

// Execute re-prices the opportunity against the latest book and, if it is
// still profitable, runs it to a terminal state. No trade is created when it
// is discarded.
func (e *Engine) Execute(ctx context.Context, opp *arbitrage.Opportunity) (*ledger.Trade, error) {
	if opp == nil || opp.Market == nil {
		return nil, errors.New("opportunity without market")
	}
	marketID := opp.Market.ID

	if e.halted.Load() {
		e.discard("halted")
		return nil, ErrTradingHalted
	}

	err := e.breaker.Allow(marketID)
	if err != nil {
		e.discard("circuit-open")
		return nil, fmt.Errorf("%w: %w", ErrCircuitOpen, err)
	}

	if !e.gate.tryAcquire(marketID) {
		e.discard("market-busy")
		return nil, ErrMarketBusy
	}
	defer e.gate.release(marketID)

	book, ok := e.books.Snapshot(marketID)
	if !ok || e.stale(book, time.Now()) {
		e.discard("stale-book")
		return nil, ErrStaleBook
	}

	priced, ok := e.repricer.Reprice(opp, book)
	if !ok || priced.ExpectedProfit <= 0 {
		e.discard("unprofitable")
		return nil, ErrUnprofitable
	}

	legs, err := buildLegs(priced, e.cfg.EpsilonTicks)
	if err != nil {
		e.discard("too-small")
		return nil, err
	}

	// the legs commit at their limits, not at the touch
	priced.ExpectedProfit = committedProfit(priced, legs)
	if priced.ExpectedProfit <= 0 {
		e.discard("unprofitable-at-limit")
		return nil, ErrUnprofitable
	}

	start := time.Now()
	trade := &ledger.Trade{
		MarketID:       marketID,
		MarketSlug:     priced.Market.Slug,
		Asset:          priced.Market.Asset,
		Kind:           priced.Kind.String(),
		ExpectedProfit: priced.ExpectedProfit,
	}
	err = e.ledger.Open(ctx, trade)
	if err != nil {
		return nil, fmt.Errorf("open trade: %w", err)
	}
	for _, leg := range legs {
		leg.TradeID = trade.ID
	}
	trade.Legs = legs

	runCtx, done := e.register(ctx, marketID, priced.ID)
	err = e.run(runCtx, trade, priced)
	done()

	ExecutionDurationSeconds.Observe(time.Since(start).Seconds())
	TradesTotal.WithLabelValues(trade.Kind, string(trade.Status)).Inc()
	e.emit(TradeEvent{Trade: trade.Clone(), Opportunity: priced})

	return trade, err
}

// register makes an execution cancellable by ResolveMarket.
func (e *Engine) register(ctx context.Context, marketID, oppID string) (context.Context, func()) {
	runCtx, cancel := context.WithCancel(ctx)
	r := &execRun{cancel: cancel, done: make(chan struct{})}

	e.mu.Lock()
	if e.inflight[marketID] == nil {
		e.inflight[marketID] = make(map[string]*execRun)
	}
	e.inflight[marketID][oppID] = r
	e.mu.Unlock()

	return runCtx, func() {
		e.mu.Lock()
		delete(e.inflight[marketID], oppID)
		if len(e.inflight[marketID]) == 0 {
			delete(e.inflight, marketID)
		}
		e.mu.Unlock()

		cancel()
		close(r.done)
	}
}

func (e *Engine) emit(event TradeEvent) {
	e.mu.Lock()
	callbacks := e.onTrade
	e.mu.Unlock()

	for _, fn := range callbacks {
		fn(event)
	}
}

// run signs every leg, submits them together, tracks fills and settles the
// hedge. Persistence and cancels survive cancellation of ctx.
func (e *Engine) run(ctx context.Context, trade *ledger.Trade, opp *arbitrage.Opportunity) error {
	persist := context.WithoutCancel(ctx)
	market := opp.Market

	signed, err := e.signAll(ctx, persist, trade, market)
	if err != nil {
		return e.finish(persist, trade, ledger.StatusCancelled, "signing failed: "+err.Error())
	}

	e.submitAll(ctx, persist, trade, signed)

	if !anyAccepted(trade.Legs) {
		return e.finish(persist, trade, ledger.StatusCancelled, "no leg accepted")
	}

	err = e.ledger.Transition(persist, trade, ledger.StatusSubmitted, "")
	if err != nil {
		return fmt.Errorf("transition submitted: %w", err)
	}
	e.markPartial(persist, trade, opp.Kind.Paired())

	err = e.fills.Track(ctx, trade.Legs, market.ResolvesAt, e.legChanged(persist, trade, opp.Kind.Paired()))
	if err != nil {
		e.logger.Info("fill-tracking-interrupted",
			zap.String("trade-id", trade.ID),
			zap.Error(err))
	}

	e.cancelOpen(persist, trade, opp.Kind.Paired())

	return e.settle(ctx, persist, trade, opp)
}

func (e *Engine) request(leg *ledger.OrderLeg, tickSize float64) OrderRequest {
	return OrderRequest{
		TokenID:  leg.TokenID,
		Side:     leg.Side,
		Price:    leg.Price,
		Size:     leg.Size,
		TickSize: tickSize,
	}
}

// signAll signs every leg before anything is posted. If one leg cannot be
// signed none are submitted.
func (e *Engine) signAll(ctx, persist context.Context, trade *ledger.Trade, market *types.Market) ([]*SignedOrder, error) {
	signed := make([]*SignedOrder, len(trade.Legs))

	for i, leg := range trade.Legs {
		order, err := e.exchange.Sign(ctx, e.request(leg, market.TickSize))
		if err != nil {
			leg.Status = ledger.LegRejected
			leg.Error = err.Error()
			for _, other := range trade.Legs {
				if other != leg {
					other.Status = ledger.LegCancelled
					other.Error = "not submitted"
				}
			}
			for _, l := range trade.Legs {
				e.recordLeg(persist, l)
			}
			return nil, fmt.Errorf("sign %s leg: %w", leg.Outcome, err)
		}

		leg.Status = ledger.LegSigned
		e.recordLeg(persist, leg)
		signed[i] = order
	}

	return signed, nil
}

func (e *Engine) submitAll(ctx, persist context.Context, trade *ledger.Trade, signed []*SignedOrder) {
	var g errgroup.Group
	for i, leg := range trade.Legs {
		g.Go(func() error {
			return e.submitLeg(ctx, persist, leg, signed[i])
		})
	}

	err := g.Wait()
	if err != nil {
		e.logger.Warn("leg-submit-failed",
			zap.String("trade-id", trade.ID),
			zap.Error(err))
	}
}

func (e *Engine) submitLeg(ctx, persist context.Context, leg *ledger.OrderLeg, order *SignedOrder) error {
	var result *SubmitResult
	err := withRetry(ctx, e.cfg.Retry, func(callCtx context.Context) error {
		var submitErr error
		result, submitErr = e.exchange.Submit(callCtx, order, e.cfg.OrderType)
		return submitErr
	})
	if err != nil {
		leg.Status = ledger.LegRejected
		leg.Error = err.Error()
		LegRejectionsTotal.WithLabelValues(errorCodeOf(err)).Inc()
		e.recordLeg(persist, leg)

		if errors.Is(err, types.ErrAuthBlocked) {
			e.Halt(err)
		}
		return fmt.Errorf("submit %s leg: %w", leg.Outcome, err)
	}

	leg.OrderID = result.OrderID
	leg.Status = ledger.LegPosted
	executed, _ := applyOrderState(leg, &OrderState{
		OrderID:    result.OrderID,
		Status:     result.Status,
		Size:       leg.Size,
		FilledSize: result.FilledSize,
		Price:      result.FillPrice,
	}, time.Now())

	e.recordLeg(persist, leg)
	if executed > 0 {
		e.recordFill(persist, leg, executed)
	}
	return nil
}

func errorCodeOf(err error) string {
	var orderErr *types.OrderError
	if errors.As(err, &orderErr) && orderErr.Code != "" {
		return orderErr.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.ErrTimeout
	}
	return types.ErrNetwork
}

func anyAccepted(legs []*ledger.OrderLeg) bool {
	for _, leg := range legs {
		if leg.OrderID != "" && leg.Status != ledger.LegRejected {
			return true
		}
	}
	return false
}

func (e *Engine) legChanged(persist context.Context, trade *ledger.Trade, paired bool) LegChangeFunc {
	return func(leg *ledger.OrderLeg, executed float64) {
		e.recordLeg(persist, leg)
		if executed > 0 {
			e.recordFill(persist, leg, executed)
		}
		e.markPartial(persist, trade, paired)
	}
}

// markPartial moves a paired trade to PARTIALLY_FILLED once some, but not
// all, of its legs have executed. Legs filling together go straight to settle.
func (e *Engine) markPartial(persist context.Context, trade *ledger.Trade, paired bool) {
	if paired {
		e.logger.Debug("hedge-ratio",
			zap.String("trade-id", trade.ID),
			zap.Float64("hedge-ratio", trade.HedgeRatio()))
	}
	if !paired || trade.Status != ledger.StatusSubmitted || !trade.AnyExecuted() || trade.FullyExecuted() {
		return
	}

	err := e.ledger.Transition(persist, trade, ledger.StatusPartiallyFilled, "")
	if err != nil {
		e.logger.Error("transition-failed", zap.String("trade-id", trade.ID), zap.Error(err))
	}
}

func (e *Engine) recordLeg(persist context.Context, leg *ledger.OrderLeg) {
	err := e.ledger.RecordLeg(persist, leg)
	if err != nil {
		e.logger.Error("record-leg-failed",
			zap.String("trade-id", leg.TradeID),
			zap.String("outcome", string(leg.Outcome)),
			zap.Error(err))
	}
}

func (e *Engine) recordFill(persist context.Context, leg *ledger.OrderLeg, executed float64) {
	price := leg.FillPrice
	if price == 0 {
		price = leg.Price
	}
	_, err := e.ledger.RecordFill(persist, leg, price, executed)
	if err != nil {
		e.logger.Error("record-fill-failed",
			zap.String("trade-id", leg.TradeID),
			zap.String("leg-id", leg.ID),
			zap.Error(err))
	}
}

// cancelOpen cancels resting legs and takes one last look at each so that
// fills racing the cancel are counted.
func (e *Engine) cancelOpen(persist context.Context, trade *ledger.Trade, paired bool) {
	var open []*ledger.OrderLeg
	ids := make([]string, 0, len(trade.Legs))
	for _, leg := range trade.Legs {
		if leg.OrderID != "" && leg.Status.Open() {
			open = append(open, leg)
			ids = append(ids, leg.OrderID)
		}
	}
	if len(open) == 0 {
		return
	}

	err := callWithTimeout(persist, e.cfg.Retry.CallTimeout, func(callCtx context.Context) error {
		return e.exchange.Cancel(callCtx, ids)
	})
	if err != nil {
		e.logger.Warn("cancel-orders-failed",
			zap.String("trade-id", trade.ID),
			zap.Strings("order-ids", ids),
			zap.Error(err))
		if errors.Is(err, types.ErrAuthBlocked) {
			e.Halt(err)
		}
	}

	onChange := e.legChanged(persist, trade, paired)
	for _, leg := range open {
		var state *OrderState
		queryErr := callWithTimeout(persist, e.cfg.Retry.CallTimeout, func(callCtx context.Context) error {
			var getErr error
			state, getErr = e.exchange.GetOrder(callCtx, leg.OrderID)
			return getErr
		})
		if queryErr == nil {
			executed, changed := applyOrderState(leg, state, time.Now())
			if changed {
				onChange(leg, executed)
			}
		}

		if leg.Status == ledger.LegPosted || leg.Status == ledger.LegLive {
			leg.Status = ledger.LegCancelled
			e.recordLeg(persist, leg)
		}
	}
}

// settle classifies the trade. A critical hedge failure trips the breaker and
// is never rebalanced.
func (e *Engine) settle(ctx, persist context.Context, trade *ledger.Trade, opp *arbitrage.Opportunity) error {
	if !trade.AnyExecuted() {
		return e.finish(persist, trade, ledger.StatusCancelled, "no fills")
	}
	if !opp.Kind.Paired() {
		return e.finish(persist, trade, ledger.StatusHedged, "")
	}

	ratio := trade.HedgeRatio()

	if ratio < e.cfg.CriticalHedgeRatio {
		HedgeRatio.Observe(ratio)
		reason := fmt.Sprintf("hedge ratio %.2f below critical %.2f", ratio, e.cfg.CriticalHedgeRatio)
		e.breaker.TripMarket(trade.MarketID, breakerSource, reason, ratio)
		if e.cfg.TripGlobal {
			e.breaker.TripGlobal(breakerSource, reason)
		}
		return e.finish(persist, trade, ledger.StatusUnhedged, reason)
	}

	if ratio < e.cfg.MinHedgeRatio {
		if ctx.Err() != nil {
			HedgeRatio.Observe(ratio)
			return e.finish(persist, trade, ledger.StatusUnhedged,
				fmt.Sprintf("hedge ratio %.2f below minimum, no time to rebalance", ratio))
		}
		ratio = e.rebalance(ctx, persist, trade, opp.Market, opp.Kind.Paired())
	}

	HedgeRatio.Observe(ratio)
	if ratio < e.cfg.MinHedgeRatio {
		return e.finish(persist, trade, ledger.StatusUnhedged,
			fmt.Sprintf("hedge ratio %.2f below minimum %.2f after rebalance", ratio, e.cfg.MinHedgeRatio))
	}
	return e.finish(persist, trade, ledger.StatusHedged, "")
}

// rebalance buys the share deficit on the lagging outcome once and returns the
// resulting hedge ratio.
func (e *Engine) rebalance(ctx, persist context.Context, trade *ledger.Trade, market *types.Market, paired bool) float64 {
	yes := trade.FilledShares(types.OutcomeYes)
	no := trade.FilledShares(types.OutcomeNo)

	lagging, deficit := types.OutcomeYes, no-yes
	if yes > no {
		lagging, deficit = types.OutcomeNo, yes-no
	}

	book, ok := e.books.Snapshot(market.ID)
	ask := book.Ask(lagging)
	if !ok || e.stale(book, time.Now()) || ask <= 0 || ask >= 1 {
		RebalancesTotal.WithLabelValues("no-book").Inc()
		return trade.HedgeRatio()
	}

	leg, err := rebalanceLeg(market, lagging, deficit, ask, e.cfg.EpsilonTicks)
	if err != nil {
		RebalancesTotal.WithLabelValues("too-small").Inc()
		return trade.HedgeRatio()
	}
	leg.TradeID = trade.ID
	trade.Legs = append(trade.Legs, leg)

	e.logger.Info("rebalance-started",
		zap.String("trade-id", trade.ID),
		zap.String("outcome", string(lagging)),
		zap.Float64("deficit", deficit),
		zap.Float64("price", leg.Price))

	order, err := e.exchange.Sign(ctx, e.request(leg, market.TickSize))
	if err != nil {
		leg.Status = ledger.LegRejected
		leg.Error = err.Error()
		e.recordLeg(persist, leg)
		RebalancesTotal.WithLabelValues("rejected").Inc()
		return trade.HedgeRatio()
	}
	leg.Status = ledger.LegSigned
	e.recordLeg(persist, leg)

	err = e.submitLeg(ctx, persist, leg, order)
	if err != nil {
		RebalancesTotal.WithLabelValues("rejected").Inc()
		return trade.HedgeRatio()
	}

	err = e.fills.Track(ctx, []*ledger.OrderLeg{leg}, market.ResolvesAt, e.legChanged(persist, trade, paired))
	if err != nil {
		e.logger.Info("rebalance-tracking-interrupted", zap.String("trade-id", trade.ID), zap.Error(err))
	}
	e.cancelOpen(persist, trade, paired)

	ratio := trade.HedgeRatio()
	result := "hedged"
	if ratio < e.cfg.MinHedgeRatio {
		result = "insufficient"
	}
	RebalancesTotal.WithLabelValues(result).Inc()

	return ratio
}

func (e *Engine) finish(persist context.Context, trade *ledger.Trade, to ledger.Status, reason string) error {
	err := e.ledger.Transition(persist, trade, to, reason)
	if err != nil {
		return fmt.Errorf("transition %s: %w", to, err)
	}
	return nil
}

// ResolveMarket interrupts in-flight trades on the market, lets them settle,
// then resolves every settled trade against the winning outcome. An empty
// winner credits only matched pairs.
func (e *Engine) ResolveMarket(ctx context.Context, marketID string, winner types.Outcome) ([]*ledger.Trade, error) {
	e.mu.Lock()
	runs := make([]*execRun, 0, len(e.inflight[marketID]))
	for _, r := range e.inflight[marketID] {
		runs = append(runs, r)
	}
	e.mu.Unlock()

	for _, r := range runs {
		r.cancel()
	}
	for _, r := range runs {
		select {
		case <-r.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	trades, err := e.ledger.List(ctx, ledger.Filter{
		MarketID: marketID,
		Statuses: []ledger.Status{ledger.StatusHedged, ledger.StatusUnhedged},
	})
	if err != nil {
		return nil, fmt.Errorf("list settled trades: %w", err)
	}

	resolved := make([]*ledger.Trade, 0, len(trades))
	var errs []error
	for _, trade := range trades {
		profit := trade.Payout(winner) - trade.Cost()

		err = e.ledger.Resolve(ctx, trade, profit)
		if err != nil {
			errs = append(errs, fmt.Errorf("resolve trade %s: %w", trade.ID, err))
			continue
		}

		ProfitRealizedUSD.WithLabelValues(trade.Kind).Add(profit)
		e.logger.Info("trade-resolved",
			zap.String("trade-id", trade.ID),
			zap.String("market-slug", trade.MarketSlug),
			zap.String("winner", string(winner)),
			zap.Bool("unhedged", trade.Unhedged),
			zap.Float64("profit", profit))

		e.emit(TradeEvent{Trade: trade.Clone()})
		resolved = append(resolved, trade)
	}

	return resolved, errors.Join(errs...)
}
