package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/mselser95/polymarket-updown/internal/circuitbreaker"
	"github.com/mselser95/polymarket-updown/internal/ledger"
	"github.com/mselser95/polymarket-updown/pkg/types"
	"go.uber.org/zap"
)

// BookReader exposes tracked markets and their books.
type BookReader interface {
	Markets() []*types.Market
	Snapshot(marketID string) (types.BookState, bool)
}

// TradeReader exposes the trade ledger.
type TradeReader interface {
	Get(ctx context.Context, id string) (*ledger.Trade, error)
	List(ctx context.Context, filter ledger.Filter) ([]*ledger.Trade, error)
	Stats() ledger.Stats
}

// BreakerControl exposes circuit breaker status and manual reset.
type BreakerControl interface {
	Status() circuitbreaker.Status
	ResetMarket(marketID string) bool
	ResetGlobal(source string) bool
	ResetAll()
}

type apiHandler struct {
	books   BookReader
	trades  TradeReader
	breaker BreakerControl
	logger  *zap.Logger
}

// BookResponse is one market's top of book.
type BookResponse struct {
	MarketID   string    `json:"market_id"`
	MarketSlug string    `json:"market_slug"`
	Asset      string    `json:"asset"`
	ResolvesAt time.Time `json:"resolves_at"`
	YesBid     float64   `json:"yes_bid"`
	YesAsk     float64   `json:"yes_ask"`
	NoBid      float64   `json:"no_bid"`
	NoAsk      float64   `json:"no_ask"`
	UpdatedAt  time.Time `json:"updated_at"`
	Stale      bool      `json:"stale"`
}

// LegResponse is one order leg.
type LegResponse struct {
	ID         string     `json:"id"`
	Side       string     `json:"side"`
	Outcome    string     `json:"outcome"`
	TokenID    string     `json:"token_id"`
	Price      float64    `json:"price"`
	Size       float64    `json:"size"`
	Status     string     `json:"status"`
	OrderID    string     `json:"order_id,omitempty"`
	FilledSize float64    `json:"filled_size"`
	FillPrice  float64    `json:"fill_price,omitempty"`
	FilledAt   *time.Time `json:"filled_at,omitempty"`
	Rebalance  bool       `json:"rebalance"`
	Error      string     `json:"error,omitempty"`
}

// TradeResponse is one trade with its legs.
type TradeResponse struct {
	ID             string        `json:"id"`
	MarketID       string        `json:"market_id"`
	MarketSlug     string        `json:"market_slug"`
	Asset          string        `json:"asset"`
	Kind           string        `json:"kind"`
	Status         string        `json:"status"`
	Reason         string        `json:"reason,omitempty"`
	HedgeRatio     float64       `json:"hedge_ratio"`
	ExpectedProfit float64       `json:"expected_profit"`
	ActualProfit   float64       `json:"actual_profit"`
	Unhedged       bool          `json:"unhedged"`
	CreatedAt      time.Time     `json:"created_at"`
	ResolvedAt     *time.Time    `json:"resolved_at,omitempty"`
	Legs           []LegResponse `json:"legs"`
}

// ErrorResponse represents an HTTP error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

func toTradeResponse(t *ledger.Trade) TradeResponse {
	legs := make([]LegResponse, 0, len(t.Legs))
	for _, l := range t.Legs {
		legs = append(legs, LegResponse{
			ID:         l.ID,
			Side:       string(l.Side),
			Outcome:    string(l.Outcome),
			TokenID:    l.TokenID,
			Price:      l.Price,
			Size:       l.Size,
			Status:     string(l.Status),
			OrderID:    l.OrderID,
			FilledSize: l.FilledSize,
			FillPrice:  l.FillPrice,
			FilledAt:   l.FilledAt,
			Rebalance:  l.Rebalance,
			Error:      l.Error,
		})
	}
	return TradeResponse{
		ID:             t.ID,
		MarketID:       t.MarketID,
		MarketSlug:     t.MarketSlug,
		Asset:          t.Asset,
		Kind:           t.Kind,
		Status:         string(t.Status),
		Reason:         t.Reason,
		HedgeRatio:     t.HedgeRatio(),
		ExpectedProfit: t.ExpectedProfit,
		ActualProfit:   t.ActualProfit,
		Unhedged:       t.Unhedged,
		CreatedAt:      t.CreatedAt,
		ResolvedAt:     t.ResolvedAt,
		Legs:           legs,
	}
}

// handleBooks handles GET /api/books.
func (h *apiHandler) handleBooks(w http.ResponseWriter, _ *http.Request) {
	markets := h.books.Markets()
	resp := make([]BookResponse, 0, len(markets))
	for _, m := range markets {
		book, ok := h.books.Snapshot(m.ID)
		if !ok {
			continue
		}
		resp = append(resp, BookResponse{
			MarketID:   m.ID,
			MarketSlug: m.Slug,
			Asset:      m.Asset,
			ResolvesAt: m.ResolvesAt,
			YesBid:     book.YesBid,
			YesAsk:     book.YesAsk,
			NoBid:      book.NoBid,
			NoAsk:      book.NoAsk,
			UpdatedAt:  book.UpdatedAt,
			Stale:      book.Stale,
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// handleTrades handles GET /api/trades?market_id=&status=&limit=.
func (h *apiHandler) handleTrades(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ledger.Filter{MarketID: q.Get("market_id"), Limit: 100}

	for _, s := range q["status"] {
		filter.Statuses = append(filter.Statuses, ledger.Status(s))
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			h.writeError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		filter.Limit = limit
	}

	trades, err := h.trades.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list-trades-failed", zap.Error(err))
		h.writeError(w, "failed to list trades", http.StatusInternalServerError)
		return
	}

	resp := make([]TradeResponse, 0, len(trades))
	for _, t := range trades {
		resp = append(resp, toTradeResponse(t))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// handleTrade handles GET /api/trades/{id}.
func (h *apiHandler) handleTrade(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	trade, err := h.trades.Get(r.Context(), id)
	if errors.Is(err, ledger.ErrTradeNotFound) {
		h.writeError(w, "trade not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("get-trade-failed", zap.String("trade-id", id), zap.Error(err))
		h.writeError(w, "failed to load trade", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, toTradeResponse(trade))
}

// handleStats handles GET /api/stats.
func (h *apiHandler) handleStats(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.trades.Stats())
}

// handleBreaker handles GET /api/breaker.
func (h *apiHandler) handleBreaker(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.breaker.Status())
}

// ResetResponse reports a manual breaker reset.
type ResetResponse struct {
	Reset  bool                  `json:"reset"`
	Status circuitbreaker.Status `json:"status"`
}

// handleBreakerReset handles POST /api/breaker/reset with one of
// ?market_id=<id>, ?scope=global or ?scope=all.
func (h *apiHandler) handleBreakerReset(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var reset bool
	switch {
	case q.Get("market_id") != "":
		reset = h.breaker.ResetMarket(q.Get("market_id"))
	case q.Get("scope") == "global":
		reset = h.breaker.ResetGlobal("")
	case q.Get("scope") == "all":
		h.breaker.ResetAll()
		reset = true
	default:
		h.writeError(w, "one of market_id, scope=global or scope=all is required", http.StatusBadRequest)
		return
	}

	h.logger.Info("breaker-reset-requested",
		zap.String("market-id", q.Get("market_id")),
		zap.String("scope", q.Get("scope")),
		zap.Bool("reset", reset),
		zap.String("remote-addr", r.RemoteAddr))

	h.writeJSON(w, http.StatusOK, ResetResponse{Reset: reset, Status: h.breaker.Status()})
}

func (h *apiHandler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		h.logger.Error("failed-to-encode-response", zap.Error(err))
	}
}

// writeError writes a JSON error response.
func (h *apiHandler) writeError(w http.ResponseWriter, message string, statusCode int) {
	h.writeJSON(w, statusCode, ErrorResponse{Error: message})
}
