package httpserver

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/mselser95/polymarket-updown/internal/circuitbreaker"
	"github.com/mselser95/polymarket-updown/internal/ledger"
	"github.com/mselser95/polymarket-updown/internal/storage"
	"github.com/mselser95/polymarket-updown/pkg/healthprobe"
	"github.com/mselser95/polymarket-updown/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type fakeBooks struct {
	markets []*types.Market
	books   map[string]types.BookState
}

func (f *fakeBooks) Markets() []*types.Market { return f.markets }

func (f *fakeBooks) Snapshot(id string) (types.BookState, bool) {
	b, ok := f.books[id]
	return b, ok
}

type fixture struct {
	router  http.Handler
	ledger  *ledger.Ledger
	breaker *circuitbreaker.Breaker
	health  *healthprobe.HealthChecker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := zaptest.NewLogger(t)
	l := ledger.New(storage.NewMemoryStorage(logger), logger)
	b := circuitbreaker.NewBreaker(logger)
	hc := healthprobe.New()

	m1 := &types.Market{ID: "m1", Slug: "btc-updown-15m-1760537700", Asset: "btc", ResolvesAt: time.Unix(1_760_538_600, 0)}
	m2 := &types.Market{ID: "m2", Slug: "eth-updown-15m-1760537700", Asset: "eth"}
	books := &fakeBooks{
		markets: []*types.Market{m1, m2},
		books: map[string]types.BookState{
			"m1": {MarketID: "m1", YesBid: 0.44, YesAsk: 0.45, NoBid: 0.5, NoAsk: 0.51},
		},
	}

	router := NewRouter(&Config{
		Logger:        logger,
		HealthChecker: hc,
		Books:         books,
		Trades:        l,
		Breaker:       b,
	})

	return &fixture{router: router, ledger: l, breaker: b, health: hc}
}

func (f *fixture) do(t *testing.T, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestNew(t *testing.T) {
	hc := healthprobe.New()
	s := New(&Config{Port: "8080", Logger: zap.NewNop(), HealthChecker: hc})
	require.NotNil(t, s.server)
	assert.Equal(t, ":8080", s.server.Addr)
	assert.Same(t, hc, s.healthChecker)
}

func TestHealthAndReady(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health").Code)
	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodGet, "/ready").Code)

	f.health.SetReady(true)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/ready").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	assert.NotEmpty(t, body)
}

func TestBooksEndpoint(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/api/books")
	require.Equal(t, http.StatusOK, w.Code)

	var books []BookResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &books))
	require.Len(t, books, 1, "markets without a book are skipped")
	assert.Equal(t, "btc-updown-15m-1760537700", books[0].MarketSlug)
	assert.InDelta(t, 0.45, books[0].YesAsk, 1e-9)
	assert.InDelta(t, 0.51, books[0].NoAsk, 1e-9)
}

func TestTradeEndpoints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	trade := &ledger.Trade{
		ID:         "t1",
		MarketID:   "m1",
		MarketSlug: "btc-updown-15m-1760537700",
		Asset:      "btc",
		Kind:       "ARBITRAGE",
		CreatedAt:  time.Unix(1_760_537_800, 0),
		Legs: []*ledger.OrderLeg{
			{ID: "l1", TradeID: "t1", Side: ledger.SideBuy, Outcome: types.OutcomeYes, Price: 0.46, Size: 10, Status: ledger.LegSigned},
		},
	}
	require.NoError(t, f.ledger.Open(ctx, trade))
	require.NoError(t, f.ledger.RecordLeg(ctx, trade.Legs[0]))

	w := f.do(t, http.MethodGet, "/api/trades/t1")
	require.Equal(t, http.StatusOK, w.Code)
	var got TradeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "PENDING", got.Status)
	require.Len(t, got.Legs, 1)
	assert.Equal(t, "YES", got.Legs[0].Outcome)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/trades/missing").Code)

	w = f.do(t, http.MethodGet, "/api/trades?market_id=m1&status=PENDING")
	require.Equal(t, http.StatusOK, w.Code)
	var list []TradeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	w = f.do(t, http.MethodGet, "/api/trades?status=HEDGED")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Empty(t, list)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/trades?limit=abc").Code)

	w = f.do(t, http.MethodGet, "/api/stats")
	require.Equal(t, http.StatusOK, w.Code)
	var stats ledger.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Opened)
}

func TestBreakerEndpoints(t *testing.T) {
	f := newFixture(t)
	f.breaker.TripMarket("m1", "hedge", "hedge ratio below critical", 0.3)
	f.breaker.TripGlobal("auth", "blocked")

	w := f.do(t, http.MethodGet, "/api/breaker")
	require.Equal(t, http.StatusOK, w.Code)
	var status circuitbreaker.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	require.NotNil(t, status.Global)
	require.Len(t, status.Markets, 1)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/breaker/reset").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, f.do(t, http.MethodGet, "/api/breaker/reset?scope=all").Code)

	w = f.do(t, http.MethodPost, "/api/breaker/reset?market_id=m1")
	require.Equal(t, http.StatusOK, w.Code)
	var reset ResetResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reset))
	assert.True(t, reset.Reset)
	assert.Empty(t, reset.Status.Markets)
	assert.NotNil(t, reset.Status.Global)

	w = f.do(t, http.MethodPost, "/api/breaker/reset?scope=global")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reset))
	assert.True(t, reset.Reset)
	assert.Nil(t, reset.Status.Global)
	require.NoError(t, f.breaker.Allow("m1"))
}

func TestOptionalRoutesDisabled(t *testing.T) {
	router := NewRouter(&Config{Logger: zap.NewNop(), HealthChecker: healthprobe.New()})

	for _, path := range []string{"/api/books", "/api/trades/x", "/api/breaker", "/ws/telemetry"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
}
