package rotation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mselser95/polymarket-updown/pkg/cache"
	"github.com/mselser95/polymarket-updown/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var slot0 = time.Unix(1_760_537_700, 0).UTC()

type fakeLookup struct {
	mu      sync.Mutex
	markets map[string]*types.GammaMarket
	err     error
	calls   map[string]int
}

func newFakeLookup() *fakeLookup {
	return &fakeLookup{
		markets: make(map[string]*types.GammaMarket),
		calls:   make(map[string]int),
	}
}

func (f *fakeLookup) list(asset string, slot time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	slug := Slug(asset, slot)
	f.markets[slug] = &types.GammaMarket{
		ID:      "id-" + slug,
		Slug:    slug,
		Active:  true,
		EndDate: slot.Add(DefaultPeriod),
		Tokens: []types.Token{
			{TokenID: slug + "-up", Outcome: "Up"},
			{TokenID: slug + "-down", Outcome: "Down"},
		},
	}
}

func (f *fakeLookup) resolve(slug string, winner types.Outcome) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markets[slug].Closed = true
	f.markets[slug].ResolvedOutcome = winner
}

func (f *fakeLookup) MarketBySlug(_ context.Context, slug string) (*types.GammaMarket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[slug]++
	if f.err != nil {
		return nil, f.err
	}
	gm, ok := f.markets[slug]
	if !ok {
		return nil, ErrMarketNotFound
	}
	clone := *gm
	return &clone, nil
}

type fakeTracker struct {
	mu        sync.Mutex
	tracked   map[string]*types.Market
	untracked []string
	err       error
}

func (f *fakeTracker) Track(_ context.Context, market *types.Market) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.tracked == nil {
		f.tracked = make(map[string]*types.Market)
	}
	f.tracked[market.ID] = market
	return nil
}

func (f *fakeTracker) Untrack(_ context.Context, marketID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tracked, marketID)
	f.untracked = append(f.untracked, marketID)
	return nil
}

func newTestRotator(t *testing.T, lookup Lookup, tracker Tracker) *Rotator {
	t.Helper()

	c, err := cache.New[*types.Market](&cache.Config{
		Name:        "rotation-test",
		NumCounters: 1000,
		MaxCost:     100,
		BufferItems: 64,
		Logger:      zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	t.Cleanup(c.Close)

	r, err := New(Config{
		Logger:     zaptest.NewLogger(t),
		Lookup:     lookup,
		Tracker:    tracker,
		Cache:      c,
		Assets:     []string{"BTC"},
		AttachLead: 30 * time.Second,
		Grace:      2 * time.Minute,
	})
	require.NoError(t, err)
	return r
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)

	_, err = New(Config{Logger: zaptest.NewLogger(t), Lookup: newFakeLookup(), Tracker: &fakeTracker{}})
	require.Error(t, err)
}

func TestSync_AttachesCurrentWindow(t *testing.T) {
	lookup := newFakeLookup()
	lookup.list("btc", slot0)
	tracker := &fakeTracker{}
	r := newTestRotator(t, lookup, tracker)

	require.NoError(t, r.Sync(context.Background(), slot0.Add(time.Minute)))

	attached := r.Attached()
	require.Len(t, attached, 1)
	m := attached[0]
	assert.Equal(t, "btc-updown-15m-1760537700", m.Slug)
	assert.Equal(t, "BTC", m.Asset)
	assert.Equal(t, m.Slug+"-up", m.YesTokenID)
	assert.Equal(t, m.Slug+"-down", m.NoTokenID)
	assert.Equal(t, slot0, m.OpensAt)
	assert.Equal(t, slot0.Add(DefaultPeriod), m.ResolvesAt)
	assert.InDelta(t, defaultTickSize, m.TickSize, 1e-9)
	assert.InDelta(t, float64(defaultMinSize), m.MinSize, 1e-9)
	assert.Contains(t, tracker.tracked, m.ID)

	// Idempotent.
	require.NoError(t, r.Sync(context.Background(), slot0.Add(2*time.Minute)))
	assert.Len(t, r.Attached(), 1)
}

func TestSync_AttachesNextWindowWithinLead(t *testing.T) {
	lookup := newFakeLookup()
	next := slot0.Add(DefaultPeriod)
	lookup.list("btc", slot0)
	lookup.list("btc", next)
	r := newTestRotator(t, lookup, &fakeTracker{})

	require.NoError(t, r.Sync(context.Background(), next.Add(-time.Minute)))
	assert.Len(t, r.Attached(), 1)

	require.NoError(t, r.Sync(context.Background(), next.Add(-20*time.Second)))
	attached := r.Attached()
	require.Len(t, attached, 2)
	assert.Equal(t, Slug("btc", slot0), attached[0].Slug)
	assert.Equal(t, Slug("btc", next), attached[1].Slug)
}

func TestSync_UnlistedWindowIsNotAnError(t *testing.T) {
	lookup := newFakeLookup()
	r := newTestRotator(t, lookup, &fakeTracker{})

	require.NoError(t, r.Sync(context.Background(), slot0.Add(time.Minute)))
	assert.Empty(t, r.Attached())

	lookup.list("btc", slot0)
	require.NoError(t, r.Sync(context.Background(), slot0.Add(2*time.Minute)))
	assert.Len(t, r.Attached(), 1)
}

func TestSync_LookupAndTrackErrors(t *testing.T) {
	lookup := newFakeLookup()
	lookup.list("btc", slot0)
	lookup.err = errors.New("gamma down")
	tracker := &fakeTracker{}
	r := newTestRotator(t, lookup, tracker)

	err := r.Sync(context.Background(), slot0.Add(time.Minute))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gamma down")
	assert.Empty(t, r.Attached())

	lookup.err = nil
	tracker.err = errors.New("subscribe failed")
	err = r.Sync(context.Background(), slot0.Add(time.Minute))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "subscribe failed")
	assert.Empty(t, r.Attached())

	tracker.err = nil
	require.NoError(t, r.Sync(context.Background(), slot0.Add(time.Minute)))
	assert.Len(t, r.Attached(), 1)
}

func TestSync_MissingTokens(t *testing.T) {
	lookup := newFakeLookup()
	slug := Slug("btc", slot0)
	lookup.markets[slug] = &types.GammaMarket{ID: "x", Slug: slug}
	r := newTestRotator(t, lookup, &fakeTracker{})

	err := r.Sync(context.Background(), slot0.Add(time.Minute))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing up/down tokens")
}

func TestSync_DetachesAfterGrace(t *testing.T) {
	lookup := newFakeLookup()
	lookup.list("btc", slot0)
	tracker := &fakeTracker{}
	r := newTestRotator(t, lookup, tracker)

	var (
		detached *types.Market
		winner   types.Outcome
	)
	r.OnDetach(func(_ context.Context, m *types.Market, w types.Outcome) {
		detached = m
		winner = w
	})

	require.NoError(t, r.Sync(context.Background(), slot0.Add(time.Minute)))
	id := r.Attached()[0].ID

	resolvesAt := slot0.Add(DefaultPeriod)

	// Inside grace: still attached.
	require.NoError(t, r.Sync(context.Background(), resolvesAt.Add(time.Minute)))
	assert.Len(t, r.Attached(), 1)
	assert.Nil(t, detached)

	lookup.resolve(Slug("btc", slot0), types.OutcomeYes)

	require.NoError(t, r.Sync(context.Background(), resolvesAt.Add(2*time.Minute+time.Second)))
	assert.Empty(t, r.Attached())
	assert.Equal(t, []string{id}, tracker.untracked)
	require.NotNil(t, detached)
	assert.Equal(t, id, detached.ID)
	assert.Equal(t, types.OutcomeYes, winner)
}

func TestSync_DetachWithoutPublishedWinner(t *testing.T) {
	lookup := newFakeLookup()
	lookup.list("btc", slot0)
	r := newTestRotator(t, lookup, &fakeTracker{})

	called := false
	var winner types.Outcome = "unset"
	r.OnDetach(func(_ context.Context, _ *types.Market, w types.Outcome) {
		called = true
		winner = w
	})

	require.NoError(t, r.Sync(context.Background(), slot0.Add(time.Minute)))
	require.NoError(t, r.Sync(context.Background(), slot0.Add(DefaultPeriod+3*time.Minute)))

	assert.True(t, called)
	assert.Empty(t, winner)
}
