package orderbook

import (
	"sync"
	"time"

	"github.com/mselser95/polymarket-updown/pkg/types"
)

type pendingState struct {
	market *types.Market
	book   types.BookState
}

type throttleSlot struct {
	last    time.Time
	pending *pendingState
	timer   *time.Timer
}

// throttle coalesces per-market state changes to at most one emission per
// interval, always flushing the latest state at the end of the interval.
type throttle struct {
	interval time.Duration
	emit     func(market *types.Market, book types.BookState)
	mu       sync.Mutex
	slots    map[string]*throttleSlot
	stopped  bool
}

func newThrottle(interval time.Duration, emit func(*types.Market, types.BookState)) *throttle {
	return &throttle{
		interval: interval,
		emit:     emit,
		slots:    make(map[string]*throttleSlot),
	}
}

func (t *throttle) offer(market *types.Market, book types.BookState) {
	if t.interval <= 0 {
		StateEmissionsTotal.Inc()
		t.emit(market, book)
		return
	}

	now := time.Now()

	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}

	slot, ok := t.slots[market.ID]
	if !ok {
		slot = &throttleSlot{}
		t.slots[market.ID] = slot
	}

	elapsed := now.Sub(slot.last)
	if elapsed >= t.interval && slot.timer == nil {
		slot.last = now
		t.mu.Unlock()

		StateEmissionsTotal.Inc()
		t.emit(market, book)
		return
	}

	if slot.pending != nil {
		StateCoalescedTotal.Inc()
	}
	slot.pending = &pendingState{market: market, book: book}

	if slot.timer == nil {
		wait := t.interval - elapsed
		if wait < 0 {
			wait = 0
		}
		marketID := market.ID
		slot.timer = time.AfterFunc(wait, func() { t.flush(marketID) })
	}
	t.mu.Unlock()
}

func (t *throttle) flush(marketID string) {
	t.mu.Lock()
	slot, ok := t.slots[marketID]
	if !ok || t.stopped {
		t.mu.Unlock()
		return
	}

	pending := slot.pending
	slot.pending = nil
	slot.timer = nil
	slot.last = time.Now()
	t.mu.Unlock()

	if pending != nil {
		StateEmissionsTotal.Inc()
		t.emit(pending.market, pending.book)
	}
}

func (t *throttle) forget(marketID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	slot, ok := t.slots[marketID]
	if !ok {
		return
	}
	if slot.timer != nil {
		slot.timer.Stop()
	}
	delete(t.slots, marketID)
}

func (t *throttle) stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopped = true
	for _, slot := range t.slots {
		if slot.timer != nil {
			slot.timer.Stop()
		}
	}
}
