package execution

import "sync"

// gate admits one trade per market at a time.
type gate struct {
	mu   sync.Mutex
	busy map[string]struct{}
}

func newGate() *gate {
	return &gate{busy: make(map[string]struct{})}
}

func (g *gate) tryAcquire(marketID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, held := g.busy[marketID]; held {
		return false
	}
	g.busy[marketID] = struct{}{}
	return true
}

func (g *gate) release(marketID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.busy, marketID)
}
