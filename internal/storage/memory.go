package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mselser95/polymarket-updown/internal/ledger"
	"go.uber.org/zap"
)

// MemoryStorage implements Store in process memory. Used in paper mode and tests.
type MemoryStorage struct {
	mu        sync.RWMutex
	trades    map[string]*ledger.Trade
	legs      map[string]*ledger.OrderLeg
	legOrder  []string
	fills     []*ledger.FillRecord
	snapshots []*LiquiditySnapshot
	logger    *zap.Logger
}

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage(logger *zap.Logger) *MemoryStorage {
	logger.Info("memory-storage-initialized")
	return &MemoryStorage{
		trades: make(map[string]*ledger.Trade),
		legs:   make(map[string]*ledger.OrderLeg),
		logger: logger,
	}
}

func (m *MemoryStorage) InsertTrade(_ context.Context, trade *ledger.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.trades[trade.ID]; exists {
		return fmt.Errorf("trade %s already exists", trade.ID)
	}

	stored := trade.Clone()
	stored.Legs = nil
	m.trades[trade.ID] = stored
	return nil
}

func (m *MemoryStorage) UpdateTrade(_ context.Context, trade *ledger.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.trades[trade.ID]; !exists {
		return ledger.ErrTradeNotFound
	}

	stored := trade.Clone()
	stored.Legs = nil
	m.trades[trade.ID] = stored
	return nil
}

func (m *MemoryStorage) UpsertLeg(_ context.Context, leg *ledger.OrderLeg) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.legs[leg.ID]; !exists {
		m.legOrder = append(m.legOrder, leg.ID)
	}
	legCopy := *leg
	m.legs[leg.ID] = &legCopy
	return nil
}

func (m *MemoryStorage) InsertFill(_ context.Context, fill *ledger.FillRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	fillCopy := *fill
	m.fills = append(m.fills, &fillCopy)
	return nil
}

func (m *MemoryStorage) GetTrade(_ context.Context, id string) (*ledger.Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored, exists := m.trades[id]
	if !exists {
		return nil, ledger.ErrTradeNotFound
	}
	return m.assemble(stored), nil
}

func (m *MemoryStorage) ListTrades(_ context.Context, filter ledger.Filter) ([]*ledger.Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	trades := make([]*ledger.Trade, 0, len(m.trades))
	for _, stored := range m.trades {
		if !matches(stored, filter) {
			continue
		}
		trades = append(trades, m.assemble(stored))
	}

	sort.Slice(trades, func(i, j int) bool {
		return trades[i].CreatedAt.After(trades[j].CreatedAt)
	})

	if filter.Limit > 0 && len(trades) > filter.Limit {
		trades = trades[:filter.Limit]
	}
	return trades, nil
}

func matches(trade *ledger.Trade, filter ledger.Filter) bool {
	if filter.MarketID != "" && trade.MarketID != filter.MarketID {
		return false
	}
	if len(filter.Statuses) == 0 {
		return true
	}
	for _, status := range filter.Statuses {
		if trade.Status == status {
			return true
		}
	}
	return false
}

// assemble must be called with the read lock held.
func (m *MemoryStorage) assemble(stored *ledger.Trade) *ledger.Trade {
	trade := stored.Clone()
	for _, legID := range m.legOrder {
		leg := m.legs[legID]
		if leg.TradeID == trade.ID {
			legCopy := *leg
			trade.Legs = append(trade.Legs, &legCopy)
		}
	}
	return trade
}

func (m *MemoryStorage) InsertSnapshot(_ context.Context, snapshot *LiquiditySnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshotCopy := *snapshot
	snapshotCopy.ID = int64(len(m.snapshots) + 1)
	m.snapshots = append(m.snapshots, &snapshotCopy)
	return nil
}

func (m *MemoryStorage) Counts(_ context.Context) (Counts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return Counts{
		Trades:             int64(len(m.trades)),
		OrderLegs:          int64(len(m.legs)),
		FillRecords:        int64(len(m.fills)),
		LiquiditySnapshots: int64(len(m.snapshots)),
	}, nil
}

func (m *MemoryStorage) ResetSafe(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.trades = make(map[string]*ledger.Trade)
	m.legs = make(map[string]*ledger.OrderLeg)
	m.legOrder = nil

	m.logger.Warn("storage-reset-safe")
	return nil
}

func (m *MemoryStorage) ResetDestructive(_ context.Context, token string) error {
	err := checkResetToken(token)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.trades = make(map[string]*ledger.Trade)
	m.legs = make(map[string]*ledger.OrderLeg)
	m.legOrder = nil
	m.fills = nil
	m.snapshots = nil

	m.logger.Warn("storage-reset-destructive")
	return nil
}

// Close is a no-op for memory storage.
func (m *MemoryStorage) Close() error {
	m.logger.Info("closing-memory-storage")
	return nil
}
