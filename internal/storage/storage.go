package storage

import (
	"context"
	"errors"
	"time"

	"github.com/mselser95/polymarket-updown/internal/ledger"
)

// DestructiveResetToken must be passed to ResetDestructive verbatim.
const DestructiveResetToken = "DELETE-ALL-HISTORY"

// ErrBadResetToken is returned when the destructive reset confirmation does not match.
var ErrBadResetToken = errors.New("destructive reset confirmation token mismatch")

// LiquiditySnapshot is an append-only capture of a market's top of book.
type LiquiditySnapshot struct {
	ID         int64
	MarketID   string
	MarketSlug string
	CapturedAt time.Time
	YesBid     float64
	YesAsk     float64
	NoBid      float64
	NoAsk      float64
}

// Counts holds row counts per table.
type Counts struct {
	Trades             int64 `json:"trades"`
	OrderLegs          int64 `json:"order_legs"`
	FillRecords        int64 `json:"fill_records"`
	LiquiditySnapshots int64 `json:"liquidity_snapshots"`
}

// Store is the persistence boundary of the engine.
type Store interface {
	ledger.Store

	// InsertSnapshot appends a liquidity snapshot.
	InsertSnapshot(ctx context.Context, snapshot *LiquiditySnapshot) error

	// Counts returns row counts per table.
	Counts(ctx context.Context) (Counts, error)

	// ResetSafe clears trade history. Fill records and liquidity snapshots are kept.
	ResetSafe(ctx context.Context) error

	// ResetDestructive removes everything, including append-only tables.
	ResetDestructive(ctx context.Context, token string) error

	// Close closes the storage connection.
	Close() error
}

func checkResetToken(token string) error {
	if token != DestructiveResetToken {
		return ErrBadResetToken
	}
	return nil
}
