package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/mselser95/polymarket-updown/internal/ledger"
	"github.com/mselser95/polymarket-updown/pkg/types"
	"go.uber.org/zap"
)

// PostgresStorage implements Store using PostgreSQL.
type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

// PostgresConfig holds PostgreSQL configuration.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
	Logger   *zap.Logger
}

// NewPostgresStorage connects, verifies the connection and applies the schema.
func NewPostgresStorage(ctx context.Context, cfg *PostgresConfig) (*PostgresStorage, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.PingContext(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	p := newPostgresStorage(db, cfg.Logger)

	err = p.Migrate(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}

	cfg.Logger.Info("postgres-storage-connected",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database))

	return p, nil
}

func newPostgresStorage(db *sql.DB, logger *zap.Logger) *PostgresStorage {
	return &PostgresStorage{
		db:     db,
		logger: logger,
	}
}

// Migrate creates the tables if they do not exist.
func (p *PostgresStorage) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (p *PostgresStorage) InsertTrade(ctx context.Context, trade *ledger.Trade) error {
	query := `
		INSERT INTO trades (
			id, market_id, market_slug, asset, kind, status,
			expected_profit, actual_profit, unhedged, reason,
			created_at, updated_at, resolved_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := p.db.ExecContext(ctx, query,
		trade.ID,
		trade.MarketID,
		trade.MarketSlug,
		trade.Asset,
		trade.Kind,
		string(trade.Status),
		trade.ExpectedProfit,
		trade.ActualProfit,
		trade.Unhedged,
		trade.Reason,
		trade.CreatedAt,
		trade.UpdatedAt,
		nullTime(trade.ResolvedAt),
	)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}

	p.logger.Debug("trade-stored", zap.String("trade-id", trade.ID))
	return nil
}

func (p *PostgresStorage) UpdateTrade(ctx context.Context, trade *ledger.Trade) error {
	query := `
		UPDATE trades
		SET status = $2, actual_profit = $3, unhedged = $4, reason = $5,
			updated_at = $6, resolved_at = $7
		WHERE id = $1
	`

	res, err := p.db.ExecContext(ctx, query,
		trade.ID,
		string(trade.Status),
		trade.ActualProfit,
		trade.Unhedged,
		trade.Reason,
		trade.UpdatedAt,
		nullTime(trade.ResolvedAt),
	)
	if err != nil {
		return fmt.Errorf("update trade: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ledger.ErrTradeNotFound
	}

	return nil
}

func (p *PostgresStorage) UpsertLeg(ctx context.Context, leg *ledger.OrderLeg) error {
	query := `
		INSERT INTO order_legs (
			id, trade_id, side, outcome, token_id, price, size, status,
			order_id, filled_size, fill_price, filled_at, rebalance, error, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			order_id = EXCLUDED.order_id,
			filled_size = EXCLUDED.filled_size,
			fill_price = EXCLUDED.fill_price,
			filled_at = EXCLUDED.filled_at,
			error = EXCLUDED.error
	`

	_, err := p.db.ExecContext(ctx, query,
		leg.ID,
		leg.TradeID,
		string(leg.Side),
		string(leg.Outcome),
		leg.TokenID,
		leg.Price,
		leg.Size,
		string(leg.Status),
		leg.OrderID,
		leg.FilledSize,
		leg.FillPrice,
		nullTime(leg.FilledAt),
		leg.Rebalance,
		leg.Error,
		leg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert leg: %w", err)
	}

	return nil
}

func (p *PostgresStorage) InsertFill(ctx context.Context, fill *ledger.FillRecord) error {
	query := `
		INSERT INTO fill_records (id, leg_id, trade_id, fill_price, fill_size, slippage, filled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := p.db.ExecContext(ctx, query,
		fill.ID,
		fill.LegID,
		fill.TradeID,
		fill.FillPrice,
		fill.FillSize,
		fill.Slippage,
		fill.FilledAt,
	)
	if err != nil {
		return fmt.Errorf("insert fill: %w", err)
	}

	return nil
}

const tradeColumns = `id, market_id, market_slug, asset, kind, status,
	expected_profit, actual_profit, unhedged, reason, created_at, updated_at, resolved_at`

const legColumns = `id, trade_id, side, outcome, token_id, price, size, status,
	order_id, filled_size, fill_price, filled_at, rebalance, error, created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTrade(row rowScanner) (*ledger.Trade, error) {
	var trade ledger.Trade
	var status string
	var resolvedAt sql.NullTime

	err := row.Scan(
		&trade.ID,
		&trade.MarketID,
		&trade.MarketSlug,
		&trade.Asset,
		&trade.Kind,
		&status,
		&trade.ExpectedProfit,
		&trade.ActualProfit,
		&trade.Unhedged,
		&trade.Reason,
		&trade.CreatedAt,
		&trade.UpdatedAt,
		&resolvedAt,
	)
	if err != nil {
		return nil, err
	}

	trade.Status = ledger.Status(status)
	if resolvedAt.Valid {
		at := resolvedAt.Time
		trade.ResolvedAt = &at
	}
	return &trade, nil
}

func scanLeg(row rowScanner) (*ledger.OrderLeg, error) {
	var leg ledger.OrderLeg
	var side, outcome, status string
	var filledAt sql.NullTime

	err := row.Scan(
		&leg.ID,
		&leg.TradeID,
		&side,
		&outcome,
		&leg.TokenID,
		&leg.Price,
		&leg.Size,
		&status,
		&leg.OrderID,
		&leg.FilledSize,
		&leg.FillPrice,
		&filledAt,
		&leg.Rebalance,
		&leg.Error,
		&leg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	leg.Side = ledger.Side(side)
	leg.Outcome = types.Outcome(outcome)
	leg.Status = ledger.LegStatus(status)
	if filledAt.Valid {
		at := filledAt.Time
		leg.FilledAt = &at
	}
	return &leg, nil
}

func (p *PostgresStorage) GetTrade(ctx context.Context, id string) (*ledger.Trade, error) {
	row := p.db.QueryRowContext(ctx, "SELECT "+tradeColumns+" FROM trades WHERE id = $1", id)

	trade, err := scanTrade(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrTradeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan trade: %w", err)
	}

	err = p.attachLegs(ctx, []*ledger.Trade{trade})
	if err != nil {
		return nil, err
	}
	return trade, nil
}

func (p *PostgresStorage) ListTrades(ctx context.Context, filter ledger.Filter) ([]*ledger.Trade, error) {
	var where []string
	var args []interface{}

	if filter.MarketID != "" {
		args = append(args, filter.MarketID)
		where = append(where, fmt.Sprintf("market_id = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			statuses[i] = string(status)
		}
		args = append(args, pq.Array(statuses))
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
	}

	query := "SELECT " + tradeColumns + " FROM trades"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var trades []*ledger.Trade
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		trades = append(trades, trade)
	}
	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate trades: %w", err)
	}

	err = p.attachLegs(ctx, trades)
	if err != nil {
		return nil, err
	}
	return trades, nil
}

func (p *PostgresStorage) attachLegs(ctx context.Context, trades []*ledger.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	ids := make([]string, len(trades))
	byID := make(map[string]*ledger.Trade, len(trades))
	for i, trade := range trades {
		ids[i] = trade.ID
		byID[trade.ID] = trade
	}

	rows, err := p.db.QueryContext(ctx,
		"SELECT "+legColumns+" FROM order_legs WHERE trade_id = ANY($1) ORDER BY created_at",
		pq.Array(ids))
	if err != nil {
		return fmt.Errorf("query legs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		leg, err := scanLeg(rows)
		if err != nil {
			return fmt.Errorf("scan leg: %w", err)
		}
		if trade, ok := byID[leg.TradeID]; ok {
			trade.Legs = append(trade.Legs, leg)
		}
	}

	err = rows.Err()
	if err != nil {
		return fmt.Errorf("iterate legs: %w", err)
	}
	return nil
}

func (p *PostgresStorage) InsertSnapshot(ctx context.Context, snapshot *LiquiditySnapshot) error {
	query := `
		INSERT INTO liquidity_snapshots (market_id, market_slug, captured_at, yes_bid, yes_ask, no_bid, no_ask)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	err := p.db.QueryRowContext(ctx, query,
		snapshot.MarketID,
		snapshot.MarketSlug,
		snapshot.CapturedAt,
		snapshot.YesBid,
		snapshot.YesAsk,
		snapshot.NoBid,
		snapshot.NoAsk,
	).Scan(&snapshot.ID)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	return nil
}

func (p *PostgresStorage) Counts(ctx context.Context) (Counts, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM trades),
			(SELECT COUNT(*) FROM order_legs),
			(SELECT COUNT(*) FROM fill_records),
			(SELECT COUNT(*) FROM liquidity_snapshots)
	`

	var c Counts
	err := p.db.QueryRowContext(ctx, query).Scan(&c.Trades, &c.OrderLegs, &c.FillRecords, &c.LiquiditySnapshots)
	if err != nil {
		return Counts{}, fmt.Errorf("count rows: %w", err)
	}
	return c, nil
}

func (p *PostgresStorage) ResetSafe(ctx context.Context) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reset: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, stmt := range []string{"DELETE FROM order_legs", "DELETE FROM trades"} {
		_, err = tx.ExecContext(ctx, stmt)
		if err != nil {
			return fmt.Errorf("reset safe: %w", err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("commit reset: %w", err)
	}

	p.logger.Warn("storage-reset-safe")
	return nil
}

func (p *PostgresStorage) ResetDestructive(ctx context.Context, token string) error {
	err := checkResetToken(token)
	if err != nil {
		return err
	}

	_, err = p.db.ExecContext(ctx, "TRUNCATE order_legs, trades, fill_records, liquidity_snapshots RESTART IDENTITY")
	if err != nil {
		return fmt.Errorf("reset destructive: %w", err)
	}

	p.logger.Warn("storage-reset-destructive")
	return nil
}

// Close closes the database connection.
func (p *PostgresStorage) Close() error {
	p.logger.Info("closing-postgres-storage")
	return p.db.Close()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
