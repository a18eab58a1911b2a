package storage

// schema creates the four tables. fill_records and liquidity_snapshots carry no
// foreign keys so a safe reset of trades and legs leaves them intact.
const schema = `
CREATE TABLE IF NOT EXISTS trades (
	id              TEXT PRIMARY KEY,
	market_id       TEXT NOT NULL,
	market_slug     TEXT NOT NULL,
	asset           TEXT NOT NULL,
	kind            TEXT NOT NULL,
	status          TEXT NOT NULL,
	expected_profit DOUBLE PRECISION NOT NULL,
	actual_profit   DOUBLE PRECISION NOT NULL DEFAULT 0,
	unhedged        BOOLEAN NOT NULL DEFAULT FALSE,
	reason          TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL,
	resolved_at     TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS trades_market_id_idx ON trades (market_id);

CREATE TABLE IF NOT EXISTS order_legs (
	id          TEXT PRIMARY KEY,
	trade_id    TEXT NOT NULL REFERENCES trades (id) ON DELETE CASCADE,
	side        TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	token_id    TEXT NOT NULL,
	price       DOUBLE PRECISION NOT NULL,
	size        DOUBLE PRECISION NOT NULL,
	status      TEXT NOT NULL,
	order_id    TEXT NOT NULL DEFAULT '',
	filled_size DOUBLE PRECISION NOT NULL DEFAULT 0,
	fill_price  DOUBLE PRECISION NOT NULL DEFAULT 0,
	filled_at   TIMESTAMPTZ,
	rebalance   BOOLEAN NOT NULL DEFAULT FALSE,
	error       TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS order_legs_trade_id_idx ON order_legs (trade_id);

CREATE TABLE IF NOT EXISTS fill_records (
	id         TEXT PRIMARY KEY,
	leg_id     TEXT NOT NULL,
	trade_id   TEXT NOT NULL,
	fill_price DOUBLE PRECISION NOT NULL,
	fill_size  DOUBLE PRECISION NOT NULL,
	slippage   DOUBLE PRECISION NOT NULL,
	filled_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS liquidity_snapshots (
	id          BIGSERIAL PRIMARY KEY,
	market_id   TEXT NOT NULL,
	market_slug TEXT NOT NULL,
	captured_at TIMESTAMPTZ NOT NULL,
	yes_bid     DOUBLE PRECISION NOT NULL,
	yes_ask     DOUBLE PRECISION NOT NULL,
	no_bid      DOUBLE PRECISION NOT NULL,
	no_ask      DOUBLE PRECISION NOT NULL
);
`
