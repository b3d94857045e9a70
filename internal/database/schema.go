package database

// schemaSQL is the single source of truth for the PersistenceStore tables
// from spec §3/§6. All statements are idempotent so Migrate can run on
// every startup.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS watchlist (
	symbol       TEXT PRIMARY KEY,
	market       TEXT NOT NULL,
	display_name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
	symbol                 TEXT PRIMARY KEY,
	volume                 INTEGER NOT NULL CHECK (volume >= 0),
	available              INTEGER NOT NULL CHECK (available >= 0),
	avg_cost               TEXT NOT NULL,
	base_cost              TEXT NOT NULL,
	current_price          TEXT NOT NULL,
	highest_price          TEXT NOT NULL,
	stop_loss_price        TEXT NOT NULL,
	first_profit_triggered INTEGER NOT NULL DEFAULT 0,
	open_date              TIMESTAMP NOT NULL,
	CHECK (available <= volume)
);

CREATE TABLE IF NOT EXISTS trade_records (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol       TEXT NOT NULL,
	trade_time   TIMESTAMP NOT NULL,
	side         TEXT NOT NULL CHECK (side IN ('BUY','SELL')),
	price        TEXT NOT NULL,
	volume       INTEGER NOT NULL,
	amount       TEXT NOT NULL,
	order_id     TEXT NOT NULL,
	commission   TEXT NOT NULL DEFAULT '0',
	strategy_tag TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_trade_records_symbol ON trade_records(symbol);
CREATE INDEX IF NOT EXISTS idx_trade_records_order_id ON trade_records(order_id);

CREATE TABLE IF NOT EXISTS grid_sessions (
	session_id           TEXT PRIMARY KEY,
	symbol               TEXT NOT NULL,
	status               TEXT NOT NULL CHECK (status IN ('active','stopped','completed')),
	exit_reason          TEXT NOT NULL DEFAULT '',
	center_price         TEXT NOT NULL,
	current_center_price TEXT NOT NULL,
	start_time           TIMESTAMP NOT NULL,
	end_time             TIMESTAMP NOT NULL,
	duration_days        INTEGER NOT NULL,
	price_interval       TEXT NOT NULL,
	position_ratio       TEXT NOT NULL,
	callback_ratio       TEXT NOT NULL,
	max_investment       TEXT NOT NULL,
	max_deviation        TEXT NOT NULL,
	target_profit        TEXT NOT NULL,
	stop_loss            TEXT NOT NULL,
	risk_level           TEXT NOT NULL,
	buy_count            INTEGER NOT NULL DEFAULT 0,
	sell_count           INTEGER NOT NULL DEFAULT 0,
	current_investment   TEXT NOT NULL DEFAULT '0',
	realized_pnl         TEXT NOT NULL DEFAULT '0',
	total_buy_amount     TEXT NOT NULL DEFAULT '0',
	total_sell_amount    TEXT NOT NULL DEFAULT '0',
	snapshot             BLOB
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_grid_sessions_active_symbol
	ON grid_sessions(symbol) WHERE status = 'active';

CREATE TABLE IF NOT EXISTS grid_trades (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	stock_code TEXT NOT NULL,
	grid_level INTEGER NOT NULL,
	side       TEXT NOT NULL CHECK (side IN ('BUY','SELL')),
	buy_price  TEXT,
	sell_price TEXT,
	price      TEXT NOT NULL,
	volume     INTEGER NOT NULL,
	status     TEXT NOT NULL DEFAULT 'PENDING' CHECK (status IN ('PENDING','ACTIVE','COMPLETED')),
	create_time TIMESTAMP NOT NULL,
	update_time TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_grid_trades_session ON grid_trades(session_id);

CREATE TABLE IF NOT EXISTS risk_templates (
	name           TEXT PRIMARY KEY,
	description    TEXT NOT NULL DEFAULT '',
	price_interval TEXT NOT NULL,
	position_ratio TEXT NOT NULL,
	callback_ratio TEXT NOT NULL,
	max_investment TEXT NOT NULL,
	max_deviation  TEXT NOT NULL,
	target_profit  TEXT NOT NULL,
	stop_loss      TEXT NOT NULL,
	risk_level     TEXT NOT NULL,
	is_default     INTEGER NOT NULL DEFAULT 0,
	usage_count    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS stock_daily_data (
	symbol TEXT NOT NULL,
	trade_date TEXT NOT NULL,
	open   TEXT NOT NULL,
	high   TEXT NOT NULL,
	low    TEXT NOT NULL,
	close  TEXT NOT NULL,
	volume INTEGER NOT NULL,
	amount TEXT NOT NULL,
	PRIMARY KEY (symbol, trade_date)
);

CREATE TABLE IF NOT EXISTS stock_indicators (
	symbol     TEXT NOT NULL,
	trade_date TEXT NOT NULL,
	rsi14      TEXT,
	ema200     TEXT,
	boll_upper TEXT,
	boll_mid   TEXT,
	boll_lower TEXT,
	PRIMARY KEY (symbol, trade_date)
);

CREATE TABLE IF NOT EXISTS settings (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
