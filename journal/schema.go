package journal

const Schema = `
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	time DATETIME NOT NULL,
	kind TEXT NOT NULL,
	pair_id TEXT NOT NULL DEFAULT '',
	side TEXT NOT NULL DEFAULT '',
	ticket TEXT NOT NULL DEFAULT '',
	sl REAL NOT NULL DEFAULT 0,
	entry REAL NOT NULL DEFAULT 0,
	price REAL NOT NULL DEFAULT 0,
	atr REAL NOT NULL DEFAULT 0,
	outcome TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS trades (
	ticket TEXT PRIMARY KEY,
	pair_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	role TEXT NOT NULL,
	lots REAL NOT NULL,
	entry_price REAL NOT NULL,
	exit_price REAL NOT NULL,
	close_time DATETIME NOT NULL,
	points REAL NOT NULL,
	reason TEXT NOT NULL,
	already_closed INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_events_time ON events(time);
CREATE INDEX IF NOT EXISTS idx_events_pair ON events(pair_id);
CREATE INDEX IF NOT EXISTS idx_trades_close_time ON trades(close_time);
`
