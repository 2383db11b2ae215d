package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY,
    username      TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL DEFAULT 'customer' CHECK (role IN ('admin', 'customer')),
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at    DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_active
    ON users(username) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS items (
    id          TEXT PRIMARY KEY,
    title       TEXT NOT NULL,
    artist      TEXT NOT NULL,
    year        INTEGER,
    country     TEXT,
    format      TEXT,
    condition   TEXT NOT NULL,
    price       TEXT NOT NULL,
    currency    TEXT NOT NULL CHECK (currency IN ('ARS', 'USD')),
    stock       INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
    status      TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'sold_out', 'archived')),
    thumbnail   TEXT,
    discogs_id  INTEGER,
    discogs_url TEXT,
    created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS orders (
    id                  TEXT PRIMARY KEY,
    order_number        TEXT NOT NULL,
    owner_id            INTEGER NOT NULL REFERENCES users(id),
    intent              TEXT NOT NULL CHECK (intent IN ('buy', 'sell')),
    status              TEXT NOT NULL DEFAULT 'pending'
                        CHECK (status IN ('pending', 'quoted', 'counteroffered', 'negotiating', 'venta_finalizada', 'cancelled')),
    last_admin_price    TEXT,
    last_admin_currency TEXT,
    last_user_price     TEXT,
    last_user_currency  TEXT,
    created_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS order_lines (
    id        INTEGER PRIMARY KEY,
    order_id  TEXT NOT NULL REFERENCES orders(id),
    title     TEXT NOT NULL,
    artist    TEXT NOT NULL,
    format    TEXT,
    condition TEXT,
    price     TEXT NOT NULL,
    currency  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS order_offers (
    id         INTEGER PRIMARY KEY,
    order_id   TEXT NOT NULL REFERENCES orders(id),
    sender     TEXT NOT NULL CHECK (sender IN ('user', 'admin')),
    price      TEXT NOT NULL,
    currency   TEXT NOT NULL,
    message    TEXT,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS trades (
    id              TEXT PRIMARY KEY,
    sender_id       INTEGER NOT NULL REFERENCES users(id),
    counterparty_id INTEGER NOT NULL REFERENCES users(id),
    status          TEXT NOT NULL DEFAULT 'pending'
                    CHECK (status IN ('pending', 'counter_offer', 'accepted', 'cancelled')),
    current_turn    INTEGER NOT NULL,
    revision        INTEGER NOT NULL DEFAULT 1,
    created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS trade_revisions (
    trade_id        TEXT NOT NULL REFERENCES trades(id),
    revision        INTEGER NOT NULL,
    actor_id        INTEGER NOT NULL REFERENCES users(id),
    cash_adjustment TEXT NOT NULL DEFAULT '0',
    created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (trade_id, revision)
);

CREATE TABLE IF NOT EXISTS trade_items (
    trade_id TEXT NOT NULL,
    revision INTEGER NOT NULL,
    item_id  TEXT NOT NULL REFERENCES items(id),
    side     TEXT NOT NULL CHECK (side IN ('offered', 'requested')),
    PRIMARY KEY (trade_id, revision, item_id),
    FOREIGN KEY (trade_id, revision) REFERENCES trade_revisions(trade_id, revision)
);

CREATE TABLE IF NOT EXISTS settlements (
    id              INTEGER PRIMARY KEY,
    trade_id        TEXT NOT NULL REFERENCES trades(id),
    cash_adjustment TEXT NOT NULL,
    settled_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS notifications (
    id         INTEGER PRIMARY KEY,
    user_id    INTEGER NOT NULL REFERENCES users(id),
    title      TEXT NOT NULL,
    message    TEXT NOT NULL,
    order_id   TEXT,
    trade_id   TEXT,
    read       INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);
`

// EnsureSchema creates all tables and indexes if they don't already exist.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}
