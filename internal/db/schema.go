package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema.
const schema = `
CREATE TABLE IF NOT EXISTS profiles (
    id         TEXT PRIMARY KEY,
    email      TEXT NOT NULL,
    full_name  TEXT,
    role       TEXT NOT NULL DEFAULT 'USER' CHECK (role IN ('ADMIN', 'MANAGER', 'USER')),
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_profiles_email_active
    ON profiles(email) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS locations (
    id            INTEGER PRIMARY KEY,
    name          TEXT NOT NULL,
    type          TEXT NOT NULL DEFAULT 'CABINET' CHECK (type IN ('CABINET', 'DRAWER', 'BIN')),
    parent_id     INTEGER REFERENCES locations(id),
    is_restricted INTEGER NOT NULL DEFAULT 0,
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS access_permissions (
    id             INTEGER PRIMARY KEY,
    user_id        TEXT NOT NULL REFERENCES profiles(id),
    location_id    INTEGER NOT NULL REFERENCES locations(id),
    status         TEXT NOT NULL DEFAULT 'PENDING' CHECK (status IN ('PENDING', 'APPROVED', 'REJECTED', 'REVOKED')),
    valid_from     DATETIME,
    valid_until    DATETIME,
    request_reason TEXT,
    approved_by    TEXT,
    created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_access_permissions_user_location
    ON access_permissions(user_id, location_id);

CREATE TABLE IF NOT EXISTS user_cards (
    id           INTEGER PRIMARY KEY,
    user_id      TEXT NOT NULL REFERENCES profiles(id),
    card_uid     TEXT NOT NULL UNIQUE,
    is_active    INTEGER NOT NULL DEFAULT 1,
    last_used_at DATETIME,
    created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS pairing_codes (
    user_id    TEXT PRIMARY KEY REFERENCES profiles(id),
    token_hash TEXT NOT NULL UNIQUE,
    expires_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS item_types (
    id                  INTEGER PRIMARY KEY,
    name                TEXT NOT NULL,
    category            TEXT CHECK (category IS NULL OR category IN ('TOOL', 'CONSUMABLE', 'DEVICE')),
    description         TEXT,
    max_borrow_duration TEXT NOT NULL DEFAULT '7 days',
    created_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS items (
    id                TEXT PRIMARY KEY,
    item_type_id      INTEGER NOT NULL REFERENCES item_types(id),
    rfid_tag          TEXT NOT NULL UNIQUE,
    status            TEXT NOT NULL DEFAULT 'AVAILABLE' CHECK (status IN ('AVAILABLE', 'BORROWED', 'MISSING', 'MAINTENANCE')),
    home_location_id  INTEGER REFERENCES locations(id),
    current_holder_id TEXT,
    due_at            DATETIME,
    updated_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    CHECK ((status = 'BORROWED') = (current_holder_id IS NOT NULL AND due_at IS NOT NULL)),
    CHECK (status = 'BORROWED' OR (current_holder_id IS NULL AND due_at IS NULL))
);

CREATE INDEX IF NOT EXISTS idx_items_holder ON items(current_holder_id);

CREATE TABLE IF NOT EXISTS cabinet_sessions (
    id                   TEXT PRIMARY KEY,
    cabinet_id           INTEGER NOT NULL REFERENCES locations(id),
    user_id              TEXT NOT NULL,
    start_time           DATETIME NOT NULL,
    end_time             DATETIME,
    status               TEXT NOT NULL DEFAULT 'ACTIVE' CHECK (status IN ('ACTIVE', 'COMPLETED', 'TIMEOUT', 'FORCE_CLOSED')),
    snapshot_start_rfids TEXT,
    snapshot_end_rfids   TEXT,
    created_at           DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS session_evidence (
    session_id TEXT PRIMARY KEY REFERENCES cabinet_sessions(id) ON DELETE CASCADE,
    image      BLOB NOT NULL,
    image_mime TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS inventory_transactions (
    id                  INTEGER PRIMARY KEY,
    session_id          TEXT NOT NULL REFERENCES cabinet_sessions(id) ON DELETE CASCADE,
    item_id             TEXT NOT NULL REFERENCES items(id),
    user_id             TEXT NOT NULL,
    action_type         TEXT NOT NULL CHECK (action_type IN ('BORROW', 'RETURN', 'MISSING_UNEXPECTED')),
    evidence_image_path TEXT,
    timestamp           DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_inventory_transactions_once
    ON inventory_transactions(session_id, item_id, action_type);

CREATE INDEX IF NOT EXISTS idx_inventory_transactions_user
    ON inventory_transactions(user_id, timestamp);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// EnsureSchema creates all tables and indexes if they don't already exist,
// then applies pending migrations.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return Migrate(db)
}
