package sqlite

import "database/sql"

// schema sets up the database. It runs on startup to ensure tables exist.
// Amounts are stored as base-10 TEXT since they exceed 64 bits.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    address TEXT NOT NULL UNIQUE,
    display_name TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS splits (
    id TEXT PRIMARY KEY,
    owner TEXT NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    total_processed TEXT NOT NULL DEFAULT '0',
    version INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS split_recipients (
    split_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    address TEXT NOT NULL,
    share INTEGER NOT NULL,
    PRIMARY KEY (split_id, position),
    FOREIGN KEY (split_id) REFERENCES splits(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS escrows (
    id TEXT PRIMARY KEY,
    payer TEXT NOT NULL,
    beneficiary TEXT,
    split_id TEXT,
    amount TEXT NOT NULL,
    token TEXT NOT NULL,
    state TEXT NOT NULL,
    version INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    funded_at INTEGER NOT NULL DEFAULT 0,
    resolved_at INTEGER NOT NULL DEFAULT 0,
    FOREIGN KEY (split_id) REFERENCES splits(id)
);

CREATE TABLE IF NOT EXISTS settlements (
    id TEXT PRIMARY KEY,
    escrow_id TEXT NOT NULL,
    split_id TEXT,
    action TEXT NOT NULL,
    idempotency_key TEXT NOT NULL,
    attempt INTEGER NOT NULL,
    gross TEXT NOT NULL,
    fee_withheld TEXT NOT NULL,
    gas_buffer_withheld TEXT NOT NULL,
    distributable TEXT NOT NULL,
    outcome TEXT NOT NULL,
    failure_reason TEXT NOT NULL DEFAULT '',
    transfer_handles TEXT NOT NULL DEFAULT '[]',
    confirmed_sequences TEXT NOT NULL DEFAULT '[]',
    created_at INTEGER NOT NULL,
    UNIQUE (idempotency_key, attempt),
    FOREIGN KEY (escrow_id) REFERENCES escrows(id)
);

CREATE TABLE IF NOT EXISTS settlement_transfers (
    settlement_id TEXT NOT NULL,
    sequence INTEGER NOT NULL,
    recipient TEXT NOT NULL,
    amount TEXT NOT NULL,
    token TEXT NOT NULL,
    PRIMARY KEY (settlement_id, sequence),
    FOREIGN KEY (settlement_id) REFERENCES settlements(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_escrows_payer ON escrows(payer);
CREATE INDEX IF NOT EXISTS idx_escrows_beneficiary ON escrows(beneficiary);
CREATE INDEX IF NOT EXISTS idx_settlements_escrow_id ON settlements(escrow_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_settlements_completed
    ON settlements(escrow_id) WHERE outcome = 'completed';
`

// runMigrations executes the schema setup.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
