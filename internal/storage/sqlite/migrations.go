package sqlite

import "database/sql"

// migrations contains the SQL statements to set up the database schema.
// These run on startup to ensure tables exist.
const schema = `
CREATE TABLE IF NOT EXISTS records (
    id TEXT PRIMARY KEY,
    date TEXT NOT NULL,
    amount TEXT NOT NULL,
    txn TEXT NOT NULL,
    category TEXT NOT NULL,
    imported INTEGER NOT NULL DEFAULT 0,
    imported_at INTEGER,
    deleted INTEGER NOT NULL DEFAULT 0,
    reversed INTEGER NOT NULL DEFAULT 0,
    splitwise INTEGER NOT NULL DEFAULT 0,
    splitwise_id INTEGER,
    partner_origin INTEGER NOT NULL DEFAULT 0,
    hash TEXT,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS accounts (
    name TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    is_default INTEGER NOT NULL DEFAULT 0,
    starting_balance TEXT NOT NULL,
    balance TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS partner_expenses (
    id INTEGER PRIMARY KEY,
    transaction_balance TEXT NOT NULL,
    cost TEXT NOT NULL,
    description TEXT NOT NULL,
    date INTEGER NOT NULL,
    deleted INTEGER NOT NULL DEFAULT 0,
    payment INTEGER NOT NULL DEFAULT 0,
    record_id TEXT,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshots (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    month TEXT NOT NULL,
    total_spend TEXT NOT NULL,
    monthly_income TEXT NOT NULL,
    monthly_housing TEXT NOT NULL,
    monthly_savings TEXT NOT NULL,
    monthly_adjustments TEXT NOT NULL,
    budget TEXT NOT NULL,
    budget_remaining TEXT NOT NULL,
    percent_through_month REAL NOT NULL,
    projected_savings TEXT NOT NULL,
    partner_balance TEXT NOT NULL,
    account_balances TEXT NOT NULL,
    artifact_ref TEXT NOT NULL DEFAULT '',
    generated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS pass_lease (
    name TEXT PRIMARY KEY,
    holder TEXT NOT NULL,
    expires_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_records_active ON records(imported, deleted);
CREATE INDEX IF NOT EXISTS idx_records_splitwise_id ON records(splitwise_id);
CREATE INDEX IF NOT EXISTS idx_partner_expenses_updated_at ON partner_expenses(updated_at);
CREATE INDEX IF NOT EXISTS idx_snapshots_generated_at ON snapshots(generated_at);
`

// runMigrations executes the schema setup.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
