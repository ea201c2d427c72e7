package repositories

import "database/sql"

// Schema is the DDL for every table the repositories in this package
// read and write (spec.md §6 "Persisted state": baskets, risk profiles,
// target allocations, trade previews, basket-trade groups). Grounded on
// the teacher's internal/modules/cash_flows/schema.go (a single
// `CREATE TABLE IF NOT EXISTS` string executed by InitSchema), adapted
// from the teacher's multi-database layout (ledger.db, snapshots.db, ...)
// to one relational store.
const Schema = `
CREATE TABLE IF NOT EXISTS baskets (
    user_id TEXT NOT NULL,
    name TEXT NOT NULL,
    body TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (user_id, name)
);

CREATE TABLE IF NOT EXISTS risk_profiles (
    user_id TEXT PRIMARY KEY,
    body TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS target_allocations (
    user_id TEXT NOT NULL,
    scope TEXT NOT NULL,
    weights TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (user_id, scope)
);

CREATE TABLE IF NOT EXISTS trade_previews (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    scope TEXT NOT NULL,
    leg_deltas TEXT NOT NULL,
    est_cost_amount REAL NOT NULL,
    est_cost_currency TEXT NOT NULL,
    risk_before REAL NOT NULL,
    risk_after REAL NOT NULL,
    created_at TEXT NOT NULL,
    executed_at TEXT,
    drift_warning INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_trade_previews_user ON trade_previews(user_id);

CREATE TABLE IF NOT EXISTS basket_trade_groups (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    basket_name TEXT NOT NULL,
    preview_ids TEXT NOT NULL,
    created_at TEXT NOT NULL
);
`

// InitSchema creates every table in Schema if it doesn't already exist.
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
