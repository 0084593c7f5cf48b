package database

// All migrations use IF NOT EXISTS to be idempotent.

// migrationFetchHistory records the outcome of each portfolio fetch.
// Tokens and upstream payloads are never stored. Times are unix milliseconds.
const migrationFetchHistory = `
CREATE TABLE IF NOT EXISTS fetch_history (
    id TEXT PRIMARY KEY,
    operation TEXT NOT NULL,
    status TEXT NOT NULL,
    refreshed INTEGER DEFAULT 0,
    accounts INTEGER DEFAULT 0,
    positions INTEGER DEFAULT 0,
    error_kind TEXT,
    started_at INTEGER NOT NULL,
    completed_at INTEGER,
    duration_ms INTEGER
);
`

const migrationFetchHistoryIndexes = `
CREATE INDEX IF NOT EXISTS idx_fetch_history_started ON fetch_history(started_at);
CREATE INDEX IF NOT EXISTS idx_fetch_history_status ON fetch_history(status);
`
