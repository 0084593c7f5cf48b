// Package models defines the persisted records of the holdings backend.
package models

import "time"

// Fetch statuses.
const (
	FetchStarted = "started"
	FetchSuccess = "success"
	FetchError   = "error"
)

// FetchHistory records one brokerage fetch for auditing.
// It never holds tokens or upstream payloads.
type FetchHistory struct {
	ID          string     `json:"id"`
	Operation   string     `json:"operation"` // "portfolio", "balances", "orders"...
	Status      string     `json:"status"`    // "started", "success", "error"
	Refreshed   bool       `json:"refreshed"`
	Accounts    int        `json:"accounts"`
	Positions   int        `json:"positions"`
	ErrorKind   string     `json:"error_kind,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMs  int64      `json:"duration_ms,omitempty"`
}
