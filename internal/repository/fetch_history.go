// Package repository provides database access for persisted records.
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"holdings/internal/database"
	"holdings/internal/models"
)

// FetchHistoryRepository handles fetch history database operations.
type FetchHistoryRepository struct {
	db  *database.DB
	now func() time.Time
}

// NewFetchHistoryRepository creates a new FetchHistoryRepository.
func NewFetchHistoryRepository(db *database.DB) *FetchHistoryRepository {
	return &FetchHistoryRepository{db: db, now: time.Now}
}

// Start creates a new entry with status "started".
func (r *FetchHistoryRepository) Start(operation string) (*models.FetchHistory, error) {
	h := &models.FetchHistory{
		ID:        uuid.NewString(),
		Operation: operation,
		Status:    models.FetchStarted,
		StartedAt: r.now().UTC().Truncate(time.Millisecond),
	}
	_, err := r.db.Exec(`
		INSERT INTO fetch_history (id, operation, status, started_at)
		VALUES (?, ?, ?, ?)
	`, h.ID, h.Operation, h.Status, h.StartedAt.UnixMilli())
	if err != nil {
		return nil, err
	}
	return h, nil
}

// Complete marks a fetch as successful.
func (r *FetchHistoryRepository) Complete(h *models.FetchHistory, refreshed bool, accounts, positions int) error {
	h.Status = models.FetchSuccess
	h.Refreshed = refreshed
	h.Accounts = accounts
	h.Positions = positions
	r.finish(h)
	_, err := r.db.Exec(`
		UPDATE fetch_history
		SET status = ?, refreshed = ?, accounts = ?, positions = ?, completed_at = ?, duration_ms = ?
		WHERE id = ?
	`, h.Status, h.Refreshed, h.Accounts, h.Positions, h.CompletedAt.UnixMilli(), h.DurationMs, h.ID)
	return err
}

// Fail marks a fetch as failed. errorKind is a short label, never an upstream body.
func (r *FetchHistoryRepository) Fail(h *models.FetchHistory, refreshed bool, errorKind string) error {
	h.Status = models.FetchError
	h.Refreshed = refreshed
	h.ErrorKind = errorKind
	r.finish(h)
	_, err := r.db.Exec(`
		UPDATE fetch_history
		SET status = ?, refreshed = ?, error_kind = ?, completed_at = ?, duration_ms = ?
		WHERE id = ?
	`, h.Status, h.Refreshed, h.ErrorKind, h.CompletedAt.UnixMilli(), h.DurationMs, h.ID)
	return err
}

func (r *FetchHistoryRepository) finish(h *models.FetchHistory) {
	completed := r.now().UTC().Truncate(time.Millisecond)
	h.CompletedAt = &completed
	h.DurationMs = completed.Sub(h.StartedAt).Milliseconds()
}

// GetByID retrieves an entry by ID.
func (r *FetchHistoryRepository) GetByID(id string) (*models.FetchHistory, error) {
	row := r.db.QueryRow(`
		SELECT id, operation, status, refreshed, accounts, positions, error_kind, started_at, completed_at, duration_ms
		FROM fetch_history
		WHERE id = ?
	`, id)

	h, err := scanHistory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return h, err
}

// Recent retrieves the most recent entries, newest first.
func (r *FetchHistoryRepository) Recent(limit int) ([]*models.FetchHistory, error) {
	return r.list(limit, 0)
}

// List returns one page of entries, newest first.
func (r *FetchHistoryRepository) List(p Pagination) (PaginatedResult[*models.FetchHistory], error) {
	var total int64
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM fetch_history`).Scan(&total); err != nil {
		return PaginatedResult[*models.FetchHistory]{}, err
	}
	items, err := r.list(p.Limit, p.Offset)
	if err != nil {
		return PaginatedResult[*models.FetchHistory]{}, err
	}
	return NewPaginatedResult(items, total, p), nil
}

func (r *FetchHistoryRepository) list(limit, offset int) ([]*models.FetchHistory, error) {
	rows, err := r.db.Query(`
		SELECT id, operation, status, refreshed, accounts, positions, error_kind, started_at, completed_at, duration_ms
		FROM fetch_history
		ORDER BY started_at DESC, rowid DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	histories := make([]*models.FetchHistory, 0)
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		histories = append(histories, h)
	}
	return histories, rows.Err()
}

// DeleteOlderThan removes entries started before the given time.
func (r *FetchHistoryRepository) DeleteOlderThan(before time.Time) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM fetch_history WHERE started_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Ping checks that the database is reachable.
func (r *FetchHistoryRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanHistory(s scanner) (*models.FetchHistory, error) {
	h := &models.FetchHistory{}
	var errorKind sql.NullString
	var startedAt int64
	var completedAt sql.NullInt64
	var durationMs sql.NullInt64

	err := s.Scan(
		&h.ID,
		&h.Operation,
		&h.Status,
		&h.Refreshed,
		&h.Accounts,
		&h.Positions,
		&errorKind,
		&startedAt,
		&completedAt,
		&durationMs,
	)
	if err != nil {
		return nil, err
	}

	h.StartedAt = time.UnixMilli(startedAt).UTC()
	if errorKind.Valid {
		h.ErrorKind = errorKind.String
	}
	if completedAt.Valid {
		t := time.UnixMilli(completedAt.Int64).UTC()
		h.CompletedAt = &t
	}
	if durationMs.Valid {
		h.DurationMs = durationMs.Int64
	}
	return h, nil
}
