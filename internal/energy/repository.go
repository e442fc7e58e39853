package energy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nerrad567/leviton-sync/internal/infrastructure/database"
)

// Repository persists energy bookkeeping across restarts: the last
// known-good lifetime counters (for delta disambiguation) and the daily
// baselines with the local date they were snapshotted for.
type Repository interface {
	LoadLifetime(ctx context.Context) (map[string]float64, error)
	SaveLifetime(ctx context.Context, values map[string]float64) error
	LoadBaselines(ctx context.Context) (map[string]float64, string, error)
	SaveBaselines(ctx context.Context, values map[string]float64, date string) error
}

// SQLiteRepository stores energy state in the levsync database.
type SQLiteRepository struct {
	db *database.DB
}

// NewSQLiteRepository creates a repository backed by the given database.
// The energy tables must already exist (migrations run at startup).
func NewSQLiteRepository(db *database.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// LoadLifetime returns all cached lifetime counters, empty if none.
func (r *SQLiteRepository) LoadLifetime(ctx context.Context) (map[string]float64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM lifetime_energy`)
	if err != nil {
		return nil, fmt.Errorf("loading lifetime energy: %w", err)
	}
	defer rows.Close()

	values := make(map[string]float64)
	for rows.Next() {
		var key string
		var value float64
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scanning lifetime energy row: %w", err)
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating lifetime energy rows: %w", err)
	}
	return values, nil
}

// SaveLifetime upserts the given lifetime counters in one transaction.
// Keys absent from values are left untouched.
func (r *SQLiteRepository) SaveLifetime(ctx context.Context, values map[string]float64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO lifetime_energy (key, value, updated_at)
		VALUES (?, ?, datetime('now'))
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("preparing lifetime upsert: %w", err)
	}
	defer stmt.Close()

	for key, value := range values {
		if _, err := stmt.ExecContext(ctx, key, value); err != nil {
			return fmt.Errorf("upserting lifetime energy %s: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing lifetime energy: %w", err)
	}
	return nil
}

// LoadBaselines returns the stored daily baselines and the local date they
// were snapshotted for. A missing snapshot returns an empty map and date.
func (r *SQLiteRepository) LoadBaselines(ctx context.Context) (map[string]float64, string, error) {
	var date string
	err := r.db.QueryRowContext(ctx, `SELECT rollover_date FROM baseline_meta WHERE id = 1`).Scan(&date)
	if errors.Is(err, sql.ErrNoRows) {
		return map[string]float64{}, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("loading baseline date: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM daily_baseline`)
	if err != nil {
		return nil, "", fmt.Errorf("loading daily baselines: %w", err)
	}
	defer rows.Close()

	values := make(map[string]float64)
	for rows.Next() {
		var key string
		var value float64
		if err := rows.Scan(&key, &value); err != nil {
			return nil, "", fmt.Errorf("scanning baseline row: %w", err)
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("iterating baseline rows: %w", err)
	}
	return values, date, nil
}

// SaveBaselines replaces the stored baseline snapshot wholesale and stamps
// it with the given local date.
func (r *SQLiteRepository) SaveBaselines(ctx context.Context, values map[string]float64, date string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM daily_baseline`); err != nil {
		return fmt.Errorf("clearing daily baselines: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO daily_baseline (key, value) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing baseline insert: %w", err)
	}
	defer stmt.Close()

	for key, value := range values {
		if _, err := stmt.ExecContext(ctx, key, value); err != nil {
			return fmt.Errorf("inserting baseline %s: %w", key, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO baseline_meta (id, rollover_date) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET rollover_date = excluded.rollover_date`, date); err != nil {
		return fmt.Errorf("recording baseline date: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing baselines: %w", err)
	}
	return nil
}
