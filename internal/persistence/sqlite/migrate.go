package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations are applied in order exactly once each. Append new entries; never
// edit an applied one.
var migrations = []string{
	`CREATE TABLE alarm_plans (
		id                  TEXT PRIMARY KEY,
		label               TEXT NOT NULL,
		enabled             INTEGER NOT NULL DEFAULT 0,
		hour                INTEGER NOT NULL CHECK (hour BETWEEN 0 AND 23),
		minute              INTEGER NOT NULL CHECK (minute BETWEEN 0 AND 59),
		weekday_mask        INTEGER NOT NULL CHECK (weekday_mask BETWEEN 0 AND 127),
		repeat_count        INTEGER NOT NULL CHECK (repeat_count >= 1),
		repeat_interval_min INTEGER NOT NULL DEFAULT 0,
		sound_id            TEXT NOT NULL,
		skip_holidays       INTEGER NOT NULL DEFAULT 0,
		created_at          TEXT NOT NULL,
		updated_at          TEXT NOT NULL
	)`,
	`CREATE TABLE skip_exceptions (
		id         TEXT PRIMARY KEY,
		plan_id    TEXT REFERENCES alarm_plans(id) ON DELETE CASCADE,
		date       TEXT NOT NULL,
		reason     TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE UNIQUE INDEX idx_skip_exceptions_scope_date
		ON skip_exceptions (COALESCE(plan_id, ''), date)`,
	`CREATE TABLE holidays (
		date TEXT PRIMARY KEY,
		name TEXT NOT NULL
	)`,
	`CREATE TABLE scheduled_tokens (
		id                  TEXT PRIMARY KEY,
		plan_id             TEXT NOT NULL,
		date                TEXT NOT NULL,
		fire_at             TEXT NOT NULL,
		platform_id         INTEGER NOT NULL,
		status              TEXT NOT NULL CHECK (status IN ('PENDING', 'FIRED', 'CANCELED')),
		registration_failed INTEGER NOT NULL DEFAULT 0,
		created_at          TEXT NOT NULL,
		updated_at          TEXT NOT NULL
	)`,
	`CREATE UNIQUE INDEX idx_tokens_pending_plan_date
		ON scheduled_tokens (plan_id, date) WHERE status = 'PENDING'`,
	`CREATE UNIQUE INDEX idx_tokens_pending_platform
		ON scheduled_tokens (platform_id) WHERE status = 'PENDING'`,
}

// Migrate brings the schema up to date. It is safe to call on every start.
func Migrate(ctx context.Context, pool *ConnectionPool) error {
	if _, err := pool.db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL)`); err != nil {
		return fmt.Errorf("sqlite: failed to create migration table: %w", err)
	}

	var current int
	err := pool.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("sqlite: failed to read migration state: %w", err)
	}

	for version := current; version < len(migrations); version++ {
		statement := migrations[version]
		err := pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			if _, err := tx.Exec(statement); err != nil {
				return err
			}
			_, err := tx.Exec(`INSERT INTO schema_migrations (version, applied_at) VALUES (?, datetime('now'))`, version+1)
			return err
		})
		if err != nil {
			return fmt.Errorf("sqlite: migration %d failed: %w", version+1, err)
		}
	}

	return nil
}
