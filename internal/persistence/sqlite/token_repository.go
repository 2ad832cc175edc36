package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/alarm-engine/internal/persistence"
)

// TokenRepository implements persistence.TokenRepository using SQLite.
type TokenRepository struct {
	pool *ConnectionPool
}

// NewTokenRepository creates a new SQLite token repository.
func NewTokenRepository(pool *ConnectionPool) *TokenRepository {
	return &TokenRepository{pool: pool}
}

const tokenColumns = `id, plan_id, date, fire_at, platform_id, status, registration_failed, created_at, updated_at`

// ListPendingTokens returns PENDING tokens ordered by fire instant then ID.
func (r *TokenRepository) ListPendingTokens(ctx context.Context) ([]persistence.ScheduledToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM scheduled_tokens WHERE status = ? ORDER BY fire_at ASC, id ASC`

	rows, err := r.pool.db.QueryContext(ctx, query, string(persistence.TokenStatusPending))
	if err != nil {
		return nil, mapSQLiteError(err)
	}
	defer rows.Close()

	var tokens []persistence.ScheduledToken
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, mapSQLiteError(err)
	}

	return tokens, nil
}

// GetTokenByPlatformID resolves a platform identifier to its PENDING token.
// Terminal tokens are ignored so a recycled identifier never resolves to a
// stale row.
func (r *TokenRepository) GetTokenByPlatformID(ctx context.Context, platformID int) (persistence.ScheduledToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM scheduled_tokens WHERE platform_id = ? AND status = ?`
	return scanToken(r.pool.db.QueryRowContext(ctx, query, platformID, string(persistence.TokenStatusPending)))
}

// ApplyTokenBatch persists all batch mutations in a single transaction,
// cancellations first so a recreated (plan, date) pair never trips the
// pending uniqueness index.
func (r *TokenRepository) ApplyTokenBatch(ctx context.Context, batch persistence.TokenBatch) error {
	if batch.Empty() {
		return nil
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		for _, token := range batch.Cancel {
			if err := updateTokenTx(tx, token); err != nil {
				return err
			}
		}
		for _, token := range batch.Create {
			if err := insertTokenTx(tx, token); err != nil {
				return err
			}
		}
		for _, token := range batch.Update {
			if err := updateTokenTx(tx, token); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateToken persists a single token state change outside a batch, used by
// the fire path.
func (r *TokenRepository) UpdateToken(ctx context.Context, token persistence.ScheduledToken) error {
	query := `
		UPDATE scheduled_tokens
		SET status = ?, registration_failed = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.pool.db.ExecContext(ctx, query,
		string(token.Status),
		token.RegistrationFailed,
		token.UpdatedAt.UTC().Format(time.RFC3339Nano),
		token.ID,
	)
	if err != nil {
		return mapSQLiteError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return persistence.ErrNotFound
	}

	return nil
}

func insertTokenTx(tx *sql.Tx, token persistence.ScheduledToken) error {
	query := `
		INSERT INTO scheduled_tokens (` + tokenColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := tx.Exec(query,
		token.ID,
		token.PlanID,
		token.Date,
		token.FireAt.UTC().Format(time.RFC3339Nano),
		token.PlatformID,
		string(token.Status),
		token.RegistrationFailed,
		token.CreatedAt.UTC().Format(time.RFC3339Nano),
		token.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return mapSQLiteError(err)
	}

	return nil
}

func updateTokenTx(tx *sql.Tx, token persistence.ScheduledToken) error {
	query := `
		UPDATE scheduled_tokens
		SET status = ?, registration_failed = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := tx.Exec(query,
		string(token.Status),
		token.RegistrationFailed,
		token.UpdatedAt.UTC().Format(time.RFC3339Nano),
		token.ID,
	)
	if err != nil {
		return mapSQLiteError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return persistence.ErrNotFound
	}

	return nil
}

func scanToken(row rowScanner) (persistence.ScheduledToken, error) {
	var token persistence.ScheduledToken
	var status, fireAtStr, createdAtStr, updatedAtStr string

	err := row.Scan(
		&token.ID,
		&token.PlanID,
		&token.Date,
		&fireAtStr,
		&token.PlatformID,
		&status,
		&token.RegistrationFailed,
		&createdAtStr,
		&updatedAtStr,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return persistence.ScheduledToken{}, persistence.ErrNotFound
		}
		return persistence.ScheduledToken{}, mapSQLiteError(err)
	}

	token.Status = persistence.TokenStatus(status)
	if token.FireAt, err = time.Parse(time.RFC3339Nano, fireAtStr); err != nil {
		return persistence.ScheduledToken{}, fmt.Errorf("sqlite: failed to parse fire_at: %w", err)
	}
	if token.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr); err != nil {
		return persistence.ScheduledToken{}, fmt.Errorf("sqlite: failed to parse created_at: %w", err)
	}
	if token.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAtStr); err != nil {
		return persistence.ScheduledToken{}, fmt.Errorf("sqlite: failed to parse updated_at: %w", err)
	}

	return token, nil
}
