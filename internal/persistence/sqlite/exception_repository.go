package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/alarm-engine/internal/persistence"
)

// ExceptionRepository implements persistence.ExceptionRepository using SQLite.
type ExceptionRepository struct {
	pool *ConnectionPool
}

// NewExceptionRepository creates a new SQLite exception repository.
func NewExceptionRepository(pool *ConnectionPool) *ExceptionRepository {
	return &ExceptionRepository{pool: pool}
}

// CreateException inserts a new skip exception. A second exception for the
// same scope and date violates the unique index and maps to ErrDuplicate.
func (r *ExceptionRepository) CreateException(ctx context.Context, exception persistence.SkipException) error {
	query := `
		INSERT INTO skip_exceptions (id, plan_id, date, reason, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := r.pool.db.ExecContext(ctx, query,
		exception.ID,
		exception.PlanID,
		exception.Date,
		string(exception.Reason),
		exception.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return mapSQLiteError(err)
	}

	return nil
}

// GetException retrieves an exception by ID.
func (r *ExceptionRepository) GetException(ctx context.Context, id string) (persistence.SkipException, error) {
	query := `SELECT id, plan_id, date, reason, created_at FROM skip_exceptions WHERE id = ?`
	return scanException(r.pool.db.QueryRowContext(ctx, query, id))
}

// ListExceptions returns exceptions matching the filter ordered by date then
// ID. A plan filter also returns global exceptions, since those cover the
// plan too.
func (r *ExceptionRepository) ListExceptions(ctx context.Context, filter persistence.ExceptionFilter) ([]persistence.SkipException, error) {
	query := `SELECT id, plan_id, date, reason, created_at FROM skip_exceptions WHERE 1=1`
	var args []any

	if filter.PlanID != nil {
		query += ` AND (plan_id = ? OR plan_id IS NULL)`
		args = append(args, *filter.PlanID)
	}
	if filter.DateFrom != "" {
		query += ` AND date >= ?`
		args = append(args, filter.DateFrom)
	}
	if filter.DateTo != "" {
		query += ` AND date <= ?`
		args = append(args, filter.DateTo)
	}
	query += ` ORDER BY date ASC, id ASC`

	rows, err := r.pool.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapSQLiteError(err)
	}
	defer rows.Close()

	var exceptions []persistence.SkipException
	for rows.Next() {
		exception, err := scanException(rows)
		if err != nil {
			return nil, err
		}
		exceptions = append(exceptions, exception)
	}
	if err := rows.Err(); err != nil {
		return nil, mapSQLiteError(err)
	}

	return exceptions, nil
}

// DeleteException removes an exception by ID.
func (r *ExceptionRepository) DeleteException(ctx context.Context, id string) error {
	result, err := r.pool.db.ExecContext(ctx, `DELETE FROM skip_exceptions WHERE id = ?`, id)
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

func scanException(row rowScanner) (persistence.SkipException, error) {
	var exception persistence.SkipException
	var planID sql.NullString
	var reason, createdAtStr string

	err := row.Scan(&exception.ID, &planID, &exception.Date, &reason, &createdAtStr)
	if err != nil {
		if err == sql.ErrNoRows {
			return persistence.SkipException{}, persistence.ErrNotFound
		}
		return persistence.SkipException{}, mapSQLiteError(err)
	}

	if planID.Valid {
		exception.PlanID = &planID.String
	}
	exception.Reason = persistence.SkipReason(reason)
	if exception.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr); err != nil {
		return persistence.SkipException{}, fmt.Errorf("sqlite: failed to parse created_at: %w", err)
	}

	return exception, nil
}
