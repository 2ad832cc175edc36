package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/alarm-engine/internal/persistence"
)

// PlanRepository implements persistence.PlanRepository using SQLite.
type PlanRepository struct {
	pool *ConnectionPool
}

// NewPlanRepository creates a new SQLite plan repository.
func NewPlanRepository(pool *ConnectionPool) *PlanRepository {
	return &PlanRepository{pool: pool}
}

const planColumns = `id, label, enabled, hour, minute, weekday_mask, repeat_count, repeat_interval_min, sound_id, skip_holidays, created_at, updated_at`

// CreatePlan inserts a new alarm plan.
func (r *PlanRepository) CreatePlan(ctx context.Context, plan persistence.AlarmPlan) error {
	query := `
		INSERT INTO alarm_plans (` + planColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.pool.db.ExecContext(ctx, query,
		plan.ID,
		plan.Label,
		plan.Enabled,
		plan.Hour,
		plan.Minute,
		plan.WeekdayMask,
		plan.RepeatCount,
		plan.RepeatIntervalMin,
		plan.SoundID,
		plan.SkipHolidays,
		plan.CreatedAt.UTC().Format(time.RFC3339Nano),
		plan.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return mapSQLiteError(err)
	}

	return nil
}

// UpdatePlan replaces the mutable fields of an existing plan.
func (r *PlanRepository) UpdatePlan(ctx context.Context, plan persistence.AlarmPlan) error {
	query := `
		UPDATE alarm_plans
		SET label = ?, enabled = ?, hour = ?, minute = ?, weekday_mask = ?,
		    repeat_count = ?, repeat_interval_min = ?, sound_id = ?, skip_holidays = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.pool.db.ExecContext(ctx, query,
		plan.Label,
		plan.Enabled,
		plan.Hour,
		plan.Minute,
		plan.WeekdayMask,
		plan.RepeatCount,
		plan.RepeatIntervalMin,
		plan.SoundID,
		plan.SkipHolidays,
		plan.UpdatedAt.UTC().Format(time.RFC3339Nano),
		plan.ID,
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

// GetPlan retrieves a plan by ID.
func (r *PlanRepository) GetPlan(ctx context.Context, id string) (persistence.AlarmPlan, error) {
	query := `SELECT ` + planColumns + ` FROM alarm_plans WHERE id = ?`
	return scanPlan(r.pool.db.QueryRowContext(ctx, query, id))
}

// ListPlans returns all plans ordered by creation timestamp then ID.
func (r *PlanRepository) ListPlans(ctx context.Context) ([]persistence.AlarmPlan, error) {
	query := `SELECT ` + planColumns + ` FROM alarm_plans ORDER BY created_at ASC, id ASC`
	return r.queryPlans(ctx, query)
}

// ListEnabledPlans returns only plans with the enabled flag set.
func (r *PlanRepository) ListEnabledPlans(ctx context.Context) ([]persistence.AlarmPlan, error) {
	query := `SELECT ` + planColumns + ` FROM alarm_plans WHERE enabled = 1 ORDER BY created_at ASC, id ASC`
	return r.queryPlans(ctx, query)
}

// DeletePlan removes a plan. Plan-scoped exceptions cascade with it.
func (r *PlanRepository) DeletePlan(ctx context.Context, id string) error {
	result, err := r.pool.db.ExecContext(ctx, `DELETE FROM alarm_plans WHERE id = ?`, id)
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

func (r *PlanRepository) queryPlans(ctx context.Context, query string, args ...any) ([]persistence.AlarmPlan, error) {
	rows, err := r.pool.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapSQLiteError(err)
	}
	defer rows.Close()

	var plans []persistence.AlarmPlan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	if err := rows.Err(); err != nil {
		return nil, mapSQLiteError(err)
	}

	return plans, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlan(row rowScanner) (persistence.AlarmPlan, error) {
	var plan persistence.AlarmPlan
	var createdAtStr, updatedAtStr string

	err := row.Scan(
		&plan.ID,
		&plan.Label,
		&plan.Enabled,
		&plan.Hour,
		&plan.Minute,
		&plan.WeekdayMask,
		&plan.RepeatCount,
		&plan.RepeatIntervalMin,
		&plan.SoundID,
		&plan.SkipHolidays,
		&createdAtStr,
		&updatedAtStr,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return persistence.AlarmPlan{}, persistence.ErrNotFound
		}
		return persistence.AlarmPlan{}, mapSQLiteError(err)
	}

	if plan.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr); err != nil {
		return persistence.AlarmPlan{}, fmt.Errorf("sqlite: failed to parse created_at: %w", err)
	}
	if plan.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAtStr); err != nil {
		return persistence.AlarmPlan{}, fmt.Errorf("sqlite: failed to parse updated_at: %w", err)
	}

	return plan, nil
}
