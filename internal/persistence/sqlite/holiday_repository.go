package sqlite

import (
	"context"
	"database/sql"

	"github.com/example/alarm-engine/internal/persistence"
)

// HolidayRepository implements persistence.HolidayRepository using SQLite.
type HolidayRepository struct {
	pool *ConnectionPool
}

// NewHolidayRepository creates a new SQLite holiday repository.
func NewHolidayRepository(pool *ConnectionPool) *HolidayRepository {
	return &HolidayRepository{pool: pool}
}

// SeedHolidays replaces the holiday table with the given entries. The table
// is reference data loaded once at startup, so a full replace keeps it in
// lockstep with the seed file.
func (r *HolidayRepository) SeedHolidays(ctx context.Context, holidays []persistence.Holiday) error {
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM holidays`); err != nil {
			return mapSQLiteError(err)
		}
		for _, holiday := range holidays {
			if _, err := tx.Exec(`INSERT INTO holidays (date, name) VALUES (?, ?)`, holiday.Date, holiday.Name); err != nil {
				return mapSQLiteError(err)
			}
		}
		return nil
	})
}

// ListHolidays returns every holiday ordered by date.
func (r *HolidayRepository) ListHolidays(ctx context.Context) ([]persistence.Holiday, error) {
	rows, err := r.pool.db.QueryContext(ctx, `SELECT date, name FROM holidays ORDER BY date ASC`)
	if err != nil {
		return nil, mapSQLiteError(err)
	}
	defer rows.Close()

	var holidays []persistence.Holiday
	for rows.Next() {
		var holiday persistence.Holiday
		if err := rows.Scan(&holiday.Date, &holiday.Name); err != nil {
			return nil, mapSQLiteError(err)
		}
		holidays = append(holidays, holiday)
	}
	if err := rows.Err(); err != nil {
		return nil, mapSQLiteError(err)
	}

	return holidays, nil
}

// IsHoliday reports whether the date is in the holiday table.
func (r *HolidayRepository) IsHoliday(ctx context.Context, date string) (bool, error) {
	var count int
	err := r.pool.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM holidays WHERE date = ?`, date).Scan(&count)
	if err != nil {
		return false, mapSQLiteError(err)
	}
	return count > 0, nil
}
