package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/alarm-engine/internal/persistence"
	"github.com/example/alarm-engine/internal/persistence/sqlite"
)

// SQLiteHarness provides repository access backed by a temporary SQLite
// database for integration-style persistence tests.
type SQLiteHarness struct {
	Plans      persistence.PlanRepository
	Exceptions persistence.ExceptionRepository
	Holidays   persistence.HolidayRepository
	Tokens     persistence.TokenRepository

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness constructs a SQLiteHarness using a temporary file that is
// migrated automatically. Callers may optionally invoke Close, but the helper
// also registers a cleanup callback with the provided testing.TB.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	dir := tb.TempDir()
	path := filepath.Join(dir, "alarm.db")

	pool, err := sqlite.NewConnectionPool(sqlite.DefaultConfig(path))
	if err != nil {
		tb.Fatalf("failed to open database: %v", err)
	}

	if err := sqlite.Migrate(context.Background(), pool); err != nil {
		_ = pool.Close()
		tb.Fatalf("failed to migrate database: %v", err)
	}

	harness := &SQLiteHarness{
		Plans:      sqlite.NewPlanRepository(pool),
		Exceptions: sqlite.NewExceptionRepository(pool),
		Holidays:   sqlite.NewHolidayRepository(pool),
		Tokens:     sqlite.NewTokenRepository(pool),
		cleanup: func() {
			_ = pool.Close()
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}
