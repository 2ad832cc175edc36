package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/alarm-engine/internal/occurrence"
	"github.com/example/alarm-engine/internal/persistence"
)

// DefaultQueueLookahead bounds occurrence queries that do not name a count.
const DefaultQueueLookahead = 10

// MaxQueueLookahead caps occurrence queries so a single request cannot walk
// an unbounded window.
const MaxQueueLookahead = 50

// EnabledPlanSource lists the plans considered by queue queries.
type EnabledPlanSource interface {
	ListEnabledPlans(ctx context.Context) ([]persistence.AlarmPlan, error)
}

// QueueService answers "what rings next" queries. Results are derived fresh
// from a consistent snapshot on every call and never persisted.
type QueueService struct {
	plans      EnabledPlanSource
	exceptions ExceptionRepository
	holidays   occurrence.HolidayCalendar
	calculator *occurrence.Calculator
	now        func() time.Time
	logger     *slog.Logger
}

// NewQueueService wires dependencies for occurrence queries.
func NewQueueService(plans EnabledPlanSource, exceptions ExceptionRepository, holidays occurrence.HolidayCalendar, calculator *occurrence.Calculator, now func() time.Time, logger *slog.Logger) *QueueService {
	if now == nil {
		now = time.Now
	}
	return &QueueService{
		plans:      plans,
		exceptions: exceptions,
		holidays:   holidays,
		calculator: calculator,
		now:        now,
		logger:     defaultLogger(logger),
	}
}

// ComputeQueue expands every enabled plan into its next occurrences, skipped
// ones included, merged ascending by fire instant.
func (s *QueueService) ComputeQueue(ctx context.Context, lookahead int) ([]occurrence.Occurrence, error) {
	if lookahead <= 0 {
		lookahead = DefaultQueueLookahead
	}
	if lookahead > MaxQueueLookahead {
		lookahead = MaxQueueLookahead
	}

	plans, err := s.plans.ListEnabledPlans(ctx)
	if err != nil {
		return nil, fmt.Errorf("queue: failed to list plans: %w", err)
	}

	now := s.now()
	loc := s.calculator.Location()
	filter := persistence.ExceptionFilter{
		DateFrom: now.In(loc).Format(persistence.DateLayout),
		DateTo:   now.In(loc).AddDate(0, 0, s.calculator.DayCap()).Format(persistence.DateLayout),
	}
	exceptions, err := s.exceptions.ListExceptions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("queue: failed to list exceptions: %w", err)
	}

	env := occurrence.Environment{Exceptions: exceptions, Holidays: s.holidays, Now: now}
	return s.calculator.Upcoming(plans, env, lookahead), nil
}
