package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/alarm-engine/internal/persistence"
	"github.com/example/alarm-engine/internal/reconcile"
)

// ExceptionRepository captures the persistence interactions needed by the
// service.
type ExceptionRepository interface {
	CreateException(ctx context.Context, exception persistence.SkipException) error
	GetException(ctx context.Context, id string) (persistence.SkipException, error)
	ListExceptions(ctx context.Context, filter persistence.ExceptionFilter) ([]persistence.SkipException, error)
	DeleteException(ctx context.Context, id string) error
}

// PlanFinder verifies that a plan-scoped exception references a real plan.
type PlanFinder interface {
	GetPlan(ctx context.Context, id string) (persistence.AlarmPlan, error)
}

// ExceptionInput carries the user-editable fields of a skip exception. A nil
// PlanID makes the exception apply to every plan.
type ExceptionInput struct {
	PlanID *string
	Date   string
	Reason persistence.SkipReason
}

// ExceptionService orchestrates validation, persistence and reconciliation
// for skip-exception operations.
type ExceptionService struct {
	exceptions  ExceptionRepository
	plans       PlanFinder
	reconciler  ReconcileTrigger
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewExceptionService wires dependencies for exception operations.
func NewExceptionService(exceptions ExceptionRepository, plans PlanFinder, reconciler ReconcileTrigger, idGenerator func() string, now func() time.Time) *ExceptionService {
	return NewExceptionServiceWithLogger(exceptions, plans, reconciler, idGenerator, now, nil)
}

// NewExceptionServiceWithLogger wires dependencies including a base logger.
func NewExceptionServiceWithLogger(exceptions ExceptionRepository, plans PlanFinder, reconciler ReconcileTrigger, idGenerator func() string, now func() time.Time, logger *slog.Logger) *ExceptionService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &ExceptionService{
		exceptions:  exceptions,
		plans:       plans,
		reconciler:  reconciler,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

// CreateException validates and persists a skip exception, then reconciles so
// the affected token is withdrawn.
func (s *ExceptionService) CreateException(ctx context.Context, input ExceptionInput) (persistence.SkipException, []reconcile.Warning, error) {
	logger := serviceLogger(ctx, s.logger, "exception", "create", "date", input.Date)

	if err := s.validateExceptionInput(ctx, input); err != nil {
		logger.WarnContext(ctx, "exception rejected", "error_kind", ErrorKind(err))
		return persistence.SkipException{}, nil, err
	}

	exception := persistence.SkipException{
		ID:        s.idGenerator(),
		PlanID:    input.PlanID,
		Date:      input.Date,
		Reason:    input.Reason,
		CreatedAt: s.now(),
	}
	if err := s.exceptions.CreateException(ctx, exception); err != nil {
		return persistence.SkipException{}, nil, mapRepoError(err)
	}
	logger.InfoContext(ctx, "exception created", "exception_id", exception.ID, "reason", string(exception.Reason))

	warnings := s.triggerReconcile(ctx, logger)
	return exception, warnings, nil
}

// ListExceptions returns exceptions inside the optional date range.
func (s *ExceptionService) ListExceptions(ctx context.Context, filter persistence.ExceptionFilter) ([]persistence.SkipException, error) {
	return s.exceptions.ListExceptions(ctx, filter)
}

// DeleteException removes the exception and reconciles so the suppressed
// occurrence is registered again.
func (s *ExceptionService) DeleteException(ctx context.Context, id string) ([]reconcile.Warning, error) {
	logger := serviceLogger(ctx, s.logger, "exception", "delete", "exception_id", id)

	if err := s.exceptions.DeleteException(ctx, id); err != nil {
		return nil, mapRepoError(err)
	}
	logger.InfoContext(ctx, "exception deleted")

	return s.triggerReconcile(ctx, logger), nil
}

func (s *ExceptionService) triggerReconcile(ctx context.Context, logger *slog.Logger) []reconcile.Warning {
	if s.reconciler == nil {
		return nil
	}
	result, err := s.reconciler.Reconcile(ctx, reconcile.EventExceptionChanged)
	if err != nil {
		logger.ErrorContext(ctx, "reconcile failed after exception mutation", "error", err)
		return nil
	}
	return result.Warnings
}

func (s *ExceptionService) validateExceptionInput(ctx context.Context, input ExceptionInput) error {
	vErr := &ValidationError{}

	if _, err := time.Parse(persistence.DateLayout, input.Date); err != nil {
		vErr.add("date", "date must use the YYYY-MM-DD format")
	}
	switch input.Reason {
	case persistence.SkipReasonManual, persistence.SkipReasonSystem:
	case persistence.SkipReasonHoliday:
		// Holiday suppression is derived from the calendar, never stored by hand.
		vErr.add("reason", "holiday exceptions are managed automatically")
	default:
		vErr.add("reason", "reason must be manual or system")
	}

	if vErr.HasErrors() {
		return vErr
	}

	if input.PlanID != nil {
		if _, err := s.plans.GetPlan(ctx, *input.PlanID); err != nil {
			return mapRepoError(err)
		}
	}
	return nil
}
