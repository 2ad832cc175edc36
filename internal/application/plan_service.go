package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/example/alarm-engine/internal/persistence"
	"github.com/example/alarm-engine/internal/reconcile"
)

// PlanRepository captures the persistence interactions needed by the service.
type PlanRepository interface {
	CreatePlan(ctx context.Context, plan persistence.AlarmPlan) error
	UpdatePlan(ctx context.Context, plan persistence.AlarmPlan) error
	GetPlan(ctx context.Context, id string) (persistence.AlarmPlan, error)
	ListPlans(ctx context.Context) ([]persistence.AlarmPlan, error)
	DeletePlan(ctx context.Context, id string) error
}

// ReconcileTrigger requests a token reconciliation after a mutation. The
// editing flow never talks to the platform directly.
type ReconcileTrigger interface {
	Reconcile(ctx context.Context, event reconcile.Event) (reconcile.Result, error)
}

// PlanInput carries the user-editable fields of an alarm plan.
type PlanInput struct {
	Label             string
	Enabled           bool
	Hour              int
	Minute            int
	WeekdayMask       uint8
	RepeatCount       int
	RepeatIntervalMin int
	SoundID           string
	SkipHolidays      bool
}

// PlanService orchestrates validation, persistence and reconciliation for
// alarm plan operations.
type PlanService struct {
	plans       PlanRepository
	reconciler  ReconcileTrigger
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewPlanService wires dependencies for plan operations.
func NewPlanService(plans PlanRepository, reconciler ReconcileTrigger, idGenerator func() string, now func() time.Time) *PlanService {
	return NewPlanServiceWithLogger(plans, reconciler, idGenerator, now, nil)
}

// NewPlanServiceWithLogger wires dependencies including a base logger.
func NewPlanServiceWithLogger(plans PlanRepository, reconciler ReconcileTrigger, idGenerator func() string, now func() time.Time, logger *slog.Logger) *PlanService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &PlanService{
		plans:       plans,
		reconciler:  reconciler,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

// CreatePlan validates the input, persists a new plan and triggers a
// reconcile. Reconcile warnings are returned alongside the plan; a reconcile
// failure does not undo the saved edit because the next trigger retries it.
func (s *PlanService) CreatePlan(ctx context.Context, input PlanInput) (persistence.AlarmPlan, []reconcile.Warning, error) {
	logger := serviceLogger(ctx, s.logger, "plan", "create")

	if err := validatePlanInput(input); err != nil {
		logger.WarnContext(ctx, "plan rejected", "error_kind", ErrorKind(err))
		return persistence.AlarmPlan{}, nil, err
	}

	now := s.now()
	plan := planFromInput(input)
	plan.ID = s.idGenerator()
	plan.CreatedAt = now
	plan.UpdatedAt = now

	if err := s.plans.CreatePlan(ctx, plan); err != nil {
		return persistence.AlarmPlan{}, nil, mapRepoError(err)
	}
	logger.InfoContext(ctx, "plan created", "plan_id", plan.ID, "enabled", plan.Enabled)

	warnings := s.triggerReconcile(ctx, logger)
	return plan, warnings, nil
}

// UpdatePlan applies validation before updating persistence state and
// triggering a reconcile.
func (s *PlanService) UpdatePlan(ctx context.Context, id string, input PlanInput) (persistence.AlarmPlan, []reconcile.Warning, error) {
	logger := serviceLogger(ctx, s.logger, "plan", "update", "plan_id", id)

	existing, err := s.plans.GetPlan(ctx, id)
	if err != nil {
		return persistence.AlarmPlan{}, nil, mapRepoError(err)
	}

	if err := validatePlanInput(input); err != nil {
		logger.WarnContext(ctx, "plan rejected", "error_kind", ErrorKind(err))
		return persistence.AlarmPlan{}, nil, err
	}

	updated := planFromInput(input)
	updated.ID = existing.ID
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = s.now()

	if err := s.plans.UpdatePlan(ctx, updated); err != nil {
		return persistence.AlarmPlan{}, nil, mapRepoError(err)
	}
	logger.InfoContext(ctx, "plan updated", "enabled", updated.Enabled)

	warnings := s.triggerReconcile(ctx, logger)
	return updated, warnings, nil
}

// SetPlanEnabled flips only the enabled flag, preserving the other fields.
func (s *PlanService) SetPlanEnabled(ctx context.Context, id string, enabled bool) (persistence.AlarmPlan, []reconcile.Warning, error) {
	logger := serviceLogger(ctx, s.logger, "plan", "set_enabled", "plan_id", id, "enabled", enabled)

	existing, err := s.plans.GetPlan(ctx, id)
	if err != nil {
		return persistence.AlarmPlan{}, nil, mapRepoError(err)
	}

	existing.Enabled = enabled
	existing.UpdatedAt = s.now()
	if err := s.plans.UpdatePlan(ctx, existing); err != nil {
		return persistence.AlarmPlan{}, nil, mapRepoError(err)
	}
	logger.InfoContext(ctx, "plan toggled")

	warnings := s.triggerReconcile(ctx, logger)
	return existing, warnings, nil
}

// GetPlan retrieves a single plan.
func (s *PlanService) GetPlan(ctx context.Context, id string) (persistence.AlarmPlan, error) {
	plan, err := s.plans.GetPlan(ctx, id)
	if err != nil {
		return persistence.AlarmPlan{}, mapRepoError(err)
	}
	return plan, nil
}

// ListPlans returns every plan.
func (s *PlanService) ListPlans(ctx context.Context) ([]persistence.AlarmPlan, error) {
	return s.plans.ListPlans(ctx)
}

// DeletePlan removes the plan and reconciles so its tokens are withdrawn.
func (s *PlanService) DeletePlan(ctx context.Context, id string) ([]reconcile.Warning, error) {
	logger := serviceLogger(ctx, s.logger, "plan", "delete", "plan_id", id)

	if err := s.plans.DeletePlan(ctx, id); err != nil {
		return nil, mapRepoError(err)
	}
	logger.InfoContext(ctx, "plan deleted")

	return s.triggerReconcile(ctx, logger), nil
}

func (s *PlanService) triggerReconcile(ctx context.Context, logger *slog.Logger) []reconcile.Warning {
	if s.reconciler == nil {
		return nil
	}
	result, err := s.reconciler.Reconcile(ctx, reconcile.EventPlanChanged)
	if err != nil {
		// The edit is already saved; the next triggering event retries.
		logger.ErrorContext(ctx, "reconcile failed after plan mutation", "error", err)
		return nil
	}
	return result.Warnings
}

func planFromInput(input PlanInput) persistence.AlarmPlan {
	return persistence.AlarmPlan{
		Label:             input.Label,
		Enabled:           input.Enabled,
		Hour:              input.Hour,
		Minute:            input.Minute,
		WeekdayMask:       input.WeekdayMask,
		RepeatCount:       input.RepeatCount,
		RepeatIntervalMin: input.RepeatIntervalMin,
		SoundID:           input.SoundID,
		SkipHolidays:      input.SkipHolidays,
	}
}

func validatePlanInput(input PlanInput) error {
	vErr := &ValidationError{}

	if input.Label == "" {
		vErr.add("label", "label is required")
	}
	if input.Hour < 0 || input.Hour > 23 {
		vErr.add("hour", "hour must be between 0 and 23")
	}
	if input.Minute < 0 || input.Minute > 59 {
		vErr.add("minute", "minute must be between 0 and 59")
	}
	if input.WeekdayMask > persistence.WeekdayMaskAll {
		vErr.add("weekday_mask", "weekday mask uses only the lower 7 bits")
	}
	// A zero mask with enabled=true is valid but useless: the plan simply
	// never produces occurrences. It is deliberately not rejected here.
	if input.RepeatCount < 1 {
		vErr.add("repeat_count", "repeat count must be at least 1")
	}
	if input.RepeatCount > 1 && input.RepeatIntervalMin < 1 {
		vErr.add("repeat_interval_min", "repeat interval must be at least 1 minute")
	}
	if input.SoundID == "" {
		vErr.add("sound_id", "sound is required")
	}

	if vErr.HasErrors() {
		return vErr
	}
	return nil
}

func mapRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrDuplicate):
		return ErrAlreadyExists
	default:
		return err
	}
}
