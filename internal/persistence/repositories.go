package persistence

import "context"

// PlanRepository exposes CRUD operations for alarm plans.
type PlanRepository interface {
	CreatePlan(ctx context.Context, plan AlarmPlan) error
	UpdatePlan(ctx context.Context, plan AlarmPlan) error
	GetPlan(ctx context.Context, id string) (AlarmPlan, error)
	ListPlans(ctx context.Context) ([]AlarmPlan, error)
	ListEnabledPlans(ctx context.Context) ([]AlarmPlan, error)
	DeletePlan(ctx context.Context, id string) error
}

// ExceptionFilter narrows skip-exception queries. Dates are inclusive bounds
// in DateLayout form; empty bounds leave the range open.
type ExceptionFilter struct {
	PlanID   *string
	DateFrom string
	DateTo   string
}

// ExceptionRepository stores per-date skip exceptions.
type ExceptionRepository interface {
	CreateException(ctx context.Context, exception SkipException) error
	GetException(ctx context.Context, id string) (SkipException, error)
	ListExceptions(ctx context.Context, filter ExceptionFilter) ([]SkipException, error)
	DeleteException(ctx context.Context, id string) error
}

// HolidayRepository stores the immutable national holiday table.
type HolidayRepository interface {
	SeedHolidays(ctx context.Context, holidays []Holiday) error
	ListHolidays(ctx context.Context) ([]Holiday, error)
	IsHoliday(ctx context.Context, date string) (bool, error)
}

// TokenBatch groups token mutations that must be persisted as one logical
// unit. Cancellations are applied before creations so a retimed occurrence
// never holds two live tokens for the same date. Updates carry status-flag
// changes for tokens that otherwise stay in place.
type TokenBatch struct {
	Cancel []ScheduledToken
	Create []ScheduledToken
	Update []ScheduledToken
}

// Empty reports whether the batch carries no mutations.
func (b TokenBatch) Empty() bool {
	return len(b.Cancel) == 0 && len(b.Create) == 0 && len(b.Update) == 0
}

// TokenRepository stores scheduled tokens. Only the token reconciler may
// mutate token rows.
type TokenRepository interface {
	ListPendingTokens(ctx context.Context) ([]ScheduledToken, error)
	GetTokenByPlatformID(ctx context.Context, platformID int) (ScheduledToken, error)
	ApplyTokenBatch(ctx context.Context, batch TokenBatch) error
	UpdateToken(ctx context.Context, token ScheduledToken) error
}
