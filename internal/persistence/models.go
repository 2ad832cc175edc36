package persistence

import "time"

// DateLayout is the canonical format for calendar dates handled by the engine.
// Dates are stored and compared as plain strings to keep them free of timezone
// information; the occurrence calculator attaches the configured location when
// it materialises fire instants.
const DateLayout = "2006-01-02"

// WeekdayMaskAll selects every day of the week. Bit N corresponds to
// time.Weekday N, so Sunday occupies bit 0.
const WeekdayMaskAll uint8 = 0x7F

// AlarmPlan represents a recurring wake-up alarm definition.
type AlarmPlan struct {
	ID                string
	Label             string
	Enabled           bool
	Hour              int
	Minute            int
	WeekdayMask       uint8
	RepeatCount       int
	RepeatIntervalMin int
	SoundID           string
	SkipHolidays      bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// MatchesWeekday reports whether the plan rings on the given weekday.
func (p AlarmPlan) MatchesWeekday(day time.Weekday) bool {
	return p.WeekdayMask&(1<<uint(day)) != 0
}

// SkipReason classifies why an occurrence was suppressed.
type SkipReason string

const (
	// SkipReasonManual marks a date the user excluded by hand.
	SkipReasonManual SkipReason = "manual"
	// SkipReasonHoliday marks a date suppressed by the holiday auto-skip policy.
	SkipReasonHoliday SkipReason = "holiday"
	// SkipReasonSystem marks a date suppressed by the system on the user's behalf.
	SkipReasonSystem SkipReason = "system"
)

// SkipException suppresses the occurrences of one or all plans on a single
// date. A nil PlanID applies the exception to every plan.
type SkipException struct {
	ID        string
	PlanID    *string
	Date      string
	Reason    SkipReason
	CreatedAt time.Time
}

// AppliesTo reports whether the exception covers the given plan.
func (e SkipException) AppliesTo(planID string) bool {
	return e.PlanID == nil || *e.PlanID == planID
}

// Holiday is a fixed national holiday date loaded once from seed data.
type Holiday struct {
	Date string
	Name string
}

// TokenStatus tracks the lifecycle of a scheduled token.
type TokenStatus string

const (
	// TokenStatusPending indicates a live platform registration backs the token.
	TokenStatusPending TokenStatus = "PENDING"
	// TokenStatusFired indicates the platform delivered the alarm. Terminal.
	TokenStatusFired TokenStatus = "FIRED"
	// TokenStatusCanceled indicates reconciliation superseded the token. Terminal.
	TokenStatusCanceled TokenStatus = "CANCELED"
)

// Terminal reports whether the status admits no further transitions.
func (s TokenStatus) Terminal() bool {
	return s == TokenStatusFired || s == TokenStatusCanceled
}

// ScheduledToken bridges one concrete occurrence to a platform-level alarm
// registration. At most one PENDING token exists per (plan, date), and the
// platform identifier is unique among all non-terminal tokens.
type ScheduledToken struct {
	ID                 string
	PlanID             string
	Date               string
	FireAt             time.Time
	PlatformID         int
	Status             TokenStatus
	RegistrationFailed bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
