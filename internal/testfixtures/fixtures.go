package testfixtures

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/example/alarm-engine/internal/persistence"
	"github.com/example/alarm-engine/internal/reconcile"
)

var (
	planCounter      uint64
	exceptionCounter uint64
	tokenCounter     uint64
)

// referenceTime is a Saturday morning in JST, chosen so weekday-mask walks in
// tests have a predictable starting point.
var referenceTime = time.Date(2024, time.March, 9, 8, 0, 0, 0, time.FixedZone("JST", 9*60*60))

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// WeekdayMask builds a mask from individual weekdays.
func WeekdayMask(days ...time.Weekday) uint8 {
	var mask uint8
	for _, day := range days {
		mask |= 1 << uint(day)
	}
	return mask
}

// ----------------------------- Plan fixtures -----------------------------

// PlanOption configures the generated plan fixture.
type PlanOption func(*persistence.AlarmPlan)

// NewPlanFixture returns a deterministic weekday wake-up plan with optional
// overrides.
func NewPlanFixture(opts ...PlanOption) persistence.AlarmPlan {
	idx := atomic.AddUint64(&planCounter, 1)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	plan := persistence.AlarmPlan{
		ID:      fmt.Sprintf("plan-%03d", idx),
		Label:   fmt.Sprintf("アラーム %03d", idx),
		Enabled: true,
		Hour:    7,
		Minute:  0,
		WeekdayMask: WeekdayMask(
			time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
		),
		RepeatCount:       3,
		RepeatIntervalMin: 5,
		SoundID:           "chime",
		CreatedAt:         created,
		UpdatedAt:         created,
	}
	for _, opt := range opts {
		opt(&plan)
	}
	return plan
}

// WithPlanID overrides the generated plan ID.
func WithPlanID(id string) PlanOption {
	return func(p *persistence.AlarmPlan) { p.ID = id }
}

// WithPlanLabel overrides the generated label.
func WithPlanLabel(label string) PlanOption {
	return func(p *persistence.AlarmPlan) { p.Label = label }
}

// WithPlanEnabled sets the enabled flag.
func WithPlanEnabled(enabled bool) PlanOption {
	return func(p *persistence.AlarmPlan) { p.Enabled = enabled }
}

// WithPlanTime sets the wall-clock firing time.
func WithPlanTime(hour, minute int) PlanOption {
	return func(p *persistence.AlarmPlan) {
		p.Hour = hour
		p.Minute = minute
	}
}

// WithPlanWeekdays sets the weekday mask from individual days.
func WithPlanWeekdays(days ...time.Weekday) PlanOption {
	return func(p *persistence.AlarmPlan) { p.WeekdayMask = WeekdayMask(days...) }
}

// WithPlanRepeat sets the ring repetition behaviour.
func WithPlanRepeat(count, intervalMin int) PlanOption {
	return func(p *persistence.AlarmPlan) {
		p.RepeatCount = count
		p.RepeatIntervalMin = intervalMin
	}
}

// WithPlanSkipHolidays opts the plan into holiday auto-skip.
func WithPlanSkipHolidays(skip bool) PlanOption {
	return func(p *persistence.AlarmPlan) { p.SkipHolidays = skip }
}

// --------------------------- Exception fixtures ---------------------------

// ExceptionOption configures the generated exception fixture.
type ExceptionOption func(*persistence.SkipException)

// NewExceptionFixture returns a deterministic manual skip exception.
func NewExceptionFixture(date string, opts ...ExceptionOption) persistence.SkipException {
	idx := atomic.AddUint64(&exceptionCounter, 1)
	exception := persistence.SkipException{
		ID:        fmt.Sprintf("exc-%03d", idx),
		Date:      date,
		Reason:    persistence.SkipReasonManual,
		CreatedAt: referenceTime,
	}
	for _, opt := range opts {
		opt(&exception)
	}
	return exception
}

// WithExceptionPlan scopes the exception to a single plan.
func WithExceptionPlan(planID string) ExceptionOption {
	return func(e *persistence.SkipException) { e.PlanID = &planID }
}

// WithExceptionReason overrides the skip reason.
func WithExceptionReason(reason persistence.SkipReason) ExceptionOption {
	return func(e *persistence.SkipException) { e.Reason = reason }
}

// ----------------------------- Token fixtures -----------------------------

// TokenOption configures the generated token fixture.
type TokenOption func(*persistence.ScheduledToken)

// NewTokenFixture returns a deterministic pending token for the plan and date.
func NewTokenFixture(planID, date string, fireAt time.Time, opts ...TokenOption) persistence.ScheduledToken {
	idx := atomic.AddUint64(&tokenCounter, 1)
	token := persistence.ScheduledToken{
		ID:         fmt.Sprintf("tok-%03d", idx),
		PlanID:     planID,
		Date:       date,
		FireAt:     fireAt,
		PlatformID: int(idx),
		Status:     persistence.TokenStatusPending,
		CreatedAt:  referenceTime,
		UpdatedAt:  referenceTime,
	}
	for _, opt := range opts {
		opt(&token)
	}
	return token
}

// WithTokenPlatformID overrides the generated platform identifier.
func WithTokenPlatformID(platformID int) TokenOption {
	return func(t *persistence.ScheduledToken) { t.PlatformID = platformID }
}

// WithTokenStatus overrides the token status.
func WithTokenStatus(status persistence.TokenStatus) TokenOption {
	return func(t *persistence.ScheduledToken) { t.Status = status }
}

// ------------------------------ Fake adapter ------------------------------

// PlatformAdapter is an in-memory reconcile.PlatformAdapter that records
// every registration and cancellation.
type PlatformAdapter struct {
	mu            sync.Mutex
	registrations map[int]reconcile.Registration
	registerCalls int
	cancelCalls   int
	RegisterErr   error
	CancelErr     error
}

// NewPlatformAdapter returns an empty fake adapter.
func NewPlatformAdapter() *PlatformAdapter {
	return &PlatformAdapter{registrations: make(map[int]reconcile.Registration)}
}

// Register records the registration keyed by platform ID.
func (a *PlatformAdapter) Register(_ context.Context, registration reconcile.Registration) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.registerCalls++
	if a.RegisterErr != nil {
		return a.RegisterErr
	}
	a.registrations[registration.PlatformID] = registration
	return nil
}

// Cancel removes the registration for the platform ID.
func (a *PlatformAdapter) Cancel(_ context.Context, platformID int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancelCalls++
	if a.CancelErr != nil {
		return a.CancelErr
	}
	delete(a.registrations, platformID)
	return nil
}

// Registration returns the live registration for the platform ID, if any.
func (a *PlatformAdapter) Registration(platformID int) (reconcile.Registration, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	registration, ok := a.registrations[platformID]
	return registration, ok
}

// Active returns the number of live registrations.
func (a *PlatformAdapter) Active() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.registrations)
}

// Calls returns the total register and cancel invocation counts.
func (a *PlatformAdapter) Calls() (registers, cancels int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.registerCalls, a.cancelCalls
}

// ------------------------------ Fake player -------------------------------

// Player is an in-memory ring.Player that records playback events in order.
type Player struct {
	mu     sync.Mutex
	events []string
}

// NewPlayer returns an empty fake player.
func NewPlayer() *Player {
	return &Player{}
}

// Play records a play event for the sound.
func (p *Player) Play(soundID string) {
	p.mu.Lock()
	p.events = append(p.events, "play:"+soundID)
	p.mu.Unlock()
}

// Stop records a stop event.
func (p *Player) Stop() {
	p.mu.Lock()
	p.events = append(p.events, "stop")
	p.mu.Unlock()
}

// Events returns a copy of the recorded event sequence.
func (p *Player) Events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}
