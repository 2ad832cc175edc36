package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/alarm-engine/internal/logging"
	"github.com/example/alarm-engine/internal/occurrence"
	"github.com/example/alarm-engine/internal/persistence"
)

// DefaultLookahead bounds the number of live platform registrations kept per
// plan. Platform alarm services impose ceilings on outstanding exact alarms,
// so the window stays small and is topped up on every reconcile.
const DefaultLookahead = 5

// DefaultPlatformIDMax bounds the pool of small integer identifiers used to
// address platform registrations.
const DefaultPlatformIDMax = 256

var (
	// ErrInvariantViolation reports token-table state that correct diffing can
	// never produce, such as two PENDING tokens for one (plan, date).
	ErrInvariantViolation = errors.New("reconcile: invariant violation")
	// ErrPoolExhausted reports that no platform identifier is free.
	ErrPoolExhausted = errors.New("reconcile: platform identifier pool exhausted")
	// ErrUnknownEvent reports a trigger outside the known event set.
	ErrUnknownEvent = errors.New("reconcile: unknown event")
)

// PlanSource lists the plans considered during reconciliation.
type PlanSource interface {
	ListEnabledPlans(ctx context.Context) ([]persistence.AlarmPlan, error)
}

// ExceptionSource lists skip exceptions inside the scanning window.
type ExceptionSource interface {
	ListExceptions(ctx context.Context, filter persistence.ExceptionFilter) ([]persistence.SkipException, error)
}

// TokenStore persists scheduled tokens. The reconciler is the only writer.
type TokenStore interface {
	ListPendingTokens(ctx context.Context) ([]persistence.ScheduledToken, error)
	GetTokenByPlatformID(ctx context.Context, platformID int) (persistence.ScheduledToken, error)
	ApplyTokenBatch(ctx context.Context, batch persistence.TokenBatch) error
	UpdateToken(ctx context.Context, token persistence.ScheduledToken) error
}

// RingInfo is the metadata stored with a platform registration so a firing
// alarm can start its ring session without a store round trip.
type RingInfo struct {
	TokenID     string
	PlanID      string
	Label       string
	RepeatCount int
	IntervalMin int
	SoundID     string
}

// Registration describes one platform-level one-shot wake request.
type Registration struct {
	PlatformID int
	FireAt     time.Time
	Ring       RingInfo
}

// PlatformAdapter drives the OS alarm primitive. Cancel must be idempotent;
// cancelling an identifier with no live registration is not an error.
type PlatformAdapter interface {
	Register(ctx context.Context, registration Registration) error
	Cancel(ctx context.Context, platformID int) error
}

// Warning is a reportable, non-fatal condition surfaced by a reconcile run.
type Warning struct {
	TokenID string
	PlanID  string
	Date    string
	Err     error
}

// Result summarises the platform and store activity of one reconcile run.
type Result struct {
	Event      Event
	Registered int
	Canceled   int
	Unchanged  int
	Warnings   []Warning
	// Coalesced is true when the call was folded into a run already in
	// flight; that run picks the trigger up in its follow-up pass.
	Coalesced bool
}

// Reconciler keeps persisted scheduled tokens and platform registrations in
// sync with the logical alarm plan set. It owns the token lifecycle.
type Reconciler struct {
	plans         PlanSource
	exceptions    ExceptionSource
	tokens        TokenStore
	adapter       PlatformAdapter
	calculator    *occurrence.Calculator
	holidays      occurrence.HolidayCalendar
	lookahead     int
	platformIDMax int
	idGenerator   func() string
	now           func() time.Time
	logger        *slog.Logger

	mu      sync.Mutex
	running bool
	pending Event
}

// Config wires the reconciler's collaborators.
type Config struct {
	Plans         PlanSource
	Exceptions    ExceptionSource
	Tokens        TokenStore
	Adapter       PlatformAdapter
	Calculator    *occurrence.Calculator
	Holidays      occurrence.HolidayCalendar
	Lookahead     int
	PlatformIDMax int
	IDGenerator   func() string
	Now           func() time.Time
	Logger        *slog.Logger
}

// New constructs a Reconciler. Zero lookahead and pool bounds fall back to
// the defaults; a nil clock falls back to time.Now.
func New(cfg Config) *Reconciler {
	if cfg.Lookahead <= 0 {
		cfg.Lookahead = DefaultLookahead
	}
	if cfg.PlatformIDMax <= 0 {
		cfg.PlatformIDMax = DefaultPlatformIDMax
	}
	if cfg.IDGenerator == nil {
		cfg.IDGenerator = func() string { return "" }
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Reconciler{
		plans:         cfg.Plans,
		exceptions:    cfg.Exceptions,
		tokens:        cfg.Tokens,
		adapter:       cfg.Adapter,
		calculator:    cfg.Calculator,
		holidays:      cfg.Holidays,
		lookahead:     cfg.Lookahead,
		platformIDMax: cfg.PlatformIDMax,
		idGenerator:   cfg.IDGenerator,
		now:           cfg.Now,
		logger:        cfg.Logger,
	}
}

// Reconcile recomputes the desired occurrence window and syncs tokens and
// platform registrations to match. Runs are serialized: a call arriving while
// another is in flight is coalesced into a single follow-up pass executed by
// the in-flight caller, so rapid-fire triggers collapse into at most one
// extra recomputation.
func (r *Reconciler) Reconcile(ctx context.Context, event Event) (Result, error) {
	if !event.Valid() {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownEvent, event)
	}

	r.mu.Lock()
	if r.running {
		r.pending = strongerEvent(r.pending, event)
		r.mu.Unlock()
		return Result{Event: event, Coalesced: true}, nil
	}
	r.running = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	result, err := r.runOnce(ctx, event)
	for {
		r.mu.Lock()
		pending := r.pending
		r.pending = ""
		r.mu.Unlock()
		if pending == "" {
			return result, err
		}
		result, err = r.runOnce(ctx, pending)
	}
}

// strongerEvent merges a trigger into the pending follow-up slot. Boot wins
// over everything else: it is the only event that forces a registration
// rebuild, and folding it into a weaker trigger would lose that.
func strongerEvent(current, incoming Event) Event {
	if current == EventBootCompleted {
		return current
	}
	return incoming
}

func (r *Reconciler) runOnce(ctx context.Context, event Event) (Result, error) {
	logger := r.runLogger(ctx, event)
	result := Result{Event: event}
	now := r.now()

	// Snapshot the inputs once so the whole pass sees consistent state.
	plans, err := r.plans.ListEnabledPlans(ctx)
	if err != nil {
		return result, fmt.Errorf("reconcile: failed to list plans: %w", err)
	}
	planIndex := make(map[string]persistence.AlarmPlan, len(plans))
	for _, plan := range plans {
		planIndex[plan.ID] = plan
	}

	exceptions, err := r.loadExceptions(ctx, now)
	if err != nil {
		return result, err
	}

	env := occurrence.Environment{Exceptions: exceptions, Holidays: r.holidays, Now: now}
	desired := make([]occurrence.Occurrence, 0, r.lookahead*len(plans))
	for _, occ := range r.calculator.Upcoming(plans, env, r.lookahead) {
		if !occ.Skipped {
			desired = append(desired, occ)
		}
	}

	pending, err := r.tokens.ListPendingTokens(ctx)
	if err != nil {
		return result, fmt.Errorf("reconcile: failed to list pending tokens: %w", err)
	}
	if err := assertTokenInvariants(pending); err != nil {
		return result, err
	}

	desiredByKey := make(map[string]occurrence.Occurrence, len(desired))
	for _, occ := range desired {
		desiredByKey[tokenKey(occ.PlanID, occ.Date)] = occ
	}

	var batch persistence.TokenBatch
	usedPlatformIDs := make(map[int]bool, len(pending))
	rebuild := event == EventBootCompleted

	for _, token := range pending {
		occ, wanted := desiredByKey[tokenKey(token.PlanID, token.Date)]
		if wanted && token.FireAt.Equal(occ.FireAt) {
			// Matched tokens stay untouched to spare platform churn, except
			// after a boot (registrations lost) or a failed registration.
			delete(desiredByKey, tokenKey(token.PlanID, token.Date))
			usedPlatformIDs[token.PlatformID] = true
			if rebuild || token.RegistrationFailed {
				updated, warning := r.register(ctx, token, planIndex[token.PlanID], now)
				if warning != nil {
					result.Warnings = append(result.Warnings, *warning)
				} else {
					result.Registered++
				}
				if updated.RegistrationFailed != token.RegistrationFailed {
					batch.Update = append(batch.Update, updated)
				}
				continue
			}
			result.Unchanged++
			continue
		}

		// Stale: the date is gone from the desired set, or the plan retimed.
		// The platform registration is withdrawn before the token is marked
		// CANCELED so no live registration outlives its token.
		if err := r.adapter.Cancel(ctx, token.PlatformID); err != nil {
			return result, fmt.Errorf("reconcile: failed to cancel platform registration %d: %w", token.PlatformID, err)
		}
		token.Status = persistence.TokenStatusCanceled
		token.UpdatedAt = now
		batch.Cancel = append(batch.Cancel, token)
		result.Canceled++
	}

	// Deterministic creation order keeps platform identifier allocation stable.
	for _, occ := range desired {
		if _, needed := desiredByKey[tokenKey(occ.PlanID, occ.Date)]; !needed {
			continue
		}
		platformID, err := allocatePlatformID(usedPlatformIDs, r.platformIDMax)
		if err != nil {
			return result, err
		}
		usedPlatformIDs[platformID] = true

		token := persistence.ScheduledToken{
			ID:         r.idGenerator(),
			PlanID:     occ.PlanID,
			Date:       occ.Date,
			FireAt:     occ.FireAt,
			PlatformID: platformID,
			Status:     persistence.TokenStatusPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		registered, warning := r.register(ctx, token, planIndex[occ.PlanID], now)
		if warning != nil {
			result.Warnings = append(result.Warnings, *warning)
		} else {
			result.Registered++
		}
		batch.Create = append(batch.Create, registered)
	}

	if !batch.Empty() {
		if err := r.tokens.ApplyTokenBatch(ctx, batch); err != nil {
			return result, fmt.Errorf("reconcile: failed to persist token batch: %w", err)
		}
	}

	logger.InfoContext(ctx, "reconcile completed",
		"registered", result.Registered,
		"canceled", result.Canceled,
		"unchanged", result.Unchanged,
		"warnings", len(result.Warnings),
	)
	return result, nil
}

// register attempts the platform registration for a PENDING token. A refusal
// is not fatal: the token keeps its PENDING status with the failure marker set
// so the next reconcile retries.
func (r *Reconciler) register(ctx context.Context, token persistence.ScheduledToken, plan persistence.AlarmPlan, now time.Time) (persistence.ScheduledToken, *Warning) {
	registration := Registration{
		PlatformID: token.PlatformID,
		FireAt:     token.FireAt,
		Ring: RingInfo{
			TokenID:     token.ID,
			PlanID:      token.PlanID,
			Label:       plan.Label,
			RepeatCount: plan.RepeatCount,
			IntervalMin: plan.RepeatIntervalMin,
			SoundID:     plan.SoundID,
		},
	}

	if err := r.adapter.Register(ctx, registration); err != nil {
		token.RegistrationFailed = true
		token.UpdatedAt = now
		return token, &Warning{TokenID: token.ID, PlanID: token.PlanID, Date: token.Date, Err: err}
	}
	if token.RegistrationFailed {
		token.RegistrationFailed = false
		token.UpdatedAt = now
	}
	return token, nil
}

// HandleFired transitions the token addressed by platformID to FIRED and
// returns it. The ring metadata travels with the platform fire event itself,
// so this is the only store interaction on the fire path.
func (r *Reconciler) HandleFired(ctx context.Context, platformID int) (persistence.ScheduledToken, error) {
	token, err := r.tokens.GetTokenByPlatformID(ctx, platformID)
	if err != nil {
		return persistence.ScheduledToken{}, fmt.Errorf("reconcile: no token for platform id %d: %w", platformID, err)
	}
	if token.Status != persistence.TokenStatusPending {
		return persistence.ScheduledToken{}, fmt.Errorf("%w: fired token %s is %s", ErrInvariantViolation, token.ID, token.Status)
	}

	token.Status = persistence.TokenStatusFired
	token.UpdatedAt = r.now()
	if err := r.tokens.UpdateToken(ctx, token); err != nil {
		return persistence.ScheduledToken{}, fmt.Errorf("reconcile: failed to mark token fired: %w", err)
	}
	return token, nil
}

func (r *Reconciler) loadExceptions(ctx context.Context, now time.Time) ([]persistence.SkipException, error) {
	// The window must cover the calculator's full scanning range; a shorter
	// window would hide distant skips and hand their dates a token.
	loc := r.calculator.Location()
	from := now.In(loc).Format(persistence.DateLayout)
	to := now.In(loc).AddDate(0, 0, r.calculator.DayCap()).Format(persistence.DateLayout)

	exceptions, err := r.exceptions.ListExceptions(ctx, persistence.ExceptionFilter{DateFrom: from, DateTo: to})
	if err != nil {
		return nil, fmt.Errorf("reconcile: failed to list exceptions: %w", err)
	}
	return exceptions, nil
}

func (r *Reconciler) runLogger(ctx context.Context, event Event) *slog.Logger {
	return logging.Resolve(ctx, r.logger).With("component", "reconciler", "event", string(event))
}

func tokenKey(planID, date string) string {
	return planID + "|" + date
}

// assertTokenInvariants rejects pending-token state that correct diffing can
// never produce: duplicate (plan, date) pairs or shared platform identifiers.
func assertTokenInvariants(pending []persistence.ScheduledToken) error {
	byKey := make(map[string]string, len(pending))
	byPlatformID := make(map[int]string, len(pending))
	for _, token := range pending {
		key := tokenKey(token.PlanID, token.Date)
		if other, dup := byKey[key]; dup {
			return fmt.Errorf("%w: tokens %s and %s both PENDING for %s", ErrInvariantViolation, other, token.ID, key)
		}
		byKey[key] = token.ID
		if other, dup := byPlatformID[token.PlatformID]; dup {
			return fmt.Errorf("%w: tokens %s and %s share platform id %d", ErrInvariantViolation, other, token.ID, token.PlatformID)
		}
		byPlatformID[token.PlatformID] = token.ID
	}
	return nil
}

// allocatePlatformID returns the lowest identifier in [1, max] not used by a
// non-terminal token.
func allocatePlatformID(used map[int]bool, max int) (int, error) {
	for candidate := 1; candidate <= max; candidate++ {
		if !used[candidate] {
			return candidate, nil
		}
	}
	return 0, ErrPoolExhausted
}
