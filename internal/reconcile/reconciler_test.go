package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/example/alarm-engine/internal/occurrence"
	"github.com/example/alarm-engine/internal/persistence"
)

var testLoc = time.FixedZone("JST", 9*60*60)

// 2024-03-09 is a Saturday.
var testNow = time.Date(2024, time.March, 9, 8, 0, 0, 0, testLoc)

type fakePlans struct {
	mu    sync.Mutex
	plans []persistence.AlarmPlan
	calls int
	gate  chan struct{}
}

func (f *fakePlans) ListEnabledPlans(ctx context.Context) ([]persistence.AlarmPlan, error) {
	f.mu.Lock()
	f.calls++
	gate := f.gate
	f.gate = nil
	plans := append([]persistence.AlarmPlan(nil), f.plans...)
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return plans, nil
}

func (f *fakePlans) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeExceptions struct {
	exceptions []persistence.SkipException
}

func (f *fakeExceptions) ListExceptions(ctx context.Context, filter persistence.ExceptionFilter) ([]persistence.SkipException, error) {
	var result []persistence.SkipException
	for _, exception := range f.exceptions {
		if filter.DateFrom != "" && exception.Date < filter.DateFrom {
			continue
		}
		if filter.DateTo != "" && exception.Date > filter.DateTo {
			continue
		}
		result = append(result, exception)
	}
	return result, nil
}

type fakeTokens struct {
	mu       sync.Mutex
	tokens   map[string]persistence.ScheduledToken
	batches  []persistence.TokenBatch
	applyErr error
}

func newFakeTokens() *fakeTokens {
	return &fakeTokens{tokens: make(map[string]persistence.ScheduledToken)}
}

func (f *fakeTokens) ListPendingTokens(ctx context.Context) ([]persistence.ScheduledToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var pending []persistence.ScheduledToken
	for _, token := range f.tokens {
		if token.Status == persistence.TokenStatusPending {
			pending = append(pending, token)
		}
	}
	return pending, nil
}

func (f *fakeTokens) GetTokenByPlatformID(ctx context.Context, platformID int) (persistence.ScheduledToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, token := range f.tokens {
		if token.PlatformID == platformID && !token.Status.Terminal() {
			return token, nil
		}
	}
	return persistence.ScheduledToken{}, persistence.ErrNotFound
}

func (f *fakeTokens) ApplyTokenBatch(ctx context.Context, batch persistence.TokenBatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.applyErr != nil {
		return f.applyErr
	}
	f.batches = append(f.batches, batch)
	for _, token := range batch.Cancel {
		f.tokens[token.ID] = token
	}
	for _, token := range batch.Create {
		f.tokens[token.ID] = token
	}
	for _, token := range batch.Update {
		f.tokens[token.ID] = token
	}
	return nil
}

func (f *fakeTokens) UpdateToken(ctx context.Context, token persistence.ScheduledToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tokens[token.ID]; !ok {
		return persistence.ErrNotFound
	}
	f.tokens[token.ID] = token
	return nil
}

func (f *fakeTokens) pendingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, token := range f.tokens {
		if token.Status == persistence.TokenStatusPending {
			count++
		}
	}
	return count
}

func (f *fakeTokens) seed(token persistence.ScheduledToken) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[token.ID] = token
}

type fakeAdapter struct {
	mu          sync.Mutex
	registered  []Registration
	canceled    []int
	registerErr error
}

func (f *fakeAdapter) Register(ctx context.Context, registration Registration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.registerErr != nil {
		return f.registerErr
	}
	f.registered = append(f.registered, registration)
	return nil
}

func (f *fakeAdapter) Cancel(ctx context.Context, platformID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = append(f.canceled, platformID)
	return nil
}

func (f *fakeAdapter) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.registered), len(f.canceled)
}

func (f *fakeAdapter) setRegisterErr(err error) {
	f.mu.Lock()
	f.registerErr = err
	f.mu.Unlock()
}

func dailyPlan(id string, hour, minute int) persistence.AlarmPlan {
	return persistence.AlarmPlan{
		ID:                id,
		Label:             "wake " + id,
		Enabled:           true,
		Hour:              hour,
		Minute:            minute,
		WeekdayMask:       persistence.WeekdayMaskAll,
		RepeatCount:       3,
		RepeatIntervalMin: 5,
		SoundID:           "chime",
	}
}

type fixture struct {
	reconciler *Reconciler
	plans      *fakePlans
	exceptions *fakeExceptions
	tokens     *fakeTokens
	adapter    *fakeAdapter
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	f := &fixture{
		plans:      &fakePlans{},
		exceptions: &fakeExceptions{},
		tokens:     newFakeTokens(),
		adapter:    &fakeAdapter{},
	}
	if cfg.Plans == nil {
		cfg.Plans = f.plans
	}
	if cfg.Exceptions == nil {
		cfg.Exceptions = f.exceptions
	}
	if cfg.Tokens == nil {
		cfg.Tokens = f.tokens
	}
	if cfg.Adapter == nil {
		cfg.Adapter = f.adapter
	}
	if cfg.Calculator == nil {
		cfg.Calculator = occurrence.NewCalculator(testLoc, 0)
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return testNow }
	}
	if cfg.IDGenerator == nil {
		counter := 0
		cfg.IDGenerator = func() string {
			counter++
			return fmt.Sprintf("token-%d", counter)
		}
	}
	f.reconciler = New(cfg)
	return f
}

func TestReconciler_Reconcile(t *testing.T) {
	t.Parallel()

	t.Run("creates lookahead tokens for a fresh plan", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, Config{Lookahead: 4})
		f.plans.plans = []persistence.AlarmPlan{dailyPlan("plan-1", 7, 0)}

		result, err := f.reconciler.Reconcile(context.Background(), EventPlanChanged)
		if err != nil {
			t.Fatalf("Reconcile returned error: %v", err)
		}
		if result.Registered != 4 || result.Canceled != 0 || result.Unchanged != 0 {
			t.Errorf("result = %+v, want 4 registered", result)
		}
		if got := f.tokens.pendingCount(); got != 4 {
			t.Errorf("pending tokens = %d, want 4", got)
		}

		seen := map[int]bool{}
		for _, registration := range f.adapter.registered {
			if registration.PlatformID < 1 || registration.PlatformID > DefaultPlatformIDMax {
				t.Errorf("platform id %d outside pool", registration.PlatformID)
			}
			if seen[registration.PlatformID] {
				t.Errorf("platform id %d allocated twice", registration.PlatformID)
			}
			seen[registration.PlatformID] = true
			if registration.Ring.RepeatCount != 3 || registration.Ring.IntervalMin != 5 || registration.Ring.SoundID != "chime" {
				t.Errorf("ring metadata not carried: %+v", registration.Ring)
			}
		}
	})

	t.Run("second run with no changes is a no-op on the platform", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, Config{Lookahead: 3})
		f.plans.plans = []persistence.AlarmPlan{dailyPlan("plan-1", 7, 0)}

		if _, err := f.reconciler.Reconcile(context.Background(), EventPlanChanged); err != nil {
			t.Fatalf("first Reconcile returned error: %v", err)
		}
		registeredBefore, canceledBefore := f.adapter.counts()

		result, err := f.reconciler.Reconcile(context.Background(), EventScheduledRefresh)
		if err != nil {
			t.Fatalf("second Reconcile returned error: %v", err)
		}
		registeredAfter, canceledAfter := f.adapter.counts()

		if registeredAfter != registeredBefore || canceledAfter != canceledBefore {
			t.Errorf("platform calls changed: register %d->%d cancel %d->%d",
				registeredBefore, registeredAfter, canceledBefore, canceledAfter)
		}
		if result.Unchanged != 3 || result.Registered != 0 || result.Canceled != 0 {
			t.Errorf("result = %+v, want 3 unchanged", result)
		}
	})

	t.Run("retimed plan cancels before creating", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, Config{Lookahead: 2})
		f.plans.plans = []persistence.AlarmPlan{dailyPlan("plan-1", 7, 0)}

		if _, err := f.reconciler.Reconcile(context.Background(), EventPlanChanged); err != nil {
			t.Fatalf("first Reconcile returned error: %v", err)
		}

		f.plans.mu.Lock()
		f.plans.plans = []persistence.AlarmPlan{dailyPlan("plan-1", 6, 30)}
		f.plans.mu.Unlock()

		result, err := f.reconciler.Reconcile(context.Background(), EventPlanChanged)
		if err != nil {
			t.Fatalf("second Reconcile returned error: %v", err)
		}
		if result.Canceled != 2 || result.Registered != 2 {
			t.Errorf("result = %+v, want 2 canceled and 2 registered", result)
		}

		last := f.tokens.batches[len(f.tokens.batches)-1]
		if len(last.Cancel) != 2 || len(last.Create) != 2 {
			t.Fatalf("batch = %d cancels, %d creates; want 2 and 2", len(last.Cancel), len(last.Create))
		}
		for _, token := range last.Create {
			if token.FireAt.Hour() != 6 || token.FireAt.Minute() != 30 {
				t.Errorf("new token fires at %s, want 06:30", token.FireAt)
			}
		}
		if got := f.tokens.pendingCount(); got != 2 {
			t.Errorf("pending tokens = %d, want 2", got)
		}
	})

	t.Run("pending count equals min of lookahead and reachable occurrences", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, Config{Lookahead: 5})
		monday := dailyPlan("plan-1", 7, 0)
		monday.WeekdayMask = 1 << uint(time.Monday)
		f.plans.plans = []persistence.AlarmPlan{monday}

		if _, err := f.reconciler.Reconcile(context.Background(), EventPlanChanged); err != nil {
			t.Fatalf("Reconcile returned error: %v", err)
		}
		// Five Mondays fit comfortably inside the 60 day cap.
		if got := f.tokens.pendingCount(); got != 5 {
			t.Errorf("pending tokens = %d, want 5", got)
		}
	})

	t.Run("skipped occurrences get no tokens", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, Config{Lookahead: 2})
		f.plans.plans = []persistence.AlarmPlan{dailyPlan("plan-1", 7, 0)}
		f.exceptions.exceptions = []persistence.SkipException{
			{ID: "ex-1", Date: "2024-03-10", Reason: persistence.SkipReasonManual},
		}

		if _, err := f.reconciler.Reconcile(context.Background(), EventPlanChanged); err != nil {
			t.Fatalf("Reconcile returned error: %v", err)
		}
		for _, registration := range f.adapter.registered {
			if registration.FireAt.Format(persistence.DateLayout) == "2024-03-10" {
				t.Error("token registered for a skipped date")
			}
		}
		if got := f.tokens.pendingCount(); got != 2 {
			t.Errorf("pending tokens = %d, want 2", got)
		}
	})

	t.Run("exception window follows the configured day cap", func(t *testing.T) {
		t.Parallel()

		// Eleven Mondays reach day 79, and the skipped one sits past the
		// default 60 day cap.
		f := newFixture(t, Config{
			Lookahead:  11,
			Calculator: occurrence.NewCalculator(testLoc, 90),
		})
		monday := dailyPlan("plan-1", 7, 0)
		monday.WeekdayMask = 1 << uint(time.Monday)
		f.plans.plans = []persistence.AlarmPlan{monday}
		f.exceptions.exceptions = []persistence.SkipException{
			{ID: "ex-1", Date: "2024-05-13", Reason: persistence.SkipReasonManual},
		}

		if _, err := f.reconciler.Reconcile(context.Background(), EventPlanChanged); err != nil {
			t.Fatalf("Reconcile returned error: %v", err)
		}
		for _, registration := range f.adapter.registered {
			if registration.FireAt.Format(persistence.DateLayout) == "2024-05-13" {
				t.Error("token registered for manually skipped date 2024-05-13")
			}
		}
		if got := f.tokens.pendingCount(); got != 11 {
			t.Errorf("pending tokens = %d, want 11", got)
		}
	})

	t.Run("registration refusal keeps token pending and retries", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, Config{Lookahead: 2})
		f.plans.plans = []persistence.AlarmPlan{dailyPlan("plan-1", 7, 0)}
		f.adapter.setRegisterErr(errors.New("exact alarm capability revoked"))

		result, err := f.reconciler.Reconcile(context.Background(), EventPlanChanged)
		if err != nil {
			t.Fatalf("Reconcile returned error: %v", err)
		}
		if len(result.Warnings) != 2 {
			t.Fatalf("warnings = %d, want 2", len(result.Warnings))
		}
		if result.Registered != 0 {
			t.Errorf("registered = %d, want 0 when every registration is refused", result.Registered)
		}
		if got := f.tokens.pendingCount(); got != 2 {
			t.Errorf("pending tokens = %d, want 2 despite refusals", got)
		}
		for _, token := range f.tokens.tokens {
			if !token.RegistrationFailed {
				t.Errorf("token %s should carry the registration-failed marker", token.ID)
			}
		}

		// Capability restored: the next run retries without recreating tokens.
		f.adapter.setRegisterErr(nil)
		result, err = f.reconciler.Reconcile(context.Background(), EventScheduledRefresh)
		if err != nil {
			t.Fatalf("retry Reconcile returned error: %v", err)
		}
		if len(result.Warnings) != 0 || result.Registered != 2 {
			t.Errorf("retry result = %+v, want 2 clean registrations", result)
		}
		for _, token := range f.tokens.tokens {
			if token.RegistrationFailed {
				t.Errorf("token %s still marked failed after retry", token.ID)
			}
		}
	})

	t.Run("boot rebuilds registrations without token churn", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, Config{Lookahead: 3})
		f.plans.plans = []persistence.AlarmPlan{dailyPlan("plan-1", 7, 0)}

		if _, err := f.reconciler.Reconcile(context.Background(), EventPlanChanged); err != nil {
			t.Fatalf("first Reconcile returned error: %v", err)
		}
		pendingBefore := f.tokens.pendingCount()
		registeredBefore, _ := f.adapter.counts()

		result, err := f.reconciler.Reconcile(context.Background(), EventBootCompleted)
		if err != nil {
			t.Fatalf("boot Reconcile returned error: %v", err)
		}
		registeredAfter, canceled := f.adapter.counts()
		if registeredAfter != registeredBefore+3 {
			t.Errorf("boot should re-register all 3 tokens, register calls %d->%d", registeredBefore, registeredAfter)
		}
		if canceled != 0 || result.Canceled != 0 {
			t.Errorf("boot should not cancel anything, canceled %d", canceled)
		}
		if got := f.tokens.pendingCount(); got != pendingBefore {
			t.Errorf("pending tokens changed across boot: %d -> %d", pendingBefore, got)
		}
	})

	t.Run("refused rebuild registrations are warnings not registrations", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, Config{Lookahead: 2})
		f.plans.plans = []persistence.AlarmPlan{dailyPlan("plan-1", 7, 0)}

		if _, err := f.reconciler.Reconcile(context.Background(), EventPlanChanged); err != nil {
			t.Fatalf("setup Reconcile returned error: %v", err)
		}

		f.adapter.setRegisterErr(errors.New("exact alarm capability revoked"))
		result, err := f.reconciler.Reconcile(context.Background(), EventBootCompleted)
		if err != nil {
			t.Fatalf("boot Reconcile returned error: %v", err)
		}
		if result.Registered != 0 {
			t.Errorf("registered = %d, want 0 when every rebuild is refused", result.Registered)
		}
		if len(result.Warnings) != 2 {
			t.Errorf("warnings = %d, want 2", len(result.Warnings))
		}
		if got := f.tokens.pendingCount(); got != 2 {
			t.Errorf("pending tokens = %d, want 2", got)
		}
	})

	t.Run("store failure aborts without partial mutation", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, Config{Lookahead: 2})
		f.plans.plans = []persistence.AlarmPlan{dailyPlan("plan-1", 7, 0)}
		f.tokens.applyErr = errors.New("disk full")

		if _, err := f.reconciler.Reconcile(context.Background(), EventPlanChanged); err == nil {
			t.Fatal("expected error from failing store")
		}
		if got := f.tokens.pendingCount(); got != 0 {
			t.Errorf("pending tokens = %d, want 0 after aborted run", got)
		}
	})

	t.Run("platform id pool exhaustion is an error", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, Config{Lookahead: 5, PlatformIDMax: 3})
		f.plans.plans = []persistence.AlarmPlan{dailyPlan("plan-1", 7, 0)}

		_, err := f.reconciler.Reconcile(context.Background(), EventPlanChanged)
		if !errors.Is(err, ErrPoolExhausted) {
			t.Fatalf("error = %v, want ErrPoolExhausted", err)
		}
	})

	t.Run("duplicate pending tokens are an invariant violation", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, Config{Lookahead: 2})
		f.plans.plans = []persistence.AlarmPlan{dailyPlan("plan-1", 7, 0)}
		fireAt := time.Date(2024, time.March, 10, 7, 0, 0, 0, testLoc)
		f.tokens.seed(persistence.ScheduledToken{ID: "dup-1", PlanID: "plan-1", Date: "2024-03-10", FireAt: fireAt, PlatformID: 1, Status: persistence.TokenStatusPending})
		f.tokens.seed(persistence.ScheduledToken{ID: "dup-2", PlanID: "plan-1", Date: "2024-03-10", FireAt: fireAt, PlatformID: 2, Status: persistence.TokenStatusPending})

		_, err := f.reconciler.Reconcile(context.Background(), EventPlanChanged)
		if !errors.Is(err, ErrInvariantViolation) {
			t.Fatalf("error = %v, want ErrInvariantViolation", err)
		}
	})

	t.Run("unknown event is rejected", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, Config{})
		if _, err := f.reconciler.Reconcile(context.Background(), Event("mystery")); !errors.Is(err, ErrUnknownEvent) {
			t.Fatalf("error = %v, want ErrUnknownEvent", err)
		}
	})
}

func TestReconciler_SingleFlight(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{Lookahead: 2})
	f.plans.plans = []persistence.AlarmPlan{dailyPlan("plan-1", 7, 0)}

	gate := make(chan struct{})
	f.plans.mu.Lock()
	f.plans.gate = gate
	f.plans.mu.Unlock()

	done := make(chan Result, 1)
	go func() {
		result, _ := f.reconciler.Reconcile(context.Background(), EventPlanChanged)
		done <- result
	}()

	// Wait for the first run to enter the blocking plan load.
	for f.plans.callCount() == 0 {
		time.Sleep(time.Millisecond)
	}

	coalesced, err := f.reconciler.Reconcile(context.Background(), EventExceptionChanged)
	if err != nil {
		t.Fatalf("coalesced Reconcile returned error: %v", err)
	}
	if !coalesced.Coalesced {
		t.Error("second call should report coalescing")
	}

	close(gate)
	<-done

	// The in-flight caller executed the original pass plus one follow-up.
	if got := f.plans.callCount(); got != 2 {
		t.Errorf("plan loads = %d, want 2 (initial + follow-up)", got)
	}
}

func TestReconciler_CoalescedBootRebuildsRegistrations(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{Lookahead: 3})
	f.plans.plans = []persistence.AlarmPlan{dailyPlan("plan-1", 7, 0)}

	if _, err := f.reconciler.Reconcile(context.Background(), EventPlanChanged); err != nil {
		t.Fatalf("setup Reconcile returned error: %v", err)
	}
	registeredBefore, _ := f.adapter.counts()

	gate := make(chan struct{})
	f.plans.mu.Lock()
	f.plans.gate = gate
	f.plans.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = f.reconciler.Reconcile(context.Background(), EventScheduledRefresh)
	}()

	// Wait for the refresh run to enter the blocking plan load.
	for f.plans.callCount() < 2 {
		time.Sleep(time.Millisecond)
	}

	coalesced, err := f.reconciler.Reconcile(context.Background(), EventBootCompleted)
	if err != nil {
		t.Fatalf("boot Reconcile returned error: %v", err)
	}
	if !coalesced.Coalesced {
		t.Error("boot call should report coalescing")
	}

	close(gate)
	<-done

	// The follow-up pass must run as boot and re-register every token; folded
	// into the weaker refresh it would leave all three registrations lost.
	registeredAfter, canceled := f.adapter.counts()
	if registeredAfter != registeredBefore+3 {
		t.Errorf("coalesced boot did not rebuild registrations: register calls %d -> %d, want +3",
			registeredBefore, registeredAfter)
	}
	if canceled != 0 {
		t.Errorf("boot rebuild should not cancel anything, canceled %d", canceled)
	}
}

func TestReconciler_HandleFired(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{Lookahead: 1})
	f.plans.plans = []persistence.AlarmPlan{dailyPlan("plan-1", 7, 0)}

	if _, err := f.reconciler.Reconcile(context.Background(), EventPlanChanged); err != nil {
		t.Fatalf("Reconcile returned error: %v", err)
	}
	registration := f.adapter.registered[0]

	token, err := f.reconciler.HandleFired(context.Background(), registration.PlatformID)
	if err != nil {
		t.Fatalf("HandleFired returned error: %v", err)
	}
	if token.Status != persistence.TokenStatusFired {
		t.Errorf("token status = %s, want FIRED", token.Status)
	}

	// The platform id is no longer addressable once the token is terminal.
	if _, err := f.reconciler.HandleFired(context.Background(), registration.PlatformID); err == nil {
		t.Error("expected error for already fired token")
	}
}
