package ring

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type fakePlayer struct {
	mu     sync.Mutex
	events []string
}

func (p *fakePlayer) Play(soundID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, "play:"+soundID)
}

func (p *fakePlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, "stop")
}

func (p *fakePlayer) log() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

type fakeTimer struct {
	duration time.Duration
	fn       func()
	stopped  bool
}

func (t *fakeTimer) Stop() bool {
	stopped := t.stopped
	t.stopped = true
	return !stopped
}

type fakeTimerFactory struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (f *fakeTimerFactory) New(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	timer := &fakeTimer{duration: d, fn: fn}
	f.timers = append(f.timers, timer)
	return timer
}

// fire runs the callback of timer i, mimicking expiry.
func (f *fakeTimerFactory) fire(t *testing.T, i int) {
	t.Helper()
	f.mu.Lock()
	if i >= len(f.timers) {
		f.mu.Unlock()
		t.Fatalf("timer %d was never scheduled", i)
	}
	timer := f.timers[i]
	f.mu.Unlock()
	timer.fn()
}

func (f *fakeTimerFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

func testParams() StartParams {
	return StartParams{
		TokenID:     "token-1",
		PlanID:      "plan-1",
		Label:       "morning",
		RepeatCount: 3,
		IntervalMin: 5,
		SoundID:     "chime",
	}
}

func newTestController() (*Controller, *fakePlayer, *fakeTimerFactory) {
	player := &fakePlayer{}
	timers := &fakeTimerFactory{}
	now := func() time.Time { return time.Date(2024, time.March, 11, 7, 0, 0, 0, time.UTC) }
	return NewController(player, timers.New, now, nil), player, timers
}

func TestController_SnoozeSequence(t *testing.T) {
	t.Parallel()

	controller, player, timers := newTestController()

	snap, err := controller.Start(testParams())
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if snap.State != StateRinging || snap.Index != 1 || snap.Total != 3 {
		t.Fatalf("after start: %+v", snap)
	}

	// First snooze: Waiting for 5 minutes, then ring index 2.
	snap, err = controller.Snooze()
	if err != nil {
		t.Fatalf("first Snooze returned error: %v", err)
	}
	if snap.State != StateWaiting {
		t.Fatalf("after first snooze: %+v", snap)
	}
	if timers.timers[0].duration != 5*time.Minute {
		t.Errorf("wait duration = %s, want 5m", timers.timers[0].duration)
	}
	timers.fire(t, 0)
	if snap = controller.Status(); snap.State != StateRinging || snap.Index != 2 {
		t.Fatalf("after first wake: %+v", snap)
	}

	// Second snooze: Waiting again, then ring index 3.
	if _, err = controller.Snooze(); err != nil {
		t.Fatalf("second Snooze returned error: %v", err)
	}
	timers.fire(t, 1)
	if snap = controller.Status(); snap.State != StateRinging || snap.Index != 3 {
		t.Fatalf("after second wake: %+v", snap)
	}

	// Third snooze: budget exhausted, behaves like stop. No third wait.
	snap, err = controller.Snooze()
	if err != nil {
		t.Fatalf("third Snooze returned error: %v", err)
	}
	if snap.State != StateStopped {
		t.Fatalf("after third snooze: %+v", snap)
	}
	if got := timers.count(); got != 2 {
		t.Errorf("wait timers scheduled = %d, want exactly 2", got)
	}
	if controller.Status().State != StateIdle {
		t.Error("controller should be idle after the session ends")
	}

	want := []string{"play:chime", "stop", "play:chime", "stop", "play:chime", "stop"}
	got := player.log()
	if len(got) != len(want) {
		t.Fatalf("player events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("player events = %v, want %v", got, want)
		}
	}
}

func TestController_StopDuringWaitingCancelsReRing(t *testing.T) {
	t.Parallel()

	controller, _, timers := newTestController()

	if _, err := controller.Start(testParams()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if _, err := controller.Snooze(); err != nil {
		t.Fatalf("Snooze returned error: %v", err)
	}

	snap, err := controller.Stop()
	if err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	if snap.State != StateStopped {
		t.Fatalf("after stop: %+v", snap)
	}
	if !timers.timers[0].stopped {
		t.Error("pending wait timer was not canceled")
	}

	// Even if the canceled timer's callback still runs, no ring follows.
	timers.fire(t, 0)
	if got := controller.Status().State; got != StateIdle {
		t.Errorf("state after stale wake = %s, want idle", got)
	}
}

func TestController_StartWhileActive(t *testing.T) {
	t.Parallel()

	controller, _, _ := newTestController()
	if _, err := controller.Start(testParams()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if _, err := controller.Start(testParams()); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("error = %v, want ErrSessionActive", err)
	}
}

func TestController_SingleRingPlan(t *testing.T) {
	t.Parallel()

	controller, _, timers := newTestController()
	params := testParams()
	params.RepeatCount = 1

	if _, err := controller.Start(params); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	snap, err := controller.Snooze()
	if err != nil {
		t.Fatalf("Snooze returned error: %v", err)
	}
	if snap.State != StateStopped {
		t.Fatalf("snooze on single-ring plan should stop, got %+v", snap)
	}
	if timers.count() != 0 {
		t.Error("no wait timer should be scheduled for a single-ring plan")
	}
}

func TestController_CallsWithoutSession(t *testing.T) {
	t.Parallel()

	controller, _, _ := newTestController()
	if _, err := controller.Stop(); !errors.Is(err, ErrNoSession) {
		t.Errorf("Stop error = %v, want ErrNoSession", err)
	}
	if _, err := controller.Snooze(); !errors.Is(err, ErrNoSession) {
		t.Errorf("Snooze error = %v, want ErrNoSession", err)
	}
	if got := controller.Status().State; got != StateIdle {
		t.Errorf("idle status = %s", got)
	}
}

func TestController_SnoozeWhileWaiting(t *testing.T) {
	t.Parallel()

	controller, _, _ := newTestController()
	if _, err := controller.Start(testParams()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if _, err := controller.Snooze(); err != nil {
		t.Fatalf("Snooze returned error: %v", err)
	}
	if _, err := controller.Snooze(); !errors.Is(err, ErrNotRinging) {
		t.Errorf("error = %v, want ErrNotRinging", err)
	}
}
