package ring

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// State names the phase of an alarm ring session.
type State string

const (
	// StateIdle means no session is active.
	StateIdle State = "idle"
	// StateRinging means playback is running for the current ring index.
	StateRinging State = "ringing"
	// StateWaiting means the user snoozed and a re-ring is scheduled.
	StateWaiting State = "waiting"
	// StateStopped is terminal: the user acknowledged the alarm or the
	// repeat budget ran out.
	StateStopped State = "stopped"
)

var (
	// ErrSessionActive is returned when Start is called while another
	// session is live. The token table guarantees at most one fired token
	// reaches the controller, so this is a caller error.
	ErrSessionActive = errors.New("ring: session already active")
	// ErrNoSession is returned for Stop/Snooze without an active session.
	ErrNoSession = errors.New("ring: no active session")
	// ErrNotRinging is returned when Snooze is called outside Ringing.
	ErrNotRinging = errors.New("ring: session is not ringing")
)

// Player drives audio/haptic playback. Calls are fire-and-forget.
type Player interface {
	Play(soundID string)
	Stop()
}

// Timer is a cancelable scheduled task handle.
type Timer interface {
	Stop() bool
}

// TimerFactory schedules fn after d and returns a cancelable handle. The
// default factory wraps time.AfterFunc; tests substitute a manual one.
type TimerFactory func(d time.Duration, fn func()) Timer

func afterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// StartParams carries the plan metadata delivered with the platform fire
// event, so starting a session needs no store round trip.
type StartParams struct {
	TokenID     string
	PlanID      string
	Label       string
	RepeatCount int
	IntervalMin int
	SoundID     string
}

// Snapshot is a copy of the session state at one instant.
type Snapshot struct {
	State       State
	TokenID     string
	PlanID      string
	Label       string
	Index       int
	Total       int
	IntervalMin int
	NextRingAt  time.Time
}

type session struct {
	tokenID     string
	planID      string
	label       string
	soundID     string
	total       int
	intervalMin int
	index       int
	state       State
	nextRingAt  time.Time
	timer       Timer
}

// Controller owns at most one live ring session per process and serializes
// all transitions. A stop-versus-snooze race resolves to whichever call
// acquires the lock last, never to a playing sound plus a live timer.
type Controller struct {
	mu       sync.Mutex
	player   Player
	newTimer TimerFactory
	now      func() time.Time
	logger   *slog.Logger
	active   *session
}

// NewController wires the playback collaborator and clock. Nil newTimer and
// now fall back to time.AfterFunc and time.Now.
func NewController(player Player, newTimer TimerFactory, now func() time.Time, logger *slog.Logger) *Controller {
	if newTimer == nil {
		newTimer = afterFunc
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{player: player, newTimer: newTimer, now: now, logger: logger}
}

// Start creates a fresh session at ring index 1 and begins playback.
func (c *Controller) Start(params StartParams) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		return c.snapshotLocked(), ErrSessionActive
	}

	total := params.RepeatCount
	if total < 1 {
		total = 1
	}
	c.active = &session{
		tokenID:     params.TokenID,
		planID:      params.PlanID,
		label:       params.Label,
		soundID:     params.SoundID,
		total:       total,
		intervalMin: params.IntervalMin,
		index:       1,
		state:       StateRinging,
	}
	c.player.Play(params.SoundID)
	c.logger.Info("ring session started", "plan_id", params.PlanID, "token_id", params.TokenID, "total_rings", total)
	return c.snapshotLocked(), nil
}

// Stop halts playback, cancels any pending re-ring and ends the session.
func (c *Controller) Stop() (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil {
		return c.snapshotLocked(), ErrNoSession
	}
	c.finishLocked()
	return Snapshot{State: StateStopped}, nil
}

// Snooze halts playback and schedules a re-ring after the repeat interval.
// When the repeat budget is already exhausted it behaves like Stop.
func (c *Controller) Snooze() (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	active := c.active
	if active == nil {
		return c.snapshotLocked(), ErrNoSession
	}
	if active.state != StateRinging {
		return c.snapshotLocked(), ErrNotRinging
	}

	if active.index >= active.total {
		c.finishLocked()
		return Snapshot{State: StateStopped}, nil
	}

	c.player.Stop()
	interval := time.Duration(active.intervalMin) * time.Minute
	active.state = StateWaiting
	active.nextRingAt = c.now().Add(interval)
	active.timer = c.newTimer(interval, func() { c.wake(active) })
	c.logger.Info("ring session snoozed", "plan_id", active.planID, "ring_index", active.index, "next_ring_at", active.nextRingAt)
	return c.snapshotLocked(), nil
}

// Status reports the current session state; Idle when none is active.
func (c *Controller) Status() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// wake re-enters Ringing when the snooze timer fires. A session that was
// stopped while the timer was in flight is left alone.
func (c *Controller) wake(target *session) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != target || target.state != StateWaiting {
		return
	}
	target.index++
	if target.index > target.total {
		c.finishLocked()
		return
	}
	target.state = StateRinging
	target.nextRingAt = time.Time{}
	target.timer = nil
	c.player.Play(target.soundID)
	c.logger.Info("ring session re-ringing", "plan_id", target.planID, "ring_index", target.index)
}

func (c *Controller) finishLocked() {
	active := c.active
	c.player.Stop()
	if active.timer != nil {
		active.timer.Stop()
		active.timer = nil
	}
	c.active = nil
	c.logger.Info("ring session stopped", "plan_id", active.planID, "token_id", active.tokenID, "ring_index", active.index)
}

func (c *Controller) snapshotLocked() Snapshot {
	if c.active == nil {
		return Snapshot{State: StateIdle}
	}
	active := c.active
	return Snapshot{
		State:       active.state,
		TokenID:     active.tokenID,
		PlanID:      active.planID,
		Label:       active.label,
		Index:       active.index,
		Total:       active.total,
		IntervalMin: active.intervalMin,
		NextRingAt:  active.nextRingAt,
	}
}
