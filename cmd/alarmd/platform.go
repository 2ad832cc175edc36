package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/example/alarm-engine/internal/reconcile"
)

// fireFunc receives the platform identifier and ring metadata of a
// registration whose timer elapsed.
type fireFunc func(platformID int, ring reconcile.RingInfo)

// timerPlatform implements reconcile.PlatformAdapter with in-process
// time.AfterFunc timers. It stands in for an OS alarm service: registrations
// survive only as long as the process, which is exactly the lifetime the
// boot-completed rebuild assumes.
type timerPlatform struct {
	mu     sync.Mutex
	timers map[int]*time.Timer
	fire   fireFunc
	logger *slog.Logger
}

func newTimerPlatform(logger *slog.Logger) *timerPlatform {
	if logger == nil {
		logger = slog.Default()
	}
	return &timerPlatform{timers: make(map[int]*time.Timer), logger: logger}
}

// SetFireFunc installs the fire callback. The adapter is constructed before
// the reconciler that consumes its fire events, so the callback arrives late.
func (p *timerPlatform) SetFireFunc(fn fireFunc) {
	p.mu.Lock()
	p.fire = fn
	p.mu.Unlock()
}

// Register arms a timer for the registration. Re-registering an identifier
// replaces the previous timer.
func (p *timerPlatform) Register(_ context.Context, registration reconcile.Registration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.timers[registration.PlatformID]; ok {
		existing.Stop()
	}

	delay := time.Until(registration.FireAt)
	if delay < 0 {
		delay = 0
	}
	ring := registration.Ring
	platformID := registration.PlatformID
	p.timers[platformID] = time.AfterFunc(delay, func() { p.fired(platformID, ring) })
	p.logger.Debug("platform registration armed", "platform_id", platformID, "fire_at", registration.FireAt)
	return nil
}

// Cancel disarms the timer for the identifier. Unknown identifiers are
// ignored.
func (p *timerPlatform) Cancel(_ context.Context, platformID int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if timer, ok := p.timers[platformID]; ok {
		timer.Stop()
		delete(p.timers, platformID)
		p.logger.Debug("platform registration canceled", "platform_id", platformID)
	}
	return nil
}

// Close disarms every live timer.
func (p *timerPlatform) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for platformID, timer := range p.timers {
		timer.Stop()
		delete(p.timers, platformID)
	}
}

func (p *timerPlatform) fired(platformID int, ring reconcile.RingInfo) {
	p.mu.Lock()
	delete(p.timers, platformID)
	fire := p.fire
	p.mu.Unlock()

	if fire == nil {
		p.logger.Warn("platform fire event dropped, no handler installed", "platform_id", platformID)
		return
	}
	fire(platformID, ring)
}
