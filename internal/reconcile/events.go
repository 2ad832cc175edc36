package reconcile

// Event identifies the external trigger that requested a reconciliation run.
// Platform broadcasts (boot completed, clock changed) arrive here as explicit
// values so the engine never depends on a platform runtime type.
type Event string

const (
	// EventPlanChanged follows a plan create/update/enable/disable/delete.
	EventPlanChanged Event = "plan_changed"
	// EventExceptionChanged follows a skip-exception add or remove.
	EventExceptionChanged Event = "exception_changed"
	// EventBootCompleted follows a device boot; all registrations were lost
	// and must be rebuilt from persisted tokens.
	EventBootCompleted Event = "boot_completed"
	// EventClockChanged follows a system-time or timezone change.
	EventClockChanged Event = "clock_changed"
	// EventScheduledRefresh is the periodic safety net that tops up the
	// lookahead window.
	EventScheduledRefresh Event = "scheduled_refresh"
)

// Valid reports whether the event is one of the known triggers.
func (e Event) Valid() bool {
	switch e {
	case EventPlanChanged, EventExceptionChanged, EventBootCompleted, EventClockChanged, EventScheduledRefresh:
		return true
	}
	return false
}
