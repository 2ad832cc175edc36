package occurrence

import (
	"sort"
	"time"

	"github.com/example/alarm-engine/internal/persistence"
)

var jst = time.FixedZone("JST", 9*60*60)

// DefaultDayCap bounds how many calendar days a single plan is scanned. It
// keeps expansion finite for plans whose mask matches no day or whose every
// matching day is perpetually skipped.
const DefaultDayCap = 60

// Occurrence is one concrete calendar-date instance implied by a plan. It is
// derived on every query and never persisted. Skipped occurrences are emitted
// alongside live ones so callers can present both.
type Occurrence struct {
	PlanID     string
	Label      string
	Date       string
	Hour       int
	Minute     int
	FireAt     time.Time
	Skipped    bool
	SkipReason persistence.SkipReason
}

// HolidayCalendar answers holiday lookups from an in-memory snapshot. The
// calculator is pure and synchronous, so implementations must not block.
type HolidayCalendar interface {
	IsHoliday(date string) bool
}

// Environment is the consistent snapshot the calculator consults while
// expanding plans. Callers load it once per pass so no occurrence set is
// computed from state that changed mid-computation.
type Environment struct {
	Exceptions []persistence.SkipException
	Holidays   HolidayCalendar
	Now        time.Time
}

// Calculator expands alarm plans into ordered occurrence sequences.
type Calculator struct {
	location *time.Location
	dayCap   int
}

// NewCalculator constructs a Calculator that materialises fire instants in the
// provided location. If loc is nil, Asia/Tokyo (JST) is used. A non-positive
// dayCap falls back to DefaultDayCap.
func NewCalculator(loc *time.Location, dayCap int) *Calculator {
	if loc == nil {
		loc = jst
	}
	if dayCap <= 0 {
		dayCap = DefaultDayCap
	}
	return &Calculator{location: loc, dayCap: dayCap}
}

// Location returns the calendar location fire instants are built in.
func (c *Calculator) Location() *time.Location {
	return c.location
}

// DayCap returns the scanning bound in calendar days. Callers loading skip
// exceptions must cover at least this window or distant skips go unseen.
func (c *Calculator) DayCap() int {
	return c.dayCap
}

// Upcoming expands every enabled plan into its next occurrences and merges the
// per-plan sequences ascending by fire instant, ties broken by plan ID.
//
// Each plan is walked one calendar day at a time from its next eligible date:
// today when today's fire instant is still in the future, otherwise tomorrow.
// Days whose weekday bit is unset are rejected; the rest are emitted, marked
// skipped when a skip exception covers the date or when the plan opted into
// holiday auto-skip and the date is a holiday. A manual exception always wins
// the recorded reason. Per plan, scanning stops after limit unskipped
// occurrences or after the day cap, whichever comes first.
//
// Fire instants are wall-clock times in the calculator's location: on daylight
// saving transition days the absolute epoch shifts with the clock, which is
// the intended contract.
func (c *Calculator) Upcoming(plans []persistence.AlarmPlan, env Environment, limit int) []Occurrence {
	if limit <= 0 {
		return nil
	}

	merged := make([]Occurrence, 0, limit*len(plans))
	for _, plan := range plans {
		merged = append(merged, c.planOccurrences(plan, env, limit)...)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].FireAt.Equal(merged[j].FireAt) {
			return merged[i].PlanID < merged[j].PlanID
		}
		return merged[i].FireAt.Before(merged[j].FireAt)
	})

	return merged
}

func (c *Calculator) planOccurrences(plan persistence.AlarmPlan, env Environment, limit int) []Occurrence {
	if !plan.Enabled {
		return nil
	}

	now := env.Now.In(c.location)
	year, month, day := now.Date()

	// Today stays eligible only while today's fire instant has not passed.
	if !time.Date(year, month, day, plan.Hour, plan.Minute, 0, 0, c.location).After(now) {
		day++
	}

	occurrences := make([]Occurrence, 0, limit)
	unskipped := 0

	for offset := 0; offset < c.dayCap; offset++ {
		// time.Date normalises out-of-range days, which keeps the walk
		// correct across month boundaries and DST transitions.
		fireAt := time.Date(year, month, day+offset, plan.Hour, plan.Minute, 0, 0, c.location)
		if !plan.MatchesWeekday(fireAt.Weekday()) {
			continue
		}

		date := fireAt.Format(persistence.DateLayout)
		skipped, reason := evaluateSkip(plan, date, env)

		occurrences = append(occurrences, Occurrence{
			PlanID:     plan.ID,
			Label:      plan.Label,
			Date:       date,
			Hour:       plan.Hour,
			Minute:     plan.Minute,
			FireAt:     fireAt,
			Skipped:    skipped,
			SkipReason: reason,
		})

		if !skipped {
			unskipped++
			if unskipped >= limit {
				break
			}
		}
	}

	return occurrences
}

// evaluateSkip resolves whether the plan's occurrence on date is suppressed
// and why. Precedence: a manual exception beats the holiday policy, which
// beats any remaining exception reason.
func evaluateSkip(plan persistence.AlarmPlan, date string, env Environment) (bool, persistence.SkipReason) {
	var matched *persistence.SkipException
	for i := range env.Exceptions {
		exception := env.Exceptions[i]
		if exception.Date != date || !exception.AppliesTo(plan.ID) {
			continue
		}
		if exception.Reason == persistence.SkipReasonManual {
			return true, persistence.SkipReasonManual
		}
		if matched == nil {
			matched = &env.Exceptions[i]
		}
	}

	if plan.SkipHolidays && env.Holidays != nil && env.Holidays.IsHoliday(date) {
		return true, persistence.SkipReasonHoliday
	}

	if matched != nil {
		return true, matched.Reason
	}

	return false, ""
}
