// Package recurrence computes when a maintenance template next produces a
// request. Everything here is pure: no I/O, no clock reads, no shared state.
package recurrence

import (
	"time"

	"upkeep/internal/types"
)

// maxWeekdayScan bounds the forward search for an allowed weekday.
const maxWeekdayScan = 366

// Schedule is the subset of a template that drives recurrence.
type Schedule struct {
	IntervalDays    int
	AllowedWeekdays []time.Weekday
	// LastGenerated is the zero Date when the template never ran.
	LastGenerated types.Date
	CreatedOn     types.Date
	Active        bool
}

// FromTemplate builds a Schedule from a stored template. The creation
// timestamp is converted to a calendar date in loc so that "created late in
// the evening" lands on the same day the users saw.
func FromTemplate(t *types.Template, loc *time.Location) Schedule {
	if loc == nil {
		loc = time.UTC
	}
	s := Schedule{
		IntervalDays:  t.IntervalDays,
		LastGenerated: t.LastGeneratedDate,
		Active:        t.IsActive,
	}
	if !t.CreatedAt.IsZero() {
		s.CreatedOn = types.DateOf(t.CreatedAt.In(loc))
	}
	for _, d := range t.AllowedWeekdays {
		if d >= 0 && d <= 6 {
			s.AllowedWeekdays = append(s.AllowedWeekdays, time.Weekday(d))
		}
	}
	return s
}

// NextRunDate returns the next calendar date on which s should fire, judged
// from now. ok is false for inactive schedules.
//
// The earliest possible result is tomorrow: the daily worker runs just after
// midnight, so by the time anyone looks, today's slot is gone. A schedule that
// fell behind jumps to the next eligible day instead of backfilling.
func NextRunDate(s Schedule, now time.Time) (next types.Date, ok bool) {
	if !s.Active {
		return types.Date{}, false
	}

	today := types.DateOf(now)
	earliest := today.AddDays(1)

	target := baseDate(s, today).AddDays(s.IntervalDays)
	if target.Before(earliest) {
		target = earliest
	}

	if len(s.AllowedWeekdays) == 0 {
		return target, true
	}

	// If the loop runs out, the last candidate is returned as-is. With a
	// non-empty weekday set a match is always found within 7 steps.
	for i := 0; i < maxWeekdayScan; i++ {
		if weekdayAllowed(s.AllowedWeekdays, target.Weekday()) {
			return target, true
		}
		target = target.AddDays(1)
	}
	return target, true
}

// IsDue reports whether the daily run on today should generate a request.
// It agrees with NextRunDate evaluated the day before:
// IsDue(s, d) == (NextRunDate(s, d-1) == d).
func IsDue(s Schedule, today types.Date) bool {
	if !s.Active {
		return false
	}
	if baseDate(s, today.AddDays(-1)).AddDays(s.IntervalDays).After(today) {
		return false
	}
	return len(s.AllowedWeekdays) == 0 || weekdayAllowed(s.AllowedWeekdays, today.Weekday())
}

// DaysUntil returns how many days from today the next run is.
func DaysUntil(next, today types.Date) int {
	return next.DaysSince(today)
}

func baseDate(s Schedule, today types.Date) types.Date {
	switch {
	case !s.LastGenerated.IsZero():
		return s.LastGenerated
	case !s.CreatedOn.IsZero():
		return s.CreatedOn
	default:
		return today
	}
}

func weekdayAllowed(allowed []time.Weekday, d time.Weekday) bool {
	for _, a := range allowed {
		if a == d {
			return true
		}
	}
	return false
}
